package postgres

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_progression", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_achievements", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_activity", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: LEVELS, STREAKS, METRICS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS user_levels (
    user_id VARCHAR(64) PRIMARY KEY,
    current_level INTEGER NOT NULL DEFAULT 1,
    experience INTEGER NOT NULL DEFAULT 0,
    next_level_exp INTEGER NOT NULL DEFAULT 100,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_level CHECK (current_level >= 1),
    CONSTRAINT valid_experience CHECK (experience >= 0 AND experience < next_level_exp),
    CONSTRAINT valid_next_level_exp CHECK (next_level_exp > 0)
);

CREATE TABLE IF NOT EXISTS user_streaks (
    user_id VARCHAR(64) PRIMARY KEY,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_active DATE,
    version BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_current_streak CHECK (current_streak >= 0),
    CONSTRAINT valid_longest_streak CHECK (longest_streak >= current_streak)
);

CREATE INDEX IF NOT EXISTS idx_user_streaks_last_active ON user_streaks(last_active) WHERE current_streak > 0;

-- Append-only; rows are never updated.
CREATE TABLE IF NOT EXISTS progress_metrics (
    id UUID PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    metric_type VARCHAR(50) NOT NULL,
    metric_value INTEGER NOT NULL,
    metric_data JSONB NOT NULL DEFAULT '{}'::jsonb,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_progress_metrics_user ON progress_metrics(user_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_progress_metrics_type ON progress_metrics(metric_type, recorded_at DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS progress_metrics;
DROP TABLE IF EXISTS user_streaks;
DROP TABLE IF EXISTS user_levels;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ACHIEVEMENT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS achievements (
    id UUID PRIMARY KEY,
    code VARCHAR(64) NOT NULL UNIQUE,
    name VARCHAR(120) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    criteria JSONB NOT NULL,
    icon VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_criteria_kind CHECK (criteria->>'type' IN (
        'lesson_completion', 'topic_completion', 'streak_days',
        'assessment_completion', 'assessment_score'
    )),
    CONSTRAINT valid_criteria_threshold CHECK ((criteria->>'threshold')::int >= 1)
);

CREATE TABLE IF NOT EXISTS user_achievements (
    user_id VARCHAR(64) NOT NULL,
    achievement_id UUID NOT NULL REFERENCES achievements(id) ON DELETE CASCADE,
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_user_achievements_earned ON user_achievements(user_id, earned_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS user_achievements;
DROP TABLE IF EXISTS achievements;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ACTIVITIES, TOPIC PROGRESS, GOALS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS activities (
    id UUID PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    activity_type VARCHAR(40) NOT NULL,
    topic_id VARCHAR(64),
    score INTEGER,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_activity_type CHECK (activity_type IN (
        'lesson_started', 'lesson_completed', 'topic_completed',
        'assessment_completed', 'code_executed', 'login'
    )),
    CONSTRAINT valid_score CHECK (score IS NULL OR (score >= 0 AND score <= 100))
);

CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_activities_user_type ON activities(user_id, activity_type);

CREATE TABLE IF NOT EXISTS user_topic_progress (
    user_id VARCHAR(64) NOT NULL,
    topic_id VARCHAR(64) NOT NULL,
    lessons_completed INTEGER NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, topic_id)
);

CREATE TABLE IF NOT EXISTS learning_goals (
    id UUID PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    activity_type VARCHAR(40) NOT NULL,
    target INTEGER NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    deadline TIMESTAMP WITH TIME ZONE,
    completed_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_target CHECK (target >= 1),
    CONSTRAINT valid_progress CHECK (progress >= 0)
);

CREATE INDEX IF NOT EXISTS idx_learning_goals_active
    ON learning_goals(user_id, activity_type) WHERE completed_at IS NULL;
`

const migration003Down = `
DROP TABLE IF EXISTS learning_goals;
DROP TABLE IF EXISTS user_topic_progress;
DROP TABLE IF EXISTS activities;
`
