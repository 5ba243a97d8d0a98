package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/learnhub/learnhub/internal/domain/progression"
)

// MetricRepository implements progression.MetricRepository. Insert-only.
type MetricRepository struct {
	conn *Connection
}

// NewMetricRepository creates a new MetricRepository.
func NewMetricRepository(conn *Connection) *MetricRepository {
	return &MetricRepository{conn: conn}
}

// Append stores one metric row.
func (r *MetricRepository) Append(ctx context.Context, m *progression.ProgressMetric) error {
	id := uuid.New()
	if m.ID != "" {
		parsed, err := uuid.Parse(m.ID)
		if err != nil {
			return fmt.Errorf("postgres: invalid metric id: %w", err)
		}
		id = parsed
	}
	m.ID = id.String()
	data, err := json.Marshal(m.MetricData)
	if err != nil {
		return fmt.Errorf("postgres: marshal metric data: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO progress_metrics (id, user_id, metric_type, metric_value, metric_data, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, m.UserID, m.MetricType, m.MetricValue, data, m.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("postgres: append metric: %w", err)
	}
	return nil
}

// ListByUser returns the latest metrics of a user.
func (r *MetricRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*progression.ProgressMetric, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.conn.Query(ctx, `
		SELECT id::text, user_id, metric_type, metric_value, metric_data, recorded_at
		FROM progress_metrics
		WHERE user_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list metrics: %w", err)
	}
	defer rows.Close()

	var out []*progression.ProgressMetric
	for rows.Next() {
		var (
			m   progression.ProgressMetric
			raw []byte
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.MetricType, &m.MetricValue, &raw, &m.RecordedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan metric: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &m.MetricData); err != nil {
				return nil, fmt.Errorf("postgres: decode metric data: %w", err)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
