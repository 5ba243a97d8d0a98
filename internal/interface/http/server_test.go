package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/application/command"
	"github.com/learnhub/learnhub/internal/application/query"
	"github.com/learnhub/learnhub/internal/domain/progression"
	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/internal/infrastructure/external/piston"
	"github.com/learnhub/learnhub/internal/infrastructure/persistence/memory"
	"github.com/learnhub/learnhub/internal/infrastructure/persistence/redis"
)

type prefixVerifier struct{}

func (prefixVerifier) Verify(_ context.Context, token string) (string, error) {
	if !strings.HasPrefix(token, "tok-") {
		return "", errors.New("bad token")
	}
	return strings.TrimPrefix(token, "tok-"), nil
}

type fakeExecutor struct {
	err          error
	calls        int
	runtimeCalls int
}

func (f *fakeExecutor) Execute(_ context.Context, req piston.ExecuteRequest) (*piston.ExecuteResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	code := 0
	return &piston.ExecuteResult{Language: req.Language, Version: "3.10.0", Run: piston.Stage{Stdout: "ok\n", Code: &code}}, nil
}

func (f *fakeExecutor) Runtimes(context.Context) ([]piston.Runtime, error) {
	f.runtimeCalls++
	return []piston.Runtime{{Language: "python", Version: "3.10.0"}}, nil
}

type testAPI struct {
	server   *Server
	store    *memory.Store
	executor *fakeExecutor
}

func newTestAPI(t *testing.T, mutate func(*Config)) *testAPI {
	t.Helper()
	store := memory.NewStore()
	levels := memory.NewLevelRepository(store)
	streaks := memory.NewStreakRepository(store)
	achs := memory.NewAchievementRepository(store)
	goals := memory.NewGoalRepository(store)
	deps := command.Deps{}

	_, err := achs.UpsertCatalog(context.Background(), []progression.Achievement{
		{ID: "a-1", Code: "first_lesson", Name: "First Steps", Criteria: progression.Criteria{Kind: progression.CriteriaLessonCompletion, Threshold: 1}},
	})
	require.NoError(t, err)

	award := command.NewAwardExperienceHandler(levels, memory.NewMetricRepository(store), deps)
	exec := &fakeExecutor{}

	cfg := DefaultConfig()
	cfg.APIKeys = []string{"svc-key"}
	if mutate != nil {
		mutate(&cfg)
	}

	srv := NewServer(cfg, Dependencies{
		AwardExperience:   award,
		RecordActivity:    command.NewRecordActivityHandler(memory.NewActivityRepository(store), goals, streaks, award, map[string]int{"lesson_completed": 25}, deps),
		CheckAchievements: command.NewCheckAchievementsHandler(achs, achs, achs, deps),
		CreateGoal:        command.NewCreateGoalHandler(goals, deps),
		GetProgress:       query.NewGetProgressHandler(levels, streaks, achs, achs, goals),
		ListAchievements:  query.NewListAchievementsHandler(achs),
		Executor:          exec,
		Verifier:          prefixVerifier{},
		RateLimiter:       NewLocalRateLimiter(),
	})
	return &testAPI{server: srv, store: store, executor: exec}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)

	var resp JSONResponse
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func dataMap(t *testing.T, resp JSONResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestAwardExperience_RequiresAPIKey(t *testing.T) {
	api := newTestAPI(t, nil)
	body := map[string]any{"user_id": "u-1", "amount": 250}

	rec, _ := api.do(t, http.MethodPost, "/api/v1/experience", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/experience", strings.NewReader(`{"user_id":"u-1","amount":250}`))
	req.Header.Set("X-API-Key", "svc-key")
	rec = httptest.NewRecorder()
	api.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := dataMap(t, resp)
	assert.EqualValues(t, 2, data["level"])
	assert.EqualValues(t, 150, data["experience"])
	assert.EqualValues(t, 283, data["next_level_exp"])
	assert.Equal(t, true, data["leveled_up"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAwardExperience_ValidationDetails(t *testing.T) {
	api := newTestAPI(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/experience", strings.NewReader(`{"user_id":"  ","amount":0}`))
	req.Header.Set("X-API-Key", "svc-key")
	rec := httptest.NewRecorder()
	api.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation_error", resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "user_id")
	assert.Contains(t, details, "amount")
}

func TestUserRoutes_RequireBearerToken(t *testing.T) {
	api := newTestAPI(t, nil)

	rec, resp := api.do(t, http.MethodGet, "/api/v1/me/progress", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = api.do(t, http.MethodGet, "/api/v1/me/progress", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecordActivity_ThenProgressAndAchievements(t *testing.T) {
	api := newTestAPI(t, nil)

	rec, resp := api.do(t, http.MethodPost, "/api/v1/activities", "tok-u-1",
		map[string]any{"activity_type": "lesson_completed", "topic_id": "t-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := dataMap(t, resp)
	assert.Equal(t, "started", data["streak_action"])
	assert.EqualValues(t, 1, data["current_streak"])
	level := data["level"].(map[string]any)
	assert.EqualValues(t, 25, level["experience"])

	rec, resp = api.do(t, http.MethodPost, "/api/v1/achievements/check", "tok-u-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, dataMap(t, resp)["count"])

	rec, resp = api.do(t, http.MethodPost, "/api/v1/achievements/check", "tok-u-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, dataMap(t, resp)["count"])

	rec, resp = api.do(t, http.MethodGet, "/api/v1/me/progress", "tok-u-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	progress := dataMap(t, resp)
	assert.EqualValues(t, 1, progress["level"])
	assert.EqualValues(t, 25, progress["experience"])
	assert.Equal(t, true, progress["active_today"])
	assert.Len(t, progress["achievements"], 1)
}

func TestRecordActivity_RejectsUnknownType(t *testing.T) {
	api := newTestAPI(t, nil)
	rec, resp := api.do(t, http.MethodPost, "/api/v1/activities", "tok-u-1", map[string]any{"activity_type": "napping"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", resp.Error.Code)
}

func TestCreateGoal(t *testing.T) {
	api := newTestAPI(t, nil)

	rec, resp := api.do(t, http.MethodPost, "/api/v1/me/goals", "tok-u-1", map[string]any{"activity_type": "login", "target": 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 3, dataMap(t, resp)["remaining"])

	rec, _ = api.do(t, http.MethodPost, "/api/v1/me/goals", "tok-u-1", map[string]any{"activity_type": "login", "target": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAchievements_IsPublic(t *testing.T) {
	api := newTestAPI(t, nil)
	rec, resp := api.do(t, http.MethodGet, "/api/v1/achievements", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := resp.Data.([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "lesson_completion>=1", items[0].(map[string]any)["criteria"])
}

func TestExecute_RecordsActivityAndMapsErrors(t *testing.T) {
	api := newTestAPI(t, nil)
	body := map[string]any{"language": "python", "source": "print('ok')"}

	rec, _ := api.do(t, http.MethodPost, "/api/v1/execute", "tok-u-1", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	acts, err := memory.NewActivityRepository(api.store).ListByUser(context.Background(), "u-1", 10)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "code_executed", string(acts[0].Type))

	api.executor.err = shared.WrapError("executor", "Request", shared.ErrServiceUnavailable, "down", errors.New("open"))
	rec, resp := api.do(t, http.MethodPost, "/api/v1/execute", "tok-u-1", body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream_error", resp.Error.Code)

	api.executor.err = shared.NewDomainError("executor", "Request", shared.ErrInvalidInput, "unknown runtime")
	rec, _ = api.do(t, http.MethodPost, "/api/v1/execute", "tok-u-1", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecute_RateLimitedPerUser(t *testing.T) {
	api := newTestAPI(t, func(c *Config) { c.ExecutePerMinute = 2 })
	body := map[string]any{"language": "python", "source": "print(1)"}

	for i := 0; i < 2; i++ {
		rec, _ := api.do(t, http.MethodPost, "/api/v1/execute", "tok-u-1", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, resp := api.do(t, http.MethodPost, "/api/v1/execute", "tok-u-1", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", resp.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 2, api.executor.calls)

	rec, _ = api.do(t, http.MethodPost, "/api/v1/execute", "tok-u-2", body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListRuntimes_RequiresUser(t *testing.T) {
	api := newTestAPI(t, nil)

	rec, resp := api.do(t, http.MethodGet, "/api/v1/execute/runtimes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
	assert.Zero(t, api.executor.runtimeCalls)

	rec, resp = api.do(t, http.MethodGet, "/api/v1/execute/runtimes", "tok-u-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := resp.Data.([]any)
	require.Len(t, items, 1)
	assert.Equal(t, 1, api.executor.runtimeCalls)
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	for _, path := range []string{"/health", "/ready", "/live"} {
		rec, resp := api.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, resp.Success, path)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.ErrEmptyUserID, http.StatusBadRequest},
		{shared.ErrAchievementNotFound, http.StatusNotFound},
		{shared.ErrConcurrentModification, http.StatusConflict},
		{shared.ErrExecutorRateLimited, http.StatusTooManyRequests},
		{shared.ErrExecutorUnavailable, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _, _ := classify(tt.err)
		assert.Equal(t, tt.want, status, tt.err.Error())
	}
}

func TestLocalRateLimiter_RefillsOverTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	l := NewLocalRateLimiter()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "u-1", "api", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "u-1", "api", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	now = now.Add(30 * time.Second)
	d, err = l.Allow(ctx, "u-1", "api", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	now = now.Add(10 * time.Minute)
	l.Cleanup(5 * time.Minute)
	assert.Empty(t, l.visitors)
}

var _ RateLimiter = (*redis.RateLimiter)(nil)
