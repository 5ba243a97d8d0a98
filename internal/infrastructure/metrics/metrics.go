// Package metrics exposes Prometheus collectors for progression events,
// HTTP traffic, background jobs and the code execution proxy.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/learnhub/learnhub/internal/domain/shared"
)

const namespace = "learnhub"

// Recorder owns a private registry so tests and multiple binaries never clash
// on the global one.
type Recorder struct {
	registry *prometheus.Registry

	experienceAwarded *prometheus.CounterVec
	levelUps          prometheus.Counter
	streakUpdates     *prometheus.CounterVec
	achievements      *prometheus.CounterVec
	activities        *prometheus.CounterVec
	goalsCompleted    prometheus.Counter
	eventHandlers     *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	authRejects  *prometheus.CounterVec

	executions   *prometheus.CounterVec
	breakerState *prometheus.GaugeVec

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// New creates a recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		experienceAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "experience_awarded_total",
			Help: "Experience points granted, by origin.",
		}, []string{"origin"}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "level_ups_total",
			Help: "Levels gained across all users.",
		}),
		streakUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "streak_updates_total",
			Help: "Streak changes, by action.",
		}, []string{"action"}),
		achievements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "achievements_unlocked_total",
			Help: "Achievements awarded, by code.",
		}, []string{"code"}),
		activities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "activities_recorded_total",
			Help: "Recorded learning activities, by type.",
		}, []string{"type"}),
		goalsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "goals_completed_total",
			Help: "Learning goals reached.",
		}),
		eventHandlers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "event_handler_duration_seconds",
			Help:    "Event handler latency, by event type and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"event_type", "outcome"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		authRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "auth_rejections_total",
			Help: "Rejected requests, by reason.",
		}, []string{"reason"}),

		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "code_executions_total",
			Help: "Code execution requests, by language and outcome.",
		}, []string{"language", "outcome"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),

		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_runs_total",
			Help: "Background job runs, by job and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "job_duration_seconds",
			Help:    "Background job duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.experienceAwarded, r.levelUps, r.streakUpdates, r.achievements,
		r.activities, r.goalsCompleted, r.eventHandlers,
		r.httpRequests, r.httpDuration, r.authRejects,
		r.executions, r.breakerState,
		r.jobRuns, r.jobDuration,
	)
	return r
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// Subscribe attaches the recorder to every event on the bus.
func (r *Recorder) Subscribe(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(r.HandleEvent)
}

// HandleEvent updates counters for one event.
func (r *Recorder) HandleEvent(event shared.Event) error {
	switch e := event.(type) {
	case shared.ExperienceAwardedEvent:
		r.experienceAwarded.WithLabelValues(origin(e.Source)).Add(float64(e.Amount))
	case shared.LevelUpEvent:
		r.levelUps.Add(float64(e.NewLevel - e.OldLevel))
	case shared.StreakUpdatedEvent:
		r.streakUpdates.WithLabelValues(e.Action).Inc()
	case shared.AchievementUnlockedEvent:
		r.achievements.WithLabelValues(e.AchievementCode).Inc()
	case shared.ActivityRecordedEvent:
		r.activities.WithLabelValues(e.ActivityType).Inc()
	case shared.GoalCompletedEvent:
		r.goalsCompleted.Inc()
	}
	return nil
}

// ObserveHandler matches messaging.HandlerObserver.
func (r *Recorder) ObserveHandler(eventType shared.EventType, d time.Duration, err error) {
	r.eventHandlers.WithLabelValues(string(eventType), outcome(err)).Observe(d.Seconds())
}

// "activity:lesson_completed" -> "activity"
func origin(source string) string {
	if source == "" {
		return "unknown"
	}
	if i := strings.IndexByte(source, ':'); i > 0 {
		return source[:i]
	}
	return source
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP
// ══════════════════════════════════════════════════════════════════════════════

// ObserveRequest records one served request. route is the registered pattern,
// never the raw path.
func (r *Recorder) ObserveRequest(route, method string, status int, d time.Duration) {
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
	switch status {
	case http.StatusUnauthorized:
		r.authRejects.WithLabelValues("unauthorized").Inc()
	case http.StatusForbidden:
		r.authRejects.WithLabelValues("forbidden").Inc()
	case http.StatusTooManyRequests:
		r.authRejects.WithLabelValues("rate_limited").Inc()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTOR AND JOBS
// ══════════════════════════════════════════════════════════════════════════════

// ObserveExecution counts one code run.
func (r *Recorder) ObserveExecution(language string, err error) {
	r.executions.WithLabelValues(language, outcome(err)).Inc()
}

// SetBreakerState publishes a circuit breaker state as 0, 1 or 2.
func (r *Recorder) SetBreakerState(name string, state int) {
	r.breakerState.WithLabelValues(name).Set(float64(state))
}

// ObserveJob records one background job run.
func (r *Recorder) ObserveJob(job string, d time.Duration, err error) {
	r.jobRuns.WithLabelValues(job, outcome(err)).Inc()
	r.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
