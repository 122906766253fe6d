package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonCanceled             = "canceled"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonNotFound             = "not_found"
	JobReasonUnknown              = "unknown"
)

// JobMetrics are the prometheus collectors for background jobs.
type JobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	expired  prometheus.Counter
}

func NewJobMetrics(registerer prometheus.Registerer) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plantops_job_runs_total",
			Help: "Background job executions by outcome.",
		}, []string{"job", "outcome", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plantops_job_duration_seconds",
			Help:    "Background job execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plantops_invitations_expired_total",
			Help: "Pending invitations flipped to expired by the sweep.",
		}),
	}
	registerer.MustRegister(m.runs, m.duration, m.expired)
	return m
}

// ObserveJob records one execution of job.
func (m *JobMetrics) ObserveJob(job string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, "error", ClassifyJobReason(err)).Inc()
		return
	}
	m.runs.WithLabelValues(job, "ok", "").Inc()
}

func (m *JobMetrics) AddExpiredInvitations(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func ClassifyJobReason(err error) string {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return JobReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return JobReasonCanceled
	case errors.Is(err, gorm.ErrRecordNotFound):
		return JobReasonNotFound
	case errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01"):
		return JobReasonSerializationFailure
	default:
		return JobReasonUnknown
	}
}

// HTTPMetrics are the prometheus collectors for inbound requests.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plantops_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plantops_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	registerer.MustRegister(m.requests, m.latency)
	return m
}

// GinMiddleware records request counts and latency per matched route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
