package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("class", "manager"),
		attribute.String("company_id", "456"),
		attribute.String("outcome", "exhausted"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "company_id" {
			t.Fatalf("expected company_id to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordSeatCheck(context.Background(), "create_invitation", "tech", "ok")
	m.RecordConflictRetry(context.Background(), "add_user")
}

func TestNewBuildsInstrumentsOnNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "plantops"}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordSeatCheck(context.Background(), "add_user", "manager", "ok")
	m.RecordSimulationSwitch(context.Background(), "package")
}

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyJobReason(tc.err))
		})
	}
}

func TestJobMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)

	m.ObserveJob("invitation_sweep", time.Now(), nil)
	m.ObserveJob("invitation_sweep", time.Now(), context.DeadlineExceeded)
	m.AddExpiredInvitations(3)
	m.AddExpiredInvitations(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("invitation_sweep", "ok", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("invitation_sweep", "error", JobReasonDeadlineExceeded)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.expired))
}

func TestHTTPMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/billing/seats", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/billing/seats", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/billing/seats", "200")))
}
