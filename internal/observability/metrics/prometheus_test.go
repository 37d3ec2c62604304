package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/glaucomacare/gms/internal/domain/adherence"
	"github.com/glaucomacare/gms/pkg/circuitbreaker"
)

func TestEvaluationCompleted(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.EvaluationCompleted(adherence.EvaluationSummary{Eligible: 5, Compliant: 3, Alerted: 1, Deduplicated: 1, Duration: time.Second})
	m.EvaluationCompleted(adherence.EvaluationSummary{Eligible: 1, Failed: 1})

	if got := testutil.ToFloat64(m.EvaluationRuns); got != 2 {
		t.Errorf("runs = %v", got)
	}
	if got := testutil.ToFloat64(m.EvaluationOutcomes.WithLabelValues("compliant")); got != 3 {
		t.Errorf("compliant = %v", got)
	}
	if got := testutil.ToFloat64(m.EvaluationOutcomes.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v", got)
	}
	if got := testutil.ToFloat64(m.EvaluationLastSuccess); got == 0 {
		t.Error("last success should be set by the clean run")
	}
}

func TestObserverCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AlertResolved()
	m.DoseRecorded(adherence.StatusTaken)
	m.DoseRecorded(adherence.StatusTaken)
	m.NotificationSent("adherence_alert")
	m.NotificationSkipped("adherence_alert", "duplicate")
	m.OutboxPublished("adherence.alerts")
	m.OutboxDeadLettered(3)
	m.MessageConsumed("adherence.alerts")
	m.JobFinished("adherence-evaluation", time.Second, errors.New("boom"))

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"resolved", m.AlertsResolved, 1},
		{"doses", m.DosesRecorded.WithLabelValues("taken"), 2},
		{"sent", m.NotificationsSent.WithLabelValues("adherence_alert"), 1},
		{"skipped", m.NotificationsSkipped.WithLabelValues("adherence_alert", "duplicate"), 1},
		{"outbox", m.OutboxRelayed.WithLabelValues("adherence.alerts"), 1},
		{"dead letter", m.OutboxDeadLetters, 3},
		{"consumed", m.KafkaMessagesConsumed.WithLabelValues("adherence.alerts"), 1},
		{"job errors", m.ScheduledJobRuns.WithLabelValues("adherence-evaluation", "error"), 1},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Errorf("%s = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestBreakerStateChanged(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.BreakerStateChanged("smtp", circuitbreaker.StateOpen)
	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("smtp")); got != 1 {
		t.Errorf("open = %v", got)
	}
	m.BreakerStateChanged("smtp", circuitbreaker.StateHalfOpen)
	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("smtp")); got != 2 {
		t.Errorf("half-open = %v", got)
	}
	m.BreakerStateChanged("smtp", circuitbreaker.StateClosed)
	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("smtp")); got != 0 {
		t.Errorf("closed = %v", got)
	}
}

func TestGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetOutboxPending(7)
	m.SetInboxEntries(map[string]int64{"FINISHED": 12, "FAILED": 1})
	m.SetConsumerLag(map[string]int64{"adherence.alerts": 4})
	m.SetConsumerLag(map[string]int64{"adherence.alerts": 0})

	if got := testutil.ToFloat64(m.OutboxPending); got != 7 {
		t.Errorf("pending = %v", got)
	}
	if got := testutil.ToFloat64(m.InboxEntries.WithLabelValues("FINISHED")); got != 12 {
		t.Errorf("finished = %v", got)
	}
	if got := testutil.ToFloat64(m.KafkaConsumerLag.WithLabelValues("adherence.alerts")); got != 0 {
		t.Errorf("lag = %v", got)
	}
}

func TestHandlerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RequestServed("GET", "/api/v1/adherence-alerts", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `http_requests_total{method="GET",route="/api/v1/adherence-alerts",status="200"} 1`) {
		t.Error("request counter missing from exposition")
	}
}
