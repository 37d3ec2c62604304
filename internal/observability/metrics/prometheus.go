// Package metrics provides Prometheus metrics for the glaucoma management
// services. Metrics implements the observer interfaces of the domain and
// infrastructure packages so they never import Prometheus themselves.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glaucomacare/gms/internal/domain/adherence"
	"github.com/glaucomacare/gms/pkg/circuitbreaker"
)

// Metrics holds all application metrics
type Metrics struct {
	EvaluationRuns        prometheus.Counter
	EvaluationOutcomes    *prometheus.CounterVec
	EvaluationDuration    prometheus.Histogram
	EvaluationLastSuccess prometheus.Gauge
	AlertsResolved        prometheus.Counter
	DosesRecorded         *prometheus.CounterVec
	NotificationsSent     *prometheus.CounterVec
	NotificationsFailed   *prometheus.CounterVec
	NotificationsSkipped  *prometheus.CounterVec
	KafkaMessagesProduced *prometheus.CounterVec
	KafkaMessagesConsumed *prometheus.CounterVec
	KafkaConsumerLag      *prometheus.GaugeVec
	OutboxRelayed         *prometheus.CounterVec
	OutboxPublishFailures *prometheus.CounterVec
	OutboxDeadLetters     prometheus.Counter
	OutboxPending         prometheus.Gauge
	InboxEntries          *prometheus.GaugeVec
	ScheduledJobRuns      *prometheus.CounterVec
	ScheduledJobDuration  *prometheus.HistogramVec
	CircuitBreakerState   *prometheus.GaugeVec
	HTTPRequests          *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EvaluationRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adherence_evaluation_runs_total",
			Help: "Total adherence evaluation runs",
		}),
		EvaluationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adherence_evaluation_prescriptions_total",
			Help: "Prescriptions evaluated, by outcome",
		}, []string{"outcome"}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "adherence_evaluation_duration_seconds",
			Help:    "Adherence evaluation run duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		EvaluationLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adherence_evaluation_last_success_timestamp_seconds",
			Help: "Unix time of the last evaluation run without failures",
		}),
		AlertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adherence_alerts_resolved_total",
			Help: "Total adherence alerts resolved",
		}),
		DosesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adherence_doses_recorded_total",
			Help: "Dose records appended, by taken status",
		}, []string{"status"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Emails delivered",
		}, []string{"kind"}),
		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Email delivery failures",
		}, []string{"kind"}),
		NotificationsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_skipped_total",
			Help: "Notifications not sent, by reason",
		}, []string{"kind", "reason"}),
		KafkaMessagesProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}, []string{"topic"}),
		KafkaMessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}, []string{"topic"}),
		KafkaConsumerLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Notifier consumer group lag, by topic",
		}, []string{"topic"}),
		OutboxRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox entries relayed",
		}, []string{"topic"}),
		OutboxPublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Outbox relay attempts that failed",
		}, []string{"topic"}),
		OutboxDeadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_dead_lettered_total",
			Help: "Outbox entries moved to the dead letter topic",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		InboxEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inbox_entries",
			Help: "Notification inbox entries, by status",
		}, []string{"status"}),
		ScheduledJobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Scheduled job runs, by result",
		}, []string{"job", "result"}),
		ScheduledJobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scheduled_job_duration_seconds",
			Help:    "Scheduled job duration",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 300},
		}, []string{"job"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests, by route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.EvaluationRuns,
		m.EvaluationOutcomes,
		m.EvaluationDuration,
		m.EvaluationLastSuccess,
		m.AlertsResolved,
		m.DosesRecorded,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.NotificationsSkipped,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.KafkaConsumerLag,
		m.OutboxRelayed,
		m.OutboxPublishFailures,
		m.OutboxDeadLetters,
		m.OutboxPending,
		m.InboxEntries,
		m.ScheduledJobRuns,
		m.ScheduledJobDuration,
		m.CircuitBreakerState,
		m.HTTPRequests,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves metrics gathered from g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) EvaluationCompleted(s adherence.EvaluationSummary) {
	m.EvaluationRuns.Inc()
	m.EvaluationDuration.Observe(s.Duration.Seconds())
	m.EvaluationOutcomes.WithLabelValues("compliant").Add(float64(s.Compliant))
	m.EvaluationOutcomes.WithLabelValues("alerted").Add(float64(s.Alerted))
	m.EvaluationOutcomes.WithLabelValues("deduplicated").Add(float64(s.Deduplicated))
	m.EvaluationOutcomes.WithLabelValues("ineligible").Add(float64(s.Ineligible))
	m.EvaluationOutcomes.WithLabelValues("failed").Add(float64(s.Failed))
	m.EvaluationOutcomes.WithLabelValues("skipped").Add(float64(s.Skipped))
	if s.Failed == 0 && s.Skipped == 0 {
		m.EvaluationLastSuccess.SetToCurrentTime()
	}
}

func (m *Metrics) AlertResolved() {
	m.AlertsResolved.Inc()
}

func (m *Metrics) DoseRecorded(status adherence.TakenStatus) {
	m.DosesRecorded.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) NotificationSent(kind string) {
	m.NotificationsSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotificationFailed(kind string) {
	m.NotificationsFailed.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotificationSkipped(kind, reason string) {
	m.NotificationsSkipped.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) MessageProduced(topic string) {
	m.KafkaMessagesProduced.WithLabelValues(topic).Inc()
}

func (m *Metrics) MessageConsumed(topic string) {
	m.KafkaMessagesConsumed.WithLabelValues(topic).Inc()
}

func (m *Metrics) OutboxPublished(topic string) {
	m.OutboxRelayed.WithLabelValues(topic).Inc()
}

func (m *Metrics) OutboxPublishFailed(topic string) {
	m.OutboxPublishFailures.WithLabelValues(topic).Inc()
}

func (m *Metrics) OutboxDeadLettered(n int) {
	m.OutboxDeadLetters.Add(float64(n))
}

// SetOutboxPending records the current backlog.
func (m *Metrics) SetOutboxPending(n int64) {
	m.OutboxPending.Set(float64(n))
}

// SetInboxEntries records inbox entry counts per status.
func (m *Metrics) SetInboxEntries(byStatus map[string]int64) {
	for status, n := range byStatus {
		m.InboxEntries.WithLabelValues(status).Set(float64(n))
	}
}

// SetConsumerLag records the notifier group's lag per topic.
func (m *Metrics) SetConsumerLag(lag map[string]int64) {
	for topic, n := range lag {
		m.KafkaConsumerLag.WithLabelValues(topic).Set(float64(n))
	}
}

// JobFinished records one scheduled job run.
func (m *Metrics) JobFinished(job string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ScheduledJobRuns.WithLabelValues(job, result).Inc()
	m.ScheduledJobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// BreakerStateChanged is a circuitbreaker.StateListener.
func (m *Metrics) BreakerStateChanged(name string, state circuitbreaker.State) {
	var v float64
	switch state {
	case circuitbreaker.StateOpen:
		v = 1
	case circuitbreaker.StateHalfOpen:
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

// RequestServed records one HTTP request.
func (m *Metrics) RequestServed(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
