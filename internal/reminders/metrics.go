package reminders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the reminder loop.
type Metrics struct {
	// RemindersSentTotal counts reminders by outcome (sent, failed).
	RemindersSentTotal *prometheus.CounterVec

	// RemindersPending is the number of bookings found by the last run.
	RemindersPending prometheus.Gauge

	// ReminderSendDuration is the time to write one reminder.
	ReminderSendDuration prometheus.Histogram

	// ReminderRetries counts retry attempts.
	ReminderRetries prometheus.Counter
}

// NewMetrics creates the reminder metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RemindersSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_sent_total",
				Help:      "Total number of booking reminders by outcome",
			},
			[]string{"status"},
		),

		RemindersPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminders_pending",
				Help:      "Bookings due a reminder at the last run",
			},
		),

		ReminderSendDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reminder_send_duration_seconds",
				Help:      "Time to write a reminder notification",
				Buckets:   []float64{.005, .01, .05, .1, .5, 1},
			},
		),

		ReminderRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_retries_total",
				Help:      "Total number of reminder retry attempts",
			},
		),
	}
}

func (m *Metrics) incSent(status string) {
	if m != nil {
		m.RemindersSentTotal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.RemindersPending.Set(float64(n))
	}
}

func (m *Metrics) observeSend(seconds float64) {
	if m != nil {
		m.ReminderSendDuration.Observe(seconds)
	}
}

func (m *Metrics) incRetries() {
	if m != nil {
		m.ReminderRetries.Inc()
	}
}
