package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// dispatchTotal counts pipeline runs by outcome.
	// Labels:
	// - outcome: "sent", "failed", "missing_template", "no_recipients", "fault"
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulkmail",
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Number of campaign dispatches by outcome",
		},
		[]string{"outcome"},
	)

	// deliveriesTotal counts per-recipient ledger outcomes (SENT or FAILED).
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulkmail",
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Per-recipient delivery attempts by status",
		},
		[]string{"status"},
	)

	dispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bulkmail",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Wall time of one campaign dispatch",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
	)

	schedulerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bulkmail",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Number of scheduler ticks that ran",
		},
	)

	schedulerDue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bulkmail",
			Subsystem: "scheduler",
			Name:      "due_campaigns",
			Help:      "Due campaigns found by the most recent tick",
		},
	)

	campaignEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulkmail",
			Subsystem: "campaign",
			Name:      "events_total",
			Help:      "Campaign lifecycle events consumed from the event bus",
		},
		[]string{"status"},
	)
)

// IncDispatch increments the dispatch counter for the given outcome.
func IncDispatch(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	dispatchTotal.WithLabelValues(outcome).Inc()
}

func IncDelivery(status string) {
	if status == "" {
		status = "unknown"
	}
	deliveriesTotal.WithLabelValues(status).Inc()
}

func ObserveDispatchDuration(seconds float64) {
	dispatchDuration.Observe(seconds)
}

// ObserveTick records one scheduler tick and how many campaigns it found due.
func ObserveTick(due int) {
	schedulerTicks.Inc()
	schedulerDue.Set(float64(due))
}

func IncCampaignEvent(status string) {
	if status == "" {
		status = "unknown"
	}
	campaignEvents.WithLabelValues(status).Inc()
}
