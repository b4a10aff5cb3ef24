package lifecycle

import "github.com/prometheus/client_golang/prometheus"

var (
	submitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_submits_total",
			Help: "Order submissions by outcome",
		},
		[]string{"outcome"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_rejections_total",
			Help: "Rejected requests by reason",
		},
		[]string{"reason"},
	)

	closesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradepilot_closes_total",
			Help: "Confirmed position closes, full or partial",
		},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradepilot_gateway_retries_total",
			Help: "Gateway calls repeated after transient failures",
		},
	)

	reconciliationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradepilot_reconciliations_total",
			Help: "Ambiguous outcomes resolved against gateway state",
		},
	)

	bulkFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradepilot_bulk_item_failures_total",
			Help: "Individual ticket failures within bulk operations",
		},
	)
)

func init() {
	prometheus.MustRegister(
		submitsTotal,
		rejectionsTotal,
		closesTotal,
		retriesTotal,
		reconciliationsTotal,
		bulkFailuresTotal,
	)
}
