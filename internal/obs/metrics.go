package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_ticks_total", Help: "Market ticks accepted by the coordinator"},
		[]string{"symbol"},
	)
	DuplicatesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_duplicates_dropped_total", Help: "Push-feed events dropped by sequence dedup"},
		[]string{"symbol"},
	)
	ConsumerOverflow = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_consumer_overflow_total", Help: "Events dropped because a consumer queue was full"},
		[]string{"consumer"},
	)
	IntentsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ledger_intents_total", Help: "Intents applied by the ledger executor"},
		[]string{"action", "outcome"},
	)
	ProtectiveActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "risk_protective_actions_total", Help: "Protective close/reduce intents emitted"},
		[]string{"symbol", "action"},
	)
	ReconcileDrift = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reconcile_drift_total", Help: "Position drift detected against exchange snapshots"},
		[]string{"symbol", "field"},
	)
	OrderRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "gateway_order_retries_total", Help: "Order submissions retried after transient errors"},
	)
	DegradedMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "ledger_degraded", Help: "1 while a symbol is unverified (degraded mode)"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		DuplicatesDropped,
		ConsumerOverflow,
		IntentsApplied,
		ProtectiveActions,
		ReconcileDrift,
		OrderRetries,
		DegradedMode,
	)
}

// Serve exposes /metrics on addr. The caller owns shutdown.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
