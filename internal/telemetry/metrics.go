// File: internal/telemetry/metrics.go
// ============================================
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "paper_trading"

// ============ Feed ============

var TicksProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "ticks_processed_total",
		Help:      "Price ticks applied to the engine",
	},
	[]string{"symbol"},
)

// FeedReconnects counts reconnect attempts by reason (watchdog, closed, dial_error).
var FeedReconnects = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "reconnects_total",
		Help:      "Feed reconnect attempts",
	},
	[]string{"reason"},
)

var FeedMessagesDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "messages_dropped_total",
		Help:      "Malformed or unparseable feed messages",
	},
)

var BackfillFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "backfill_failures_total",
		Help:      "Historical kline requests that failed",
	},
	[]string{"symbol"},
)

// ============ Trading ============

var CandlesSealed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "candles_sealed_total",
		Help:      "Candles sealed from live ticks",
	},
	[]string{"symbol"},
)

var Signals = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "signals_total",
		Help:      "Entry signals by direction",
	},
	[]string{"direction"},
)

var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "trades_total",
		Help:      "Simulated fills by side",
	},
	[]string{"side"},
)

var ExecutionsRejected = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "execution_rejected_total",
		Help:      "Orders rejected by the simulator",
	},
)

var LossStreakHalts = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "loss_streak_halts_total",
		Help:      "Loss-streak circuit breaker trips",
	},
)

// ============ Portfolio ============

var Equity = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "equity",
		Help:      "Cash plus marked-to-market positions",
	},
)

var Cash = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "cash",
		Help:      "Cash balance",
	},
)

var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "open_positions",
		Help:      "Number of open positions",
	},
)

var RealizedPnL = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "realized_pnl",
		Help:      "Cumulative realized P&L net of fees",
	},
)

var MaxDrawdown = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      "max_drawdown_ratio",
		Help:      "Largest peak-to-current equity decline",
	},
)

var EngineRunning = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "running",
		Help:      "1 while the engine is started",
	},
)
