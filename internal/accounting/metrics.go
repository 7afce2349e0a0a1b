// File: internal/accounting/metrics.go
// ============================================
package accounting

import (
	"math"
	"time"

	"paper-trading-bot/pkg/types"
)

const (
	MaxEquityHistory = 5000

	// minSharpeSamples is the number of positive equity points required
	// before the return statistic is computed.
	minSharpeSamples = 20
)

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// Equity values the book at the given prices. Symbols without a price are
// skipped for both equity and unrealized P&L.
func Equity(cash float64, positions map[string]types.Position, prices map[string]float64) (equity, unrealized float64) {
	equity = cash
	for symbol, pos := range positions {
		price, ok := prices[symbol]
		if !ok || math.IsNaN(price) || math.IsInf(price, 0) {
			continue
		}
		equity += pos.Quantity * price
		unrealized += (price - pos.AvgEntryPrice) * pos.Quantity
	}
	return equity, unrealized
}

// Metrics accumulates realized results and the equity curve.
type Metrics struct {
	realized    float64
	closed      int
	wins        int
	maxDrawdown float64
	sharpe      float64
	history     []EquityPoint
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Reset() {
	*m = Metrics{}
}

// AddRealized books P&L from a partial reduction without counting a close.
func (m *Metrics) AddRealized(net float64) {
	m.realized += net
}

// RecordClose books a fully closed trade.
func (m *Metrics) RecordClose(net float64, win bool) {
	m.realized += net
	m.closed++
	if win {
		m.wins++
	}
}

// Record appends an equity sample and recomputes drawdown and sharpe.
func (m *Metrics) Record(at time.Time, equity float64) {
	m.history = append(m.history, EquityPoint{Time: at, Equity: equity})
	if len(m.history) > MaxEquityHistory {
		m.history = m.history[len(m.history)-MaxEquityHistory:]
	}
	m.maxDrawdown = maxDrawdown(m.history)
	m.sharpe = sharpe(m.history)
}

func maxDrawdown(history []EquityPoint) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, p := range history {
		peak = math.Max(peak, p.Equity)
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}

// sharpe is mean/stddev of log returns over positive equity samples,
// using the n-1 sample variance. Zero until enough samples exist.
func sharpe(history []EquityPoint) float64 {
	eq := make([]float64, 0, len(history))
	for _, p := range history {
		if p.Equity > 0 {
			eq = append(eq, p.Equity)
		}
	}
	if len(eq) < minSharpeSamples {
		return 0
	}

	rets := make([]float64, 0, len(eq)-1)
	mean := 0.0
	for i := 1; i < len(eq); i++ {
		r := math.Log(eq[i] / eq[i-1])
		rets = append(rets, r)
		mean += r
	}
	mean /= float64(len(rets))

	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= math.Max(1, float64(len(rets)-1))

	std := math.Sqrt(math.Max(variance, 0))
	if std == 0 {
		return 0
	}
	return mean / std
}

// equityCurve returns a copy of the retained equity curve.
func (m *Metrics) equityCurve() []EquityPoint {
	return append([]EquityPoint(nil), m.history...)
}

// Summary is the reporting view of the metrics.
func (m *Metrics) Summary() types.MetricsSummary {
	s := types.MetricsSummary{
		CumulativeRealizedPnL: m.realized,
		TotalClosedTrades:     m.closed,
		WinningTrades:         m.wins,
		MaxDrawdown:           m.maxDrawdown,
		Sharpe:                m.sharpe,
	}
	if m.closed > 0 {
		s.WinRate = float64(m.wins) / float64(m.closed)
	}
	return s
}
