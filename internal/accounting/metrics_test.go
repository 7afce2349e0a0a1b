package accounting

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trading-bot/pkg/types"
)

var t0 = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

func TestEquity(t *testing.T) {
	positions := map[string]types.Position{
		"BTCUSDT": {Symbol: "BTCUSDT", Quantity: 2, AvgEntryPrice: 100},
		"ETHUSDT": {Symbol: "ETHUSDT", Quantity: -1, AvgEntryPrice: 50},
		"SOLUSDT": {Symbol: "SOLUSDT", Quantity: 10, AvgEntryPrice: 5},
	}
	prices := map[string]float64{"BTCUSDT": 110, "ETHUSDT": 40}

	equity, unrealized := Equity(1000, positions, prices)
	assert.InDelta(t, 1000+220-40, equity, 1e-9)
	assert.InDelta(t, 20+10, unrealized, 1e-9, "SOL has no price and is skipped")
}

func TestMaxDrawdown(t *testing.T) {
	m := NewMetrics()
	for i, eq := range []float64{100, 120, 90, 110, 60, 130} {
		m.Record(t0.Add(time.Duration(i)*time.Second), eq)
	}
	assert.InDelta(t, 0.5, m.Summary().MaxDrawdown, 1e-12)
}

func TestSharpe(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < minSharpeSamples-1; i++ {
		m.Record(t0, 100+float64(i%3))
	}
	assert.Zero(t, m.Summary().Sharpe, "not enough samples")

	m.Record(t0, 101)
	s := m.Summary().Sharpe
	assert.False(t, math.IsNaN(s))

	flat := NewMetrics()
	for i := 0; i < 30; i++ {
		flat.Record(t0, 100)
	}
	assert.Zero(t, flat.Summary().Sharpe, "zero variance")

	// steadily growing equity has a positive statistic
	up := NewMetrics()
	eq := 100.0
	for i := 0; i < 30; i++ {
		eq *= 1 + 0.001*float64(1+i%2)
		up.Record(t0, eq)
	}
	assert.Greater(t, up.Summary().Sharpe, 0.0)
}

func TestSharpeIgnoresNonPositiveEquity(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 25; i++ {
		m.Record(t0, 0)
	}
	assert.Zero(t, m.Summary().Sharpe)
}

func TestRecordCloseAndSummary(t *testing.T) {
	m := NewMetrics()
	m.RecordClose(10, true)
	m.RecordClose(-4, false)
	m.AddRealized(1.5)

	s := m.Summary()
	assert.InDelta(t, 7.5, s.CumulativeRealizedPnL, 1e-12)
	assert.Equal(t, 2, s.TotalClosedTrades)
	assert.Equal(t, 1, s.WinningTrades)
	assert.Equal(t, 0.5, s.WinRate)

	m.Reset()
	assert.Equal(t, types.MetricsSummary{}, m.Summary())
}

func TestEquityHistoryCap(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < MaxEquityHistory+5; i++ {
		m.Record(t0.Add(time.Duration(i)*time.Second), float64(i+1))
	}
	h := m.equityCurve()
	require.Len(t, h, MaxEquityHistory)
	assert.Equal(t, 6.0, h[0].Equity)
}
