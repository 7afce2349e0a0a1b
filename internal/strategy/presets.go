// File: internal/strategy/presets.go
// ============================================
package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownStrategy is returned by ParseName for names outside the preset set.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Name identifies one of the fixed strategy presets.
type Name int

const (
	Low Name = iota + 1
	Medium
	High
)

func (n Name) String() string {
	switch n {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// ParseName maps "low", "medium" or "high" (case-insensitive) to a Name.
func ParseName(s string) (Name, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return Low, nil
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Mode selects how entry signals are derived.
type Mode int

const (
	ModeTrend Mode = iota + 1
	ModeMeanReversion
)

func (m Mode) String() string {
	if m == ModeMeanReversion {
		return "mean_reversion"
	}
	return "trend"
}

// Config is the immutable parameter set of a preset.
type Config struct {
	Name                   Name
	MaxConcurrentPositions int
	PositionSizePct        float64
	StopLossPct            float64
	TakeProfitHalfPct      float64
	TrailingPct            float64
	ATRFilterPct           float64
	CandlePeriod           time.Duration
	RSILongThreshold       float64
	RSIShortThreshold      float64
	Mode                   Mode
	AllowShorts            bool

	// Carried by every preset but not enforced anywhere.
	MaxDailyLossUSD      float64
	DailyProfitTargetUSD float64

	MaxConsecutiveLosingTrades int
	CooldownAfterLossStreak    time.Duration
}

// Preset returns the configuration for a strategy name.
// Anything that is not Low or High gets the Medium preset.
func Preset(n Name) Config {
	switch n {
	case Low:
		return Config{
			Name:                       Low,
			MaxConcurrentPositions:     1,
			PositionSizePct:            0.02,
			StopLossPct:                0.002,
			TakeProfitHalfPct:          0.0045,
			TrailingPct:                0.002,
			ATRFilterPct:               0.0015,
			CandlePeriod:               15 * time.Minute,
			RSILongThreshold:           60,
			RSIShortThreshold:          40,
			Mode:                       ModeTrend,
			AllowShorts:                true,
			MaxDailyLossUSD:            200,
			DailyProfitTargetUSD:       300,
			MaxConsecutiveLosingTrades: 3,
			CooldownAfterLossStreak:    90 * time.Minute,
		}
	case High:
		return Config{
			Name:                       High,
			MaxConcurrentPositions:     5,
			PositionSizePct:            0.1,
			StopLossPct:                0.004,
			TakeProfitHalfPct:          0.002,
			TrailingPct:                0.001,
			ATRFilterPct:               0.0005,
			CandlePeriod:               1 * time.Minute,
			RSILongThreshold:           30,
			RSIShortThreshold:          70,
			Mode:                       ModeMeanReversion,
			AllowShorts:                true,
			MaxDailyLossUSD:            600,
			DailyProfitTargetUSD:       800,
			MaxConsecutiveLosingTrades: 5,
			CooldownAfterLossStreak:    30 * time.Minute,
		}
	default:
		return Config{
			Name:                       Medium,
			MaxConcurrentPositions:     3,
			PositionSizePct:            0.05,
			StopLossPct:                0.0025,
			TakeProfitHalfPct:          0.003,
			TrailingPct:                0.0015,
			ATRFilterPct:               0.001,
			CandlePeriod:               5 * time.Minute,
			RSILongThreshold:           55,
			RSIShortThreshold:          45,
			Mode:                       ModeTrend,
			AllowShorts:                true,
			MaxDailyLossUSD:            300,
			DailyProfitTargetUSD:       400,
			MaxConsecutiveLosingTrades: 3,
			CooldownAfterLossStreak:    60 * time.Minute,
		}
	}
}

// Interval is the exchange kline interval matching the candle period.
func (c Config) Interval() string {
	switch {
	case c.CandlePeriod <= time.Minute:
		return "1m"
	case c.CandlePeriod <= 5*time.Minute:
		return "5m"
	case c.CandlePeriod <= 15*time.Minute:
		return "15m"
	default:
		return "5m"
	}
}
