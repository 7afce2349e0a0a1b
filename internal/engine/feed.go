// File: internal/engine/feed.go
// ============================================
package engine

import (
	"context"
	"time"

	"paper-trading-bot/pkg/types"
)

// PriceFeed streams last-price ticks. The returned channel is closed when
// the subscription ends; cancelling ctx ends it.
type PriceFeed interface {
	Subscribe(ctx context.Context, symbols []string) (<-chan types.PriceTick, error)
}

// HistoryProvider answers historical candle queries, oldest first.
type HistoryProvider interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error)
}

// Notifier receives operator-facing events. Implementations must not block.
type Notifier interface {
	NotifyStart(symbols int, strategy string)
	NotifyStop()
	NotifyTrade(trade types.Trade, realized float64, closed bool)
	NotifyHalt(reason string, until time.Time, streak int)
}

type nopNotifier struct{}

func (nopNotifier) NotifyStart(int, string) {}
func (nopNotifier) NotifyStop() {}
func (nopNotifier) NotifyTrade(types.Trade, float64, bool) {}
func (nopNotifier) NotifyHalt(string, time.Time, int) {}
