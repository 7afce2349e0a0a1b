// File: internal/engine/backfill.go
// ============================================
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"paper-trading-bot/internal/telemetry"
	"paper-trading-bot/pkg/types"
)

// backfill fetches recent candles for every symbol in batches, waiting for
// each batch before pausing and starting the next. A failed symbol is
// logged and left out of the result. Cancelling ctx aborts the remaining
// batches and returns ctx's error.
func (e *Engine) backfill(ctx context.Context, symbols []string, interval string) (map[string][]types.Candle, error) {
	out := make(map[string][]types.Candle, len(symbols))
	if e.opts.History == nil {
		return out, nil
	}

	var mu sync.Mutex
	batch := e.opts.BackfillBatch

	for i := 0; i < len(symbols); i += batch {
		end := i + batch
		if end > len(symbols) {
			end = len(symbols)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, symbol := range symbols[i:end] {
			symbol := symbol
			g.Go(func() error {
				candles, err := e.opts.History.GetKlines(gctx, symbol, interval, e.opts.BackfillLimit)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					telemetry.BackfillFailures.WithLabelValues(symbol).Inc()
					e.log.Warn("backfill failed", zap.String("symbol", symbol), zap.Error(err))
					return nil
				}
				mu.Lock()
				out[symbol] = candles
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			e.log.Info("backfill cancelled",
				zap.Int("symbols", len(symbols)),
				zap.Int("fetched", len(out)),
				zap.Error(err))
			return nil, err
		}

		if end < len(symbols) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.opts.BackfillPause):
			}
		}
	}

	e.log.Info("backfill complete",
		zap.Int("symbols", len(symbols)),
		zap.Int("loaded", len(out)),
		zap.String("interval", interval))
	return out, nil
}
