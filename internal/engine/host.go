// File: internal/engine/host.go
// ============================================
package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"paper-trading-bot/internal/logger"
	"paper-trading-bot/internal/strategy"
)

// RecreateOptions tunes Host.Recreate.
type RecreateOptions struct {
	// StartingCash overrides the carried-over cash balance.
	StartingCash *float64
}

// Host owns the current Engine and its event loop. Replacing the engine
// discards all in-memory history.
type Host struct {
	mu      sync.Mutex
	parent  context.Context
	base    Options
	symbols func() []string
	log     *zap.Logger

	engine *Engine
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHost builds an engine from opts and runs it until ctx is done or
// Shutdown is called. symbols, when set, is consulted on every Recreate
// to pick up a changed watch list.
func NewHost(ctx context.Context, opts Options, symbols func() []string) *Host {
	if opts.ResetCash == 0 {
		opts.ResetCash = opts.Trader.StartingCash
	}
	h := &Host{
		parent:  ctx,
		base:    opts,
		symbols: symbols,
		log:     logger.OrNop(opts.Logger).Named("host"),
	}
	h.spawn(opts)
	return h
}

func (h *Host) spawn(opts Options) {
	ctx, cancel := context.WithCancel(h.parent)
	e := New(opts)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	h.engine, h.cancel, h.done = e, cancel, done
}

// Engine returns the current engine.
func (h *Host) Engine() *Engine {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine
}

// Recreate stops the current engine, builds a fresh one that keeps the
// active strategy and cash balance, and restarts it if the old one was
// running. The restart runs in the background.
func (h *Host) Recreate(ctx context.Context, ro RecreateOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.engine
	snap, err := old.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := old.Stop(ctx); err != nil {
		return err
	}
	h.cancel()
	<-h.done

	opts := h.base
	if name, err := strategy.ParseName(snap.Strategy); err == nil {
		opts.Trader.Strategy = name
	}
	opts.Trader.StartingCash = snap.CashBalance
	if ro.StartingCash != nil {
		opts.Trader.StartingCash = *ro.StartingCash
	}
	if h.symbols != nil {
		if s := h.symbols(); len(s) > 0 {
			opts.Trader.Symbols = s
		}
	}

	h.spawn(opts)
	h.log.Info("engine recreated",
		zap.Int("symbols", len(opts.Trader.Symbols)),
		zap.Float64("cash", opts.Trader.StartingCash),
		zap.Stringer("strategy", opts.Trader.Strategy),
		zap.Bool("resume", snap.IsRunning))

	if snap.IsRunning {
		e := h.engine
		go func() {
			if err := e.Start(h.parent); err != nil {
				h.log.Warn("restart after recreate failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Shutdown stops the engine and waits for its loop to exit.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	err := h.engine.Stop(ctx)
	h.cancel()
	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err == ErrClosed {
		return nil
	}
	return err
}
