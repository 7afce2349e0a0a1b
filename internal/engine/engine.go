// File: internal/engine/engine.go
// ============================================
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"paper-trading-bot/internal/logger"
	"paper-trading-bot/internal/strategy"
	"paper-trading-bot/internal/telemetry"
	"paper-trading-bot/pkg/types"
)

// ErrClosed is returned by control calls after Run has returned.
var ErrClosed = errors.New("engine closed")

// Options configures an Engine. Zero durations take the defaults below.
type Options struct {
	Trader   TraderConfig
	Feed     PriceFeed
	History  HistoryProvider
	Notifier Notifier
	Logger   *zap.Logger

	TickInterval    time.Duration
	WatchdogTimeout time.Duration
	ReconnectDelay  time.Duration
	BackfillLimit   int
	BackfillBatch   int
	BackfillPause   time.Duration

	// ResetCash is the balance Reset uses when none is given. Defaults to
	// Trader.StartingCash.
	ResetCash float64

	// Now replaces the wall clock in tests.
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.TickInterval == 0 {
		o.TickInterval = time.Second
	}
	if o.WatchdogTimeout == 0 {
		o.WatchdogTimeout = 15 * time.Second
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = time.Second
	}
	if o.BackfillLimit == 0 {
		o.BackfillLimit = 60
	}
	if o.BackfillBatch == 0 {
		o.BackfillBatch = 5
	}
	if o.BackfillPause == 0 {
		o.BackfillPause = 150 * time.Millisecond
	}
	if o.ResetCash == 0 {
		o.ResetCash = o.Trader.StartingCash
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type command struct {
	fn   func()
	done chan struct{}
}

type tickEvent struct {
	conn uint64
	tick types.PriceTick
}

type feedClosedEvent struct {
	conn uint64
	err  error
}

type reconnectEvent struct {
	generation uint64
}

// Engine runs a Trader inside a single event loop. Feed ticks, scheduler
// ticks, feed lifecycle events and control commands are all handled on the
// loop goroutine, so trader state needs no locking.
type Engine struct {
	opts   Options
	trader *Trader
	log    *zap.Logger

	events  chan interface{}
	stopped chan struct{}

	// loop-owned state
	ctx        context.Context
	running    bool
	starting   bool
	generation uint64
	lastTick   time.Time
	ticker     *time.Ticker
	nextConn   uint64
	activeConn uint64
	feedCancel context.CancelFunc
}

func New(opts Options) *Engine {
	opts.setDefaults()
	log := logger.OrNop(opts.Logger).Named("engine")
	return &Engine{
		opts:    opts,
		trader:  NewTrader(opts.Trader, opts.Notifier, log),
		log:     log,
		events:  make(chan interface{}, 256),
		stopped: make(chan struct{}),
	}
}

// Run processes events until ctx is done. It must be called exactly once.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx
	defer close(e.stopped)
	defer e.teardown()

	for {
		var tickC <-chan time.Time
		if e.ticker != nil {
			tickC = e.ticker.C
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tickC:
			e.onSchedulerTick()
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

func (e *Engine) handle(ev interface{}) {
	switch ev := ev.(type) {
	case command:
		ev.fn()
		close(ev.done)
	case tickEvent:
		if ev.conn != e.activeConn || e.activeConn == 0 {
			return
		}
		e.trader.OnTick(ev.tick)
		e.lastTick = e.opts.Now()
	case feedClosedEvent:
		e.onFeedClosed(ev)
	case reconnectEvent:
		if e.running && ev.generation == e.generation && e.activeConn == 0 {
			e.connect()
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func()) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case e.events <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrClosed
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrClosed
	}
}

// post delivers an event from a helper goroutine; false once the loop is gone.
func (e *Engine) post(ev interface{}) bool {
	select {
	case e.events <- ev:
		return true
	case <-e.stopped:
		return false
	}
}

// Start backfills history, then connects the feed and begins the scheduler.
// It is a no-op when the engine is already running or starting. If Stop is
// called while the backfill is in flight its results are discarded. If ctx
// is cancelled during the backfill, Start returns its error and the engine
// stays stopped.
func (e *Engine) Start(ctx context.Context) error {
	var (
		already  bool
		gen      uint64
		symbols  []string
		interval string
	)
	err := e.do(ctx, func() {
		if e.running || e.starting {
			already = true
			return
		}
		e.starting = true
		e.generation++
		gen = e.generation
		symbols = e.trader.Symbols()
		interval = e.trader.Strategy().Interval()
	})
	if err != nil || already {
		return err
	}

	history, err := e.backfill(ctx, symbols, interval)
	if err != nil {
		// ctx is gone; release the starting flag on a fresh one
		_ = e.do(context.Background(), func() {
			if gen == e.generation {
				e.starting = false
			}
		})
		return err
	}

	return e.do(ctx, func() {
		if gen != e.generation || !e.starting {
			e.log.Info("discarding backfill from a cancelled start")
			return
		}
		for symbol, candles := range history {
			e.trader.ApplyBackfill(symbol, candles)
		}
		e.goLive()
	})
}

// goLive runs on the loop once the backfill is applied.
func (e *Engine) goLive() {
	e.starting = false
	e.running = true
	e.trader.StartSession()
	e.lastTick = e.opts.Now()
	e.ticker = time.NewTicker(e.opts.TickInterval)
	e.connect()
	telemetry.EngineRunning.Set(1)

	e.log.Info("engine started",
		zap.Int("symbols", len(e.trader.symbols)),
		zap.Stringer("strategy", e.trader.cfg.Name))
	e.opts.Notifier.NotifyStart(len(e.trader.symbols), e.trader.cfg.Name.String())
}

// Stop tears down the scheduler and the feed. Safe when already stopped.
func (e *Engine) Stop(ctx context.Context) error {
	return e.do(ctx, func() {
		e.generation++
		e.starting = false
		if !e.running {
			return
		}
		e.running = false
		e.stopScheduler()
		e.disconnect()
		telemetry.EngineRunning.Set(0)

		e.log.Info("engine stopped")
		e.opts.Notifier.NotifyStop()
	})
}

// Reset clears all trading state. A nil cash keeps the configured default.
// The strategy selection is not changed.
func (e *Engine) Reset(ctx context.Context, cash *float64) error {
	return e.do(ctx, func() {
		c := e.opts.ResetCash
		if cash != nil {
			c = *cash
		}
		e.trader.Reset(c)
		e.lastTick = time.Time{}
	})
}

func (e *Engine) SetStrategy(ctx context.Context, name strategy.Name) error {
	return e.do(ctx, func() {
		e.trader.SetStrategy(name)
	})
}

func (e *Engine) LiquidateAll(ctx context.Context) error {
	return e.do(ctx, func() {
		e.trader.LiquidateAll(e.opts.Now())
	})
}

func (e *Engine) Snapshot(ctx context.Context) (types.Snapshot, error) {
	var snap types.Snapshot
	err := e.do(ctx, func() {
		snap = e.trader.Snapshot(e.running)
	})
	return snap, err
}

func (e *Engine) onSchedulerTick() {
	if !e.running {
		return
	}
	now := e.opts.Now()

	if !e.lastTick.IsZero() && now.Sub(e.lastTick) > e.opts.WatchdogTimeout {
		e.log.Warn("no ticks received, reconnecting feed",
			zap.Duration("silence", now.Sub(e.lastTick)))
		telemetry.FeedReconnects.WithLabelValues("watchdog").Inc()
		e.disconnect()
		e.connect()
		e.lastTick = now
	}

	e.trader.Evaluate(now)
}

// connect dials the feed on a helper goroutine that forwards ticks tagged
// with a connection id; events from replaced connections are ignored.
func (e *Engine) connect() {
	if e.opts.Feed == nil {
		return
	}
	e.nextConn++
	id := e.nextConn
	e.activeConn = id

	feedCtx, cancel := context.WithCancel(e.ctx)
	e.feedCancel = cancel
	symbols := e.trader.Symbols()

	go func() {
		ticks, err := e.opts.Feed.Subscribe(feedCtx, symbols)
		if err != nil {
			e.post(feedClosedEvent{conn: id, err: err})
			return
		}
		for tick := range ticks {
			if !e.post(tickEvent{conn: id, tick: tick}) {
				return
			}
		}
		e.post(feedClosedEvent{conn: id})
	}()
}

func (e *Engine) disconnect() {
	if e.feedCancel != nil {
		e.feedCancel()
		e.feedCancel = nil
	}
	e.activeConn = 0
}

func (e *Engine) onFeedClosed(ev feedClosedEvent) {
	if ev.conn != e.activeConn {
		return
	}
	e.disconnect()

	reason := "closed"
	if ev.err != nil {
		reason = "dial_error"
		e.log.Warn("feed connection failed", zap.Error(ev.err))
	} else {
		e.log.Info("feed connection closed")
	}
	if !e.running {
		return
	}

	telemetry.FeedReconnects.WithLabelValues(reason).Inc()
	gen := e.generation
	time.AfterFunc(e.opts.ReconnectDelay, func() {
		e.post(reconnectEvent{generation: gen})
	})
}

func (e *Engine) stopScheduler() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

func (e *Engine) teardown() {
	e.stopScheduler()
	e.disconnect()
	if e.running {
		telemetry.EngineRunning.Set(0)
	}
	e.running = false
}
