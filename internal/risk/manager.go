// File: internal/risk/manager.go
// ============================================
package risk

import (
	"math"
	"time"

	"paper-trading-bot/internal/strategy"
	"paper-trading-bot/pkg/types"
)

const (
	// MinNotional is the smallest entry size worth opening.
	MinNotional = 5.0

	// HaltLossStreak is the halt reason recorded by the loss-streak breaker.
	HaltLossStreak = "loss_streak"

	quantityScale = 1e6
)

// Exit is the outcome of managing an open position for one cycle.
type Exit int

const (
	ExitNone Exit = iota
	ExitStopLoss
	ExitPartial
	ExitTrailing
)

func (e Exit) String() string {
	switch e {
	case ExitStopLoss:
		return "stop_loss"
	case ExitPartial:
		return "partial_take_profit"
	case ExitTrailing:
		return "trailing_stop"
	default:
		return "none"
	}
}

// Action is an order the caller should route through the simulator.
type Action struct {
	Exit     Exit
	Side     types.Side
	Quantity float64
}

// TradeState tracks an open position between entry and full close.
type TradeState struct {
	EntryPrice   float64
	PartialTaken bool
	Highest      float64
	Lowest       float64
}

// Halt is the last recorded circuit-breaker trip.
type Halt struct {
	Reason string
	Until  time.Time
}

// Manager owns trade-management state and the loss-streak breaker.
type Manager struct {
	trades       map[string]*TradeState
	losingStreak int
	halt         *Halt
}

func NewManager() *Manager {
	return &Manager{trades: make(map[string]*TradeState)}
}

// Open starts tracking a freshly opened position.
func (m *Manager) Open(symbol string, entryPrice float64) {
	m.trades[symbol] = &TradeState{
		EntryPrice: entryPrice,
		Highest:    entryPrice,
		Lowest:     entryPrice,
	}
}

func (m *Manager) Get(symbol string) (TradeState, bool) {
	s, ok := m.trades[symbol]
	if !ok {
		return TradeState{}, false
	}
	return *s, true
}

func (m *Manager) Forget(symbol string) {
	delete(m.trades, symbol)
}

// tracked lists symbols that currently have trade-management state.
func (m *Manager) tracked() []string {
	out := make([]string, 0, len(m.trades))
	for s := range m.trades {
		out = append(out, s)
	}
	return out
}

// Reset clears trade management, the loss streak and any halt.
func (m *Manager) Reset() {
	m.trades = make(map[string]*TradeState)
	m.ResetSession()
}

// ResetSession clears the loss streak and halt but keeps trade management.
func (m *Manager) ResetSession() {
	m.losingStreak = 0
	m.halt = nil
}

// Manage updates the running extreme for pos and returns the first exit
// that applies, in order: stop-loss, half take-profit, trailing stop.
// Stops and targets are measured from the position's average entry price.
func (m *Manager) Manage(pos types.Position, price float64, cfg strategy.Config) Action {
	st, ok := m.trades[pos.Symbol]
	if !ok || pos.Quantity == 0 {
		return Action{}
	}

	entry := pos.AvgEntryPrice
	qty := math.Abs(pos.Quantity)

	if pos.Quantity > 0 {
		st.Highest = math.Max(st.Highest, price)
		stopLoss := entry * (1 - cfg.StopLossPct)
		takeHalf := entry * (1 + cfg.TakeProfitHalfPct)
		trailing := st.Highest - entry*cfg.TrailingPct

		switch {
		case price <= stopLoss:
			return Action{Exit: ExitStopLoss, Side: types.Sell, Quantity: qty}
		case !st.PartialTaken && price >= takeHalf:
			st.PartialTaken = true
			return Action{Exit: ExitPartial, Side: types.Sell, Quantity: qty * 0.5}
		case st.PartialTaken && price <= trailing:
			return Action{Exit: ExitTrailing, Side: types.Sell, Quantity: qty}
		}
		return Action{}
	}

	st.Lowest = math.Min(st.Lowest, price)
	stopLoss := entry * (1 + cfg.StopLossPct)
	takeHalf := entry * (1 - cfg.TakeProfitHalfPct)
	trailing := st.Lowest + entry*cfg.TrailingPct

	switch {
	case price >= stopLoss:
		return Action{Exit: ExitStopLoss, Side: types.Buy, Quantity: qty}
	case !st.PartialTaken && price <= takeHalf:
		st.PartialTaken = true
		return Action{Exit: ExitPartial, Side: types.Buy, Quantity: qty * 0.5}
	case st.PartialTaken && price >= trailing:
		return Action{Exit: ExitTrailing, Side: types.Buy, Quantity: qty}
	}
	return Action{}
}

// CanOpen reports whether a new entry fits under the concurrency limit.
// A symbol that already holds a position does not count against itself.
func (m *Manager) CanOpen(openCount int, alreadyOpen bool, cfg strategy.Config) bool {
	return alreadyOpen || openCount < cfg.MaxConcurrentPositions
}

// EntryQuantity sizes an entry at equity*PositionSizePct notional, measured
// at the slipped execution price and floored to six decimals. It also
// returns that execution price. ok is false when the entry is too small.
func (m *Manager) EntryQuantity(side types.Side, equity, price, slippageRate float64, cfg strategy.Config) (qty, execPrice float64, ok bool) {
	notional := math.Max(0, equity*cfg.PositionSizePct)
	if notional < MinNotional {
		return 0, 0, false
	}

	execPrice = price * (1 + slippageRate)
	if side == types.Sell {
		execPrice = price * (1 - slippageRate)
	}
	if execPrice <= 0 {
		return 0, 0, false
	}

	qty = math.Floor(notional/execPrice*quantityScale) / quantityScale
	if qty <= 0 {
		return 0, 0, false
	}
	return qty, execPrice, true
}

// RecordClose feeds the net result of a fully closed trade into the loss
// streak. It returns true when the streak reaches the configured maximum,
// in which case a halt is recorded until now+cooldown.
func (m *Manager) RecordClose(net float64, now time.Time, cfg strategy.Config) bool {
	switch {
	case net < 0:
		m.losingStreak++
		if m.losingStreak >= cfg.MaxConsecutiveLosingTrades {
			m.halt = &Halt{Reason: HaltLossStreak, Until: now.Add(cfg.CooldownAfterLossStreak)}
			return true
		}
	case net > 0:
		m.losingStreak = 0
	}
	return false
}

func (m *Manager) LosingStreak() int {
	return m.losingStreak
}

// Halt returns the last recorded halt, if any.
func (m *Manager) Halt() (Halt, bool) {
	if m.halt == nil {
		return Halt{}, false
	}
	return *m.halt, true
}

// IsTradingHalted never blocks entries: halts are recorded for reporting only.
func (m *Manager) IsTradingHalted(time.Time) bool {
	return false
}
