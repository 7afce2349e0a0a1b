// File: internal/execution/simulator.go
// ============================================
package execution

import (
	"math"
	"time"

	"paper-trading-bot/pkg/types"
)

const (
	// Epsilon is the absolute quantity below which a position counts as flat.
	Epsilon = 1e-12

	MaxTradeHistory = 5000
)

// Fill describes the accounting effect of one successful execution.
type Fill struct {
	Trade types.Trade

	// Realized is the P&L booked by the reducing part of the fill, net of the
	// whole fee. Zero when the fill only opened or increased a position.
	Realized float64

	// Reduced is true when the fill reduced an existing position.
	Reduced bool

	// Closed is true when the fill brought the position to zero.
	Closed bool

	// Win reports a positive gross result on a full close.
	Win bool
}

// Simulator fills orders against the last traded price with a flat
// slippage and commission model and keeps cash, positions and the trade log.
// It is not safe for concurrent use.
type Simulator struct {
	commissionRate float64
	slippageRate   float64

	cash      float64
	positions map[string]types.Position
	trades    []types.Trade
}

func NewSimulator(cash, commissionRate, slippageRate float64) *Simulator {
	return &Simulator{
		commissionRate: commissionRate,
		slippageRate:   slippageRate,
		cash:           cash,
		positions:      make(map[string]types.Position),
	}
}

// Reset empties positions and trades and sets the cash balance.
func (s *Simulator) Reset(cash float64) {
	s.cash = cash
	s.positions = make(map[string]types.Position)
	s.trades = nil
}

// EffectivePrice applies slippage against the trader.
func (s *Simulator) EffectivePrice(side types.Side, price float64) float64 {
	if side == types.Buy {
		return price * (1 + s.slippageRate)
	}
	return price * (1 - s.slippageRate)
}

// Execute fills quantity at the slipped reference price. It returns false and
// changes nothing when the quantity is not positive, the price is not finite
// or, for buys, cash cannot cover notional plus fee. Callers are free to
// ignore the result; a rejected order is simply a no-op.
func (s *Simulator) Execute(side types.Side, symbol string, price, quantity float64, at time.Time) (Fill, bool) {
	if quantity <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return Fill{}, false
	}
	// a reducing order covers at most the held quantity
	if p, ok := s.positions[symbol]; ok && opposes(side, p.Quantity) {
		quantity = math.Min(quantity, math.Abs(p.Quantity))
	}

	effective := s.EffectivePrice(side, price)
	notional := effective * quantity
	fee := notional * s.commissionRate

	var fill Fill
	if side == types.Buy {
		if s.cash < notional+fee {
			return Fill{}, false
		}
		s.cash -= notional + fee
		fill = s.apply(symbol, quantity, effective, fee)
	} else {
		s.cash += notional - fee
		fill = s.apply(symbol, -quantity, effective, fee)
	}

	fill.Trade = types.Trade{
		Time:     at,
		Side:     side,
		Symbol:   symbol,
		Price:    effective,
		Quantity: quantity,
		Fee:      fee,
	}
	s.trades = append(s.trades, fill.Trade)
	if len(s.trades) > MaxTradeHistory {
		s.trades = s.trades[len(s.trades)-MaxTradeHistory:]
	}

	return fill, true
}

// apply moves the position by a signed delta filled at price.
func (s *Simulator) apply(symbol string, delta, price, fee float64) Fill {
	existing, ok := s.positions[symbol]
	if !ok || existing.Quantity == 0 || sameSign(existing.Quantity, delta) {
		s.increase(symbol, existing, delta, price)
		return Fill{}
	}

	// opposite direction: reduce or close; Execute has capped delta at held
	held := math.Abs(existing.Quantity)
	reduce := math.Min(math.Abs(delta), held)
	direction := 1.0
	if existing.Quantity < 0 {
		direction = -1.0
	}

	remaining := existing.Quantity - direction*reduce
	fill := Fill{Reduced: true}

	if math.Abs(remaining) <= Epsilon {
		delete(s.positions, symbol)
		gross := (price - existing.AvgEntryPrice) * direction * held
		fill.Realized = gross - fee
		fill.Closed = true
		fill.Win = gross > 0
	} else {
		s.positions[symbol] = types.Position{
			Symbol:        symbol,
			Quantity:      remaining,
			AvgEntryPrice: existing.AvgEntryPrice,
		}
		fill.Realized = (price-existing.AvgEntryPrice)*direction*reduce - fee
	}

	return fill
}

func (s *Simulator) increase(symbol string, existing types.Position, delta, price float64) {
	held := math.Abs(existing.Quantity)
	add := math.Abs(delta)
	total := held + add

	avg := price
	if held > 0 {
		avg = (existing.AvgEntryPrice*held + price*add) / total
	}

	qty := total
	if delta < 0 {
		qty = -total
	}
	s.positions[symbol] = types.Position{Symbol: symbol, Quantity: qty, AvgEntryPrice: avg}
}

func opposes(side types.Side, held float64) bool {
	return (side == types.Buy && held < -Epsilon) || (side == types.Sell && held > Epsilon)
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// Cash is the current cash balance.
func (s *Simulator) Cash() float64 {
	return s.cash
}

// Position returns the open position for symbol; flat symbols report false.
func (s *Simulator) Position(symbol string) (types.Position, bool) {
	p, ok := s.positions[symbol]
	if !ok || math.Abs(p.Quantity) <= Epsilon {
		return types.Position{}, false
	}
	return p, true
}

// Positions returns a copy of the position table.
func (s *Simulator) Positions() map[string]types.Position {
	out := make(map[string]types.Position, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out
}

// OpenCount is the number of non-flat positions.
func (s *Simulator) OpenCount() int {
	n := 0
	for _, p := range s.positions {
		if math.Abs(p.Quantity) > Epsilon {
			n++
		}
	}
	return n
}

// Trades returns a copy of the retained trade history, oldest first.
func (s *Simulator) Trades() []types.Trade {
	out := make([]types.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}
