// File: pkg/types/models.go
// ============================================
package types

import "time"

// Config represents the bot configuration
type Config struct {
	Agent struct {
		Symbols      []string `yaml:"symbols"`
		BaseCurrency string   `yaml:"base_currency"`
		StartingCash float64  `yaml:"starting_cash"`
		Strategy     string   `yaml:"strategy"`
		AutoStart    bool     `yaml:"auto_start"`
	} `yaml:"agent"`

	Execution struct {
		CommissionRate float64 `yaml:"commission_rate"`
		SlippageRate   float64 `yaml:"slippage_rate"`
	} `yaml:"execution"`

	Binance struct {
		RestURL       string `yaml:"rest_url"`
		StreamURL     string `yaml:"stream_url"`
		BackfillLimit int    `yaml:"backfill_limit"`
	} `yaml:"binance"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Enabled  bool   `yaml:"enabled"`
	} `yaml:"telegram"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Logging struct {
		Level       string `yaml:"level"`
		Format      string `yaml:"format"`
		Development bool   `yaml:"development"`
	} `yaml:"logging"`

	Profiling struct {
		ServerAddress string `yaml:"server_address"`
	} `yaml:"profiling"`
}

// Side is the direction of a simulated fill.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// PriceTick is a single last-price update from the market feed.
type PriceTick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// Ticker is the latest known price of a symbol.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	LastPrice float64   `json:"lastPrice"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Candle is an OHLC summary of one fixed period. End is exclusive.
type Candle struct {
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Position is a signed spot holding; negative quantity means short.
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avgEntryPrice"`
}

// Trade is an immutable record of a simulated fill.
type Trade struct {
	Time     time.Time `json:"timestamp"`
	Side     Side      `json:"action"`
	Symbol   string    `json:"symbol"`
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Fee      float64   `json:"feePaid"`
}

// MetricsSummary is the performance view attached to a snapshot.
type MetricsSummary struct {
	CumulativeRealizedPnL float64 `json:"cumulativeRealizedPnl"`
	TotalClosedTrades     int     `json:"totalClosedTrades"`
	WinningTrades         int     `json:"winningTrades"`
	WinRate               float64 `json:"winRate"`
	MaxDrawdown           float64 `json:"maxDrawdown"`
	Sharpe                float64 `json:"sharpe"`
}

// Snapshot is the read-only state composite handed to outside callers.
type Snapshot struct {
	IsRunning          bool                `json:"isRunning"`
	WatchSymbols       []string            `json:"watchSymbols"`
	BaseCurrency       string              `json:"baseCurrency"`
	CashBalance        float64             `json:"cashBalance"`
	Positions          map[string]Position `json:"positions"`
	Prices             map[string]Ticker   `json:"prices"`
	Trades             []Trade             `json:"trades"`
	Equity             float64             `json:"equity"`
	UnrealizedPnL      float64             `json:"unrealizedPnl"`
	HaltReason         string              `json:"haltReason,omitempty"`
	TradingHaltedUntil *time.Time          `json:"tradingHaltedUntil,omitempty"`
	Strategy           string              `json:"strategy"`
	Metrics            MetricsSummary      `json:"metrics"`
}
