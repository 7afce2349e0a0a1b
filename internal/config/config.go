// File: internal/config/config.go
// ============================================
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"paper-trading-bot/internal/strategy"
	"paper-trading-bot/pkg/types"
)

var (
	ErrNoSymbols       = errors.New("at least one symbol is required")
	ErrStartingCash    = errors.New("starting cash must be positive")
	ErrNegativeRate    = errors.New("commission and slippage rates must not be negative")
	ErrUnknownStrategy = strategy.ErrUnknownStrategy
)

// DefaultSymbols is the watch list used when none is configured.
var DefaultSymbols = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
	"ADAUSDT", "DOGEUSDT", "TRXUSDT", "TONUSDT", "AVAXUSDT",
	"DOTUSDT", "POLUSDT", "LINKUSDT", "LTCUSDT", "BCHUSDT",
	"ATOMUSDT", "NEARUSDT", "ETCUSDT", "XLMUSDT", "FILUSDT",
	"ICPUSDT", "ARBUSDT", "OPUSDT", "APTUSDT", "SUIUSDT",
	"SEIUSDT", "INJUSDT", "AAVEUSDT", "RUNEUSDT", "UNIUSDT",
}

// DefaultRate is the commission and slippage rate used when none is configured.
const DefaultRate = 0.0005

// Default returns a configuration with every field populated.
func Default() types.Config {
	var cfg types.Config
	cfg.Execution.CommissionRate = DefaultRate
	cfg.Execution.SlippageRate = DefaultRate
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills fields whose zero value is never valid. Rates are
// seeded by Default instead, so an explicit 0 survives loading.
func applyDefaults(cfg *types.Config) {
	if len(cfg.Agent.Symbols) == 0 {
		cfg.Agent.Symbols = append([]string(nil), DefaultSymbols...)
	}
	if cfg.Agent.BaseCurrency == "" {
		cfg.Agent.BaseCurrency = "USDT"
	}
	if cfg.Agent.StartingCash == 0 {
		cfg.Agent.StartingCash = 10000
	}
	if cfg.Agent.Strategy == "" {
		cfg.Agent.Strategy = strategy.Medium.String()
	}
	if cfg.Binance.RestURL == "" {
		cfg.Binance.RestURL = "https://api.binance.com"
	}
	if cfg.Binance.StreamURL == "" {
		cfg.Binance.StreamURL = "wss://stream.binance.com:9443/stream?streams="
	}
	if cfg.Binance.BackfillLimit == 0 {
		cfg.Binance.BackfillLimit = 60
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Load reads the YAML file at path, applies .env and environment overrides,
// fills defaults and validates. A missing file is not an error.
func Load(path string) (types.Config, error) {
	// keys absent from the file keep their defaults
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	// .env is optional; values already in the environment win
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	cfg.Agent.Symbols = ParseSymbols(strings.Join(cfg.Agent.Symbols, ","))

	return cfg, Validate(cfg)
}

func applyEnv(cfg *types.Config) error {
	if v := os.Getenv("AGENT_SYMBOLS"); v != "" {
		cfg.Agent.Symbols = ParseSymbols(v)
	}
	if v := os.Getenv("AGENT_STARTING_CASH"); v != "" {
		cash, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid AGENT_STARTING_CASH %q: %w", v, err)
		}
		cfg.Agent.StartingCash = cash
	}
	if v := os.Getenv("AGENT_STRATEGY"); v != "" {
		cfg.Agent.Strategy = v
	}
	if v := os.Getenv("AGENT_AUTO_START"); v != "" {
		cfg.Agent.AutoStart = v == "true" || v == "1"
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("PYROSCOPE_SERVER"); v != "" {
		cfg.Profiling.ServerAddress = v
	}
	return nil
}

// ParseSymbols splits a comma separated list, upper-casing and dropping blanks.
func ParseSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Validate(cfg types.Config) error {
	if len(cfg.Agent.Symbols) == 0 {
		return ErrNoSymbols
	}
	if cfg.Agent.StartingCash <= 0 {
		return ErrStartingCash
	}
	if _, err := strategy.ParseName(cfg.Agent.Strategy); err != nil {
		return err
	}
	if cfg.Execution.CommissionRate < 0 || cfg.Execution.SlippageRate < 0 {
		return ErrNegativeRate
	}
	return nil
}
