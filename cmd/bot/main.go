// File: cmd/bot/main.go
// ============================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"

	"paper-trading-bot/internal/api"
	"paper-trading-bot/internal/binance"
	"paper-trading-bot/internal/config"
	"paper-trading-bot/internal/engine"
	"paper-trading-bot/internal/logger"
	"paper-trading-bot/internal/strategy"
	"paper-trading-bot/internal/telegram"
	"paper-trading-bot/pkg/types"
)

type Bot struct {
	config     types.Config
	configPath string
	log        *zap.Logger
	telegram   *telegram.Notifier
	host       *engine.Host
	server     *http.Server
	profiler   *pyroscope.Profiler
}

func NewBot(ctx context.Context, configPath string) (*Bot, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Logging.Development,
	})

	b := &Bot{config: cfg, configPath: configPath, log: log}

	if cfg.Profiling.ServerAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "paper-trading-bot",
			ServerAddress:   cfg.Profiling.ServerAddress,
			Logger:          log.Sugar(),
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Warn("profiler disabled", zap.Error(err))
		} else {
			b.profiler = profiler
		}
	}

	name, err := strategy.ParseName(cfg.Agent.Strategy)
	if err != nil {
		return nil, err
	}

	b.telegram = telegram.NewNotifier(
		cfg.Telegram.BotToken,
		cfg.Telegram.ChatID,
		cfg.Telegram.Enabled,
		log,
	)

	b.host = engine.NewHost(ctx, engine.Options{
		Trader: engine.TraderConfig{
			Symbols:        cfg.Agent.Symbols,
			BaseCurrency:   cfg.Agent.BaseCurrency,
			StartingCash:   cfg.Agent.StartingCash,
			CommissionRate: cfg.Execution.CommissionRate,
			SlippageRate:   cfg.Execution.SlippageRate,
			Strategy:       name,
		},
		Feed:          binance.NewStream(cfg.Binance.StreamURL, log),
		History:       binance.NewClient(cfg.Binance.RestURL),
		Notifier:      b.telegram,
		Logger:        log,
		BackfillLimit: cfg.Binance.BackfillLimit,
	}, b.reloadSymbols)

	b.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewServer(ctx, b.host, log).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return b, nil
}

// reloadSymbols re-reads the watch list for a recreate. On any error the
// current list is kept.
func (b *Bot) reloadSymbols() []string {
	cfg, err := config.Load(b.configPath)
	if err != nil {
		b.log.Warn("symbol reload failed, keeping current list", zap.Error(err))
		return nil
	}
	b.log.Info("symbols reloaded", zap.Int("count", len(cfg.Agent.Symbols)))
	return cfg.Agent.Symbols
}

func (b *Bot) Run(ctx context.Context) error {
	b.log.Info("paper trading bot starting",
		zap.Int("symbols", len(b.config.Agent.Symbols)),
		zap.String("strategy", b.config.Agent.Strategy),
		zap.Float64("starting_cash", b.config.Agent.StartingCash),
		zap.String("http_addr", b.config.HTTP.Addr))

	go b.telegram.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if b.config.Agent.AutoStart {
		go func() {
			if err := b.host.Engine().Start(ctx); err != nil {
				b.log.Warn("auto start failed", zap.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		b.shutdown()
		return fmt.Errorf("http server: %w", err)
	}
	b.shutdown()
	return nil
}

func (b *Bot) shutdown() {
	b.log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := b.server.Shutdown(ctx); err != nil {
		b.log.Warn("http shutdown", zap.Error(err))
	}
	if err := b.host.Shutdown(ctx); err != nil {
		b.log.Warn("engine shutdown", zap.Error(err))
	}
	if b.profiler != nil {
		_ = b.profiler.Stop()
	}
	_ = b.log.Sync()
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := NewBot(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create bot: %v\n", err)
		os.Exit(1)
	}

	if err := bot.Run(ctx); err != nil {
		bot.log.Error("bot stopped with error", zap.Error(err))
		os.Exit(1)
	}
}
