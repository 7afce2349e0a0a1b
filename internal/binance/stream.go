// File: internal/binance/stream.go
// ============================================
package binance

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"paper-trading-bot/internal/logger"
	"paper-trading-bot/internal/telemetry"
	"paper-trading-bot/pkg/types"
)

const DefaultStreamURL = "wss://stream.binance.com:9443/stream?streams="

// Stream subscribes to the combined <symbol>@miniTicker stream.
type Stream struct {
	baseURL string
	dialer  *websocket.Dialer
	log     *zap.Logger
	now     func() time.Time
	buffer  int
}

func NewStream(baseURL string, log *zap.Logger) *Stream {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	return &Stream{
		baseURL: baseURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		log:    logger.OrNop(log).Named("stream"),
		now:    time.Now,
		buffer: 1024,
	}
}

// StreamURL builds the combined stream URL for symbols.
func StreamURL(base string, symbols []string) string {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}
	return base + strings.Join(streams, "/")
}

// Subscribe dials the stream and returns a channel of ticks. The channel is
// closed when the connection ends for any reason, including ctx cancellation.
// Ticks are stamped with the local receive time.
func (s *Stream) Subscribe(ctx context.Context, symbols []string) (<-chan types.PriceTick, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("subscribe: no symbols")
	}

	conn, _, err := s.dialer.DialContext(ctx, StreamURL(s.baseURL, symbols), nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	s.log.Info("stream connected", zap.Int("symbols", len(symbols)))

	out := make(chan types.PriceTick, s.buffer)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	go func() {
		defer close(out)
		defer close(done)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("stream read failed", zap.Error(err))
				}
				return
			}

			tick, err := ParseMiniTicker(msg, s.now())
			if err != nil {
				telemetry.FeedMessagesDropped.Inc()
				s.log.Debug("dropping stream message", zap.Error(err))
				continue
			}

			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

type combinedMessage struct {
	Stream string `json:"stream"`
	Data   *struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

// ParseMiniTicker decodes one combined-stream miniTicker message.
func ParseMiniTicker(msg []byte, at time.Time) (types.PriceTick, error) {
	var m combinedMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return types.PriceTick{}, fmt.Errorf("decode: %w", err)
	}
	if m.Data == nil || m.Data.Symbol == "" {
		return types.PriceTick{}, fmt.Errorf("missing data")
	}

	price, err := strconv.ParseFloat(m.Data.Close, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return types.PriceTick{}, fmt.Errorf("bad price %q", m.Data.Close)
	}

	return types.PriceTick{Symbol: m.Data.Symbol, Price: price, Time: at}, nil
}
