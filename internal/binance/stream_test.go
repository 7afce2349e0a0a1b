package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamURL(t *testing.T) {
	got := StreamURL(DefaultStreamURL, []string{"BTCUSDT", "EthUsdt"})
	assert.Equal(t, "wss://stream.binance.com:9443/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker", got)
}

func TestParseMiniTicker(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tick, err := ParseMiniTicker([]byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1700000000000,"s":"BTCUSDT","c":"43250.10","o":"1","h":"2","l":"0.5"}}`), at)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.Equal(t, 43250.10, tick.Price)
	assert.Equal(t, at, tick.Time)

	bad := []string{
		`not json`,
		`{"stream":"x"}`,
		`{"data":{"s":"","c":"1"}}`,
		`{"data":{"s":"BTCUSDT","c":"abc"}}`,
		`{"data":{"s":"BTCUSDT","c":"NaN"}}`,
	}
	for _, msg := range bad {
		_, err := ParseMiniTicker([]byte(msg), at)
		assert.Error(t, err, msg)
	}
}

func TestStreamSubscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "btcusdt@miniTicker/ethusdt@miniTicker", r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		msgs := []string{
			`{"stream":"btcusdt@miniTicker","data":{"s":"BTCUSDT","c":"100.5"}}`,
			`garbage`,
			`{"stream":"ethusdt@miniTicker","data":{"s":"ETHUSDT","c":"2000"}}`,
		}
		for _, m := range msgs {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(m))
		}
		<-release
	}))
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?streams="
	s := NewStream(base, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks, err := s.Subscribe(ctx, []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)

	first := <-ticks
	assert.Equal(t, "BTCUSDT", first.Symbol)
	assert.Equal(t, 100.5, first.Price)

	second := <-ticks
	assert.Equal(t, "ETHUSDT", second.Symbol, "malformed message dropped")

	cancel()
	close(release)

	select {
	case _, ok := <-ticks:
		assert.False(t, ok, "channel closes after cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("tick channel not closed")
	}
}

func TestStreamSubscribeDialError(t *testing.T) {
	s := NewStream("ws://127.0.0.1:1/stream?streams=", nil)
	_, err := s.Subscribe(context.Background(), []string{"BTCUSDT"})
	assert.Error(t, err)

	_, err = s.Subscribe(context.Background(), nil)
	assert.Error(t, err)
}
