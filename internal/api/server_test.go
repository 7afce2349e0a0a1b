package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trading-bot/internal/engine"
	"paper-trading-bot/internal/strategy"
	"paper-trading-bot/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	host := engine.NewHost(ctx, engine.Options{
		Trader: engine.TraderConfig{
			Symbols:        []string{"BTCUSDT", "ETHUSDT"},
			StartingCash:   10000,
			CommissionRate: 0.0005,
			SlippageRate:   0.0005,
			Strategy:       strategy.Medium,
		},
		TickInterval: 10 * time.Millisecond,
	}, nil)

	s := NewServer(ctx, host, nil)
	s.streamInterval = 20 * time.Millisecond
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		ts.Close()
		_ = host.Shutdown(context.Background())
		cancel()
	})
	return s, ts
}

func control(t *testing.T, ts *httptest.Server, body string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/agent/control", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func state(t *testing.T, ts *httptest.Server) types.Snapshot {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/agent/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap types.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

func TestControlLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := control(t, ts, `{"action":"start"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "running", body["status"])
	assert.True(t, state(t, ts).IsRunning)

	code, body = control(t, ts, `{"action":"stop"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "stopped", body["status"])
	assert.False(t, state(t, ts).IsRunning)
}

func TestControlReset(t *testing.T) {
	_, ts := newTestServer(t)

	code, _ := control(t, ts, `{"action":"reset","options":{"startingCash":2500,"strategy":"HIGH"}}`)
	require.Equal(t, http.StatusOK, code)

	snap := state(t, ts)
	assert.Equal(t, 2500.0, snap.CashBalance)
	assert.Equal(t, "high", snap.Strategy)
	assert.Empty(t, snap.Trades)

	code, _ = control(t, ts, `{"action":"reset"}`)
	require.Equal(t, http.StatusOK, code)
	snap = state(t, ts)
	assert.Equal(t, 10000.0, snap.CashBalance)
	assert.Equal(t, "high", snap.Strategy, "reset alone keeps the strategy")
}

func TestControlRejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"unknown action", `{"action":"moon"}`, "invalid_action"},
		{"bad strategy", `{"action":"set_strategy","options":{"strategy":"yolo"}}`, "invalid_strategy"},
		{"missing strategy", `{"action":"set_strategy"}`, "invalid_strategy"},
		{"bad reset strategy", `{"action":"reset","options":{"strategy":"extreme"}}`, "invalid_strategy"},
		{"malformed body", `{"action":`, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := control(t, ts, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.code, body["error"])
		})
	}

	// a rejected reset leaves state alone
	assert.Equal(t, "medium", state(t, ts).Strategy)
}

func TestControlSetStrategyAndRecreate(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := control(t, ts, `{"action":"set_strategy","options":{"strategy":"low"}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "strategy_set", body["status"])

	code, body = control(t, ts, `{"action":"recreate","options":{"startingCash":1234}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "recreated", body["status"])

	snap := state(t, ts)
	assert.Equal(t, "low", snap.Strategy)
	assert.Equal(t, 1234.0, snap.CashBalance)

	code, body = control(t, ts, `{"action":"reload_symbols"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "symbols_reloaded", body["status"])
	snap = state(t, ts)
	assert.Equal(t, "low", snap.Strategy)
	assert.Equal(t, 1234.0, snap.CashBalance)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, snap.WatchSymbols)
}

func TestControlLiquidateAliases(t *testing.T) {
	_, ts := newTestServer(t)
	for _, action := range []string{"liquidate", "sell_all"} {
		code, body := control(t, ts, `{"action":"`+action+`"}`)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "liquidated", body["status"])
	}
}

func TestStreamPushesSnapshots(t *testing.T) {
	_, ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/agent/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	events := 0
	for events < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap types.Snapshot
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap))
		assert.Equal(t, 10000.0, snap.CashBalance)
		events++
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	found := false
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "paper_trading_") {
			found = true
			break
		}
	}
	assert.True(t, found, "engine collectors are registered")
}

func TestStateMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/state", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFreshStateEncodesEmptyCollections(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/agent/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, []interface{}{}, raw["trades"])
	assert.Equal(t, map[string]interface{}{}, raw["positions"])
	assert.Equal(t, map[string]interface{}{}, raw["prices"])
}
