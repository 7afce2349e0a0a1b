// File: internal/binance/client.go
// ============================================
package binance

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"paper-trading-bot/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const DefaultRestURL = "https://api.binance.com"

// Client is a read-only REST client for public market data.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultRestURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetKlines fetches the most recent candles for symbol, oldest first.
// Rows with unparseable prices are skipped.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	reqURL := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build klines request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("klines %s: read body: %w", symbol, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines %s: status %d: %s", symbol, resp.StatusCode, string(body))
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("klines %s: decode: %w", symbol, err)
	}

	candles := make([]types.Candle, 0, len(rawKlines))
	for _, k := range rawKlines {
		if c, ok := parseKline(k); ok {
			candles = append(candles, c)
		}
	}
	return candles, nil
}

// parseKline maps [openTime, open, high, low, close, volume, closeTime, ...].
// Binance close times are inclusive; End is stored exclusive.
func parseKline(k []interface{}) (types.Candle, bool) {
	if len(k) < 7 {
		return types.Candle{}, false
	}
	openTime, ok1 := k[0].(float64)
	closeTime, ok2 := k[6].(float64)
	if !ok1 || !ok2 {
		return types.Candle{}, false
	}

	var prices [4]float64
	for i := range prices {
		s, ok := k[i+1].(string)
		if !ok {
			return types.Candle{}, false
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return types.Candle{}, false
		}
		prices[i] = v
	}

	return types.Candle{
		Open:  prices[0],
		High:  prices[1],
		Low:   prices[2],
		Close: prices[3],
		Start: time.UnixMilli(int64(openTime)).UTC(),
		End:   time.UnixMilli(int64(closeTime) + 1).UTC(),
	}, true
}
