package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.bybit.com"
	DefaultWSURL   = "wss://stream.bybit.com/v5/public/linear"
)

type cachedPrice struct {
	price     float64
	fetchedAt time.Time
}

// BybitFeed looks up current USD prices from the Bybit public v5 API.
// Results are cached with a TTL so repeated lookups within the window
// do not refetch; the websocket stream, when connected, keeps the
// cache warm with live ticker pushes.
type BybitFeed struct {
	baseURL  string
	wsURL    string
	client   *http.Client
	cacheTTL time.Duration
	logger   *zap.Logger

	mu         sync.Mutex
	cache      map[string]cachedPrice
	subscribed map[string]bool
	wsConn     *websocket.Conn

	timeNow func() time.Time // For testing
}

func NewBybitFeed(baseURL, wsURL string, cacheTTL time.Duration, logger *zap.Logger) *BybitFeed {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &BybitFeed{
		baseURL:    baseURL,
		wsURL:      wsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		cacheTTL:   cacheTTL,
		logger:     logger,
		cache:      make(map[string]cachedPrice),
		subscribed: make(map[string]bool),
		timeNow:    time.Now,
	}
}

// GetPrice returns the last traded price for a symbol, serving from
// the cache when the entry is still fresh.
func (f *BybitFeed) GetPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	cached, ok := f.cache[symbol]
	now := f.timeNow()
	f.mu.Unlock()

	if ok && now.Sub(cached.fetchedAt) < f.cacheTTL {
		return cached.price, nil
	}

	price, err := f.fetchPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.cache[symbol] = cachedPrice{price: price, fetchedAt: f.timeNow()}
	f.mu.Unlock()

	return price, nil
}

func (f *BybitFeed) fetchPrice(ctx context.Context, symbol string) (float64, error) {
	// V5 Ticker
	url := f.baseURL + "/v5/market/tickers?category=linear&symbol=" + symbol
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("ticker request failed: %s", string(body))
	}

	var result struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	if result.RetCode != 0 {
		return 0, fmt.Errorf("bybit ticker error: %s", result.RetMsg)
	}
	if len(result.Result.List) == 0 {
		return 0, fmt.Errorf("symbol not found: %s", symbol)
	}

	return strconv.ParseFloat(result.Result.List[0].LastPrice, 64)
}

// Subscribe opens the public ticker stream for the given symbols,
// dialing the websocket on first use. Live ticks land in the same
// cache GetPrice reads from.
func (f *BybitFeed) Subscribe(symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var fresh []string
	for _, s := range symbols {
		if !f.subscribed[s] {
			fresh = append(fresh, s)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	if f.wsConn == nil {
		c, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
		if err != nil {
			return err
		}
		f.wsConn = c
		go f.readLoop(c)
	}

	args := make([]interface{}, len(fresh))
	for i, s := range fresh {
		args[i] = "tickers." + s
	}
	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	}
	if err := f.wsConn.WriteJSON(subMsg); err != nil {
		return err
	}
	for _, s := range fresh {
		f.subscribed[s] = true
	}
	return nil
}

// Close shuts down the websocket stream, if any.
func (f *BybitFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wsConn == nil {
		return nil
	}
	err := f.wsConn.Close()
	f.wsConn = nil
	f.subscribed = make(map[string]bool)
	return err
}

func (f *BybitFeed) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		f.mu.Lock()
		if f.wsConn == conn {
			f.wsConn = nil
			f.subscribed = make(map[string]bool)
		}
		f.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			f.logger.Warn("ws read error", zap.Error(err))
			return
		}

		var event struct {
			Topic string `json:"topic"`
			Data  struct {
				Symbol    string `json:"symbol"`
				LastPrice string `json:"lastPrice"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		if !strings.HasPrefix(event.Topic, "tickers.") || event.Data.LastPrice == "" {
			continue
		}

		price, err := strconv.ParseFloat(event.Data.LastPrice, 64)
		if err != nil {
			continue
		}

		symbol := event.Data.Symbol
		if symbol == "" {
			symbol = strings.TrimPrefix(event.Topic, "tickers.")
		}

		f.mu.Lock()
		f.cache[symbol] = cachedPrice{price: price, fetchedAt: f.timeNow()}
		f.mu.Unlock()
	}
}
