// Package openalgo is the HTTP client for the OpenAlgo brokerage gateway.
// It implements broker.Client and broker.InstrumentMetadata against the
// gateway's JSON API (placeorder, quotes, openposition, expiry, symbol).
package openalgo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/jedilord/openalgo-flow/pkg/broker"
)

const (
	defaultTimeout = 10 * time.Second
	expiryLayout   = "02-Jan-2006"
)

// Client talks to one OpenAlgo gateway with one API key.
type Client struct {
	baseURL  string
	apiKey   string
	strategy string
	http     *http.Client
	logger   *slog.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithStrategy tags every order with a strategy name.
func WithStrategy(name string) Option {
	return func(c *Client) {
		c.strategy = name
	}
}

func NewClient(baseURL, apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		strategy: "openalgo-flow",
		http:     &http.Client{Timeout: defaultTimeout},
		logger:   logger.With("module", "openalgo_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// apiResponse is the common envelope every gateway endpoint returns.
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`

	// placeorder returns these at the top level rather than under data.
	OrderID string `json:"orderid,omitempty"`
}

// post sends one API call. Every endpoint takes a JSON body that includes
// the API key.
func (c *Client) post(ctx context.Context, endpoint string, payload map[string]any) (*apiResponse, error) {
	payload["apikey"] = c.apiKey

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", endpoint, err)
	}

	url := c.baseURL + "/api/v1/" + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || parsed.Status == "error" {
		return &parsed, fmt.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, parsed.Message)
	}

	return &parsed, nil
}

// PlaceOrder submits one order and returns the gateway's acknowledgement. A
// rejection (HTTP success with error status) maps to broker.RejectionError
// so callers can classify it.
func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	payload := map[string]any{
		"strategy":  c.strategy,
		"symbol":    req.Symbol,
		"exchange":  req.Exchange,
		"action":    req.Action,
		"quantity":  req.Quantity,
		"pricetype": req.PriceType,
		"product":   req.Product,
	}

	if req.Strategy != "" {
		payload["strategy"] = req.Strategy
	}

	if req.PriceType == broker.PriceTypeLimit {
		payload["price"] = req.Price
	}

	parsed, err := c.post(ctx, "placeorder", payload)
	if err != nil {
		if parsed != nil && parsed.Status == "error" {
			return nil, &broker.RejectionError{
				Op:      "placeorder",
				Symbol:  req.Symbol,
				Message: parsed.Message,
			}
		}

		return nil, err
	}

	c.logger.Info("Order placed",
		"symbol", req.Symbol,
		"action", req.Action,
		"quantity", req.Quantity,
		"order_id", parsed.OrderID,
	)

	return &broker.OrderResponse{OrderID: parsed.OrderID, Status: parsed.Status}, nil
}

// OpenPosition returns the signed net quantity for one position. A symbol
// with no open position is quantity zero, not an error.
func (c *Client) OpenPosition(ctx context.Context, filter broker.PositionFilter) (int, error) {
	parsed, err := c.post(ctx, "openposition", map[string]any{
		"strategy": c.strategy,
		"symbol":   filter.Symbol,
		"exchange": filter.Exchange,
		"product":  filter.Product,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", broker.ErrPositionUnavailable, err)
	}

	var data struct {
		Quantity any `json:"quantity"`
	}

	if err := json.Unmarshal(parsed.Data, &data); err != nil {
		return 0, fmt.Errorf("%w: bad openposition payload: %w", broker.ErrPositionUnavailable, err)
	}

	qty, err := cast.ToIntE(data.Quantity)
	if err != nil {
		return 0, fmt.Errorf("%w: bad quantity %v", broker.ErrPositionUnavailable, data.Quantity)
	}

	return qty, nil
}

// Quote fetches a point-in-time quote for one symbol.
func (c *Client) Quote(ctx context.Context, symbol, exchange string) (*broker.Quote, error) {
	parsed, err := c.post(ctx, "quotes", map[string]any{
		"symbol":   symbol,
		"exchange": exchange,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", broker.ErrQuoteUnavailable, symbol, err)
	}

	var data struct {
		LTP       float64 `json:"ltp"`
		Open      float64 `json:"open"`
		High      float64 `json:"high"`
		Low       float64 `json:"low"`
		PrevClose float64 `json:"prev_close"`
		Volume    int64   `json:"volume"`
	}

	if err := json.Unmarshal(parsed.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: bad quotes payload for %s: %w", broker.ErrQuoteUnavailable, symbol, err)
	}

	return &broker.Quote{
		Symbol:   symbol,
		Exchange: exchange,
		LTP:      data.LTP,
		Open:     data.Open,
		High:     data.High,
		Low:      data.Low,
		Close:    data.PrevClose,
		Volume:   data.Volume,
	}, nil
}

// Expiries returns the active expiry dates for an underlying, ascending.
func (c *Client) Expiries(ctx context.Context, underlying, exchange, optionType string) ([]time.Time, error) {
	parsed, err := c.post(ctx, "expiry", map[string]any{
		"symbol":         underlying,
		"exchange":       exchange,
		"instrumenttype": "options",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch expiries for %s: %w", underlying, err)
	}

	var data []string
	if err := json.Unmarshal(parsed.Data, &data); err != nil {
		return nil, fmt.Errorf("bad expiry payload for %s: %w", underlying, err)
	}

	expiries := make([]time.Time, 0, len(data))

	for _, raw := range data {
		expiry, err := time.Parse(expiryLayout, raw)
		if err != nil {
			c.logger.Warn("Skipping unparseable expiry", "underlying", underlying, "value", raw)

			continue
		}

		expiries = append(expiries, expiry)
	}

	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })

	return expiries, nil
}

// StrikeStep returns the strike interval for an underlying and expiry,
// derived from the listed strike ladder.
func (c *Client) StrikeStep(ctx context.Context, underlying, exchange string, expiry time.Time) (float64, error) {
	parsed, err := c.post(ctx, "optionchain", map[string]any{
		"symbol":   underlying,
		"exchange": exchange,
		"expiry":   expiry.Format(expiryLayout),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch strike ladder for %s: %w", underlying, err)
	}

	var data struct {
		Strikes []float64 `json:"strikes"`
	}

	if err := json.Unmarshal(parsed.Data, &data); err != nil {
		return 0, fmt.Errorf("bad optionchain payload for %s: %w", underlying, err)
	}

	if len(data.Strikes) < 2 {
		return 0, fmt.Errorf("strike ladder for %s has %d strikes", underlying, len(data.Strikes))
	}

	sort.Float64s(data.Strikes)

	// The smallest gap between adjacent strikes is the step; ladders can
	// widen away from the money.
	step := data.Strikes[1] - data.Strikes[0]
	for i := 2; i < len(data.Strikes); i++ {
		if gap := data.Strikes[i] - data.Strikes[i-1]; gap > 0 && gap < step {
			step = gap
		}
	}

	return step, nil
}

// Instrument looks up a listed contract by its canonical symbol.
func (c *Client) Instrument(ctx context.Context, symbol, exchange string) (*broker.Instrument, error) {
	parsed, err := c.post(ctx, "symbol", map[string]any{
		"symbol":   symbol,
		"exchange": exchange,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", broker.ErrInstrumentNotFound, symbol, err)
	}

	var data struct {
		LotSize   int     `json:"lotsize"`
		TickSize  float64 `json:"tick_size"`
		FreezeQty int     `json:"freeze_qty"`
	}

	if err := json.Unmarshal(parsed.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: bad symbol payload for %s: %w", broker.ErrInstrumentNotFound, symbol, err)
	}

	if data.LotSize <= 0 {
		data.LotSize = 1
	}

	return &broker.Instrument{
		Symbol:    symbol,
		Exchange:  exchange,
		LotSize:   data.LotSize,
		TickSize:  data.TickSize,
		FreezeQty: data.FreezeQty,
	}, nil
}
