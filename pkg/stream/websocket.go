package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	dialTimeout  = 15 * time.Second
)

// wsMessage is the wire format of the market data feed: auth, subscribe and
// unsubscribe requests share one envelope, updates come back with
// type "market_data" and the LTP nested under data.
type wsMessage struct {
	Action      string         `json:"action,omitempty"`
	Type        string         `json:"type,omitempty"`
	APIKey      string         `json:"api_key,omitempty"`
	Mode        string         `json:"mode,omitempty"`
	Symbol      string         `json:"symbol,omitempty"`
	Exchange    string         `json:"exchange,omitempty"`
	Instruments []Instrument   `json:"instruments,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// WSClient is a websocket implementation of Subscriber. Reconnection policy
// stays with the operator; a dropped connection surfaces as no more ticks.
type WSClient struct {
	url    string
	apiKey string
	logger *slog.Logger

	// gorilla/websocket allows only one concurrent writer per connection.
	writeMu sync.Mutex

	mu       sync.RWMutex
	conn     *websocket.Conn
	handlers map[string]TickHandler // "EXCHANGE:SYMBOL" -> handler
}

// NewWSClient creates a client for the given feed URL.
func NewWSClient(url, apiKey string, logger *slog.Logger) *WSClient {
	return &WSClient{
		url:      url,
		apiKey:   apiKey,
		logger:   logger.With("module", "price_stream", "url", url),
		handlers: make(map[string]TickHandler),
	}
}

// Connect dials the feed, authenticates, and starts the read loop.
func (c *WSClient) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial price feed: %w", err)
	}

	auth := wsMessage{Action: "authenticate", APIKey: c.apiKey}
	if err := c.write(conn, auth); err != nil {
		_ = conn.Close()

		return fmt.Errorf("failed to authenticate price feed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(ctx, conn)

	c.logger.Info("Connected to price feed")

	return nil
}

// Close tears the connection down.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	return err
}

// SubscribeLTP registers handlers and asks the feed for LTP updates.
func (c *WSClient) SubscribeLTP(_ context.Context, instruments []Instrument, handler TickHandler) error {
	c.mu.Lock()
	conn := c.conn

	for _, inst := range instruments {
		c.handlers[subscriptionKey(inst.Symbol, inst.Exchange)] = handler
	}
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("price feed not connected")
	}

	return c.write(conn, wsMessage{Action: "subscribe", Mode: "ltp", Instruments: instruments})
}

// UnsubscribeLTP removes handlers and tells the feed to stop updates.
func (c *WSClient) UnsubscribeLTP(_ context.Context, instruments []Instrument) error {
	c.mu.Lock()
	conn := c.conn

	for _, inst := range instruments {
		delete(c.handlers, subscriptionKey(inst.Symbol, inst.Exchange))
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	return c.write(conn, wsMessage{Action: "unsubscribe", Mode: "ltp", Instruments: instruments})
}

func (c *WSClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("Price feed read failed, stopping", "error", err)

			return
		}

		var msg wsMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Debug("Dropping malformed feed message", "error", err)

			continue
		}

		if msg.Type != "market_data" {
			continue
		}

		c.dispatch(msg)
	}
}

func (c *WSClient) dispatch(msg wsMessage) {
	ltp, ok := msg.Data["ltp"].(float64)
	if !ok || msg.Symbol == "" || msg.Exchange == "" {
		return
	}

	c.mu.RLock()
	handler, ok := c.handlers[subscriptionKey(msg.Symbol, msg.Exchange)]
	c.mu.RUnlock()

	if !ok {
		return
	}

	handler(Tick{
		Symbol:    msg.Symbol,
		Exchange:  msg.Exchange,
		LTP:       ltp,
		Timestamp: time.Now(),
	})
}

func (c *WSClient) write(conn *websocket.Conn, msg wsMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	return conn.WriteJSON(msg)
}

func subscriptionKey(symbol, exchange string) string {
	return strings.ToUpper(exchange) + ":" + strings.ToUpper(symbol)
}
