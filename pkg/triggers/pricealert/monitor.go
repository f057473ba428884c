// Package pricealert watches a live tick stream and fires workflow runs when
// a symbol's last traded price satisfies an alert condition. Alerts are
// one-shot: a fired alert is removed so a workflow never triggers twice
// without re-arming.
package pricealert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jedilord/openalgo-flow/pkg/stream"
	"github.com/jedilord/openalgo-flow/pkg/triggers"
)

// Condition names accepted by an alert. Channel conditions use both Price
// (lower bound) and Price2 (upper bound); all others use Price alone, except
// the percent moves which treat Price as a percentage of the reference price.
const (
	GreaterThan       = "greater_than"
	LessThan          = "less_than"
	Crossing          = "crossing"
	CrossingUp        = "crossing_up"
	CrossingDown      = "crossing_down"
	EnteringChannel   = "entering_channel"
	ExitingChannel    = "exiting_channel"
	InsideChannel     = "inside_channel"
	OutsideChannel    = "outside_channel"
	MovingUp          = "moving_up"
	MovingDown        = "moving_down"
	MovingUpPercent   = "moving_up_percent"
	MovingDownPercent = "moving_down_percent"
)

// Alert arms one workflow against one symbol.
type Alert struct {
	WorkflowID string
	Symbol     string
	Exchange   string
	Condition  string
	Price      float64
	Price2     float64

	// reference price for the moving_* conditions, captured when the
	// alert is armed.
	refPrice    float64
	refPriceSet bool
	lastPrice   float64
	hasLast     bool
}

func (a *Alert) validate() error {
	if a.WorkflowID == "" {
		return fmt.Errorf("price alert workflow ID is required")
	}

	if a.Symbol == "" || a.Exchange == "" {
		return fmt.Errorf("price alert symbol and exchange are required")
	}

	switch a.Condition {
	case GreaterThan, LessThan, Crossing, CrossingUp, CrossingDown,
		MovingUp, MovingDown, MovingUpPercent, MovingDownPercent:
		return nil
	case EnteringChannel, ExitingChannel, InsideChannel, OutsideChannel:
		if a.Price2 <= a.Price {
			return fmt.Errorf("channel condition requires price2 > price")
		}

		return nil
	default:
		return fmt.Errorf("unknown price alert condition %q", a.Condition)
	}
}

// Monitor owns the alert set and the underlying stream subscriptions. One
// stream subscription is held per symbol regardless of how many alerts watch
// it.
type Monitor struct {
	subscriber stream.Subscriber
	callback   triggers.Callback
	logger     *slog.Logger

	mu     sync.Mutex
	alerts map[string][]*Alert // keyed "EXCHANGE:SYMBOL"
}

func NewMonitor(subscriber stream.Subscriber, logger *slog.Logger) *Monitor {
	return &Monitor{
		subscriber: subscriber,
		logger:     logger.With("module", "price_monitor"),
		alerts:     make(map[string][]*Alert),
	}
}

// Start sets the callback invoked when an alert fires. It must be called
// before AddAlert.
func (m *Monitor) Start(_ context.Context, callback triggers.Callback) error {
	m.callback = callback

	return nil
}

func key(exchange, symbol string) string {
	return strings.ToUpper(exchange) + ":" + strings.ToUpper(symbol)
}

// AddAlert arms an alert and subscribes to the symbol's ticks if this is the
// first alert on it.
func (m *Monitor) AddAlert(ctx context.Context, alert *Alert) error {
	if err := alert.validate(); err != nil {
		return err
	}

	k := key(alert.Exchange, alert.Symbol)

	m.mu.Lock()
	existing := len(m.alerts[k])
	m.alerts[k] = append(m.alerts[k], alert)
	m.mu.Unlock()

	if existing == 0 {
		instruments := []stream.Instrument{{Symbol: alert.Symbol, Exchange: alert.Exchange}}
		if err := m.subscriber.SubscribeLTP(ctx, instruments, m.onTick); err != nil {
			m.mu.Lock()
			m.alerts[k] = m.alerts[k][:existing]
			m.mu.Unlock()

			return fmt.Errorf("failed to subscribe %s: %w", k, err)
		}
	}

	m.logger.Info("Price alert armed",
		"workflow_id", alert.WorkflowID,
		"symbol", alert.Symbol,
		"exchange", alert.Exchange,
		"condition", alert.Condition,
	)

	return nil
}

// RemoveAlerts disarms every alert for a workflow, unsubscribing symbols
// that no longer have watchers.
func (m *Monitor) RemoveAlerts(ctx context.Context, workflowID string) {
	var drop []stream.Instrument

	m.mu.Lock()
	for k, list := range m.alerts {
		kept := list[:0]

		for _, a := range list {
			if a.WorkflowID != workflowID {
				kept = append(kept, a)
			}
		}

		if len(kept) == 0 {
			delete(m.alerts, k)

			exchange, symbol, _ := strings.Cut(k, ":")
			drop = append(drop, stream.Instrument{Symbol: symbol, Exchange: exchange})
		} else {
			m.alerts[k] = kept
		}
	}
	m.mu.Unlock()

	for _, inst := range drop {
		if err := m.subscriber.UnsubscribeLTP(ctx, []stream.Instrument{inst}); err != nil {
			m.logger.Warn("Failed to unsubscribe", "symbol", inst.Symbol, "error", err)
		}
	}
}

func (m *Monitor) onTick(tick stream.Tick) {
	k := key(tick.Exchange, tick.Symbol)

	var (
		fired   []*Alert
		drained bool
	)

	m.mu.Lock()
	list := m.alerts[k]
	kept := list[:0]

	for _, a := range list {
		if a.evaluate(tick.LTP) {
			fired = append(fired, a)
		} else {
			kept = append(kept, a)
		}
	}

	if len(kept) == 0 {
		delete(m.alerts, k)

		drained = len(fired) > 0
	} else {
		m.alerts[k] = kept
	}
	m.mu.Unlock()

	// Alerts are one-shot, so a symbol whose last alert just fired no
	// longer needs its tick stream.
	if drained {
		inst := stream.Instrument{Symbol: tick.Symbol, Exchange: tick.Exchange}
		if err := m.subscriber.UnsubscribeLTP(context.Background(), []stream.Instrument{inst}); err != nil {
			m.logger.Warn("Failed to unsubscribe", "symbol", tick.Symbol, "error", err)
		}
	}

	for _, a := range fired {
		m.fire(a, tick)
	}
}

func (m *Monitor) fire(alert *Alert, tick stream.Tick) {
	m.logger.Info("Price alert fired",
		"workflow_id", alert.WorkflowID,
		"symbol", alert.Symbol,
		"condition", alert.Condition,
		"ltp", tick.LTP,
	)

	seed := map[string]any{
		"trigger_type":  "price_alert",
		"symbol":        alert.Symbol,
		"exchange":      alert.Exchange,
		"condition":     alert.Condition,
		"trigger_price": tick.LTP,
		"triggered_at":  time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		if err := m.callback(context.Background(), alert.WorkflowID, seed); err != nil {
			m.logger.Error("Price alert run failed",
				"workflow_id", alert.WorkflowID, "error", err)
		}
	}()
}

// evaluate reports whether the alert fires at this price and updates the
// alert's price history. Crossing conditions need a previous price, so the
// first tick only records state.
func (a *Alert) evaluate(price float64) bool {
	if !a.refPriceSet {
		a.refPrice = price
		a.refPriceSet = true
	}

	last := a.lastPrice
	hadLast := a.hasLast
	a.lastPrice = price
	a.hasLast = true

	switch a.Condition {
	case GreaterThan:
		return price > a.Price
	case LessThan:
		return price < a.Price
	case Crossing:
		return hadLast && ((last < a.Price && price >= a.Price) ||
			(last > a.Price && price <= a.Price))
	case CrossingUp:
		return hadLast && last < a.Price && price >= a.Price
	case CrossingDown:
		return hadLast && last > a.Price && price <= a.Price
	case EnteringChannel:
		return hadLast && !between(last, a.Price, a.Price2) &&
			between(price, a.Price, a.Price2)
	case ExitingChannel:
		return hadLast && between(last, a.Price, a.Price2) &&
			!between(price, a.Price, a.Price2)
	case InsideChannel:
		return between(price, a.Price, a.Price2)
	case OutsideChannel:
		return !between(price, a.Price, a.Price2)
	case MovingUp:
		return price-a.refPrice >= a.Price
	case MovingDown:
		return a.refPrice-price >= a.Price
	case MovingUpPercent:
		return a.refPrice > 0 && (price-a.refPrice)/a.refPrice*100 >= a.Price
	case MovingDownPercent:
		return a.refPrice > 0 && (a.refPrice-price)/a.refPrice*100 >= a.Price
	default:
		return false
	}
}

func between(v, low, high float64) bool {
	return v >= low && v <= high
}
