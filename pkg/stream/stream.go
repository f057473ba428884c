// Package stream defines the live price feed contract consumed by the price
// alert trigger, plus the websocket client implementing it against the
// brokerage's market data endpoint.
package stream

import (
	"context"
	"time"
)

// Instrument identifies one subscribable instrument.
type Instrument struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}

// Tick is one last-traded-price update. Delivery is at-most-once per tick;
// ordering across symbols is not guaranteed.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	LTP       float64   `json:"ltp"`
	Timestamp time.Time `json:"timestamp"`
}

// TickHandler consumes one tick. Handlers must not block; slow consumers
// drop updates, they do not stall the feed.
type TickHandler func(tick Tick)

// Subscriber is the feed surface the price alert monitor depends on.
type Subscriber interface {
	SubscribeLTP(ctx context.Context, instruments []Instrument, handler TickHandler) error
	UnsubscribeLTP(ctx context.Context, instruments []Instrument) error
}

// NopSubscriber is a Subscriber wired in when no market data feed is
// configured. Subscriptions succeed and never deliver a tick.
type NopSubscriber struct{}

func (NopSubscriber) SubscribeLTP(_ context.Context, _ []Instrument, _ TickHandler) error {
	return nil
}

func (NopSubscriber) UnsubscribeLTP(_ context.Context, _ []Instrument) error {
	return nil
}
