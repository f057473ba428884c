// Package broker defines the contracts the engine consumes from the
// brokerage API and instrument metadata collaborators. Implementations live
// in subpackages; tests use in-package stubs.
package broker

import (
	"context"
	"time"
)

// Order actions and price types as the brokerage API expects them.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"

	PriceTypeMarket = "MARKET"
	PriceTypeLimit  = "LIMIT"

	ProductMIS  = "MIS"
	ProductNRML = "NRML"
	ProductCNC  = "CNC"
)

// OrderRequest is one order to submit.
type OrderRequest struct {
	Symbol    string  `json:"symbol"`
	Exchange  string  `json:"exchange"`
	Action    string  `json:"action"`
	Quantity  int     `json:"quantity"`
	PriceType string  `json:"pricetype"`
	Product   string  `json:"product"`
	Price     float64 `json:"price,omitempty"`
	Strategy  string  `json:"strategy,omitempty"`
}

// OrderResponse is the brokerage acknowledgement for one request.
type OrderResponse struct {
	OrderID string `json:"orderid"`
	Status  string `json:"status"`
}

// PositionFilter selects one open position.
type PositionFilter struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Product  string `json:"product"`
}

// Quote is a point-in-time market quote.
type Quote struct {
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	LTP      float64 `json:"ltp"`
	Open     float64 `json:"open,omitempty"`
	High     float64 `json:"high,omitempty"`
	Low      float64 `json:"low,omitempty"`
	Close    float64 `json:"prev_close,omitempty"`
	Volume   int64   `json:"volume,omitempty"`
}

// Instrument carries the tradable-contract metadata the option resolver
// needs after a strike is chosen.
type Instrument struct {
	Symbol    string  `json:"symbol"`
	Exchange  string  `json:"exchange"`
	LotSize   int     `json:"lotsize"`
	TickSize  float64 `json:"tick_size"`
	FreezeQty int     `json:"freeze_qty"`
}

// Client is the brokerage API surface the core depends on. Every call may
// fail with a transport or rejection error; retry policy is the caller's
// collaborator's concern, not ours.
type Client interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	OpenPosition(ctx context.Context, filter PositionFilter) (int, error)
	Quote(ctx context.Context, symbol, exchange string) (*Quote, error)
}

// InstrumentMetadata resolves contract metadata for the option resolver.
type InstrumentMetadata interface {
	// Expiries returns the active expiry dates for an underlying, ascending.
	Expiries(ctx context.Context, underlying, exchange, optionType string) ([]time.Time, error)

	// StrikeStep returns the strike interval for an underlying and expiry.
	StrikeStep(ctx context.Context, underlying, exchange string, expiry time.Time) (float64, error)

	// Instrument looks up a listed contract by its canonical symbol.
	Instrument(ctx context.Context, symbol, exchange string) (*Instrument, error)
}
