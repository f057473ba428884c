// Package orders builds and dispatches brokerage order requests: single,
// smart, basket, split, and multi-leg placement with failure-isolated
// aggregation.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jedilord/openalgo-flow/pkg/broker"
	"github.com/jedilord/openalgo-flow/pkg/models"
	"github.com/jedilord/openalgo-flow/pkg/options"
)

// BatchStatus aggregates per-item outcomes. A batch is success only when
// every item succeeded; a mix is partial; all failed is failed.
type BatchStatus string

const (
	BatchSuccess BatchStatus = "success"
	BatchPartial BatchStatus = "partial"
	BatchFailed  BatchStatus = "failed"
)

// ItemResult is the outcome of one independently dispatched order.
type ItemResult struct {
	Seq       int              `json:"seq"`
	Symbol    string           `json:"symbol,omitempty"`
	Quantity  int              `json:"quantity,omitempty"`
	Status    string           `json:"status"`
	OrderID   string           `json:"orderid,omitempty"`
	ErrorKind models.ErrorKind `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// BatchResult carries per-item results in dispatch order.
type BatchResult struct {
	Status BatchStatus  `json:"status"`
	Items  []ItemResult `json:"results"`
}

// MultiLegResult additionally carries the shared spot snapshot every leg was
// quoted against.
type MultiLegResult struct {
	Status    BatchStatus  `json:"status"`
	SpotPrice float64      `json:"spot_price"`
	Legs      []ItemResult `json:"legs"`
}

// SmartOrderRequest targets a position size instead of a raw quantity; the
// orchestrator computes the delta to get there.
type SmartOrderRequest struct {
	Symbol    string
	Exchange  string
	Product   string
	PriceType string
	Price     float64
	Target    int // desired signed position size
	Strategy  string
}

// Orchestrator dispatches orders through the brokerage client. Batch modes
// submit items sequentially; one item's failure never aborts its siblings,
// and results keep input order regardless of outcome.
type Orchestrator struct {
	client   broker.Client
	resolver *options.Resolver
	logger   *slog.Logger
}

// New creates an orchestrator.
func New(client broker.Client, resolver *options.Resolver, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		client:   client,
		resolver: resolver,
		logger:   logger.With("module", "order_orchestrator"),
	}
}

// Place submits one order.
func (o *Orchestrator) Place(ctx context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	resp, err := o.client.PlaceOrder(ctx, req)
	if err != nil {
		o.logger.Error("Order placement failed", "symbol", req.Symbol, "action", req.Action, "error", err)

		return nil, err
	}

	o.logger.Info("Order placed", "symbol", req.Symbol, "action", req.Action, "quantity", req.Quantity, "orderid", resp.OrderID)

	return resp, nil
}

// PlaceSmart reads the current open position and submits the delta needed to
// reach the requested target. A failing position query is an
// InvalidPositionState, not an order rejection.
func (o *Orchestrator) PlaceSmart(ctx context.Context, req SmartOrderRequest) (*broker.OrderResponse, error) {
	current, err := o.client.OpenPosition(ctx, broker.PositionFilter{
		Symbol:   req.Symbol,
		Exchange: req.Exchange,
		Product:  req.Product,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", broker.ErrPositionUnavailable, err)
	}

	delta := req.Target - current
	if delta == 0 {
		o.logger.Info("Position already at target, no order needed", "symbol", req.Symbol, "target", req.Target)

		return &broker.OrderResponse{Status: "success"}, nil
	}

	action := broker.ActionBuy
	if delta < 0 {
		action = broker.ActionSell
		delta = -delta
	}

	return o.Place(ctx, broker.OrderRequest{
		Symbol:    req.Symbol,
		Exchange:  req.Exchange,
		Action:    action,
		Quantity:  delta,
		PriceType: req.PriceType,
		Product:   req.Product,
		Price:     req.Price,
		Strategy:  req.Strategy,
	})
}

// PlaceBasket dispatches every request in input order. All items are
// attempted even when earlier ones fail.
func (o *Orchestrator) PlaceBasket(ctx context.Context, reqs []broker.OrderRequest) *BatchResult {
	items := make([]ItemResult, 0, len(reqs))

	for i, req := range reqs {
		items = append(items, o.dispatchItem(ctx, i+1, req))
	}

	return &BatchResult{Status: aggregate(items), Items: items}
}

// PlaceSplit partitions one logical order into ceil(total/splitSize) chunks,
// each at most splitSize with the remainder last, and submits them in
// ascending sequence. Failed chunks do not stop later ones; partial fills
// are a valid outcome.
func (o *Orchestrator) PlaceSplit(ctx context.Context, req broker.OrderRequest, splitSize int) (*BatchResult, error) {
	if splitSize <= 0 {
		return nil, errors.New("split size must be positive")
	}

	if req.Quantity <= 0 {
		return nil, errors.New("total quantity must be positive")
	}

	var items []ItemResult

	remaining := req.Quantity
	for seq := 1; remaining > 0; seq++ {
		chunk := req
		chunk.Quantity = min(splitSize, remaining)
		remaining -= chunk.Quantity

		items = append(items, o.dispatchItem(ctx, seq, chunk))
	}

	return &BatchResult{Status: aggregate(items), Items: items}, nil
}

// PlaceMultiLeg resolves and submits each leg independently. The underlying's
// spot price is read once before any leg resolves so the whole batch is
// quoted against a single snapshot; legs are numbered 1..N in input order.
func (o *Orchestrator) PlaceMultiLeg(ctx context.Context, legs []options.LegSpec, product string) (*MultiLegResult, error) {
	if len(legs) == 0 {
		return nil, errors.New("multi-leg order needs at least one leg")
	}

	spot, err := o.resolver.Spot(ctx, legs[0].Underlying, legs[0].Exchange)
	if err != nil {
		return nil, err
	}

	items := make([]ItemResult, 0, len(legs))

	for i, leg := range legs {
		items = append(items, o.dispatchLeg(ctx, i+1, leg, spot, product))
	}

	return &MultiLegResult{Status: aggregate(items), SpotPrice: spot, Legs: items}, nil
}

func (o *Orchestrator) dispatchItem(ctx context.Context, seq int, req broker.OrderRequest) ItemResult {
	resp, err := o.client.PlaceOrder(ctx, req)
	if err != nil {
		o.logger.Error("Batch item failed", "seq", seq, "symbol", req.Symbol, "error", err)

		return ItemResult{
			Seq:       seq,
			Symbol:    req.Symbol,
			Quantity:  req.Quantity,
			Status:    string(models.NodeStatusFailure),
			ErrorKind: broker.KindOf(err),
			Error:     err.Error(),
		}
	}

	return ItemResult{
		Seq:      seq,
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		Status:   string(models.NodeStatusSuccess),
		OrderID:  resp.OrderID,
	}
}

func (o *Orchestrator) dispatchLeg(ctx context.Context, seq int, leg options.LegSpec, spot float64, product string) ItemResult {
	resolved, err := o.resolver.ResolveAt(ctx, leg, spot)
	if err != nil {
		o.logger.Error("Leg resolution failed", "seq", seq, "underlying", leg.Underlying, "error", err)

		return ItemResult{
			Seq:       seq,
			Status:    string(models.NodeStatusFailure),
			ErrorKind: models.ErrorKindResolution,
			Error:     err.Error(),
		}
	}

	quantity := leg.Quantity * resolved.LotSize

	item := o.dispatchItem(ctx, seq, broker.OrderRequest{
		Symbol:    resolved.Symbol,
		Exchange:  resolved.Exchange,
		Action:    leg.Action,
		Quantity:  quantity,
		PriceType: broker.PriceTypeMarket,
		Product:   product,
	})
	item.Seq = seq

	return item
}

func aggregate(items []ItemResult) BatchStatus {
	succeeded := 0

	for _, item := range items {
		if item.Status == string(models.NodeStatusSuccess) {
			succeeded++
		}
	}

	switch succeeded {
	case len(items):
		return BatchSuccess
	case 0:
		return BatchFailed
	default:
		return BatchPartial
	}
}
