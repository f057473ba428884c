package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cast"

	"github.com/jedilord/openalgo-flow/pkg/broker"
	"github.com/jedilord/openalgo-flow/pkg/execution"
	"github.com/jedilord/openalgo-flow/pkg/models"
	"github.com/jedilord/openalgo-flow/pkg/options"
	"github.com/jedilord/openalgo-flow/pkg/orders"
)

// PlaceOrderExecutor submits one order.
type PlaceOrderExecutor struct {
	Orchestrator *orders.Orchestrator
}

func (e *PlaceOrderExecutor) Execute(ctx context.Context, _ *execution.Context, node *models.Node) (*models.NodeResult, error) {
	req, err := orderRequestFromConfig(node.Config)
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	resp, err := e.Orchestrator.Place(ctx, *req)
	if err != nil {
		return failure(node.ID, broker.KindOf(err), err), nil
	}

	return successResult(node.ID, map[string]any{
		"orderid": resp.OrderID,
		"status":  resp.Status,
		"symbol":  req.Symbol,
	}), nil
}

// SmartOrderExecutor targets a position size; the orchestrator works out the
// delta order.
type SmartOrderExecutor struct {
	Orchestrator *orders.Orchestrator
}

func (e *SmartOrderExecutor) Execute(ctx context.Context, _ *execution.Context, node *models.Node) (*models.NodeResult, error) {
	symbol, err := requiredString(node.Config, "symbol")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	exchange, err := requiredString(node.Config, "exchange")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	target, err := requiredInt(node.Config, "target")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	resp, err := e.Orchestrator.PlaceSmart(ctx, orders.SmartOrderRequest{
		Symbol:    symbol,
		Exchange:  exchange,
		Product:   optionalString(node.Config, "product", broker.ProductMIS),
		PriceType: optionalString(node.Config, "pricetype", broker.PriceTypeMarket),
		Target:    target,
	})
	if err != nil {
		if errors.Is(err, broker.ErrPositionUnavailable) {
			return failure(node.ID, models.ErrorKindInvalidPosition, err), nil
		}

		return failure(node.ID, broker.KindOf(err), err), nil
	}

	return successResult(node.ID, map[string]any{
		"orderid": resp.OrderID,
		"status":  resp.Status,
		"symbol":  symbol,
		"target":  target,
	}), nil
}

// BasketOrderExecutor submits N independent orders; individual failures stay
// item-level and the node itself succeeds whenever dispatch ran to the end.
type BasketOrderExecutor struct {
	Orchestrator *orders.Orchestrator
}

func (e *BasketOrderExecutor) Execute(ctx context.Context, _ *execution.Context, node *models.Node) (*models.NodeResult, error) {
	rawOrders, ok := node.Config["orders"].([]any)
	if !ok || len(rawOrders) == 0 {
		return failure(node.ID, models.ErrorKindNone, errors.New("missing required field \"orders\"")), nil
	}

	reqs := make([]broker.OrderRequest, 0, len(rawOrders))

	for i, raw := range rawOrders {
		item, ok := raw.(map[string]any)
		if !ok {
			return failure(node.ID, models.ErrorKindNone, fmt.Errorf("basket item %d is not an object", i+1)), nil
		}

		req, err := orderRequestFromConfig(item)
		if err != nil {
			return failure(node.ID, models.ErrorKindNone, fmt.Errorf("basket item %d: %w", i+1, err)), nil
		}

		reqs = append(reqs, *req)
	}

	batch := e.Orchestrator.PlaceBasket(ctx, reqs)

	return successResult(node.ID, batchOutput(batch)), nil
}

// SplitOrderExecutor slices one order into sequential chunks.
type SplitOrderExecutor struct {
	Orchestrator *orders.Orchestrator
}

func (e *SplitOrderExecutor) Execute(ctx context.Context, _ *execution.Context, node *models.Node) (*models.NodeResult, error) {
	req, err := orderRequestFromConfig(node.Config)
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	splitSize, err := requiredInt(node.Config, "splitSize")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	batch, err := e.Orchestrator.PlaceSplit(ctx, *req, splitSize)
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	return successResult(node.ID, batchOutput(batch)), nil
}

// OptionsOrderExecutor resolves and submits a multi-leg option order. Legs
// share the node's expiry selector unless they carry their own override.
type OptionsOrderExecutor struct {
	Orchestrator *orders.Orchestrator
}

func (e *OptionsOrderExecutor) Execute(ctx context.Context, _ *execution.Context, node *models.Node) (*models.NodeResult, error) {
	underlying, err := requiredString(node.Config, "underlying")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	exchange, err := requiredString(node.Config, "exchange")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	sharedExpiry := optionalString(node.Config, "expiry", options.ExpiryCurrentWeek)
	product := optionalString(node.Config, "product", broker.ProductNRML)

	rawLegs, ok := node.Config["legs"].([]any)
	if !ok || len(rawLegs) == 0 {
		return failure(node.ID, models.ErrorKindNone, errors.New("missing required field \"legs\"")), nil
	}

	legs := make([]options.LegSpec, 0, len(rawLegs))

	for i, raw := range rawLegs {
		item, ok := raw.(map[string]any)
		if !ok {
			return failure(node.ID, models.ErrorKindNone, fmt.Errorf("leg %d is not an object", i+1)), nil
		}

		leg, err := legFromConfig(item, underlying, exchange, sharedExpiry)
		if err != nil {
			return failure(node.ID, models.ErrorKindNone, fmt.Errorf("leg %d: %w", i+1, err)), nil
		}

		legs = append(legs, *leg)
	}

	result, err := e.Orchestrator.PlaceMultiLeg(ctx, legs, product)
	if err != nil {
		return failure(node.ID, broker.KindOf(err), err), nil
	}

	return successResult(node.ID, map[string]any{
		"status":     string(result.Status),
		"spot_price": result.SpotPrice,
		"legs":       result.Legs,
	}), nil
}

// ClosePositionExecutor flattens the open position for an instrument with an
// opposite market order.
type ClosePositionExecutor struct {
	Client       broker.Client
	Orchestrator *orders.Orchestrator
}

func (e *ClosePositionExecutor) Execute(ctx context.Context, _ *execution.Context, node *models.Node) (*models.NodeResult, error) {
	symbol, err := requiredString(node.Config, "symbol")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	exchange, err := requiredString(node.Config, "exchange")
	if err != nil {
		return failure(node.ID, models.ErrorKindNone, err), nil
	}

	product := optionalString(node.Config, "product", broker.ProductMIS)

	current, err := e.Client.OpenPosition(ctx, broker.PositionFilter{
		Symbol:   symbol,
		Exchange: exchange,
		Product:  product,
	})
	if err != nil {
		return failure(node.ID, models.ErrorKindInvalidPosition, err), nil
	}

	if current == 0 {
		return successResult(node.ID, map[string]any{"symbol": symbol, "closed": false, "position": 0}), nil
	}

	action := broker.ActionSell

	quantity := current
	if current < 0 {
		action = broker.ActionBuy
		quantity = -current
	}

	resp, err := e.Orchestrator.Place(ctx, broker.OrderRequest{
		Symbol:    symbol,
		Exchange:  exchange,
		Action:    action,
		Quantity:  quantity,
		PriceType: broker.PriceTypeMarket,
		Product:   product,
	})
	if err != nil {
		return failure(node.ID, broker.KindOf(err), err), nil
	}

	return successResult(node.ID, map[string]any{
		"symbol":  symbol,
		"closed":  true,
		"orderid": resp.OrderID,
	}), nil
}

func orderRequestFromConfig(config map[string]any) (*broker.OrderRequest, error) {
	symbol, err := requiredString(config, "symbol")
	if err != nil {
		return nil, err
	}

	exchange, err := requiredString(config, "exchange")
	if err != nil {
		return nil, err
	}

	action, err := requiredString(config, "action")
	if err != nil {
		return nil, err
	}

	quantity, err := requiredInt(config, "quantity")
	if err != nil {
		return nil, err
	}

	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	price := 0.0
	if raw, ok := config["price"]; ok {
		price, _ = cast.ToFloat64E(raw)
	}

	return &broker.OrderRequest{
		Symbol:    symbol,
		Exchange:  exchange,
		Action:    action,
		Quantity:  quantity,
		PriceType: optionalString(config, "pricetype", broker.PriceTypeMarket),
		Product:   optionalString(config, "product", broker.ProductMIS),
		Price:     price,
	}, nil
}

func legFromConfig(config map[string]any, underlying, exchange, sharedExpiry string) (*options.LegSpec, error) {
	offset, err := requiredString(config, "offset")
	if err != nil {
		return nil, err
	}

	optionType, err := requiredString(config, "optionType")
	if err != nil {
		return nil, err
	}

	action, err := requiredString(config, "action")
	if err != nil {
		return nil, err
	}

	quantity, err := requiredInt(config, "quantity")
	if err != nil {
		return nil, err
	}

	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	return &options.LegSpec{
		Underlying: underlying,
		Exchange:   exchange,
		Expiry:     optionalString(config, "expiry", sharedExpiry),
		Offset:     offset,
		OptionType: optionType,
		Action:     action,
		Quantity:   quantity,
	}, nil
}

func batchOutput(batch *orders.BatchResult) map[string]any {
	return map[string]any{
		"status":  string(batch.Status),
		"results": batch.Items,
	}
}
