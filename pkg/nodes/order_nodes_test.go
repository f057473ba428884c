package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jedilord/openalgo-flow/pkg/broker"
	"github.com/jedilord/openalgo-flow/pkg/models"
	"github.com/jedilord/openalgo-flow/pkg/options"
	"github.com/jedilord/openalgo-flow/pkg/orders"
)

// brokerStub records orders and optionally fails by sequence number.
type brokerStub struct {
	orders   []broker.OrderRequest
	failSeqs map[int]bool
	position int
	posErr   error
	spot     float64
}

func (s *brokerStub) PlaceOrder(_ context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	s.orders = append(s.orders, req)

	seq := len(s.orders)
	if s.failSeqs[seq] {
		return nil, &broker.RejectionError{Op: "placeorder", Symbol: req.Symbol, Message: "rejected"}
	}

	return &broker.OrderResponse{OrderID: fmt.Sprintf("OID-%d", seq), Status: "success"}, nil
}

func (s *brokerStub) OpenPosition(_ context.Context, _ broker.PositionFilter) (int, error) {
	if s.posErr != nil {
		return 0, s.posErr
	}

	return s.position, nil
}

func (s *brokerStub) Quote(_ context.Context, symbol, exchange string) (*broker.Quote, error) {
	return &broker.Quote{Symbol: symbol, Exchange: exchange, LTP: s.spot}, nil
}

type metaStub struct{}

func (metaStub) Expiries(_ context.Context, _, _, _ string) ([]time.Time, error) {
	return []time.Time{time.Date(2024, time.March, 28, 0, 0, 0, 0, time.UTC)}, nil
}

func (metaStub) StrikeStep(_ context.Context, _, _ string, _ time.Time) (float64, error) {
	return 50, nil
}

func (metaStub) Instrument(_ context.Context, symbol, exchange string) (*broker.Instrument, error) {
	return &broker.Instrument{Symbol: symbol, Exchange: exchange, LotSize: 75}, nil
}

func testOrchestrator(client *brokerStub) *orders.Orchestrator {
	resolver := options.NewResolver(client, metaStub{}, slog.Default()).
		WithClock(func() time.Time { return time.Date(2024, time.March, 25, 0, 0, 0, 0, time.UTC) })

	return orders.New(client, resolver, slog.Default())
}

func TestPlaceOrderExecutor(t *testing.T) {
	client := &brokerStub{}
	executor := &PlaceOrderExecutor{Orchestrator: testOrchestrator(client)}

	node := &models.Node{
		ID:   "o",
		Type: models.NodeTypePlaceOrder,
		Config: map[string]any{
			"symbol":   "RELIANCE",
			"exchange": "NSE",
			"action":   "BUY",
			"quantity": 10,
		},
	}

	result, err := executor.Execute(t.Context(), testRun(t), node)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusSuccess, result.Status)

	require.Len(t, client.orders, 1)
	assert.Equal(t, broker.PriceTypeMarket, client.orders[0].PriceType)
	assert.Equal(t, broker.ProductMIS, client.orders[0].Product)
}

func TestPlaceOrderExecutor_TemplatedQuantity(t *testing.T) {
	// The engine interpolates templates to strings; the executor coerces.
	client := &brokerStub{}
	executor := &PlaceOrderExecutor{Orchestrator: testOrchestrator(client)}

	node := &models.Node{
		ID:   "o",
		Type: models.NodeTypePlaceOrder,
		Config: map[string]any{
			"symbol":   "RELIANCE",
			"exchange": "NSE",
			"action":   "SELL",
			"quantity": "25",
		},
	}

	result, err := executor.Execute(t.Context(), testRun(t), node)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusSuccess, result.Status)
	assert.Equal(t, 25, client.orders[0].Quantity)
}

func TestPlaceOrderExecutor_Rejection(t *testing.T) {
	client := &brokerStub{failSeqs: map[int]bool{1: true}}
	executor := &PlaceOrderExecutor{Orchestrator: testOrchestrator(client)}

	node := &models.Node{
		ID:   "o",
		Type: models.NodeTypePlaceOrder,
		Config: map[string]any{
			"symbol":   "RELIANCE",
			"exchange": "NSE",
			"action":   "BUY",
			"quantity": 10,
		},
	}

	result, err := executor.Execute(t.Context(), testRun(t), node)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusFailure, result.Status)
	assert.Equal(t, models.ErrorKindOrderRejected, result.ErrorKind)
}

func TestSmartOrderExecutor_PositionUnavailable(t *testing.T) {
	client := &brokerStub{posErr: fmt.Errorf("position book offline")}
	executor := &SmartOrderExecutor{Orchestrator: testOrchestrator(client)}

	node := &models.Node{
		ID:   "s",
		Type: models.NodeTypeSmartOrder,
		Config: map[string]any{
			"symbol":   "RELIANCE",
			"exchange": "NSE",
			"target":   100,
		},
	}

	result, err := executor.Execute(t.Context(), testRun(t), node)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusFailure, result.Status)
	assert.Equal(t, models.ErrorKindInvalidPosition, result.ErrorKind)
}

func TestBasketOrderExecutor_NodeSucceedsOnPartial(t *testing.T) {
	client := &brokerStub{failSeqs: map[int]bool{2: true}}
	executor := &BasketOrderExecutor{Orchestrator: testOrchestrator(client)}

	node := &models.Node{
		ID:   "b",
		Type: models.NodeTypeBasketOrder,
		Config: map[string]any{
			"orders": []any{
				map[string]any{"symbol": "A", "exchange": "NSE", "action": "BUY", "quantity": 1},
				map[string]any{"symbol": "B", "exchange": "NSE", "action": "BUY", "quantity": 2},
			},
		},
	}

	result, err := executor.Execute(t.Context(), testRun(t), node)
	require.NoError(t, err)

	// Item failures stay in the output; the node itself ran to completion.
	assert.Equal(t, models.NodeStatusSuccess, result.Status)

	output, ok := result.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "partial", output["status"])
}

func TestBasketOrderExecutor_MissingOrders(t *testing.T) {
	executor := &BasketOrderExecutor{Orchestrator: testOrchestrator(&brokerStub{})}

	node := &models.Node{ID: "b", Type: models.NodeTypeBasketOrder, Config: map[string]any{}}

	result, err := executor.Execute(t.Context(), testRun(t), node)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusFailure, result.Status)
}

func TestSplitOrderExecutor(t *testing.T) {
	client := &brokerStub{}
	executor := &SplitOrderExecutor{Orchestrator: testOrchestrator(client)}

	node := &models.Node{
		ID:   "sp",
		Type: models.NodeTypeSplitOrder,
		Config: map[string]any{
			"symbol":    "RELIANCE",
			"exchange":  "NSE",
			"action":    "BUY",
			"quantity":  50,
			"splitSize": 20,
		},
	}

	result, err := executor.Execute(t.Context(), testRun(t), node)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusSuccess, result.Status)
	assert.Len(t, client.orders, 3)
	assert.Equal(t, 10, client.orders[2].Quantity)
}

func TestOptionsOrderExecutor(t *testing.T) {
	client := &brokerStub{spot: 22010}
	executor := &OptionsOrderExecutor{Orchestrator: testOrchestrator(client)}

	node := &models.Node{
		ID:   "opt",
		Type: models.NodeTypeOptionsOrder,
		Config: map[string]any{
			"underlying": "NIFTY",
			"exchange":   "NFO",
			"legs": []any{
				map[string]any{"offset": "ATM", "optionType": "CE", "action": "SELL", "quantity": 1},
				map[string]any{"offset": "ATM", "optionType": "PE", "action": "SELL", "quantity": 1},
			},
		},
	}

	result, err := executor.Execute(t.Context(), testRun(t), node)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusSuccess, result.Status)

	require.Len(t, client.orders, 2)
	assert.Equal(t, "NIFTY28MAR2422000CE", client.orders[0].Symbol)
	assert.Equal(t, "NIFTY28MAR2422000PE", client.orders[1].Symbol)
	assert.Equal(t, broker.ProductNRML, client.orders[0].Product)
	assert.Equal(t, 75, client.orders[0].Quantity)
}

func TestClosePositionExecutor(t *testing.T) {
	client := &brokerStub{position: -30}
	executor := &ClosePositionExecutor{Client: client, Orchestrator: testOrchestrator(client)}

	node := &models.Node{
		ID:   "cp",
		Type: models.NodeTypeClosePosition,
		Config: map[string]any{
			"symbol":   "RELIANCE",
			"exchange": "NSE",
		},
	}

	result, err := executor.Execute(t.Context(), testRun(t), node)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusSuccess, result.Status)

	// A short position closes with a buy of the absolute size.
	require.Len(t, client.orders, 1)
	assert.Equal(t, broker.ActionBuy, client.orders[0].Action)
	assert.Equal(t, 30, client.orders[0].Quantity)
}

func TestClosePositionExecutor_FlatPosition(t *testing.T) {
	client := &brokerStub{position: 0}
	executor := &ClosePositionExecutor{Client: client, Orchestrator: testOrchestrator(client)}

	node := &models.Node{
		ID:   "cp",
		Type: models.NodeTypeClosePosition,
		Config: map[string]any{
			"symbol":   "RELIANCE",
			"exchange": "NSE",
		},
	}

	result, err := executor.Execute(t.Context(), testRun(t), node)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusSuccess, result.Status)
	assert.Empty(t, client.orders)

	output, ok := result.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, output["closed"])
}
