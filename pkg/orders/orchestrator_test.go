package orders

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jedilord/openalgo-flow/pkg/broker"
	"github.com/jedilord/openalgo-flow/pkg/options"
)

// fakeBroker records every order and fails the sequence numbers in failSeqs.
type fakeBroker struct {
	orders    []broker.OrderRequest
	failSeqs  map[int]bool
	position  int
	posErr    error
	spot      float64
	quoteHits int
}

func (f *fakeBroker) PlaceOrder(_ context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	f.orders = append(f.orders, req)

	seq := len(f.orders)
	if f.failSeqs[seq] {
		return nil, &broker.RejectionError{Op: "placeorder", Symbol: req.Symbol, Message: "margin shortfall"}
	}

	return &broker.OrderResponse{OrderID: fmt.Sprintf("OID-%d", seq), Status: "success"}, nil
}

func (f *fakeBroker) OpenPosition(_ context.Context, _ broker.PositionFilter) (int, error) {
	if f.posErr != nil {
		return 0, f.posErr
	}

	return f.position, nil
}

func (f *fakeBroker) Quote(_ context.Context, symbol, exchange string) (*broker.Quote, error) {
	f.quoteHits++

	return &broker.Quote{Symbol: symbol, Exchange: exchange, LTP: f.spot}, nil
}

type fakeMeta struct{}

func (fakeMeta) Expiries(_ context.Context, _, _, _ string) ([]time.Time, error) {
	return []time.Time{time.Date(2024, time.March, 28, 0, 0, 0, 0, time.UTC)}, nil
}

func (fakeMeta) StrikeStep(_ context.Context, _, _ string, _ time.Time) (float64, error) {
	return 50, nil
}

func (fakeMeta) Instrument(_ context.Context, symbol, exchange string) (*broker.Instrument, error) {
	return &broker.Instrument{Symbol: symbol, Exchange: exchange, LotSize: 75}, nil
}

func testOrchestrator(client *fakeBroker) *Orchestrator {
	resolver := options.NewResolver(client, fakeMeta{}, slog.Default()).
		WithClock(func() time.Time { return time.Date(2024, time.March, 25, 0, 0, 0, 0, time.UTC) })

	return New(client, resolver, slog.Default())
}

func TestOrchestrator_PlaceSplit(t *testing.T) {
	client := &fakeBroker{}
	orchestrator := testOrchestrator(client)

	result, err := orchestrator.PlaceSplit(t.Context(), broker.OrderRequest{
		Symbol:    "RELIANCE",
		Exchange:  "NSE",
		Action:    broker.ActionBuy,
		Quantity:  105,
		PriceType: broker.PriceTypeMarket,
		Product:   broker.ProductMIS,
	}, 20)
	require.NoError(t, err)

	assert.Equal(t, BatchSuccess, result.Status)
	require.Len(t, result.Items, 6)

	quantities := make([]int, 0, len(result.Items))
	for _, item := range result.Items {
		quantities = append(quantities, item.Quantity)
	}

	assert.Equal(t, []int{20, 20, 20, 20, 20, 5}, quantities)

	// Sequence numbers ascend from 1 in dispatch order.
	for i, item := range result.Items {
		assert.Equal(t, i+1, item.Seq)
	}
}

func TestOrchestrator_PlaceSplit_Validation(t *testing.T) {
	orchestrator := testOrchestrator(&fakeBroker{})

	_, err := orchestrator.PlaceSplit(t.Context(), broker.OrderRequest{Quantity: 100}, 0)
	require.Error(t, err)

	_, err = orchestrator.PlaceSplit(t.Context(), broker.OrderRequest{Quantity: 0}, 10)
	require.Error(t, err)
}

func TestOrchestrator_PlaceSplit_PartialFailure(t *testing.T) {
	client := &fakeBroker{failSeqs: map[int]bool{2: true}}
	orchestrator := testOrchestrator(client)

	result, err := orchestrator.PlaceSplit(t.Context(), broker.OrderRequest{
		Symbol:   "RELIANCE",
		Exchange: "NSE",
		Action:   broker.ActionBuy,
		Quantity: 60,
	}, 20)
	require.NoError(t, err)

	assert.Equal(t, BatchPartial, result.Status)
	require.Len(t, result.Items, 3)

	// The failed chunk did not stop the rest.
	assert.Equal(t, "failure", result.Items[1].Status)
	assert.NotEmpty(t, result.Items[1].Error)
	assert.Equal(t, "success", result.Items[2].Status)
	assert.Len(t, client.orders, 3)
}

func TestOrchestrator_PlaceBasket_PartialKeepsInputOrder(t *testing.T) {
	client := &fakeBroker{failSeqs: map[int]bool{2: true}}
	orchestrator := testOrchestrator(client)

	result := orchestrator.PlaceBasket(t.Context(), []broker.OrderRequest{
		{Symbol: "A", Action: broker.ActionBuy, Quantity: 1},
		{Symbol: "B", Action: broker.ActionBuy, Quantity: 2},
		{Symbol: "C", Action: broker.ActionSell, Quantity: 3},
	})

	assert.Equal(t, BatchPartial, result.Status)
	require.Len(t, result.Items, 3)

	assert.Equal(t, "A", result.Items[0].Symbol)
	assert.Equal(t, "B", result.Items[1].Symbol)
	assert.Equal(t, "C", result.Items[2].Symbol)

	assert.Equal(t, "success", result.Items[0].Status)
	assert.Equal(t, "failure", result.Items[1].Status)
	assert.Equal(t, "success", result.Items[2].Status)
}

func TestOrchestrator_PlaceBasket_AllFailed(t *testing.T) {
	client := &fakeBroker{failSeqs: map[int]bool{1: true, 2: true}}
	orchestrator := testOrchestrator(client)

	result := orchestrator.PlaceBasket(t.Context(), []broker.OrderRequest{
		{Symbol: "A", Quantity: 1},
		{Symbol: "B", Quantity: 2},
	})

	assert.Equal(t, BatchFailed, result.Status)
}

func TestOrchestrator_PlaceSmart(t *testing.T) {
	client := &fakeBroker{position: 50}
	orchestrator := testOrchestrator(client)

	// Target above current position buys the delta.
	resp, err := orchestrator.PlaceSmart(t.Context(), SmartOrderRequest{
		Symbol:   "RELIANCE",
		Exchange: "NSE",
		Product:  broker.ProductMIS,
		Target:   80,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.OrderID)

	require.Len(t, client.orders, 1)
	assert.Equal(t, broker.ActionBuy, client.orders[0].Action)
	assert.Equal(t, 30, client.orders[0].Quantity)

	// Target below current position sells the delta.
	_, err = orchestrator.PlaceSmart(t.Context(), SmartOrderRequest{
		Symbol:   "RELIANCE",
		Exchange: "NSE",
		Product:  broker.ProductMIS,
		Target:   -20,
	})
	require.NoError(t, err)

	require.Len(t, client.orders, 2)
	assert.Equal(t, broker.ActionSell, client.orders[1].Action)
	assert.Equal(t, 70, client.orders[1].Quantity)
}

func TestOrchestrator_PlaceSmart_AtTargetIsNoOp(t *testing.T) {
	client := &fakeBroker{position: 80}
	orchestrator := testOrchestrator(client)

	resp, err := orchestrator.PlaceSmart(t.Context(), SmartOrderRequest{
		Symbol: "RELIANCE",
		Target: 80,
	})
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Empty(t, client.orders)
}

func TestOrchestrator_PlaceSmart_PositionUnavailable(t *testing.T) {
	client := &fakeBroker{posErr: fmt.Errorf("position book offline")}
	orchestrator := testOrchestrator(client)

	_, err := orchestrator.PlaceSmart(t.Context(), SmartOrderRequest{Symbol: "RELIANCE"})
	require.ErrorIs(t, err, broker.ErrPositionUnavailable)
}

func TestOrchestrator_PlaceMultiLeg_SingleSpotSnapshot(t *testing.T) {
	client := &fakeBroker{spot: 22010}
	orchestrator := testOrchestrator(client)

	legs := []options.LegSpec{
		{Underlying: "NIFTY", Exchange: "NFO", Offset: "ATM", OptionType: options.TypeCall, Action: broker.ActionSell, Quantity: 1},
		{Underlying: "NIFTY", Exchange: "NFO", Offset: "ATM", OptionType: options.TypePut, Action: broker.ActionSell, Quantity: 1},
		{Underlying: "NIFTY", Exchange: "NFO", Offset: "OTM2", OptionType: options.TypeCall, Action: broker.ActionBuy, Quantity: 1},
	}

	result, err := orchestrator.PlaceMultiLeg(t.Context(), legs, broker.ProductNRML)
	require.NoError(t, err)

	assert.Equal(t, BatchSuccess, result.Status)
	assert.InEpsilon(t, 22010.0, result.SpotPrice, 0.0001)

	// One quote for the whole batch, not one per leg.
	assert.Equal(t, 1, client.quoteHits)

	require.Len(t, result.Legs, 3)
	for i, leg := range result.Legs {
		assert.Equal(t, i+1, leg.Seq)
	}

	// Quantity scales by lot size, and each leg resolved its own strike.
	require.Len(t, client.orders, 3)
	assert.Equal(t, 75, client.orders[0].Quantity)
	assert.Equal(t, "NIFTY28MAR2422000CE", client.orders[0].Symbol)
	assert.Equal(t, "NIFTY28MAR2422000PE", client.orders[1].Symbol)
	assert.Equal(t, "NIFTY28MAR2422100CE", client.orders[2].Symbol)
}

func TestOrchestrator_PlaceMultiLeg_LegFailureIsolated(t *testing.T) {
	client := &fakeBroker{spot: 22010}
	orchestrator := testOrchestrator(client)

	legs := []options.LegSpec{
		{Underlying: "NIFTY", Exchange: "NFO", Offset: "ATM", OptionType: options.TypeCall, Action: broker.ActionSell, Quantity: 1},
		{Underlying: "NIFTY", Exchange: "NFO", Offset: "nope", OptionType: options.TypePut, Action: broker.ActionSell, Quantity: 1},
	}

	result, err := orchestrator.PlaceMultiLeg(t.Context(), legs, broker.ProductNRML)
	require.NoError(t, err)

	assert.Equal(t, BatchPartial, result.Status)
	assert.Equal(t, "failure", result.Legs[1].Status)
	assert.Equal(t, "resolution_error", string(result.Legs[1].ErrorKind))
	assert.Len(t, client.orders, 1)
}

func TestOrchestrator_PlaceMultiLeg_Empty(t *testing.T) {
	orchestrator := testOrchestrator(&fakeBroker{})

	_, err := orchestrator.PlaceMultiLeg(t.Context(), nil, broker.ProductNRML)
	require.Error(t, err)
}
