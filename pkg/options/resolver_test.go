package options

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jedilord/openalgo-flow/pkg/broker"
)

type stubQuotes struct {
	ltp float64
	err error
}

func (s *stubQuotes) Quote(_ context.Context, symbol, exchange string) (*broker.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}

	return &broker.Quote{Symbol: symbol, Exchange: exchange, LTP: s.ltp}, nil
}

func (s *stubQuotes) PlaceOrder(_ context.Context, _ broker.OrderRequest) (*broker.OrderResponse, error) {
	panic("not used")
}

func (s *stubQuotes) OpenPosition(_ context.Context, _ broker.PositionFilter) (int, error) {
	panic("not used")
}

type stubMeta struct {
	expiries []time.Time
	step     float64
	lotSize  int
}

func (s *stubMeta) Expiries(_ context.Context, _, _, _ string) ([]time.Time, error) {
	return s.expiries, nil
}

func (s *stubMeta) StrikeStep(_ context.Context, _, _ string, _ time.Time) (float64, error) {
	return s.step, nil
}

func (s *stubMeta) Instrument(_ context.Context, symbol, exchange string) (*broker.Instrument, error) {
	return &broker.Instrument{Symbol: symbol, Exchange: exchange, LotSize: s.lotSize}, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testResolver(spot float64, meta *stubMeta) *Resolver {
	r := NewResolver(&stubQuotes{ltp: spot}, meta, slog.Default())
	r.WithClock(func() time.Time { return date(2024, time.March, 25) })

	return r
}

func TestParseOffset(t *testing.T) {
	offset, err := ParseOffset("ATM")
	require.NoError(t, err)
	assert.Equal(t, Offset{Kind: OffsetATM}, offset)

	offset, err = ParseOffset("itm")
	require.NoError(t, err)
	assert.Equal(t, Offset{Kind: OffsetITM, Steps: 1}, offset)

	offset, err = ParseOffset("OTM3")
	require.NoError(t, err)
	assert.Equal(t, Offset{Kind: OffsetOTM, Steps: 3}, offset)

	_, err = ParseOffset("ATM2")
	require.Error(t, err)

	_, err = ParseOffset("ITM0")
	require.Error(t, err)

	_, err = ParseOffset("banana")
	require.Error(t, err)
}

func TestATMStrike(t *testing.T) {
	assert.InEpsilon(t, 22000.0, ATMStrike(22010, 50), 0.0001)
	assert.InEpsilon(t, 22050.0, ATMStrike(22030, 50), 0.0001)

	// Exact halfway resolves to the higher strike.
	assert.InEpsilon(t, 22050.0, ATMStrike(22025, 50), 0.0001)
}

func TestStrikeFor_CallAndPutDirections(t *testing.T) {
	// Spot 22010, step 50: ATM is 22000.
	atm := Offset{Kind: OffsetATM}
	itm2 := Offset{Kind: OffsetITM, Steps: 2}
	otm2 := Offset{Kind: OffsetOTM, Steps: 2}

	assert.InEpsilon(t, 22000.0, strikeFor(22010, 50, atm, TypeCall), 0.0001)

	// Calls: ITM below spot, OTM above.
	assert.InEpsilon(t, 21900.0, strikeFor(22010, 50, itm2, TypeCall), 0.0001)
	assert.InEpsilon(t, 22100.0, strikeFor(22010, 50, otm2, TypeCall), 0.0001)

	// Puts invert both directions.
	assert.InEpsilon(t, 22100.0, strikeFor(22010, 50, itm2, TypePut), 0.0001)
	assert.InEpsilon(t, 21900.0, strikeFor(22010, 50, otm2, TypePut), 0.0001)
}

func TestContractSymbol(t *testing.T) {
	symbol := ContractSymbol("nifty", date(2024, time.March, 28), 22500, TypeCall)
	assert.Equal(t, "NIFTY28MAR2422500CE", symbol)

	// Fractional strikes keep their decimals, whole strikes drop them.
	symbol = ContractSymbol("USDINR", date(2024, time.March, 28), 83.25, TypePut)
	assert.Equal(t, "USDINR28MAR2483.25PE", symbol)
}

func TestResolver_Resolve(t *testing.T) {
	meta := &stubMeta{
		expiries: []time.Time{
			date(2024, time.March, 28),
			date(2024, time.April, 4),
			date(2024, time.April, 25),
		},
		step:    50,
		lotSize: 75,
	}

	resolver := testResolver(22010, meta)

	leg, err := resolver.Resolve(t.Context(), LegSpec{
		Underlying: "NIFTY",
		Exchange:   "NFO",
		Expiry:     ExpiryCurrentWeek,
		Offset:     "ATM",
		OptionType: TypeCall,
	})
	require.NoError(t, err)

	assert.Equal(t, "NIFTY28MAR2422000CE", leg.Symbol)
	assert.InEpsilon(t, 22000.0, leg.Strike, 0.0001)
	assert.Equal(t, date(2024, time.March, 28), leg.Expiry)
	assert.Equal(t, 75, leg.LotSize)
}

func TestResolver_ExpirySelectors(t *testing.T) {
	meta := &stubMeta{
		expiries: []time.Time{
			date(2024, time.March, 21), // already past
			date(2024, time.March, 28),
			date(2024, time.April, 4),
			date(2024, time.April, 25),
		},
		step:    50,
		lotSize: 75,
	}

	resolver := testResolver(22010, meta)

	spec := LegSpec{
		Underlying: "NIFTY",
		Exchange:   "NFO",
		Offset:     "ATM",
		OptionType: TypeCall,
	}

	spec.Expiry = ExpiryCurrentWeek
	leg, err := resolver.Resolve(t.Context(), spec)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 28), leg.Expiry)

	spec.Expiry = ExpiryNextWeek
	leg, err = resolver.Resolve(t.Context(), spec)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.April, 4), leg.Expiry)

	// current_month is the last expiry within the nearest expiry's month.
	spec.Expiry = ExpiryCurrentMonth
	leg, err = resolver.Resolve(t.Context(), spec)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 28), leg.Expiry)

	// Explicit dates bypass the chain lookup.
	spec.Expiry = "25Apr24"
	leg, err = resolver.Resolve(t.Context(), spec)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.April, 25), leg.Expiry)

	spec.Expiry = "2024-04-04"
	leg, err = resolver.Resolve(t.Context(), spec)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.April, 4), leg.Expiry)
}

func TestResolver_NextWeekNeedsTwoExpiries(t *testing.T) {
	meta := &stubMeta{
		expiries: []time.Time{date(2024, time.March, 28)},
		step:     50,
		lotSize:  75,
	}

	resolver := testResolver(22010, meta)

	_, err := resolver.Resolve(t.Context(), LegSpec{
		Underlying: "NIFTY",
		Exchange:   "NFO",
		Expiry:     ExpiryNextWeek,
		Offset:     "ATM",
		OptionType: TypeCall,
	})

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestResolver_SpotUnavailable(t *testing.T) {
	resolver := NewResolver(&stubQuotes{ltp: 0}, &stubMeta{step: 50}, slog.Default())

	_, err := resolver.Spot(t.Context(), "NIFTY", "NSE_INDEX")

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestResolver_InvalidOptionType(t *testing.T) {
	meta := &stubMeta{
		expiries: []time.Time{date(2024, time.March, 28)},
		step:     50,
		lotSize:  75,
	}

	_, err := testResolver(22010, meta).ResolveAt(t.Context(), LegSpec{
		Underlying: "NIFTY",
		Exchange:   "NFO",
		Offset:     "ATM",
		OptionType: "XX",
	}, 22010)
	require.Error(t, err)
}
