package execution

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) *Context {
	t.Helper()

	return NewContext("exec-test", "wf-test", slog.Default())
}

func TestContext_GetByPath(t *testing.T) {
	ctx := testContext(t)
	ctx.Set("quote", map[string]any{
		"ltp": 101.5,
		"depth": map[string]any{
			"bid": 101.4,
		},
	})

	v, ok := ctx.GetByPath("quote.ltp")
	require.True(t, ok)
	assert.InEpsilon(t, 101.5, v, 0.0001)

	v, ok = ctx.GetByPath("quote.depth.bid")
	require.True(t, ok)
	assert.InEpsilon(t, 101.4, v, 0.0001)

	_, ok = ctx.GetByPath("quote.depth.ask")
	assert.False(t, ok)

	_, ok = ctx.GetByPath("missing.path")
	assert.False(t, ok)
}

func TestContext_GetByPath_StoredNil(t *testing.T) {
	ctx := testContext(t)
	ctx.Set("maybe", nil)

	v, ok := ctx.GetByPath("maybe")
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestContext_Interpolate(t *testing.T) {
	ctx := testContext(t)
	ctx.Set("symbol", "NIFTY")
	ctx.Set("qty", 75)
	ctx.Set("quote", map[string]any{"ltp": 22010.0})

	out := ctx.Interpolate("Buy {{qty}} {{symbol}} at {{quote.ltp}}")
	assert.Equal(t, "Buy 75 NIFTY at 22010", out)
}

func TestContext_Interpolate_UnresolvedStaysVerbatim(t *testing.T) {
	ctx := testContext(t)
	ctx.Set("symbol", "NIFTY")

	out := ctx.Interpolate("{{symbol}} touched {{quote.ltp}}")
	assert.Equal(t, "NIFTY touched {{quote.ltp}}", out)
	assert.True(t, ctx.HasUnresolved("{{quote.ltp}}"))
	assert.False(t, ctx.HasUnresolved("{{symbol}}"))
}

func TestContext_Interpolate_WhitespaceAndJSON(t *testing.T) {
	ctx := testContext(t)
	ctx.Set("legs", []any{"CE", "PE"})

	assert.Equal(t, `["CE","PE"]`, ctx.Interpolate("{{ legs }}"))
}

func TestContext_SystemVariables(t *testing.T) {
	ctx := testContext(t)
	fixed := time.Date(2025, 3, 7, 9, 15, 30, 0, time.UTC)
	ctx.WithClock(func() time.Time { return fixed })

	assert.Equal(t, "2025-03-07", ctx.Interpolate("{{date}}"))
	assert.Equal(t, "09:15:30", ctx.Interpolate("{{time}}"))
	assert.Equal(t, "2025-03-07 09:15:30", ctx.Interpolate("{{datetime}}"))

	ts, ok := ctx.Get("timestamp")
	require.True(t, ok)
	assert.Equal(t, fixed.Unix(), ts)
}

func TestContext_SystemVariablesNotShadowed(t *testing.T) {
	ctx := testContext(t)
	fixed := time.Date(2025, 3, 7, 9, 15, 30, 0, time.UTC)
	ctx.WithClock(func() time.Time { return fixed })

	// A stored variable named like a system variable loses: system values
	// are computed on read.
	ctx.Set("date", "not-a-date")
	assert.Equal(t, "2025-03-07", ctx.Interpolate("{{date}}"))
}

func TestContext_NumericMutators(t *testing.T) {
	ctx := testContext(t)

	ctx.Set("pnl", 100)
	ctx.Add("pnl", 50)
	v, _ := ctx.Get("pnl")
	assert.InEpsilon(t, 150.0, v, 0.0001)

	ctx.Subtract("pnl", 25)
	v, _ = ctx.Get("pnl")
	assert.InEpsilon(t, 125.0, v, 0.0001)

	ctx.Multiply("pnl", 2)
	v, _ = ctx.Get("pnl")
	assert.InEpsilon(t, 250.0, v, 0.0001)

	ctx.Divide("pnl", 5)
	v, _ = ctx.Get("pnl")
	assert.InEpsilon(t, 50.0, v, 0.0001)

	ctx.Increment("count")
	ctx.Increment("count")
	ctx.Decrement("count")
	v, _ = ctx.Get("count")
	assert.InEpsilon(t, 1.0, v, 0.0001)
}

func TestContext_DivideByZeroIsNoOp(t *testing.T) {
	ctx := testContext(t)
	ctx.Set("pnl", 100)

	ctx.Divide("pnl", 0)

	v, ok := ctx.Get("pnl")
	require.True(t, ok)
	assert.Equal(t, 100, v)
}

func TestContext_AddCoercesNonNumericToZero(t *testing.T) {
	ctx := testContext(t)
	ctx.Set("note", "hello")

	ctx.Add("note", 5)

	v, _ := ctx.Get("note")
	assert.InEpsilon(t, 5.0, v, 0.0001)
}

func TestContext_Append(t *testing.T) {
	ctx := testContext(t)

	ctx.Append("audit", "a")
	ctx.Append("audit", "b")

	v, _ := ctx.Get("audit")
	assert.Equal(t, "ab", v)
}

func TestContext_SnapshotIsACopy(t *testing.T) {
	ctx := testContext(t)
	ctx.Set("x", 1)

	snap := ctx.Snapshot()
	snap["x"] = 2

	v, _ := ctx.Get("x")
	assert.Equal(t, 1, v)
}
