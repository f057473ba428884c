// Package options resolves option leg specifications into tradable contracts:
// relative expiry selection, ATM/ITM/OTM strike arithmetic, and the exchange
// symbol grammar.
package options

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jedilord/openalgo-flow/pkg/broker"
)

// Option types.
const (
	TypeCall = "CE"
	TypePut  = "PE"
)

// Relative expiry selectors. An explicit DDMMMYY or YYYY-MM-DD date is also
// accepted wherever a selector is.
const (
	ExpiryCurrentWeek  = "current_week"
	ExpiryNextWeek     = "next_week"
	ExpiryCurrentMonth = "current_month"
)

// OffsetKind distinguishes the three moneyness offsets.
type OffsetKind string

const (
	OffsetATM OffsetKind = "ATM"
	OffsetITM OffsetKind = "ITM"
	OffsetOTM OffsetKind = "OTM"
)

// Offset is a parsed moneyness token: ATM, ITM<k> or OTM<k>.
type Offset struct {
	Kind  OffsetKind
	Steps int
}

var offsetRe = regexp.MustCompile(`^(ATM|ITM|OTM)(\d*)$`)

// ParseOffset parses an offset token such as "ATM", "ITM2" or "OTM1".
// ITM/OTM without a count mean one step.
func ParseOffset(token string) (Offset, error) {
	m := offsetRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(token)))
	if m == nil {
		return Offset{}, &ResolutionError{Reason: fmt.Sprintf("invalid offset token %q", token)}
	}

	kind := OffsetKind(m[1])
	if kind == OffsetATM {
		if m[2] != "" {
			return Offset{}, &ResolutionError{Reason: fmt.Sprintf("ATM takes no step count, got %q", token)}
		}

		return Offset{Kind: OffsetATM}, nil
	}

	steps := 1
	if m[2] != "" {
		steps, _ = strconv.Atoi(m[2])
	}

	if steps < 1 {
		return Offset{}, &ResolutionError{Reason: fmt.Sprintf("offset %q needs at least one step", token)}
	}

	return Offset{Kind: kind, Steps: steps}, nil
}

// LegSpec describes one option leg before resolution.
type LegSpec struct {
	Underlying string
	Exchange   string
	Expiry     string // selector or explicit date
	Offset     string // ATM / ITM<k> / OTM<k>
	OptionType string // CE / PE
	Action     string // BUY / SELL
	Quantity   int    // in lots
}

// ResolvedLeg is the tradable contract a LegSpec resolved to. Resolution is
// deterministic for a given spot price and chain snapshot, but not across
// time: spot moves.
type ResolvedLeg struct {
	Symbol     string
	Exchange   string
	Underlying string
	Expiry     time.Time
	Strike     float64
	OptionType string
	LotSize    int
	TickSize   float64
	FreezeQty  int
}

// ResolutionError means the instrument, strike, or expiry could not be
// determined.
type ResolutionError struct {
	Underlying string
	Reason     string
}

func (e *ResolutionError) Error() string {
	if e.Underlying == "" {
		return "option resolution failed: " + e.Reason
	}

	return fmt.Sprintf("option resolution failed for %s: %s", e.Underlying, e.Reason)
}

// Resolver computes contracts against live spot prices and the instrument
// metadata collaborator.
type Resolver struct {
	quotes broker.Client
	meta   broker.InstrumentMetadata
	logger *slog.Logger
	now    func() time.Time
}

// NewResolver creates a resolver on top of the quote and metadata collaborators.
func NewResolver(quotes broker.Client, meta broker.InstrumentMetadata, logger *slog.Logger) *Resolver {
	return &Resolver{
		quotes: quotes,
		meta:   meta,
		logger: logger.With("module", "option_resolver"),
		now:    time.Now,
	}
}

// WithClock overrides the time source used for relative expiry selection.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now

	return r
}

// Spot returns the current spot price for an underlying. Multi-leg callers
// read it once and pass it to ResolveAt so every leg is quoted against the
// same snapshot.
func (r *Resolver) Spot(ctx context.Context, underlying, exchange string) (float64, error) {
	quote, err := r.quotes.Quote(ctx, underlying, exchange)
	if err != nil {
		return 0, &ResolutionError{Underlying: underlying, Reason: fmt.Sprintf("spot price unavailable: %v", err)}
	}

	if quote.LTP <= 0 {
		return 0, &ResolutionError{Underlying: underlying, Reason: "spot price unavailable: zero LTP"}
	}

	return quote.LTP, nil
}

// Resolve fetches the spot price and resolves a single leg.
func (r *Resolver) Resolve(ctx context.Context, spec LegSpec) (*ResolvedLeg, error) {
	spot, err := r.Spot(ctx, spec.Underlying, spec.Exchange)
	if err != nil {
		return nil, err
	}

	return r.ResolveAt(ctx, spec, spot)
}

// ResolveAt resolves a leg against a caller-supplied spot price snapshot.
func (r *Resolver) ResolveAt(ctx context.Context, spec LegSpec, spot float64) (*ResolvedLeg, error) {
	optionType := strings.ToUpper(spec.OptionType)
	if optionType != TypeCall && optionType != TypePut {
		return nil, &ResolutionError{Underlying: spec.Underlying, Reason: fmt.Sprintf("invalid option type %q", spec.OptionType)}
	}

	offset, err := ParseOffset(spec.Offset)
	if err != nil {
		return nil, err
	}

	expiry, err := r.selectExpiry(ctx, spec)
	if err != nil {
		return nil, err
	}

	step, err := r.meta.StrikeStep(ctx, spec.Underlying, spec.Exchange, expiry)
	if err != nil || step <= 0 {
		return nil, &ResolutionError{Underlying: spec.Underlying, Reason: fmt.Sprintf("strike step unavailable for %s", expiry.Format("02Jan06"))}
	}

	strike := strikeFor(spot, step, offset, optionType)
	symbol := ContractSymbol(spec.Underlying, expiry, strike, optionType)

	instrument, err := r.meta.Instrument(ctx, symbol, spec.Exchange)
	if err != nil {
		return nil, &ResolutionError{Underlying: spec.Underlying, Reason: fmt.Sprintf("no listed instrument for %s", symbol)}
	}

	r.logger.Debug("Resolved option leg",
		"underlying", spec.Underlying,
		"offset", spec.Offset,
		"spot", spot,
		"strike", strike,
		"symbol", symbol,
	)

	return &ResolvedLeg{
		Symbol:     symbol,
		Exchange:   spec.Exchange,
		Underlying: spec.Underlying,
		Expiry:     expiry,
		Strike:     strike,
		OptionType: optionType,
		LotSize:    instrument.LotSize,
		TickSize:   instrument.TickSize,
		FreezeQty:  instrument.FreezeQty,
	}, nil
}

// ATMStrike returns the multiple of step nearest to spot, resolving exact
// halfway ties toward the higher strike.
func ATMStrike(spot, step float64) float64 {
	return math.Floor(spot/step+0.5) * step
}

// strikeFor walks the offset from ATM in the direction that increases
// intrinsic value for the option type: calls go down for ITM and up for OTM,
// puts invert both.
func strikeFor(spot, step float64, offset Offset, optionType string) float64 {
	atm := ATMStrike(spot, step)

	if offset.Kind == OffsetATM {
		return atm
	}

	direction := 1.0
	if (optionType == TypeCall) == (offset.Kind == OffsetITM) {
		direction = -1.0
	}

	return atm + direction*float64(offset.Steps)*step
}

// ContractSymbol builds the canonical option symbol:
// {UNDERLYING}{DDMMMYY}{STRIKE}{CE|PE}, e.g. NIFTY28MAR2422500CE.
func ContractSymbol(underlying string, expiry time.Time, strike float64, optionType string) string {
	return strings.ToUpper(underlying) +
		strings.ToUpper(expiry.Format("02Jan06")) +
		strconv.FormatFloat(strike, 'f', -1, 64) +
		optionType
}

func (r *Resolver) selectExpiry(ctx context.Context, spec LegSpec) (time.Time, error) {
	selector := strings.TrimSpace(spec.Expiry)
	if selector == "" {
		selector = ExpiryCurrentWeek
	}

	if t, ok := parseExplicitExpiry(selector); ok {
		return t, nil
	}

	expiries, err := r.meta.Expiries(ctx, spec.Underlying, spec.Exchange, spec.OptionType)
	if err != nil || len(expiries) == 0 {
		return time.Time{}, &ResolutionError{Underlying: spec.Underlying, Reason: "no active expiries"}
	}

	today := r.now().Truncate(24 * time.Hour)

	var active []time.Time

	for _, e := range expiries {
		if !e.Before(today) {
			active = append(active, e)
		}
	}

	if len(active) == 0 {
		return time.Time{}, &ResolutionError{Underlying: spec.Underlying, Reason: fmt.Sprintf("no active expiry matches %q", selector)}
	}

	switch selector {
	case ExpiryCurrentWeek:
		return active[0], nil
	case ExpiryNextWeek:
		if len(active) < 2 {
			return time.Time{}, &ResolutionError{Underlying: spec.Underlying, Reason: "no expiry beyond the current week"}
		}

		return active[1], nil
	case ExpiryCurrentMonth:
		// Last expiry within the nearest expiry's month.
		month, year := active[0].Month(), active[0].Year()
		last := active[0]

		for _, e := range active {
			if e.Month() == month && e.Year() == year {
				last = e
			}
		}

		return last, nil
	default:
		return time.Time{}, &ResolutionError{Underlying: spec.Underlying, Reason: fmt.Sprintf("unknown expiry selector %q", selector)}
	}
}

func parseExplicitExpiry(s string) (time.Time, bool) {
	for _, layout := range []string{"02Jan06", "2006-01-02"} {
		if t, err := time.Parse(layout, normalizeForLayout(s, layout)); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// normalizeForLayout title-cases the month portion of DDMMMYY input so both
// 28MAR24 and 28Mar24 parse.
func normalizeForLayout(s, layout string) string {
	if layout != "02Jan06" || len(s) != 7 {
		return s
	}

	return s[:2] + strings.ToUpper(s[2:3]) + strings.ToLower(s[3:5]) + s[5:]
}
