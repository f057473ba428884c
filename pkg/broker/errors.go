package broker

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jedilord/openalgo-flow/pkg/models"
)

// Sentinel errors for collaborator failures.
var (
	// ErrQuoteUnavailable indicates the quote collaborator had no price for
	// the requested instrument.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrPositionUnavailable indicates the position query failed or returned
	// an inconsistent state.
	ErrPositionUnavailable = errors.New("position unavailable")

	// ErrInstrumentNotFound indicates no listed contract matches the symbol.
	ErrInstrumentNotFound = errors.New("instrument not found")
)

// RejectionError is a brokerage-side decline of a specific request.
type RejectionError struct {
	Op      string
	Symbol  string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected for %s: %s", e.Op, e.Symbol, e.Message)
}

// IsRejection reports whether err is a brokerage rejection.
func IsRejection(err error) bool {
	var rejection *RejectionError

	return errors.As(err, &rejection)
}

// KindOf classifies a collaborator error into the run-log error taxonomy.
// Deadline and transport timeouts count as Timeout; everything else from the
// order path is a rejection.
func KindOf(err error) models.ErrorKind {
	switch {
	case err == nil:
		return models.ErrorKindNone
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrorKindTimeout
	case isNetTimeout(err):
		return models.ErrorKindTimeout
	case errors.Is(err, ErrPositionUnavailable):
		return models.ErrorKindInvalidPosition
	case errors.Is(err, ErrQuoteUnavailable), errors.Is(err, ErrInstrumentNotFound):
		return models.ErrorKindResolution
	default:
		return models.ErrorKindOrderRejected
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
