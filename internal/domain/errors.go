package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrLockHeld              = errors.New("lock already held")
	ErrRateLimited           = errors.New("rate limited")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrMalformedBook         = errors.New("malformed book")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrVenueConnectivity     = errors.New("venue connectivity")
	ErrConfiguration         = errors.New("invalid configuration")
	ErrInvalidNotional       = errors.New("notional must not be negative")
)

// MalformedBookError reports a level or payload that could not be turned into
// a valid book side. The affected symbol is skipped for the cycle.
type MalformedBookError struct {
	Venue  string
	Symbol string
	Reason string
	Err    error
}

func (e *MalformedBookError) Error() string {
	var b strings.Builder
	b.WriteString("malformed book")
	if e.Venue != "" {
		b.WriteString(" from " + e.Venue)
	}
	if e.Symbol != "" {
		b.WriteString(" for " + e.Symbol)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *MalformedBookError) Unwrap() error { return e.Err }

func (e *MalformedBookError) Is(target error) bool { return target == ErrMalformedBook }

// InsufficientLiquidityError is returned when a book side cannot absorb the
// requested notional. Available is the total notional the side could fill.
type InsufficientLiquidityError struct {
	Side      Side
	Target    decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("insufficient liquidity on %s side: target %s, available %s",
		e.Side, e.Target.String(), e.Available.String())
}

func (e *InsufficientLiquidityError) Is(target error) bool {
	return target == ErrInsufficientLiquidity
}

// VenueConnectivityError wraps transport failures, timeouts and rate-limit
// rejections from a venue. It aborts the current scan cycle.
type VenueConnectivityError struct {
	Venue string
	Op    string
	Err   error
}

func (e *VenueConnectivityError) Error() string {
	msg := e.Venue + ": " + e.Op + ": connectivity"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VenueConnectivityError) Unwrap() error { return e.Err }

func (e *VenueConnectivityError) Is(target error) bool { return target == ErrVenueConnectivity }

// ConfigurationError lists every problem found while validating configuration.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(e.Problems, "\n  - ")
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
