package domain

import "errors"

// Rejection errors. A rejected trade request never writes to the ledger.
// Callers wrap these with detail and classify them with errors.Is.
var (
	ErrInvalidRequest     = errors.New("invalid trade request")
	ErrPortfolioNotFound  = errors.New("portfolio not found")
	ErrShareNotRegistered = errors.New("share not registered")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrPriceUnavailable   = errors.New("price unavailable")
)

// Reason is the stable, machine-readable code of a rejection.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonInvalidRequest     Reason = "invalid_request"
	ReasonPortfolioNotFound  Reason = "portfolio_not_found"
	ReasonShareNotRegistered Reason = "share_not_registered"
	ReasonInsufficientShares Reason = "insufficient_shares"
	ReasonPriceUnavailable   Reason = "price_unavailable"
)

var reasons = []struct {
	err    error
	reason Reason
}{
	{ErrInvalidRequest, ReasonInvalidRequest},
	{ErrPortfolioNotFound, ReasonPortfolioNotFound},
	{ErrShareNotRegistered, ReasonShareNotRegistered},
	{ErrInsufficientShares, ReasonInsufficientShares},
	{ErrPriceUnavailable, ReasonPriceUnavailable},
}

// ReasonOf returns the rejection reason carried by err, or ReasonNone when
// err is nil or is not a rejection (for example a store failure).
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonNone
}

// IsRejection reports whether err is a validation outcome rather than an
// infrastructure fault.
func IsRejection(err error) bool {
	return ReasonOf(err) != ReasonNone
}
