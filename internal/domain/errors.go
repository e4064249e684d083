package domain

import "github.com/cockroachdb/errors"

// Protocol rejections. The engine returns these before anything reaches settlement.
var (
	ErrInvalidAction       = errors.New("invalid action")
	ErrTicketAlreadyUsed   = errors.New("ticket already used")
	ErrNotListed           = errors.New("ticket not listed")
	ErrAlreadyListed       = errors.New("ticket already listed")
	ErrNotForPrimarySale   = errors.New("ticket not for primary sale")
	ErrPriceExceedsCeiling = errors.New("price exceeds ceiling")
	ErrUnauthorized        = errors.New("unauthorized")
)

// Settlement outcomes reported by a ledger adapter.
var (
	ErrSettlementConflict = errors.New("settlement conflict")
	ErrSettlementFailure  = errors.New("settlement failure")
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrSoldOut      = errors.New("event sold out")
)

// Code returns a stable machine-readable name for err's taxonomy entry.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAction):
		return "InvalidAction"
	case errors.Is(err, ErrTicketAlreadyUsed):
		return "TicketAlreadyUsed"
	case errors.Is(err, ErrNotListed):
		return "NotListed"
	case errors.Is(err, ErrAlreadyListed):
		return "AlreadyListed"
	case errors.Is(err, ErrNotForPrimarySale):
		return "NotForPrimarySale"
	case errors.Is(err, ErrPriceExceedsCeiling):
		return "PriceExceedsCeiling"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrSettlementConflict):
		return "SettlementConflict"
	case errors.Is(err, ErrSettlementFailure):
		return "SettlementFailure"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrSoldOut):
		return "SoldOut"
	case errors.Is(err, ErrConflict):
		return "Conflict"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	default:
		return "Internal"
	}
}

// IsRejection reports whether err is a protocol rule violation detected by the engine.
func IsRejection(err error) bool {
	return errors.IsAny(err, ErrInvalidAction, ErrTicketAlreadyUsed, ErrNotListed,
		ErrAlreadyListed, ErrNotForPrimarySale, ErrPriceExceedsCeiling, ErrUnauthorized)
}
