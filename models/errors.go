package models

import "errors"

// Engine failure kinds. All are surfaced to callers as typed errors and
// matched with errors.Is. None are swallowed, and derived fields are never
// silently zeroed or clamped to hide them.
var (
	// ErrInvalidQuantity: zero quantity, empty unit, or unit mismatch on a ledger entry.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrUnknownIngredient: ingredient id does not resolve for the business.
	ErrUnknownIngredient = errors.New("unknown ingredient")

	// ErrInsufficientStock: a consumption would exceed available stock / active lot remainders.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrUndefined: a derived value has no defined result (division-by-zero guard).
	ErrUndefined = errors.New("undefined result")

	// ErrStaleCostData: no purchase/lot data available to cost an ingredient.
	// The previous cost_per_unit is retained and the ingredient flagged for review.
	ErrStaleCostData = errors.New("stale cost data")

	// ErrDuplicatePosting: the client idempotency key was already committed.
	ErrDuplicatePosting = errors.New("duplicate posting")
)
