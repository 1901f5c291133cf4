package database

import "errors"

// Domain error taxonomy. Validation errors are raised before any write;
// the not-found and already-closed errors leave all state unchanged.
var (
	// ErrInvalidUser indicates the referenced account does not exist or is
	// not flagged as a trader where a trader is required.
	ErrInvalidUser = errors.New("invalid user")

	// ErrUserNotFound indicates a balance adjustment targeted a missing account.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidQuantity indicates a non-positive or non-finite quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidPrice indicates a non-positive or non-finite price.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidRatio indicates a non-positive or non-finite copy ratio.
	ErrInvalidRatio = errors.New("invalid copy ratio")

	// ErrSelfCopy indicates a user attempted to copy themselves.
	ErrSelfCopy = errors.New("cannot copy yourself")

	// ErrTradeNotFound indicates an unknown trade id.
	ErrTradeNotFound = errors.New("trade not found")

	// ErrRelationNotFound indicates an unknown copy relation id.
	ErrRelationNotFound = errors.New("copy relation not found")

	// ErrAlreadyClosed indicates the trade or copied trade was already
	// closed; exactly one close attempt ever wins.
	ErrAlreadyClosed = errors.New("trade already closed")

	// ErrSettlementFailed indicates a single follower's settlement could not
	// be applied. It is recorded and retried, never surfaced to the caller
	// that triggered the fan-out.
	ErrSettlementFailed = errors.New("settlement failed")
)
