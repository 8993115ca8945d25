package repositories

import "errors"

// Ledger error taxonomy. Validation failures never leave partial mutations:
// every composite operation runs in a single transaction that is rolled back
// when one of these is returned.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyOwned      = errors.New("link already owned")
	ErrNotOwned          = errors.New("link is not owned")
	ErrNotOwner          = errors.New("caller does not own this link")
	ErrOwnershipConflict = errors.New("link owner changed concurrently")
	ErrInvalidRange      = errors.New("value out of allowed range")
	ErrAlreadyProcessed  = errors.New("already processed")
)
