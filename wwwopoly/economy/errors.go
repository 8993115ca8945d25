package economy

import (
	"errors"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/repositories"
)

// Ledger-level failures surface unchanged so callers can match them with
// errors.Is regardless of which layer rejected the operation.
var (
	ErrInsufficientFunds = repositories.ErrInsufficientFunds
	ErrNotFound          = repositories.ErrNotFound
	ErrAlreadyOwned      = repositories.ErrAlreadyOwned
	ErrNotOwned          = repositories.ErrNotOwned
	ErrNotOwner          = repositories.ErrNotOwner
	ErrOwnershipConflict = repositories.ErrOwnershipConflict
	ErrInvalidRange      = repositories.ErrInvalidRange
	ErrAlreadyProcessed  = repositories.ErrAlreadyProcessed
)

// ErrSelfVisit rejects an account paying tolls to itself.
var ErrSelfVisit = errors.New("cannot visit your own link")
