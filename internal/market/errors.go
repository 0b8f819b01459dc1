package market

import (
	"errors"
)

var (
	ErrNonPositivePrice = errors.New("price must be greater than zero")
	ErrInvalidFee       = errors.New("fee must be at most 10000 basis points")
	ErrNotHolder        = errors.New("wallet does not hold the asset")
	ErrSelfPurchase     = errors.New("buyer is the seller")
	ErrMissingContact   = errors.New("an email or contact handle is required")
	ErrInvalidContact   = errors.New("contact is not valid")
	ErrListingNotActive = errors.New("listing is not active")
	ErrNotOwner         = errors.New("wallet is not the listing owner")
	ErrEscrowNotFound   = errors.New("escrow not found")
	ErrAlreadyReleased  = errors.New("escrow already released")
)

// PreconditionError is raised before any transaction is built. It is always user-correctable
// and never reaches the ledger.
type PreconditionError struct {
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

func precondition(err error, reason string) error {
	return &PreconditionError{Reason: reason, Err: err}
}

func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
