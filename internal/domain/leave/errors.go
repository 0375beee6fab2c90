package leave

import (
	"errors"
	"fmt"
)

var (
	ErrRequestNotFound  = errors.New("leave request not found")
	ErrBalanceNotFound  = errors.New("leave balance not found")
	ErrAlreadyProcessed = errors.New("leave request already processed")
	ErrNotDenied        = errors.New("only a denied request can be resubmitted")
	ErrNotCancellable   = errors.New("leave request can no longer be cancelled")
)

// BalanceInsufficientError reports how far a request overshoots the
// available balance.
type BalanceInsufficientError struct {
	Category  Category
	Available float64
	Requested float64
}

func (e *BalanceInsufficientError) Error() string {
	return fmt.Sprintf("insufficient %s leave balance: requested %.1f, available %.1f",
		e.Category, e.Requested, e.Available)
}
