package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers a missing task, member, family, or reward.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the acting member is not
	// authorized for the operation. The message stays generic; details go
	// to the server log only.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRewardInactive is returned when redeeming a reward that has been
	// retired from the catalog.
	ErrRewardInactive = errors.New("reward is not active")

	// ErrInvalidPoints marks a data-integrity failure: a task carrying a
	// non-positive reward value reached the award path.
	ErrInvalidPoints = errors.New("invalid reward points")

	// ErrNotAwardable is returned when the task row re-read inside the
	// award transaction is no longer an approved completion. A concurrent
	// sync can rescind an approval between delivery and award.
	ErrNotAwardable = errors.New("task is not an approved completion")

	// ErrBusy is returned after the bounded retry budget for write
	// conflicts is exhausted. The identical request is safe to retry: no
	// partial mutation was committed and the award path is idempotent.
	ErrBusy = errors.New("transaction conflict, retries exhausted")
)

// InsufficientBalanceError is returned when a member's spendable balance
// cannot cover a redemption. It names both numbers so the caller can show
// "has X, needs Y" without another round trip.
type InsufficientBalanceError struct {
	Current  int
	Required int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: has %d, needs %d", e.Current, e.Required)
}

// CostMismatchError is returned when the caller-supplied point cost does not
// match the catalog price. The catalog is authoritative.
type CostMismatchError struct {
	Supplied int
	Actual   int
}

func (e *CostMismatchError) Error() string {
	return fmt.Sprintf("point cost mismatch: request says %d, catalog says %d", e.Supplied, e.Actual)
}

// IsTransient reports whether the error is safe to retry with an identical
// request.
func IsTransient(err error) bool {
	return errors.Is(err, ErrBusy)
}
