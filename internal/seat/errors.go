package seat

import (
	"errors"
	"fmt"
)

var (
	ErrSeatsExhausted           = errors.New("seats_exhausted")
	ErrDuplicateInvitation      = errors.New("duplicate_invitation")
	ErrConcurrentUpdateConflict = errors.New("concurrent_update_conflict")
)

// SeatsExhaustedError carries the breakdown observed inside the rejected
// transaction so callers can render "0 of N available".
type SeatsExhaustedError struct {
	Class     Class
	Requested int
	Breakdown Breakdown
}

func (e *SeatsExhaustedError) Error() string {
	return fmt.Sprintf("seats_exhausted: %s class has %d of %d available, %d requested",
		e.Class, e.Breakdown.AvailableFor(e.Class), e.Breakdown.Purchased.Get(e.Class), e.Requested)
}

func (e *SeatsExhaustedError) Is(target error) bool {
	return target == ErrSeatsExhausted
}

// Check returns a *SeatsExhaustedError when fewer than requested seats of
// class are available.
func Check(b Breakdown, class Class, requested int) error {
	if b.AvailableFor(class) < requested {
		return &SeatsExhaustedError{Class: class, Requested: requested, Breakdown: b}
	}
	return nil
}
