package reservation

import (
	"errors"
	"fmt"
)

// ErrNoSeats is returned when a lock request carries no usable seat ids.
var ErrNoSeats = errors.New("no seats requested")

// ErrBookingNotFound is returned when a booking does not exist or is not
// owned by the requester.
var ErrBookingNotFound = errors.New("booking not found")

// ErrBookingNotPending is returned when confirm is attempted on a
// booking that already reached a terminal confirmed state.
var ErrBookingNotPending = errors.New("booking is not pending")

// ErrBookingCancelled is returned when confirm or cancel is attempted on
// a booking that is already cancelled.  Cancelling twice is rejected
// explicitly rather than silently accepted, to surface client bugs.
var ErrBookingCancelled = errors.New("booking already cancelled")

// ErrBookingExpired is returned when confirm discovers the hold window
// has lapsed.  The booking is cancelled and its seats released as a side
// effect of reporting this; the caller must start over with a new lock.
var ErrBookingExpired = errors.New("booking hold expired")

// SeatConflictError reports the seat ids that prevented a lock request
// from being granted.  Unavailable seats exist but are LOCKED or BOOKED
// (or were just claimed by a competing process); Invalid ids have no
// availability record for the show.  Nothing was committed.
type SeatConflictError struct {
	Unavailable []uint64
	Invalid     []uint64
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seat conflict: %d unavailable, %d invalid", len(e.Unavailable), len(e.Invalid))
}
