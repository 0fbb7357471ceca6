// Package reservation implements the seat reservation and release
// protocol: the dual-layer locking discipline that moves a seat through
// AVAILABLE -> LOCKED -> BOOKED (or back), the booking lifecycle state
// machine around it, and the reclaim pass used by the expiry sweeper.
//
// Two layers serialize competing lock attempts.  The relational
// transaction takes row-level exclusive locks (SELECT ... FOR UPDATE) on
// the targeted show_seat rows, ordering attempts that reach the same
// database.  The distributed lock entry in Redis (SET NX with the hold
// window as TTL) is the tie-breaker for attempts racing from separate
// connections that could otherwise both pass the relational check before
// either commits.  The relational store stays authoritative: lock-store
// entries are advisory, always safe to delete redundantly, and
// self-expiring should a process crash while holding them.
package reservation

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/ikoruk/show-seat-booking/internal/clock"
	"github.com/ikoruk/show-seat-booking/internal/model"
)

// TxRunner runs a function inside one relational transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// BookingStore is the booking persistence the engine depends on.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error)
	SetStatus(ctx context.Context, id uint64, status string, paymentRef *string) error
	ExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
}

// ShowSeatStore is the per-show seat persistence the engine depends on.
type ShowSeatStore interface {
	ForUpdate(ctx context.Context, showID uint64, seatIDs []uint64) ([]model.SeatDetail, error)
	ByBookingForUpdate(ctx context.Context, bookingID uint64) ([]model.SeatDetail, error)
	MarkLocked(ctx context.Context, showID uint64, seatIDs []uint64, bookingID uint64, lockedAt time.Time) error
	MarkBooked(ctx context.Context, bookingID uint64) error
	ReleaseByBooking(ctx context.Context, bookingID uint64) error
}

// SeatLocker places and removes distributed lock entries for
// (show, seat) pairs.
type SeatLocker interface {
	AcquireSeatLock(ctx context.Context, showID, seatID uint64, holder string, ttl time.Duration) (bool, error)
	ReleaseSeatLocks(ctx context.Context, showID uint64, seatIDs ...uint64) error
}

// Engine coordinates the relational store and the lock store to grant,
// confirm, cancel and reclaim seat reservations.
type Engine struct {
	tx         TxRunner
	bookings   BookingStore
	seats      ShowSeatStore
	locker     SeatLocker // nil when the lock store is unavailable
	clock      clock.Clock
	holdWindow time.Duration
	reapBatch  int
}

// New constructs an Engine.  A nil locker degrades to relational-only
// serialization (single-instance deployments, or Redis outage at boot).
func New(tx TxRunner, bookings BookingStore, seats ShowSeatStore, locker SeatLocker, clk clock.Clock, holdWindow time.Duration, reapBatch int) *Engine {
	if tx == nil || bookings == nil || seats == nil || clk == nil {
		panic("nil dependency passed to reservation.New")
	}
	if holdWindow <= 0 {
		holdWindow = 10 * time.Minute
	}
	if reapBatch < 1 {
		reapBatch = 100
	}
	return &Engine{
		tx:         tx,
		bookings:   bookings,
		seats:      seats,
		locker:     locker,
		clock:      clk,
		holdWindow: holdWindow,
		reapBatch:  reapBatch,
	}
}

// HoldWindow reports how long a LOCKED seat stays reserved for a pending
// booking.
func (e *Engine) HoldWindow() time.Duration {
	return e.holdWindow
}

// Lock reserves every requested seat of a show for the user, or nothing.
//
// Within one transaction it takes FOR UPDATE locks on the targeted rows,
// verifies all of them are AVAILABLE, then claims the distributed lock
// entry for each seat.  Any seat that cannot be secured aborts the whole
// attempt: the transaction rolls back and every distributed lock already
// acquired in this call is released.  Only with every seat secured does
// it create the PENDING booking and move the rows to LOCKED, all
// committed as one unit.
func (e *Engine) Lock(ctx context.Context, showID, userID uint64, seatIDs []uint64) (*model.Booking, []model.SeatDetail, error) {
	ids := dedupe(seatIDs)
	if len(ids) == 0 {
		return nil, nil, ErrNoSeats
	}

	var (
		booking  *model.Booking
		granted  []model.SeatDetail
		acquired []uint64
	)
	err := e.tx.WithTx(ctx, func(txCtx context.Context) error {
		details, err := e.seats.ForUpdate(txCtx, showID, ids)
		if err != nil {
			return err
		}

		conflict := &SeatConflictError{}
		if len(details) != len(ids) {
			known := make(map[uint64]struct{}, len(details))
			for _, d := range details {
				known[d.SeatID] = struct{}{}
			}
			for _, id := range ids {
				if _, ok := known[id]; !ok {
					conflict.Invalid = append(conflict.Invalid, id)
				}
			}
		}
		var total uint32
		for _, d := range details {
			if d.Status != model.SeatAvailable {
				conflict.Unavailable = append(conflict.Unavailable, d.SeatID)
			}
			total += d.PriceCents
		}
		if len(conflict.Invalid) > 0 || len(conflict.Unavailable) > 0 {
			return conflict
		}

		// Cross-process arbitration.  A miss here means another node won
		// the race between our relational check and theirs committing.
		if e.locker != nil {
			holder := strconv.FormatUint(userID, 10)
			for _, id := range ids {
				ok, err := e.locker.AcquireSeatLock(txCtx, showID, id, holder, e.holdWindow)
				if err != nil {
					return err
				}
				if !ok {
					return &SeatConflictError{Unavailable: []uint64{id}}
				}
				acquired = append(acquired, id)
			}
		}

		b := &model.Booking{
			UserID:           userID,
			ShowID:           showID,
			Status:           model.BookingPending,
			TotalAmountCents: total,
		}
		if err := e.bookings.Create(txCtx, b); err != nil {
			return err
		}
		now := e.clock.Now()
		if err := e.seats.MarkLocked(txCtx, showID, ids, b.ID, now); err != nil {
			return err
		}
		booking = b
		granted = details
		for i := range granted {
			granted[i].Status = model.SeatLocked
			at := now
			granted[i].LockedAt = &at
		}
		return nil
	})
	if err != nil {
		// Failure after acquisition (including a failed commit) must not
		// leave lock entries behind for the full TTL.
		if len(acquired) > 0 && e.locker != nil {
			if relErr := e.locker.ReleaseSeatLocks(ctx, showID, acquired...); relErr != nil {
				log.Printf("reservation: release seat locks after failed lock attempt: %v", relErr)
			}
		}
		return nil, nil, err
	}
	return booking, granted, nil
}

// Confirm finalizes a pending booking after the caller's out-of-band
// payment step.  If any seat's lock timestamp is older than the hold
// window the entire booking is expired instead: seats revert to
// AVAILABLE, the booking is cancelled, and ErrBookingExpired is
// returned.  There is no partial confirm.
func (e *Engine) Confirm(ctx context.Context, bookingID, userID uint64, paymentRef string) (*model.Booking, []model.SeatDetail, error) {
	var (
		booking *model.Booking
		seats   []model.SeatDetail
		expired bool
	)
	err := e.tx.WithTx(ctx, func(txCtx context.Context) error {
		b, err := e.bookings.GetForUpdate(txCtx, bookingID)
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return ErrBookingNotFound
		}
		switch b.Status {
		case model.BookingPending:
		case model.BookingCancelled:
			return ErrBookingCancelled
		default:
			return ErrBookingNotPending
		}

		details, err := e.seats.ByBookingForUpdate(txCtx, bookingID)
		if err != nil {
			return err
		}
		now := e.clock.Now()
		for _, d := range details {
			if d.LockedAt != nil && now.Sub(*d.LockedAt) > e.holdWindow {
				expired = true
				break
			}
		}
		if expired {
			// The committed repair is identical to a sweep of this
			// booking, so a later sweep finds nothing left to do.
			if err := e.seats.ReleaseByBooking(txCtx, bookingID); err != nil {
				return err
			}
			if err := e.bookings.SetStatus(txCtx, bookingID, model.BookingCancelled, nil); err != nil {
				return err
			}
			seats = details
			return nil
		}

		if err := e.seats.MarkBooked(txCtx, bookingID); err != nil {
			return err
		}
		var ref *string
		if paymentRef != "" {
			ref = &paymentRef
		}
		if err := e.bookings.SetStatus(txCtx, bookingID, model.BookingConfirmed, ref); err != nil {
			return err
		}
		b.Status = model.BookingConfirmed
		b.PaymentRef = ref
		booking = b
		seats = details
		for i := range seats {
			seats[i].Status = model.SeatBooked
			seats[i].LockedAt = nil
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	// Both outcomes move the seats out of LOCKED; drop the lock entries.
	e.cleanupSeatLocks(ctx, seats)
	if expired {
		return nil, nil, ErrBookingExpired
	}
	return booking, seats, nil
}

// Cancel releases every seat owned by the booking (LOCKED or BOOKED)
// back to AVAILABLE and cancels the booking.  Cancelling an already
// cancelled booking is rejected with ErrBookingCancelled.
func (e *Engine) Cancel(ctx context.Context, bookingID, userID uint64) (*model.Booking, []model.SeatDetail, error) {
	var (
		booking *model.Booking
		seats   []model.SeatDetail
	)
	err := e.tx.WithTx(ctx, func(txCtx context.Context) error {
		b, err := e.bookings.GetForUpdate(txCtx, bookingID)
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return ErrBookingNotFound
		}
		if b.Status == model.BookingCancelled {
			return ErrBookingCancelled
		}
		details, err := e.seats.ByBookingForUpdate(txCtx, bookingID)
		if err != nil {
			return err
		}
		if err := e.seats.ReleaseByBooking(txCtx, bookingID); err != nil {
			return err
		}
		if err := e.bookings.SetStatus(txCtx, bookingID, model.BookingCancelled, nil); err != nil {
			return err
		}
		b.Status = model.BookingCancelled
		booking = b
		seats = details
		for i := range seats {
			seats[i].Status = model.SeatAvailable
			seats[i].LockedAt = nil
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	// No-op for seats that were already BOOKED and untracked; deleting
	// absent entries is safe.
	e.cleanupSeatLocks(ctx, seats)
	return booking, seats, nil
}

// ReapExpired reclaims pending bookings whose creation time predates the
// hold window.  Each candidate is repaired in its own transaction after
// re-checking its status under FOR UPDATE, so a booking confirmed or
// cancelled between the scan and the repair is skipped.  A failure on
// one booking is logged and the pass moves on.  Returns the number of
// bookings reclaimed.
func (e *Engine) ReapExpired(ctx context.Context) (int, error) {
	cutoff := e.clock.Now().Add(-e.holdWindow)
	ids, err := e.bookings.ExpiredPending(ctx, cutoff, e.reapBatch)
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for _, id := range ids {
		seats, err := e.reapOne(ctx, id)
		if err != nil {
			log.Printf("reservation: reclaim booking %d: %v", id, err)
			continue
		}
		if seats == nil {
			continue // settled by confirm or cancel since the scan
		}
		e.cleanupSeatLocks(ctx, seats)
		reclaimed++
	}
	return reclaimed, nil
}

func (e *Engine) reapOne(ctx context.Context, bookingID uint64) ([]model.SeatDetail, error) {
	var seats []model.SeatDetail
	err := e.tx.WithTx(ctx, func(txCtx context.Context) error {
		b, err := e.bookings.GetForUpdate(txCtx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != model.BookingPending {
			return nil
		}
		details, err := e.seats.ByBookingForUpdate(txCtx, bookingID)
		if err != nil {
			return err
		}
		if err := e.seats.ReleaseByBooking(txCtx, bookingID); err != nil {
			return err
		}
		if err := e.bookings.SetStatus(txCtx, bookingID, model.BookingCancelled, nil); err != nil {
			return err
		}
		seats = details
		return nil
	})
	return seats, err
}

// cleanupSeatLocks deletes the distributed lock entries for the given
// seats.  Best effort: a failure is logged, not retried, because the
// entries self-expire via TTL.
func (e *Engine) cleanupSeatLocks(ctx context.Context, seats []model.SeatDetail) {
	if e.locker == nil || len(seats) == 0 {
		return
	}
	showID := seats[0].ShowID
	ids := make([]uint64, 0, len(seats))
	for _, s := range seats {
		ids = append(ids, s.SeatID)
	}
	if err := e.locker.ReleaseSeatLocks(ctx, showID, ids...); err != nil {
		log.Printf("reservation: release seat locks for show %d: %v", showID, err)
	}
}

// dedupe drops zero and repeated seat ids while preserving order.
func dedupe(ids []uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
