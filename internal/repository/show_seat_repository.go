package repository

import (
	"context"
	"strings"
	"time"

	"github.com/ikoruk/show-seat-booking/internal/model"
)

// ShowSeatRepo encapsulates database operations for show_seats, the
// per-show availability records the reservation engine manipulates.
// Every mutating method is expected to run inside a transaction opened
// by Store.WithTx; reads used for public seat maps may run outside one.
type ShowSeatRepo struct {
	store *Store
}

// NewShowSeatRepo constructs a ShowSeatRepo bound to the shared store.
func NewShowSeatRepo(store *Store) *ShowSeatRepo {
	return &ShowSeatRepo{store: store}
}

// placeholders returns a "?, ?, ?" fragment with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// ForUpdate reads the show_seat rows for the given show and seat ids,
// joined with the seat identity, taking row-level exclusive locks
// (SELECT ... FOR UPDATE).  Seat ids without a show_seat row are simply
// absent from the result; callers detect unknown ids by comparing
// lengths.  Must be called inside a transaction.
func (r *ShowSeatRepo) ForUpdate(ctx context.Context, showID uint64, seatIDs []uint64) ([]model.SeatDetail, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ss.seat_id, ss.show_id, s.row_label, s.seat_number, ss.status, ss.price_cents, ss.locked_at
	          FROM show_seats ss
	          JOIN seats s ON s.id = ss.seat_id
	          WHERE ss.show_id = ? AND ss.seat_id IN (` + placeholders(len(seatIDs)) + `)
	          FOR UPDATE`
	args := make([]any, 0, len(seatIDs)+1)
	args = append(args, showID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	return r.scanDetails(ctx, query, args...)
}

// ByBookingForUpdate reads all show_seat rows currently owned by a
// booking, locking them for the remainder of the transaction.  Used by
// confirm, cancel and the sweeper before transitioning seat status.
func (r *ShowSeatRepo) ByBookingForUpdate(ctx context.Context, bookingID uint64) ([]model.SeatDetail, error) {
	const query = `SELECT ss.seat_id, ss.show_id, s.row_label, s.seat_number, ss.status, ss.price_cents, ss.locked_at
	               FROM show_seats ss
	               JOIN seats s ON s.id = ss.seat_id
	               WHERE ss.booking_id = ?
	               FOR UPDATE`
	return r.scanDetails(ctx, query, bookingID)
}

// ByBooking is the lock-free variant of ByBookingForUpdate, used by
// read-only booking detail queries.
func (r *ShowSeatRepo) ByBooking(ctx context.Context, bookingID uint64) ([]model.SeatDetail, error) {
	const query = `SELECT ss.seat_id, ss.show_id, s.row_label, s.seat_number, ss.status, ss.price_cents, ss.locked_at
	               FROM show_seats ss
	               JOIN seats s ON s.id = ss.seat_id
	               WHERE ss.booking_id = ?
	               ORDER BY s.row_label, s.seat_number`
	return r.scanDetails(ctx, query, bookingID)
}

func (r *ShowSeatRepo) scanDetails(ctx context.Context, query string, args ...any) ([]model.SeatDetail, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var details []model.SeatDetail
	for rows.Next() {
		var d model.SeatDetail
		if err := rows.Scan(&d.SeatID, &d.ShowID, &d.RowLabel, &d.SeatNumber, &d.Status, &d.PriceCents, &d.LockedAt); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return details, nil
}

// MarkLocked transitions the given seats of a show to LOCKED under the
// owning booking, recording the lock timestamp.
func (r *ShowSeatRepo) MarkLocked(ctx context.Context, showID uint64, seatIDs []uint64, bookingID uint64, lockedAt time.Time) error {
	if len(seatIDs) == 0 {
		return nil
	}
	query := `UPDATE show_seats
	          SET status = ?, booking_id = ?, locked_at = ?, updated_at = CURRENT_TIMESTAMP
	          WHERE show_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	args := make([]any, 0, len(seatIDs)+4)
	args = append(args, model.SeatLocked, bookingID, lockedAt.UTC(), showID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	_, err := r.store.q(ctx).ExecContext(ctx, query, args...)
	return err
}

// MarkBooked transitions every LOCKED seat of a booking to BOOKED.  The
// owning booking reference stays; locked_at is cleared because the row
// leaves LOCKED.
func (r *ShowSeatRepo) MarkBooked(ctx context.Context, bookingID uint64) error {
	const query = `UPDATE show_seats
	               SET status = ?, locked_at = NULL, updated_at = CURRENT_TIMESTAMP
	               WHERE booking_id = ? AND status = ?`
	_, err := r.store.q(ctx).ExecContext(ctx, query, model.SeatBooked, bookingID, model.SeatLocked)
	return err
}

// ReleaseByBooking reverts every seat owned by a booking (LOCKED or
// BOOKED) back to AVAILABLE, clearing the owning booking and the lock
// timestamp.
func (r *ShowSeatRepo) ReleaseByBooking(ctx context.Context, bookingID uint64) error {
	const query = `UPDATE show_seats
	               SET status = ?, booking_id = NULL, locked_at = NULL, updated_at = CURRENT_TIMESTAMP
	               WHERE booking_id = ?`
	_, err := r.store.q(ctx).ExecContext(ctx, query, model.SeatAvailable, bookingID)
	return err
}

// CreateBulk inserts one show_seat row per seat in a single statement.
// Used when a show is created to seed the full venue inventory as
// AVAILABLE.
func (r *ShowSeatRepo) CreateBulk(ctx context.Context, showID uint64, seatIDs []uint64, priceCents uint32) error {
	if len(seatIDs) == 0 {
		return nil
	}
	query := `INSERT INTO show_seats (show_id, seat_id, status, price_cents) VALUES `
	args := make([]any, 0, len(seatIDs)*4)
	for i, sid := range seatIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, showID, sid, model.SeatAvailable, priceCents)
	}
	_, err := r.store.q(ctx).ExecContext(ctx, query, args...)
	return err
}

// MapByShow returns the seat->status mapping of a show ordered by row
// and number, for the public seat map.
func (r *ShowSeatRepo) MapByShow(ctx context.Context, showID uint64) ([]model.SeatDetail, error) {
	const query = `SELECT ss.seat_id, ss.show_id, s.row_label, s.seat_number, ss.status, ss.price_cents, ss.locked_at
	               FROM show_seats ss
	               JOIN seats s ON s.id = ss.seat_id
	               WHERE ss.show_id = ?
	               ORDER BY s.row_label, s.seat_number`
	return r.scanDetails(ctx, query, showID)
}
