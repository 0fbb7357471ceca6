package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ikoruk/show-seat-booking/internal/model"
)

// BookingRepo provides persistence for bookings.  Bookings are created
// in PENDING by the lock operation, moved to a terminal status by
// confirm, cancel or the sweeper, and never deleted.
type BookingRepo struct {
	store *Store
}

// NewBookingRepo constructs a BookingRepo bound to the shared store.
func NewBookingRepo(store *Store) *BookingRepo {
	return &BookingRepo{store: store}
}

const bookingColumns = `id, user_id, show_id, status, total_amount_cents, payment_ref, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	var b model.Booking
	var paymentRef sql.NullString
	if err := row.Scan(&b.ID, &b.UserID, &b.ShowID, &b.Status, &b.TotalAmountCents, &paymentRef, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if paymentRef.Valid {
		pr := paymentRef.String
		b.PaymentRef = &pr
	}
	return &b, nil
}

// Create inserts a booking and populates the generated id and the
// DB-default timestamps on the given record.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (user_id, show_id, status, total_amount_cents) VALUES (?, ?, ?, ?)`
	res, err := r.store.q(ctx).ExecContext(ctx, q, b.UserID, b.ShowID, b.Status, b.TotalAmountCents)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	fresh, err := scanBooking(r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, b.ID))
	if err != nil {
		return err
	}
	*b = *fresh
	return nil
}

// GetForUpdate reads a booking taking a row-level exclusive lock, so
// that concurrent confirm/cancel/sweep attempts on the same booking
// serialize on the booking row.  Must be called inside a transaction.
// Returns ErrBookingNotFound when the id does not exist.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := scanBooking(r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// SetStatus updates the booking status.  A non-nil paymentRef is
// recorded alongside (confirm path); a nil one leaves the column
// untouched.
func (r *BookingRepo) SetStatus(ctx context.Context, id uint64, status string, paymentRef *string) error {
	if paymentRef != nil {
		const q = `UPDATE bookings SET status = ?, payment_ref = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
		_, err := r.store.q(ctx).ExecContext(ctx, q, status, *paymentRef, id)
		return err
	}
	const q = `UPDATE bookings SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.store.q(ctx).ExecContext(ctx, q, status, id)
	return err
}

// ExpiredPending returns ids of PENDING bookings created at or before
// the cutoff, oldest first, capped at limit.  The sweeper re-checks each
// candidate under FOR UPDATE before reclaiming it, so this scan can run
// outside a transaction.
func (r *BookingRepo) ExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	const q = `SELECT id FROM bookings WHERE status = ? AND created_at <= ? ORDER BY created_at LIMIT ?`
	rows, err := r.store.q(ctx).QueryContext(ctx, q, model.BookingPending, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetByIDForUser fetches a booking by id, enforcing ownership.  Unknown
// ids and foreign bookings both yield ErrBookingNotFound.
func (r *BookingRepo) GetByIDForUser(ctx context.Context, id, userID uint64) (*model.Booking, error) {
	b, err := scanBooking(r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// ListByUser returns all bookings of a user, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.store.q(ctx).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
