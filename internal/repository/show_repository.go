package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ikoruk/show-seat-booking/internal/model"
)

// ShowRepo manages persistence for shows.
type ShowRepo struct {
	store *Store
}

// NewShowRepo constructs a ShowRepo bound to the shared store.
func NewShowRepo(store *Store) *ShowRepo {
	return &ShowRepo{store: store}
}

const showColumns = `id, venue_id, title, starts_at, ends_at, price_cents, status, created_at, updated_at`

func scanShow(row interface{ Scan(...any) error }) (*model.Show, error) {
	var s model.Show
	if err := row.Scan(&s.ID, &s.VenueID, &s.Title, &s.StartsAt, &s.EndsAt, &s.PriceCents, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a show and populates the generated id plus DB-default
// fields on the given record.
func (r *ShowRepo) Create(ctx context.Context, s *model.Show) error {
	const q = `INSERT INTO shows (venue_id, title, starts_at, ends_at, price_cents) VALUES (?, ?, ?, ?, ?)`
	res, err := r.store.q(ctx).ExecContext(ctx, q, s.VenueID, s.Title, s.StartsAt.UTC(), s.EndsAt.UTC(), s.PriceCents)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	fresh, err := scanShow(r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+showColumns+` FROM shows WHERE id = ?`, s.ID))
	if err != nil {
		return err
	}
	*s = *fresh
	return nil
}

// GetByID fetches a show by id, returning ErrShowNotFound when absent.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (*model.Show, error) {
	s, err := scanShow(r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+showColumns+` FROM shows WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShowNotFound
	}
	return s, err
}

// List returns shows ordered by start time, soonest first.
func (r *ShowRepo) List(ctx context.Context) ([]model.Show, error) {
	const q = `SELECT ` + showColumns + ` FROM shows ORDER BY starts_at`
	rows, err := r.store.q(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Show
	for rows.Next() {
		s, err := scanShow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// FindOverlapping returns shows at the same venue whose schedule
// intersects [startsAt, endsAt).  Used to reject double-booked venues at
// show creation time.
func (r *ShowRepo) FindOverlapping(ctx context.Context, venueID uint64, startsAt, endsAt time.Time) ([]model.Show, error) {
	const q = `SELECT ` + showColumns + ` FROM shows
	           WHERE venue_id = ? AND status = ? AND starts_at < ? AND ends_at > ?`
	rows, err := r.store.q(ctx).QueryContext(ctx, q, venueID, model.ShowScheduled, endsAt, startsAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Show
	for rows.Next() {
		s, err := scanShow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
