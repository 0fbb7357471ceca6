package repository

import (
	"context"

	"github.com/ikoruk/show-seat-booking/internal/model"
)

// SeatRepo provides methods to work with the physical seats of a venue.
type SeatRepo struct {
	store *Store
}

// NewSeatRepo constructs a SeatRepo bound to the shared store.
func NewSeatRepo(store *Store) *SeatRepo {
	return &SeatRepo{store: store}
}

// CreateBulk inserts multiple seats in a single statement.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO seats (venue_id, row_label, seat_number) VALUES `
	args := make([]any, 0, len(seats)*3)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, s.VenueID, s.RowLabel, s.SeatNumber)
	}
	_, err := r.store.q(ctx).ExecContext(ctx, query, args...)
	return err
}

// IDsByVenue returns the ids of all seats of a venue ordered by row and
// number.  Used when a show is created to seed its show_seat inventory.
func (r *SeatRepo) IDsByVenue(ctx context.Context, venueID uint64) ([]uint64, error) {
	const q = `SELECT id FROM seats WHERE venue_id = ? ORDER BY row_label, seat_number`
	rows, err := r.store.q(ctx).QueryContext(ctx, q, venueID)
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

// CountByVenue returns the number of seats registered for a venue.
func (r *SeatRepo) CountByVenue(ctx context.Context, venueID uint64) (int, error) {
	const q = `SELECT COUNT(*) FROM seats WHERE venue_id = ?`
	var n int
	err := r.store.q(ctx).QueryRowContext(ctx, q, venueID).Scan(&n)
	return n, err
}
