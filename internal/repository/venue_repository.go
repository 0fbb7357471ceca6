package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ikoruk/show-seat-booking/internal/model"
)

// VenueRepo manages persistence for venues.
type VenueRepo struct {
	store *Store
}

// NewVenueRepo constructs a VenueRepo bound to the shared store.
func NewVenueRepo(store *Store) *VenueRepo {
	return &VenueRepo{store: store}
}

// Create inserts a venue and populates its generated id.
func (r *VenueRepo) Create(ctx context.Context, v *model.Venue) error {
	const q = `INSERT INTO venues (name) VALUES (?)`
	res, err := r.store.q(ctx).ExecContext(ctx, q, v.Name)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	return nil
}

// GetByID fetches a venue by id, returning ErrVenueNotFound when absent.
func (r *VenueRepo) GetByID(ctx context.Context, id uint64) (*model.Venue, error) {
	const q = `SELECT id, name, seat_rows, seat_cols, created_at, updated_at FROM venues WHERE id = ?`
	var v model.Venue
	var rows, cols sql.NullInt32
	err := r.store.q(ctx).QueryRowContext(ctx, q, id).
		Scan(&v.ID, &v.Name, &rows, &cols, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVenueNotFound
	}
	if err != nil {
		return nil, err
	}
	if rows.Valid {
		n := uint32(rows.Int32)
		v.SeatRows = &n
	}
	if cols.Valid {
		n := uint32(cols.Int32)
		v.SeatCols = &n
	}
	return &v, nil
}

// SetLayout records the seat grid dimensions after seats are generated.
func (r *VenueRepo) SetLayout(ctx context.Context, id uint64, rows, cols uint32) error {
	const q = `UPDATE venues SET seat_rows = ?, seat_cols = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.store.q(ctx).ExecContext(ctx, q, rows, cols, id)
	return err
}

// List returns all venues ordered by name.
func (r *VenueRepo) List(ctx context.Context) ([]model.Venue, error) {
	const q = `SELECT id, name, seat_rows, seat_cols, created_at, updated_at FROM venues ORDER BY name`
	rows, err := r.store.q(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Venue
	for rows.Next() {
		var v model.Venue
		var nr, nc sql.NullInt32
		if err := rows.Scan(&v.ID, &v.Name, &nr, &nc, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		if nr.Valid {
			n := uint32(nr.Int32)
			v.SeatRows = &n
		}
		if nc.Valid {
			n := uint32(nc.Int32)
			v.SeatCols = &n
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
