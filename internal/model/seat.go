package model

import "time"

// Seat describes a physical seat inside a venue.  A seat is uniquely
// identified by its venue, row label and seat number; that identity is
// immutable once created.
//
// Fields:
//  ID         – primary key identifier.
//  VenueID    – venue to which this seat belongs.
//  RowLabel   – letter or string designating the row (A, B, AA, ...).
//  SeatNumber – position of the seat within the row (1-based).
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Seat struct {
	ID         uint64    // seats.id
	VenueID    uint64    // seats.venue_id
	RowLabel   string    // seats.row_label
	SeatNumber uint32    // seats.seat_number
	CreatedAt  time.Time // seats.created_at
	UpdatedAt  time.Time // seats.updated_at
}
