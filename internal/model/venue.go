package model

import "time"

// Venue is a physical location with a fixed seat layout.  Every seat
// belongs to exactly one venue and shows are scheduled against a venue,
// inheriting its full seat inventory.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – human readable venue name.
//  SeatRows  – number of seat rows in the layout (nullable until seats
//              are generated).
//  SeatCols  – number of seats per row.
//  CreatedAt – timestamp when the record was created.
//  UpdatedAt – timestamp when the record was last updated.
type Venue struct {
	ID        uint64    // venues.id
	Name      string    // venues.name
	SeatRows  *uint32   // venues.seat_rows (nullable)
	SeatCols  *uint32   // venues.seat_cols (nullable)
	CreatedAt time.Time // venues.created_at
	UpdatedAt time.Time // venues.updated_at
}
