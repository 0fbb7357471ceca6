package model

import "time"

// Show seat statuses.  AVAILABLE seats can be locked, LOCKED seats are
// reserved under a pending booking for the duration of the hold window,
// BOOKED seats belong to a confirmed booking.
const (
	SeatAvailable = "AVAILABLE"
	SeatLocked    = "LOCKED"
	SeatBooked    = "BOOKED"
)

// ShowSeat is the per-show availability record for a seat and the unit
// the reservation engine manipulates.  Exactly one row exists per
// (show, seat) pair, created when the show is created and never deleted
// while the show exists.
//
// Fields:
//  ID         – primary key identifier.
//  ShowID     – the show to which this record belongs.
//  SeatID     – the seat being made available.
//  Status     – availability status (AVAILABLE, LOCKED, BOOKED).
//  BookingID  – owning booking, set while status is LOCKED or BOOKED.
//  LockedAt   – set if and only if status is LOCKED; cleared on every
//               transition out of LOCKED.
//  PriceCents – price in cents for this seat.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type ShowSeat struct {
	ID         uint64     // show_seats.id
	ShowID     uint64     // show_seats.show_id
	SeatID     uint64     // show_seats.seat_id
	Status     string     // show_seats.status
	BookingID  *uint64    // show_seats.booking_id (nullable)
	LockedAt   *time.Time // show_seats.locked_at (nullable)
	PriceCents uint32     // show_seats.price_cents
	CreatedAt  time.Time  // show_seats.created_at
	UpdatedAt  time.Time  // show_seats.updated_at
}

// SeatDetail is the seat view returned by reservation operations and the
// public seat map: a show_seat joined with the physical seat identity.
type SeatDetail struct {
	SeatID     uint64     `json:"seat_id"`
	ShowID     uint64     `json:"show_id"`
	RowLabel   string     `json:"row"`
	SeatNumber uint32     `json:"number"`
	Status     string     `json:"status"`
	PriceCents uint32     `json:"price_cents"`
	LockedAt   *time.Time `json:"-"`
}
