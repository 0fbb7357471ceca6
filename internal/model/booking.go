package model

import "time"

// Booking statuses.  PENDING bookings own LOCKED seats and await
// confirmation within the hold window.  CONFIRMED and CANCELLED are
// terminal; a booking never transitions out of either.
const (
	BookingPending   = "PENDING"
	BookingConfirmed = "CONFIRMED"
	BookingCancelled = "CANCELLED"
)

// Booking groups one or more seat holds under a single requester for a
// single show.  Bookings are created in PENDING by a lock operation and
// are mutated by confirm, cancel and the expiry sweeper.  Rows are never
// physically deleted; cancelled bookings are retained for audit.
//
// Fields:
//  ID               – primary key identifier.
//  UserID           – requester who owns the booking.
//  ShowID           – show being booked.
//  Status           – state of the booking (PENDING, CONFIRMED,
//                     CANCELLED).
//  TotalAmountCents – total price in cents for all held seats.
//  PaymentRef       – external payment reference recorded on confirm
//                     (nullable).
//  CreatedAt        – creation timestamp; doubles as the start of the
//                     hold window checked by the sweeper.
//  UpdatedAt        – last update timestamp.
type Booking struct {
	ID               uint64    // bookings.id
	UserID           uint64    // bookings.user_id
	ShowID           uint64    // bookings.show_id
	Status           string    // bookings.status
	TotalAmountCents uint32    // bookings.total_amount_cents
	PaymentRef       *string   // bookings.payment_ref (nullable)
	CreatedAt        time.Time // bookings.created_at
	UpdatedAt        time.Time // bookings.updated_at
}
