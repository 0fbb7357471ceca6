package model

import "time"

// Show statuses.  A show is SCHEDULED while bookable; other states are
// maintained by catalog administration and are not transitioned by the
// reservation path.
const (
	ShowScheduled = "SCHEDULED"
	ShowCancelled = "CANCELLED"
	ShowFinished  = "FINISHED"
)

// Show represents a scheduled instance of an event at a venue.  Every
// show carries a fixed per-seat price and, once created, owns one
// show_seat row per venue seat.
//
// Fields:
//  ID         – primary key identifier.
//  VenueID    – venue where the show takes place.
//  Title      – event title.
//  StartsAt   – when the show begins.
//  EndsAt     – when the show ends (must be after StartsAt).
//  PriceCents – price in cents for every seat of this show.
//  Status     – current state of the show (SCHEDULED, CANCELLED,
//               FINISHED).
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Show struct {
	ID         uint64    // shows.id
	VenueID    uint64    // shows.venue_id
	Title      string    // shows.title
	StartsAt   time.Time // shows.starts_at
	EndsAt     time.Time // shows.ends_at
	PriceCents uint32    // shows.price_cents
	Status     string    // shows.status
	CreatedAt  time.Time // shows.created_at
	UpdatedAt  time.Time // shows.updated_at
}
