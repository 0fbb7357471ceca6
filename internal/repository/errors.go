// Package repository contains the data access layer over MySQL.  This
// file defines sentinel errors shared across repositories so that
// higher layers can distinguish failure scenarios with errors.Is.
package repository

import "errors"

// ErrShowNotFound indicates that a show was not located in the DB.
var ErrShowNotFound = errors.New("show not found")

// ErrVenueNotFound indicates that a venue was not located in the DB.
var ErrVenueNotFound = errors.New("venue not found")

// ErrBookingNotFound indicates that a booking does not exist.  Handlers
// also map ownership mismatches onto this error so that probing other
// users' bookings is indistinguishable from probing unknown ids.
var ErrBookingNotFound = errors.New("booking not found")

// ErrEmailExists is returned when registering a user with an email that
// is already taken.
var ErrEmailExists = errors.New("email already exists")
