// Package router wires handlers, auth and the admission gate onto the
// echo instance.  The gate wraps the browse and reservation routes; the
// response cache wraps only the public show list and detail.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/ikoruk/show-seat-booking/internal/handler"
	"github.com/ikoruk/show-seat-booking/internal/middleware"
	"github.com/ikoruk/show-seat-booking/internal/model"
)

// Deps carries everything the route table needs.
type Deps struct {
	JWTSecret string
	Health    *handler.HealthHandler
	Auth      *handler.AuthHandler
	Booking   *handler.BookingHandler
	Catalog   *handler.CatalogHandler
	Gate      echo.MiddlewareFunc // admission; nil when disabled
	Cache     echo.MiddlewareFunc // catalog response cache; nil when disabled
}

// Register mounts every route on e.
func Register(e *echo.Echo, d Deps) {
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	gate := d.Gate
	if gate == nil {
		gate = passthrough
	}
	cache := d.Cache
	if cache == nil {
		cache = passthrough
	}
	auth := middleware.JWTAuth(d.JWTSecret)
	adminOnly := middleware.RequireRole(model.RoleAdmin)

	e.GET("/healthz", d.Health.Health)

	v1 := e.Group("/v1")

	v1.POST("/auth/register", d.Auth.Register)
	v1.POST("/auth/login", d.Auth.Login)
	v1.GET("/me", d.Auth.Me, auth)

	// Public browse.  The seat map is gated but never cached.
	v1.GET("/shows", d.Catalog.ListShows, gate, cache)
	v1.GET("/shows/:id", d.Catalog.GetShow, gate, cache)
	v1.GET("/shows/:id/seats", d.Catalog.GetShowSeats, gate)

	// Reservation path.  Auth runs before the gate so deferred clients
	// queue under their user id rather than their IP.
	v1.POST("/shows/:id/bookings", d.Booking.LockSeats, auth, gate)
	v1.POST("/bookings/:id/confirm", d.Booking.ConfirmBooking, auth, gate)
	v1.POST("/bookings/:id/cancel", d.Booking.CancelBooking, auth, gate)
	v1.GET("/bookings/:id", d.Booking.GetBooking, auth)
	v1.GET("/my-bookings", d.Booking.ListMyBookings, auth)

	// Catalog administration.
	v1.POST("/venues", d.Catalog.CreateVenue, auth, adminOnly)
	v1.POST("/venues/:id/seats", d.Catalog.CreateSeats, auth, adminOnly)
	v1.POST("/shows", d.Catalog.CreateShow, auth, adminOnly)
	v1.GET("/venues", d.Catalog.ListVenues, auth, adminOnly)
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
