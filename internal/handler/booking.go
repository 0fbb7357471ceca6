package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ikoruk/show-seat-booking/internal/model"
	"github.com/ikoruk/show-seat-booking/internal/queue"
	"github.com/ikoruk/show-seat-booking/internal/repository"
	"github.com/ikoruk/show-seat-booking/internal/reservation"
)

// ReservationEngine is the surface of the reservation engine the
// booking endpoints drive.
type ReservationEngine interface {
	Lock(ctx context.Context, showID, userID uint64, seatIDs []uint64) (*model.Booking, []model.SeatDetail, error)
	Confirm(ctx context.Context, bookingID, userID uint64, paymentRef string) (*model.Booking, []model.SeatDetail, error)
	Cancel(ctx context.Context, bookingID, userID uint64) (*model.Booking, []model.SeatDetail, error)
	HoldWindow() time.Duration
}

// EventPublisher emits the booking.confirmed event.  Publishing is
// best-effort: the booking is already committed when it runs.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// Read-side dependencies, satisfied by the repositories.
type BookingReader interface {
	GetByIDForUser(ctx context.Context, id, userID uint64) (*model.Booking, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
}
type BookingSeatReader interface {
	ByBooking(ctx context.Context, bookingID uint64) ([]model.SeatDetail, error)
}
type ShowGetter interface {
	GetByID(ctx context.Context, id uint64) (*model.Show, error)
}

// BookingHandler exposes the seat lock / confirm / cancel endpoints and
// the customer's booking queries.
type BookingHandler struct {
	Engine    ReservationEngine
	Bookings  BookingReader
	ShowSeats BookingSeatReader
	Shows     ShowGetter
	Events    EventPublisher // nil disables event publishing
}

func NewBookingHandler(engine ReservationEngine, b BookingReader, ss BookingSeatReader, s ShowGetter, ev EventPublisher) *BookingHandler {
	return &BookingHandler{Engine: engine, Bookings: b, ShowSeats: ss, Shows: s, Events: ev}
}

// ----- DTOs -----

type lockReq struct {
	SeatIDs []uint64 `json:"seat_ids"`
}
type confirmReq struct {
	PaymentRef string `json:"payment_ref"`
}

type seatPart struct {
	SeatID uint64 `json:"seat_id"`
	Row    string `json:"row"`
	Number uint32 `json:"number"`
	Status string `json:"status"`
}
type bookingResp struct {
	ID               uint64     `json:"id"`
	ShowID           uint64     `json:"show_id"`
	Status           string     `json:"status"`
	TotalAmountCents uint32     `json:"total_amount_cents"`
	PaymentRef       *string    `json:"payment_ref,omitempty"`
	Seats            []seatPart `json:"seats,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func seatParts(details []model.SeatDetail) []seatPart {
	out := make([]seatPart, 0, len(details))
	for _, d := range details {
		out = append(out, seatPart{SeatID: d.SeatID, Row: d.RowLabel, Number: d.SeatNumber, Status: d.Status})
	}
	return out
}

func (h *BookingHandler) bookingResponse(b *model.Booking, seats []model.SeatDetail) bookingResp {
	resp := bookingResp{
		ID:               b.ID,
		ShowID:           b.ShowID,
		Status:           b.Status,
		TotalAmountCents: b.TotalAmountCents,
		PaymentRef:       b.PaymentRef,
		Seats:            seatParts(seats),
		CreatedAt:        b.CreatedAt,
	}
	if b.Status == model.BookingPending {
		exp := b.CreatedAt.Add(h.Engine.HoldWindow())
		resp.ExpiresAt = &exp
	}
	return resp
}

// LockSeats handles POST /shows/:id/bookings.  On success the seats are
// LOCKED under a new PENDING booking and the hold clock starts.
func (h *BookingHandler) LockSeats(c echo.Context) error {
	showID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	var req lockReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	show, err := h.Shows.GetByID(ctx, showID)
	if err != nil {
		if errors.Is(err, repository.ErrShowNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup show failed"})
	}
	if show.Status != model.ShowScheduled {
		return c.JSON(http.StatusConflict, echo.Map{"error": "show is not open for booking"})
	}

	booking, seats, err := h.Engine.Lock(ctx, showID, userID(c), req.SeatIDs)
	if err != nil {
		return h.reservationError(c, err)
	}
	return c.JSON(http.StatusCreated, h.bookingResponse(booking, seats))
}

// ConfirmBooking handles POST /bookings/:id/confirm.
func (h *BookingHandler) ConfirmBooking(c echo.Context) error {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req confirmReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	booking, seats, err := h.Engine.Confirm(ctx, bookingID, userID(c), strings.TrimSpace(req.PaymentRef))
	if err != nil {
		return h.reservationError(c, err)
	}
	h.publishConfirmed(booking, seats)
	return c.JSON(http.StatusOK, h.bookingResponse(booking, seats))
}

// CancelBooking handles POST /bookings/:id/cancel.  Cancelling a
// PENDING or CONFIRMED booking releases its seats; cancel is otherwise
// rejected, never silently repeated.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	booking, seats, err := h.Engine.Cancel(ctx, bookingID, userID(c))
	if err != nil {
		return h.reservationError(c, err)
	}
	return c.JSON(http.StatusOK, h.bookingResponse(booking, seats))
}

// GetBooking handles GET /bookings/:id.  Users only ever see their own
// bookings; anything else reads as not found.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	booking, err := h.Bookings.GetByIDForUser(ctx, bookingID, userID(c))
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup booking failed"})
	}
	seats, err := h.ShowSeats.ByBooking(ctx, bookingID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup seats failed"})
	}
	return c.JSON(http.StatusOK, h.bookingResponse(booking, seats))
}

// ListMyBookings handles GET /bookings.
func (h *BookingHandler) ListMyBookings(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	bookings, err := h.Bookings.ListByUser(ctx, userID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list bookings failed"})
	}
	out := make([]bookingResp, 0, len(bookings))
	for i := range bookings {
		out = append(out, h.bookingResponse(&bookings[i], nil))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// publishConfirmed emits the booking.confirmed event.  Failures are
// logged and swallowed; downstream consumers tolerate gaps.
func (h *BookingHandler) publishConfirmed(b *model.Booking, seats []model.SeatDetail) {
	if h.Events == nil {
		return
	}
	labels := make([]string, 0, len(seats))
	for _, s := range seats {
		labels = append(labels, fmtSeatLabel(s))
	}
	title := ""
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if show, err := h.Shows.GetByID(ctx, b.ShowID); err == nil {
		title = show.Title
	}
	ev := queue.BookingConfirmedEvent{
		BookingID:        b.ID,
		UserID:           b.UserID,
		ShowID:           b.ShowID,
		ShowTitle:        title,
		SeatLabels:       labels,
		TotalAmountCents: b.TotalAmountCents,
		ConfirmedAt:      b.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if err := h.Events.PublishBookingConfirmed(ctx, ev); err != nil {
		log.Printf("booking: publish confirmed event for %d: %v", b.ID, err)
	}
}

func fmtSeatLabel(s model.SeatDetail) string {
	return s.RowLabel + "-" + strconv.FormatUint(uint64(s.SeatNumber), 10)
}

// reservationError maps engine errors onto HTTP responses.
func (h *BookingHandler) reservationError(c echo.Context, err error) error {
	var conflict *reservation.SeatConflictError
	switch {
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":       "seats unavailable",
			"unavailable": conflict.Unavailable,
			"invalid":     conflict.Invalid,
		})
	case errors.Is(err, reservation.ErrNoSeats):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_ids required"})
	case errors.Is(err, reservation.ErrBookingNotFound), errors.Is(err, repository.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, reservation.ErrBookingExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "hold expired, seats released"})
	case errors.Is(err, reservation.ErrBookingCancelled):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking already cancelled"})
	case errors.Is(err, reservation.ErrBookingNotPending):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking is not pending"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reservation failed"})
	}
}
