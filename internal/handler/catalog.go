package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ikoruk/show-seat-booking/internal/model"
	"github.com/ikoruk/show-seat-booking/internal/repository"
)

// CatalogHandler covers venue and show administration plus the public
// browse endpoints.
type CatalogHandler struct {
	Store     *repository.Store
	Venues    *repository.VenueRepo
	Seats     *repository.SeatRepo
	Shows     *repository.ShowRepo
	ShowSeats *repository.ShowSeatRepo
}

func NewCatalogHandler(store *repository.Store, v *repository.VenueRepo, se *repository.SeatRepo, sh *repository.ShowRepo, ss *repository.ShowSeatRepo) *CatalogHandler {
	return &CatalogHandler{Store: store, Venues: v, Seats: se, Shows: sh, ShowSeats: ss}
}

// ----- DTOs -----

type createVenueReq struct {
	Name string `json:"name"`
}
type createSeatsReq struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}
type createShowReq struct {
	VenueID    uint64    `json:"venue_id"`
	Title      string    `json:"title"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	PriceCents uint32    `json:"price_cents"`
}

type venueResp struct {
	ID       uint64  `json:"id"`
	Name     string  `json:"name"`
	SeatRows *uint32 `json:"seat_rows,omitempty"`
	SeatCols *uint32 `json:"seat_cols,omitempty"`
}
type showResp struct {
	ID         uint64    `json:"id"`
	VenueID    uint64    `json:"venue_id"`
	Title      string    `json:"title"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	PriceCents uint32    `json:"price_cents"`
	Status     string    `json:"status"`
}

func venueResponse(v *model.Venue) venueResp {
	return venueResp{ID: v.ID, Name: v.Name, SeatRows: v.SeatRows, SeatCols: v.SeatCols}
}

func showResponse(s *model.Show) showResp {
	return showResp{ID: s.ID, VenueID: s.VenueID, Title: s.Title, StartsAt: s.StartsAt, EndsAt: s.EndsAt, PriceCents: s.PriceCents, Status: s.Status}
}

// CreateVenue handles POST /admin/venues.
func (h *CatalogHandler) CreateVenue(c echo.Context) error {
	var req createVenueReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	v := &model.Venue{Name: req.Name}
	if err := h.Venues.Create(ctx, v); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create venue failed"})
	}
	return c.JSON(http.StatusCreated, venueResponse(v))
}

// CreateSeats handles POST /admin/venues/:id/seats: it generates the
// rows x cols seat grid for a venue that does not have one yet.  Seat
// identity is immutable afterwards, so regeneration is rejected.
func (h *CatalogHandler) CreateSeats(c echo.Context) error {
	venueID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid venue id"})
	}
	var req createSeatsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Rows < 1 || req.Cols < 1 || req.Rows > 200 || req.Cols > 200 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "rows and cols must be between 1 and 200"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	if _, err := h.Venues.GetByID(ctx, venueID); err != nil {
		if errors.Is(err, repository.ErrVenueNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "venue not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup venue failed"})
	}

	err := h.Store.WithTx(ctx, func(txCtx context.Context) error {
		n, err := h.Seats.CountByVenue(txCtx, venueID)
		if err != nil {
			return err
		}
		if n > 0 {
			return errSeatsExist
		}
		seats := make([]model.Seat, 0, req.Rows*req.Cols)
		for r := 0; r < req.Rows; r++ {
			for n := 1; n <= req.Cols; n++ {
				seats = append(seats, model.Seat{
					VenueID:    venueID,
					RowLabel:   rowLabel(r),
					SeatNumber: uint32(n),
				})
			}
		}
		if err := h.Seats.CreateBulk(txCtx, seats); err != nil {
			return err
		}
		return h.Venues.SetLayout(txCtx, venueID, uint32(req.Rows), uint32(req.Cols))
	})
	if err != nil {
		if errors.Is(err, errSeatsExist) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "venue already has seats"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create seats failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"venue_id": venueID,
		"rows":     req.Rows,
		"cols":     req.Cols,
		"seats":    req.Rows * req.Cols,
	})
}

var errSeatsExist = errors.New("venue already has seats")

// CreateShow handles POST /admin/shows.  The show row and its full
// show_seat inventory commit atomically so a show is never visible
// half-seeded.
func (h *CatalogHandler) CreateShow(c echo.Context) error {
	var req createShowReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	switch {
	case req.VenueID == 0 || req.Title == "":
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "venue_id and title required"})
	case req.StartsAt.IsZero() || !req.EndsAt.After(req.StartsAt):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be after starts_at"})
	case req.PriceCents == 0:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price_cents required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	if _, err := h.Venues.GetByID(ctx, req.VenueID); err != nil {
		if errors.Is(err, repository.ErrVenueNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "venue not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup venue failed"})
	}
	seatIDs, err := h.Seats.IDsByVenue(ctx, req.VenueID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup seats failed"})
	}
	if len(seatIDs) == 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "venue has no seats"})
	}
	overlapping, err := h.Shows.FindOverlapping(ctx, req.VenueID, req.StartsAt, req.EndsAt)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "check schedule failed"})
	}
	if len(overlapping) > 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "venue already has a show in that time range"})
	}

	show := &model.Show{
		VenueID:    req.VenueID,
		Title:      req.Title,
		StartsAt:   req.StartsAt.UTC(),
		EndsAt:     req.EndsAt.UTC(),
		PriceCents: req.PriceCents,
		Status:     model.ShowScheduled,
	}
	err = h.Store.WithTx(ctx, func(txCtx context.Context) error {
		if err := h.Shows.Create(txCtx, show); err != nil {
			return err
		}
		return h.ShowSeats.CreateBulk(txCtx, show.ID, seatIDs, req.PriceCents)
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create show failed"})
	}
	return c.JSON(http.StatusCreated, showResponse(show))
}

// ListVenues handles GET /venues.
func (h *CatalogHandler) ListVenues(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	venues, err := h.Venues.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list venues failed"})
	}
	out := make([]venueResp, 0, len(venues))
	for i := range venues {
		out = append(out, venueResponse(&venues[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"venues": out})
}

// ListShows handles GET /shows.
func (h *CatalogHandler) ListShows(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	shows, err := h.Shows.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list shows failed"})
	}
	out := make([]showResp, 0, len(shows))
	for i := range shows {
		out = append(out, showResponse(&shows[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"shows": out})
}

// GetShow handles GET /shows/:id.
func (h *CatalogHandler) GetShow(c echo.Context) error {
	showID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	show, err := h.Shows.GetByID(ctx, showID)
	if err != nil {
		if errors.Is(err, repository.ErrShowNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup show failed"})
	}
	return c.JSON(http.StatusOK, showResponse(show))
}

// GetShowSeats handles GET /shows/:id/seats: the live seat map.  Always
// served fresh, never from the response cache.
func (h *CatalogHandler) GetShowSeats(c echo.Context) error {
	showID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Shows.GetByID(ctx, showID); err != nil {
		if errors.Is(err, repository.ErrShowNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup show failed"})
	}
	seats, err := h.ShowSeats.MapByShow(ctx, showID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup seats failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": showID, "seats": seats})
}
