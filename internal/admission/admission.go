// Package admission implements the demand-aware gate that sits in front
// of the seat-locking endpoints.  Under normal load every request passes
// straight through; when per-show or global demand counters cross their
// thresholds the gate defers the client instead: it queues a promotion
// job on the broker, stamps a short-lived queue marker in Redis and
// answers 429 until the background worker grants an admitted token.
package admission

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ikoruk/show-seat-booking/internal/config"
	"github.com/ikoruk/show-seat-booking/internal/queue"
)

// Gate is the slice of the lock store the middleware needs.
type Gate interface {
	ConsumeAdmitToken(ctx context.Context, clientID string) (bool, error)
	HasQueueMarker(ctx context.Context, clientID string) (bool, error)
	SetQueueMarker(ctx context.Context, clientID string, ttl time.Duration) error
	BumpDemand(ctx context.Context, key string, threshold int, window time.Duration) (int64, bool, error)
	ShowDemandKey(showID uint64) string
	GlobalDemandKey() string
}

// Enqueuer publishes deferred-admission jobs for the worker to pick up.
type Enqueuer interface {
	EnqueueDeferred(ctx context.Context, job queue.DeferredAdmissionJob) error
}

// Controller wires the gate, the broker and the thresholds together.
type Controller struct {
	gate Gate
	enq  Enqueuer
	cfg  config.AdmissionConfig
}

// NewController builds the admission controller.  gate may be nil when
// Redis is unavailable; the middleware then degrades to a pass-through.
func NewController(gate Gate, enq Enqueuer, cfg config.AdmissionConfig) *Controller {
	return &Controller{gate: gate, enq: enq, cfg: cfg}
}

// Middleware returns the echo middleware enforcing admission on the
// wrapped routes.  Any Redis or broker failure fails open: availability
// of the booking path wins over precise throttling.
func (a *Controller) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !a.cfg.Enabled || a.gate == nil {
				return next(c)
			}
			ctx := c.Request().Context()
			clientID := a.clientID(c)

			// A previously deferred client that the worker has since
			// promoted carries a one-shot admitted token.
			ok, err := a.gate.ConsumeAdmitToken(ctx, clientID)
			if err != nil {
				a.debugf("consume token for %s: %v", clientID, err)
				return next(c)
			}
			if ok {
				a.debugf("client %s admitted via token", clientID)
				return next(c)
			}

			// Still queued: keep deferring rather than re-queueing.
			queued, err := a.gate.HasQueueMarker(ctx, clientID)
			if err != nil {
				a.debugf("check marker for %s: %v", clientID, err)
				return next(c)
			}
			if queued {
				return deferredResponse(c, a.retryEstimate())
			}

			over, err := a.overThreshold(ctx, c)
			if err != nil {
				a.debugf("demand check: %v", err)
				return next(c)
			}
			if !over {
				return next(c)
			}
			if err := a.deferClient(ctx, clientID, showIDParam(c)); err != nil {
				a.debugf("defer client %s: %v", clientID, err)
				return next(c)
			}
			return deferredResponse(c, a.retryEstimate())
		}
	}
}

// overThreshold bumps the per-show counter (when the route carries a
// show id) and the global counter.  Counters saturate at their
// thresholds, so a burst cannot push the deferral window further out.
func (a *Controller) overThreshold(ctx context.Context, c echo.Context) (bool, error) {
	if showID := showIDParam(c); showID != 0 {
		count, allowed, err := a.gate.BumpDemand(ctx, a.gate.ShowDemandKey(showID), a.cfg.ShowThreshold, a.cfg.ShowWindow)
		if err != nil {
			return false, fmt.Errorf("show counter: %w", err)
		}
		if !allowed {
			a.debugf("show %d demand %d at threshold", showID, count)
			return true, nil
		}
	}
	count, allowed, err := a.gate.BumpDemand(ctx, a.gate.GlobalDemandKey(), a.cfg.GlobalThreshold, a.cfg.GlobalWindow)
	if err != nil {
		return false, fmt.Errorf("global counter: %w", err)
	}
	if !allowed {
		a.debugf("global demand %d at threshold", count)
		return true, nil
	}
	return false, nil
}

// deferClient enqueues the promotion job first and only then stamps the
// marker, so a client is never marked queued without a job in flight.
func (a *Controller) deferClient(ctx context.Context, clientID string, showID uint64) error {
	job := queue.DeferredAdmissionJob{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		ShowID:     showID,
		DelayMS:    a.randomDelayMS(),
		Priority:   uint8(rand.Intn(queue.MaxJobPriority + 1)),
		Attempt:    0,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := a.enq.EnqueueDeferred(ctx, job); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	if err := a.gate.SetQueueMarker(ctx, clientID, a.cfg.MarkerTTL); err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	a.debugf("client %s deferred (job %s)", clientID, job.ID)
	return nil
}

func (a *Controller) randomDelayMS() int64 {
	spread := a.cfg.WorkerDelayMax - a.cfg.WorkerDelayMin
	d := a.cfg.WorkerDelayMin
	if spread > 0 {
		d += time.Duration(rand.Int63n(int64(spread)))
	}
	return d.Milliseconds()
}

// retryEstimate is what we tell deferred clients to wait before trying
// again: the worst-case simulated processing delay, rounded up.
func (a *Controller) retryEstimate() int {
	secs := int(a.cfg.WorkerDelayMax.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// clientID prefers the authenticated user id so a user queues once
// across devices; anonymous traffic falls back to the peer IP.
func (a *Controller) clientID(c echo.Context) string {
	if v := c.Get("user_id"); v != nil {
		switch id := v.(type) {
		case uint64:
			return "u:" + strconv.FormatUint(id, 10)
		case string:
			return "u:" + id
		}
	}
	return "ip:" + c.RealIP()
}

func (a *Controller) debugf(format string, args ...any) {
	if a.cfg.Debug {
		log.Printf("admission: "+format, args...)
	}
}

// showIDParam extracts the show id on show-scoped routes.  Booking
// routes carry an :id param too, but there it names a booking, so its
// value must never feed a show's demand counter.
func showIDParam(c echo.Context) uint64 {
	if !strings.Contains(c.Path(), "/shows/:id") {
		return 0
	}
	raw := c.Param("id")
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func deferredResponse(c echo.Context, retryAfter int) error {
	c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
	return c.JSON(http.StatusTooManyRequests, echo.Map{
		"status":      "deferred",
		"message":     "high demand, your request has been queued",
		"retry_after": retryAfter,
	})
}
