package admission

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikoruk/show-seat-booking/internal/config"
	"github.com/ikoruk/show-seat-booking/internal/queue"
)

type fakeGate struct {
	tokens  map[string]bool
	markers map[string]bool
	counts  map[string]int64
	err     error
}

func newFakeGate() *fakeGate {
	return &fakeGate{
		tokens:  make(map[string]bool),
		markers: make(map[string]bool),
		counts:  make(map[string]int64),
	}
}

func (g *fakeGate) ConsumeAdmitToken(ctx context.Context, clientID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.tokens[clientID] {
		delete(g.tokens, clientID)
		return true, nil
	}
	return false, nil
}

func (g *fakeGate) HasQueueMarker(ctx context.Context, clientID string) (bool, error) {
	return g.markers[clientID], g.err
}

func (g *fakeGate) SetQueueMarker(ctx context.Context, clientID string, ttl time.Duration) error {
	if g.err != nil {
		return g.err
	}
	g.markers[clientID] = true
	return nil
}

// BumpDemand mirrors the saturating counter: at the threshold it stops
// incrementing and reports the request as not allowed.
func (g *fakeGate) BumpDemand(ctx context.Context, key string, threshold int, window time.Duration) (int64, bool, error) {
	if g.err != nil {
		return 0, false, g.err
	}
	if g.counts[key] >= int64(threshold) {
		return g.counts[key], false, nil
	}
	g.counts[key]++
	return g.counts[key], true, nil
}

func (g *fakeGate) ShowDemandKey(showID uint64) string { return "show:" + strconv.FormatUint(showID, 10) }
func (g *fakeGate) GlobalDemandKey() string            { return "global" }

type fakeEnqueuer struct {
	jobs []queue.DeferredAdmissionJob
	err  error
}

func (f *fakeEnqueuer) EnqueueDeferred(ctx context.Context, job queue.DeferredAdmissionJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func testAdmCfg() config.AdmissionConfig {
	return config.AdmissionConfig{
		Enabled:           true,
		ShowThreshold:     2,
		ShowWindow:        5 * time.Minute,
		GlobalThreshold:   100,
		GlobalWindow:      2 * time.Minute,
		MarkerTTL:         2 * time.Minute,
		AdmitTTL:          time.Minute,
		WorkerConcurrency: 10,
		WorkerDelayMin:    500 * time.Millisecond,
		WorkerDelayMax:    3 * time.Second,
		MaxAttempts:       3,
	}
}

// invoke runs one request through the middleware on the seat-lock route
// and reports whether it reached the wrapped handler.
func invoke(t *testing.T, ctrl *Controller, userID uint64) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	return invokeRoute(t, ctrl, userID, "/v1/shows/:id/bookings", "7")
}

func invokeRoute(t *testing.T, ctrl *Controller, userID uint64, route, id string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, route, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(route)
	c.SetParamNames("id")
	c.SetParamValues(id)
	if userID != 0 {
		c.Set("user_id", userID)
	}

	passed := false
	h := ctrl.Middleware()(func(c echo.Context) error {
		passed = true
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return rec, passed
}

func TestGatePassesUnderThreshold(t *testing.T) {
	gate := newFakeGate()
	enq := &fakeEnqueuer{}
	ctrl := NewController(gate, enq, testAdmCfg())

	_, passed := invoke(t, ctrl, 1)
	assert.True(t, passed)
	assert.Empty(t, enq.jobs)
	assert.Equal(t, int64(1), gate.counts["show:7"])
	assert.Equal(t, int64(1), gate.counts["global"])
}

func TestGateDefersOverShowThreshold(t *testing.T) {
	gate := newFakeGate()
	enq := &fakeEnqueuer{}
	ctrl := NewController(gate, enq, testAdmCfg())

	_, passed := invoke(t, ctrl, 1)
	assert.True(t, passed)
	_, passed = invoke(t, ctrl, 2)
	assert.True(t, passed)

	rec, passed := invoke(t, ctrl, 3)
	assert.False(t, passed)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"deferred"`)

	require.Len(t, enq.jobs, 1)
	assert.Equal(t, "u:3", enq.jobs[0].ClientID)
	assert.Equal(t, uint64(7), enq.jobs[0].ShowID)
	assert.True(t, gate.markers["u:3"])

	// The counter saturates; the deferral does not push it past the
	// threshold.
	assert.Equal(t, int64(2), gate.counts["show:7"])
}

func TestGateCountsShowDemandOnlyOnShowRoutes(t *testing.T) {
	gate := newFakeGate()
	enq := &fakeEnqueuer{}
	ctrl := NewController(gate, enq, testAdmCfg())

	// The :id on the confirm and cancel routes is a booking id; it must
	// not be charged against the show that shares the number.
	_, passed := invokeRoute(t, ctrl, 1, "/v1/bookings/:id/confirm", "42")
	assert.True(t, passed)
	_, passed = invokeRoute(t, ctrl, 1, "/v1/bookings/:id/cancel", "42")
	assert.True(t, passed)

	assert.Zero(t, gate.counts["show:42"])
	assert.Equal(t, int64(2), gate.counts["global"])
}

func TestGateDeferralOnBookingRouteCarriesNoShowID(t *testing.T) {
	gate := newFakeGate()
	enq := &fakeEnqueuer{}
	cfg := testAdmCfg()
	cfg.GlobalThreshold = 0 // saturate immediately
	ctrl := NewController(gate, enq, cfg)

	rec, passed := invokeRoute(t, ctrl, 4, "/v1/bookings/:id/confirm", "42")
	assert.False(t, passed)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Len(t, enq.jobs, 1)
	assert.Zero(t, enq.jobs[0].ShowID)
}

func TestGateKeepsDeferringQueuedClientWithoutRequeue(t *testing.T) {
	gate := newFakeGate()
	enq := &fakeEnqueuer{}
	ctrl := NewController(gate, enq, testAdmCfg())

	gate.markers["u:5"] = true

	rec, passed := invoke(t, ctrl, 5)
	assert.False(t, passed)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Empty(t, enq.jobs, "a queued client must not enqueue again")
}

func TestGateAdmitsTokenHolderExactlyOnce(t *testing.T) {
	gate := newFakeGate()
	enq := &fakeEnqueuer{}
	cfg := testAdmCfg()
	cfg.ShowThreshold = 0 // saturate immediately; only token holders pass
	ctrl := NewController(gate, enq, cfg)

	gate.tokens["u:9"] = true
	gate.markers["u:9"] = true

	_, passed := invoke(t, ctrl, 9)
	assert.True(t, passed, "token holder bypasses the counters")

	rec, passed := invoke(t, ctrl, 9)
	assert.False(t, passed, "token is one-shot")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGateFailsOpenOnStoreErrors(t *testing.T) {
	gate := newFakeGate()
	gate.err = errors.New("redis: connection refused")
	ctrl := NewController(gate, &fakeEnqueuer{}, testAdmCfg())

	_, passed := invoke(t, ctrl, 1)
	assert.True(t, passed)
}

func TestGateFailsOpenWhenEnqueueFails(t *testing.T) {
	gate := newFakeGate()
	enq := &fakeEnqueuer{err: errors.New("broker down")}
	cfg := testAdmCfg()
	cfg.ShowThreshold = 0
	ctrl := NewController(gate, enq, cfg)

	_, passed := invoke(t, ctrl, 1)
	assert.True(t, passed)
	assert.False(t, gate.markers["u:1"], "no marker without a job in flight")
}

func TestGateDisabledPassesThrough(t *testing.T) {
	cfg := testAdmCfg()
	cfg.Enabled = false
	ctrl := NewController(newFakeGate(), &fakeEnqueuer{}, cfg)

	_, passed := invoke(t, ctrl, 1)
	assert.True(t, passed)
}

func TestGateNilStorePassesThrough(t *testing.T) {
	ctrl := NewController(nil, &fakeEnqueuer{}, testAdmCfg())

	_, passed := invoke(t, ctrl, 1)
	assert.True(t, passed)
}

func TestGateFallsBackToIPForAnonymousClients(t *testing.T) {
	gate := newFakeGate()
	enq := &fakeEnqueuer{}
	cfg := testAdmCfg()
	cfg.ShowThreshold = 0
	ctrl := NewController(gate, enq, cfg)

	_, passed := invoke(t, ctrl, 0)
	assert.False(t, passed)
	require.Len(t, enq.jobs, 1)
	assert.Contains(t, enq.jobs[0].ClientID, "ip:")
}
