package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikoruk/show-seat-booking/internal/clock"
	"github.com/ikoruk/show-seat-booking/internal/model"
)

// memStore is an in-memory stand-in for the relational store.  WithTx
// serializes callers on a mutex the way InnoDB row locks serialize the
// real transactions, and rolls the state back when the function errors.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	bookings map[uint64]*model.Booking
	seats    map[uint64]*model.ShowSeat // keyed by seat id, single show per test
	nextID   uint64

	now       func() time.Time
	createErr error // forced failure of booking creation
	commitErr error // forced failure of the commit itself
}

func newMemStore(clk clock.Clock) *memStore {
	return &memStore{
		bookings: make(map[uint64]*model.Booking),
		seats:    make(map[uint64]*model.ShowSeat),
		now:      clk.Now,
	}
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	bookings, seats := m.snapshot()
	err := fn(ctx)
	if err == nil && m.commitErr != nil {
		err = m.commitErr
	}
	if err != nil {
		m.mu.Lock()
		m.bookings, m.seats = bookings, seats
		m.mu.Unlock()
	}
	return err
}

func (m *memStore) snapshot() (map[uint64]*model.Booking, map[uint64]*model.ShowSeat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bookings := make(map[uint64]*model.Booking, len(m.bookings))
	for id, b := range m.bookings {
		cp := *b
		bookings[id] = &cp
	}
	seats := make(map[uint64]*model.ShowSeat, len(m.seats))
	for id, s := range m.seats {
		cp := *s
		seats[id] = &cp
	}
	return bookings, seats
}

// addSeat seeds an AVAILABLE seat row.
func (m *memStore) addSeat(showID, seatID uint64, price uint32) {
	m.seats[seatID] = &model.ShowSeat{
		ID:         seatID,
		ShowID:     showID,
		SeatID:     seatID,
		Status:     model.SeatAvailable,
		PriceCents: price,
	}
}

func (m *memStore) detail(s *model.ShowSeat) model.SeatDetail {
	d := model.SeatDetail{
		SeatID:     s.SeatID,
		ShowID:     s.ShowID,
		RowLabel:   "A",
		SeatNumber: uint32(s.SeatID),
		Status:     s.Status,
		PriceCents: s.PriceCents,
	}
	if s.LockedAt != nil {
		at := *s.LockedAt
		d.LockedAt = &at
	}
	return d
}

// ----- BookingStore -----

func (m *memStore) Create(ctx context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	b.ID = m.nextID
	b.CreatedAt = m.now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *memStore) GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) SetStatus(ctx context.Context, id uint64, status string, paymentRef *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrBookingNotFound
	}
	b.Status = status
	b.PaymentRef = paymentRef
	b.UpdatedAt = m.now()
	return nil
}

func (m *memStore) ExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint64
	for id, b := range m.bookings {
		if b.Status == model.BookingPending && b.CreatedAt.Before(cutoff) && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ----- ShowSeatStore -----

func (m *memStore) ForUpdate(ctx context.Context, showID uint64, seatIDs []uint64) ([]model.SeatDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SeatDetail
	for _, id := range seatIDs {
		if s, ok := m.seats[id]; ok && s.ShowID == showID {
			out = append(out, m.detail(s))
		}
	}
	return out, nil
}

func (m *memStore) ByBookingForUpdate(ctx context.Context, bookingID uint64) ([]model.SeatDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SeatDetail
	for _, s := range m.seats {
		if s.BookingID != nil && *s.BookingID == bookingID {
			out = append(out, m.detail(s))
		}
	}
	return out, nil
}

func (m *memStore) MarkLocked(ctx context.Context, showID uint64, seatIDs []uint64, bookingID uint64, lockedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range seatIDs {
		s, ok := m.seats[id]
		if !ok || s.ShowID != showID {
			continue
		}
		at := lockedAt
		s.Status = model.SeatLocked
		s.BookingID = &bookingID
		s.LockedAt = &at
	}
	return nil
}

func (m *memStore) MarkBooked(ctx context.Context, bookingID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.seats {
		if s.BookingID != nil && *s.BookingID == bookingID && s.Status == model.SeatLocked {
			s.Status = model.SeatBooked
			s.LockedAt = nil
		}
	}
	return nil
}

func (m *memStore) ReleaseByBooking(ctx context.Context, bookingID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.seats {
		if s.BookingID != nil && *s.BookingID == bookingID {
			s.Status = model.SeatAvailable
			s.BookingID = nil
			s.LockedAt = nil
		}
	}
	return nil
}

// fakeLocker emulates the Redis lock store with a plain map.
type fakeLocker struct {
	mu      sync.Mutex
	entries map[string]string
	denied  map[uint64]bool // seat ids whose acquisition fails (held elsewhere)
	err     error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{entries: make(map[string]string), denied: make(map[uint64]bool)}
}

func (f *fakeLocker) key(showID, seatID uint64) string {
	return fmt.Sprintf("%d:%d", showID, seatID)
}

func (f *fakeLocker) AcquireSeatLock(ctx context.Context, showID, seatID uint64, holder string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.denied[seatID] {
		return false, nil
	}
	k := f.key(showID, seatID)
	if _, held := f.entries[k]; held {
		return false, nil
	}
	f.entries[k] = holder
	return true, nil
}

func (f *fakeLocker) ReleaseSeatLocks(ctx context.Context, showID uint64, seatIDs ...uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range seatIDs {
		delete(f.entries, f.key(showID, id))
	}
	return nil
}

func (f *fakeLocker) holds(showID, seatID uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[f.key(showID, seatID)]
	return ok
}

const (
	testShow = uint64(7)
	alice    = uint64(101)
	bob      = uint64(102)
)

func newFixture(t *testing.T) (*memStore, *fakeLocker, *clock.Fixed, *Engine) {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC))
	store := newMemStore(clk)
	locker := newFakeLocker()
	eng := New(store, store, store, locker, clk, 10*time.Minute, 100)
	return store, locker, clk, eng
}

func TestLockGrantsAllSeatsAtomically(t *testing.T) {
	store, locker, _, eng := newFixture(t)
	store.addSeat(testShow, 1, 1500)
	store.addSeat(testShow, 2, 1500)
	store.addSeat(testShow, 3, 2000)

	booking, seats, err := eng.Lock(context.Background(), testShow, alice, []uint64{1, 2, 3})
	require.NoError(t, err)
	require.NotNil(t, booking)

	assert.Equal(t, model.BookingPending, booking.Status)
	assert.Equal(t, uint32(5000), booking.TotalAmountCents)
	assert.Len(t, seats, 3)
	for _, d := range seats {
		assert.Equal(t, model.SeatLocked, d.Status)
		assert.NotNil(t, d.LockedAt)
	}
	for id := uint64(1); id <= 3; id++ {
		assert.Equal(t, model.SeatLocked, store.seats[id].Status)
		require.NotNil(t, store.seats[id].BookingID)
		assert.Equal(t, booking.ID, *store.seats[id].BookingID)
		assert.True(t, locker.holds(testShow, id))
	}
}

func TestLockDedupesAndRejectsEmpty(t *testing.T) {
	store, _, _, eng := newFixture(t)
	store.addSeat(testShow, 1, 1000)

	_, _, err := eng.Lock(context.Background(), testShow, alice, nil)
	assert.ErrorIs(t, err, ErrNoSeats)

	_, _, err = eng.Lock(context.Background(), testShow, alice, []uint64{0, 0})
	assert.ErrorIs(t, err, ErrNoSeats)

	booking, seats, err := eng.Lock(context.Background(), testShow, alice, []uint64{1, 1, 1})
	require.NoError(t, err)
	assert.Len(t, seats, 1)
	assert.Equal(t, uint32(1000), booking.TotalAmountCents)
}

func TestLockReportsConflictsWithoutPartialGrant(t *testing.T) {
	store, locker, _, eng := newFixture(t)
	store.addSeat(testShow, 1, 1000)
	store.addSeat(testShow, 2, 1000)

	_, _, err := eng.Lock(context.Background(), testShow, alice, []uint64{2})
	require.NoError(t, err)

	_, _, err = eng.Lock(context.Background(), testShow, bob, []uint64{1, 2, 99})
	var conflict *SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []uint64{2}, conflict.Unavailable)
	assert.Equal(t, []uint64{99}, conflict.Invalid)

	// Seat 1 was grantable but must not be touched.
	assert.Equal(t, model.SeatAvailable, store.seats[1].Status)
	assert.False(t, locker.holds(testShow, 1))
	assert.Len(t, store.bookings, 1)
}

func TestLockLosesDistributedRaceAndRollsBack(t *testing.T) {
	store, locker, _, eng := newFixture(t)
	store.addSeat(testShow, 1, 1000)
	store.addSeat(testShow, 2, 1000)

	// Another node holds seat 2's entry; our relational check cannot
	// see that yet.
	locker.denied[2] = true

	_, _, err := eng.Lock(context.Background(), testShow, alice, []uint64{1, 2})
	var conflict *SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []uint64{2}, conflict.Unavailable)

	// The entry acquired for seat 1 before the miss must be released.
	assert.False(t, locker.holds(testShow, 1))
	assert.Equal(t, model.SeatAvailable, store.seats[1].Status)
	assert.Empty(t, store.bookings)
}

func TestLockReleasesEntriesWhenCommitFails(t *testing.T) {
	store, locker, _, eng := newFixture(t)
	store.addSeat(testShow, 1, 1000)
	store.commitErr = errors.New("deadlock victim")

	_, _, err := eng.Lock(context.Background(), testShow, alice, []uint64{1})
	require.Error(t, err)
	assert.False(t, locker.holds(testShow, 1))
	assert.Equal(t, model.SeatAvailable, store.seats[1].Status)
}

func TestConfirmBooksSeatsAndRecordsPayment(t *testing.T) {
	store, locker, clk, eng := newFixture(t)
	store.addSeat(testShow, 1, 1000)
	store.addSeat(testShow, 2, 1000)

	booking, _, err := eng.Lock(context.Background(), testShow, alice, []uint64{1, 2})
	require.NoError(t, err)

	clk.Advance(5 * time.Minute) // inside the hold window

	confirmed, seats, err := eng.Confirm(context.Background(), booking.ID, alice, "pay_123")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.PaymentRef)
	assert.Equal(t, "pay_123", *confirmed.PaymentRef)
	for _, d := range seats {
		assert.Equal(t, model.SeatBooked, d.Status)
	}
	for id := uint64(1); id <= 2; id++ {
		assert.Equal(t, model.SeatBooked, store.seats[id].Status)
		assert.Nil(t, store.seats[id].LockedAt)
		assert.False(t, locker.holds(testShow, id), "lock entries are dropped once seats leave LOCKED")
	}
}

func TestConfirmAfterHoldWindowExpiresBooking(t *testing.T) {
	store, locker, clk, eng := newFixture(t)
	store.addSeat(testShow, 1, 1000)

	booking, _, err := eng.Lock(context.Background(), testShow, alice, []uint64{1})
	require.NoError(t, err)

	clk.Advance(10*time.Minute + time.Second)

	_, _, err = eng.Confirm(context.Background(), booking.ID, alice, "pay_late")
	assert.ErrorIs(t, err, ErrBookingExpired)

	// The repair is committed even though the call errors.
	assert.Equal(t, model.SeatAvailable, store.seats[1].Status)
	assert.Nil(t, store.seats[1].BookingID)
	assert.Equal(t, model.BookingCancelled, store.bookings[booking.ID].Status)
	assert.False(t, locker.holds(testShow, 1))
}

func TestConfirmRejectsWrongUserAndWrongState(t *testing.T) {
	store, _, _, eng := newFixture(t)
	store.addSeat(testShow, 1, 1000)

	booking, _, err := eng.Lock(context.Background(), testShow, alice, []uint64{1})
	require.NoError(t, err)

	_, _, err = eng.Confirm(context.Background(), booking.ID, bob, "pay")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, _, err = eng.Confirm(context.Background(), booking.ID, alice, "pay")
	require.NoError(t, err)

	// Confirming twice is not pending any more.
	_, _, err = eng.Confirm(context.Background(), booking.ID, alice, "pay")
	assert.ErrorIs(t, err, ErrBookingNotPending)
}

func TestCancelReleasesSeatsAndRejectsRepeat(t *testing.T) {
	store, locker, _, eng := newFixture(t)
	store.addSeat(testShow, 1, 1000)

	booking, _, err := eng.Lock(context.Background(), testShow, alice, []uint64{1})
	require.NoError(t, err)

	cancelled, seats, err := eng.Cancel(context.Background(), booking.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	assert.Len(t, seats, 1)
	assert.Equal(t, model.SeatAvailable, store.seats[1].Status)
	assert.False(t, locker.holds(testShow, 1))

	_, _, err = eng.Cancel(context.Background(), booking.ID, alice)
	assert.ErrorIs(t, err, ErrBookingCancelled)
}

func TestCancelConfirmedBookingReleasesSeats(t *testing.T) {
	store, _, _, eng := newFixture(t)
	store.addSeat(testShow, 1, 1000)

	booking, _, err := eng.Lock(context.Background(), testShow, alice, []uint64{1})
	require.NoError(t, err)
	_, _, err = eng.Confirm(context.Background(), booking.ID, alice, "pay")
	require.NoError(t, err)

	_, _, err = eng.Cancel(context.Background(), booking.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, store.seats[1].Status)
	assert.Equal(t, model.BookingCancelled, store.bookings[booking.ID].Status)
}

func TestConcurrentLockHasExactlyOneWinner(t *testing.T) {
	store, _, _, eng := newFixture(t)
	store.addSeat(testShow, 1, 1000)

	const contenders = 16
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = eng.Lock(context.Background(), testShow, uint64(200+i), []uint64{1})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var conflict *SeatConflictError
		assert.ErrorAs(t, err, &conflict)
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, model.SeatLocked, store.seats[1].Status)
	assert.Len(t, store.bookings, 1)
}

func TestReapExpiredReclaimsOnlyStaleHolds(t *testing.T) {
	store, locker, clk, eng := newFixture(t)
	store.addSeat(testShow, 1, 1000)
	store.addSeat(testShow, 2, 1000)

	stale, _, err := eng.Lock(context.Background(), testShow, alice, []uint64{1})
	require.NoError(t, err)

	clk.Advance(11 * time.Minute)

	fresh, _, err := eng.Lock(context.Background(), testShow, bob, []uint64{2})
	require.NoError(t, err)

	n, err := eng.ReapExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.BookingCancelled, store.bookings[stale.ID].Status)
	assert.Equal(t, model.SeatAvailable, store.seats[1].Status)
	assert.False(t, locker.holds(testShow, 1))

	assert.Equal(t, model.BookingPending, store.bookings[fresh.ID].Status)
	assert.Equal(t, model.SeatLocked, store.seats[2].Status)
	assert.True(t, locker.holds(testShow, 2))
}

func TestReapSkipsBookingsSettledSinceScan(t *testing.T) {
	store, _, clk, eng := newFixture(t)
	store.addSeat(testShow, 1, 1000)

	booking, _, err := eng.Lock(context.Background(), testShow, alice, []uint64{1})
	require.NoError(t, err)
	_, _, err = eng.Confirm(context.Background(), booking.ID, alice, "pay")
	require.NoError(t, err)

	clk.Advance(time.Hour)

	n, err := eng.ReapExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.SeatBooked, store.seats[1].Status)
}

// The lazy expiry in Confirm and the sweeper's reap must land on the
// same final state for the same expired booking.
func TestConfirmAndSweepConvergeOnExpiredState(t *testing.T) {
	run := func(viaSweep bool) (*memStore, uint64) {
		store, _, clk, eng := newFixture(t)
		store.addSeat(testShow, 1, 1000)
		booking, _, err := eng.Lock(context.Background(), testShow, alice, []uint64{1})
		require.NoError(t, err)
		clk.Advance(11 * time.Minute)
		if viaSweep {
			_, err = eng.ReapExpired(context.Background())
			require.NoError(t, err)
		} else {
			_, _, err = eng.Confirm(context.Background(), booking.ID, alice, "pay")
			require.ErrorIs(t, err, ErrBookingExpired)
		}
		return store, booking.ID
	}

	lazy, lazyID := run(false)
	swept, sweptID := run(true)

	assert.Equal(t, swept.bookings[sweptID].Status, lazy.bookings[lazyID].Status)
	assert.Equal(t, swept.seats[1].Status, lazy.seats[1].Status)
	assert.Equal(t, swept.seats[1].BookingID, lazy.seats[1].BookingID)
	assert.Equal(t, swept.seats[1].LockedAt, lazy.seats[1].LockedAt)
}

func TestLockWithoutLockerStillSerializes(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC))
	store := newMemStore(clk)
	store.addSeat(testShow, 1, 1000)
	eng := New(store, store, store, nil, clk, 10*time.Minute, 100)

	_, _, err := eng.Lock(context.Background(), testShow, alice, []uint64{1})
	require.NoError(t, err)

	_, _, err = eng.Lock(context.Background(), testShow, bob, []uint64{1})
	var conflict *SeatConflictError
	assert.ErrorAs(t, err, &conflict)
}
