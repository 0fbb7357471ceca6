// Package lockstore wraps the Redis client behind the operations the
// reservation protocol needs from its distributed lock store: per-seat
// lock entries, demand counters, deferred-admission markers and tokens,
// and the sweep leader lock.  Every key is TTL-bounded; the relational
// store remains the durable source of record and all entries here are
// safe to delete redundantly.
package lockstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a thin, key-schema-aware layer over a Redis client.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New wraps a Redis client.  An empty prefix defaults to "ssb".
func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "ssb"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) seatKey(showID, seatID uint64) string {
	return fmt.Sprintf("%s:seatlock:%d:%d", s.prefix, showID, seatID)
}

func (s *Store) admitKey(clientID string) string {
	return fmt.Sprintf("%s:admit:%s", s.prefix, clientID)
}

func (s *Store) markerKey(clientID string) string {
	return fmt.Sprintf("%s:queued:%s", s.prefix, clientID)
}

// ShowDemandKey names the per-show demand counter.
func (s *Store) ShowDemandKey(showID uint64) string {
	return fmt.Sprintf("%s:demand:show:%d", s.prefix, showID)
}

// GlobalDemandKey names the system-wide demand counter.
func (s *Store) GlobalDemandKey() string {
	return s.prefix + ":demand:global"
}

// AcquireSeatLock attempts to place the distributed lock entry for a
// (show, seat) pair using SET NX with the hold window as TTL.  The value
// records the holder so operators can attribute a stuck lock.  Returns
// false when another process already holds the entry.
func (s *Store) AcquireSeatLock(ctx context.Context, showID, seatID uint64, holder string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, s.seatKey(showID, seatID), holder, ttl).Result()
}

// ReleaseSeatLocks deletes the lock entries for the given seats of a
// show in one round trip.  Deleting an absent entry is a no-op, so every
// path that moves a seat out of LOCKED may call this redundantly.
func (s *Store) ReleaseSeatLocks(ctx context.Context, showID uint64, seatIDs ...uint64) error {
	if len(seatIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		keys = append(keys, s.seatKey(showID, id))
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// TryAcquireSweepLock takes the system-wide sweep leader lock.  Exactly
// one sweep runs at a time across all instances; the TTL frees the lock
// if the holder crashes mid-sweep.
func (s *Store) TryAcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, s.prefix+":sweep:leader", "1", ttl).Result()
}

// ReleaseSweepLock drops the sweep leader lock.
func (s *Store) ReleaseSweepLock(ctx context.Context) error {
	return s.rdb.Del(ctx, s.prefix+":sweep:leader").Err()
}

// GrantAdmitToken writes the short-lived token the admission gate honors
// on the client's next request.
func (s *Store) GrantAdmitToken(ctx context.Context, clientID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.admitKey(clientID), "1", ttl).Err()
}

// ConsumeAdmitToken atomically reads and deletes the client's admitted
// token, returning whether one existed.  A token admits exactly one
// request.
func (s *Store) ConsumeAdmitToken(ctx context.Context, clientID string) (bool, error) {
	err := s.rdb.GetDel(ctx, s.admitKey(clientID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetQueueMarker records that a client has been placed on the deferred
// admission queue, so repeated requests keep receiving the deferred
// signal instead of being re-queued.
func (s *Store) SetQueueMarker(ctx context.Context, clientID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.markerKey(clientID), "1", ttl).Err()
}

// HasQueueMarker reports whether the client's queue marker is still
// present.
func (s *Store) HasQueueMarker(ctx context.Context, clientID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.markerKey(clientID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClearQueueMarker removes the client's queue marker once the worker has
// promoted it to an admitted token.
func (s *Store) ClearQueueMarker(ctx context.Context, clientID string) error {
	return s.rdb.Del(ctx, s.markerKey(clientID)).Err()
}

// bumpScript increments a demand counter only while it is below the
// threshold, arming the window TTL on the first increment.  Counters at
// or above the threshold are left untouched so the window does not slide
// forward under sustained pressure.
var bumpScript = redis.NewScript(`
    local count = tonumber(redis.call('GET', KEYS[1]) or '0')
    if count >= tonumber(ARGV[1]) then
        return { count, 0 }
    end
    count = redis.call('INCR', KEYS[1])
    if count == 1 then
        redis.call('PEXPIRE', KEYS[1], ARGV[2])
    end
    return { count, 1 }
`)

// BumpDemand applies the counter policy above and reports the current
// count and whether the request is still under the threshold.
func (s *Store) BumpDemand(ctx context.Context, key string, threshold int, window time.Duration) (int64, bool, error) {
	vals, err := bumpScript.Run(ctx, s.rdb, []string{key}, threshold, window.Milliseconds()).Result()
	if err != nil {
		return 0, false, err
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 2 {
		return 0, false, fmt.Errorf("lockstore: unexpected script result %#v", vals)
	}
	count, _ := arr[0].(int64)
	allowed, _ := arr[1].(int64)
	return count, allowed == 1, nil
}
