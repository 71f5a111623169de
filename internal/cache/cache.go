package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"presenced/internal/models"
	"presenced/internal/store"
)

// Config holds Ristretto cache configuration shared by both caches
type Config struct {
	MaxCost     int64 // Maximum cost of each cache (bytes)
	NumCounters int64 // Number of counters for TinyLFU admission policy
	BufferItems int64 // Buffer size for async operations
	Metrics     bool  // Enable metrics collection
}

// DefaultConfig returns a configuration suitable for most deployments.
func DefaultConfig() Config {
	return Config{
		MaxCost:     1 << 20,
		NumCounters: 100000,
		BufferItems: 64,
		Metrics:     true,
	}
}

// offlineEntry is a cached offline-presence payload. absent marks the "no
// data" sentinel: the store was consulted and holds no row, so repeated
// misses are answered from memory instead of re-querying.
type offlineEntry struct {
	absent  bool
	payload []byte
}

// activityEntry is the cached last-activity timestamp, with the same sentinel.
type activityEntry struct {
	absent bool
	at     time.Time
}

// Layer is the write-through cache over the durable offline-presence store.
// It keeps two coherent caches per username, the serialized unavailable
// presence and the moment it was captured, and guards each username with a
// key lock so concurrent loads hit the store at most once.
type Layer struct {
	offline  *ristretto.Cache
	activity *ristretto.Cache
	locks    keyedMutex
	store    store.OfflineStore
	logger   *zap.Logger
	config   Config
}

// NewLayer creates the cache layer on top of the given store.
func NewLayer(st store.OfflineStore, logger *zap.Logger, config Config) (*Layer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	newCache := func() (*ristretto.Cache, error) {
		return ristretto.NewCache(&ristretto.Config{
			MaxCost:     config.MaxCost,
			NumCounters: config.NumCounters,
			BufferItems: config.BufferItems,
			Metrics:     config.Metrics,
		})
	}

	offline, err := newCache()
	if err != nil {
		return nil, fmt.Errorf("failed to create offline presence cache: %w", err)
	}
	activity, err := newCache()
	if err != nil {
		offline.Close()
		return nil, fmt.Errorf("failed to create last activity cache: %w", err)
	}

	return &Layer{
		offline:  offline,
		activity: activity,
		store:    st,
		logger:   logger,
		config:   config,
	}, nil
}

// Offline returns a user's offline presence record. On a cache miss the
// record is loaded from the durable store under the username's lock, with a
// re-check inside the lock so only one concurrent loader queries the store.
// found is false when the user was never recorded.
func (l *Layer) Offline(ctx context.Context, username string) (models.OfflinePresenceRecord, bool, error) {
	if rec, found, ok := l.cached(username); ok {
		return rec, found, nil
	}

	if err := l.load(ctx, username); err != nil {
		return models.OfflinePresenceRecord{}, false, err
	}

	rec, found, _ := l.cached(username)
	return rec, found, nil
}

// LastActivity returns when the user was last seen going offline. found is
// false when no offline transition was ever recorded.
func (l *Layer) LastActivity(ctx context.Context, username string) (time.Time, bool, error) {
	if _, found := l.activityEntry(username); !found {
		if err := l.load(ctx, username); err != nil {
			return time.Time{}, false, err
		}
	}

	entry, found := l.activityEntry(username)
	if !found || entry.absent {
		return time.Time{}, false, nil
	}
	return entry.at, true, nil
}

// RecordUnavailable captures a user's offline presence as their last session
// closes. A payload identical to the cached one is a no-op and never touches
// the store; otherwise the store is written first, then both caches.
func (l *Layer) RecordUnavailable(ctx context.Context, username string, payload []byte, at time.Time) (bool, error) {
	mu := l.locks.lock(username)
	defer mu.Unlock()

	if cur, found := l.offlineEntry(username); found && !cur.absent && bytes.Equal(cur.payload, payload) {
		return false, nil
	}

	if err := l.store.Insert(ctx, username, payload, at); err != nil {
		return false, fmt.Errorf("failed to store offline presence: %w", err)
	}

	l.setOffline(username, offlineEntry{payload: payload})
	l.setActivity(username, activityEntry{at: at})
	return true, nil
}

// Clear removes a user's offline presence as their first session becomes
// available: store first, then both cache entries.
func (l *Layer) Clear(ctx context.Context, username string) error {
	mu := l.locks.lock(username)
	defer mu.Unlock()

	if err := l.store.Delete(ctx, username); err != nil {
		return fmt.Errorf("failed to delete offline presence: %w", err)
	}

	l.evict(username)
	return nil
}

// Invalidate evicts both cache entries without touching the store. Used when
// the durable row was purged out of band (account deletion).
func (l *Layer) Invalidate(username string) {
	mu := l.locks.lock(username)
	defer mu.Unlock()
	l.evict(username)
}

// Items returns the approximate number of cached offline payloads.
func (l *Layer) Items() int {
	if !l.config.Metrics {
		return 0
	}
	m := l.offline.Metrics
	return int(m.KeysAdded() - m.KeysEvicted())
}

// Close releases both caches. The store is owned by the caller.
func (l *Layer) Close() {
	l.offline.Close()
	l.activity.Close()
}

// cached reads both caches; ok is false when either entry is missing and a
// load is required to restore coherency.
func (l *Layer) cached(username string) (models.OfflinePresenceRecord, bool, bool) {
	oe, offlineFound := l.offlineEntry(username)
	ae, activityFound := l.activityEntry(username)
	if !offlineFound || !activityFound {
		return models.OfflinePresenceRecord{}, false, false
	}
	if oe.absent || ae.absent {
		return models.OfflinePresenceRecord{}, false, true
	}
	return models.OfflinePresenceRecord{Payload: oe.payload, At: ae.at}, true, true
}

// load populates both caches from the store under the username's lock,
// re-checking inside the lock (double-checked) so concurrent misses for the
// same user result in a single store query.
func (l *Layer) load(ctx context.Context, username string) error {
	mu := l.locks.lock(username)
	defer mu.Unlock()

	_, offlineFound := l.offlineEntry(username)
	_, activityFound := l.activityEntry(username)
	if offlineFound && activityFound {
		return nil
	}

	rec, err := l.store.Load(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.setOffline(username, offlineEntry{absent: true})
			l.setActivity(username, activityEntry{absent: true})
			return nil
		}
		return fmt.Errorf("failed to load offline presence: %w", err)
	}

	l.setOffline(username, offlineEntry{payload: rec.Payload})
	l.setActivity(username, activityEntry{at: rec.At})
	return nil
}

func (l *Layer) offlineEntry(username string) (offlineEntry, bool) {
	value, found := l.offline.Get(username)
	if !found {
		return offlineEntry{}, false
	}
	entry, ok := value.(offlineEntry)
	if !ok {
		// Handle corrupted cache entry
		l.offline.Del(username)
		return offlineEntry{}, false
	}
	return entry, true
}

func (l *Layer) activityEntry(username string) (activityEntry, bool) {
	value, found := l.activity.Get(username)
	if !found {
		return activityEntry{}, false
	}
	entry, ok := value.(activityEntry)
	if !ok {
		l.activity.Del(username)
		return activityEntry{}, false
	}
	return entry, true
}

func (l *Layer) setOffline(username string, entry offlineEntry) {
	l.offline.Set(username, entry, int64(len(entry.payload)+64))
	// Ristretto sets are buffered; wait so readers observe the write
	l.offline.Wait()
}

func (l *Layer) setActivity(username string, entry activityEntry) {
	l.activity.Set(username, entry, 64)
	l.activity.Wait()
}

func (l *Layer) evict(username string) {
	l.offline.Del(username)
	l.activity.Del(username)
	l.offline.Wait()
	l.activity.Wait()
}
