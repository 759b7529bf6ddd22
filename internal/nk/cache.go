package nk

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/oakroles/discord-bot/internal/metrics"
	"github.com/oakroles/discord-bot/internal/storage"
)

// SnapshotStore is the persistence the cache needs: one snapshot per OAK
type SnapshotStore interface {
	Snapshot(ctx context.Context, nkID string) ([]byte, time.Time, error)
	UpsertSnapshot(ctx context.Context, nkID string, payload []byte, at time.Time) error
}

// Fetcher fetches a live snapshot from the upstream API
type Fetcher interface {
	FetchPlayer(ctx context.Context, oak string) (*Player, error)
}

// Cache wraps the upstream fetch with a time-boxed persistent cache.
// Lookups never fail loudly: no usable data is reported as nil, which
// callers must treat as "nothing known", not "account doesn't exist".
type Cache struct {
	store   SnapshotStore
	fetcher Fetcher
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewCache creates a player data cache with the given TTL
func NewCache(store SnapshotStore, fetcher Fetcher, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		store:   store,
		fetcher: fetcher,
		ttl:     ttl,
		metrics: m,
		now:     time.Now,
	}
}

// GetPlayerData returns the freshest usable snapshot for an OAK.
//   - cached and younger than the TTL: returned without a network call
//     (unless forceRefresh)
//   - otherwise fetch; on success the snapshot is upserted and returned
//   - on fetch failure a stale snapshot is returned if one exists,
//     else nil
func (c *Cache) GetPlayerData(ctx context.Context, oak string, forceRefresh bool) *Player {
	if !forceRefresh {
		if player := c.fromCache(ctx, oak, c.ttl); player != nil {
			c.metrics.CacheHit()
			return player
		}
	}

	player, err := c.fetcher.FetchPlayer(ctx, oak)
	if err != nil {
		c.metrics.FetchFailure()
		slog.Warn("Player fetch failed", "oak", oak, "error", err)
		if !forceRefresh {
			// Degraded fallback: any cached snapshot, however old
			if stale := c.fromCache(ctx, oak, 0); stale != nil {
				return stale
			}
		}
		return nil
	}

	payload, err := json.Marshal(player)
	if err == nil {
		if err := c.store.UpsertSnapshot(ctx, oak, payload, c.now()); err != nil {
			slog.Error("Failed to update snapshot cache", "oak", oak, "error", err)
		}
	}

	return player
}

// fromCache reads a cached snapshot. maxAge 0 means any age is accepted.
func (c *Cache) fromCache(ctx context.Context, oak string, maxAge time.Duration) *Player {
	payload, at, err := c.store.Snapshot(ctx, oak)
	if err != nil {
		if !errors.Is(err, storage.ErrNoSnapshot) {
			slog.Error("Failed to read snapshot cache", "oak", oak, "error", err)
		}
		return nil
	}
	if maxAge > 0 && c.now().Sub(at) >= maxAge {
		return nil
	}

	player := &Player{}
	if err := json.Unmarshal(payload, player); err != nil {
		slog.Error("Corrupt snapshot in cache", "oak", oak, "error", err)
		return nil
	}
	return player
}
