package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingIndexKey = "tripmatch:pending_matches"

// PendingIndex is a time-ordered view of pending matches keyed by response deadline.
// Entries may be stale; the sweep re-checks the match row before expiring it.
type PendingIndex interface {
	Track(ctx context.Context, matchID string, expiresAt time.Time) error
	Forget(ctx context.Context, matchID string) error
	Due(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type redisPendingIndex struct {
	rdb *redis.Client
	key string
}

func NewRedisPendingIndex(rdb *redis.Client) PendingIndex {
	return &redisPendingIndex{rdb: rdb, key: pendingIndexKey}
}

func (x *redisPendingIndex) Track(ctx context.Context, matchID string, expiresAt time.Time) error {
	return x.rdb.ZAdd(ctx, x.key, redis.Z{Score: float64(expiresAt.UnixMilli()), Member: matchID}).Err()
}

func (x *redisPendingIndex) Forget(ctx context.Context, matchID string) error {
	return x.rdb.ZRem(ctx, x.key, matchID).Err()
}

func (x *redisPendingIndex) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	by := &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10)}
	if limit > 0 {
		by.Count = int64(limit)
	}
	return x.rdb.ZRangeByScore(ctx, x.key, by).Result()
}

// dbPendingIndex serves the same view straight from the matches table (indexed on
// expires_at) for deployments without Redis.
type dbPendingIndex struct {
	matches MatchRepository
}

func NewDBPendingIndex(matches MatchRepository) PendingIndex {
	return &dbPendingIndex{matches: matches}
}

func (x *dbPendingIndex) Track(context.Context, string, time.Time) error { return nil }

func (x *dbPendingIndex) Forget(context.Context, string) error { return nil }

func (x *dbPendingIndex) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	list, err := x.matches.ListPendingDue(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, m := range list {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Reindex re-adds every pending match found in the database. ZADD is idempotent, so
// running it on each sweep heals entries lost to a failed Track.
func Reindex(ctx context.Context, idx PendingIndex, matches MatchRepository, horizon time.Time) (int, error) {
	list, err := matches.ListPendingDue(ctx, horizon, 0)
	if err != nil {
		return 0, err
	}
	for _, m := range list {
		if m.ExpiresAt == nil {
			continue
		}
		if err := idx.Track(ctx, m.ID, *m.ExpiresAt); err != nil {
			return 0, err
		}
	}
	return len(list), nil
}
