package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/taxi-dispatch/internal/models"
)

// RedisQueueStore keeps zone waiting queues in Redis sorted sets, scored
// by join time, so FIFO order survives process restarts and is shared by
// every scheduler instance.
type RedisQueueStore struct {
	client *redis.Client
	prefix string
}

func NewRedisQueueStore(addr, password, prefix string) *RedisQueueStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if prefix == "" {
		prefix = "zonequeue"
	}
	return &RedisQueueStore{client: c, prefix: prefix}
}

func (r *RedisQueueStore) key(zoneID string) string { return r.prefix + ":" + zoneID }

func (r *RedisQueueStore) ZoneQueue(ctx context.Context, zoneID string) ([]models.ZoneQueueMembership, error) {
	res, err := r.client.ZRangeWithScores(ctx, r.key(zoneID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.ZoneQueueMembership, 0, len(res))
	for _, z := range res {
		driverID, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, models.ZoneQueueMembership{
			DriverID: driverID,
			ZoneID:   zoneID,
			JoinedAt: time.Unix(int64(z.Score), 0).UTC(),
		})
	}
	return out, nil
}

// JoinQueue uses ZADD NX so a driver who is already queued keeps the
// original join time.
func (r *RedisQueueStore) JoinQueue(ctx context.Context, zoneID, driverID string, at time.Time) error {
	return r.client.ZAddNX(ctx, r.key(zoneID), redis.Z{
		Score:  float64(at.Unix()),
		Member: driverID,
	}).Err()
}

func (r *RedisQueueStore) LeaveQueue(ctx context.Context, zoneID, driverID string) error {
	return r.client.ZRem(ctx, r.key(zoneID), driverID).Err()
}

func (r *RedisQueueStore) Close() error { return r.client.Close() }
