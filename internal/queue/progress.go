package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const progressTTL = 24 * time.Hour

// RedisProgressStore keeps the latest progress of each job in a hash per
// queue so status endpoints and the enqueue CLI can read it back.
type RedisProgressStore struct {
	rdb redis.Cmdable
}

func NewRedisProgressStore(rdb redis.Cmdable) *RedisProgressStore {
	return &RedisProgressStore{rdb: rdb}
}

func progressKey(queue string) string {
	return fmt.Sprintf("finance-workers:progress:%s", queue)
}

func (s *RedisProgressStore) SetProgress(ctx context.Context, queue, jobID string, progress int) error {
	key := progressKey(queue)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, jobID, progress)
	pipe.Expire(ctx, key, progressTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set progress %s/%s: %w", queue, jobID, err)
	}
	return nil
}

// GetProgress returns the last stored progress, or false when none exists.
func (s *RedisProgressStore) GetProgress(ctx context.Context, queue, jobID string) (int, bool, error) {
	v, err := s.rdb.HGet(ctx, progressKey(queue), jobID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get progress %s/%s: %w", queue, jobID, err)
	}
	p, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("get progress %s/%s: %w", queue, jobID, err)
	}
	return p, true, nil
}
