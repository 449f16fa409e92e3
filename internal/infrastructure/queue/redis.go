package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const popTimeout = 2 * time.Second

// Redis is a list-backed queue: LPUSH to enqueue, BRPOP to consume.
type Redis struct {
	Rdb     *redis.Client
	Key     string
	Workers int
	owned   bool
}

func NewRedis(rdb *redis.Client, name string, workers int) *Redis {
	if workers <= 0 {
		workers = 1
	}
	return &Redis{Rdb: rdb, Key: "queue:" + name, Workers: workers}
}

func NewRedisFromURL(url, name string, workers int) (*Redis, error) {
	if url == "" {
		return nil, errors.New("queue: REDIS_URL is required for the redis backend")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	q := NewRedis(redis.NewClient(opt), name, workers)
	q.owned = true
	return q, nil
}

func (q *Redis) Enqueue(ctx context.Context, taskID string) error {
	return q.push(ctx, message{TaskID: taskID, Attempt: 1})
}

func (q *Redis) push(ctx context.Context, m message) error {
	b, err := encode(m)
	if err != nil {
		return err
	}
	return q.Rdb.LPush(ctx, q.Key, b).Err()
}

func (q *Redis) Consume(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < q.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			q.work(ctx, workerID, h)
		}(i)
	}
	wg.Wait()
	return nil
}

func (q *Redis) work(ctx context.Context, workerID int, h Handler) {
	for ctx.Err() == nil {
		res, err := q.Rdb.BRPop(ctx, popTimeout, q.Key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Int("worker", workerID).Msg("queue pop failed")
			time.Sleep(time.Second)
			continue
		}
		// BRPOP returns [key, value].
		q.handle(ctx, workerID, []byte(res[1]), h)
	}
}

func (q *Redis) handle(ctx context.Context, workerID int, raw []byte, h Handler) {
	m, err := decode(raw)
	if err != nil {
		log.Error().Err(err).Msg("dropping malformed queue message")
		return
	}
	if err := h(ctx, m.TaskID); err != nil {
		if m.Attempt >= maxAttempts {
			log.Error().Err(err).Str("task_id", m.TaskID).Int("attempt", m.Attempt).Msg("task failed, giving up")
			return
		}
		log.Warn().Err(err).Str("task_id", m.TaskID).Int("attempt", m.Attempt).Msg("task failed, requeueing")
		m.Attempt++
		if err := q.push(context.WithoutCancel(ctx), m); err != nil {
			log.Error().Err(err).Str("task_id", m.TaskID).Msg("requeue failed")
		}
		return
	}
	log.Debug().Int("worker", workerID).Str("task_id", m.TaskID).Msg("task done")
}

func (q *Redis) Depth(ctx context.Context) (int64, error) {
	return q.Rdb.LLen(ctx, q.Key).Result()
}

func (q *Redis) Close() error {
	if q.owned {
		return q.Rdb.Close()
	}
	return nil
}
