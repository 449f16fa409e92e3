package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const enqueueWait = 2 * time.Second

// Memory is an in-process worker pool for single binary deployments. Tasks
// are lost on restart.
type Memory struct {
	jobs    chan message
	workers int

	enqueued  int64
	processed int64
	dropped   int64
	active    int64
}

func NewMemory(workers, capacity int) *Memory {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = workers * 16
	}
	return &Memory{jobs: make(chan message, capacity), workers: workers}
}

func (m *Memory) Enqueue(ctx context.Context, taskID string) error {
	return m.offer(ctx, message{TaskID: taskID, Attempt: 1})
}

func (m *Memory) offer(ctx context.Context, msg message) error {
	timer := time.NewTimer(enqueueWait)
	defer timer.Stop()
	select {
	case m.jobs <- msg:
		atomic.AddInt64(&m.enqueued, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		atomic.AddInt64(&m.dropped, 1)
		log.Warn().Str("task_id", msg.TaskID).Int("queue_size", len(m.jobs)).Msg("queue full, task dropped")
		return ErrQueueFull
	}
}

func (m *Memory) Consume(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			atomic.AddInt64(&m.active, 1)
			defer atomic.AddInt64(&m.active, -1)
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-m.jobs:
					m.run(ctx, workerID, msg, h)
				}
			}
		}(i)
	}
	wg.Wait()
	return nil
}

func (m *Memory) run(ctx context.Context, workerID int, msg message, h Handler) {
	start := time.Now()
	err := h(ctx, msg.TaskID)
	atomic.AddInt64(&m.processed, 1)
	if err == nil {
		log.Debug().Int("worker", workerID).Str("task_id", msg.TaskID).Dur("took", time.Since(start)).Msg("task done")
		return
	}
	if msg.Attempt >= maxAttempts {
		log.Error().Err(err).Str("task_id", msg.TaskID).Int("attempt", msg.Attempt).Msg("task failed, giving up")
		return
	}
	msg.Attempt++
	select {
	case m.jobs <- msg:
	default:
		atomic.AddInt64(&m.dropped, 1)
		log.Error().Err(err).Str("task_id", msg.TaskID).Msg("task failed and queue is full, dropped")
	}
}

func (m *Memory) Depth(ctx context.Context) (int64, error) {
	return int64(len(m.jobs)), nil
}

// Metrics reports pool counters for the health endpoint.
func (m *Memory) Metrics() map[string]int64 {
	return map[string]int64{
		"enqueued":  atomic.LoadInt64(&m.enqueued),
		"processed": atomic.LoadInt64(&m.processed),
		"dropped":   atomic.LoadInt64(&m.dropped),
		"active":    atomic.LoadInt64(&m.active),
		"size":      int64(len(m.jobs)),
		"capacity":  int64(cap(m.jobs)),
	}
}

func (m *Memory) Close() error { return nil }
