// Package queue carries transcription task ids from the API to the workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const maxAttempts = 3

var ErrQueueFull = errors.New("queue: full")

// Handler processes one task. A returned error makes the task eligible for
// another delivery until maxAttempts is reached.
type Handler func(ctx context.Context, taskID string) error

type Queue interface {
	Enqueue(ctx context.Context, taskID string) error
	// Consume blocks, feeding tasks to h until ctx is done.
	Consume(ctx context.Context, h Handler) error
	Depth(ctx context.Context) (int64, error)
	Close() error
}

type message struct {
	TaskID  string `json:"task_id"`
	Attempt int    `json:"attempt"`
}

func encode(m message) ([]byte, error) {
	return json.Marshal(m)
}

func decode(b []byte) (message, error) {
	var m message
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("queue: decode: %w", err)
	}
	if strings.TrimSpace(m.TaskID) == "" {
		return m, errors.New("queue: empty task id")
	}
	return m, nil
}

type Config struct {
	Backend string // redis | rabbitmq | memory
	Name    string
	// Redis is reused by the redis backend when set; RedisURL is dialed otherwise.
	Redis       *redis.Client
	RedisURL    string
	RabbitMQURL string
	Workers     int
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config) (Queue, error) {
	switch cfg.Backend {
	case "", "redis":
		if cfg.Redis != nil {
			return NewRedis(cfg.Redis, cfg.Name, cfg.Workers), nil
		}
		return NewRedisFromURL(cfg.RedisURL, cfg.Name, cfg.Workers)
	case "rabbitmq":
		return NewRabbit(ctx, cfg.RabbitMQURL, cfg.Name, cfg.Workers)
	case "memory":
		return NewMemory(cfg.Workers, 256), nil
	}
	return nil, fmt.Errorf("queue: unknown backend %q", cfg.Backend)
}
