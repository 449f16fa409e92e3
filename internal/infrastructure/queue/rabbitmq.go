package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Rabbit publishes task ids to a durable queue and consumes them with manual
// acks.
type Rabbit struct {
	conn    *amqp.Connection
	pub     *amqp.Channel
	pubMu   sync.Mutex
	name    string
	workers int
}

func NewRabbit(ctx context.Context, url, name string, workers int) (*Rabbit, error) {
	if url == "" {
		return nil, errors.New("queue: RABBITMQ_URL is required for the rabbitmq backend")
	}
	if workers <= 0 {
		workers = 1
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: declare %q: %w", name, err)
	}
	log.Info().Str("queue", name).Msg("connected to RabbitMQ")
	return &Rabbit{conn: conn, pub: ch, name: name, workers: workers}, nil
}

func (r *Rabbit) Enqueue(ctx context.Context, taskID string) error {
	return r.publish(ctx, message{TaskID: taskID, Attempt: 1})
}

func (r *Rabbit) publish(ctx context.Context, m message) error {
	body, err := encode(m)
	if err != nil {
		return err
	}
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	return r.pub.PublishWithContext(ctx, "", r.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (r *Rabbit) Consume(ctx context.Context, h Handler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("queue: consumer channel: %w", err)
	}
	defer ch.Close()
	if err := ch.Qos(r.workers, 0, false); err != nil {
		return err
	}
	msgs, err := ch.ConsumeWithContext(ctx, r.name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue: consume %q: %w", r.name, err)
	}

	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer func() { <-sem; wg.Done() }()
				r.process(ctx, d, h)
			}(d)
		}
	}
}

func (r *Rabbit) process(ctx context.Context, d amqp.Delivery, h Handler) {
	m, err := decode(d.Body)
	if err != nil {
		log.Error().Err(err).Msg("dropping malformed queue message")
		_ = d.Nack(false, false)
		return
	}
	if err := h(ctx, m.TaskID); err != nil {
		if m.Attempt >= maxAttempts {
			log.Error().Err(err).Str("task_id", m.TaskID).Int("attempt", m.Attempt).Msg("task failed, giving up")
			_ = d.Ack(false)
			return
		}
		log.Warn().Err(err).Str("task_id", m.TaskID).Int("attempt", m.Attempt).Msg("task failed, requeueing")
		m.Attempt++
		if perr := r.publish(context.WithoutCancel(ctx), m); perr != nil {
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}
	_ = d.Ack(false)
}

func (r *Rabbit) Depth(ctx context.Context) (int64, error) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	q, err := r.pub.QueueDeclarePassive(r.name, true, false, false, false, nil)
	if err != nil {
		return 0, err
	}
	return int64(q.Messages), nil
}

func (r *Rabbit) Close() error {
	_ = r.pub.Close()
	return r.conn.Close()
}
