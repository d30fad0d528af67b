package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/kirinyoku/matchseats/internal/domain"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends confirmation events over one long-lived channel. A failed
// publish is logged and dropped; confirmations are already committed and
// the events are informational.
type Publisher struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     channel
	queue  string
	logger *zap.Logger
}

func Dial(url, queue string, logger *zap.Logger) (*Publisher, error) {
	const op = "queue.Dial"

	if queue == "" {
		queue = ReservationConfirmedQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: dial: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: channel: %w", op, err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: queue declare: %w", op, err)
	}

	p := newPublisher(ch, queue, logger)
	p.conn = conn

	return p, nil
}

func newPublisher(ch channel, queue string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{ch: ch, queue: queue, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, ev ReservationConfirmedEvent) error {
	const op = "queue.Publisher.Publish"

	body, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Confirmed publishes one event per confirmation.
func (p *Publisher) Confirmed(ctx context.Context, matchID int64, rs []domain.ConfirmedReservation) {
	ctx = context.WithoutCancel(ctx)
	for _, r := range rs {
		if err := p.Publish(ctx, NewReservationConfirmed(r)); err != nil {
			p.logger.Warn("publish confirmation failed",
				zap.Int64("match_id", matchID),
				zap.Int64("seat_id", r.SeatID),
				zap.Error(err),
			)
		}
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	return err
}
