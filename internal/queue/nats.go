package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/observability"
)

// Publisher enqueues submission processing messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	// PublishAfter re-enqueues a message after the given backoff. Used for
	// retries; the delay happens off the worker goroutine.
	PublishAfter(msg Message, delay time.Duration)
}

// Consumer delivers queued messages to the worker pool.
type Consumer interface {
	Messages(ctx context.Context) (<-chan Message, error)
}

// NATSQueue implements Publisher and Consumer on a core NATS connection
// using queue-group subscription so each message reaches one worker process.
type NATSQueue struct {
	conn    *nats.Conn
	subject string
	group   string
	logger  zerolog.Logger
}

// NewNATSQueue wires a queue over the given connection.
func NewNATSQueue(conn *nats.Conn, subject, group string, logger zerolog.Logger) (*NATSQueue, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if subject == "" || group == "" {
		return nil, fmt.Errorf("nats subject and queue group are required")
	}

	return &NATSQueue{
		conn:    conn,
		subject: subject,
		group:   group,
		logger:  logger.With().Str("component", "nats_queue").Logger(),
	}, nil
}

// Publish sends the message to the pipeline subject.
func (q *NATSQueue) Publish(_ context.Context, msg Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	if err := q.conn.Publish(q.subject, data); err != nil {
		return fmt.Errorf("publish queue message: %w", err)
	}

	observability.QueuePublishes().WithLabelValues(q.subject).Inc()
	q.logger.Debug().
		Str("submission_id", msg.SubmissionID).
		Int("retry_count", msg.RetryCount).
		Msg("queue message published")

	return nil
}

// PublishAfter schedules a delayed republish for retry backoff.
func (q *NATSQueue) PublishAfter(msg Message, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := q.Publish(context.Background(), msg); err != nil {
			q.logger.Error().Err(err).
				Str("submission_id", msg.SubmissionID).
				Msg("failed to requeue message after backoff")
			return
		}
		observability.QueueRedeliveries().WithLabelValues(q.subject).Inc()
	})
}

// Messages subscribes to the pipeline subject and streams decoded messages
// until the context is cancelled. Malformed payloads are dropped with a log
// line rather than poisoning the channel.
func (q *NATSQueue) Messages(ctx context.Context) (<-chan Message, error) {
	raw := make(chan *nats.Msg, 64)
	sub, err := q.conn.ChanQueueSubscribe(q.subject, q.group, raw)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", q.subject, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				if err := sub.Drain(); err != nil {
					q.logger.Warn().Err(err).Msg("failed to drain queue subscription")
				}
				return
			case natsMsg, ok := <-raw:
				if !ok {
					return
				}

				msg, err := Decode(natsMsg.Data)
				if err != nil {
					q.logger.Error().Err(err).Msg("dropping malformed queue message")
					continue
				}

				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	q.logger.Info().Str("subject", q.subject).Str("group", q.group).Msg("queue consumer started")

	return out, nil
}
