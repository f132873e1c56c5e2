// internal/events/kafka_consumer.go
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderConsumer reads order events and hands them to a handler. An offset is
// committed once the handler succeeded, rejected the event as permanent, or
// the message could not be decoded. Transient failures are retried until the
// context ends, leaving the offset uncommitted for redelivery.
type OrderConsumer struct {
	reader       messageReader
	handler      OrderEventHandler
	alertAfter   int
	retryDelay   time.Duration
	maxRetryWait time.Duration
}

func NewOrderConsumer(brokers []string, groupID, topic string, handler OrderEventHandler) (*OrderConsumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer requires group id")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka consumer requires a topic")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: []string{topic},
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
	return newOrderConsumer(reader, handler), nil
}

func newOrderConsumer(reader messageReader, handler OrderEventHandler) *OrderConsumer {
	return &OrderConsumer{
		reader:       reader,
		handler:      handler,
		alertAfter:   5,
		retryDelay:   500 * time.Millisecond,
		maxRetryWait: 30 * time.Second,
	}
}

// Run consumes until ctx is cancelled.
func (c *OrderConsumer) Run(ctx context.Context) error {
	logrus.Info("Order event consumer started")
	defer logrus.Info("Order event consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logrus.WithError(err).Error("Could not fetch order event, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if !c.process(ctx, msg) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logrus.WithError(err).Error("Failed to commit order event offset")
		}
	}
}

// process reports whether the message is done with and may be committed.
// It returns false only when ctx ended before a transient failure cleared.
func (c *OrderConsumer) process(ctx context.Context, msg kafka.Message) bool {
	log := logrus.WithFields(logrus.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	eventType, event, err := DecodeOrderEvent(msg.Value)
	if err != nil {
		log.WithError(err).Warn("Skipping malformed order event")
		return true
	}

	log = log.WithFields(logrus.Fields{"type": eventType, "order_id": event.OrderID})
	for attempt := 1; ; attempt++ {
		err = c.handler.HandleOrderEvent(ctx, eventType, event)
		if err == nil {
			return true
		}
		if !IsRetryable(err) {
			log.WithError(err).Error("Dropping order event rejected by handler")
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		entry := log.WithError(err).WithField("attempt", attempt)
		if attempt >= c.alertAfter {
			entry.Error("Order event still failing, retrying")
		} else {
			entry.Warn("Order event failed, retrying")
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.backoff(attempt)):
		}
	}
}

func (c *OrderConsumer) backoff(attempt int) time.Duration {
	wait := c.retryDelay
	for i := 1; i < attempt && wait < c.maxRetryWait; i++ {
		wait *= 2
	}
	if wait > c.maxRetryWait {
		wait = c.maxRetryWait
	}
	return wait
}

// Permanent marks a handler error that retrying cannot fix.
type Permanent struct{ Err error }

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

func IsRetryable(err error) bool {
	var permanent *Permanent
	return !errors.As(err, &permanent)
}

func (c *OrderConsumer) Close() error {
	return c.reader.Close()
}
