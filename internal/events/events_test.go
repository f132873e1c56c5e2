// internal/events/events_test.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, eventType string, data interface{}) []byte {
	t.Helper()
	raw, err := NewEnvelope(eventType, data)
	require.NoError(t, err)
	return raw
}

func TestDecodeOrderEvent(t *testing.T) {
	raw := envelope(t, OrderConfirmed, OrderEvent{
		OrderID:            "order-1",
		Amount:             decimal.RequireFromString("129000"),
		Currency:           "KRW",
		VisitorFingerprint: "visitor-1",
	})

	eventType, event, err := DecodeOrderEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, OrderConfirmed, eventType)
	assert.Equal(t, "order-1", event.OrderID)
	assert.True(t, event.Amount.Equal(decimal.NewFromInt(129000)))
	assert.Equal(t, "visitor-1", event.VisitorFingerprint)
}

func TestDecodeOrderEventRejectsMalformed(t *testing.T) {
	tests := map[string][]byte{
		"not json":      []byte("{"),
		"unknown type":  envelope(t, "order.shipped", OrderEvent{OrderID: "order-1"}),
		"missing order": envelope(t, OrderPlaced, OrderEvent{}),
		"bad payload":   []byte(`{"type":"order.placed","data":"nope"}`),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeOrderEvent(raw)
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestNewEnvelope(t *testing.T) {
	raw := envelope(t, CommissionCreated, CommissionCreatedEvent{OrderID: "order-1", Currency: "KRW"})

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, CommissionCreated, env.Type)
	assert.NotEmpty(t, env.ID)
	assert.False(t, env.OccurredAt.IsZero())
	assert.Contains(t, string(env.Data), `"orderId":"order-1"`)
}

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) == 0 {
		r.mu.Unlock()
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	r.mu.Unlock()
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type scriptedHandler struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	until map[string]int
}

func (h *scriptedHandler) HandleOrderEvent(_ context.Context, _ string, event *OrderEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[event.OrderID]++
	if err, ok := h.fail[event.OrderID]; ok && h.calls[event.OrderID] <= h.until[event.OrderID] {
		return err
	}
	return nil
}

func TestOrderConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		messages: []kafka.Message{
			{Offset: 1, Value: envelope(t, OrderPlaced, OrderEvent{OrderID: "ok"})},
			{Offset: 2, Value: []byte("garbage")},
			{Offset: 3, Value: envelope(t, OrderConfirmed, OrderEvent{OrderID: "flaky"})},
			{Offset: 4, Value: envelope(t, OrderConfirmed, OrderEvent{OrderID: "invalid"})},
		},
	}
	handler := &scriptedHandler{
		calls: map[string]int{},
		fail: map[string]error{
			"flaky":   errors.New("database busy"),
			"invalid": &Permanent{Err: errors.New("amount must not be negative")},
		},
		until: map[string]int{"flaky": 2, "invalid": 100},
	}

	consumer := newOrderConsumer(reader, handler)
	consumer.retryDelay = time.Millisecond

	require.NoError(t, consumer.Run(ctx))

	assert.Equal(t, []int64{1, 2, 3, 4}, reader.committed)
	assert.Equal(t, 1, handler.calls["ok"])
	assert.Equal(t, 3, handler.calls["flaky"])
	assert.Equal(t, 1, handler.calls["invalid"])
}

type unavailableHandler struct {
	calls    int
	cancelAt int
	cancel   context.CancelFunc
}

func (h *unavailableHandler) HandleOrderEvent(context.Context, string, *OrderEvent) error {
	h.calls++
	if h.calls == h.cancelAt {
		h.cancel()
	}
	return errors.New("database unavailable")
}

func TestOrderConsumerKeepsOffsetOnTransientFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		messages: []kafka.Message{
			{Offset: 7, Value: envelope(t, OrderConfirmed, OrderEvent{OrderID: "order-7"})},
			{Offset: 8, Value: envelope(t, OrderConfirmed, OrderEvent{OrderID: "order-8"})},
		},
	}
	handler := &unavailableHandler{cancelAt: 12, cancel: cancel}

	consumer := newOrderConsumer(reader, handler)
	consumer.retryDelay = time.Millisecond
	consumer.maxRetryWait = 2 * time.Millisecond

	require.NoError(t, consumer.Run(ctx))

	assert.Empty(t, reader.committed)
	assert.Equal(t, 12, handler.calls)
	// the next message is not fetched while the first keeps failing
	assert.Len(t, reader.messages, 1)
}

func TestOrderConsumerBackoff(t *testing.T) {
	consumer := newOrderConsumer(&fakeReader{}, &scriptedHandler{})
	consumer.retryDelay = 100 * time.Millisecond
	consumer.maxRetryWait = time.Second

	assert.Equal(t, 100*time.Millisecond, consumer.backoff(1))
	assert.Equal(t, 400*time.Millisecond, consumer.backoff(3))
	assert.Equal(t, time.Second, consumer.backoff(5))
	assert.Equal(t, time.Second, consumer.backoff(50))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("timeout")))
	assert.False(t, IsRetryable(&Permanent{Err: errors.New("bad")}))
	assert.False(t, IsRetryable(wrap(&Permanent{Err: errors.New("bad")})))
}

func wrap(err error) error {
	return errors.Join(errors.New("context"), err)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), CommissionCreated, "k", nil))
}
