// internal/events/events.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Inbound order event types.
const (
	OrderPlaced    = "order.placed"
	OrderConfirmed = "order.confirmed"
	OrderCancelled = "order.cancelled"
	OrderRefunded  = "order.refunded"
)

// Outbound event types.
const (
	CommissionCreated     = "commission.created"
	SettlementBatchClosed = "settlement.batch.closed"
	SettlementBatchPaid   = "settlement.batch.paid"
	SettlementBatchFailed = "settlement.batch.failed"
)

var ErrMalformedEvent = errors.New("malformed event")

// Envelope wraps every message on the wire, inbound and outbound.
type Envelope struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// OrderEvent is the payload of every order.* event. Only OrderID is required
// for cancellations and refunds. VisitorFingerprint carries the raw visitor
// id from the storefront cookie.
type OrderEvent struct {
	OrderID            string          `json:"orderId"`
	PartnerRef         string          `json:"partnerRef,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	CustomerID         string          `json:"customerId,omitempty"`
	CustomerIsNew      bool            `json:"customerIsNew"`
	Timestamp          time.Time       `json:"timestamp"`
	VisitorFingerprint string          `json:"visitorFingerprint,omitempty"`
	SessionID          string          `json:"sessionId,omitempty"`
	ProductID          *uuid.UUID      `json:"productId,omitempty"`
	SupplierID         *uuid.UUID      `json:"supplierId,omitempty"`
	Category           string          `json:"category,omitempty"`
	Tags               []string        `json:"tags,omitempty"`
	AppliedPolicyIDs   []uuid.UUID     `json:"appliedPolicyIds,omitempty"`
	Reason             string          `json:"reason,omitempty"`
}

// OrderEventHandler consumes decoded order events. Implementations must be
// idempotent because delivery is at-least-once.
type OrderEventHandler interface {
	HandleOrderEvent(ctx context.Context, eventType string, event *OrderEvent) error
}

// DecodeOrderEvent parses an envelope carrying an order event.
func DecodeOrderEvent(raw []byte) (string, *OrderEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch env.Type {
	case OrderPlaced, OrderConfirmed, OrderCancelled, OrderRefunded:
	default:
		return env.Type, nil, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, env.Type)
	}

	var event OrderEvent
	if err := json.Unmarshal(env.Data, &event); err != nil {
		return env.Type, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.OrderID == "" {
		return env.Type, nil, fmt.Errorf("%w: orderId is required", ErrMalformedEvent)
	}
	return env.Type, &event, nil
}

// CommissionCreatedEvent is published once per commission.
type CommissionCreatedEvent struct {
	CommissionID uuid.UUID       `json:"commissionId"`
	ConversionID uuid.UUID       `json:"conversionId"`
	PartnerID    uuid.UUID       `json:"partnerId"`
	OrderID      string          `json:"orderId"`
	PolicyID     *uuid.UUID      `json:"policyId,omitempty"`
	FinalAmount  decimal.Decimal `json:"finalAmount"`
	Currency     string          `json:"currency"`
	Status       string          `json:"status"`
}

// SettlementBatchEvent is published on batch close, payment and failure.
type SettlementBatchEvent struct {
	BatchID       uuid.UUID       `json:"batchId"`
	PartnerID     uuid.UUID       `json:"partnerId"`
	PeriodKey     string          `json:"periodKey"`
	Status        string          `json:"status"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	ItemCount     int             `json:"itemCount"`
	Currency      string          `json:"currency"`
	PayoutRef     string          `json:"payoutRef,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
}

// Publisher emits domain events. Publish failures never roll back the
// change that produced the event.
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload interface{}) error
}

// NewEnvelope marshals payload into an envelope ready to publish.
func NewEnvelope(eventType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
}

// NopPublisher discards events. It is used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }
