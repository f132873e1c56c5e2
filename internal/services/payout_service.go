// internal/services/payout_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/transfer"

	"github.com/javajoker/partner-engine/internal/commission"
	"github.com/javajoker/partner-engine/internal/config"
)

// TransferRequest moves a settled batch total to a partner's payout account.
// IdempotencyKey makes a retried transfer a no-op at the gateway.
type TransferRequest struct {
	BatchID        uuid.UUID
	Destination    string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	Description    string
}

// PayoutGateway executes transfers and returns the gateway reference.
type PayoutGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (string, error)
}

type StripePayoutGateway struct {
	minimum decimal.Decimal
}

func NewStripePayoutGateway(cfg config.PaymentConfig) *StripePayoutGateway {
	stripe.Key = cfg.StripeSecretKey
	return &StripePayoutGateway{minimum: decimal.NewFromFloat(cfg.MinimumPayout)}
}

func (g *StripePayoutGateway) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	if req.Amount.LessThan(g.minimum) {
		return "", fmt.Errorf("payout %s %s is below the minimum of %s", req.Amount, req.Currency, g.minimum)
	}

	// Stripe amounts are integers in the currency's minor unit
	minor := req.Amount.Shift(commission.MinorUnits(req.Currency)).IntPart()

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(minor),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Destination:   stripe.String(req.Destination),
		TransferGroup: stripe.String(req.BatchID.String()),
		Description:   stripe.String(req.Description),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("batch_id", req.BatchID.String())

	t, err := transfer.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			return "", fmt.Errorf("stripe transfer failed: %s", stripeErr.Msg)
		}
		return "", fmt.Errorf("stripe transfer failed: %w", err)
	}
	return t.ID, nil
}
