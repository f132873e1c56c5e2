// internal/services/attribution_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/commission"
	"github.com/javajoker/partner-engine/internal/config"
	"github.com/javajoker/partner-engine/internal/events"
	"github.com/javajoker/partner-engine/internal/metrics"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

// AttributionService turns order events into conversions and drives their
// lifecycle. Every handler is idempotent by order id.
type AttributionService struct {
	store           repository.Store
	links           *LinkService
	commissions     *CommissionService
	fingerprints    *Fingerprinter
	audit           *AuditService
	model           models.AttributionModel
	window          time.Duration
	defaultCurrency string
	now             func() time.Time
}

func NewAttributionService(
	store repository.Store,
	links *LinkService,
	commissions *CommissionService,
	fingerprints *Fingerprinter,
	audit *AuditService,
	cfg config.AttributionConfig,
	defaultCurrency string,
) *AttributionService {
	model := models.AttributionModelLastClick
	if cfg.Model == string(models.AttributionModelFirstClick) {
		model = models.AttributionModelFirstClick
	}
	return &AttributionService{
		store:           store,
		links:           links,
		commissions:     commissions,
		fingerprints:    fingerprints,
		audit:           audit,
		model:           model,
		window:          cfg.Window,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

// HandleOrderEvent dispatches one decoded order event. Validation failures
// are wrapped as events.Permanent so consumers do not redeliver them.
func (s *AttributionService) HandleOrderEvent(ctx context.Context, eventType string, event *events.OrderEvent) error {
	var err error
	switch eventType {
	case events.OrderPlaced:
		_, err = s.Attribute(ctx, event)
	case events.OrderConfirmed:
		_, err = s.Confirm(ctx, event)
	case events.OrderCancelled:
		_, err = s.Reverse(ctx, event, models.ConversionStatusCancelled)
	case events.OrderRefunded:
		_, err = s.Reverse(ctx, event, models.ConversionStatusRefunded)
	default:
		err = invalid("type", "unsupported order event %q", eventType)
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.OrderEvents.WithLabelValues(eventType, result).Inc()

	var verr *ValidationError
	if errors.As(err, &verr) {
		return &events.Permanent{Err: err}
	}
	return err
}

func (s *AttributionService) normalize(event *events.OrderEvent) error {
	event.OrderID = strings.TrimSpace(event.OrderID)
	if event.OrderID == "" {
		return invalid("orderId", "is required")
	}
	if event.Amount.IsNegative() {
		return invalid("amount", "must not be negative")
	}
	event.Currency = strings.ToUpper(strings.TrimSpace(event.Currency))
	if event.Currency == "" {
		event.Currency = s.defaultCurrency
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	return nil
}

// Attribute records the conversion for an order, or returns the existing one.
// Events older than the order's cancellation are ignored and return the
// cancelled conversion.
func (s *AttributionService) Attribute(ctx context.Context, event *events.OrderEvent) (*models.PartnerConversion, error) {
	if err := s.normalize(event); err != nil {
		return nil, err
	}

	if existing, err := s.store.Conversions().GetActiveByOrderID(ctx, event.OrderID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if stale, err := s.cancelledAfter(ctx, event.OrderID, event.Timestamp); err != nil || stale != nil {
		if stale != nil {
			logrus.WithField("order_id", event.OrderID).Info("Ignoring order event older than its cancellation")
		}
		return stale, err
	}

	conv := &models.PartnerConversion{
		OrderID:          event.OrderID,
		AttributionModel: models.AttributionModelNone,
		OrderAmount:      commission.Round(event.Amount, event.Currency),
		Currency:         event.Currency,
		CustomerID:       event.CustomerID,
		CustomerIsNew:    event.CustomerIsNew,
		ProductID:        event.ProductID,
		SupplierID:       event.SupplierID,
		Category:         event.Category,
		Tags:             event.Tags,
		Status:           models.ConversionStatusPending,
		ResolutionStatus: models.ResolutionStatusPending,
		OccurredAt:       event.Timestamp,
	}
	for _, id := range event.AppliedPolicyIDs {
		conv.AppliedPolicyIDs = append(conv.AppliedPolicyIDs, id.String())
	}

	if err := s.attribute(ctx, conv, event); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Conversions().GetActiveByOrderID(ctx, conv.OrderID); err == nil {
			return repository.ErrDuplicate
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := tx.Conversions().Create(ctx, conv); err != nil {
			return err
		}
		if conv.ClickID != nil {
			if err := tx.Clicks().MarkConverted(ctx, *conv.ClickID, conv.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("failed to mark click converted: %w", err)
			}
		}
		return s.audit.Record(ctx, tx, AuditEvent{
			SubjectType: models.AuditSubjectConversion,
			SubjectID:   conv.ID,
			Action:      models.AuditActionCreate,
			Actor:       SystemActor,
			Reason:      conv.ResolutionNote,
			After:       conv,
		})
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return s.store.Conversions().GetActiveByOrderID(ctx, event.OrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record conversion: %w", err)
	}

	if conv.LinkID != nil {
		s.links.BumpCounters(ctx, *conv.LinkID, 0, 1)
	}
	metrics.Conversions.WithLabelValues(string(conv.AttributionModel)).Inc()
	logrus.WithFields(logrus.Fields{
		"order_id": conv.OrderID,
		"model":    conv.AttributionModel,
	}).Info("Conversion recorded")
	return conv, nil
}

// attribute fills the partner, link and click of conv. A click inside the
// attribution window wins over an explicit partner reference.
func (s *AttributionService) attribute(ctx context.Context, conv *models.PartnerConversion, event *events.OrderEvent) error {
	var partnerID uuid.UUID

	click, err := s.findClick(ctx, event)
	if err != nil {
		return err
	}
	switch {
	case click != nil:
		partnerID = click.PartnerID
		linkID, clickID := click.LinkID, click.ID
		conv.LinkID = &linkID
		conv.ClickID = &clickID
		conv.AttributionModel = s.model

	case event.PartnerRef != "":
		ref := strings.TrimSpace(event.PartnerRef)
		if id, err := uuid.Parse(ref); err == nil {
			partnerID = id
		} else if link, err := s.store.Links().GetByCode(ctx, ref); err == nil {
			partnerID = link.PartnerID
			linkID := link.ID
			conv.LinkID = &linkID
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		} else {
			conv.ResolutionNote = fmt.Sprintf("unknown partner reference %q", ref)
			return nil
		}
		conv.AttributionModel = models.AttributionModelDirect

	default:
		return nil
	}

	partner, err := s.store.Partners().GetByID(ctx, partnerID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		conv.ResolutionNote = fmt.Sprintf("partner %s does not exist", partnerID)
	} else if !partner.IsActive() {
		conv.ResolutionNote = fmt.Sprintf("partner %s is %s", partnerID, partner.Status)
	} else {
		conv.PartnerID = &partner.ID
		return nil
	}

	conv.LinkID = nil
	conv.ClickID = nil
	conv.AttributionModel = models.AttributionModelNone
	return nil
}

func (s *AttributionService) findClick(ctx context.Context, event *events.OrderEvent) (*models.PartnerClick, error) {
	fingerprint := s.fingerprints.Visitor(event.VisitorFingerprint)
	if fingerprint == "" && event.SessionID == "" {
		return nil, nil
	}
	clicks, err := s.store.Clicks().ListForVisitor(ctx, fingerprint, event.SessionID, event.Timestamp.Add(-s.window), event.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to load clicks: %w", err)
	}
	if len(clicks) == 0 {
		return nil, nil
	}
	if s.model == models.AttributionModelFirstClick {
		return &clicks[0], nil
	}
	latest := len(clicks) - 1
	for i := range clicks {
		if lastVisit(clicks[i], event.Timestamp).After(lastVisit(clicks[latest], event.Timestamp)) {
			latest = i
		}
	}
	return &clicks[latest], nil
}

// lastVisit is the most recent visit of a click at or before the order. The
// window is bounded by ClickedAt; repeat visits only decide recency.
func lastVisit(c models.PartnerClick, at time.Time) time.Time {
	if c.LastSeenAt.After(c.ClickedAt) && !c.LastSeenAt.After(at) {
		return c.LastSeenAt
	}
	return c.ClickedAt
}

func (s *AttributionService) cancelledAfter(ctx context.Context, orderID string, at time.Time) (*models.PartnerConversion, error) {
	rows, _, err := s.store.Conversions().List(ctx, repository.ConversionFilter{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	for i := range rows {
		c := rows[i]
		if c.Status == models.ConversionStatusCancelled && c.CancelledAt != nil && !c.CancelledAt.Before(at) {
			return &c, nil
		}
	}
	return nil, nil
}

// Confirm attributes the order if needed, confirms the conversion and creates
// its commission. Replays return the same conversion and create nothing new.
func (s *AttributionService) Confirm(ctx context.Context, event *events.OrderEvent) (*models.PartnerConversion, error) {
	conv, err := s.Attribute(ctx, event)
	if err != nil {
		return nil, err
	}
	if conv.Status == models.ConversionStatusCancelled || conv.Status == models.ConversionStatusRefunded {
		return conv, nil
	}

	if conv.Status == models.ConversionStatusPending {
		err := s.store.WithTx(ctx, func(tx repository.Store) error {
			current, err := tx.Conversions().GetByID(ctx, conv.ID)
			if err != nil {
				return err
			}
			if current.Status != models.ConversionStatusPending {
				conv = current
				return nil
			}
			before := *current
			confirmedAt := event.Timestamp
			current.Status = models.ConversionStatusConfirmed
			current.ConfirmedAt = &confirmedAt
			if event.Amount.IsPositive() {
				current.OrderAmount = commission.Round(event.Amount, current.Currency)
			}
			if err := tx.Conversions().Update(ctx, current); err != nil {
				return fmt.Errorf("failed to confirm conversion: %w", err)
			}
			conv = current
			return s.audit.Record(ctx, tx, AuditEvent{
				SubjectType: models.AuditSubjectConversion,
				SubjectID:   current.ID,
				Action:      models.AuditActionConfirm,
				Actor:       SystemActor,
				Before:      before,
				After:       current,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	if conv.Status != models.ConversionStatusConfirmed || conv.ResolutionStatus != models.ResolutionStatusPending {
		return conv, nil
	}

	_, err = s.commissions.ResolveConversion(ctx, conv.ID, SystemActor)
	var conflict *commission.PolicyConflictError
	switch {
	case err == nil, errors.As(err, &conflict), errors.Is(err, ErrUsageCapExceeded):
		// business outcomes, recorded on the conversion
	default:
		return nil, err
	}
	return s.store.Conversions().GetByID(ctx, conv.ID)
}

// Reverse handles cancellation and refund. A pending conversion always ends
// cancelled. The commission is cancelled, or clawed back when already
// settled, in the same transaction. An order unknown so far gets a cancelled
// tombstone so a late placement event is ignored.
func (s *AttributionService) Reverse(ctx context.Context, event *events.OrderEvent, status models.ConversionStatus) (*models.PartnerConversion, error) {
	if err := s.normalize(event); err != nil {
		return nil, err
	}
	action := models.AuditActionCancel
	if status == models.ConversionStatusRefunded {
		action = models.AuditActionRefund
	}
	reason := event.Reason
	if reason == "" {
		reason = "order " + string(status)
	}

	var result *models.PartnerConversion
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		conv, err := tx.Conversions().GetActiveByOrderID(ctx, event.OrderID)
		if errors.Is(err, repository.ErrNotFound) {
			previous, _, err := tx.Conversions().List(ctx, repository.ConversionFilter{OrderID: event.OrderID})
			if err != nil {
				return err
			}
			if len(previous) > 0 {
				result = &previous[0]
				return nil
			}
			at := event.Timestamp
			tombstone := &models.PartnerConversion{
				OrderID:          event.OrderID,
				AttributionModel: models.AttributionModelNone,
				OrderAmount:      event.Amount,
				Currency:         event.Currency,
				Status:           models.ConversionStatusCancelled,
				ResolutionStatus: models.ResolutionStatusIneligible,
				ResolutionNote:   "reversed before the order was seen",
				OccurredAt:       at,
				CancelledAt:      &at,
			}
			if err := tx.Conversions().Create(ctx, tombstone); err != nil {
				return fmt.Errorf("failed to record cancelled order: %w", err)
			}
			result = tombstone
			return nil
		}
		if err != nil {
			return err
		}
		if conv.Status == models.ConversionStatusRefunded {
			result = conv
			return nil
		}

		before := *conv
		at := event.Timestamp
		if conv.Status == models.ConversionStatusPending || status == models.ConversionStatusCancelled {
			conv.Status = models.ConversionStatusCancelled
			conv.CancelledAt = &at
		} else {
			conv.Status = models.ConversionStatusRefunded
			conv.RefundedAt = &at
		}
		if err := tx.Conversions().Update(ctx, conv); err != nil {
			return fmt.Errorf("failed to update conversion: %w", err)
		}
		if err := s.commissions.reverse(ctx, tx, conv, reason, SystemActor); err != nil {
			return err
		}
		result = conv
		return s.audit.Record(ctx, tx, AuditEvent{
			SubjectType: models.AuditSubjectConversion,
			SubjectID:   conv.ID,
			Action:      action,
			Actor:       SystemActor,
			Reason:      reason,
			Before:      before,
			After:       conv,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *AttributionService) Get(ctx context.Context, id uuid.UUID) (*models.PartnerConversion, error) {
	return s.store.Conversions().GetByID(ctx, id)
}

func (s *AttributionService) List(ctx context.Context, filter repository.ConversionFilter) ([]models.PartnerConversion, int64, error) {
	return s.store.Conversions().List(ctx, filter)
}
