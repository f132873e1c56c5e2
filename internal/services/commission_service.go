// internal/services/commission_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/commission"
	"github.com/javajoker/partner-engine/internal/config"
	"github.com/javajoker/partner-engine/internal/events"
	"github.com/javajoker/partner-engine/internal/metrics"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type CommissionService struct {
	store     repository.Store
	audit     *AuditService
	publisher events.Publisher
	config    config.CommissionConfig
	retry     RetryPolicy
	now       func() time.Time
}

type AdjustCommissionRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

func NewCommissionService(store repository.Store, audit *AuditService, publisher events.Publisher, cfg config.CommissionConfig) *CommissionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &CommissionService{
		store:     store,
		audit:     audit,
		publisher: publisher,
		config:    cfg,
		retry: RetryPolicy{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
			MaxDelay:  cfg.RetryBaseDelay * 16,
		},
		now: time.Now,
	}
}

// ResolveConversion prices a confirmed, attributed conversion and records its
// commission. It is idempotent per conversion. A policy conflict leaves the
// conversion at zero commission with resolution status conflict and returns
// the *commission.PolicyConflictError. A nil commission with a nil error
// means no policy applied.
func (s *CommissionService) ResolveConversion(ctx context.Context, conversionID uuid.UUID, actor Actor) (*models.PartnerCommission, error) {
	conv, err := s.store.Conversions().GetByID(ctx, conversionID)
	if err != nil {
		return nil, err
	}
	if conv.Status != models.ConversionStatusConfirmed {
		return nil, invalid("conversion_id", "conversion is %s, not confirmed", conv.Status)
	}
	if !conv.Attributed() {
		return nil, s.setResolution(ctx, conv.ID, models.ResolutionStatusIneligible, "conversion is not attributed")
	}

	if existing, err := s.store.Commissions().GetActiveByConversion(ctx, conv.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	var created *models.PartnerCommission
	var outcome string
	err = retryOnConflict(ctx, s.retry, "resolve_commission", func(attempt int) error {
		created, outcome = nil, ""

		partner, err := s.store.Partners().GetByID(ctx, *conv.PartnerID)
		if err != nil {
			return fmt.Errorf("failed to load partner: %w", err)
		}
		policies, err := s.store.Policies().ListActive(ctx)
		if err != nil {
			return fmt.Errorf("failed to load policies: %w", err)
		}
		usage, err := s.store.Policies().PartnerUsage(ctx, partner.ID)
		if err != nil {
			return fmt.Errorf("failed to load policy usage: %w", err)
		}

		res, err := commission.Resolve(policies, resolutionContext(conv, partner, usage), conv.OccurredAt)
		if err != nil {
			return err
		}
		for _, e := range res.ConditionErrors() {
			logrus.WithFields(logrus.Fields{
				"conversion_id": conv.ID,
				"order_id":      conv.OrderID,
				"policy_id":     e.PolicyID,
				"error":         e.Detail,
			}).Warn("Policy condition failed to evaluate, conversion needs review")
		}
		if res.Policy == nil {
			outcome = "no_policy"
			if res.CapExceeded() {
				outcome = "capped"
			}
			return s.setResolution(ctx, conv.ID, models.ResolutionStatusNoPolicy, exclusionNote(res))
		}

		policy := res.Policy
		breakdown := commission.Calculate(policy, conv.OrderAmount, conv.Currency)
		return s.store.WithTx(ctx, func(tx repository.Store) error {
			if existing, err := tx.Commissions().GetActiveByConversion(ctx, conv.ID); err == nil {
				created = existing
				return nil
			} else if !errors.Is(err, repository.ErrNotFound) {
				return err
			}

			if err := tx.Policies().IncrementUsage(ctx, policy.ID, partner.ID, policy.Version); err != nil {
				return err
			}

			record := s.newCommission(conv, policy, breakdown)
			if err := tx.Commissions().Create(ctx, record); err != nil {
				return fmt.Errorf("failed to create commission: %w", err)
			}

			current, err := tx.Conversions().GetByID(ctx, conv.ID)
			if err != nil {
				return err
			}
			current.ResolutionStatus = models.ResolutionStatusCommissioned
			current.ResolutionNote = ""
			if err := tx.Conversions().Update(ctx, current); err != nil {
				return fmt.Errorf("failed to update conversion: %w", err)
			}

			created = record
			outcome = "commissioned"
			return s.audit.Record(ctx, tx, AuditEvent{
				SubjectType: models.AuditSubjectCommission,
				SubjectID:   record.ID,
				Action:      models.AuditActionCreate,
				Actor:       actor,
				After:       record,
			})
		})
	})

	var conflict *commission.PolicyConflictError
	if errors.As(err, &conflict) {
		metrics.Resolutions.WithLabelValues("conflict").Inc()
		logrus.WithFields(logrus.Fields{
			"conversion_id": conv.ID,
			"order_id":      conv.OrderID,
			"policy_ids":    conflict.PolicyIDs,
		}).Warn("Commission policy conflict, conversion needs review")
		if markErr := s.setResolution(ctx, conv.ID, models.ResolutionStatusConflict, conflict.Error()); markErr != nil {
			return nil, markErr
		}
		return nil, conflict
	}
	if err != nil {
		return nil, err
	}

	metrics.Resolutions.WithLabelValues(outcome).Inc()
	if outcome == "capped" {
		return nil, ErrUsageCapExceeded
	}
	if created == nil {
		return nil, nil
	}

	s.publish(ctx, created)
	logrus.WithFields(logrus.Fields{
		"commission_id": created.ID,
		"order_id":      created.OrderID,
		"amount":        created.FinalAmount.String(),
	}).Info("Commission created")
	return created, nil
}

func (s *CommissionService) newCommission(conv *models.PartnerConversion, policy *models.CommissionPolicy, b commission.Breakdown) *models.PartnerCommission {
	confirmedAt := s.now()
	if conv.ConfirmedAt != nil {
		confirmedAt = *conv.ConfirmedAt
	}

	policyID := policy.ID
	record := &models.PartnerCommission{
		ConversionID:       conv.ID,
		PartnerID:          *conv.PartnerID,
		OrderID:            conv.OrderID,
		PolicyID:           &policyID,
		PolicySnapshot:     models.ToJSONB(policy),
		CommissionType:     b.CommissionType,
		BaseAmount:         b.BaseAmount,
		RateApplied:        b.RateApplied,
		FixedAmountApplied: b.FixedApplied,
		ComputedAmount:     b.Computed,
		BonusAmount:        b.Bonus,
		AdjustmentAmount:   decimal.Zero,
		FinalAmount:        b.Final,
		Currency:           conv.Currency,
		Status:             models.CommissionStatusPending,
		ConfirmAfter:       confirmedAt.Add(s.config.HoldPeriod),
	}
	if s.config.HoldPeriod <= 0 {
		record.Status = models.CommissionStatusConfirmed
		record.ConfirmedAt = &confirmedAt
	}
	return record
}

func resolutionContext(conv *models.PartnerConversion, partner *models.Partner, usage map[uuid.UUID]int) commission.Context {
	applied := make([]uuid.UUID, 0, len(conv.AppliedPolicyIDs))
	for _, raw := range conv.AppliedPolicyIDs {
		if id, err := uuid.Parse(raw); err == nil {
			applied = append(applied, id)
		}
	}
	return commission.Context{
		PartnerID:        partner.ID,
		PartnerTier:      partner.Tier,
		ProductID:        conv.ProductID,
		SupplierID:       conv.SupplierID,
		Category:         conv.Category,
		Tags:             conv.Tags,
		OrderAmount:      conv.OrderAmount,
		Currency:         conv.Currency,
		CustomerIsNew:    conv.CustomerIsNew,
		PartnerUsage:     usage,
		AppliedPolicyIDs: applied,
	}
}

func exclusionNote(res *commission.Resolution) string {
	if len(res.Excluded) == 0 {
		return "no matching policy"
	}
	parts := make([]string, 0, len(res.Excluded))
	for _, e := range res.Excluded {
		if e.Detail != "" {
			parts = append(parts, fmt.Sprintf("%s excluded (%s: %s)", e.PolicyID, e.Reason, e.Detail))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s excluded (%s)", e.PolicyID, e.Reason))
	}
	return strings.Join(parts, "; ")
}

func (s *CommissionService) setResolution(ctx context.Context, conversionID uuid.UUID, status models.ResolutionStatus, note string) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		conv, err := tx.Conversions().GetByID(ctx, conversionID)
		if err != nil {
			return err
		}
		if conv.ResolutionStatus == status && conv.ResolutionNote == note {
			return nil
		}
		conv.ResolutionStatus = status
		conv.ResolutionNote = note
		if err := tx.Conversions().Update(ctx, conv); err != nil {
			return fmt.Errorf("failed to update conversion: %w", err)
		}
		return nil
	})
}

func (s *CommissionService) publish(ctx context.Context, c *models.PartnerCommission) {
	payload := events.CommissionCreatedEvent{
		CommissionID: c.ID,
		ConversionID: c.ConversionID,
		PartnerID:    c.PartnerID,
		OrderID:      c.OrderID,
		PolicyID:     c.PolicyID,
		FinalAmount:  c.FinalAmount,
		Currency:     c.Currency,
		Status:       string(c.Status),
	}
	if err := s.publisher.Publish(ctx, events.CommissionCreated, c.PartnerID.String(), payload); err != nil {
		logrus.WithError(err).WithField("commission_id", c.ID).Warn("Failed to publish commission event")
	}
}

// ConfirmDue confirms pending commissions whose hold period ended at or
// before now. It returns how many were confirmed.
func (s *CommissionService) ConfirmDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.store.Commissions().ListDue(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list due commissions: %w", err)
	}

	confirmed := 0
	for _, c := range due {
		_, err := s.mutate(ctx, c.ID, models.AuditActionConfirm, "hold period elapsed", SystemActor, func(c *models.PartnerCommission) error {
			if c.Status != models.CommissionStatusPending || c.ConfirmAfter.After(now) {
				return errSkip
			}
			c.Status = models.CommissionStatusConfirmed
			c.ConfirmedAt = &now
			return nil
		})
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			logrus.WithError(err).WithField("commission_id", c.ID).Error("Failed to confirm commission")
			continue
		}
		confirmed++
	}
	return confirmed, nil
}

// Confirm ends the hold period of a pending commission early.
func (s *CommissionService) Confirm(ctx context.Context, id uuid.UUID, actor Actor) (*models.PartnerCommission, error) {
	return s.mutate(ctx, id, models.AuditActionConfirm, "", actor, func(c *models.PartnerCommission) error {
		if c.Status != models.CommissionStatusPending {
			return transition(c.Status, models.CommissionStatusConfirmed)
		}
		now := s.now()
		c.Status = models.CommissionStatusConfirmed
		c.ConfirmedAt = &now
		return nil
	})
}

// Cancel voids a commission that has not been settled. Policy usage is not
// released.
func (s *CommissionService) Cancel(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*models.PartnerCommission, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, invalid("reason", "is required")
	}
	return s.mutate(ctx, id, models.AuditActionCancel, reason, actor, func(c *models.PartnerCommission) error {
		if c.Status != models.CommissionStatusPending && c.Status != models.CommissionStatusConfirmed {
			return transition(c.Status, models.CommissionStatusCancelled)
		}
		now := s.now()
		c.Status = models.CommissionStatusCancelled
		c.CancelledAt = &now
		c.CancelReason = reason
		return nil
	})
}

// Adjust sets the manual adjustment of an unsettled commission. The final
// amount is recomputed and may not go negative.
func (s *CommissionService) Adjust(ctx context.Context, id uuid.UUID, req *AdjustCommissionRequest, actor Actor) (*models.PartnerCommission, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, models.AuditActionAdjust, req.Reason, actor, func(c *models.PartnerCommission) error {
		if c.Status != models.CommissionStatusPending && c.Status != models.CommissionStatusConfirmed {
			return transition(c.Status, "adjusted")
		}
		adjustment := commission.Round(req.Amount, c.Currency)
		final := c.ComputedAmount.Add(c.BonusAmount).Add(adjustment)
		if final.IsNegative() {
			return invalid("amount", "adjustment would make the commission negative")
		}
		c.AdjustmentAmount = adjustment
		c.AdjustmentReason = req.Reason
		c.FinalAmount = final
		return nil
	})
}

var errSkip = errors.New("skip")

func (s *CommissionService) mutate(ctx context.Context, id uuid.UUID, action, reason string, actor Actor, apply func(*models.PartnerCommission) error) (*models.PartnerCommission, error) {
	var updated *models.PartnerCommission
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		c, err := tx.Commissions().GetByID(ctx, id)
		if err != nil {
			return err
		}
		before := *c
		if err := apply(c); err != nil {
			return err
		}
		if err := tx.Commissions().Update(ctx, c); err != nil {
			return fmt.Errorf("failed to update commission: %w", err)
		}
		updated = c
		return s.audit.Record(ctx, tx, AuditEvent{
			SubjectType: models.AuditSubjectCommission,
			SubjectID:   c.ID,
			Action:      action,
			Actor:       actor,
			Reason:      reason,
			Before:      before,
			After:       c,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// reverse undoes the commission of a cancelled or refunded conversion inside
// tx. Unsettled commissions are cancelled; a settled one gets a reversal that
// the partner's next batch close applies.
func (s *CommissionService) reverse(ctx context.Context, tx repository.Store, conv *models.PartnerConversion, reason string, actor Actor) error {
	c, err := tx.Commissions().GetActiveByConversion(ctx, conv.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	before := *c

	switch c.Status {
	case models.CommissionStatusPending, models.CommissionStatusConfirmed:
		now := s.now()
		c.Status = models.CommissionStatusCancelled
		c.CancelledAt = &now
		c.CancelReason = reason
		if err := tx.Commissions().Update(ctx, c); err != nil {
			return fmt.Errorf("failed to cancel commission: %w", err)
		}
		return s.audit.Record(ctx, tx, AuditEvent{
			SubjectType: models.AuditSubjectCommission,
			SubjectID:   c.ID,
			Action:      models.AuditActionCancel,
			Actor:       actor,
			Reason:      reason,
			Before:      before,
			After:       c,
		})

	case models.CommissionStatusSettled:
		if _, err := tx.Commissions().GetReversalByCommission(ctx, c.ID); err == nil {
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		reversal := &models.CommissionReversal{
			CommissionID:    c.ID,
			PartnerID:       c.PartnerID,
			OriginalBatchID: c.SettlementBatchID,
			OrderID:         c.OrderID,
			Amount:          c.FinalAmount,
			Currency:        c.Currency,
			Reason:          reason,
		}
		if err := tx.Commissions().CreateReversal(ctx, reversal); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return nil
			}
			return fmt.Errorf("failed to create reversal: %w", err)
		}
		return s.audit.Record(ctx, tx, AuditEvent{
			SubjectType: models.AuditSubjectCommission,
			SubjectID:   c.ID,
			Action:      models.AuditActionClawback,
			Actor:       actor,
			Reason:      reason,
			After:       reversal,
		})
	}
	return nil
}

func (s *CommissionService) Get(ctx context.Context, id uuid.UUID) (*models.PartnerCommission, error) {
	return s.store.Commissions().GetByID(ctx, id)
}

func (s *CommissionService) List(ctx context.Context, filter repository.CommissionFilter) ([]models.PartnerCommission, int64, error) {
	return s.store.Commissions().List(ctx, filter)
}

// Totals sums final amounts per status, recomputed from commission records.
func (s *CommissionService) Totals(ctx context.Context, partnerID uuid.UUID) (map[models.CommissionStatus]decimal.Decimal, error) {
	return s.store.Commissions().Totals(ctx, partnerID)
}
