// internal/services/partner_service.go
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

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type PartnerService struct {
	store repository.Store
	audit *AuditService
}

type RegisterPartnerRequest struct {
	Name            string     `json:"name" validate:"required,max=200"`
	Email           string     `json:"email" validate:"required,email"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	Tier            string     `json:"tier,omitempty" validate:"omitempty,oneof=bronze silver gold platinum"`
	PayoutAccountID string     `json:"payout_account_id,omitempty" validate:"max=255"`
}

type UpdatePartnerRequest struct {
	Name            *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Email           *string `json:"email,omitempty" validate:"omitempty,email"`
	PayoutAccountID *string `json:"payout_account_id,omitempty" validate:"omitempty,max=255"`
}

// PartnerStats is the partner dashboard summary.
type PartnerStats struct {
	PartnerID        uuid.UUID                                   `json:"partner_id"`
	Clicks           int64                                       `json:"clicks"`
	Conversions      int64                                       `json:"conversions"`
	ConfirmedOrders  int64                                       `json:"confirmed_orders"`
	ConversionRate   float64                                     `json:"conversion_rate"`
	CommissionTotals map[models.CommissionStatus]decimal.Decimal `json:"commission_totals"`
}

func NewPartnerService(store repository.Store, audit *AuditService) *PartnerService {
	return &PartnerService{store: store, audit: audit}
}

func (s *PartnerService) Register(ctx context.Context, req *RegisterPartnerRequest, actor Actor) (*models.Partner, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	tier := models.PartnerTierBronze
	if req.Tier != "" {
		tier = models.PartnerTier(req.Tier)
	}

	partner := &models.Partner{
		UserID:          req.UserID,
		Name:            strings.TrimSpace(req.Name),
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		Tier:            tier,
		Status:          models.PartnerStatusPending,
		PayoutAccountID: req.PayoutAccountID,
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Partners().Create(ctx, partner); err != nil {
			return fmt.Errorf("failed to create partner: %w", err)
		}
		return s.audit.Record(ctx, tx, AuditEvent{
			SubjectType: models.AuditSubjectPartner,
			SubjectID:   partner.ID,
			Action:      models.AuditActionCreate,
			Actor:       actor,
			After:       partner,
		})
	})
	if err != nil {
		return nil, err
	}

	logrus.WithField("partner_id", partner.ID).Info("Partner registered")
	return partner, nil
}

func (s *PartnerService) Get(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	return s.store.Partners().GetByID(ctx, id)
}

func (s *PartnerService) List(ctx context.Context, filter repository.PartnerFilter) ([]models.Partner, int64, error) {
	return s.store.Partners().List(ctx, filter)
}

func (s *PartnerService) Update(ctx context.Context, id uuid.UUID, req *UpdatePartnerRequest, actor Actor) (*models.Partner, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, models.AuditActionUpdate, "", actor, func(p *models.Partner) error {
		if req.Name != nil {
			p.Name = strings.TrimSpace(*req.Name)
		}
		if req.Email != nil {
			p.Email = strings.ToLower(strings.TrimSpace(*req.Email))
		}
		if req.PayoutAccountID != nil {
			p.PayoutAccountID = *req.PayoutAccountID
		}
		return nil
	})
}

// Approve activates a pending partner.
func (s *PartnerService) Approve(ctx context.Context, id uuid.UUID, actor Actor) (*models.Partner, error) {
	return s.mutate(ctx, id, models.AuditActionApprove, "", actor, func(p *models.Partner) error {
		if p.Status != models.PartnerStatusPending {
			return transition(p.Status, models.PartnerStatusActive)
		}
		now := time.Now()
		p.Status = models.PartnerStatusActive
		p.ApprovedAt = &now
		p.ApprovedBy = actor.ID
		return nil
	})
}

func (s *PartnerService) Suspend(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*models.Partner, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, invalid("reason", "is required")
	}
	return s.mutate(ctx, id, models.AuditActionSuspend, reason, actor, func(p *models.Partner) error {
		if p.Status == models.PartnerStatusSuspended {
			return transition(p.Status, models.PartnerStatusSuspended)
		}
		now := time.Now()
		p.Status = models.PartnerStatusSuspended
		p.SuspendedAt = &now
		p.SuspendReason = reason
		return nil
	})
}

func (s *PartnerService) Reinstate(ctx context.Context, id uuid.UUID, actor Actor) (*models.Partner, error) {
	return s.mutate(ctx, id, models.AuditActionReinstate, "", actor, func(p *models.Partner) error {
		if p.Status != models.PartnerStatusSuspended {
			return transition(p.Status, models.PartnerStatusActive)
		}
		p.Status = models.PartnerStatusActive
		p.SuspendedAt = nil
		p.SuspendReason = ""
		return nil
	})
}

func (s *PartnerService) ChangeTier(ctx context.Context, id uuid.UUID, tier models.PartnerTier, reason string, actor Actor) (*models.Partner, error) {
	switch tier {
	case models.PartnerTierBronze, models.PartnerTierSilver, models.PartnerTierGold, models.PartnerTierPlatinum:
	default:
		return nil, invalid("tier", "unknown tier %q", tier)
	}
	return s.mutate(ctx, id, models.AuditActionChangeTier, reason, actor, func(p *models.Partner) error {
		p.Tier = tier
		return nil
	})
}

func (s *PartnerService) mutate(ctx context.Context, id uuid.UUID, action, reason string, actor Actor, apply func(*models.Partner) error) (*models.Partner, error) {
	var updated *models.Partner
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		partner, err := tx.Partners().GetByID(ctx, id)
		if err != nil {
			return err
		}
		before := *partner
		if err := apply(partner); err != nil {
			return err
		}
		if err := tx.Partners().Update(ctx, partner); err != nil {
			return fmt.Errorf("failed to update partner: %w", err)
		}
		updated = partner
		return s.audit.Record(ctx, tx, AuditEvent{
			SubjectType: models.AuditSubjectPartner,
			SubjectID:   partner.ID,
			Action:      action,
			Actor:       actor,
			Reason:      reason,
			Before:      before,
			After:       partner,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Stats summarises a partner's funnel. Commission totals are recomputed from
// commission records rather than the advisory link counters.
func (s *PartnerService) Stats(ctx context.Context, id uuid.UUID) (*PartnerStats, error) {
	if _, err := s.store.Partners().GetByID(ctx, id); err != nil {
		return nil, err
	}

	clicks, err := s.store.Clicks().Count(ctx, repository.ClickFilter{PartnerID: &id})
	if err != nil {
		return nil, fmt.Errorf("failed to count clicks: %w", err)
	}
	conversions, err := s.store.Conversions().Count(ctx, repository.ConversionFilter{PartnerID: &id})
	if err != nil {
		return nil, fmt.Errorf("failed to count conversions: %w", err)
	}
	confirmedStatus := models.ConversionStatusConfirmed
	confirmed, err := s.store.Conversions().Count(ctx, repository.ConversionFilter{PartnerID: &id, Status: &confirmedStatus})
	if err != nil {
		return nil, fmt.Errorf("failed to count conversions: %w", err)
	}
	totals, err := s.store.Commissions().Totals(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to total commissions: %w", err)
	}

	stats := &PartnerStats{
		PartnerID:        id,
		Clicks:           clicks,
		Conversions:      conversions,
		ConfirmedOrders:  confirmed,
		CommissionTotals: totals,
	}
	if clicks > 0 {
		stats.ConversionRate = float64(conversions) / float64(clicks)
	}
	return stats, nil
}
