// internal/services/link_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/config"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
	"github.com/javajoker/partner-engine/internal/utils"
)

type LinkService struct {
	store   repository.Store
	config  config.LinksConfig
	audit   *AuditService
	blocked map[string]bool

	generateCode func(length int) (string, error)
}

type CreateLinkRequest struct {
	PartnerID   uuid.UUID  `json:"partner_id" validate:"required"`
	TargetType  string     `json:"target_type" validate:"required,oneof=product listing page campaign"`
	TargetID    string     `json:"target_id" validate:"required,max=128"`
	CustomCode  string     `json:"custom_code,omitempty" validate:"omitempty,short_code"`
	UTMSource   string     `json:"utm_source,omitempty" validate:"max=100"`
	UTMMedium   string     `json:"utm_medium,omitempty" validate:"max=100"`
	UTMCampaign string     `json:"utm_campaign,omitempty" validate:"max=100"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func NewLinkService(store repository.Store, cfg config.LinksConfig, audit *AuditService) *LinkService {
	blocked := make(map[string]bool, len(cfg.BlockedProductTypes))
	for _, t := range cfg.BlockedProductTypes {
		blocked[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return &LinkService{
		store:        store,
		config:       cfg,
		audit:        audit,
		blocked:      blocked,
		generateCode: utils.GenerateRandomString,
	}
}

// CreateLink validates the partner and target, then allocates a short code.
// Restricted product types are rejected here and never at click time.
func (s *LinkService) CreateLink(ctx context.Context, req *CreateLinkRequest, actor Actor) (*models.PartnerLink, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	partner, err := s.store.Partners().GetByID(ctx, req.PartnerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("partner_id", "partner does not exist")
		}
		return nil, err
	}
	if !partner.IsActive() {
		return nil, invalid("partner_id", "partner is %s", partner.Status)
	}

	target, err := s.store.Catalog().Get(ctx, models.TargetType(req.TargetType), req.TargetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("target_id", "target does not exist")
		}
		return nil, err
	}
	if !target.Active {
		return nil, invalid("target_id", "target is not active")
	}
	if s.blocked[strings.ToLower(target.ProductType)] {
		return nil, invalid("target_id", "product type %q cannot be promoted", target.ProductType)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return nil, invalid("expires_at", "must be in the future")
	}

	link := &models.PartnerLink{
		PartnerID:   partner.ID,
		TargetType:  target.TargetType,
		TargetID:    target.TargetID,
		TargetURL:   target.URL,
		ProductType: target.ProductType,
		UTMSource:   req.UTMSource,
		UTMMedium:   req.UTMMedium,
		UTMCampaign: req.UTMCampaign,
		Status:      models.LinkStatusActive,
		ExpiresAt:   req.ExpiresAt,
	}

	if req.CustomCode != "" {
		err = s.createWithCustomCode(ctx, link, req.CustomCode)
	} else {
		err = s.createWithGeneratedCode(ctx, link)
	}
	if err != nil {
		return nil, err
	}

	if err := s.audit.Record(ctx, nil, AuditEvent{
		SubjectType: models.AuditSubjectLink,
		SubjectID:   link.ID,
		Action:      models.AuditActionCreate,
		Actor:       actor,
		After:       link,
	}); err != nil {
		logrus.WithError(err).WithField("link_id", link.ID).Error("Failed to audit link creation")
	}

	return link, nil
}

func (s *LinkService) createWithCustomCode(ctx context.Context, link *models.PartnerLink, code string) error {
	exists, err := s.store.Links().CodeExists(ctx, code)
	if err != nil {
		return err
	}
	if exists {
		return invalid("custom_code", "code %q is already taken", code)
	}
	link.ShortCode = code
	if err := s.store.Links().Create(ctx, link); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return invalid("custom_code", "code %q is already taken", code)
		}
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

func (s *LinkService) createWithGeneratedCode(ctx context.Context, link *models.PartnerLink) error {
	for attempt := 0; attempt < s.config.MaxRetries; attempt++ {
		code, err := s.generateCode(s.config.CodeLength)
		if err != nil {
			return fmt.Errorf("failed to generate short code: %w", err)
		}

		exists, err := s.store.Links().CodeExists(ctx, code)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		link.ShortCode = code
		err = s.store.Links().Create(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("failed to create link: %w", err)
		}
		link.ID = uuid.Nil
	}

	logrus.WithField("attempts", s.config.MaxRetries).Error("Short code space exhausted")
	return ErrCodeGenerationExhausted
}

// Resolve looks a short code up. Unknown, paused, archived and expired links
// all yield ErrLinkNotFound.
func (s *LinkService) Resolve(ctx context.Context, code string, at time.Time) (*models.PartnerLink, error) {
	link, err := s.store.Links().GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	if !link.Resolvable(at) {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

func (s *LinkService) Get(ctx context.Context, id uuid.UUID) (*models.PartnerLink, error) {
	return s.store.Links().GetByID(ctx, id)
}

func (s *LinkService) ListByPartner(ctx context.Context, partnerID uuid.UUID, params utils.PaginationParams) ([]models.PartnerLink, int64, error) {
	return s.store.Links().ListByPartner(ctx, partnerID, params)
}

// UpdateStatus pauses, reactivates or archives a link. Archiving is final.
func (s *LinkService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.LinkStatus, actor Actor) (*models.PartnerLink, error) {
	switch status {
	case models.LinkStatusActive, models.LinkStatusPaused, models.LinkStatusArchived:
	default:
		return nil, invalid("status", "unknown link status %q", status)
	}

	var updated *models.PartnerLink
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		link, err := tx.Links().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if link.Status == models.LinkStatusArchived && status != models.LinkStatusArchived {
			return transition(link.Status, status)
		}
		if link.Status == status {
			updated = link
			return nil
		}

		before := *link
		link.Status = status
		if err := tx.Links().Update(ctx, link); err != nil {
			return fmt.Errorf("failed to update link: %w", err)
		}
		updated = link
		return s.audit.Record(ctx, tx, AuditEvent{
			SubjectType: models.AuditSubjectLink,
			SubjectID:   link.ID,
			Action:      models.AuditActionStatusChange,
			Actor:       actor,
			Before:      before,
			After:       link,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ShortURL is the public redirect URL of a link.
func (s *LinkService) ShortURL(link *models.PartnerLink) string {
	return s.config.BaseURL + link.ShortCode
}

// BumpCounters updates the advisory counters. Failures are logged only.
func (s *LinkService) BumpCounters(ctx context.Context, id uuid.UUID, clicks, conversions int64) {
	if err := s.store.Links().IncrementCounters(ctx, id, clicks, conversions); err != nil {
		logrus.WithError(err).WithField("link_id", id).Warn("Failed to update link counters")
	}
}
