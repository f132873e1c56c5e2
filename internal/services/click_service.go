// internal/services/click_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/metrics"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

// ClickDeduper is the fast path for duplicate suppression. Claim registers
// clickID for (link, fingerprint) unless a claim is live, in which case it
// returns the existing click id and claimed=false.
type ClickDeduper interface {
	Claim(ctx context.Context, linkID uuid.UUID, fingerprint string, clickID uuid.UUID, window time.Duration) (existing uuid.UUID, claimed bool, err error)
}

type ClickService struct {
	store       repository.Store
	links       *LinkService
	deduper     ClickDeduper
	dedupWindow time.Duration
}

// ClickInput is one click as seen by the redirect endpoint. Fingerprint and
// IPHash are already hashed.
type ClickInput struct {
	Code        string
	Fingerprint string
	SessionID   string
	IPHash      string
	UserAgent   string
	Referrer    string
	At          time.Time
}

type ClickResult struct {
	ClickID   uuid.UUID `json:"click_id"`
	LinkID    uuid.UUID `json:"link_id"`
	PartnerID uuid.UUID `json:"partner_id"`
	Duplicate bool      `json:"duplicate"`
}

// NewClickService builds the tracker. deduper may be nil, in which case the
// click table is used for duplicate detection.
func NewClickService(store repository.Store, links *LinkService, deduper ClickDeduper, dedupWindow time.Duration) *ClickService {
	return &ClickService{
		store:       store,
		links:       links,
		deduper:     deduper,
		dedupWindow: dedupWindow,
	}
}

// RecordClick stores a click or, for a repeat visit inside the dedup window,
// refreshes the existing click's last-seen time. It never touches commission
// data.
func (s *ClickService) RecordClick(ctx context.Context, in ClickInput) (*ClickResult, error) {
	if in.Fingerprint == "" {
		return nil, invalid("fingerprint", "is required")
	}
	if in.At.IsZero() {
		in.At = time.Now()
	}

	link, err := s.links.Resolve(ctx, in.Code, in.At)
	if err != nil {
		return nil, err
	}

	result := &ClickResult{LinkID: link.ID, PartnerID: link.PartnerID}

	clickID, dup, err := s.findDuplicate(ctx, link.ID, in)
	if err != nil {
		return nil, err
	}
	if dup {
		err := s.store.Clicks().Touch(ctx, clickID, in.At)
		if err == nil {
			metrics.ClicksRecorded.WithLabelValues("duplicate").Inc()
			result.ClickID = clickID
			result.Duplicate = true
			return result, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to refresh click: %w", err)
		}
		// the cache claim outlived a click that was never stored
	}

	click := &models.PartnerClick{
		LinkID:      link.ID,
		PartnerID:   link.PartnerID,
		Fingerprint: in.Fingerprint,
		SessionID:   in.SessionID,
		IPHash:      in.IPHash,
		UserAgent:   truncate(in.UserAgent, 512),
		Referrer:    truncate(in.Referrer, 1024),
		ClickedAt:   in.At,
		LastSeenAt:  in.At,
	}
	click.ID = clickID
	if err := s.store.Clicks().Create(ctx, click); err != nil {
		return nil, fmt.Errorf("failed to record click: %w", err)
	}
	s.links.BumpCounters(ctx, link.ID, 1, 0)

	metrics.ClicksRecorded.WithLabelValues("new").Inc()
	result.ClickID = click.ID
	return result, nil
}

// findDuplicate returns the id of a live click for the visitor on the link
// and true, or a fresh id to store the new click under and false.
func (s *ClickService) findDuplicate(ctx context.Context, linkID uuid.UUID, in ClickInput) (uuid.UUID, bool, error) {
	candidate := uuid.New()
	if s.deduper != nil {
		existing, claimed, err := s.deduper.Claim(ctx, linkID, in.Fingerprint, candidate, s.dedupWindow)
		if err == nil {
			if claimed {
				return candidate, false, nil
			}
			return existing, true, nil
		}
		logrus.WithError(err).Warn("Click dedup cache unavailable, falling back to database")
	}

	recent, err := s.store.Clicks().FindRecent(ctx, linkID, in.Fingerprint, in.At.Add(-s.dedupWindow))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return candidate, false, nil
		}
		return uuid.Nil, false, err
	}
	return recent.ID, true, nil
}

func (s *ClickService) Get(ctx context.Context, id uuid.UUID) (*models.PartnerClick, error) {
	return s.store.Clicks().GetByID(ctx, id)
}

func (s *ClickService) List(ctx context.Context, filter repository.ClickFilter) ([]models.PartnerClick, int64, error) {
	return s.store.Clicks().List(ctx, filter)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
