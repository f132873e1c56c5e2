// internal/services/policy_service.go
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
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type PolicyService struct {
	store    repository.Store
	audit    *AuditService
	notifier *NotificationService
	retry    RetryPolicy
	now      func() time.Time
}

// PolicyRequest is the authoring payload for create and update. The legacy
// "rate" commission type is accepted and stored as "percentage".
type PolicyRequest struct {
	Name                string              `json:"name" validate:"required,max=200"`
	Description         string              `json:"description,omitempty" validate:"max=2000"`
	PolicyType          string              `json:"policy_type" validate:"required,oneof=product partner supplier category tier_based promotional default"`
	PartnerID           *uuid.UUID          `json:"partner_id,omitempty"`
	PartnerTier         string              `json:"partner_tier,omitempty" validate:"omitempty,oneof=bronze silver gold platinum"`
	ProductID           *uuid.UUID          `json:"product_id,omitempty"`
	SupplierID          *uuid.UUID          `json:"supplier_id,omitempty"`
	Category            string              `json:"category,omitempty" validate:"max=128"`
	Tags                []string            `json:"tags,omitempty"`
	MinOrderAmount      *decimal.Decimal    `json:"min_order_amount,omitempty"`
	MaxOrderAmount      *decimal.Decimal    `json:"max_order_amount,omitempty"`
	RequiresNewCustomer bool                `json:"requires_new_customer"`
	Condition           string              `json:"condition,omitempty" validate:"max=2000"`
	ValidFrom           *time.Time          `json:"valid_from,omitempty"`
	ValidUntil          *time.Time          `json:"valid_until,omitempty"`
	CommissionType      string              `json:"commission_type" validate:"required"`
	Rate                decimal.Decimal     `json:"rate"`
	FixedAmount         decimal.Decimal     `json:"fixed_amount"`
	Tiers               models.TierBrackets `json:"tiers,omitempty"`
	MinCommission       *decimal.Decimal    `json:"min_commission,omitempty"`
	MaxCommission       *decimal.Decimal    `json:"max_commission,omitempty"`
	BonusAmount         decimal.Decimal     `json:"bonus_amount"`
	Currency            string              `json:"currency,omitempty" validate:"omitempty,currency"`
	Priority            int                 `json:"priority"`
	MaxUsagePerPartner  *int                `json:"max_usage_per_partner,omitempty"`
	MaxUsageTotal       *int                `json:"max_usage_total,omitempty"`
	Stackable           bool                `json:"stackable"`
	ExclusiveWith       []string            `json:"exclusive_with,omitempty"`
	RequiresApproval    bool                `json:"requires_approval"`
	Status              string              `json:"status,omitempty" validate:"omitempty,oneof=draft active inactive scheduled"`
}

type UpdatePolicyRequest struct {
	PolicyRequest
	Version int `json:"version" validate:"required,min=1"`
}

func NewPolicyService(store repository.Store, audit *AuditService, notifier *NotificationService, retry RetryPolicy) *PolicyService {
	return &PolicyService{
		store:    store,
		audit:    audit,
		notifier: notifier,
		retry:    retry,
		now:      time.Now,
	}
}

func (r *PolicyRequest) apply(p *models.CommissionPolicy) error {
	commissionType, ok := commission.NormalizeCommissionType(r.CommissionType)
	if !ok {
		return invalid("commission_type", "unknown commission type %q", r.CommissionType)
	}
	p.Name = strings.TrimSpace(r.Name)
	p.Description = r.Description
	p.PolicyType = models.PolicyType(r.PolicyType)
	p.PartnerID = r.PartnerID
	p.PartnerTier = models.PartnerTier(r.PartnerTier)
	p.ProductID = r.ProductID
	p.SupplierID = r.SupplierID
	p.Category = r.Category
	p.Tags = r.Tags
	p.MinOrderAmount = r.MinOrderAmount
	p.MaxOrderAmount = r.MaxOrderAmount
	p.RequiresNewCustomer = r.RequiresNewCustomer
	p.Condition = strings.TrimSpace(r.Condition)
	p.ValidFrom = r.ValidFrom
	p.ValidUntil = r.ValidUntil
	p.CommissionType = commissionType
	p.Rate = r.Rate
	p.FixedAmount = r.FixedAmount
	p.Tiers = r.Tiers
	p.MinCommission = r.MinCommission
	p.MaxCommission = r.MaxCommission
	p.BonusAmount = r.BonusAmount
	p.Currency = strings.ToUpper(r.Currency)
	p.Priority = r.Priority
	p.MaxUsagePerPartner = r.MaxUsagePerPartner
	p.MaxUsageTotal = r.MaxUsageTotal
	p.Stackable = r.Stackable
	p.ExclusiveWith = r.ExclusiveWith
	p.RequiresApproval = r.RequiresApproval
	return nil
}

// effectiveStatus turns an active policy whose window has not opened yet
// into a scheduled one.
func effectiveStatus(status models.PolicyStatus, validFrom *time.Time, now time.Time) models.PolicyStatus {
	if status == models.PolicyStatusActive && validFrom != nil && validFrom.After(now) {
		return models.PolicyStatusScheduled
	}
	return status
}

func (s *PolicyService) Create(ctx context.Context, req *PolicyRequest, actor Actor) (*models.CommissionPolicy, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	policy := &models.CommissionPolicy{
		ApprovalStatus: models.ApprovalStatusNone,
		CreatedBy:      actor.ID,
		Version:        1,
	}
	if err := req.apply(policy); err != nil {
		return nil, err
	}
	policy.Status = models.PolicyStatusDraft
	if req.Status != "" {
		policy.Status = models.PolicyStatus(req.Status)
	}
	policy.Status = effectiveStatus(policy.Status, policy.ValidFrom, s.now())

	if err := commission.ValidatePolicy(policy); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Policies().Create(ctx, policy); err != nil {
			return fmt.Errorf("failed to create policy: %w", err)
		}
		return s.audit.Record(ctx, tx, AuditEvent{
			SubjectType: models.AuditSubjectPolicy,
			SubjectID:   policy.ID,
			Action:      models.AuditActionCreate,
			Actor:       actor,
			After:       policy,
		})
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"policy_id": policy.ID, "status": policy.Status}).Info("Commission policy created")
	return policy, nil
}

// Update replaces the authored fields of a policy. The caller's version must
// match the stored one. Editing an approved or pending policy that requires
// approval resets its approval.
func (s *PolicyService) Update(ctx context.Context, id uuid.UUID, req *UpdatePolicyRequest, actor Actor) (*models.CommissionPolicy, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var updated *models.CommissionPolicy
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		policy, err := tx.Policies().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if policy.Version != req.Version {
			return fmt.Errorf("%w: policy is at version %d", ErrConcurrentModification, policy.Version)
		}
		if policy.Status == models.PolicyStatusExpired {
			return transition(policy.Status, "updated")
		}

		before := *policy
		if err := req.apply(policy); err != nil {
			return err
		}
		if req.Status != "" {
			policy.Status = models.PolicyStatus(req.Status)
		}
		policy.Status = effectiveStatus(policy.Status, policy.ValidFrom, s.now())
		if policy.RequiresApproval && (policy.ApprovalStatus == models.ApprovalStatusApproved || policy.ApprovalStatus == models.ApprovalStatusPending) {
			policy.ApprovalStatus = models.ApprovalStatusNone
			policy.ApprovedBy = ""
			policy.ApprovedAt = nil
		}
		if err := commission.ValidatePolicy(policy); err != nil {
			return err
		}

		if err := tx.Policies().Update(ctx, policy); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
			}
			return fmt.Errorf("failed to update policy: %w", err)
		}
		updated = policy
		return s.audit.Record(ctx, tx, AuditEvent{
			SubjectType: models.AuditSubjectPolicy,
			SubjectID:   policy.ID,
			Action:      models.AuditActionUpdate,
			Actor:       actor,
			Before:      before,
			After:       policy,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

var policyTransitions = map[models.PolicyStatus][]models.PolicyStatus{
	models.PolicyStatusDraft:     {models.PolicyStatusActive, models.PolicyStatusScheduled, models.PolicyStatusInactive},
	models.PolicyStatusScheduled: {models.PolicyStatusActive, models.PolicyStatusInactive, models.PolicyStatusExpired},
	models.PolicyStatusActive:    {models.PolicyStatusInactive, models.PolicyStatusExpired},
	models.PolicyStatusInactive:  {models.PolicyStatusActive, models.PolicyStatusScheduled, models.PolicyStatusDraft},
}

func canTransition(from, to models.PolicyStatus) bool {
	for _, allowed := range policyTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SetStatus activates, deactivates or expires a policy. Activating a policy
// whose window opens later schedules it instead.
func (s *PolicyService) SetStatus(ctx context.Context, id uuid.UUID, status models.PolicyStatus, actor Actor) (*models.CommissionPolicy, error) {
	return s.mutate(ctx, id, models.AuditActionStatusChange, "", actor, func(p *models.CommissionPolicy) error {
		target := effectiveStatus(status, p.ValidFrom, s.now())
		if p.Status == target {
			return nil
		}
		if !canTransition(p.Status, target) {
			return transition(p.Status, target)
		}
		p.Status = target
		return nil
	})
}

// RequestApproval moves a policy that requires approval into pending.
func (s *PolicyService) RequestApproval(ctx context.Context, id uuid.UUID, note string, actor Actor) (*models.CommissionPolicy, error) {
	policy, err := s.mutate(ctx, id, models.AuditActionRequestApproval, note, actor, func(p *models.CommissionPolicy) error {
		if !p.RequiresApproval {
			return invalid("requires_approval", "policy does not require approval")
		}
		switch p.ApprovalStatus {
		case models.ApprovalStatusNone, models.ApprovalStatusRejected, models.ApprovalStatusRevoked, models.ApprovalStatusCancelled:
		default:
			return transition(p.ApprovalStatus, models.ApprovalStatusPending)
		}
		now := s.now()
		p.ApprovalStatus = models.ApprovalStatusPending
		p.ApprovalRequestedBy = actor.ID
		p.ApprovalRequestedAt = &now
		p.ApprovalNote = note
		p.ApprovedBy = ""
		p.ApprovedAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(func() error { return s.notifier.SendPolicyApprovalRequested(policy) }, policy.ID)
	return policy, nil
}

// Approve grants a pending request. The requester cannot approve their own
// request.
func (s *PolicyService) Approve(ctx context.Context, id uuid.UUID, note string, actor Actor) (*models.CommissionPolicy, error) {
	return s.decide(ctx, id, models.AuditActionApprovePolicy, note, actor, func(p *models.CommissionPolicy) error {
		if p.ApprovalStatus != models.ApprovalStatusPending {
			return transition(p.ApprovalStatus, models.ApprovalStatusApproved)
		}
		if p.ApprovalRequestedBy != "" && p.ApprovalRequestedBy == actor.ID {
			return fmt.Errorf("%w: requester cannot approve their own request", ErrForbidden)
		}
		now := s.now()
		p.ApprovalStatus = models.ApprovalStatusApproved
		p.ApprovedBy = actor.ID
		p.ApprovedAt = &now
		p.ApprovalNote = note
		return nil
	})
}

func (s *PolicyService) Reject(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*models.CommissionPolicy, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, invalid("reason", "is required")
	}
	return s.decide(ctx, id, models.AuditActionRejectPolicy, reason, actor, func(p *models.CommissionPolicy) error {
		if p.ApprovalStatus != models.ApprovalStatusPending {
			return transition(p.ApprovalStatus, models.ApprovalStatusRejected)
		}
		p.ApprovalStatus = models.ApprovalStatusRejected
		p.ApprovedBy = actor.ID
		p.ApprovalNote = reason
		return nil
	})
}

// Revoke withdraws an approval. The policy stops matching immediately.
func (s *PolicyService) Revoke(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*models.CommissionPolicy, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, invalid("reason", "is required")
	}
	return s.decide(ctx, id, models.AuditActionRevokePolicy, reason, actor, func(p *models.CommissionPolicy) error {
		if p.ApprovalStatus != models.ApprovalStatusApproved {
			return transition(p.ApprovalStatus, models.ApprovalStatusRevoked)
		}
		p.ApprovalStatus = models.ApprovalStatusRevoked
		p.ApprovedBy = actor.ID
		p.ApprovedAt = nil
		p.ApprovalNote = reason
		return nil
	})
}

// CancelApproval withdraws a pending request.
func (s *PolicyService) CancelApproval(ctx context.Context, id uuid.UUID, actor Actor) (*models.CommissionPolicy, error) {
	return s.mutate(ctx, id, models.AuditActionCancelApproval, "", actor, func(p *models.CommissionPolicy) error {
		if p.ApprovalStatus != models.ApprovalStatusPending {
			return transition(p.ApprovalStatus, models.ApprovalStatusCancelled)
		}
		p.ApprovalStatus = models.ApprovalStatusCancelled
		return nil
	})
}

func (s *PolicyService) decide(ctx context.Context, id uuid.UUID, action, note string, actor Actor, apply func(*models.CommissionPolicy) error) (*models.CommissionPolicy, error) {
	policy, err := s.mutate(ctx, id, action, note, actor, apply)
	if err != nil {
		return nil, err
	}
	s.notify(func() error { return s.notifier.SendPolicyApprovalDecided(policy) }, policy.ID)
	return policy, nil
}

func (s *PolicyService) notify(send func() error, policyID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	if err := send(); err != nil {
		logrus.WithError(err).WithField("policy_id", policyID).Warn("Failed to send policy notification")
	}
}

// mutate re-reads the policy on every attempt, so usage increments that bump
// the version concurrently are retried instead of failing the caller.
func (s *PolicyService) mutate(ctx context.Context, id uuid.UUID, action, reason string, actor Actor, apply func(*models.CommissionPolicy) error) (*models.CommissionPolicy, error) {
	var updated *models.CommissionPolicy
	err := retryOnConflict(ctx, s.retry, "policy_"+action, func(int) error {
		return s.store.WithTx(ctx, func(tx repository.Store) error {
			policy, err := tx.Policies().GetByID(ctx, id)
			if err != nil {
				return err
			}
			before := *policy
			if err := apply(policy); err != nil {
				return err
			}
			if policy.Status == before.Status && policy.ApprovalStatus == before.ApprovalStatus && action == models.AuditActionStatusChange {
				updated = policy
				return nil
			}
			if err := tx.Policies().Update(ctx, policy); err != nil {
				return err
			}
			updated = policy
			return s.audit.Record(ctx, tx, AuditEvent{
				SubjectType: models.AuditSubjectPolicy,
				SubjectID:   policy.ID,
				Action:      action,
				Actor:       actor,
				Reason:      reason,
				Before:      before,
				After:       policy,
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RefreshStatuses activates scheduled policies whose window has opened and
// expires policies whose window has closed.
func (s *PolicyService) RefreshStatuses(ctx context.Context, now time.Time) (activated, expired int, err error) {
	policies, err := s.store.Policies().ListByStatus(ctx, models.PolicyStatusScheduled, models.PolicyStatusActive)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list policies: %w", err)
	}

	for _, p := range policies {
		var target models.PolicyStatus
		switch {
		case p.ValidUntil != nil && now.After(*p.ValidUntil):
			target = models.PolicyStatusExpired
		case p.Status == models.PolicyStatusScheduled && (p.ValidFrom == nil || !p.ValidFrom.After(now)):
			target = models.PolicyStatusActive
		default:
			continue
		}

		_, err := s.mutate(ctx, p.ID, models.AuditActionStatusChange, "validity window", SystemActor, func(p *models.CommissionPolicy) error {
			if p.Status != models.PolicyStatusScheduled && p.Status != models.PolicyStatusActive {
				return errSkip
			}
			p.Status = target
			return nil
		})
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			logrus.WithError(err).WithField("policy_id", p.ID).Error("Failed to refresh policy status")
			continue
		}
		if target == models.PolicyStatusExpired {
			expired++
		} else {
			activated++
		}
	}
	return activated, expired, nil
}

func (s *PolicyService) Get(ctx context.Context, id uuid.UUID) (*models.CommissionPolicy, error) {
	return s.store.Policies().GetByID(ctx, id)
}

func (s *PolicyService) List(ctx context.Context, filter repository.PolicyFilter) ([]models.CommissionPolicy, int64, error) {
	return s.store.Policies().List(ctx, filter)
}
