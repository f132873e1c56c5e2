// internal/repository/postgres/policies.go
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type policyRepo struct{ db *gorm.DB }

func (r policyRepo) Create(ctx context.Context, policy *models.CommissionPolicy) error {
	if policy.Version == 0 {
		policy.Version = 1
	}
	return translate(r.db.WithContext(ctx).Create(policy).Error)
}

func (r policyRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.CommissionPolicy, error) {
	var policy models.CommissionPolicy
	if err := r.db.WithContext(ctx).First(&policy, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &policy, nil
}

func (r policyRepo) Update(ctx context.Context, policy *models.CommissionPolicy) error {
	expected := policy.Version
	policy.Version = expected + 1

	res := r.db.WithContext(ctx).Model(&models.CommissionPolicy{}).
		Where("id = ? AND version = ?", policy.ID, expected).
		Select("*").
		Omit("id", "created_at", "deleted_at", "current_usage_count").
		Updates(policy)
	if res.Error != nil {
		policy.Version = expected
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		policy.Version = expected
		if _, err := r.GetByID(ctx, policy.ID); err != nil {
			return err
		}
		return repository.ErrVersionConflict
	}
	return nil
}

func (r policyRepo) ListActive(ctx context.Context) ([]models.CommissionPolicy, error) {
	return r.ListByStatus(ctx, models.PolicyStatusActive)
}

func (r policyRepo) ListByStatus(ctx context.Context, statuses ...models.PolicyStatus) ([]models.CommissionPolicy, error) {
	var policies []models.CommissionPolicy
	err := r.db.WithContext(ctx).Where("status IN ?", statuses).Order("id").Find(&policies).Error
	return policies, err
}

func (r policyRepo) List(ctx context.Context, filter repository.PolicyFilter) ([]models.CommissionPolicy, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.CommissionPolicy{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PolicyType != nil {
		query = query.Where("policy_type = ?", *filter.PolicyType)
	}
	if filter.ApprovalStatus != nil {
		query = query.Where("approval_status = ?", *filter.ApprovalStatus)
	}
	if filter.PartnerID != nil {
		query = query.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.Search != "" {
		query = query.Where("name ILIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var policies []models.CommissionPolicy
	err := page(query, filter.PaginationParams, []string{"created_at", "priority", "name", "valid_from"}).Find(&policies).Error
	return policies, total, err
}

func (r policyRepo) PartnerUsage(ctx context.Context, partnerID uuid.UUID) (map[uuid.UUID]int, error) {
	var usages []models.PolicyUsage
	if err := r.db.WithContext(ctx).Where("partner_id = ?", partnerID).Find(&usages).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(usages))
	for _, u := range usages {
		out[u.PolicyID] = u.Count
	}
	return out, nil
}

func (r policyRepo) IncrementUsage(ctx context.Context, policyID, partnerID uuid.UUID, expectedVersion int) error {
	db := r.db.WithContext(ctx)

	res := db.Model(&models.CommissionPolicy{}).
		Where("id = ? AND version = ?", policyID, expectedVersion).
		Where("max_usage_total IS NULL OR current_usage_count < max_usage_total").
		UpdateColumns(map[string]interface{}{
			"current_usage_count": gorm.Expr("current_usage_count + 1"),
			"version":             gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		current, err := r.GetByID(ctx, policyID)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return repository.ErrVersionConflict
		}
		return repository.ErrUsageCapReached
	}

	var policy models.CommissionPolicy
	if err := db.Select("id", "max_usage_per_partner").First(&policy, "id = ?", policyID).Error; err != nil {
		return translate(err)
	}

	now := time.Now()
	onConflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "policy_id"}, {Name: "partner_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("commission_policy_usages.count + 1"),
			"updated_at": now,
		}),
	}
	if policy.MaxUsagePerPartner != nil {
		onConflict.Where = clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "commission_policy_usages.count < ?", Vars: []interface{}{*policy.MaxUsagePerPartner}},
		}}
	}

	usage := models.PolicyUsage{PolicyID: policyID, PartnerID: partnerID, Count: 1, UpdatedAt: now}
	res = db.Clauses(onConflict).Create(&usage)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return repository.ErrVersionConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrUsageCapReached
	}
	return nil
}
