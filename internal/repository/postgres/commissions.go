// internal/repository/postgres/commissions.go
package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type commissionRepo struct{ db *gorm.DB }

func (r commissionRepo) Create(ctx context.Context, commission *models.PartnerCommission) error {
	return translate(r.db.WithContext(ctx).Create(commission).Error)
}

func (r commissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PartnerCommission, error) {
	var commission models.PartnerCommission
	if err := r.db.WithContext(ctx).First(&commission, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &commission, nil
}

func (r commissionRepo) GetActiveByConversion(ctx context.Context, conversionID uuid.UUID) (*models.PartnerCommission, error) {
	var commission models.PartnerCommission
	err := r.db.WithContext(ctx).
		Where("conversion_id = ? AND status <> ?", conversionID, models.CommissionStatusCancelled).
		First(&commission).Error
	if err != nil {
		return nil, translate(err)
	}
	return &commission, nil
}

func (r commissionRepo) Update(ctx context.Context, commission *models.PartnerCommission) error {
	return translate(r.db.WithContext(ctx).Save(commission).Error)
}

func (r commissionRepo) List(ctx context.Context, filter repository.CommissionFilter) ([]models.PartnerCommission, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PartnerCommission{})
	if filter.PartnerID != nil {
		query = query.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.BatchID != nil {
		query = query.Where("settlement_batch_id = ?", *filter.BatchID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var commissions []models.PartnerCommission
	err := page(query, filter.PaginationParams, []string{"created_at", "final_amount", "confirmed_at"}).Find(&commissions).Error
	return commissions, total, err
}

func (r commissionRepo) ListSettleable(ctx context.Context, partnerID uuid.UUID, from, to time.Time, lock bool) ([]models.PartnerCommission, error) {
	var commissions []models.PartnerCommission
	err := forUpdate(r.db.WithContext(ctx), lock).
		Where("partner_id = ? AND status = ? AND settlement_batch_id IS NULL", partnerID, models.CommissionStatusConfirmed).
		Where("confirmed_at >= ? AND confirmed_at < ?", from, to).
		Order("id").
		Find(&commissions).Error
	return commissions, err
}

func (r commissionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]models.PartnerCommission, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND confirm_after <= ?", models.CommissionStatusPending, now).
		Order("confirm_after")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var commissions []models.PartnerCommission
	err := query.Find(&commissions).Error
	return commissions, err
}

func (r commissionRepo) Totals(ctx context.Context, partnerID uuid.UUID) (map[models.CommissionStatus]decimal.Decimal, error) {
	var rows []struct {
		Status models.CommissionStatus
		Total  decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&models.PartnerCommission{}).
		Select("status, COALESCE(SUM(final_amount), 0) AS total").
		Where("partner_id = ?", partnerID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[models.CommissionStatus]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

func (r commissionRepo) CreateReversal(ctx context.Context, reversal *models.CommissionReversal) error {
	return translate(r.db.WithContext(ctx).Create(reversal).Error)
}

func (r commissionRepo) GetReversalByCommission(ctx context.Context, commissionID uuid.UUID) (*models.CommissionReversal, error) {
	var reversal models.CommissionReversal
	if err := r.db.WithContext(ctx).Where("commission_id = ?", commissionID).First(&reversal).Error; err != nil {
		return nil, translate(err)
	}
	return &reversal, nil
}

func (r commissionRepo) ListOpenReversals(ctx context.Context, partnerID uuid.UUID, lock bool) ([]models.CommissionReversal, error) {
	var reversals []models.CommissionReversal
	err := forUpdate(r.db.WithContext(ctx), lock).
		Where("partner_id = ? AND applied_batch_id IS NULL", partnerID).
		Order("id").
		Find(&reversals).Error
	return reversals, err
}

func (r commissionRepo) UpdateReversal(ctx context.Context, reversal *models.CommissionReversal) error {
	return translate(r.db.WithContext(ctx).Save(reversal).Error)
}
