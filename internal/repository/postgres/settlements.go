// internal/repository/postgres/settlements.go
package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type settlementRepo struct{ db *gorm.DB }

func (r settlementRepo) CreateBatch(ctx context.Context, batch *models.PartnerSettlementBatch) error {
	return translate(r.db.WithContext(ctx).Create(batch).Error)
}

func (r settlementRepo) GetBatch(ctx context.Context, id uuid.UUID, lock bool) (*models.PartnerSettlementBatch, error) {
	var batch models.PartnerSettlementBatch
	if err := forUpdate(r.db.WithContext(ctx), lock).First(&batch, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

func (r settlementRepo) GetOpenBatch(ctx context.Context, partnerID uuid.UUID, periodKey string) (*models.PartnerSettlementBatch, error) {
	var batch models.PartnerSettlementBatch
	err := r.db.WithContext(ctx).
		Where("partner_id = ? AND period_key = ? AND status = ?", partnerID, periodKey, models.BatchStatusOpen).
		First(&batch).Error
	if err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

func (r settlementRepo) UpdateBatch(ctx context.Context, batch *models.PartnerSettlementBatch) error {
	return translate(r.db.WithContext(ctx).Save(batch).Error)
}

func (r settlementRepo) ListBatches(ctx context.Context, filter repository.BatchFilter) ([]models.PartnerSettlementBatch, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PartnerSettlementBatch{})
	if filter.PartnerID != nil {
		query = query.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PeriodKey != "" {
		query = query.Where("period_key = ?", filter.PeriodKey)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var batches []models.PartnerSettlementBatch
	err := page(query, filter.PaginationParams, []string{"created_at", "period_start", "total_amount"}).Find(&batches).Error
	return batches, total, err
}

func (r settlementRepo) CreateItem(ctx context.Context, item *models.SettlementItem) error {
	return translate(r.db.WithContext(ctx).Create(item).Error)
}

func (r settlementRepo) GetItemBySourceKey(ctx context.Context, sourceKey string) (*models.SettlementItem, error) {
	var item models.SettlementItem
	if err := r.db.WithContext(ctx).Where("source_key = ?", sourceKey).First(&item).Error; err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (r settlementRepo) ListItems(ctx context.Context, batchID uuid.UUID) ([]models.SettlementItem, error) {
	var items []models.SettlementItem
	err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("source_key").Find(&items).Error
	return items, err
}

type auditRepo struct{ db *gorm.DB }

func (r auditRepo) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r auditRepo) List(ctx context.Context, filter repository.AuditFilter) ([]models.AuditLogEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditLogEntry{})
	if filter.SubjectType != "" {
		query = query.Where("subject_type = ?", filter.SubjectType)
	}
	if filter.SubjectID != nil {
		query = query.Where("subject_id = ?", *filter.SubjectID)
	}
	if filter.Actor != "" {
		query = query.Where("actor = ?", filter.Actor)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.AuditLogEntry
	err := page(query, filter.PaginationParams, []string{"created_at"}).Find(&entries).Error
	return entries, total, err
}
