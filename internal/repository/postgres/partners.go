// internal/repository/postgres/partners.go
package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type partnerRepo struct{ db *gorm.DB }

func (r partnerRepo) Create(ctx context.Context, partner *models.Partner) error {
	return translate(r.db.WithContext(ctx).Create(partner).Error)
}

func (r partnerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	var partner models.Partner
	if err := r.db.WithContext(ctx).First(&partner, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &partner, nil
}

func (r partnerRepo) Update(ctx context.Context, partner *models.Partner) error {
	return translate(r.db.WithContext(ctx).Save(partner).Error)
}

func (r partnerRepo) List(ctx context.Context, filter repository.PartnerFilter) ([]models.Partner, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Partner{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Tier != nil {
		query = query.Where("tier = ?", *filter.Tier)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("name ILIKE ? OR email ILIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var partners []models.Partner
	err := page(query, filter.PaginationParams, []string{"created_at", "name", "tier", "status"}).Find(&partners).Error
	return partners, total, err
}

type catalogRepo struct{ db *gorm.DB }

func (r catalogRepo) Get(ctx context.Context, targetType models.TargetType, targetID string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := r.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (r catalogRepo) Upsert(ctx context.Context, item *models.CatalogItem) error {
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_type"}, {Name: "target_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "url", "product_type", "supplier_id", "category", "tags", "active", "updated_at"}),
	}).Create(item).Error)
}
