// internal/repository/postgres/conversions.go
package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type conversionRepo struct{ db *gorm.DB }

func (r conversionRepo) Create(ctx context.Context, conversion *models.PartnerConversion) error {
	return translate(r.db.WithContext(ctx).Create(conversion).Error)
}

func (r conversionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PartnerConversion, error) {
	var conversion models.PartnerConversion
	if err := r.db.WithContext(ctx).First(&conversion, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &conversion, nil
}

func (r conversionRepo) GetActiveByOrderID(ctx context.Context, orderID string) (*models.PartnerConversion, error) {
	var conversion models.PartnerConversion
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status <> ?", orderID, models.ConversionStatusCancelled).
		First(&conversion).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conversion, nil
}

func (r conversionRepo) Update(ctx context.Context, conversion *models.PartnerConversion) error {
	return translate(r.db.WithContext(ctx).Save(conversion).Error)
}

func (r conversionRepo) filtered(ctx context.Context, filter repository.ConversionFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.PartnerConversion{})
	if filter.PartnerID != nil {
		query = query.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.OrderID != "" {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		query = query.Where("occurred_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("occurred_at < ?", *filter.To)
	}
	return query
}

func (r conversionRepo) List(ctx context.Context, filter repository.ConversionFilter) ([]models.PartnerConversion, int64, error) {
	query := r.filtered(ctx, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var conversions []models.PartnerConversion
	err := page(query, filter.PaginationParams, []string{"occurred_at", "created_at", "order_amount"}).Find(&conversions).Error
	return conversions, total, err
}

func (r conversionRepo) Count(ctx context.Context, filter repository.ConversionFilter) (int64, error) {
	var total int64
	err := r.filtered(ctx, filter).Count(&total).Error
	return total, err
}
