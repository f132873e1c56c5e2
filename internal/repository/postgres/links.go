// internal/repository/postgres/links.go
package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
	"github.com/javajoker/partner-engine/internal/utils"
)

type linkRepo struct{ db *gorm.DB }

func (r linkRepo) Create(ctx context.Context, link *models.PartnerLink) error {
	return translate(r.db.WithContext(ctx).Create(link).Error)
}

func (r linkRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PartnerLink, error) {
	var link models.PartnerLink
	if err := r.db.WithContext(ctx).First(&link, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

func (r linkRepo) GetByCode(ctx context.Context, code string) (*models.PartnerLink, error) {
	var link models.PartnerLink
	if err := r.db.WithContext(ctx).Where("short_code = ?", code).First(&link).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

func (r linkRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.PartnerLink{}).
		Where("short_code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r linkRepo) Update(ctx context.Context, link *models.PartnerLink) error {
	return translate(r.db.WithContext(ctx).Omit("click_count", "conversion_count").Save(link).Error)
}

func (r linkRepo) ListByPartner(ctx context.Context, partnerID uuid.UUID, params utils.PaginationParams) ([]models.PartnerLink, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PartnerLink{}).Where("partner_id = ?", partnerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var links []models.PartnerLink
	err := page(query, params, []string{"created_at", "click_count", "conversion_count"}).Find(&links).Error
	return links, total, err
}

func (r linkRepo) IncrementCounters(ctx context.Context, id uuid.UUID, clicks, conversions int64) error {
	return r.db.WithContext(ctx).Model(&models.PartnerLink{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"click_count":      gorm.Expr("click_count + ?", clicks),
			"conversion_count": gorm.Expr("conversion_count + ?", conversions),
		}).Error
}

type clickRepo struct{ db *gorm.DB }

func (r clickRepo) Create(ctx context.Context, click *models.PartnerClick) error {
	return translate(r.db.WithContext(ctx).Create(click).Error)
}

func (r clickRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PartnerClick, error) {
	var click models.PartnerClick
	if err := r.db.WithContext(ctx).First(&click, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &click, nil
}

func (r clickRepo) FindRecent(ctx context.Context, linkID uuid.UUID, fingerprint string, since time.Time) (*models.PartnerClick, error) {
	var click models.PartnerClick
	err := r.db.WithContext(ctx).
		Where("link_id = ? AND fingerprint = ? AND last_seen_at >= ?", linkID, fingerprint, since).
		Order("last_seen_at DESC").
		First(&click).Error
	if err != nil {
		return nil, translate(err)
	}
	return &click, nil
}

func (r clickRepo) Touch(ctx context.Context, id uuid.UUID, lastSeenAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.PartnerClick{}).
		Where("id = ? AND last_seen_at < ?", id, lastSeenAt).
		UpdateColumn("last_seen_at", lastSeenAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.PartnerClick{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return repository.ErrNotFound
		}
	}
	return nil
}

func (r clickRepo) ListForVisitor(ctx context.Context, fingerprint, sessionID string, from, to time.Time) ([]models.PartnerClick, error) {
	query := r.db.WithContext(ctx).Where("clicked_at BETWEEN ? AND ?", from, to)
	switch {
	case fingerprint != "" && sessionID != "":
		query = query.Where("fingerprint = ? OR session_id = ?", fingerprint, sessionID)
	case fingerprint != "":
		query = query.Where("fingerprint = ?", fingerprint)
	case sessionID != "":
		query = query.Where("session_id = ?", sessionID)
	default:
		return nil, nil
	}

	var clicks []models.PartnerClick
	err := query.Order("clicked_at ASC, id ASC").Find(&clicks).Error
	return clicks, err
}

func (r clickRepo) MarkConverted(ctx context.Context, id, conversionID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.PartnerClick{}).Where("id = ?", id).
		UpdateColumn("conversion_id", conversionID).Error
}

func (r clickRepo) filtered(ctx context.Context, filter repository.ClickFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.PartnerClick{})
	if filter.PartnerID != nil {
		query = query.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.LinkID != nil {
		query = query.Where("link_id = ?", *filter.LinkID)
	}
	if filter.From != nil {
		query = query.Where("clicked_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("clicked_at < ?", *filter.To)
	}
	return query
}

func (r clickRepo) List(ctx context.Context, filter repository.ClickFilter) ([]models.PartnerClick, int64, error) {
	query := r.filtered(ctx, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Sort == "" {
		filter.Sort = "clicked_at"
	}
	var clicks []models.PartnerClick
	err := page(query, filter.PaginationParams, []string{"clicked_at", "created_at"}).Find(&clicks).Error
	return clicks, total, err
}

func (r clickRepo) Count(ctx context.Context, filter repository.ClickFilter) (int64, error) {
	var total int64
	err := r.filtered(ctx, filter).Count(&total).Error
	return total, err
}
