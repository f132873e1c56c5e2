// internal/repository/memory/partners.go
package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type partnerRepo struct{ s *Store }

func (r partnerRepo) Create(_ context.Context, partner *models.Partner) error {
	defer r.s.lock()()
	r.s.stamp(&partner.BaseModel)
	if _, ok := r.s.data.partners[partner.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.data.partners[partner.ID] = *partner
	return nil
}

func (r partnerRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Partner, error) {
	defer r.s.lock()()
	row, ok := r.s.data.partners[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r partnerRepo) Update(_ context.Context, partner *models.Partner) error {
	defer r.s.lock()()
	if _, ok := r.s.data.partners[partner.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.touch(&partner.BaseModel)
	r.s.data.partners[partner.ID] = *partner
	return nil
}

func (r partnerRepo) List(_ context.Context, filter repository.PartnerFilter) ([]models.Partner, int64, error) {
	defer r.s.lock()()
	rows := make([]models.Partner, 0)
	for _, p := range r.s.data.partners {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.Tier != nil && p.Tier != *filter.Tier {
			continue
		}
		rows = append(rows, p)
	}
	newestFirst(rows, func(p models.Partner) time.Time { return p.CreatedAt })
	return paginate(rows, filter.PaginationParams), int64(len(rows)), nil
}

type catalogRepo struct{ s *Store }

func catalogKey(targetType models.TargetType, targetID string) string {
	return string(targetType) + ":" + targetID
}

func (r catalogRepo) Get(_ context.Context, targetType models.TargetType, targetID string) (*models.CatalogItem, error) {
	defer r.s.lock()()
	row, ok := r.s.data.catalog[catalogKey(targetType, targetID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r catalogRepo) Upsert(_ context.Context, item *models.CatalogItem) error {
	defer r.s.lock()()
	key := catalogKey(item.TargetType, item.TargetID)
	if existing, ok := r.s.data.catalog[key]; ok {
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
	}
	r.s.stamp(&item.BaseModel)
	r.s.data.catalog[key] = *item
	return nil
}
