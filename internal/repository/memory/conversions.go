// internal/repository/memory/conversions.go
package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type conversionRepo struct{ s *Store }

func (r conversionRepo) activeForOrder(orderID string) (models.PartnerConversion, bool) {
	for _, c := range r.s.data.conversions {
		if c.OrderID == orderID && c.Status != models.ConversionStatusCancelled {
			return c, true
		}
	}
	return models.PartnerConversion{}, false
}

func (r conversionRepo) Create(_ context.Context, conversion *models.PartnerConversion) error {
	defer r.s.lock()()
	if _, ok := r.activeForOrder(conversion.OrderID); ok {
		return repository.ErrDuplicate
	}
	r.s.stamp(&conversion.BaseModel)
	r.s.data.conversions[conversion.ID] = *conversion
	return nil
}

func (r conversionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.PartnerConversion, error) {
	defer r.s.lock()()
	row, ok := r.s.data.conversions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r conversionRepo) GetActiveByOrderID(_ context.Context, orderID string) (*models.PartnerConversion, error) {
	defer r.s.lock()()
	row, ok := r.activeForOrder(orderID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r conversionRepo) Update(_ context.Context, conversion *models.PartnerConversion) error {
	defer r.s.lock()()
	if _, ok := r.s.data.conversions[conversion.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.touch(&conversion.BaseModel)
	r.s.data.conversions[conversion.ID] = *conversion
	return nil
}

func (r conversionRepo) filter(filter repository.ConversionFilter) []models.PartnerConversion {
	rows := make([]models.PartnerConversion, 0)
	for _, c := range r.s.data.conversions {
		if filter.PartnerID != nil && (c.PartnerID == nil || *c.PartnerID != *filter.PartnerID) {
			continue
		}
		if filter.OrderID != "" && c.OrderID != filter.OrderID {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.From != nil && c.OccurredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !c.OccurredAt.Before(*filter.To) {
			continue
		}
		rows = append(rows, c)
	}
	return rows
}

func (r conversionRepo) List(_ context.Context, filter repository.ConversionFilter) ([]models.PartnerConversion, int64, error) {
	defer r.s.lock()()
	rows := r.filter(filter)
	newestFirst(rows, func(c models.PartnerConversion) time.Time { return c.OccurredAt })
	return paginate(rows, filter.PaginationParams), int64(len(rows)), nil
}

func (r conversionRepo) Count(_ context.Context, filter repository.ConversionFilter) (int64, error) {
	defer r.s.lock()()
	return int64(len(r.filter(filter))), nil
}
