// internal/repository/memory/commissions.go
package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type commissionRepo struct{ s *Store }

func (r commissionRepo) activeForConversion(conversionID uuid.UUID) (models.PartnerCommission, bool) {
	for _, c := range r.s.data.commissions {
		if c.ConversionID == conversionID && c.Status != models.CommissionStatusCancelled {
			return c, true
		}
	}
	return models.PartnerCommission{}, false
}

func (r commissionRepo) Create(_ context.Context, commission *models.PartnerCommission) error {
	defer r.s.lock()()
	if _, ok := r.activeForConversion(commission.ConversionID); ok {
		return repository.ErrDuplicate
	}
	r.s.stamp(&commission.BaseModel)
	r.s.data.commissions[commission.ID] = *commission
	return nil
}

func (r commissionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.PartnerCommission, error) {
	defer r.s.lock()()
	row, ok := r.s.data.commissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r commissionRepo) GetActiveByConversion(_ context.Context, conversionID uuid.UUID) (*models.PartnerCommission, error) {
	defer r.s.lock()()
	row, ok := r.activeForConversion(conversionID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r commissionRepo) Update(_ context.Context, commission *models.PartnerCommission) error {
	defer r.s.lock()()
	if _, ok := r.s.data.commissions[commission.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.touch(&commission.BaseModel)
	r.s.data.commissions[commission.ID] = *commission
	return nil
}

func (r commissionRepo) List(_ context.Context, filter repository.CommissionFilter) ([]models.PartnerCommission, int64, error) {
	defer r.s.lock()()
	rows := make([]models.PartnerCommission, 0)
	for _, c := range r.s.data.commissions {
		if filter.PartnerID != nil && c.PartnerID != *filter.PartnerID {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.BatchID != nil && (c.SettlementBatchID == nil || *c.SettlementBatchID != *filter.BatchID) {
			continue
		}
		rows = append(rows, c)
	}
	newestFirst(rows, func(c models.PartnerCommission) time.Time { return c.CreatedAt })
	return paginate(rows, filter.PaginationParams), int64(len(rows)), nil
}

func (r commissionRepo) ListSettleable(_ context.Context, partnerID uuid.UUID, from, to time.Time, _ bool) ([]models.PartnerCommission, error) {
	defer r.s.lock()()
	rows := make([]models.PartnerCommission, 0)
	for _, c := range r.s.data.commissions {
		if c.PartnerID != partnerID || c.Status != models.CommissionStatusConfirmed || c.SettlementBatchID != nil {
			continue
		}
		if c.ConfirmedAt == nil || c.ConfirmedAt.Before(from) || !c.ConfirmedAt.Before(to) {
			continue
		}
		rows = append(rows, c)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID.String() < rows[j].ID.String() })
	return rows, nil
}

func (r commissionRepo) ListDue(_ context.Context, now time.Time, limit int) ([]models.PartnerCommission, error) {
	defer r.s.lock()()
	rows := make([]models.PartnerCommission, 0)
	for _, c := range r.s.data.commissions {
		if c.Status == models.CommissionStatusPending && !c.ConfirmAfter.After(now) {
			rows = append(rows, c)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ConfirmAfter.Before(rows[j].ConfirmAfter) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r commissionRepo) Totals(_ context.Context, partnerID uuid.UUID) (map[models.CommissionStatus]decimal.Decimal, error) {
	defer r.s.lock()()
	out := map[models.CommissionStatus]decimal.Decimal{}
	for _, c := range r.s.data.commissions {
		if c.PartnerID != partnerID {
			continue
		}
		out[c.Status] = out[c.Status].Add(c.FinalAmount)
	}
	return out, nil
}

func (r commissionRepo) CreateReversal(_ context.Context, reversal *models.CommissionReversal) error {
	defer r.s.lock()()
	for _, rv := range r.s.data.reversals {
		if rv.CommissionID == reversal.CommissionID {
			return repository.ErrDuplicate
		}
	}
	r.s.stamp(&reversal.BaseModel)
	r.s.data.reversals[reversal.ID] = *reversal
	return nil
}

func (r commissionRepo) GetReversalByCommission(_ context.Context, commissionID uuid.UUID) (*models.CommissionReversal, error) {
	defer r.s.lock()()
	for _, rv := range r.s.data.reversals {
		if rv.CommissionID == commissionID {
			row := rv
			return &row, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r commissionRepo) ListOpenReversals(_ context.Context, partnerID uuid.UUID, _ bool) ([]models.CommissionReversal, error) {
	defer r.s.lock()()
	rows := make([]models.CommissionReversal, 0)
	for _, rv := range r.s.data.reversals {
		if rv.PartnerID == partnerID && rv.AppliedBatchID == nil {
			rows = append(rows, rv)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID.String() < rows[j].ID.String() })
	return rows, nil
}

func (r commissionRepo) UpdateReversal(_ context.Context, reversal *models.CommissionReversal) error {
	defer r.s.lock()()
	if _, ok := r.s.data.reversals[reversal.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.touch(&reversal.BaseModel)
	r.s.data.reversals[reversal.ID] = *reversal
	return nil
}
