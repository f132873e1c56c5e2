// internal/repository/memory/settlements.go
package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type settlementRepo struct{ s *Store }

func (r settlementRepo) openBatch(partnerID uuid.UUID, periodKey string) (models.PartnerSettlementBatch, bool) {
	for _, b := range r.s.data.batches {
		if b.PartnerID == partnerID && b.PeriodKey == periodKey && b.Status == models.BatchStatusOpen {
			return b, true
		}
	}
	return models.PartnerSettlementBatch{}, false
}

func (r settlementRepo) CreateBatch(_ context.Context, batch *models.PartnerSettlementBatch) error {
	defer r.s.lock()()
	if _, ok := r.openBatch(batch.PartnerID, batch.PeriodKey); ok {
		return repository.ErrDuplicate
	}
	r.s.stamp(&batch.BaseModel)
	r.s.data.batches[batch.ID] = *batch
	return nil
}

func (r settlementRepo) GetBatch(_ context.Context, id uuid.UUID, _ bool) (*models.PartnerSettlementBatch, error) {
	defer r.s.lock()()
	row, ok := r.s.data.batches[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r settlementRepo) GetOpenBatch(_ context.Context, partnerID uuid.UUID, periodKey string) (*models.PartnerSettlementBatch, error) {
	defer r.s.lock()()
	row, ok := r.openBatch(partnerID, periodKey)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r settlementRepo) UpdateBatch(_ context.Context, batch *models.PartnerSettlementBatch) error {
	defer r.s.lock()()
	if _, ok := r.s.data.batches[batch.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.touch(&batch.BaseModel)
	r.s.data.batches[batch.ID] = *batch
	return nil
}

func (r settlementRepo) ListBatches(_ context.Context, filter repository.BatchFilter) ([]models.PartnerSettlementBatch, int64, error) {
	defer r.s.lock()()
	rows := make([]models.PartnerSettlementBatch, 0)
	for _, b := range r.s.data.batches {
		if filter.PartnerID != nil && b.PartnerID != *filter.PartnerID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		if filter.PeriodKey != "" && b.PeriodKey != filter.PeriodKey {
			continue
		}
		rows = append(rows, b)
	}
	newestFirst(rows, func(b models.PartnerSettlementBatch) time.Time { return b.CreatedAt })
	return paginate(rows, filter.PaginationParams), int64(len(rows)), nil
}

func (r settlementRepo) CreateItem(_ context.Context, item *models.SettlementItem) error {
	defer r.s.lock()()
	for _, it := range r.s.data.items {
		if it.SourceKey == item.SourceKey {
			return repository.ErrDuplicate
		}
	}
	r.s.stamp(&item.BaseModel)
	r.s.data.items[item.ID] = *item
	return nil
}

func (r settlementRepo) GetItemBySourceKey(_ context.Context, sourceKey string) (*models.SettlementItem, error) {
	defer r.s.lock()()
	for _, it := range r.s.data.items {
		if it.SourceKey == sourceKey {
			row := it
			return &row, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r settlementRepo) ListItems(_ context.Context, batchID uuid.UUID) ([]models.SettlementItem, error) {
	defer r.s.lock()()
	rows := make([]models.SettlementItem, 0)
	for _, it := range r.s.data.items {
		if it.BatchID == batchID {
			rows = append(rows, it)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].SourceKey < rows[j].SourceKey })
	return rows, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Append(_ context.Context, entry *models.AuditLogEntry) error {
	defer r.s.lock()()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.s.now()
	}
	r.s.data.audit = append(r.s.data.audit, *entry)
	return nil
}

func (r auditRepo) List(_ context.Context, filter repository.AuditFilter) ([]models.AuditLogEntry, int64, error) {
	defer r.s.lock()()
	rows := make([]models.AuditLogEntry, 0)
	for i := len(r.s.data.audit) - 1; i >= 0; i-- {
		e := r.s.data.audit[i]
		if filter.SubjectType != "" && e.SubjectType != filter.SubjectType {
			continue
		}
		if filter.SubjectID != nil && e.SubjectID != *filter.SubjectID {
			continue
		}
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		rows = append(rows, e)
	}
	return paginate(rows, filter.PaginationParams), int64(len(rows)), nil
}
