// internal/repository/memory/store.go
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
	"github.com/javajoker/partner-engine/internal/utils"
)

// Store is an in-process repository.Store. Transactions run on a copy of the
// data that replaces the original only when fn succeeds, so a failed
// transaction leaves no trace.
type Store struct {
	mu   *sync.Mutex
	data *dataset
	inTx bool
	now  func() time.Time
}

type usageKey struct {
	policyID  uuid.UUID
	partnerID uuid.UUID
}

type dataset struct {
	partners    map[uuid.UUID]models.Partner
	catalog     map[string]models.CatalogItem
	links       map[uuid.UUID]models.PartnerLink
	clicks      map[uuid.UUID]models.PartnerClick
	conversions map[uuid.UUID]models.PartnerConversion
	policies    map[uuid.UUID]models.CommissionPolicy
	usages      map[usageKey]models.PolicyUsage
	commissions map[uuid.UUID]models.PartnerCommission
	reversals   map[uuid.UUID]models.CommissionReversal
	batches     map[uuid.UUID]models.PartnerSettlementBatch
	items       map[uuid.UUID]models.SettlementItem
	audit       []models.AuditLogEntry
}

func newDataset() *dataset {
	return &dataset{
		partners:    map[uuid.UUID]models.Partner{},
		catalog:     map[string]models.CatalogItem{},
		links:       map[uuid.UUID]models.PartnerLink{},
		clicks:      map[uuid.UUID]models.PartnerClick{},
		conversions: map[uuid.UUID]models.PartnerConversion{},
		policies:    map[uuid.UUID]models.CommissionPolicy{},
		usages:      map[usageKey]models.PolicyUsage{},
		commissions: map[uuid.UUID]models.PartnerCommission{},
		reversals:   map[uuid.UUID]models.CommissionReversal{},
		batches:     map[uuid.UUID]models.PartnerSettlementBatch{},
		items:       map[uuid.UUID]models.SettlementItem{},
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (d *dataset) clone() *dataset {
	audit := make([]models.AuditLogEntry, len(d.audit))
	copy(audit, d.audit)
	return &dataset{
		partners:    copyMap(d.partners),
		catalog:     copyMap(d.catalog),
		links:       copyMap(d.links),
		clicks:      copyMap(d.clicks),
		conversions: copyMap(d.conversions),
		policies:    copyMap(d.policies),
		usages:      copyMap(d.usages),
		commissions: copyMap(d.commissions),
		reversals:   copyMap(d.reversals),
		batches:     copyMap(d.batches),
		items:       copyMap(d.items),
		audit:       audit,
	}
}

func NewStore() *Store {
	return &Store{
		mu:   &sync.Mutex{},
		data: newDataset(),
		now:  time.Now,
	}
}

// lock is a no-op inside a transaction, which already holds the mutex.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &Store{mu: s.mu, data: s.data.clone(), inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

func (s *Store) Partners() repository.PartnerRepository { return partnerRepo{s} }
func (s *Store) Catalog() repository.CatalogRepository { return catalogRepo{s} }
func (s *Store) Links() repository.LinkRepository { return linkRepo{s} }
func (s *Store) Clicks() repository.ClickRepository { return clickRepo{s} }
func (s *Store) Conversions() repository.ConversionRepository { return conversionRepo{s} }
func (s *Store) Policies() repository.PolicyRepository { return policyRepo{s} }
func (s *Store) Commissions() repository.CommissionRepository { return commissionRepo{s} }
func (s *Store) Settlements() repository.SettlementRepository { return settlementRepo{s} }
func (s *Store) Audit() repository.AuditRepository { return auditRepo{s} }

func (s *Store) stamp(base *models.BaseModel) {
	now := s.now()
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}
	base.UpdatedAt = now
}

func (s *Store) touch(base *models.BaseModel) {
	base.UpdatedAt = s.now()
}

func paginate[T any](rows []T, p utils.PaginationParams) []T {
	if p.Limit <= 0 {
		return rows
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * p.Limit
	if start >= len(rows) {
		return []T{}
	}
	end := start + p.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

func newestFirst[T any](rows []T, created func(T) time.Time) {
	sort.SliceStable(rows, func(i, j int) bool {
		return created(rows[i]).After(created(rows[j]))
	})
}
