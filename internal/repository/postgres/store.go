// internal/repository/postgres/store.go
package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/partner-engine/internal/database"
	"github.com/javajoker/partner-engine/internal/repository"
	"github.com/javajoker/partner-engine/internal/utils"
)

// Store implements repository.Store on PostgreSQL through GORM.
type Store struct {
	db   *gorm.DB
	inTx bool
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return fn(&Store{db: tx, inTx: true})
	})
}

func (s *Store) Partners() repository.PartnerRepository { return partnerRepo{s.db} }
func (s *Store) Catalog() repository.CatalogRepository { return catalogRepo{s.db} }
func (s *Store) Links() repository.LinkRepository { return linkRepo{s.db} }
func (s *Store) Clicks() repository.ClickRepository { return clickRepo{s.db} }
func (s *Store) Conversions() repository.ConversionRepository { return conversionRepo{s.db} }
func (s *Store) Policies() repository.PolicyRepository { return policyRepo{s.db} }
func (s *Store) Commissions() repository.CommissionRepository { return commissionRepo{s.db} }
func (s *Store) Settlements() repository.SettlementRepository { return settlementRepo{s.db} }
func (s *Store) Audit() repository.AuditRepository { return auditRepo{s.db} }

// translate maps GORM errors onto repository sentinels. The connection must be
// opened with TranslateError enabled for duplicate keys to be recognised.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repository.ErrDuplicate
	default:
		return err
	}
}

func forUpdate(db *gorm.DB, lock bool) *gorm.DB {
	if lock {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func page(db *gorm.DB, params utils.PaginationParams, sortable []string) *gorm.DB {
	return utils.ApplyPagination(utils.ApplySort(db, params, sortable), params)
}
