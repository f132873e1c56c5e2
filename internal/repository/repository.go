// internal/repository/repository.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/utils"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicate       = errors.New("duplicate record")
	ErrVersionConflict = errors.New("version conflict")
	ErrUsageCapReached = errors.New("usage cap reached")
)

// Store groups the repositories. WithTx runs fn against a transactional view;
// a nested WithTx joins the outer transaction.
type Store interface {
	Partners() PartnerRepository
	Catalog() CatalogRepository
	Links() LinkRepository
	Clicks() ClickRepository
	Conversions() ConversionRepository
	Policies() PolicyRepository
	Commissions() CommissionRepository
	Settlements() SettlementRepository
	Audit() AuditRepository
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type PartnerFilter struct {
	utils.PaginationParams
	Status *models.PartnerStatus
	Tier   *models.PartnerTier
}

type PartnerRepository interface {
	Create(ctx context.Context, partner *models.Partner) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Partner, error)
	Update(ctx context.Context, partner *models.Partner) error
	List(ctx context.Context, filter PartnerFilter) ([]models.Partner, int64, error)
}

type CatalogRepository interface {
	Get(ctx context.Context, targetType models.TargetType, targetID string) (*models.CatalogItem, error)
	Upsert(ctx context.Context, item *models.CatalogItem) error
}

type LinkRepository interface {
	// Create returns ErrDuplicate when the short code is taken.
	Create(ctx context.Context, link *models.PartnerLink) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PartnerLink, error)
	GetByCode(ctx context.Context, code string) (*models.PartnerLink, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Update(ctx context.Context, link *models.PartnerLink) error
	ListByPartner(ctx context.Context, partnerID uuid.UUID, page utils.PaginationParams) ([]models.PartnerLink, int64, error)
	IncrementCounters(ctx context.Context, id uuid.UUID, clicks, conversions int64) error
}

type ClickFilter struct {
	utils.PaginationParams
	PartnerID *uuid.UUID
	LinkID    *uuid.UUID
	From      *time.Time
	To        *time.Time
}

type ClickRepository interface {
	Create(ctx context.Context, click *models.PartnerClick) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PartnerClick, error)
	// FindRecent returns the latest click for link and fingerprint seen at or
	// after since.
	FindRecent(ctx context.Context, linkID uuid.UUID, fingerprint string, since time.Time) (*models.PartnerClick, error)
	Touch(ctx context.Context, id uuid.UUID, lastSeenAt time.Time) error
	// ListForVisitor returns clicks matching fingerprint or session id clicked
	// within [from, to], oldest first.
	ListForVisitor(ctx context.Context, fingerprint, sessionID string, from, to time.Time) ([]models.PartnerClick, error)
	MarkConverted(ctx context.Context, id, conversionID uuid.UUID) error
	List(ctx context.Context, filter ClickFilter) ([]models.PartnerClick, int64, error)
	Count(ctx context.Context, filter ClickFilter) (int64, error)
}

type ConversionFilter struct {
	utils.PaginationParams
	PartnerID *uuid.UUID
	OrderID   string
	Status    *models.ConversionStatus
	From      *time.Time
	To        *time.Time
}

type ConversionRepository interface {
	// Create returns ErrDuplicate when a non-cancelled conversion exists for
	// the order.
	Create(ctx context.Context, conversion *models.PartnerConversion) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PartnerConversion, error)
	GetActiveByOrderID(ctx context.Context, orderID string) (*models.PartnerConversion, error)
	Update(ctx context.Context, conversion *models.PartnerConversion) error
	List(ctx context.Context, filter ConversionFilter) ([]models.PartnerConversion, int64, error)
	Count(ctx context.Context, filter ConversionFilter) (int64, error)
}

type PolicyFilter struct {
	utils.PaginationParams
	Status         *models.PolicyStatus
	PolicyType     *models.PolicyType
	ApprovalStatus *models.ApprovalStatus
	PartnerID      *uuid.UUID
}

type PolicyRepository interface {
	Create(ctx context.Context, policy *models.CommissionPolicy) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.CommissionPolicy, error)
	// Update writes policy if its stored version equals policy.Version and
	// bumps the version. Otherwise it returns ErrVersionConflict.
	Update(ctx context.Context, policy *models.CommissionPolicy) error
	ListActive(ctx context.Context) ([]models.CommissionPolicy, error)
	ListByStatus(ctx context.Context, statuses ...models.PolicyStatus) ([]models.CommissionPolicy, error)
	List(ctx context.Context, filter PolicyFilter) ([]models.CommissionPolicy, int64, error)
	PartnerUsage(ctx context.Context, partnerID uuid.UUID) (map[uuid.UUID]int, error)
	// IncrementUsage bumps the total and per-partner counters of a policy
	// whose version still equals expectedVersion. It returns
	// ErrVersionConflict on a stale version and ErrUsageCapReached when a cap
	// would be exceeded.
	IncrementUsage(ctx context.Context, policyID, partnerID uuid.UUID, expectedVersion int) error
}

type CommissionFilter struct {
	utils.PaginationParams
	PartnerID *uuid.UUID
	Status    *models.CommissionStatus
	BatchID   *uuid.UUID
}

type CommissionRepository interface {
	// Create returns ErrDuplicate when a non-cancelled commission exists for
	// the conversion.
	Create(ctx context.Context, commission *models.PartnerCommission) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PartnerCommission, error)
	GetActiveByConversion(ctx context.Context, conversionID uuid.UUID) (*models.PartnerCommission, error)
	Update(ctx context.Context, commission *models.PartnerCommission) error
	List(ctx context.Context, filter CommissionFilter) ([]models.PartnerCommission, int64, error)
	// ListSettleable returns confirmed, unbatched commissions of a partner
	// confirmed within [from, to), locking them when lock is set.
	ListSettleable(ctx context.Context, partnerID uuid.UUID, from, to time.Time, lock bool) ([]models.PartnerCommission, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.PartnerCommission, error)
	Totals(ctx context.Context, partnerID uuid.UUID) (map[models.CommissionStatus]decimal.Decimal, error)

	CreateReversal(ctx context.Context, reversal *models.CommissionReversal) error
	GetReversalByCommission(ctx context.Context, commissionID uuid.UUID) (*models.CommissionReversal, error)
	ListOpenReversals(ctx context.Context, partnerID uuid.UUID, lock bool) ([]models.CommissionReversal, error)
	UpdateReversal(ctx context.Context, reversal *models.CommissionReversal) error
}

type BatchFilter struct {
	utils.PaginationParams
	PartnerID *uuid.UUID
	Status    *models.BatchStatus
	PeriodKey string
}

type SettlementRepository interface {
	// CreateBatch returns ErrDuplicate when an open batch exists for the
	// partner and period.
	CreateBatch(ctx context.Context, batch *models.PartnerSettlementBatch) error
	GetBatch(ctx context.Context, id uuid.UUID, lock bool) (*models.PartnerSettlementBatch, error)
	GetOpenBatch(ctx context.Context, partnerID uuid.UUID, periodKey string) (*models.PartnerSettlementBatch, error)
	UpdateBatch(ctx context.Context, batch *models.PartnerSettlementBatch) error
	ListBatches(ctx context.Context, filter BatchFilter) ([]models.PartnerSettlementBatch, int64, error)
	// CreateItem returns ErrDuplicate when the source key was already
	// snapshotted.
	CreateItem(ctx context.Context, item *models.SettlementItem) error
	GetItemBySourceKey(ctx context.Context, sourceKey string) (*models.SettlementItem, error)
	ListItems(ctx context.Context, batchID uuid.UUID) ([]models.SettlementItem, error)
}

type AuditFilter struct {
	utils.PaginationParams
	SubjectType string
	SubjectID   *uuid.UUID
	Actor       string
}

type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, filter AuditFilter) ([]models.AuditLogEntry, int64, error)
}
