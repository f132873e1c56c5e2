// internal/models/settlement.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PartnerSettlementBatch aggregates settled commissions of one partner for one
// period. TotalAmount always equals the sum of the batch's items.
type PartnerSettlementBatch struct {
	BaseModel
	PartnerID     uuid.UUID       `json:"partner_id" gorm:"type:uuid;not null;index"`
	PeriodKey     string          `json:"period_key" gorm:"type:varchar(32);not null;index"`
	PeriodStart   time.Time       `json:"period_start" gorm:"not null"`
	PeriodEnd     time.Time       `json:"period_end" gorm:"not null"`
	Currency      string          `json:"currency" gorm:"type:varchar(3);not null"`
	Status        BatchStatus     `json:"status" gorm:"type:varchar(20);not null;default:'open';index"`
	TotalAmount   decimal.Decimal `json:"total_amount" gorm:"type:decimal(18,4);not null;default:0"`
	ItemCount     int             `json:"item_count" gorm:"not null;default:0"`
	OpenedBy      string          `json:"opened_by,omitempty"`
	ClosedAt      *time.Time      `json:"closed_at,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	FailedAt      *time.Time      `json:"failed_at,omitempty"`
	PayoutRef     string          `json:"payout_ref,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

func (PartnerSettlementBatch) TableName() string {
	return "partner_settlement_batches"
}

// Final reports whether the batch content can no longer change.
func (b *PartnerSettlementBatch) Final() bool {
	return b.Status != BatchStatusOpen
}

// SettlementItem is an immutable snapshot taken when a batch closes. SourceKey
// identifies the commission or reversal it was taken from.
type SettlementItem struct {
	BaseModel
	BatchID        uuid.UUID          `json:"batch_id" gorm:"type:uuid;not null;index"`
	PartnerID      uuid.UUID          `json:"partner_id" gorm:"type:uuid;not null"`
	SourceKey      string             `json:"source_key" gorm:"type:varchar(64);not null;uniqueIndex"`
	Kind           SettlementItemKind `json:"kind" gorm:"type:varchar(20);not null"`
	CommissionID   uuid.UUID          `json:"commission_id" gorm:"type:uuid;not null;index"`
	ReversalID     *uuid.UUID         `json:"reversal_id,omitempty" gorm:"type:uuid"`
	OrderID        string             `json:"order_id" gorm:"not null"`
	PolicyID       *uuid.UUID         `json:"policy_id,omitempty" gorm:"type:uuid"`
	CommissionType CommissionType     `json:"commission_type" gorm:"type:varchar(20)"`
	BaseAmount     decimal.Decimal    `json:"base_amount" gorm:"type:decimal(18,4);not null"`
	RateApplied    decimal.Decimal    `json:"rate_applied" gorm:"type:decimal(9,6);not null;default:0"`
	Amount         decimal.Decimal    `json:"amount" gorm:"type:decimal(18,4);not null"`
	Currency       string             `json:"currency" gorm:"type:varchar(3);not null"`
	SnapshotAt     time.Time          `json:"snapshot_at" gorm:"not null"`
}

func (SettlementItem) TableName() string {
	return "settlement_items"
}

func CommissionSourceKey(id uuid.UUID) string {
	return "commission:" + id.String()
}

func ReversalSourceKey(id uuid.UUID) string {
	return "reversal:" + id.String()
}
