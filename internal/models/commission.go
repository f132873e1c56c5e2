// internal/models/commission.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PartnerCommission is the amount owed to a partner for one confirmed
// conversion. At most one non-cancelled commission exists per conversion.
type PartnerCommission struct {
	BaseModel
	ConversionID       uuid.UUID        `json:"conversion_id" gorm:"type:uuid;not null;index"`
	PartnerID          uuid.UUID        `json:"partner_id" gorm:"type:uuid;not null;index"`
	OrderID            string           `json:"order_id" gorm:"not null"`
	PolicyID           *uuid.UUID       `json:"policy_id,omitempty" gorm:"type:uuid;index"`
	PolicySnapshot     JSONB            `json:"policy_snapshot,omitempty" gorm:"type:jsonb"`
	CommissionType     CommissionType   `json:"commission_type" gorm:"type:varchar(20);not null"`
	BaseAmount         decimal.Decimal  `json:"base_amount" gorm:"type:decimal(18,4);not null"`
	RateApplied        decimal.Decimal  `json:"rate_applied" gorm:"type:decimal(9,6);not null;default:0"`
	FixedAmountApplied decimal.Decimal  `json:"fixed_amount_applied" gorm:"type:decimal(18,4);not null;default:0"`
	ComputedAmount     decimal.Decimal  `json:"computed_amount" gorm:"type:decimal(18,4);not null"`
	BonusAmount        decimal.Decimal  `json:"bonus_amount" gorm:"type:decimal(18,4);not null;default:0"`
	AdjustmentAmount   decimal.Decimal  `json:"adjustment_amount" gorm:"type:decimal(18,4);not null;default:0"`
	FinalAmount        decimal.Decimal  `json:"final_amount" gorm:"type:decimal(18,4);not null"`
	Currency           string           `json:"currency" gorm:"type:varchar(3);not null"`
	Status             CommissionStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	ConfirmAfter       time.Time        `json:"confirm_after" gorm:"not null;index"`
	ConfirmedAt        *time.Time       `json:"confirmed_at,omitempty" gorm:"index"`
	SettlementBatchID  *uuid.UUID       `json:"settlement_batch_id,omitempty" gorm:"type:uuid;index"`
	SettledAt          *time.Time       `json:"settled_at,omitempty"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty"`
	CancelReason       string           `json:"cancel_reason,omitempty"`
	AdjustmentReason   string           `json:"adjustment_reason,omitempty"`
}

func (PartnerCommission) TableName() string {
	return "partner_commissions"
}

// CommissionReversal claws back a commission that was already settled. It is
// applied as a negative item by the partner's next batch close.
type CommissionReversal struct {
	BaseModel
	CommissionID    uuid.UUID       `json:"commission_id" gorm:"type:uuid;not null;uniqueIndex"`
	PartnerID       uuid.UUID       `json:"partner_id" gorm:"type:uuid;not null;index"`
	OriginalBatchID *uuid.UUID      `json:"original_batch_id,omitempty" gorm:"type:uuid"`
	OrderID         string          `json:"order_id" gorm:"not null"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(18,4);not null"`
	Currency        string          `json:"currency" gorm:"type:varchar(3);not null"`
	Reason          string          `json:"reason"`
	AppliedBatchID  *uuid.UUID      `json:"applied_batch_id,omitempty" gorm:"type:uuid;index"`
	AppliedAt       *time.Time      `json:"applied_at,omitempty"`
}

func (CommissionReversal) TableName() string {
	return "commission_reversals"
}
