// internal/models/policy.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// TierBracket covers order amounts in [MinAmount, MaxAmount). A nil MaxAmount
// is unbounded. Exactly one of Rate and Amount is set.
type TierBracket struct {
	MinAmount decimal.Decimal  `json:"min_amount"`
	MaxAmount *decimal.Decimal `json:"max_amount,omitempty"`
	Rate      *decimal.Decimal `json:"rate,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

// Contains reports whether amount falls inside the bracket.
func (b TierBracket) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(b.MinAmount) {
		return false
	}
	return b.MaxAmount == nil || amount.LessThan(*b.MaxAmount)
}

type TierBrackets []TierBracket

func (t TierBrackets) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

func (t *TierBrackets) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("unsupported tier brackets column type")
	}
	return json.Unmarshal(bytes, t)
}

type CommissionPolicy struct {
	BaseModel
	Name        string     `json:"name" gorm:"not null"`
	Description string     `json:"description,omitempty" gorm:"type:text"`
	PolicyType  PolicyType `json:"policy_type" gorm:"type:varchar(20);not null;index"`

	// Scope predicates. Unset predicates match every conversion.
	PartnerID           *uuid.UUID       `json:"partner_id,omitempty" gorm:"type:uuid;index"`
	PartnerTier         PartnerTier      `json:"partner_tier,omitempty" gorm:"type:varchar(20)"`
	ProductID           *uuid.UUID       `json:"product_id,omitempty" gorm:"type:uuid;index"`
	SupplierID          *uuid.UUID       `json:"supplier_id,omitempty" gorm:"type:uuid;index"`
	Category            string           `json:"category,omitempty"`
	Tags                pq.StringArray   `json:"tags,omitempty" gorm:"type:text[]"`
	MinOrderAmount      *decimal.Decimal `json:"min_order_amount,omitempty" gorm:"type:decimal(18,4)"`
	MaxOrderAmount      *decimal.Decimal `json:"max_order_amount,omitempty" gorm:"type:decimal(18,4)"`
	RequiresNewCustomer bool             `json:"requires_new_customer"`
	Condition           string           `json:"condition,omitempty" gorm:"type:text"`

	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	CommissionType CommissionType   `json:"commission_type" gorm:"type:varchar(20);not null"`
	Rate           decimal.Decimal  `json:"rate" gorm:"type:decimal(9,6);not null;default:0"`
	FixedAmount    decimal.Decimal  `json:"fixed_amount" gorm:"type:decimal(18,4);not null;default:0"`
	Tiers          TierBrackets     `json:"tiers,omitempty" gorm:"type:jsonb"`
	MinCommission  *decimal.Decimal `json:"min_commission,omitempty" gorm:"type:decimal(18,4)"`
	MaxCommission  *decimal.Decimal `json:"max_commission,omitempty" gorm:"type:decimal(18,4)"`
	BonusAmount    decimal.Decimal  `json:"bonus_amount" gorm:"type:decimal(18,4);not null;default:0"`
	Currency       string           `json:"currency,omitempty" gorm:"type:varchar(3)"`

	Priority           int            `json:"priority" gorm:"not null;default:0;index"`
	MaxUsagePerPartner *int           `json:"max_usage_per_partner,omitempty"`
	MaxUsageTotal      *int           `json:"max_usage_total,omitempty"`
	CurrentUsageCount  int            `json:"current_usage_count" gorm:"not null;default:0"`
	Stackable          bool           `json:"stackable"`
	ExclusiveWith      pq.StringArray `json:"exclusive_with,omitempty" gorm:"type:text[]"`

	Status              PolicyStatus   `json:"status" gorm:"type:varchar(20);not null;default:'draft';index"`
	RequiresApproval    bool           `json:"requires_approval"`
	ApprovalStatus      ApprovalStatus `json:"approval_status" gorm:"type:varchar(20);not null;default:'none'"`
	ApprovalRequestedBy string         `json:"approval_requested_by,omitempty"`
	ApprovalRequestedAt *time.Time     `json:"approval_requested_at,omitempty"`
	ApprovedBy          string         `json:"approved_by,omitempty"`
	ApprovedAt          *time.Time     `json:"approved_at,omitempty"`
	ApprovalNote        string         `json:"approval_note,omitempty"`
	CreatedBy           string         `json:"created_by,omitempty"`

	Version int `json:"version" gorm:"not null;default:1"`
}

func (CommissionPolicy) TableName() string {
	return "commission_policies"
}

// PolicyUsage counts commissions issued under a policy for one partner.
type PolicyUsage struct {
	PolicyID  uuid.UUID `json:"policy_id" gorm:"type:uuid;primaryKey"`
	PartnerID uuid.UUID `json:"partner_id" gorm:"type:uuid;primaryKey"`
	Count     int       `json:"count" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PolicyUsage) TableName() string {
	return "commission_policy_usages"
}
