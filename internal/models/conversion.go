// internal/models/conversion.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PartnerConversion is an order attributed (or explicitly not attributed) to
// a partner. OrderID is unique among non-cancelled conversions.
type PartnerConversion struct {
	BaseModel
	OrderID          string           `json:"order_id" gorm:"not null;index"`
	PartnerID        *uuid.UUID       `json:"partner_id,omitempty" gorm:"type:uuid;index"`
	LinkID           *uuid.UUID       `json:"link_id,omitempty" gorm:"type:uuid"`
	ClickID          *uuid.UUID       `json:"click_id,omitempty" gorm:"type:uuid"`
	AttributionModel AttributionModel `json:"attribution_model" gorm:"type:varchar(20);not null"`
	OrderAmount      decimal.Decimal  `json:"order_amount" gorm:"type:decimal(18,4);not null"`
	Currency         string           `json:"currency" gorm:"type:varchar(3);not null"`
	CustomerID       string           `json:"customer_id,omitempty"`
	CustomerIsNew    bool             `json:"customer_is_new"`
	ProductID        *uuid.UUID       `json:"product_id,omitempty" gorm:"type:uuid"`
	SupplierID       *uuid.UUID       `json:"supplier_id,omitempty" gorm:"type:uuid"`
	Category         string           `json:"category,omitempty"`
	Tags             pq.StringArray   `json:"tags,omitempty" gorm:"type:text[]"`
	AppliedPolicyIDs pq.StringArray   `json:"applied_policy_ids,omitempty" gorm:"type:text[]"`
	Status           ConversionStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	ResolutionStatus ResolutionStatus `json:"resolution_status" gorm:"type:varchar(20);not null;default:'pending'"`
	ResolutionNote   string           `json:"resolution_note,omitempty"`
	OccurredAt       time.Time        `json:"occurred_at" gorm:"not null"`
	ConfirmedAt      *time.Time       `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time       `json:"cancelled_at,omitempty"`
	RefundedAt       *time.Time       `json:"refunded_at,omitempty"`
}

func (PartnerConversion) TableName() string {
	return "partner_conversions"
}

func (c *PartnerConversion) Attributed() bool {
	return c.PartnerID != nil
}
