// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the id client side so callers can reference a record
// before the insert returns.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// ToJSONB converts any JSON-serialisable value to a JSONB snapshot.
func ToJSONB(v interface{}) JSONB {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out JSONB
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// Enums
type PartnerStatus string

const (
	PartnerStatusPending   PartnerStatus = "pending"
	PartnerStatusActive    PartnerStatus = "active"
	PartnerStatusSuspended PartnerStatus = "suspended"
)

type PartnerTier string

const (
	PartnerTierBronze   PartnerTier = "bronze"
	PartnerTierSilver   PartnerTier = "silver"
	PartnerTierGold     PartnerTier = "gold"
	PartnerTierPlatinum PartnerTier = "platinum"
)

type TargetType string

const (
	TargetTypeProduct  TargetType = "product"
	TargetTypeListing  TargetType = "listing"
	TargetTypePage     TargetType = "page"
	TargetTypeCampaign TargetType = "campaign"
)

type LinkStatus string

const (
	LinkStatusActive   LinkStatus = "active"
	LinkStatusPaused   LinkStatus = "paused"
	LinkStatusArchived LinkStatus = "archived"
)

type ConversionStatus string

const (
	ConversionStatusPending   ConversionStatus = "pending"
	ConversionStatusConfirmed ConversionStatus = "confirmed"
	ConversionStatusCancelled ConversionStatus = "cancelled"
	ConversionStatusRefunded  ConversionStatus = "refunded"
)

// ResolutionStatus records what happened when commission was resolved for a
// confirmed conversion.
type ResolutionStatus string

const (
	ResolutionStatusPending      ResolutionStatus = "pending"
	ResolutionStatusCommissioned ResolutionStatus = "commissioned"
	ResolutionStatusNoPolicy     ResolutionStatus = "no_policy"
	ResolutionStatusConflict     ResolutionStatus = "conflict"
	ResolutionStatusIneligible   ResolutionStatus = "ineligible"
)

type AttributionModel string

const (
	AttributionModelLastClick  AttributionModel = "last_click"
	AttributionModelFirstClick AttributionModel = "first_click"
	AttributionModelDirect     AttributionModel = "direct"
	AttributionModelNone       AttributionModel = "none"
)

type CommissionType string

const (
	CommissionTypePercentage CommissionType = "percentage"
	CommissionTypeFixed      CommissionType = "fixed"
	CommissionTypeTiered     CommissionType = "tiered"
)

// PolicyType is the specificity class of a policy. Its rank breaks ties
// between policies of equal priority.
type PolicyType string

const (
	PolicyTypeProduct     PolicyType = "product"
	PolicyTypePartner     PolicyType = "partner"
	PolicyTypeSupplier    PolicyType = "supplier"
	PolicyTypeCategory    PolicyType = "category"
	PolicyTypeTier        PolicyType = "tier_based"
	PolicyTypePromotional PolicyType = "promotional"
	PolicyTypeDefault     PolicyType = "default"
)

type PolicyStatus string

const (
	PolicyStatusDraft     PolicyStatus = "draft"
	PolicyStatusActive    PolicyStatus = "active"
	PolicyStatusInactive  PolicyStatus = "inactive"
	PolicyStatusScheduled PolicyStatus = "scheduled"
	PolicyStatusExpired   PolicyStatus = "expired"
)

type ApprovalStatus string

const (
	ApprovalStatusNone      ApprovalStatus = "none"
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusRevoked   ApprovalStatus = "revoked"
	ApprovalStatusCancelled ApprovalStatus = "cancelled"
)

type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusConfirmed CommissionStatus = "confirmed"
	CommissionStatusSettled   CommissionStatus = "settled"
	CommissionStatusCancelled CommissionStatus = "cancelled"
)

type BatchStatus string

const (
	BatchStatusOpen   BatchStatus = "open"
	BatchStatusClosed BatchStatus = "closed"
	BatchStatusPaid   BatchStatus = "paid"
	BatchStatusFailed BatchStatus = "failed"
)

type SettlementItemKind string

const (
	SettlementItemKindCommission SettlementItemKind = "commission"
	SettlementItemKindClawback   SettlementItemKind = "clawback"
)
