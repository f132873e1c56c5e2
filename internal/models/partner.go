// internal/models/partner.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Partner struct {
	BaseModel
	UserID          *uuid.UUID    `json:"user_id,omitempty" gorm:"type:uuid;index"`
	Name            string        `json:"name" gorm:"not null"`
	Email           string        `json:"email" gorm:"not null;index"`
	Tier            PartnerTier   `json:"tier" gorm:"type:varchar(20);not null;default:'bronze'"`
	Status          PartnerStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	PayoutAccountID string        `json:"payout_account_id,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	ApprovedBy      string        `json:"approved_by,omitempty"`
	SuspendedAt     *time.Time    `json:"suspended_at,omitempty"`
	SuspendReason   string        `json:"suspend_reason,omitempty"`
	Metadata        JSONB         `json:"metadata,omitempty" gorm:"type:jsonb"`
}

func (Partner) TableName() string {
	return "partners"
}

func (p *Partner) IsActive() bool {
	return p.Status == PartnerStatusActive
}
