// internal/models/link.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type PartnerLink struct {
	BaseModel
	PartnerID       uuid.UUID  `json:"partner_id" gorm:"type:uuid;not null;index"`
	TargetType      TargetType `json:"target_type" gorm:"type:varchar(20);not null"`
	TargetID        string     `json:"target_id" gorm:"not null"`
	TargetURL       string     `json:"target_url" gorm:"not null"`
	ShortCode       string     `json:"short_code" gorm:"type:varchar(32);uniqueIndex;not null"`
	ProductType     string     `json:"product_type,omitempty"`
	UTMSource       string     `json:"utm_source,omitempty"`
	UTMMedium       string     `json:"utm_medium,omitempty"`
	UTMCampaign     string     `json:"utm_campaign,omitempty"`
	ClickCount      int64      `json:"click_count" gorm:"not null;default:0"`
	ConversionCount int64      `json:"conversion_count" gorm:"not null;default:0"`
	Status          LinkStatus `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func (PartnerLink) TableName() string {
	return "partner_links"
}

// Resolvable reports whether the link may still be followed at t.
func (l *PartnerLink) Resolvable(t time.Time) bool {
	if l.Status != LinkStatusActive {
		return false
	}
	return l.ExpiresAt == nil || t.Before(*l.ExpiresAt)
}

type PartnerClick struct {
	BaseModel
	LinkID       uuid.UUID  `json:"link_id" gorm:"type:uuid;not null;index"`
	PartnerID    uuid.UUID  `json:"partner_id" gorm:"type:uuid;not null;index"`
	Fingerprint  string     `json:"fingerprint" gorm:"type:varchar(128);not null;index"`
	SessionID    string     `json:"session_id,omitempty" gorm:"index"`
	IPHash       string     `json:"ip_hash,omitempty"`
	UserAgent    string     `json:"user_agent,omitempty"`
	Referrer     string     `json:"referrer,omitempty"`
	ClickedAt    time.Time  `json:"clicked_at" gorm:"not null;index"`
	LastSeenAt   time.Time  `json:"last_seen_at" gorm:"not null"`
	ConversionID *uuid.UUID `json:"conversion_id,omitempty" gorm:"type:uuid"`
}

func (PartnerClick) TableName() string {
	return "partner_clicks"
}
