// internal/models/catalog.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CatalogItem is the local read model of a linkable target, synced from the
// catalog owner. Links are validated against it at creation time.
type CatalogItem struct {
	BaseModel
	TargetType  TargetType     `json:"target_type" gorm:"type:varchar(20);not null;uniqueIndex:idx_catalog_target"`
	TargetID    string         `json:"target_id" gorm:"not null;uniqueIndex:idx_catalog_target"`
	Title       string         `json:"title"`
	URL         string         `json:"url" gorm:"not null"`
	ProductType string         `json:"product_type" gorm:"index"`
	SupplierID  *uuid.UUID     `json:"supplier_id,omitempty" gorm:"type:uuid;index"`
	Category    string         `json:"category" gorm:"index"`
	Tags        pq.StringArray `json:"tags" gorm:"type:text[]"`
	Active      bool           `json:"active" gorm:"not null;default:true"`
}

func (CatalogItem) TableName() string {
	return "catalog_items"
}
