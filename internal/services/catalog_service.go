// internal/services/catalog_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

// CatalogService maintains the read model of linkable targets.
type CatalogService struct {
	store repository.Store
}

type UpsertCatalogItemRequest struct {
	TargetType  string     `json:"target_type" validate:"required,oneof=product listing page campaign"`
	TargetID    string     `json:"target_id" validate:"required,max=128"`
	Title       string     `json:"title" validate:"max=300"`
	URL         string     `json:"url" validate:"required,url"`
	ProductType string     `json:"product_type" validate:"max=64"`
	SupplierID  *uuid.UUID `json:"supplier_id,omitempty"`
	Category    string     `json:"category" validate:"max=128"`
	Tags        []string   `json:"tags"`
	Active      *bool      `json:"active,omitempty"`
}

func NewCatalogService(store repository.Store) *CatalogService {
	return &CatalogService{store: store}
}

func (s *CatalogService) Upsert(ctx context.Context, req *UpsertCatalogItemRequest) (*models.CatalogItem, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	item := &models.CatalogItem{
		TargetType:  models.TargetType(req.TargetType),
		TargetID:    req.TargetID,
		Title:       req.Title,
		URL:         req.URL,
		ProductType: strings.ToLower(strings.TrimSpace(req.ProductType)),
		SupplierID:  req.SupplierID,
		Category:    req.Category,
		Tags:        req.Tags,
		Active:      active,
	}
	if err := s.store.Catalog().Upsert(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to upsert catalog item: %w", err)
	}
	return s.store.Catalog().Get(ctx, item.TargetType, item.TargetID)
}

func (s *CatalogService) Get(ctx context.Context, targetType models.TargetType, targetID string) (*models.CatalogItem, error) {
	return s.store.Catalog().Get(ctx, targetType, targetID)
}
