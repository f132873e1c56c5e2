// internal/services/audit_service.go
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type AuditService struct {
	store repository.Store
}

// AuditEvent describes one state transition. Before and After are
// snapshotted as JSON.
type AuditEvent struct {
	SubjectType string
	SubjectID   uuid.UUID
	Action      string
	Actor       Actor
	Reason      string
	Before      interface{}
	After       interface{}
}

func NewAuditService(store repository.Store) *AuditService {
	return &AuditService{store: store}
}

// Record appends ev through store, which may be a transaction so the entry
// commits with the change it describes. A nil store uses the service store.
func (s *AuditService) Record(ctx context.Context, store repository.Store, ev AuditEvent) error {
	if store == nil {
		store = s.store
	}
	actor := ev.Actor.ID
	if actor == "" {
		actor = models.SystemActor
	}
	entry := &models.AuditLogEntry{
		SubjectType: ev.SubjectType,
		SubjectID:   ev.SubjectID,
		Action:      ev.Action,
		Actor:       actor,
		Reason:      ev.Reason,
		Before:      models.ToJSONB(ev.Before),
		After:       models.ToJSONB(ev.After),
		IPAddress:   ev.Actor.IP,
	}
	if err := store.Audit().Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *AuditService) List(ctx context.Context, filter repository.AuditFilter) ([]models.AuditLogEntry, int64, error) {
	return s.store.Audit().List(ctx, filter)
}
