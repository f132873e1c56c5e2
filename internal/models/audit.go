// internal/models/audit.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry is append-only. Entries are never updated or deleted.
type AuditLogEntry struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SubjectType string    `json:"subject_type" gorm:"type:varchar(40);not null"`
	SubjectID   uuid.UUID `json:"subject_id" gorm:"type:uuid;not null"`
	Action      string    `json:"action" gorm:"type:varchar(60);not null"`
	Actor       string    `json:"actor" gorm:"not null"`
	Reason      string    `json:"reason,omitempty" gorm:"type:text"`
	Before      JSONB     `json:"before,omitempty" gorm:"type:jsonb"`
	After       JSONB     `json:"after,omitempty" gorm:"type:jsonb"`
	IPAddress   string    `json:"ip_address,omitempty"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;index"`
}

func (AuditLogEntry) TableName() string {
	return "audit_log_entries"
}

// Audit subject types
const (
	AuditSubjectPartner    = "partner"
	AuditSubjectLink       = "link"
	AuditSubjectConversion = "conversion"
	AuditSubjectPolicy     = "policy"
	AuditSubjectCommission = "commission"
	AuditSubjectBatch      = "settlement_batch"
)

// Audit actions
const (
	AuditActionCreate          = "create"
	AuditActionUpdate          = "update"
	AuditActionApprove         = "approve"
	AuditActionSuspend         = "suspend"
	AuditActionReinstate       = "reinstate"
	AuditActionChangeTier      = "change_tier"
	AuditActionRequestApproval = "request_approval"
	AuditActionApprovePolicy   = "approve_policy"
	AuditActionRejectPolicy    = "reject_policy"
	AuditActionRevokePolicy    = "revoke_policy"
	AuditActionCancelApproval  = "cancel_approval"
	AuditActionStatusChange    = "status_change"
	AuditActionConfirm         = "confirm"
	AuditActionCancel          = "cancel"
	AuditActionRefund          = "refund"
	AuditActionAdjust          = "adjust"
	AuditActionClawback        = "clawback"
	AuditActionOpenBatch       = "open_batch"
	AuditActionCloseBatch      = "close_batch"
	AuditActionMarkPaid        = "mark_paid"
	AuditActionMarkFailed      = "mark_failed"
)

// SystemActor is recorded for transitions driven by events or schedulers.
const SystemActor = "system"
