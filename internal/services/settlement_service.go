// internal/services/settlement_service.go
package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/config"
	"github.com/javajoker/partner-engine/internal/events"
	"github.com/javajoker/partner-engine/internal/metrics"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type SettlementService struct {
	store           repository.Store
	locker          Locker
	audit           *AuditService
	publisher       events.Publisher
	storage         *StorageService
	gateway         PayoutGateway
	notifier        *NotificationService
	lockTTL         time.Duration
	defaultCurrency string
	now             func() time.Time
}

type OpenBatchRequest struct {
	PartnerID uuid.UUID `json:"partner_id" validate:"required"`
	Period    string    `json:"period" validate:"required,period_key"`
	Currency  string    `json:"currency,omitempty" validate:"omitempty,currency"`
}

// SettlementDeps are the optional collaborators of the settlement service.
// Nil members disable the matching feature.
type SettlementDeps struct {
	Publisher events.Publisher
	Storage   *StorageService
	Gateway   PayoutGateway
	Notifier  *NotificationService
}

func NewSettlementService(store repository.Store, locker Locker, audit *AuditService, cfg config.SettlementConfig, defaultCurrency string, deps SettlementDeps) *SettlementService {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	return &SettlementService{
		store:           store,
		locker:          locker,
		audit:           audit,
		publisher:       deps.Publisher,
		storage:         deps.Storage,
		gateway:         deps.Gateway,
		notifier:        deps.Notifier,
		lockTTL:         cfg.LockTTL,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

func batchLockKey(partnerID uuid.UUID, periodKey string) string {
	return "settlement:" + partnerID.String() + ":" + periodKey
}

// OpenBatch starts a batch for a partner and period. Only one batch per
// partner and period may be open at a time.
func (s *SettlementService) OpenBatch(ctx context.Context, req *OpenBatchRequest, actor Actor) (*models.PartnerSettlementBatch, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	period, err := ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Partners().GetByID(ctx, req.PartnerID); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}

	unlock, err := s.locker.Lock(ctx, batchLockKey(req.PartnerID, period.Key), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire settlement lock: %w", err)
	}
	defer unlock()

	batch := &models.PartnerSettlementBatch{
		PartnerID:   req.PartnerID,
		PeriodKey:   period.Key,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Currency:    currency,
		Status:      models.BatchStatusOpen,
		TotalAmount: decimal.Zero,
		OpenedBy:    actor.ID,
	}
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Settlements().GetOpenBatch(ctx, req.PartnerID, period.Key); err == nil {
			return ErrBatchAlreadyOpen
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := tx.Settlements().CreateBatch(ctx, batch); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrBatchAlreadyOpen
			}
			return fmt.Errorf("failed to create batch: %w", err)
		}
		return s.audit.Record(ctx, tx, AuditEvent{
			SubjectType: models.AuditSubjectBatch,
			SubjectID:   batch.ID,
			Action:      models.AuditActionOpenBatch,
			Actor:       actor,
			After:       batch,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.SettlementBatches.WithLabelValues(string(models.BatchStatusOpen)).Inc()
	return batch, nil
}

// CloseBatch snapshots the partner's settleable commissions and open
// reversals into immutable items and closes the batch. Closing a batch that
// is no longer open returns it unchanged.
func (s *SettlementService) CloseBatch(ctx context.Context, id uuid.UUID, actor Actor) (*models.PartnerSettlementBatch, error) {
	batch, err := s.store.Settlements().GetBatch(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if batch.Final() {
		return batch, nil
	}

	unlock, err := s.locker.Lock(ctx, batchLockKey(batch.PartnerID, batch.PeriodKey), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire settlement lock: %w", err)
	}

	var before models.PartnerSettlementBatch
	closed := false
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.Settlements().GetBatch(ctx, id, true)
		if err != nil {
			return err
		}
		batch = b
		if b.Final() {
			return nil
		}
		before = *b

		now := s.now()
		if err := s.snapshotCommissions(ctx, tx, b, now); err != nil {
			return err
		}
		if err := s.applyReversals(ctx, tx, b, now); err != nil {
			return err
		}

		items, err := tx.Settlements().ListItems(ctx, b.ID)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, item := range items {
			total = total.Add(item.Amount)
		}
		b.TotalAmount = total
		b.ItemCount = len(items)
		b.Status = models.BatchStatusClosed
		b.ClosedAt = &now
		if err := tx.Settlements().UpdateBatch(ctx, b); err != nil {
			return fmt.Errorf("failed to close batch: %w", err)
		}
		closed = true
		return nil
	})
	unlock()

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		logrus.WithError(err).WithField("batch_id", id).Error("Settlement close failed")
		return nil, fmt.Errorf("%w: %v", ErrBatchCloseIncomplete, err)
	}
	if !closed {
		return batch, nil
	}

	if err := s.audit.Record(ctx, nil, AuditEvent{
		SubjectType: models.AuditSubjectBatch,
		SubjectID:   batch.ID,
		Action:      models.AuditActionCloseBatch,
		Actor:       actor,
		Before:      before,
		After:       batch,
	}); err != nil {
		logrus.WithError(err).WithField("batch_id", batch.ID).Error("Failed to audit batch close")
	}
	s.publish(ctx, events.SettlementBatchClosed, batch)
	metrics.SettlementBatches.WithLabelValues(string(models.BatchStatusClosed)).Inc()
	logrus.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"items":    batch.ItemCount,
		"total":    batch.TotalAmount.String(),
	}).Info("Settlement batch closed")
	return batch, nil
}

func (s *SettlementService) snapshotCommissions(ctx context.Context, tx repository.Store, b *models.PartnerSettlementBatch, now time.Time) error {
	commissions, err := tx.Commissions().ListSettleable(ctx, b.PartnerID, b.PeriodStart, b.PeriodEnd, true)
	if err != nil {
		return fmt.Errorf("failed to list settleable commissions: %w", err)
	}

	for i := range commissions {
		c := &commissions[i]
		if c.Currency != b.Currency {
			continue
		}
		item := &models.SettlementItem{
			BatchID:        b.ID,
			PartnerID:      b.PartnerID,
			SourceKey:      models.CommissionSourceKey(c.ID),
			Kind:           models.SettlementItemKindCommission,
			CommissionID:   c.ID,
			OrderID:        c.OrderID,
			PolicyID:       c.PolicyID,
			CommissionType: c.CommissionType,
			BaseAmount:     c.BaseAmount,
			RateApplied:    c.RateApplied,
			Amount:         c.FinalAmount,
			Currency:       c.Currency,
			SnapshotAt:     now,
		}
		if err := s.createItem(ctx, tx, item); err != nil {
			return err
		}

		batchID := b.ID
		c.Status = models.CommissionStatusSettled
		c.SettlementBatchID = &batchID
		c.SettledAt = &now
		if err := tx.Commissions().Update(ctx, c); err != nil {
			return fmt.Errorf("failed to settle commission: %w", err)
		}
	}
	return nil
}

func (s *SettlementService) applyReversals(ctx context.Context, tx repository.Store, b *models.PartnerSettlementBatch, now time.Time) error {
	reversals, err := tx.Commissions().ListOpenReversals(ctx, b.PartnerID, true)
	if err != nil {
		return fmt.Errorf("failed to list reversals: %w", err)
	}

	for i := range reversals {
		rv := &reversals[i]
		if rv.Currency != b.Currency {
			continue
		}
		reversalID := rv.ID
		item := &models.SettlementItem{
			BatchID:      b.ID,
			PartnerID:    b.PartnerID,
			SourceKey:    models.ReversalSourceKey(rv.ID),
			Kind:         models.SettlementItemKindClawback,
			CommissionID: rv.CommissionID,
			ReversalID:   &reversalID,
			OrderID:      rv.OrderID,
			BaseAmount:   decimal.Zero,
			RateApplied:  decimal.Zero,
			Amount:       rv.Amount.Neg(),
			Currency:     rv.Currency,
			SnapshotAt:   now,
		}
		if err := s.createItem(ctx, tx, item); err != nil {
			return err
		}

		batchID := b.ID
		rv.AppliedBatchID = &batchID
		rv.AppliedAt = &now
		if err := tx.Commissions().UpdateReversal(ctx, rv); err != nil {
			return fmt.Errorf("failed to apply reversal: %w", err)
		}
	}
	return nil
}

// createItem is idempotent per source key: an item already snapshotted into
// this batch is reused, one owned by another batch is an error.
func (s *SettlementService) createItem(ctx context.Context, tx repository.Store, item *models.SettlementItem) error {
	existing, err := tx.Settlements().GetItemBySourceKey(ctx, item.SourceKey)
	if err == nil {
		if existing.BatchID != item.BatchID {
			return fmt.Errorf("%s already settled in batch %s", item.SourceKey, existing.BatchID)
		}
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if err := tx.Settlements().CreateItem(ctx, item); err != nil {
		return fmt.Errorf("failed to create settlement item: %w", err)
	}
	return nil
}

// MarkPaid records a successful payout of a closed batch.
func (s *SettlementService) MarkPaid(ctx context.Context, id uuid.UUID, payoutRef string, actor Actor) (*models.PartnerSettlementBatch, error) {
	batch, changed, err := s.finish(ctx, id, models.BatchStatusPaid, models.AuditActionMarkPaid, "", actor, func(b *models.PartnerSettlementBatch, now time.Time) {
		b.PaidAt = &now
		b.PayoutRef = payoutRef
	})
	if err != nil || !changed {
		return batch, err
	}
	s.publish(ctx, events.SettlementBatchPaid, batch)
	s.notifyPartner(ctx, batch, s.notifierSendPaid)
	return batch, nil
}

// MarkFailed records a failed payout of a closed batch.
func (s *SettlementService) MarkFailed(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*models.PartnerSettlementBatch, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, invalid("reason", "is required")
	}
	batch, changed, err := s.finish(ctx, id, models.BatchStatusFailed, models.AuditActionMarkFailed, reason, actor, func(b *models.PartnerSettlementBatch, now time.Time) {
		b.FailedAt = &now
		b.FailureReason = reason
	})
	if err != nil || !changed {
		return batch, err
	}
	s.publish(ctx, events.SettlementBatchFailed, batch)
	s.notifyPartner(ctx, batch, s.notifierSendFailed)
	return batch, nil
}

func (s *SettlementService) finish(ctx context.Context, id uuid.UUID, status models.BatchStatus, action, reason string, actor Actor, apply func(*models.PartnerSettlementBatch, time.Time)) (*models.PartnerSettlementBatch, bool, error) {
	var batch *models.PartnerSettlementBatch
	changed := false
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		b, err := tx.Settlements().GetBatch(ctx, id, true)
		if err != nil {
			return err
		}
		batch = b
		if b.Status == status {
			return nil
		}
		if b.Status != models.BatchStatusClosed {
			return transition(b.Status, status)
		}

		before := *b
		b.Status = status
		apply(b, s.now())
		if err := tx.Settlements().UpdateBatch(ctx, b); err != nil {
			return fmt.Errorf("failed to update batch: %w", err)
		}
		changed = true
		return s.audit.Record(ctx, tx, AuditEvent{
			SubjectType: models.AuditSubjectBatch,
			SubjectID:   b.ID,
			Action:      action,
			Actor:       actor,
			Reason:      reason,
			Before:      before,
			After:       b,
		})
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		metrics.SettlementBatches.WithLabelValues(string(status)).Inc()
	}
	return batch, changed, nil
}

// PayBatch transfers a closed batch's total to the partner's payout account
// and marks the batch paid or failed. A gateway failure is recorded on the
// batch and is not returned as an error.
func (s *SettlementService) PayBatch(ctx context.Context, id uuid.UUID, actor Actor) (*models.PartnerSettlementBatch, error) {
	batch, err := s.store.Settlements().GetBatch(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if batch.Status == models.BatchStatusPaid {
		return batch, nil
	}
	if batch.Status != models.BatchStatusClosed {
		return nil, transition(batch.Status, models.BatchStatusPaid)
	}
	if s.gateway == nil {
		return nil, ErrPayoutNotConfigured
	}
	if !batch.TotalAmount.IsPositive() {
		return nil, invalid("total_amount", "batch total %s is not payable", batch.TotalAmount)
	}

	partner, err := s.store.Partners().GetByID(ctx, batch.PartnerID)
	if err != nil {
		return nil, err
	}
	if partner.PayoutAccountID == "" {
		return nil, invalid("payout_account_id", "partner has no payout account")
	}

	ref, err := s.gateway.Transfer(ctx, TransferRequest{
		BatchID:        batch.ID,
		Destination:    partner.PayoutAccountID,
		Amount:         batch.TotalAmount,
		Currency:       batch.Currency,
		IdempotencyKey: "settlement-" + batch.ID.String(),
		Description:    fmt.Sprintf("Partner commissions %s", batch.PeriodKey),
	})
	if err != nil {
		logrus.WithError(err).WithField("batch_id", batch.ID).Warn("Payout transfer failed")
		return s.MarkFailed(ctx, batch.ID, err.Error(), actor)
	}
	return s.MarkPaid(ctx, batch.ID, ref, actor)
}

// Items returns the snapshot of a closed, paid or failed batch.
func (s *SettlementService) Items(ctx context.Context, id uuid.UUID) (*models.PartnerSettlementBatch, []models.SettlementItem, error) {
	batch, err := s.store.Settlements().GetBatch(ctx, id, false)
	if err != nil {
		return nil, nil, err
	}
	if !batch.Final() {
		return nil, nil, ErrBatchOpen
	}
	items, err := s.store.Settlements().ListItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return batch, items, nil
}

var exportHeader = []string{
	"batch_id", "partner_id", "period", "kind", "order_id", "commission_id",
	"policy_id", "commission_type", "base_amount", "rate_applied", "amount", "currency", "snapshot_at",
}

// Export writes the batch items as CSV to the storage backend.
func (s *SettlementService) Export(ctx context.Context, id uuid.UUID) (*UploadResult, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("export storage not configured")
	}
	batch, items, err := s.Items(ctx, id)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, item := range items {
		policyID := ""
		if item.PolicyID != nil {
			policyID = item.PolicyID.String()
		}
		record := []string{
			batch.ID.String(),
			batch.PartnerID.String(),
			batch.PeriodKey,
			string(item.Kind),
			item.OrderID,
			item.CommissionID.String(),
			policyID,
			string(item.CommissionType),
			item.BaseAmount.String(),
			item.RateApplied.String(),
			item.Amount.String(),
			item.Currency,
			item.SnapshotAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}

	name := fmt.Sprintf("%s/%s-%s.csv", batch.PartnerID, batch.PeriodKey, batch.ID)
	return s.storage.Put(ctx, name, "text/csv", buf.Bytes())
}

func (s *SettlementService) GetBatch(ctx context.Context, id uuid.UUID) (*models.PartnerSettlementBatch, error) {
	return s.store.Settlements().GetBatch(ctx, id, false)
}

func (s *SettlementService) ListBatches(ctx context.Context, filter repository.BatchFilter) ([]models.PartnerSettlementBatch, int64, error) {
	return s.store.Settlements().ListBatches(ctx, filter)
}

func (s *SettlementService) publish(ctx context.Context, eventType string, b *models.PartnerSettlementBatch) {
	payload := events.SettlementBatchEvent{
		BatchID:       b.ID,
		PartnerID:     b.PartnerID,
		PeriodKey:     b.PeriodKey,
		Status:        string(b.Status),
		TotalAmount:   b.TotalAmount,
		ItemCount:     b.ItemCount,
		Currency:      b.Currency,
		PayoutRef:     b.PayoutRef,
		FailureReason: b.FailureReason,
	}
	if err := s.publisher.Publish(ctx, eventType, b.PartnerID.String(), payload); err != nil {
		logrus.WithError(err).WithField("batch_id", b.ID).Warn("Failed to publish settlement event")
	}
}

func (s *SettlementService) notifierSendPaid(b *models.PartnerSettlementBatch, p *models.Partner) error {
	return s.notifier.SendSettlementPaid(b, p)
}

func (s *SettlementService) notifierSendFailed(b *models.PartnerSettlementBatch, p *models.Partner) error {
	return s.notifier.SendSettlementFailed(b, p)
}

func (s *SettlementService) notifyPartner(ctx context.Context, b *models.PartnerSettlementBatch, send func(*models.PartnerSettlementBatch, *models.Partner) error) {
	if s.notifier == nil {
		return
	}
	partner, err := s.store.Partners().GetByID(ctx, b.PartnerID)
	if err != nil {
		logrus.WithError(err).WithField("batch_id", b.ID).Warn("Failed to load partner for notification")
		return
	}
	if err := send(b, partner); err != nil {
		logrus.WithError(err).WithField("batch_id", b.ID).Warn("Failed to send settlement notification")
	}
}
