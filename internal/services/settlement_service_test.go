// internal/services/settlement_service_test.go
package services

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/partner-engine/internal/events"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type SettlementServiceTestSuite struct {
	suite.Suite
	env     *testEnv
	partner *models.Partner
	link    *models.PartnerLink
	march   time.Time
}

func (suite *SettlementServiceTestSuite) SetupTest() {
	suite.env = newFaultyTestEnv(suite.T(), 0, "last_click", &storeFaults{})
	suite.partner = suite.env.activePartner(suite.T(), "alpha")
	suite.link = suite.env.link(suite.T(), suite.partner, "sku-1")
	suite.env.ratePolicy(suite.T(), "Default 5%", "0.05", 0)
	suite.march = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func (suite *SettlementServiceTestSuite) confirmOrder(orderID, visitor string, amount int64, at time.Time) {
	suite.env.click(suite.T(), suite.link, visitor, at.Add(-time.Hour))
	conv, err := suite.env.attribution.Confirm(ctx, orderEvent(orderID, visitor, amount, at))
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), models.ResolutionStatusCommissioned, conv.ResolutionStatus)
}

func (suite *SettlementServiceTestSuite) open(period string) *models.PartnerSettlementBatch {
	batch, err := suite.env.settlements.OpenBatch(ctx, &OpenBatchRequest{PartnerID: suite.partner.ID, Period: period}, adminActor)
	require.NoError(suite.T(), err)
	return batch
}

func (suite *SettlementServiceTestSuite) closed(period string) *models.PartnerSettlementBatch {
	batch, err := suite.env.settlements.CloseBatch(ctx, suite.open(period).ID, adminActor)
	require.NoError(suite.T(), err)
	return batch
}

func (suite *SettlementServiceTestSuite) TestOpenBatchOncePerPeriod() {
	batch := suite.open("2026-03")
	assert.Equal(suite.T(), models.BatchStatusOpen, batch.Status)
	assert.Equal(suite.T(), "KRW", batch.Currency)
	assert.True(suite.T(), batch.PeriodStart.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))

	_, err := suite.env.settlements.OpenBatch(ctx, &OpenBatchRequest{PartnerID: suite.partner.ID, Period: "2026-03"}, adminActor)
	assert.ErrorIs(suite.T(), err, ErrBatchAlreadyOpen)

	_, err = suite.env.settlements.OpenBatch(ctx, &OpenBatchRequest{PartnerID: suite.partner.ID, Period: "2026-3"}, adminActor)
	assert.Error(suite.T(), err)
}

func (suite *SettlementServiceTestSuite) TestCloseSnapshotsPeriodCommissions() {
	suite.confirmOrder("order-1", "visitor-1", 100000, suite.march)
	suite.confirmOrder("order-2", "visitor-2", 50000, suite.march.Add(24*time.Hour))
	suite.confirmOrder("order-3", "visitor-3", 80000, time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))

	batch := suite.closed("2026-03")
	assert.Equal(suite.T(), models.BatchStatusClosed, batch.Status)
	assert.Equal(suite.T(), 2, batch.ItemCount)
	assert.True(suite.T(), batch.TotalAmount.Equal(dec("7500")))

	_, items, err := suite.env.settlements.Items(ctx, batch.ID)
	require.NoError(suite.T(), err)
	sum := dec("0")
	for _, item := range items {
		sum = sum.Add(item.Amount)
		assert.Equal(suite.T(), models.SettlementItemKindCommission, item.Kind)
	}
	assert.True(suite.T(), sum.Equal(batch.TotalAmount))

	settled := models.CommissionStatusSettled
	_, n, err := suite.env.commissions.List(ctx, repository.CommissionFilter{PartnerID: &suite.partner.ID, Status: &settled})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(2), n)

	again, err := suite.env.settlements.CloseBatch(ctx, batch.ID, adminActor)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), batch.ItemCount, again.ItemCount)
	assert.True(suite.T(), again.TotalAmount.Equal(batch.TotalAmount))
	assert.Equal(suite.T(), 1, suite.env.publisher.count(events.SettlementBatchClosed))
}

func (suite *SettlementServiceTestSuite) TestConcurrentOpenBatch() {
	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		opened  int
		refused int
		other   []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := suite.env.settlements.OpenBatch(ctx, &OpenBatchRequest{PartnerID: suite.partner.ID, Period: "2026-03"}, adminActor)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case errors.Is(err, ErrBatchAlreadyOpen):
				refused++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(suite.T(), other)
	assert.Equal(suite.T(), 1, opened)
	assert.Equal(suite.T(), workers-1, refused)

	_, total, err := suite.env.settlements.ListBatches(ctx, repository.BatchFilter{PartnerID: &suite.partner.ID})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), total)
}

func (suite *SettlementServiceTestSuite) TestCloseFailureLeavesBatchUntouched() {
	suite.confirmOrder("order-1", "visitor-1", 100000, suite.march)
	suite.confirmOrder("order-2", "visitor-2", 50000, suite.march.Add(24*time.Hour))
	batch := suite.open("2026-03")

	// the second commission fails to settle after the first item was written
	suite.env.faults.failCommissionUpdatesAfter(1)
	_, err := suite.env.settlements.CloseBatch(ctx, batch.ID, adminActor)
	require.ErrorIs(suite.T(), err, ErrBatchCloseIncomplete)

	stored, err := suite.env.store.Settlements().GetBatch(ctx, batch.ID, false)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.BatchStatusOpen, stored.Status)
	assert.True(suite.T(), stored.TotalAmount.IsZero())
	assert.Zero(suite.T(), stored.ItemCount)

	items, err := suite.env.store.Settlements().ListItems(ctx, batch.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), items)

	commissions, _, err := suite.env.commissions.List(ctx, repository.CommissionFilter{PartnerID: &suite.partner.ID})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), commissions, 2)
	for _, c := range commissions {
		assert.Equal(suite.T(), models.CommissionStatusConfirmed, c.Status)
		assert.Nil(suite.T(), c.SettlementBatchID)
	}

	suite.env.faults.heal()
	closed, err := suite.env.settlements.CloseBatch(ctx, batch.ID, adminActor)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.BatchStatusClosed, closed.Status)
	assert.Equal(suite.T(), 2, closed.ItemCount)
	assert.True(suite.T(), closed.TotalAmount.Equal(dec("7500")))

	again, err := suite.env.settlements.CloseBatch(ctx, batch.ID, adminActor)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), again.TotalAmount.Equal(dec("7500")))
	items, err = suite.env.store.Settlements().ListItems(ctx, batch.ID)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), items, 2)
}

func (suite *SettlementServiceTestSuite) TestCloseReusesItemsFromEarlierAttempt() {
	suite.confirmOrder("order-1", "visitor-1", 100000, suite.march)
	suite.confirmOrder("order-2", "visitor-2", 50000, suite.march.Add(24*time.Hour))
	batch := suite.open("2026-03")

	commissions, _, err := suite.env.commissions.List(ctx, repository.CommissionFilter{PartnerID: &suite.partner.ID})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), commissions, 2)
	first := commissions[0]
	leftover := &models.SettlementItem{
		BatchID:      batch.ID,
		PartnerID:    suite.partner.ID,
		SourceKey:    models.CommissionSourceKey(first.ID),
		Kind:         models.SettlementItemKindCommission,
		CommissionID: first.ID,
		OrderID:      first.OrderID,
		BaseAmount:   first.BaseAmount,
		RateApplied:  first.RateApplied,
		Amount:       first.FinalAmount,
		Currency:     first.Currency,
		SnapshotAt:   suite.march,
	}
	require.NoError(suite.T(), suite.env.store.Settlements().CreateItem(ctx, leftover))

	closed, err := suite.env.settlements.CloseBatch(ctx, batch.ID, adminActor)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, closed.ItemCount)
	assert.True(suite.T(), closed.TotalAmount.Equal(dec("7500")))

	items, err := suite.env.store.Settlements().ListItems(ctx, batch.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), items, 2)
	assert.True(suite.T(), items[0].ID == leftover.ID || items[1].ID == leftover.ID)
}

func (suite *SettlementServiceTestSuite) TestItemsOfOpenBatch() {
	batch := suite.open("2026-03")
	_, _, err := suite.env.settlements.Items(ctx, batch.ID)
	assert.ErrorIs(suite.T(), err, ErrBatchOpen)
}

func (suite *SettlementServiceTestSuite) TestRefundAfterSettlementClawsBack() {
	suite.confirmOrder("order-1", "visitor-1", 100000, suite.march)
	march := suite.closed("2026-03")

	c, _, err := suite.env.commissions.List(ctx, repository.CommissionFilter{PartnerID: &suite.partner.ID})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), c, 1)
	_, err = suite.env.commissions.Cancel(ctx, c[0].ID, "manual", adminActor)
	assert.ErrorIs(suite.T(), err, ErrInvalidTransition)

	refundAt := time.Date(2026, 4, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		_, err = suite.env.attribution.Reverse(ctx, &events.OrderEvent{OrderID: "order-1", Timestamp: refundAt}, models.ConversionStatusRefunded)
		require.NoError(suite.T(), err)
	}

	april := suite.closed("2026-04")
	assert.Equal(suite.T(), 1, april.ItemCount)
	assert.True(suite.T(), april.TotalAmount.Equal(dec("-5000")))

	_, items, err := suite.env.settlements.Items(ctx, april.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), items, 1)
	assert.Equal(suite.T(), models.SettlementItemKindClawback, items[0].Kind)
	assert.Equal(suite.T(), "order-1", items[0].OrderID)

	// the original batch is immutable
	stored, err := suite.env.settlements.GetBatch(ctx, march.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), stored.TotalAmount.Equal(dec("5000")))
}

func (suite *SettlementServiceTestSuite) TestPayBatch() {
	suite.confirmOrder("order-1", "visitor-1", 100000, suite.march)
	batch := suite.closed("2026-03")

	paid, err := suite.env.settlements.PayBatch(ctx, batch.ID, adminActor)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.BatchStatusPaid, paid.Status)
	assert.Equal(suite.T(), "tr_test", paid.PayoutRef)
	require.Len(suite.T(), suite.env.gateway.calls, 1)
	call := suite.env.gateway.calls[0]
	assert.Equal(suite.T(), "acct_alpha", call.Destination)
	assert.Equal(suite.T(), "settlement-"+batch.ID.String(), call.IdempotencyKey)
	assert.True(suite.T(), call.Amount.Equal(dec("5000")))

	again, err := suite.env.settlements.PayBatch(ctx, batch.ID, adminActor)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.BatchStatusPaid, again.Status)
	assert.Len(suite.T(), suite.env.gateway.calls, 1)
	assert.Equal(suite.T(), 1, suite.env.publisher.count(events.SettlementBatchPaid))
}

func (suite *SettlementServiceTestSuite) TestPayBatchFailure() {
	suite.confirmOrder("order-1", "visitor-1", 100000, suite.march)
	batch := suite.closed("2026-03")
	suite.env.gateway.err = errGatewayDown

	failed, err := suite.env.settlements.PayBatch(ctx, batch.ID, adminActor)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.BatchStatusFailed, failed.Status)
	assert.Equal(suite.T(), errGatewayDown.Error(), failed.FailureReason)

	_, err = suite.env.settlements.MarkPaid(ctx, batch.ID, "manual", adminActor)
	assert.ErrorIs(suite.T(), err, ErrInvalidTransition)
}

func (suite *SettlementServiceTestSuite) TestPayBatchRequiresClosedPositiveBatch() {
	open := suite.open("2026-03")
	_, err := suite.env.settlements.PayBatch(ctx, open.ID, adminActor)
	assert.ErrorIs(suite.T(), err, ErrInvalidTransition)

	empty, err := suite.env.settlements.CloseBatch(ctx, open.ID, adminActor)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), empty.TotalAmount.IsZero())

	_, err = suite.env.settlements.PayBatch(ctx, empty.ID, adminActor)
	var verr *ValidationError
	assert.True(suite.T(), errors.As(err, &verr))
}

func (suite *SettlementServiceTestSuite) TestMarkFailedNeedsReason() {
	batch := suite.closed("2026-03")
	_, err := suite.env.settlements.MarkFailed(ctx, batch.ID, "", adminActor)
	var verr *ValidationError
	assert.True(suite.T(), errors.As(err, &verr))

	failed, err := suite.env.settlements.MarkFailed(ctx, batch.ID, "bank rejected", adminActor)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.BatchStatusFailed, failed.Status)
}

func (suite *SettlementServiceTestSuite) TestExport() {
	suite.confirmOrder("order-1", "visitor-1", 100000, suite.march)
	batch := suite.closed("2026-03")

	result, err := suite.env.settlements.Export(ctx, batch.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "text/csv", result.MimeType)
	assert.True(suite.T(), strings.HasPrefix(result.Key, "settlements/"+suite.partner.ID.String()+"/2026-03-"))

	data, err := os.ReadFile(filepath.Join(suite.env.exportDir, filepath.FromSlash(result.Key)))
	require.NoError(suite.T(), err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(suite.T(), lines, 2)
	assert.Equal(suite.T(), strings.Join(exportHeader, ","), lines[0])
	assert.Contains(suite.T(), lines[1], "order-1")
}

func TestSettlementServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SettlementServiceTestSuite))
}
