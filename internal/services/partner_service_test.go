// internal/services/partner_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/partner-engine/internal/models"
)

func TestPartnerLifecycle(t *testing.T) {
	env := newTestEnv(t, 0, "last_click")

	partner, err := env.partners.Register(ctx, &RegisterPartnerRequest{Name: " Alpha ", Email: "Alpha@Partners.test"}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.PartnerStatusPending, partner.Status)
	assert.Equal(t, models.PartnerTierBronze, partner.Tier)
	assert.Equal(t, "alpha@partners.test", partner.Email)

	_, err = env.partners.Reinstate(ctx, partner.ID, adminActor)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	active, err := env.partners.Approve(ctx, partner.ID, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.PartnerStatusActive, active.Status)

	_, err = env.partners.Suspend(ctx, partner.ID, "", adminActor)
	assert.Error(t, err)

	suspended, err := env.partners.Suspend(ctx, partner.ID, "chargebacks", adminActor)
	require.NoError(t, err)
	assert.Equal(t, "chargebacks", suspended.SuspendReason)

	reinstated, err := env.partners.Reinstate(ctx, partner.ID, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.PartnerStatusActive, reinstated.Status)

	gold, err := env.partners.ChangeTier(ctx, partner.ID, models.PartnerTierGold, "volume", adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.PartnerTierGold, gold.Tier)
}

func TestPartnerStats(t *testing.T) {
	env := newTestEnv(t, 0, "last_click")
	partner := env.activePartner(t, "alpha")
	link := env.link(t, partner, "sku-1")
	env.ratePolicy(t, "Default 5%", "0.05", 0)

	ts := time.Now().Add(-time.Hour).Truncate(time.Second)
	env.click(t, link, "visitor-1", ts.Add(-time.Hour))
	env.click(t, link, "visitor-2", ts.Add(-time.Hour))
	_, err := env.attribution.Confirm(ctx, orderEvent("order-1", "visitor-1", 100000, ts))
	require.NoError(t, err)

	stats, err := env.partners.Stats(ctx, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Clicks)
	assert.Equal(t, int64(1), stats.Conversions)
	assert.Equal(t, int64(1), stats.ConfirmedOrders)
	assert.InDelta(t, 0.5, stats.ConversionRate, 0.0001)
	assert.True(t, stats.CommissionTotals[models.CommissionStatusConfirmed].Equal(dec("5000")))

	stored, err := env.links.Get(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.ClickCount)
	assert.Equal(t, int64(1), stored.ConversionCount)
}
