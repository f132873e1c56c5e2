// internal/commission/validate_test.go
package commission

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/partner-engine/internal/models"
)

func requireValidationField(t *testing.T, err error, field string) {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	assert.Equal(t, field, ve.Field)
}

func TestValidatePolicyAcceptsContiguousTiers(t *testing.T) {
	p := tieredPolicy()
	p.Name = "tiered"
	p.PolicyType = models.PolicyTypeDefault

	assert.NoError(t, ValidatePolicy(p))
}

func TestValidateTiersRejectsGapsAndOverlaps(t *testing.T) {
	gap := models.TierBrackets{
		{MinAmount: dec("0"), MaxAmount: decPtr("100"), Rate: decPtr("0.1")},
		{MinAmount: dec("150"), Rate: decPtr("0.2")},
	}
	requireValidationField(t, ValidateTiers(gap), "tiers")

	overlap := models.TierBrackets{
		{MinAmount: dec("0"), MaxAmount: decPtr("100"), Rate: decPtr("0.1")},
		{MinAmount: dec("50"), Rate: decPtr("0.2")},
	}
	requireValidationField(t, ValidateTiers(overlap), "tiers")

	openMiddle := models.TierBrackets{
		{MinAmount: dec("0"), Rate: decPtr("0.1")},
		{MinAmount: dec("100"), Rate: decPtr("0.2")},
	}
	requireValidationField(t, ValidateTiers(openMiddle), "tiers")

	both := models.TierBrackets{
		{MinAmount: dec("0"), Rate: decPtr("0.1"), Amount: decPtr("5")},
	}
	requireValidationField(t, ValidateTiers(both), "tiers")

	requireValidationField(t, ValidateTiers(nil), "tiers")
}

func TestValidatePolicyRules(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := from.Add(-time.Hour)
	self := uuid.New()

	cases := []struct {
		name   string
		mutate func(p *models.CommissionPolicy)
		field  string
	}{
		{"missing name", func(p *models.CommissionPolicy) { p.Name = " " }, "name"},
		{"rate above one", func(p *models.CommissionPolicy) { p.Rate = dec("5") }, "rate"},
		{"zero rate", func(p *models.CommissionPolicy) { p.Rate = dec("0") }, "rate"},
		{"product without product id", func(p *models.CommissionPolicy) { p.PolicyType = models.PolicyTypeProduct }, "product_id"},
		{"tier without tier", func(p *models.CommissionPolicy) { p.PolicyType = models.PolicyTypeTier }, "partner_tier"},
		{"unknown type", func(p *models.CommissionPolicy) { p.PolicyType = "mystery" }, "policy_type"},
		{"min over max", func(p *models.CommissionPolicy) {
			p.MinCommission = decPtr("10")
			p.MaxCommission = decPtr("5")
		}, "min_commission"},
		{"inverted window", func(p *models.CommissionPolicy) { p.ValidFrom = &from; p.ValidUntil = &until }, "valid_until"},
		{"zero cap", func(p *models.CommissionPolicy) { zero := 0; p.MaxUsageTotal = &zero }, "max_usage_total"},
		{"bad exclusive id", func(p *models.CommissionPolicy) { p.ExclusiveWith = pq.StringArray{"nope"} }, "exclusive_with"},
		{"self exclusive", func(p *models.CommissionPolicy) {
			p.ID = self
			p.ExclusiveWith = pq.StringArray{self.String()}
		}, "exclusive_with"},
		{"bad condition", func(p *models.CommissionPolicy) { p.Condition = "order_amount >" }, "condition"},
		{"fixed without amount", func(p *models.CommissionPolicy) {
			p.CommissionType = models.CommissionTypeFixed
		}, "fixed_amount"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := activePolicy("valid", 1, models.PolicyTypeDefault)
			require.NoError(t, ValidatePolicy(&p))
			tc.mutate(&p)
			requireValidationField(t, ValidatePolicy(&p), tc.field)
		})
	}
}

func TestNormalizeCommissionType(t *testing.T) {
	got, ok := NormalizeCommissionType("rate")
	assert.True(t, ok)
	assert.Equal(t, models.CommissionTypePercentage, got)

	got, ok = NormalizeCommissionType("Flat")
	assert.True(t, ok)
	assert.Equal(t, models.CommissionTypeFixed, got)

	_, ok = NormalizeCommissionType("bogus")
	assert.False(t, ok)
}
