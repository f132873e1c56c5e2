// internal/database/seed_test.go
package database

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/partner-engine/internal/models"
)

const seedYAML = `
policies:
  - name: Default five percent
    policy_type: default
    commission_type: rate
    rate: "0.05"
  - name: Skincare volume tiers
    policy_type: category
    category: skincare
    commission_type: tiered
    priority: 10
    max_commission: "10000"
    currency: krw
    tiers:
      - min_amount: "0"
        max_amount: "100000"
        rate: "0.05"
      - min_amount: "100000"
        rate: "0.08"
  - name: Launch bonus
    policy_type: promotional
    commission_type: flat
    fixed_amount: "3000"
    requires_new_customer: true
    max_usage_per_partner: 5
    status: scheduled
    requires_approval: true
`

func TestParsePolicySeed(t *testing.T) {
	policies, err := ParsePolicySeed([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, policies, 3)

	def := policies[0]
	assert.Equal(t, models.CommissionTypePercentage, def.CommissionType, "legacy rate alias is normalised")
	assert.True(t, def.Rate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, models.PolicyStatusActive, def.Status)
	assert.Equal(t, "seed", def.CreatedBy)

	tiered := policies[1]
	assert.Equal(t, models.CommissionTypeTiered, tiered.CommissionType)
	assert.Equal(t, "KRW", tiered.Currency)
	require.Len(t, tiered.Tiers, 2)
	assert.Nil(t, tiered.Tiers[1].MaxAmount)
	require.NotNil(t, tiered.MaxCommission)
	assert.True(t, tiered.MaxCommission.Equal(decimal.NewFromInt(10000)))

	bonus := policies[2]
	assert.Equal(t, models.CommissionTypeFixed, bonus.CommissionType)
	assert.Equal(t, models.PolicyStatusScheduled, bonus.Status)
	assert.Equal(t, models.ApprovalStatusNone, bonus.ApprovalStatus)
	require.NotNil(t, bonus.MaxUsagePerPartner)
	assert.Equal(t, 5, *bonus.MaxUsagePerPartner)
}

func TestParsePolicySeedRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown type": `
policies:
  - name: broken
    commission_type: share
    rate: "0.1"`,
		"bad decimal": `
policies:
  - name: broken
    commission_type: percentage
    rate: "ten"`,
		"rate above one": `
policies:
  - name: broken
    commission_type: percentage
    rate: "5"`,
		"gap in tiers": `
policies:
  - name: broken
    commission_type: tiered
    tiers:
      - min_amount: "0"
        max_amount: "100"
        rate: "0.1"
      - min_amount: "200"
        rate: "0.2"`,
		"product scope without id": `
policies:
  - name: broken
    policy_type: product
    commission_type: fixed
    fixed_amount: "100"`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePolicySeed([]byte(doc))
			assert.Error(t, err)
		})
	}
}
