// internal/commission/resolver_test.go
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

var resolveNow = time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)

func activePolicy(name string, priority int, policyType models.PolicyType) models.CommissionPolicy {
	p := models.CommissionPolicy{
		Name:           name,
		PolicyType:     policyType,
		Priority:       priority,
		Status:         models.PolicyStatusActive,
		ApprovalStatus: models.ApprovalStatusNone,
		CommissionType: models.CommissionTypePercentage,
		Rate:           dec("0.05"),
	}
	p.ID = uuid.New()
	return p
}

func intPtr(v int) *int { return &v }

func baseContext() Context {
	product := uuid.New()
	return Context{
		PartnerID:   uuid.New(),
		PartnerTier: models.PartnerTierGold,
		ProductID:   &product,
		Category:    "skincare",
		Tags:        []string{"summer"},
		OrderAmount: dec("50000"),
		Currency:    "KRW",
	}
}

func TestResolveProductBeatsCategoryAtEqualPriority(t *testing.T) {
	ctx := baseContext()

	p1 := activePolicy("category", 10, models.PolicyTypeCategory)
	p1.Category = "skincare"
	p2 := activePolicy("product", 10, models.PolicyTypeProduct)
	p2.ProductID = ctx.ProductID

	res, err := Resolve([]models.CommissionPolicy{p1, p2}, ctx, resolveNow)

	require.NoError(t, err)
	require.NotNil(t, res.Policy)
	assert.Equal(t, p2.ID, res.Policy.ID)
}

func TestResolvePriorityWinsOverSpecificity(t *testing.T) {
	ctx := baseContext()

	def := activePolicy("default", 20, models.PolicyTypeDefault)
	product := activePolicy("product", 10, models.PolicyTypeProduct)
	product.ProductID = ctx.ProductID

	res, err := Resolve([]models.CommissionPolicy{product, def}, ctx, resolveNow)

	require.NoError(t, err)
	assert.Equal(t, def.ID, res.Policy.ID)
}

func TestResolveConflictOnFullTie(t *testing.T) {
	ctx := baseContext()

	a := activePolicy("a", 10, models.PolicyTypeCategory)
	a.Category = "skincare"
	b := activePolicy("b", 10, models.PolicyTypeCategory)
	b.Category = "skincare"
	lower := activePolicy("fallback", 1, models.PolicyTypeDefault)

	res, err := Resolve([]models.CommissionPolicy{a, b, lower}, ctx, resolveNow)

	assert.Nil(t, res)
	var conflict *PolicyConflictError
	require.True(t, errors.As(err, &conflict))
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, conflict.PolicyIDs)
	assert.Equal(t, 10, conflict.Priority)
}

func TestResolveIsDeterministic(t *testing.T) {
	ctx := baseContext()

	policies := []models.CommissionPolicy{
		activePolicy("default", 1, models.PolicyTypeDefault),
		activePolicy("tier", 5, models.PolicyTypeTier),
		activePolicy("promo", 5, models.PolicyTypePromotional),
	}
	policies[1].PartnerTier = models.PartnerTierGold

	reversed := make([]models.CommissionPolicy, len(policies))
	for i := range policies {
		reversed[len(policies)-1-i] = policies[i]
	}

	first, err := Resolve(policies, ctx, resolveNow)
	require.NoError(t, err)
	second, err := Resolve(reversed, ctx, resolveNow)
	require.NoError(t, err)

	assert.Equal(t, policies[1].ID, first.Policy.ID)
	assert.Equal(t, first.Policy.ID, second.Policy.ID)

	a := activePolicy("a", 9, models.PolicyTypeDefault)
	b := activePolicy("b", 9, models.PolicyTypeDefault)
	_, err1 := Resolve([]models.CommissionPolicy{a, b}, ctx, resolveNow)
	_, err2 := Resolve([]models.CommissionPolicy{b, a}, ctx, resolveNow)
	assert.Equal(t, err1.Error(), err2.Error())
}

func TestResolveExcludesPartnerCappedPolicy(t *testing.T) {
	ctx := baseContext()

	capped := activePolicy("capped", 100, models.PolicyTypeDefault)
	capped.MaxUsagePerPartner = intPtr(5)
	fallback := activePolicy("fallback", 1, models.PolicyTypeDefault)
	ctx.PartnerUsage = map[uuid.UUID]int{capped.ID: 5}

	res, err := Resolve([]models.CommissionPolicy{capped, fallback}, ctx, resolveNow)

	require.NoError(t, err)
	assert.Equal(t, fallback.ID, res.Policy.ID)
	assert.True(t, res.CapExceeded())
	assert.Equal(t, ExclusionPartnerCap, res.Excluded[0].Reason)

	ctx.PartnerUsage[capped.ID] = 4
	res, err = Resolve([]models.CommissionPolicy{capped, fallback}, ctx, resolveNow)
	require.NoError(t, err)
	assert.Equal(t, capped.ID, res.Policy.ID)
}

func TestResolveExcludesTotalCappedPolicy(t *testing.T) {
	ctx := baseContext()

	capped := activePolicy("capped", 100, models.PolicyTypeDefault)
	capped.MaxUsageTotal = intPtr(3)
	capped.CurrentUsageCount = 3

	res, err := Resolve([]models.CommissionPolicy{capped}, ctx, resolveNow)

	require.NoError(t, err)
	assert.Nil(t, res.Policy)
	assert.Equal(t, ExclusionTotalCap, res.Excluded[0].Reason)
}

func TestResolveStackingExclusion(t *testing.T) {
	ctx := baseContext()
	applied := uuid.New()
	ctx.AppliedPolicyIDs = []uuid.UUID{applied}

	exclusive := activePolicy("exclusive", 50, models.PolicyTypeDefault)
	exclusive.ExclusiveWith = pq.StringArray{applied.String()}
	fallback := activePolicy("fallback", 1, models.PolicyTypeDefault)

	res, err := Resolve([]models.CommissionPolicy{exclusive, fallback}, ctx, resolveNow)
	require.NoError(t, err)
	assert.Equal(t, fallback.ID, res.Policy.ID)
	assert.Equal(t, ExclusionStacking, res.Excluded[0].Reason)

	exclusive.Stackable = true
	res, err = Resolve([]models.CommissionPolicy{exclusive, fallback}, ctx, resolveNow)
	require.NoError(t, err)
	assert.Equal(t, exclusive.ID, res.Policy.ID)
}

func TestResolveNoMatchReturnsNilPolicy(t *testing.T) {
	ctx := baseContext()

	other := activePolicy("other category", 10, models.PolicyTypeCategory)
	other.Category = "electronics"

	res, err := Resolve([]models.CommissionPolicy{other}, ctx, resolveNow)

	require.NoError(t, err)
	assert.Nil(t, res.Policy)
	assert.Empty(t, res.Excluded)
}

func TestResolveReportsConditionErrors(t *testing.T) {
	ctx := baseContext()

	broken := activePolicy("broken condition", 20, models.PolicyTypeDefault)
	broken.Condition = `tags[3] == "winter"`
	fallback := activePolicy("fallback", 1, models.PolicyTypeDefault)

	res, err := Resolve([]models.CommissionPolicy{broken, fallback}, ctx, resolveNow)

	require.NoError(t, err)
	require.NotNil(t, res.Policy)
	assert.Equal(t, fallback.ID, res.Policy.ID)
	require.Len(t, res.ConditionErrors(), 1)
	assert.Equal(t, broken.ID, res.ConditionErrors()[0].PolicyID)
	assert.NotEmpty(t, res.ConditionErrors()[0].Detail)
	assert.False(t, res.CapExceeded())
	assert.False(t, Matches(&broken, ctx, resolveNow))
}

func TestMatchesFilters(t *testing.T) {
	ctx := baseContext()
	past := resolveNow.Add(-time.Hour)
	future := resolveNow.Add(time.Hour)
	otherPartner := uuid.New()

	cases := []struct {
		name   string
		mutate func(p *models.CommissionPolicy)
		want   bool
	}{
		{"plain default", func(p *models.CommissionPolicy) {}, true},
		{"inactive", func(p *models.CommissionPolicy) { p.Status = models.PolicyStatusInactive }, false},
		{"scheduled", func(p *models.CommissionPolicy) { p.Status = models.PolicyStatusScheduled }, false},
		{"not yet valid", func(p *models.CommissionPolicy) { p.ValidFrom = &future }, false},
		{"expired", func(p *models.CommissionPolicy) { p.ValidUntil = &past }, false},
		{"within window", func(p *models.CommissionPolicy) { p.ValidFrom = &past; p.ValidUntil = &future }, true},
		{"approval pending", func(p *models.CommissionPolicy) {
			p.RequiresApproval = true
			p.ApprovalStatus = models.ApprovalStatusPending
		}, false},
		{"approval granted", func(p *models.CommissionPolicy) {
			p.RequiresApproval = true
			p.ApprovalStatus = models.ApprovalStatusApproved
		}, true},
		{"other partner", func(p *models.CommissionPolicy) { p.PartnerID = &otherPartner }, false},
		{"same partner", func(p *models.CommissionPolicy) { id := ctx.PartnerID; p.PartnerID = &id }, true},
		{"other tier", func(p *models.CommissionPolicy) { p.PartnerTier = models.PartnerTierBronze }, false},
		{"category case insensitive", func(p *models.CommissionPolicy) { p.Category = "SkinCare" }, true},
		{"tag overlap", func(p *models.CommissionPolicy) { p.Tags = pq.StringArray{"winter", "summer"} }, true},
		{"no tag overlap", func(p *models.CommissionPolicy) { p.Tags = pq.StringArray{"winter"} }, false},
		{"min amount inclusive", func(p *models.CommissionPolicy) { p.MinOrderAmount = decPtr("50000") }, true},
		{"min amount above", func(p *models.CommissionPolicy) { p.MinOrderAmount = decPtr("50001") }, false},
		{"max amount below", func(p *models.CommissionPolicy) { p.MaxOrderAmount = decPtr("49999") }, false},
		{"new customer only", func(p *models.CommissionPolicy) { p.RequiresNewCustomer = true }, false},
		{"other currency", func(p *models.CommissionPolicy) { p.Currency = "USD" }, false},
		{"condition true", func(p *models.CommissionPolicy) { p.Condition = `order_amount >= 10000.0 && "summer" in tags` }, true},
		{"condition false", func(p *models.CommissionPolicy) { p.Condition = `customer_is_new` }, false},
		{"condition broken", func(p *models.CommissionPolicy) { p.Condition = `order_amount +` }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := activePolicy(tc.name, 1, models.PolicyTypeDefault)
			tc.mutate(&p)
			assert.Equal(t, tc.want, Matches(&p, ctx, resolveNow))
		})
	}
}

func TestSpecificityOrder(t *testing.T) {
	order := []models.PolicyType{
		models.PolicyTypeProduct,
		models.PolicyTypePartner,
		models.PolicyTypeSupplier,
		models.PolicyTypeCategory,
		models.PolicyTypeTier,
		models.PolicyTypePromotional,
		models.PolicyTypeDefault,
	}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, Specificity(order[i-1]), Specificity(order[i]))
	}
}
