// internal/commission/calculator_test.go
package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/javajoker/partner-engine/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func tieredPolicy() *models.CommissionPolicy {
	return &models.CommissionPolicy{
		CommissionType: models.CommissionTypeTiered,
		Tiers: models.TierBrackets{
			{MinAmount: dec("0"), MaxAmount: decPtr("100000"), Rate: decPtr("0.05")},
			{MinAmount: dec("100000"), Rate: decPtr("0.08")},
		},
	}
}

func TestCalculatePercentage(t *testing.T) {
	p := &models.CommissionPolicy{CommissionType: models.CommissionTypePercentage, Rate: dec("0.1")}

	b := Calculate(p, dec("250.00"), "USD")

	assert.Equal(t, "25", b.Final.String())
	assert.True(t, b.RateApplied.Equal(dec("0.1")))
	assert.Equal(t, -1, b.BracketIndex)
}

func TestCalculateFixed(t *testing.T) {
	p := &models.CommissionPolicy{CommissionType: models.CommissionTypeFixed, FixedAmount: dec("3000")}

	b := Calculate(p, dec("99999"), "KRW")

	assert.True(t, b.Final.Equal(dec("3000")))
	assert.True(t, b.FixedApplied.Equal(dec("3000")))
}

func TestCalculateRoundsHalfToEven(t *testing.T) {
	p := &models.CommissionPolicy{CommissionType: models.CommissionTypePercentage, Rate: dec("0.05")}

	cases := []struct {
		amount string
		want   string
	}{
		{"10.50", "0.52"}, // 0.525
		{"10.70", "0.54"}, // 0.535
		{"10.10", "0.5"},  // 0.505
	}
	for _, tc := range cases {
		b := Calculate(p, dec(tc.amount), "USD")
		assert.True(t, b.Final.Equal(dec(tc.want)), "amount %s: got %s", tc.amount, b.Final)
	}
}

func TestCalculateZeroDecimalCurrency(t *testing.T) {
	p := &models.CommissionPolicy{CommissionType: models.CommissionTypePercentage, Rate: dec("0.03")}

	b := Calculate(p, dec("12345"), "KRW")

	// 370.35 rounds to 370
	assert.Equal(t, "370", b.Final.String())
}

func TestCalculateTieredClampsToMax(t *testing.T) {
	p := tieredPolicy()
	p.MaxCommission = decPtr("10000")

	b := Calculate(p, dec("150000"), "KRW")

	assert.Equal(t, 1, b.BracketIndex)
	assert.True(t, b.Computed.Equal(dec("10000")), "got %s", b.Computed)
	assert.True(t, b.Final.Equal(dec("10000")))
}

func TestCalculateTieredBoundaryGoesToNextBracket(t *testing.T) {
	b := Calculate(tieredPolicy(), dec("100000"), "KRW")

	assert.Equal(t, 1, b.BracketIndex)
	assert.True(t, b.Final.Equal(dec("8000")), "got %s", b.Final)

	b = Calculate(tieredPolicy(), dec("99999"), "KRW")
	assert.Equal(t, 0, b.BracketIndex)
	assert.True(t, b.Final.Equal(dec("5000")), "got %s", b.Final)
}

func TestCalculateTieredOutsideBrackets(t *testing.T) {
	p := &models.CommissionPolicy{
		CommissionType: models.CommissionTypeTiered,
		Tiers: models.TierBrackets{
			{MinAmount: dec("1000"), MaxAmount: decPtr("5000"), Amount: decPtr("100")},
		},
	}

	b := Calculate(p, dec("500"), "USD")
	assert.Equal(t, -1, b.BracketIndex)
	assert.True(t, b.Final.IsZero())

	b = Calculate(p, dec("1000"), "USD")
	assert.True(t, b.Final.Equal(dec("100")))
}

func TestCalculateMinClampAndBonus(t *testing.T) {
	p := &models.CommissionPolicy{
		CommissionType: models.CommissionTypePercentage,
		Rate:           dec("0.01"),
		MinCommission:  decPtr("5"),
		BonusAmount:    dec("2.50"),
	}

	b := Calculate(p, dec("100"), "USD")

	assert.True(t, b.Computed.Equal(dec("5")))
	assert.True(t, b.Bonus.Equal(dec("2.5")))
	assert.True(t, b.Final.Equal(dec("7.5")))
}

func TestClampOpenBounds(t *testing.T) {
	assert.True(t, Clamp(dec("7"), nil, nil).Equal(dec("7")))
	assert.True(t, Clamp(dec("7"), decPtr("10"), nil).Equal(dec("10")))
	assert.True(t, Clamp(dec("7"), nil, decPtr("3")).Equal(dec("3")))
}
