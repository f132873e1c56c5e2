// internal/commission/calculator.go
package commission

import (
	"github.com/shopspring/decimal"

	"github.com/javajoker/partner-engine/internal/models"
)

// Breakdown is the result of applying a policy to an order amount.
type Breakdown struct {
	CommissionType models.CommissionType `json:"commission_type"`
	BaseAmount     decimal.Decimal       `json:"base_amount"`
	RateApplied    decimal.Decimal       `json:"rate_applied"`
	FixedApplied   decimal.Decimal       `json:"fixed_applied"`
	BracketIndex   int                   `json:"bracket_index"`
	Computed       decimal.Decimal       `json:"computed"`
	Bonus          decimal.Decimal       `json:"bonus"`
	Final          decimal.Decimal       `json:"final"`
	Currency       string                `json:"currency"`
}

// Calculate applies policy to amount. The raw commission is clamped to the
// policy's min/max, then rounded half to even to the currency minor unit. The
// bonus is added after clamping.
func Calculate(policy *models.CommissionPolicy, amount decimal.Decimal, currency string) Breakdown {
	b := Breakdown{
		CommissionType: policy.CommissionType,
		BaseAmount:     amount,
		RateApplied:    decimal.Zero,
		FixedApplied:   decimal.Zero,
		BracketIndex:   -1,
		Currency:       currency,
	}

	raw := decimal.Zero
	switch policy.CommissionType {
	case models.CommissionTypePercentage:
		b.RateApplied = policy.Rate
		raw = amount.Mul(policy.Rate)
	case models.CommissionTypeFixed:
		b.FixedApplied = policy.FixedAmount
		raw = policy.FixedAmount
	case models.CommissionTypeTiered:
		for i, bracket := range policy.Tiers {
			if !bracket.Contains(amount) {
				continue
			}
			b.BracketIndex = i
			if bracket.Rate != nil {
				b.RateApplied = *bracket.Rate
				raw = amount.Mul(*bracket.Rate)
			} else if bracket.Amount != nil {
				b.FixedApplied = *bracket.Amount
				raw = *bracket.Amount
			}
			break
		}
	}

	b.Computed = Round(Clamp(raw, policy.MinCommission, policy.MaxCommission), currency)
	b.Bonus = Round(policy.BonusAmount, currency)
	b.Final = b.Computed.Add(b.Bonus)
	return b
}
