// internal/commission/validate.go
package commission

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/partner-engine/internal/models"
)

var one = decimal.NewFromInt(1)

// NormalizeCommissionType maps request and seed-file spellings to the
// canonical commission type.
func NormalizeCommissionType(s string) (models.CommissionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percentage", "percent", "rate":
		return models.CommissionTypePercentage, true
	case "fixed", "flat":
		return models.CommissionTypeFixed, true
	case "tiered", "tier":
		return models.CommissionTypeTiered, true
	}
	return "", false
}

// ValidatePolicy checks authoring rules and returns the first violation as a
// *ValidationError.
func ValidatePolicy(p *models.CommissionPolicy) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", "is required")
	}

	if err := validateScope(p); err != nil {
		return err
	}

	switch p.CommissionType {
	case models.CommissionTypePercentage:
		if !p.Rate.IsPositive() || p.Rate.GreaterThan(one) {
			return invalid("rate", "must be in (0, 1]")
		}
	case models.CommissionTypeFixed:
		if !p.FixedAmount.IsPositive() {
			return invalid("fixed_amount", "must be positive")
		}
	case models.CommissionTypeTiered:
		if err := ValidateTiers(p.Tiers); err != nil {
			return err
		}
	default:
		return invalid("commission_type", "unknown commission type %q", p.CommissionType)
	}

	if p.MinCommission != nil && p.MinCommission.IsNegative() {
		return invalid("min_commission", "must not be negative")
	}
	if p.MaxCommission != nil && p.MaxCommission.IsNegative() {
		return invalid("max_commission", "must not be negative")
	}
	if p.MinCommission != nil && p.MaxCommission != nil && p.MinCommission.GreaterThan(*p.MaxCommission) {
		return invalid("min_commission", "must not exceed max_commission")
	}
	if p.BonusAmount.IsNegative() {
		return invalid("bonus_amount", "must not be negative")
	}

	if p.ValidFrom != nil && p.ValidUntil != nil && !p.ValidFrom.Before(*p.ValidUntil) {
		return invalid("valid_until", "must be after valid_from")
	}
	if p.MinOrderAmount != nil && p.MaxOrderAmount != nil && p.MinOrderAmount.GreaterThan(*p.MaxOrderAmount) {
		return invalid("min_order_amount", "must not exceed max_order_amount")
	}
	if p.MaxUsagePerPartner != nil && *p.MaxUsagePerPartner <= 0 {
		return invalid("max_usage_per_partner", "must be positive")
	}
	if p.MaxUsageTotal != nil && *p.MaxUsageTotal <= 0 {
		return invalid("max_usage_total", "must be positive")
	}

	for _, ex := range p.ExclusiveWith {
		id, err := uuid.Parse(ex)
		if err != nil {
			return invalid("exclusive_with", "%q is not a policy id", ex)
		}
		if id == p.ID {
			return invalid("exclusive_with", "policy cannot exclude itself")
		}
	}

	if p.Condition != "" {
		if _, err := CompileCondition(p.Condition); err != nil {
			return invalid("condition", "%v", err)
		}
	}

	return nil
}

func validateScope(p *models.CommissionPolicy) error {
	switch p.PolicyType {
	case models.PolicyTypeProduct:
		if p.ProductID == nil {
			return invalid("product_id", "is required for product policies")
		}
	case models.PolicyTypePartner:
		if p.PartnerID == nil {
			return invalid("partner_id", "is required for partner policies")
		}
	case models.PolicyTypeSupplier:
		if p.SupplierID == nil {
			return invalid("supplier_id", "is required for supplier policies")
		}
	case models.PolicyTypeCategory:
		if p.Category == "" {
			return invalid("category", "is required for category policies")
		}
	case models.PolicyTypeTier:
		if p.PartnerTier == "" {
			return invalid("partner_tier", "is required for tier_based policies")
		}
	case models.PolicyTypePromotional, models.PolicyTypeDefault:
	default:
		return invalid("policy_type", "unknown policy type %q", p.PolicyType)
	}

	switch p.PartnerTier {
	case "", models.PartnerTierBronze, models.PartnerTierSilver, models.PartnerTierGold, models.PartnerTierPlatinum:
	default:
		return invalid("partner_tier", "unknown tier %q", p.PartnerTier)
	}
	return nil
}

// ValidateTiers requires sorted, contiguous, non-overlapping brackets where
// only the last one may be unbounded.
func ValidateTiers(tiers models.TierBrackets) error {
	if len(tiers) == 0 {
		return invalid("tiers", "tiered policies need at least one bracket")
	}

	for i, b := range tiers {
		if b.MinAmount.IsNegative() {
			return invalid("tiers", "bracket %d: min_amount must not be negative", i)
		}
		if (b.Rate == nil) == (b.Amount == nil) {
			return invalid("tiers", "bracket %d: exactly one of rate and amount is required", i)
		}
		if b.Rate != nil && (!b.Rate.IsPositive() || b.Rate.GreaterThan(one)) {
			return invalid("tiers", "bracket %d: rate must be in (0, 1]", i)
		}
		if b.Amount != nil && !b.Amount.IsPositive() {
			return invalid("tiers", "bracket %d: amount must be positive", i)
		}

		last := i == len(tiers)-1
		if b.MaxAmount == nil {
			if !last {
				return invalid("tiers", "bracket %d: only the last bracket may be unbounded", i)
			}
			continue
		}
		if !b.MaxAmount.GreaterThan(b.MinAmount) {
			return invalid("tiers", "bracket %d: max_amount must exceed min_amount", i)
		}
		if !last && !b.MaxAmount.Equal(tiers[i+1].MinAmount) {
			return invalid("tiers", "bracket %d: max_amount must equal the next bracket's min_amount", i)
		}
	}
	return nil
}
