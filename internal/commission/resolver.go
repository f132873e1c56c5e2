// internal/commission/resolver.go
package commission

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/partner-engine/internal/models"
)

// Context is everything the resolver knows about the conversion being priced.
type Context struct {
	PartnerID        uuid.UUID
	PartnerTier      models.PartnerTier
	ProductID        *uuid.UUID
	SupplierID       *uuid.UUID
	Category         string
	Tags             []string
	OrderAmount      decimal.Decimal
	Currency         string
	CustomerIsNew    bool
	PartnerUsage     map[uuid.UUID]int // per-policy usage by this partner
	AppliedPolicyIDs []uuid.UUID
}

type ExclusionReason string

const (
	ExclusionPartnerCap ExclusionReason = "partner_usage_cap"
	ExclusionTotalCap   ExclusionReason = "total_usage_cap"
	ExclusionStacking   ExclusionReason = "exclusive_with_applied"
	ExclusionCondition  ExclusionReason = "condition_error"
)

type Exclusion struct {
	PolicyID uuid.UUID       `json:"policy_id"`
	Reason   ExclusionReason `json:"reason"`
	Detail   string          `json:"detail,omitempty"`
}

// Resolution is the outcome of Resolve. A nil Policy means no commission.
type Resolution struct {
	Policy   *models.CommissionPolicy
	Excluded []Exclusion
}

// CapExceeded reports whether any policy was skipped for a usage cap.
func (r *Resolution) CapExceeded() bool {
	for _, e := range r.Excluded {
		if e.Reason == ExclusionPartnerCap || e.Reason == ExclusionTotalCap {
			return true
		}
	}
	return false
}

// ConditionErrors lists policies whose condition failed to evaluate.
func (r *Resolution) ConditionErrors() []Exclusion {
	var out []Exclusion
	for _, e := range r.Excluded {
		if e.Reason == ExclusionCondition {
			out = append(out, e)
		}
	}
	return out
}

var specificityRank = map[models.PolicyType]int{
	models.PolicyTypeProduct:     7,
	models.PolicyTypePartner:     6,
	models.PolicyTypeSupplier:    5,
	models.PolicyTypeCategory:    4,
	models.PolicyTypeTier:        3,
	models.PolicyTypePromotional: 2,
	models.PolicyTypeDefault:     1,
}

// Specificity ranks a policy type: product > partner > supplier > category >
// tier_based > promotional > default.
func Specificity(t models.PolicyType) int {
	return specificityRank[t]
}

// Resolve picks the single policy that governs ctx at now. It is a pure
// function of its inputs.
func Resolve(candidates []models.CommissionPolicy, ctx Context, now time.Time) (*Resolution, error) {
	res := &Resolution{}
	eligible := make([]*models.CommissionPolicy, 0, len(candidates))
	for i := range candidates {
		ok, err := match(&candidates[i], ctx, now)
		if err != nil {
			res.Excluded = append(res.Excluded, Exclusion{
				PolicyID: candidates[i].ID,
				Reason:   ExclusionCondition,
				Detail:   err.Error(),
			})
			continue
		}
		if ok {
			eligible = append(eligible, &candidates[i])
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if sa, sb := Specificity(a.PolicyType), Specificity(b.PolicyType); sa != sb {
			return sa > sb
		}
		return a.ID.String() < b.ID.String()
	})

	for len(eligible) > 0 {
		winner := eligible[0]

		tied := []uuid.UUID{winner.ID}
		for _, p := range eligible[1:] {
			if p.Priority != winner.Priority || Specificity(p.PolicyType) != Specificity(winner.PolicyType) {
				break
			}
			tied = append(tied, p.ID)
		}
		if len(tied) > 1 {
			return nil, &PolicyConflictError{
				PolicyIDs:   tied,
				Priority:    winner.Priority,
				Specificity: Specificity(winner.PolicyType),
			}
		}

		if reason, ok := capped(winner, ctx); ok {
			res.Excluded = append(res.Excluded, Exclusion{PolicyID: winner.ID, Reason: reason})
			eligible = eligible[1:]
			continue
		}

		if blockedByStacking(winner, ctx.AppliedPolicyIDs) {
			res.Excluded = append(res.Excluded, Exclusion{PolicyID: winner.ID, Reason: ExclusionStacking})
			eligible = eligible[1:]
			continue
		}

		res.Policy = winner
		return res, nil
	}

	return res, nil
}

// Matches reports whether p is active at now and all of its scope predicates
// accept ctx. A condition that fails to evaluate does not match.
func Matches(p *models.CommissionPolicy, ctx Context, now time.Time) bool {
	ok, err := match(p, ctx, now)
	return ok && err == nil
}

// match returns an error only when an otherwise matching policy's condition
// cannot be evaluated.
func match(p *models.CommissionPolicy, ctx Context, now time.Time) (bool, error) {
	if p.Status != models.PolicyStatusActive {
		return false, nil
	}
	if p.RequiresApproval && p.ApprovalStatus != models.ApprovalStatusApproved {
		return false, nil
	}
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false, nil
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false, nil
	}

	if p.PartnerID != nil && *p.PartnerID != ctx.PartnerID {
		return false, nil
	}
	if p.PartnerTier != "" && p.PartnerTier != ctx.PartnerTier {
		return false, nil
	}
	if p.ProductID != nil && (ctx.ProductID == nil || *p.ProductID != *ctx.ProductID) {
		return false, nil
	}
	if p.SupplierID != nil && (ctx.SupplierID == nil || *p.SupplierID != *ctx.SupplierID) {
		return false, nil
	}
	if p.Category != "" && !strings.EqualFold(p.Category, ctx.Category) {
		return false, nil
	}
	if len(p.Tags) > 0 && !overlaps(p.Tags, ctx.Tags) {
		return false, nil
	}
	if p.Currency != "" && !strings.EqualFold(p.Currency, ctx.Currency) {
		return false, nil
	}
	if p.MinOrderAmount != nil && ctx.OrderAmount.LessThan(*p.MinOrderAmount) {
		return false, nil
	}
	if p.MaxOrderAmount != nil && ctx.OrderAmount.GreaterThan(*p.MaxOrderAmount) {
		return false, nil
	}
	if p.RequiresNewCustomer && !ctx.CustomerIsNew {
		return false, nil
	}
	if p.Condition != "" {
		return EvaluateCondition(p.Condition, ctx)
	}
	return true, nil
}

func capped(p *models.CommissionPolicy, ctx Context) (ExclusionReason, bool) {
	if p.MaxUsagePerPartner != nil && ctx.PartnerUsage[p.ID] >= *p.MaxUsagePerPartner {
		return ExclusionPartnerCap, true
	}
	if p.MaxUsageTotal != nil && p.CurrentUsageCount >= *p.MaxUsageTotal {
		return ExclusionTotalCap, true
	}
	return "", false
}

func blockedByStacking(p *models.CommissionPolicy, applied []uuid.UUID) bool {
	if p.Stackable || len(p.ExclusiveWith) == 0 {
		return false
	}
	for _, id := range applied {
		for _, ex := range p.ExclusiveWith {
			if strings.EqualFold(ex, id.String()) {
				return true
			}
		}
	}
	return false
}

func overlaps(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}
