// internal/database/seed.go
package database

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/javajoker/partner-engine/internal/commission"
	"github.com/javajoker/partner-engine/internal/models"
)

type policySeedFile struct {
	Policies []policySeed `yaml:"policies"`
}

type tierSeed struct {
	MinAmount string `yaml:"min_amount"`
	MaxAmount string `yaml:"max_amount"`
	Rate      string `yaml:"rate"`
	Amount    string `yaml:"amount"`
}

type policySeed struct {
	Name                string     `yaml:"name"`
	Description         string     `yaml:"description"`
	PolicyType          string     `yaml:"policy_type"`
	PartnerID           string     `yaml:"partner_id"`
	PartnerTier         string     `yaml:"partner_tier"`
	ProductID           string     `yaml:"product_id"`
	SupplierID          string     `yaml:"supplier_id"`
	Category            string     `yaml:"category"`
	Tags                []string   `yaml:"tags"`
	MinOrderAmount      string     `yaml:"min_order_amount"`
	MaxOrderAmount      string     `yaml:"max_order_amount"`
	RequiresNewCustomer bool       `yaml:"requires_new_customer"`
	Condition           string     `yaml:"condition"`
	ValidFrom           *time.Time `yaml:"valid_from"`
	ValidUntil          *time.Time `yaml:"valid_until"`
	CommissionType      string     `yaml:"commission_type"`
	Rate                string     `yaml:"rate"`
	FixedAmount         string     `yaml:"fixed_amount"`
	Tiers               []tierSeed `yaml:"tiers"`
	MinCommission       string     `yaml:"min_commission"`
	MaxCommission       string     `yaml:"max_commission"`
	BonusAmount         string     `yaml:"bonus_amount"`
	Currency            string     `yaml:"currency"`
	Priority            int        `yaml:"priority"`
	MaxUsagePerPartner  *int       `yaml:"max_usage_per_partner"`
	MaxUsageTotal       *int       `yaml:"max_usage_total"`
	Stackable           bool       `yaml:"stackable"`
	ExclusiveWith       []string   `yaml:"exclusive_with"`
	Status              string     `yaml:"status"`
	RequiresApproval    bool       `yaml:"requires_approval"`
}

// ParsePolicySeed decodes and validates a YAML policy seed document. The
// legacy "rate" commission type is accepted and stored as "percentage".
func ParsePolicySeed(data []byte) ([]models.CommissionPolicy, error) {
	var file policySeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy seed: %w", err)
	}

	policies := make([]models.CommissionPolicy, 0, len(file.Policies))
	for i, seed := range file.Policies {
		policy, err := seed.toModel()
		if err != nil {
			return nil, fmt.Errorf("policy %d (%s): %w", i, seed.Name, err)
		}
		if err := commission.ValidatePolicy(policy); err != nil {
			return nil, fmt.Errorf("policy %d (%s): %w", i, seed.Name, err)
		}
		policies = append(policies, *policy)
	}
	return policies, nil
}

func (s policySeed) toModel() (*models.CommissionPolicy, error) {
	commissionType, ok := commission.NormalizeCommissionType(s.CommissionType)
	if !ok {
		return nil, fmt.Errorf("unknown commission type %q", s.CommissionType)
	}

	p := &models.CommissionPolicy{
		Name:                s.Name,
		Description:         s.Description,
		PolicyType:          models.PolicyType(strings.ToLower(s.PolicyType)),
		PartnerTier:         models.PartnerTier(strings.ToLower(s.PartnerTier)),
		Category:            s.Category,
		Tags:                s.Tags,
		RequiresNewCustomer: s.RequiresNewCustomer,
		Condition:           s.Condition,
		ValidFrom:           s.ValidFrom,
		ValidUntil:          s.ValidUntil,
		CommissionType:      commissionType,
		Currency:            strings.ToUpper(s.Currency),
		Priority:            s.Priority,
		MaxUsagePerPartner:  s.MaxUsagePerPartner,
		MaxUsageTotal:       s.MaxUsageTotal,
		Stackable:           s.Stackable,
		ExclusiveWith:       s.ExclusiveWith,
		Status:              models.PolicyStatus(strings.ToLower(s.Status)),
		RequiresApproval:    s.RequiresApproval,
		ApprovalStatus:      models.ApprovalStatusNone,
		CreatedBy:           "seed",
		Version:             1,
	}
	if p.PolicyType == "" {
		p.PolicyType = models.PolicyTypeDefault
	}
	if p.Status == "" {
		p.Status = models.PolicyStatusActive
	}

	var err error
	ids := []struct {
		raw string
		dst **uuid.UUID
	}{{s.PartnerID, &p.PartnerID}, {s.ProductID, &p.ProductID}, {s.SupplierID, &p.SupplierID}}
	for _, id := range ids {
		if *id.dst, err = optionalUUID(id.raw); err != nil {
			return nil, err
		}
	}

	if p.Rate, err = decimalOrZero(s.Rate); err != nil {
		return nil, err
	}
	if p.FixedAmount, err = decimalOrZero(s.FixedAmount); err != nil {
		return nil, err
	}
	if p.BonusAmount, err = decimalOrZero(s.BonusAmount); err != nil {
		return nil, err
	}

	optional := []struct {
		raw string
		dst **decimal.Decimal
	}{
		{s.MinOrderAmount, &p.MinOrderAmount},
		{s.MaxOrderAmount, &p.MaxOrderAmount},
		{s.MinCommission, &p.MinCommission},
		{s.MaxCommission, &p.MaxCommission},
	}
	for _, o := range optional {
		if *o.dst, err = optionalDecimal(o.raw); err != nil {
			return nil, err
		}
	}

	for _, t := range s.Tiers {
		bracket := models.TierBracket{}
		if bracket.MinAmount, err = decimalOrZero(t.MinAmount); err != nil {
			return nil, err
		}
		if bracket.MaxAmount, err = optionalDecimal(t.MaxAmount); err != nil {
			return nil, err
		}
		if bracket.Rate, err = optionalDecimal(t.Rate); err != nil {
			return nil, err
		}
		if bracket.Amount, err = optionalDecimal(t.Amount); err != nil {
			return nil, err
		}
		p.Tiers = append(p.Tiers, bracket)
	}

	return p, nil
}

func decimalOrZero(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q", raw)
	}
	return d, nil
}

func optionalDecimal(raw string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := decimalOrZero(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid uuid %q", raw)
	}
	return &id, nil
}

// SeedPolicies inserts policies from the seed file whose names are not yet
// present. Existing policies are never overwritten.
func SeedPolicies(db *gorm.DB, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logrus.WithField("path", path).Warn("Policy seed file not found, skipping")
			return nil
		}
		return fmt.Errorf("failed to read policy seed: %w", err)
	}

	policies, err := ParsePolicySeed(data)
	if err != nil {
		return err
	}

	created := 0
	for i := range policies {
		var count int64
		if err := db.Model(&models.CommissionPolicy{}).Where("name = ?", policies[i].Name).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check policy %s: %w", policies[i].Name, err)
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&policies[i]).Error; err != nil {
			return fmt.Errorf("failed to seed policy %s: %w", policies[i].Name, err)
		}
		created++
	}

	logrus.WithFields(logrus.Fields{"path": path, "created": created, "total": len(policies)}).Info("Policy seed applied")
	return nil
}
