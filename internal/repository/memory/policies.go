// internal/repository/memory/policies.go
package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
)

type policyRepo struct{ s *Store }

func (r policyRepo) Create(_ context.Context, policy *models.CommissionPolicy) error {
	defer r.s.lock()()
	r.s.stamp(&policy.BaseModel)
	if _, ok := r.s.data.policies[policy.ID]; ok {
		return repository.ErrDuplicate
	}
	if policy.Version == 0 {
		policy.Version = 1
	}
	r.s.data.policies[policy.ID] = *policy
	return nil
}

func (r policyRepo) GetByID(_ context.Context, id uuid.UUID) (*models.CommissionPolicy, error) {
	defer r.s.lock()()
	row, ok := r.s.data.policies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r policyRepo) Update(_ context.Context, policy *models.CommissionPolicy) error {
	defer r.s.lock()()
	stored, ok := r.s.data.policies[policy.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != policy.Version {
		return repository.ErrVersionConflict
	}
	policy.Version++
	policy.CurrentUsageCount = stored.CurrentUsageCount
	r.s.touch(&policy.BaseModel)
	r.s.data.policies[policy.ID] = *policy
	return nil
}

func (r policyRepo) ListActive(ctx context.Context) ([]models.CommissionPolicy, error) {
	return r.ListByStatus(ctx, models.PolicyStatusActive)
}

func (r policyRepo) ListByStatus(_ context.Context, statuses ...models.PolicyStatus) ([]models.CommissionPolicy, error) {
	defer r.s.lock()()
	rows := make([]models.CommissionPolicy, 0)
	for _, p := range r.s.data.policies {
		for _, st := range statuses {
			if p.Status == st {
				rows = append(rows, p)
				break
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID.String() < rows[j].ID.String() })
	return rows, nil
}

func (r policyRepo) List(_ context.Context, filter repository.PolicyFilter) ([]models.CommissionPolicy, int64, error) {
	defer r.s.lock()()
	rows := make([]models.CommissionPolicy, 0)
	for _, p := range r.s.data.policies {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.PolicyType != nil && p.PolicyType != *filter.PolicyType {
			continue
		}
		if filter.ApprovalStatus != nil && p.ApprovalStatus != *filter.ApprovalStatus {
			continue
		}
		if filter.PartnerID != nil && (p.PartnerID == nil || *p.PartnerID != *filter.PartnerID) {
			continue
		}
		rows = append(rows, p)
	}
	newestFirst(rows, func(p models.CommissionPolicy) time.Time { return p.CreatedAt })
	return paginate(rows, filter.PaginationParams), int64(len(rows)), nil
}

func (r policyRepo) PartnerUsage(_ context.Context, partnerID uuid.UUID) (map[uuid.UUID]int, error) {
	defer r.s.lock()()
	out := map[uuid.UUID]int{}
	for key, u := range r.s.data.usages {
		if key.partnerID == partnerID {
			out[key.policyID] = u.Count
		}
	}
	return out, nil
}

func (r policyRepo) IncrementUsage(_ context.Context, policyID, partnerID uuid.UUID, expectedVersion int) error {
	defer r.s.lock()()
	policy, ok := r.s.data.policies[policyID]
	if !ok {
		return repository.ErrNotFound
	}
	if policy.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	if policy.MaxUsageTotal != nil && policy.CurrentUsageCount >= *policy.MaxUsageTotal {
		return repository.ErrUsageCapReached
	}

	key := usageKey{policyID: policyID, partnerID: partnerID}
	usage := r.s.data.usages[key]
	if policy.MaxUsagePerPartner != nil && usage.Count >= *policy.MaxUsagePerPartner {
		return repository.ErrUsageCapReached
	}

	usage.PolicyID = policyID
	usage.PartnerID = partnerID
	usage.Count++
	usage.UpdatedAt = r.s.now()
	r.s.data.usages[key] = usage

	policy.CurrentUsageCount++
	policy.Version++
	r.s.data.policies[policyID] = policy
	return nil
}
