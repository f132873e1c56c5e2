// internal/services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/config"
)

// Scheduler runs the periodic jobs: confirming commissions whose hold period
// has ended and moving policies through their validity window.
type Scheduler struct {
	commissions *CommissionService
	policies    *PolicyService
	config      config.SchedulerConfig
}

func NewScheduler(commissions *CommissionService, policies *PolicyService, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{commissions: commissions, policies: policies, config: cfg}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	confirm := time.NewTicker(s.config.ConfirmInterval)
	defer confirm.Stop()
	refresh := time.NewTicker(s.config.PolicyInterval)
	defer refresh.Stop()

	s.refreshPolicies(ctx)
	s.confirmCommissions(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-confirm.C:
			s.confirmCommissions(ctx)
		case <-refresh.C:
			s.refreshPolicies(ctx)
		}
	}
}

func (s *Scheduler) confirmCommissions(ctx context.Context) {
	n, err := s.commissions.ConfirmDue(ctx, time.Now(), s.config.ConfirmBatch)
	if err != nil {
		logrus.WithError(err).Error("Commission confirmation run failed")
		return
	}
	if n > 0 {
		logrus.WithField("confirmed", n).Info("Confirmed commissions past their hold period")
	}
}

func (s *Scheduler) refreshPolicies(ctx context.Context) {
	activated, expired, err := s.policies.RefreshStatuses(ctx, time.Now())
	if err != nil {
		logrus.WithError(err).Error("Policy status refresh failed")
		return
	}
	if activated > 0 || expired > 0 {
		logrus.WithFields(logrus.Fields{"activated": activated, "expired": expired}).Info("Policy statuses refreshed")
	}
}
