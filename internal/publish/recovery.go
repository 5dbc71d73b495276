// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/screenline/internal/database"
	"github.com/tomtom215/screenline/internal/events"
	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/models"
)

// recoveryGrace is added to the attempt timeout so a slow settle write of a
// live attempt is not mistaken for an abandoned one.
const recoveryGrace = 2 * time.Minute

// RecoverAbandoned fails every plan that has been PUBLISHING for longer than
// the attempt timeout. The change goes through the store's compare-and-set,
// so an attempt that settles at the same moment wins. It returns the number
// of plans failed.
func (o *Orchestrator) RecoverAbandoned(ctx context.Context) (int, error) {
	plans, err := o.store.ListPlans(ctx, models.PlanFilter{State: models.PlanPublishing})
	if err != nil {
		return 0, fmt.Errorf("list publishing plans: %w", err)
	}

	cutoff := o.opts.AttemptTimeout + recoveryGrace
	now := o.now()
	recovered := 0
	for _, plan := range plans {
		if plan.State != models.PlanPublishing {
			continue
		}
		started := plan.UpdatedAt
		if plan.PublishingAt != nil {
			started = *plan.PublishingAt
		}
		if now.Sub(started) < cutoff {
			continue
		}

		log := o.log.With().Str("plan_id", plan.ID).Time("publishing_at", started).Logger()
		plan.SetError(CodeInternal,
			fmt.Sprintf("publish attempt started at %s never settled", started.UTC().Format(time.RFC3339)), "")
		if err := o.transition(ctx, plan, models.PlanFailed); err != nil {
			if errors.Is(err, database.ErrVersionConflict) {
				log.Debug().Msg("Abandoned plan changed concurrently; skipping")
				continue
			}
			return recovered, fmt.Errorf("fail abandoned plan %s: %w", plan.ID, err)
		}
		recovered++
		log.Warn().Msg("Failed abandoned publish attempt")
		o.alert(ctx, plan, models.AlertPublishFailed, models.SeverityCritical,
			fmt.Sprintf("Plan %s: %s", plan.ID, plan.LastErrorMessage))
		o.emit(ctx, plan, events.TypePlanFailed, nil)
	}
	return recovered, nil
}

// RecoveryService runs RecoverAbandoned under suture.
type RecoveryService struct {
	orch     *Orchestrator
	interval time.Duration
}

// NewRecoveryService creates the service. A non-positive interval means one
// minute.
func NewRecoveryService(orch *Orchestrator, interval time.Duration) *RecoveryService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RecoveryService{orch: orch, interval: interval}
}

// Serve implements suture.Service. Plans left PUBLISHING by a previous run
// are swept immediately.
func (s *RecoveryService) Serve(ctx context.Context) error {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *RecoveryService) String() string { return "publish-recovery" }

func (s *RecoveryService) sweep(ctx context.Context) {
	n, err := s.orch.RecoverAbandoned(ctx)
	if err != nil && ctx.Err() == nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Abandoned plan sweep failed")
		return
	}
	if n > 0 {
		logging.Ctx(ctx).Info().Int("plans", n).Msg("Failed abandoned publish attempts")
	}
}
