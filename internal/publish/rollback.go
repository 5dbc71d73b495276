// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package publish

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/screenline/internal/database"
	"github.com/tomtom215/screenline/internal/events"
	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/metrics"
	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/signage"
	"github.com/tomtom215/screenline/internal/yodeck"
)

// Rollback removes the plan's media from every target playlist, leaving the
// screen's neutral content, and pushes the screen. The plan always ends
// ROLLED_BACK; when some targets failed the rollback report is kept and the
// last error is ROLLBACK_PARTIAL.
//
// The rollback is claimed on the plan through the store's compare-and-set
// before any remote change, so of two concurrent rollbacks only one touches
// the platform. A claim older than the attempt timeout is considered dead and
// may be taken over.
func (o *Orchestrator) Rollback(ctx context.Context, id string) (*models.PlacementPlan, error) {
	ctx = withCorrelation(ctx)
	log := logging.Ctx(ctx).With().Str("plan_id", id).Str("operation", OpRollback).Logger()

	plan, err := o.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.check(plan, models.PlanRolledBack, OpRollback); err != nil {
		return nil, err
	}
	if s := plan.RollbackStartedAt; s != nil && o.now().Sub(*s) < o.opts.AttemptTimeout {
		metrics.PublishConflicts.Inc()
		return nil, fmt.Errorf("rollback plan %s: %w", plan.ID, ErrAlreadyProcessing)
	}
	platform, err := o.platforms.Platform(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.claimRollback(ctx, plan); err != nil {
		return nil, err
	}
	log.Info().Int("targets", len(plan.ApprovedTargets)).Msg("Rolling back plan")

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.AttemptTimeout)
	defer cancel()

	start := o.now()
	report, runErr := o.safeRun(func() *models.PublishReport {
		return o.runRollback(runCtx, platform, plan)
	})
	if runErr != nil {
		report = &models.PublishReport{Operation: OpRollback, StartedAt: start.UTC(), FinishedAt: o.now().UTC()}
		plan.SetError(CodeInternal, runErr.Error(), "")
	}
	report.Attempt = plan.RetryCount
	plan.RollbackReport = report
	metrics.RecordPublishAttempt(OpRollback, report.SuccessCount, report.FailedCount, o.now().Sub(start))

	partial := runErr == nil && !report.AllSucceeded()
	if partial {
		plan.SetError(CodeRollbackPartial,
			fmt.Sprintf("%d/%d targets failed to roll back", report.FailedCount, report.TotalTargets),
			firstFailure(report))
	}

	settleCtx, settleCancel := o.settleContext(ctx)
	defer settleCancel()

	if err := o.settle(settleCtx, plan, models.PlanRolledBack); err != nil {
		if errors.Is(err, database.ErrVersionConflict) {
			metrics.PublishConflicts.Inc()
			return nil, fmt.Errorf("rollback plan %s: %w", plan.ID, ErrAlreadyProcessing)
		}
		return nil, fmt.Errorf("record rolled back plan %s: %w", plan.ID, err)
	}

	if partial || runErr != nil {
		log.Warn().Int("failed", report.FailedCount).Msg("Plan rolled back partially")
		o.alert(settleCtx, plan, models.AlertRollbackPartial, models.SeverityWarning,
			fmt.Sprintf("Plan %s: %s", plan.ID, plan.LastErrorMessage))
	} else {
		log.Info().Int("targets", report.TotalTargets).Msg("Plan rolled back")
	}
	o.emit(settleCtx, plan, events.TypePlanRolledBack, report)
	return plan, nil
}

// claimRollback stamps RollbackStartedAt through the store's compare-and-set.
func (o *Orchestrator) claimRollback(ctx context.Context, plan *models.PlacementPlan) error {
	at := o.now().UTC()
	plan.RollbackStartedAt = &at
	plan.UpdatedAt = at
	err := o.store.SavePlan(ctx, plan)
	if err == nil {
		return nil
	}
	plan.RollbackStartedAt = nil
	if errors.Is(err, database.ErrVersionConflict) {
		metrics.PublishConflicts.Inc()
		return fmt.Errorf("rollback plan %s: %w", plan.ID, ErrAlreadyProcessing)
	}
	return fmt.Errorf("claim rollback of plan %s: %w", plan.ID, err)
}

func (o *Orchestrator) runRollback(ctx context.Context, platform *signage.Platform, plan *models.PlacementPlan) *models.PublishReport {
	remove := map[int]bool{plan.AssetMediaID: true}
	if plan.PublishedMediaID != 0 {
		remove[plan.PublishedMediaID] = true
	}

	report := &models.PublishReport{Operation: OpRollback, StartedAt: o.now().UTC()}
	results := make([]models.TargetResult, len(plan.ApprovedTargets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.TargetConcurrency)
	for i, target := range plan.ApprovedTargets {
		g.Go(func() (err error) {
			defer recoverInto(&err)
			results[i] = o.rollbackTarget(gctx, platform, target, remove)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		panic(err)
	}

	report.Targets = results
	report.FinishedAt = o.now().UTC()
	report.Tally()
	return report
}

func (o *Orchestrator) rollbackTarget(ctx context.Context, platform *signage.Platform, target models.Target, remove map[int]bool) models.TargetResult {
	result := models.TargetResult{
		TargetScreenID: target.ScreenID,
		PlaylistID:     target.PlaylistID,
		LocationID:     target.LocationID,
	}

	_, err := platform.EditPlaylistItems(ctx, target.PlaylistID, func(current *yodeck.Playlist) ([]yodeck.PlaylistItemInput, bool) {
		kept := make([]yodeck.PlaylistItemInput, 0, len(current.Items))
		for _, it := range current.Items {
			if it.Type == yodeck.SourceMedia && remove[it.ID] {
				continue
			}
			kept = append(kept, it.Input())
		}
		return kept, len(kept) != len(current.Items)
	})
	switch {
	case yodeck.IsNotFound(err):
		// A deleted playlist no longer plays the asset.
	case err != nil:
		return failed(result, err)
	default:
		err := verifyPlaylist(ctx, platform, target.PlaylistID, func(pl *yodeck.Playlist) bool {
			for _, it := range pl.Items {
				if it.Type == yodeck.SourceMedia && remove[it.ID] {
					return false
				}
			}
			return true
		})
		if err != nil && !yodeck.IsNotFound(err) {
			return failed(result, err)
		}
	}

	if err := platform.PushScreen(ctx, target.ScreenID, o.opts.UseDownloadSlots); err != nil {
		return failed(result, err)
	}
	result.Pushed = true
	result.Status = models.TargetSuccess
	return result
}

func firstFailure(report *models.PublishReport) string {
	for _, t := range report.Targets {
		if t.Status == models.TargetFailed {
			return fmt.Sprintf("screen %d: %s", t.TargetScreenID, t.Error)
		}
	}
	return ""
}
