// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package publish

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/screenline/internal/events"
	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/media"
	"github.com/tomtom215/screenline/internal/metrics"
	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/signage"
	"github.com/tomtom215/screenline/internal/yodeck"
)

// Operation names used in reports and metrics.
const (
	OpPublish  = "publish"
	OpRetry    = "retry"
	OpRollback = "rollback"
)

// Publish places the plan's asset on every approved target. The returned plan
// is PUBLISHED or FAILED; a FAILED plan is not an error.
func (o *Orchestrator) Publish(ctx context.Context, id string) (*models.PlacementPlan, error) {
	return o.publish(ctx, id, models.PlanApproved, OpPublish)
}

// Retry re-publishes every approved target of a FAILED plan. Targets that
// already carry the asset are left untouched.
func (o *Orchestrator) Retry(ctx context.Context, id string) (*models.PlacementPlan, error) {
	return o.publish(ctx, id, models.PlanFailed, OpRetry)
}

func (o *Orchestrator) publish(ctx context.Context, id string, from models.PlanState, op string) (*models.PlacementPlan, error) {
	ctx = withCorrelation(ctx)
	log := logging.Ctx(ctx).With().Str("plan_id", id).Str("operation", op).Logger()

	plan, err := o.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.check(plan, models.PlanPublishing, op); err != nil {
		return nil, err
	}
	if plan.State != from {
		return nil, fmt.Errorf("%s plan %s in state %s: %w", op, plan.ID, plan.State, ErrInvalidState)
	}

	platform, err := o.platforms.Platform(ctx)
	if err != nil {
		return nil, err
	}

	if op == OpRetry {
		plan.RetryCount++
	} else {
		plan.RetryCount = 0
	}
	if err := o.enterPublishing(ctx, plan); err != nil {
		return nil, err
	}
	log.Info().Int("targets", len(plan.ApprovedTargets)).Int("retry_count", plan.RetryCount).Msg("Publishing plan")

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.AttemptTimeout)
	defer cancel()

	start := o.now()
	report, runErr := o.safeRun(func() *models.PublishReport {
		return o.runPublish(runCtx, platform, plan, op)
	})

	settleCtx, settleCancel := o.settleContext(ctx)
	defer settleCancel()

	if runErr != nil {
		log.Error().Err(runErr).Msg("Publish attempt crashed")
		plan.SetError(CodeInternal, runErr.Error(), "")
		if err := o.settle(settleCtx, plan, models.PlanFailed); err != nil {
			return nil, fmt.Errorf("record failed plan %s: %w", plan.ID, err)
		}
		o.alert(settleCtx, plan, models.AlertPublishFailed, models.SeverityCritical,
			fmt.Sprintf("Publish of plan %s failed unexpectedly: %v", plan.ID, runErr))
		o.emit(settleCtx, plan, events.TypePlanFailed, nil)
		return plan, nil
	}

	report.Attempt = plan.RetryCount
	plan.PublishReport = report
	metrics.RecordPublishAttempt(op, report.SuccessCount, report.FailedCount, o.now().Sub(start))

	if report.AllSucceeded() {
		plan.SetError("", "", "")
		if err := o.settle(settleCtx, plan, models.PlanPublished); err != nil {
			return nil, fmt.Errorf("record published plan %s: %w", plan.ID, err)
		}
		log.Info().Int("targets", report.TotalTargets).Msg("Plan published")
		o.emit(settleCtx, plan, events.TypePlanPublished, report)
		return plan, nil
	}

	code, msg, details := failureSummary(report)
	plan.SetError(code, msg, details)
	if err := o.settle(settleCtx, plan, models.PlanFailed); err != nil {
		return nil, fmt.Errorf("record failed plan %s: %w", plan.ID, err)
	}
	log.Warn().Int("succeeded", report.SuccessCount).Int("failed", report.FailedCount).Msg("Plan publish failed")
	o.alert(settleCtx, plan, models.AlertPublishFailed, models.SeverityWarning,
		fmt.Sprintf("Plan %s: %s", plan.ID, msg))
	o.emit(settleCtx, plan, events.TypePlanFailed, report)
	return plan, nil
}

// safeRun turns a panic inside fn into an error.
func (o *Orchestrator) safeRun(fn func() *models.PublishReport) (report *models.PublishReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Recovered from panic")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(), nil
}

// recoverInto turns a panic in a target goroutine into err so the waiting
// goroutine can re-raise it where safeRun recovers it.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("target panic: %v\n%s", r, debug.Stack())
	}
}

// runPublish fans out over the approved targets. The asset is resolved once
// per attempt; the first target to need it triggers the resolution.
func (o *Orchestrator) runPublish(ctx context.Context, platform *signage.Platform, plan *models.PlacementPlan, op string) *models.PublishReport {
	resolver := media.NewResolver(platform, o.opts.Media)
	resolve := sync.OnceValues(func() (*media.Resolution, error) {
		return resolver.EnsureReady(ctx, plan.AssetMediaID, plan.AssetName, plan.SearchNames)
	})

	duration := plan.ItemDuration
	if duration <= 0 {
		duration = o.opts.ItemDuration
	}

	report := &models.PublishReport{Operation: op, StartedAt: o.now().UTC()}
	results := make([]models.TargetResult, len(plan.ApprovedTargets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.TargetConcurrency)
	for i, target := range plan.ApprovedTargets {
		g.Go(func() (err error) {
			defer recoverInto(&err)
			results[i] = o.publishTarget(gctx, platform, target, duration, resolve)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		panic(err)
	}

	for _, r := range results {
		if r.Status == models.TargetSuccess && r.MediaResolution != nil {
			if res, ok := r.MediaResolution.(*media.Resolution); ok && res.Resolved() {
				plan.PublishedMediaID = *res.ResolvedID
			}
		}
	}

	report.Targets = results
	report.FinishedAt = o.now().UTC()
	report.Tally()
	return report
}

// publishTarget runs ensure-media, playlist add and push for one target.
func (o *Orchestrator) publishTarget(ctx context.Context, platform *signage.Platform, target models.Target, duration int,
	resolve func() (*media.Resolution, error),
) models.TargetResult {
	result := models.TargetResult{
		TargetScreenID: target.ScreenID,
		PlaylistID:     target.PlaylistID,
		LocationID:     target.LocationID,
	}

	res, err := resolve()
	if err != nil {
		return failed(result, err)
	}
	result.MediaResolution = res
	if !res.Resolved() {
		result.Status = models.TargetFailed
		result.ErrorCode = CodeMediaUnresolved
		result.Error = "asset media could not be resolved to a playable media"
		return result
	}
	mediaID := *res.ResolvedID

	_, err = platform.EditPlaylistItems(ctx, target.PlaylistID, func(current *yodeck.Playlist) ([]yodeck.PlaylistItemInput, bool) {
		if containsMedia(current, mediaID) {
			return nil, false
		}
		return append(current.Inputs(), yodeck.PlaylistItemInput{
			ID:       mediaID,
			Type:     yodeck.SourceMedia,
			Duration: duration,
		}), true
	})
	if err != nil {
		return failed(result, err)
	}
	// Another writer may have replaced the items between our patch and now.
	if err := verifyPlaylist(ctx, platform, target.PlaylistID, func(pl *yodeck.Playlist) bool {
		return containsMedia(pl, mediaID)
	}); err != nil {
		return failed(result, err)
	}

	if o.opts.PushAfterPublish {
		if err := platform.PushScreen(ctx, target.ScreenID, o.opts.UseDownloadSlots); err != nil {
			return failed(result, err)
		}
		result.Pushed = true
	}

	result.Status = models.TargetSuccess
	return result
}

func containsMedia(p *yodeck.Playlist, mediaID int) bool {
	for _, it := range p.Items {
		if it.Type == yodeck.SourceMedia && it.ID == mediaID {
			return true
		}
	}
	return false
}

// verifyPlaylist re-reads the playlist and checks its end state.
func verifyPlaylist(ctx context.Context, platform *signage.Platform, playlistID int, ok func(*yodeck.Playlist) bool) error {
	pl, err := platform.PlaylistFresh(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("verify playlist %d: %w", playlistID, err)
	}
	if !ok(pl) {
		return fmt.Errorf("playlist %d: %w", playlistID, ErrPlaylistUnverified)
	}
	return nil
}

// failed fills the error fields of a target result from err.
func failed(result models.TargetResult, err error) models.TargetResult {
	result.Status = models.TargetFailed
	result.Error = err.Error()
	if ye, ok := yodeck.AsError(err); ok {
		result.HTTPStatus = ye.Status
		result.ErrorCode = ye.Code()
		if len(ye.Body) > 0 {
			result.ErrorDetails = string(ye.Body)
		}
		return result
	}
	if errors.Is(err, ErrPlaylistUnverified) {
		result.ErrorCode = CodePlaylistUnverified
		return result
	}
	if code := media.Code(err); code != "" {
		result.ErrorCode = code
		return result
	}
	result.ErrorCode = CodeInternal
	return result
}

// failureSummary builds the plan's last error from a partially failed report.
func failureSummary(report *models.PublishReport) (code, msg, details string) {
	msg = fmt.Sprintf("%d/%d targets failed", report.FailedCount, report.TotalTargets)
	for _, t := range report.Targets {
		if t.Status == models.TargetFailed {
			details = fmt.Sprintf("screen %d: %s", t.TargetScreenID, t.Error)
			if t.ErrorCode == CodeMediaUnresolved {
				return CodeMediaUnresolved, msg, details
			}
			break
		}
	}
	return CodePublishPartial, msg, details
}
