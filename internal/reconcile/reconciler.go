// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

/*
reconciler.go - Truth Reconciler

Reconcile re-derives the canonical status of every screen at a location from
the signage platform and compares it against local state:

  - the screen's pointer must match the location's baseline content
  - every media published to the screen by a PUBLISHED plan must be reachable
    from that pointer

A drifted screen is corrected when push is requested: the baseline pointer is
re-assigned if it differs, then the screen is pushed. Every screen writes a
ScreenStatus row. A failure on one screen is recorded in the report and never
stops the others.
*/
//nolint:staticcheck // File documentation, not package doc
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/metrics"
	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/resolver"
	"github.com/tomtom215/screenline/internal/signage"
	"github.com/tomtom215/screenline/internal/yodeck"
)

// Drift reasons recorded on a ScreenStatus.
const (
	DriftPointer      = "pointer_mismatch"
	DriftMissingMedia = "missing_media"
	DriftContentError = "content_error"
)

// Store is the persistence the reconciler reads and writes.
type Store interface {
	LocationScreens(ctx context.Context, locationID string) ([]models.LocationScreen, error)
	ListPlans(ctx context.Context, filter models.PlanFilter) ([]*models.PlacementPlan, error)
	UpsertScreenStatus(ctx context.Context, s *models.ScreenStatus) error
}

// AlertStore records operator alerts, one active alert per type and screen.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	HasActiveAlert(ctx context.Context, alertType models.AlertType, screenID int, planID string) (bool, error)
}

// PlatformSource yields the current signage platform.
type PlatformSource interface {
	Platform(ctx context.Context) (*signage.Platform, error)
}

// Report is the outcome of one location pass.
type Report struct {
	LocationID string                `json:"location_id"`
	Reason     string                `json:"reason"`
	Push       bool                  `json:"push"`
	Outcomes   []models.ScreenStatus `json:"outcomes"`
	Errors     []string              `json:"errors"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// OK reports whether every screen was checked without error.
func (r *Report) OK() bool { return len(r.Errors) == 0 }

// Compliant counts compliant screens.
func (r *Report) Compliant() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Compliant {
			n++
		}
	}
	return n
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithConcurrency bounds screens checked at once.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithDownloadSlots sets use_download_timeslots on corrective pushes.
func WithDownloadSlots(v bool) Option {
	return func(r *Reconciler) { r.downloadSlots = v }
}

// Reconciler checks locations against the platform.
type Reconciler struct {
	store         Store
	alerts        AlertStore
	platforms     PlatformSource
	concurrency   int
	downloadSlots bool
	now           func() time.Time
	log           zerolog.Logger

	// locks serializes passes per location.
	locks sync.Map
}

// New creates a Reconciler. alerts may be nil.
func New(store Store, alerts AlertStore, platforms PlatformSource, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       store,
		alerts:      alerts,
		platforms:   platforms,
		concurrency: 4,
		now:         time.Now,
		log:         logging.WithComponent("reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) lock(locationID string) func() {
	v, _ := r.locks.LoadOrStore(locationID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Reconcile checks every screen at locationID. The error is reserved for
// failures that prevent the pass from running at all; per-screen failures
// are in the report.
func (r *Reconciler) Reconcile(ctx context.Context, locationID string, push bool, reason string) (*Report, error) {
	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}
	log := logging.Ctx(ctx).With().Str("location_id", locationID).Str("reason", reason).Logger()

	unlock := r.lock(locationID)
	defer unlock()

	platform, err := r.platforms.Platform(ctx)
	if err != nil {
		metrics.RecordReconcile("error", nil)
		return nil, err
	}
	screens, err := r.store.LocationScreens(ctx, locationID)
	if err != nil {
		metrics.RecordReconcile("error", nil)
		return nil, fmt.Errorf("load screens of location %s: %w", locationID, err)
	}
	expected, err := r.expectedMedia(ctx, screens)
	if err != nil {
		metrics.RecordReconcile("error", nil)
		return nil, err
	}

	report := &Report{
		LocationID: locationID,
		Reason:     reason,
		Push:       push,
		Outcomes:   make([]models.ScreenStatus, len(screens)),
		Errors:     []string{},
		StartedAt:  r.now().UTC(),
	}
	res := resolver.New(platform, resolver.WithClock(r.now))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, ls := range screens {
		g.Go(func() error {
			report.Outcomes[i] = r.checkScreen(ctx, platform, res, ls, expected[ls.ScreenID], push)
			return nil
		})
	}
	_ = g.Wait()

	counts := map[string]int{}
	for i := range report.Outcomes {
		o := &report.Outcomes[i]
		switch {
		case o.Error != "":
			report.Errors = append(report.Errors, fmt.Sprintf("screen %d: %s", o.ScreenID, o.Error))
			counts["error"]++
		case o.Compliant:
			counts["compliant"]++
		case o.Pushed:
			counts["corrected"]++
		default:
			counts["drifted"]++
		}
		if err := r.store.UpsertScreenStatus(ctx, o); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("screen %d: save status: %v", o.ScreenID, err))
		}
		r.raiseAlerts(ctx, o)
	}
	report.FinishedAt = r.now().UTC()

	result := "ok"
	if !report.OK() {
		result = "degraded"
	}
	metrics.RecordReconcile(result, counts)
	log.Info().Int("screens", len(screens)).Int("compliant", report.Compliant()).
		Int("errors", len(report.Errors)).Bool("push", push).Msg("Location reconciled")
	return report, nil
}

// expectedMedia maps screen id to the media published to it.
func (r *Reconciler) expectedMedia(ctx context.Context, screens []models.LocationScreen) (map[int][]int, error) {
	out := make(map[int][]int, len(screens))
	if len(screens) == 0 {
		return out, nil
	}
	onLocation := make(map[int]bool, len(screens))
	for _, s := range screens {
		onLocation[s.ScreenID] = true
	}

	plans, err := r.store.ListPlans(ctx, models.PlanFilter{State: models.PlanPublished})
	if err != nil {
		return nil, fmt.Errorf("load published plans: %w", err)
	}
	for _, p := range plans {
		mediaID := p.AssetMediaID
		if p.PublishedMediaID != 0 {
			mediaID = p.PublishedMediaID
		}
		for _, t := range p.ApprovedTargets {
			if onLocation[t.ScreenID] && !containsInt(out[t.ScreenID], mediaID) {
				out[t.ScreenID] = append(out[t.ScreenID], mediaID)
			}
		}
	}
	for id := range out {
		sort.Ints(out[id])
	}
	return out, nil
}

func (r *Reconciler) checkScreen(ctx context.Context, platform *signage.Platform, res *resolver.Resolver,
	ls models.LocationScreen, expected []int, push bool,
) models.ScreenStatus {
	status := models.ScreenStatus{
		ScreenID:         ls.ScreenID,
		LocationID:       ls.LocationID,
		Name:             ls.Name,
		ExpectedMediaIDs: nonNil(expected),
		MissingMediaIDs:  []int{},
		DriftReasons:     []string{},
		CheckedAt:        r.now().UTC(),
	}

	screen, err := platform.Screen(ctx, ls.ScreenID)
	if err != nil {
		status.ContentStatus = string(resolver.StatusError)
		status.Error = err.Error()
		return status
	}
	if screen.Name != "" {
		status.Name = screen.Name
	}
	status.Online = screen.State.Online
	status.LastSeen = screen.State.LastSeen

	content := res.ResolveScreen(ctx, screen)
	status.ContentStatus = string(content.Status)
	status.UniqueMediaCount = content.UniqueMediaCount

	status.PointerMatches = ls.Baseline == nil || sameRef(screen.ScreenContent, ls.Baseline)
	if !status.PointerMatches {
		status.DriftReasons = append(status.DriftReasons, DriftPointer)
	}
	for _, id := range expected {
		if !content.HasMedia(id) {
			status.MissingMediaIDs = append(status.MissingMediaIDs, id)
		}
	}
	if len(status.MissingMediaIDs) > 0 {
		status.DriftReasons = append(status.DriftReasons, DriftMissingMedia)
	}
	if content.Status == resolver.StatusError {
		status.DriftReasons = append(status.DriftReasons, DriftContentError)
	}
	status.Compliant = len(status.DriftReasons) == 0

	if status.Compliant || !push {
		return status
	}
	if !status.PointerMatches {
		if _, err := platform.AssignScreenContent(ctx, ls.ScreenID, *ls.Baseline); err != nil {
			status.Error = fmt.Sprintf("assign baseline: %v", err)
			return status
		}
	}
	if err := platform.PushScreen(ctx, ls.ScreenID, r.downloadSlots); err != nil {
		status.Error = fmt.Sprintf("push: %v", err)
		return status
	}
	status.Pushed = true
	return status
}

// raiseAlerts creates offline and drift alerts unless one is already active.
func (r *Reconciler) raiseAlerts(ctx context.Context, s *models.ScreenStatus) {
	if r.alerts == nil || s.Error != "" {
		return
	}
	if !s.Online {
		r.raise(ctx, s, models.AlertScreenOffline, models.SeverityWarning,
			fmt.Sprintf("Screen %d (%s) is offline", s.ScreenID, s.Name))
	}
	if !s.Compliant && !s.Pushed {
		r.raise(ctx, s, models.AlertContentDrift, models.SeverityWarning,
			fmt.Sprintf("Screen %d (%s) content drifted: %v", s.ScreenID, s.Name, s.DriftReasons))
	}
}

func (r *Reconciler) raise(ctx context.Context, s *models.ScreenStatus, alertType models.AlertType, sev models.Severity, msg string) {
	active, err := r.alerts.HasActiveAlert(ctx, alertType, s.ScreenID, "")
	if err != nil {
		r.log.Warn().Err(err).Int("screen_id", s.ScreenID).Msg("Failed to check active alerts")
		return
	}
	if active {
		return
	}
	a := &models.Alert{
		Type:       alertType,
		Severity:   sev,
		ScreenID:   s.ScreenID,
		LocationID: s.LocationID,
		Message:    msg,
		Metadata:   map[string]string{"content_status": s.ContentStatus},
	}
	if err := r.alerts.CreateAlert(ctx, a); err != nil {
		r.log.Warn().Err(err).Int("screen_id", s.ScreenID).Msg("Failed to create alert")
	}
}

func sameRef(a, b *yodeck.ContentRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.SourceType == b.SourceType && a.SourceID == b.SourceID
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
