// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

/*
orchestrator.go - Publish Orchestrator

Drives placement plans through their lifecycle:

	PROPOSED -> SIMULATED_OK|SIMULATED_FAIL -> APPROVED -> PUBLISHING -> PUBLISHED|FAILED
	FAILED -> PUBLISHING (retry)
	PUBLISHED -> ROLLED_BACK
	PROPOSED|SIMULATED_*|APPROVED -> CANCELED

Simulate, Approve and Cancel are pure state changes. Publish and Retry enter
PUBLISHING through the store's version compare-and-set, so of two concurrent
callers exactly one proceeds and the other gets ErrAlreadyProcessing. Once
PUBLISHING is entered the attempt runs detached from the caller's context
and settles the plan in PUBLISHED or FAILED. A plan whose attempt never
settled (process crash, store outage) is failed by RecoverAbandoned once the
attempt timeout has passed.
*/
//nolint:staticcheck // File documentation, not package doc
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/screenline/internal/database"
	"github.com/tomtom215/screenline/internal/events"
	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/media"
	"github.com/tomtom215/screenline/internal/metrics"
	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/signage"
	"github.com/tomtom215/screenline/internal/validation"
)

// PlanStore persists plans. SavePlan must be a compare-and-set on Version
// returning database.ErrVersionConflict when it loses.
type PlanStore interface {
	CreatePlan(ctx context.Context, plan *models.PlacementPlan) error
	GetPlan(ctx context.Context, id string) (*models.PlacementPlan, error)
	ListPlans(ctx context.Context, filter models.PlanFilter) ([]*models.PlacementPlan, error)
	SavePlan(ctx context.Context, plan *models.PlacementPlan) error
}

// Inventory lists the screens a plan could be placed on.
type Inventory interface {
	Candidates(ctx context.Context, plan *models.PlacementPlan) ([]models.Candidate, error)
}

// AlertSink receives operator alerts.
type AlertSink interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
}

// EventPublisher receives plan events.
type EventPublisher interface {
	Publish(ctx context.Context, ev *events.PlanEvent) error
}

// PlatformSource yields the current signage platform.
type PlatformSource interface {
	Platform(ctx context.Context) (*signage.Platform, error)
}

// Options configures publishing.
type Options struct {
	// TargetConcurrency bounds targets processed at once within an attempt.
	TargetConcurrency int
	// PushAfterPublish pushes each target screen after its playlist changed.
	PushAfterPublish bool
	// UseDownloadSlots is passed to the screen push.
	UseDownloadSlots bool
	// ItemDuration is the playlist item duration in seconds when the plan
	// does not set one.
	ItemDuration int
	// AttemptTimeout bounds a publish, retry or rollback attempt.
	AttemptTimeout time.Duration
	// SettleRetryDelay is the pause before the one retry of a failed write
	// of an attempt's outcome.
	SettleRetryDelay time.Duration
	// Media tunes media readiness polling.
	Media media.Options
}

func (o *Options) applyDefaults() {
	if o.TargetConcurrency <= 0 {
		o.TargetConcurrency = 5
	}
	if o.ItemDuration <= 0 {
		o.ItemDuration = 15
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 10 * time.Minute
	}
	if o.SettleRetryDelay <= 0 {
		o.SettleRetryDelay = 2 * time.Second
	}
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithAlerts sets the alert sink.
func WithAlerts(sink AlertSink) Option {
	return func(o *Orchestrator) { o.alerts = sink }
}

// WithEvents sets the event publisher.
func WithEvents(pub EventPublisher) Option {
	return func(o *Orchestrator) { o.events = pub }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs plan lifecycle operations.
type Orchestrator struct {
	store     PlanStore
	inventory Inventory
	platforms PlatformSource
	alerts    AlertSink
	events    EventPublisher
	rules     Rules
	opts      Options
	now       func() time.Time
	log       zerolog.Logger
}

// New creates an Orchestrator.
func New(store PlanStore, inventory Inventory, platforms PlatformSource, opts Options, options ...Option) *Orchestrator {
	opts.applyDefaults()
	o := &Orchestrator{
		store:     store,
		inventory: inventory,
		platforms: platforms,
		opts:      opts,
		now:       time.Now,
		log:       logging.WithComponent("publish"),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// CreateInput is a new placement request.
type CreateInput struct {
	AdvertiserID    string                `json:"advertiser_id" validate:"required,max=128"`
	AssetMediaID    int                   `json:"asset_media_id" validate:"required,gt=0"`
	AssetName       string                `json:"asset_name" validate:"required,max=255"`
	SearchNames     []string              `json:"search_names" validate:"omitempty,max=10,dive,required,max=255"`
	ItemDuration    int                   `json:"item_duration" validate:"omitempty,gt=0,lte=3600"`
	RequiredTargets int                   `json:"required_targets" validate:"required,gt=0,lte=1000"`
	Rules           models.PlacementRules `json:"rules"`
}

// Create stores a new PROPOSED plan.
func (o *Orchestrator) Create(ctx context.Context, in CreateInput) (*models.PlacementPlan, error) {
	if verr := validation.ValidateStruct(in); verr != nil {
		return nil, verr
	}
	plan := &models.PlacementPlan{
		AdvertiserID:    in.AdvertiserID,
		AssetMediaID:    in.AssetMediaID,
		AssetName:       in.AssetName,
		SearchNames:     in.SearchNames,
		ItemDuration:    in.ItemDuration,
		RequiredTargets: in.RequiredTargets,
		Rules:           in.Rules,
		State:           models.PlanProposed,
	}
	if err := o.store.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("plan_id", plan.ID).Str("advertiser_id", plan.AdvertiserID).Msg("Plan created")
	return plan, nil
}

// Get loads a plan.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.PlacementPlan, error) {
	return o.store.GetPlan(ctx, id)
}

// List lists plans.
func (o *Orchestrator) List(ctx context.Context, filter models.PlanFilter) ([]*models.PlacementPlan, error) {
	return o.store.ListPlans(ctx, filter)
}

// Simulate evaluates the placement rules against the current inventory and
// overwrites the previous simulation. No remote calls are made.
func (o *Orchestrator) Simulate(ctx context.Context, id string) (*models.PlacementPlan, error) {
	plan, err := o.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.check(plan, models.PlanSimulatedOK, "simulate"); err != nil {
		return nil, err
	}

	cands, err := o.inventory.Candidates(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	report := o.rules.Evaluate(plan, cands, o.now())

	plan.Simulation = report
	plan.ProposedTargets = report.Accepted
	to := models.PlanSimulatedFail
	if report.OK {
		to = models.PlanSimulatedOK
	}
	if err := o.transition(ctx, plan, to); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("plan_id", plan.ID).Int("accepted", report.AcceptedCount).
		Int("required", report.RequiredCount).Int("rejected", len(report.Rejected)).Msg("Plan simulated")
	return plan, nil
}

// Approve freezes the proposed targets of a SIMULATED_OK plan.
func (o *Orchestrator) Approve(ctx context.Context, id string) (*models.PlacementPlan, error) {
	plan, err := o.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.check(plan, models.PlanApproved, "approve"); err != nil {
		return nil, err
	}
	plan.ApprovedTargets = append([]models.Target(nil), plan.ProposedTargets...)
	if err := o.transition(ctx, plan, models.PlanApproved); err != nil {
		return nil, err
	}
	return plan, nil
}

// Cancel cancels a plan that has not started publishing.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*models.PlacementPlan, error) {
	plan, err := o.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.check(plan, models.PlanCanceled, "cancel"); err != nil {
		return nil, err
	}
	if err := o.transition(ctx, plan, models.PlanCanceled); err != nil {
		return nil, err
	}
	return plan, nil
}

// check rejects op when plan cannot move to `to`. A plan that is PUBLISHING
// is reported as already processing.
func (o *Orchestrator) check(plan *models.PlacementPlan, to models.PlanState, op string) error {
	if plan.State == models.PlanPublishing {
		metrics.PublishConflicts.Inc()
		return fmt.Errorf("%s plan %s: %w", op, plan.ID, ErrAlreadyProcessing)
	}
	if err := models.ValidatePlanTransition(plan.State, to); err != nil {
		return fmt.Errorf("%s plan %s in state %s: %w", op, plan.ID, plan.State, ErrInvalidState)
	}
	return nil
}

// transition applies and saves a state change.
func (o *Orchestrator) transition(ctx context.Context, plan *models.PlacementPlan, to models.PlanState) error {
	from := plan.State
	if err := plan.Transition(to, o.now()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if err := o.store.SavePlan(ctx, plan); err != nil {
		plan.State = from
		return err
	}
	metrics.RecordPlanTransition(string(from), string(to))
	return nil
}

// settle records an attempt's outcome. A failed write other than a lost
// compare-and-set is retried once after SettleRetryDelay.
func (o *Orchestrator) settle(ctx context.Context, plan *models.PlacementPlan, to models.PlanState) error {
	err := o.transition(ctx, plan, to)
	if err == nil || errors.Is(err, database.ErrVersionConflict) || errors.Is(err, ErrInvalidState) {
		return err
	}
	logging.Ctx(ctx).Warn().Err(err).Str("plan_id", plan.ID).Str("state", string(to)).Msg("Failed to record plan outcome, retrying")

	timer := time.NewTimer(o.opts.SettleRetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return err
	case <-timer.C:
	}
	return o.transition(ctx, plan, to)
}

// enterPublishing moves plan from its current state to PUBLISHING through
// the store's compare-and-set.
func (o *Orchestrator) enterPublishing(ctx context.Context, plan *models.PlacementPlan) error {
	err := o.transition(ctx, plan, models.PlanPublishing)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrVersionConflict) {
		return err
	}

	current, getErr := o.store.GetPlan(ctx, plan.ID)
	if getErr == nil && current.State == models.PlanPublishing {
		metrics.PublishConflicts.Inc()
		return fmt.Errorf("plan %s: %w", plan.ID, ErrAlreadyProcessing)
	}
	return fmt.Errorf("plan %s changed concurrently: %w", plan.ID, err)
}

// settleContext returns a context for writes that must happen even when the
// caller has gone away.
func (o *Orchestrator) settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
}

func (o *Orchestrator) emit(ctx context.Context, plan *models.PlacementPlan, eventType string, report *models.PublishReport) {
	if o.events == nil {
		return
	}
	ev := events.NewPlanEvent(eventType, plan.ID, string(plan.State), plan.LocationIDs())
	if report != nil {
		ev.SuccessCount = report.SuccessCount
		ev.FailedCount = report.FailedCount
	}
	if err := o.events.Publish(ctx, ev); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("plan_id", plan.ID).Str("type", eventType).Msg("Failed to publish plan event")
	}
}

func (o *Orchestrator) alert(ctx context.Context, plan *models.PlacementPlan, alertType models.AlertType, severity models.Severity, msg string) {
	if o.alerts == nil {
		return
	}
	a := &models.Alert{
		Type:     alertType,
		Severity: severity,
		PlanID:   plan.ID,
		Message:  msg,
		Metadata: map[string]string{"advertiser_id": plan.AdvertiserID, "error_code": plan.LastErrorCode},
	}
	if err := o.alerts.CreateAlert(ctx, a); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("plan_id", plan.ID).Msg("Failed to create alert")
	}
}

func withCorrelation(ctx context.Context) context.Context {
	if logging.CorrelationIDFromContext(ctx) != "" {
		return ctx
	}
	return logging.ContextWithNewCorrelationID(ctx)
}
