// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package api

import (
	"context"
	"time"

	"github.com/tomtom215/screenline/internal/credentials"
	"github.com/tomtom215/screenline/internal/media"
	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/publish"
	"github.com/tomtom215/screenline/internal/reconcile"
	"github.com/tomtom215/screenline/internal/signage"
)

// Plans is the plan lifecycle, implemented by *publish.Orchestrator.
type Plans interface {
	Create(ctx context.Context, in publish.CreateInput) (*models.PlacementPlan, error)
	Get(ctx context.Context, id string) (*models.PlacementPlan, error)
	List(ctx context.Context, filter models.PlanFilter) ([]*models.PlacementPlan, error)
	Simulate(ctx context.Context, id string) (*models.PlacementPlan, error)
	Approve(ctx context.Context, id string) (*models.PlacementPlan, error)
	Publish(ctx context.Context, id string) (*models.PlacementPlan, error)
	Retry(ctx context.Context, id string) (*models.PlacementPlan, error)
	Rollback(ctx context.Context, id string) (*models.PlacementPlan, error)
	Cancel(ctx context.Context, id string) (*models.PlacementPlan, error)
	BulkSimulate(ctx context.Context, ids []string) *publish.BulkResult
	BulkApprove(ctx context.Context, ids []string) *publish.BulkResult
	BulkPublish(ctx context.Context, ids []string) *publish.BulkResult
}

// Reconciler runs a reconcile pass, implemented by *reconcile.Reconciler.
type Reconciler interface {
	Reconcile(ctx context.Context, locationID string, push bool, reason string) (*reconcile.Report, error)
}

// Store is the slice of the database the handlers read and write directly.
type Store interface {
	Ping(ctx context.Context) error
	LocationScreens(ctx context.Context, locationID string) ([]models.LocationScreen, error)
	LocationScreen(ctx context.Context, screenID int) (*models.LocationScreen, error)
	UpsertLocationScreen(ctx context.Context, ls *models.LocationScreen) error
	DeleteLocationScreen(ctx context.Context, screenID int) error
	ScreenStatuses(ctx context.Context, locationID string) ([]models.ScreenStatus, error)
	GetActiveAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)
	AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string) error
}

// Platforms hands out the signage platform, implemented by *signage.Provider.
type Platforms interface {
	Platform(ctx context.Context) (*signage.Platform, error)
	Reset()
	ClearCaches()
}

// CredentialStore persists signage credentials, implemented by
// *credentials.Store.
type CredentialStore interface {
	Set(ctx context.Context, label, value string) error
	Status(ctx context.Context) (credentials.Status, error)
}

// Dependencies are the collaborators of the handlers. Credentials may be nil
// when tokens come from configuration only.
type Dependencies struct {
	Plans        Plans
	Reconciler   Reconciler
	Store        Store
	Platforms    Platforms
	Credentials  CredentialStore
	MediaOptions media.Options
}

// Handler serves the REST endpoints.
type Handler struct {
	plans      Plans
	reconciler Reconciler
	store      Store
	platforms  Platforms
	creds      CredentialStore
	mediaOpts  media.Options
	startTime  time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		plans:      deps.Plans,
		reconciler: deps.Reconciler,
		store:      deps.Store,
		platforms:  deps.Platforms,
		creds:      deps.Credentials,
		mediaOpts:  deps.MediaOptions,
		startTime:  time.Now(),
	}
}
