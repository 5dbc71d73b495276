// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/screenline/internal/config"
	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/yodeck"
)

// testDBSemaphore serializes DuckDB usage across parallel tests; concurrent
// CGO connections from many tests can stall under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := Open(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_AppliesMigrations(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	applied, err := db.AppliedMigrations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != len(migrations) {
		t.Errorf("applied %d migrations, want %d", len(applied), len(migrations))
	}
	if err := db.runVersionedMigrations(context.Background()); err != nil {
		t.Errorf("re-running migrations: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func newPlan() *models.PlacementPlan {
	return &models.PlacementPlan{
		AdvertiserID:    "adv-1",
		AssetMediaID:    501,
		AssetName:       "Spring Campaign",
		RequiredTargets: 2,
		ProposedTargets: []models.Target{
			{ScreenID: 11, PlaylistID: 101, LocationID: "loc-a"},
			{ScreenID: 12, PlaylistID: 102, LocationID: "loc-b"},
		},
	}
}

func TestPlans_CreateGetList(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	plan := newPlan()
	if err := db.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}
	if plan.ID == "" || plan.Version != 1 || plan.State != models.PlanProposed {
		t.Fatalf("plan after create = %+v", plan)
	}

	got, err := db.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetPlan() error = %v", err)
	}
	if got.AssetName != "Spring Campaign" || len(got.ProposedTargets) != 2 || got.Version != 1 {
		t.Errorf("GetPlan() = %+v", got)
	}

	other := newPlan()
	other.AdvertiserID = "adv-2"
	other.ProposedTargets = []models.Target{{ScreenID: 13, PlaylistID: 103}}
	if err := db.CreatePlan(ctx, other); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter models.PlanFilter
		want   int
	}{
		{"all", models.PlanFilter{}, 2},
		{"by advertiser", models.PlanFilter{AdvertiserID: "adv-2"}, 1},
		{"by screen", models.PlanFilter{ScreenID: 12}, 1},
		{"by state", models.PlanFilter{State: models.PlanPublished}, 0},
		{"limit", models.PlanFilter{Limit: 1}, 1},
	}
	for _, tt := range tests {
		plans, err := db.ListPlans(ctx, tt.filter)
		if err != nil {
			t.Fatalf("%s: ListPlans() error = %v", tt.name, err)
		}
		if len(plans) != tt.want {
			t.Errorf("%s: got %d plans, want %d", tt.name, len(plans), tt.want)
		}
	}

	if _, err := db.GetPlan(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPlan(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPlans_SaveIsCompareAndSet(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	plan := newPlan()
	if err := db.CreatePlan(ctx, plan); err != nil {
		t.Fatal(err)
	}

	first, _ := db.GetPlan(ctx, plan.ID)
	second, _ := db.GetPlan(ctx, plan.ID)

	first.State = models.PlanSimulatedOK
	if err := db.SavePlan(ctx, first); err != nil {
		t.Fatalf("first SavePlan() error = %v", err)
	}
	if first.Version != 2 {
		t.Errorf("version after save = %d, want 2", first.Version)
	}

	second.State = models.PlanCanceled
	err := db.SavePlan(ctx, second)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale SavePlan() error = %v, want ErrVersionConflict", err)
	}
	if second.Version != 1 {
		t.Errorf("stale plan version changed to %d", second.Version)
	}

	stored, _ := db.GetPlan(ctx, plan.ID)
	if stored.State != models.PlanSimulatedOK || stored.Version != 2 {
		t.Errorf("stored = %s v%d", stored.State, stored.Version)
	}

	ghost := newPlan()
	ghost.ID = "ghost"
	ghost.Version = 1
	if err := db.SavePlan(ctx, ghost); !errors.Is(err, ErrNotFound) {
		t.Errorf("SavePlan(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestPlans_ConcurrentSaveOnlyOneWins(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	plan := newPlan()
	plan.State = models.PlanApproved
	if err := db.CreatePlan(ctx, plan); err != nil {
		t.Fatal(err)
	}

	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		p, err := db.GetPlan(ctx, plan.ID)
		if err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func(p *models.PlacementPlan) {
			defer wg.Done()
			p.State = models.PlanPublishing
			errs <- db.SavePlan(ctx, p)
		}(p)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrVersionConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("%d writers won, want exactly 1", wins)
	}
}

func TestLocations_DirectoryAndCandidates(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	screens := []models.LocationScreen{
		{LocationID: "loc-a", ScreenID: 11, Name: "Bar", PlaylistID: 101, Region: "north", AdCapacity: 2,
			ExcludedCategories: []string{"alcohol"},
			Baseline:           &yodeck.ContentRef{SourceType: yodeck.SourcePlaylist, SourceID: 101}},
		{LocationID: "loc-a", ScreenID: 12, Name: "Door", PlaylistID: 102, Region: "north", AdCapacity: 1},
		{LocationID: "loc-b", ScreenID: 21, Name: "Hall", PlaylistID: 201, Region: "south", AdCapacity: 1},
	}
	for i := range screens {
		if err := db.UpsertLocationScreen(ctx, &screens[i]); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := db.LocationIDs(ctx)
	if err != nil || len(ids) != 2 {
		t.Fatalf("LocationIDs() = %v, %v", ids, err)
	}
	atA, err := db.LocationScreens(ctx, "loc-a")
	if err != nil || len(atA) != 2 {
		t.Fatalf("LocationScreens(loc-a) = %v, %v", atA, err)
	}
	if atA[0].Baseline == nil || atA[0].Baseline.SourceID != 101 || atA[0].ExcludedCategories[0] != "alcohol" {
		t.Errorf("screen 11 = %+v", atA[0])
	}
	if atA[1].Baseline != nil {
		t.Errorf("screen 12 baseline = %+v, want nil", atA[1].Baseline)
	}

	// An approved plan occupies one slot on screen 12; screen 21 is offline.
	occupying := &models.PlacementPlan{
		AdvertiserID:    "adv-x",
		State:           models.PlanApproved,
		ApprovedTargets: []models.Target{{ScreenID: 12, PlaylistID: 102, LocationID: "loc-a"}},
	}
	if err := db.CreatePlan(ctx, occupying); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertScreenStatus(ctx, &models.ScreenStatus{ScreenID: 21, LocationID: "loc-b", Online: false, ContentStatus: "empty"}); err != nil {
		t.Fatal(err)
	}

	plan := newPlan()
	if err := db.CreatePlan(ctx, plan); err != nil {
		t.Fatal(err)
	}
	cands, err := db.Candidates(ctx, plan)
	if err != nil {
		t.Fatalf("Candidates() error = %v", err)
	}
	if len(cands) != 3 {
		t.Fatalf("got %d candidates, want 3", len(cands))
	}
	byID := map[int]models.Candidate{}
	for _, c := range cands {
		byID[c.ScreenID] = c
	}
	if byID[12].UsedSlots != 1 || byID[11].UsedSlots != 0 {
		t.Errorf("used slots: 11=%d 12=%d", byID[11].UsedSlots, byID[12].UsedSlots)
	}
	if !byID[11].Online || byID[21].Online {
		t.Errorf("online: 11=%v 21=%v", byID[11].Online, byID[21].Online)
	}

	plan.Rules.ScreenIDs = []int{21}
	cands, err = db.Candidates(ctx, plan)
	if err != nil || len(cands) != 1 || cands[0].ScreenID != 21 {
		t.Errorf("restricted Candidates() = %+v, %v", cands, err)
	}

	if err := db.DeleteLocationScreen(ctx, 12); err != nil {
		t.Fatal(err)
	}
	if _, err := db.LocationScreen(ctx, 12); !errors.Is(err, ErrNotFound) {
		t.Errorf("LocationScreen(deleted) error = %v", err)
	}
}

func TestScreenStatus_Upsert(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	seen := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	s := &models.ScreenStatus{
		ScreenID: 11, LocationID: "loc-a", Online: true, LastSeen: &seen,
		ContentStatus: "has_content", UniqueMediaCount: 3,
		ExpectedMediaIDs: []int{501}, MissingMediaIDs: []int{501},
		DriftReasons: []string{"missing media 501"},
	}
	if err := db.UpsertScreenStatus(ctx, s); err != nil {
		t.Fatal(err)
	}
	s.Compliant = true
	s.MissingMediaIDs = nil
	s.DriftReasons = nil
	if err := db.UpsertScreenStatus(ctx, s); err != nil {
		t.Fatal(err)
	}

	got, err := db.ScreenStatus(ctx, 11)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Compliant || len(got.MissingMediaIDs) != 0 || len(got.ExpectedMediaIDs) != 1 {
		t.Errorf("ScreenStatus() = %+v", got)
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, seen)
	}

	list, err := db.ScreenStatuses(ctx, "loc-a")
	if err != nil || len(list) != 1 {
		t.Errorf("ScreenStatuses() = %v, %v", list, err)
	}
	if _, err := db.ScreenStatus(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("ScreenStatus(99) error = %v", err)
	}
}

func TestAlerts_Lifecycle(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	offline := &models.Alert{
		Type: models.AlertScreenOffline, Severity: models.SeverityWarning,
		ScreenID: 11, LocationID: "loc-a", Message: "screen 11 offline",
	}
	failed := &models.Alert{
		Type: models.AlertPublishFailed, Severity: models.SeverityCritical,
		PlanID: "p1", Message: "1/3 targets failed",
		Metadata: map[string]string{"failed": "1"},
	}
	for _, a := range []*models.Alert{offline, failed} {
		if err := db.CreateAlert(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	active, err := db.GetActiveAlerts(ctx, models.AlertFilter{})
	if err != nil || len(active) != 2 {
		t.Fatalf("GetActiveAlerts() = %v, %v", active, err)
	}
	byType, _ := db.GetActiveAlerts(ctx, models.AlertFilter{Type: models.AlertPublishFailed})
	if len(byType) != 1 || byType[0].Metadata["failed"] != "1" {
		t.Errorf("filtered alerts = %+v", byType)
	}

	exists, err := db.HasActiveAlert(ctx, models.AlertScreenOffline, 11, "")
	if err != nil || !exists {
		t.Errorf("HasActiveAlert() = %v, %v", exists, err)
	}

	if err := db.AcknowledgeAlert(ctx, offline.ID, "ops"); err != nil {
		t.Fatal(err)
	}
	active, _ = db.GetActiveAlerts(ctx, models.AlertFilter{LocationID: "loc-a"})
	if len(active) != 0 {
		t.Errorf("acknowledged alert still active: %+v", active)
	}
	exists, _ = db.HasActiveAlert(ctx, models.AlertScreenOffline, 11, "")
	if exists {
		t.Error("HasActiveAlert() true after acknowledge")
	}

	if err := db.AcknowledgeAlert(ctx, "nope", "ops"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AcknowledgeAlert(nope) error = %v", err)
	}
}
