// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/screenline/internal/database"
	"github.com/tomtom215/screenline/internal/events"
	"github.com/tomtom215/screenline/internal/media"
	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/signage"
	"github.com/tomtom215/screenline/internal/testinfra"
	"github.com/tomtom215/screenline/internal/yodeck"
)

// memStore is a PlanStore with the same compare-and-set contract as the
// database: SavePlan succeeds only when the stored version matches.
type memStore struct {
	mu     sync.Mutex
	plans  map[string][]byte
	onSave func(plan *models.PlacementPlan)
	// failSave, when set, may reject a save before the version check.
	failSave func(plan *models.PlacementPlan) error
}

func newMemStore() *memStore {
	return &memStore{plans: make(map[string][]byte)}
}

func (s *memStore) CreatePlan(_ context.Context, plan *models.PlacementPlan) error {
	plan.ID = uuid.NewString()
	plan.State = models.PlanProposed
	plan.Version = 1
	plan.CreatedAt = time.Now().UTC()
	plan.UpdatedAt = plan.CreatedAt
	return s.put(plan)
}

func (s *memStore) put(plan *models.PlacementPlan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.plans[plan.ID] = raw
	s.mu.Unlock()
	return nil
}

func (s *memStore) GetPlan(_ context.Context, id string) (*models.PlacementPlan, error) {
	s.mu.Lock()
	raw, ok := s.plans[id]
	s.mu.Unlock()
	if !ok {
		return nil, database.ErrNotFound
	}
	var plan models.PlacementPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *memStore) ListPlans(ctx context.Context, filter models.PlanFilter) ([]*models.PlacementPlan, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.plans))
	for id := range s.plans {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	var out []*models.PlacementPlan
	for _, id := range ids {
		plan, err := s.GetPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		if filter.State != "" && plan.State != filter.State {
			continue
		}
		out = append(out, plan)
	}
	return out, nil
}

func (s *memStore) SavePlan(_ context.Context, plan *models.PlacementPlan) error {
	s.mu.Lock()
	if s.failSave != nil {
		if err := s.failSave(plan); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	raw, ok := s.plans[plan.ID]
	if !ok {
		s.mu.Unlock()
		return database.ErrNotFound
	}
	var stored models.PlacementPlan
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.mu.Unlock()
		return err
	}
	if stored.Version != plan.Version {
		s.mu.Unlock()
		return database.ErrVersionConflict
	}
	plan.Version++
	next, err := json.Marshal(plan)
	if err != nil {
		plan.Version--
		s.mu.Unlock()
		return err
	}
	s.plans[plan.ID] = next
	hook := s.onSave
	s.mu.Unlock()

	if hook != nil {
		hook(plan)
	}
	return nil
}

type staticInventory []models.Candidate

func (c staticInventory) Candidates(context.Context, *models.PlacementPlan) ([]models.Candidate, error) {
	return append([]models.Candidate(nil), c...), nil
}

type staticPlatform struct{ p *signage.Platform }

func (s staticPlatform) Platform(context.Context) (*signage.Platform, error) { return s.p, nil }

type recorder struct {
	mu     sync.Mutex
	events []*events.PlanEvent
	alerts []*models.Alert
}

func (r *recorder) Publish(_ context.Context, ev *events.PlanEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) CreateAlert(_ context.Context, a *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recorder) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) alertTypes() []models.AlertType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AlertType, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.Type
	}
	return out
}

const (
	assetID    = 501
	baselineID = 900
)

// scenarioCandidates yields three usable screens plus one full and one
// offline screen.
func scenarioCandidates() staticInventory {
	return staticInventory{
		{ScreenID: 11, PlaylistID: 101, LocationID: "loc-a", Capacity: 2, Online: true},
		{ScreenID: 14, PlaylistID: 104, LocationID: "loc-b", Capacity: 1, UsedSlots: 1, Online: true},
		{ScreenID: 12, PlaylistID: 102, LocationID: "loc-a", Capacity: 2, Online: true},
		{ScreenID: 15, PlaylistID: 105, LocationID: "loc-c", Capacity: 2, Online: false},
		{ScreenID: 13, PlaylistID: 103, LocationID: "loc-b", Capacity: 2, Online: true},
	}
}

type harness struct {
	orch  *Orchestrator
	store *memStore
	fake  *testinfra.FakeYodeck
	rec   *recorder
}

func newHarness(t *testing.T, platform PlatformSource) *harness {
	t.Helper()

	fake := testinfra.NewFakeYodeck(t)
	fake.PutMedia(yodeck.Media{ID: assetID, Name: "Spring Campaign", Status: yodeck.MediaFinished,
		MediaOrigin: yodeck.MediaOrigin{Type: "video", Source: yodeck.OriginLocal}})
	fake.PutMedia(yodeck.Media{ID: baselineID, Name: "House Loop", Status: yodeck.MediaFinished,
		MediaOrigin: yodeck.MediaOrigin{Type: "video", Source: yodeck.OriginLocal}})
	for _, pl := range []int{101, 102, 103} {
		fake.PutPlaylist(yodeck.Playlist{ID: pl, Name: "ads", Items: []yodeck.PlaylistItem{
			{ID: baselineID, Type: yodeck.SourceMedia, Duration: 30},
		}})
	}

	if platform == nil {
		platform = staticPlatform{signage.NewPlatform(fake.Client(t, yodeck.Options{}), time.Minute)}
	}

	store := newMemStore()
	rec := &recorder{}
	opts := Options{
		PushAfterPublish: true,
		SettleRetryDelay: time.Millisecond,
		Media:            media.Options{PollAttempts: 1, PollInitialDelay: time.Millisecond, PollMaxDelay: time.Millisecond},
	}
	orch := New(store, scenarioCandidates(), platform, opts, WithAlerts(rec), WithEvents(rec))
	return &harness{orch: orch, store: store, fake: fake, rec: rec}
}

func (h *harness) create(t *testing.T, required int) *models.PlacementPlan {
	t.Helper()
	plan, err := h.orch.Create(context.Background(), CreateInput{
		AdvertiserID:    "adv-1",
		AssetMediaID:    assetID,
		AssetName:       "Spring Campaign",
		RequiredTargets: required,
		Rules:           models.PlacementRules{RequireOnline: true},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return plan
}

// approved creates, simulates and approves a plan needing three screens.
func (h *harness) approved(t *testing.T) *models.PlacementPlan {
	t.Helper()
	ctx := context.Background()
	plan := h.create(t, 3)
	if _, err := h.orch.Simulate(ctx, plan.ID); err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	plan, err := h.orch.Approve(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	return plan
}

func countMedia(t *testing.T, fake *testinfra.FakeYodeck, playlistID, mediaID int) int {
	t.Helper()
	pl, ok := fake.Playlist(playlistID)
	if !ok {
		t.Fatalf("playlist %d missing", playlistID)
	}
	n := 0
	for _, it := range pl.Items {
		if it.Type == yodeck.SourceMedia && it.ID == mediaID {
			n++
		}
	}
	return n
}

func checkCounts(t *testing.T, r *models.PublishReport, total, ok, failed int) {
	t.Helper()
	if r == nil {
		t.Fatal("report is nil")
	}
	if r.TotalTargets != total || r.SuccessCount != ok || r.FailedCount != failed {
		t.Errorf("report counts = {%d, %d, %d}, want {%d, %d, %d}",
			r.TotalTargets, r.SuccessCount, r.FailedCount, total, ok, failed)
	}
}

func TestOrchestrator_SimulatePublishRetry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.create(t, 3)

	plan, err := h.orch.Simulate(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if plan.State != models.PlanSimulatedOK {
		t.Fatalf("State = %s, want SIMULATED_OK", plan.State)
	}
	reasons := map[int]string{}
	for _, r := range plan.Simulation.Rejected {
		reasons[r.ScreenID] = r.Reason
	}
	if reasons[14] != models.ReasonNoCapacity || reasons[15] != models.ReasonOffline || len(reasons) != 2 {
		t.Errorf("rejections = %v", reasons)
	}
	if plan.Simulation.AcceptedCount != 3 {
		t.Errorf("AcceptedCount = %d, want 3", plan.Simulation.AcceptedCount)
	}

	if _, err := h.orch.Approve(ctx, plan.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	h.fake.FailNext(http.MethodPatch, "/playlists/102/", http.StatusBadRequest)
	plan, err = h.orch.Publish(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if plan.State != models.PlanFailed {
		t.Fatalf("State = %s, want FAILED", plan.State)
	}
	checkCounts(t, plan.PublishReport, 3, 2, 1)
	if plan.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", plan.RetryCount)
	}
	if plan.LastErrorCode != CodePublishPartial {
		t.Errorf("LastErrorCode = %q, want %q", plan.LastErrorCode, CodePublishPartial)
	}
	for _, tr := range plan.PublishReport.Targets {
		if tr.TargetScreenID == 12 && (tr.HTTPStatus != http.StatusBadRequest || tr.ErrorCode != "http_400") {
			t.Errorf("screen 12 result = %+v", tr)
		}
	}
	if plan.FailedAt == nil {
		t.Error("FailedAt not set")
	}

	plan, err = h.orch.Retry(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if plan.State != models.PlanPublished {
		t.Fatalf("State = %s, want PUBLISHED", plan.State)
	}
	checkCounts(t, plan.PublishReport, 3, 3, 0)
	if plan.RetryCount != 1 || plan.PublishReport.Attempt != 1 {
		t.Errorf("RetryCount = %d, Attempt = %d, want 1", plan.RetryCount, plan.PublishReport.Attempt)
	}
	if plan.LastErrorCode != "" {
		t.Errorf("LastErrorCode = %q after success", plan.LastErrorCode)
	}
	if plan.PublishedMediaID != assetID {
		t.Errorf("PublishedMediaID = %d, want %d", plan.PublishedMediaID, assetID)
	}

	for _, pl := range []int{101, 102, 103} {
		if n := countMedia(t, h.fake, pl, assetID); n != 1 {
			t.Errorf("playlist %d carries asset %d times, want 1", pl, n)
		}
	}
	// Targets already carrying the asset are not patched again.
	if n := h.fake.CallCount(http.MethodPatch, "/playlists/101/"); n != 1 {
		t.Errorf("PATCH /playlists/101/ count = %d, want 1", n)
	}

	stored, err := h.store.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != models.PlanPublished || stored.Version != plan.Version {
		t.Errorf("stored = %s v%d, want PUBLISHED v%d", stored.State, stored.Version, plan.Version)
	}

	if got := h.rec.eventTypes(); len(got) != 2 || got[0] != events.TypePlanFailed || got[1] != events.TypePlanPublished {
		t.Errorf("events = %v", got)
	}
	if got := h.rec.alertTypes(); len(got) != 1 || got[0] != models.AlertPublishFailed {
		t.Errorf("alerts = %v", got)
	}
}

func TestOrchestrator_SimulateFailAndResimulate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.create(t, 4)

	plan, err := h.orch.Simulate(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if plan.State != models.PlanSimulatedFail || plan.Simulation.OK {
		t.Fatalf("State = %s OK = %v, want SIMULATED_FAIL", plan.State, plan.Simulation.OK)
	}
	if _, err := h.orch.Approve(ctx, plan.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Approve() error = %v, want ErrInvalidState", err)
	}
	plan, err = h.orch.Simulate(ctx, plan.ID)
	if err != nil {
		t.Fatalf("re-simulate error = %v", err)
	}
	if plan.State != models.PlanSimulatedFail {
		t.Errorf("State = %s", plan.State)
	}
}

func TestOrchestrator_InvalidState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.create(t, 3)

	ops := map[string]func(context.Context, string) (*models.PlacementPlan, error){
		"approve":  h.orch.Approve,
		"publish":  h.orch.Publish,
		"retry":    h.orch.Retry,
		"rollback": h.orch.Rollback,
	}
	for name, op := range ops {
		_, err := op(ctx, plan.ID)
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("%s on PROPOSED: error = %v, want ErrInvalidState", name, err)
		}
		if Code(err) != CodeInvalidState {
			t.Errorf("%s: Code = %q", name, Code(err))
		}
	}

	if _, err := h.orch.Publish(ctx, "missing"); Code(err) != CodeNotFound {
		t.Errorf("Publish(missing) code = %q, want NOT_FOUND", Code(err))
	}
	if len(h.fake.Captures()) != 0 {
		t.Errorf("rejected operations reached the platform: %+v", h.fake.Captures())
	}
}

func TestOrchestrator_CreateValidates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.orch.Create(context.Background(), CreateInput{AdvertiserID: "adv-1"})
	if Code(err) != CodeValidation {
		t.Fatalf("Create() code = %q (%v), want VALIDATION_ERROR", Code(err), err)
	}
}

func TestOrchestrator_Cancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()

	plan := h.approved(t)
	plan, err := h.orch.Cancel(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if plan.State != models.PlanCanceled || plan.CanceledAt == nil {
		t.Errorf("State = %s CanceledAt = %v", plan.State, plan.CanceledAt)
	}
	if _, err := h.orch.Cancel(ctx, plan.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Cancel() error = %v, want ErrInvalidState", err)
	}
	if _, err := h.orch.Publish(ctx, plan.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Publish after cancel error = %v, want ErrInvalidState", err)
	}
}

func TestOrchestrator_PublishWhilePublishing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.approved(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.store.mu.Lock()
	h.store.onSave = func(p *models.PlacementPlan) {
		if p.State == models.PlanPublishing {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
	}
	h.store.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Publish(ctx, plan.ID)
		done <- err
	}()
	<-entered

	for name, op := range map[string]func(context.Context, string) (*models.PlacementPlan, error){
		"publish": h.orch.Publish,
		"retry":   h.orch.Retry,
		"cancel":  h.orch.Cancel,
	} {
		if _, err := op(ctx, plan.ID); !errors.Is(err, ErrAlreadyProcessing) {
			t.Errorf("%s while publishing: error = %v, want ErrAlreadyProcessing", name, err)
		}
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Publish() error = %v", err)
	}
	final, err := h.store.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.State != models.PlanPublished {
		t.Errorf("State = %s, want PUBLISHED", final.State)
	}
}

func TestOrchestrator_EnterPublishingRace(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.approved(t)

	first, err := h.store.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.store.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}

	if err := h.orch.enterPublishing(ctx, first); err != nil {
		t.Fatalf("first enterPublishing() error = %v", err)
	}
	err = h.orch.enterPublishing(ctx, second)
	if !errors.Is(err, ErrAlreadyProcessing) {
		t.Fatalf("second enterPublishing() error = %v, want ErrAlreadyProcessing", err)
	}
	if second.State != models.PlanApproved {
		t.Errorf("loser state = %s, want unchanged APPROVED", second.State)
	}
}

func TestOrchestrator_PublishSurvivesCallerCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	plan := h.approved(t)

	ctx, cancel := context.WithCancel(context.Background())
	h.store.mu.Lock()
	h.store.onSave = func(p *models.PlacementPlan) {
		if p.State == models.PlanPublishing {
			cancel()
		}
	}
	h.store.mu.Unlock()

	plan, err := h.orch.Publish(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if plan.State != models.PlanPublished {
		t.Errorf("State = %s, want PUBLISHED", plan.State)
	}
	checkCounts(t, plan.PublishReport, 3, 3, 0)
}

func TestOrchestrator_UnresolvedMedia(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	plan, err := h.orch.Create(ctx, CreateInput{
		AdvertiserID:    "adv-1",
		AssetMediaID:    777,
		AssetName:       "Nowhere",
		RequiredTargets: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.orch.Simulate(ctx, plan.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.orch.Approve(ctx, plan.ID); err != nil {
		t.Fatal(err)
	}

	plan, err = h.orch.Publish(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if plan.State != models.PlanFailed || plan.LastErrorCode != CodeMediaUnresolved {
		t.Errorf("State = %s code = %q, want FAILED MEDIA_UNRESOLVED", plan.State, plan.LastErrorCode)
	}
	checkCounts(t, plan.PublishReport, 3, 0, 3)
	if n := h.fake.CallCount(http.MethodGet, "/media/777/"); n > 2 {
		t.Errorf("media resolved %d times, want once per attempt", n)
	}
}

func TestOrchestrator_PanicBecomesFailed(t *testing.T) {
	t.Parallel()

	// A nil platform makes the first remote call panic inside a target.
	h := newHarness(t, staticPlatform{})
	plan := h.approved(t)

	plan, err := h.orch.Publish(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if plan.State != models.PlanFailed || plan.LastErrorCode != CodeInternal {
		t.Errorf("State = %s code = %q, want FAILED INTERNAL_ERROR", plan.State, plan.LastErrorCode)
	}
	alerts := h.rec.alertTypes()
	if len(alerts) != 1 || alerts[0] != models.AlertPublishFailed {
		t.Errorf("alerts = %v", alerts)
	}
}

func TestOrchestrator_Rollback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.approved(t)
	if plan, err := h.orch.Publish(ctx, plan.ID); err != nil || plan.State != models.PlanPublished {
		t.Fatalf("Publish() = %v, %v", plan, err)
	}
	pushesBefore := len(h.fake.Pushes())

	plan, err := h.orch.Rollback(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if plan.State != models.PlanRolledBack || plan.RolledBackAt == nil {
		t.Fatalf("State = %s, want ROLLED_BACK", plan.State)
	}
	checkCounts(t, plan.RollbackReport, 3, 3, 0)
	if plan.LastErrorCode != "" {
		t.Errorf("LastErrorCode = %q", plan.LastErrorCode)
	}
	for _, pl := range []int{101, 102, 103} {
		if n := countMedia(t, h.fake, pl, assetID); n != 0 {
			t.Errorf("playlist %d still carries the asset", pl)
		}
		if n := countMedia(t, h.fake, pl, baselineID); n != 1 {
			t.Errorf("playlist %d lost its baseline item", pl)
		}
	}
	if got := len(h.fake.Pushes()) - pushesBefore; got != 3 {
		t.Errorf("rollback pushes = %d, want 3", got)
	}
	if types := h.rec.eventTypes(); types[len(types)-1] != events.TypePlanRolledBack {
		t.Errorf("events = %v", types)
	}
	if _, err := h.orch.Rollback(ctx, plan.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Rollback() error = %v, want ErrInvalidState", err)
	}
}

func TestOrchestrator_RollbackPartial(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.approved(t)
	if _, err := h.orch.Publish(ctx, plan.ID); err != nil {
		t.Fatal(err)
	}

	h.fake.FailNext(http.MethodPatch, "/playlists/103/", http.StatusBadRequest)
	plan, err := h.orch.Rollback(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if plan.State != models.PlanRolledBack {
		t.Fatalf("State = %s, want ROLLED_BACK", plan.State)
	}
	checkCounts(t, plan.RollbackReport, 3, 2, 1)
	if plan.LastErrorCode != CodeRollbackPartial {
		t.Errorf("LastErrorCode = %q, want ROLLBACK_PARTIAL", plan.LastErrorCode)
	}
	if countMedia(t, h.fake, 103, assetID) != 1 {
		t.Error("failed target should still carry the asset")
	}
	alerts := h.rec.alertTypes()
	if len(alerts) == 0 || alerts[len(alerts)-1] != models.AlertRollbackPartial {
		t.Errorf("alerts = %v", alerts)
	}
}

func TestOrchestrator_Bulk(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()

	ok1 := h.create(t, 2)
	ok2 := h.create(t, 1)
	short := h.create(t, 5)

	res := h.orch.BulkSimulate(ctx, []string{ok1.ID, ok2.ID, short.ID, ok1.ID, "missing"})
	if res.Total != 4 || res.SuccessCount != 2 {
		t.Fatalf("BulkSimulate = %d/%d, want 2/4", res.SuccessCount, res.Total)
	}
	byID := map[string]BulkItemResult{}
	for _, r := range res.Results {
		byID[r.PlanID] = r
	}
	if r := byID[short.ID]; r.OK || r.State != models.PlanSimulatedFail {
		t.Errorf("short plan = %+v", r)
	}
	if r := byID["missing"]; r.OK || r.ErrorCode != CodeNotFound {
		t.Errorf("missing plan = %+v", r)
	}

	res = h.orch.BulkApprove(ctx, []string{ok1.ID, ok2.ID, short.ID})
	if res.SuccessCount != 2 {
		t.Errorf("BulkApprove success = %d, want 2: %+v", res.SuccessCount, res.Results)
	}
	for _, r := range res.Results {
		if r.PlanID == short.ID && r.ErrorCode != CodeInvalidState {
			t.Errorf("approve short plan code = %q", r.ErrorCode)
		}
	}

	res = h.orch.BulkPublish(ctx, []string{ok1.ID, ok2.ID})
	if res.SuccessCount != 2 {
		t.Errorf("BulkPublish success = %d, want 2: %+v", res.SuccessCount, res.Results)
	}
	for _, r := range res.Results {
		if r.State != models.PlanPublished {
			t.Errorf("plan %s state = %s", r.PlanID, r.State)
		}
	}
}

// approvedOn creates, simulates and approves a plan placing mediaID on a
// single screen.
func (h *harness) approvedOn(t *testing.T, mediaID, screenID int) *models.PlacementPlan {
	t.Helper()
	ctx := context.Background()
	name := fmt.Sprintf("Spot %d", mediaID)
	h.fake.PutMedia(yodeck.Media{ID: mediaID, Name: name, Status: yodeck.MediaFinished,
		MediaOrigin: yodeck.MediaOrigin{Type: "video", Source: yodeck.OriginLocal}})
	plan, err := h.orch.Create(ctx, CreateInput{
		AdvertiserID:    "adv-2",
		AssetMediaID:    mediaID,
		AssetName:       name,
		RequiredTargets: 1,
		Rules:           models.PlacementRules{RequireOnline: true, ScreenIDs: []int{screenID}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := h.orch.Simulate(ctx, plan.ID); err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	plan, err = h.orch.Approve(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	return plan
}

// pairReads holds the first GET of path, once armed, until a second GET of
// it arrives or wait elapses. Two unserialized edits of the playlist would
// then both read the same items before either writes.
func pairReads(fake *testinfra.FakeYodeck, path string, wait time.Duration) (arm func()) {
	var armed atomic.Bool
	var n atomic.Int32
	second := make(chan struct{})
	fake.BeforeRequest = func(method, p string) {
		if !armed.Load() || method != http.MethodGet || p != path {
			return
		}
		switch n.Add(1) {
		case 1:
			select {
			case <-second:
			case <-time.After(wait):
			}
		case 2:
			close(second)
		}
	}
	return func() { armed.Store(true) }
}

func TestOrchestrator_BulkPublishSharedPlaylist(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	arm := pairReads(h.fake, "/playlists/101/", 200*time.Millisecond)
	ctx := context.Background()

	first := h.approvedOn(t, 601, 11)
	second := h.approvedOn(t, 602, 11)
	arm()

	res := h.orch.BulkPublish(ctx, []string{first.ID, second.ID})
	if res.SuccessCount != 2 {
		t.Fatalf("BulkPublish success = %d, want 2: %+v", res.SuccessCount, res.Results)
	}
	for _, id := range []int{601, 602, baselineID} {
		if n := countMedia(t, h.fake, 101, id); n != 1 {
			t.Errorf("playlist 101 carries media %d %d times, want 1", id, n)
		}
	}
	for _, id := range []string{first.ID, second.ID} {
		stored, err := h.store.GetPlan(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if stored.State != models.PlanPublished {
			t.Errorf("plan %s state = %s, want PUBLISHED", id, stored.State)
		}
	}
}

func TestOrchestrator_PublishDuringRollbackSharedPlaylist(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	arm := pairReads(h.fake, "/playlists/101/", 200*time.Millisecond)
	ctx := context.Background()

	old := h.approvedOn(t, assetID, 11)
	if plan, err := h.orch.Publish(ctx, old.ID); err != nil || plan.State != models.PlanPublished {
		t.Fatalf("Publish() = %v, %v", plan, err)
	}
	next := h.approvedOn(t, 602, 11)
	arm()

	var (
		wg                  sync.WaitGroup
		rolled, published   *models.PlacementPlan
		rollErr, publishErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rolled, rollErr = h.orch.Rollback(ctx, old.ID)
	}()
	go func() {
		defer wg.Done()
		published, publishErr = h.orch.Publish(ctx, next.ID)
	}()
	wg.Wait()

	if rollErr != nil || rolled.State != models.PlanRolledBack || rolled.LastErrorCode != "" {
		t.Fatalf("Rollback() = %+v, %v", rolled, rollErr)
	}
	if publishErr != nil || published.State != models.PlanPublished {
		t.Fatalf("Publish() = %+v, %v", published, publishErr)
	}
	if n := countMedia(t, h.fake, 101, assetID); n != 0 {
		t.Errorf("rolled back asset still on playlist 101 (%d)", n)
	}
	if n := countMedia(t, h.fake, 101, 602); n != 1 {
		t.Errorf("published asset on playlist 101 %d times, want 1", n)
	}
	if n := countMedia(t, h.fake, 101, baselineID); n != 1 {
		t.Errorf("baseline on playlist 101 %d times, want 1", n)
	}
}

func TestOrchestrator_PublishUnverifiedPlaylist(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	var patched atomic.Bool
	h.fake.BeforeRequest = func(method, path string) {
		if path != "/playlists/101/" {
			return
		}
		switch {
		case method == http.MethodPatch:
			patched.Store(true)
		case method == http.MethodGet && patched.CompareAndSwap(true, false):
			// Another editor replaces the items right after our write.
			h.fake.PutPlaylist(yodeck.Playlist{ID: 101, Name: "ads", Items: []yodeck.PlaylistItem{
				{ID: baselineID, Type: yodeck.SourceMedia, Duration: 30},
			}})
		}
	}
	ctx := context.Background()

	plan := h.approvedOn(t, 601, 11)
	plan, err := h.orch.Publish(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if plan.State != models.PlanFailed {
		t.Fatalf("State = %s, want FAILED", plan.State)
	}
	checkCounts(t, plan.PublishReport, 1, 0, 1)
	if got := plan.PublishReport.Targets[0].ErrorCode; got != CodePlaylistUnverified {
		t.Errorf("target ErrorCode = %q, want %q", got, CodePlaylistUnverified)
	}
	if got := h.fake.CallCount(http.MethodPatch, "/playlists/101/"); got != 1 {
		t.Errorf("playlist patches = %d, want 1", got)
	}
}

func TestOrchestrator_SettleRetriesFailedWrite(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.approved(t)

	attempts := 0
	h.store.mu.Lock()
	h.store.failSave = func(p *models.PlacementPlan) error {
		if p.State != models.PlanPublished {
			return nil
		}
		attempts++
		if attempts == 1 {
			return errors.New("database is locked")
		}
		return nil
	}
	h.store.mu.Unlock()

	plan, err := h.orch.Publish(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if plan.State != models.PlanPublished {
		t.Errorf("State = %s, want PUBLISHED", plan.State)
	}
	stored, err := h.store.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != models.PlanPublished {
		t.Errorf("stored state = %s, want PUBLISHED", stored.State)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if attempts != 2 {
		t.Errorf("PUBLISHED saves = %d, want 2", attempts)
	}
}

func TestOrchestrator_RollbackWhileRollingBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.approved(t)
	if _, err := h.orch.Publish(ctx, plan.ID); err != nil {
		t.Fatal(err)
	}
	patchesBefore := map[int]int{}
	for _, pl := range []int{101, 102, 103} {
		patchesBefore[pl] = h.fake.CallCount(http.MethodPatch, fmt.Sprintf("/playlists/%d/", pl))
	}
	pushesBefore := len(h.fake.Pushes())

	claimed := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.store.mu.Lock()
	h.store.onSave = func(p *models.PlacementPlan) {
		if p.State == models.PlanPublished && p.RollbackStartedAt != nil {
			once.Do(func() {
				close(claimed)
				<-release
			})
		}
	}
	h.store.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Rollback(ctx, plan.ID)
		done <- err
	}()
	<-claimed

	if _, err := h.orch.Rollback(ctx, plan.ID); !errors.Is(err, ErrAlreadyProcessing) {
		t.Errorf("Rollback() while rolling back: error = %v, want ErrAlreadyProcessing", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Rollback() error = %v", err)
	}
	for _, pl := range []int{101, 102, 103} {
		got := h.fake.CallCount(http.MethodPatch, fmt.Sprintf("/playlists/%d/", pl)) - patchesBefore[pl]
		if got != 1 {
			t.Errorf("playlist %d rollback patches = %d, want 1", pl, got)
		}
	}
	if got := len(h.fake.Pushes()) - pushesBefore; got != 3 {
		t.Errorf("rollback pushes = %d, want 3", got)
	}
}

func TestOrchestrator_ClaimRollbackRace(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.approved(t)
	if _, err := h.orch.Publish(ctx, plan.ID); err != nil {
		t.Fatal(err)
	}

	first, err := h.store.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.store.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}

	if err := h.orch.claimRollback(ctx, first); err != nil {
		t.Fatalf("first claimRollback() error = %v", err)
	}
	if err := h.orch.claimRollback(ctx, second); !errors.Is(err, ErrAlreadyProcessing) {
		t.Fatalf("second claimRollback() error = %v, want ErrAlreadyProcessing", err)
	}
	if second.RollbackStartedAt != nil {
		t.Error("loser kept its rollback claim")
	}
}

func TestOrchestrator_RollbackClaimExpiry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		age     time.Duration
		wantErr error
	}{
		{name: "fresh claim", age: time.Minute, wantErr: ErrAlreadyProcessing},
		{name: "claim past attempt timeout", age: 11 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, nil)
			ctx := context.Background()
			plan := h.approved(t)
			if _, err := h.orch.Publish(ctx, plan.ID); err != nil {
				t.Fatal(err)
			}
			stored, err := h.store.GetPlan(ctx, plan.ID)
			if err != nil {
				t.Fatal(err)
			}
			at := time.Now().Add(-tt.age).UTC()
			stored.RollbackStartedAt = &at
			if err := h.store.SavePlan(ctx, stored); err != nil {
				t.Fatal(err)
			}

			_, err = h.orch.Rollback(ctx, plan.ID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Rollback() error = %v, want %v", err, tt.wantErr)
			}
			want := 1
			if tt.wantErr == nil {
				want = 0
			}
			if n := countMedia(t, h.fake, 101, assetID); n != want {
				t.Errorf("asset on playlist 101 %d times, want %d", n, want)
			}
		})
	}
}
