// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/screenline/internal/config"
	"github.com/tomtom215/screenline/internal/credentials"
	"github.com/tomtom215/screenline/internal/database"
	"github.com/tomtom215/screenline/internal/media"
	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/publish"
	"github.com/tomtom215/screenline/internal/reconcile"
	"github.com/tomtom215/screenline/internal/signage"
	"github.com/tomtom215/screenline/internal/testinfra"
	"github.com/tomtom215/screenline/internal/yodeck"
)

// testDBSemaphore serializes DuckDB usage across parallel tests.
var testDBSemaphore = make(chan struct{}, 1)

const (
	assetID = 501
	urlID   = 700
)

type fakePlatforms struct {
	mu       sync.Mutex
	platform *signage.Platform
	err      error
	resets   int
	clears   int
}

func (f *fakePlatforms) Platform(context.Context) (*signage.Platform, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.platform, nil
}

func (f *fakePlatforms) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakePlatforms) ClearCaches() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
}

type memCredentials struct {
	mu    sync.Mutex
	label string
	value string
}

func (m *memCredentials) Set(_ context.Context, label, value string) error {
	if label == "" || value == "" {
		return credentials.ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.label, m.value = label, value
	return nil
}

func (m *memCredentials) Status(context.Context) (credentials.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.label == "" {
		return credentials.Status{}, nil
	}
	return credentials.Status{Configured: true, Label: m.label, MaskedValue: config.MaskToken(m.value)}, nil
}

type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

type apiHarness struct {
	handler   http.Handler
	db        *database.DB
	fake      *testinfra.FakeYodeck
	platforms *fakePlatforms
	creds     *memCredentials
}

func newAPIHarness(t *testing.T, mw *ChiMiddlewareConfig) *apiHarness {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := database.Open(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fake := testinfra.NewFakeYodeck(t)
	fake.PutMedia(yodeck.Media{ID: assetID, Name: "Spring Campaign", Status: yodeck.MediaFinished,
		MediaOrigin: yodeck.MediaOrigin{Type: "video", Source: yodeck.OriginLocal}})
	fake.PutMedia(yodeck.Media{ID: urlID, Name: "Weather Feed", Status: yodeck.MediaFinished,
		MediaOrigin: yodeck.MediaOrigin{Type: "web", Source: yodeck.OriginURL},
		Arguments:   map[string]json.RawMessage{yodeck.ArgPlayFromURL: json.RawMessage(`"https://example.com/feed"`)}})
	fake.PutPlaylist(yodeck.Playlist{ID: 101, Name: "ads", Items: []yodeck.PlaylistItem{}})
	fake.PutScreen(yodeck.Screen{ID: 11, Name: "Lobby", State: yodeck.ScreenState{Online: true},
		ScreenContent: &yodeck.ContentRef{SourceType: yodeck.SourcePlaylist, SourceID: 101}})

	platforms := &fakePlatforms{platform: signage.NewPlatform(fake.Client(t, yodeck.Options{}), time.Minute)}
	mediaOpts := media.Options{PollAttempts: 1, PollInitialDelay: time.Millisecond, PollMaxDelay: time.Millisecond}
	orch := publish.New(db, db, platforms, publish.Options{Media: mediaOpts}, publish.WithAlerts(db))
	rec := reconcile.New(db, db, platforms)
	creds := &memCredentials{}

	if mw == nil {
		mw = DefaultChiMiddlewareConfig()
		mw.RateLimitDisabled = true
	}
	handler := NewHandler(Dependencies{
		Plans:        orch,
		Reconciler:   rec,
		Store:        db,
		Platforms:    platforms,
		Credentials:  creds,
		MediaOptions: mediaOpts,
	})
	return &apiHarness{
		handler:   NewRouter(handler, mw).Setup(),
		db:        db,
		fake:      fake,
		platforms: platforms,
		creds:     creds,
	}
}

func (h *apiHarness) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, env
}

func (h *apiHarness) expect(t *testing.T, method, path, body string, status int) envelope {
	t.Helper()
	w, env := h.do(t, method, path, body)
	if w.Code != status {
		t.Fatalf("%s %s: status = %d, want %d (body %s)", method, path, w.Code, status, w.Body.String())
	}
	return env
}

func expectCode(t *testing.T, env envelope, code string) {
	t.Helper()
	if env.Error == nil || env.Error.Code != code {
		t.Fatalf("error = %+v, want code %s", env.Error, code)
	}
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return v
}

func (h *apiHarness) registerScreen(t *testing.T) {
	t.Helper()
	h.expect(t, http.MethodPut, "/api/v1/locations/loc-a/screens/11",
		`{"name":"Lobby","playlist_id":101,"ad_capacity":2}`, http.StatusOK)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)

	env := h.expect(t, http.MethodGet, "/api/v1/health/live", "", http.StatusOK)
	if env.Status != "success" {
		t.Errorf("live status = %q", env.Status)
	}

	env = h.expect(t, http.MethodGet, "/api/v1/health/ready", "", http.StatusOK)
	ready := decodeData[map[string]interface{}](t, env)
	if ready["database_connected"] != true || ready["signage"] != "configured" {
		t.Errorf("ready = %v", ready)
	}

	h.platforms.err = signage.ErrNotConfigured
	env = h.expect(t, http.MethodGet, "/api/v1/health/ready", "", http.StatusOK)
	if got := decodeData[map[string]interface{}](t, env)["signage"]; got != "not_configured" {
		t.Errorf("signage = %v, want not_configured", got)
	}
}

func TestPlanLifecycle(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)
	h.registerScreen(t)

	env := h.expect(t, http.MethodPost, "/api/v1/plans",
		`{"advertiser_id":"adv-1","asset_media_id":501,"asset_name":"Spring Campaign","required_targets":1}`,
		http.StatusCreated)
	plan := decodeData[models.PlacementPlan](t, env)
	if plan.State != models.PlanProposed {
		t.Fatalf("state = %s, want PROPOSED", plan.State)
	}
	base := "/api/v1/plans/" + plan.ID

	steps := []struct {
		action string
		want   models.PlanState
	}{
		{"simulate", models.PlanSimulatedOK},
		{"approve", models.PlanApproved},
		{"publish", models.PlanPublished},
	}
	for _, step := range steps {
		env = h.expect(t, http.MethodPost, base+"/"+step.action, "", http.StatusOK)
		if got := decodeData[models.PlacementPlan](t, env).State; got != step.want {
			t.Fatalf("%s: state = %s, want %s", step.action, got, step.want)
		}
	}
	if h.fake.CallCount(http.MethodPatch, "/playlists/101/") != 1 {
		t.Errorf("playlist 101 patched %d times, want 1", h.fake.CallCount(http.MethodPatch, "/playlists/101/"))
	}

	env = h.expect(t, http.MethodPost, base+"/publish", "", http.StatusConflict)
	expectCode(t, env, publish.CodeInvalidState)

	env = h.expect(t, http.MethodGet, "/api/v1/plans?state=PUBLISHED", "", http.StatusOK)
	if env.Metadata.Total == nil || *env.Metadata.Total != 1 {
		t.Errorf("total = %v, want 1", env.Metadata.Total)
	}

	h.expect(t, http.MethodGet, base, "", http.StatusOK)
	env = h.expect(t, http.MethodGet, "/api/v1/plans/0b7f8a4e-0000-4000-8000-000000000000", "", http.StatusNotFound)
	expectCode(t, env, publish.CodeNotFound)

	env = h.expect(t, http.MethodPost, base+"/explode", "", http.StatusNotFound)
	expectCode(t, env, publish.CodeNotFound)
}

func TestPlanRequestErrors(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"empty create", http.MethodPost, "/api/v1/plans", `{}`, http.StatusBadRequest, publish.CodeValidation},
		{"malformed create", http.MethodPost, "/api/v1/plans", `{"advertiser_id":`, http.StatusBadRequest, "INVALID_JSON"},
		{"missing body", http.MethodPost, "/api/v1/plans", ``, http.StatusBadRequest, "INVALID_JSON"},
		{"unknown state filter", http.MethodGet, "/api/v1/plans?state=LIVE", ``, http.StatusBadRequest, publish.CodeValidation},
		{"negative limit", http.MethodGet, "/api/v1/plans?limit=-1", ``, http.StatusBadRequest, publish.CodeValidation},
		{"bulk without ids", http.MethodPost, "/api/v1/plans/bulk/simulate", `{"plan_ids":[]}`, http.StatusBadRequest, publish.CodeValidation},
		{"bulk with bad id", http.MethodPost, "/api/v1/plans/bulk/approve", `{"plan_ids":["nope"]}`, http.StatusBadRequest, publish.CodeValidation},
		{"bulk unknown action", http.MethodPost, "/api/v1/plans/bulk/rollback", `{"plan_ids":[]}`, http.StatusNotFound, publish.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := h.expect(t, tt.method, tt.path, tt.body, tt.status)
			expectCode(t, env, tt.code)
		})
	}
}

func TestValidationDetails(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)

	env := h.expect(t, http.MethodPost, "/api/v1/plans", `{"asset_media_id":501}`, http.StatusBadRequest)
	details, ok := env.Error.Details.(map[string]interface{})
	if !ok {
		t.Fatalf("details = %#v, want object", env.Error.Details)
	}
	fields, ok := details["fields"].([]interface{})
	if !ok || len(fields) == 0 {
		t.Fatalf("fields = %#v, want failed constraints", details["fields"])
	}
}

func TestBulkSimulate(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)
	h.registerScreen(t)

	env := h.expect(t, http.MethodPost, "/api/v1/plans",
		`{"advertiser_id":"adv-1","asset_media_id":501,"asset_name":"Spring Campaign","required_targets":1}`,
		http.StatusCreated)
	plan := decodeData[models.PlacementPlan](t, env)

	body := `{"plan_ids":["` + plan.ID + `","0b7f8a4e-0000-4000-8000-000000000000"]}`
	env = h.expect(t, http.MethodPost, "/api/v1/plans/bulk/simulate", body, http.StatusOK)
	result := decodeData[publish.BulkResult](t, env)
	if result.Total != 2 || result.SuccessCount != 1 {
		t.Fatalf("bulk = %+v, want 1 of 2", result)
	}
	for _, item := range result.Results {
		if item.PlanID != plan.ID && item.ErrorCode != publish.CodeNotFound {
			t.Errorf("missing plan result = %+v, want NOT_FOUND", item)
		}
	}
}

func TestScreenContent(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)
	h.fake.PutPlaylist(yodeck.Playlist{ID: 101, Name: "ads", Items: []yodeck.PlaylistItem{
		{ID: assetID, Type: yodeck.SourceMedia, Duration: 15},
	}})

	env := h.expect(t, http.MethodGet, "/api/v1/screens/11/content", "", http.StatusOK)
	content := decodeData[map[string]interface{}](t, env)
	if content["status"] != "has_content" {
		t.Errorf("status = %v, want has_content", content["status"])
	}

	env = h.expect(t, http.MethodGet, "/api/v1/screens/99/content", "", http.StatusNotFound)
	expectCode(t, env, publish.CodeNotFound)

	env = h.expect(t, http.MethodGet, "/api/v1/screens/abc/content", "", http.StatusBadRequest)
	expectCode(t, env, publish.CodeValidation)

	h.platforms.err = signage.ErrNotConfigured
	env = h.expect(t, http.MethodGet, "/api/v1/screens/11/content", "", http.StatusServiceUnavailable)
	expectCode(t, env, publish.CodeNotConfigured)
}

func TestMediaEndpoints(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)

	env := h.expect(t, http.MethodPost, "/api/v1/media/501/ensure-ready", "", http.StatusOK)
	res := decodeData[media.Resolution](t, env)
	if res.ResolvedID == nil || *res.ResolvedID != assetID || res.Method != media.MethodDirect {
		t.Errorf("resolution = %+v, want direct 501", res)
	}

	tests := []struct {
		name   string
		body   string
		fail   bool
		status int
		code   string
	}{
		{"drops the only url", `{"arguments":{"play_from_url":null}}`, false, http.StatusUnprocessableEntity, media.CodeMissingURL},
		{"empty patch", `{}`, false, http.StatusBadRequest, publish.CodeValidation},
		{"platform rejects", `{"name":"Weather"}`, true, http.StatusUnprocessableEntity, "UPSTREAM_VALIDATION"},
		{"rename", `{"name":"Weather"}`, false, http.StatusOK, ""},
	}
	for _, tt := range tests {
		if tt.fail {
			h.fake.FailNext(http.MethodPatch, "/media/700/", http.StatusBadRequest)
		}
		env := h.expect(t, http.MethodPatch, "/api/v1/media/700/arguments", tt.body, tt.status)
		if tt.code != "" {
			expectCode(t, env, tt.code)
		}
	}

	m, _ := h.fake.Media(urlID)
	if m.Name != "Weather" {
		t.Errorf("name = %q, want Weather", m.Name)
	}
	if _, ok := m.Arguments[yodeck.ArgPlayFromURL]; !ok {
		t.Error("play_from_url was lost by the rename")
	}
}

func TestUpstreamValidationDetails(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)

	h.fake.FailNext(http.MethodPatch, "/media/700/", http.StatusBadRequest)
	env := h.expect(t, http.MethodPatch, "/api/v1/media/700/arguments", `{"name":"x"}`, http.StatusUnprocessableEntity)
	details, ok := env.Error.Details.(map[string]interface{})
	if !ok {
		t.Fatalf("details = %#v", env.Error.Details)
	}
	if details["code"] != "http_400" {
		t.Errorf("code = %v, want http_400", details["code"])
	}
	body, ok := details["body"].(map[string]interface{})
	if !ok || body["detail"] != "injected failure" {
		t.Errorf("body = %#v, want the platform payload", details["body"])
	}
}

func TestLocationsAndReconcile(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)
	h.registerScreen(t)

	env := h.expect(t, http.MethodGet, "/api/v1/locations/loc-a/screens", "", http.StatusOK)
	if screens := decodeData[[]models.LocationScreen](t, env); len(screens) != 1 || screens[0].PlaylistID != 101 {
		t.Fatalf("screens = %+v", screens)
	}

	env = h.expect(t, http.MethodPut, "/api/v1/locations/loc-a/screens/12",
		`{"baseline":{"source_type":"media","source_id":5}}`, http.StatusBadRequest)
	expectCode(t, env, publish.CodeValidation)

	env = h.expect(t, http.MethodPost, "/api/v1/locations/loc-a/reconcile", "", http.StatusOK)
	report := decodeData[reconcile.Report](t, env)
	if report.Reason != reconcile.ReasonManual || report.Push || len(report.Outcomes) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !report.Outcomes[0].Compliant {
		t.Errorf("outcome = %+v, want compliant", report.Outcomes[0])
	}

	env = h.expect(t, http.MethodGet, "/api/v1/locations/loc-a/screen-status", "", http.StatusOK)
	if statuses := decodeData[[]models.ScreenStatus](t, env); len(statuses) != 1 || statuses[0].ScreenID != 11 {
		t.Fatalf("statuses = %+v", statuses)
	}

	h.expect(t, http.MethodDelete, "/api/v1/locations/loc-b/screens/11", "", http.StatusNotFound)
	h.expect(t, http.MethodDelete, "/api/v1/locations/loc-a/screens/11", "", http.StatusNoContent)
	h.expect(t, http.MethodDelete, "/api/v1/locations/loc-a/screens/11", "", http.StatusNotFound)
}

func TestAlerts(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)

	alert := &models.Alert{Type: models.AlertScreenOffline, Severity: models.SeverityWarning,
		ScreenID: 11, LocationID: "loc-a", Message: "screen 11 is offline"}
	if err := h.db.CreateAlert(context.Background(), alert); err != nil {
		t.Fatalf("CreateAlert() error = %v", err)
	}

	env := h.expect(t, http.MethodGet, "/api/v1/alerts?type=screen_offline", "", http.StatusOK)
	if env.Metadata.Total == nil || *env.Metadata.Total != 1 {
		t.Fatalf("total = %v, want 1", env.Metadata.Total)
	}

	path := "/api/v1/alerts/" + alert.ID + "/acknowledge"
	env = h.expect(t, http.MethodPost, path, `{}`, http.StatusBadRequest)
	expectCode(t, env, publish.CodeValidation)
	h.expect(t, http.MethodPost, path, `{"acknowledged_by":"ops"}`, http.StatusOK)
	h.expect(t, http.MethodPost, "/api/v1/alerts/missing/acknowledge", `{"acknowledged_by":"ops"}`, http.StatusNotFound)

	env = h.expect(t, http.MethodGet, "/api/v1/alerts", "", http.StatusOK)
	if env.Metadata.Total == nil || *env.Metadata.Total != 0 {
		t.Errorf("total after acknowledge = %v, want 0", env.Metadata.Total)
	}
}

func TestIntegration(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)

	env := h.expect(t, http.MethodGet, "/api/v1/integration/credentials", "", http.StatusOK)
	if decodeData[credentials.Status](t, env).Configured {
		t.Fatal("configured before any credentials were stored")
	}

	env = h.expect(t, http.MethodPut, "/api/v1/integration/credentials", `{"token_label":"ops"}`, http.StatusBadRequest)
	expectCode(t, env, publish.CodeValidation)

	env = h.expect(t, http.MethodPut, "/api/v1/integration/credentials",
		`{"token_label":"ops","token_value":"secret-token-1234"}`, http.StatusOK)
	status := decodeData[credentials.Status](t, env)
	if !status.Configured || status.MaskedValue != "****...1234" {
		t.Errorf("status = %+v", status)
	}
	if strings.Contains(string(env.Data), "secret-token") {
		t.Error("response leaks the token")
	}
	if h.platforms.resets != 1 {
		t.Errorf("resets = %d, want 1", h.platforms.resets)
	}

	h.expect(t, http.MethodDelete, "/api/v1/integration/cache", "", http.StatusOK)
	if h.platforms.clears != 1 {
		t.Errorf("clears = %d, want 1", h.platforms.clears)
	}
}

func TestRouting(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nowhere", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Metadata.RequestID != "req-42" || w.Header().Get("X-Request-ID") != "req-42" {
		t.Errorf("request id = %q / %q, want req-42", env.Metadata.RequestID, w.Header().Get("X-Request-ID"))
	}

	env = h.expect(t, http.MethodDelete, "/api/v1/health/live", "", http.StatusMethodNotAllowed)
	expectCode(t, env, "METHOD_NOT_ALLOWED")

	w = httptest.NewRecorder()
	h.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("/metrics status = %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	mw := DefaultChiMiddlewareConfig()
	mw.RateLimitRequests = 2
	mw.RateLimitWindow = time.Minute
	h := newAPIHarness(t, mw)

	for i := 0; i < 2; i++ {
		h.expect(t, http.MethodGet, "/api/v1/alerts", "", http.StatusOK)
	}
	env := h.expect(t, http.MethodGet, "/api/v1/alerts", "", http.StatusTooManyRequests)
	expectCode(t, env, "RATE_LIMITED")

	// health checks are not rate limited
	h.expect(t, http.MethodGet, "/api/v1/health/live", "", http.StatusOK)
}

func TestChiMiddlewareConfigFrom(t *testing.T) {
	t.Parallel()

	cfg := ChiMiddlewareConfigFrom(config.ServerConfig{
		CORSOrigins:     []string{"https://ops.example.com"},
		RateLimitReqs:   10,
		RateLimitWindow: 30 * time.Second,
	})
	if cfg.RateLimitRequests != 10 || cfg.RateLimitWindow != 30*time.Second || cfg.RateLimitDisabled {
		t.Errorf("rate limit = %d/%s disabled=%v", cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitDisabled)
	}
	if len(cfg.CORSAllowedOrigins) != 1 {
		t.Errorf("origins = %v", cfg.CORSAllowedOrigins)
	}

	defaults := ChiMiddlewareConfigFrom(config.ServerConfig{})
	if defaults.RateLimitRequests != 100 || defaults.RateLimitWindow != time.Minute {
		t.Errorf("defaults = %d/%s", defaults.RateLimitRequests, defaults.RateLimitWindow)
	}
}
