// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/screenline/internal/yodeck"
)

// Capture is one request received by the fake.
type Capture struct {
	Method string
	Path   string
	Body   []byte
}

// FakeYodeck is an in-memory Yodeck API.
type FakeYodeck struct {
	Server *httptest.Server

	// CompleteStatus is the media status set by upload completion
	// (default finished).
	CompleteStatus string

	// OnGetMedia, when set, may mutate a media before a GET returns it.
	// It runs with the fake's lock held.
	OnGetMedia func(m *yodeck.Media)

	// BeforeRequest, when set, runs before every request is served and may
	// block to force an interleaving. It runs without the fake's lock and
	// must be set before the first request.
	BeforeRequest func(method, path string)

	mu        sync.Mutex
	nextID    int
	screens   map[int]*yodeck.Screen
	playlists map[int]*yodeck.Playlist
	layouts   map[int]*yodeck.Layout
	schedules map[int]*yodeck.Schedule
	tagbased  map[int]*yodeck.TagbasedPlaylist
	media     map[int]*yodeck.Media
	uploads   map[int][]byte
	captures  []Capture
	failures  map[string][]int
}

// NewFakeYodeck starts a fake server that is closed when the test ends.
func NewFakeYodeck(t *testing.T) *FakeYodeck {
	t.Helper()

	f := &FakeYodeck{
		CompleteStatus: yodeck.MediaFinished,
		nextID:         10000,
		screens:        make(map[int]*yodeck.Screen),
		playlists:      make(map[int]*yodeck.Playlist),
		layouts:        make(map[int]*yodeck.Layout),
		schedules:      make(map[int]*yodeck.Schedule),
		tagbased:       make(map[int]*yodeck.TagbasedPlaylist),
		media:          make(map[int]*yodeck.Media),
		uploads:        make(map[int][]byte),
		failures:       make(map[string][]int),
	}
	f.Server = httptest.NewServer(f.routes())
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the API base URL.
func (f *FakeYodeck) URL() string { return f.Server.URL }

// Client returns a gateway pointed at the fake with fast retry settings.
func (f *FakeYodeck) Client(t *testing.T, opts yodeck.Options) *yodeck.Client {
	t.Helper()
	opts.BaseURL = f.URL()
	opts.TokenLabel = "test"
	opts.TokenValue = "token"
	if opts.RetryBase == 0 {
		opts.RetryBase = time.Millisecond
	}
	c, err := yodeck.New(opts)
	if err != nil {
		t.Fatalf("yodeck.New() error = %v", err)
	}
	return c
}

// FailNext makes the next len(statuses) requests to method+path answer with
// the given statuses, in order.
func (f *FakeYodeck) FailNext(method, path string, statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := method + " " + path
	f.failures[k] = append(f.failures[k], statuses...)
}

// PutScreen stores a screen.
func (f *FakeYodeck) PutScreen(s yodeck.Screen) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screens[s.ID] = &s
}

// PutPlaylist stores a playlist, assigning item ids where missing.
func (f *FakeYodeck) PutPlaylist(p yodeck.Playlist) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range p.Items {
		if p.Items[i].ItemID == 0 {
			p.Items[i].ItemID = f.newID()
		}
	}
	f.playlists[p.ID] = &p
}

// PutLayout stores a layout.
func (f *FakeYodeck) PutLayout(l yodeck.Layout) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layouts[l.ID] = &l
}

// PutSchedule stores a schedule.
func (f *FakeYodeck) PutSchedule(s yodeck.Schedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[s.ID] = &s
}

// PutTagbased stores a tag-based playlist.
func (f *FakeYodeck) PutTagbased(tp yodeck.TagbasedPlaylist) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagbased[tp.ID] = &tp
}

// PutMedia stores a media object.
func (f *FakeYodeck) PutMedia(m yodeck.Media) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media[m.ID] = &m
}

// Screen returns a copy of a stored screen.
func (f *FakeYodeck) Screen(id int) (yodeck.Screen, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.screens[id]
	if !ok {
		return yodeck.Screen{}, false
	}
	return *s, true
}

// Playlist returns a copy of a stored playlist.
func (f *FakeYodeck) Playlist(id int) (yodeck.Playlist, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.playlists[id]
	if !ok {
		return yodeck.Playlist{}, false
	}
	cp := *p
	cp.Items = append([]yodeck.PlaylistItem(nil), p.Items...)
	return cp, true
}

// Media returns a copy of a stored media.
func (f *FakeYodeck) Media(id int) (yodeck.Media, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[id]
	if !ok {
		return yodeck.Media{}, false
	}
	return *m, true
}

// Uploaded returns the bytes PUT to a media's signed URL.
func (f *FakeYodeck) Uploaded(id int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads[id]
}

// Captures returns every request received so far.
func (f *FakeYodeck) Captures() []Capture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Capture(nil), f.captures...)
}

// CallCount counts requests matching method and path exactly.
func (f *FakeYodeck) CallCount(method, path string) int {
	n := 0
	for _, c := range f.Captures() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// Pushes returns the ids of pushed screens, in order.
func (f *FakeYodeck) Pushes() []int {
	var out []int
	for _, c := range f.Captures() {
		if c.Method != http.MethodPost || !strings.HasSuffix(c.Path, "/push/") {
			continue
		}
		parts := strings.Split(strings.Trim(c.Path, "/"), "/")
		if id, err := strconv.Atoi(parts[1]); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func (f *FakeYodeck) newID() int {
	f.nextID++
	return f.nextID
}

func (f *FakeYodeck) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(f.capture)

	r.Get("/screens/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		items := values(f.screens)
		f.mu.Unlock()
		writePage(w, r, items)
	})
	r.Get("/screens/{id}/", f.handleGetScreen)
	r.Patch("/screens/{id}/", f.handleAssignScreen)
	r.Post("/screens/{id}/push/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/playlists/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		items := values(f.playlists)
		f.mu.Unlock()
		writePage(w, r, items)
	})
	r.Post("/playlists/", f.handleCreatePlaylist)
	r.Get("/playlists/{id}/", f.handleGetPlaylist)
	r.Patch("/playlists/{id}/", f.handleWritePlaylist)
	r.Put("/playlists/{id}/", f.handleWritePlaylist)
	r.Delete("/playlists/{id}/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.playlists, idParam(r))
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/layouts/{id}/", getter(f, func(id int) (interface{}, bool) { v, ok := f.layouts[id]; return v, ok }))
	r.Get("/schedules/{id}/", getter(f, func(id int) (interface{}, bool) { v, ok := f.schedules[id]; return v, ok }))
	r.Get("/tagbased-playlists/{id}/", getter(f, func(id int) (interface{}, bool) { v, ok := f.tagbased[id]; return v, ok }))

	r.Get("/media/", f.handleListMedia)
	r.Post("/media/", f.handleCreateMedia)
	r.Get("/media/{id}/", f.handleGetMedia)
	r.Patch("/media/{id}/", f.handlePatchMedia)
	r.Delete("/media/{id}/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := idParam(r)
		if _, ok := f.media[id]; !ok {
			notFound(w)
			return
		}
		delete(f.media, id)
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/media/{id}/upload", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, yodeck.UploadTarget{UploadURL: "http://" + r.Host + "/signed/" + chi.URLParam(r, "id")})
	})
	r.Put("/signed/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.uploads[idParam(r)] = body
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	r.Put("/media/{id}/upload/complete", f.handleCompleteUpload)
	return r
}

// capture records the request and serves injected failures.
func (f *FakeYodeck) capture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil && !strings.HasPrefix(r.URL.Path, "/signed/") {
			body, _ = io.ReadAll(r.Body)
			_ = r.Body.Close()
			r.Body = io.NopCloser(strings.NewReader(string(body)))
		}

		if f.BeforeRequest != nil {
			f.BeforeRequest(r.Method, r.URL.Path)
		}

		f.mu.Lock()
		f.captures = append(f.captures, Capture{Method: r.Method, Path: r.URL.Path, Body: body})
		k := r.Method + " " + r.URL.Path
		status := 0
		if q := f.failures[k]; len(q) > 0 {
			status = q[0]
			f.failures[k] = q[1:]
		}
		f.mu.Unlock()

		if status != 0 {
			writeJSON(w, status, map[string]string{"detail": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeYodeck) handleGetScreen(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.screens[idParam(r)]
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (f *FakeYodeck) handleAssignScreen(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ScreenContent yodeck.ContentRef `json:"screen_content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.screens[idParam(r)]
	if !ok {
		notFound(w)
		return
	}
	ref := body.ScreenContent
	s.ScreenContent = &ref
	writeJSON(w, http.StatusOK, s)
}

func (f *FakeYodeck) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.playlists[idParam(r)]
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (f *FakeYodeck) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var in yodeck.PlaylistInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &yodeck.Playlist{ID: f.newID(), Name: in.Name, Description: in.Description, Items: f.items(in.Items)}
	f.playlists[p.ID] = p
	writeJSON(w, http.StatusCreated, p)
}

// handleWritePlaylist serves PATCH and PUT. Items are matched by the
// referenced object's id; unknown media ids are rejected like the real API.
func (f *FakeYodeck) handleWritePlaylist(w http.ResponseWriter, r *http.Request) {
	var in yodeck.PlaylistInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.playlists[idParam(r)]
	if !ok {
		notFound(w)
		return
	}
	for _, it := range in.Items {
		if it.Type == yodeck.SourceMedia {
			if _, ok := f.media[it.ID]; !ok {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Invalid pk \"" + strconv.Itoa(it.ID) + "\" - object does not exist."})
				return
			}
		}
	}
	if in.Name != "" {
		p.Name = in.Name
	}
	p.Items = f.items(in.Items)
	writeJSON(w, http.StatusOK, p)
}

func (f *FakeYodeck) items(in []yodeck.PlaylistItemInput) []yodeck.PlaylistItem {
	out := make([]yodeck.PlaylistItem, 0, len(in))
	for _, it := range in {
		item := yodeck.PlaylistItem{ItemID: f.newID(), ID: it.ID, Type: it.Type, Duration: it.Duration, Priority: it.Priority}
		if m, ok := f.media[it.ID]; ok && it.Type == yodeck.SourceMedia {
			item.Name = m.Name
		}
		out = append(out, item)
	}
	return out
}

func (f *FakeYodeck) handleListMedia(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(r.URL.Query().Get("search"))
	f.mu.Lock()
	var items []yodeck.Media
	for _, m := range values(f.media) {
		if search == "" || strings.Contains(strings.ToLower(m.Name), search) {
			items = append(items, m)
		}
	}
	f.mu.Unlock()
	writePage(w, r, items)
}

func (f *FakeYodeck) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[idParam(r)]
	if !ok {
		notFound(w)
		return
	}
	if f.OnGetMedia != nil {
		f.OnGetMedia(m)
	}
	writeJSON(w, http.StatusOK, m)
}

func (f *FakeYodeck) handleCreateMedia(w http.ResponseWriter, r *http.Request) {
	var in yodeck.MediaInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &yodeck.Media{
		ID:          f.newID(),
		Name:        in.Name,
		Status:      yodeck.MediaInitialized,
		MediaOrigin: in.MediaOrigin,
		Arguments:   in.Arguments,
		Tags:        in.Tags,
	}
	if in.Workspace != 0 {
		m.Workspace = &yodeck.WorkspaceRef{ID: in.Workspace}
	}
	if !m.IsLocal() {
		m.Status = yodeck.MediaProcessing
	}
	f.media[m.ID] = m
	writeJSON(w, http.StatusCreated, m)
}

func (f *FakeYodeck) handlePatchMedia(w http.ResponseWriter, r *http.Request) {
	var patch yodeck.MediaPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[idParam(r)]
	if !ok {
		notFound(w)
		return
	}
	if patch.Name != nil {
		m.Name = *patch.Name
	}
	if patch.Arguments != nil {
		m.Arguments = patch.Arguments
	}
	if patch.Tags != nil {
		m.Tags = patch.Tags
	}
	writeJSON(w, http.StatusOK, m)
}

func (f *FakeYodeck) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := idParam(r)
	m, ok := f.media[id]
	if !ok {
		notFound(w)
		return
	}
	if data := f.uploads[id]; len(data) > 0 {
		m.File = &yodeck.MediaFile{Size: int64(len(data))}
	}
	m.Status = f.CompleteStatus
	w.WriteHeader(http.StatusNoContent)
}

func getter(f *FakeYodeck, lookup func(id int) (interface{}, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		v, ok := lookup(idParam(r))
		if !ok {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func values[T any](m map[int]*T) []T {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, *m[k])
	}
	return out
}

func writePage[T any](w http.ResponseWriter, r *http.Request, items []T) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	page := yodeck.Page[T]{Count: len(items), Results: items[offset:end]}
	if page.Results == nil {
		page.Results = []T{}
	}
	if end < len(items) {
		q := r.URL.Query()
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(end))
		page.Next = "http://" + r.Host + r.URL.Path + "?" + q.Encode()
	}
	writeJSON(w, http.StatusOK, page)
}

func idParam(r *http.Request) int {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	return id
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
