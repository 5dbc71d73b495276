// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

/*
resolver.go - Content Graph Resolver

Resolve walks the graph behind a content pointer (playlists, layouts,
schedules, tag-based playlists, media) depth first and reports what actually
plays. Every call owns a fresh traversal value; the Resolver itself keeps no
per-resolution state, so one Resolver serves concurrent requests.

Traversal rules:
  - A container key ("type:id") is expanded once. Meeting it again adds a
    warning: "cycle detected" while it is on the current path, "already
    visited" otherwise. Traversal continues either way.
  - The root is depth 0. Containers deeper than MaxDepth are not expanded.
    Media leaves are always recorded.
  - Schedule filler is resolved in a separate traversal and never counted.
  - Fetch failures below the root become warnings.
*/
//nolint:staticcheck // File documentation, not package doc
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/metrics"
	"github.com/tomtom215/screenline/internal/signage"
	"github.com/tomtom215/screenline/internal/yodeck"
)

// MaxDepth is the deepest container level that is expanded.
const MaxDepth = 3

// Resolver resolves content pointers against one platform.
type Resolver struct {
	platform *signage.Platform
	maxDepth int
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides time.Now for takeover evaluation.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithMaxDepth overrides MaxDepth.
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) { r.maxDepth = depth }
}

// New creates a Resolver.
func New(platform *signage.Platform, opts ...Option) *Resolver {
	r := &Resolver{
		platform: platform,
		maxDepth: MaxDepth,
		now:      time.Now,
		log:      logging.WithComponent("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveScreenID fetches a screen and resolves it. The error is only the
// screen fetch failure.
func (r *Resolver) ResolveScreenID(ctx context.Context, screenID int) (*Content, error) {
	screen, err := r.platform.Screen(ctx, screenID)
	if err != nil {
		return nil, err
	}
	return r.ResolveScreen(ctx, screen), nil
}

// ResolveScreen resolves what screen is currently told to show, including
// its takeover content.
func (r *Resolver) ResolveScreen(ctx context.Context, screen *yodeck.Screen) *Content {
	c := r.Resolve(ctx, screen.ScreenContent)
	c.ScreenID = screen.ID
	if tk := screen.TakeoverContent; tk != nil && !tk.ContentRef.IsZero() {
		c.TakeoverContent = &Takeover{
			ContentRef: tk.ContentRef,
			StartTime:  tk.StartTime,
			EndTime:    tk.EndTime,
			Active:     tk.ActiveAt(r.now()),
		}
	}
	return c
}

// Resolve resolves a content pointer. A nil pointer yields StatusUnknown.
func (r *Resolver) Resolve(ctx context.Context, ref *yodeck.ContentRef) *Content {
	c := &Content{
		Status:     StatusUnknown,
		MediaItems: []MediaItem{},
		MediaIDs:   []int{},
		Items:      []TraceItem{},
		Warnings:   []string{},
		ResolvedAt: r.now().UTC(),
	}
	if ref == nil || ref.IsZero() {
		c.Warnings = append(c.Warnings, "screen has no content assigned")
		metrics.RecordContentResolution(string(c.Status))
		return c
	}
	root := *ref
	c.Source = &root

	t := r.newTraversal(ctx)
	rootErr := t.visit(root, 0)

	c.MediaItems = append(c.MediaItems, t.media...)
	for _, m := range t.media {
		c.MediaIDs = append(c.MediaIDs, m.ID)
	}
	c.UniqueMediaCount = len(t.media)
	c.TotalItemsInStructure = t.totalItems
	c.Items = append(c.Items, t.items...)
	c.Warnings = append(c.Warnings, t.warnings...)
	c.FillerContent = t.filler

	switch {
	case rootErr != nil && !yodeck.IsNotFound(rootErr):
		c.Status = StatusError
		c.Error = rootErr.Error()
	case len(t.media) > 0:
		c.Status = StatusHasContent
	case t.unresolvedTagbased:
		c.Status = StatusUnknownTagbased
	default:
		c.Status = StatusEmpty
	}

	metrics.RecordContentResolution(string(c.Status))
	r.log.Debug().Str("source", root.Key()).Str("status", string(c.Status)).
		Int("unique_media", c.UniqueMediaCount).Int("warnings", len(c.Warnings)).Msg("Content resolved")
	return c
}

// traversal is the state of one resolution.
type traversal struct {
	ctx context.Context
	r   *Resolver

	visited map[string]bool
	path    map[string]bool
	seen    map[int]bool

	media              []MediaItem
	items              []TraceItem
	warnings           []string
	totalItems         int
	unresolvedTagbased bool
	filler             *SourceSummary

	index      *signage.MediaIndex
	indexErr   error
	indexSet   bool
	indexFresh bool
}

func (r *Resolver) newTraversal(ctx context.Context) *traversal {
	return &traversal{
		ctx:     ctx,
		r:       r,
		visited: make(map[string]bool),
		path:    make(map[string]bool),
		seen:    make(map[int]bool),
	}
}

func (t *traversal) warn(format string, args ...interface{}) {
	t.warnings = append(t.warnings, fmt.Sprintf(format, args...))
}

func (t *traversal) trace(typ string, id int, name string, depth int) {
	t.items = append(t.items, TraceItem{Type: typ, ID: id, Name: name, Depth: depth})
}

// mediaIndex loads the catalogue once per traversal.
func (t *traversal) mediaIndex() (*signage.MediaIndex, error) {
	if !t.indexSet {
		t.index, t.indexErr = t.r.platform.MediaIndex(t.ctx)
		t.indexSet = true
	}
	return t.index, t.indexErr
}

// freshMediaIndex reloads the catalogue from the platform, at most once per
// traversal, after the cached one missed. It reports false when there is
// nothing newer to look at.
func (t *traversal) freshMediaIndex() (*signage.MediaIndex, bool) {
	if t.indexFresh {
		return nil, false
	}
	t.indexFresh = true
	idx, err := t.r.platform.MediaIndexFresh(t.ctx)
	if err != nil {
		return nil, false
	}
	t.index, t.indexErr, t.indexSet = idx, nil, true
	return idx, true
}

// visit dispatches ref by type. The returned error is the fetch failure of
// ref itself; only the root's matters to the caller.
func (t *traversal) visit(ref yodeck.ContentRef, depth int) error {
	if ref.SourceType == yodeck.SourceMedia {
		t.visitMedia(ref, depth)
		return nil
	}

	key := ref.Key()
	if t.visited[key] {
		if t.path[key] {
			t.warn("cycle detected: %s", key)
		} else {
			t.warn("already visited: %s", key)
		}
		return nil
	}

	switch ref.SourceType {
	case yodeck.SourcePlaylist, yodeck.SourceLayout, yodeck.SourceSchedule, yodeck.SourceTagbased:
	default:
		t.visited[key] = true
		t.trace(ref.SourceType, ref.SourceID, ref.SourceName, depth)
		return nil
	}

	if depth > t.r.maxDepth {
		t.warn("max depth %d reached at %s", t.r.maxDepth, key)
		return nil
	}

	t.visited[key] = true
	t.path[key] = true
	defer delete(t.path, key)

	switch ref.SourceType {
	case yodeck.SourcePlaylist:
		return t.visitPlaylist(ref, depth)
	case yodeck.SourceLayout:
		return t.visitLayout(ref, depth)
	case yodeck.SourceSchedule:
		return t.visitSchedule(ref, depth)
	default:
		return t.visitTagbased(ref, depth)
	}
}

func (t *traversal) fetchFailed(ref yodeck.ContentRef, err error) error {
	if yodeck.IsNotFound(err) {
		t.warn("%s %d not found", ref.SourceType, ref.SourceID)
	} else {
		t.warn("%s %d could not be fetched: %v", ref.SourceType, ref.SourceID, err)
	}
	return err
}

func (t *traversal) visitPlaylist(ref yodeck.ContentRef, depth int) error {
	pl, err := t.r.platform.Playlist(t.ctx, ref.SourceID)
	if err != nil {
		return t.fetchFailed(ref, err)
	}
	t.trace(ref.SourceType, pl.ID, pl.Name, depth)
	for _, item := range pl.Items {
		t.totalItems++
		_ = t.visit(item.Ref(), depth+1)
	}
	return nil
}

func (t *traversal) visitLayout(ref yodeck.ContentRef, depth int) error {
	l, err := t.r.platform.Layout(t.ctx, ref.SourceID)
	if err != nil {
		return t.fetchFailed(ref, err)
	}
	t.trace(ref.SourceType, l.ID, l.Name, depth)
	for _, region := range l.Regions {
		if region.Item == nil {
			continue
		}
		t.totalItems++
		_ = t.visit(region.Item.Ref(), depth+1)
	}
	return nil
}

func (t *traversal) visitSchedule(ref yodeck.ContentRef, depth int) error {
	s, err := t.r.platform.Schedule(t.ctx, ref.SourceID)
	if err != nil {
		return t.fetchFailed(ref, err)
	}
	t.trace(ref.SourceType, s.ID, s.Name, depth)
	for _, ev := range s.Events {
		if ev.Source == nil {
			continue
		}
		t.totalItems++
		_ = t.visit(ev.Source.Ref(), depth+1)
	}
	if s.FillerContent != nil && t.filler == nil {
		t.filler = t.resolveFiller(s.FillerContent.Ref(), depth+1)
	}
	return nil
}

// resolveFiller runs a separate traversal so filler never feeds the primary
// counts. It shares the loaded media index.
func (t *traversal) resolveFiller(ref yodeck.ContentRef, depth int) *SourceSummary {
	ft := t.r.newTraversal(t.ctx)
	ft.index, ft.indexErr, ft.indexSet = t.index, t.indexErr, t.indexSet
	_ = ft.visit(ref, depth)

	name := ref.SourceName
	if len(ft.items) > 0 && ft.items[0].Name != "" {
		name = ft.items[0].Name
	}
	media := ft.media
	if media == nil {
		media = []MediaItem{}
	}
	return &SourceSummary{Type: ref.SourceType, ID: ref.SourceID, Name: name, MediaItems: media, Warnings: ft.warnings}
}

func (t *traversal) visitTagbased(ref yodeck.ContentRef, depth int) error {
	tp, err := t.r.platform.TagbasedPlaylist(t.ctx, ref.SourceID)
	if err != nil {
		t.unresolvedTagbased = true
		return t.fetchFailed(ref, err)
	}
	t.trace(ref.SourceType, tp.ID, tp.Name, depth)

	if len(tp.Tags) == 0 || len(tp.Workspaces) == 0 {
		t.unresolvedTagbased = true
		t.warn("tag-based playlist %d has no tags or workspaces", tp.ID)
		return nil
	}
	idx, err := t.mediaIndex()
	if err != nil {
		t.unresolvedTagbased = true
		t.warn("tag-based playlist %d: media catalogue unavailable: %v", tp.ID, err)
		return nil
	}

	workspaces := make([]int, 0, len(tp.Workspaces))
	for _, ws := range tp.Workspaces {
		workspaces = append(workspaces, ws.ID)
	}
	matches := idx.WithTags(tp.Tags, workspaces, tp.Excludes)
	if len(matches) == 0 {
		if fresh, ok := t.freshMediaIndex(); ok {
			matches = fresh.WithTags(tp.Tags, workspaces, tp.Excludes)
		}
	}
	if len(matches) == 0 {
		t.unresolvedTagbased = true
		t.warn("tag-based playlist %d matched no media", tp.ID)
		return nil
	}
	for i := range matches {
		t.totalItems++
		t.recordMedia(&matches[i], depth+1)
	}
	return nil
}

func (t *traversal) visitMedia(ref yodeck.ContentRef, depth int) {
	if t.seen[ref.SourceID] {
		return
	}
	idx, err := t.mediaIndex()
	if err == nil {
		if m, ok := idx.Get(ref.SourceID); ok {
			t.recordMedia(m, depth)
			return
		}
		if fresh, ok := t.freshMediaIndex(); ok {
			if m, ok := fresh.Get(ref.SourceID); ok {
				t.recordMedia(m, depth)
				return
			}
		}
		t.warn("media %d not in catalogue", ref.SourceID)
	} else {
		t.warn("media %d: media catalogue unavailable: %v", ref.SourceID, err)
	}
	name := ref.SourceName
	if name == "" {
		name = fmt.Sprintf("Media %d", ref.SourceID)
	}
	t.recordMedia(&yodeck.Media{ID: ref.SourceID, Name: name}, depth)
}

// recordMedia adds m once; first seen wins.
func (t *traversal) recordMedia(m *yodeck.Media, depth int) {
	if t.seen[m.ID] {
		return
	}
	t.seen[m.ID] = true
	t.visited[yodeck.ContentRef{SourceType: yodeck.SourceMedia, SourceID: m.ID}.Key()] = true
	t.trace(yodeck.SourceMedia, m.ID, m.Name, depth)
	t.media = append(t.media, MediaItem{
		ID:              m.ID,
		Name:            m.Name,
		Type:            yodeck.SourceMedia,
		DurationSeconds: m.Duration,
		MediaType:       m.MediaOrigin.Type,
	})
}
