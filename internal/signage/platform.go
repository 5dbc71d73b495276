// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

/*
platform.go - Signage Platform Context

Platform bundles the gateway with one TTL cache per content kind. It is built
once per credential set and injected into the resolvers and the orchestrator.

Reads of playlists, layouts, schedules and tag-based playlists are served from
cache when possible; the media catalogue is cached as a single index. Every
mutation goes to the gateway first and invalidates the affected cache entry
before returning, so a caller never reads back its own stale write.

Concurrent misses for one entry share a single load. The load is keyed by the
cache's invalidation generation: a caller arriving after an invalidation
starts a new load instead of joining one that began before it, and a load
overtaken by an invalidation returns its result without storing it.

Playlist item edits are read-modify-write cycles on the whole item list.
EditPlaylistItems holds a per-playlist lock across the fresh read and the
patch so two edits through the same Platform never overwrite each other.
*/
//nolint:staticcheck // File documentation, not package doc
package signage

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/screenline/internal/cache"
	"github.com/tomtom215/screenline/internal/yodeck"
)

const mediaIndexKey = "all"

// loadTimeout bounds a shared load, which runs detached from the caller
// that started it.
const loadTimeout = 2 * time.Minute

// Platform is the injectable context object for every signage API consumer.
// It is safe for concurrent use.
type Platform struct {
	client *yodeck.Client

	playlists *cache.TTL[*yodeck.Playlist]
	layouts   *cache.TTL[*yodeck.Layout]
	schedules *cache.TTL[*yodeck.Schedule]
	tagbased  *cache.TTL[*yodeck.TagbasedPlaylist]
	media     *cache.TTL[*MediaIndex]

	loads      singleflight.Group
	playlistMu playlistLocks
}

// NewPlatform wraps client with fresh caches of the given TTL.
func NewPlatform(client *yodeck.Client, ttl time.Duration, opts ...cache.Option) *Platform {
	return &Platform{
		client:    client,
		playlists: cache.New[*yodeck.Playlist]("playlist", ttl, opts...),
		layouts:   cache.New[*yodeck.Layout]("layout", ttl, opts...),
		schedules: cache.New[*yodeck.Schedule]("schedule", ttl, opts...),
		tagbased:  cache.New[*yodeck.TagbasedPlaylist]("tagbased_playlist", ttl, opts...),
		media:     cache.New[*MediaIndex]("media_index", ttl, opts...),
	}
}

// Client exposes the gateway for calls that are never cached.
func (p *Platform) Client() *yodeck.Client { return p.client }

func key(id int) string { return strconv.Itoa(id) }

// cached implements the read-through pattern shared by the per-kind caches.
func cached[V any](ctx context.Context, p *Platform, c *cache.TTL[V], id int, fetch func(context.Context, int) (V, error)) (V, error) {
	k := key(id)
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	gen := c.Generation()
	return load(ctx, p, flightKey(c.Name()+":"+k, gen), func(lctx context.Context) (V, error) {
		v, err := fetch(lctx, id)
		if err != nil {
			return v, err
		}
		c.SetIfGeneration(k, v, gen)
		return v, nil
	})
}

func flightKey(name string, gen uint64) string {
	return name + "@" + strconv.FormatUint(gen, 10)
}

// load runs fn once per flight key. fn gets a context detached from the
// caller that started the flight; every caller stops waiting when its own
// ctx ends.
func load[V any](ctx context.Context, p *Platform, flight string, fn func(context.Context) (V, error)) (V, error) {
	ch := p.loads.DoChan(flight, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		v, err := fn(lctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Playlist returns a playlist, from cache when fresh enough.
func (p *Platform) Playlist(ctx context.Context, id int) (*yodeck.Playlist, error) {
	return cached(ctx, p, p.playlists, id, p.client.GetPlaylist)
}

// PlaylistFresh bypasses the cache and stores the result unless the
// playlist was invalidated meanwhile.
func (p *Platform) PlaylistFresh(ctx context.Context, id int) (*yodeck.Playlist, error) {
	gen := p.playlists.Generation()
	pl, err := p.client.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	p.playlists.SetIfGeneration(key(id), pl, gen)
	return pl, nil
}

// PlaylistEdit computes a playlist's new items from its current state.
// Returning false leaves the playlist unchanged.
type PlaylistEdit func(current *yodeck.Playlist) (items []yodeck.PlaylistItemInput, ok bool)

// EditPlaylistItems reads playlist id fresh, applies edit and patches the
// result while holding the playlist's lock. It returns the playlist as the
// platform reported it after the edit, or the fresh read when edit declined.
func (p *Platform) EditPlaylistItems(ctx context.Context, id int, edit PlaylistEdit) (*yodeck.Playlist, error) {
	unlock, err := p.playlistMu.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := p.PlaylistFresh(ctx, id)
	if err != nil {
		return nil, err
	}
	items, ok := edit(current)
	if !ok {
		return current, nil
	}
	return p.patchPlaylistItems(ctx, id, items)
}

// Layout returns a layout.
func (p *Platform) Layout(ctx context.Context, id int) (*yodeck.Layout, error) {
	return cached(ctx, p, p.layouts, id, p.client.GetLayout)
}

// Schedule returns a schedule.
func (p *Platform) Schedule(ctx context.Context, id int) (*yodeck.Schedule, error) {
	return cached(ctx, p, p.schedules, id, p.client.GetSchedule)
}

// TagbasedPlaylist returns a tag-based playlist definition.
func (p *Platform) TagbasedPlaylist(ctx context.Context, id int) (*yodeck.TagbasedPlaylist, error) {
	return cached(ctx, p, p.tagbased, id, p.client.GetTagbasedPlaylist)
}

// MediaIndex returns the cached catalogue of every media object.
func (p *Platform) MediaIndex(ctx context.Context) (*MediaIndex, error) {
	if idx, ok := p.media.Get(mediaIndexKey); ok {
		return idx, nil
	}
	return p.loadMediaIndex(ctx)
}

// MediaIndexFresh reloads the catalogue from the platform. It never joins a
// load that started before the call.
func (p *Platform) MediaIndexFresh(ctx context.Context) (*MediaIndex, error) {
	p.media.Delete(mediaIndexKey)
	return p.loadMediaIndex(ctx)
}

func (p *Platform) loadMediaIndex(ctx context.Context) (*MediaIndex, error) {
	gen := p.media.Generation()
	return load(ctx, p, flightKey("media_index", gen), func(lctx context.Context) (*MediaIndex, error) {
		all, err := p.client.ListMedia(lctx, nil)
		if err != nil {
			// A partial catalogue would make absent media look deleted.
			return nil, err
		}
		idx := NewMediaIndex(all)
		p.media.SetIfGeneration(mediaIndexKey, idx, gen)
		return idx, nil
	})
}

// Screen fetches a screen. Screens are never cached: their state is what the
// reconciler exists to observe.
func (p *Platform) Screen(ctx context.Context, id int) (*yodeck.Screen, error) {
	return p.client.GetScreen(ctx, id)
}

// Screens lists screens.
func (p *Platform) Screens(ctx context.Context, query url.Values) ([]yodeck.Screen, error) {
	return p.client.ListScreens(ctx, query)
}

// Media fetches one media object directly.
func (p *Platform) Media(ctx context.Context, id int) (*yodeck.Media, error) {
	return p.client.GetMedia(ctx, id)
}

// SearchMedia runs a platform-side name search.
func (p *Platform) SearchMedia(ctx context.Context, name string) ([]yodeck.Media, error) {
	return p.client.ListMedia(ctx, url.Values{"search": {name}})
}

// PatchPlaylistItems replaces a playlist's items and invalidates it.
// Callers deriving items from the current playlist use EditPlaylistItems.
func (p *Platform) PatchPlaylistItems(ctx context.Context, id int, items []yodeck.PlaylistItemInput) (*yodeck.Playlist, error) {
	unlock, err := p.playlistMu.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return p.patchPlaylistItems(ctx, id, items)
}

func (p *Platform) patchPlaylistItems(ctx context.Context, id int, items []yodeck.PlaylistItemInput) (*yodeck.Playlist, error) {
	pl, err := p.client.PatchPlaylistItems(ctx, id, items)
	p.playlists.Delete(key(id))
	return pl, err
}

// ReplacePlaylist overwrites a playlist and invalidates it.
func (p *Platform) ReplacePlaylist(ctx context.Context, id int, in yodeck.PlaylistInput) (*yodeck.Playlist, error) {
	unlock, err := p.playlistMu.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	pl, err := p.client.ReplacePlaylist(ctx, id, in)
	p.playlists.Delete(key(id))
	return pl, err
}

// CreatePlaylist creates a playlist.
func (p *Platform) CreatePlaylist(ctx context.Context, in yodeck.PlaylistInput) (*yodeck.Playlist, error) {
	return p.client.CreatePlaylist(ctx, in)
}

// DeletePlaylist deletes a playlist and invalidates it.
func (p *Platform) DeletePlaylist(ctx context.Context, id int) error {
	unlock, err := p.playlistMu.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	err = p.client.DeletePlaylist(ctx, id)
	p.playlists.Delete(key(id))
	return err
}

// AssignScreenContent points a screen at ref.
func (p *Platform) AssignScreenContent(ctx context.Context, screenID int, ref yodeck.ContentRef) (*yodeck.Screen, error) {
	return p.client.AssignScreenContent(ctx, screenID, ref)
}

// PushScreen forces a content refresh on the player.
func (p *Platform) PushScreen(ctx context.Context, screenID int, useDownloadTimeslots bool) error {
	return p.client.PushScreen(ctx, screenID, useDownloadTimeslots)
}

// CreateMedia creates a media object and invalidates the catalogue.
func (p *Platform) CreateMedia(ctx context.Context, in yodeck.MediaInput) (*yodeck.Media, error) {
	m, err := p.client.CreateMedia(ctx, in)
	p.media.Delete(mediaIndexKey)
	return m, err
}

// PatchMedia updates a media object and invalidates the catalogue.
func (p *Platform) PatchMedia(ctx context.Context, id int, patch yodeck.MediaPatch) (*yodeck.Media, error) {
	m, err := p.client.PatchMedia(ctx, id, patch)
	p.media.Delete(mediaIndexKey)
	return m, err
}

// DeleteMedia deletes a media object and invalidates the catalogue.
func (p *Platform) DeleteMedia(ctx context.Context, id int) error {
	err := p.client.DeleteMedia(ctx, id)
	p.media.Delete(mediaIndexKey)
	return err
}

// UploadURL returns the signed upload URL of a media object.
func (p *Platform) UploadURL(ctx context.Context, id int) (string, error) {
	return p.client.GetUploadURL(ctx, id)
}

// CompleteUpload finalizes an upload and invalidates the catalogue.
func (p *Platform) CompleteUpload(ctx context.Context, id int, uploadURL string) error {
	err := p.client.CompleteUpload(ctx, id, uploadURL)
	p.media.Delete(mediaIndexKey)
	return err
}

// ClearCaches drops every cached entity.
func (p *Platform) ClearCaches() {
	p.playlists.Clear()
	p.layouts.Clear()
	p.schedules.Clear()
	p.tagbased.Clear()
	p.media.Clear()
}

// CacheStats returns per-cache counters keyed by cache name.
func (p *Platform) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		p.playlists.Name(): p.playlists.GetStats(),
		p.layouts.Name():   p.layouts.GetStats(),
		p.schedules.Name(): p.schedules.GetStats(),
		p.tagbased.Name():  p.tagbased.GetStats(),
		p.media.Name():     p.media.GetStats(),
	}
}
