// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package yodeck

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Content source types as named by the platform.
const (
	SourcePlaylist = "playlist"
	SourceLayout   = "layout"
	SourceSchedule = "schedule"
	SourceTagbased = "tagbased-playlist"
	SourceMedia    = "media"
)

// Media statuses.
const (
	MediaInitialized = "initialized"
	MediaProcessing  = "processing"
	MediaFinished    = "finished"
	MediaFailed      = "failed"
)

// Media origin sources.
const (
	OriginLocal = "local"
	OriginURL   = "url"
)

// Media argument keys that only make sense for URL-origin media.
const (
	ArgPlayFromURL     = "play_from_url"
	ArgDownloadFromURL = "download_from_url"
	ArgBuffering       = "buffering"
)

// ContentRef points at a piece of content: what a screen shows, or an item
// inside a playlist, layout region or schedule event.
type ContentRef struct {
	SourceType string `json:"source_type"`
	SourceID   int    `json:"source_id"`
	SourceName string `json:"source_name,omitempty"`
}

// Key returns "type:id", the identity used for traversal bookkeeping.
func (r ContentRef) Key() string {
	return r.SourceType + ":" + itoa(r.SourceID)
}

// IsZero reports whether r points at nothing.
func (r ContentRef) IsZero() bool {
	return r.SourceType == "" && r.SourceID == 0
}

// WorkspaceRef identifies a workspace.
type WorkspaceRef struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// ScreenState is the device's reported state.
type ScreenState struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Takeover is content that overrides the screen's regular content for a window.
type Takeover struct {
	ContentRef
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// ActiveAt reports whether now falls inside the takeover window. Missing
// bounds are open-ended. Comparison is done in UTC.
func (t *Takeover) ActiveAt(now time.Time) bool {
	now = now.UTC()
	if t.StartTime != nil && now.Before(t.StartTime.UTC()) {
		return false
	}
	if t.EndTime != nil && !now.Before(t.EndTime.UTC()) {
		return false
	}
	return true
}

// Screen is a player device.
type Screen struct {
	ID              int           `json:"id"`
	Name            string        `json:"name"`
	State           ScreenState   `json:"state"`
	Workspace       *WorkspaceRef `json:"workspace,omitempty"`
	ScreenContent   *ContentRef   `json:"screen_content,omitempty"`
	TakeoverContent *Takeover     `json:"takeover_content,omitempty"`
}

// PlaylistItem is an entry of a playlist as read from the platform.
type PlaylistItem struct {
	// ItemID is the playlist-item primary key. Read only.
	ItemID int `json:"item_id,omitempty"`

	// ID is the primary key of the referenced media, playlist or layout.
	ID       int    `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// Ref returns the item as a content reference.
func (i PlaylistItem) Ref() ContentRef {
	return ContentRef{SourceType: i.Type, SourceID: i.ID, SourceName: i.Name}
}

// PlaylistItemInput is the write shape of a playlist item. The platform
// identifies items on PATCH/PUT by the referenced object's primary key, never
// by the playlist-item key.
type PlaylistItemInput struct {
	ID       int    `json:"id"`
	Type     string `json:"type"`
	Duration int    `json:"duration,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// Input converts a read item to its write shape.
func (i PlaylistItem) Input() PlaylistItemInput {
	return PlaylistItemInput{ID: i.ID, Type: i.Type, Duration: i.Duration, Priority: i.Priority}
}

// Playlist is an ordered list of items.
type Playlist struct {
	ID          int            `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Workspace   *WorkspaceRef  `json:"workspace,omitempty"`
	Items       []PlaylistItem `json:"items"`
}

// Inputs returns the write shape of every item.
func (p *Playlist) Inputs() []PlaylistItemInput {
	out := make([]PlaylistItemInput, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.Input()
	}
	return out
}

// PlaylistInput creates or replaces a playlist.
type PlaylistInput struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Workspace   int                 `json:"workspace,omitempty"`
	Items       []PlaylistItemInput `json:"items"`
}

// ItemRef is the item of a layout region, schedule event or filler.
type ItemRef struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Ref returns the item as a content reference.
func (i ItemRef) Ref() ContentRef {
	return ContentRef{SourceType: i.Type, SourceID: i.ID, SourceName: i.Name}
}

// Region is one zone of a layout.
type Region struct {
	ID   int      `json:"id,omitempty"`
	Name string   `json:"name,omitempty"`
	Item *ItemRef `json:"item,omitempty"`
}

// Layout splits the screen into regions.
type Layout struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Regions []Region `json:"regions"`
}

// ScheduleEvent plays Source during its window.
type ScheduleEvent struct {
	ID        int        `json:"id,omitempty"`
	Source    *ItemRef   `json:"source,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// Schedule is a timetable of events plus filler content shown between them.
type Schedule struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	Events        []ScheduleEvent `json:"events"`
	FillerContent *ItemRef        `json:"filler_content,omitempty"`
}

// TagbasedPlaylist plays every media carrying all Tags in one of Workspaces.
type TagbasedPlaylist struct {
	ID         int            `json:"id"`
	Name       string         `json:"name"`
	Tags       []string       `json:"tags"`
	Workspaces []WorkspaceRef `json:"workspaces"`
	Excludes   []int          `json:"excludes"`
}

// MediaOrigin describes where a media's bytes come from.
type MediaOrigin struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	Format string `json:"format,omitempty"`
}

// MediaFile is present once bytes have been stored.
type MediaFile struct {
	Size int64 `json:"size"`
}

// Media is a remote media asset.
type Media struct {
	ID          int                        `json:"id"`
	Name        string                     `json:"name"`
	Status      string                     `json:"status"`
	MediaOrigin MediaOrigin                `json:"media_origin"`
	File        *MediaFile                 `json:"file,omitempty"`
	Arguments   map[string]json.RawMessage `json:"arguments,omitempty"`
	Tags        []string                   `json:"tags,omitempty"`
	Workspace   *WorkspaceRef              `json:"workspace,omitempty"`
	Duration    float64                    `json:"duration,omitempty"`
}

// IsFinished reports whether the media is playable.
func (m *Media) IsFinished() bool { return m.Status == MediaFinished }

// IsFailed reports whether processing failed for good.
func (m *Media) IsFailed() bool { return m.Status == MediaFailed }

// IsLocal reports whether the media is file-based.
func (m *Media) IsLocal() bool { return m.MediaOrigin.Source == OriginLocal }

// HasFile reports whether stored bytes are present.
func (m *Media) HasFile() bool { return m.File != nil && m.File.Size > 0 }

// Buffering reports the buffering argument.
func (m *Media) Buffering() bool {
	raw, ok := m.Arguments[ArgBuffering]
	if !ok {
		return false
	}
	var b bool
	return json.Unmarshal(raw, &b) == nil && b
}

// IsStale reports a shell stuck initializing or processing that will not
// finish on its own: URL-origin media, or media flagged as buffering.
func (m *Media) IsStale() bool {
	if m.Status != MediaInitialized && m.Status != MediaProcessing {
		return false
	}
	return !m.IsLocal() || m.Buffering()
}

// HasTags reports whether m carries every tag (case-insensitive).
func (m *Media) HasTags(tags []string) bool {
	for _, want := range tags {
		found := false
		for _, have := range m.Tags {
			if strings.EqualFold(have, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MediaInput creates a media object.
type MediaInput struct {
	Name        string                     `json:"name"`
	MediaOrigin MediaOrigin                `json:"media_origin"`
	Arguments   map[string]json.RawMessage `json:"arguments,omitempty"`
	Tags        []string                   `json:"tags,omitempty"`
	Workspace   int                        `json:"workspace,omitempty"`
}

// MediaPatch partially updates a media object. Origin fields are
// deliberately absent.
type MediaPatch struct {
	Name      *string                    `json:"name,omitempty"`
	Arguments map[string]json.RawMessage `json:"arguments,omitempty"`
	Tags      []string                   `json:"tags,omitempty"`
}

// UploadTarget is the signed URL returned by GET /media/{id}/upload.
type UploadTarget struct {
	UploadURL string `json:"upload_url"`
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Count    int    `json:"count"`
	Next     string `json:"next"`
	Previous string `json:"previous"`
	Results  []T    `json:"results"`
}
