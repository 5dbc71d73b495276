// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package resolver

import (
	"time"

	"github.com/tomtom215/screenline/internal/yodeck"
)

// Status classifies what a screen is playing.
type Status string

const (
	StatusHasContent      Status = "has_content"
	StatusEmpty           Status = "empty"
	StatusUnknown         Status = "unknown"
	StatusUnknownTagbased Status = "unknown_tagbased"
	StatusError           Status = "error"
)

// MediaItem is one distinct media reached by the traversal.
type MediaItem struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	MediaType       string  `json:"media_type,omitempty"`
}

// TraceItem is one visited node of the content graph.
type TraceItem struct {
	Type  string `json:"type"`
	ID    int    `json:"id"`
	Name  string `json:"name,omitempty"`
	Depth int    `json:"depth"`
}

// SourceSummary describes a secondary source such as schedule filler.
type SourceSummary struct {
	Type       string      `json:"type"`
	ID         int         `json:"id"`
	Name       string      `json:"name,omitempty"`
	MediaItems []MediaItem `json:"media_items"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// Takeover is the screen's takeover content with its window evaluated.
type Takeover struct {
	yodeck.ContentRef
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Active    bool       `json:"active"`
}

// Content is the resolved playback graph of a screen or pointer.
type Content struct {
	ScreenID              int                `json:"screen_id,omitempty"`
	Source                *yodeck.ContentRef `json:"source,omitempty"`
	Status                Status             `json:"status"`
	UniqueMediaCount      int                `json:"unique_media_count"`
	TotalItemsInStructure int                `json:"total_items_in_structure"`
	MediaItems            []MediaItem        `json:"media_items"`
	MediaIDs              []int              `json:"media_ids"`
	Items                 []TraceItem        `json:"items"`
	FillerContent         *SourceSummary     `json:"filler_content,omitempty"`
	TakeoverContent       *Takeover          `json:"takeover_content,omitempty"`
	Warnings              []string           `json:"warnings"`
	Error                 string             `json:"error,omitempty"`
	ResolvedAt            time.Time          `json:"resolved_at"`
}

// HasMedia reports whether id is among the resolved media.
func (c *Content) HasMedia(id int) bool {
	for _, m := range c.MediaIDs {
		if m == id {
			return true
		}
	}
	return false
}
