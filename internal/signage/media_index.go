// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package signage

import "github.com/tomtom215/screenline/internal/yodeck"

// MediaIndex is an immutable snapshot of the media catalogue.
type MediaIndex struct {
	items []yodeck.Media
	byID  map[int]int
}

// NewMediaIndex indexes items by id. Later duplicates win.
func NewMediaIndex(items []yodeck.Media) *MediaIndex {
	idx := &MediaIndex{items: items, byID: make(map[int]int, len(items))}
	for i := range items {
		idx.byID[items[i].ID] = i
	}
	return idx
}

// Len returns the number of media in the snapshot.
func (x *MediaIndex) Len() int { return len(x.items) }

// Get returns the media with id.
func (x *MediaIndex) Get(id int) (*yodeck.Media, bool) {
	i, ok := x.byID[id]
	if !ok {
		return nil, false
	}
	m := x.items[i]
	return &m, true
}

// WithTags returns media carrying every tag, in one of workspaces, not in
// excludes, in catalogue order.
func (x *MediaIndex) WithTags(tags []string, workspaces []int, excludes []int) []yodeck.Media {
	ws := make(map[int]bool, len(workspaces))
	for _, id := range workspaces {
		ws[id] = true
	}
	ex := make(map[int]bool, len(excludes))
	for _, id := range excludes {
		ex[id] = true
	}

	var out []yodeck.Media
	for i := range x.items {
		m := &x.items[i]
		if ex[m.ID] || m.Workspace == nil || !ws[m.Workspace.ID] {
			continue
		}
		if m.HasTags(tags) {
			out = append(out, *m)
		}
	}
	return out
}
