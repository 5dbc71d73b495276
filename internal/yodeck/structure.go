// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package yodeck

import (
	"context"
	"net/http"
)

// GetLayout fetches a layout and its regions.
func (c *Client) GetLayout(ctx context.Context, id int) (*Layout, error) {
	var l Layout
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/layouts/" + itoa(id) + "/", Endpoint: "/layouts/{id}/"}, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetSchedule fetches a schedule with its events and filler content.
func (c *Client) GetSchedule(ctx context.Context, id int) (*Schedule, error) {
	var s Schedule
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/schedules/" + itoa(id) + "/", Endpoint: "/schedules/{id}/"}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetTagbasedPlaylist fetches a tag-based playlist definition.
func (c *Client) GetTagbasedPlaylist(ctx context.Context, id int) (*TagbasedPlaylist, error) {
	var t TagbasedPlaylist
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/tagbased-playlists/" + itoa(id) + "/", Endpoint: "/tagbased-playlists/{id}/"}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
