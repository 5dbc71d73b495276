// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package yodeck

import (
	"context"
	"net/http"
	"net/url"
)

// ListScreens returns every screen matching query.
func (c *Client) ListScreens(ctx context.Context, query url.Values) ([]Screen, error) {
	return ListAll[Screen](ctx, c, "/screens/", query)
}

// GetScreen fetches one screen.
func (c *Client) GetScreen(ctx context.Context, id int) (*Screen, error) {
	var s Screen
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/screens/" + itoa(id) + "/", Endpoint: "/screens/{id}/"}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AssignScreenContent points a screen at ref.
func (c *Client) AssignScreenContent(ctx context.Context, id int, ref ContentRef) (*Screen, error) {
	body := struct {
		ScreenContent ContentRef `json:"screen_content"`
	}{ref}
	var s Screen
	err := c.Do(ctx, Request{Method: http.MethodPatch, Path: "/screens/" + itoa(id) + "/", Endpoint: "/screens/{id}/", Body: body}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// PushScreen forces the player to refresh its content now.
func (c *Client) PushScreen(ctx context.Context, id int, useDownloadTimeslots bool) error {
	body := struct {
		UseDownloadTimeslots bool `json:"use_download_timeslots"`
	}{useDownloadTimeslots}
	return c.Do(ctx, Request{Method: http.MethodPost, Path: "/screens/" + itoa(id) + "/push/", Endpoint: "/screens/{id}/push/", Body: body}, nil)
}
