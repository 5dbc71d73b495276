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

const playlistEndpoint = "/playlists/{id}/"

func playlistPath(id int) string { return "/playlists/" + itoa(id) + "/" }

// ListPlaylists returns every playlist matching query.
func (c *Client) ListPlaylists(ctx context.Context, query url.Values) ([]Playlist, error) {
	return ListAll[Playlist](ctx, c, "/playlists/", query)
}

// GetPlaylist fetches one playlist.
func (c *Client) GetPlaylist(ctx context.Context, id int) (*Playlist, error) {
	var p Playlist
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: playlistPath(id), Endpoint: playlistEndpoint}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlaylist creates a playlist.
func (c *Client) CreatePlaylist(ctx context.Context, in PlaylistInput) (*Playlist, error) {
	if in.Items == nil {
		in.Items = []PlaylistItemInput{}
	}
	var p Playlist
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/playlists/", Body: in}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ReplacePlaylist overwrites a playlist with PUT.
func (c *Client) ReplacePlaylist(ctx context.Context, id int, in PlaylistInput) (*Playlist, error) {
	if in.Items == nil {
		in.Items = []PlaylistItemInput{}
	}
	var p Playlist
	if err := c.Do(ctx, Request{Method: http.MethodPut, Path: playlistPath(id), Endpoint: playlistEndpoint, Body: in}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PatchPlaylistItems replaces a playlist's items.
func (c *Client) PatchPlaylistItems(ctx context.Context, id int, items []PlaylistItemInput) (*Playlist, error) {
	if items == nil {
		items = []PlaylistItemInput{}
	}
	body := struct {
		Items []PlaylistItemInput `json:"items"`
	}{items}
	var p Playlist
	if err := c.Do(ctx, Request{Method: http.MethodPatch, Path: playlistPath(id), Endpoint: playlistEndpoint, Body: body}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePlaylist deletes a playlist.
func (c *Client) DeletePlaylist(ctx context.Context, id int) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: playlistPath(id), Endpoint: playlistEndpoint}, nil)
}
