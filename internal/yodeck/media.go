// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package yodeck

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
)

const mediaEndpoint = "/media/{id}/"

func mediaPath(id int) string { return "/media/" + itoa(id) + "/" }

// ListMedia returns every media matching query (e.g. search, tags).
func (c *Client) ListMedia(ctx context.Context, query url.Values) ([]Media, error) {
	return ListAll[Media](ctx, c, "/media/", query)
}

// GetMedia fetches one media object.
func (c *Client) GetMedia(ctx context.Context, id int) (*Media, error) {
	var m Media
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: mediaPath(id), Endpoint: mediaEndpoint}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMedia creates a media shell. Origin creation can be slow on the
// platform side, so it runs under the upload timeout.
func (c *Client) CreateMedia(ctx context.Context, in MediaInput) (*Media, error) {
	var m Media
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/media/", Body: in, Upload: true}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// PatchMedia applies a partial update.
func (c *Client) PatchMedia(ctx context.Context, id int, patch MediaPatch) (*Media, error) {
	var m Media
	if err := c.Do(ctx, Request{Method: http.MethodPatch, Path: mediaPath(id), Endpoint: mediaEndpoint, Body: patch}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMedia deletes a media object.
func (c *Client) DeleteMedia(ctx context.Context, id int) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: mediaPath(id), Endpoint: mediaEndpoint}, nil)
}

// GetUploadURL returns the signed URL the media's bytes must be PUT to.
func (c *Client) GetUploadURL(ctx context.Context, id int) (string, error) {
	var t UploadTarget
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: mediaPath(id) + "upload", Endpoint: "/media/{id}/upload"}, &t); err != nil {
		return "", err
	}
	if t.UploadURL == "" {
		return "", &Error{Kind: KindDecode, Method: http.MethodGet, Endpoint: "/media/{id}/upload", Err: errors.New("empty upload_url")}
	}
	return t.UploadURL, nil
}

// UploadToSignedURL PUTs the bytes to a signed storage URL. The URL carries
// its own authorization, so no token is sent. The body cannot be replayed, so
// this is never retried here.
func (c *Client) UploadToSignedURL(ctx context.Context, signedURL string, body io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.Do(ctx, Request{
		Method:        http.MethodPut,
		URL:           signedURL,
		Stream:        body,
		ContentLength: size,
		ContentType:   contentType,
		Endpoint:      "signed-upload",
		Upload:        true,
		NoAuth:        true,
	}, nil)
}

// CompleteUpload tells the platform the bytes at uploadURL are in place.
func (c *Client) CompleteUpload(ctx context.Context, id int, uploadURL string) error {
	body := UploadTarget{UploadURL: uploadURL}
	return c.Do(ctx, Request{Method: http.MethodPut, Path: mediaPath(id) + "upload/complete", Endpoint: "/media/{id}/upload/complete", Body: body}, nil)
}
