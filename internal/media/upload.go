// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tomtom215/screenline/internal/yodeck"
)

// UploadInput describes a local video to upload.
type UploadInput struct {
	Name        string
	Tags        []string
	Workspace   int
	Format      string
	ContentType string
	Size        int64
	Body        io.Reader
}

// CreateLocalVideo creates an empty local-origin video shell.
func (r *Resolver) CreateLocalVideo(ctx context.Context, in UploadInput) (*yodeck.Media, error) {
	return r.platform.CreateMedia(ctx, yodeck.MediaInput{
		Name:        in.Name,
		MediaOrigin: yodeck.MediaOrigin{Type: "video", Source: yodeck.OriginLocal, Format: in.Format},
		Tags:        in.Tags,
		Workspace:   in.Workspace,
	})
}

// UploadLocalVideo runs the full pipeline: create shell, get the signed URL,
// PUT the bytes, complete, wait for the file, then wait until finished.
// Each step can fail independently; the returned error names the step and
// the media id, when one exists, so the caller can resume or clean up.
func (r *Resolver) UploadLocalVideo(ctx context.Context, in UploadInput) (*yodeck.Media, error) {
	m, err := r.CreateLocalVideo(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create media: %w", err)
	}
	id := m.ID
	log := r.log.With().Int("media_id", id).Str("name", in.Name).Logger()

	signed, err := r.platform.UploadURL(ctx, id)
	if err != nil {
		return m, fmt.Errorf("media %d: get upload url: %w", id, err)
	}
	if err := r.platform.Client().UploadToSignedURL(ctx, signed, in.Body, in.Size, in.ContentType); err != nil {
		return m, fmt.Errorf("media %d: upload bytes: %w", id, err)
	}
	if err := r.platform.CompleteUpload(ctx, id, signed); err != nil {
		return m, fmt.Errorf("media %d: complete upload: %w", id, err)
	}
	log.Info().Int64("bytes", in.Size).Msg("Media bytes uploaded")

	if m, err = r.WaitUntilHasFile(ctx, id); err != nil {
		return m, fmt.Errorf("media %d: %w", id, err)
	}
	if m, err = r.PollUntilReady(ctx, id); err != nil {
		return m, fmt.Errorf("media %d: %w", id, err)
	}
	log.Info().Msg("Media ready")
	return m, nil
}

// WaitUntilHasFile polls at a fixed interval until the media reports a
// non-zero file size. A failed status aborts with ErrMediaFailed; the
// deadline yields ErrUploadNotReady.
func (r *Resolver) WaitUntilHasFile(ctx context.Context, id int) (*yodeck.Media, error) {
	wctx, cancel := context.WithTimeout(ctx, r.opts.HasFileTimeout)
	defer cancel()

	var last *yodeck.Media
	for {
		m, err := r.platform.Media(wctx, id)
		switch {
		case err == nil && m.HasFile():
			return m, nil
		case err == nil && m.IsFailed():
			return m, ErrMediaFailed
		case yodeck.IsNotFound(err):
			return nil, err
		case err == nil:
			last = m
		}

		if serr := r.sleep(wctx, r.opts.HasFileInterval); serr != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, ErrUploadNotReady
		}
	}
}

// PollUntilReady waits for the media to reach finished on the backoff
// schedule used by EnsureReady.
func (r *Resolver) PollUntilReady(ctx context.Context, id int) (*yodeck.Media, error) {
	if m, err := r.platform.Media(ctx, id); err == nil && m.IsFinished() {
		return m, nil
	}
	m, err := r.poll(ctx, id)
	switch {
	case m != nil:
		return m, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, ErrMediaFailed), yodeck.IsNotFound(err):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", ErrUploadNotReady, err)
	}
}
