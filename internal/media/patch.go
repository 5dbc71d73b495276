// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package media

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/screenline/internal/yodeck"
)

var urlArguments = []string{yodeck.ArgPlayFromURL, yodeck.ArgDownloadFromURL}

// PatchSafe merges partial into the media's current arguments and writes the
// result. Origin-defining fields are never partially overwritten:
//
//   - local media: URL-only arguments are stripped, the platform rejects them.
//   - URL media: existing URL arguments survive unless replaced, and a patch
//     that would leave none fails with ErrMissingURL before any write.
//
// A JSON null in partial removes that argument. media_origin is never sent.
func (r *Resolver) PatchSafe(ctx context.Context, mediaID int, partial yodeck.MediaPatch) (*yodeck.Media, error) {
	current, err := r.platform.Media(ctx, mediaID)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]json.RawMessage, len(current.Arguments)+len(partial.Arguments))
	for k, v := range current.Arguments {
		merged[k] = v
	}
	for k, v := range partial.Arguments {
		if isNull(v) {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	if current.IsLocal() {
		for _, k := range urlArguments {
			delete(merged, k)
		}
	} else if !hasURLArgument(merged) {
		return nil, fmt.Errorf("media %d: %w", mediaID, ErrMissingURL)
	}

	patch := yodeck.MediaPatch{Name: partial.Name, Tags: partial.Tags, Arguments: merged}
	updated, err := r.platform.PatchMedia(ctx, mediaID, patch)
	if err != nil {
		return nil, err
	}
	r.log.Info().Int("media_id", mediaID).Int("arguments", len(merged)).Msg("Media arguments patched")
	return updated, nil
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func hasURLArgument(args map[string]json.RawMessage) bool {
	for _, k := range urlArguments {
		v, ok := args[k]
		if !ok {
			continue
		}
		switch string(bytes.TrimSpace(v)) {
		case "", "null", `""`, "false":
			continue
		}
		return true
	}
	return false
}
