// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

/*
resolver.go - Media Lifecycle Resolver

EnsureReady turns a possibly outdated media reference into the id of a
playable media object. The platform's create/upload pipeline is asynchronous
and sometimes leaves stuck shells behind, so resolution is layered and stops
at the first success:

 1. Direct fetch. A finished media resolves as-is.
 2. A stale shell (initializing/processing with a URL origin or buffering
    flag) is deleted and reported unresolved with StaleCleaned set. Its id is
    never returned.
 3. Exact name search over the expected name and alternates.
 4. Partial name search.
 5. Poll the original id with backoff (300ms doubling, capped at 3s, 6
    attempts), stopping early on failure.

Name matches only consider finished media; the highest id wins.
*/
//nolint:staticcheck // File documentation, not package doc
package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/metrics"
	"github.com/tomtom215/screenline/internal/signage"
	"github.com/tomtom215/screenline/internal/yodeck"
)

// Method records how a media reference was resolved.
type Method string

const (
	MethodDirect     Method = "direct"
	MethodNameSearch Method = "name_search"
	MethodPoll       Method = "poll"
	MethodUnresolved Method = "unresolved"
)

// Resolution is the outcome of EnsureReady.
type Resolution struct {
	ResolvedID   *int     `json:"resolved_id"`
	Method       Method   `json:"method"`
	StaleCleaned bool     `json:"stale_cleaned,omitempty"`
	Diagnostics  []string `json:"diagnostics,omitempty"`
}

// Resolved reports whether a playable media id was found.
func (r *Resolution) Resolved() bool { return r.ResolvedID != nil }

func (r *Resolution) note(format string, args ...interface{}) {
	r.Diagnostics = append(r.Diagnostics, fmt.Sprintf(format, args...))
}

// Options tunes polling.
type Options struct {
	PollInitialDelay time.Duration
	PollMaxDelay     time.Duration
	PollAttempts     int
	HasFileInterval  time.Duration
	HasFileTimeout   time.Duration
}

// DefaultOptions returns the production schedule.
func DefaultOptions() Options {
	return Options{
		PollInitialDelay: 300 * time.Millisecond,
		PollMaxDelay:     3 * time.Second,
		PollAttempts:     6,
		HasFileInterval:  2 * time.Second,
		HasFileTimeout:   60 * time.Second,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.PollInitialDelay <= 0 {
		o.PollInitialDelay = d.PollInitialDelay
	}
	if o.PollMaxDelay <= 0 {
		o.PollMaxDelay = d.PollMaxDelay
	}
	if o.PollAttempts <= 0 {
		o.PollAttempts = d.PollAttempts
	}
	if o.HasFileInterval <= 0 {
		o.HasFileInterval = d.HasFileInterval
	}
	if o.HasFileTimeout <= 0 {
		o.HasFileTimeout = d.HasFileTimeout
	}
}

// Resolver resolves, uploads and patches media on one platform.
type Resolver struct {
	platform *signage.Platform
	opts     Options
	log      zerolog.Logger

	// sleep waits between polls; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResolver creates a Resolver.
func NewResolver(platform *signage.Platform, opts Options) *Resolver {
	opts.applyDefaults()
	return &Resolver{
		platform: platform,
		opts:     opts,
		log:      logging.WithComponent("media"),
		sleep:    sleepContext,
	}
}

// EnsureReady resolves mediaID to a finished media. It only returns an error
// when ctx ends; every other failure is reported in the Resolution.
func (r *Resolver) EnsureReady(ctx context.Context, mediaID int, expectedName string, searchNames []string) (*Resolution, error) {
	res, err := r.ensureReady(ctx, mediaID, expectedName, searchNames)
	if err != nil {
		return nil, err
	}
	metrics.RecordMediaResolution(string(res.Method), res.StaleCleaned)
	ev := r.log.Debug()
	if !res.Resolved() {
		ev = r.log.Warn()
	}
	ev.Int("media_id", mediaID).Str("method", string(res.Method)).Bool("stale_cleaned", res.StaleCleaned).
		Strs("diagnostics", res.Diagnostics).Msg("Media resolution finished")
	return res, nil
}

func (r *Resolver) ensureReady(ctx context.Context, mediaID int, expectedName string, searchNames []string) (*Resolution, error) {
	res := &Resolution{Method: MethodUnresolved}

	var original *yodeck.Media
	if mediaID > 0 {
		m, err := r.platform.Media(ctx, mediaID)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case yodeck.IsNotFound(err):
			res.note("media %d not found", mediaID)
		case err != nil:
			res.note("media %d fetch failed: %v", mediaID, err)
		case m.IsFinished():
			return resolved(res, m.ID, MethodDirect), nil
		case m.IsStale():
			if derr := r.platform.DeleteMedia(ctx, m.ID); derr != nil && !yodeck.IsNotFound(derr) {
				res.note("stale media %d (status %s) could not be deleted: %v", m.ID, m.Status, derr)
				return res, nil
			}
			res.StaleCleaned = true
			res.note("stale media %d (status %s, origin %s) deleted; recreate it", m.ID, m.Status, m.MediaOrigin.Source)
			r.log.Info().Int("media_id", m.ID).Str("status", m.Status).Msg("Deleted stale media shell")
			return res, nil
		default:
			original = m
			res.note("media %d is %s", m.ID, m.Status)
		}
	}

	names := candidateNames(expectedName, searchNames)
	if len(names) > 0 {
		found, err := r.searchByName(ctx, names, res)
		if err != nil {
			return nil, err
		}
		if found != nil {
			return resolved(res, found.ID, MethodNameSearch), nil
		}
	}

	if original != nil && !original.IsFailed() {
		m, err := r.poll(ctx, original.ID)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if m != nil {
			return resolved(res, m.ID, MethodPoll), nil
		}
		res.note("media %d not finished after %d polls: %v", original.ID, r.opts.PollAttempts, err)
	}
	return res, nil
}

// searchByName runs the exact pass across all names, then the partial pass.
func (r *Resolver) searchByName(ctx context.Context, names []string, res *Resolution) (*yodeck.Media, error) {
	var pool []yodeck.Media
	for _, name := range names {
		found, err := r.platform.SearchMedia(ctx, name)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			res.note("name search %q failed: %v", name, err)
		}
		pool = append(pool, found...)
	}

	match := func(exact bool) *yodeck.Media {
		var best *yodeck.Media
		for i := range pool {
			m := &pool[i]
			if !m.IsFinished() || !nameMatches(m.Name, names, exact) {
				continue
			}
			if best == nil || m.ID > best.ID {
				best = m
			}
		}
		return best
	}
	if m := match(true); m != nil {
		res.note("exact name match %q -> %d", m.Name, m.ID)
		return m, nil
	}
	if m := match(false); m != nil {
		res.note("partial name match %q -> %d", m.Name, m.ID)
		return m, nil
	}
	res.note("no finished media matches %q", names)
	return nil, nil
}

// poll waits for id to finish on the backoff schedule.
func (r *Resolver) poll(ctx context.Context, id int) (*yodeck.Media, error) {
	delay := r.opts.PollInitialDelay
	var lastErr error
	for attempt := 0; attempt < r.opts.PollAttempts; attempt++ {
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
		if delay > r.opts.PollMaxDelay {
			delay = r.opts.PollMaxDelay
		}

		m, err := r.platform.Media(ctx, id)
		if err != nil {
			lastErr = err
			if yodeck.IsNotFound(err) {
				return nil, err
			}
			continue
		}
		if m.IsFinished() {
			return m, nil
		}
		if m.IsFailed() {
			return nil, ErrMediaFailed
		}
		lastErr = fmt.Errorf("status %s", m.Status)
	}
	return nil, lastErr
}

func resolved(res *Resolution, id int, method Method) *Resolution {
	res.ResolvedID = &id
	res.Method = method
	return res
}

// candidateNames trims, drops empties and de-duplicates case-insensitively.
func candidateNames(expected string, alternates []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range append([]string{expected}, alternates...) {
		n = strings.TrimSpace(n)
		k := strings.ToLower(n)
		if n == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
	}
	return out
}

func nameMatches(name string, names []string, exact bool) bool {
	have := strings.ToLower(strings.TrimSpace(name))
	for _, n := range names {
		want := strings.ToLower(n)
		if exact && have == want {
			return true
		}
		if !exact && strings.Contains(have, want) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
