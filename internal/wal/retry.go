// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package wal

import (
	"context"
	"time"

	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/metrics"
)

// publishTimeout bounds one replayed publish.
const publishTimeout = 10 * time.Second

// RetryResult counts the outcome of one retry pass.
type RetryResult struct {
	Published int
	Failed    int
	Waiting   int
	Expired   int
	Exhausted int
}

// RetryService replays pending entries under suture.
type RetryService struct {
	wal  *WAL
	next Publisher
}

// NewRetryService creates the service.
func NewRetryService(w *WAL, next Publisher) *RetryService {
	return &RetryService{wal: w, next: next}
}

// Serve implements suture.Service. Pending entries left by a previous run
// are replayed immediately.
func (s *RetryService) Serve(ctx context.Context) error {
	s.RetryPending(ctx)

	ticker := time.NewTicker(s.wal.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RetryPending(ctx)
		}
	}
}

func (s *RetryService) String() string { return "event-wal-retry" }

// RetryPending makes one pass over the pending entries.
func (s *RetryService) RetryPending(ctx context.Context) RetryResult {
	var res RetryResult
	entries, err := s.wal.Pending(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("WAL retry: failed to list pending entries")
		return res
	}

	cfg := s.wal.cfg
	now := s.wal.now()
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		log := logging.Ctx(ctx).With().Str("entry_id", e.ID).Int("attempts", e.Attempts).Logger()

		switch {
		case now.Sub(e.CreatedAt) > cfg.EntryTTL:
			s.discard(ctx, e.ID, "expired")
			res.Expired++
			log.Warn().Time("created_at", e.CreatedAt).Msg("WAL entry expired before delivery")
		case e.Attempts >= cfg.MaxRetries:
			s.discard(ctx, e.ID, "exhausted")
			res.Exhausted++
			log.Error().Str("last_error", e.LastError).Msg("WAL entry discarded after max retries")
		case !s.ready(e, now):
			res.Waiting++
		default:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := s.next.Publish(pubCtx, e.Event)
			cancel()
			if err != nil {
				res.Failed++
				if rerr := s.wal.RecordAttempt(ctx, e.ID, err); rerr != nil {
					log.Warn().Err(rerr).Msg("Failed to record WAL attempt")
				}
				log.Debug().Err(err).Msg("WAL replay failed")
				continue
			}
			if err := s.wal.Confirm(ctx, e.ID); err != nil {
				log.Warn().Err(err).Msg("Failed to confirm WAL entry")
			}
			res.Published++
			metrics.RecordWALEntry("replayed")
		}
	}

	metrics.SetWALPending(res.Failed + res.Waiting)
	if res.Published+res.Failed+res.Expired+res.Exhausted > 0 {
		logging.Info().
			Int("published", res.Published).
			Int("failed", res.Failed).
			Int("waiting", res.Waiting).
			Int("expired", res.Expired).
			Int("exhausted", res.Exhausted).
			Msg("WAL retry pass complete")
	}
	return res
}

func (s *RetryService) discard(ctx context.Context, id, reason string) {
	if err := s.wal.Discard(ctx, id); err != nil {
		logging.Warn().Err(err).Str("entry_id", id).Msg("Failed to discard WAL entry")
		return
	}
	metrics.RecordWALEntry(reason)
}

// ready applies exponential backoff from the last attempt:
// RetryInterval * 2^(attempts-1), capped at MaxBackoff.
func (s *RetryService) ready(e *Entry, now time.Time) bool {
	if e.Attempts == 0 || e.LastAttemptAt.IsZero() {
		return true
	}
	return !now.Before(e.LastAttemptAt.Add(backoff(s.wal.cfg, e.Attempts)))
}

func backoff(cfg Config, attempts int) time.Duration {
	d := cfg.RetryInterval
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	return min(d, cfg.MaxBackoff)
}
