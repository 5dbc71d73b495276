// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package wal

import (
	"context"

	"github.com/tomtom215/screenline/internal/events"
	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/metrics"
)

// Publisher is the bus the WAL feeds.
type Publisher interface {
	Publish(ctx context.Context, ev *events.PlanEvent) error
}

// DurablePublisher writes each event to the WAL before handing it to the
// bus and confirms it once the bus accepted it.
type DurablePublisher struct {
	wal  *WAL
	next Publisher
}

// NewDurablePublisher wraps next.
func NewDurablePublisher(w *WAL, next Publisher) *DurablePublisher {
	return &DurablePublisher{wal: w, next: next}
}

// Publish implements publish.EventPublisher. A bus failure is not returned:
// the event stays in the WAL and the RetryService delivers it later. When
// the WAL itself fails the event goes to the bus directly.
func (p *DurablePublisher) Publish(ctx context.Context, ev *events.PlanEvent) error {
	if ev != nil && ev.CorrelationID == "" {
		ev.CorrelationID = logging.CorrelationIDFromContext(ctx)
	}

	id, err := p.wal.Write(ctx, ev)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Event WAL write failed; publishing without it")
		return p.next.Publish(ctx, ev)
	}

	if err := p.next.Publish(ctx, ev); err != nil {
		if rerr := p.wal.RecordAttempt(ctx, id, err); rerr != nil {
			logging.Ctx(ctx).Warn().Err(rerr).Str("entry_id", id).Msg("Failed to record WAL attempt")
		}
		metrics.RecordWALEntry("deferred")
		logging.Ctx(ctx).Warn().Err(err).
			Str("entry_id", id).
			Str("type", ev.Type).
			Str("plan_id", ev.PlanID).
			Msg("Plan event kept in WAL for retry")
		return nil
	}

	if err := p.wal.Confirm(ctx, id); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("entry_id", id).Msg("Failed to confirm WAL entry")
	}
	return nil
}
