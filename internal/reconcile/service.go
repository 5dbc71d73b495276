// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/screenline/internal/config"
	"github.com/tomtom215/screenline/internal/events"
	"github.com/tomtom215/screenline/internal/logging"
)

// Reasons recorded on a reconcile pass.
const (
	ReasonSchedule = "schedule"
	ReasonStartup  = "startup"
	ReasonManual   = "manual"
)

// LocationLister lists every location with registered screens.
type LocationLister interface {
	LocationIDs(ctx context.Context) ([]string, error)
}

// EventSource delivers plan events.
type EventSource interface {
	Listen(ctx context.Context, fn events.HandlerFunc) (<-chan error, error)
}

// Service runs the reconciler as a supervised service: every location on
// an interval, and the touched locations whenever a plan event arrives.
type Service struct {
	rec       *Reconciler
	locations LocationLister
	source    EventSource
	cfg       config.ReconcileConfig
}

// NewService creates the service. source may be nil to disable event
// triggered passes.
func NewService(rec *Reconciler, locations LocationLister, source EventSource, cfg config.ReconcileConfig) *Service {
	return &Service{rec: rec, locations: locations, source: source, cfg: cfg}
}

// Serve implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	var listenErr <-chan error
	if s.source != nil {
		ch, err := s.source.Listen(ctx, s.HandleEvent)
		if err != nil {
			return fmt.Errorf("reconcile event listener: %w", err)
		}
		listenErr = ch
	}

	var tick <-chan time.Time
	if s.cfg.Enabled && s.cfg.Interval > 0 {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
		s.RunAll(ctx, s.cfg.PushOnSchedule, ReasonStartup)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			s.RunAll(ctx, s.cfg.PushOnSchedule, ReasonSchedule)
		case err := <-listenErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == nil {
				err = errors.New("event stream closed")
			}
			return fmt.Errorf("reconcile event listener stopped: %w", err)
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (s *Service) String() string { return "reconcile" }

// RunAll reconciles every location and returns how many passes finished
// without error.
func (s *Service) RunAll(ctx context.Context, push bool, reason string) int {
	ids, err := s.locations.LocationIDs(ctx)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to list locations for reconcile")
		return 0
	}
	ok := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		report, err := s.rec.Reconcile(ctx, id, push, reason)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("location_id", id).Msg("Reconcile pass failed")
			continue
		}
		if report.OK() {
			ok++
		}
	}
	return ok
}

// HandleEvent reconciles the locations a plan event touched.
func (s *Service) HandleEvent(ctx context.Context, ev *events.PlanEvent) error {
	switch ev.Type {
	case events.TypePlanPublished, events.TypePlanFailed, events.TypePlanRolledBack:
	default:
		return nil
	}
	var errs []error
	for _, loc := range ev.LocationIDs {
		if _, err := s.rec.Reconcile(ctx, loc, s.cfg.PushOnTrigger, "event:"+ev.Type); err != nil {
			errs = append(errs, fmt.Errorf("location %s: %w", loc, err))
		}
	}
	return errors.Join(errs...)
}
