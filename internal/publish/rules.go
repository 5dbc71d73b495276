// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package publish

import (
	"strings"
	"time"

	"github.com/tomtom215/screenline/internal/models"
)

// Rules decides which candidate screens a plan may use. Checks run in a
// fixed order and the first failing one is the rejection reason: capacity,
// online, region, category. Accepted screens beyond the required count are
// rejected as surplus.
type Rules struct{}

// Evaluate builds a simulation report for plan over cands.
func (Rules) Evaluate(plan *models.PlacementPlan, cands []models.Candidate, now time.Time) *models.SimulationReport {
	report := &models.SimulationReport{
		RequiredCount: plan.RequiredTargets,
		Accepted:      []models.Target{},
		Rejected:      []models.Rejection{},
		SimulatedAt:   now.UTC(),
	}

	for _, c := range cands {
		reason := rejectReason(plan.Rules, c)
		if reason == "" && len(report.Accepted) >= plan.RequiredTargets {
			reason = models.ReasonSurplus
		}
		if reason != "" {
			report.Rejected = append(report.Rejected, models.Rejection{
				ScreenID:   c.ScreenID,
				LocationID: c.LocationID,
				Reason:     reason,
			})
			continue
		}
		report.Accepted = append(report.Accepted, c.Target())
	}

	report.AcceptedCount = len(report.Accepted)
	report.OK = plan.RequiredTargets > 0 && report.AcceptedCount >= plan.RequiredTargets
	return report
}

func rejectReason(rules models.PlacementRules, c models.Candidate) string {
	switch {
	case c.UsedSlots >= c.Capacity:
		return models.ReasonNoCapacity
	case rules.RequireOnline && !c.Online:
		return models.ReasonOffline
	case len(rules.Regions) > 0 && !containsFold(rules.Regions, c.Region):
		return models.ReasonRegionMismatch
	case rules.Category != "" && containsFold(c.ExcludedCategories, rules.Category):
		return models.ReasonCategoryExcluded
	default:
		return ""
	}
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
