// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package publish

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/screenline/internal/models"
)

// maxBulkConcurrency bounds plans processed at once by a bulk operation.
const maxBulkConcurrency = 4

// BulkItemResult is the outcome of one plan in a bulk operation.
type BulkItemResult struct {
	PlanID    string           `json:"plan_id"`
	OK        bool             `json:"ok"`
	State     models.PlanState `json:"state,omitempty"`
	ErrorCode string           `json:"error_code,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// BulkResult aggregates a bulk operation.
type BulkResult struct {
	Total        int              `json:"total"`
	SuccessCount int              `json:"success_count"`
	Results      []BulkItemResult `json:"results"`
}

// BulkSimulate simulates each plan independently.
func (o *Orchestrator) BulkSimulate(ctx context.Context, ids []string) *BulkResult {
	return o.bulk(ctx, ids, o.Simulate, models.PlanSimulatedOK)
}

// BulkApprove approves each plan independently.
func (o *Orchestrator) BulkApprove(ctx context.Context, ids []string) *BulkResult {
	return o.bulk(ctx, ids, o.Approve, models.PlanApproved)
}

// BulkPublish publishes each plan independently.
func (o *Orchestrator) BulkPublish(ctx context.Context, ids []string) *BulkResult {
	return o.bulk(ctx, ids, o.Publish, models.PlanPublished)
}

// bulk runs op per plan. A plan counts as a success when op returned no
// error and left it in want. One plan's failure never stops the others.
func (o *Orchestrator) bulk(ctx context.Context, ids []string,
	op func(context.Context, string) (*models.PlacementPlan, error), want models.PlanState,
) *BulkResult {
	ids = dedupe(ids)
	results := make([]BulkItemResult, len(ids))

	var g errgroup.Group
	g.SetLimit(maxBulkConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			r := BulkItemResult{PlanID: id}
			plan, err := op(ctx, id)
			switch {
			case err != nil:
				r.ErrorCode = Code(err)
				r.Error = err.Error()
			default:
				r.State = plan.State
				r.OK = plan.State == want
				if !r.OK {
					r.ErrorCode = plan.LastErrorCode
					r.Error = plan.LastErrorMessage
				}
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	out := &BulkResult{Total: len(ids), Results: results}
	for _, r := range results {
		if r.OK {
			out.SuccessCount++
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
