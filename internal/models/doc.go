// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

/*
Package models defines the records Screenline persists and serves.

Key Components:

  - PlacementPlan: an advertiser placement moving through the plan state
    machine (PROPOSED to PUBLISHED, with failure, retry, rollback and cancel)
  - SimulationReport, PublishReport: per-attempt outcomes, superseded on each
    new attempt rather than merged
  - ScreenStatus: last reconciled state of a screen
  - Alert: operator alerts raised by publishing and reconciliation
  - LocationScreen: the screens of a location and their baseline content
  - APIResponse: the REST envelope

State transitions are table driven; see ValidatePlanTransition.
*/
package models
