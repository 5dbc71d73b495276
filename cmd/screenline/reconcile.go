// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/reconcile"
)

// newReconcileCmd creates the "screenline reconcile" subcommand.
func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var (
		push   bool
		reason string
	)
	cmd := &cobra.Command{
		Use:   "reconcile <location-id>",
		Short: "Reconcile one location against the signage platform",
		Long: "Compares every screen of the location with its baseline and active\n" +
			"placements, records screen status and drift alerts, and prints the report.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSignage(opts.cfg, false)
			if err != nil {
				return err
			}
			defer closeApp(a)
			if err := a.openDatabase(); err != nil {
				return err
			}

			report, err := a.rec.Reconcile(cmd.Context(), args[0], push, reason)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", args[0], err)
			}
			logging.Info().
				Str("location_id", report.LocationID).
				Int("screens", len(report.Outcomes)).
				Int("compliant", report.Compliant()).
				Int("errors", len(report.Errors)).
				Msg("Reconcile finished")
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&push, "push", false, "push screens whose content was corrected")
	cmd.Flags().StringVar(&reason, "reason", reconcile.ReasonManual, "reason recorded on the pass")
	return cmd
}
