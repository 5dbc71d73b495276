// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tomtom215/screenline/internal/resolver"
)

// newResolveCmd creates the "screenline resolve" subcommand.
func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <screen-id>",
		Short: "Print the content a screen is playing",
		Long: "Walks the screen's content graph (playlists, layouts, schedules and\n" +
			"tag-based playlists) and prints the unique media it plays as JSON.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			screenID, err := parseID(args[0], "screen id")
			if err != nil {
				return err
			}

			a, err := openSignage(opts.cfg, false)
			if err != nil {
				return err
			}
			defer closeApp(a)

			platform, err := a.provider.Platform(cmd.Context())
			if err != nil {
				return fmt.Errorf("resolve: %w", err)
			}
			content, err := resolver.New(platform).ResolveScreenID(cmd.Context(), screenID)
			if err != nil {
				return fmt.Errorf("resolve screen %d: %w", screenID, err)
			}
			return printJSON(cmd.OutOrStdout(), content)
		},
	}
}

func parseID(arg, what string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", what, arg)
	}
	return id, nil
}
