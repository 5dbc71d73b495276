// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/screenline/internal/config"
	"github.com/tomtom215/screenline/internal/credentials"
	"github.com/tomtom215/screenline/internal/logging"
)

// newCredentialsCmd creates the "screenline credentials" command group.
func newCredentialsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the stored Yodeck API token",
		Long: "The token is encrypted with CREDENTIALS_SECRET and kept in the credential\n" +
			"store. A running server holds the store lock; use PUT /api/v1/integration/credentials there.",
	}
	cmd.AddCommand(newCredentialsSetCmd(opts), newCredentialsStatusCmd(opts))
	return cmd
}

func newCredentialsSetCmd(opts *rootOptions) *cobra.Command {
	var label, value string
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a Yodeck API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fromStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token from stdin: %w", err)
				}
				value = strings.TrimSpace(line)
			}

			store, err := credentials.Open(opts.cfg.Credentials)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logging.Error().Err(err).Msg("Error closing credential store")
				}
			}()

			if err := store.Set(cmd.Context(), label, value); err != nil {
				return err
			}
			logging.Info().Str("label", label).Str("token", config.MaskToken(value)).Msg("Yodeck credentials stored")

			status, err := store.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "token label (required)")
	cmd.Flags().StringVar(&value, "value", "", "token value")
	cmd.Flags().BoolVar(&fromStdin, "value-stdin", false, "read the token value from stdin")
	_ = cmd.MarkFlagRequired("label")
	cmd.MarkFlagsMutuallyExclusive("value", "value-stdin")
	cmd.MarkFlagsOneRequired("value", "value-stdin")
	return cmd
}

func newCredentialsStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a token is stored, masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := credentials.Open(opts.cfg.Credentials)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			status, err := store.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}
