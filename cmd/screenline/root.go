// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tomtom215/screenline/internal/config"
	"github.com/tomtom215/screenline/internal/logging"
)

// rootOptions carries the persistent flags and the configuration loaded
// from them before any subcommand runs.
type rootOptions struct {
	configPath string
	envFile    string

	cfg *config.Config
}

// newRootCmd creates the root screenline command with all subcommands attached.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "screenline",
		Short: "Yodeck content resolution and publish orchestration",
		Long: "screenline resolves the content of Yodeck screens, publishes placement\n" +
			"plans into per-screen ad playlists and reconciles locations against them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.load()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default $CONFIG_PATH, then ./config.yaml, /etc/screenline/config.yaml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration; ignored when missing")

	cmd.AddCommand(
		newServeCmd(opts),
		newResolveCmd(opts),
		newReconcileCmd(opts),
		newCredentialsCmd(opts),
		newMediaCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.LoadFrom(o.configPath)
	if err != nil {
		return err
	}
	logging.Init(loggingConfig(cfg.Logging))
	o.cfg = cfg
	return nil
}

func loggingConfig(l config.LoggingConfig) logging.Config {
	return logging.Config{
		Level:     l.Level,
		Format:    l.Format,
		Caller:    l.Caller,
		Timestamp: true,
	}
}

// printJSON writes v indented, for commands whose output is a document.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
