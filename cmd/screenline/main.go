// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

// Package main is the screenline command.
//
// Screenline resolves what every Yodeck screen of a DOOH network is playing,
// publishes approved placement plans into per-screen ad playlists and
// reconciles each location against that truth.
//
// # Commands
//
//	screenline serve                       REST API, reconcile loop, config watch
//	screenline resolve <screen-id>         print the resolved content of a screen
//	screenline reconcile <location-id>     run one reconcile pass
//	screenline credentials set|status      manage the stored Yodeck token
//
// # Configuration
//
// A .env file (see --env-file) is loaded into the environment first, then
// configuration is layered by koanf: built-in defaults, the YAML file
// (--config, CONFIG_PATH, ./config.yaml, /etc/screenline/config.yaml) and
// environment variables.
//
// # Signal Handling
//
// serve stops on SIGINT and SIGTERM: the HTTP server drains in-flight
// requests for up to 10s and the reconcile loop finishes its current pass.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
