// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

/*
Package supervisor runs Screenline's long-lived services under a suture v4
tree.

	screenline
	├── data-layer
	│   └── ConfigWatchService   (when a config file was loaded)
	├── messaging-layer
	│   └── reconcile.Service    (scheduled passes and plan events)
	└── api-layer
	    └── HTTPServerService

Crashed services are restarted with suture's backoff. Supervisor events go
through sutureslog to a slog.Logger backed by zerolog:

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(services.NewConfigWatchService(cfg.File, reload))
	tree.AddMessagingService(reconcileService)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err := tree.Serve(ctx)

Service wrappers live in the services subpackage.
*/
package supervisor
