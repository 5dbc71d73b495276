// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

/*
Package services adapts Screenline components to suture.Service.

  - HTTPServerService: ListenAndServe/Shutdown to Serve, with a bounded
    graceful shutdown
  - ConfigWatchService: runs the fsnotify config watcher and reports a
    watcher that stops on its own as a failure so suture restarts it

reconcile.Service already implements suture.Service and is added to the tree
directly.
*/
package services
