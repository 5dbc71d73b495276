// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

// Package wal keeps plan events in BadgerDB until the event bus has
// accepted them.
//
// Plan events trigger reconcile passes for the locations a publish, retry or
// rollback touched. With an external NATS transport an outage would drop
// them; the WAL sits in front of the bus instead:
//
//	Event → WAL Write → Bus Publish → WAL Confirm
//	                         ↓ (on failure)
//	                   entry kept, RetryService replays it
//
// # Components
//
//   - WAL: pending entries under the "pending:" key prefix
//   - DurablePublisher: drop-in publish.EventPublisher wrapping the bus
//   - RetryService: suture service that replays pending entries on startup
//     and every RetryInterval with exponential backoff per entry
//
// Entries older than EntryTTL or with MaxRetries failed attempts are
// discarded and counted in plan_event_wal_entries_total.
package wal
