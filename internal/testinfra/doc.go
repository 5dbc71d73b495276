// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

// Package testinfra provides test infrastructure shared by package tests.
//
// # Fake Yodeck
//
// FakeYodeck is an in-memory implementation of the Yodeck REST endpoints the
// service uses, served over httptest. It keeps screens, playlists, layouts,
// schedules, tag-based playlists and media, captures every request and can
// inject failures per endpoint:
//
//	func TestPublish(t *testing.T) {
//	    fake := testinfra.NewFakeYodeck(t)
//	    fake.PutPlaylist(yodeck.Playlist{ID: 9, Name: "Lobby loop"})
//	    fake.FailNext(http.MethodPatch, "/playlists/9/", http.StatusBadRequest)
//
//	    platform := signage.NewPlatform(fake.Client(t, yodeck.Options{}), time.Minute)
//	    // ...
//	}
package testinfra
