// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package signage

import (
	"context"
	"sync"
)

// playlistLocks is a set of per-playlist mutexes. Entries exist only while
// someone holds or waits for them.
type playlistLocks struct {
	mu    sync.Mutex
	locks map[int]*playlistLock
}

type playlistLock struct {
	held chan struct{}
	refs int
}

// lock blocks until the playlist's lock is free or ctx ends. The returned
// func releases it.
func (l *playlistLocks) lock(ctx context.Context, id int) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int]*playlistLock)
	}
	pl, ok := l.locks[id]
	if !ok {
		pl = &playlistLock{held: make(chan struct{}, 1)}
		l.locks[id] = pl
	}
	pl.refs++
	l.mu.Unlock()

	select {
	case pl.held <- struct{}{}:
		return func() {
			<-pl.held
			l.release(id, pl)
		}, nil
	case <-ctx.Done():
		l.release(id, pl)
		return nil, ctx.Err()
	}
}

func (l *playlistLocks) release(id int, pl *playlistLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, id)
	}
}
