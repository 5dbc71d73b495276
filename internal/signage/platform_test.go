// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package signage

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/screenline/internal/testinfra"
	"github.com/tomtom215/screenline/internal/yodeck"
)

func newTestPlatform(t *testing.T) (*Platform, *testinfra.FakeYodeck) {
	t.Helper()
	fake := testinfra.NewFakeYodeck(t)
	return NewPlatform(fake.Client(t, yodeck.Options{}), time.Minute), fake
}

func TestPlatform_PlaylistIsCached(t *testing.T) {
	t.Parallel()

	p, fake := newTestPlatform(t)
	fake.PutPlaylist(yodeck.Playlist{ID: 9, Name: "Lobby"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		pl, err := p.Playlist(ctx, 9)
		if err != nil {
			t.Fatalf("Playlist() error = %v", err)
		}
		if pl.Name != "Lobby" {
			t.Errorf("Name = %q", pl.Name)
		}
	}
	if n := fake.CallCount(http.MethodGet, "/playlists/9/"); n != 1 {
		t.Errorf("GET count = %d, want 1", n)
	}

	if _, err := p.PlaylistFresh(ctx, 9); err != nil {
		t.Fatalf("PlaylistFresh() error = %v", err)
	}
	if n := fake.CallCount(http.MethodGet, "/playlists/9/"); n != 2 {
		t.Errorf("GET count after fresh = %d, want 2", n)
	}
}

func TestPlatform_WriteInvalidates(t *testing.T) {
	t.Parallel()

	p, fake := newTestPlatform(t)
	fake.PutMedia(yodeck.Media{ID: 5, Name: "spot.mp4", Status: yodeck.MediaFinished})
	fake.PutPlaylist(yodeck.Playlist{ID: 9})
	ctx := context.Background()

	if _, err := p.Playlist(ctx, 9); err != nil {
		t.Fatal(err)
	}
	items := []yodeck.PlaylistItemInput{{ID: 5, Type: yodeck.SourceMedia, Duration: 10}}
	if _, err := p.PatchPlaylistItems(ctx, 9, items); err != nil {
		t.Fatalf("PatchPlaylistItems() error = %v", err)
	}

	pl, err := p.Playlist(ctx, 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(pl.Items) != 1 || pl.Items[0].ID != 5 {
		t.Errorf("items after write = %+v, want media 5", pl.Items)
	}
}

func TestPlatform_FailedWriteStillInvalidates(t *testing.T) {
	t.Parallel()

	p, fake := newTestPlatform(t)
	fake.PutPlaylist(yodeck.Playlist{ID: 9})
	fake.FailNext(http.MethodPatch, "/playlists/9/", http.StatusInternalServerError)
	ctx := context.Background()

	if _, err := p.Playlist(ctx, 9); err != nil {
		t.Fatal(err)
	}
	if _, err := p.PatchPlaylistItems(ctx, 9, nil); err == nil {
		t.Fatal("expected error")
	}
	if _, err := p.Playlist(ctx, 9); err != nil {
		t.Fatal(err)
	}
	if n := fake.CallCount(http.MethodGet, "/playlists/9/"); n != 2 {
		t.Errorf("GET count = %d, want 2", n)
	}
}

func TestPlatform_MediaIndex(t *testing.T) {
	t.Parallel()

	p, fake := newTestPlatform(t)
	ws := &yodeck.WorkspaceRef{ID: 1}
	fake.PutMedia(yodeck.Media{ID: 1, Name: "a", Tags: []string{"Ads", "north"}, Workspace: ws})
	fake.PutMedia(yodeck.Media{ID: 2, Name: "b", Tags: []string{"ads"}, Workspace: ws})
	fake.PutMedia(yodeck.Media{ID: 3, Name: "c", Tags: []string{"ads", "north"}, Workspace: &yodeck.WorkspaceRef{ID: 2}})
	fake.PutMedia(yodeck.Media{ID: 4, Name: "d", Tags: []string{"ads", "north"}, Workspace: ws})
	ctx := context.Background()

	idx, err := p.MediaIndex(ctx)
	if err != nil {
		t.Fatalf("MediaIndex() error = %v", err)
	}
	if idx.Len() != 4 {
		t.Errorf("Len() = %d, want 4", idx.Len())
	}
	if m, ok := idx.Get(2); !ok || m.Name != "b" {
		t.Errorf("Get(2) = %v, %v", m, ok)
	}

	got := idx.WithTags([]string{"ads", "NORTH"}, []int{1}, []int{4})
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("WithTags() = %+v, want only media 1", got)
	}

	if _, err := p.MediaIndex(ctx); err != nil {
		t.Fatal(err)
	}
	if n := fake.CallCount(http.MethodGet, "/media/"); n != 1 {
		t.Errorf("list count = %d, want 1", n)
	}

	if _, err := p.CreateMedia(ctx, yodeck.MediaInput{Name: "new", MediaOrigin: yodeck.MediaOrigin{Source: yodeck.OriginLocal}}); err != nil {
		t.Fatal(err)
	}
	idx, err = p.MediaIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 5 {
		t.Errorf("Len() after create = %d, want 5", idx.Len())
	}
}

// holdFirst blocks the first request to method+path until the returned
// release func runs. started is closed once that request arrived.
func holdFirst(t *testing.T, fake *testinfra.FakeYodeck, method, path string) (started <-chan struct{}, release func()) {
	t.Helper()
	arrived := make(chan struct{})
	gate := make(chan struct{})
	var held atomic.Bool
	fake.BeforeRequest = func(m, p string) {
		if m == method && p == path && held.CompareAndSwap(false, true) {
			close(arrived)
			<-gate
		}
	}
	release = sync.OnceFunc(func() { close(gate) })
	t.Cleanup(release)
	return arrived, release
}

func TestPlatform_MediaIndexFreshSkipsEarlierLoad(t *testing.T) {
	t.Parallel()

	p, fake := newTestPlatform(t)
	fake.PutMedia(yodeck.Media{ID: 5, Name: "spot.mp4", Status: yodeck.MediaFinished})
	started, release := holdFirst(t, fake, http.MethodGet, "/media/")
	ctx := context.Background()

	earlier := make(chan error, 1)
	go func() {
		_, err := p.MediaIndex(ctx)
		earlier <- err
	}()
	<-started

	created, err := p.CreateMedia(ctx, yodeck.MediaInput{Name: "new.mp4", MediaOrigin: yodeck.MediaOrigin{Source: yodeck.OriginLocal}})
	if err != nil {
		t.Fatalf("CreateMedia() error = %v", err)
	}
	idx, err := p.MediaIndexFresh(ctx)
	if err != nil {
		t.Fatalf("MediaIndexFresh() error = %v", err)
	}
	if _, ok := idx.Get(created.ID); !ok {
		t.Errorf("MediaIndexFresh() lacks media %d created before the call (len=%d)", created.ID, idx.Len())
	}

	release()
	if err := <-earlier; err != nil {
		t.Fatalf("earlier MediaIndex() error = %v", err)
	}

	idx, err = p.MediaIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.Get(created.ID); !ok {
		t.Errorf("cached MediaIndex() lacks media %d: the earlier load overwrote the fresh one", created.ID)
	}
}

func TestPlatform_SharedLoadSurvivesCallerCancel(t *testing.T) {
	t.Parallel()

	p, fake := newTestPlatform(t)
	fake.PutLayout(yodeck.Layout{ID: 3, Name: "Split"})
	started, release := holdFirst(t, fake, http.MethodGet, "/layouts/3/")

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := p.Layout(firstCtx, 3)
		first <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		l, err := p.Layout(context.Background(), 3)
		if err == nil && l.Name != "Split" {
			err = errors.New("wrong layout " + l.Name)
		}
		second <- err
	}()

	cancelFirst()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("canceled caller error = %v, want context.Canceled", err)
	}
	release()
	if err := <-second; err != nil {
		t.Errorf("joined caller error = %v, want the layout", err)
	}
	if n := fake.CallCount(http.MethodGet, "/layouts/3/"); n != 1 {
		t.Errorf("GET count = %d, want 1 shared load", n)
	}
}

func TestPlatform_EditPlaylistItemsSerialized(t *testing.T) {
	t.Parallel()

	p, fake := newTestPlatform(t)
	fake.PutPlaylist(yodeck.Playlist{ID: 9})
	fake.PutMedia(yodeck.Media{ID: 601, Name: "a.mp4", Status: yodeck.MediaFinished})
	fake.PutMedia(yodeck.Media{ID: 602, Name: "b.mp4", Status: yodeck.MediaFinished})

	// Without per-playlist serialization the two edits would both read the
	// empty playlist before either patched it.
	var reads atomic.Int32
	bothRead := make(chan struct{})
	fake.BeforeRequest = func(method, path string) {
		if method != http.MethodGet || path != "/playlists/9/" {
			return
		}
		switch reads.Add(1) {
		case 1:
			select {
			case <-bothRead:
			case <-time.After(200 * time.Millisecond):
			}
		case 2:
			close(bothRead)
		}
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, mediaID := range []int{601, 602} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.EditPlaylistItems(ctx, 9, func(current *yodeck.Playlist) ([]yodeck.PlaylistItemInput, bool) {
				items := current.Inputs()
				return append(items, yodeck.PlaylistItemInput{ID: mediaID, Type: yodeck.SourceMedia, Duration: 10}), true
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("EditPlaylistItems() error = %v", err)
		}
	}

	pl, _ := fake.Playlist(9)
	got := map[int]bool{}
	for _, it := range pl.Items {
		got[it.ID] = true
	}
	if !got[601] || !got[602] {
		t.Errorf("playlist items = %+v, want both 601 and 602", pl.Items)
	}
}

func TestPlatform_EditPlaylistItemsDeclined(t *testing.T) {
	t.Parallel()

	p, fake := newTestPlatform(t)
	fake.PutPlaylist(yodeck.Playlist{ID: 9, Name: "Lobby"})

	pl, err := p.EditPlaylistItems(context.Background(), 9, func(*yodeck.Playlist) ([]yodeck.PlaylistItemInput, bool) {
		return nil, false
	})
	if err != nil || pl.Name != "Lobby" {
		t.Fatalf("EditPlaylistItems() = %+v, %v", pl, err)
	}
	if n := fake.CallCount(http.MethodPatch, "/playlists/9/"); n != 0 {
		t.Errorf("PATCH count = %d, want 0", n)
	}
}

func TestPlaylistLocks(t *testing.T) {
	t.Parallel()

	var l playlistLocks
	unlock, err := l.lock(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.lock(ctx, 7); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second lock error = %v, want deadline exceeded", err)
	}
	other, err := l.lock(context.Background(), 8)
	if err != nil {
		t.Fatalf("lock on another playlist blocked: %v", err)
	}
	other()

	unlock()
	again, err := l.lock(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	again()
	if n := len(l.locks); n != 0 {
		t.Errorf("locks left = %d, want 0", n)
	}
}

func TestPlatform_ClearCaches(t *testing.T) {
	t.Parallel()

	p, fake := newTestPlatform(t)
	fake.PutLayout(yodeck.Layout{ID: 3})
	ctx := context.Background()

	if _, err := p.Layout(ctx, 3); err != nil {
		t.Fatal(err)
	}
	p.ClearCaches()
	if _, err := p.Layout(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if n := fake.CallCount(http.MethodGet, "/layouts/3/"); n != 2 {
		t.Errorf("GET count = %d, want 2", n)
	}
	if stats := p.CacheStats()["layout"]; stats.Misses != 2 {
		t.Errorf("layout misses = %d, want 2", stats.Misses)
	}
}

type swappableSource struct{ creds *Credentials }

func (s *swappableSource) Load(context.Context) (*Credentials, error) { return s.creds, nil }

type brokenSource struct{}

func (brokenSource) Load(context.Context) (*Credentials, error) { return nil, errors.New("disk gone") }

func TestProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	opts := yodeck.Options{BaseURL: "https://app.yodeck.com/api/v2"}

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		p := NewProvider(opts, time.Minute, StaticCredentials{}, &swappableSource{})
		if _, err := p.Platform(ctx); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("err = %v, want ErrNotConfigured", err)
		}
		if p.Configured(ctx) {
			t.Error("Configured() = true")
		}
	})

	t.Run("source error", func(t *testing.T) {
		t.Parallel()
		p := NewProvider(opts, time.Minute, brokenSource{})
		if _, err := p.Platform(ctx); err == nil || errors.Is(err, ErrNotConfigured) {
			t.Errorf("err = %v, want load failure", err)
		}
	})

	t.Run("reset rebuilds", func(t *testing.T) {
		t.Parallel()
		src := &swappableSource{}
		p := NewProvider(opts, time.Minute, StaticCredentials{}, src)

		src.creds = &Credentials{Label: "a", Value: "1"}
		first, err := p.Platform(ctx)
		if err != nil {
			t.Fatalf("Platform() error = %v", err)
		}
		again, _ := p.Platform(ctx)
		if first != again {
			t.Error("Platform() rebuilt without Reset")
		}

		p.Reset()
		second, err := p.Platform(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if first == second {
			t.Error("Reset() did not rebuild the platform")
		}
	})

	t.Run("first source wins", func(t *testing.T) {
		t.Parallel()
		p := NewProvider(opts, time.Minute, StaticCredentials{Label: "cfg", Value: "x"}, brokenSource{})
		if _, err := p.Platform(ctx); err != nil {
			t.Errorf("Platform() error = %v", err)
		}
	})
}
