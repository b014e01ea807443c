package session

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sharedeck/sharedeck/pkg/cache"
	"github.com/sharedeck/sharedeck/pkg/connector"
	"github.com/sharedeck/sharedeck/pkg/kv"
	"github.com/sharedeck/sharedeck/pkg/localfs"
	"github.com/sharedeck/sharedeck/pkg/models"
	"github.com/sharedeck/sharedeck/pkg/netmon"
	"github.com/sharedeck/sharedeck/pkg/retry"
	"github.com/sharedeck/sharedeck/pkg/vault"
)

type fakeConn struct {
	mu        sync.Mutex
	listings  map[string][]connector.RemoteEntry
	listErr   error
	listCalls int
	closed    bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{listings: map[string][]connector.RemoteEntry{
		"/": {
			remoteFile("song.mp3", "/song.mp3", 3_000_000),
			remoteDir("Albums", "/Albums"),
		},
		"/Albums": {
			remoteDir("Rock", "/Albums/Rock"),
			remoteFile("cover.jpg", "/Albums/cover.jpg", 20_000),
		},
	}}
}

func (c *fakeConn) List(ctx context.Context, path string) ([]connector.RemoteEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalls++
	if c.listErr != nil {
		return nil, c.listErr
	}
	entries, ok := c.listings[path]
	if !ok {
		return nil, &connector.NotFoundError{Path: path}
	}
	return entries, nil
}

func (c *fakeConn) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	return io.NopCloser(strings.NewReader("stream")), 6, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) setListErr(err error) {
	c.mu.Lock()
	c.listErr = err
	c.mu.Unlock()
}

func (c *fakeConn) listCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listCalls
}

func (c *fakeConn) wasClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeConnector struct {
	mu       sync.Mutex
	conn     *fakeConn
	failures []error // consumed one per attempt
	attempts int
	gotCreds models.Credentials
	gate     chan struct{} // when set, Connect blocks until it is closed
}

func (f *fakeConnector) Connect(ctx context.Context, ep models.Endpoint, creds models.Credentials) (connector.Conn, error) {
	f.mu.Lock()
	f.attempts++
	f.gotCreds = creds
	var err error
	if len(f.failures) > 0 {
		err = f.failures[0]
		f.failures = f.failures[1:]
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return f.conn, nil
}

func (f *fakeConnector) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func remoteDir(name, path string) connector.RemoteEntry {
	return connector.RemoteEntry{Name: name, Path: path, IsDir: true, ModTime: time.Now()}
}

func remoteFile(name, path string, size int64) connector.RemoteEntry {
	return connector.RemoteEntry{Name: name, Path: path, Size: size, ModTime: time.Now()}
}

func testEndpoint() models.Endpoint {
	return models.Endpoint{
		ID:   "ep-1",
		Name: "media",
		Kind: connector.KindSMB,
		Host: "media.local",
		Port: 445,
	}
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 1}
}

func newTestSession(t *testing.T, fc *fakeConnector, flag *netmon.Flag) (*Session, *cache.Cache) {
	t.Helper()
	c, err := cache.New(t.TempDir(), kv.NewMem(), nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	s := New(Config{
		Cache:   c,
		Monitor: flag,
		Retry:   fastRetry(),
		Factory: func(kind string) (connector.Connector, error) { return fc, nil },
	})
	t.Cleanup(s.Close)
	return s, c
}

func nextSnap(t *testing.T, ch chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return Snapshot{}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func entryNames(entries []models.FileEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

func TestConnectPublishesConnectingThenConnected(t *testing.T) {
	fc := &fakeConnector{conn: newFakeConn()}
	s, c := newTestSession(t, fc, netmon.NewFlag(true))
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	if err := s.Connect(context.Background(), testEndpoint(), &models.Credentials{Username: "deck"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	first := nextSnap(t, ch)
	if first.State != models.StateConnecting {
		t.Fatalf("first snapshot state = %v, want %v", first.State, models.StateConnecting)
	}
	if first.Endpoint == nil || first.Endpoint.Name != "media" {
		t.Fatalf("first snapshot endpoint = %+v, want media", first.Endpoint)
	}

	second := nextSnap(t, ch)
	if second.State != models.StateConnected {
		t.Fatalf("second snapshot state = %v, want %v", second.State, models.StateConnected)
	}
	if second.CurrentPath != "/" {
		t.Fatalf("CurrentPath = %q, want /", second.CurrentPath)
	}
	if second.Mode != models.ModeRemote {
		t.Fatalf("Mode = %v, want %v", second.Mode, models.ModeRemote)
	}
	got := entryNames(second.Entries)
	want := []string{"Albums", "song.mp3"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("root entries = %v, want %v", got, want)
	}
	if len(ch) != 0 {
		t.Fatalf("connect published %d extra snapshots", len(ch))
	}

	// The root listing was written through to the cache.
	if _, err := c.Listing(cache.Key("media.local:445", "/")); err != nil {
		t.Fatalf("root listing not cached: %v", err)
	}
}

func TestConnectRetriesTransientFailures(t *testing.T) {
	fc := &fakeConnector{
		conn: newFakeConn(),
		failures: []error{
			retry.Retryable(errors.New("connection reset")),
			retry.Retryable(errors.New("connection reset")),
		},
	}
	s, _ := newTestSession(t, fc, netmon.NewFlag(true))

	if err := s.Connect(context.Background(), testEndpoint(), &models.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := fc.attemptCount(); got != 3 {
		t.Fatalf("connect attempts = %d, want 3", got)
	}
	if snap := s.State(); snap.State != models.StateConnected {
		t.Fatalf("state = %v, want %v", snap.State, models.StateConnected)
	}
}

func TestConnectAuthErrorNotRetried(t *testing.T) {
	fc := &fakeConnector{
		conn:     newFakeConn(),
		failures: []error{&connector.AuthError{Endpoint: "media.local:445", Err: errors.New("logon failure")}},
	}
	s, _ := newTestSession(t, fc, netmon.NewFlag(true))

	err := s.Connect(context.Background(), testEndpoint(), &models.Credentials{})
	if err == nil {
		t.Fatal("Connect succeeded, want auth error")
	}
	if _, ok := connector.AsAuth(err); !ok {
		t.Fatalf("Connect error = %v, want AuthError", err)
	}
	if got := fc.attemptCount(); got != 1 {
		t.Fatalf("connect attempts = %d, want 1", got)
	}
	snap := s.State()
	if snap.State != models.StateError {
		t.Fatalf("state = %v, want %v", snap.State, models.StateError)
	}
	if snap.Err == "" {
		t.Fatal("error snapshot carries no reason")
	}
}

func TestConnectLooksUpVaultCredentials(t *testing.T) {
	v, err := vault.New(kv.NewMem(), []byte("master"))
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	ep := testEndpoint()
	want := models.Credentials{Username: "deck", Password: "hunter2", Domain: "WORKGROUP"}
	if err := v.Store(ep.Address(), want); err != nil {
		t.Fatalf("Store: %v", err)
	}

	fc := &fakeConnector{conn: newFakeConn()}
	c, err := cache.New(t.TempDir(), kv.NewMem(), nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	s := New(Config{
		Vault:   v,
		Cache:   c,
		Retry:   fastRetry(),
		Factory: func(kind string) (connector.Connector, error) { return fc, nil },
	})
	t.Cleanup(s.Close)

	if err := s.Connect(context.Background(), ep, nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if fc.gotCreds != want {
		t.Fatalf("connector saw credentials %+v, want %+v", fc.gotCreds, want)
	}
}

func TestNavigatePushesHistoryAndSkipsDuplicates(t *testing.T) {
	fc := &fakeConnector{conn: newFakeConn()}
	s, _ := newTestSession(t, fc, netmon.NewFlag(true))
	ctx := context.Background()

	if err := s.Connect(ctx, testEndpoint(), &models.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Navigate(ctx, "/Albums"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	snap := s.State()
	if snap.CurrentPath != "/Albums" {
		t.Fatalf("CurrentPath = %q, want /Albums", snap.CurrentPath)
	}
	got := entryNames(snap.Entries)
	if len(got) != 2 || got[0] != "Rock" || got[1] != "cover.jpg" {
		t.Fatalf("entries = %v, want [Rock cover.jpg]", got)
	}

	// Re-navigating to the same path must not grow the history.
	if err := s.Navigate(ctx, "/Albums"); err != nil {
		t.Fatalf("Navigate again: %v", err)
	}
	if err := s.Back(ctx); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if snap := s.State(); snap.CurrentPath != "/" {
		t.Fatalf("after Back CurrentPath = %q, want /", snap.CurrentPath)
	}
	// History is exhausted now.
	if err := s.Back(ctx); err != nil {
		t.Fatalf("Back on empty history: %v", err)
	}
	if snap := s.State(); snap.CurrentPath != "/" {
		t.Fatalf("Back on empty history moved to %q", snap.CurrentPath)
	}
}

func TestNavigateFallsBackToCacheOnRemoteFailure(t *testing.T) {
	fc := &fakeConnector{conn: newFakeConn()}
	s, _ := newTestSession(t, fc, netmon.NewFlag(true))
	ctx := context.Background()

	if err := s.Connect(ctx, testEndpoint(), &models.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Every remote list now fails; the root listing is already cached.
	fc.conn.setListErr(retry.Retryable(errors.New("connection reset")))

	if err := s.Navigate(ctx, "/"); err != nil {
		t.Fatalf("Navigate with cached fallback: %v", err)
	}
	snap := s.State()
	if snap.State != models.StateConnected {
		t.Fatalf("state = %v, want %v", snap.State, models.StateConnected)
	}
	if !snap.FromCache {
		t.Fatal("listing not marked as served from cache")
	}
	if snap.CachedAt.IsZero() {
		t.Fatal("cached listing carries no capture time")
	}
	got := entryNames(snap.Entries)
	if len(got) != 2 || got[0] != "Albums" {
		t.Fatalf("entries = %v, want cached root listing", got)
	}
}

func TestNavigateFailureKeepsPathAndHistory(t *testing.T) {
	fc := &fakeConnector{conn: newFakeConn()}
	s, _ := newTestSession(t, fc, netmon.NewFlag(true))
	ctx := context.Background()

	if err := s.Connect(ctx, testEndpoint(), &models.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Navigate(ctx, "/Albums"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	err := s.Navigate(ctx, "/ghost")
	if err == nil {
		t.Fatal("Navigate to a missing path succeeded")
	}
	if _, ok := connector.AsNotFound(err); !ok {
		t.Fatalf("Navigate error = %v, want NotFoundError", err)
	}

	snap := s.State()
	if snap.State != models.StateError {
		t.Fatalf("state = %v, want %v", snap.State, models.StateError)
	}
	if snap.CurrentPath != "/Albums" {
		t.Fatalf("CurrentPath = %q, want /Albums untouched", snap.CurrentPath)
	}
	if got := entryNames(snap.Entries); len(got) != 2 || got[0] != "Rock" {
		t.Fatalf("entries = %v, want previous listing untouched", got)
	}

	// The error state is not terminal.
	if err := s.Navigate(ctx, "/"); err != nil {
		t.Fatalf("Navigate after error: %v", err)
	}
	if snap := s.State(); snap.State != models.StateConnected {
		t.Fatalf("state after recovery = %v, want %v", snap.State, models.StateConnected)
	}
}

func TestOfflineNavigateServesCacheWithoutRemoteCalls(t *testing.T) {
	flag := netmon.NewFlag(true)
	fc := &fakeConnector{conn: newFakeConn()}
	s, _ := newTestSession(t, fc, flag)
	ctx := context.Background()

	if err := s.Connect(ctx, testEndpoint(), &models.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Navigate(ctx, "/Albums"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	flag.Set(false)
	calls := fc.conn.listCallCount()

	if err := s.Navigate(ctx, "/"); err != nil {
		t.Fatalf("offline Navigate: %v", err)
	}
	if got := fc.conn.listCallCount(); got != calls {
		t.Fatalf("offline navigate hit the remote: %d calls, want %d", got, calls)
	}
	snap := s.State()
	if snap.Mode != models.ModeOffline {
		t.Fatalf("Mode = %v, want %v", snap.Mode, models.ModeOffline)
	}
	if !snap.FromCache {
		t.Fatal("offline listing not marked as cached")
	}
	if got := entryNames(snap.Entries); len(got) != 2 || got[0] != "Albums" {
		t.Fatalf("entries = %v, want cached root listing", got)
	}
}

func TestOfflineNavigateMissReportsNoOfflineData(t *testing.T) {
	flag := netmon.NewFlag(true)
	fc := &fakeConnector{conn: newFakeConn()}
	s, _ := newTestSession(t, fc, flag)
	ctx := context.Background()

	if err := s.Connect(ctx, testEndpoint(), &models.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	flag.Set(false)

	err := s.Navigate(ctx, "/Albums")
	if !errors.Is(err, ErrNoOfflineData) {
		t.Fatalf("Navigate = %v, want ErrNoOfflineData", err)
	}
	snap := s.State()
	if snap.State != models.StateError {
		t.Fatalf("state = %v, want %v", snap.State, models.StateError)
	}
	if snap.CurrentPath != "/" {
		t.Fatalf("CurrentPath = %q, want / untouched", snap.CurrentPath)
	}
}

func TestConnectivityDropReServesCurrentPath(t *testing.T) {
	flag := netmon.NewFlag(true)
	fc := &fakeConnector{conn: newFakeConn()}
	s, _ := newTestSession(t, fc, flag)
	ctx := context.Background()

	if err := s.Connect(ctx, testEndpoint(), &models.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)
	flag.Set(false)

	snap := nextSnap(t, ch)
	if snap.Online {
		t.Fatal("snapshot still reports online")
	}
	if !snap.FromCache {
		t.Fatal("current path not re-served from cache on connectivity drop")
	}
	if snap.CurrentPath != "/" {
		t.Fatalf("CurrentPath = %q, want /", snap.CurrentPath)
	}
	if got := entryNames(snap.Entries); len(got) != 2 || got[0] != "Albums" {
		t.Fatalf("entries = %v, want cached root listing", got)
	}
}

func TestDisconnectClearsSessionButNotDurableState(t *testing.T) {
	fc := &fakeConnector{conn: newFakeConn()}
	s, c := newTestSession(t, fc, netmon.NewFlag(true))
	ctx := context.Background()

	if err := s.Connect(ctx, testEndpoint(), &models.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Navigate(ctx, "/Albums"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	s.Disconnect()

	snap := s.State()
	if snap.State != models.StateDisconnected {
		t.Fatalf("state = %v, want %v", snap.State, models.StateDisconnected)
	}
	if snap.CurrentPath != "" || len(snap.Entries) != 0 || snap.Endpoint != nil {
		t.Fatalf("disconnect left session fields behind: %+v", snap)
	}
	if !fc.conn.wasClosed() {
		t.Fatal("disconnect did not close the connection")
	}

	// Cached listings survive the session.
	if _, err := c.Listing(cache.Key("media.local:445", "/Albums")); err != nil {
		t.Fatalf("cached listing gone after disconnect: %v", err)
	}

	if err := s.Navigate(ctx, "/"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Navigate after disconnect = %v, want ErrNotConnected", err)
	}
}

func TestNewerConnectSupersedesInFlight(t *testing.T) {
	slowConn := newFakeConn()
	gate := make(chan struct{})
	slow := &fakeConnector{conn: slowConn, gate: gate}
	fast := &fakeConnector{conn: newFakeConn()}

	c, err := cache.New(t.TempDir(), kv.NewMem(), nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	s := New(Config{
		Cache: c,
		Retry: fastRetry(),
		Factory: func(kind string) (connector.Connector, error) {
			if kind == connector.KindSFTP {
				return slow, nil
			}
			return fast, nil
		},
	})
	t.Cleanup(s.Close)

	slowEp := testEndpoint()
	slowEp.ID = "ep-slow"
	slowEp.Kind = connector.KindSFTP
	slowEp.Host = "slow.local"
	slowEp.Port = 22

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Connect(context.Background(), slowEp, &models.Credentials{})
	}()
	waitFor(t, func() bool { return slow.attemptCount() == 1 })

	if err := s.Connect(context.Background(), testEndpoint(), &models.Credentials{}); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	close(gate)

	if err := <-errCh; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("superseded Connect = %v, want ErrSuperseded", err)
	}
	snap := s.State()
	if snap.Endpoint == nil || snap.Endpoint.Host != "media.local" {
		t.Fatalf("session endpoint = %+v, want the newer connect", snap.Endpoint)
	}
	if snap.State != models.StateConnected {
		t.Fatalf("state = %v, want %v", snap.State, models.StateConnected)
	}
	// The superseded connection must not leak.
	waitFor(t, slowConn.wasClosed)
}

func TestConnectLocalEnumeratesFolder(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "Albums"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"song.mp3", ".hidden"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	fc := &fakeConnector{conn: newFakeConn()}
	s, _ := newTestSession(t, fc, netmon.NewFlag(true))

	b := models.Bookmark{ID: "bm-1", Name: "Deck", Path: dir}
	if err := s.ConnectLocal(b); err != nil {
		t.Fatalf("ConnectLocal: %v", err)
	}

	snap := s.State()
	if snap.State != models.StateConnected {
		t.Fatalf("state = %v, want %v", snap.State, models.StateConnected)
	}
	if snap.Mode != models.ModeLocal {
		t.Fatalf("Mode = %v, want %v", snap.Mode, models.ModeLocal)
	}
	if snap.CurrentPath != dir {
		t.Fatalf("CurrentPath = %q, want %q", snap.CurrentPath, dir)
	}
	got := entryNames(snap.Entries)
	if len(got) != 2 || got[0] != "Albums" || got[1] != "song.mp3" {
		t.Fatalf("entries = %v, want [Albums song.mp3]", got)
	}

	// Local navigation is synchronous and keeps history.
	sub := filepath.Join(dir, "Albums")
	if err := s.Navigate(context.Background(), sub); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if snap := s.State(); snap.CurrentPath != sub {
		t.Fatalf("CurrentPath = %q, want %q", snap.CurrentPath, sub)
	}
	if err := s.Back(context.Background()); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if snap := s.State(); snap.CurrentPath != dir {
		t.Fatalf("after Back CurrentPath = %q, want %q", snap.CurrentPath, dir)
	}
}

func TestConnectLocalStaleBookmarkLeavesSessionAlone(t *testing.T) {
	fc := &fakeConnector{conn: newFakeConn()}
	s, _ := newTestSession(t, fc, netmon.NewFlag(true))
	ctx := context.Background()

	if err := s.Connect(ctx, testEndpoint(), &models.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	b := models.Bookmark{ID: "bm-1", Name: "Gone", Path: filepath.Join(t.TempDir(), "vanished")}
	err := s.ConnectLocal(b)
	if !errors.Is(err, localfs.ErrStaleBookmark) {
		t.Fatalf("ConnectLocal = %v, want ErrStaleBookmark", err)
	}

	snap := s.State()
	if snap.State != models.StateConnected || snap.Endpoint == nil {
		t.Fatalf("stale bookmark touched the session: %+v", snap)
	}
	if snap.CurrentPath != "/" {
		t.Fatalf("CurrentPath = %q, want /", snap.CurrentPath)
	}
}

func TestBackConsumesHistoryOnlyOnSuccess(t *testing.T) {
	fc := &fakeConnector{conn: newFakeConn()}
	s, _ := newTestSession(t, fc, netmon.NewFlag(true))
	ctx := context.Background()

	if err := s.Connect(ctx, testEndpoint(), &models.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Navigate(ctx, "/Albums"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	// Remote down and the cache emptied: Back fails and the history entry
	// stays.
	fc.conn.setListErr(&connector.NotFoundError{Path: "/"})
	if err := s.cache.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if err := s.Back(ctx); err == nil {
		t.Fatal("Back succeeded with remote down and no cache")
	}
	if snap := s.State(); snap.CurrentPath != "/Albums" {
		t.Fatalf("CurrentPath = %q, want /Albums untouched", snap.CurrentPath)
	}

	fc.conn.setListErr(nil)
	if err := s.Back(ctx); err != nil {
		t.Fatalf("Back after recovery: %v", err)
	}
	if snap := s.State(); snap.CurrentPath != "/" {
		t.Fatalf("CurrentPath = %q, want /", snap.CurrentPath)
	}
}

func TestOpenFileRequiresConnection(t *testing.T) {
	fc := &fakeConnector{conn: newFakeConn()}
	s, _ := newTestSession(t, fc, netmon.NewFlag(true))

	if _, _, err := s.OpenFile(context.Background(), "/song.mp3"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("OpenFile = %v, want ErrNotConnected", err)
	}

	if err := s.Connect(context.Background(), testEndpoint(), &models.Credentials{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	rc, size, err := s.OpenFile(context.Background(), "/song.mp3")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "stream" || size != 6 {
		t.Fatalf("OpenFile = %q (%d bytes), want stream (6)", data, size)
	}
}
