// Package session implements the connection state machine that ties the
// remote connectors, the offline cache, and the credential vault together.
//
// A session is either remote (backed by a live connector), local (backed by
// a folder on disk), or disconnected. All state mutations happen under one
// mutex and every transition publishes exactly one snapshot. Slow remote
// work runs outside the lock; results are applied only if no newer
// operation superseded them in the meantime.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sharedeck/sharedeck/internal/logging"
	"github.com/sharedeck/sharedeck/internal/metrics"
	"github.com/sharedeck/sharedeck/pkg/cache"
	"github.com/sharedeck/sharedeck/pkg/connector"
	"github.com/sharedeck/sharedeck/pkg/localfs"
	"github.com/sharedeck/sharedeck/pkg/models"
	"github.com/sharedeck/sharedeck/pkg/netmon"
	"github.com/sharedeck/sharedeck/pkg/retry"
	"github.com/sharedeck/sharedeck/pkg/vault"
)

var (
	// ErrNotConnected is returned by operations that need an established
	// session.
	ErrNotConnected = errors.New("session: not connected")

	// ErrSuperseded is returned when a newer connect, navigate, or
	// disconnect invalidated the operation while it was in flight. The
	// session state reflects the newer operation.
	ErrSuperseded = errors.New("session: superseded by a newer operation")

	// ErrNoOfflineData is returned when a path is requested while offline
	// and the cache holds no listing for it.
	ErrNoOfflineData = errors.New("session: no offline data")
)

// Config carries the session's collaborators.
type Config struct {
	Vault   *vault.Vault   // credential lookup for connects without explicit credentials; may be nil
	Cache   *cache.Cache   // listing write-through and offline fallback; required
	Monitor netmon.Monitor // connectivity source; nil means always online
	Retry   retry.Config   // schedule for remote operations

	// Factory resolves an endpoint kind to a connector. Defaults to
	// connector.ForKind.
	Factory func(kind string) (connector.Connector, error)
}

// Session is the connection state machine. Safe for concurrent use; a new
// connect, navigate, or disconnect supersedes any still-running operation,
// whose result is then discarded.
type Session struct {
	vault   *vault.Vault
	cache   *cache.Cache
	monitor netmon.Monitor
	retry   retry.Config
	factory func(kind string) (connector.Connector, error)
	bcast   *Broadcaster
	unsub   func()

	mu        sync.Mutex
	epoch     uint64
	state     models.ConnState
	endpoint  *models.Endpoint
	folder    *models.Bookmark
	conn      connector.Conn
	path      string
	entries   []models.FileEntry
	history   []string
	online    bool
	fromCache bool
	cachedAt  time.Time
	errMsg    string
}

// New creates a disconnected session.
func New(cfg Config) *Session {
	if cfg.Monitor == nil {
		cfg.Monitor = netmon.NewFlag(true)
	}
	if cfg.Factory == nil {
		cfg.Factory = connector.ForKind
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}

	s := &Session{
		vault:   cfg.Vault,
		cache:   cfg.Cache,
		monitor: cfg.Monitor,
		factory: cfg.Factory,
		bcast:   NewBroadcaster(),
		state:   models.StateDisconnected,
		online:  cfg.Monitor.Online(),
	}

	userHook := cfg.Retry.OnRetry
	cfg.Retry.OnRetry = func(attempt int, err error) {
		metrics.RecordRetry()
		logging.Warn("retrying remote operation",
			logging.Int("attempt", attempt),
			logging.Err(err))
		if userHook != nil {
			userHook(attempt, err)
		}
	}
	s.retry = cfg.Retry

	s.unsub = cfg.Monitor.Subscribe(s.handleConnectivity)
	return s
}

// Close releases the connectivity subscription and tears down any live
// connection. The session is unusable afterwards.
func (s *Session) Close() {
	if s.unsub != nil {
		s.unsub()
	}
	s.Disconnect()
}

// Subscribe registers an observer for session snapshots.
func (s *Session) Subscribe() chan Snapshot {
	return s.bcast.Subscribe()
}

// Unsubscribe removes an observer.
func (s *Session) Unsubscribe(ch chan Snapshot) {
	s.bcast.Unsubscribe(ch)
}

// State returns the current snapshot.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Connect establishes a remote session to ep, tearing down any previous
// session first. If creds is nil the vault is consulted; a missing vault
// entry connects with empty credentials (anonymous or guest access).
// On success the root listing is fetched and published together with the
// connected state.
func (s *Session) Connect(ctx context.Context, ep models.Endpoint, creds *models.Credentials) error {
	var c models.Credentials
	switch {
	case creds != nil:
		c = *creds
	case s.vault != nil:
		stored, ok, err := s.vault.Lookup(ep.Address())
		if err != nil {
			return fmt.Errorf("look up credentials for %s: %w", ep.Address(), err)
		}
		if ok {
			c = stored
		}
	}

	impl, err := s.factory(ep.Kind)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.epoch++
	my := s.epoch
	old := s.conn
	s.clearLocked()
	s.state = models.StateConnecting
	epCopy := ep
	s.endpoint = &epCopy
	s.publishLocked()
	s.mu.Unlock()

	closeConn(old)

	logging.Info("connecting",
		logging.String("endpoint", ep.Name),
		logging.String("kind", ep.Kind),
		logging.String("addr", ep.Address()))

	var live connector.Conn
	err = retry.Do(ctx, s.retry, func() error {
		var cerr error
		live, cerr = impl.Connect(ctx, ep, c)
		return cerr
	})
	metrics.RecordConnect(err == nil)
	if err != nil {
		logging.Warn("connect failed", logging.String("endpoint", ep.Name), logging.Err(err))
		return s.fail(my, fmt.Errorf("connect %s: %w", ep.Name, err))
	}

	// Fetch the root before publishing connected so the first connected
	// snapshot already carries a listing.
	entries, fromCache, cachedAt, lerr := s.listRemote(ctx, live, ep.Address(), "/")

	s.mu.Lock()
	if s.epoch != my {
		s.mu.Unlock()
		closeConn(live)
		return ErrSuperseded
	}
	s.conn = live
	if lerr != nil {
		s.state = models.StateError
		s.errMsg = lerr.Error()
		s.publishLocked()
		s.mu.Unlock()
		return lerr
	}
	s.state = models.StateConnected
	s.path = "/"
	s.history = nil
	s.entries = entries
	s.fromCache = fromCache
	s.cachedAt = cachedAt
	s.publishLocked()
	s.mu.Unlock()

	logging.Info("connected", logging.String("endpoint", ep.Name), logging.Int("entries", len(entries)))
	return nil
}

// ConnectLocal establishes a session on a local folder. The folder is
// resolved and enumerated synchronously; a stale bookmark returns an error
// without touching the current session.
func (s *Session) ConnectLocal(b models.Bookmark) error {
	root, err := localfs.Resolve(b)
	if err != nil {
		return err
	}
	entries, err := localfs.List(root)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.epoch++
	old := s.conn
	s.clearLocked()
	s.state = models.StateConnected
	bCopy := b
	s.folder = &bCopy
	s.path = root
	s.entries = entries
	s.publishLocked()
	s.mu.Unlock()

	closeConn(old)
	logging.Info("opened local folder", logging.String("name", b.Name), logging.String("path", root))
	return nil
}

// Navigate lists path and makes it the current directory, pushing the
// previous path onto the history stack. A failed navigate leaves the
// current path, listing, and history exactly as they were.
func (s *Session) Navigate(ctx context.Context, path string) error {
	return s.navigate(ctx, path, true)
}

// Back pops the history stack and navigates to the previous path. With an
// empty history it is a no-op.
func (s *Session) Back(ctx context.Context) error {
	s.mu.Lock()
	if len(s.history) == 0 {
		s.mu.Unlock()
		return nil
	}
	target := s.history[len(s.history)-1]
	s.mu.Unlock()

	if err := s.navigate(ctx, target, false); err != nil {
		return err
	}

	// The entry is consumed only once the navigate landed, so a failed
	// Back leaves the history intact.
	s.mu.Lock()
	if n := len(s.history); n > 0 && s.history[n-1] == target {
		s.history = s.history[:n-1]
	}
	s.mu.Unlock()
	return nil
}

// Disconnect tears down the session and returns to disconnected. Durable
// state (cache, vault, positions, recents) is not touched.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.epoch++
	old := s.conn
	s.clearLocked()
	s.state = models.StateDisconnected
	s.publishLocked()
	s.mu.Unlock()

	closeConn(old)
}

// OpenFile starts streaming the file at path over the live connection.
// The returned size is -1 when the connector cannot determine it.
func (s *Session) OpenFile(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, 0, ErrNotConnected
	}

	var (
		rc   io.ReadCloser
		size int64
	)
	start := time.Now()
	err := retry.Do(ctx, s.retry, func() error {
		var oerr error
		rc, size, oerr = conn.Open(ctx, path)
		return oerr
	})
	metrics.RecordRemoteOp("open", time.Since(start), err == nil)
	if err != nil {
		return nil, 0, err
	}
	return rc, size, nil
}

// navigate implements Navigate and Back. push controls whether the
// previous path is recorded in the history.
func (s *Session) navigate(ctx context.Context, path string, push bool) error {
	s.mu.Lock()
	mode := s.modeLocked()
	if mode == "" {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.epoch++
	my := s.epoch

	switch mode {
	case models.ModeLocal:
		// Local enumeration is synchronous; no cache, no retries.
		entries, err := localfs.List(path)
		if err != nil {
			s.state = models.StateError
			s.errMsg = err.Error()
			s.publishLocked()
			s.mu.Unlock()
			return err
		}
		s.applyListingLocked(path, entries, false, time.Time{}, push)
		s.mu.Unlock()
		return nil

	case models.ModeOffline:
		key := cache.Key(s.endpoint.Address(), path)
		listing, err := s.cache.Listing(key)
		if err != nil {
			err = fmt.Errorf("%w for %s", ErrNoOfflineData, path)
			s.state = models.StateError
			s.errMsg = err.Error()
			s.publishLocked()
			s.mu.Unlock()
			return err
		}
		metrics.RecordOfflineFallback()
		s.applyListingLocked(path, listing.Entries, true, listing.CachedAt, push)
		s.mu.Unlock()
		return nil

	default: // models.ModeRemote
		conn := s.conn
		addr := s.endpoint.Address()
		s.mu.Unlock()

		entries, fromCache, cachedAt, err := s.listRemote(ctx, conn, addr, path)

		s.mu.Lock()
		if s.epoch != my {
			s.mu.Unlock()
			return ErrSuperseded
		}
		if err != nil {
			s.state = models.StateError
			s.errMsg = err.Error()
			s.publishLocked()
			s.mu.Unlock()
			return err
		}
		s.applyListingLocked(path, entries, fromCache, cachedAt, push)
		s.mu.Unlock()
		return nil
	}
}

// listRemote fetches a directory over conn with retries, writing the result
// through to the cache. On failure it falls back to the cached listing for
// that path; the original error is returned only when the cache has nothing.
func (s *Session) listRemote(ctx context.Context, conn connector.Conn, addr, path string) ([]models.FileEntry, bool, time.Time, error) {
	start := time.Now()
	remote, err := retry.DoWithResult(ctx, s.retry, func() ([]connector.RemoteEntry, error) {
		return conn.List(ctx, path)
	})
	metrics.RecordRemoteOp("list", time.Since(start), err == nil)

	key := cache.Key(addr, path)
	if err == nil {
		entries := toFileEntries(remote)
		if cerr := s.cache.RecordListing(key, entries); cerr != nil {
			logging.Warn("record listing in cache", logging.String("path", path), logging.Err(cerr))
		}
		return entries, false, time.Time{}, nil
	}

	listing, cerr := s.cache.Listing(key)
	if cerr != nil {
		return nil, false, time.Time{}, fmt.Errorf("list %s: %w", path, err)
	}
	logging.Warn("serving cached listing after remote failure",
		logging.String("path", path), logging.Err(err))
	metrics.RecordOfflineFallback()
	return listing.Entries, true, listing.CachedAt, nil
}

// handleConnectivity runs on every connectivity transition. On a drop the
// current path is re-served from the cache so observers see the offline
// variant without waiting for the next navigate.
func (s *Session) handleConnectivity(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = online
	if !online && s.folder == nil && s.endpoint != nil && s.path != "" {
		key := cache.Key(s.endpoint.Address(), s.path)
		if listing, err := s.cache.Listing(key); err == nil {
			s.entries = listing.Entries
			s.fromCache = true
			s.cachedAt = listing.CachedAt
			metrics.RecordOfflineFallback()
		}
	}
	s.publishLocked()
}

// fail moves the session to the error state unless a newer operation
// superseded the failing one.
func (s *Session) fail(my uint64, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != my {
		return ErrSuperseded
	}
	s.state = models.StateError
	s.errMsg = err.Error()
	s.publishLocked()
	return err
}

// applyListingLocked lands a successful navigate: history push, listing
// swap, and publication happen as one transition.
func (s *Session) applyListingLocked(path string, entries []models.FileEntry, fromCache bool, cachedAt time.Time, push bool) {
	if push && s.path != "" && (len(s.history) == 0 || s.history[len(s.history)-1] != s.path) {
		s.history = append(s.history, s.path)
	}
	s.state = models.StateConnected
	s.errMsg = ""
	s.path = path
	s.entries = entries
	s.fromCache = fromCache
	s.cachedAt = cachedAt
	s.publishLocked()
}

// clearLocked resets all session-scoped fields. The caller sets the next
// state before publishing.
func (s *Session) clearLocked() {
	s.conn = nil
	s.endpoint = nil
	s.folder = nil
	s.path = ""
	s.entries = nil
	s.history = nil
	s.fromCache = false
	s.cachedAt = time.Time{}
	s.errMsg = ""
}

func (s *Session) modeLocked() models.Mode {
	switch {
	case s.folder != nil:
		return models.ModeLocal
	case s.endpoint != nil && s.conn != nil && !s.online:
		return models.ModeOffline
	case s.endpoint != nil && s.conn != nil:
		return models.ModeRemote
	default:
		return ""
	}
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:       s.state,
		Mode:        s.modeLocked(),
		Endpoint:    s.endpoint,
		Folder:      s.folder,
		CurrentPath: s.path,
		Entries:     s.entries,
		Online:      s.online,
		FromCache:   s.fromCache,
		CachedAt:    s.cachedAt,
		Err:         s.errMsg,
	}
}

func (s *Session) publishLocked() {
	metrics.SetSessionState(string(s.state))
	s.bcast.Publish(s.snapshotLocked())
}

func toFileEntries(remote []connector.RemoteEntry) []models.FileEntry {
	entries := make([]models.FileEntry, 0, len(remote))
	for _, r := range remote {
		entries = append(entries, models.NewFileEntry(r.Name, r.Path, r.Size, r.ModTime, r.IsDir))
	}
	models.SortEntries(entries)
	return entries
}

func closeConn(c connector.Conn) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logging.Debug("close connection", logging.Err(err))
	}
}
