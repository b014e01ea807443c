// Package access is the application-facing facade. It composes the session,
// the offline cache, the credential vault, and the durable registries into
// the operations a player front end actually calls.
package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sharedeck/sharedeck/internal/logging"
	"github.com/sharedeck/sharedeck/pkg/cache"
	"github.com/sharedeck/sharedeck/pkg/models"
	"github.com/sharedeck/sharedeck/pkg/playback"
	"github.com/sharedeck/sharedeck/pkg/recents"
	"github.com/sharedeck/sharedeck/pkg/session"
	"github.com/sharedeck/sharedeck/pkg/sources"
	"github.com/sharedeck/sharedeck/pkg/vault"
)

// ErrUnknownSource is returned when an endpoint or bookmark ID does not
// resolve to a stored record.
var ErrUnknownSource = errors.New("access: unknown source")

// maxTextSize bounds sidecar text downloads. Anything larger is not a
// sidecar.
const maxTextSize = 1 << 20

// Config carries the facade's collaborators. All fields are required
// except Vault.
type Config struct {
	Session   *session.Session
	Cache     *cache.Cache
	Vault     *vault.Vault
	Endpoints *sources.EndpointStore
	Bookmarks *sources.BookmarkStore
	Positions *playback.Store
	Recents   *recents.Tracker
}

// Facade ties the stores and the session together.
type Facade struct {
	session   *session.Session
	cache     *cache.Cache
	vault     *vault.Vault
	endpoints *sources.EndpointStore
	bookmarks *sources.BookmarkStore
	positions *playback.Store
	recents   *recents.Tracker
}

// New creates the facade.
func New(cfg Config) *Facade {
	return &Facade{
		session:   cfg.Session,
		cache:     cfg.Cache,
		vault:     cfg.Vault,
		endpoints: cfg.Endpoints,
		bookmarks: cfg.Bookmarks,
		positions: cfg.Positions,
		recents:   cfg.Recents,
	}
}

// SaveEndpoint persists ep. Credentials, when given, go to the vault keyed
// by the endpoint address; the endpoint record itself never holds secrets.
func (f *Facade) SaveEndpoint(ep models.Endpoint, creds *models.Credentials) (models.Endpoint, error) {
	if creds != nil {
		if f.vault == nil {
			return models.Endpoint{}, errors.New("access: no vault configured")
		}
		if err := f.vault.Store(ep.Address(), *creds); err != nil {
			return models.Endpoint{}, fmt.Errorf("store credentials: %w", err)
		}
		ep.HasCredentials = true
	} else if f.vault != nil {
		has, err := f.vault.Has(ep.Address())
		if err != nil {
			return models.Endpoint{}, err
		}
		ep.HasCredentials = has
	}
	return f.endpoints.Save(ep)
}

// RemoveEndpoint deletes the endpoint and cascades to its vault entry.
func (f *Facade) RemoveEndpoint(id string) error {
	ep, ok, err := f.endpoints.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if f.vault != nil {
		if err := f.vault.Delete(ep.Address()); err != nil {
			return fmt.Errorf("remove credentials for %s: %w", ep.Address(), err)
		}
	}
	return f.endpoints.Remove(id)
}

// Endpoints lists the stored endpoints.
func (f *Facade) Endpoints() ([]models.Endpoint, error) {
	return f.endpoints.List()
}

// SaveBookmark persists a local folder bookmark.
func (f *Facade) SaveBookmark(b models.Bookmark) (models.Bookmark, error) {
	return f.bookmarks.Save(b)
}

// RemoveBookmark deletes a bookmark.
func (f *Facade) RemoveBookmark(id string) error {
	return f.bookmarks.Remove(id)
}

// Bookmarks lists the stored bookmarks.
func (f *Facade) Bookmarks() ([]models.Bookmark, error) {
	return f.bookmarks.List()
}

// Connect resolves the endpoint and establishes a session. On success the
// endpoint moves to the front of the recent sources.
func (f *Facade) Connect(ctx context.Context, endpointID string, creds *models.Credentials) error {
	ep, ok, err := f.endpoints.Get(endpointID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("endpoint %s: %w", endpointID, ErrUnknownSource)
	}
	if err := f.session.Connect(ctx, ep, creds); err != nil {
		return err
	}
	f.recordRecent(models.RecentSource{Kind: models.SourceEndpoint, RefID: ep.ID, Name: ep.Name})
	return nil
}

// ConnectLocal resolves the bookmark and opens it as a local session. On
// success the bookmark's last-access time is bumped and it moves to the
// front of the recent sources.
func (f *Facade) ConnectLocal(bookmarkID string) error {
	b, ok, err := f.bookmarks.Get(bookmarkID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bookmark %s: %w", bookmarkID, ErrUnknownSource)
	}
	if err := f.session.ConnectLocal(b); err != nil {
		return err
	}
	if err := f.bookmarks.Touch(b.ID); err != nil {
		logging.Warn("touch bookmark", logging.String("id", b.ID), logging.Err(err))
	}
	f.recordRecent(models.RecentSource{Kind: models.SourceFolder, RefID: b.ID, Name: b.Name})
	return nil
}

// Navigate lists path and makes it the current directory.
func (f *Facade) Navigate(ctx context.Context, path string) error {
	return f.session.Navigate(ctx, path)
}

// Back returns to the previous directory.
func (f *Facade) Back(ctx context.Context) error {
	return f.session.Back(ctx)
}

// Disconnect tears down the current session.
func (f *Facade) Disconnect() {
	f.session.Disconnect()
}

// State returns the current session snapshot.
func (f *Facade) State() session.Snapshot {
	return f.session.State()
}

// Subscribe registers an observer for session snapshots.
func (f *Facade) Subscribe() chan session.Snapshot {
	return f.session.Subscribe()
}

// Unsubscribe removes an observer.
func (f *Facade) Unsubscribe(ch chan session.Snapshot) {
	f.session.Unsubscribe(ch)
}

// PlayableSource is what a player consumes: a local path (local session or
// cached blob) or a remote stream. Exactly one of LocalPath and Stream is
// set.
type PlayableSource struct {
	Entry     models.FileEntry
	LocalPath string
	Stream    io.ReadCloser
	Size      int64
}

// Play resolves entry to a playable source. A cached copy is preferred
// even when the remote is reachable; offline with no cached copy fails
// with cache.ErrNotCached.
func (f *Facade) Play(ctx context.Context, entry models.FileEntry) (PlayableSource, error) {
	if entry.IsDir {
		return PlayableSource{}, fmt.Errorf("play %s: is a directory", entry.Name)
	}

	snap := f.session.State()
	if snap.Mode == models.ModeLocal {
		return PlayableSource{Entry: entry, LocalPath: entry.Path, Size: entry.Size}, nil
	}
	if snap.Endpoint == nil {
		return PlayableSource{}, session.ErrNotConnected
	}

	key := cache.Key(snap.Endpoint.Address(), entry.Path)
	if p, err := f.cache.PlayableBlob(key); err == nil {
		return PlayableSource{Entry: entry, LocalPath: p, Size: entry.Size}, nil
	}
	if snap.Mode == models.ModeOffline {
		return PlayableSource{}, fmt.Errorf("play %s: %w", entry.Name, cache.ErrNotCached)
	}

	rc, size, err := f.session.OpenFile(ctx, entry.Path)
	if err != nil {
		return PlayableSource{}, err
	}
	if size < 0 {
		size = entry.Size
	}
	return PlayableSource{Entry: entry, Stream: rc, Size: size}, nil
}

// ReadText returns the contents of a text entry, preferring the cache and
// writing remote downloads through it so the text stays available offline.
func (f *Facade) ReadText(ctx context.Context, entry models.FileEntry) ([]byte, error) {
	if entry.Kind() != models.KindText {
		return nil, fmt.Errorf("read %s: not a text file", entry.Name)
	}
	if entry.Size > maxTextSize {
		return nil, fmt.Errorf("read %s: %d bytes exceeds the text limit", entry.Name, entry.Size)
	}

	snap := f.session.State()
	if snap.Mode == models.ModeLocal {
		return os.ReadFile(entry.Path)
	}
	if snap.Endpoint == nil {
		return nil, session.ErrNotConnected
	}

	key := cache.Key(snap.Endpoint.Address(), entry.Path)
	if p, err := f.cache.PlayableBlob(key); err == nil {
		return os.ReadFile(p)
	}
	if snap.Mode == models.ModeOffline {
		return nil, fmt.Errorf("read %s: %w", entry.Name, cache.ErrNotCached)
	}

	if _, err := f.CacheFile(ctx, entry); err != nil {
		return nil, err
	}
	p, err := f.cache.PlayableBlob(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// SidecarFor returns the text file sharing entry's base name in the
// current listing, if any.
func (f *Facade) SidecarFor(entry models.FileEntry) (models.FileEntry, bool) {
	snap := f.session.State()
	base := entry.BaseName()
	for _, e := range snap.Entries {
		if e.IsDir || e.Same(entry) {
			continue
		}
		if e.Kind() == models.KindText && e.BaseName() == base {
			return e, true
		}
	}
	return models.FileEntry{}, false
}

// CacheFile downloads entry into the offline cache and returns the local
// blob path. Already-cached entries return immediately.
func (f *Facade) CacheFile(ctx context.Context, entry models.FileEntry) (string, error) {
	if entry.IsDir {
		return "", fmt.Errorf("cache %s: is a directory", entry.Name)
	}
	snap := f.session.State()
	if snap.Endpoint == nil {
		return "", session.ErrNotConnected
	}

	key := cache.Key(snap.Endpoint.Address(), entry.Path)
	if p, err := f.cache.PlayableBlob(key); err == nil {
		return p, nil
	}

	rc, _, err := f.session.OpenFile(ctx, entry.Path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return f.cache.CacheFile(ctx, key, rc)
}

// PrefetchResult reports the outcome of one prefetched entry.
type PrefetchResult struct {
	Path      string
	LocalPath string
	Err       error
}

// Prefetch downloads entries into the cache with at most maxConcurrent
// downloads in flight. Directories are skipped. The returned channel is
// closed once every entry has been handled.
func (f *Facade) Prefetch(ctx context.Context, entries []models.FileEntry, maxConcurrent int) <-chan PrefetchResult {
	results := make(chan PrefetchResult, len(entries))

	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}

	go func() {
		defer close(results)

		sem := make(chan struct{}, maxConcurrent)
		var wg sync.WaitGroup

		for _, entry := range entries {
			select {
			case <-ctx.Done():
				results <- PrefetchResult{Path: entry.Path, Err: ctx.Err()}
				continue
			default:
			}

			if entry.IsDir {
				continue
			}

			wg.Add(1)
			sem <- struct{}{}

			go func(e models.FileEntry) {
				defer wg.Done()
				defer func() { <-sem }()

				p, err := f.CacheFile(ctx, e)
				results <- PrefetchResult{Path: e.Path, LocalPath: p, Err: err}
			}(entry)
		}

		wg.Wait()
	}()

	return results
}

// SavePosition records the playback position for entry. Positions near the
// start or end clear the stored entry instead.
func (f *Facade) SavePosition(entry models.FileEntry, elapsed, duration float64) error {
	return f.positions.Save(models.Position{
		Path:       f.positionKey(entry),
		Name:       entry.Name,
		Elapsed:    elapsed,
		Duration:   duration,
		LastPlayed: time.Now(),
	})
}

// Position returns the stored playback position for entry.
func (f *Facade) Position(entry models.FileEntry) (models.Position, bool, error) {
	return f.positions.Get(f.positionKey(entry))
}

// ClearPosition drops the stored position for entry.
func (f *Facade) ClearPosition(entry models.FileEntry) error {
	return f.positions.Clear(f.positionKey(entry))
}

// Recents returns the recent sources, newest first.
func (f *Facade) Recents() []models.RecentSource {
	return f.recents.List()
}

// positionKey scopes playback positions to the current source so the same
// path on two servers never collides.
func (f *Facade) positionKey(entry models.FileEntry) string {
	snap := f.session.State()
	if snap.Endpoint != nil {
		return cache.Key(snap.Endpoint.Address(), entry.Path)
	}
	return entry.Path
}

func (f *Facade) recordRecent(src models.RecentSource) {
	if err := f.recents.Record(src); err != nil {
		logging.Warn("record recent source", logging.String("name", src.Name), logging.Err(err))
	}
}
