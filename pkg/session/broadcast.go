package session

import (
	"sync"
	"time"

	"github.com/sharedeck/sharedeck/pkg/models"
)

// Snapshot is the immutable published view of the session. Every state
// transition produces exactly one snapshot; observers never see a partial
// update.
type Snapshot struct {
	State       models.ConnState
	Mode        models.Mode
	Endpoint    *models.Endpoint
	Folder      *models.Bookmark
	CurrentPath string
	Entries     []models.FileEntry
	Online      bool
	FromCache   bool      // listing served from the offline cache
	CachedAt    time.Time // capture time of the served listing when FromCache
	Err         string    // reason when State is error
}

// Broadcaster publishes snapshots to subscribers. Publishing never blocks:
// a slow consumer misses intermediate snapshots instead of stalling the
// session.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan Snapshot]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Snapshot]struct{})}
}

// Subscribe adds a subscriber and returns its channel. The caller must
// call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Snapshot) {
	b.mu.Lock()
	delete(b.subs, ch)
	close(ch)
	b.mu.Unlock()
}

// Publish sends snap to all subscribers, dropping it for any whose buffer
// is full.
func (b *Broadcaster) Publish(snap Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
