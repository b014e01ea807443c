// Package recents tracks the most recently used sources, remote endpoints
// and local folders alike, for quick reconnect.
package recents

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sharedeck/sharedeck/pkg/kv"
	"github.com/sharedeck/sharedeck/pkg/models"
)

const (
	scope   = "recents"
	listKey = "list"
)

// Max is the number of sources kept.
const Max = 5

// Tracker keeps the most recently used sources, newest first. The whole
// list is persisted on every change.
type Tracker struct {
	mu   sync.Mutex
	kv   kv.Store
	list []models.RecentSource
}

// New loads the tracker from db. A corrupt stored list resets to empty.
func New(db kv.DB) (*Tracker, error) {
	s, err := db.Store(scope)
	if err != nil {
		return nil, fmt.Errorf("open recents: %w", err)
	}
	t := &Tracker{kv: s}
	raw, ok, err := s.Get(listKey)
	if err != nil {
		return nil, fmt.Errorf("load recents: %w", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &t.list); err != nil {
			t.list = nil
		}
	}
	return t, nil
}

// Record moves src to the front of the list. An existing entry with the
// same identity, or the same display name, is replaced rather than
// duplicated. The list is truncated to Max.
func (t *Tracker) Record(src models.RecentSource) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if src.LastUsed.IsZero() {
		src.LastUsed = time.Now()
	}

	next := make([]models.RecentSource, 0, len(t.list)+1)
	next = append(next, src)
	for _, s := range t.list {
		if s.SameIdentity(src) || s.Name == src.Name {
			continue
		}
		next = append(next, s)
	}
	if len(next) > Max {
		next = next[:Max]
	}
	t.list = next
	return t.persist()
}

// List returns the sources, newest first.
func (t *Tracker) List() []models.RecentSource {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.RecentSource, len(t.list))
	copy(out, t.list)
	return out
}

// Clear empties the list.
func (t *Tracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.list = nil
	return t.persist()
}

// persist writes the whole list. Must be called with the lock held.
func (t *Tracker) persist() error {
	raw, err := json.Marshal(t.list)
	if err != nil {
		return fmt.Errorf("encode recents: %w", err)
	}
	if err := t.kv.Put(listKey, raw); err != nil {
		return fmt.Errorf("store recents: %w", err)
	}
	return nil
}
