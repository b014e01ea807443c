// Package playback persists playback positions so interrupted listening
// resumes where it left off, across restarts.
package playback

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sharedeck/sharedeck/pkg/kv"
	"github.com/sharedeck/sharedeck/pkg/models"
)

const scope = "positions"

// Store persists playback positions keyed by file path. Every write goes
// straight through to the backing store; there is no batch to lose on a
// crash.
type Store struct {
	kv kv.Store
}

// New opens the position store backed by db, dropping entries that have not
// been played within models.PositionMaxAge.
func New(db kv.DB) (*Store, error) {
	s, err := db.Store(scope)
	if err != nil {
		return nil, fmt.Errorf("open positions: %w", err)
	}
	st := &Store{kv: s}
	if err := st.purgeExpired(); err != nil {
		return nil, err
	}
	return st, nil
}

// Save records pos when its progress sits strictly between the remember
// thresholds, and removes any stored position for the path otherwise.
func (s *Store) Save(pos models.Position) error {
	if !pos.ShouldRemember() {
		return s.Clear(pos.Path)
	}
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	if err := s.kv.Put(pos.Path, raw); err != nil {
		return fmt.Errorf("store position for %s: %w", pos.Path, err)
	}
	return nil
}

// Get returns the stored position for path. Expired entries are treated as
// absent.
func (s *Store) Get(path string) (models.Position, bool, error) {
	raw, ok, err := s.kv.Get(path)
	if err != nil {
		return models.Position{}, false, fmt.Errorf("load position for %s: %w", path, err)
	}
	if !ok {
		return models.Position{}, false, nil
	}
	var pos models.Position
	if err := json.Unmarshal(raw, &pos); err != nil {
		return models.Position{}, false, fmt.Errorf("decode position for %s: %w", path, err)
	}
	if pos.Expired(time.Now()) {
		return models.Position{}, false, nil
	}
	return pos, true, nil
}

// Clear removes the stored position for path, if any.
func (s *Store) Clear(path string) error {
	if err := s.kv.Delete(path); err != nil {
		return fmt.Errorf("clear position for %s: %w", path, err)
	}
	return nil
}

// ClearAll removes every stored position.
func (s *Store) ClearAll() error {
	keys, err := s.kv.Keys()
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	for _, k := range keys {
		if err := s.kv.Delete(k); err != nil {
			return fmt.Errorf("clear position for %s: %w", k, err)
		}
	}
	return nil
}

// purgeExpired drops entries outside the retention window. Corrupt records
// are dropped as well.
func (s *Store) purgeExpired() error {
	keys, err := s.kv.Keys()
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	now := time.Now()
	for _, k := range keys {
		raw, ok, err := s.kv.Get(k)
		if err != nil {
			return fmt.Errorf("load position for %s: %w", k, err)
		}
		if !ok {
			continue
		}
		var pos models.Position
		if err := json.Unmarshal(raw, &pos); err != nil {
			s.kv.Delete(k)
			continue
		}
		if pos.Expired(now) {
			if err := s.kv.Delete(k); err != nil {
				return fmt.Errorf("purge position for %s: %w", k, err)
			}
		}
	}
	return nil
}
