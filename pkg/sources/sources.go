// Package sources persists saved endpoints and local folder bookmarks.
// Both live until removed explicitly; renaming changes display fields only,
// never identity.
package sources

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sharedeck/sharedeck/pkg/kv"
	"github.com/sharedeck/sharedeck/pkg/models"
)

const (
	endpointsScope = "endpoints"
	bookmarksScope = "bookmarks"
)

// EndpointStore persists saved remote endpoints keyed by ID.
type EndpointStore struct {
	kv kv.Store
}

// NewEndpoints opens the endpoint store backed by db.
func NewEndpoints(db kv.DB) (*EndpointStore, error) {
	s, err := db.Store(endpointsScope)
	if err != nil {
		return nil, fmt.Errorf("open endpoints: %w", err)
	}
	return &EndpointStore{kv: s}, nil
}

// Save persists ep, assigning an ID and creation time on first save, and
// returns the stored copy.
func (s *EndpointStore) Save(ep models.Endpoint) (models.Endpoint, error) {
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now()
	}
	raw, err := json.Marshal(ep)
	if err != nil {
		return models.Endpoint{}, fmt.Errorf("encode endpoint: %w", err)
	}
	if err := s.kv.Put(ep.ID, raw); err != nil {
		return models.Endpoint{}, fmt.Errorf("store endpoint %s: %w", ep.ID, err)
	}
	return ep, nil
}

// Get returns the endpoint with the given ID.
func (s *EndpointStore) Get(id string) (models.Endpoint, bool, error) {
	raw, ok, err := s.kv.Get(id)
	if err != nil {
		return models.Endpoint{}, false, fmt.Errorf("load endpoint %s: %w", id, err)
	}
	if !ok {
		return models.Endpoint{}, false, nil
	}
	var ep models.Endpoint
	if err := json.Unmarshal(raw, &ep); err != nil {
		return models.Endpoint{}, false, fmt.Errorf("decode endpoint %s: %w", id, err)
	}
	return ep, true, nil
}

// List returns all endpoints sorted by display name.
func (s *EndpointStore) List() ([]models.Endpoint, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	eps := make([]models.Endpoint, 0, len(keys))
	for _, k := range keys {
		ep, ok, err := s.Get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			eps = append(eps, ep)
		}
	}
	sort.Slice(eps, func(i, j int) bool {
		return strings.ToLower(eps[i].Name) < strings.ToLower(eps[j].Name)
	})
	return eps, nil
}

// Remove deletes the endpoint with the given ID. Removing an absent ID is
// not an error.
func (s *EndpointStore) Remove(id string) error {
	if err := s.kv.Delete(id); err != nil {
		return fmt.Errorf("remove endpoint %s: %w", id, err)
	}
	return nil
}

// BookmarkStore persists local folder bookmarks keyed by ID.
type BookmarkStore struct {
	kv kv.Store
}

// NewBookmarks opens the bookmark store backed by db.
func NewBookmarks(db kv.DB) (*BookmarkStore, error) {
	s, err := db.Store(bookmarksScope)
	if err != nil {
		return nil, fmt.Errorf("open bookmarks: %w", err)
	}
	return &BookmarkStore{kv: s}, nil
}

// Save persists b, assigning an ID on first save, and returns the stored
// copy.
func (s *BookmarkStore) Save(b models.Bookmark) (models.Bookmark, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return models.Bookmark{}, fmt.Errorf("encode bookmark: %w", err)
	}
	if err := s.kv.Put(b.ID, raw); err != nil {
		return models.Bookmark{}, fmt.Errorf("store bookmark %s: %w", b.ID, err)
	}
	return b, nil
}

// Get returns the bookmark with the given ID.
func (s *BookmarkStore) Get(id string) (models.Bookmark, bool, error) {
	raw, ok, err := s.kv.Get(id)
	if err != nil {
		return models.Bookmark{}, false, fmt.Errorf("load bookmark %s: %w", id, err)
	}
	if !ok {
		return models.Bookmark{}, false, nil
	}
	var b models.Bookmark
	if err := json.Unmarshal(raw, &b); err != nil {
		return models.Bookmark{}, false, fmt.Errorf("decode bookmark %s: %w", id, err)
	}
	return b, true, nil
}

// List returns all bookmarks sorted by display name.
func (s *BookmarkStore) List() ([]models.Bookmark, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	bs := make([]models.Bookmark, 0, len(keys))
	for _, k := range keys {
		b, ok, err := s.Get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			bs = append(bs, b)
		}
	}
	sort.Slice(bs, func(i, j int) bool {
		return strings.ToLower(bs[i].Name) < strings.ToLower(bs[j].Name)
	})
	return bs, nil
}

// Touch stamps the bookmark's last access time.
func (s *BookmarkStore) Touch(id string) error {
	b, ok, err := s.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	b.LastAccessed = time.Now()
	_, err = s.Save(b)
	return err
}

// Remove deletes the bookmark with the given ID. Removing an absent ID is
// not an error.
func (s *BookmarkStore) Remove(id string) error {
	if err := s.kv.Delete(id); err != nil {
		return fmt.Errorf("remove bookmark %s: %w", id, err)
	}
	return nil
}
