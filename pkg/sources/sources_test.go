package sources

import (
	"testing"

	"github.com/sharedeck/sharedeck/pkg/kv"
	"github.com/sharedeck/sharedeck/pkg/models"
)

func TestEndpointCRUD(t *testing.T) {
	db := kv.NewMem()
	s, err := NewEndpoints(db)
	if err != nil {
		t.Fatalf("NewEndpoints: %v", err)
	}

	ep, err := s.Save(models.Endpoint{Name: "NAS", Kind: "smb", Host: "nas.local", Port: 445, Share: "music"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ep.ID == "" {
		t.Fatal("Save did not assign an ID")
	}
	if ep.CreatedAt.IsZero() {
		t.Error("Save did not stamp CreatedAt")
	}

	got, ok, err := s.Get(ep.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Host != "nas.local" || got.Port != 445 || got.Share != "music" {
		t.Errorf("Get = %+v", got)
	}

	if err := s.Remove(ep.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(ep.ID); ok {
		t.Error("endpoint present after Remove")
	}
	if err := s.Remove(ep.ID); err != nil {
		t.Errorf("Remove absent: %v", err)
	}
}

func TestEndpointRenameKeepsIdentity(t *testing.T) {
	s, err := NewEndpoints(kv.NewMem())
	if err != nil {
		t.Fatalf("NewEndpoints: %v", err)
	}

	ep, _ := s.Save(models.Endpoint{Name: "NAS", Kind: "smb", Host: "nas.local", Port: 445})
	ep.Name = "Basement NAS"
	renamed, err := s.Save(ep)
	if err != nil {
		t.Fatalf("Save rename: %v", err)
	}
	if renamed.ID != ep.ID {
		t.Errorf("rename changed ID: %s -> %s", ep.ID, renamed.ID)
	}
	if renamed.CreatedAt != ep.CreatedAt {
		t.Errorf("rename changed CreatedAt")
	}

	all, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 || all[0].Name != "Basement NAS" {
		t.Errorf("List = %+v", all)
	}
}

func TestEndpointListSortedByName(t *testing.T) {
	s, err := NewEndpoints(kv.NewMem())
	if err != nil {
		t.Fatalf("NewEndpoints: %v", err)
	}
	s.Save(models.Endpoint{Name: "zeta", Kind: "smb", Host: "z", Port: 445})
	s.Save(models.Endpoint{Name: "Alpha", Kind: "sftp", Host: "a", Port: 22})

	all, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Alpha" || all[1].Name != "zeta" {
		t.Errorf("List order = %+v", all)
	}
}

func TestBookmarkCRUDAndTouch(t *testing.T) {
	s, err := NewBookmarks(kv.NewMem())
	if err != nil {
		t.Fatalf("NewBookmarks: %v", err)
	}

	b, err := s.Save(models.Bookmark{Name: "Downloads", Path: "/home/me/Downloads"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if b.ID == "" {
		t.Fatal("Save did not assign an ID")
	}

	if err := s.Touch(b.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	got, ok, err := s.Get(b.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.LastAccessed.IsZero() {
		t.Error("Touch did not stamp LastAccessed")
	}
	// Touching an absent bookmark is a no-op.
	if err := s.Touch("missing"); err != nil {
		t.Errorf("Touch absent: %v", err)
	}

	if err := s.Remove(b.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(b.ID); ok {
		t.Error("bookmark present after Remove")
	}
}

func TestEndpointsAndBookmarksIsolated(t *testing.T) {
	db := kv.NewMem()
	es, _ := NewEndpoints(db)
	bs, _ := NewBookmarks(db)

	ep, _ := es.Save(models.Endpoint{Name: "NAS", Kind: "smb", Host: "h", Port: 445})
	if _, ok, _ := bs.Get(ep.ID); ok {
		t.Error("bookmark store sees endpoint records")
	}
}
