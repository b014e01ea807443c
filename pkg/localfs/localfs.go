// Package localfs enumerates local directories for browsing and resolves
// folder bookmarks, reporting stale ones instead of failing obscurely.
package localfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sharedeck/sharedeck/pkg/models"
)

// ErrStaleBookmark is returned when a bookmark no longer points at a
// readable directory. The bookmark itself stays saved; only this use of it
// failed.
var ErrStaleBookmark = errors.New("localfs: stale bookmark")

// Resolve checks that the bookmark still points at a directory and returns
// its path.
func Resolve(b models.Bookmark) (string, error) {
	fi, err := os.Stat(b.Path)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return "", fmt.Errorf("%w: %s", ErrStaleBookmark, b.Path)
		}
		return "", fmt.Errorf("resolve bookmark %s: %w", b.Name, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrStaleBookmark, b.Path)
	}
	return b.Path, nil
}

// List enumerates the directory at path, skipping hidden entries, sorted
// directories first then case-insensitively by name. Local listing is
// synchronous; there is nothing to retry or cache.
func List(path string) ([]models.FileEntry, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}

	des, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, err)
	}

	entries := make([]models.FileEntry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		child := filepath.ToSlash(filepath.Join(path, name))
		entries = append(entries, models.NewFileEntry(name, child, info.Size(), info.ModTime(), info.IsDir()))
	}

	models.SortEntries(entries)
	return entries, nil
}
