// Package models contains the shared data types used across the core.
package models

import (
	"net"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FileEntry represents a file or directory at a remote or local path.
type FileEntry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
	IsDir   bool      `json:"is_dir"`
	Ext     string    `json:"ext,omitempty"` // lowercase, empty for directories
}

// NewFileEntry builds a FileEntry, deriving the lowercase extension.
func NewFileEntry(name, fullPath string, size int64, modTime time.Time, isDir bool) FileEntry {
	e := FileEntry{
		Name:    name,
		Path:    fullPath,
		Size:    size,
		ModTime: modTime,
		IsDir:   isDir,
	}
	if !isDir {
		e.Ext = strings.ToLower(path.Ext(name))
	}
	return e
}

// Same reports whether two entries refer to the same file.
// Path equality is the only identity signal.
func (e FileEntry) Same(other FileEntry) bool {
	return e.Path == other.Path
}

// EntryKind classifies what the playback layer can do with an entry.
type EntryKind int

const (
	KindOther EntryKind = iota
	KindAudio           // playable by the audio engine
	KindText            // plain-text sidecar (lyrics, subtitles)
)

var audioExts = map[string]bool{
	".mp3": true, ".m4a": true, ".m4b": true, ".aac": true,
	".wav": true, ".aif": true, ".aiff": true, ".flac": true,
	".ogg": true, ".opus": true, ".wma": true, ".caf": true,
}

var textExts = map[string]bool{
	".txt": true, ".text": true, ".lrc": true, ".srt": true,
}

// Kind returns the derived classification of the entry.
func (e FileEntry) Kind() EntryKind {
	if e.IsDir {
		return KindOther
	}
	switch {
	case audioExts[e.Ext]:
		return KindAudio
	case textExts[e.Ext]:
		return KindText
	default:
		return KindOther
	}
}

// BaseName returns the entry name without its extension.
func (e FileEntry) BaseName() string {
	return strings.TrimSuffix(e.Name, path.Ext(e.Name))
}

// SortEntries orders entries in place: directories before files, then
// case-insensitive ascending by name within each group.
func SortEntries(entries []FileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}

// Credentials holds the secret material for one remote endpoint.
// Domain is optional and only meaningful for SMB shares.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Domain   string `json:"domain,omitempty"`
}

// Endpoint is a saved remote connection target. ID is immutable; display
// fields may change without affecting stored credentials (those are keyed
// by host and port).
type Endpoint struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Kind           string    `json:"kind"` // connector kind: smb, sftp, s3
	Host           string    `json:"host"`
	Port           int       `json:"port"`
	Share          string    `json:"share,omitempty"` // SMB share / S3 bucket / SFTP base dir
	HasCredentials bool      `json:"has_credentials"`
	CreatedAt      time.Time `json:"created_at"`
}

// Address returns the host:port form used for vault keys and dialing.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Bookmark is a revalidatable reference to a local directory. It must be
// resolved before each use; resolution can report the reference stale.
type Bookmark struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	LastAccessed time.Time `json:"last_accessed"`
}

// SourceKind tags the variants of a RecentSource.
type SourceKind string

const (
	SourceEndpoint SourceKind = "endpoint"
	SourceFolder   SourceKind = "folder"
)

// RecentSource is one entry of the most-recently-used source list.
type RecentSource struct {
	Kind     SourceKind `json:"kind"`
	RefID    string     `json:"ref_id"` // endpoint or bookmark ID
	Name     string     `json:"name"`
	LastUsed time.Time  `json:"last_used"`
}

// SameIdentity reports whether two recent sources refer to the same
// underlying target.
func (r RecentSource) SameIdentity(other RecentSource) bool {
	return r.Kind == other.Kind && r.RefID == other.RefID
}

// Remember-window bounds for resume positions: strictly inside means the
// file is neither just started nor essentially finished.
const (
	RememberMinProgress = 0.05
	RememberMaxProgress = 0.95
)

// PositionMaxAge is how long a resume position stays valid. Older entries
// are purged lazily on load.
const PositionMaxAge = 30 * 24 * time.Hour

// Position is a durable resume marker for one file.
type Position struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Elapsed    float64   `json:"elapsed"`  // seconds
	Duration   float64   `json:"duration"` // seconds
	LastPlayed time.Time `json:"last_played"`
}

// Progress returns elapsed/duration, or 0 for an unknown duration.
func (p Position) Progress() float64 {
	if p.Duration <= 0 {
		return 0
	}
	return p.Elapsed / p.Duration
}

// ShouldRemember reports whether the position is worth keeping: progress
// strictly between the remember-window bounds.
func (p Position) ShouldRemember() bool {
	prog := p.Progress()
	return prog > RememberMinProgress && prog < RememberMaxProgress
}

// Expired reports whether the position is older than PositionMaxAge.
func (p Position) Expired(now time.Time) bool {
	return now.Sub(p.LastPlayed) > PositionMaxAge
}

// ConnState is the session connection state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateError        ConnState = "error"
)

// Mode is the tagged browsing variant consulted once per navigate call.
type Mode string

const (
	ModeRemote  Mode = "remote"
	ModeLocal   Mode = "local"
	ModeOffline Mode = "offline"
)
