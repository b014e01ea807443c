// Package connector abstracts the remote file protocols behind a small
// connect/list/open surface. Adapters classify their protocol's failures at
// this boundary, so callers deal in three classes only: transient (wrapped
// retryable), authentication, and not-found. Anything else is fatal to the
// operation that hit it.
package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sharedeck/sharedeck/pkg/models"
	"github.com/sharedeck/sharedeck/pkg/retry"
)

// Endpoint kinds understood by the factory.
const (
	KindSMB  = "smb"
	KindSFTP = "sftp"
	KindS3   = "s3"
)

// dialTimeout bounds the TCP dial of every adapter.
const dialTimeout = 15 * time.Second

// RemoteEntry is one directory member as reported by a remote share.
type RemoteEntry struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Conn is an established connection to a single remote share.
type Conn interface {
	// List enumerates the directory at path, non-recursively. Paths are
	// absolute within the share, "/" for its root.
	List(ctx context.Context, path string) ([]RemoteEntry, error)

	// Open starts reading the file at path, returning its size when the
	// protocol reports one and -1 otherwise.
	Open(ctx context.Context, path string) (io.ReadCloser, int64, error)

	// Close releases the connection. The Conn is unusable afterwards.
	Close() error
}

// Connector establishes connections for one protocol.
type Connector interface {
	Connect(ctx context.Context, ep models.Endpoint, creds models.Credentials) (Conn, error)
}

// ForKind returns the connector for an endpoint kind.
func ForKind(kind string) (Connector, error) {
	switch kind {
	case KindSMB:
		return SMB{}, nil
	case KindSFTP:
		return SFTP{}, nil
	case KindS3:
		return S3{}, nil
	default:
		return nil, fmt.Errorf("unknown endpoint kind: %q", kind)
	}
}

// AuthError reports rejected credentials. It is never retried; the caller
// must obtain new credentials before trying again.
type AuthError struct {
	Endpoint string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Endpoint, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// AsAuth checks if an error is an AuthError and returns it.
func AsAuth(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// NotFoundError reports a path that does not exist on the remote.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("remote path not found: %s", e.Path)
}

// AsNotFound checks if an error is a NotFoundError and returns it.
func AsNotFound(err error) (*NotFoundError, bool) {
	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return nfe, true
	}
	return nil, false
}

// isCtxErr reports whether err is a context cancellation or deadline, which
// must pass through classification unchanged.
func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// isNetErr reports whether err is a transport-level failure.
func isNetErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne)
}

// retryableNet wraps transport failures as retryable, passing context errors
// through untouched.
func retryableNet(err error) error {
	if isCtxErr(err) {
		return err
	}
	return retry.Retryable(err)
}

// joinRemote joins a directory and a base name with a single '/' separator.
func joinRemote(dir, base string) string {
	if dir == "" || dir == "/" {
		return "/" + base
	}
	if dir[len(dir)-1] == '/' {
		return dir + base
	}
	return dir + "/" + base
}
