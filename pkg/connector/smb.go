package connector

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	smb2 "github.com/hirochachacha/go-smb2"

	"github.com/sharedeck/sharedeck/pkg/models"
	"github.com/sharedeck/sharedeck/pkg/retry"
)

// SMB connects to SMB shares with NTLM authentication. The endpoint's Share
// names the share to mount; paths are slash-separated and absolute within
// it.
type SMB struct{}

// Connect dials the endpoint and mounts its share. A session failure after
// a successful TCP dial is treated as rejected credentials unless it is a
// network or context error.
func (SMB) Connect(ctx context.Context, ep models.Endpoint, creds models.Credentials) (Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	tcp, err := d.DialContext(ctx, "tcp", ep.Address())
	if err != nil {
		return nil, retryableNet(fmt.Errorf("dial %s: %w", ep.Address(), err))
	}

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     creds.Username,
			Password: creds.Password,
			Domain:   creds.Domain,
		},
	}
	sess, err := dialer.DialContext(ctx, tcp)
	if err != nil {
		tcp.Close()
		if isCtxErr(err) {
			return nil, err
		}
		if isNetErr(err) {
			return nil, retry.Retryable(fmt.Errorf("smb session %s: %w", ep.Address(), err))
		}
		return nil, &AuthError{Endpoint: ep.Address(), Err: err}
	}

	share, err := sess.Mount(ep.Share)
	if err != nil {
		sess.Logoff()
		tcp.Close()
		return nil, classifyFS(err, "/", ep.Address(), fmt.Errorf("mount %s: %w", ep.Share, err))
	}

	return &smbConn{addr: ep.Address(), tcp: tcp, sess: sess, share: share}, nil
}

type smbConn struct {
	addr  string
	tcp   net.Conn
	sess  *smb2.Session
	share *smb2.Share
}

func (c *smbConn) List(ctx context.Context, dir string) ([]RemoteEntry, error) {
	infos, err := c.share.WithContext(ctx).ReadDir(smbPath(dir))
	if err != nil {
		return nil, classifyFS(err, dir, c.addr, fmt.Errorf("list %s: %w", dir, err))
	}

	entries := make([]RemoteEntry, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		entries = append(entries, RemoteEntry{
			Name:    name,
			Path:    joinRemote(dir, name),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
			IsDir:   fi.IsDir(),
		})
	}
	return entries, nil
}

func (c *smbConn) Open(ctx context.Context, p string) (io.ReadCloser, int64, error) {
	f, err := c.share.WithContext(ctx).Open(smbPath(p))
	if err != nil {
		return nil, 0, classifyFS(err, p, c.addr, fmt.Errorf("open %s: %w", p, err))
	}
	size := int64(-1)
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}
	return f, size, nil
}

func (c *smbConn) Close() error {
	c.share.Umount()
	err := c.sess.Logoff()
	c.tcp.Close()
	return err
}

// smbPath converts a share-absolute slash path to the relative backslash
// form the SMB client expects. The share root maps to ".".
func smbPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "."
	}
	return strings.ReplaceAll(p, "/", `\`)
}

// classifyFS sorts a filesystem-shaped protocol error into the shared
// taxonomy, falling back to wrapped when it fits no class.
func classifyFS(err error, path, addr string, wrapped error) error {
	switch {
	case isCtxErr(err):
		return err
	case os.IsNotExist(err):
		return &NotFoundError{Path: path}
	case os.IsPermission(err):
		return &AuthError{Endpoint: addr, Err: err}
	case isNetErr(err):
		return retry.Retryable(wrapped)
	}
	return wrapped
}
