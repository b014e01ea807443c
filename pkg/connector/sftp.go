package connector

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/sharedeck/sharedeck/pkg/models"
	"github.com/sharedeck/sharedeck/pkg/retry"
)

// SFTP connects over SSH with password authentication. The endpoint's Share
// is an optional base directory; paths are resolved beneath it.
type SFTP struct{}

// Connect dials the endpoint and opens an SFTP subsystem. A handshake
// failure after a successful TCP dial is treated as rejected credentials
// unless it is a network or context error.
func (SFTP) Connect(ctx context.Context, ep models.Endpoint, creds models.Credentials) (Conn, error) {
	cfg := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(creds.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	d := net.Dialer{Timeout: cfg.Timeout}
	tcp, err := d.DialContext(ctx, "tcp", ep.Address())
	if err != nil {
		return nil, retryableNet(fmt.Errorf("dial %s: %w", ep.Address(), err))
	}

	sc, chans, reqs, err := ssh.NewClientConn(tcp, ep.Address(), cfg)
	if err != nil {
		tcp.Close()
		if isCtxErr(err) {
			return nil, err
		}
		if isNetErr(err) {
			return nil, retry.Retryable(fmt.Errorf("ssh handshake %s: %w", ep.Address(), err))
		}
		return nil, &AuthError{Endpoint: ep.Address(), Err: err}
	}
	sshClient := ssh.NewClient(sc, chans, reqs)

	cli, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("create sftp client: %w", err)
	}

	return &sftpConn{addr: ep.Address(), root: ep.Share, ssh: sshClient, cli: cli}, nil
}

type sftpConn struct {
	addr string
	root string
	ssh  *ssh.Client
	cli  *sftp.Client
}

// abs resolves a share-absolute path against the configured base directory.
func (c *sftpConn) abs(p string) string {
	if c.root == "" {
		if p == "" {
			return "/"
		}
		return p
	}
	return path.Join(c.root, strings.TrimPrefix(p, "/"))
}

func (c *sftpConn) List(ctx context.Context, dir string) ([]RemoteEntry, error) {
	_ = ctx // the sftp client has no per-call cancellation
	infos, err := c.cli.ReadDir(c.abs(dir))
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

func (c *sftpConn) Open(ctx context.Context, p string) (io.ReadCloser, int64, error) {
	_ = ctx
	f, err := c.cli.Open(c.abs(p))
	if err != nil {
		return nil, 0, classifyFS(err, p, c.addr, fmt.Errorf("open %s: %w", p, err))
	}
	size := int64(-1)
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}
	return f, size, nil
}

func (c *sftpConn) Close() error {
	c.cli.Close()
	return c.ssh.Close()
}
