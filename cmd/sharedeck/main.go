// Sharedeck - resilient remote file access for media players
//
// Browses SMB, SFTP, and S3 endpoints plus local folders, with offline
// cache fallback, encrypted credential storage, and playback-position
// persistence. Configuration comes from SHAREDECK_* environment variables.
//
// Sub-commands:
//
//	sharedeck add [flags]               Add a remote endpoint
//	sharedeck add-folder [flags] PATH   Add a local folder bookmark
//	sharedeck list                      List endpoints, folders, recents
//	sharedeck remove NAME               Remove an endpoint or folder
//	sharedeck ls SOURCE [PATH]          List a directory on a source
//	sharedeck cat SOURCE PATH           Print a file, cached copy preferred
//	sharedeck fetch SOURCE PATH...      Download files into the offline cache
//	sharedeck prefetch SOURCE [PATH]    Cache every audio file in a directory
//	sharedeck status                    Show offline cache status
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	gopath "path"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/sharedeck/sharedeck/internal/config"
	"github.com/sharedeck/sharedeck/internal/logging"
	"github.com/sharedeck/sharedeck/internal/metrics"
	"github.com/sharedeck/sharedeck/pkg/access"
	"github.com/sharedeck/sharedeck/pkg/cache"
	"github.com/sharedeck/sharedeck/pkg/connector"
	"github.com/sharedeck/sharedeck/pkg/kv"
	"github.com/sharedeck/sharedeck/pkg/models"
	"github.com/sharedeck/sharedeck/pkg/netmon"
	"github.com/sharedeck/sharedeck/pkg/playback"
	"github.com/sharedeck/sharedeck/pkg/recents"
	"github.com/sharedeck/sharedeck/pkg/session"
	"github.com/sharedeck/sharedeck/pkg/sources"
	"github.com/sharedeck/sharedeck/pkg/vault"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "add":
		cmdAdd(os.Args[2:])
	case "add-folder":
		cmdAddFolder(os.Args[2:])
	case "list":
		cmdList(os.Args[2:])
	case "remove":
		cmdRemove(os.Args[2:])
	case "ls":
		cmdLs(os.Args[2:])
	case "cat":
		cmdCat(os.Args[2:])
	case "fetch":
		cmdFetch(os.Args[2:])
	case "prefetch":
		cmdPrefetch(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: sharedeck <command> [flags]

Commands:
  add          Add a remote endpoint (smb, sftp, s3)
  add-folder   Add a local folder bookmark
  list         List endpoints, folders, and recent sources
  remove       Remove an endpoint or folder by name or ID
  ls           List a directory on a source
  cat          Print a file to stdout, cached copy preferred
  fetch        Download files into the offline cache
  prefetch     Cache every audio file in a directory
  status       Show offline cache status
`)
	os.Exit(2)
}

// app wires the stores, the cache, and the session from the environment
// configuration. Every sub-command opens its own app and closes it on exit.
type app struct {
	cfg    *config.Config
	db     kv.DB
	cache  *cache.Cache
	sess   *session.Session
	facade *access.Facade
	cancel context.CancelFunc
}

func openApp() *app {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputPath: "stderr"}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: init logging: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	db, err := kv.OpenBolt(filepath.Join(cfg.DataDir, "sharedeck.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open database: %v\n", err)
		os.Exit(1)
	}

	var policy cache.EvictionPolicy
	if cfg.CacheMaxBytes > 0 {
		policy = cache.LRU{MaxBytes: cfg.CacheMaxBytes}
	}
	c, err := cache.New(cfg.CacheDir, db, policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open cache: %v\n", err)
		os.Exit(1)
	}

	var v *vault.Vault
	if cfg.VaultPassphrase != "" {
		v, err = vault.New(db, []byte(cfg.VaultPassphrase))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: open vault: %v\n", err)
			os.Exit(1)
		}
	}

	eps, err := sources.NewEndpoints(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	bms, err := sources.NewBookmarks(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	pos, err := playback.New(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	rec, err := recents.New(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	online := netmon.NewFlag(true)
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.ProbeAddr != "" {
		go netmon.NewProber(online, cfg.ProbeAddr, cfg.ProbeInterval).Run(ctx)
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, metrics.Handler()); err != nil {
				logging.Warn("metrics listener", logging.Err(err))
			}
		}()
	}

	sess := session.New(session.Config{
		Vault:   v,
		Cache:   c,
		Monitor: online,
		Retry:   cfg.RetrySchedule(),
	})

	facade := access.New(access.Config{
		Session:   sess,
		Cache:     c,
		Vault:     v,
		Endpoints: eps,
		Bookmarks: bms,
		Positions: pos,
		Recents:   rec,
	})

	return &app{cfg: cfg, db: db, cache: c, sess: sess, facade: facade, cancel: cancel}
}

func (a *app) close() {
	a.sess.Close()
	a.cancel()
	if err := a.db.Close(); err != nil {
		logging.Warn("close database", logging.Err(err))
	}
	logging.Sync()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// connectSource resolves ref against endpoints then bookmarks, by ID or
// name, and establishes the session.
func connectSource(ctx context.Context, a *app, ref string) {
	eps, err := a.facade.Endpoints()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, ep := range eps {
		if ep.ID == ref || ep.Name == ref {
			if err := a.facade.Connect(ctx, ep.ID, nil); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	bms, err := a.facade.Bookmarks()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, b := range bms {
		if b.ID == ref || b.Name == ref {
			if err := a.facade.ConnectLocal(b.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Fprintf(os.Stderr, "Error: no endpoint or folder named %q\n", ref)
	os.Exit(1)
}

func defaultPort(kind string) int {
	switch kind {
	case connector.KindSFTP:
		return 22
	case connector.KindS3:
		return 443
	default:
		return 445
	}
}

func cmdAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	name := fs.String("name", "", "Display name (required)")
	kind := fs.String("kind", connector.KindSMB, "Endpoint kind: smb, sftp, or s3")
	host := fs.String("host", "", "Host name or address (required)")
	port := fs.Int("port", 0, "Port (default by kind: 445, 22, 443)")
	share := fs.String("share", "", "Share name, remote directory, or bucket")
	user := fs.String("user", "", "Username (access key for s3)")
	domain := fs.String("domain", "", "Domain (smb) or region (s3)")
	anon := fs.Bool("anon", false, "Connect without credentials")
	fs.Parse(args)

	if *name == "" || *host == "" {
		fmt.Fprintf(os.Stderr, "Error: -name and -host are required\n")
		os.Exit(1)
	}
	if _, err := connector.ForKind(*kind); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *port == 0 {
		*port = defaultPort(*kind)
	}

	var creds *models.Credentials
	if !*anon {
		fmt.Print("Password (secret key for s3): ")
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
			os.Exit(1)
		}
		creds = &models.Credentials{Username: *user, Password: string(pw), Domain: *domain}
	}

	a := openApp()
	defer a.close()

	ep, err := a.facade.SaveEndpoint(models.Endpoint{
		Name:  *name,
		Kind:  *kind,
		Host:  *host,
		Port:  *port,
		Share: *share,
	}, creds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Added endpoint %s (%s) as %s\n", ep.Name, ep.Address(), ep.ID)
}

func cmdAddFolder(args []string) {
	fs := flag.NewFlagSet("add-folder", flag.ExitOnError)
	name := fs.String("name", "", "Display name (default: directory name)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: sharedeck add-folder [-name name] PATH\n")
		os.Exit(1)
	}
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *name == "" {
		*name = filepath.Base(path)
	}

	a := openApp()
	defer a.close()

	b, err := a.facade.SaveBookmark(models.Bookmark{Name: *name, Path: path})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Added folder %s (%s) as %s\n", b.Name, b.Path, b.ID)
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Parse(args)

	a := openApp()
	defer a.close()

	eps, err := a.facade.Endpoints()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(eps) > 0 {
		fmt.Printf("%-20s  %-5s  %-28s  %-16s  %s\n", "NAME", "KIND", "ADDRESS", "SHARE", "CREDENTIALS")
		for _, ep := range eps {
			creds := "no"
			if ep.HasCredentials {
				creds = "vault"
			}
			fmt.Printf("%-20s  %-5s  %-28s  %-16s  %s\n", ep.Name, ep.Kind, ep.Address(), ep.Share, creds)
		}
	}

	bms, err := a.facade.Bookmarks()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(bms) > 0 {
		fmt.Printf("\n%-20s  %s\n", "FOLDER", "PATH")
		for _, b := range bms {
			fmt.Printf("%-20s  %s\n", b.Name, b.Path)
		}
	}

	if rec := a.facade.Recents(); len(rec) > 0 {
		fmt.Printf("\n%-20s  %-8s  %s\n", "RECENT", "KIND", "LAST USED")
		for _, r := range rec {
			fmt.Printf("%-20s  %-8s  %s\n", r.Name, r.Kind, r.LastUsed.Format("2006-01-02 15:04"))
		}
	}

	if len(eps) == 0 && len(bms) == 0 {
		fmt.Println("No sources yet. Use 'sharedeck add' or 'sharedeck add-folder'.")
	}
}

func cmdRemove(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: sharedeck remove NAME\n")
		os.Exit(1)
	}
	ref := fs.Arg(0)

	a := openApp()
	defer a.close()

	eps, err := a.facade.Endpoints()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, ep := range eps {
		if ep.ID == ref || ep.Name == ref {
			if err := a.facade.RemoveEndpoint(ep.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Removed endpoint %s\n", ep.Name)
			return
		}
	}

	bms, err := a.facade.Bookmarks()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, b := range bms {
		if b.ID == ref || b.Name == ref {
			if err := a.facade.RemoveBookmark(b.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Removed folder %s\n", b.Name)
			return
		}
	}

	fmt.Fprintf(os.Stderr, "Error: no endpoint or folder named %q\n", ref)
	os.Exit(1)
}

func cmdLs(args []string) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: sharedeck ls SOURCE [PATH]\n")
		os.Exit(1)
	}

	a := openApp()
	defer a.close()
	ctx, stop := signalContext()
	defer stop()

	connectSource(ctx, a, fs.Arg(0))
	if path := fs.Arg(1); path != "" {
		if err := a.facade.Navigate(ctx, path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	snap := a.facade.State()
	if snap.FromCache {
		fmt.Printf("(offline data from %s)\n", snap.CachedAt.Format("2006-01-02 15:04"))
	}
	fmt.Printf("%-40s  %10s  %s\n", "NAME", "SIZE", "MODIFIED")
	for _, e := range snap.Entries {
		name := e.Name
		size := "-"
		if e.IsDir {
			name += "/"
		} else {
			size = strconv.FormatInt(e.Size, 10)
		}
		modified := "-"
		if !e.ModTime.IsZero() {
			modified = e.ModTime.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-40s  %10s  %s\n", name, size, modified)
	}
}

func cmdCat(args []string) {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Usage: sharedeck cat SOURCE PATH\n")
		os.Exit(1)
	}

	a := openApp()
	defer a.close()
	ctx, stop := signalContext()
	defer stop()

	connectSource(ctx, a, fs.Arg(0))
	path := fs.Arg(1)
	entry := models.NewFileEntry(gopath.Base(path), path, 0, time.Time{}, false)

	src, err := a.facade.Play(ctx, entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var r io.ReadCloser
	if src.Stream != nil {
		r = src.Stream
	} else {
		f, err := os.Open(src.LocalPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		r = f
	}
	defer r.Close()

	if _, err := io.Copy(os.Stdout, r); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Usage: sharedeck fetch SOURCE PATH...\n")
		os.Exit(1)
	}

	a := openApp()
	defer a.close()
	ctx, stop := signalContext()
	defer stop()

	connectSource(ctx, a, fs.Arg(0))
	for _, path := range fs.Args()[1:] {
		entry := models.NewFileEntry(gopath.Base(path), path, 0, time.Time{}, false)
		local, err := a.facade.CacheFile(ctx, entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: fetch %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Cached: %s -> %s\n", path, local)
	}
}

func cmdPrefetch(args []string) {
	fs := flag.NewFlagSet("prefetch", flag.ExitOnError)
	jobs := fs.Int("j", 3, "Concurrent downloads")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: sharedeck prefetch [-j n] SOURCE [PATH]\n")
		os.Exit(1)
	}

	a := openApp()
	defer a.close()
	ctx, stop := signalContext()
	defer stop()

	connectSource(ctx, a, fs.Arg(0))
	if path := fs.Arg(1); path != "" {
		if err := a.facade.Navigate(ctx, path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	var audio []models.FileEntry
	for _, e := range a.facade.State().Entries {
		if e.Kind() == models.KindAudio {
			audio = append(audio, e)
		}
	}
	if len(audio) == 0 {
		fmt.Println("No audio files here.")
		return
	}

	fmt.Printf("Caching %d files...\n", len(audio))
	failed := 0
	for r := range a.facade.Prefetch(ctx, audio, *jobs) {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "  %s: %v\n", r.Path, r.Err)
			continue
		}
		fmt.Printf("  %s\n", r.Path)
	}
	if failed > 0 {
		fmt.Printf("Done, %d of %d failed\n", failed, len(audio))
		os.Exit(1)
	}
	fmt.Println("Done")
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Parse(args)

	a := openApp()
	defer a.close()

	size, count := a.cache.Stats()
	fmt.Printf("Data directory:  %s\n", a.cfg.DataDir)
	fmt.Printf("Cache directory: %s\n", a.cfg.CacheDir)
	fmt.Printf("Cached files:    %d\n", count)
	fmt.Printf("Cache size:      %d bytes\n", size)
	if a.cfg.CacheMaxBytes > 0 {
		fmt.Printf("Cache budget:    %d bytes\n", a.cfg.CacheMaxBytes)
	} else {
		fmt.Printf("Cache budget:    unlimited\n")
	}
}
