// Package netmon carries the connectivity signal consumed by the session.
// Implementations only report reachability; nothing here reconnects on its
// own.
package netmon

import (
	"context"
	"net"
	"sync"
	"time"
)

// Monitor reports whether the network path to the active endpoint is
// believed up, and notifies subscribers on every change of that belief.
type Monitor interface {
	Online() bool

	// Subscribe registers fn to run on each transition. The returned
	// cancel unregisters it.
	Subscribe(fn func(online bool)) (cancel func())
}

// Flag is a settable Monitor, fed by a Prober or by an external source.
type Flag struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

// NewFlag returns a Flag in the given initial state.
func NewFlag(online bool) *Flag {
	return &Flag{online: online, subs: make(map[int]func(bool))}
}

// Online implements Monitor.
func (f *Flag) Online() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

// Set updates the state. Subscribers run only on an actual transition.
func (f *Flag) Set(online bool) {
	f.mu.Lock()
	if f.online == online {
		f.mu.Unlock()
		return
	}
	f.online = online
	fns := make([]func(bool), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Subscribe implements Monitor.
func (f *Flag) Subscribe(fn func(bool)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// probeTimeout bounds a single reachability probe.
const probeTimeout = 5 * time.Second

// Prober updates a Flag by periodically dialing a target address.
type Prober struct {
	flag     *Flag
	addr     string
	interval time.Duration
	dial     func(ctx context.Context, addr string) error
}

// NewProber probes addr every interval, feeding flag.
func NewProber(flag *Flag, addr string, interval time.Duration) *Prober {
	return &Prober{flag: flag, addr: addr, interval: interval, dial: dialProbe}
}

// Run probes until ctx is cancelled. It blocks; run it in a goroutine.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			err := p.dial(probeCtx, p.addr)
			cancel()
			p.flag.Set(err == nil)
		}
	}
}

func dialProbe(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
