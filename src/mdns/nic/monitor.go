// Package nic discovers the network interfaces on which mDNS can usefully
// operate, and reports changes to that set over time.
//
// An interface is usable when it is operationally up and supports
// multicast. Loopback interfaces are excluded unless explicitly requested,
// or unless they are the only usable interfaces on the host.
package nic

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
)

// DefaultPollInterval is how often a watch re-enumerates the interfaces.
const DefaultPollInterval = 10 * time.Second

// Monitor tracks the set of usable network interfaces.
//
// Interfaces are identified by their stable OS index: two snapshots refer
// to "the same" interface exactly when the index matches.
type Monitor struct {
	// IncludeLoopback includes loopback interfaces in every snapshot,
	// rather than only as a fallback.
	IncludeLoopback bool

	// Filter, if non-nil, narrows each snapshot to a subset of the
	// discovered interfaces.
	Filter func([]net.Interface) []net.Interface

	// PollInterval overrides DefaultPollInterval for Watch.
	PollInterval time.Duration

	// Logger is the target for log messages.
	Logger logging.Logger

	mu       sync.Mutex
	known    map[int]net.Interface
	watching bool
}

// Interfaces returns a snapshot of the currently usable interfaces. The
// order of the snapshot is unspecified.
func (m *Monitor) Interfaces() ([]net.Interface, error) {
	candidates, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var usable, loopback []net.Interface
	const flags = net.FlagUp | net.FlagMulticast

	for _, iface := range candidates {
		if iface.Flags&flags != flags {
			continue
		}

		if iface.Flags&net.FlagLoopback != 0 {
			loopback = append(loopback, iface)
			continue
		}

		usable = append(usable, iface)
	}

	// Loopback serves as a fallback so that a host with no LAN links can
	// still talk to itself.
	if m.IncludeLoopback || len(usable) == 0 {
		usable = append(usable, loopback...)
	}

	if m.Filter != nil {
		usable = m.Filter(usable)
	}

	return usable, nil
}

// Refresh takes a fresh snapshot and returns the interfaces added and
// removed since the previous one, compared by index.
func (m *Monitor) Refresh() (added, removed []net.Interface, err error) {
	current, err := m.Interfaces()
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[int]net.Interface, len(current))
	for _, iface := range current {
		next[iface.Index] = iface
	}

	added, removed = diff(m.known, next)
	m.known = next

	return added, removed, nil
}

// Watch calls fn with each non-empty snapshot diff until ctx is canceled.
//
// There is no portable change notification source, so the watch polls; the
// diff events it produces are identical to those of explicit Refresh
// calls. Calling Watch while a previous watch is still active does
// nothing.
func (m *Monitor) Watch(ctx context.Context, fn func(added, removed []net.Interface)) {
	m.mu.Lock()
	if m.watching {
		m.mu.Unlock()
		return
	}
	m.watching = true
	m.mu.Unlock()

	interval := m.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	go func() {
		defer func() {
			m.mu.Lock()
			m.watching = false
			m.mu.Unlock()
		}()

		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}

			added, removed, err := m.Refresh()
			if err != nil {
				logging.Log(m.Logger, "unable to enumerate network interfaces: %s", err)
				continue
			}

			if len(added) > 0 || len(removed) > 0 {
				fn(added, removed)
			}
		}
	}()
}

// diff returns the interfaces present in next but not prev, and those
// present in prev but not next.
func diff(prev, next map[int]net.Interface) (added, removed []net.Interface) {
	for idx, iface := range next {
		if _, ok := prev[idx]; !ok {
			added = append(added, iface)
		}
	}

	for idx, iface := range prev {
		if _, ok := next[idx]; !ok {
			removed = append(removed, iface)
		}
	}

	return added, removed
}
