// Package transport manages the UDP sockets that participate in the mDNS
// multicast groups on a set of network interfaces.
//
// A transport holds one receiver socket per enabled address family, bound
// to the wildcard address on port 5353, plus one sender socket per local
// unicast address. It is active from construction until Close; a change in
// the interface set is handled by building a replacement transport rather
// than mutating a live one.
package transport

import (
	"errors"
	"net"
	"sync"

	"github.com/dogmatiq/dodeca/logging"
	"golang.org/x/sync/errgroup"
)

// Port is the mDNS port number.
const Port = 5353

// PacketHandler is called for each datagram drained from a receiver
// socket. The data slice is only valid until the handler returns.
type PacketHandler func(from Endpoint, data []byte)

// Config describes the sockets a transport manages.
type Config struct {
	// Interfaces is the set of network interfaces to participate on.
	Interfaces []net.Interface

	// UseIPv4 and UseIPv6 enable the respective address families. At
	// least one must be enabled.
	UseIPv4 bool
	UseIPv6 bool

	// Scope selects the IPv6 multicast scope per local address.
	// DefaultScopeSelector is used if it is nil.
	Scope ScopeSelector

	// Handler receives inbound datagrams. It must not be nil.
	Handler PacketHandler

	// Logger is the target for log messages.
	Logger logging.Logger
}

// Transport is a set of live mDNS sockets over one interface set.
type Transport struct {
	handler PacketHandler
	logger  logging.Logger

	receivers []receiver
	senders   sync.Map // local address (string) -> sender
	group     errgroup.Group

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a transport and starts draining its receiver sockets.
func New(cfg Config) (*Transport, error) {
	if cfg.Handler == nil {
		return nil, errors.New("transport must have a packet handler")
	}

	if !cfg.UseIPv4 && !cfg.UseIPv6 {
		return nil, errors.New("both IPv4 and IPv6 are disabled")
	}

	sel := cfg.Scope
	if sel == nil {
		sel = DefaultScopeSelector
	}

	t := &Transport{
		handler: cfg.Handler,
		logger:  cfg.Logger,
		closed:  make(chan struct{}),
	}

	if cfg.UseIPv4 {
		r, err := listen4(cfg.Interfaces, cfg.Logger)
		if err != nil {
			if !cfg.UseIPv6 {
				return nil, err
			}
			logging.Log(cfg.Logger, "unable to listen for IPv4 mDNS messages: %s", err)
		} else {
			t.receivers = append(t.receivers, r)
		}
	}

	if cfg.UseIPv6 {
		r, err := listen6(cfg.Interfaces, sel, cfg.Logger)
		if err != nil {
			if len(t.receivers) == 0 {
				t.close()
				return nil, err
			}
			logging.Log(cfg.Logger, "unable to listen for IPv6 mDNS messages: %s", err)
		} else {
			t.receivers = append(t.receivers, r)
		}
	}

	t.openSenders(cfg, sel)

	for _, r := range t.receivers {
		r := r
		t.group.Go(func() error {
			return t.run(r)
		})
	}

	return t, nil
}

// openSenders binds one sender per local unicast address across the
// interface set. Binding failures skip the sender; an address that is not
// available (a transient VPN address, typically) is skipped quietly.
func (t *Transport) openSenders(cfg Config, sel ScopeSelector) {
	for i := range cfg.Interfaces {
		iface := cfg.Interfaces[i]

		addrs, err := iface.Addrs()
		if err != nil {
			logging.Log(
				t.logger,
				"unable to enumerate addresses on the '%s' interface: %s",
				iface.Name,
				err,
			)
			continue
		}

		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}

			ip := ipnet.IP

			var (
				s    sender
				serr error
			)

			switch {
			case ip.To4() != nil && cfg.UseIPv4:
				s, serr = newSender4(iface, ip)
			case ip.To4() == nil && cfg.UseIPv6:
				s, serr = newSender6(iface, ip, sel)
			default:
				continue
			}

			if serr != nil {
				if isAddrNotAvailable(serr) {
					logging.Debug(
						t.logger,
						"skipping unavailable address %s on the '%s' interface",
						ip,
						iface.Name,
					)
				} else {
					logging.Log(
						t.logger,
						"unable to open an mDNS sender on %s ('%s' interface): %s",
						ip,
						iface.Name,
						serr,
					)
				}
				continue
			}

			// Keyed by local address; later duplicates of the same address
			// across interfaces are discarded.
			if _, loaded := t.senders.LoadOrStore(ip.String(), s); loaded {
				s.Close()
			}
		}
	}
}

// Send emits p once per sender socket, each to the multicast group
// appropriate to the sender's address family and scope.
//
// Per-sender errors are isolated and logged; they never abort the
// broadcast. Sending on a closed transport is not an error.
func (t *Transport) Send(p []byte) error {
	select {
	case <-t.closed:
		return nil
	default:
	}

	t.senders.Range(func(k, v interface{}) bool {
		s := v.(sender)

		if err := s.Send(p); err != nil {
			select {
			case <-t.closed:
			default:
				logging.Log(
					t.logger,
					"unable to send mDNS packet to %s from %s: %s",
					s.Destination(),
					k,
					err,
				)
			}
		}

		return true
	})

	return nil
}

// Close disposes every socket owned by the transport, aborting in-flight
// reads, and waits for the receive loops to exit.
func (t *Transport) Close() error {
	t.close()
	_ = t.group.Wait()
	return nil
}

func (t *Transport) close() {
	t.closeOnce.Do(func() {
		close(t.closed)

		for _, r := range t.receivers {
			_ = r.Close()
		}

		t.senders.Range(func(_, v interface{}) bool {
			_ = v.(sender).Close()
			return true
		})
	})
}

// run drains a receiver socket until it is closed.
func (t *Transport) run(r receiver) error {
	for {
		buf := getBuffer()

		n, from, err := r.Read(buf)
		if err != nil {
			putBuffer(buf)

			if isClosedError(err) {
				return nil
			}

			logging.Log(t.logger, "unable to read mDNS packet: %s", err)
			return err
		}

		// The handler runs before the next read so that datagrams from one
		// socket are dispatched in arrival order.
		t.handler(from, buf[:n])
		putBuffer(buf)
	}
}

func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
