// Package mdns implements the transport and dispatch core of a Multicast
// DNS engine per RFC 6762: interface discovery, multicast group
// membership, datagram de-duplication, message decoding, and the routing
// of queries and answers between the network and higher-level consumers.
package mdns

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"

	"github.com/jdomnitz/net-mdns/src/mdns/codec"
	"github.com/jdomnitz/net-mdns/src/mdns/nic"
	"github.com/jdomnitz/net-mdns/src/mdns/recent"
	"github.com/jdomnitz/net-mdns/src/mdns/transport"
)

// ErrNotStarted indicates that a send was attempted before Start.
var ErrNotStarted = errors.New("mDNS service has not been started")

// multicaster is the part of the transport the service sends through.
type multicaster interface {
	Send([]byte) error
	Close() error
}

// Service is an mDNS transport and dispatch engine.
//
// The exported fields configure the service and must not be modified after
// Start. A Service must be created with NewService.
type Service struct {
	// UseIPv4 and UseIPv6 enable the respective address families. They
	// default to whether the OS supports each family.
	UseIPv4 bool
	UseIPv6 bool

	// IgnoreDuplicateMessages suppresses inbound packets that are
	// byte-identical to one received within the last second.
	IgnoreDuplicateMessages bool

	// IncludeLoopback includes loopback interfaces even when other usable
	// interfaces exist.
	IncludeLoopback bool

	// EnableUnicastAnswers permits answers to be sent unicast when a
	// querier asks for that, including legacy queriers.
	EnableUnicastAnswers bool

	// HostRecordTTL is the TTL given to outbound host records (A, AAAA,
	// SRV, HINFO, PTR).
	HostRecordTTL time.Duration

	// NonHostTTL is the TTL given to all other outbound records.
	NonHostTTL time.Duration

	// InterfacesFilter, if non-nil, narrows the set of interfaces the
	// service participates on.
	InterfacesFilter func([]net.Interface) []net.Interface

	// Scope selects the IPv6 multicast scope per local address.
	Scope transport.ScopeSelector

	// Logger is the target for log messages.
	Logger logging.Logger

	m          sync.Mutex
	running    bool
	maxPayload int
	tr         multicaster
	monitor    *nic.Monitor
	stopWatch  context.CancelFunc
	unicast4   *net.UDPConn
	unicast6   *net.UDPConn

	inbound  *recent.Set
	outbound *recent.Set
	events   *bus
}

// NewService returns an unstarted service with default configuration.
func NewService() *Service {
	return &Service{
		UseIPv4:                 supportsFamily("udp4"),
		UseIPv6:                 supportsFamily("udp6"),
		IgnoreDuplicateMessages: true,
		EnableUnicastAnswers:    true,
		HostRecordTTL:           DefaultHostRecordTTL,
		NonHostTTL:              DefaultNonHostTTL,

		maxPayload: codec.MaxPayload,
		inbound:    recent.New(),
		outbound:   recent.New(),
		events:     newBus(),
	}
}

// MaxPacketSize returns the maximum serialized size of a message the
// service will send.
func (s *Service) MaxPacketSize() int {
	return s.maxPayload
}

// Start discovers the usable network interfaces, joins the mDNS multicast
// groups on each, and begins dispatching inbound messages.
//
// Starting a running service does nothing. A stopped service may be
// started again.
func (s *Service) Start() error {
	s.m.Lock()

	if s.running {
		s.m.Unlock()
		return nil
	}

	s.maxPayload = codec.MaxPayload

	// A fresh monitor forgets every previously known interface, so the
	// initial Refresh reports the entire usable set as added.
	s.monitor = &nic.Monitor{
		IncludeLoopback: s.IncludeLoopback,
		Filter:          s.InterfacesFilter,
		Logger:          s.Logger,
	}

	ifaces, _, err := s.monitor.Refresh()
	if err != nil {
		s.m.Unlock()
		return err
	}

	tr, err := transport.New(transport.Config{
		Interfaces: ifaces,
		UseIPv4:    s.UseIPv4,
		UseIPv6:    s.UseIPv6,
		Scope:      s.Scope,
		Handler:    s.onDatagram,
		Logger:     s.Logger,
	})
	if err != nil {
		s.m.Unlock()
		return err
	}
	s.tr = tr

	if s.EnableUnicastAnswers {
		s.openUnicast()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopWatch = cancel
	s.monitor.Watch(ctx, s.onInterfacesChanged)

	s.running = true
	s.m.Unlock()

	if len(ifaces) > 0 {
		s.events.publish(s.Logger, event{kind: eventInterfaces, ifaces: ifaces})
	}

	return nil
}

// Stop unregisters every consumer callback, stops watching for interface
// changes, and disposes of all sockets. After Stop returns, no further
// events are delivered. The service may be started again.
func (s *Service) Stop() error {
	s.m.Lock()

	if !s.running {
		s.m.Unlock()
		return nil
	}

	s.running = false

	tr := s.tr
	s.tr = nil

	cancel := s.stopWatch
	s.stopWatch = nil

	u4, u6 := s.unicast4, s.unicast6
	s.unicast4, s.unicast6 = nil, nil

	s.events.clear()
	s.m.Unlock()

	if cancel != nil {
		cancel()
	}

	if tr != nil {
		_ = tr.Close()
	}

	if u4 != nil {
		_ = u4.Close()
	}
	if u6 != nil {
		_ = u6.Close()
	}

	return nil
}

// openUnicast binds the sockets used for unicast answers, one per enabled
// family. Failure to bind disables unicast answers for that family only.
func (s *Service) openUnicast() {
	if s.UseIPv4 {
		c, err := net.ListenUDP("udp4", &net.UDPAddr{})
		if err != nil {
			logging.Log(s.Logger, "unable to open IPv4 unicast answer socket: %s", err)
		} else {
			s.unicast4 = c
		}
	}

	if s.UseIPv6 {
		c, err := net.ListenUDP("udp6", &net.UDPAddr{})
		if err != nil {
			logging.Log(s.Logger, "unable to open IPv6 unicast answer socket: %s", err)
		} else {
			s.unicast6 = c
		}
	}
}

// onInterfacesChanged rebuilds the transport against the current interface
// set whenever an interface is added or removed.
func (s *Service) onInterfacesChanged(added, removed []net.Interface) {
	s.m.Lock()

	if !s.running {
		s.m.Unlock()
		return
	}

	ifaces, err := s.monitor.Interfaces()
	if err != nil {
		s.m.Unlock()
		logging.Log(s.Logger, "unable to enumerate network interfaces: %s", err)
		return
	}

	tr, err := transport.New(transport.Config{
		Interfaces: ifaces,
		UseIPv4:    s.UseIPv4,
		UseIPv6:    s.UseIPv6,
		Scope:      s.Scope,
		Handler:    s.onDatagram,
		Logger:     s.Logger,
	})
	if err != nil {
		s.m.Unlock()
		logging.Log(s.Logger, "unable to rebuild mDNS transport: %s", err)
		return
	}

	old := s.tr
	s.tr = tr
	s.m.Unlock()

	// Disposal happens outside the lock: it waits for the old receive
	// loops, whose handlers may be delivering events to consumers.
	if old != nil {
		_ = old.Close()
	}

	if len(added) > 0 {
		s.events.publish(s.Logger, event{kind: eventInterfaces, ifaces: added})
	}
}

// send serializes msg and emits it via every sender socket.
func (s *Service) send(msg *codec.Message, checkDuplicate bool) error {
	s.m.Lock()
	running, tr, max := s.running, s.tr, s.maxPayload
	s.m.Unlock()

	if !running {
		return ErrNotStarted
	}

	buf, err := msg.PackTo(max)
	if err != nil {
		return err
	}

	if checkDuplicate && !s.outbound.TryAdd(buf) {
		return nil
	}

	return tr.Send(buf)
}

// supportsFamily reports whether the OS can bind a UDP socket of the given
// family.
func supportsFamily(network string) bool {
	c, err := net.ListenPacket(network, ":0")
	if err != nil {
		return false
	}

	c.Close()
	return true
}
