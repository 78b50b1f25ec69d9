package transport

import (
	"context"
	"net"
	"strconv"

	ipv4x "golang.org/x/net/ipv4"
	ipv6x "golang.org/x/net/ipv6"
)

// sender is a socket bound to a single local unicast address, used to emit
// multicast datagrams with that address as their source.
type sender interface {
	// Send emits a single datagram to the sender's multicast group.
	Send(p []byte) error

	// Destination returns the group endpoint this sender emits to.
	Destination() *net.UDPAddr

	// Close closes the sender.
	Close() error
}

// sender4 is an IPv4 sender.
type sender4 struct {
	pc   *ipv4x.PacketConn
	dest *net.UDPAddr
}

// newSender4 binds a sender to (local, 5353) and joins the IPv4 group with
// iface as its outgoing interface.
func newSender4(iface net.Interface, local net.IP) (*sender4, error) {
	conn, err := bind(local, "", "udp4")
	if err != nil {
		return nil, err
	}

	pc := ipv4x.NewPacketConn(conn)

	// Join failure is tolerated: the receiver already holds the membership
	// that matters for delivery.
	_ = pc.JoinGroup(&iface, &net.UDPAddr{IP: IPv4Group})

	if err := pc.SetMulticastInterface(&iface); err != nil {
		pc.Close()
		return nil, err
	}

	// https://tools.ietf.org/html/rfc6762#section-11
	_ = pc.SetMulticastTTL(255)
	_ = pc.SetTTL(255)

	// Loopback lets other responders on this host hear our answers.
	_ = pc.SetMulticastLoopback(true)

	return &sender4{pc, IPv4GroupAddress}, nil
}

func (s *sender4) Send(p []byte) error {
	_, err := s.pc.WriteTo(p, nil, s.dest)
	return err
}

func (s *sender4) Destination() *net.UDPAddr {
	return s.dest
}

func (s *sender4) Close() error {
	return s.pc.Close()
}

// sender6 is an IPv6 sender.
type sender6 struct {
	pc   *ipv6x.PacketConn
	dest *net.UDPAddr
}

// newSender6 binds a sender to (local, 5353) and joins the scope-selected
// group with iface as its outgoing interface.
func newSender6(iface net.Interface, local net.IP, sel ScopeSelector) (*sender6, error) {
	conn, err := bind(local, iface.Name, "udp6")
	if err != nil {
		return nil, err
	}

	group := GroupAddress(sel(local))

	pc := ipv6x.NewPacketConn(conn)

	_ = pc.JoinGroup(&iface, &net.UDPAddr{IP: group})

	if err := pc.SetMulticastInterface(&iface); err != nil {
		pc.Close()
		return nil, err
	}

	_ = pc.SetMulticastHopLimit(255)
	_ = pc.SetHopLimit(255)
	_ = pc.SetMulticastLoopback(true)

	return &sender6{
		pc,
		&net.UDPAddr{IP: group, Port: Port},
	}, nil
}

func (s *sender6) Send(p []byte) error {
	_, err := s.pc.WriteTo(p, nil, s.dest)
	return err
}

func (s *sender6) Destination() *net.UDPAddr {
	return s.dest
}

func (s *sender6) Close() error {
	return s.pc.Close()
}

// bind opens a UDP socket bound to (local, 5353) with address reuse, so
// that every sender can share the mDNS port with the receivers.
func bind(local net.IP, zone, network string) (net.PacketConn, error) {
	host := local.String()
	if zone != "" && local.IsLinkLocalUnicast() {
		host += "%" + zone
	}

	lc := net.ListenConfig{Control: reuseAddr}

	return lc.ListenPacket(
		context.Background(),
		network,
		net.JoinHostPort(host, strconv.Itoa(Port)),
	)
}
