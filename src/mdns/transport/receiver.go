package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/dogmatiq/dodeca/logging"

	ipv4x "golang.org/x/net/ipv4"
	ipv6x "golang.org/x/net/ipv6"
)

var (
	// IPv4Group is the multicast group used for mDNS over IPv4.
	//
	// See https://tools.ietf.org/html/rfc6762#section-3.
	IPv4Group = net.ParseIP("224.0.0.251")

	// IPv4GroupAddress is the address to which mDNS queries are sent when
	// using IPv4.
	IPv4GroupAddress = &net.UDPAddr{IP: IPv4Group, Port: Port}

	// ipv4ListenAddress is the wildcard address to which receivers bind
	// when using IPv4. The multicast group address is NOT used, so that
	// group membership can be controlled per interface.
	ipv4ListenAddress = "0.0.0.0:5353"

	// ipv6ListenAddress is the wildcard address to which receivers bind
	// when using IPv6.
	ipv6ListenAddress = "[::]:5353"
)

// receiver is a socket bound to port 5353 that drains inbound datagrams for
// a single address family.
type receiver interface {
	// Read reads the next datagram into buf, returning its length and
	// origin.
	Read(buf []byte) (int, Endpoint, error)

	// Close closes the receiver, aborting any in-flight read.
	Close() error
}

// receiver4 is the IPv4 receiver.
type receiver4 struct {
	pc *ipv4x.PacketConn
}

// listen4 binds the IPv4 receiver and joins the mDNS group on each of the
// given interfaces.
func listen4(ifaces []net.Interface, logger logging.Logger) (*receiver4, error) {
	lc := net.ListenConfig{Control: reuseAddr}

	conn, err := lc.ListenPacket(context.Background(), "udp4", ipv4ListenAddress)
	if err != nil {
		return nil, err
	}

	pc := ipv4x.NewPacketConn(conn)
	pc.SetControlMessage(ipv4x.FlagInterface, true)

	// https://tools.ietf.org/html/rfc6762#section-11
	//
	// All Multicast DNS responses SHOULD be sent with IP TTL set to 255.
	if err := pc.SetMulticastTTL(255); err != nil {
		logging.Debug(logger, "unable to set IPv4 multicast TTL: %s", err)
	}
	if err := pc.SetTTL(255); err != nil {
		logging.Debug(logger, "unable to set IPv4 TTL: %s", err)
	}

	joined := false
	group := &net.UDPAddr{IP: IPv4Group}

	for i := range ifaces {
		iface := ifaces[i]

		if err := pc.JoinGroup(&iface, group); err != nil {
			logging.Debug(
				logger,
				"unable to join the '%s' multicast group on the '%s' interface: %s",
				group.IP,
				iface.Name,
				err,
			)
		} else {
			joined = true
		}
	}

	if !joined {
		pc.Close()
		return nil, fmt.Errorf(
			"unable to join the '%s' multicast group on any interfaces",
			group.IP,
		)
	}

	return &receiver4{pc}, nil
}

func (r *receiver4) Read(buf []byte) (int, Endpoint, error) {
	n, cm, src, err := r.pc.ReadFrom(buf)
	if err != nil {
		return 0, Endpoint{}, err
	}

	ep := Endpoint{Address: src.(*net.UDPAddr)}
	if cm != nil {
		ep.InterfaceIndex = cm.IfIndex
	}

	return n, ep, nil
}

func (r *receiver4) Close() error {
	return r.pc.Close()
}

// receiver6 is the IPv6 receiver.
type receiver6 struct {
	pc *ipv6x.PacketConn
}

// listen6 binds the IPv6 receiver and joins the scope-selected mDNS group
// on each of the given interfaces.
func listen6(
	ifaces []net.Interface,
	sel ScopeSelector,
	logger logging.Logger,
) (*receiver6, error) {
	lc := net.ListenConfig{Control: reuseAddr}

	conn, err := lc.ListenPacket(context.Background(), "udp6", ipv6ListenAddress)
	if err != nil {
		return nil, err
	}

	pc := ipv6x.NewPacketConn(conn)
	pc.SetControlMessage(ipv6x.FlagInterface, true)

	if err := pc.SetMulticastHopLimit(255); err != nil {
		logging.Debug(logger, "unable to set IPv6 multicast hop limit: %s", err)
	}
	if err := pc.SetHopLimit(255); err != nil {
		logging.Debug(logger, "unable to set IPv6 hop limit: %s", err)
	}

	joined := false

	for i := range ifaces {
		iface := ifaces[i]

		for _, group := range groupsForInterface(iface, sel) {
			if err := pc.JoinGroup(&iface, &net.UDPAddr{IP: group}); err != nil {
				logging.Debug(
					logger,
					"unable to join the '%s' multicast group on the '%s' interface: %s",
					group,
					iface.Name,
					err,
				)
			} else {
				joined = true
			}
		}
	}

	if !joined {
		pc.Close()
		return nil, fmt.Errorf("unable to join any IPv6 mDNS multicast groups")
	}

	return &receiver6{pc}, nil
}

// groupsForInterface returns the set of group addresses selected by sel
// over the interface's IPv6 unicast addresses. The link-local group is used
// when the interface has no IPv6 addresses.
func groupsForInterface(iface net.Interface, sel ScopeSelector) []net.IP {
	seen := map[Scope]bool{}
	var groups []net.IP

	addrs, err := iface.Addrs()
	if err == nil {
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() != nil {
				continue
			}

			if s := sel(ipnet.IP); !seen[s] {
				seen[s] = true
				groups = append(groups, GroupAddress(s))
			}
		}
	}

	if len(groups) == 0 {
		groups = append(groups, GroupAddress(ScopeLinkLocal))
	}

	return groups
}

func (r *receiver6) Read(buf []byte) (int, Endpoint, error) {
	n, cm, src, err := r.pc.ReadFrom(buf)
	if err != nil {
		return 0, Endpoint{}, err
	}

	ep := Endpoint{Address: src.(*net.UDPAddr)}
	if cm != nil {
		ep.InterfaceIndex = cm.IfIndex
	}

	return n, ep, nil
}

func (r *receiver6) Close() error {
	return r.pc.Close()
}
