package transport

import "net"

// Scope is an IPv6 multicast scope, the "x" digit of the mDNS group
// address FF0x::FB.
//
// See https://tools.ietf.org/html/rfc4291#section-2.7.
type Scope byte

const (
	// ScopeInterfaceLocal spans only a single interface on a node.
	ScopeInterfaceLocal Scope = 0x1

	// ScopeLinkLocal spans the same topological region as the
	// corresponding unicast scope. It is the scope mandated for mDNS.
	ScopeLinkLocal Scope = 0x2

	// ScopeRealmLocal spans a single network realm.
	ScopeRealmLocal Scope = 0x3

	// ScopeAdminLocal is the smallest scope that must be administratively
	// configured.
	ScopeAdminLocal Scope = 0x4

	// ScopeSiteLocal spans a single site.
	ScopeSiteLocal Scope = 0x5

	// ScopeOrganizationLocal spans multiple sites belonging to a single
	// organization.
	ScopeOrganizationLocal Scope = 0x8

	// ScopeGlobal is unbounded.
	ScopeGlobal Scope = 0xE
)

// ScopeSelector chooses the IPv6 multicast scope used when sending from a
// given local unicast address.
type ScopeSelector func(local net.IP) Scope

// DefaultScopeSelector selects the link-local scope for every address,
// yielding the FF02::FB group mandated by RFC 6762.
func DefaultScopeSelector(net.IP) Scope {
	return ScopeLinkLocal
}

// GroupAddress returns the mDNS multicast group address FF0x::FB for the
// given scope.
func GroupAddress(s Scope) net.IP {
	g := make(net.IP, net.IPv6len)
	g[0] = 0xff
	g[1] = byte(s)
	g[15] = 0xfb

	return g
}
