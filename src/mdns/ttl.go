package mdns

import (
	"time"

	"github.com/miekg/dns"

	"github.com/jdomnitz/net-mdns/src/mdns/codec"
)

const (
	// DefaultHostRecordTTL is the default TTL for records that name a
	// host: A, AAAA, SRV, HINFO and PTR.
	//
	// See https://tools.ietf.org/html/rfc6762#section-10.
	DefaultHostRecordTTL = 120 * time.Second

	// DefaultNonHostTTL is the default TTL for all other records.
	DefaultNonHostTTL = 75 * time.Minute

	// legacyMaxTTL caps record TTLs in responses to legacy unicast
	// queries.
	//
	// See https://tools.ietf.org/html/rfc6762#section-6.7.
	legacyMaxTTL = 10 * time.Second
)

// applyTTLPolicy rewrites the TTL of every record in msg, in place.
//
// Host records get HostRecordTTL and all others NonHostTTL; a legacy
// response additionally caps every TTL at ten seconds. A zero TTL is a
// goodbye record and is always preserved.
func (s *Service) applyTTLPolicy(msg *codec.Message, legacy bool) {
	host := s.HostRecordTTL
	if host <= 0 {
		host = DefaultHostRecordTTL
	}

	nonHost := s.NonHostTTL
	if nonHost <= 0 {
		nonHost = DefaultNonHostTTL
	}

	for _, section := range [][]codec.Record{
		msg.Answers,
		msg.Authority,
		msg.Additional,
	} {
		for _, r := range section {
			h := r.RR.Header()

			if h.Ttl == 0 {
				continue
			}

			ttl := nonHost
			if isHostRecordType(h.Rrtype) {
				ttl = host
			}

			if legacy && ttl > legacyMaxTTL {
				ttl = legacyMaxTTL
			}

			h.Ttl = uint32(ttl / time.Second)
		}
	}
}

// isHostRecordType returns true for record types that name a host and so
// carry the shorter TTL.
func isHostRecordType(t uint16) bool {
	switch t {
	case dns.TypeA, dns.TypeAAAA, dns.TypeSRV, dns.TypeHINFO, dns.TypePTR:
		return true
	}

	return false
}
