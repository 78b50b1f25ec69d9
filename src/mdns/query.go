package mdns

import (
	"github.com/miekg/dns"

	"github.com/jdomnitz/net-mdns/src/mdns/codec"
)

// NewQuery returns a query message with a single question.
//
// https://tools.ietf.org/html/rfc6762#section-18.1: in multicast query
// messages the query identifier SHOULD be zero on transmission.
func NewQuery(name string, qtype, qclass uint16) *codec.Message {
	return &codec.Message{
		Opcode: dns.OpcodeQuery,
		Questions: []codec.Question{
			{
				Name:  dns.Fqdn(name),
				Type:  qtype,
				Class: qclass,
			},
		},
	}
}

// SendQuery sends a query message to the mDNS multicast groups.
//
// Outbound TTL policy is applied to any records the message carries, such
// as known-answer lists. Queries are never duplicate-suppressed.
func (s *Service) SendQuery(msg *codec.Message) error {
	s.applyTTLPolicy(msg, false)
	return s.send(msg, false)
}

// SendQueryName sends a query for any record with the given name.
func (s *Service) SendQueryName(name string) error {
	return s.SendQueryType(name, dns.TypeANY)
}

// SendQueryType sends a query for records of the given type and name.
func (s *Service) SendQueryType(name string, qtype uint16) error {
	return s.SendQuery(NewQuery(name, qtype, dns.ClassINET))
}

// SendUnicastQuery sends a query whose questions all carry the QU bit,
// telling responders that a unicast response is acceptable.
//
// See https://tools.ietf.org/html/rfc6762#section-5.4.
func (s *Service) SendUnicastQuery(msg *codec.Message) error {
	for i := range msg.Questions {
		msg.Questions[i].UnicastResponse = true
	}

	return s.SendQuery(msg)
}

// SendUnicastQueryName sends a QU query for any record with the given name.
func (s *Service) SendUnicastQueryName(name string) error {
	return s.SendUnicastQueryType(name, dns.TypeANY)
}

// SendUnicastQueryType sends a QU query for records of the given type and
// name.
func (s *Service) SendUnicastQueryType(name string, qtype uint16) error {
	return s.SendUnicastQuery(NewQuery(name, qtype, dns.ClassINET))
}
