// Package codec encodes and decodes DNS messages per RFC 1035, amended by
// the mDNS rules of RFC 6762.
//
// The top bit of the class field carries mDNS-specific meaning: on a
// question it is the "unicast response" (QU) bit, and on a resource record
// it is the "cache flush" bit. The codec strips those bits on decode,
// exposing them as flags alongside the effective 15-bit class, and folds
// them back into the wire class on encode.
//
// Record data is materialized through the github.com/miekg/dns record
// registry; record types unknown to the registry round-trip as opaque
// RFC 3597 rdata.
package codec

import (
	"errors"

	"github.com/miekg/dns"
)

const (
	// MaxDatagramSize is the maximum size of an mDNS datagram, including
	// IP and UDP headers.
	//
	// See https://tools.ietf.org/html/rfc6762#section-17.
	MaxDatagramSize = 9000

	// IPUDPOverhead is the space reserved within MaxDatagramSize for the
	// IP and UDP headers.
	IPUDPOverhead = 48

	// MaxPayload is the maximum serialized size of an mDNS message.
	MaxPayload = MaxDatagramSize - IPUDPOverhead
)

var (
	// ErrMalformedMessage indicates that a buffer could not be decoded as
	// a DNS message.
	ErrMalformedMessage = errors.New("malformed DNS message")

	// ErrMessageTooLarge indicates that a message can not be serialized
	// within the maximum mDNS payload.
	ErrMessageTooLarge = errors.New("DNS message exceeds the maximum mDNS payload")
)

// classTopBit is the top bit of the 16-bit class field, reinterpreted by
// mDNS as the QU bit on questions and the cache-flush bit on records.
//
// See https://tools.ietf.org/html/rfc6762#section-18.12 and
// https://tools.ietf.org/html/rfc6762#section-18.13.
const classTopBit = 1 << 15

// Question is a single entry in the question section of a message.
type Question struct {
	// Name is the name being queried.
	Name string

	// Type is the question type, such as dns.TypePTR.
	Type uint16

	// Class is the effective question class, with the QU bit stripped.
	Class uint16

	// UnicastResponse is true if the querier accepts a unicast response to
	// this question.
	UnicastResponse bool
}

// Record is a resource record in the answer, authority or additional
// section of a message.
type Record struct {
	// RR holds the record itself. The class in its header is the effective
	// class, with the cache-flush bit stripped.
	RR dns.RR

	// CacheFlush is true if the record is a member of a unique record set
	// that supersedes any cached peers.
	CacheFlush bool
}

// Message is a DNS message with the mDNS class-bit overlays applied.
type Message struct {
	// ID is the query identifier. It is zero on all mDNS messages other
	// than legacy unicast responses.
	ID uint16

	// Response is the QR header bit.
	Response bool

	// Opcode is the kind of query. mDNS only carries dns.OpcodeQuery.
	Opcode int

	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	AuthenticatedData  bool
	CheckingDisabled   bool

	// Rcode is the response code. mDNS only carries dns.RcodeSuccess.
	Rcode int

	Questions  []Question
	Answers    []Record
	Authority  []Record
	Additional []Record
}

// HasAnswerFor returns true if the message contains at least one record in
// its answer section whose name equals name.
func (m *Message) HasAnswerFor(name string) bool {
	n := dns.CanonicalName(name)

	for _, a := range m.Answers {
		if dns.CanonicalName(a.RR.Header().Name) == n {
			return true
		}
	}

	return false
}

// fromWire populates m from a message produced by the record registry.
func (m *Message) fromWire(w *dns.Msg) {
	m.ID = w.Id
	m.Response = w.Response
	m.Opcode = w.Opcode
	m.Authoritative = w.Authoritative
	m.Truncated = w.Truncated
	m.RecursionDesired = w.RecursionDesired
	m.RecursionAvailable = w.RecursionAvailable
	m.AuthenticatedData = w.AuthenticatedData
	m.CheckingDisabled = w.CheckingDisabled
	m.Rcode = w.Rcode

	if len(w.Question) > 0 {
		m.Questions = make([]Question, len(w.Question))
		for i, q := range w.Question {
			m.Questions[i] = Question{
				Name:            q.Name,
				Type:            q.Qtype,
				Class:           q.Qclass &^ classTopBit,
				UnicastResponse: q.Qclass&classTopBit != 0,
			}
		}
	}

	m.Answers = recordsFromWire(w.Answer)
	m.Authority = recordsFromWire(w.Ns)
	m.Additional = recordsFromWire(w.Extra)
}

// toWire renders m as a message suitable for packing.
func (m *Message) toWire() *dns.Msg {
	w := &dns.Msg{}

	w.Id = m.ID
	w.Response = m.Response
	w.Opcode = m.Opcode
	w.Authoritative = m.Authoritative
	w.Truncated = m.Truncated
	w.RecursionDesired = m.RecursionDesired
	w.RecursionAvailable = m.RecursionAvailable
	w.AuthenticatedData = m.AuthenticatedData
	w.CheckingDisabled = m.CheckingDisabled
	w.Rcode = m.Rcode

	// https://tools.ietf.org/html/rfc6762#section-18.14
	//
	// When generating Multicast DNS messages, implementations SHOULD use
	// name compression wherever possible.
	w.Compress = true

	if len(m.Questions) > 0 {
		w.Question = make([]dns.Question, len(m.Questions))
		for i, q := range m.Questions {
			qclass := q.Class
			if q.UnicastResponse {
				qclass |= classTopBit
			}

			w.Question[i] = dns.Question{
				Name:   dns.Fqdn(q.Name),
				Qtype:  q.Type,
				Qclass: qclass,
			}
		}
	}

	w.Answer = recordsToWire(m.Answers)
	w.Ns = recordsToWire(m.Authority)
	w.Extra = recordsToWire(m.Additional)

	return w
}

func recordsFromWire(rrs []dns.RR) []Record {
	if len(rrs) == 0 {
		return nil
	}

	records := make([]Record, len(rrs))

	for i, rr := range rrs {
		cf := rr.Header().Class&classTopBit != 0
		if cf {
			rr = dns.Copy(rr)
			rr.Header().Class &^= classTopBit
		}

		records[i] = Record{rr, cf}
	}

	return records
}

func recordsToWire(records []Record) []dns.RR {
	if len(records) == 0 {
		return nil
	}

	rrs := make([]dns.RR, len(records))

	for i, r := range records {
		rr := r.RR
		if r.CacheFlush {
			rr = dns.Copy(rr)
			rr.Header().Class |= classTopBit
		}

		rrs[i] = rr
	}

	return rrs
}
