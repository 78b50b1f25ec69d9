package mdns

import (
	"net"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/miekg/dns"

	"github.com/jdomnitz/net-mdns/src/mdns/codec"
	"github.com/jdomnitz/net-mdns/src/mdns/transport"
)

// AnswerOption is a function that applies an option to a SendAnswer call.
type AnswerOption func(*answerOptions)

type answerOptions struct {
	checkDuplicate bool
	unicast        *net.UDPAddr
}

// SkipDuplicateCheck sends the answer even if an identical packet was sent
// within the last second. Periodic announcements that serialize
// identically need this.
func SkipDuplicateCheck() AnswerOption {
	return func(o *answerOptions) {
		o.checkDuplicate = false
	}
}

// ViaUnicast addresses the answer to a single endpoint instead of the
// multicast group. It has no effect unless EnableUnicastAnswers is set.
func ViaUnicast(addr *net.UDPAddr) AnswerOption {
	return func(o *answerOptions) {
		o.unicast = addr
	}
}

// SendAnswer sends a response message.
//
// The message header is normalized per RFC 6762 §18 (authoritative, zero
// id, no questions), the outbound TTL policy is applied, and the message
// is truncated to the maximum packet size if necessary. An answer that is
// byte-identical to one sent within the last second is silently dropped
// unless SkipDuplicateCheck is given.
func (s *Service) SendAnswer(answer *codec.Message, options ...AnswerOption) error {
	opts := answerOptions{checkDuplicate: true}
	for _, opt := range options {
		opt(&opts)
	}

	normalizeAnswer(answer, nil, false)
	s.applyTTLPolicy(answer, false)

	return s.sendAnswer(answer, opts)
}

// SendAnswerTo sends a response to a specific query.
//
// A query from a legacy querier (one whose source port is not 5353) is
// answered unicast to its origin, mirroring the query's id and questions
// and capping TTLs at ten seconds per RFC 6762 §6.7. When
// EnableUnicastAnswers is not set, that answer is sent via multicast
// instead. Any other query is answered as by SendAnswer.
func (s *Service) SendAnswerTo(
	answer *codec.Message,
	query *codec.Message,
	from transport.Endpoint,
	options ...AnswerOption,
) error {
	if !from.IsLegacy() {
		return s.SendAnswer(answer, options...)
	}

	opts := answerOptions{checkDuplicate: true}
	for _, opt := range options {
		opt(&opts)
	}
	opts.unicast = from.Address

	normalizeAnswer(answer, query, true)
	s.applyTTLPolicy(answer, true)

	return s.sendAnswer(answer, opts)
}

// sendAnswer truncates, serializes and routes a normalized answer.
func (s *Service) sendAnswer(answer *codec.Message, opts answerOptions) error {
	s.m.Lock()
	running := s.running
	tr := s.tr
	max := s.maxPayload
	u4, u6 := s.unicast4, s.unicast6
	allowUnicast := s.EnableUnicastAnswers
	s.m.Unlock()

	if !running {
		return ErrNotStarted
	}

	if err := answer.Truncate(max); err != nil {
		return err
	}

	buf, err := answer.PackTo(max)
	if err != nil {
		return err
	}

	if opts.checkDuplicate && !s.outbound.TryAdd(buf) {
		return nil
	}

	if opts.unicast != nil && allowUnicast {
		s.sendUnicast(buf, opts.unicast, u4, u6)
		return nil
	}

	return tr.Send(buf)
}

// sendUnicast emits buf to addr via the unicast socket matching the
// address family. Send failures never surface to the caller.
func (s *Service) sendUnicast(buf []byte, addr *net.UDPAddr, u4, u6 *net.UDPConn) {
	conn := u6
	if addr.IP.To4() != nil {
		conn = u4
	}

	if conn == nil {
		logging.Debug(
			s.Logger,
			"no unicast socket available for answer to %s",
			addr,
		)
		return
	}

	if _, err := conn.WriteToUDP(buf, addr); err != nil {
		logging.Log(
			s.Logger,
			"unable to send unicast mDNS answer to %s: %s",
			addr,
			err,
		)
	}
}

// normalizeAnswer rewrites the header fields that RFC 6762 §18 fixes for
// responses. A legacy response mirrors the query's id and questions;
// anything else carries a zero id and no questions.
func normalizeAnswer(m *codec.Message, query *codec.Message, legacy bool) {
	m.Response = true
	m.Authoritative = true
	m.Opcode = dns.OpcodeQuery
	m.RecursionDesired = false
	m.RecursionAvailable = false
	m.AuthenticatedData = false
	m.CheckingDisabled = false
	m.Rcode = dns.RcodeSuccess

	if legacy && query != nil {
		m.ID = query.ID
		m.Questions = append([]codec.Question(nil), query.Questions...)
	} else {
		m.ID = 0
		m.Questions = nil
	}
}
