package mdns

import (
	"github.com/dogmatiq/dodeca/logging"
	"github.com/miekg/dns"

	"github.com/jdomnitz/net-mdns/src/mdns/codec"
	"github.com/jdomnitz/net-mdns/src/mdns/transport"
)

// onDatagram handles each datagram drained from a receiver socket.
func (s *Service) onDatagram(from transport.Endpoint, data []byte) {
	if s.IgnoreDuplicateMessages && !s.inbound.TryAdd(data) {
		return
	}

	msg, err := codec.Decode(data)
	if err != nil {
		logging.Debug(
			s.Logger,
			"unable to decode mDNS packet from %s: %s",
			from.Address,
			err,
		)

		// The buffer belongs to the transport; hand consumers a copy.
		s.events.publish(s.Logger, event{
			kind: eventMalformed,
			data: append([]byte(nil), data...),
		})

		return
	}

	// https://tools.ietf.org/html/rfc6762#section-18.3 and 18.11:
	// messages with a non-zero OPCODE or RCODE are silently ignored.
	if msg.Opcode != dns.OpcodeQuery || msg.Rcode != dns.RcodeSuccess {
		return
	}

	switch {
	case !msg.Response && len(msg.Questions) > 0:
		s.events.publish(s.Logger, event{kind: eventQuery, msg: msg, from: from})
	case msg.Response && len(msg.Answers) > 0:
		s.events.publish(s.Logger, event{kind: eventAnswer, msg: msg, from: from})
	}
}
