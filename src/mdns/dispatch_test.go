package mdns

import (
	"net"

	"github.com/miekg/dns"

	"github.com/jdomnitz/net-mdns/src/mdns/codec"
	"github.com/jdomnitz/net-mdns/src/mdns/transport"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("onDatagram", func() {
	var (
		s    *Service
		from transport.Endpoint
	)

	pack := func(m *codec.Message) []byte {
		buf, err := m.Pack()
		Expect(err).ShouldNot(HaveOccurred())
		return buf
	}

	queryPacket := func() []byte {
		return pack(NewQuery("x.local", dns.TypePTR, dns.ClassINET))
	}

	answerPacket := func() []byte {
		return pack(&codec.Message{
			Response: true,
			Answers:  []codec.Record{testA("x.local", 120)},
		})
	}

	BeforeEach(func() {
		s, _ = newTestService()

		from = transport.Endpoint{
			Address: &net.UDPAddr{IP: net.ParseIP("192.0.2.99"), Port: 53000},
		}
	})

	It("dispatches queries to query subscribers", func() {
		var (
			got     *codec.Message
			gotFrom transport.Endpoint
		)

		s.OnQuery(func(q *codec.Message, ep transport.Endpoint) {
			got = q
			gotFrom = ep
		})

		s.onDatagram(from, queryPacket())

		Expect(got).NotTo(BeNil())
		Expect(got.Questions).To(HaveLen(1))
		Expect(got.Questions[0].Name).To(Equal("x.local."))
		Expect(gotFrom.IsLegacy()).To(BeTrue())
	})

	It("dispatches responses to answer subscribers", func() {
		var got *codec.Message

		s.OnAnswer(func(a *codec.Message, _ transport.Endpoint) {
			got = a
		})

		s.onDatagram(from, answerPacket())

		Expect(got).NotTo(BeNil())
		Expect(got.Answers).To(HaveLen(1))
	})

	It("drops a duplicate packet arriving within the window", func() {
		count := 0
		s.OnQuery(func(*codec.Message, transport.Endpoint) {
			count++
		})

		p := queryPacket()
		s.onDatagram(from, p)
		s.onDatagram(from, p)

		Expect(count).To(Equal(1))
	})

	It("delivers duplicates when duplicate suppression is disabled", func() {
		s.IgnoreDuplicateMessages = false

		count := 0
		s.OnQuery(func(*codec.Message, transport.Endpoint) {
			count++
		})

		p := queryPacket()
		s.onDatagram(from, p)
		s.onDatagram(from, p)

		Expect(count).To(Equal(2))
	})

	It("silently drops messages with a non-zero opcode", func() {
		fired := false
		s.OnQuery(func(*codec.Message, transport.Endpoint) { fired = true })
		s.OnAnswer(func(*codec.Message, transport.Endpoint) { fired = true })

		m := NewQuery("x.local", dns.TypePTR, dns.ClassINET)
		m.Opcode = 2

		s.onDatagram(from, pack(m))

		Expect(fired).To(BeFalse())
	})

	It("silently drops messages with a non-zero rcode", func() {
		fired := false
		s.OnAnswer(func(*codec.Message, transport.Endpoint) { fired = true })

		m := &codec.Message{
			Response: true,
			Rcode:    dns.RcodeServerFailure,
			Answers:  []codec.Record{testA("x.local", 120)},
		}

		s.onDatagram(from, pack(m))

		Expect(fired).To(BeFalse())
	})

	It("ignores queries with no questions and responses with no answers", func() {
		fired := false
		s.OnQuery(func(*codec.Message, transport.Endpoint) { fired = true })
		s.OnAnswer(func(*codec.Message, transport.Endpoint) { fired = true })

		s.onDatagram(from, pack(&codec.Message{}))
		s.onDatagram(from, pack(&codec.Message{Response: true}))

		Expect(fired).To(BeFalse())
	})

	It("emits a malformed event exactly once per undecodable packet", func() {
		var got [][]byte
		s.OnMalformed(func(data []byte) {
			got = append(got, data)
		})

		s.onDatagram(from, []byte{0x00, 0x01, 0x02})

		Expect(got).To(HaveLen(1))
		Expect(got[0]).To(Equal([]byte{0x00, 0x01, 0x02}))
	})

	It("contains a panicking subscriber", func() {
		delivered := false

		s.OnQuery(func(*codec.Message, transport.Endpoint) {
			panic("boom")
		})
		s.OnQuery(func(*codec.Message, transport.Endpoint) {
			delivered = true
		})

		s.onDatagram(from, queryPacket())

		Expect(delivered).To(BeTrue())
	})

	It("stops delivering to a cancelled subscription", func() {
		count := 0
		sub := s.OnQuery(func(*codec.Message, transport.Endpoint) {
			count++
		})

		s.IgnoreDuplicateMessages = false

		s.onDatagram(from, queryPacket())
		sub.Cancel()
		s.onDatagram(from, queryPacket())

		Expect(count).To(Equal(1))
	})

	It("delivers nothing after Stop", func() {
		count := 0
		s.OnQuery(func(*codec.Message, transport.Endpoint) {
			count++
		})

		Expect(s.Stop()).ShouldNot(HaveOccurred())

		s.onDatagram(from, queryPacket())

		Expect(count).To(BeZero())
	})
})
