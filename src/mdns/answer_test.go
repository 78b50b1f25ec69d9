package mdns

import (
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/jdomnitz/net-mdns/src/mdns/codec"
	"github.com/jdomnitz/net-mdns/src/mdns/transport"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("SendAnswer", func() {
	var (
		s  *Service
		tr *fakeTransport
	)

	BeforeEach(func() {
		s, tr = newTestService()
	})

	It("returns ErrNotStarted before the service is started", func() {
		s := NewService()

		err := s.SendAnswer(&codec.Message{})
		Expect(err).To(MatchError(ErrNotStarted))
	})

	It("normalizes the header per RFC 6762", func() {
		m := &codec.Message{
			ID:               1234,
			RecursionDesired: true,
			Questions:        []codec.Question{{Name: "x.local.", Type: dns.TypeANY, Class: dns.ClassINET}},
			Answers:          []codec.Record{testA("x.local", 120)},
		}

		Expect(s.SendAnswer(m)).ShouldNot(HaveOccurred())

		sent, err := codec.Decode(tr.last())
		Expect(err).ShouldNot(HaveOccurred())

		Expect(sent.Response).To(BeTrue())
		Expect(sent.Authoritative).To(BeTrue())
		Expect(sent.ID).To(Equal(uint16(0)))
		Expect(sent.Opcode).To(Equal(dns.OpcodeQuery))
		Expect(sent.Questions).To(BeEmpty())
		Expect(sent.RecursionDesired).To(BeFalse())
	})

	It("suppresses an identical answer sent within the last second", func() {
		m := func() *codec.Message {
			return &codec.Message{Answers: []codec.Record{testA("x.local", 120)}}
		}

		Expect(s.SendAnswer(m())).ShouldNot(HaveOccurred())
		Expect(s.SendAnswer(m())).ShouldNot(HaveOccurred())

		Expect(tr.count()).To(Equal(1))
	})

	It("sends an identical answer when the duplicate check is disabled", func() {
		m := func() *codec.Message {
			return &codec.Message{Answers: []codec.Record{testA("x.local", 120)}}
		}

		Expect(s.SendAnswer(m())).ShouldNot(HaveOccurred())
		Expect(s.SendAnswer(m(), SkipDuplicateCheck())).ShouldNot(HaveOccurred())

		Expect(tr.count()).To(Equal(2))
	})

	It("truncates an oversized answer and sets the TC flag", func() {
		m := &codec.Message{}
		for i := 0; i < 40; i++ {
			m.Answers = append(m.Answers, testTXT("bulky.local", 4500, strings.Repeat("x", 250)))
		}

		Expect(s.SendAnswer(m)).ShouldNot(HaveOccurred())

		buf := tr.last()
		Expect(len(buf)).To(BeNumerically("<=", codec.MaxPayload))

		sent, err := codec.Decode(buf)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(sent.Truncated).To(BeTrue())
	})
})

var _ = Describe("SendAnswerTo", func() {
	var (
		s  *Service
		tr *fakeTransport
	)

	query := func() *codec.Message {
		q := NewQuery("x.local", dns.TypePTR, dns.ClassINET)
		q.ID = 1234
		return q
	}

	answer := func() *codec.Message {
		return &codec.Message{
			Answers: []codec.Record{testA("x.local", 120)},
		}
	}

	BeforeEach(func() {
		s, tr = newTestService()
	})

	Context("when the query is from a legacy querier", func() {
		from := transport.Endpoint{
			Address: &net.UDPAddr{IP: net.ParseIP("192.0.2.99"), Port: 53000},
		}

		It("mirrors the query's id and questions and caps TTLs", func() {
			// With unicast answers disabled the answer goes out via
			// multicast, which is where the fake transport records it.
			s.EnableUnicastAnswers = false

			Expect(s.SendAnswerTo(answer(), query(), from)).ShouldNot(HaveOccurred())

			sent, err := codec.Decode(tr.last())
			Expect(err).ShouldNot(HaveOccurred())

			Expect(sent.ID).To(Equal(uint16(1234)))
			Expect(sent.Questions).To(Equal(query().Questions))
			Expect(sent.Authoritative).To(BeTrue())

			for _, r := range sent.Answers {
				Expect(r.RR.Header().Ttl).To(BeNumerically("<=", 10))
			}
		})

		It("sends the answer unicast to the querier's endpoint", func() {
			listener, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
			Expect(err).ShouldNot(HaveOccurred())
			defer listener.Close()

			sock, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
			Expect(err).ShouldNot(HaveOccurred())
			defer sock.Close()

			s.unicast4 = sock

			from := transport.Endpoint{
				Address: listener.LocalAddr().(*net.UDPAddr),
			}

			Expect(s.SendAnswerTo(answer(), query(), from)).ShouldNot(HaveOccurred())

			// Nothing goes to the multicast transport.
			Expect(tr.count()).To(Equal(0))

			buf := make([]byte, 9000)
			listener.SetReadDeadline(time.Now().Add(3 * time.Second))

			n, _, err := listener.ReadFromUDP(buf)
			Expect(err).ShouldNot(HaveOccurred())

			sent, err := codec.Decode(buf[:n])
			Expect(err).ShouldNot(HaveOccurred())
			Expect(sent.ID).To(Equal(uint16(1234)))
		})
	})

	Context("when the query is from a full mDNS querier", func() {
		from := transport.Endpoint{
			Address: &net.UDPAddr{IP: net.ParseIP("192.0.2.99"), Port: 5353},
		}

		It("answers via multicast with a zero id and no questions", func() {
			Expect(s.SendAnswerTo(answer(), query(), from)).ShouldNot(HaveOccurred())

			sent, err := codec.Decode(tr.last())
			Expect(err).ShouldNot(HaveOccurred())

			Expect(sent.ID).To(Equal(uint16(0)))
			Expect(sent.Questions).To(BeEmpty())
		})
	})
})
