package codec

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// bulkyRecord returns a TXT record that serializes to roughly 300 bytes.
func bulkyRecord(i int) Record {
	return Record{
		RR: &dns.TXT{
			Hdr: dns.RR_Header{
				Name:   dns.Fqdn(fmt.Sprintf("bulky-%d.local", i)),
				Rrtype: dns.TypeTXT,
				Class:  dns.ClassINET,
				Ttl:    120,
			},
			Txt: []string{strings.Repeat("x", 250)},
		},
	}
}

var _ = Describe("Truncate", func() {
	newMessage := func() *Message {
		m := &Message{
			Response:  true,
			Questions: []Question{question("x.local", dns.TypeANY)},
		}

		for i := 0; i < 4; i++ {
			m.Answers = append(m.Answers, bulkyRecord(i))
			m.Authority = append(m.Authority, bulkyRecord(10+i))
			m.Additional = append(m.Additional, bulkyRecord(20+i))
		}

		return m
	}

	It("leaves a message that already fits untouched", func() {
		m := newMessage()

		Expect(m.Truncate(MaxPayload)).ShouldNot(HaveOccurred())

		Expect(m.Truncated).To(BeFalse())
		Expect(m.Answers).To(HaveLen(4))
		Expect(m.Authority).To(HaveLen(4))
		Expect(m.Additional).To(HaveLen(4))
	})

	It("drops records until the serialized length fits the bound", func() {
		m := newMessage()

		Expect(m.Truncate(2048)).ShouldNot(HaveOccurred())

		buf, err := m.Pack()
		Expect(err).ShouldNot(HaveOccurred())
		Expect(len(buf)).To(BeNumerically("<=", 2048))
	})

	It("sets the TC flag when records are dropped", func() {
		m := newMessage()

		Expect(m.Truncate(2048)).ShouldNot(HaveOccurred())

		Expect(m.Truncated).To(BeTrue())
	})

	It("drops from the additional section first, then authority, then answers", func() {
		m := newMessage()

		// Room for the questions and a few answers only.
		Expect(m.Truncate(1024)).ShouldNot(HaveOccurred())

		Expect(m.Additional).To(BeEmpty())
		Expect(m.Authority).To(BeEmpty())
		Expect(len(m.Answers)).To(BeNumerically(">", 0))
	})

	It("never drops questions", func() {
		m := newMessage()

		Expect(m.Truncate(512)).ShouldNot(HaveOccurred())

		Expect(m.Questions).To(Equal(newMessage().Questions))
	})

	It("fails with ErrMessageTooLarge when the header and questions alone exceed the bound", func() {
		m := newMessage()

		err := m.Truncate(16)
		Expect(err).Should(MatchError(ErrMessageTooLarge))

		// The message is left unchanged.
		Expect(m.Answers).To(HaveLen(4))
		Expect(m.Truncated).To(BeFalse())
	})
})
