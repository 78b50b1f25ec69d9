package codec

import (
	"fmt"

	"github.com/miekg/dns"
)

// Decode parses buf as a DNS message.
//
// It returns an error wrapping ErrMalformedMessage if buf can not be
// decoded, including when a name-compression pointer forms a cycle or
// refers past the end of the buffer.
func Decode(buf []byte) (*Message, error) {
	w := &dns.Msg{}

	if err := w.Unpack(buf); err != nil {
		if err != dns.ErrTruncated {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}

		// https://tools.ietf.org/html/rfc6762#section-18.5
		//
		// A message with the TC bit set is not an error in mDNS; it means
		// additional known-answer records may follow shortly. The registry
		// reports it as one, so use whatever sections were decoded.
	}

	m := &Message{}
	m.fromWire(w)

	return m, nil
}

// Pack serializes m to wire format.
//
// Name compression is applied where possible; a compression pointer always
// refers to an earlier position in the message, and labels whose offset
// would not fit in a 14-bit pointer are written uncompressed.
func (m *Message) Pack() ([]byte, error) {
	buf, err := m.toWire().Pack()
	if err != nil {
		return nil, fmt.Errorf("unable to pack DNS message: %w", err)
	}

	return buf, nil
}

// PackTo serializes m to wire format and returns an error wrapping
// ErrMessageTooLarge if the result exceeds maxSize bytes.
func (m *Message) PackTo(maxSize int) ([]byte, error) {
	buf, err := m.Pack()
	if err != nil {
		return nil, err
	}

	if len(buf) > maxSize {
		return nil, fmt.Errorf(
			"%w: %d bytes serialized, %d allowed",
			ErrMessageTooLarge,
			len(buf),
			maxSize,
		)
	}

	return buf, nil
}

// Truncate drops trailing records from m until its serialized length is at
// most maxSize bytes, and sets the TC flag if any records were dropped.
//
// Records are dropped from the additional section first, then authority,
// then answers. Questions are never dropped; if the header and questions
// alone exceed maxSize, an error wrapping ErrMessageTooLarge is returned
// and m is left unchanged.
//
// See https://tools.ietf.org/html/rfc6762#section-17.
func (m *Message) Truncate(maxSize int) error {
	if length, err := m.packedLen(); err != nil {
		return err
	} else if length <= maxSize {
		return nil
	}

	t := *m

	for {
		switch {
		case len(t.Additional) > 0:
			t.Additional = t.Additional[:len(t.Additional)-1]
		case len(t.Authority) > 0:
			t.Authority = t.Authority[:len(t.Authority)-1]
		case len(t.Answers) > 0:
			t.Answers = t.Answers[:len(t.Answers)-1]
		default:
			return fmt.Errorf(
				"%w: header and questions alone exceed %d bytes",
				ErrMessageTooLarge,
				maxSize,
			)
		}

		t.Truncated = true

		length, err := t.packedLen()
		if err != nil {
			return err
		}

		if length <= maxSize {
			break
		}
	}

	*m = t

	return nil
}

// packedLen returns the exact serialized length of m, with compression
// applied.
func (m *Message) packedLen() (int, error) {
	buf, err := m.Pack()
	if err != nil {
		return 0, err
	}

	return len(buf), nil
}
