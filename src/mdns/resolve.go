package mdns

import (
	"context"

	"github.com/jdomnitz/net-mdns/src/mdns/codec"
	"github.com/jdomnitz/net-mdns/src/mdns/transport"
)

// Resolve sends req and returns the first response whose answer section
// covers every question name in req.
//
// Resolve imposes no timeout of its own; cancel ctx to give up, in which
// case the context's error is returned.
func (s *Service) Resolve(ctx context.Context, req *codec.Message) (*codec.Message, error) {
	found := make(chan *codec.Message, 1)

	sub := s.OnAnswer(func(answer *codec.Message, _ transport.Endpoint) {
		if !answersAll(req, answer) {
			return
		}

		select {
		case found <- answer:
		default:
		}
	})
	defer sub.Cancel()

	if err := s.SendQuery(req); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case answer := <-found:
		return answer, nil
	}
}

// answersAll returns true if res contains at least one answer record for
// each question name in req.
func answersAll(req, res *codec.Message) bool {
	for _, q := range req.Questions {
		if !res.HasAnswerFor(q.Name) {
			return false
		}
	}

	return true
}
