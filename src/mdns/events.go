package mdns

import (
	"net"
	"sync"

	"github.com/dogmatiq/dodeca/logging"

	"github.com/jdomnitz/net-mdns/src/mdns/codec"
	"github.com/jdomnitz/net-mdns/src/mdns/transport"
)

// Subscription is a handle to a registered event callback.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel unregisters the callback. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

type eventKind int

const (
	eventQuery eventKind = iota
	eventAnswer
	eventMalformed
	eventInterfaces
)

type event struct {
	kind   eventKind
	msg    *codec.Message
	from   transport.Endpoint
	data   []byte
	ifaces []net.Interface
}

// bus fans events out to registered callbacks. It is safe for concurrent
// use; callbacks run on the publisher's goroutine.
type bus struct {
	m    sync.Mutex
	next uint64
	subs map[uint64]subscriber
}

type subscriber struct {
	kind eventKind
	fn   func(event)
}

func newBus() *bus {
	return &bus{subs: map[uint64]subscriber{}}
}

func (b *bus) subscribe(kind eventKind, fn func(event)) *Subscription {
	b.m.Lock()
	defer b.m.Unlock()

	id := b.next
	b.next++
	b.subs[id] = subscriber{kind, fn}

	return &Subscription{
		cancel: func() {
			b.m.Lock()
			defer b.m.Unlock()
			delete(b.subs, id)
		},
	}
}

// publish delivers ev to each matching callback in turn. A panicking
// callback is logged and never interrupts delivery to the others.
func (b *bus) publish(logger logging.Logger, ev event) {
	b.m.Lock()
	fns := make([]func(event), 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.kind == ev.kind {
			fns = append(fns, sub.fn)
		}
	}
	b.m.Unlock()

	for _, fn := range fns {
		deliver(logger, fn, ev)
	}
}

func deliver(logger logging.Logger, fn func(event), ev event) {
	defer func() {
		if p := recover(); p != nil {
			logging.Log(logger, "panic in mDNS event handler: %v", p)
		}
	}()

	fn(ev)
}

// clear unregisters every callback.
func (b *bus) clear() {
	b.m.Lock()
	defer b.m.Unlock()
	b.subs = map[uint64]subscriber{}
}

// OnQuery registers fn to be called for each mDNS query received. Cancel
// the returned subscription to unregister it.
func (s *Service) OnQuery(fn func(query *codec.Message, from transport.Endpoint)) *Subscription {
	return s.events.subscribe(eventQuery, func(ev event) {
		fn(ev.msg, ev.from)
	})
}

// OnAnswer registers fn to be called for each mDNS response received.
func (s *Service) OnAnswer(fn func(answer *codec.Message, from transport.Endpoint)) *Subscription {
	return s.events.subscribe(eventAnswer, func(ev event) {
		fn(ev.msg, ev.from)
	})
}

// OnMalformed registers fn to be called with the raw bytes of each inbound
// packet that can not be decoded.
func (s *Service) OnMalformed(fn func(data []byte)) *Subscription {
	return s.events.subscribe(eventMalformed, func(ev event) {
		fn(ev.data)
	})
}

// OnInterfacesDiscovered registers fn to be called with each batch of
// newly usable network interfaces, including the initial set found by
// Start.
func (s *Service) OnInterfacesDiscovered(fn func(ifaces []net.Interface)) *Subscription {
	return s.events.subscribe(eventInterfaces, func(ev event) {
		fn(ev.ifaces)
	})
}
