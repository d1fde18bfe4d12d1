package api

import (
	"sync"
)

type SSEEvent struct {
	Type string
	Data map[string]any
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // vendor -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(vendor string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[vendor] == nil {
		b.subs[vendor] = map[chan SSEEvent]struct{}{}
	}
	b.subs[vendor][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(vendor string, ch chan SSEEvent) {
	b.mu.Lock()
	if m := b.subs[vendor]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, vendor)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(vendor string, evt SSEEvent) {
	b.mu.Lock()
	m := b.subs[vendor]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
