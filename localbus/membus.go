package localbus

import (
	"errors"
	"sync"
)

// MemoryBus is an in-process Bus. Several coordinators in one process (and
// the tests) share it directly; it also backs single-process deployments
// where no peer consoles exist.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[*Subscription]chan Message
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*Subscription]chan Message)}
}

// Broadcast delivers msg to every subscription, the sender's included. A
// receiver that is more than 32 messages behind loses the message rather
// than blocking the sender.
func (b *MemoryBus) Broadcast(msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("bus closed")
	}
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Message, 32)
	sub := &Subscription{C: ch}
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = ch
	sub.cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(ch)
		}
	}
	return sub
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for sub, ch := range b.subs {
		delete(b.subs, sub)
		close(ch)
	}
	return nil
}
