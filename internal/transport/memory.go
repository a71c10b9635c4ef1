package transport

import "sync"

// MemoryBus is an in-process Bus. Publish delivers synchronously to every other
// channel joined under the same name and never echoes to the sender.
type MemoryBus struct {
	mu       sync.RWMutex
	channels map[string]map[*memoryChannel]struct{}
	closed   bool
}

// NewMemoryBus creates an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{channels: make(map[string]map[*memoryChannel]struct{})}
}

// Join implements Bus.
func (b *MemoryBus) Join(name string, handler Handler) (Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	ch := &memoryChannel{bus: b, name: name, handler: handler}
	if b.channels[name] == nil {
		b.channels[name] = make(map[*memoryChannel]struct{})
	}
	b.channels[name][ch] = struct{}{}
	return ch, nil
}

// Subscribers returns how many channels are joined under name.
func (b *MemoryBus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[name])
}

// Close implements Bus.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.channels = make(map[string]map[*memoryChannel]struct{})
	return nil
}

func (b *MemoryBus) deliver(from *memoryChannel, payload []byte) error {
	b.mu.RLock()
	if _, ok := b.channels[from.name][from]; !ok {
		b.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]Handler, 0, len(b.channels[from.name]))
	for ch := range b.channels[from.name] {
		if ch != from {
			targets = append(targets, ch.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		h(cp)
	}
	return nil
}

func (b *MemoryBus) leave(ch *memoryChannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.channels[ch.name]
	delete(subs, ch)
	if len(subs) == 0 {
		delete(b.channels, ch.name)
	}
}

type memoryChannel struct {
	bus     *MemoryBus
	name    string
	handler Handler
	once    sync.Once
}

func (c *memoryChannel) Publish(payload []byte) error {
	return c.bus.deliver(c, payload)
}

func (c *memoryChannel) Close() error {
	c.once.Do(func() { c.bus.leave(c) })
	return nil
}
