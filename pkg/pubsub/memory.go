package pubsub

import (
	"context"
	"errors"
	"path"
	"sync"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("pubsub: closed")

type memorySub struct {
	key     string
	pattern bool
	in      chan *Event
	done    chan struct{}
	once    sync.Once
}

func (s *memorySub) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *memorySub) matches(channel string) bool {
	if !s.pattern {
		return s.key == channel
	}
	ok, err := path.Match(s.key, channel)
	return err == nil && ok
}

// MemoryPubSub implements PubSub inside a single process. Delivery blocks
// until each matching subscriber accepts the event, so per-publisher order
// is preserved and nothing is dropped.
type MemoryPubSub struct {
	subs   map[string][]*memorySub
	buffer int
	closed bool
	mu     sync.RWMutex
}

// NewMemoryPubSub creates an in-process PubSub.
func NewMemoryPubSub(buffer int) *MemoryPubSub {
	return &MemoryPubSub{
		subs:   make(map[string][]*memorySub),
		buffer: bufferSize(buffer),
	}
}

// Publish delivers the event to every subscriber whose channel or pattern
// matches.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	var targets []*memorySub
	for _, list := range m.subs {
		for _, s := range list {
			if s.matches(channel) {
				targets = append(targets, s)
			}
		}
	}
	m.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.in <- event:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe subscribes to a specific channel.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return m.subscribe(ctx, channel, false)
}

// SubscribePattern subscribes to channels matching a glob pattern.
func (m *MemoryPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	return m.subscribe(ctx, pattern, true)
}

func (m *MemoryPubSub) subscribe(ctx context.Context, key string, pattern bool) (<-chan *Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	s := &memorySub{
		key:     key,
		pattern: pattern,
		in:      make(chan *Event, m.buffer),
		done:    make(chan struct{}),
	}
	m.subs[key] = append(m.subs[key], s)

	out := make(chan *Event, m.buffer)
	go m.forward(ctx, s, out)

	return out, nil
}

// forward is the only writer of out, so closing it here is safe.
func (m *MemoryPubSub) forward(ctx context.Context, s *memorySub, out chan<- *Event) {
	defer close(out)
	defer m.remove(s)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev := <-s.in:
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}

func (m *MemoryPubSub) remove(s *memorySub) {
	s.stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.subs[s.key]
	for i, cur := range list {
		if cur == s {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.subs, s.key)
	} else {
		m.subs[s.key] = list
	}
}

// Unsubscribe removes every subscription registered under channel.
func (m *MemoryPubSub) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.RLock()
	list := append([]*memorySub(nil), m.subs[channel]...)
	m.mu.RUnlock()

	for _, s := range list {
		s.stop()
	}
	return nil
}

// Close stops all subscriptions.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	m.closed = true
	var all []*memorySub
	for _, list := range m.subs {
		all = append(all, list...)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
	return nil
}
