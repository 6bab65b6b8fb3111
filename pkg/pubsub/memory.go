package pubsub

import (
	"context"
	"path"
	"sync"
	"time"
)

const memorySubscriptionBuffer = 256

// MemoryBroker is an in-process transport with redis-like semantics: a shared
// key space and fire-and-forget pub/sub with glob patterns. Every Conn dialed
// from one broker sees the same keys and messages, so several Managers sharing
// a broker behave like several processes sharing one redis server.
type MemoryBroker struct {
	mu   sync.Mutex
	keys map[string]memoryEntry
	subs map[*memorySubscription]struct{}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		keys: make(map[string]memoryEntry),
		subs: make(map[*memorySubscription]struct{}),
	}
}

// Dial returns a new connection to the broker.
func (b *MemoryBroker) Dial(ctx context.Context, name string) (Conn, error) {
	return &memoryConn{broker: b, name: name}, nil
}

func (b *MemoryBroker) get(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.keys[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(b.keys, key)
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

func (b *MemoryBroker) set(key string, value []byte, ttl time.Duration) {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	b.mu.Lock()
	b.keys[key] = entry
	b.mu.Unlock()
}

// publish delivers to every matching subscription without blocking; a full
// subscriber buffer drops the message (at-most-once, like redis pub/sub).
func (b *MemoryBroker) publish(channel string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		pattern, ok := sub.match(channel)
		if !ok {
			continue
		}
		msg := &Message{
			Channel: channel,
			Pattern: pattern,
			Payload: append([]byte(nil), payload...),
		}
		select {
		case sub.out <- msg:
		default:
		}
	}
}

func (b *MemoryBroker) subscribe(channels, patterns []string) *memorySubscription {
	sub := &memorySubscription{
		broker:   b,
		channels: append([]string(nil), channels...),
		patterns: append([]string(nil), patterns...),
		out:      make(chan *Message, memorySubscriptionBuffer),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *MemoryBroker) unsubscribe(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.out)
}

// SubscriberCount reports live subscriptions, for diagnostics and tests.
func (b *MemoryBroker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type memoryConn struct {
	broker *MemoryBroker
	name   string

	mu     sync.Mutex
	subs   []*memorySubscription
	closed bool
}

func (c *memoryConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *memoryConn) Ping(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	return ctx.Err()
}

func (c *memoryConn) Get(ctx context.Context, key string) ([]byte, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return c.broker.get(key)
}

func (c *memoryConn) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.broker.set(key, value, ttl)
	return nil
}

func (c *memoryConn) Publish(ctx context.Context, channel string, payload []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.broker.publish(channel, payload)
	return nil
}

func (c *memoryConn) Subscribe(ctx context.Context, channels, patterns []string) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	sub := c.broker.subscribe(channels, patterns)
	c.subs = append(c.subs, sub)
	return sub, nil
}

func (c *memoryConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

type memorySubscription struct {
	broker   *MemoryBroker
	channels []string
	patterns []string
	out      chan *Message
}

func (s *memorySubscription) Messages() <-chan *Message {
	return s.out
}

func (s *memorySubscription) Close() error {
	s.broker.unsubscribe(s)
	return nil
}

func (s *memorySubscription) match(channel string) (string, bool) {
	for _, c := range s.channels {
		if c == channel {
			return "", true
		}
	}
	for _, p := range s.patterns {
		if ok, _ := path.Match(p, channel); ok {
			return p, true
		}
	}
	return "", false
}
