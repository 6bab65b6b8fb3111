package pubsub

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable is returned when no transport endpoint is configured or the
	// reconnect budget is exhausted. Callers fall back to local-only behaviour.
	ErrUnavailable = errors.New("pubsub: transport unavailable")

	// ErrKeyNotFound is returned by Conn.Get for a missing key.
	ErrKeyNotFound = errors.New("pubsub: key not found")

	// ErrClosed is returned after the Manager or a Conn has been closed.
	ErrClosed = errors.New("pubsub: closed")
)

// Message is one payload received on a subscribed channel. Pattern is set when
// the message matched a pattern subscription.
type Message struct {
	Channel string
	Pattern string
	Payload []byte
}

// Subscription delivers messages until Close is called. The Messages channel is
// closed when the subscription ends.
type Subscription interface {
	Messages() <-chan *Message
	Close() error
}

// Conn is one connection to the transport. A connection used for Subscribe
// must not be used for other commands.
type Conn interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels, patterns []string) (Subscription, error)
	Close() error
}

// Dialer opens connections. name identifies the connection on the server side.
type Dialer interface {
	Dial(ctx context.Context, name string) (Conn, error)
}

// Transport is the view of the Manager consumed by the event hub and the
// overlay store.
type Transport interface {
	InstanceID() string
	Available() bool
	Command(ctx context.Context) (Conn, error)
	Subscriber(ctx context.Context, role string) (Conn, error)
}
