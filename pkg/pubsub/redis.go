package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDialer opens one redis.Client per connection so every subscriber role
// gets its own socket.
type RedisDialer struct {
	cfg RedisConfig
}

// NewRedisDialer creates a dialer for the given redis server.
func NewRedisDialer(cfg RedisConfig) *RedisDialer {
	return &RedisDialer{cfg: cfg}
}

// Dial creates a client tagged with name (CLIENT SETNAME). The client connects
// lazily; the Manager pings it before use.
func (d *RedisDialer) Dial(ctx context.Context, name string) (Conn, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         d.cfg.Address,
		Password:     d.cfg.Password,
		DB:           d.cfg.DB,
		PoolSize:     d.cfg.PoolSize,
		ReadTimeout:  d.cfg.ReadTimeout,
		WriteTimeout: d.cfg.WriteTimeout,
		ClientName:   name,
		// The Manager owns retry policy.
		MaxRetries: -1,
	})
	return &redisConn{client: client}, nil
}

type redisConn struct {
	client *redis.Client
}

func (c *redisConn) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

func (c *redisConn) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return data, nil
}

func (c *redisConn) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *redisConn) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe issues SUBSCRIBE and PSUBSCRIBE on a single redis.PubSub and waits
// for the first confirmation before returning.
func (c *redisConn) Subscribe(ctx context.Context, channels, patterns []string) (Subscription, error) {
	if len(channels) == 0 && len(patterns) == 0 {
		return nil, errors.New("pubsub: nothing to subscribe to")
	}

	ps := c.client.Subscribe(ctx, channels...)
	if len(patterns) > 0 {
		if err := ps.PSubscribe(ctx, patterns...); err != nil {
			ps.Close()
			return nil, fmt.Errorf("failed to psubscribe: %w", err)
		}
	}

	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to confirm subscription: %w", err)
	}

	sub := &redisSubscription{
		ps:   ps,
		out:  make(chan *Message, 256),
		done: make(chan struct{}),
	}
	go sub.forward()
	return sub, nil
}

func (c *redisConn) Close() error {
	if err := c.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

type redisSubscription struct {
	ps        *redis.PubSub
	out       chan *Message
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) Messages() <-chan *Message {
	return s.out
}

// forward copies messages until the underlying channel closes. go-redis
// reconnects the subscription internally, so this only ends on Close.
func (s *redisSubscription) forward() {
	defer close(s.out)

	for msg := range s.ps.Channel() {
		select {
		case s.out <- &Message{
			Channel: msg.Channel,
			Pattern: msg.Pattern,
			Payload: []byte(msg.Payload),
		}:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
