package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
)

const roleCommand = "command"

// Manager owns every connection this process holds to the transport: one
// shared command connection and one dedicated connection per subscriber.
//
// Dialing is retried with capped exponential backoff. When the attempt budget
// is exhausted the manager disables itself for the rest of the process
// lifetime and every call returns ErrUnavailable, so callers degrade to
// single-process behaviour instead of failing.
type Manager struct {
	dialer     Dialer
	cfg        ManagerConfig
	instanceID string

	// dialMu serialises lazy creation of the command connection.
	dialMu sync.Mutex

	mu       sync.Mutex
	command  Conn
	tracked  []Conn
	disabled bool
	closed   bool

	newBackOff func() backoff.BackOff
}

// NewManager creates a manager. A nil dialer means no transport endpoint is
// configured.
func NewManager(dialer Dialer, cfg ManagerConfig) *Manager {
	defaults := DefaultManagerConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	m := &Manager{
		dialer:     dialer,
		cfg:        cfg,
		instanceID: instanceID,
		disabled:   dialer == nil,
	}
	m.newBackOff = m.exponentialBackOff
	return m
}

// InstanceID returns the process-wide id stamped on outbound envelopes.
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// Available reports whether the transport may still be used.
func (m *Manager) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disabled && !m.closed
}

// Command returns the shared command connection, dialing it on first use.
func (m *Manager) Command(ctx context.Context) (Conn, error) {
	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if m.command != nil {
		conn := m.command
		m.mu.Unlock()
		return conn, nil
	}
	m.mu.Unlock()

	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	// Another caller may have finished dialing while we waited.
	m.mu.Lock()
	if m.command != nil {
		conn := m.command
		m.mu.Unlock()
		return conn, nil
	}
	m.mu.Unlock()

	conn, err := m.connect(ctx, roleCommand)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		conn.Close()
		return nil, ErrClosed
	}
	m.command = conn
	m.tracked = append(m.tracked, conn)
	return conn, nil
}

// Subscriber dials a new dedicated connection for a subscriber role. The
// connection must only be used for Subscribe.
func (m *Manager) Subscriber(ctx context.Context, role string) (Conn, error) {
	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	conn, err := m.connect(ctx, role)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		conn.Close()
		return nil, ErrClosed
	}
	m.tracked = append(m.tracked, conn)
	return conn, nil
}

// Close closes every tracked connection. Errors from connections that are
// already gone are ignored.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	tracked := m.tracked
	m.tracked = nil
	m.command = nil
	m.mu.Unlock()

	l := log.L()
	for _, conn := range tracked {
		if err := conn.Close(); err != nil {
			l.Debug().Err(err).Msg("pubsub: ignoring close error")
		}
	}
	return nil
}

func (m *Manager) usableLocked() error {
	if m.closed {
		return ErrClosed
	}
	if m.disabled {
		return ErrUnavailable
	}
	return nil
}

// connect dials and pings with backoff. Exhausting the budget disables the
// manager permanently.
func (m *Manager) connect(ctx context.Context, role string) (Conn, error) {
	l := log.L()
	name := fmt.Sprintf("overlay:%s:%s", role, m.instanceID)

	attempt := 0
	conn, err := backoff.Retry(ctx, func() (Conn, error) {
		attempt++
		return m.dialOnce(ctx, name)
	},
		backoff.WithBackOff(m.newBackOff()),
		backoff.WithMaxTries(uint(m.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			l.Warn().Err(err).Str(log.FieldRole, role).Int("attempt", attempt).Dur("retry_in", delay).Msg("pubsub: connect failed, retrying")
		}),
	)
	if err == nil {
		l.Debug().Str(log.FieldRole, role).Msg("pubsub: connected")
		return conn, nil
	}

	// A cancelled caller must not disable the transport for everyone.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	m.mu.Lock()
	m.disabled = true
	m.mu.Unlock()

	l.Error().Err(err).Str(log.FieldRole, role).Int("attempts", attempt).Msg("pubsub: giving up, running without transport")
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (m *Manager) dialOnce(ctx context.Context, name string) (Conn, error) {
	conn, err := m.dialer.Dial(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// exponentialBackOff yields BaseDelay * 2^n capped at MaxDelay, without jitter.
func (m *Manager) exponentialBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval: m.cfg.BaseDelay,
		Multiplier:      2,
		MaxInterval:     m.cfg.MaxDelay,
	}
	b.Reset()
	return b
}

// IsUnavailable reports whether err means the transport cannot be used.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrClosed)
}
