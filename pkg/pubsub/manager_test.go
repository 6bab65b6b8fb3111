package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDialer fails the first failures dials, then delegates to a MemoryBroker.
type flakyDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	names    []string
	broker   *MemoryBroker
}

func (d *flakyDialer) Dial(ctx context.Context, name string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	d.names = append(d.names, name)
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	return d.broker.Dial(ctx, name)
}

func (d *flakyDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func newTestManager(d Dialer) (*Manager, *[]time.Duration) {
	m := NewManager(d, ManagerConfig{
		InstanceID:  "instance-a",
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	})
	var slept []time.Duration
	m.newBackOff = func() backoff.BackOff {
		return &recordingBackOff{BackOff: m.exponentialBackOff(), slept: &slept}
	}
	return m, &slept
}

// recordingBackOff records the delays the policy asks for and waits none.
type recordingBackOff struct {
	backoff.BackOff
	slept *[]time.Duration
}

func (b *recordingBackOff) NextBackOff() time.Duration {
	*b.slept = append(*b.slept, b.BackOff.NextBackOff())
	return 0
}

func TestManagerWithoutDialerIsUnavailable(t *testing.T) {
	m := NewManager(nil, ManagerConfig{})

	assert.False(t, m.Available())
	assert.NotEmpty(t, m.InstanceID())

	_, err := m.Command(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	conn, err := m.Subscriber(context.Background(), "event-relay")
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsUnavailable(err))
}

func TestManagerCommandIsShared(t *testing.T) {
	d := &flakyDialer{broker: NewMemoryBroker()}
	m, _ := newTestManager(d)

	first, err := m.Command(context.Background())
	require.NoError(t, err)
	second, err := m.Command(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, d.dialCount())
	assert.Equal(t, []string{"overlay:command:instance-a"}, d.names)
}

func TestManagerSubscriberIsDedicated(t *testing.T) {
	d := &flakyDialer{broker: NewMemoryBroker()}
	m, _ := newTestManager(d)

	a, err := m.Subscriber(context.Background(), "event-relay")
	require.NoError(t, err)
	b, err := m.Subscriber(context.Background(), "state-relay")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, []string{"overlay:event-relay:instance-a", "overlay:state-relay:instance-a"}, d.names)
}

func TestManagerRetriesWithBackoff(t *testing.T) {
	d := &flakyDialer{failures: 2, broker: NewMemoryBroker()}
	m, slept := newTestManager(d)

	conn, err := m.Command(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 3, d.dialCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
	assert.True(t, m.Available())
}

func TestManagerDisablesAfterExhaustion(t *testing.T) {
	d := &flakyDialer{failures: 100, broker: NewMemoryBroker()}
	m, _ := newTestManager(d)

	_, err := m.Subscriber(context.Background(), "event-relay")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, d.dialCount())
	assert.False(t, m.Available())

	// Disabled for good: no further dial attempts.
	conn, err := m.Subscriber(context.Background(), "state-relay")
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = m.Command(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, d.dialCount())
}

func TestManagerBackoffIsCapped(t *testing.T) {
	m := NewManager(nil, ManagerConfig{BaseDelay: time.Second, MaxDelay: 30 * time.Second})
	b := m.exponentialBackOff()

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.NextBackOff(), "attempt %d", i)
	}
}

func TestManagerExhaustionRecordsEveryDelay(t *testing.T) {
	d := &flakyDialer{failures: 100, broker: NewMemoryBroker()}
	m, slept := newTestManager(d)

	_, err := m.Command(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestManagerCloseClosesTrackedConnections(t *testing.T) {
	broker := NewMemoryBroker()
	m, _ := newTestManager(&flakyDialer{broker: broker})

	sub, err := m.Subscriber(context.Background(), "event-relay")
	require.NoError(t, err)
	_, err = sub.Subscribe(context.Background(), []string{ChannelEventsGlobal}, nil)
	require.NoError(t, err)
	cmd, err := m.Command(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, broker.SubscriberCount())

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Equal(t, 0, broker.SubscriberCount())
	assert.ErrorIs(t, cmd.Publish(context.Background(), ChannelEventsGlobal, []byte("{}")), ErrClosed)

	_, err = m.Command(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, m.Available())
}

func TestManagerStopsRetryingWhenContextEnds(t *testing.T) {
	d := &flakyDialer{failures: 100, broker: NewMemoryBroker()}
	m := NewManager(d, ManagerConfig{MaxAttempts: 3, BaseDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Command(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	// A cancelled caller must not disable the transport for everyone.
	assert.True(t, m.Available())
}
