package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/pubsub"
)

const (
	relayRole        = "state-relay"
	flushConcurrency = 8
)

// DurableStore is the relational persistence of overlay snapshots.
type DurableStore interface {
	// LoadOverlaySnapshot returns nil, nil when the streamer has no snapshot.
	LoadOverlaySnapshot(ctx context.Context, streamerID string) ([]byte, error)
	SaveOverlaySnapshot(ctx context.Context, streamerID string, snapshot []byte) error
}

// Store holds one Handle per streamer for this process and keeps them in
// sync with sibling processes.
type Store struct {
	transport pubsub.Transport
	durable   DurableStore
	cfg       Config

	mu      sync.Mutex
	handles map[string]*Handle

	startOnce sync.Once
	doneCh    chan struct{}
}

// NewStore creates a store. transport and durable may both be nil.
func NewStore(transport pubsub.Transport, durable DurableStore, cfg Config) *Store {
	defaults := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaults.Debounce
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = defaults.IOTimeout
	}

	return &Store{
		transport: transport,
		durable:   durable,
		cfg:       cfg,
		handles:   make(map[string]*Handle),
		doneCh:    make(chan struct{}),
	}
}

// Open returns the handle of streamerID, creating it and starting hydration in
// the background on first use.
func (s *Store) Open(streamerID string) *Handle {
	s.mu.Lock()
	if h, ok := s.handles[streamerID]; ok {
		s.mu.Unlock()
		return h
	}
	h := newHandle(s, streamerID)
	s.handles[streamerID] = h
	s.mu.Unlock()

	go h.hydrate()
	return h
}

// Lookup returns the handle of streamerID if it is open.
func (s *Store) Lookup(streamerID string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[streamerID]
	return h, ok
}

// Handles returns every open handle ordered by streamer id.
func (s *Store) Handles() []*Handle {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	sort.Slice(handles, func(i, j int) bool {
		return handles[i].streamerID < handles[j].streamerID
	})
	return handles
}

// Evict flushes and forgets a streamer's state. Unknown ids are ignored.
func (s *Store) Evict(ctx context.Context, streamerID string) error {
	s.mu.Lock()
	h, ok := s.handles[streamerID]
	delete(s.handles, streamerID)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return h.Flush(ctx)
}

// EvictIdle forgets every hydrated handle with nothing left to persist for
// which idle returns true, and returns the evicted streamer ids. The state
// is already durable, so nothing is written.
func (s *Store) EvictIdle(idle func(*Handle) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, h := range s.handles {
		select {
		case <-h.ready:
		default:
			continue
		}
		if h.Pending() || !idle(h) {
			continue
		}
		delete(s.handles, id)
		evicted = append(evicted, id)
	}
	sort.Strings(evicted)
	return evicted
}

// FlushAll flushes every open handle. Every handle is attempted; the first
// error is returned.
func (s *Store) FlushAll(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(flushConcurrency)

	for _, h := range s.Handles() {
		g.Go(func() error {
			return h.Flush(ctx)
		})
	}
	return g.Wait()
}

// Start subscribes to snapshot updates of sibling processes. The subscription
// is established before Start returns. Without a transport Done is closed
// immediately.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		sub, conn, err := s.subscribe(ctx)
		if err != nil {
			l := log.L()
			if pubsub.IsUnavailable(err) {
				l.Info().Msg("state relay disabled, transport unavailable; running local-only")
			} else {
				l.Warn().Err(err).Msg("state relay subscription failed; running local-only")
			}
			close(s.doneCh)
			return
		}
		go s.run(ctx, conn, sub)
	})
}

// Done is closed when the state relay listener has exited.
func (s *Store) Done() <-chan struct{} {
	return s.doneCh
}

func (s *Store) subscribe(ctx context.Context) (pubsub.Subscription, pubsub.Conn, error) {
	if s.transport == nil {
		return nil, nil, pubsub.ErrUnavailable
	}

	conn, err := s.transport.Subscriber(ctx, relayRole)
	if err != nil {
		return nil, nil, err
	}
	sub, err := conn.Subscribe(ctx, nil, []string{pubsub.PatternStateUpdates})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return sub, conn, nil
}

func (s *Store) run(ctx context.Context, conn pubsub.Conn, sub pubsub.Subscription) {
	defer close(s.doneCh)
	defer conn.Close()
	defer sub.Close()

	l := log.L()
	l.Info().Str(log.FieldInstanceID, s.transport.InstanceID()).Msg("state relay listening")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				l.Warn().Msg("state relay subscription closed")
				return
			}
			s.handleRemote(msg)
		}
	}
}

// handleRemote applies a sibling's snapshot to the local state when the
// streamer is open here. Applying never schedules a persist cycle.
func (s *Store) handleRemote(msg *pubsub.Message) {
	l := log.L()

	env, err := pubsub.DecodeStateEnvelope(msg.Payload)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, msg.Channel).Msg("dropping malformed state envelope")
		return
	}
	if env.Source == s.transport.InstanceID() {
		return
	}

	streamerID, ok := pubsub.StreamerFromStateChannel(msg.Channel)
	if !ok {
		l.Warn().Str(log.FieldChannel, msg.Channel).Msg("dropping state on unknown channel")
		return
	}
	h, ok := s.Lookup(streamerID)
	if !ok {
		return
	}

	snap, err := DecodeSnapshot(env.State)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldStreamerID, streamerID).Msg("dropping unreadable remote snapshot")
		return
	}
	h.state.ApplySnapshot(snap)
	l.Debug().
		Str(log.FieldStreamerID, streamerID).
		Str(log.FieldSource, env.Source).
		Int64("updated_at", env.UpdatedAt).
		Msg("remote overlay snapshot applied")
}

// replicate stores the snapshot under the cache key and publishes it to
// siblings.
func (s *Store) replicate(ctx context.Context, streamerID string, data []byte) error {
	if s.transport == nil || !s.transport.Available() {
		return pubsub.ErrUnavailable
	}

	conn, err := s.transport.Command(ctx)
	if err != nil {
		return err
	}

	if err := conn.Set(ctx, pubsub.StateSnapshotKey(streamerID), data, s.cfg.CacheTTL); err != nil {
		return err
	}

	payload, err := json.Marshal(&pubsub.StateEnvelope{
		State:     data,
		Source:    s.transport.InstanceID(),
		UpdatedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return conn.Publish(ctx, pubsub.StateUpdatesChannel(streamerID), payload)
}

func (s *Store) loadCached(ctx context.Context, streamerID string) []byte {
	if s.transport == nil || !s.transport.Available() {
		return nil
	}

	l := log.Ctx(ctx)
	conn, err := s.transport.Command(ctx)
	if err != nil {
		if !pubsub.IsUnavailable(err) {
			l.Warn().Err(err).Msg("snapshot cache unavailable")
		}
		return nil
	}

	data, err := conn.Get(ctx, pubsub.StateSnapshotKey(streamerID))
	if err != nil {
		if !errors.Is(err, pubsub.ErrKeyNotFound) {
			l.Warn().Err(err).Msg("snapshot cache read failed")
		}
		return nil
	}
	return data
}

func (s *Store) loadDurable(ctx context.Context, streamerID string) []byte {
	if s.durable == nil {
		return nil
	}

	data, err := s.durable.LoadOverlaySnapshot(ctx, streamerID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("durable snapshot read failed")
		return nil
	}
	return data
}
