package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/pubsub"
)

// ErrPersistFailed is returned by Flush when neither the durable store nor
// the transport accepted the snapshot.
var ErrPersistFailed = errors.New("overlay: persist failed")

// Handle owns the in-memory state of one streamer and its persistence cycle.
type Handle struct {
	store      *Store
	streamerID string
	state      *State
	ready      chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	pending bool

	// persistMu serialises persist cycles of this handle.
	persistMu sync.Mutex
}

func newHandle(store *Store, streamerID string) *Handle {
	h := &Handle{
		store:      store,
		streamerID: streamerID,
		ready:      make(chan struct{}),
	}
	h.state = NewState(streamerID, store.cfg.DefaultAvatarTimeoutSeconds, h.Touch)
	return h
}

// StreamerID returns the streamer this handle belongs to.
func (h *Handle) StreamerID() string { return h.streamerID }

// State returns the live state. Mutations through its reactive collections
// schedule persistence automatically.
func (h *Handle) State() *State { return h.state }

// Ready is closed once hydration has finished, successfully or not.
func (h *Handle) Ready() <-chan struct{} { return h.ready }

// Pending reports whether a debounced persist cycle is scheduled.
func (h *Handle) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending
}

// Touch schedules a persist cycle after the debounce window. Touches while a
// cycle is pending are absorbed into it.
func (h *Handle) Touch() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pending {
		return
	}
	h.pending = true
	h.timer = time.AfterFunc(h.store.cfg.Debounce, h.fire)
}

func (h *Handle) fire() {
	h.mu.Lock()
	h.pending = false
	h.timer = nil
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.store.cfg.IOTimeout)
	defer cancel()

	if err := h.persistNow(ctx); err != nil {
		l := log.L()
		l.Error().Err(err).Str(log.FieldStreamerID, h.streamerID).Msg("overlay persist cycle failed")
	}
}

// Flush cancels any pending cycle and persists immediately.
func (h *Handle) Flush(ctx context.Context) error {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.pending = false
	h.mu.Unlock()

	return h.persistNow(ctx)
}

// persistNow writes the snapshot to the durable store, then to the transport
// cache, then publishes it to siblings. A durable failure does not stop
// replication.
func (h *Handle) persistNow(ctx context.Context) error {
	h.persistMu.Lock()
	defer h.persistMu.Unlock()

	l := log.Ctx(ctx)

	data, err := json.Marshal(h.state.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal overlay snapshot: %w", err)
	}

	var durableErr error
	if h.store.durable != nil {
		if durableErr = h.store.durable.SaveOverlaySnapshot(ctx, h.streamerID, data); durableErr != nil {
			l.Warn().Err(durableErr).Str(log.FieldStreamerID, h.streamerID).Msg("durable snapshot write failed")
		}
	}

	transportErr := h.store.replicate(ctx, h.streamerID, data)
	if transportErr != nil && !pubsub.IsUnavailable(transportErr) {
		l.Warn().Err(transportErr).Str(log.FieldStreamerID, h.streamerID).Msg("snapshot replication failed")
	}

	if durableErr != nil && transportErr != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, errors.Join(durableErr, transportErr))
	}

	l.Debug().Str(log.FieldStreamerID, h.streamerID).Int("bytes", len(data)).Msg("overlay snapshot persisted")
	return nil
}

// hydrate loads the latest snapshot, preferring the transport cache over the
// durable store, and applies it without scheduling persistence.
func (h *Handle) hydrate() {
	defer close(h.ready)

	ctx, cancel := context.WithTimeout(context.Background(), h.store.cfg.IOTimeout)
	defer cancel()
	ctx = log.WithStreamer(ctx, h.streamerID)
	l := log.Ctx(ctx)

	data, source := h.store.loadCached(ctx, h.streamerID), "cache"
	if data == nil {
		data, source = h.store.loadDurable(ctx, h.streamerID), "durable"
	}
	if data == nil {
		l.Debug().Msg("no stored overlay snapshot, starting empty")
		return
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		l.Warn().Err(err).Str("from", source).Msg("ignoring unreadable overlay snapshot")
		return
	}
	h.state.ApplySnapshot(snap)
	l.Info().Str("from", source).Int("avatars", len(snap.ActiveAvatars)).Msg("overlay state hydrated")
}
