package hub

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/overlay-service/internal/archive"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/pubsub"
)

// Hub fans SSE events out to local connections and relays them to sibling
// processes over the transport.
type Hub struct {
	transport pubsub.Transport
	archiver  archive.EventArchiver

	mu        sync.RWMutex
	global    map[string]*Conn
	streamers map[string]map[string]*Conn // streamerID -> connID -> conn

	hooksMu sync.RWMutex
	hooks   map[string]map[HookID]EventHandler

	startOnce sync.Once
	doneCh    chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithArchiver archives every locally-originated streamer event.
func WithArchiver(a archive.EventArchiver) Option {
	return func(h *Hub) { h.archiver = a }
}

// New creates a hub. transport may be nil for a single-process hub.
func New(transport pubsub.Transport, opts ...Option) *Hub {
	h := &Hub{
		transport: transport,
		global:    make(map[string]*Conn),
		streamers: make(map[string]map[string]*Conn),
		hooks:     make(map[string]map[HookID]EventHandler),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers w on the global channel (empty streamerID) or on one
// streamer channel. The caller has already written the HTTP preamble.
func (h *Hub) Subscribe(streamerID string, w io.Writer) *Conn {
	c := newConn(streamerID, w)

	h.mu.Lock()
	if streamerID == "" {
		h.global[c.ID] = c
	} else {
		conns, ok := h.streamers[streamerID]
		if !ok {
			conns = make(map[string]*Conn)
			h.streamers[streamerID] = conns
		}
		conns[c.ID] = c
	}
	h.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldConnID, c.ID).Str(log.FieldStreamerID, streamerID).Msg("sse connection subscribed")
	return c
}

// Unsubscribe detaches c. Calling it more than once is harmless.
func (h *Hub) Unsubscribe(c *Conn) {
	if c == nil {
		return
	}

	h.mu.Lock()
	removed := false
	if c.StreamerID == "" {
		if _, ok := h.global[c.ID]; ok {
			delete(h.global, c.ID)
			removed = true
		}
	} else if conns, ok := h.streamers[c.StreamerID]; ok {
		if _, ok := conns[c.ID]; ok {
			delete(conns, c.ID)
			removed = true
		}
		if len(conns) == 0 {
			delete(h.streamers, c.StreamerID)
		}
	}
	h.mu.Unlock()

	c.detach()

	if removed {
		l := log.L()
		l.Debug().Str(log.FieldConnID, c.ID).Str(log.FieldStreamerID, c.StreamerID).Msg("sse connection unsubscribed")
	}
}

// ConnectionCount returns the number of local connections on the global
// channel (empty streamerID) or on one streamer channel.
func (h *Hub) ConnectionCount(streamerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if streamerID == "" {
		return len(h.global)
	}
	return len(h.streamers[streamerID])
}

// StreamerIDs returns the streamers with at least one local connection.
func (h *Hub) StreamerIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.streamers))
	for id := range h.streamers {
		ids = append(ids, id)
	}
	return ids
}

// Publish sends an event to every global connection in every process.
func (h *Hub) Publish(ctx context.Context, event string, payload any) {
	if !checkEventName(ctx, event) {
		return
	}
	data, ok := marshalPayload(ctx, event, payload)
	if !ok {
		return
	}
	h.deliver(ctx, "", event, data)
	h.relay(ctx, pubsub.ChannelEventsGlobal, event, data)
}

// PublishToStreamer sends an event to every connection of one streamer in
// every process, and runs the hooks registered for it.
func (h *Hub) PublishToStreamer(ctx context.Context, streamerID, event string, payload any) {
	if streamerID == "" {
		l := log.Ctx(ctx)
		l.Warn().Str(log.FieldEvent, event).Msg("publish to streamer without streamer id")
		return
	}
	if !checkEventName(ctx, event) {
		return
	}
	data, ok := marshalPayload(ctx, event, payload)
	if !ok {
		return
	}

	h.deliver(ctx, streamerID, event, data)
	h.runHooks(ctx, streamerID, event, data)
	h.archive(ctx, streamerID, event, data)
	h.relay(ctx, pubsub.StreamerEventsChannel(streamerID), event, data)
}

func checkEventName(ctx context.Context, event string) bool {
	if ValidEventName(event) {
		return true
	}
	l := log.Ctx(ctx)
	l.Warn().Str(log.FieldEvent, event).Msg("dropping event with invalid name")
	return false
}

func marshalPayload(ctx context.Context, event string, payload any) (json.RawMessage, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldEvent, event).Msg("failed to marshal event payload")
		return nil, false
	}
	return data, true
}

// deliver writes the frame to every local connection of the channel. Writes
// happen outside the registry lock; a connection whose write fails is removed.
func (h *Hub) deliver(ctx context.Context, streamerID, event string, data []byte) int {
	h.mu.RLock()
	var src map[string]*Conn
	if streamerID == "" {
		src = h.global
	} else {
		src = h.streamers[streamerID]
	}
	targets := make([]*Conn, 0, len(src))
	for _, c := range src {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}

	f := frame(event, data)
	sent := 0
	for _, c := range targets {
		if err := c.write(f); err != nil {
			l := log.Ctx(ctx)
			l.Debug().Err(err).Str(log.FieldConnID, c.ID).Str(log.FieldStreamerID, streamerID).Msg("sse write failed, dropping connection")
			h.Unsubscribe(c)
			continue
		}
		sent++
	}
	return sent
}

func (h *Hub) archive(ctx context.Context, streamerID, event string, data json.RawMessage) {
	if h.archiver == nil {
		return
	}

	rec := &archive.Record{
		StreamerID: streamerID,
		Event:      event,
		Data:       data,
		Source:     h.instanceID(),
		Timestamp:  time.Now().UnixMilli(),
	}
	if err := h.archiver.Archive(ctx, rec); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldStreamerID, streamerID).Str(log.FieldEvent, event).Msg("failed to archive event")
	}
}

func (h *Hub) instanceID() string {
	if h.transport == nil {
		return ""
	}
	return h.transport.InstanceID()
}

// relay publishes an event envelope to sibling processes. Failures are logged
// and otherwise ignored.
func (h *Hub) relay(ctx context.Context, channel, event string, data json.RawMessage) {
	if h.transport == nil || !h.transport.Available() {
		return
	}
	l := log.Ctx(ctx)

	conn, err := h.transport.Command(ctx)
	if err != nil {
		if pubsub.IsUnavailable(err) {
			l.Debug().Err(err).Msg("event relay skipped, transport unavailable")
		} else {
			l.Warn().Err(err).Str(log.FieldChannel, channel).Msg("event relay failed")
		}
		return
	}

	payload, err := json.Marshal(&pubsub.EventEnvelope{
		Event:  event,
		Data:   data,
		Source: h.transport.InstanceID(),
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldEvent, event).Msg("failed to marshal event envelope")
		return
	}

	if err := conn.Publish(ctx, channel, payload); err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, channel).Str(log.FieldEvent, event).Msg("event relay publish failed")
	}
}
