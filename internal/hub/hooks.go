package hub

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
)

// HookID identifies a registered hook for OffEvent.
type HookID uint64

// EventHandler is invoked for every event delivered to a streamer channel,
// whether it was published locally or relayed from a sibling process.
type EventHandler func(ctx context.Context, streamerID string, data json.RawMessage)

var hookSeq atomic.Uint64

// OnEvent registers handler for the named event.
func (h *Hub) OnEvent(event string, handler EventHandler) HookID {
	id := HookID(hookSeq.Add(1))

	h.hooksMu.Lock()
	defer h.hooksMu.Unlock()

	if h.hooks[event] == nil {
		h.hooks[event] = make(map[HookID]EventHandler)
	}
	h.hooks[event][id] = handler
	return id
}

// OffEvent removes a hook. Unknown ids are ignored.
func (h *Hub) OffEvent(event string, id HookID) {
	h.hooksMu.Lock()
	defer h.hooksMu.Unlock()

	handlers, ok := h.hooks[event]
	if !ok {
		return
	}
	delete(handlers, id)
	if len(handlers) == 0 {
		delete(h.hooks, event)
	}
}

func (h *Hub) runHooks(ctx context.Context, streamerID, event string, data json.RawMessage) {
	h.hooksMu.RLock()
	handlers := make([]EventHandler, 0, len(h.hooks[event]))
	for _, fn := range h.hooks[event] {
		handlers = append(handlers, fn)
	}
	h.hooksMu.RUnlock()

	for _, fn := range handlers {
		h.callHook(ctx, fn, streamerID, event, data)
	}
}

func (h *Hub) callHook(ctx context.Context, fn EventHandler, streamerID, event string, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			l := log.Ctx(ctx)
			l.Error().
				Interface("panic", r).
				Str(log.FieldStreamerID, streamerID).
				Str(log.FieldEvent, event).
				Msg("event hook panicked")
		}
	}()
	fn(ctx, streamerID, data)
}
