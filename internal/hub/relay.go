package hub

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/pubsub"
)

const relayRole = "event-relay"

// Start subscribes to the event relay channels and delivers events published
// by sibling processes. The subscription is established before Start returns.
// When the transport is unavailable the hub stays local-only and Done is
// closed immediately.
func (h *Hub) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		sub, conn, err := h.subscribe(ctx)
		if err != nil {
			l := log.L()
			if pubsub.IsUnavailable(err) {
				l.Info().Msg("event relay disabled, transport unavailable; running local-only")
			} else {
				l.Warn().Err(err).Msg("event relay subscription failed; running local-only")
			}
			close(h.doneCh)
			return
		}
		go h.run(ctx, conn, sub)
	})
}

// Done is closed when the relay listener has exited.
func (h *Hub) Done() <-chan struct{} {
	return h.doneCh
}

func (h *Hub) subscribe(ctx context.Context) (pubsub.Subscription, pubsub.Conn, error) {
	if h.transport == nil {
		return nil, nil, pubsub.ErrUnavailable
	}

	conn, err := h.transport.Subscriber(ctx, relayRole)
	if err != nil {
		return nil, nil, err
	}

	sub, err := conn.Subscribe(ctx,
		[]string{pubsub.ChannelEventsGlobal},
		[]string{pubsub.PatternEventsStreamers},
	)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return sub, conn, nil
}

func (h *Hub) run(ctx context.Context, conn pubsub.Conn, sub pubsub.Subscription) {
	defer close(h.doneCh)
	defer conn.Close()
	defer sub.Close()

	l := log.L()
	l.Info().Str(log.FieldInstanceID, h.instanceID()).Msg("event relay listening")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				l.Warn().Msg("event relay subscription closed")
				return
			}
			h.handleRelay(ctx, msg)
		}
	}
}

// handleRelay delivers a sibling's event locally. Relayed events are never
// republished or archived.
func (h *Hub) handleRelay(ctx context.Context, msg *pubsub.Message) {
	l := log.L()

	env, err := pubsub.DecodeEventEnvelope(msg.Payload)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, msg.Channel).Msg("dropping malformed event envelope")
		return
	}
	if env.Source == h.instanceID() {
		return
	}
	if !ValidEventName(env.Event) {
		l.Warn().Str(log.FieldChannel, msg.Channel).Str(log.FieldEvent, env.Event).Msg("dropping relayed event with invalid name")
		return
	}

	var data bytes.Buffer
	if err := json.Compact(&data, env.Data); err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, msg.Channel).Msg("dropping event with invalid data")
		return
	}

	if msg.Channel == pubsub.ChannelEventsGlobal {
		h.deliver(ctx, "", env.Event, data.Bytes())
		return
	}

	streamerID, ok := pubsub.StreamerFromEventsChannel(msg.Channel)
	if !ok {
		l.Warn().Str(log.FieldChannel, msg.Channel).Msg("dropping event on unknown channel")
		return
	}
	h.deliver(ctx, streamerID, env.Event, data.Bytes())
	h.runHooks(ctx, streamerID, env.Event, data.Bytes())
}
