package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/weiawesome/wes-io-live/overlay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/overlay"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
)

var (
	ErrInvalidStreamerID  = errors.New("invalid streamer id")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidEvent       = errors.New("invalid event name")
	ErrInvalidAvatarState = errors.New("invalid avatar state")
	ErrAvatarNotActive    = errors.New("avatar is not active")
	ErrInvalidPayload     = errors.New("event data is not valid json")
)

const maxIDLength = 64

// overlayServiceImpl implements OverlayService.
type overlayServiceImpl struct {
	store *overlay.Store
	bus   EventPublisher
}

// NewOverlayService creates a new overlay service.
func NewOverlayService(store *overlay.Store, bus EventPublisher) OverlayService {
	return &overlayServiceImpl{
		store: store,
		bus:   bus,
	}
}

// GetOverlay returns the current overlay snapshot, waiting for hydration.
func (s *overlayServiceImpl) GetOverlay(ctx context.Context, streamerID string) (*overlay.Snapshot, error) {
	h, err := s.open(ctx, streamerID)
	if err != nil {
		return nil, err
	}
	return h.State().Snapshot(), nil
}

// RecordActivity marks an avatar active and announces it when it spawned.
func (s *overlayServiceImpl) RecordActivity(ctx context.Context, streamerID, userID string) (bool, error) {
	if !ValidID(userID) {
		return false, ErrInvalidUserID
	}
	h, err := s.open(ctx, streamerID)
	if err != nil {
		return false, err
	}

	spawned := h.State().MarkAvatarActive(userID, time.Now())
	if spawned {
		s.bus.PublishToStreamer(ctx, streamerID, domain.EventAvatarSpawn, domain.AvatarPayload{UserID: userID})
	}
	return spawned, nil
}

// DespawnAvatar removes an avatar and announces it. It reports whether the
// avatar was active.
func (s *overlayServiceImpl) DespawnAvatar(ctx context.Context, streamerID, userID string) (bool, error) {
	if !ValidID(userID) {
		return false, ErrInvalidUserID
	}
	h, err := s.open(ctx, streamerID)
	if err != nil {
		return false, err
	}

	if !h.State().RemoveAvatar(userID) {
		return false, nil
	}
	s.bus.PublishToStreamer(ctx, streamerID, domain.EventAvatarDespawn, domain.AvatarPayload{UserID: userID, Reason: "removed"})
	return true, nil
}

// SetAvatarState changes the animation state of an active avatar.
func (s *overlayServiceImpl) SetAvatarState(ctx context.Context, streamerID, userID string, state overlay.AvatarState) error {
	if !state.Valid() {
		return ErrInvalidAvatarState
	}
	if !ValidID(userID) {
		return ErrInvalidUserID
	}
	h, err := s.open(ctx, streamerID)
	if err != nil {
		return err
	}
	if !h.State().ActiveAvatars.Has(userID) {
		return ErrAvatarNotActive
	}

	if h.State().AvatarStates.Set(userID, state) {
		s.bus.PublishToStreamer(ctx, streamerID, domain.EventAvatarState, domain.AvatarStatePayload{UserID: userID, State: string(state)})
	}
	return nil
}

// PublishEvent forwards an arbitrary event to one streamer, or to the global
// channel when streamerID is empty.
func (s *overlayServiceImpl) PublishEvent(ctx context.Context, streamerID, event string, data json.RawMessage) error {
	if !validEvent(event) {
		return ErrInvalidEvent
	}
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	if !json.Valid(data) {
		return ErrInvalidPayload
	}

	if streamerID == "" {
		s.bus.Publish(ctx, event, data)
		return nil
	}
	if !ValidID(streamerID) {
		return ErrInvalidStreamerID
	}
	s.bus.PublishToStreamer(ctx, streamerID, event, data)
	return nil
}

// SweepIdleAvatars despawns avatars idle past their streamer's timeout in
// every open overlay and returns how many were removed.
func (s *overlayServiceImpl) SweepIdleAvatars(ctx context.Context, now time.Time) int {
	removed := 0
	for _, h := range s.store.Handles() {
		state := h.State()
		for _, userID := range state.IdleAvatars(now) {
			if !state.RemoveAvatar(userID) {
				continue
			}
			removed++
			s.bus.PublishToStreamer(ctx, h.StreamerID(), domain.EventAvatarDespawn, domain.AvatarPayload{UserID: userID, Reason: "idle"})
		}
	}

	if removed > 0 {
		l := log.Ctx(ctx)
		l.Info().Int("removed", removed).Msg("idle avatars despawned")
	}
	return removed
}

// EvictIdleStreamers drops open overlays that have no avatars and no SSE
// viewers on this process. They are reopened from the cache or the durable
// store on next use.
func (s *overlayServiceImpl) EvictIdleStreamers(ctx context.Context) int {
	evicted := s.store.EvictIdle(func(h *overlay.Handle) bool {
		return h.State().ActiveAvatars.Len() == 0 && s.bus.ConnectionCount(h.StreamerID()) == 0
	})

	if len(evicted) > 0 {
		l := log.Ctx(ctx)
		l.Debug().Strs("streamers", evicted).Msg("idle overlays evicted")
	}
	return len(evicted)
}

func (s *overlayServiceImpl) open(ctx context.Context, streamerID string) (*overlay.Handle, error) {
	if !ValidID(streamerID) {
		return nil, ErrInvalidStreamerID
	}

	h := s.store.Open(streamerID)
	select {
	case <-h.Ready():
		return h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ValidID reports whether id can name a streamer or user. Glob and channel
// separator characters are rejected because ids become transport channel names.
func ValidID(id string) bool {
	return id != "" && len(id) <= maxIDLength && !strings.ContainsAny(id, ":*?[]/ ")
}

func validEvent(name string) bool {
	return hub.ValidEventName(name)
}
