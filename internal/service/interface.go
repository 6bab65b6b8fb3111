package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/weiawesome/wes-io-live/overlay-service/internal/overlay"
)

// EventPublisher is the event bus view used by the service.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any)
	PublishToStreamer(ctx context.Context, streamerID, event string, payload any)
	ConnectionCount(streamerID string) int
}

// OverlayService defines the overlay operations exposed over HTTP.
type OverlayService interface {
	GetOverlay(ctx context.Context, streamerID string) (*overlay.Snapshot, error)
	RecordActivity(ctx context.Context, streamerID, userID string) (spawned bool, err error)
	DespawnAvatar(ctx context.Context, streamerID, userID string) (bool, error)
	SetAvatarState(ctx context.Context, streamerID, userID string, state overlay.AvatarState) error
	PublishEvent(ctx context.Context, streamerID, event string, data json.RawMessage) error
	SweepIdleAvatars(ctx context.Context, now time.Time) int
	EvictIdleStreamers(ctx context.Context) int
}
