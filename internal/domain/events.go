package domain

import "encoding/json"

// SSE event names emitted to overlay clients.
const (
	EventAvatarSpawn   = "avatar:spawn"
	EventAvatarDespawn = "avatar:despawn"
	EventAvatarState   = "avatar:state"
)

// AvatarPayload identifies the avatar an avatar:* event refers to.
type AvatarPayload struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

// AvatarStatePayload announces an avatar animation change.
type AvatarStatePayload struct {
	UserID string `json:"userId"`
	State  string `json:"state"`
}

// PublishEventRequest is the body of the event publish endpoint.
type PublishEventRequest struct {
	Event string          `json:"event" binding:"required"`
	Data  json.RawMessage `json:"data"`
}

// AvatarStateRequest is the body of the avatar state endpoint.
type AvatarStateRequest struct {
	State string `json:"state" binding:"required"`
}

// ActivityResponse reports the outcome of recording avatar activity.
type ActivityResponse struct {
	UserID  string `json:"userId"`
	Spawned bool   `json:"spawned"`
}
