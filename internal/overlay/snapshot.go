package overlay

import (
	"encoding/json"
	"fmt"

	"github.com/weiawesome/wes-io-live/overlay-service/internal/reactive"
)

// Snapshot is the JSON form of State stored in the durable store and the
// transport cache. Sets encode as arrays and maps as arrays of [key, value]
// pairs, both in insertion order.
type Snapshot struct {
	ActiveAvatars        []string                                `json:"activeAvatars"`
	AvatarLastActivity   []reactive.Entry[string, int64]         `json:"avatarLastActivity"`
	AvatarStates         []reactive.Entry[string, AvatarState]   `json:"avatarStates"`
	AvatarTimeoutSeconds int                                     `json:"avatarTimeoutSeconds"`
	AvatarMetrics        []reactive.Entry[string, AvatarMetrics] `json:"avatarMetrics"`

	Race  RaceSnapshot  `json:"race"`
	Food  FoodSnapshot  `json:"food"`
	Dodge DodgeSnapshot `json:"dodge"`
}

// DecodeSnapshot parses a stored snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode overlay snapshot: %w", err)
	}
	return &snap, nil
}
