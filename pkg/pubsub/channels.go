package pubsub

import (
	"fmt"
	"strings"
)

// Channel and key naming for overlay replication.
const (
	// Event relay
	ChannelEventsGlobal    = "overlay:events:global"
	ChannelEventsStreamer  = "overlay:events:streamer:%s"
	PatternEventsStreamers = "overlay:events:streamer:*"

	// State relay
	ChannelStateUpdates = "overlay:state:updates:%s"
	PatternStateUpdates = "overlay:state:updates:*"

	// State cache
	KeyStateSnapshot = "overlay:state:snapshot:%s"
)

const (
	prefixEventsStreamer = "overlay:events:streamer:"
	prefixStateUpdates   = "overlay:state:updates:"
)

// StreamerEventsChannel returns the relay channel for one streamer's events.
func StreamerEventsChannel(streamerID string) string {
	return fmt.Sprintf(ChannelEventsStreamer, streamerID)
}

// StreamerFromEventsChannel extracts the streamer id from an event channel.
func StreamerFromEventsChannel(channel string) (string, bool) {
	return trimNonEmpty(channel, prefixEventsStreamer)
}

// StateUpdatesChannel returns the channel carrying one streamer's snapshots.
func StateUpdatesChannel(streamerID string) string {
	return fmt.Sprintf(ChannelStateUpdates, streamerID)
}

// StreamerFromStateChannel extracts the streamer id from a state channel.
func StreamerFromStateChannel(channel string) (string, bool) {
	return trimNonEmpty(channel, prefixStateUpdates)
}

// StateSnapshotKey returns the cache key holding a streamer's latest snapshot.
func StateSnapshotKey(streamerID string) string {
	return fmt.Sprintf(KeyStateSnapshot, streamerID)
}

func trimNonEmpty(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(s, prefix)
	return id, id != ""
}
