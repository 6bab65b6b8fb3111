package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamerFromChannels(t *testing.T) {
	tests := []struct {
		name    string
		parse   func(string) (string, bool)
		channel string
		want    string
		ok      bool
	}{
		{"events", StreamerFromEventsChannel, StreamerEventsChannel("42"), "42", true},
		{"events global", StreamerFromEventsChannel, ChannelEventsGlobal, "", false},
		{"events empty id", StreamerFromEventsChannel, "overlay:events:streamer:", "", false},
		{"state", StreamerFromStateChannel, StateUpdatesChannel("abc"), "abc", true},
		{"state wrong prefix", StreamerFromStateChannel, StreamerEventsChannel("abc"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.parse(tt.channel)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStateSnapshotKey(t *testing.T) {
	assert.Equal(t, "overlay:state:snapshot:42", StateSnapshotKey("42"))
}
