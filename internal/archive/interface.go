package archive

import (
	"context"
	"encoding/json"
)

// Record is one locally-originated streamer event.
type Record struct {
	StreamerID string          `json:"streamerId"`
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data"`
	Source     string          `json:"source"`
	Timestamp  int64           `json:"timestamp"`
}

// EventArchiver appends overlay events to a durable log.
type EventArchiver interface {
	Archive(ctx context.Context, rec *Record) error
	Close() error
}
