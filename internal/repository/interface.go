package repository

import "context"

// SnapshotRepository persists one overlay snapshot per streamer.
type SnapshotRepository interface {
	// LoadOverlaySnapshot returns the stored snapshot, or nil when the
	// streamer has none.
	LoadOverlaySnapshot(ctx context.Context, streamerID string) ([]byte, error)

	// SaveOverlaySnapshot upserts the snapshot keyed by streamer id.
	SaveOverlaySnapshot(ctx context.Context, streamerID string, snapshot []byte) error
}
