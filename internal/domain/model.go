package domain

import (
	"time"

	"github.com/weiawesome/wes-io-live/overlay-service/pkg/database"
)

// OverlaySnapshotModel is the GORM model for the overlay_snapshots table: one
// row per streamer holding the latest persisted overlay snapshot.
type OverlaySnapshotModel struct {
	StreamerID string        `gorm:"type:varchar(64);primaryKey"`
	State      database.JSON `gorm:"type:text;not null"`
	UpdatedAt  time.Time     `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for OverlaySnapshotModel.
func (OverlaySnapshotModel) TableName() string {
	return "overlay_snapshots"
}
