package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-live/overlay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/database"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
)

// GormSnapshotRepository implements SnapshotRepository using GORM.
type GormSnapshotRepository struct {
	db *gorm.DB
}

// NewGormSnapshotRepository creates a new GORM-based snapshot repository.
func NewGormSnapshotRepository(db *gorm.DB) *GormSnapshotRepository {
	return &GormSnapshotRepository{db: db}
}

// LoadOverlaySnapshot retrieves the snapshot of a streamer.
func (r *GormSnapshotRepository) LoadOverlaySnapshot(ctx context.Context, streamerID string) ([]byte, error) {
	var model domain.OverlaySnapshotModel
	result := r.db.WithContext(ctx).First(&model, "streamer_id = ?", streamerID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldStreamerID, streamerID).Msg("failed to load overlay snapshot")
		return nil, fmt.Errorf("failed to load overlay snapshot: %w", result.Error)
	}
	return []byte(model.State), nil
}

// SaveOverlaySnapshot inserts or overwrites the snapshot of a streamer.
func (r *GormSnapshotRepository) SaveOverlaySnapshot(ctx context.Context, streamerID string, snapshot []byte) error {
	model := &domain.OverlaySnapshotModel{
		StreamerID: streamerID,
		State:      database.JSON(snapshot),
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "streamer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save overlay snapshot: %w", result.Error)
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldStreamerID, streamerID).Int("bytes", len(snapshot)).Msg("overlay snapshot saved")
	return nil
}

var _ SnapshotRepository = (*GormSnapshotRepository)(nil)
