package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/utils"
	"gorm.io/gorm"
)

// TeamRepositoryImpl implements the TeamRepository interface
type TeamRepositoryImpl struct {
	*BaseRepository[models.Team, models.TeamFilter]
}

// NewTeamRepository creates a new team repository
func NewTeamRepository(db *gorm.DB) TeamRepository {
	return &TeamRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Team, models.TeamFilter](db),
	}
}

// ListActiveTeamIDs returns IDs of active teams whose last activity falls
// within the window
func (r *TeamRepositoryImpl) ListActiveTeamIDs(ctx context.Context, window time.Duration) ([]uint, error) {
	db := r.getDB(ctx)

	var ids []uint
	err := db.Model(&models.Team{}).
		Where("is_active = true").
		Where("last_active_at IS NOT NULL AND last_active_at >= ?", utils.UTCNow().Add(-window)).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active team IDs: %w", err)
	}
	return ids, nil
}

// TouchActivity bumps a team's last_active_at to now
func (r *TeamRepositoryImpl) TouchActivity(ctx context.Context, teamID uint) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Team{}).
		Where("id = ?", teamID).
		Updates(map[string]any{
			"last_active_at": utils.UTCNow(),
			"updated_at":     utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to touch team %d activity: %w", teamID, err)
	}

	return nil
}
