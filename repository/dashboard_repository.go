package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/Hachiko/models"
	"gorm.io/gorm"
)

// DashboardRepositoryImpl implements the DashboardRepository interface
type DashboardRepositoryImpl struct {
	*BaseRepository[models.Dashboard, models.DashboardFilter]
}

// NewDashboardRepository creates a new dashboard repository
func NewDashboardRepository(db *gorm.DB) DashboardRepository {
	return &DashboardRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Dashboard, models.DashboardFilter](db),
	}
}

// TilesWithReports fetches all tiles of a dashboard with their reports in a
// single bulk read, ordered by vertical then horizontal layout position and
// tie-broken by tile ID. One query for the whole dashboard, never one per
// tile.
func (r *DashboardRepositoryImpl) TilesWithReports(ctx context.Context, dashboardID uint) ([]*models.DashboardTile, error) {
	db := r.getDB(ctx)

	var tiles []*models.DashboardTile
	err := db.Model(&models.DashboardTile{}).
		Preload("Report").
		Where("dashboard_id = ?", dashboardID).
		Order("layout_row ASC, layout_col ASC, id ASC").
		Find(&tiles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load tiles for dashboard %d: %w", dashboardID, err)
	}

	return tiles, nil
}
