package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/Hachiko/models"
	"gorm.io/gorm"
)

// ReportRepositoryImpl implements the ReportRepository interface
type ReportRepositoryImpl struct {
	*BaseRepository[models.Report, models.ReportFilter]
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &ReportRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Report, models.ReportFilter](db),
	}
}

// ByFilter retrieves reports based on filter criteria
func (r *ReportRepositoryImpl) ByFilter(ctx context.Context, filter models.ReportFilter, orderBy string, limit, offset int) ([]*models.Report, error) {
	db := r.getDB(ctx).Model(&models.Report{})

	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.TeamID != nil {
		db = db.Where("team_id = ?", *filter.TeamID)
	}
	if filter.Deleted != nil {
		db = db.Where("deleted = ?", *filter.Deleted)
	}

	if orderBy != "" {
		db = db.Order(orderBy)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}

	var reports []*models.Report
	if err := db.Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("failed to find reports by filter: %w", err)
	}
	return reports, nil
}
