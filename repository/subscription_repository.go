package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/utils"
	"gorm.io/gorm"
)

// SubscriptionRepositoryImpl implements the SubscriptionRepository interface
type SubscriptionRepositoryImpl struct {
	*BaseRepository[models.Subscription, models.SubscriptionFilter]
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &SubscriptionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Subscription, models.SubscriptionFilter](db),
	}
}

// ByUUID retrieves a subscription by UUID
func (r *SubscriptionRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Subscription, error) {
	parsedUUID, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID format: %w", err)
	}

	filter := models.SubscriptionFilter{UUID: &parsedUUID}
	subs, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription by UUID: %w", err)
	}
	if len(subs) == 0 {
		return nil, nil
	}
	return subs[0], nil
}

// ByFilter retrieves subscriptions based on filter criteria
func (r *SubscriptionRepositoryImpl) ByFilter(ctx context.Context, filter models.SubscriptionFilter, orderBy string, limit, offset int) ([]*models.Subscription, error) {
	db := r.getDB(ctx).Model(&models.Subscription{})

	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.TeamID != nil {
		db = db.Where("team_id = ?", *filter.TeamID)
	}
	if filter.ReportID != nil {
		db = db.Where("report_id = ?", *filter.ReportID)
	}
	if filter.DashboardID != nil {
		db = db.Where("dashboard_id = ?", *filter.DashboardID)
	}
	if filter.Channel != nil {
		db = db.Where("channel = ?", *filter.Channel)
	}
	if filter.Deleted != nil {
		db = db.Where("deleted = ?", *filter.Deleted)
	}
	if filter.DueBefore != nil {
		db = db.Where("next_due_at IS NOT NULL AND next_due_at <= ?", *filter.DueBefore)
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

	var subs []*models.Subscription
	if err := db.Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to find subscriptions by filter: %w", err)
	}
	return subs, nil
}

// FindDue lists non-deleted subscriptions due at or before notAfter. Rows
// whose target report or dashboard is soft-deleted are excluded in the
// query rather than filtered in application code.
func (r *SubscriptionRepositoryImpl) FindDue(ctx context.Context, notAfter time.Time, limit int) ([]*models.Subscription, error) {
	db := r.getDB(ctx).Model(&models.Subscription{}).
		Joins("LEFT JOIN reports ON reports.id = subscriptions.report_id").
		Joins("LEFT JOIN dashboards ON dashboards.id = subscriptions.dashboard_id").
		Where("subscriptions.deleted = false").
		Where("subscriptions.next_due_at IS NOT NULL AND subscriptions.next_due_at <= ?", notAfter).
		Where("(subscriptions.report_id IS NULL OR reports.deleted = false)").
		Where("(subscriptions.dashboard_id IS NULL OR dashboards.deleted = false)").
		Order("subscriptions.next_due_at ASC")

	if limit > 0 {
		db = db.Limit(limit)
	}

	var subs []*models.Subscription
	if err := db.Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to find due subscriptions: %w", err)
	}
	return subs, nil
}

// AdvanceNextDue moves next_due_at from the expected value to next. When
// the row no longer carries the expected value another writer advanced it
// first, and the update silently matches zero rows.
func (r *SubscriptionRepositoryImpl) AdvanceNextDue(ctx context.Context, id uint, expected *time.Time, next *time.Time) error {
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

	q := db.Model(&models.Subscription{}).Where("id = ?", id)
	if expected != nil {
		q = q.Where("next_due_at = ?", *expected)
	} else {
		q = q.Where("next_due_at IS NULL")
	}

	updates := map[string]any{
		"next_due_at": next,
		"updated_at":  utils.UTCNow(),
	}
	err = q.Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to advance next_due_at for subscription %d: %w", id, err)
	}

	return nil
}
