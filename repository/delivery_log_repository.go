package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/Hachiko/models"
	"gorm.io/gorm"
)

// DeliveryLogRepositoryImpl implements the DeliveryLogRepository interface
type DeliveryLogRepositoryImpl struct {
	*BaseRepository[models.DeliveryLog, models.DeliveryLogFilter]
}

// NewDeliveryLogRepository creates a new delivery log repository
func NewDeliveryLogRepository(db *gorm.DB) DeliveryLogRepository {
	return &DeliveryLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DeliveryLog, models.DeliveryLogFilter](db),
	}
}

// ListBySubscription lists delivery logs of a subscription, newest first
func (r *DeliveryLogRepositoryImpl) ListBySubscription(ctx context.Context, subscriptionID uint, limit, offset int) ([]*models.DeliveryLog, error) {
	db := r.getDB(ctx).Model(&models.DeliveryLog{}).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC, id DESC")

	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}

	var logs []*models.DeliveryLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to find delivery logs for subscription %d: %w", subscriptionID, err)
	}
	return logs, nil
}
