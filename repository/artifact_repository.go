package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/Hachiko/models"
	"gorm.io/gorm"
)

// ArtifactRepositoryImpl implements the ArtifactRepository interface
type ArtifactRepositoryImpl struct {
	*BaseRepository[models.RenderedArtifact, models.RenderedArtifactFilter]
}

// NewArtifactRepository creates a new rendered artifact repository
func NewArtifactRepository(db *gorm.DB) ArtifactRepository {
	return &ArtifactRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RenderedArtifact, models.RenderedArtifactFilter](db),
	}
}

// UpdateContent writes the rendered payload onto a placeholder artifact.
// The guard on empty content keeps the render write exactly-once: a second
// writer matches zero rows.
func (r *ArtifactRepositoryImpl) UpdateContent(ctx context.Context, id uint, content []byte, storageKey *string) error {
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

	err = db.Model(&models.RenderedArtifact{}).
		Where("id = ? AND content IS NULL AND storage_key IS NULL", id).
		Updates(map[string]any{
			"content":     content,
			"storage_key": storageKey,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update artifact %d content: %w", id, err)
	}

	return nil
}

// UpdateError attaches failure metadata to an artifact
func (r *ArtifactRepositoryImpl) UpdateError(ctx context.Context, id uint, message string, class models.ErrorClass) error {
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

	err = db.Model(&models.RenderedArtifact{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"error_message": message,
			"error_class":   string(class),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update artifact %d error: %w", id, err)
	}

	return nil
}

// BySubscription lists artifacts of a subscription, newest first
func (r *ArtifactRepositoryImpl) BySubscription(ctx context.Context, subscriptionID uint, limit int) ([]*models.RenderedArtifact, error) {
	db := r.getDB(ctx).Model(&models.RenderedArtifact{}).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC, id DESC")

	if limit > 0 {
		db = db.Limit(limit)
	}

	var artifacts []*models.RenderedArtifact
	if err := db.Find(&artifacts).Error; err != nil {
		return nil, fmt.Errorf("failed to find artifacts for subscription %d: %w", subscriptionID, err)
	}
	return artifacts, nil
}
