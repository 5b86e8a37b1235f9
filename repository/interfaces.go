// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/Hachiko/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Update(ctx context.Context, entity *T) error
}

// SubscriptionRepository defines operations for subscriptions
type SubscriptionRepository interface {
	Repository[models.Subscription, models.SubscriptionFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Subscription, error)
	ByFilter(ctx context.Context, filter models.SubscriptionFilter, orderBy string, limit, offset int) ([]*models.Subscription, error)
	// FindDue lists non-deleted subscriptions with next_due_at at or before
	// the given bound, excluding those whose target report or dashboard has
	// been soft-deleted.
	FindDue(ctx context.Context, notAfter time.Time, limit int) ([]*models.Subscription, error)
	// AdvanceNextDue moves next_due_at from its expected current value to
	// next. The guard on the expected value keeps the schedule advance
	// at-most-once per delivery cycle.
	AdvanceNextDue(ctx context.Context, id uint, expected *time.Time, next *time.Time) error
}

// ReportRepository defines operations for reports
type ReportRepository interface {
	Repository[models.Report, models.ReportFilter]
	ByFilter(ctx context.Context, filter models.ReportFilter, orderBy string, limit, offset int) ([]*models.Report, error)
}

// DashboardRepository defines operations for dashboards
type DashboardRepository interface {
	Repository[models.Dashboard, models.DashboardFilter]
	// TilesWithReports fetches all tiles of a dashboard with their reports
	// preloaded in a single bulk read, ordered by layout position.
	TilesWithReports(ctx context.Context, dashboardID uint) ([]*models.DashboardTile, error)
}

// ArtifactRepository defines operations for rendered artifacts
type ArtifactRepository interface {
	Repository[models.RenderedArtifact, models.RenderedArtifactFilter]
	// UpdateContent writes the rendered payload onto a placeholder artifact
	UpdateContent(ctx context.Context, id uint, content []byte, storageKey *string) error
	// UpdateError attaches failure metadata to an artifact
	UpdateError(ctx context.Context, id uint, message string, class models.ErrorClass) error
	BySubscription(ctx context.Context, subscriptionID uint, limit int) ([]*models.RenderedArtifact, error)
}

// DeliveryLogRepository defines operations for delivery logs
type DeliveryLogRepository interface {
	Repository[models.DeliveryLog, models.DeliveryLogFilter]
	ListBySubscription(ctx context.Context, subscriptionID uint, limit, offset int) ([]*models.DeliveryLog, error)
}

// TeamRepository defines operations for teams
type TeamRepository interface {
	Repository[models.Team, models.TeamFilter]
	// ListActiveTeamIDs returns IDs of teams active within the window
	ListActiveTeamIDs(ctx context.Context, window time.Duration) ([]uint, error)
	TouchActivity(ctx context.Context, teamID uint) error
}
