// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"context"
	"fmt"

	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/repository"
)

// ResolverFlow turns a subscription's target into the ordered list of
// renderable items for one delivery cycle.
type ResolverFlow interface {
	Resolve(ctx context.Context, subscription *models.Subscription) ([]ResolvedItem, error)
}

// ResolverFlowImpl implements the target resolution flow
type ResolverFlowImpl struct {
	reportRepo    repository.ReportRepository
	dashboardRepo repository.DashboardRepository
}

// NewResolverFlow creates a new resolver flow instance
func NewResolverFlow(reportRepo repository.ReportRepository, dashboardRepo repository.DashboardRepository) ResolverFlow {
	return &ResolverFlowImpl{
		reportRepo:    reportRepo,
		dashboardRepo: dashboardRepo,
	}
}

// Resolve expands the subscription target. Report subscriptions yield exactly
// one item. Dashboard subscriptions yield one item per tile in layout order,
// skipping tiles whose report has been soft-deleted since the tile was laid
// out. A target that vanished entirely, or a dashboard left with no live
// tiles, resolves to ErrNothingToDeliver so the cycle ends without a send.
func (f *ResolverFlowImpl) Resolve(ctx context.Context, subscription *models.Subscription) ([]ResolvedItem, error) {
	switch {
	case subscription.TargetsReport():
		return f.resolveReport(ctx, subscription)
	case subscription.TargetsDashboard():
		return f.resolveDashboard(ctx, subscription)
	default:
		return nil, NewBusinessError("INVALID_TARGET", "subscription has no target", ErrTargetRequired)
	}
}

func (f *ResolverFlowImpl) resolveReport(ctx context.Context, subscription *models.Subscription) ([]ResolvedItem, error) {
	report, err := f.reportRepo.ByID(ctx, *subscription.ReportID)
	if err != nil {
		return nil, NewBusinessError("REPORT_LOOKUP_FAILED", "failed to load report", err)
	}
	if report == nil || report.Deleted {
		return nil, fmt.Errorf("report %d: %w", *subscription.ReportID, ErrNothingToDeliver)
	}

	return []ResolvedItem{{
		ReportID:   report.ID,
		ReportUUID: report.UUID,
		Name:       report.Name,
	}}, nil
}

func (f *ResolverFlowImpl) resolveDashboard(ctx context.Context, subscription *models.Subscription) ([]ResolvedItem, error) {
	dashboard, err := f.dashboardRepo.ByID(ctx, *subscription.DashboardID)
	if err != nil {
		return nil, NewBusinessError("DASHBOARD_LOOKUP_FAILED", "failed to load dashboard", err)
	}
	if dashboard == nil || dashboard.Deleted {
		return nil, fmt.Errorf("dashboard %d: %w", *subscription.DashboardID, ErrNothingToDeliver)
	}

	// One bulk read for all tiles and their reports, already in layout order.
	tiles, err := f.dashboardRepo.TilesWithReports(ctx, dashboard.ID)
	if err != nil {
		return nil, NewBusinessError("DASHBOARD_TILES_FAILED", "failed to load dashboard tiles", err)
	}

	items := make([]ResolvedItem, 0, len(tiles))
	for _, tile := range tiles {
		if tile.Report == nil || tile.Report.Deleted {
			continue
		}
		tileID := tile.ID
		items = append(items, ResolvedItem{
			ReportID:    tile.ReportID,
			ReportUUID:  tile.Report.UUID,
			Name:        tile.Report.Name,
			DashboardID: &dashboard.ID,
			TileID:      &tileID,
		})
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("dashboard %d has no live tiles: %w", dashboard.ID, ErrNothingToDeliver)
	}
	return items, nil
}
