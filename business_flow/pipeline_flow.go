// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"context"
	"log"
	"time"

	"github.com/amirphl/Hachiko/app/services"
	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/repository"
	"github.com/amirphl/Hachiko/utils"
)

// inactiveTeamMaxHeight caps render height for teams outside the activity
// window, so dormant teams don't get the expensive full-fidelity path.
const inactiveTeamMaxHeight = 1200

// ArtifactPipeline renders every capped item of one subscription concurrently
// and persists the results as rendered artifacts.
type ArtifactPipeline interface {
	RenderAll(ctx context.Context, sweepCtx *SweepContext, subscription *models.Subscription, items []ResolvedItem) (*RenderResult, error)
}

// ArtifactPipelineImpl implements the render pipeline
type ArtifactPipelineImpl struct {
	artifactRepo repository.ArtifactRepository
	renderClient services.RenderClient
	renderCap    int
	taskTimeout  time.Duration
	safetyMargin time.Duration
	logger       *log.Logger
}

// NewArtifactPipeline creates a new render pipeline instance
func NewArtifactPipeline(
	artifactRepo repository.ArtifactRepository,
	renderClient services.RenderClient,
	renderCap int,
	taskTimeout time.Duration,
	safetyMargin time.Duration,
	logger *log.Logger,
) ArtifactPipeline {
	if renderCap <= 0 {
		renderCap = utils.DefaultRenderCap
	}
	if taskTimeout <= 0 {
		taskTimeout = utils.DefaultTaskTimeout
	}
	if safetyMargin <= 0 {
		safetyMargin = utils.DeliverySafetyMargin
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ArtifactPipelineImpl{
		artifactRepo: artifactRepo,
		renderClient: renderClient,
		renderCap:    renderCap,
		taskTimeout:  taskTimeout,
		safetyMargin: safetyMargin,
		logger:       logger,
	}
}

type renderUpdate struct {
	idx     int
	content []byte
	err     error
}

// RenderAll truncates the resolved items to the render cap, creates one
// placeholder artifact per kept item in a single batch write, then renders
// them concurrently. The batch stops waiting when the cycle deadline minus
// the delivery safety margin passes; in-flight renders keep running on the
// cycle context and persist their own result, but the returned artifacts for
// them carry no content. A failed render keeps its slot: items beyond the cap
// are never pulled in to replace it.
func (p *ArtifactPipelineImpl) RenderAll(ctx context.Context, sweepCtx *SweepContext, subscription *models.Subscription, items []ResolvedItem) (*RenderResult, error) {
	if len(items) == 0 {
		return nil, ErrNothingToDeliver
	}

	resolvedCount := len(items)
	if len(items) > p.renderCap {
		items = items[:p.renderCap]
	}

	artifacts := make([]*models.RenderedArtifact, len(items))
	for i, item := range items {
		artifacts[i] = &models.RenderedArtifact{
			TeamID:         subscription.TeamID,
			SubscriptionID: subscription.ID,
			ReportID:       item.ReportID,
			ReportName:     item.Name,
			Format:         models.ArtifactFormatPNG,
		}
	}
	if err := p.artifactRepo.SaveBatch(ctx, artifacts); err != nil {
		return nil, NewBusinessError("ARTIFACT_CREATE_FAILED", "failed to create artifact placeholders", err)
	}

	var maxHeight *int
	if !sweepCtx.TeamIsActive(subscription.TeamID) {
		maxHeight = utils.ToPtr(inactiveTeamMaxHeight)
	}

	batchCtx, cancel := context.WithDeadline(ctx, p.batchDeadline(ctx))
	defer cancel()

	// Renders run on the cycle context, not the batch context: crossing the
	// batch deadline abandons the wait, never the render itself.
	updates := make(chan renderUpdate, len(artifacts))
	sem := make(chan struct{}, p.renderCap)
	for i := range artifacts {
		go func(idx int) {
			sem <- struct{}{}
			defer func() { <-sem }()
			p.renderOne(ctx, sweepCtx, artifacts[idx], maxHeight, idx, updates)
		}(i)
	}

	started := utils.UTCNow()
	result := &RenderResult{
		ResolvedCount: resolvedCount,
		Artifacts:     artifacts,
	}

collect:
	for completed := 0; completed < len(artifacts); {
		select {
		case u := <-updates:
			completed++
			if u.err == nil {
				artifacts[u.idx].Content = u.content
			}
		case <-batchCtx.Done():
			result.TimedOut = true
			renderBatchTimeouts.WithLabelValues(sweepCtx.ExecutionContext).Inc()
			p.logger.Printf("render batch timed out for subscription %d after %d/%d renders (request %s)",
				subscription.ID, completed, len(artifacts), sweepCtx.RequestID)
			break collect
		}
	}

	renderBatchDuration.WithLabelValues(sweepCtx.ExecutionContext).Observe(time.Since(started).Seconds())
	return result, nil
}

func (p *ArtifactPipelineImpl) batchDeadline(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline.Add(-p.safetyMargin)
	}
	return utils.UTCNowAdd(p.taskTimeout - p.safetyMargin)
}

// renderOne performs one export call and persists its outcome on the
// placeholder row. It reports back over the updates channel; the in-memory
// artifact is only mutated by the collector so late finishers cannot race
// the returned slice.
func (p *ArtifactPipelineImpl) renderOne(ctx context.Context, sweepCtx *SweepContext, artifact *models.RenderedArtifact, maxHeight *int, idx int, updates chan<- renderUpdate) {
	content, err := p.renderClient.Render(ctx, artifact, maxHeight)
	if err != nil {
		renderFailures.WithLabelValues(sweepCtx.ExecutionContext).Inc()
		// Render failures come from the export backend or the network, so
		// they all land on the system side of the classification.
		if uerr := p.artifactRepo.UpdateError(ctx, artifact.ID, err.Error(), models.ErrorClassSystem); uerr != nil {
			p.logger.Printf("failed to record render error for artifact %d: %v (request %s)", artifact.ID, uerr, sweepCtx.RequestID)
		}
		updates <- renderUpdate{idx: idx, err: err}
		return
	}

	if uerr := p.artifactRepo.UpdateContent(ctx, artifact.ID, content, nil); uerr != nil {
		p.logger.Printf("failed to persist rendered content for artifact %d: %v (request %s)", artifact.ID, uerr, sweepCtx.RequestID)
		updates <- renderUpdate{idx: idx, err: uerr}
		return
	}
	updates <- renderUpdate{idx: idx, content: content}
}
