// Package businessflow contains the business logic for the application.
package businessflow

import (
	"time"

	"github.com/amirphl/Hachiko/models"
	"github.com/google/uuid"
)

// Execution contexts label metrics and logs so scheduled sweeps can be told
// apart from ad-hoc triggers.
const (
	ExecutionContextSweep  = "scheduled_sweep"
	ExecutionContextManual = "manual"
	ExecutionContextInvite = "invite"
)

// SweepContext carries per-sweep state through a delivery cycle. It replaces
// any process-global caching: every sweep builds a fresh one, so nothing
// leaks between cycles.
type SweepContext struct {
	RequestID        string
	ExecutionContext string
	StartedAt        time.Time

	// ActiveTeams holds the IDs of teams seen active within the activity
	// window. Subscriptions of inactive teams still deliver, but their
	// renders run at reduced fidelity.
	ActiveTeams map[uint]struct{}
}

// NewSweepContext creates a sweep context for one delivery cycle.
func NewSweepContext(executionContext string, activeTeams map[uint]struct{}, startedAt time.Time) *SweepContext {
	if activeTeams == nil {
		activeTeams = make(map[uint]struct{})
	}
	return &SweepContext{
		RequestID:        uuid.New().String(),
		ExecutionContext: executionContext,
		StartedAt:        startedAt,
		ActiveTeams:      activeTeams,
	}
}

// TeamIsActive reports whether the given team was active within the window
// captured at sweep start.
func (sc *SweepContext) TeamIsActive(teamID uint) bool {
	_, ok := sc.ActiveTeams[teamID]
	return ok
}

// ResolvedItem is one renderable unit produced by target resolution: a single
// report for report subscriptions, or one tile's report for dashboards.
type ResolvedItem struct {
	ReportID    uint
	ReportUUID  uuid.UUID
	Name        string
	DashboardID *uint
	TileID      *uint
}

// RenderResult is the outcome of rendering one subscription's resolved items.
type RenderResult struct {
	// ResolvedCount is the number of items resolution produced before the
	// render cap was applied.
	ResolvedCount int
	// Artifacts holds one row per capped item, in resolution order. Failed
	// or timed-out artifacts are present with no content and an error set.
	Artifacts []*models.RenderedArtifact
	// TimedOut is true when the batch deadline fired before every render
	// reported back.
	TimedOut bool
}

// Rendered returns the artifacts that produced usable content.
func (r *RenderResult) Rendered() []*models.RenderedArtifact {
	out := make([]*models.RenderedArtifact, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		if a.HasContent() {
			out = append(out, a)
		}
	}
	return out
}

// SendRequest is everything a channel needs to deliver one cycle's artifacts.
type SendRequest struct {
	Subscription *models.Subscription
	Artifacts    []*models.RenderedArtifact
	// TotalItemCount is the pre-cap resolved count, used for the
	// "showing K of N" notice when the cap truncated the batch.
	TotalItemCount int
	// Recipients overrides the subscription's recipient list when set.
	// Invite deliveries use it to target only newly added recipients.
	Recipients []string
	IsInvite   bool
	InviteNote string
}

// RecipientOutcome records one recipient's send result on the email channel.
type RecipientOutcome struct {
	Recipient string
	Err       error
	Class     models.ErrorClass
}

// DeliveryResult aggregates a channel's per-recipient (or per-message)
// outcomes into the classification stored on the delivery log.
type DeliveryResult struct {
	Outcome       models.DeliveryOutcome
	Sent          int
	Failed        int
	Recipients    []RecipientOutcome
	ThreadFailed  []int
	MainMessageID string
	// NoticeFailed marks a truncation notice that never posted. The notice
	// counts toward Sent and Failed like any other message.
	NoticeFailed bool
	// Skipped is true when the channel integration is absent and the
	// delivery degraded to a logged no-op.
	Skipped bool
}

func classifyOutcome(sent, failed int) models.DeliveryOutcome {
	switch {
	case failed == 0:
		return models.OutcomeCompleteSuccess
	case sent == 0:
		return models.OutcomeCompleteFailure
	default:
		return models.OutcomePartialFailure
	}
}
