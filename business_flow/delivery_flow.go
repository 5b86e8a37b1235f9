// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/recurrence"
	"github.com/amirphl/Hachiko/repository"
	"github.com/amirphl/Hachiko/utils"
	"gorm.io/gorm"
)

// DeliverOptions tunes one delivery cycle. The zero value is a normal
// scheduled delivery to the subscription's full recipient set.
type DeliverOptions struct {
	// Invite deliveries go only to recipients added since PreviousRecipients
	// and never advance the schedule.
	Invite             bool
	PreviousRecipients []string
	InviteNote         string
}

// DeliveryFlow runs one full delivery cycle for a subscription: resolve the
// target, render the capped items, hand them to the channel, record the
// outcome, and advance the schedule.
type DeliveryFlow interface {
	Deliver(ctx context.Context, sweepCtx *SweepContext, subscriptionID uint, opts DeliverOptions) (*models.DeliveryLog, error)
	DeliverByUUID(ctx context.Context, sweepCtx *SweepContext, subscriptionUUID string, opts DeliverOptions) (*models.DeliveryLog, error)
}

// DeliveryFlowImpl implements the delivery cycle flow
type DeliveryFlowImpl struct {
	subscriptionRepo repository.SubscriptionRepository
	deliveryLogRepo  repository.DeliveryLogRepository
	resolver         ResolverFlow
	pipeline         ArtifactPipeline
	channels         map[models.SubscriptionChannel]Channel
	schedulingBuffer time.Duration
	db               *gorm.DB
	logger           *log.Logger
}

// NewDeliveryFlow creates a new delivery flow instance
func NewDeliveryFlow(
	subscriptionRepo repository.SubscriptionRepository,
	deliveryLogRepo repository.DeliveryLogRepository,
	resolver ResolverFlow,
	pipeline ArtifactPipeline,
	channels []Channel,
	schedulingBuffer time.Duration,
	db *gorm.DB,
	logger *log.Logger,
) DeliveryFlow {
	if schedulingBuffer <= 0 {
		schedulingBuffer = utils.SchedulingBuffer
	}
	if logger == nil {
		logger = log.Default()
	}
	byKind := make(map[models.SubscriptionChannel]Channel, len(channels))
	for _, ch := range channels {
		byKind[ch.Kind()] = ch
	}
	return &DeliveryFlowImpl{
		subscriptionRepo: subscriptionRepo,
		deliveryLogRepo:  deliveryLogRepo,
		resolver:         resolver,
		pipeline:         pipeline,
		channels:         byKind,
		schedulingBuffer: schedulingBuffer,
		db:               db,
		logger:           logger,
	}
}

// DeliverByUUID resolves the subscription by its public identifier and runs
// one delivery cycle for it.
func (f *DeliveryFlowImpl) DeliverByUUID(ctx context.Context, sweepCtx *SweepContext, subscriptionUUID string, opts DeliverOptions) (*models.DeliveryLog, error) {
	subscription, err := f.subscriptionRepo.ByUUID(ctx, subscriptionUUID)
	if err != nil {
		return nil, NewBusinessError("SUBSCRIPTION_LOOKUP_FAILED", "failed to load subscription", err)
	}
	if subscription == nil {
		return nil, NewBusinessError("SUBSCRIPTION_NOT_FOUND", "subscription not found", ErrSubscriptionNotFound)
	}
	return f.Deliver(ctx, sweepCtx, subscription.ID, opts)
}

// Deliver executes one cycle. The schedule advances exactly once per cycle
// whatever the delivery outcome was, so a failing subscription cannot
// tight-loop; only invite deliveries leave the schedule untouched.
func (f *DeliveryFlowImpl) Deliver(ctx context.Context, sweepCtx *SweepContext, subscriptionID uint, opts DeliverOptions) (*models.DeliveryLog, error) {
	subscription, err := f.subscriptionRepo.ByID(ctx, subscriptionID)
	if err != nil {
		return nil, NewBusinessError("SUBSCRIPTION_LOOKUP_FAILED", "failed to load subscription", err)
	}
	if subscription == nil {
		return nil, NewBusinessError("SUBSCRIPTION_NOT_FOUND", "subscription not found", ErrSubscriptionNotFound)
	}
	if subscription.Deleted {
		return nil, ErrSubscriptionDeleted
	}

	channel, ok := f.channels[subscription.Channel]
	if !ok {
		return nil, NewBusinessErrorf("CHANNEL_NOT_SUPPORTED", "channel %q not supported", ErrChannelNotSupported, subscription.Channel)
	}

	// Invites target only the recipients added since the previous save.
	var recipients []string
	if opts.Invite {
		recipients = subscription.NewRecipientsSince(opts.PreviousRecipients)
		if len(recipients) == 0 {
			return nil, nil
		}
	}

	if err := channel.Prepare(subscription); err != nil {
		f.logger.Printf("channel validation failed for subscription %d: %v (request %s)", subscription.ID, err, sweepCtx.RequestID)
		logEntry := f.failureLog(subscription, opts, models.ErrorClassUser, err)
		f.finishCycle(ctx, sweepCtx, subscription, opts, logEntry)
		return logEntry, nil
	}

	items, err := f.resolver.Resolve(ctx, subscription)
	if err != nil {
		if errors.Is(err, ErrNothingToDeliver) {
			// Target vanished between the sweep query and now. Nothing to
			// send, but the schedule still moves on.
			f.logger.Printf("nothing to deliver for subscription %d: %v (request %s)", subscription.ID, err, sweepCtx.RequestID)
			f.finishCycle(ctx, sweepCtx, subscription, opts, nil)
			return nil, nil
		}
		return nil, err
	}

	renderResult, err := f.pipeline.RenderAll(ctx, sweepCtx, subscription, items)
	if err != nil {
		logEntry := f.failureLog(subscription, opts, models.ErrorClassSystem, err)
		logEntry.ResolvedCount = len(items)
		f.finishCycle(ctx, sweepCtx, subscription, opts, logEntry)
		return logEntry, err
	}

	sendReq := SendRequest{
		Subscription:   subscription,
		Artifacts:      renderResult.Artifacts,
		TotalItemCount: renderResult.ResolvedCount,
		Recipients:     recipients,
		IsInvite:       opts.Invite,
		InviteNote:     opts.InviteNote,
	}
	sendResult, sendErr := channel.Send(ctx, sendReq)
	if sendResult == nil {
		sendResult = &DeliveryResult{Outcome: models.OutcomeCompleteFailure, Failed: 1}
	}
	if sendResult.Skipped {
		f.finishCycle(ctx, sweepCtx, subscription, opts, nil)
		return nil, nil
	}

	logEntry := f.buildLog(subscription, opts, renderResult, sendResult, sendErr)
	f.finishCycle(ctx, sweepCtx, subscription, opts, logEntry)

	if sendErr != nil && !errors.Is(sendErr, ErrMainMessageFailed) {
		return logEntry, sendErr
	}
	return logEntry, nil
}

// finishCycle records the outcome metric and commits the delivery log and the
// schedule advance together, so a cycle is never logged without moving on and
// never moves on without its log.
func (f *DeliveryFlowImpl) finishCycle(ctx context.Context, sweepCtx *SweepContext, subscription *models.Subscription, opts DeliverOptions, logEntry *models.DeliveryLog) {
	if logEntry != nil {
		deliveryOutcomes.WithLabelValues(string(subscription.Channel), string(logEntry.Outcome)).Inc()
	}

	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if logEntry != nil {
			if err := f.deliveryLogRepo.Save(txCtx, logEntry); err != nil {
				return fmt.Errorf("failed to save delivery log: %w", err)
			}
		}
		if !opts.Invite {
			return f.advanceSchedule(txCtx, subscription)
		}
		return nil
	})
	if err != nil {
		f.logger.Printf("failed to finish delivery cycle for subscription %d: %v (request %s)", subscription.ID, err, sweepCtx.RequestID)
	}
}

// advanceSchedule recomputes next_due_at from the subscription's own current
// due time. Anchoring on the stored due time rather than the sweep tick means
// catch-up after downtime lands on the next future occurrence instead of
// replaying every missed period, and the guarded update keeps the advance
// at-most-once when two sweeps race over the same subscription.
func (f *DeliveryFlowImpl) advanceSchedule(ctx context.Context, subscription *models.Subscription) error {
	notBefore := utils.UTCNowAdd(f.schedulingBuffer)
	if subscription.NextDueAt != nil && subscription.NextDueAt.After(notBefore) {
		notBefore = subscription.NextDueAt.Add(time.Second)
	}

	var next *time.Time
	computed, err := recurrence.ComputeNext(subscription.Recurrence.Schedule, notBefore)
	switch {
	case err == nil:
		next = &computed
	case errors.Is(err, recurrence.ErrNoMoreOccurrences):
		// Schedule exhausted: clear the due time so sweeps stop picking
		// the subscription up.
		next = nil
	default:
		return fmt.Errorf("failed to compute next occurrence: %w", err)
	}

	return f.subscriptionRepo.AdvanceNextDue(ctx, subscription.ID, subscription.NextDueAt, next)
}

func (f *DeliveryFlowImpl) failureLog(subscription *models.Subscription, opts DeliverOptions, class models.ErrorClass, err error) *models.DeliveryLog {
	msg := err.Error()
	return &models.DeliveryLog{
		SubscriptionID: subscription.ID,
		TeamID:         subscription.TeamID,
		Outcome:        models.OutcomeCompleteFailure,
		IsInvite:       opts.Invite,
		FailedCount:    1,
		ErrorClass:     &class,
		ErrorMessage:   &msg,
	}
}

func (f *DeliveryFlowImpl) buildLog(subscription *models.Subscription, opts DeliverOptions, renderResult *RenderResult, sendResult *DeliveryResult, sendErr error) *models.DeliveryLog {
	logEntry := &models.DeliveryLog{
		SubscriptionID: subscription.ID,
		TeamID:         subscription.TeamID,
		Outcome:        sendResult.Outcome,
		IsInvite:       opts.Invite,
		RenderedCount:  len(renderResult.Rendered()),
		ResolvedCount:  renderResult.ResolvedCount,
		SentCount:      sendResult.Sent,
		FailedCount:    sendResult.Failed,
	}

	if sendResult.Failed > 0 || sendErr != nil {
		class := dominantErrorClass(sendResult)
		logEntry.ErrorClass = &class
		if msg := firstErrorMessage(sendResult, sendErr); msg != "" {
			logEntry.ErrorMessage = &msg
		}
	}
	return logEntry
}

// dominantErrorClass prefers system over user: one infrastructure failure
// makes the cycle an operations concern regardless of how many recipients
// also had bad addresses.
func dominantErrorClass(result *DeliveryResult) models.ErrorClass {
	sawUser := false
	for _, r := range result.Recipients {
		if r.Err == nil {
			continue
		}
		if r.Class == models.ErrorClassSystem {
			return models.ErrorClassSystem
		}
		sawUser = true
	}
	if sawUser {
		return models.ErrorClassUser
	}
	return models.ErrorClassSystem
}

func firstErrorMessage(result *DeliveryResult, sendErr error) string {
	for _, r := range result.Recipients {
		if r.Err != nil {
			return r.Err.Error()
		}
	}
	if sendErr != nil {
		return sendErr.Error()
	}
	if len(result.ThreadFailed) > 0 {
		return fmt.Sprintf("%d thread messages failed", len(result.ThreadFailed))
	}
	if result.NoticeFailed {
		return "truncation notice failed"
	}
	return ""
}
