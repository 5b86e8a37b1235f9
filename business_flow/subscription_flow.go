// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/amirphl/Hachiko/app/dto"
	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/recurrence"
	"github.com/amirphl/Hachiko/repository"
	"github.com/amirphl/Hachiko/utils"
	"gorm.io/gorm"
)

// SubscriptionFlow handles subscription creation and updates, including the
// save-time schedule computation and the invite delivery on recipient edits.
type SubscriptionFlow interface {
	Create(ctx context.Context, req *dto.CreateSubscriptionRequest) (*dto.CreateSubscriptionResponse, error)
	Update(ctx context.Context, req *dto.UpdateSubscriptionRequest) (*dto.UpdateSubscriptionResponse, error)
}

// SubscriptionFlowImpl implements the subscription save flow
type SubscriptionFlowImpl struct {
	subscriptionRepo repository.SubscriptionRepository
	unsubscribeFlow  UnsubscribeFlow
	schedulingBuffer time.Duration
	db               *gorm.DB
	logger           *log.Logger
}

// NewSubscriptionFlow creates a new subscription flow instance
func NewSubscriptionFlow(
	subscriptionRepo repository.SubscriptionRepository,
	unsubscribeFlow UnsubscribeFlow,
	schedulingBuffer time.Duration,
	db *gorm.DB,
	logger *log.Logger,
) SubscriptionFlow {
	if schedulingBuffer <= 0 {
		schedulingBuffer = utils.SchedulingBuffer
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SubscriptionFlowImpl{
		subscriptionRepo: subscriptionRepo,
		unsubscribeFlow:  unsubscribeFlow,
		schedulingBuffer: schedulingBuffer,
		db:               db,
		logger:           logger,
	}
}

// Create validates the target, channel configuration, and recurrence
// definition up front so a bad schedule fails the save instead of surfacing
// at delivery time, then computes the first due time.
func (f *SubscriptionFlowImpl) Create(ctx context.Context, req *dto.CreateSubscriptionRequest) (*dto.CreateSubscriptionResponse, error) {
	if (req.ReportID == nil) == (req.DashboardID == nil) {
		return nil, NewBusinessError("INVALID_TARGET", "subscription must target exactly one report or dashboard", ErrTargetRequired)
	}

	channel := models.SubscriptionChannel(req.Channel)
	if !channel.Valid() {
		return nil, NewBusinessErrorf("CHANNEL_NOT_SUPPORTED", "channel %q not supported", ErrChannelNotSupported, req.Channel)
	}
	switch channel {
	case models.ChannelEmail:
		if len(req.Recipients) == 0 {
			return nil, NewBusinessError("RECIPIENTS_REQUIRED", "at least one recipient is required", ErrRecipientsRequired)
		}
	case models.ChannelSlack:
		if req.SlackChannelID == nil || *req.SlackChannelID == "" {
			return nil, NewBusinessError("SLACK_CHANNEL_REQUIRED", "slack channel is required", ErrSlackChannelRequired)
		}
	}

	if err := req.Recurrence.Validate(); err != nil {
		return nil, NewBusinessError("INVALID_SCHEDULE", "recurrence definition is invalid", err)
	}
	nextDue, err := f.computeNextDue(req.Recurrence)
	if err != nil {
		return nil, err
	}

	subscription := &models.Subscription{
		TeamID:           req.TeamID,
		ReportID:         req.ReportID,
		DashboardID:      req.DashboardID,
		Channel:          channel,
		Recipients:       req.Recipients,
		SlackChannelID:   req.SlackChannelID,
		SlackChannelName: req.SlackChannelName,
		Title:            req.Title,
		Recurrence:       models.RecurrenceSpec{Schedule: req.Recurrence},
		NextDueAt:        nextDue,
		CreatedBy:        req.CreatedBy,
	}
	if err := f.subscriptionRepo.Save(ctx, subscription); err != nil {
		return nil, NewBusinessError("SUBSCRIPTION_CREATE_FAILED", "failed to create subscription", err)
	}

	return &dto.CreateSubscriptionResponse{
		Message:   "Subscription created",
		UUID:      subscription.UUID.String(),
		NextDueAt: subscription.NextDueAt,
		CreatedAt: subscription.CreatedAt.Format(time.RFC3339),
	}, nil
}

// Update applies the edits, recomputing next_due_at only when the recurrence
// fingerprint actually changed so cosmetic saves keep the pending due time.
// Newly added recipients get an invite delivery after the save commits.
func (f *SubscriptionFlowImpl) Update(ctx context.Context, req *dto.UpdateSubscriptionRequest) (*dto.UpdateSubscriptionResponse, error) {
	if req.UUID == "" {
		return nil, NewBusinessError("SUBSCRIPTION_UUID_REQUIRED", "subscription UUID is required", ErrSubscriptionUUIDRequired)
	}
	subscription, err := f.subscriptionRepo.ByUUID(ctx, req.UUID)
	if err != nil {
		return nil, NewBusinessError("SUBSCRIPTION_LOOKUP_FAILED", "failed to load subscription", err)
	}
	if subscription == nil {
		return nil, NewBusinessError("SUBSCRIPTION_NOT_FOUND", "subscription not found", ErrSubscriptionNotFound)
	}
	if subscription.Deleted {
		return nil, NewBusinessError("SUBSCRIPTION_DELETED", "subscription is deleted", ErrSubscriptionDeleted)
	}

	previousRecipients := append([]string(nil), subscription.Recipients...)

	if req.Title != nil {
		subscription.Title = *req.Title
	}
	if req.Recipients != nil {
		if subscription.Channel == models.ChannelEmail && len(req.Recipients) == 0 {
			return nil, NewBusinessError("RECIPIENTS_REQUIRED", "at least one recipient is required", ErrRecipientsRequired)
		}
		subscription.Recipients = req.Recipients
	}
	if req.SlackChannelID != nil {
		subscription.SlackChannelID = req.SlackChannelID
	}
	if req.SlackChannelName != nil {
		subscription.SlackChannelName = req.SlackChannelName
	}
	if req.Deleted != nil && *req.Deleted {
		subscription.Deleted = true
		subscription.NextDueAt = nil
	}

	if req.Recurrence != nil {
		if err := req.Recurrence.Validate(); err != nil {
			return nil, NewBusinessError("INVALID_SCHEDULE", "recurrence definition is invalid", err)
		}
		if req.Recurrence.Fingerprint() != subscription.Recurrence.Fingerprint() {
			nextDue, err := f.computeNextDue(*req.Recurrence)
			if err != nil {
				return nil, err
			}
			subscription.Recurrence = models.RecurrenceSpec{Schedule: *req.Recurrence}
			subscription.NextDueAt = nextDue
		}
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		return f.subscriptionRepo.Update(txCtx, subscription)
	})
	if err != nil {
		return nil, NewBusinessError("SUBSCRIPTION_UPDATE_FAILED", "failed to update subscription", err)
	}

	resp := &dto.UpdateSubscriptionResponse{
		Message:   "Subscription updated",
		NextDueAt: subscription.NextDueAt,
	}

	if !subscription.Deleted {
		invited, err := f.unsubscribeFlow.ValueChanged(ctx, subscription, previousRecipients, req.InviteNote)
		if err != nil {
			// The save itself succeeded. A failed invite delivery is worth a
			// log line, not a failed update.
			f.logger.Printf("invite delivery failed for subscription %d: %v", subscription.ID, err)
		}
		resp.Invited = invited
	}
	return resp, nil
}

func (f *SubscriptionFlowImpl) computeNextDue(schedule recurrence.Schedule) (*time.Time, error) {
	next, err := recurrence.ComputeNext(schedule, utils.UTCNowAdd(f.schedulingBuffer))
	if err != nil {
		if errors.Is(err, recurrence.ErrNoMoreOccurrences) {
			return nil, nil
		}
		return nil, NewBusinessError("INVALID_SCHEDULE", "failed to compute next occurrence", err)
	}
	return &next, nil
}
