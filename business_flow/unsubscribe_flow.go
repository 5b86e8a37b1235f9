// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"context"
	"errors"
	"log"

	"github.com/amirphl/Hachiko/app/dto"
	"github.com/amirphl/Hachiko/app/services"
	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/repository"
	"github.com/amirphl/Hachiko/utils"
	"gorm.io/gorm"
)

// UnsubscribeFlow handles recipient removal via signed unsubscribe links and
// the invite delivery that follows a recipient-list change.
type UnsubscribeFlow interface {
	Unsubscribe(ctx context.Context, req *dto.UnsubscribeRequest) (*dto.UnsubscribeResponse, error)
	// ValueChanged compares the current recipient set against the one from
	// before the save and sends an invite delivery to the newcomers. It
	// returns the invited recipients; an unchanged or shrunken set is a no-op.
	ValueChanged(ctx context.Context, subscription *models.Subscription, previousRecipients []string, note *string) ([]string, error)
}

// UnsubscribeFlowImpl implements the unsubscribe business flow
type UnsubscribeFlowImpl struct {
	subscriptionRepo repository.SubscriptionRepository
	tokenService     services.TokenService
	deliveryFlow     DeliveryFlow
	db               *gorm.DB
	logger           *log.Logger
}

// NewUnsubscribeFlow creates a new unsubscribe flow instance
func NewUnsubscribeFlow(
	subscriptionRepo repository.SubscriptionRepository,
	tokenService services.TokenService,
	deliveryFlow DeliveryFlow,
	db *gorm.DB,
	logger *log.Logger,
) UnsubscribeFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &UnsubscribeFlowImpl{
		subscriptionRepo: subscriptionRepo,
		tokenService:     tokenService,
		deliveryFlow:     deliveryFlow,
		db:               db,
		logger:           logger,
	}
}

// Unsubscribe removes the recipient the token was signed for. The operation
// is idempotent: a recipient already gone, or a subscription already deleted,
// both answer success so a twice-clicked link never errors at the user.
// Removing the last recipient soft-deletes the subscription.
func (f *UnsubscribeFlowImpl) Unsubscribe(ctx context.Context, req *dto.UnsubscribeRequest) (*dto.UnsubscribeResponse, error) {
	claims, err := f.tokenService.ValidateUnsubscribeToken(req.Token)
	if err != nil {
		if errors.Is(err, services.ErrTokenExpired) {
			return nil, NewBusinessError("TOKEN_EXPIRED", "unsubscribe link has expired", ErrUnsubscribeTokenExpired)
		}
		return nil, NewBusinessError("TOKEN_INVALID", "unsubscribe link is invalid", ErrUnsubscribeTokenInvalid)
	}

	subscription, err := f.subscriptionRepo.ByID(ctx, claims.SubscriptionID)
	if err != nil {
		return nil, NewBusinessError("SUBSCRIPTION_LOOKUP_FAILED", "failed to load subscription", err)
	}
	if subscription == nil {
		return nil, NewBusinessError("SUBSCRIPTION_NOT_FOUND", "subscription not found", ErrSubscriptionNotFound)
	}

	resp := &dto.UnsubscribeResponse{
		Message:          "You have been unsubscribed",
		SubscriptionUUID: subscription.UUID.String(),
	}

	if subscription.Deleted {
		resp.Deleted = true
		return resp, nil
	}
	if !subscription.HasRecipient(claims.Recipient) {
		return resp, nil
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		subscription.RemoveRecipient(claims.Recipient)
		if len(subscription.Recipients) == 0 {
			subscription.Deleted = true
			subscription.NextDueAt = nil
		}
		return f.subscriptionRepo.Update(txCtx, subscription)
	})
	if err != nil {
		return nil, NewBusinessError("UNSUBSCRIBE_FAILED", "failed to remove recipient", err)
	}

	resp.Removed = true
	resp.Deleted = subscription.Deleted
	f.logger.Printf("recipient removed from subscription %d (deleted=%t)", subscription.ID, subscription.Deleted)
	return resp, nil
}

func (f *UnsubscribeFlowImpl) ValueChanged(ctx context.Context, subscription *models.Subscription, previousRecipients []string, note *string) ([]string, error) {
	if subscription.Channel != models.ChannelEmail {
		return nil, nil
	}
	newRecipients := subscription.NewRecipientsSince(previousRecipients)
	if len(newRecipients) == 0 {
		return nil, nil
	}

	// The invite renders at full fidelity: someone just touched this
	// subscription, so its team counts as active.
	sweepCtx := NewSweepContext(ExecutionContextInvite, map[uint]struct{}{subscription.TeamID: {}}, utils.UTCNow())

	opts := DeliverOptions{
		Invite:             true,
		PreviousRecipients: previousRecipients,
	}
	if note != nil {
		opts.InviteNote = *note
	}
	if _, err := f.deliveryFlow.Deliver(ctx, sweepCtx, subscription.ID, opts); err != nil {
		return nil, err
	}
	return newRecipients, nil
}
