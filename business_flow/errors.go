// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Subscription-related errors
	ErrSubscriptionNotFound     = errors.New("subscription not found")
	ErrSubscriptionDeleted      = errors.New("subscription is deleted")
	ErrSubscriptionTargetGone   = errors.New("subscription target no longer exists")
	ErrNothingToDeliver         = errors.New("nothing to deliver")
	ErrRecipientsRequired       = errors.New("at least one recipient is required for email subscriptions")
	ErrSlackChannelRequired     = errors.New("slack channel is required for slack subscriptions")
	ErrTargetRequired           = errors.New("subscription must target exactly one report or dashboard")
	ErrScheduleAdvanceConflict  = errors.New("subscription schedule was advanced concurrently")
	ErrSubscriptionUUIDRequired = errors.New("subscription UUID is required")

	// Unsubscribe errors
	ErrUnsubscribeTokenInvalid = errors.New("unsubscribe token is invalid")
	ErrUnsubscribeTokenExpired = errors.New("unsubscribe token has expired")

	// Render pipeline errors
	ErrRenderFailed       = errors.New("artifact render failed")
	ErrRenderBatchTimeout = errors.New("render batch timed out")
	ErrNoArtifactContent  = errors.New("artifact has no content")

	// Delivery errors
	ErrChannelNotSupported   = errors.New("delivery channel not supported")
	ErrChannelNotConfigured  = errors.New("delivery channel not configured")
	ErrAllRecipientsFailed   = errors.New("delivery failed for all recipients")
	ErrMainMessageFailed     = errors.New("slack main message failed")
	ErrInvalidRecipientEmail = errors.New("recipient email address is invalid")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsSubscriptionNotFound(err error) bool {
	return errors.Is(err, ErrSubscriptionNotFound)
}

func IsNothingToDeliver(err error) bool {
	return errors.Is(err, ErrNothingToDeliver)
}

func IsUnsubscribeTokenExpired(err error) bool {
	return errors.Is(err, ErrUnsubscribeTokenExpired)
}

func IsUnsubscribeTokenInvalid(err error) bool {
	return errors.Is(err, ErrUnsubscribeTokenInvalid)
}

func IsMainMessageFailed(err error) bool {
	return errors.Is(err, ErrMainMessageFailed)
}
