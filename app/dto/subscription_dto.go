package dto

import (
	"time"

	"github.com/amirphl/Hachiko/recurrence"
)

// CreateSubscriptionRequest represents the request to create a new subscription
type CreateSubscriptionRequest struct {
	CreatedBy        uint                `json:"-"`
	TeamID           uint                `json:"team_id" validate:"required"`
	ReportID         *uint               `json:"report_id,omitempty"`
	DashboardID      *uint               `json:"dashboard_id,omitempty"`
	Channel          string              `json:"channel" validate:"required,oneof=email slack"`
	Title            string              `json:"title" validate:"required,max=400"`
	Recipients       []string            `json:"recipients,omitempty" validate:"omitempty,dive,email"`
	SlackChannelID   *string             `json:"slack_channel_id,omitempty"`
	SlackChannelName *string             `json:"slack_channel_name,omitempty"`
	Recurrence       recurrence.Schedule `json:"recurrence" validate:"required"`
}

// CreateSubscriptionResponse represents the response to create a new subscription
type CreateSubscriptionResponse struct {
	Message   string     `json:"message"`
	UUID      string     `json:"uuid"`
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	CreatedAt string     `json:"created_at"`
}

// UpdateSubscriptionRequest represents the request to update an existing subscription
type UpdateSubscriptionRequest struct {
	UUID             string               `json:"-"`
	Title            *string              `json:"title,omitempty" validate:"omitempty,max=400"`
	Recipients       []string             `json:"recipients,omitempty" validate:"omitempty,dive,email"`
	SlackChannelID   *string              `json:"slack_channel_id,omitempty"`
	SlackChannelName *string              `json:"slack_channel_name,omitempty"`
	Recurrence       *recurrence.Schedule `json:"recurrence,omitempty"`
	InviteNote       *string              `json:"invite_note,omitempty" validate:"omitempty,max=2000"`
	Deleted          *bool                `json:"deleted,omitempty"`
}

// UpdateSubscriptionResponse represents the response to update an existing subscription
type UpdateSubscriptionResponse struct {
	Message   string     `json:"message"`
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	Invited   []string   `json:"invited,omitempty"`
}

// UnsubscribeRequest carries the signed token from an unsubscribe link
type UnsubscribeRequest struct {
	Token string `json:"token" validate:"required"`
}

// UnsubscribeResponse reports the idempotent unsubscribe result
type UnsubscribeResponse struct {
	Message          string `json:"message"`
	SubscriptionUUID string `json:"subscription_uuid"`
	Removed          bool   `json:"removed"`
	Deleted          bool   `json:"deleted"`
}

// TriggerDeliveryRequest asks for an immediate delivery cycle of one subscription
type TriggerDeliveryRequest struct {
	SubscriptionUUID string `json:"-"`
}

// TriggerDeliveryResponse reports one manually triggered delivery cycle
type TriggerDeliveryResponse struct {
	Message       string `json:"message"`
	Outcome       string `json:"outcome,omitempty"`
	ResolvedCount int    `json:"resolved_count"`
	RenderedCount int    `json:"rendered_count"`
	SentCount     int    `json:"sent_count"`
	FailedCount   int    `json:"failed_count"`
}

// TriggerInviteRequest asks for an invite delivery to newly added recipients
type TriggerInviteRequest struct {
	SubscriptionUUID   string   `json:"-"`
	PreviousRecipients []string `json:"previous_recipients" validate:"omitempty,dive,email"`
	Note               *string  `json:"note,omitempty" validate:"omitempty,max=2000"`
}

// SweepResponse reports one manually triggered sweep
type SweepResponse struct {
	Message    string `json:"message"`
	Due        int    `json:"due"`
	Dispatched int    `json:"dispatched"`
}
