package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/Hachiko/recurrence"
	"github.com/amirphl/Hachiko/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// SubscriptionChannel represents the delivery channel of a subscription
type SubscriptionChannel string

const (
	ChannelEmail SubscriptionChannel = "email"
	ChannelSlack SubscriptionChannel = "slack"
)

// String returns the string representation of the channel
func (c SubscriptionChannel) String() string {
	return string(c)
}

// Valid checks if the channel is valid
func (c SubscriptionChannel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSlack:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for SubscriptionChannel
func (c *SubscriptionChannel) Scan(value any) error {
	if value == nil {
		*c = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*c = SubscriptionChannel(v)
	case []byte:
		*c = SubscriptionChannel(string(v))
	default:
		return fmt.Errorf("cannot scan %T into SubscriptionChannel", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for SubscriptionChannel
func (c SubscriptionChannel) Value() (driver.Value, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid SubscriptionChannel: %s", c)
	}
	return string(c), nil
}

// RecurrenceSpec stores the recurrence definition as JSONB
type RecurrenceSpec struct {
	recurrence.Schedule
}

// Value implements the driver.Valuer interface for RecurrenceSpec
func (s RecurrenceSpec) Value() (driver.Value, error) {
	return json.Marshal(s.Schedule)
}

// Scan implements the sql.Scanner interface for RecurrenceSpec
func (s *RecurrenceSpec) Scan(value any) error {
	if value == nil {
		*s = RecurrenceSpec{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into RecurrenceSpec", value)
	}

	return json.Unmarshal(bytes, &s.Schedule)
}

// Subscription represents a standing request to periodically deliver a
// report or dashboard through a notification channel.
//
// Exactly one of ReportID / DashboardID is set. next_due_at is never set in
// the past: every recomputation anchors at now plus the scheduling buffer.
type Subscription struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:uk_subscriptions_uuid" json:"uuid"`
	TeamID      uint                `gorm:"not null;index:idx_subscriptions_team_id" json:"team_id"`
	ReportID    *uint               `gorm:"index:idx_subscriptions_report_id" json:"report_id,omitempty"`
	DashboardID *uint               `gorm:"index:idx_subscriptions_dashboard_id" json:"dashboard_id,omitempty"`
	Channel     SubscriptionChannel `gorm:"type:subscription_channel;not null" json:"channel"`

	// Email channel: recipient set, order-insensitive
	Recipients pq.StringArray `gorm:"type:text[]" json:"recipients,omitempty"`

	// Slack channel: target channel identifier and display name
	SlackChannelID   *string `gorm:"type:varchar(64)" json:"slack_channel_id,omitempty"`
	SlackChannelName *string `gorm:"type:varchar(255)" json:"slack_channel_name,omitempty"`

	Title      string         `gorm:"type:varchar(400)" json:"title"`
	Recurrence RecurrenceSpec `gorm:"type:jsonb;not null" json:"recurrence"`
	NextDueAt  *time.Time     `gorm:"index:idx_subscriptions_next_due_at" json:"next_due_at,omitempty"`
	Deleted    bool           `gorm:"not null;default:false;index:idx_subscriptions_deleted" json:"deleted"`
	CreatedBy  uint           `gorm:"not null" json:"created_by"`
	CreatedAt  time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`

	// Relations
	Team      *Team      `gorm:"foreignKey:TeamID;references:ID" json:"team,omitempty"`
	Report    *Report    `gorm:"foreignKey:ReportID;references:ID" json:"report,omitempty"`
	Dashboard *Dashboard `gorm:"foreignKey:DashboardID;references:ID" json:"dashboard,omitempty"`
}

// TableName returns the table name for the model
func (Subscription) TableName() string {
	return "subscriptions"
}

// BeforeCreate is called before creating a new record
func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (s *Subscription) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	s.UpdatedAt = &now
	return nil
}

// TargetsReport reports whether the subscription targets a single report
func (s *Subscription) TargetsReport() bool {
	return s.ReportID != nil
}

// TargetsDashboard reports whether the subscription targets a dashboard
func (s *Subscription) TargetsDashboard() bool {
	return s.DashboardID != nil
}

// HasRecipient checks membership in the email recipient set
func (s *Subscription) HasRecipient(email string) bool {
	for _, r := range s.Recipients {
		if r == email {
			return true
		}
	}
	return false
}

// RemoveRecipient removes an email from the recipient set. It returns false
// when the recipient was already absent, which callers treat as a no-op.
func (s *Subscription) RemoveRecipient(email string) bool {
	for i, r := range s.Recipients {
		if r == email {
			s.Recipients = append(s.Recipients[:i], s.Recipients[i+1:]...)
			return true
		}
	}
	return false
}

// NewRecipientsSince returns the recipients present now but absent from the
// previous set. Order follows the current recipient list.
func (s *Subscription) NewRecipientsSince(previous []string) []string {
	prev := make(map[string]struct{}, len(previous))
	for _, r := range previous {
		prev[r] = struct{}{}
	}
	var added []string
	for _, r := range s.Recipients {
		if _, ok := prev[r]; !ok {
			added = append(added, r)
		}
	}
	return added
}

// SubscriptionFilter represents filter criteria for subscriptions
type SubscriptionFilter struct {
	ID          *uint                `json:"id,omitempty"`
	UUID        *uuid.UUID           `json:"uuid,omitempty"`
	TeamID      *uint                `json:"team_id,omitempty"`
	ReportID    *uint                `json:"report_id,omitempty"`
	DashboardID *uint                `json:"dashboard_id,omitempty"`
	Channel     *SubscriptionChannel `json:"channel,omitempty"`
	Deleted     *bool                `json:"deleted,omitempty"`
	DueBefore   *time.Time           `json:"due_before,omitempty"`
}
