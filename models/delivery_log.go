package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/Hachiko/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryOutcome is the aggregate classification of one delivery cycle
type DeliveryOutcome string

const (
	// OutcomeCompleteSuccess means the mandatory part and every sub-part succeeded
	OutcomeCompleteSuccess DeliveryOutcome = "complete_success"
	// OutcomePartialFailure means the mandatory part succeeded but one or
	// more optional sub-parts (thread messages, individual recipients) failed
	OutcomePartialFailure DeliveryOutcome = "partial_failure"
	// OutcomeCompleteFailure means the mandatory part failed
	OutcomeCompleteFailure DeliveryOutcome = "complete_failure"
)

// Valid checks if the outcome is valid
func (o DeliveryOutcome) Valid() bool {
	switch o {
	case OutcomeCompleteSuccess, OutcomePartialFailure, OutcomeCompleteFailure:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for DeliveryOutcome
func (o *DeliveryOutcome) Scan(value any) error {
	if value == nil {
		*o = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*o = DeliveryOutcome(v)
	case []byte:
		*o = DeliveryOutcome(string(v))
	default:
		return fmt.Errorf("cannot scan %T into DeliveryOutcome", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for DeliveryOutcome
func (o DeliveryOutcome) Value() (driver.Value, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid DeliveryOutcome: %s", o)
	}
	return string(o), nil
}

// DeliveryLog records the outcome of one subscription delivery cycle for
// auditing. One row per attempted cycle, invite sends included.
type DeliveryLog struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uk_delivery_logs_uuid" json:"uuid"`
	SubscriptionID uint            `gorm:"not null;index:idx_delivery_logs_subscription_id" json:"subscription_id"`
	TeamID         uint            `gorm:"not null;index:idx_delivery_logs_team_id" json:"team_id"`
	Outcome        DeliveryOutcome `gorm:"type:delivery_outcome;not null" json:"outcome"`
	IsInvite       bool            `gorm:"not null;default:false" json:"is_invite"`
	RenderedCount  int             `gorm:"not null;default:0" json:"rendered_count"`
	ResolvedCount  int             `gorm:"not null;default:0" json:"resolved_count"`
	SentCount      int             `gorm:"not null;default:0" json:"sent_count"`
	FailedCount    int             `gorm:"not null;default:0" json:"failed_count"`
	ErrorClass     *ErrorClass     `gorm:"type:varchar(16)" json:"error_class,omitempty"`
	ErrorMessage   *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_delivery_logs_created_at" json:"created_at"`
}

// TableName returns the table name for the model
func (DeliveryLog) TableName() string {
	return "delivery_logs"
}

// BeforeCreate is called before creating a new record
func (l *DeliveryLog) BeforeCreate(tx *gorm.DB) error {
	if l.UUID == uuid.Nil {
		l.UUID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = utils.UTCNow()
	}
	return nil
}

// DeliveryLogFilter represents filter criteria for delivery logs
type DeliveryLogFilter struct {
	ID             *uint            `json:"id,omitempty"`
	SubscriptionID *uint            `json:"subscription_id,omitempty"`
	TeamID         *uint            `json:"team_id,omitempty"`
	Outcome        *DeliveryOutcome `json:"outcome,omitempty"`
	IsInvite       *bool            `json:"is_invite,omitempty"`
	CreatedAfter   *time.Time       `json:"created_after,omitempty"`
	CreatedBefore  *time.Time       `json:"created_before,omitempty"`
}
