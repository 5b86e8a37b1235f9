package models

import (
	"time"

	"github.com/amirphl/Hachiko/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Team represents an owning team for reports, dashboards and subscriptions
type Team struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_teams_uuid" json:"uuid"`
	Name         string     `gorm:"type:varchar(255);not null" json:"name"`
	IsActive     *bool      `gorm:"not null;default:true" json:"is_active"`
	LastActiveAt *time.Time `gorm:"index:idx_teams_last_active_at" json:"last_active_at,omitempty"`
	CreatedAt    time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Team) TableName() string {
	return "teams"
}

// BeforeCreate is called before creating a new record
func (t *Team) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (t *Team) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	t.UpdatedAt = &now
	return nil
}

// ActiveWithin reports whether the team has been active within the given window
func (t *Team) ActiveWithin(window time.Duration) bool {
	if !utils.IsTrue(t.IsActive) {
		return false
	}
	if t.LastActiveAt == nil {
		return false
	}
	return t.LastActiveAt.After(utils.UTCNow().Add(-window))
}

// TeamFilter represents filter criteria for teams
type TeamFilter struct {
	ID           *uint      `json:"id,omitempty"`
	UUID         *uuid.UUID `json:"uuid,omitempty"`
	IsActive     *bool      `json:"is_active,omitempty"`
	ActiveAfter  *time.Time `json:"active_after,omitempty"`
	ActiveBefore *time.Time `json:"active_before,omitempty"`
}
