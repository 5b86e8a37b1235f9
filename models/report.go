package models

import (
	"time"

	"github.com/amirphl/Hachiko/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Report represents a single renderable report owned by a team
type Report struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_reports_uuid" json:"uuid"`
	TeamID    uint       `gorm:"not null;index:idx_reports_team_id" json:"team_id"`
	Name      string     `gorm:"type:varchar(400);not null" json:"name"`
	Deleted   bool       `gorm:"not null;default:false;index:idx_reports_deleted" json:"deleted"`
	CreatedBy uint       `gorm:"not null" json:"created_by"`
	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Team *Team `gorm:"foreignKey:TeamID;references:ID" json:"team,omitempty"`
}

// TableName returns the table name for the model
func (Report) TableName() string {
	return "reports"
}

// BeforeCreate is called before creating a new record
func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (r *Report) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	r.UpdatedAt = &now
	return nil
}

// ReportFilter represents filter criteria for reports
type ReportFilter struct {
	ID      *uint      `json:"id,omitempty"`
	UUID    *uuid.UUID `json:"uuid,omitempty"`
	TeamID  *uint      `json:"team_id,omitempty"`
	Deleted *bool      `json:"deleted,omitempty"`
}
