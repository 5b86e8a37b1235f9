package models

import (
	"time"

	"github.com/amirphl/Hachiko/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dashboard represents an ordered collection of reports owned by a team
type Dashboard struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_dashboards_uuid" json:"uuid"`
	TeamID    uint       `gorm:"not null;index:idx_dashboards_team_id" json:"team_id"`
	Name      string     `gorm:"type:varchar(400);not null" json:"name"`
	Deleted   bool       `gorm:"not null;default:false;index:idx_dashboards_deleted" json:"deleted"`
	CreatedBy uint       `gorm:"not null" json:"created_by"`
	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Team  *Team           `gorm:"foreignKey:TeamID;references:ID" json:"team,omitempty"`
	Tiles []DashboardTile `gorm:"foreignKey:DashboardID" json:"tiles,omitempty"`
}

// TableName returns the table name for the model
func (Dashboard) TableName() string {
	return "dashboards"
}

// BeforeCreate is called before creating a new record
func (d *Dashboard) BeforeCreate(tx *gorm.DB) error {
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (d *Dashboard) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	d.UpdatedAt = &now
	return nil
}

// DashboardTile attaches a report to a dashboard at a layout position.
// LayoutRow and LayoutCol are the vertical and horizontal positions used
// for delivery ordering, tie-broken by tile ID (stable insertion order).
type DashboardTile struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DashboardID uint      `gorm:"not null;index:idx_dashboard_tiles_dashboard_id" json:"dashboard_id"`
	ReportID    uint      `gorm:"not null;index:idx_dashboard_tiles_report_id" json:"report_id"`
	LayoutRow   int       `gorm:"not null;default:0" json:"layout_row"`
	LayoutCol   int       `gorm:"not null;default:0" json:"layout_col"`
	CreatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Dashboard *Dashboard `gorm:"foreignKey:DashboardID;references:ID" json:"dashboard,omitempty"`
	Report    *Report    `gorm:"foreignKey:ReportID;references:ID" json:"report,omitempty"`
}

// TableName returns the table name for the model
func (DashboardTile) TableName() string {
	return "dashboard_tiles"
}

// BeforeCreate is called before creating a new record
func (t *DashboardTile) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = utils.UTCNow()
	}
	return nil
}

// DashboardFilter represents filter criteria for dashboards
type DashboardFilter struct {
	ID      *uint      `json:"id,omitempty"`
	UUID    *uuid.UUID `json:"uuid,omitempty"`
	TeamID  *uint      `json:"team_id,omitempty"`
	Deleted *bool      `json:"deleted,omitempty"`
}
