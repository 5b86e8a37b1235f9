package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/Hachiko/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ArtifactFormat represents the render format of an artifact
type ArtifactFormat string

const (
	ArtifactFormatPNG ArtifactFormat = "png"
	ArtifactFormatPDF ArtifactFormat = "pdf"
)

// Valid checks if the format is valid
func (f ArtifactFormat) Valid() bool {
	switch f {
	case ArtifactFormatPNG, ArtifactFormatPDF:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ArtifactFormat
func (f *ArtifactFormat) Scan(value any) error {
	if value == nil {
		*f = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*f = ArtifactFormat(v)
	case []byte:
		*f = ArtifactFormat(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ArtifactFormat", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ArtifactFormat
func (f ArtifactFormat) Value() (driver.Value, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid ArtifactFormat: %s", f)
	}
	return string(f), nil
}

// ErrorClass classifies a failure as user-caused or system-caused so that
// operator alerting can ignore user misconfiguration.
type ErrorClass string

const (
	ErrorClassUser   ErrorClass = "user"
	ErrorClassSystem ErrorClass = "system"
)

// RenderedArtifact is a per-report, per-delivery render record. It is
// created empty before rendering starts, written exactly once by the render
// step, and only ever touched again to attach failure metadata.
type RenderedArtifact struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_rendered_artifacts_uuid" json:"uuid"`
	TeamID         uint           `gorm:"not null;index:idx_rendered_artifacts_team_id" json:"team_id"`
	SubscriptionID uint           `gorm:"not null;index:idx_rendered_artifacts_subscription_id" json:"subscription_id"`
	ReportID       uint           `gorm:"not null" json:"report_id"`
	ReportName     string         `gorm:"type:varchar(400)" json:"report_name"`
	Format         ArtifactFormat `gorm:"type:artifact_format;not null;default:'png'" json:"format"`
	Content        []byte         `gorm:"type:bytea" json:"-"`
	StorageKey     *string        `gorm:"type:varchar(512)" json:"storage_key,omitempty"`
	ErrorMessage   *string        `gorm:"type:text" json:"error_message,omitempty"`
	ErrorClass     *ErrorClass    `gorm:"type:varchar(16)" json:"error_class,omitempty"`
	CreatedAt      time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`

	// Relations
	Report *Report `gorm:"foreignKey:ReportID;references:ID" json:"report,omitempty"`
}

// TableName returns the table name for the model
func (RenderedArtifact) TableName() string {
	return "rendered_artifacts"
}

// BeforeCreate is called before creating a new record
func (a *RenderedArtifact) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}

// HasContent reports whether the render step completed for this artifact
func (a *RenderedArtifact) HasContent() bool {
	return len(a.Content) > 0 || a.StorageKey != nil
}

// Failed reports whether failure metadata is attached
func (a *RenderedArtifact) Failed() bool {
	return a.ErrorMessage != nil
}

// RenderedArtifactFilter represents filter criteria for rendered artifacts
type RenderedArtifactFilter struct {
	ID             *uint      `json:"id,omitempty"`
	UUID           *uuid.UUID `json:"uuid,omitempty"`
	TeamID         *uint      `json:"team_id,omitempty"`
	SubscriptionID *uint      `json:"subscription_id,omitempty"`
	ReportID       *uint      `json:"report_id,omitempty"`
}
