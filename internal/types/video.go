package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Video metadata fields are nullable: the media probe is an external
// collaborator and a failed probe must not fail video creation.
type Video struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LessonID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"lesson_id"`
	Lesson          *Lesson        `gorm:"constraint:OnDelete:CASCADE;foreignKey:LessonID;references:ID" json:"lesson,omitempty"`
	Title           string         `gorm:"not null" json:"title"`
	SourceRef       string         `gorm:"column:source_ref;not null" json:"source_ref"`
	DurationSeconds *float64       `gorm:"column:duration_seconds" json:"duration_seconds,omitempty"`
	SizeBytes       *int64         `gorm:"column:size_bytes" json:"size_bytes,omitempty"`
	ThumbnailRef    *string        `gorm:"column:thumbnail_ref" json:"thumbnail_ref,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Video) TableName() string { return "video" }
