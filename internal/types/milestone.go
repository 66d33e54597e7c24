package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultRetryLimit = 3

type Milestone struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VideoID          uuid.UUID      `gorm:"type:uuid;not null;index:idx_video_timestamp,unique" json:"video_id"`
	Video            *Video         `gorm:"constraint:OnDelete:CASCADE;foreignKey:VideoID;references:ID" json:"video,omitempty"`
	TimestampSeconds float64        `gorm:"column:timestamp_seconds;not null;index:idx_video_timestamp,unique" json:"timestamp_seconds"`
	SortOrder        int            `gorm:"column:sort_order;not null;default:0" json:"sort_order"`
	Title            string         `gorm:"not null" json:"title"`
	IsRequired       bool           `gorm:"column:is_required;not null;default:true" json:"is_required"`
	RetryLimit       int            `gorm:"column:retry_limit;not null;default:3" json:"retry_limit"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Milestone) TableName() string { return "milestone" }
