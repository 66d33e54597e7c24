package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Progress is derived by the aggregator, never hand-edited. One row per
// (student_id, lesson_id).
type Progress struct {
	ID                    uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StudentID             uuid.UUID      `gorm:"type:uuid;not null;index:idx_student_lesson,unique" json:"student_id"`
	Student               *Student       `gorm:"constraint:OnDelete:CASCADE;foreignKey:StudentID;references:ID" json:"student,omitempty"`
	LessonID              uuid.UUID      `gorm:"type:uuid;not null;index:idx_student_lesson,unique" json:"lesson_id"`
	Lesson                *Lesson        `gorm:"constraint:OnDelete:CASCADE;foreignKey:LessonID;references:ID" json:"lesson,omitempty"`
	TotalMilestones       int            `gorm:"column:total_milestones;not null;default:0" json:"total_milestones"`
	CompletedMilestones   int            `gorm:"column:completed_milestones;not null;default:0" json:"completed_milestones"`
	AverageScore          float64        `gorm:"column:average_score;not null;default:0" json:"average_score"`
	TotalTimeSpentSeconds int            `gorm:"column:total_time_spent_seconds;not null;default:0" json:"total_time_spent_seconds"`
	IsCompleted           bool           `gorm:"column:is_completed;not null;default:false" json:"is_completed"`
	CreatedAt             time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Progress) TableName() string { return "progress" }
