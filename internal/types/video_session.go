package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SessionActive    = "ACTIVE"
	SessionPaused    = "PAUSED"
	SessionCompleted = "COMPLETED"
)

// VideoSession is a student's playback record for one video. One row per
// (student_id, video_id), created lazily on first start. CompletedMilestones
// is a jsonb uuid array mutated only inside the session transaction.
type VideoSession struct {
	ID                  uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StudentID           uuid.UUID      `gorm:"type:uuid;not null;index:idx_student_video,unique" json:"student_id"`
	Student             *Student       `gorm:"constraint:OnDelete:CASCADE;foreignKey:StudentID;references:ID" json:"student,omitempty"`
	VideoID             uuid.UUID      `gorm:"type:uuid;not null;index:idx_student_video,unique" json:"video_id"`
	Video               *Video         `gorm:"constraint:OnDelete:CASCADE;foreignKey:VideoID;references:ID" json:"video,omitempty"`
	Status              string         `gorm:"not null;default:'ACTIVE'" json:"status"`
	CurrentPosition     float64        `gorm:"column:current_position;not null;default:0" json:"current_position"`
	CompletedMilestones datatypes.JSON `gorm:"type:jsonb;column:completed_milestones" json:"completed_milestones"`
	LastMilestoneID     *uuid.UUID     `gorm:"type:uuid;column:last_milestone_id" json:"last_milestone_id,omitempty"`
	WatchTimeSeconds    int            `gorm:"column:watch_time_seconds;not null;default:0" json:"watch_time_seconds"`
	StartedAt           time.Time      `gorm:"column:started_at;not null;default:now()" json:"started_at"`
	LastSeenAt          time.Time      `gorm:"column:last_seen_at;not null;default:now()" json:"last_seen_at"`
	CompletedAt         *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt           time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (VideoSession) TableName() string { return "video_session" }

// CompletedMilestoneIDs decodes the jsonb array. A corrupt or empty payload
// decodes to an empty set rather than an error.
func (s *VideoSession) CompletedMilestoneIDs() []uuid.UUID {
	if len(s.CompletedMilestones) == 0 {
		return nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(s.CompletedMilestones, &ids); err != nil {
		return nil
	}
	return ids
}

func (s *VideoSession) HasCompletedMilestone(id uuid.UUID) bool {
	for _, m := range s.CompletedMilestoneIDs() {
		if m == id {
			return true
		}
	}
	return false
}

// AddCompletedMilestone inserts id into the set and reports whether the set
// changed. Re-adding an existing milestone is a no-op.
func (s *VideoSession) AddCompletedMilestone(id uuid.UUID) bool {
	ids := s.CompletedMilestoneIDs()
	for _, m := range ids {
		if m == id {
			return false
		}
	}
	ids = append(ids, id)
	raw, err := json.Marshal(ids)
	if err != nil {
		return false
	}
	s.CompletedMilestones = datatypes.JSON(raw)
	return true
}
