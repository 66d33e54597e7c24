package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/types"
)

func SeedStudent(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.Student {
	tb.Helper()
	s := &types.Student{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "A",
		LastName:  "B",
		Role:      types.RoleStudent,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed student: %v", err)
	}
	return s
}

func SeedLesson(tb testing.TB, ctx context.Context, tx *gorm.DB, createdBy uuid.UUID) *types.Lesson {
	tb.Helper()
	l := &types.Lesson{
		ID:        uuid.New(),
		Title:     "lesson",
		CreatedBy: createdBy,
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed lesson: %v", err)
	}
	return l
}

func SeedVideo(tb testing.TB, ctx context.Context, tx *gorm.DB, lessonID uuid.UUID) *types.Video {
	tb.Helper()
	duration := 600.0
	v := &types.Video{
		ID:              uuid.New(),
		LessonID:        lessonID,
		Title:           "video",
		SourceRef:       "videos/" + uuid.NewString(),
		DurationSeconds: &duration,
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed video: %v", err)
	}
	return v
}

func SeedMilestone(tb testing.TB, ctx context.Context, tx *gorm.DB, videoID uuid.UUID, timestampSeconds float64, order int) *types.Milestone {
	tb.Helper()
	m := &types.Milestone{
		ID:               uuid.New(),
		VideoID:          videoID,
		TimestampSeconds: timestampSeconds,
		SortOrder:        order,
		Title:            "milestone",
		IsRequired:       true,
		RetryLimit:       types.DefaultRetryLimit,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed milestone: %v", err)
	}
	return m
}

func SeedQuestion(tb testing.TB, ctx context.Context, tx *gorm.DB, milestoneID uuid.UUID) *types.Question {
	tb.Helper()
	q := &types.Question{
		ID:            uuid.New(),
		MilestoneID:   milestoneID,
		Type:          "TRUE_FALSE",
		PromptMD:      "prompt",
		QuestionData:  datatypes.JSON([]byte(`{"correctAnswer":true}`)),
		Points:        1,
		PassThreshold: 0.7,
		Source:        "manual",
	}
	if err := tx.WithContext(ctx).Create(q).Error; err != nil {
		tb.Fatalf("seed question: %v", err)
	}
	return q
}

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, studentID, videoID uuid.UUID) *types.VideoSession {
	tb.Helper()
	now := time.Now().UTC()
	s := &types.VideoSession{
		ID:                  uuid.New(),
		StudentID:           studentID,
		VideoID:             videoID,
		Status:              types.SessionActive,
		CompletedMilestones: datatypes.JSON([]byte(`[]`)),
		StartedAt:           now,
		LastSeenAt:          now,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}
