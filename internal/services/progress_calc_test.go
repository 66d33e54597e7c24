package services

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/lessonreel/lessonreel-backend/internal/types"
)

func completedSet(t *testing.T, ids ...uuid.UUID) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(ids)
	if err != nil {
		t.Fatalf("marshal milestone set: %v", err)
	}
	return datatypes.JSON(raw)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeProgressTwoMilestoneRollup(t *testing.T) {
	videoID := uuid.New()
	m1 := &types.Milestone{ID: uuid.New(), VideoID: videoID, IsRequired: true}
	m2 := &types.Milestone{ID: uuid.New(), VideoID: videoID, IsRequired: true}
	q1 := &types.Question{ID: uuid.New(), MilestoneID: m1.ID, Type: "MULTIPLE_CHOICE", Points: 1}
	q2 := &types.Question{ID: uuid.New(), MilestoneID: m2.ID, Type: "TRUE_FALSE", Points: 1}

	now := time.Now()
	in := ProgressInput{
		Videos:     []*types.Video{{ID: videoID}},
		Milestones: []*types.Milestone{m1, m2},
		Questions:  []*types.Question{q1, q2},
		Sessions: []*types.VideoSession{{
			ID:                  uuid.New(),
			VideoID:             videoID,
			Status:              types.SessionCompleted,
			CompletedMilestones: completedSet(t, m1.ID, m2.ID),
			WatchTimeSeconds:    300,
			CompletedAt:         &now,
		}},
		Attempts: []*types.Attempt{
			{QuestionID: q1.ID, AttemptNumber: 1, Score: 1.0, IsCorrect: true},
			{QuestionID: q2.ID, AttemptNumber: 2, Score: 0.0, IsCorrect: false},
		},
	}

	totals, grade := ComputeProgress(in)

	if totals.TotalMilestones != 2 || totals.CompletedMilestones != 2 {
		t.Fatalf("milestones = %d/%d, want 2/2", totals.CompletedMilestones, totals.TotalMilestones)
	}
	if !almostEqual(totals.AverageScore, 50.0) {
		t.Fatalf("averageScore = %v, want 50.0", totals.AverageScore)
	}
	if totals.TotalTimeSpentSeconds != 300 {
		t.Fatalf("totalTimeSpent = %d, want 300", totals.TotalTimeSpentSeconds)
	}
	if totals.IsCompleted {
		t.Fatal("isCompleted = true, want false: q2's latest attempt is incorrect")
	}

	if grade.TotalPoints != 2 || !almostEqual(grade.EarnedPoints, 1.0) {
		t.Fatalf("points = %v/%d, want 1/2", grade.EarnedPoints, grade.TotalPoints)
	}
	if !almostEqual(grade.PercentageScore, 50.0) {
		t.Fatalf("percentageScore = %v, want 50.0", grade.PercentageScore)
	}

	mb1 := grade.Breakdown.Milestones[m1.ID]
	if mb1.TotalPoints != 1 || !almostEqual(mb1.EarnedPoints, 1.0) || mb1.Attempts != 1 {
		t.Fatalf("m1 breakdown = %+v", mb1)
	}
	tf := grade.Breakdown.QuestionTypes["TRUE_FALSE"]
	if tf.Attempted != 1 || tf.Correct != 0 || !almostEqual(tf.Accuracy, 0.0) {
		t.Fatalf("TRUE_FALSE breakdown = %+v", tf)
	}
}

func TestComputeProgressCompletedLesson(t *testing.T) {
	videoID := uuid.New()
	m1 := &types.Milestone{ID: uuid.New(), VideoID: videoID, IsRequired: true}
	q1 := &types.Question{ID: uuid.New(), MilestoneID: m1.ID, Type: "MULTIPLE_CHOICE", Points: 2}

	in := ProgressInput{
		Videos:     []*types.Video{{ID: videoID}},
		Milestones: []*types.Milestone{m1},
		Questions:  []*types.Question{q1},
		Sessions: []*types.VideoSession{{
			ID:                  uuid.New(),
			VideoID:             videoID,
			Status:              types.SessionCompleted,
			CompletedMilestones: completedSet(t, m1.ID),
		}},
		Attempts: []*types.Attempt{
			{QuestionID: q1.ID, AttemptNumber: 1, Score: 1.0, IsCorrect: true},
		},
	}

	totals, grade := ComputeProgress(in)
	if !totals.IsCompleted {
		t.Fatal("isCompleted = false, want true")
	}
	if !almostEqual(grade.PercentageScore, 100.0) {
		t.Fatalf("percentageScore = %v, want 100.0", grade.PercentageScore)
	}
}

func TestComputeProgressCompletedMilestonesCapped(t *testing.T) {
	videoID := uuid.New()
	m1 := &types.Milestone{ID: uuid.New(), VideoID: videoID}

	// The session's set carries an id the lesson no longer knows about
	// (milestone deleted after the reach was recorded).
	in := ProgressInput{
		Videos:     []*types.Video{{ID: videoID}},
		Milestones: []*types.Milestone{m1},
		Sessions: []*types.VideoSession{{
			ID:                  uuid.New(),
			VideoID:             videoID,
			Status:              types.SessionActive,
			CompletedMilestones: completedSet(t, m1.ID, uuid.New(), uuid.New()),
		}},
	}

	totals, _ := ComputeProgress(in)
	if totals.CompletedMilestones > totals.TotalMilestones {
		t.Fatalf("completed %d > total %d", totals.CompletedMilestones, totals.TotalMilestones)
	}
	if totals.CompletedMilestones != 1 {
		t.Fatalf("completedMilestones = %d, want 1", totals.CompletedMilestones)
	}
}

func TestComputeProgressNotCompletedWhenSessionActive(t *testing.T) {
	videoID := uuid.New()
	m1 := &types.Milestone{ID: uuid.New(), VideoID: videoID, IsRequired: true}

	in := ProgressInput{
		Videos:     []*types.Video{{ID: videoID}},
		Milestones: []*types.Milestone{m1},
		Sessions: []*types.VideoSession{{
			ID:                  uuid.New(),
			VideoID:             videoID,
			Status:              types.SessionActive,
			CompletedMilestones: completedSet(t, m1.ID),
		}},
	}

	totals, _ := ComputeProgress(in)
	if totals.IsCompleted {
		t.Fatal("isCompleted = true, want false: session still active")
	}
}

func TestComputeProgressNotCompletedWhenVideoUncovered(t *testing.T) {
	v1 := uuid.New()
	v2 := uuid.New()
	m1 := &types.Milestone{ID: uuid.New(), VideoID: v1, IsRequired: false}

	in := ProgressInput{
		Videos:     []*types.Video{{ID: v1}, {ID: v2}},
		Milestones: []*types.Milestone{m1},
		Sessions: []*types.VideoSession{{
			ID:      uuid.New(),
			VideoID: v1,
			Status:  types.SessionCompleted,
		}},
	}

	totals, _ := ComputeProgress(in)
	if totals.IsCompleted {
		t.Fatal("isCompleted = true, want false: second video never watched")
	}
}

func TestComputeProgressEmptyInput(t *testing.T) {
	totals, grade := ComputeProgress(ProgressInput{})
	if totals.TotalMilestones != 0 || totals.CompletedMilestones != 0 {
		t.Fatalf("milestones = %d/%d, want 0/0", totals.CompletedMilestones, totals.TotalMilestones)
	}
	if !almostEqual(totals.AverageScore, 0) || !almostEqual(grade.PercentageScore, 0) {
		t.Fatalf("scores = %v/%v, want 0/0", totals.AverageScore, grade.PercentageScore)
	}
	if totals.IsCompleted {
		t.Fatal("isCompleted = true for empty input")
	}
}
