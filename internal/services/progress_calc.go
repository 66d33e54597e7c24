package services

import (
	"github.com/google/uuid"

	"github.com/lessonreel/lessonreel-backend/internal/types"
)

// ProgressInput is everything the rollup math needs, loaded up front so the
// computation itself stays pure and testable without a database.
type ProgressInput struct {
	Videos     []*types.Video
	Milestones []*types.Milestone
	Questions  []*types.Question
	Sessions   []*types.VideoSession
	Attempts   []*types.Attempt
}

type ProgressTotals struct {
	TotalMilestones       int
	CompletedMilestones   int
	AverageScore          float64
	TotalTimeSpentSeconds int
	IsCompleted           bool
}

type MilestoneBreakdown struct {
	TotalPoints  int     `json:"total_points"`
	EarnedPoints float64 `json:"earned_points"`
	Attempts     int     `json:"attempts"`
}

type TypeBreakdown struct {
	Attempted int     `json:"attempted"`
	Correct   int     `json:"correct"`
	Accuracy  float64 `json:"accuracy"`
}

type GradeBreakdown struct {
	Milestones    map[uuid.UUID]MilestoneBreakdown `json:"milestones"`
	QuestionTypes map[string]TypeBreakdown         `json:"question_types"`
}

type GradeTotals struct {
	TotalPoints     int
	EarnedPoints    float64
	PercentageScore float64
	Breakdown       GradeBreakdown
}

// ComputeProgress derives the lesson rollup from the raw rows. Attempts are
// latest-only per (student, question), so each attempt row is the question's
// most recent score.
func ComputeProgress(in ProgressInput) (ProgressTotals, GradeTotals) {
	milestonesByID := make(map[uuid.UUID]*types.Milestone, len(in.Milestones))
	for _, m := range in.Milestones {
		milestonesByID[m.ID] = m
	}
	questionsByID := make(map[uuid.UUID]*types.Question, len(in.Questions))
	for _, q := range in.Questions {
		questionsByID[q.ID] = q
	}
	attemptsByQuestion := make(map[uuid.UUID]*types.Attempt, len(in.Attempts))
	for _, a := range in.Attempts {
		attemptsByQuestion[a.QuestionID] = a
	}

	reached := make(map[uuid.UUID]bool)
	totalWatch := 0
	allSessionsCompleted := len(in.Sessions) > 0
	sessionVideos := make(map[uuid.UUID]bool, len(in.Sessions))
	for _, s := range in.Sessions {
		totalWatch += s.WatchTimeSeconds
		sessionVideos[s.VideoID] = true
		if s.Status != types.SessionCompleted {
			allSessionsCompleted = false
		}
		for _, id := range s.CompletedMilestoneIDs() {
			if _, known := milestonesByID[id]; known {
				reached[id] = true
			}
		}
	}
	everyVideoCovered := true
	for _, v := range in.Videos {
		if !sessionVideos[v.ID] {
			everyVideoCovered = false
		}
	}

	completed := len(reached)
	if completed > len(in.Milestones) {
		completed = len(in.Milestones)
	}

	var scoreSum float64
	scored := 0
	for _, a := range in.Attempts {
		if _, known := questionsByID[a.QuestionID]; !known {
			continue
		}
		scoreSum += a.Score
		scored++
	}
	avg := 0.0
	if scored > 0 {
		avg = scoreSum / float64(scored) * 100
	}

	requiredReached := true
	for _, m := range in.Milestones {
		if m.IsRequired && !reached[m.ID] {
			requiredReached = false
		}
	}
	requiredCorrect := true
	grade := GradeTotals{Breakdown: GradeBreakdown{
		Milestones:    make(map[uuid.UUID]MilestoneBreakdown, len(in.Milestones)),
		QuestionTypes: make(map[string]TypeBreakdown),
	}}
	for _, q := range in.Questions {
		grade.TotalPoints += q.Points
		mb := grade.Breakdown.Milestones[q.MilestoneID]
		mb.TotalPoints += q.Points
		tb := grade.Breakdown.QuestionTypes[q.Type]

		if a, ok := attemptsByQuestion[q.ID]; ok {
			earned := a.Score * float64(q.Points)
			grade.EarnedPoints += earned
			mb.EarnedPoints += earned
			mb.Attempts += a.AttemptNumber
			tb.Attempted++
			if a.IsCorrect {
				tb.Correct++
			} else if requiredQuestion(q, milestonesByID) {
				requiredCorrect = false
			}
		} else if requiredQuestion(q, milestonesByID) {
			requiredCorrect = false
		}

		if tb.Attempted > 0 {
			tb.Accuracy = float64(tb.Correct) / float64(tb.Attempted)
		}
		grade.Breakdown.Milestones[q.MilestoneID] = mb
		grade.Breakdown.QuestionTypes[q.Type] = tb
	}
	if grade.TotalPoints > 0 {
		grade.PercentageScore = grade.EarnedPoints / float64(grade.TotalPoints) * 100
	}

	totals := ProgressTotals{
		TotalMilestones:       len(in.Milestones),
		CompletedMilestones:   completed,
		AverageScore:          avg,
		TotalTimeSpentSeconds: totalWatch,
		IsCompleted:           requiredReached && requiredCorrect && allSessionsCompleted && everyVideoCovered,
	}
	return totals, grade
}

func requiredQuestion(q *types.Question, milestones map[uuid.UUID]*types.Milestone) bool {
	m, ok := milestones[q.MilestoneID]
	return ok && m.IsRequired
}
