package services

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/apierr"
	"github.com/lessonreel/lessonreel-backend/internal/platform/ctxutil"
	"github.com/lessonreel/lessonreel-backend/internal/repos"
	"github.com/lessonreel/lessonreel-backend/internal/repos/testutil"
	"github.com/lessonreel/lessonreel-backend/internal/statecache"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

type sessionHarness struct {
	tx          *gorm.DB
	svc         SessionService
	sessionRepo repos.SessionRepo
	attemptRepo repos.AttemptRepo
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	videoRepo := repos.NewVideoRepo(tx, log)
	milestoneRepo := repos.NewMilestoneRepo(tx, log)
	questionRepo := repos.NewQuestionRepo(tx, log)
	sessionRepo := repos.NewSessionRepo(tx, log)
	attemptRepo := repos.NewAttemptRepo(tx, log)
	progressRepo := repos.NewProgressRepo(tx, log)
	gradeRepo := repos.NewGradeRepo(tx, log)

	loader := NewStateLoader(tx, log, videoRepo, milestoneRepo, questionRepo, sessionRepo, attemptRepo)
	cache := statecache.New(log, loader, statecache.DefaultTTL, nil)
	progressSvc := NewProgressService(tx, log, videoRepo, milestoneRepo, questionRepo, sessionRepo, attemptRepo, progressRepo, gradeRepo)
	svc := NewSessionService(tx, log, cache, nil, videoRepo, milestoneRepo, questionRepo, sessionRepo, attemptRepo, progressSvc)

	return &sessionHarness{tx: tx, svc: svc, sessionRepo: sessionRepo, attemptRepo: attemptRepo}
}

func studentCtx(studentID uuid.UUID) context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{
		StudentID: studentID,
		Role:      types.RoleStudent,
	})
}

func TestStartSessionIdempotent(t *testing.T) {
	h := newSessionHarness(t)
	seedCtx := context.Background()

	student := testutil.SeedStudent(t, seedCtx, h.tx, "start-idem@example.com")
	lesson := testutil.SeedLesson(t, seedCtx, h.tx, student.ID)
	video := testutil.SeedVideo(t, seedCtx, h.tx, lesson.ID)
	ctx := studentCtx(student.ID)

	first, err := h.svc.Start(ctx, video.ID)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second, err := h.svc.Start(ctx, video.ID)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("Start must resume the existing session: first=%s second=%s", first.ID, second.ID)
	}
	if second.Status != types.SessionActive {
		t.Fatalf("resumed session status want=ACTIVE got=%s", second.Status)
	}
}

func TestMarkMilestoneReachedDuplicateIsNoOp(t *testing.T) {
	h := newSessionHarness(t)
	seedCtx := context.Background()

	student := testutil.SeedStudent(t, seedCtx, h.tx, "reach-idem@example.com")
	lesson := testutil.SeedLesson(t, seedCtx, h.tx, student.ID)
	video := testutil.SeedVideo(t, seedCtx, h.tx, lesson.ID)
	milestone := testutil.SeedMilestone(t, seedCtx, h.tx, video.ID, 30, 0)
	session := testutil.SeedSession(t, seedCtx, h.tx, student.ID, video.ID)
	ctx := studentCtx(student.ID)

	if err := h.svc.MarkMilestoneReached(ctx, session.ID, milestone.ID, 30); err != nil {
		t.Fatalf("first reach: %v", err)
	}
	afterFirst, err := h.sessionRepo.GetByID(seedCtx, h.tx, session.ID)
	if err != nil || afterFirst == nil {
		t.Fatalf("GetByID after first reach: err=%v", err)
	}
	if got := len(afterFirst.CompletedMilestoneIDs()); got != 1 {
		t.Fatalf("completed set size want=1 got=%d", got)
	}
	if afterFirst.CurrentPosition != 30 {
		t.Fatalf("currentPosition want=30 got=%v", afterFirst.CurrentPosition)
	}

	// the duplicate reach carries a later timestamp; a no-op must not write it
	if err := h.svc.MarkMilestoneReached(ctx, session.ID, milestone.ID, 45); err != nil {
		t.Fatalf("duplicate reach: %v", err)
	}
	afterSecond, err := h.sessionRepo.GetByID(seedCtx, h.tx, session.ID)
	if err != nil || afterSecond == nil {
		t.Fatalf("GetByID after duplicate reach: err=%v", err)
	}
	if got := len(afterSecond.CompletedMilestoneIDs()); got != 1 {
		t.Fatalf("duplicate reach grew the set: size=%d", got)
	}
	if afterSecond.CurrentPosition != 30 {
		t.Fatalf("duplicate reach overwrote currentPosition: got=%v", afterSecond.CurrentPosition)
	}
	if !afterSecond.LastSeenAt.Equal(afterFirst.LastSeenAt) {
		t.Fatalf("duplicate reach touched lastSeenAt")
	}
}

func TestMarkMilestoneReachedCompletedSessionConflict(t *testing.T) {
	h := newSessionHarness(t)
	seedCtx := context.Background()

	student := testutil.SeedStudent(t, seedCtx, h.tx, "reach-done@example.com")
	lesson := testutil.SeedLesson(t, seedCtx, h.tx, student.ID)
	video := testutil.SeedVideo(t, seedCtx, h.tx, lesson.ID)
	milestone := testutil.SeedMilestone(t, seedCtx, h.tx, video.ID, 30, 0)
	session := testutil.SeedSession(t, seedCtx, h.tx, student.ID, video.ID)
	if err := h.sessionRepo.UpdateFields(seedCtx, h.tx, session.ID, map[string]any{"status": types.SessionCompleted}); err != nil {
		t.Fatalf("complete session: %v", err)
	}
	ctx := studentCtx(student.ID)

	err := h.svc.MarkMilestoneReached(ctx, session.ID, milestone.ID, 30)
	ae := apierr.AsError(err)
	if ae == nil || ae.Status != http.StatusConflict {
		t.Fatalf("reach on a completed session want Conflict, got %v", err)
	}

	row, err := h.sessionRepo.GetByID(seedCtx, h.tx, session.ID)
	if err != nil || row == nil {
		t.Fatalf("GetByID: err=%v", err)
	}
	if got := len(row.CompletedMilestoneIDs()); got != 0 {
		t.Fatalf("completed session was mutated: set size=%d", got)
	}
	if row.CurrentPosition != 0 {
		t.Fatalf("completed session position overwritten: got=%v", row.CurrentPosition)
	}
}

func TestSubmitAnswerRetryLimit(t *testing.T) {
	h := newSessionHarness(t)
	seedCtx := context.Background()

	student := testutil.SeedStudent(t, seedCtx, h.tx, "retry-limit@example.com")
	lesson := testutil.SeedLesson(t, seedCtx, h.tx, student.ID)
	video := testutil.SeedVideo(t, seedCtx, h.tx, lesson.ID)
	milestone := testutil.SeedMilestone(t, seedCtx, h.tx, video.ID, 30, 0)
	if err := h.tx.Model(&types.Milestone{}).Where("id = ?", milestone.ID).Update("retry_limit", 2).Error; err != nil {
		t.Fatalf("set retry limit: %v", err)
	}
	question := testutil.SeedQuestion(t, seedCtx, h.tx, milestone.ID)
	ctx := studentCtx(student.ID)

	session, err := h.svc.Start(ctx, video.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	first, err := h.svc.SubmitAnswer(ctx, session.ID, question.ID, milestone.ID, json.RawMessage(`false`))
	if err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if first.IsCorrect || first.AttemptNumber != 1 || first.AttemptsRemaining != 1 {
		t.Fatalf("first submission: %+v", first)
	}

	second, err := h.svc.SubmitAnswer(ctx, session.ID, question.ID, milestone.ID, json.RawMessage(`true`))
	if err != nil {
		t.Fatalf("second submission: %v", err)
	}
	if !second.IsCorrect || second.AttemptNumber != 2 || second.AttemptsRemaining != 0 {
		t.Fatalf("second submission: %+v", second)
	}

	_, err = h.svc.SubmitAnswer(ctx, session.ID, question.ID, milestone.ID, json.RawMessage(`true`))
	ae := apierr.AsError(err)
	if ae == nil || ae.Code != "retry_limit_exceeded" {
		t.Fatalf("third submission want RetryLimitExceeded, got %v", err)
	}
	if ae.Meta["attempts_used"] != 2 || ae.Meta["attempts_allowed"] != 2 {
		t.Fatalf("retry meta: %+v", ae.Meta)
	}

	// the rejected submission must not alter the stored attempt
	stored, err := h.attemptRepo.GetByStudentAndQuestion(seedCtx, h.tx, student.ID, question.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByStudentAndQuestion: err=%v", err)
	}
	if stored.AttemptNumber != 2 || !stored.IsCorrect || stored.Score != 1 {
		t.Fatalf("stored attempt changed by rejected submission: %+v", stored)
	}
}
