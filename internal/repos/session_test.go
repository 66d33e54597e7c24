package repos

import (
	"context"
	"testing"

	"github.com/lessonreel/lessonreel-backend/internal/repos/testutil"
)

func TestSessionRepoUniquePerStudentVideo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewSessionRepo(db, testutil.Logger(t))

	student := testutil.SeedStudent(t, ctx, tx, "sessionrepo@example.com")
	lesson := testutil.SeedLesson(t, ctx, tx, student.ID)
	video := testutil.SeedVideo(t, ctx, tx, lesson.ID)
	session := testutil.SeedSession(t, ctx, tx, student.ID, video.ID)

	found, err := repo.GetByStudentAndVideo(ctx, tx, student.ID, video.ID)
	if err != nil {
		t.Fatalf("GetByStudentAndVideo: %v", err)
	}
	if found == nil || found.ID != session.ID {
		t.Fatalf("expected the seeded session, got %+v", found)
	}

	locked, err := repo.GetByIDForUpdate(ctx, tx, session.ID)
	if err != nil {
		t.Fatalf("GetByIDForUpdate: %v", err)
	}
	if locked == nil || locked.ID != session.ID {
		t.Fatalf("expected locked read of the seeded session")
	}

	if err := repo.UpdateFields(ctx, tx, session.ID, map[string]any{"current_position": 42.5}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	updated, err := repo.GetByID(ctx, tx, session.ID)
	if err != nil || updated == nil {
		t.Fatalf("GetByID after update: err=%v", err)
	}
	if updated.CurrentPosition != 42.5 {
		t.Fatalf("current_position want=42.5 got=%v", updated.CurrentPosition)
	}
}
