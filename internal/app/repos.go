package app

import (
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/repos"
)

type Repos struct {
	Student   repos.StudentRepo
	Lesson    repos.LessonRepo
	Video     repos.VideoRepo
	Milestone repos.MilestoneRepo
	Question  repos.QuestionRepo
	Session   repos.SessionRepo
	Attempt   repos.AttemptRepo
	Progress  repos.ProgressRepo
	Grade     repos.GradeRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Student:   repos.NewStudentRepo(db, log),
		Lesson:    repos.NewLessonRepo(db, log),
		Video:     repos.NewVideoRepo(db, log),
		Milestone: repos.NewMilestoneRepo(db, log),
		Question:  repos.NewQuestionRepo(db, log),
		Session:   repos.NewSessionRepo(db, log),
		Attempt:   repos.NewAttemptRepo(db, log),
		Progress:  repos.NewProgressRepo(db, log),
		Grade:     repos.NewGradeRepo(db, log),
	}
}
