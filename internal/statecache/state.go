package statecache

import (
	"time"

	"github.com/google/uuid"

	"github.com/lessonreel/lessonreel-backend/internal/types"
)

// VideoState is the projection UI consumers share for one video: the video
// row, its milestones sorted by timestamp, questions grouped per milestone,
// and the derived counts.
type VideoState struct {
	Video                 *types.Video                   `json:"video"`
	Milestones            []*types.Milestone             `json:"milestones"`
	Questions             map[uuid.UUID][]*types.Question `json:"questions"`
	TotalMilestones       int                            `json:"total_milestones"`
	TotalQuestions        int                            `json:"total_questions"`
	QuestionsPerMilestone map[uuid.UUID]int              `json:"questions_per_milestone"`
	LoadedAt              time.Time                      `json:"loaded_at"`
}

// SessionState is the projection for one session: the session row plus the
// latest attempt per question.
type SessionState struct {
	Session  *types.VideoSession `json:"session"`
	Answers  []*types.Attempt    `json:"answers"`
	LoadedAt time.Time           `json:"loaded_at"`
}

// RebuildDerived recomputes the counts from the entity slices. Mutation
// callbacks edit the slices and let the cache call this afterwards.
func (s *VideoState) RebuildDerived() {
	s.TotalMilestones = len(s.Milestones)
	s.TotalQuestions = 0
	s.QuestionsPerMilestone = make(map[uuid.UUID]int, len(s.Milestones))
	for _, m := range s.Milestones {
		n := len(s.Questions[m.ID])
		s.QuestionsPerMilestone[m.ID] = n
		s.TotalQuestions += n
	}
}

// Clone deep-copies the state so a staged mutation can be discarded when
// persistence fails. Entity structs are copied by value.
func (s *VideoState) Clone() *VideoState {
	if s == nil {
		return nil
	}
	cp := &VideoState{
		TotalMilestones: s.TotalMilestones,
		TotalQuestions:  s.TotalQuestions,
		LoadedAt:        s.LoadedAt,
	}
	if s.Video != nil {
		v := *s.Video
		cp.Video = &v
	}
	cp.Milestones = make([]*types.Milestone, len(s.Milestones))
	for i, m := range s.Milestones {
		mv := *m
		cp.Milestones[i] = &mv
	}
	cp.Questions = make(map[uuid.UUID][]*types.Question, len(s.Questions))
	for k, qs := range s.Questions {
		qcp := make([]*types.Question, len(qs))
		for i, q := range qs {
			qv := *q
			qcp[i] = &qv
		}
		cp.Questions[k] = qcp
	}
	cp.QuestionsPerMilestone = make(map[uuid.UUID]int, len(s.QuestionsPerMilestone))
	for k, v := range s.QuestionsPerMilestone {
		cp.QuestionsPerMilestone[k] = v
	}
	return cp
}

func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	cp := &SessionState{LoadedAt: s.LoadedAt}
	if s.Session != nil {
		sv := *s.Session
		cp.Session = &sv
	}
	cp.Answers = make([]*types.Attempt, len(s.Answers))
	for i, a := range s.Answers {
		av := *a
		cp.Answers[i] = &av
	}
	return cp
}
