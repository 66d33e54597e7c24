package statecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

type fakeLoader struct {
	videoLoads   int
	sessionLoads int
	videos       map[uuid.UUID]*VideoState
	sessions     map[uuid.UUID]*SessionState
}

func (f *fakeLoader) LoadVideoState(_ context.Context, videoID uuid.UUID) (*VideoState, error) {
	f.videoLoads++
	st, ok := f.videos[videoID]
	if !ok {
		return nil, errors.New("video not found")
	}
	return st.Clone(), nil
}

func (f *fakeLoader) LoadSessionState(_ context.Context, sessionID uuid.UUID) (*SessionState, error) {
	f.sessionLoads++
	st, ok := f.sessions[sessionID]
	if !ok {
		return nil, errors.New("session not found")
	}
	return st.Clone(), nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func seedVideoState(videoID uuid.UUID) *VideoState {
	m1 := &types.Milestone{ID: uuid.New(), VideoID: videoID, TimestampSeconds: 30, Title: "m1", RetryLimit: 3}
	m2 := &types.Milestone{ID: uuid.New(), VideoID: videoID, TimestampSeconds: 90, Title: "m2", RetryLimit: 3}
	q := &types.Question{
		ID:           uuid.New(),
		MilestoneID:  m1.ID,
		Type:         "TRUE_FALSE",
		QuestionData: datatypes.JSON([]byte(`{"correctAnswer":true}`)),
		Points:       1,
	}
	st := &VideoState{
		Video:      &types.Video{ID: videoID, Title: "v"},
		Milestones: []*types.Milestone{m1, m2},
		Questions:  map[uuid.UUID][]*types.Question{m1.ID: {q}},
	}
	st.RebuildDerived()
	return st
}

func newTestCache(t *testing.T, loader *fakeLoader) *Cache {
	t.Helper()
	return New(testLogger(t), loader, DefaultTTL, nil)
}

func TestGetVideoReadThroughAndTTL(t *testing.T) {
	videoID := uuid.New()
	loader := &fakeLoader{videos: map[uuid.UUID]*VideoState{videoID: seedVideoState(videoID)}}
	cache := newTestCache(t, loader)
	ctx := context.Background()

	st, err := cache.GetVideo(ctx, videoID, false)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if st.TotalMilestones != 2 || st.TotalQuestions != 1 {
		t.Fatalf("derived counts: milestones=%d questions=%d", st.TotalMilestones, st.TotalQuestions)
	}
	if loader.videoLoads != 1 {
		t.Fatalf("loads after first get want=1 got=%d", loader.videoLoads)
	}

	// fresh entry: no second repository round-trip
	if _, err := cache.GetVideo(ctx, videoID, false); err != nil {
		t.Fatalf("second GetVideo: %v", err)
	}
	if loader.videoLoads != 1 {
		t.Fatalf("fresh entry should not reload, loads=%d", loader.videoLoads)
	}

	// forced refresh always reloads
	if _, err := cache.GetVideo(ctx, videoID, true); err != nil {
		t.Fatalf("forced GetVideo: %v", err)
	}
	if loader.videoLoads != 2 {
		t.Fatalf("forced refresh should reload, loads=%d", loader.videoLoads)
	}
}

func TestMutateVideoVisibleWithoutReload(t *testing.T) {
	videoID := uuid.New()
	loader := &fakeLoader{videos: map[uuid.UUID]*VideoState{videoID: seedVideoState(videoID)}}
	cache := newTestCache(t, loader)
	ctx := context.Background()

	before, err := cache.GetVideo(ctx, videoID, false)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	milestoneID := before.Milestones[1].ID

	newQuestion := &types.Question{
		ID:           uuid.New(),
		MilestoneID:  milestoneID,
		Type:         "TRUE_FALSE",
		QuestionData: datatypes.JSON([]byte(`{"correctAnswer":false}`)),
		Points:       2,
	}
	err = cache.MutateVideo(ctx, videoID,
		func(st *VideoState) error {
			st.Questions[milestoneID] = append(st.Questions[milestoneID], newQuestion)
			return nil
		},
		func(ctx context.Context) error { return nil },
	)
	if err != nil {
		t.Fatalf("MutateVideo: %v", err)
	}

	loadsBefore := loader.videoLoads
	after, err := cache.GetVideo(ctx, videoID, false)
	if err != nil {
		t.Fatalf("GetVideo after mutate: %v", err)
	}
	if loader.videoLoads != loadsBefore {
		t.Fatalf("mutation must be visible without a repository round-trip")
	}
	if after.TotalQuestions != 2 {
		t.Fatalf("totalQuestions want=2 got=%d", after.TotalQuestions)
	}
	if after.QuestionsPerMilestone[milestoneID] != 1 {
		t.Fatalf("questionsPerMilestone want=1 got=%d", after.QuestionsPerMilestone[milestoneID])
	}
}

func TestMutateVideoConcurrentMutationsAllCommit(t *testing.T) {
	videoID := uuid.New()
	loader := &fakeLoader{videos: map[uuid.UUID]*VideoState{videoID: seedVideoState(videoID)}}
	cache := newTestCache(t, loader)
	ctx := context.Background()

	before, err := cache.GetVideo(ctx, videoID, false)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	milestoneID := before.Milestones[0].ID

	// Unserialized, two writers clone the same snapshot and the later commit
	// drops the earlier one's persisted change from the projection.
	const writers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := cache.MutateVideo(ctx, videoID,
				func(st *VideoState) error {
					st.Questions[milestoneID] = append(st.Questions[milestoneID], &types.Question{
						ID:           uuid.New(),
						MilestoneID:  milestoneID,
						Type:         "TRUE_FALSE",
						QuestionData: datatypes.JSON([]byte(`{"correctAnswer":true}`)),
						Points:       1,
					})
					return nil
				},
				func(ctx context.Context) error { return nil },
			)
			if err != nil {
				t.Errorf("MutateVideo: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	after, err := cache.GetVideo(ctx, videoID, false)
	if err != nil {
		t.Fatalf("GetVideo after mutations: %v", err)
	}
	want := before.TotalQuestions + writers
	if after.TotalQuestions != want {
		t.Fatalf("persisted mutation lost from projection: totalQuestions want=%d got=%d", want, after.TotalQuestions)
	}
	if got := len(after.Questions[milestoneID]); got != len(before.Questions[milestoneID])+writers {
		t.Fatalf("questions on milestone want=%d got=%d", len(before.Questions[milestoneID])+writers, got)
	}
}

func TestMutateVideoRollsBackOnPersistFailure(t *testing.T) {
	videoID := uuid.New()
	loader := &fakeLoader{videos: map[uuid.UUID]*VideoState{videoID: seedVideoState(videoID)}}
	cache := newTestCache(t, loader)
	ctx := context.Background()

	before, err := cache.GetVideo(ctx, videoID, false)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}

	persistErr := errors.New("write failed")
	err = cache.MutateVideo(ctx, videoID,
		func(st *VideoState) error {
			st.Milestones = append(st.Milestones, &types.Milestone{ID: uuid.New(), VideoID: videoID, TimestampSeconds: 120})
			return nil
		},
		func(ctx context.Context) error { return persistErr },
	)
	if !errors.Is(err, persistErr) {
		t.Fatalf("persist error must surface, got %v", err)
	}

	after, err := cache.GetVideo(ctx, videoID, false)
	if err != nil {
		t.Fatalf("GetVideo after failed mutate: %v", err)
	}
	if after.TotalMilestones != before.TotalMilestones {
		t.Fatalf("failed persist must roll back: before=%d after=%d", before.TotalMilestones, after.TotalMilestones)
	}
}

func TestSubscribeReplaysCurrentState(t *testing.T) {
	videoID := uuid.New()
	loader := &fakeLoader{videos: map[uuid.UUID]*VideoState{videoID: seedVideoState(videoID)}}
	cache := newTestCache(t, loader)
	ctx := context.Background()

	// unpopulated key: no synchronous replay
	var earlyEvents []Event
	unsubEarly := cache.Subscribe(KindVideo, videoID, func(ev Event) {
		earlyEvents = append(earlyEvents, ev)
	})
	if len(earlyEvents) != 0 {
		t.Fatalf("unpopulated subscribe must not replay, got %d events", len(earlyEvents))
	}

	// first get populates and notifies existing subscribers
	if _, err := cache.GetVideo(ctx, videoID, false); err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if len(earlyEvents) != 1 {
		t.Fatalf("subscriber should see the first load, got %d events", len(earlyEvents))
	}
	unsubEarly()

	// populated key: synchronous replay before any further mutation
	var replayed []Event
	unsub := cache.Subscribe(KindVideo, videoID, func(ev Event) {
		replayed = append(replayed, ev)
	})
	defer unsub()
	if len(replayed) != 1 {
		t.Fatalf("populated subscribe must replay synchronously, got %d events", len(replayed))
	}
	st, ok := replayed[0].State.(*VideoState)
	if !ok || st.TotalMilestones != 2 {
		t.Fatalf("replayed state malformed: %+v", replayed[0].State)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	videoID := uuid.New()
	loader := &fakeLoader{videos: map[uuid.UUID]*VideoState{videoID: seedVideoState(videoID)}}
	cache := newTestCache(t, loader)
	ctx := context.Background()

	if _, err := cache.GetVideo(ctx, videoID, false); err != nil {
		t.Fatalf("GetVideo: %v", err)
	}

	count := 0
	unsub := cache.Subscribe(KindVideo, videoID, func(Event) { count++ })
	if count != 1 {
		t.Fatalf("replay want=1 got=%d", count)
	}
	unsub()

	err := cache.MutateVideo(ctx, videoID,
		func(st *VideoState) error { return nil },
		func(ctx context.Context) error { return nil },
	)
	if err != nil {
		t.Fatalf("MutateVideo: %v", err)
	}
	if count != 1 {
		t.Fatalf("unsubscribed listener must not fire, count=%d", count)
	}
}

func TestGlobalSubscriberSeesAllMutations(t *testing.T) {
	v1, v2 := uuid.New(), uuid.New()
	loader := &fakeLoader{videos: map[uuid.UUID]*VideoState{
		v1: seedVideoState(v1),
		v2: seedVideoState(v2),
	}}
	cache := newTestCache(t, loader)
	ctx := context.Background()

	var got []uuid.UUID
	unsub := cache.SubscribeAll(func(ev Event) { got = append(got, ev.ID) })
	defer unsub()

	if _, err := cache.GetVideo(ctx, v1, false); err != nil {
		t.Fatalf("GetVideo v1: %v", err)
	}
	if _, err := cache.GetVideo(ctx, v2, false); err != nil {
		t.Fatalf("GetVideo v2: %v", err)
	}
	err := cache.MutateVideo(ctx, v1,
		func(st *VideoState) error { return nil },
		func(ctx context.Context) error { return nil },
	)
	if err != nil {
		t.Fatalf("MutateVideo: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("global subscriber events want=3 got=%d", len(got))
	}
	if got[2] != v1 {
		t.Fatalf("last event should be the v1 mutation")
	}
}

func TestMutationResetsTTLClockForItsEntryOnly(t *testing.T) {
	v1, v2 := uuid.New(), uuid.New()
	loader := &fakeLoader{videos: map[uuid.UUID]*VideoState{
		v1: seedVideoState(v1),
		v2: seedVideoState(v2),
	}}
	cache := New(testLogger(t), loader, 50*time.Millisecond, nil)
	ctx := context.Background()

	if _, err := cache.GetVideo(ctx, v1, false); err != nil {
		t.Fatalf("GetVideo v1: %v", err)
	}
	if _, err := cache.GetVideo(ctx, v2, false); err != nil {
		t.Fatalf("GetVideo v2: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	err := cache.MutateVideo(ctx, v1,
		func(st *VideoState) error { return nil },
		func(ctx context.Context) error { return nil },
	)
	if err != nil {
		t.Fatalf("MutateVideo: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	// v1 was refreshed by the mutation 30ms ago and is still fresh
	loads := loader.videoLoads
	if _, err := cache.GetVideo(ctx, v1, false); err != nil {
		t.Fatalf("GetVideo v1: %v", err)
	}
	if loader.videoLoads != loads {
		t.Fatalf("mutated entry should still be fresh")
	}

	// v2 is 60ms old and must reload
	if _, err := cache.GetVideo(ctx, v2, false); err != nil {
		t.Fatalf("GetVideo v2: %v", err)
	}
	if loader.videoLoads != loads+1 {
		t.Fatalf("unrelated entry must expire on its own clock")
	}
}

func TestSessionStateMutation(t *testing.T) {
	sessionID := uuid.New()
	loader := &fakeLoader{sessions: map[uuid.UUID]*SessionState{
		sessionID: {
			Session: &types.VideoSession{ID: sessionID, Status: types.SessionActive},
		},
	}}
	cache := newTestCache(t, loader)
	ctx := context.Background()

	err := cache.MutateSession(ctx, sessionID,
		func(st *SessionState) error {
			st.Session.CurrentPosition = 75
			st.Answers = append(st.Answers, &types.Attempt{ID: uuid.New(), IsCorrect: true, Score: 1})
			return nil
		},
		func(ctx context.Context) error { return nil },
	)
	if err != nil {
		t.Fatalf("MutateSession: %v", err)
	}

	loads := loader.sessionLoads
	st, err := cache.GetSession(ctx, sessionID, false)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if loader.sessionLoads != loads {
		t.Fatalf("mutation must be visible without reload")
	}
	if st.Session.CurrentPosition != 75 || len(st.Answers) != 1 {
		t.Fatalf("session mutation lost: %+v", st)
	}
}
