package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/grading"
	"github.com/lessonreel/lessonreel-backend/internal/platform/apierr"
	"github.com/lessonreel/lessonreel-backend/internal/platform/ctxutil"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/repos"
	"github.com/lessonreel/lessonreel-backend/internal/statecache"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

const QuestionSourceManual = "manual"
const QuestionSourceGenerated = "ai_generated"

type MilestoneInput struct {
	TimestampSeconds float64 `json:"timestamp_seconds"`
	Title            string  `json:"title"`
	SortOrder        int     `json:"sort_order"`
	IsRequired       *bool   `json:"is_required,omitempty"`
	RetryLimit       int     `json:"retry_limit"`
}

type QuestionInput struct {
	Type          string          `json:"type"`
	PromptMD      string          `json:"prompt_md"`
	QuestionData  json.RawMessage `json:"question_data"`
	Explanation   *string         `json:"explanation,omitempty"`
	Points        int             `json:"points"`
	PassThreshold float64         `json:"pass_threshold"`
}

// VideoService is the teacher-facing authoring surface. Media probing and AI
// question generation are fail-soft collaborators: their failure degrades the
// result, it never fails the owning operation.
type VideoService interface {
	CreateVideo(ctx context.Context, lessonID uuid.UUID, title, sourceRef string) (*types.Video, error)
	ListVideos(ctx context.Context, lessonID uuid.UUID) ([]*types.Video, error)
	CreateMilestone(ctx context.Context, videoID uuid.UUID, input MilestoneInput) (*types.Milestone, error)
	DeleteMilestone(ctx context.Context, videoID, milestoneID uuid.UUID) error
	AddQuestions(ctx context.Context, videoID, milestoneID uuid.UUID, inputs []QuestionInput) ([]*types.Question, error)
	GenerateQuestions(ctx context.Context, videoID, milestoneID uuid.UUID, count int) ([]*types.Question, error)
}

type videoService struct {
	db            *gorm.DB
	log           *logger.Logger
	cache         *statecache.Cache
	prober        MediaProber
	generator     QuestionGenerator
	lessonRepo    repos.LessonRepo
	videoRepo     repos.VideoRepo
	milestoneRepo repos.MilestoneRepo
	questionRepo  repos.QuestionRepo
}

func NewVideoService(
	db *gorm.DB,
	log *logger.Logger,
	cache *statecache.Cache,
	prober MediaProber,
	generator QuestionGenerator,
	lessonRepo repos.LessonRepo,
	videoRepo repos.VideoRepo,
	milestoneRepo repos.MilestoneRepo,
	questionRepo repos.QuestionRepo,
) VideoService {
	return &videoService{
		db:            db,
		log:           log.With("service", "VideoService"),
		cache:         cache,
		prober:        prober,
		generator:     generator,
		lessonRepo:    lessonRepo,
		videoRepo:     videoRepo,
		milestoneRepo: milestoneRepo,
		questionRepo:  questionRepo,
	}
}

func (vs *videoService) requireTeacher(ctx context.Context) error {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.StudentID == uuid.Nil {
		return apierr.AccessDenied("authoring")
	}
	if rd.Role != types.RoleTeacher {
		return apierr.AccessDenied("authoring")
	}
	return nil
}

// CreateVideo stores the video row. A probe failure leaves the metadata
// fields null rather than failing the upload.
func (vs *videoService) CreateVideo(ctx context.Context, lessonID uuid.UUID, title, sourceRef string) (*types.Video, error) {
	if err := vs.requireTeacher(ctx); err != nil {
		return nil, err
	}
	if title == "" || sourceRef == "" {
		return nil, apierr.Validationf("title and source_ref are required")
	}

	lesson, err := vs.lessonRepo.GetByID(ctx, nil, lessonID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("fetching lesson: %w", err))
	}
	if lesson == nil {
		return nil, apierr.NotFound("lesson")
	}

	video := &types.Video{LessonID: lessonID, Title: title, SourceRef: sourceRef}
	if vs.prober != nil {
		if info, err := vs.prober.Probe(ctx, sourceRef); err != nil {
			vs.log.Warn("media probe failed; storing video without metadata", "sourceRef", sourceRef, "error", err)
		} else {
			if info.DurationSeconds > 0 {
				video.DurationSeconds = &info.DurationSeconds
			}
			if info.SizeBytes > 0 {
				video.SizeBytes = &info.SizeBytes
			}
			if info.ThumbnailRef != "" {
				video.ThumbnailRef = &info.ThumbnailRef
			}
		}
	}

	created, err := vs.videoRepo.Create(ctx, nil, []*types.Video{video})
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("creating video: %w", err))
	}
	return created[0], nil
}

// ListVideos returns a lesson's videos. Any authenticated caller may list.
func (vs *videoService) ListVideos(ctx context.Context, lessonID uuid.UUID) ([]*types.Video, error) {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.StudentID == uuid.Nil {
		return nil, apierr.AccessDenied("lesson videos")
	}

	lesson, err := vs.lessonRepo.GetByID(ctx, nil, lessonID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("fetching lesson: %w", err))
	}
	if lesson == nil {
		return nil, apierr.NotFound("lesson")
	}

	videos, err := vs.videoRepo.GetByLessonIDs(ctx, nil, []uuid.UUID{lessonID})
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("fetching lesson videos: %w", err))
	}
	return videos, nil
}

// CreateMilestone appends a milestone through the cache mutate path so every
// consumer of the video projection sees it immediately. A duplicate timestamp
// is a Conflict carrying the offending timestamp.
func (vs *videoService) CreateMilestone(ctx context.Context, videoID uuid.UUID, input MilestoneInput) (*types.Milestone, error) {
	if err := vs.requireTeacher(ctx); err != nil {
		return nil, err
	}
	if input.TimestampSeconds < 0 {
		return nil, apierr.Validationf("timestamp_seconds must be non-negative, got %v", input.TimestampSeconds)
	}
	if input.Title == "" {
		return nil, apierr.Validationf("title is required")
	}

	isRequired := true
	if input.IsRequired != nil {
		isRequired = *input.IsRequired
	}
	retryLimit := input.RetryLimit
	if retryLimit <= 0 {
		retryLimit = types.DefaultRetryLimit
	}
	milestone := &types.Milestone{
		VideoID:          videoID,
		TimestampSeconds: input.TimestampSeconds,
		SortOrder:        input.SortOrder,
		Title:            input.Title,
		IsRequired:       isRequired,
		RetryLimit:       retryLimit,
	}

	err := vs.cache.MutateVideo(ctx, videoID,
		func(staged *statecache.VideoState) error {
			insertMilestoneSorted(staged, milestone)
			return nil
		},
		func(ctx context.Context) error {
			return vs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				taken, err := vs.milestoneRepo.ExistsAtTimestamp(ctx, tx, videoID, input.TimestampSeconds)
				if err != nil {
					return apierr.Internal(fmt.Errorf("checking timestamp: %w", err))
				}
				if taken {
					return apierr.Conflict(
						errors.New("milestone timestamp already taken"),
						map[string]any{"timestamp_seconds": input.TimestampSeconds},
					)
				}
				if _, err := vs.milestoneRepo.Create(ctx, tx, []*types.Milestone{milestone}); err != nil {
					return apierr.Internal(fmt.Errorf("creating milestone: %w", err))
				}
				return nil
			})
		},
	)
	if err != nil {
		return nil, apiError(err)
	}

	return milestone, nil
}

func (vs *videoService) DeleteMilestone(ctx context.Context, videoID, milestoneID uuid.UUID) error {
	if err := vs.requireTeacher(ctx); err != nil {
		return err
	}

	err := vs.cache.MutateVideo(ctx, videoID,
		func(staged *statecache.VideoState) error {
			kept := staged.Milestones[:0]
			for _, m := range staged.Milestones {
				if m.ID == milestoneID {
					continue
				}
				kept = append(kept, m)
			}
			if len(kept) == len(staged.Milestones) {
				return apierr.NotFound("milestone")
			}
			staged.Milestones = kept
			delete(staged.Questions, milestoneID)
			return nil
		},
		func(ctx context.Context) error {
			return vs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				if err := vs.questionRepo.SoftDeleteByMilestoneIDs(ctx, tx, []uuid.UUID{milestoneID}); err != nil {
					return apierr.Internal(fmt.Errorf("deleting questions: %w", err))
				}
				if err := vs.milestoneRepo.SoftDeleteByIDs(ctx, tx, []uuid.UUID{milestoneID}); err != nil {
					return apierr.Internal(fmt.Errorf("deleting milestone: %w", err))
				}
				return nil
			})
		},
	)
	if err != nil {
		return apiError(err)
	}

	return nil
}

// AddQuestions validates each payload against its question type's variant
// once, here at the boundary, so grading can trust the stored shape.
func (vs *videoService) AddQuestions(ctx context.Context, videoID, milestoneID uuid.UUID, inputs []QuestionInput) ([]*types.Question, error) {
	if err := vs.requireTeacher(ctx); err != nil {
		return nil, err
	}
	return vs.ingestQuestions(ctx, videoID, milestoneID, inputs, QuestionSourceManual)
}

// GenerateQuestions asks the AI provider for a batch and ingests it through
// the same validation and mutate path as manual authoring.
func (vs *videoService) GenerateQuestions(ctx context.Context, videoID, milestoneID uuid.UUID, count int) ([]*types.Question, error) {
	if err := vs.requireTeacher(ctx); err != nil {
		return nil, err
	}
	if vs.generator == nil {
		return nil, apierr.Validationf("question generation is not configured")
	}
	if count <= 0 {
		count = 3
	}

	generated, err := vs.generator.Generate(ctx, videoID, milestoneID, count)
	if err != nil {
		vs.log.Warn("question generation failed", "videoID", videoID, "milestoneID", milestoneID, "error", err)
		return nil, apierr.Internal(fmt.Errorf("question generation: %w", err))
	}

	inputs := make([]QuestionInput, 0, len(generated))
	for _, g := range generated {
		inputs = append(inputs, QuestionInput{
			Type:          g.Type,
			PromptMD:      g.PromptMD,
			QuestionData:  g.QuestionData,
			Explanation:   g.Explanation,
			Points:        g.Points,
			PassThreshold: g.PassThreshold,
		})
	}
	return vs.ingestQuestions(ctx, videoID, milestoneID, inputs, QuestionSourceGenerated)
}

func (vs *videoService) ingestQuestions(ctx context.Context, videoID, milestoneID uuid.UUID, inputs []QuestionInput, source string) ([]*types.Question, error) {
	if len(inputs) == 0 {
		return nil, apierr.Validationf("no questions supplied")
	}

	rows := make([]*types.Question, 0, len(inputs))
	for i, in := range inputs {
		if _, err := grading.ParseQuestionData(grading.QuestionType(in.Type), in.QuestionData); err != nil {
			return nil, apierr.Validation(fmt.Errorf("question %d: %w", i, err))
		}
		points := in.Points
		if points <= 0 {
			points = 1
		}
		rows = append(rows, &types.Question{
			MilestoneID:   milestoneID,
			Type:          in.Type,
			PromptMD:      in.PromptMD,
			QuestionData:  datatypes.JSON(in.QuestionData),
			Explanation:   in.Explanation,
			Points:        points,
			PassThreshold: grading.NormalizeThreshold(in.PassThreshold),
			Source:        source,
		})
	}

	err := vs.cache.MutateVideo(ctx, videoID,
		func(staged *statecache.VideoState) error {
			found := false
			for _, m := range staged.Milestones {
				if m.ID == milestoneID {
					found = true
					break
				}
			}
			if !found {
				return apierr.NotFound("milestone")
			}
			staged.Questions[milestoneID] = append(staged.Questions[milestoneID], rows...)
			return nil
		},
		func(ctx context.Context) error {
			if _, err := vs.questionRepo.Create(ctx, nil, rows); err != nil {
				return apierr.Internal(fmt.Errorf("creating questions: %w", err))
			}
			return nil
		},
	)
	if err != nil {
		return nil, apiError(err)
	}

	return rows, nil
}

// insertMilestoneSorted keeps the cached milestone list ordered by timestamp.
func insertMilestoneSorted(staged *statecache.VideoState, m *types.Milestone) {
	i := 0
	for ; i < len(staged.Milestones); i++ {
		if staged.Milestones[i].TimestampSeconds > m.TimestampSeconds {
			break
		}
	}
	staged.Milestones = append(staged.Milestones, nil)
	copy(staged.Milestones[i+1:], staged.Milestones[i:])
	staged.Milestones[i] = m
}
