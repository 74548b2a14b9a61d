package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/copier"
	"github.com/lshigami/examprep/internal/assembler"
	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/metrics"
	"github.com/lshigami/examprep/internal/model"
	"github.com/lshigami/examprep/internal/pool"
	"github.com/lshigami/examprep/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TestService defines tests: curated lists published by admins and custom
// tests users draw from the question pool.
type TestService interface {
	CreateTest(ctx context.Context, createdBy string, req dto.CreateTestRequest) (*dto.TestResponse, error)
	CreateCustomTest(ctx context.Context, userID string, req dto.CreateCustomTestRequest) (*dto.TestResponse, error)
	GetTest(ctx context.Context, userID string, testID uint) (*dto.TestResponse, error)
	PoolStats(ctx context.Context, q dto.PoolStatsQuery) (*dto.PoolStatsResponse, error)
}

type testService struct {
	testRepo     repository.TestRepository
	questionRepo repository.QuestionRepository
	index        *pool.Index
	assembler    *assembler.Assembler
	metrics      *metrics.Metrics
}

func NewTestService(
	testRepo repository.TestRepository,
	questionRepo repository.QuestionRepository,
	index *pool.Index,
	asm *assembler.Assembler,
	m *metrics.Metrics,
) TestService {
	return &testService{testRepo: testRepo, questionRepo: questionRepo, index: index, assembler: asm, metrics: m}
}

type testDraft struct {
	test      *model.Test
	curated   []uint
	filter    pool.Filter
	count     int
	randomize bool
}

func (s *testService) CreateTest(ctx context.Context, createdBy string, req dto.CreateTestRequest) (*dto.TestResponse, error) {
	test := &model.Test{
		ExamID:          req.ExamID,
		Title:           req.Title,
		Description:     req.Description,
		Type:            model.TestTypeRecommended,
		DurationMinutes: req.DurationMinutes,
		CreatedBy:       createdBy,
	}
	if len(req.QuestionIDs) == 0 && req.QuestionCount <= 0 {
		return nil, fmt.Errorf("%w: either question_ids or question_count is required", ErrInvalidInput)
	}
	return s.create(ctx, testDraft{
		test:      test,
		curated:   req.QuestionIDs,
		filter:    pool.Filter{ExamID: req.ExamID, SubjectID: req.SubjectID, TopicIDs: req.TopicIDs, Difficulty: req.Difficulty},
		count:     req.QuestionCount,
		randomize: req.RandomizePerAttempt,
	})
}

func (s *testService) CreateCustomTest(ctx context.Context, userID string, req dto.CreateCustomTestRequest) (*dto.TestResponse, error) {
	title := req.Title
	if title == "" {
		title = "Custom practice " + time.Now().UTC().Format("2006-01-02 15:04")
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = req.QuestionCount
	}
	test := &model.Test{
		ExamID:          req.ExamID,
		Title:           title,
		Type:            model.TestTypeCustom,
		DurationMinutes: duration,
		CreatedBy:       userID,
	}
	return s.create(ctx, testDraft{
		test:      test,
		filter:    pool.Filter{ExamID: req.ExamID, SubjectID: req.SubjectID, TopicIDs: req.TopicIDs, Difficulty: req.Difficulty},
		count:     req.QuestionCount,
		randomize: req.RandomizePerAttempt,
	})
}

func (s *testService) create(ctx context.Context, draft testDraft) (*dto.TestResponse, error) {
	test := draft.test
	var sel assembler.Selection

	if len(draft.curated) > 0 {
		ids, err := s.checkCurated(ctx, test.ExamID, draft.curated)
		if err != nil {
			return nil, err
		}
		sel = s.assembler.Assemble(assembler.Definition{Type: test.Type, Curated: ids}, nil)
	} else {
		if err := draft.filter.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		matched, err := s.index.Match(ctx, draft.filter)
		if err != nil {
			return nil, err
		}
		if len(matched) == 0 {
			return nil, fmt.Errorf("%w: nothing matches the filter", ErrNoQuestions)
		}
		test.SubjectID = draft.filter.SubjectID
		test.Difficulty = draft.filter.Difficulty
		if len(draft.filter.TopicIDs) > 0 {
			raw, _ := json.Marshal(draft.filter.TopicIDs)
			test.TopicIDs = datatypes.JSON(raw)
		}

		if draft.randomize {
			// Drawn again for every attempt; only the filter is stored.
			test.RandomizePerAttempt = true
			test.QuestionCount = draft.count
			sel = assembler.Selection{Requested: draft.count, PoolExhausted: len(matched) < draft.count}
		} else {
			sel = s.assembler.Assemble(assembler.Definition{Type: test.Type, Count: draft.count}, matched)
		}
	}

	if !test.RandomizePerAttempt {
		test.QuestionCount = len(sel.QuestionIDs)
		for i, id := range sel.QuestionIDs {
			test.Questions = append(test.Questions, model.TestQuestion{QuestionID: id, Position: i + 1})
		}
	}
	if sel.PoolExhausted {
		s.metrics.PoolExhausted.Inc()
		log.Warn().Uint("examID", test.ExamID).Int("requested", sel.Requested).Int("matched", len(sel.QuestionIDs)).
			Msg("CreateTest: Fewer questions matched than requested")
	}

	if err := s.testRepo.Create(ctx, test); err != nil {
		log.Error().Err(err).Str("type", test.Type).Msg("CreateTest: Failed to store test")
		return nil, fmt.Errorf("error creating test: %w", err)
	}
	log.Info().Uint("testID", test.ID).Str("type", test.Type).Int("questions", test.QuestionCount).
		Bool("randomize", test.RandomizePerAttempt).Msg("CreateTest: Test created")

	resp := toTestResponse(test)
	resp.PoolExhausted = sel.PoolExhausted
	resp.Requested = sel.Requested
	return resp, nil
}

// checkCurated verifies that every listed question exists, is active and
// belongs to the exam. It returns the list without duplicates.
func (s *testService) checkCurated(ctx context.Context, examID uint, ids []uint) ([]uint, error) {
	ids = assembler.Normalize(ids, false)
	found, err := s.questionRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("error loading questions: %w", err)
	}
	usable := make(map[uint]bool, len(found))
	for _, q := range found {
		usable[q.ID] = q.IsActive && q.ExamID == examID
	}
	var bad []uint
	for _, id := range ids {
		if !usable[id] {
			bad = append(bad, id)
		}
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("%w: questions %v are missing, inactive or from another exam", ErrInvalidInput, bad)
	}
	return ids, nil
}

func (s *testService) GetTest(ctx context.Context, userID string, testID uint) (*dto.TestResponse, error) {
	test, err := s.testRepo.FindByIDWithQuestions(ctx, testID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !visibleTo(test, userID)) {
		return nil, fmt.Errorf("%w: %d", ErrTestNotFound, testID)
	}
	if err != nil {
		log.Error().Err(err).Uint("testID", testID).Msg("GetTest: Failed to load test")
		return nil, fmt.Errorf("error loading test %d: %w", testID, err)
	}
	return toTestResponse(test), nil
}

func (s *testService) PoolStats(ctx context.Context, q dto.PoolStatsQuery) (*dto.PoolStatsResponse, error) {
	stats, err := s.index.Stats(ctx, pool.Filter{ExamID: q.ExamID, SubjectID: q.SubjectID, TopicIDs: q.TopicIDs, Difficulty: q.Difficulty})
	if errors.Is(err, pool.ErrInvalidFilter) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err != nil {
		return nil, err
	}
	var resp dto.PoolStatsResponse
	copier.Copy(&resp, stats)
	return &resp, nil
}

func toTestSummary(t *model.Test) dto.TestSummary {
	var s dto.TestSummary
	copier.Copy(&s, t)
	return s
}

func toTestResponse(t *model.Test) *dto.TestResponse {
	resp := &dto.TestResponse{
		TestSummary: toTestSummary(t),
		SubjectID:   t.SubjectID,
		Difficulty:  t.Difficulty,
	}
	if len(t.TopicIDs) > 0 {
		_ = json.Unmarshal(t.TopicIDs, &resp.TopicIDs)
	}
	for _, q := range t.Questions {
		resp.QuestionIDs = append(resp.QuestionIDs, q.QuestionID)
	}
	return resp
}
