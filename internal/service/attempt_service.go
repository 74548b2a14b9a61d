package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lshigami/examprep/internal/assembler"
	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/metrics"
	"github.com/lshigami/examprep/internal/model"
	"github.com/lshigami/examprep/internal/pool"
	"github.com/lshigami/examprep/internal/repository"
	"github.com/lshigami/examprep/internal/scoring"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxCompleteRounds bounds how often completion rescores after losing a race
// against a concurrent answer write.
const maxCompleteRounds = 5

// AttemptService drives the in_progress -> completed | abandoned lifecycle.
// Every call names the attempt and the user explicitly; attempts of another
// user are reported as not found.
type AttemptService interface {
	// CreateAttempt returns the user's in-progress attempt at the test if
	// there is one, otherwise it assembles and freezes a new one.
	CreateAttempt(ctx context.Context, userID string, testID uint) (*dto.AttemptResponse, error)
	RecordAnswer(ctx context.Context, userID string, attemptID, questionID uint, req dto.AnswerRequest) (*dto.AnswerResponse, error)
	CompleteAttempt(ctx context.Context, userID string, attemptID uint) (*dto.AttemptResult, error)
	AbandonAttempt(ctx context.Context, userID string, attemptID uint) (*dto.AttemptSummary, error)
	RecoverResult(ctx context.Context, userID string, attemptID uint) (*dto.RecoverResponse, error)
	GetAttempt(ctx context.Context, userID string, attemptID uint) (*dto.AttemptResponse, error)
	ListMyAttempts(ctx context.Context, userID string, testID uint) ([]dto.AttemptSummary, error)
}

type attemptService struct {
	testRepo     repository.TestRepository
	questionRepo repository.QuestionRepository
	attemptRepo  repository.TestAttemptRepository
	rules        ScoringRuleService
	index        *pool.Index
	assembler    *assembler.Assembler
	writer       *ResultWriter
	converter    ScoreConverterService
	metrics      *metrics.Metrics
}

func NewAttemptService(
	testRepo repository.TestRepository,
	questionRepo repository.QuestionRepository,
	attemptRepo repository.TestAttemptRepository,
	rules ScoringRuleService,
	index *pool.Index,
	asm *assembler.Assembler,
	writer *ResultWriter,
	converter ScoreConverterService,
	m *metrics.Metrics,
) AttemptService {
	return &attemptService{
		testRepo:     testRepo,
		questionRepo: questionRepo,
		attemptRepo:  attemptRepo,
		rules:        rules,
		index:        index,
		assembler:    asm,
		writer:       writer,
		converter:    converter,
		metrics:      m,
	}
}

func (s *attemptService) CreateAttempt(ctx context.Context, userID string, testID uint) (*dto.AttemptResponse, error) {
	test, err := s.testRepo.FindByIDWithQuestions(ctx, testID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !visibleTo(test, userID)) {
		return nil, fmt.Errorf("%w: %d", ErrTestNotFound, testID)
	}
	if err != nil {
		log.Error().Err(err).Uint("testID", testID).Msg("CreateAttempt: Failed to load test")
		return nil, fmt.Errorf("error loading test %d: %w", testID, err)
	}

	if active, err := s.attemptRepo.FindActive(ctx, userID, testID); err == nil {
		return s.resume(ctx, active.ID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("error checking active attempt: %w", err)
	}

	questions, requested, err := s.freezeQuestions(ctx, test)
	if err != nil {
		return nil, err
	}

	attempt := &model.TestAttempt{
		UserID:         userID,
		TestID:         testID,
		StartedAt:      time.Now().UTC(),
		RequestedCount: requested,
		PoolExhausted:  len(questions) < requested,
		Questions:      questions,
	}
	if err := s.attemptRepo.CreateInProgress(ctx, attempt); err != nil {
		// A concurrent create for the same pair won the single-active index.
		if winner, ferr := s.attemptRepo.FindActive(ctx, userID, testID); ferr == nil {
			log.Info().Str("userID", userID).Uint("testID", testID).Uint("attemptID", winner.ID).
				Msg("CreateAttempt: Lost create race, resuming winner")
			return s.resume(ctx, winner.ID)
		}
		log.Error().Err(err).Str("userID", userID).Uint("testID", testID).Msg("CreateAttempt: Failed to store attempt")
		return nil, fmt.Errorf("error creating attempt: %w", err)
	}

	s.metrics.AttemptsCreated.WithLabelValues("false").Inc()
	log.Info().Str("userID", userID).Uint("testID", testID).Uint("attemptID", attempt.ID).
		Int("questions", len(questions)).Msg("CreateAttempt: Attempt started")
	return s.view(ctx, attempt.ID, false)
}

func (s *attemptService) resume(ctx context.Context, attemptID uint) (*dto.AttemptResponse, error) {
	s.metrics.AttemptsCreated.WithLabelValues("true").Inc()
	return s.view(ctx, attemptID, true)
}

// freezeQuestions assembles the question list and snapshots each question so
// later content edits cannot change how the attempt is scored. It also returns
// the number of questions that was asked for.
func (s *attemptService) freezeQuestions(ctx context.Context, test *model.Test) ([]model.AttemptQuestion, int, error) {
	def := assembler.FromTest(test)
	var candidates []uint
	if def.Drawn() {
		filter, err := pool.FilterFromTest(test)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: test %d: %v", ErrInvalidInput, test.ID, err)
		}
		if candidates, err = s.index.Match(ctx, filter); err != nil {
			return nil, 0, err
		}
	}
	sel := s.assembler.Assemble(def, candidates)
	if sel.PoolExhausted {
		s.metrics.PoolExhausted.Inc()
		log.Warn().Uint("testID", test.ID).Int("requested", sel.Requested).Int("matched", len(sel.QuestionIDs)).
			Msg("CreateAttempt: Question pool smaller than requested count")
	}

	found, err := s.questionRepo.FindByIDs(ctx, sel.QuestionIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("error loading questions: %w", err)
	}
	byID := make(map[uint]model.Question, len(found))
	for _, q := range found {
		byID[q.ID] = q
	}

	frozen := make([]model.AttemptQuestion, 0, len(sel.QuestionIDs))
	for _, id := range sel.QuestionIDs {
		q, ok := byID[id]
		if !ok {
			log.Warn().Uint("testID", test.ID).Uint("questionID", id).Msg("CreateAttempt: Question no longer exists, skipping")
			continue
		}
		if _, err := scoring.ParseVariant(q.Kind, q.Options, q.AnswerKey); err != nil {
			log.Warn().Err(err).Uint("questionID", id).Msg("CreateAttempt: Question cannot be scored, skipping")
			continue
		}
		frozen = append(frozen, model.AttemptQuestion{
			QuestionID:  q.ID,
			Position:    len(frozen) + 1,
			Kind:        q.Kind,
			Options:     q.Options,
			AnswerKey:   q.AnswerKey,
			Explanation: q.Explanation,
		})
	}
	if len(frozen) == 0 {
		return nil, 0, fmt.Errorf("%w: test %d", ErrNoQuestions, test.ID)
	}
	return frozen, sel.Requested, nil
}

func (s *attemptService) RecordAnswer(ctx context.Context, userID string, attemptID, questionID uint, req dto.AnswerRequest) (*dto.AnswerResponse, error) {
	attempt, err := s.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, &StateError{AttemptID: attemptID, Op: "record answer for", Status: attempt.Status}
	}
	if pending, err := s.writer.Pending(ctx, attemptID); err != nil {
		return nil, fmt.Errorf("error reading cached result: %w", err)
	} else if pending != nil {
		return nil, &StateError{AttemptID: attemptID, Op: "record answer for", Status: statusPending}
	}

	q, err := s.attemptRepo.FindQuestion(ctx, attemptID, questionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: question %d is not part of attempt %d", ErrInvalidAnswer, questionID, attemptID)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading question %d of attempt %d: %w", questionID, attemptID, err)
	}
	variant, err := scoring.ParseVariant(q.Kind, q.Options, q.AnswerKey)
	if err != nil {
		return nil, fmt.Errorf("error reading question %d: %w", questionID, err)
	}
	answer := scoring.Answer{Label: req.Label, Labels: req.Labels, Raw: req.Raw}
	if err := variant.Validate(answer); err != nil {
		return nil, err
	}

	value, err := json.Marshal(answer)
	if err != nil {
		return nil, fmt.Errorf("error encoding answer: %w", err)
	}
	revision, err := s.attemptRepo.RecordAnswer(ctx, attemptID, questionID, datatypes.JSON(value))
	if errors.Is(err, repository.ErrNotInProgress) {
		return nil, s.stateErrorFor(ctx, attemptID, "record answer for")
	}
	if err != nil {
		log.Error().Err(err).Uint("attemptID", attemptID).Uint("questionID", questionID).Msg("RecordAnswer: Failed to store answer")
		return nil, fmt.Errorf("error recording answer: %w", err)
	}
	return &dto.AnswerResponse{AttemptID: attemptID, QuestionID: questionID, Revision: revision}, nil
}

func (s *attemptService) CompleteAttempt(ctx context.Context, userID string, attemptID uint) (*dto.AttemptResult, error) {
	if _, err := s.loadOwned(ctx, userID, attemptID); err != nil {
		return nil, err
	}

	for round := 0; round < maxCompleteRounds; round++ {
		attempt, err := s.attemptRepo.FindByIDWithDetails(ctx, attemptID)
		if err != nil {
			return nil, s.notFoundOr(err, attemptID)
		}
		rule, err := s.rules.RuleFor(ctx, attempt.Test.ExamID)
		if err != nil {
			return nil, err
		}

		switch attempt.Status {
		case model.AttemptStatusCompleted:
			return resultView(attempt, rule, s.converter), nil
		case model.AttemptStatusAbandoned:
			return nil, &StateError{AttemptID: attemptID, Op: "complete", Status: attempt.Status}
		}

		if pending, err := s.writer.Pending(ctx, attemptID); err != nil {
			return nil, fmt.Errorf("error reading cached result: %w", err)
		} else if pending != nil {
			_, _, rerr := s.writer.Recover(ctx, attemptID)
			switch {
			case rerr == nil:
				continue
			case errors.Is(rerr, ErrStaleResult):
				log.Info().Uint("attemptID", attemptID).Msg("CompleteAttempt: Cached result is stale, rescoring")
				if err := s.writer.Discard(ctx, attemptID); err != nil && !errors.Is(err, ErrResultNotPending) {
					return nil, err
				}
			default:
				return nil, rerr
			}
		}

		result, err := s.score(attempt, rule)
		if err != nil {
			return nil, err
		}
		outcome, err := s.writer.Write(ctx, result)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.notFoundOr(err, attemptID)
		}
		if err != nil {
			return nil, err
		}
		switch outcome {
		case repository.FinalizeApplied:
			s.metrics.AttemptsCompleted.Inc()
			log.Info().Str("userID", userID).Uint("attemptID", attemptID).Float64("total", result.Total).
				Int64("revision", result.Revision).Msg("CompleteAttempt: Attempt completed")
			return resultViewFromModel(result, attempt.StartedAt, s.converter), nil
		case repository.FinalizeNotInProgress:
			return nil, &StateError{AttemptID: attemptID, Op: "complete", Status: model.AttemptStatusAbandoned}
		default:
			log.Debug().Uint("attemptID", attemptID).Str("outcome", outcome.String()).Msg("CompleteAttempt: Lost finalize race, re-reading")
		}
	}
	return nil, fmt.Errorf("%w: attempt %d", ErrCompletionContended, attemptID)
}

// score evaluates the attempt's frozen questions against its recorded answers.
func (s *attemptService) score(attempt *model.TestAttempt, rule scoring.Rule) (*model.AttemptResult, error) {
	items := make([]scoring.Item, 0, len(attempt.Questions))
	for _, q := range attempt.Questions {
		v, err := scoring.ParseVariant(q.Kind, q.Options, q.AnswerKey)
		if err != nil {
			return nil, fmt.Errorf("attempt %d question %d: %w", attempt.ID, q.QuestionID, err)
		}
		items = append(items, scoring.Item{QuestionID: q.QuestionID, Variant: v})
	}
	answers := make(map[uint]scoring.Answer, len(attempt.Answers))
	for _, rec := range attempt.Answers {
		var a scoring.Answer
		if err := json.Unmarshal(rec.Value, &a); err != nil {
			log.Warn().Err(err).Uint("attemptID", attempt.ID).Uint("questionID", rec.QuestionID).
				Msg("CompleteAttempt: Unreadable answer scored as unanswered")
			continue
		}
		answers[rec.QuestionID] = a
	}

	scored := scoring.Score(items, answers, rule)
	result := &model.AttemptResult{
		AttemptID:   attempt.ID,
		UserID:      attempt.UserID,
		TestID:      attempt.TestID,
		Revision:    attempt.Revision,
		Total:       scored.Total,
		MaxScore:    rule.Correct * float64(len(items)),
		Attempted:   scored.Attempted,
		Correct:     scored.Correct,
		Incorrect:   scored.Incorrect,
		Unanswered:  scored.Unanswered,
		Marks:       make([]model.QuestionMark, 0, len(scored.Marks)),
		CompletedAt: time.Now().UTC(),
	}
	for _, m := range scored.Marks {
		result.Marks = append(result.Marks, model.QuestionMark{QuestionID: m.QuestionID, Outcome: string(m.Outcome), Marks: m.Marks})
	}
	return result, nil
}

func (s *attemptService) AbandonAttempt(ctx context.Context, userID string, attemptID uint) (*dto.AttemptSummary, error) {
	attempt, err := s.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, &StateError{AttemptID: attemptID, Op: "abandon", Status: attempt.Status}
	}
	if pending, err := s.writer.Pending(ctx, attemptID); err != nil {
		return nil, fmt.Errorf("error reading cached result: %w", err)
	} else if pending != nil {
		return nil, &StateError{AttemptID: attemptID, Op: "abandon", Status: statusPending}
	}
	if err := s.attemptRepo.Abandon(ctx, attemptID); err != nil {
		if errors.Is(err, repository.ErrNotInProgress) {
			return nil, s.stateErrorFor(ctx, attemptID, "abandon")
		}
		return nil, fmt.Errorf("error abandoning attempt %d: %w", attemptID, err)
	}
	s.metrics.AttemptsAbandoned.WithLabelValues("user").Inc()
	log.Info().Str("userID", userID).Uint("attemptID", attemptID).Msg("AbandonAttempt: Attempt abandoned")

	updated, err := s.attemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, s.notFoundOr(err, attemptID)
	}
	summary := toAttemptSummary(updated)
	return &summary, nil
}

func (s *attemptService) RecoverResult(ctx context.Context, userID string, attemptID uint) (*dto.RecoverResponse, error) {
	if _, err := s.loadOwned(ctx, userID, attemptID); err != nil {
		return nil, err
	}
	status, _, err := s.writer.Recover(ctx, attemptID)
	if errors.Is(err, ErrStaleResult) {
		// Answers moved on after scoring; completing again rescores them.
		if derr := s.writer.Discard(ctx, attemptID); derr != nil && !errors.Is(derr, ErrResultNotPending) {
			return nil, derr
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	resp := &dto.RecoverResponse{AttemptID: attemptID, Status: status.String()}
	attempt, err := s.attemptRepo.FindByIDWithDetails(ctx, attemptID)
	if err != nil {
		return nil, s.notFoundOr(err, attemptID)
	}
	if attempt.Status == model.AttemptStatusCompleted {
		rule, err := s.rules.RuleFor(ctx, attempt.Test.ExamID)
		if err != nil {
			return nil, err
		}
		resp.Result = resultView(attempt, rule, s.converter)
	}
	return resp, nil
}

func (s *attemptService) GetAttempt(ctx context.Context, userID string, attemptID uint) (*dto.AttemptResponse, error) {
	if _, err := s.loadOwned(ctx, userID, attemptID); err != nil {
		return nil, err
	}
	return s.view(ctx, attemptID, false)
}

func (s *attemptService) ListMyAttempts(ctx context.Context, userID string, testID uint) ([]dto.AttemptSummary, error) {
	attempts, err := s.attemptRepo.FindAllByTestAndUser(ctx, testID, userID)
	if err != nil {
		return nil, fmt.Errorf("error fetching attempts: %w", err)
	}
	return toAttemptSummaries(attempts), nil
}

func (s *attemptService) view(ctx context.Context, attemptID uint, resumed bool) (*dto.AttemptResponse, error) {
	attempt, err := s.attemptRepo.FindByIDWithDetails(ctx, attemptID)
	if err != nil {
		return nil, s.notFoundOr(err, attemptID)
	}
	ids := make([]uint, 0, len(attempt.Questions))
	for _, q := range attempt.Questions {
		ids = append(ids, q.QuestionID)
	}
	texts := make(map[uint]string, len(ids))
	if questions, err := s.questionRepo.FindByIDs(ctx, ids); err == nil {
		for _, q := range questions {
			texts[q.ID] = q.Text
		}
	} else {
		log.Warn().Err(err).Uint("attemptID", attemptID).Msg("view: Failed to load question texts")
	}

	resp := toAttemptResponse(attempt, texts)
	resp.Resumed = resumed
	if attempt.Status == model.AttemptStatusCompleted {
		rule, err := s.rules.RuleFor(ctx, attempt.Test.ExamID)
		if err != nil {
			return nil, err
		}
		resp.Result = resultView(attempt, rule, s.converter)
	}
	return resp, nil
}

func (s *attemptService) loadOwned(ctx context.Context, userID string, attemptID uint) (*model.TestAttempt, error) {
	attempt, err := s.attemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, s.notFoundOr(err, attemptID)
	}
	if attempt.UserID != userID {
		return nil, fmt.Errorf("%w: %d", ErrAttemptNotFound, attemptID)
	}
	return attempt, nil
}

func (s *attemptService) stateErrorFor(ctx context.Context, attemptID uint, op string) error {
	status := "no longer in progress"
	if a, err := s.attemptRepo.FindByID(ctx, attemptID); err == nil {
		status = a.Status
	}
	return &StateError{AttemptID: attemptID, Op: op, Status: status}
}

func (s *attemptService) notFoundOr(err error, attemptID uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %d", ErrAttemptNotFound, attemptID)
	}
	return fmt.Errorf("error loading attempt %d: %w", attemptID, err)
}

// visibleTo reports whether the user may attempt the test. Custom tests
// belong to their creator.
func visibleTo(test *model.Test, userID string) bool {
	if !test.IsActive {
		return false
	}
	return test.Type != model.TestTypeCustom || test.CreatedBy == userID
}
