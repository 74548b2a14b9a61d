package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lshigami/examprep/database"
	"github.com/lshigami/examprep/internal/assembler"
	"github.com/lshigami/examprep/internal/cache"
	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/metrics"
	"github.com/lshigami/examprep/internal/model"
	"github.com/lshigami/examprep/internal/pool"
	"github.com/lshigami/examprep/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// flakyStore fails the next `failures` finalize calls. With applyFirst set
// the write reaches the store before the failure is reported, as when a
// commit acknowledgement is lost.
type flakyStore struct {
	next ResultStore

	mu         sync.Mutex
	failures   int
	uncertain  bool
	applyFirst bool
	calls      int
}

func (f *flakyStore) fail(n int, uncertain, applyFirst bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures, f.uncertain, f.applyFirst = n, uncertain, applyFirst
}

func (f *flakyStore) Finalize(ctx context.Context, r *model.AttemptResult) (repository.FinalizeOutcome, error) {
	f.mu.Lock()
	f.calls++
	failing := f.failures > 0
	if failing {
		f.failures--
	}
	uncertain, applyFirst := f.uncertain, f.applyFirst
	f.mu.Unlock()

	if !failing {
		return f.next.Finalize(ctx, r)
	}
	if applyFirst {
		if _, err := f.next.Finalize(ctx, r); err != nil {
			return 0, err
		}
	}
	return 0, &repository.WriteError{Op: "finalize attempt", Uncertain: uncertain, Err: errors.New("connection reset by peer")}
}

type testEnv struct {
	t         *testing.T
	db        *gorm.DB
	attempts  repository.TestAttemptRepository
	questions repository.QuestionRepository
	store     *flakyStore
	cache     cache.ResultCache
	writer    *ResultWriter
	metrics   *metrics.Metrics

	attemptSvc   AttemptService
	testSvc      TestService
	ruleSvc      ScoringRuleService
	reconcileSvc ReconcileService
	adminSvc     AdminTestService
	userTestSvc  UserTestService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.EnsureSingleActiveIndex(db); err != nil {
		t.Fatalf("single active index: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	resultCache, err := cache.NewFileCache(afero.NewMemMapFs(), "/cache", "test-node")
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	testRepo := repository.NewTestRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	attemptRepo := repository.NewTestAttemptRepository(db)
	ruleRepo := repository.NewScoringRuleRepository(db)

	store := &flakyStore{next: attemptRepo}
	writer := NewResultWriter(store, resultCache, m)
	index := pool.NewIndex(questionRepo)
	asm := assembler.New(assembler.Fixed(1))
	rules := NewScoringRuleService(ruleRepo)

	return &testEnv{
		t:            t,
		db:           db,
		attempts:     attemptRepo,
		questions:    questionRepo,
		store:        store,
		cache:        resultCache,
		writer:       writer,
		metrics:      m,
		attemptSvc:   NewAttemptService(testRepo, questionRepo, attemptRepo, rules, index, asm, writer, NewScoreConverterService(), m),
		testSvc:      NewTestService(testRepo, questionRepo, index, asm, m),
		ruleSvc:      rules,
		reconcileSvc: NewReconcileService(attemptRepo, writer, m),
		adminSvc:     NewAdminTestService(attemptRepo, repository.NewAnswerRepository(db), writer, m),
		userTestSvc:  NewUserTestService(testRepo, attemptRepo),
	}
}

const abcdOptions = `{"A":"alpha","B":"beta","C":"gamma","D":"delta"}`

// seedQuestions adds n single-choice questions whose answer is A.
func (e *testEnv) seedQuestions(examID uint, n int, difficulty string) []uint {
	e.t.Helper()
	ids := make([]uint, 0, n)
	for i := 0; i < n; i++ {
		q := &model.Question{
			ExamID:     examID,
			SubjectID:  1,
			TopicID:    1,
			Difficulty: difficulty,
			Text:       "question",
			Kind:       model.QuestionKindSingleChoice,
			Options:    datatypes.JSON(abcdOptions),
			AnswerKey:  datatypes.JSON(`{"label":"A"}`),
			IsActive:   true,
		}
		if err := e.questions.Create(context.Background(), q); err != nil {
			e.t.Fatalf("seed question: %v", err)
		}
		ids = append(ids, q.ID)
	}
	return ids
}

func (e *testEnv) seedRule(examID uint, correct, incorrect, unanswered float64, partial bool) {
	e.t.Helper()
	_, err := e.ruleSvc.CreateRule(context.Background(), dto.ScoringRuleRequest{
		ExamID:          examID,
		MarksCorrect:    &correct,
		MarksIncorrect:  incorrect,
		MarksUnanswered: unanswered,
		PartialAllowed:  partial,
	})
	if err != nil {
		e.t.Fatalf("seed rule: %v", err)
	}
}

// seedCuratedTest publishes a recommended test over questions.
func (e *testEnv) seedCuratedTest(examID uint, questions []uint) uint {
	e.t.Helper()
	resp, err := e.testSvc.CreateTest(context.Background(), "admin", dto.CreateTestRequest{
		ExamID:          examID,
		Title:           "Practice",
		QuestionIDs:     questions,
		DurationMinutes: 30,
	})
	if err != nil {
		e.t.Fatalf("seed test: %v", err)
	}
	return resp.ID
}

// standardSetup is the negative-marking scenario: five questions, rule
// +1 / -0.25 / 0.
func (e *testEnv) standardSetup() (testID uint, questions []uint) {
	e.t.Helper()
	questions = e.seedQuestions(1, 5, model.DifficultyEasy)
	e.seedRule(1, 1, -0.25, 0, false)
	return e.seedCuratedTest(1, questions), questions
}

func (e *testEnv) answer(userID string, attemptID, questionID uint, label string) {
	e.t.Helper()
	if _, err := e.attemptSvc.RecordAnswer(context.Background(), userID, attemptID, questionID, dto.AnswerRequest{Label: label}); err != nil {
		e.t.Fatalf("record answer %d=%s: %v", questionID, label, err)
	}
}

// answerStandard gives three correct, one incorrect and one unanswered.
func (e *testEnv) answerStandard(userID string, attemptID uint, questions []uint) {
	e.t.Helper()
	e.answer(userID, attemptID, questions[0], "A")
	e.answer(userID, attemptID, questions[1], "A")
	e.answer(userID, attemptID, questions[2], "A")
	e.answer(userID, attemptID, questions[3], "B")
}

func (e *testEnv) status(attemptID uint) string {
	e.t.Helper()
	a, err := e.attempts.FindByID(context.Background(), attemptID)
	if err != nil {
		e.t.Fatalf("load attempt %d: %v", attemptID, err)
	}
	return a.Status
}

func almostEqual(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

// seedMultiChoice adds one multi-choice question over A-D with key {A, B}.
func (e *testEnv) seedMultiChoice(examID uint) uint {
	e.t.Helper()
	q := &model.Question{
		ExamID:     examID,
		SubjectID:  1,
		TopicID:    1,
		Difficulty: model.DifficultyMedium,
		Text:       "select all that apply",
		Kind:       model.QuestionKindMultiChoice,
		Options:    datatypes.JSON(abcdOptions),
		AnswerKey:  datatypes.JSON(`{"labels":["A","B"]}`),
		IsActive:   true,
	}
	if err := e.questions.Create(context.Background(), q); err != nil {
		e.t.Fatalf("seed question: %v", err)
	}
	return q.ID
}
