package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/datatypes"
)

func TestCreateAttempt_ResumesInProgress(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()

	first, err := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if first.Resumed || first.Status != model.AttemptStatusInProgress || len(first.Questions) != len(questions) {
		t.Fatalf("first attempt = %+v", first.AttemptSummary)
	}

	second, err := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	if err != nil {
		t.Fatalf("CreateAttempt again: %v", err)
	}
	if second.ID != first.ID || !second.Resumed {
		t.Fatalf("second create returned attempt %d resumed=%v, want %d resumed", second.ID, second.Resumed, first.ID)
	}

	other, err := e.attemptSvc.CreateAttempt(ctx, "u2", testID)
	if err != nil {
		t.Fatalf("CreateAttempt for u2: %v", err)
	}
	if other.ID == first.ID {
		t.Fatal("users share an attempt")
	}
}

func TestCreateAttempt_ConcurrentCallsYieldOneAttempt(t *testing.T) {
	e := newTestEnv(t)
	testID, _ := e.standardSetup()

	const callers = 12
	ids := make([]uint, callers)
	resumed := make([]bool, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := e.attemptSvc.CreateAttempt(context.Background(), "u1", testID)
			errs[i] = err
			if err == nil {
				ids[i], resumed[i] = resp.ID, resp.Resumed
			}
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got attempt %d, caller 0 got %d", i, ids[i], ids[0])
		}
		if !resumed[i] {
			fresh++
		}
	}
	if fresh != 1 {
		t.Fatalf("%d callers created an attempt, want exactly 1", fresh)
	}

	var active int64
	e.db.Model(&model.TestAttempt{}).Where("user_id = ? AND test_id = ? AND status = ?", "u1", testID, model.AttemptStatusInProgress).Count(&active)
	if active != 1 {
		t.Fatalf("in_progress attempts = %d, want 1", active)
	}
}

func TestCreateAttempt_UnknownOrForeignTest(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuestions(1, 3, model.DifficultyEasy)
	ctx := context.Background()

	if _, err := e.attemptSvc.CreateAttempt(ctx, "u1", 999); !errors.Is(err, ErrTestNotFound) {
		t.Fatalf("unknown test: err = %v, want ErrTestNotFound", err)
	}

	custom, err := e.testSvc.CreateCustomTest(ctx, "owner", dto.CreateCustomTestRequest{ExamID: 1, QuestionCount: 2})
	if err != nil {
		t.Fatalf("CreateCustomTest: %v", err)
	}
	if _, err := e.attemptSvc.CreateAttempt(ctx, "intruder", custom.ID); !errors.Is(err, ErrTestNotFound) {
		t.Fatalf("foreign custom test: err = %v, want ErrTestNotFound", err)
	}
	if _, err := e.attemptSvc.CreateAttempt(ctx, "owner", custom.ID); err != nil {
		t.Fatalf("owner create: %v", err)
	}
}

func TestCompleteAttempt_NegativeMarking(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()

	attempt, err := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	e.answerStandard("u1", attempt.ID, questions)

	result, err := e.attemptSvc.CompleteAttempt(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	if !almostEqual(result.TotalScore, 2.75) {
		t.Fatalf("total = %v, want 2.75", result.TotalScore)
	}
	if result.Correct != 3 || result.Incorrect != 1 || result.Unanswered != 1 || result.Attempted != 4 {
		t.Fatalf("counters = %+v", result)
	}
	if !almostEqual(result.MaxScore, 5) || !almostEqual(result.Percentage, 55) || result.Band != BandIntermediate {
		t.Fatalf("max=%v pct=%v band=%s", result.MaxScore, result.Percentage, result.Band)
	}
	if len(result.Breakdown) != 5 || result.Breakdown[4].Outcome != "unanswered" {
		t.Fatalf("breakdown = %+v", result.Breakdown)
	}
	if got := e.status(attempt.ID); got != model.AttemptStatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}

	view, err := e.attemptSvc.GetAttempt(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if view.Result == nil || !almostEqual(view.Result.TotalScore, 2.75) {
		t.Fatalf("stored result = %+v", view.Result)
	}
	for _, a := range view.Answers {
		if a.IsCorrect == nil || a.Marks == nil {
			t.Fatalf("answer %d was not marked", a.QuestionID)
		}
	}
}

func TestCompleteAttempt_Idempotent(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()

	attempt, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	e.answerStandard("u1", attempt.ID, questions)

	first, err := e.attemptSvc.CompleteAttempt(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}
	second, err := e.attemptSvc.CompleteAttempt(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if first.TotalScore != second.TotalScore || second.Status != model.AttemptStatusCompleted {
		t.Fatalf("second complete = %+v, first = %+v", second, first)
	}
	if got := testutil.ToFloat64(e.metrics.AttemptsCompleted); got != 1 {
		t.Fatalf("completions counted = %v, want 1", got)
	}
}

func TestCompleteAttempt_ConcurrentCompletesAgree(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()

	attempt, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	e.answerStandard("u1", attempt.ID, questions)

	const callers = 8
	totals := make([]float64, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.attemptSvc.CompleteAttempt(context.Background(), "u1", attempt.ID)
			errs[i] = err
			if err == nil {
				totals[i] = res.TotalScore
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !almostEqual(totals[i], 2.75) {
			t.Fatalf("caller %d total = %v", i, totals[i])
		}
	}
	if got := testutil.ToFloat64(e.metrics.AttemptsCompleted); got != 1 {
		t.Fatalf("completions counted = %v, want 1", got)
	}
}

func TestCompleteAttempt_UsesFrozenQuestions(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()

	attempt, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	e.answer("u1", attempt.ID, questions[0], "A")

	// Content edits after the attempt started must not change its scoring.
	if err := e.db.Model(&model.Question{}).Where("id = ?", questions[0]).
		Update("answer_key", datatypes.JSON(`{"label":"B"}`)).Error; err != nil {
		t.Fatalf("edit question: %v", err)
	}

	result, err := e.attemptSvc.CompleteAttempt(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	if result.Correct != 1 {
		t.Fatalf("correct = %d, want 1 against the frozen key", result.Correct)
	}
}

func TestRecordAnswer_Validation(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	outside := e.seedQuestions(1, 1, model.DifficultyEasy)[0]
	ctx := context.Background()

	attempt, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)

	tests := []struct {
		name       string
		userID     string
		questionID uint
		req        dto.AnswerRequest
		want       error
	}{
		{name: "unknown option", userID: "u1", questionID: questions[0], req: dto.AnswerRequest{Label: "Z"}, want: ErrInvalidAnswer},
		{name: "wrong shape", userID: "u1", questionID: questions[0], req: dto.AnswerRequest{Labels: []string{"A"}}, want: ErrInvalidAnswer},
		{name: "question not in attempt", userID: "u1", questionID: outside, req: dto.AnswerRequest{Label: "A"}, want: ErrInvalidAnswer},
		{name: "someone else's attempt", userID: "u2", questionID: questions[0], req: dto.AnswerRequest{Label: "A"}, want: ErrAttemptNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.attemptSvc.RecordAnswer(ctx, tc.userID, attempt.ID, tc.questionID, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRecordAnswer_LastWriteWins(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()

	attempt, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	first, err := e.attemptSvc.RecordAnswer(ctx, "u1", attempt.ID, questions[0], dto.AnswerRequest{Label: "B"})
	if err != nil {
		t.Fatalf("first answer: %v", err)
	}
	second, err := e.attemptSvc.RecordAnswer(ctx, "u1", attempt.ID, questions[0], dto.AnswerRequest{Label: "A"})
	if err != nil {
		t.Fatalf("second answer: %v", err)
	}
	if second.Revision <= first.Revision {
		t.Fatalf("revision did not advance: %d then %d", first.Revision, second.Revision)
	}

	result, err := e.attemptSvc.CompleteAttempt(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	if result.Correct != 1 || result.Attempted != 1 {
		t.Fatalf("result = %+v, want the second answer to count", result)
	}
}

func TestAbandonAttempt_IsTerminal(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()

	attempt, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	summary, err := e.attemptSvc.AbandonAttempt(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("AbandonAttempt: %v", err)
	}
	if summary.Status != model.AttemptStatusAbandoned || summary.EndedAt == nil {
		t.Fatalf("summary = %+v", summary)
	}

	if _, err := e.attemptSvc.RecordAnswer(ctx, "u1", attempt.ID, questions[0], dto.AnswerRequest{Label: "A"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("answer after abandon: err = %v, want ErrInvalidState", err)
	}
	if _, err := e.attemptSvc.CompleteAttempt(ctx, "u1", attempt.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("complete after abandon: err = %v, want ErrInvalidState", err)
	}
	if _, err := e.attemptSvc.AbandonAttempt(ctx, "u1", attempt.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second abandon: err = %v, want ErrInvalidState", err)
	}

	next, err := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	if err != nil {
		t.Fatalf("CreateAttempt after abandon: %v", err)
	}
	if next.ID == attempt.ID || next.Resumed {
		t.Fatalf("create after abandon returned %d resumed=%v", next.ID, next.Resumed)
	}
}

func TestAbandonAttempt_CompletedCannotBeAbandoned(t *testing.T) {
	e := newTestEnv(t)
	testID, _ := e.standardSetup()
	ctx := context.Background()

	attempt, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	if _, err := e.attemptSvc.CompleteAttempt(ctx, "u1", attempt.ID); err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	_, err := e.attemptSvc.AbandonAttempt(ctx, "u1", attempt.ID)
	var se *StateError
	if !errors.As(err, &se) || se.Status != model.AttemptStatusCompleted {
		t.Fatalf("err = %v, want a StateError naming completed", err)
	}
}

func TestListMyAttempts(t *testing.T) {
	e := newTestEnv(t)
	testID, _ := e.standardSetup()
	ctx := context.Background()

	first, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	if _, err := e.attemptSvc.AbandonAttempt(ctx, "u1", first.ID); err != nil {
		t.Fatalf("AbandonAttempt: %v", err)
	}
	if _, err := e.attemptSvc.CreateAttempt(ctx, "u1", testID); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if _, err := e.attemptSvc.CreateAttempt(ctx, "u2", testID); err != nil {
		t.Fatalf("CreateAttempt u2: %v", err)
	}

	mine, err := e.attemptSvc.ListMyAttempts(ctx, "u1", testID)
	if err != nil {
		t.Fatalf("ListMyAttempts: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("attempts = %d, want 2", len(mine))
	}
	for _, a := range mine {
		if a.UserID != "u1" {
			t.Fatalf("listed attempt of %s", a.UserID)
		}
	}
}

func TestGetAttempt_AnswerKeyShownOnlyAfterCompletion(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()
	if err := e.db.Model(&model.Question{}).Where("id = ?", questions[0]).Update("explanation", "Alpha is the first option").Error; err != nil {
		t.Fatalf("set explanation: %v", err)
	}

	attempt, err := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	e.answerStandard("u1", attempt.ID, questions)

	inProgress, err := e.attemptSvc.GetAttempt(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	for _, q := range inProgress.Questions {
		if q.AnswerKey != nil || q.Explanation != nil {
			t.Fatalf("question %d shows its key while in progress", q.QuestionID)
		}
	}

	if _, err := e.attemptSvc.CompleteAttempt(ctx, "u1", attempt.ID); err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	done, err := e.attemptSvc.GetAttempt(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("GetAttempt after completion: %v", err)
	}
	for _, q := range done.Questions {
		if string(q.AnswerKey) != `{"label":"A"}` {
			t.Fatalf("question %d answer key = %s", q.QuestionID, q.AnswerKey)
		}
		if q.QuestionID == questions[0] {
			if q.Explanation == nil || *q.Explanation != "Alpha is the first option" {
				t.Fatalf("explanation = %v", q.Explanation)
			}
		} else if q.Explanation != nil {
			t.Fatalf("question %d has an explanation it was never given", q.QuestionID)
		}
	}
}

func TestGetAttempt_RuleChangeKeepsStoredPercentage(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()

	attempt, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	e.answerStandard("u1", attempt.ID, questions)
	if _, err := e.attemptSvc.CompleteAttempt(ctx, "u1", attempt.ID); err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}

	doubled := 2.0
	if _, err := e.ruleSvc.UpdateRule(ctx, 1, dto.ScoringRuleRequest{ExamID: 1, MarksCorrect: &doubled, MarksIncorrect: -0.25}); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}

	view, err := e.attemptSvc.GetAttempt(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	res := view.Result
	if res == nil || !almostEqual(res.MaxScore, 5) || !almostEqual(res.Percentage, 55) || res.Band != BandIntermediate {
		t.Fatalf("result after rule change = %+v", res)
	}
}
