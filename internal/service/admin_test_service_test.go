package service

import (
	"context"
	"errors"
	"testing"

	"github.com/lshigami/examprep/internal/model"
)

func TestAdminGetAttemptAnswers(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()

	attempt, err := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	e.answer("u1", attempt.ID, questions[3], "B")
	e.answer("u1", attempt.ID, questions[0], "A")

	answers, err := e.adminSvc.GetAttemptAnswers(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("GetAttemptAnswers: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("got %d answers, want 2", len(answers))
	}
	if answers[0].QuestionID != questions[0] || answers[1].QuestionID != questions[3] {
		t.Fatalf("answers not ordered by question: %d, %d", answers[0].QuestionID, answers[1].QuestionID)
	}

	if _, err := e.adminSvc.GetAttemptAnswers(ctx, attempt.ID+100); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("missing attempt err = %v, want ErrAttemptNotFound", err)
	}
}

func TestAdminGetAttemptAnswers_EmptyAttempt(t *testing.T) {
	e := newTestEnv(t)
	testID, _ := e.standardSetup()

	attempt, err := e.attemptSvc.CreateAttempt(context.Background(), "u1", testID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	answers, err := e.adminSvc.GetAttemptAnswers(context.Background(), attempt.ID)
	if err != nil {
		t.Fatalf("GetAttemptAnswers: %v", err)
	}
	if answers == nil || len(answers) != 0 {
		t.Fatalf("answers = %#v, want empty slice", answers)
	}
}

func TestForceAbandon_RefusesPendingResult(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()

	attempt, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	e.answerStandard("u1", attempt.ID, questions)
	e.store.fail(1, false, false)
	if _, err := e.attemptSvc.CompleteAttempt(ctx, "u1", attempt.ID); err == nil {
		t.Fatal("complete succeeded against a failing store")
	}

	if _, err := e.adminSvc.ForceAbandon(ctx, attempt.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("ForceAbandon err = %v, want ErrInvalidState", err)
	}
	if got := e.status(attempt.ID); got != model.AttemptStatusInProgress {
		t.Fatalf("status = %s, want in_progress", got)
	}

	resp, err := e.attemptSvc.RecoverResult(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("RecoverResult: %v", err)
	}
	if resp.Status != RecoveryPersisted.String() {
		t.Fatalf("recover status = %s, want persisted", resp.Status)
	}
	if pending, _ := e.writer.Pending(ctx, attempt.ID); pending != nil {
		t.Fatal("cached result survived recovery")
	}
}

func TestForceAbandon_InProgress(t *testing.T) {
	e := newTestEnv(t)
	testID, _ := e.standardSetup()
	ctx := context.Background()

	attempt, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	summary, err := e.adminSvc.ForceAbandon(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("ForceAbandon: %v", err)
	}
	if summary.Status != model.AttemptStatusAbandoned {
		t.Fatalf("status = %s, want abandoned", summary.Status)
	}
}
