package service

import (
	"context"
	"testing"
	"time"

	"github.com/lshigami/examprep/database"
	"github.com/lshigami/examprep/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// seedDuplicates drops the single-active index and stores in-progress
// attempts for one pair, as left behind by an older deployment.
func (e *testEnv) seedDuplicates(userID string, testID uint, started ...time.Time) []uint {
	e.t.Helper()
	e.db.Exec("DROP INDEX IF EXISTS " + database.SingleActiveIndex)
	ids := make([]uint, 0, len(started))
	for _, at := range started {
		a := &model.TestAttempt{UserID: userID, TestID: testID, StartedAt: at}
		if err := e.attempts.CreateInProgress(context.Background(), a); err != nil {
			e.t.Fatalf("seed attempt: %v", err)
		}
		ids = append(ids, a.ID)
	}
	return ids
}

func TestReconcile_KeepsNewestAttempt(t *testing.T) {
	e := newTestEnv(t)
	testID, _ := e.standardSetup()
	ctx := context.Background()

	t1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(10 * time.Minute)
	// Inserted newest first so ids do not decide the order.
	ids := e.seedDuplicates("u1", testID, t2, t1)
	newer, older := ids[0], ids[1]
	e.seedDuplicates("u2", testID, t1)

	violations, err := e.reconcileSvc.FindViolations(ctx)
	if err != nil {
		t.Fatalf("FindViolations: %v", err)
	}
	if len(violations) != 1 || violations[0].UserID != "u1" || violations[0].Count != 2 {
		t.Fatalf("violations = %+v", violations)
	}

	report, err := e.reconcileSvc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.GroupsFixed != 1 || report.AttemptsAbandoned != 1 {
		t.Fatalf("report = %+v", report)
	}
	group := report.Groups[0]
	if group.Kept != newer || len(group.Abandoned) != 1 || group.Abandoned[0] != older {
		t.Fatalf("group = %+v, want keep %d abandon %d", group, newer, older)
	}
	if e.status(newer) != model.AttemptStatusInProgress || e.status(older) != model.AttemptStatusAbandoned {
		t.Fatal("statuses do not match the report")
	}
	if got := testutil.ToFloat64(e.metrics.ReconcileGroupsFixed); got != 1 {
		t.Fatalf("groups fixed counter = %v, want 1", got)
	}

	again, err := e.reconcileSvc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if again.GroupsFixed != 0 || again.AttemptsAbandoned != 0 {
		t.Fatalf("second sweep changed data: %+v", again)
	}
}

func TestReconcile_SameStartTimeKeepsHighestID(t *testing.T) {
	e := newTestEnv(t)
	testID, _ := e.standardSetup()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ids := e.seedDuplicates("u1", testID, at, at, at)

	report, err := e.reconcileSvc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.AttemptsAbandoned != 2 || report.Groups[0].Kept != ids[2] {
		t.Fatalf("report = %+v, want attempt %d kept", report, ids[2])
	}
}

func TestReconcile_LeavesCompletedAttemptsAlone(t *testing.T) {
	e := newTestEnv(t)
	testID, _ := e.standardSetup()
	ctx := context.Background()

	done, err := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if _, err := e.attemptSvc.CompleteAttempt(ctx, "u1", done.ID); err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	t1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	e.seedDuplicates("u1", testID, t1, t1.Add(time.Minute))

	if _, err := e.reconcileSvc.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := e.status(done.ID); got != model.AttemptStatusCompleted {
		t.Fatalf("completed attempt became %s", got)
	}
}

func TestReconcile_UnblocksSingleActiveIndex(t *testing.T) {
	e := newTestEnv(t)
	testID, _ := e.standardSetup()
	ctx := context.Background()
	t1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ids := e.seedDuplicates("u1", testID, t1, t1.Add(time.Minute))

	if err := database.Migrate(e.db); err != nil {
		t.Fatalf("Migrate with duplicates present: %v", err)
	}
	if err := database.EnsureSingleActiveIndex(e.db); err == nil {
		t.Fatal("index created over duplicate in-progress attempts")
	}
	if _, err := e.reconcileSvc.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if err := database.EnsureSingleActiveIndex(e.db); err != nil {
		t.Fatalf("EnsureSingleActiveIndex after sweep: %v", err)
	}

	if e.status(ids[1]) != model.AttemptStatusInProgress || e.status(ids[0]) != model.AttemptStatusAbandoned {
		t.Fatal("sweep kept the wrong attempt")
	}
	extra := &model.TestAttempt{UserID: "u1", TestID: testID}
	if err := e.attempts.CreateInProgress(ctx, extra); err == nil {
		t.Fatal("index did not reject a second in-progress attempt")
	}
}

func TestReconcile_RecoversPendingResultFirst(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()

	older, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	e.answerStandard("u1", older.ID, questions)
	e.store.fail(1, false, false)
	if _, err := e.attemptSvc.CompleteAttempt(ctx, "u1", older.ID); err == nil {
		t.Fatal("complete succeeded against a failing store")
	}
	newer := e.seedDuplicates("u1", testID, time.Now().UTC().Add(time.Hour))[0]

	report, err := e.reconcileSvc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.AttemptsAbandoned != 0 {
		t.Fatalf("report = %+v, want nothing abandoned", report)
	}
	if got := e.status(older.ID); got != model.AttemptStatusCompleted {
		t.Fatalf("attempt with cached result is %s, want completed", got)
	}
	if got := e.status(newer); got != model.AttemptStatusInProgress {
		t.Fatalf("newest attempt is %s, want in_progress", got)
	}
	if pending, _ := e.writer.Pending(ctx, older.ID); pending != nil {
		t.Fatal("cached result survived the sweep")
	}
}

func TestReconcile_KeepsAttemptWhenRecoveryFails(t *testing.T) {
	e := newTestEnv(t)
	testID, questions := e.standardSetup()
	ctx := context.Background()

	older, _ := e.attemptSvc.CreateAttempt(ctx, "u1", testID)
	e.answerStandard("u1", older.ID, questions)
	e.store.fail(2, false, false)
	if _, err := e.attemptSvc.CompleteAttempt(ctx, "u1", older.ID); err == nil {
		t.Fatal("complete succeeded against a failing store")
	}
	e.seedDuplicates("u1", testID, time.Now().UTC().Add(time.Hour))

	if _, err := e.reconcileSvc.Reconcile(ctx); err == nil {
		t.Fatal("sweep reported success although a cached result could not be recovered")
	}
	if got := e.status(older.ID); got != model.AttemptStatusInProgress {
		t.Fatalf("attempt with cached result is %s, want in_progress", got)
	}
	if pending, _ := e.writer.Pending(ctx, older.ID); pending == nil {
		t.Fatal("cached result was dropped")
	}
}
