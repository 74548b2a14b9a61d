package service

import (
	"context"
	"errors"
	"testing"

	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/scoring"
)

func TestCreateRule_OnePerExam(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	correct := 4.0

	if _, err := e.ruleSvc.CreateRule(ctx, dto.ScoringRuleRequest{ExamID: 7, MarksCorrect: &correct, MarksIncorrect: -1}); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	_, err := e.ruleSvc.CreateRule(ctx, dto.ScoringRuleRequest{ExamID: 7, MarksCorrect: &correct})
	if !errors.Is(err, ErrDuplicateScoringRule) {
		t.Fatalf("err = %v, want ErrDuplicateScoringRule", err)
	}

	rule, err := e.ruleSvc.RuleFor(ctx, 7)
	if err != nil {
		t.Fatalf("RuleFor: %v", err)
	}
	if rule.Correct != 4 || rule.Incorrect != -1 {
		t.Fatalf("rule = %+v", rule)
	}
}

func TestCreateRule_RejectsInvalid(t *testing.T) {
	e := newTestEnv(t)
	correct := 1.0
	_, err := e.ruleSvc.CreateRule(context.Background(), dto.ScoringRuleRequest{ExamID: 1, MarksCorrect: &correct, MarksIncorrect: 2})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestUpdateRule(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	correct := 1.0
	if _, err := e.ruleSvc.UpdateRule(ctx, 3, dto.ScoringRuleRequest{ExamID: 3, MarksCorrect: &correct}); !errors.Is(err, ErrScoringRuleNotFound) {
		t.Fatalf("update of missing rule: err = %v, want ErrScoringRuleNotFound", err)
	}

	e.seedRule(3, 1, 0, 0, false)
	updated := 2.0
	resp, err := e.ruleSvc.UpdateRule(ctx, 3, dto.ScoringRuleRequest{ExamID: 3, MarksCorrect: &updated, MarksIncorrect: -0.5, PartialAllowed: true})
	if err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if resp.MarksCorrect != 2 || resp.MarksIncorrect != -0.5 || !resp.PartialAllowed {
		t.Fatalf("updated = %+v", resp)
	}
}

func TestRuleFor_DefaultsWithoutRule(t *testing.T) {
	e := newTestEnv(t)
	rule, err := e.ruleSvc.RuleFor(context.Background(), 99)
	if err != nil {
		t.Fatalf("RuleFor: %v", err)
	}
	if rule != scoring.DefaultRule {
		t.Fatalf("rule = %+v, want default", rule)
	}
}

func TestCompleteAttempt_PartialCreditRule(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedRule(5, 4, -1, 0, true)

	q := e.seedMultiChoice(5)
	test := e.seedCuratedTest(5, []uint{q})
	attempt, err := e.attemptSvc.CreateAttempt(ctx, "u1", test)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if _, err := e.attemptSvc.RecordAnswer(ctx, "u1", attempt.ID, q, dto.AnswerRequest{Labels: []string{"A"}}); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	result, err := e.attemptSvc.CompleteAttempt(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	if !almostEqual(result.TotalScore, 2) || result.Breakdown[0].Outcome != string(scoring.OutcomePartial) {
		t.Fatalf("result = %+v", result)
	}
}

func TestScoreConverter(t *testing.T) {
	conv := NewScoreConverterService()
	tests := []struct {
		total, max float64
		pct        float64
		band       string
	}{
		{total: 9, max: 10, pct: 90, band: BandExpert},
		{total: 7.5, max: 10, pct: 75, band: BandAdvanced},
		{total: 2.75, max: 5, pct: 55, band: BandIntermediate},
		{total: 1, max: 3, pct: 33.33, band: BandBeginner},
		{total: -2, max: 5, pct: 0, band: BandBeginner},
	}
	for _, tc := range tests {
		pct, err := conv.ConvertToPercentage(tc.total, tc.max)
		if err != nil {
			t.Fatalf("ConvertToPercentage(%v, %v): %v", tc.total, tc.max, err)
		}
		if !almostEqual(pct, tc.pct) || conv.Band(pct) != tc.band {
			t.Errorf("%v/%v = %v %s, want %v %s", tc.total, tc.max, pct, conv.Band(pct), tc.pct, tc.band)
		}
	}
	if _, err := conv.ConvertToPercentage(1, 0); err == nil {
		t.Error("zero max score accepted")
	}
	if _, err := conv.ConvertToPercentage(6, 5); err == nil {
		t.Error("total above max accepted")
	}
}
