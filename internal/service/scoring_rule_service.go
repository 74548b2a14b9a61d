package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/model"
	"github.com/lshigami/examprep/internal/repository"
	"github.com/lshigami/examprep/internal/scoring"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type ScoringRuleService interface {
	CreateRule(ctx context.Context, req dto.ScoringRuleRequest) (*dto.ScoringRuleResponse, error)
	UpdateRule(ctx context.Context, examID uint, req dto.ScoringRuleRequest) (*dto.ScoringRuleResponse, error)
	GetRule(ctx context.Context, examID uint) (*dto.ScoringRuleResponse, error)
	ListRules(ctx context.Context) ([]dto.ScoringRuleResponse, error)
	// RuleFor returns the rule used to score attempts of an exam.
	RuleFor(ctx context.Context, examID uint) (scoring.Rule, error)
}

type scoringRuleService struct {
	ruleRepo repository.ScoringRuleRepository
}

func NewScoringRuleService(ruleRepo repository.ScoringRuleRepository) ScoringRuleService {
	return &scoringRuleService{ruleRepo: ruleRepo}
}

func ruleFromRequest(req dto.ScoringRuleRequest) (scoring.Rule, error) {
	if req.MarksCorrect == nil {
		return scoring.Rule{}, fmt.Errorf("%w: marks_correct is required", ErrInvalidInput)
	}
	rule := scoring.Rule{
		Correct:        *req.MarksCorrect,
		Incorrect:      req.MarksIncorrect,
		Unanswered:     req.MarksUnanswered,
		PartialAllowed: req.PartialAllowed,
	}
	if err := rule.Validate(); err != nil {
		return scoring.Rule{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return rule, nil
}

func (s *scoringRuleService) CreateRule(ctx context.Context, req dto.ScoringRuleRequest) (*dto.ScoringRuleResponse, error) {
	rule, err := ruleFromRequest(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.ruleRepo.FindByExamID(ctx, req.ExamID); err == nil {
		return nil, fmt.Errorf("%w: exam %d", ErrDuplicateScoringRule, req.ExamID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("error checking scoring rule of exam %d: %w", req.ExamID, err)
	}

	m := model.ScoringRule{
		ExamID:          req.ExamID,
		MarksCorrect:    rule.Correct,
		MarksIncorrect:  rule.Incorrect,
		MarksUnanswered: rule.Unanswered,
		PartialAllowed:  rule.PartialAllowed,
	}
	if err := s.ruleRepo.Create(ctx, &m); err != nil {
		// Lost a race against another create; the unique index held.
		if _, ferr := s.ruleRepo.FindByExamID(ctx, req.ExamID); ferr == nil {
			return nil, fmt.Errorf("%w: exam %d", ErrDuplicateScoringRule, req.ExamID)
		}
		log.Error().Err(err).Uint("examID", req.ExamID).Msg("CreateRule: Failed to store scoring rule")
		return nil, fmt.Errorf("error creating scoring rule: %w", err)
	}
	log.Info().Uint("examID", m.ExamID).Float64("correct", m.MarksCorrect).Float64("incorrect", m.MarksIncorrect).
		Msg("CreateRule: Scoring rule created")
	return toRuleResponse(&m), nil
}

func (s *scoringRuleService) UpdateRule(ctx context.Context, examID uint, req dto.ScoringRuleRequest) (*dto.ScoringRuleResponse, error) {
	rule, err := ruleFromRequest(req)
	if err != nil {
		return nil, err
	}
	m, err := s.ruleRepo.FindByExamID(ctx, examID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: exam %d", ErrScoringRuleNotFound, examID)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading scoring rule of exam %d: %w", examID, err)
	}
	m.MarksCorrect = rule.Correct
	m.MarksIncorrect = rule.Incorrect
	m.MarksUnanswered = rule.Unanswered
	m.PartialAllowed = rule.PartialAllowed
	if err := s.ruleRepo.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("error updating scoring rule of exam %d: %w", examID, err)
	}
	return toRuleResponse(m), nil
}

func (s *scoringRuleService) GetRule(ctx context.Context, examID uint) (*dto.ScoringRuleResponse, error) {
	m, err := s.ruleRepo.FindByExamID(ctx, examID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: exam %d", ErrScoringRuleNotFound, examID)
	}
	if err != nil {
		return nil, err
	}
	return toRuleResponse(m), nil
}

func (s *scoringRuleService) ListRules(ctx context.Context) ([]dto.ScoringRuleResponse, error) {
	rules, err := s.ruleRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching scoring rules: %w", err)
	}
	resp := make([]dto.ScoringRuleResponse, 0, len(rules))
	for i := range rules {
		resp = append(resp, *toRuleResponse(&rules[i]))
	}
	return resp, nil
}

func (s *scoringRuleService) RuleFor(ctx context.Context, examID uint) (scoring.Rule, error) {
	m, err := s.ruleRepo.FindByExamID(ctx, examID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn().Uint("examID", examID).Msg("RuleFor: Exam has no scoring rule, using default")
		return scoring.DefaultRule, nil
	}
	if err != nil {
		return scoring.Rule{}, fmt.Errorf("error loading scoring rule of exam %d: %w", examID, err)
	}
	return scoring.Rule{
		Correct:        m.MarksCorrect,
		Incorrect:      m.MarksIncorrect,
		Unanswered:     m.MarksUnanswered,
		PartialAllowed: m.PartialAllowed,
	}, nil
}

func toRuleResponse(m *model.ScoringRule) *dto.ScoringRuleResponse {
	var resp dto.ScoringRuleResponse
	copier.Copy(&resp, m)
	return &resp
}
