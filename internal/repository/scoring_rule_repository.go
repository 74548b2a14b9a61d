package repository

import (
	"context"

	"github.com/lshigami/examprep/internal/model"
	"gorm.io/gorm"
)

type ScoringRuleRepository interface {
	Create(ctx context.Context, rule *model.ScoringRule) error
	Update(ctx context.Context, rule *model.ScoringRule) error
	FindByExamID(ctx context.Context, examID uint) (*model.ScoringRule, error)
	FindAll(ctx context.Context) ([]model.ScoringRule, error)
}

type scoringRuleRepository struct {
	db *gorm.DB
}

func NewScoringRuleRepository(db *gorm.DB) ScoringRuleRepository {
	return &scoringRuleRepository{db: db}
}

func (r *scoringRuleRepository) Create(ctx context.Context, rule *model.ScoringRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *scoringRuleRepository) Update(ctx context.Context, rule *model.ScoringRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *scoringRuleRepository) FindByExamID(ctx context.Context, examID uint) (*model.ScoringRule, error) {
	var rule model.ScoringRule
	if err := r.db.WithContext(ctx).Where("exam_id = ?", examID).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *scoringRuleRepository) FindAll(ctx context.Context) ([]model.ScoringRule, error) {
	var rules []model.ScoringRule
	if err := r.db.WithContext(ctx).Order("exam_id ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}
