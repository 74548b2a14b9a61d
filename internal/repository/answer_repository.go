package repository

import (
	"context"

	"github.com/lshigami/examprep/internal/model"
	"gorm.io/gorm"
)

// AnswerRepository reads answer records. Writes go through
// TestAttemptRepository so they are tied to the attempt's revision.
type AnswerRepository interface {
	FindByAttemptID(ctx context.Context, attemptID uint) ([]model.AnswerRecord, error)
}

type answerRepository struct {
	db *gorm.DB
}

func NewAnswerRepository(db *gorm.DB) AnswerRepository {
	return &answerRepository{db: db}
}

func (r *answerRepository) FindByAttemptID(ctx context.Context, attemptID uint) ([]model.AnswerRecord, error) {
	var answers []model.AnswerRecord
	err := r.db.WithContext(ctx).
		Where("test_attempt_id = ?", attemptID).
		Order("question_id ASC").
		Find(&answers).Error
	return answers, err
}
