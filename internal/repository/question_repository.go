package repository

import (
	"context"

	"github.com/lshigami/examprep/internal/model"
	"github.com/lshigami/examprep/internal/pool"
	"gorm.io/gorm"
)

// QuestionRepository reads the question bank. It backs the pool index.
type QuestionRepository interface {
	Create(ctx context.Context, question *model.Question) error
	FindByID(ctx context.Context, id uint) (*model.Question, error)
	FindByIDs(ctx context.Context, ids []uint) ([]model.Question, error)
	MatchIDs(ctx context.Context, f pool.Filter) ([]uint, error)
	CountByDifficulty(ctx context.Context, f pool.Filter) (map[string]int64, error)
}

type questionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) Create(ctx context.Context, question *model.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

func (r *questionRepository) FindByID(ctx context.Context, id uint) (*model.Question, error) {
	var question model.Question
	if err := r.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

// FindByIDs returns the questions in no particular order. Missing ids are
// skipped.
func (r *questionRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.Question, error) {
	var questions []model.Question
	if len(ids) == 0 {
		return questions, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *questionRepository) poolQuery(ctx context.Context, f pool.Filter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&model.Question{}).
		Where("exam_id = ? AND is_active = ?", f.ExamID, true)
	if f.SubjectID != nil {
		q = q.Where("subject_id = ?", *f.SubjectID)
	}
	if len(f.TopicIDs) > 0 {
		q = q.Where("topic_id IN ?", f.TopicIDs)
	}
	return q
}

func (r *questionRepository) MatchIDs(ctx context.Context, f pool.Filter) ([]uint, error) {
	q := r.poolQuery(ctx, f)
	if !f.AnyDifficulty() {
		q = q.Where("difficulty = ?", f.Difficulty)
	}
	var ids []uint
	if err := q.Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *questionRepository) CountByDifficulty(ctx context.Context, f pool.Filter) (map[string]int64, error) {
	var rows []struct {
		Difficulty string
		Count      int64
	}
	err := r.poolQuery(ctx, f).
		Select("difficulty, COUNT(*) AS count").
		Group("difficulty").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Difficulty] = row.Count
	}
	return counts, nil
}
