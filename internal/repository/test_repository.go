package repository

import (
	"context"

	"github.com/lshigami/examprep/internal/model"
	"gorm.io/gorm"
)

type TestRepository interface {
	Create(ctx context.Context, test *model.Test) error
	FindByID(ctx context.Context, id uint) (*model.Test, error)
	FindByIDWithQuestions(ctx context.Context, id uint) (*model.Test, error)
	// FindVisible lists active recommended tests plus the user's own custom tests.
	FindVisible(ctx context.Context, userID string) ([]model.Test, error)
	FindAll(ctx context.Context) ([]model.Test, error)
}

type testRepository struct {
	db *gorm.DB
}

func NewTestRepository(db *gorm.DB) TestRepository {
	return &testRepository{db: db}
}

// Create stores the test together with its curated question list.
func (r *testRepository) Create(ctx context.Context, test *model.Test) error {
	return r.db.WithContext(ctx).Create(test).Error
}

func (r *testRepository) FindByID(ctx context.Context, id uint) (*model.Test, error) {
	var test model.Test
	err := r.db.WithContext(ctx).First(&test, id).Error
	return &test, err
}

func (r *testRepository) FindByIDWithQuestions(ctx context.Context, id uint) (*model.Test, error) {
	var test model.Test
	err := r.db.WithContext(ctx).Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("test_questions.position ASC")
	}).First(&test, id).Error
	return &test, err
}

func (r *testRepository) FindVisible(ctx context.Context, userID string) ([]model.Test, error) {
	var tests []model.Test
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("type = ? OR created_by = ?", model.TestTypeRecommended, userID).
		Order("created_at DESC").
		Find(&tests).Error
	return tests, err
}

func (r *testRepository) FindAll(ctx context.Context) ([]model.Test, error) {
	var tests []model.Test
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&tests).Error
	return tests, err
}
