package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lshigami/examprep/internal/model"
	"github.com/lshigami/examprep/internal/scoring"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FinalizeOutcome tells the caller what a finalize write found.
type FinalizeOutcome int

const (
	// FinalizeApplied means this call moved the attempt to completed.
	FinalizeApplied FinalizeOutcome = iota
	// FinalizeAlreadyCompleted means another call completed the attempt first.
	FinalizeAlreadyCompleted
	// FinalizeRevisionChanged means an answer was recorded after scoring.
	FinalizeRevisionChanged
	// FinalizeNotInProgress means the attempt was abandoned.
	FinalizeNotInProgress
)

func (o FinalizeOutcome) String() string {
	switch o {
	case FinalizeApplied:
		return "applied"
	case FinalizeAlreadyCompleted:
		return "already_completed"
	case FinalizeRevisionChanged:
		return "revision_changed"
	case FinalizeNotInProgress:
		return "not_in_progress"
	}
	return fmt.Sprintf("FinalizeOutcome(%d)", int(o))
}

type AttemptFilter struct {
	UserID string
	TestID uint
	Status string
	Limit  int
	Offset int
}

// ActivePair is a (user, test) pair holding more than one in_progress attempt.
type ActivePair struct {
	UserID string
	TestID uint
	Count  int64
}

type TestAttemptRepository interface {
	// CreateInProgress inserts the attempt with its frozen question list.
	CreateInProgress(ctx context.Context, attempt *model.TestAttempt) error
	FindByID(ctx context.Context, id uint) (*model.TestAttempt, error)
	FindByIDWithDetails(ctx context.Context, id uint) (*model.TestAttempt, error)
	FindActive(ctx context.Context, userID string, testID uint) (*model.TestAttempt, error)
	FindQuestion(ctx context.Context, attemptID, questionID uint) (*model.AttemptQuestion, error)
	FindActiveByPair(ctx context.Context, userID string, testID uint) ([]model.TestAttempt, error)
	FindAll(ctx context.Context, f AttemptFilter) ([]model.TestAttempt, int64, error)
	FindAllByTestAndUser(ctx context.Context, testID uint, userID string) ([]model.TestAttempt, error)
	FindLatestByUser(ctx context.Context, userID string) (map[uint]model.TestAttempt, error)
	FindDuplicateActiveGroups(ctx context.Context) ([]ActivePair, error)
	// RecordAnswer bumps the attempt revision and upserts the answer in one
	// transaction. It returns the new revision.
	RecordAnswer(ctx context.Context, attemptID, questionID uint, value datatypes.JSON) (int64, error)
	// Finalize completes the attempt only if it is still in_progress at the
	// result's revision.
	Finalize(ctx context.Context, result *model.AttemptResult) (FinalizeOutcome, error)
	Abandon(ctx context.Context, id uint) error
	Delete(ctx context.Context, id uint) error
}

type testAttemptRepository struct {
	db *gorm.DB
}

func NewTestAttemptRepository(db *gorm.DB) TestAttemptRepository {
	return &testAttemptRepository{db: db}
}

func (r *testAttemptRepository) CreateInProgress(ctx context.Context, attempt *model.TestAttempt) error {
	attempt.Status = model.AttemptStatusInProgress
	attempt.Revision = 0
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = time.Now()
	}
	attempt.StartedAt = attempt.StartedAt.UTC()
	return write(ctx, r.db, "create attempt", func(tx *gorm.DB) error {
		return tx.Omit("Test").Create(attempt).Error
	})
}

func (r *testAttemptRepository) FindByID(ctx context.Context, id uint) (*model.TestAttempt, error) {
	var attempt model.TestAttempt
	if err := r.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *testAttemptRepository) FindByIDWithDetails(ctx context.Context, id uint) (*model.TestAttempt, error) {
	var attempt model.TestAttempt
	err := r.db.WithContext(ctx).
		Preload("Test").
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("attempt_questions.position ASC")
		}).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("answer_records.question_id ASC")
		}).
		First(&attempt, id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *testAttemptRepository) FindActive(ctx context.Context, userID string, testID uint) (*model.TestAttempt, error) {
	var attempt model.TestAttempt
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND test_id = ? AND status = ?", userID, testID, model.AttemptStatusInProgress).
		Order("started_at DESC, id DESC").
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *testAttemptRepository) FindQuestion(ctx context.Context, attemptID, questionID uint) (*model.AttemptQuestion, error) {
	var q model.AttemptQuestion
	err := r.db.WithContext(ctx).
		Where("test_attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&q).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *testAttemptRepository) FindActiveByPair(ctx context.Context, userID string, testID uint) ([]model.TestAttempt, error) {
	var attempts []model.TestAttempt
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND test_id = ? AND status = ?", userID, testID, model.AttemptStatusInProgress).
		Find(&attempts).Error
	return attempts, err
}

func (r *testAttemptRepository) FindAll(ctx context.Context, f AttemptFilter) ([]model.TestAttempt, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.TestAttempt{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.TestID != 0 {
		q = q.Where("test_id = ?", f.TestID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	var attempts []model.TestAttempt
	err := q.Order("started_at DESC, id DESC").Find(&attempts).Error
	return attempts, total, err
}

func (r *testAttemptRepository) FindAllByTestAndUser(ctx context.Context, testID uint, userID string) ([]model.TestAttempt, error) {
	var attempts []model.TestAttempt
	err := r.db.WithContext(ctx).
		Where("test_id = ? AND user_id = ?", testID, userID).
		Order("started_at DESC, id DESC").
		Find(&attempts).Error
	return attempts, err
}

// FindLatestByUser returns the user's most recent attempt per test.
func (r *testAttemptRepository) FindLatestByUser(ctx context.Context, userID string) (map[uint]model.TestAttempt, error) {
	var attempts []model.TestAttempt
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC, id DESC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[uint]model.TestAttempt)
	for _, a := range attempts {
		if _, ok := latest[a.TestID]; !ok {
			latest[a.TestID] = a
		}
	}
	return latest, nil
}

func (r *testAttemptRepository) FindDuplicateActiveGroups(ctx context.Context) ([]ActivePair, error) {
	var pairs []ActivePair
	err := r.db.WithContext(ctx).Model(&model.TestAttempt{}).
		Select("user_id, test_id, COUNT(*) AS count").
		Where("status = ?", model.AttemptStatusInProgress).
		Group("user_id, test_id").
		Having("COUNT(*) > 1").
		Order("user_id, test_id").
		Scan(&pairs).Error
	return pairs, err
}

func (r *testAttemptRepository) RecordAnswer(ctx context.Context, attemptID, questionID uint, value datatypes.JSON) (int64, error) {
	var revision int64
	err := write(ctx, r.db, "record answer", func(tx *gorm.DB) error {
		res := tx.Model(&model.TestAttempt{}).
			Where("id = ? AND status = ?", attemptID, model.AttemptStatusInProgress).
			Update("revision", gorm.Expr("revision + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotInProgress
		}

		record := model.AnswerRecord{TestAttemptID: attemptID, QuestionID: questionID, Value: value}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "test_attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&record).Error
		if err != nil {
			return err
		}
		var current model.TestAttempt
		if err := tx.Select("id", "revision").First(&current, attemptID).Error; err != nil {
			return err
		}
		revision = current.Revision
		return nil
	})
	return revision, err
}

func (r *testAttemptRepository) Finalize(ctx context.Context, result *model.AttemptResult) (FinalizeOutcome, error) {
	breakdown, err := json.Marshal(result.Marks)
	if err != nil {
		return 0, fmt.Errorf("encoding breakdown of attempt %d: %w", result.AttemptID, err)
	}
	endedAt := result.CompletedAt

	var outcome FinalizeOutcome
	err = write(ctx, r.db, "finalize attempt", func(tx *gorm.DB) error {
		res := tx.Model(&model.TestAttempt{}).
			Where("id = ? AND status = ? AND revision = ?", result.AttemptID, model.AttemptStatusInProgress, result.Revision).
			Updates(map[string]interface{}{
				"status":           model.AttemptStatusCompleted,
				"ended_at":         &endedAt,
				"total_score":      result.Total,
				"max_score":        result.MaxScore,
				"attempted":        result.Attempted,
				"correct_count":    result.Correct,
				"incorrect_count":  result.Incorrect,
				"unanswered_count": result.Unanswered,
				"breakdown":        datatypes.JSON(breakdown),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var current model.TestAttempt
			if err := tx.Select("id", "status", "revision").First(&current, result.AttemptID).Error; err != nil {
				return err
			}
			switch current.Status {
			case model.AttemptStatusCompleted:
				outcome = FinalizeAlreadyCompleted
			case model.AttemptStatusAbandoned:
				outcome = FinalizeNotInProgress
			default:
				outcome = FinalizeRevisionChanged
			}
			return nil
		}

		for _, m := range result.Marks {
			err := tx.Model(&model.AnswerRecord{}).
				Where("test_attempt_id = ? AND question_id = ?", result.AttemptID, m.QuestionID).
				Updates(map[string]interface{}{
					"is_correct": m.Outcome == string(scoring.OutcomeCorrect),
					"marks":      m.Marks,
				}).Error
			if err != nil {
				return err
			}
		}
		outcome = FinalizeApplied
		return nil
	})
	return outcome, err
}

func (r *testAttemptRepository) Abandon(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	return write(ctx, r.db, "abandon attempt", func(tx *gorm.DB) error {
		res := tx.Model(&model.TestAttempt{}).
			Where("id = ? AND status = ?", id, model.AttemptStatusInProgress).
			Updates(map[string]interface{}{
				"status":   model.AttemptStatusAbandoned,
				"ended_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotInProgress
		}
		return nil
	})
}

// Delete removes the attempt with its frozen questions and answers.
func (r *testAttemptRepository) Delete(ctx context.Context, id uint) error {
	return write(ctx, r.db, "delete attempt", func(tx *gorm.DB) error {
		if err := tx.Where("test_attempt_id = ?", id).Delete(&model.AnswerRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("test_attempt_id = ?", id).Delete(&model.AttemptQuestion{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.TestAttempt{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
