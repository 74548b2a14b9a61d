package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	AttemptStatusInProgress = "in_progress"
	AttemptStatusCompleted  = "completed"
	AttemptStatusAbandoned  = "abandoned"
)

// TestAttempt is one user's run through one test. At most one attempt per
// (user_id, test_id) may be in_progress; see database.EnsureSingleActiveIndex.
type TestAttempt struct {
	ID              uint              `gorm:"primarykey" json:"id"`
	UserID          string            `json:"user_id" gorm:"not null;index:idx_test_attempts_pair,priority:1"`
	TestID          uint              `json:"test_id" gorm:"not null;index:idx_test_attempts_pair,priority:2"`
	Test            Test              `json:"test,omitempty" gorm:"foreignKey:TestID"`
	Status          string            `json:"status" gorm:"not null;index;default:'in_progress'"`
	Revision        int64             `json:"revision" gorm:"not null;default:0"`
	StartedAt       time.Time         `json:"started_at" gorm:"not null"`
	RequestedCount  int               `json:"requested_count"`
	PoolExhausted   bool              `json:"pool_exhausted" gorm:"not null;default:false"`
	EndedAt         *time.Time        `json:"ended_at,omitempty"`
	TotalScore      *float64          `json:"total_score,omitempty"`
	MaxScore        *float64          `json:"max_score,omitempty"`
	Attempted       int               `json:"attempted"`
	CorrectCount    int               `json:"correct_count"`
	IncorrectCount  int               `json:"incorrect_count"`
	UnansweredCount int               `json:"unanswered_count"`
	Breakdown       datatypes.JSON    `json:"breakdown,omitempty"`
	Questions       []AttemptQuestion `json:"questions,omitempty" gorm:"foreignKey:TestAttemptID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Answers         []AnswerRecord    `json:"answers,omitempty" gorm:"foreignKey:TestAttemptID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (a *TestAttempt) IsTerminal() bool {
	return a.Status == AttemptStatusCompleted || a.Status == AttemptStatusAbandoned
}

// AttemptQuestion freezes a question as it was when the attempt started, so
// later content edits cannot change how the attempt is scored.
type AttemptQuestion struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	TestAttemptID uint           `json:"test_attempt_id" gorm:"not null;uniqueIndex:idx_attempt_questions_pair"`
	QuestionID    uint           `json:"question_id" gorm:"not null;uniqueIndex:idx_attempt_questions_pair"`
	Position      int            `json:"position" gorm:"not null"`
	Kind          string         `json:"kind" gorm:"not null"`
	Options       datatypes.JSON `json:"options"`
	AnswerKey     datatypes.JSON `json:"-"`
	Explanation   *string        `json:"-" gorm:"type:text"`
}
