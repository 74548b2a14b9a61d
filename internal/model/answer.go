package model

import (
	"time"

	"gorm.io/datatypes"
)

// AnswerRecord is the latest value a user submitted for one question of an
// attempt. Correctness and marks stay nil until the attempt is completed.
type AnswerRecord struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	TestAttemptID uint           `json:"test_attempt_id" gorm:"not null;uniqueIndex:idx_answer_records_pair"`
	QuestionID    uint           `json:"question_id" gorm:"not null;uniqueIndex:idx_answer_records_pair"`
	Value         datatypes.JSON `json:"value" gorm:"not null"`
	IsCorrect     *bool          `json:"is_correct,omitempty"`
	Marks         *float64       `json:"marks,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
