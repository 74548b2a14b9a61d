package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Question kinds. The kind selects the scoring variant used for the question.
const (
	QuestionKindSingleChoice = "single_choice"
	QuestionKindMultiChoice  = "multi_choice"
	QuestionKindFreeForm     = "free_form"
)

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Question is owned by content management; this service only reads it.
type Question struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	ExamID      uint           `json:"exam_id" gorm:"not null;index"`
	SubjectID   uint           `json:"subject_id" gorm:"not null;index:idx_questions_pool,priority:1"`
	TopicID     uint           `json:"topic_id" gorm:"not null;index:idx_questions_pool,priority:2"`
	Difficulty  string         `json:"difficulty" gorm:"not null;index:idx_questions_pool,priority:3"`
	Text        string         `json:"text" gorm:"type:text;not null"`
	Kind        string         `json:"kind" gorm:"not null"`
	Options     datatypes.JSON `json:"options"`    // {"A": "text", "B": "text"}
	AnswerKey   datatypes.JSON `json:"answer_key"` // {"label": "A"} | {"labels": [...]} | {"values": [...]}
	Explanation *string        `json:"explanation,omitempty" gorm:"type:text"`
	IsActive    bool           `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
