package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TestTypeRecommended = "recommended"
	TestTypeCustom      = "custom"
)

// DifficultyMixed in a stored filter means any difficulty.
const DifficultyMixed = "mixed"

type Test struct {
	ID                  uint           `gorm:"primarykey" json:"id"`
	ExamID              uint           `json:"exam_id" gorm:"not null;index"`
	Title               string         `json:"title" gorm:"not null"`
	Description         string         `json:"description,omitempty"`
	Type                string         `json:"type" gorm:"not null;default:'recommended'"`
	QuestionCount       int            `json:"question_count" gorm:"not null"`
	DurationMinutes     int            `json:"duration_minutes" gorm:"not null"`
	RandomizePerAttempt bool           `json:"randomize_per_attempt" gorm:"not null;default:false"`
	SubjectID           *uint          `json:"subject_id,omitempty"`
	TopicIDs            datatypes.JSON `json:"topic_ids,omitempty"`
	Difficulty          string         `json:"difficulty,omitempty"`
	CreatedBy           string         `json:"created_by,omitempty" gorm:"index"`
	IsActive            bool           `json:"is_active" gorm:"not null;default:true"`
	Questions           []TestQuestion `json:"questions,omitempty" gorm:"foreignKey:TestID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// TestQuestion is one entry of a test's curated, ordered question list.
type TestQuestion struct {
	ID         uint `gorm:"primarykey" json:"id"`
	TestID     uint `json:"test_id" gorm:"not null;uniqueIndex:idx_test_questions_pair"`
	QuestionID uint `json:"question_id" gorm:"not null;uniqueIndex:idx_test_questions_pair"`
	Position   int  `json:"position" gorm:"not null"`
}
