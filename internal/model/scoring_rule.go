package model

import "time"

// ScoringRule holds the marking scheme of an exam. There is at most one per exam.
type ScoringRule struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	ExamID          uint      `json:"exam_id" gorm:"not null;uniqueIndex"`
	MarksCorrect    float64   `json:"marks_correct" gorm:"not null;default:1"`
	MarksIncorrect  float64   `json:"marks_incorrect" gorm:"not null;default:0"`
	MarksUnanswered float64   `json:"marks_unanswered" gorm:"not null;default:0"`
	PartialAllowed  bool      `json:"partial_allowed" gorm:"not null;default:false"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
