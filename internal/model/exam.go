package model

import (
	"time"

	"gorm.io/gorm"
)

// Exam, Subject and Topic are read models of the content catalogue.

type Exam struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	Name      string         `json:"name" gorm:"not null;uniqueIndex"`
	IsActive  bool           `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type Subject struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ExamID    uint      `json:"exam_id" gorm:"not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

type Topic struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	SubjectID uint      `json:"subject_id" gorm:"not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}
