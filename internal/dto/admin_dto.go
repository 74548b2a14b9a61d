package dto

import "time"

// CreateTestRequest is for admins to publish a test. Either QuestionIDs gives
// the curated list, or the filter fields describe the pool to draw from.
type CreateTestRequest struct {
	ExamID              uint   `json:"exam_id" binding:"required"`
	Title               string `json:"title" binding:"required"`
	Description         string `json:"description"`
	QuestionIDs         []uint `json:"question_ids"`
	SubjectID           *uint  `json:"subject_id"`
	TopicIDs            []uint `json:"topic_ids"`
	Difficulty          string `json:"difficulty" binding:"omitempty,oneof=easy medium hard mixed"`
	QuestionCount       int    `json:"question_count" binding:"omitempty,min=1,max=500"`
	DurationMinutes     int    `json:"duration_minutes" binding:"required,min=1"`
	RandomizePerAttempt bool   `json:"randomize_per_attempt"`
}

type ScoringRuleRequest struct {
	ExamID          uint     `json:"exam_id" binding:"required"`
	MarksCorrect    *float64 `json:"marks_correct" binding:"required"`
	MarksIncorrect  float64  `json:"marks_incorrect"`
	MarksUnanswered float64  `json:"marks_unanswered"`
	PartialAllowed  bool     `json:"partial_allowed"`
}

type ScoringRuleResponse struct {
	ID              uint      `json:"id"`
	ExamID          uint      `json:"exam_id"`
	MarksCorrect    float64   `json:"marks_correct"`
	MarksIncorrect  float64   `json:"marks_incorrect"`
	MarksUnanswered float64   `json:"marks_unanswered"`
	PartialAllowed  bool      `json:"partial_allowed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type AttemptListQuery struct {
	UserID string `form:"user_id"`
	TestID uint   `form:"test_id"`
	Status string `form:"status" binding:"omitempty,oneof=in_progress completed abandoned"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

type AttemptListResponse struct {
	Total    int64            `json:"total"`
	Attempts []AttemptSummary `json:"attempts"`
}

type ReconciledGroup struct {
	UserID    string `json:"user_id"`
	TestID    uint   `json:"test_id"`
	Kept      uint   `json:"kept_attempt_id"`
	Abandoned []uint `json:"abandoned_attempt_ids"`
	// Skipped attempts left in_progress before they could be abandoned.
	Skipped []uint `json:"skipped_attempt_ids,omitempty"`
}

type ReconcileReport struct {
	GroupsFixed       int               `json:"groups_fixed"`
	AttemptsAbandoned int               `json:"attempts_abandoned"`
	Groups            []ReconciledGroup `json:"groups"`
}

type DuplicateGroup struct {
	UserID string `json:"user_id"`
	TestID uint   `json:"test_id"`
	Count  int64  `json:"count"`
}

type PendingResult struct {
	AttemptID   uint      `json:"attempt_id"`
	UserID      string    `json:"user_id"`
	TestID      uint      `json:"test_id"`
	Revision    int64     `json:"revision"`
	TotalScore  float64   `json:"total_score"`
	CompletedAt time.Time `json:"completed_at"`
}

type BulkRecoverResponse struct {
	Persisted []uint          `json:"persisted"`
	Stale     []uint          `json:"stale"`
	Failed    map[uint]string `json:"failed,omitempty"`
}
