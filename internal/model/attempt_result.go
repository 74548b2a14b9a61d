package model

import "time"

// QuestionMark is the per-question line of a scored attempt.
type QuestionMark struct {
	QuestionID uint    `json:"question_id"`
	Outcome    string  `json:"outcome"`
	Marks      float64 `json:"marks"`
}

// AttemptResult is a scored attempt ready to be persisted. It is computed
// against a specific attempt revision and is only valid for that revision.
type AttemptResult struct {
	AttemptID   uint           `json:"attempt_id"`
	UserID      string         `json:"user_id"`
	TestID      uint           `json:"test_id"`
	Revision    int64          `json:"revision"`
	Total       float64        `json:"total"`
	MaxScore    float64        `json:"max_score"`
	Attempted   int            `json:"attempted"`
	Correct     int            `json:"correct"`
	Incorrect   int            `json:"incorrect"`
	Unanswered  int            `json:"unanswered"`
	Marks       []QuestionMark `json:"marks"`
	CompletedAt time.Time      `json:"completed_at"`
}
