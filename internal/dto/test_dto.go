package dto

import "time"

type TestSummary struct {
	ID                  uint          `json:"id"`
	ExamID              uint          `json:"exam_id"`
	Title               string        `json:"title"`
	Description         string        `json:"description,omitempty"`
	Type                string        `json:"type"`
	QuestionCount       int           `json:"question_count"`
	DurationMinutes     int           `json:"duration_minutes"`
	RandomizePerAttempt bool          `json:"randomize_per_attempt"`
	CreatedAt           time.Time     `json:"created_at"`
	Progress            *TestProgress `json:"progress,omitempty"`
}

// TestProgress is the user's latest attempt at a test.
type TestProgress struct {
	LatestAttemptID uint     `json:"latest_attempt_id"`
	Status          string   `json:"status"`
	TotalScore      *float64 `json:"total_score,omitempty"`
}

type TestResponse struct {
	TestSummary
	SubjectID   *uint  `json:"subject_id,omitempty"`
	TopicIDs    []uint `json:"topic_ids,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
	QuestionIDs []uint `json:"question_ids,omitempty"`
	// PoolExhausted is set when fewer questions matched than were requested.
	PoolExhausted bool `json:"pool_exhausted,omitempty"`
	Requested     int  `json:"requested,omitempty"`
}

type PoolStatsResponse struct {
	Available    int64            `json:"available"`
	ByDifficulty map[string]int64 `json:"by_difficulty"`
}
