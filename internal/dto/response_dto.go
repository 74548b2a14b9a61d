package dto

import (
	"encoding/json"
	"time"
)

type AttemptQuestion struct {
	QuestionID uint            `json:"question_id"`
	Position   int             `json:"position"`
	Kind       string          `json:"kind"`
	Text       string          `json:"text,omitempty"`
	Options    json.RawMessage `json:"options,omitempty"`
	// AnswerKey and Explanation are only shown once the attempt is completed.
	AnswerKey   json.RawMessage `json:"answer_key,omitempty"`
	Explanation *string         `json:"explanation,omitempty"`
}

type AnswerValue struct {
	QuestionID uint            `json:"question_id"`
	Value      json.RawMessage `json:"value"`
	IsCorrect  *bool           `json:"is_correct,omitempty"`
	Marks      *float64        `json:"marks,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type AttemptSummary struct {
	ID         uint       `json:"id"`
	UserID     string     `json:"user_id"`
	TestID     uint       `json:"test_id"`
	Status     string     `json:"status"`
	Revision   int64      `json:"revision"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	TotalScore *float64   `json:"total_score,omitempty"`
}

type AttemptResponse struct {
	AttemptSummary
	// Resumed is set when create returned an attempt that was already in progress.
	Resumed bool `json:"resumed"`
	// Requested is the question count asked of the pool; PoolExhausted is set
	// when fewer questions were available.
	Requested     int               `json:"requested"`
	PoolExhausted bool              `json:"pool_exhausted"`
	Questions     []AttemptQuestion `json:"questions"`
	Answers       []AnswerValue     `json:"answers,omitempty"`
	Result        *AttemptResult    `json:"result,omitempty"`
}

type QuestionMark struct {
	QuestionID uint    `json:"question_id"`
	Outcome    string  `json:"outcome"`
	Marks      float64 `json:"marks"`
}

type AttemptResult struct {
	AttemptID        uint           `json:"attempt_id"`
	Status           string         `json:"status"`
	TotalScore       float64        `json:"total_score"`
	MaxScore         float64        `json:"max_score"`
	Percentage       float64        `json:"percentage"`
	Band             string         `json:"band"`
	Attempted        int            `json:"attempted"`
	Correct          int            `json:"correct"`
	Incorrect        int            `json:"incorrect"`
	Unanswered       int            `json:"unanswered"`
	TimeTakenSeconds int64          `json:"time_taken_seconds"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	Breakdown        []QuestionMark `json:"breakdown"`
}

type AnswerResponse struct {
	AttemptID  uint  `json:"attempt_id"`
	QuestionID uint  `json:"question_id"`
	Revision   int64 `json:"revision"`
}

type PendingResponse struct {
	AttemptID uint   `json:"attempt_id"`
	Status    string `json:"status"`
	Uncertain bool   `json:"uncertain"`
	Message   string `json:"message"`
}

type RecoverResponse struct {
	AttemptID uint           `json:"attempt_id"`
	Status    string         `json:"status"` // persisted | already_completed | nothing_pending
	Result    *AttemptResult `json:"result,omitempty"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}
