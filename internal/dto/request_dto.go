package dto

// AnswerRequest carries one answer value. Which field is read depends on the
// question kind: label for single choice, labels for multi choice, raw for
// free form. An empty body clears the answer.
type AnswerRequest struct {
	Label  string   `json:"label"`
	Labels []string `json:"labels"`
	Raw    string   `json:"raw"`
}

// CreateCustomTestRequest builds a personal practice test from the question pool.
type CreateCustomTestRequest struct {
	ExamID              uint   `json:"exam_id" binding:"required"`
	Title               string `json:"title"`
	SubjectID           *uint  `json:"subject_id"`
	TopicIDs            []uint `json:"topic_ids"`
	Difficulty          string `json:"difficulty" binding:"omitempty,oneof=easy medium hard mixed"`
	QuestionCount       int    `json:"question_count" binding:"required,min=1,max=200"`
	DurationMinutes     int    `json:"duration_minutes" binding:"omitempty,min=1"`
	RandomizePerAttempt bool   `json:"randomize_per_attempt"`
}

// PoolStatsQuery is bound from the query string of GET /pool/stats.
type PoolStatsQuery struct {
	ExamID     uint   `form:"exam_id" binding:"required"`
	SubjectID  *uint  `form:"subject_id"`
	TopicIDs   []uint `form:"topic_ids"`
	Difficulty string `form:"difficulty" binding:"omitempty,oneof=easy medium hard mixed"`
}
