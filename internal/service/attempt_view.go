package service

import (
	"encoding/json"
	"time"

	"github.com/jinzhu/copier"
	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/model"
	"github.com/lshigami/examprep/internal/scoring"
	"github.com/rs/zerolog/log"
)

func toAttemptSummary(a *model.TestAttempt) dto.AttemptSummary {
	var s dto.AttemptSummary
	copier.Copy(&s, a)
	return s
}

func toAttemptSummaries(attempts []model.TestAttempt) []dto.AttemptSummary {
	out := make([]dto.AttemptSummary, 0, len(attempts))
	for i := range attempts {
		out = append(out, toAttemptSummary(&attempts[i]))
	}
	return out
}

// toAttemptResponse renders an attempt with its frozen questions. texts maps
// question id to the current question text and may be nil.
func toAttemptResponse(a *model.TestAttempt, texts map[uint]string) *dto.AttemptResponse {
	resp := &dto.AttemptResponse{
		AttemptSummary: toAttemptSummary(a),
		Requested:      a.RequestedCount,
		PoolExhausted:  a.PoolExhausted,
		Questions:      make([]dto.AttemptQuestion, 0, len(a.Questions)),
	}
	completed := a.Status == model.AttemptStatusCompleted
	for _, q := range a.Questions {
		aq := dto.AttemptQuestion{
			QuestionID: q.QuestionID,
			Position:   q.Position,
			Kind:       q.Kind,
			Text:       texts[q.QuestionID],
			Options:    json.RawMessage(q.Options),
		}
		if completed {
			aq.AnswerKey = json.RawMessage(q.AnswerKey)
			aq.Explanation = q.Explanation
		}
		resp.Questions = append(resp.Questions, aq)
	}
	resp.Answers = toAnswerValues(a.Answers)
	return resp
}

func toAnswerValues(records []model.AnswerRecord) []dto.AnswerValue {
	var out []dto.AnswerValue
	for _, ans := range records {
		out = append(out, dto.AnswerValue{
			QuestionID: ans.QuestionID,
			Value:      json.RawMessage(ans.Value),
			IsCorrect:  ans.IsCorrect,
			Marks:      ans.Marks,
			UpdatedAt:  ans.UpdatedAt,
		})
	}
	return out
}

// resultView renders the stored result of a completed attempt. rule is only
// used for attempts completed before the max score was stored.
func resultView(a *model.TestAttempt, rule scoring.Rule, conv ScoreConverterService) *dto.AttemptResult {
	var marks []dto.QuestionMark
	if len(a.Breakdown) > 0 {
		if err := json.Unmarshal(a.Breakdown, &marks); err != nil {
			log.Warn().Err(err).Uint("attemptID", a.ID).Msg("resultView: Unreadable breakdown")
		}
	}
	total := 0.0
	if a.TotalScore != nil {
		total = *a.TotalScore
	}
	res := &dto.AttemptResult{
		AttemptID:  a.ID,
		Status:     a.Status,
		TotalScore: total,
		Attempted:  a.Attempted,
		Correct:    a.CorrectCount,
		Incorrect:  a.IncorrectCount,
		Unanswered: a.UnansweredCount,
		Breakdown:  marks,
	}
	if a.EndedAt != nil {
		res.CompletedAt = a.EndedAt
		res.TimeTakenSeconds = int64(a.EndedAt.Sub(a.StartedAt) / time.Second)
	}
	maxScore := rule.Correct * float64(a.Attempted+a.UnansweredCount)
	if a.MaxScore != nil {
		maxScore = *a.MaxScore
	}
	fillPercentage(res, maxScore, conv)
	return res
}

// resultViewFromModel renders a freshly scored result.
func resultViewFromModel(r *model.AttemptResult, startedAt time.Time, conv ScoreConverterService) *dto.AttemptResult {
	completedAt := r.CompletedAt
	res := &dto.AttemptResult{
		AttemptID:        r.AttemptID,
		Status:           model.AttemptStatusCompleted,
		TotalScore:       r.Total,
		Attempted:        r.Attempted,
		Correct:          r.Correct,
		Incorrect:        r.Incorrect,
		Unanswered:       r.Unanswered,
		TimeTakenSeconds: int64(completedAt.Sub(startedAt) / time.Second),
		CompletedAt:      &completedAt,
	}
	copier.Copy(&res.Breakdown, &r.Marks)
	fillPercentage(res, r.MaxScore, conv)
	return res
}

func fillPercentage(res *dto.AttemptResult, maxScore float64, conv ScoreConverterService) {
	res.MaxScore = maxScore
	pct, err := conv.ConvertToPercentage(res.TotalScore, res.MaxScore)
	if err != nil {
		return
	}
	res.Percentage = pct
	res.Band = conv.Band(pct)
}
