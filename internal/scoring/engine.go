package scoring

import (
	"errors"
	"math"
)

type Outcome string

const (
	OutcomeCorrect    Outcome = "correct"
	OutcomeIncorrect  Outcome = "incorrect"
	OutcomePartial    Outcome = "partial"
	OutcomeUnanswered Outcome = "unanswered"
)

// Rule is the marking scheme applied to every question of an attempt.
type Rule struct {
	Correct        float64
	Incorrect      float64
	Unanswered     float64
	PartialAllowed bool
}

// DefaultRule is used for exams without a configured scoring rule.
var DefaultRule = Rule{Correct: 1}

func (r Rule) Validate() error {
	if r.Correct < 0 {
		return errors.New("marks for a correct answer must not be negative")
	}
	if r.Incorrect > r.Correct {
		return errors.New("marks for an incorrect answer must not exceed marks for a correct one")
	}
	return nil
}

// Item is one frozen question of an attempt, in attempt order.
type Item struct {
	QuestionID uint
	Variant    Variant
}

type Mark struct {
	QuestionID uint    `json:"question_id"`
	Outcome    Outcome `json:"outcome"`
	Marks      float64 `json:"marks"`
}

// Result is the outcome of scoring one attempt. Partial counts answers given
// proportional credit and is a subset of Incorrect.
type Result struct {
	Total      float64
	Marks      []Mark
	Attempted  int
	Correct    int
	Incorrect  int
	Partial    int
	Unanswered int
}

// Score marks every item against the answers keyed by question id. Answers for
// questions outside items are ignored. Inputs are not modified.
func Score(items []Item, answers map[uint]Answer, rule Rule) Result {
	res := Result{Marks: make([]Mark, 0, len(items))}
	for _, it := range items {
		m := Mark{QuestionID: it.QuestionID}
		a, ok := answers[it.QuestionID]
		switch {
		case !ok || a.IsEmpty():
			m.Outcome = OutcomeUnanswered
			m.Marks = rule.Unanswered
			res.Unanswered++
		default:
			res.Attempted++
			ev := it.Variant.Evaluate(a)
			switch {
			case ev.Correct:
				m.Outcome = OutcomeCorrect
				m.Marks = rule.Correct
				res.Correct++
			case rule.PartialAllowed && ev.Partial:
				m.Marks = partialMarks(ev.Fraction, rule)
				m.Outcome = OutcomePartial
				if m.Marks <= rule.Incorrect {
					m.Outcome = OutcomeIncorrect
				}
				res.Incorrect++
				if m.Outcome == OutcomePartial {
					res.Partial++
				}
			default:
				m.Outcome = OutcomeIncorrect
				m.Marks = rule.Incorrect
				res.Incorrect++
			}
		}
		res.Total += m.Marks
		res.Marks = append(res.Marks, m)
	}
	return res
}

func partialMarks(fraction float64, rule Rule) float64 {
	marks := rule.Correct * fraction
	return math.Max(rule.Incorrect, math.Min(rule.Correct, marks))
}
