package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lshigami/examprep/internal/model"
)

var (
	ErrInvalidAnswer   = errors.New("invalid answer value")
	ErrInvalidQuestion = errors.New("invalid question definition")
)

// Answer is a submitted value. Which field is used depends on the question kind:
// Label for single choice, Labels for multi choice, Raw for free form.
type Answer struct {
	Label  string   `json:"label,omitempty"`
	Labels []string `json:"labels,omitempty"`
	Raw    string   `json:"raw,omitempty"`
}

// IsEmpty reports whether the answer carries no selection. Empty answers score
// as unanswered.
func (a Answer) IsEmpty() bool {
	return a.Label == "" && len(a.Labels) == 0 && strings.TrimSpace(a.Raw) == ""
}

// Key is the stored correct-answer specification of a question.
type Key struct {
	Label  string   `json:"label,omitempty"`
	Labels []string `json:"labels,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Evaluation is a variant's verdict on one non-empty answer.
type Evaluation struct {
	Correct bool
	// Fraction is the proportional credit in [-1, 1]; only meaningful when
	// Partial is set.
	Fraction float64
	Partial  bool
}

// Variant is the per-kind behaviour of a question: how a value is validated and
// how it is judged against the key.
type Variant interface {
	Kind() string
	Validate(a Answer) error
	Evaluate(a Answer) Evaluation
}

// ParseVariant builds a variant from the JSON columns stored on a question.
func ParseVariant(kind string, optionsJSON, keyJSON []byte) (Variant, error) {
	var options map[string]string
	if len(optionsJSON) > 0 && string(optionsJSON) != "null" {
		if err := json.Unmarshal(optionsJSON, &options); err != nil {
			return nil, fmt.Errorf("%w: options: %v", ErrInvalidQuestion, err)
		}
	}
	var key Key
	if len(keyJSON) > 0 {
		if err := json.Unmarshal(keyJSON, &key); err != nil {
			return nil, fmt.Errorf("%w: answer key: %v", ErrInvalidQuestion, err)
		}
	}
	return NewVariant(kind, options, key)
}

func NewVariant(kind string, options map[string]string, key Key) (Variant, error) {
	switch kind {
	case model.QuestionKindSingleChoice:
		if len(options) < 2 {
			return nil, fmt.Errorf("%w: single choice needs at least 2 options", ErrInvalidQuestion)
		}
		if _, ok := options[key.Label]; !ok {
			return nil, fmt.Errorf("%w: correct label %q is not an option", ErrInvalidQuestion, key.Label)
		}
		return singleChoice{options: options, correct: key.Label}, nil
	case model.QuestionKindMultiChoice:
		if len(options) < 2 {
			return nil, fmt.Errorf("%w: multi choice needs at least 2 options", ErrInvalidQuestion)
		}
		if len(key.Labels) == 0 {
			return nil, fmt.Errorf("%w: multi choice needs at least one correct label", ErrInvalidQuestion)
		}
		correct := make(map[string]struct{}, len(key.Labels))
		for _, l := range key.Labels {
			if _, ok := options[l]; !ok {
				return nil, fmt.Errorf("%w: correct label %q is not an option", ErrInvalidQuestion, l)
			}
			correct[l] = struct{}{}
		}
		return multiChoice{options: options, correct: correct}, nil
	case model.QuestionKindFreeForm:
		if len(key.Values) == 0 {
			return nil, fmt.Errorf("%w: free form needs at least one accepted value", ErrInvalidQuestion)
		}
		return freeForm{accepted: key.Values}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuestion, kind)
	}
}

type singleChoice struct {
	options map[string]string
	correct string
}

func (v singleChoice) Kind() string { return model.QuestionKindSingleChoice }

func (v singleChoice) Validate(a Answer) error {
	if len(a.Labels) > 0 || a.Raw != "" {
		return fmt.Errorf("%w: single choice takes one label", ErrInvalidAnswer)
	}
	if a.Label == "" {
		return nil
	}
	if _, ok := v.options[a.Label]; !ok {
		return fmt.Errorf("%w: unknown option %q", ErrInvalidAnswer, a.Label)
	}
	return nil
}

func (v singleChoice) Evaluate(a Answer) Evaluation {
	return Evaluation{Correct: a.Label == v.correct}
}

type multiChoice struct {
	options map[string]string
	correct map[string]struct{}
}

func (v multiChoice) Kind() string { return model.QuestionKindMultiChoice }

func (v multiChoice) Validate(a Answer) error {
	if a.Label != "" || a.Raw != "" {
		return fmt.Errorf("%w: multi choice takes a set of labels", ErrInvalidAnswer)
	}
	seen := make(map[string]struct{}, len(a.Labels))
	for _, l := range a.Labels {
		if _, ok := v.options[l]; !ok {
			return fmt.Errorf("%w: unknown option %q", ErrInvalidAnswer, l)
		}
		if _, dup := seen[l]; dup {
			return fmt.Errorf("%w: option %q selected twice", ErrInvalidAnswer, l)
		}
		seen[l] = struct{}{}
	}
	return nil
}

// Evaluate grants hits/|correct| minus misses/|wrong options|. Selecting one
// more correct label never lowers the fraction.
func (v multiChoice) Evaluate(a Answer) Evaluation {
	selected := make(map[string]struct{}, len(a.Labels))
	for _, l := range a.Labels {
		selected[l] = struct{}{}
	}
	hits, misses := 0, 0
	for l := range selected {
		if _, ok := v.correct[l]; ok {
			hits++
		} else {
			misses++
		}
	}
	wrong := len(v.options) - len(v.correct)
	fraction := float64(hits) / float64(len(v.correct))
	if wrong > 0 {
		fraction -= float64(misses) / float64(wrong)
	}
	return Evaluation{
		Correct:  hits == len(v.correct) && misses == 0,
		Fraction: fraction,
		Partial:  true,
	}
}

type freeForm struct {
	accepted []string
}

func (v freeForm) Kind() string { return model.QuestionKindFreeForm }

func (v freeForm) Validate(a Answer) error {
	if a.Label != "" || len(a.Labels) > 0 {
		return fmt.Errorf("%w: free form takes a raw value", ErrInvalidAnswer)
	}
	return nil
}

func (v freeForm) Evaluate(a Answer) Evaluation {
	got := normalize(a.Raw)
	for _, want := range v.accepted {
		if matchesValue(got, normalize(want)) {
			return Evaluation{Correct: true}
		}
	}
	return Evaluation{}
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// matchesValue compares numerically when both sides parse as numbers.
func matchesValue(got, want string) bool {
	g, errG := strconv.ParseFloat(got, 64)
	w, errW := strconv.ParseFloat(want, 64)
	if errG == nil && errW == nil {
		return math.Abs(g-w) <= 1e-9*math.Max(1, math.Abs(w))
	}
	return got == want
}
