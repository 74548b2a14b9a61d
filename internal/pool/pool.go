// Package pool answers which active questions match a filter.
package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/lshigami/examprep/internal/model"
)

var ErrInvalidFilter = errors.New("invalid pool filter")

// Filter narrows the pool of an exam. Zero fields do not constrain; a
// difficulty of "mixed" means any difficulty.
type Filter struct {
	ExamID     uint
	SubjectID  *uint
	TopicIDs   []uint
	Difficulty string
}

func (f Filter) Validate() error {
	if f.ExamID == 0 {
		return fmt.Errorf("%w: exam is required", ErrInvalidFilter)
	}
	switch f.Difficulty {
	case "", model.DifficultyMixed, model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
	default:
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidFilter, f.Difficulty)
	}
	return nil
}

// AnyDifficulty reports whether the filter leaves difficulty unconstrained.
func (f Filter) AnyDifficulty() bool {
	return f.Difficulty == "" || f.Difficulty == model.DifficultyMixed
}

// FilterFromTest returns the filter stored on a test definition.
func FilterFromTest(t *model.Test) (Filter, error) {
	f := Filter{ExamID: t.ExamID, SubjectID: t.SubjectID, Difficulty: t.Difficulty}
	if len(t.TopicIDs) > 0 && string(t.TopicIDs) != "null" {
		if err := json.Unmarshal(t.TopicIDs, &f.TopicIDs); err != nil {
			return Filter{}, fmt.Errorf("%w: topic ids: %v", ErrInvalidFilter, err)
		}
	}
	return f, nil
}

// Source is the store behind the index. Only active, non-deleted questions
// are returned.
type Source interface {
	MatchIDs(ctx context.Context, f Filter) ([]uint, error)
	CountByDifficulty(ctx context.Context, f Filter) (map[string]int64, error)
}

type Stats struct {
	Available    int64            `json:"available"`
	ByDifficulty map[string]int64 `json:"by_difficulty"`
}

// Index is a read-only view over the question store.
type Index struct {
	src Source
}

func NewIndex(src Source) *Index {
	return &Index{src: src}
}

// Match returns the ids of matching questions, sorted and without duplicates.
// An empty result is not an error.
func (i *Index) Match(ctx context.Context, f Filter) ([]uint, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	ids, err := i.src.MatchIDs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("matching questions for exam %d: %w", f.ExamID, err)
	}
	ids = slices.Clone(ids)
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func (i *Index) Stats(ctx context.Context, f Filter) (*Stats, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	byDifficulty, err := i.src.CountByDifficulty(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("counting questions for exam %d: %w", f.ExamID, err)
	}
	st := &Stats{ByDifficulty: map[string]int64{}}
	for d, n := range byDifficulty {
		st.ByDifficulty[d] = n
		if f.AnyDifficulty() || d == f.Difficulty {
			st.Available += n
		}
	}
	return st, nil
}
