package pool

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/lshigami/examprep/internal/model"
	"gorm.io/datatypes"
)

type fakeSource struct {
	ids    []uint
	counts map[string]int64
	err    error
	last   Filter
}

func (f *fakeSource) MatchIDs(_ context.Context, flt Filter) ([]uint, error) {
	f.last = flt
	return f.ids, f.err
}

func (f *fakeSource) CountByDifficulty(_ context.Context, flt Filter) (map[string]int64, error) {
	f.last = flt
	return f.counts, f.err
}

func TestIndex_MatchNormalizes(t *testing.T) {
	src := &fakeSource{ids: []uint{9, 2, 9, 4, 2}}
	ids, err := NewIndex(src).Match(context.Background(), Filter{ExamID: 1})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !slices.Equal(ids, []uint{2, 4, 9}) {
		t.Fatalf("ids = %v", ids)
	}
	if !slices.Equal(src.ids, []uint{9, 2, 9, 4, 2}) {
		t.Fatal("source slice modified")
	}
}

func TestIndex_MatchValidates(t *testing.T) {
	idx := NewIndex(&fakeSource{})
	for _, f := range []Filter{{}, {ExamID: 1, Difficulty: "impossible"}} {
		if _, err := idx.Match(context.Background(), f); !errors.Is(err, ErrInvalidFilter) {
			t.Errorf("Match(%+v) err = %v, want ErrInvalidFilter", f, err)
		}
	}
}

func TestIndex_MatchWrapsSourceError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewIndex(&fakeSource{err: boom}).Match(context.Background(), Filter{ExamID: 1})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestIndex_Stats(t *testing.T) {
	counts := map[string]int64{model.DifficultyEasy: 3, model.DifficultyHard: 5}
	tests := []struct {
		difficulty string
		want       int64
	}{
		{"", 8},
		{model.DifficultyMixed, 8},
		{model.DifficultyHard, 5},
		{model.DifficultyMedium, 0},
	}
	for _, tc := range tests {
		st, err := NewIndex(&fakeSource{counts: counts}).Stats(context.Background(), Filter{ExamID: 1, Difficulty: tc.difficulty})
		if err != nil {
			t.Fatalf("Stats(%q): %v", tc.difficulty, err)
		}
		if st.Available != tc.want {
			t.Errorf("Stats(%q).Available = %d, want %d", tc.difficulty, st.Available, tc.want)
		}
	}
}

func TestFilterFromTest(t *testing.T) {
	subject := uint(3)
	f, err := FilterFromTest(&model.Test{
		ExamID:     1,
		SubjectID:  &subject,
		TopicIDs:   datatypes.JSON(`[4,5]`),
		Difficulty: model.DifficultyMixed,
	})
	if err != nil {
		t.Fatalf("FilterFromTest: %v", err)
	}
	if f.ExamID != 1 || *f.SubjectID != 3 || !slices.Equal(f.TopicIDs, []uint{4, 5}) || !f.AnyDifficulty() {
		t.Fatalf("filter = %+v", f)
	}

	if _, err := FilterFromTest(&model.Test{ExamID: 1, TopicIDs: datatypes.JSON(`{"x":1}`)}); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("err = %v, want ErrInvalidFilter", err)
	}
}
