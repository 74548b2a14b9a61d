// Package assembler picks the ordered question list of a test attempt.
//
// Assembly is a pure function of the definition, the candidate pool and a
// seed. All shuffling in the service goes through here.
package assembler

import (
	"math/rand/v2"
	"slices"

	"github.com/lshigami/examprep/internal/model"
)

// Definition is the part of a test that drives assembly.
type Definition struct {
	Type      string
	Count     int
	Curated   []uint
	Randomize bool
}

// FromTest builds a Definition from a stored test.
func FromTest(t *model.Test) Definition {
	d := Definition{
		Type:      t.Type,
		Count:     t.QuestionCount,
		Randomize: t.RandomizePerAttempt,
	}
	for _, q := range t.Questions {
		d.Curated = append(d.Curated, q.QuestionID)
	}
	return d
}

// Drawn reports whether the definition selects from a pool rather than using
// its curated list. Tests without a curated list, or flagged to randomize per
// attempt, are drawn.
func (d Definition) Drawn() bool {
	return d.Randomize || len(d.Curated) == 0
}

type Selection struct {
	QuestionIDs []uint
	Requested   int
	// PoolExhausted is set when fewer questions matched than requested. It is
	// a signal for the caller, not an error.
	PoolExhausted bool
}

// Seeder yields the seed of one assembly.
type Seeder interface {
	Seed() uint64
}

// SeedFunc adapts a function to Seeder.
type SeedFunc func() uint64

func (f SeedFunc) Seed() uint64 { return f() }

// Fixed returns a seeder that always yields seed.
func Fixed(seed uint64) Seeder {
	return SeedFunc(func() uint64 { return seed })
}

// Random returns a seeder backed by the runtime's random source.
func Random() Seeder {
	return SeedFunc(rand.Uint64)
}

type Assembler struct {
	seeder Seeder
}

func New(seeder Seeder) *Assembler {
	if seeder == nil {
		seeder = Random()
	}
	return &Assembler{seeder: seeder}
}

// NewFromConfig returns a fixed-seed assembler when seed is non-zero and a
// randomly seeded one otherwise.
func NewFromConfig(seed uint64) *Assembler {
	if seed != 0 {
		return New(Fixed(seed))
	}
	return New(Random())
}

// Assemble returns the ordered question ids for one attempt. pool is only
// consulted for drawn definitions; neither input is modified.
func (a *Assembler) Assemble(def Definition, pool []uint) Selection {
	if !def.Drawn() {
		ids := Normalize(def.Curated, false)
		return Selection{QuestionIDs: ids, Requested: len(ids)}
	}

	candidates := Normalize(pool, true)
	sel := Selection{Requested: def.Count}
	n := def.Count
	if n <= 0 {
		sel.QuestionIDs = []uint{}
		return sel
	}
	if n > len(candidates) {
		sel.PoolExhausted = true
		n = len(candidates)
	}

	seed := a.seeder.Seed()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(candidates)-i)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	sel.QuestionIDs = candidates[:n:n]
	return sel
}

// Normalize returns a copy of ids with duplicates removed, keeping the first
// occurrence. When sorted is set the copy is also sorted ascending.
func Normalize(ids []uint, sorted bool) []uint {
	out := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if sorted {
		slices.Sort(out)
	}
	return out
}
