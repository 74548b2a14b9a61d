package cache

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lshigami/examprep/internal/model"
	"github.com/spf13/afero"
)

func sampleResult(id uint) *model.AttemptResult {
	return &model.AttemptResult{
		AttemptID:   id,
		UserID:      "user-1",
		TestID:      7,
		Revision:    3,
		Total:       2.75,
		Attempted:   4,
		Correct:     3,
		Incorrect:   1,
		Unanswered:  1,
		Marks:       []model.QuestionMark{{QuestionID: 1, Outcome: "correct", Marks: 1}},
		CompletedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

// exerciseCache runs the contract every ResultCache must satisfy.
func exerciseCache(t *testing.T, c ResultCache) {
	t.Helper()
	ctx := context.Background()

	if _, err := c.Get(ctx, 1); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get on empty cache err = %v, want ErrMiss", err)
	}
	if err := c.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete of missing entry: %v", err)
	}

	if err := c.Put(ctx, sampleResult(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(ctx, sampleResult(22)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := c.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Total != 2.75 || got.Revision != 3 || got.UserID != "user-1" || len(got.Marks) != 1 {
		t.Fatalf("Get returned %+v", got)
	}

	keys, err := c.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	slices.Sort(keys)
	if !slices.Equal(keys, []uint{1, 22}) {
		t.Fatalf("Keys = %v, want [1 22]", keys)
	}

	updated := sampleResult(1)
	updated.Revision = 4
	if err := c.Put(ctx, updated); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if got, _ := c.Get(ctx, 1); got.Revision != 4 {
		t.Fatalf("overwrite kept revision %d", got.Revision)
	}

	if err := c.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, 1); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get after delete err = %v, want ErrMiss", err)
	}
}

func TestFileCache(t *testing.T) {
	c, err := NewFileCache(afero.NewMemMapFs(), "/cache", "node-a")
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	exerciseCache(t, c)
}

func TestFileCache_NamespacesAreIsolated(t *testing.T) {
	fs := afero.NewMemMapFs()
	a, _ := NewFileCache(fs, "/cache", "node-a")
	b, _ := NewFileCache(fs, "/cache", "node-b")
	ctx := context.Background()

	if err := a.Put(ctx, sampleResult(5)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := b.Get(ctx, 5); !errors.Is(err, ErrMiss) {
		t.Fatalf("node-b saw node-a's entry: %v", err)
	}
	if keys, _ := b.Keys(ctx); len(keys) != 0 {
		t.Fatalf("node-b keys = %v", keys)
	}
}

func TestFileCache_SurvivesReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := context.Background()
	first, _ := NewFileCache(fs, "/cache", "node-a")
	if err := first.Put(ctx, sampleResult(9)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	second, err := NewFileCache(fs, "/cache", "node-a")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := second.Get(ctx, 9); err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
}

func TestFileCache_IgnoresStrayFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, _ := NewFileCache(fs, "/cache", "node-a")
	_ = afero.WriteFile(fs, "/cache/node-a/notes.txt", []byte("x"), 0o600)
	_ = afero.WriteFile(fs, "/cache/node-a/attempt-abc.json", []byte("{}"), 0o600)

	keys, err := c.Keys(context.Background())
	if err != nil || len(keys) != 0 {
		t.Fatalf("Keys = %v, %v", keys, err)
	}
}

func TestFileCache_RequiresNamespace(t *testing.T) {
	if _, err := NewFileCache(afero.NewMemMapFs(), "/cache", ""); err == nil {
		t.Fatal("empty namespace accepted")
	}
}

// TestRedisCache runs against a real server when REDIS_TEST_ADDR is set.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ns := "test-" + time.Now().Format("150405.000000")
	c := NewRedisCache(rdb, ns)
	t.Cleanup(func() {
		keys, _ := c.Keys(context.Background())
		for _, id := range keys {
			_ = c.Delete(context.Background(), id)
		}
	})
	exerciseCache(t, c)
}
