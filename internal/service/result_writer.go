package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/lshigami/examprep/internal/cache"
	"github.com/lshigami/examprep/internal/metrics"
	"github.com/lshigami/examprep/internal/model"
	"github.com/lshigami/examprep/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ResultStore is the durable side of the writer.
type ResultStore interface {
	Finalize(ctx context.Context, result *model.AttemptResult) (repository.FinalizeOutcome, error)
}

type RecoveryStatus int

const (
	RecoveryNothingPending RecoveryStatus = iota
	RecoveryPersisted
	RecoveryAlreadyCompleted
)

func (s RecoveryStatus) String() string {
	switch s {
	case RecoveryPersisted:
		return "persisted"
	case RecoveryAlreadyCompleted:
		return "already_completed"
	default:
		return "nothing_pending"
	}
}

// ResultWriter persists scored results and falls back to the local cache when
// the store cannot confirm the write. A cached entry is removed only once the
// store is known to hold the completed attempt.
type ResultWriter struct {
	store   ResultStore
	cache   cache.ResultCache
	metrics *metrics.Metrics
}

func NewResultWriter(store ResultStore, c cache.ResultCache, m *metrics.Metrics) *ResultWriter {
	return &ResultWriter{store: store, cache: c, metrics: m}
}

// Write finalizes the result. On a store I/O failure the result is cached and
// a *ResultPendingError is returned; other outcomes come back unchanged.
func (w *ResultWriter) Write(ctx context.Context, result *model.AttemptResult) (repository.FinalizeOutcome, error) {
	outcome, err := w.store.Finalize(ctx, result)
	if err == nil {
		return outcome, nil
	}
	var we *repository.WriteError
	if !errors.As(err, &we) {
		return outcome, err
	}

	// The caller's context may be what failed the write.
	if cerr := w.cache.Put(context.WithoutCancel(ctx), result); cerr != nil {
		log.Error().Err(cerr).AnErr("writeErr", err).Uint("attemptID", result.AttemptID).
			Msg("ResultWriter: Failed to cache result after store failure")
		return outcome, fmt.Errorf("persisting result of attempt %d: %w (caching also failed: %v)", result.AttemptID, err, cerr)
	}
	w.metrics.ResultWriteFailures.WithLabelValues(strconv.FormatBool(we.Uncertain)).Inc()
	w.refreshPending(ctx)

	log.Warn().Err(err).Uint("attemptID", result.AttemptID).Int64("revision", result.Revision).
		Bool("uncertain", we.Uncertain).Msg("ResultWriter: Store write failed, result cached for recovery")
	return outcome, &ResultPendingError{AttemptID: result.AttemptID, Uncertain: we.Uncertain, Err: err}
}

// Recover replays the cached result of an attempt. It returns
// RecoveryNothingPending when nothing is cached, ErrStaleResult when answers
// changed after the result was scored and a *StateError when the attempt was
// abandoned. The cache entry is kept in the last two cases.
func (w *ResultWriter) Recover(ctx context.Context, attemptID uint) (RecoveryStatus, *model.AttemptResult, error) {
	result, err := w.cache.Get(ctx, attemptID)
	if errors.Is(err, cache.ErrMiss) {
		return RecoveryNothingPending, nil, nil
	}
	if err != nil {
		return RecoveryNothingPending, nil, fmt.Errorf("reading cached result of attempt %d: %w", attemptID, err)
	}

	outcome, err := w.store.Finalize(ctx, result)
	if err != nil {
		var we *repository.WriteError
		if errors.As(err, &we) {
			log.Warn().Err(err).Uint("attemptID", attemptID).Msg("ResultWriter: Recovery attempt failed, result stays cached")
			return RecoveryNothingPending, result, &ResultPendingError{AttemptID: attemptID, Uncertain: we.Uncertain, Err: err}
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RecoveryNothingPending, result, fmt.Errorf("%w: %d", ErrAttemptNotFound, attemptID)
		}
		return RecoveryNothingPending, result, err
	}

	switch outcome {
	case repository.FinalizeApplied:
		w.metrics.ResultsRecovered.Inc()
		w.drop(ctx, attemptID)
		log.Info().Uint("attemptID", attemptID).Float64("total", result.Total).Msg("ResultWriter: Cached result persisted")
		return RecoveryPersisted, result, nil
	case repository.FinalizeAlreadyCompleted:
		w.drop(ctx, attemptID)
		log.Info().Uint("attemptID", attemptID).Msg("ResultWriter: Store already holds the completed attempt, cache cleared")
		return RecoveryAlreadyCompleted, result, nil
	case repository.FinalizeRevisionChanged:
		return RecoveryNothingPending, result, fmt.Errorf("%w: attempt %d revision %d", ErrStaleResult, attemptID, result.Revision)
	default:
		return RecoveryNothingPending, result, &StateError{AttemptID: attemptID, Op: "recover result of", Status: model.AttemptStatusAbandoned}
	}
}

// Pending returns the cached result of an attempt, or nil when none is held.
func (w *ResultWriter) Pending(ctx context.Context, attemptID uint) (*model.AttemptResult, error) {
	result, err := w.cache.Get(ctx, attemptID)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	return result, err
}

func (w *ResultWriter) ListPending(ctx context.Context) ([]*model.AttemptResult, error) {
	ids, err := w.cache.Keys(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]*model.AttemptResult, 0, len(ids))
	for _, id := range ids {
		r, err := w.cache.Get(ctx, id)
		if errors.Is(err, cache.ErrMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Discard drops a cached result without persisting it.
func (w *ResultWriter) Discard(ctx context.Context, attemptID uint) error {
	if _, err := w.cache.Get(ctx, attemptID); errors.Is(err, cache.ErrMiss) {
		return fmt.Errorf("%w: %d", ErrResultNotPending, attemptID)
	}
	if err := w.cache.Delete(ctx, attemptID); err != nil {
		return err
	}
	w.refreshPending(ctx)
	log.Info().Uint("attemptID", attemptID).Msg("ResultWriter: Cached result discarded")
	return nil
}

func (w *ResultWriter) drop(ctx context.Context, attemptID uint) {
	if err := w.cache.Delete(ctx, attemptID); err != nil {
		// A later recovery sees the completed attempt and clears it.
		log.Warn().Err(err).Uint("attemptID", attemptID).Msg("ResultWriter: Failed to clear cached result")
	}
	w.refreshPending(ctx)
}

func (w *ResultWriter) refreshPending(ctx context.Context) {
	ids, err := w.cache.Keys(context.WithoutCancel(ctx))
	if err != nil {
		return
	}
	w.metrics.PendingResults.Set(float64(len(ids)))
}
