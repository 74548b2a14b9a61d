package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/metrics"
	"github.com/lshigami/examprep/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// recoverWorkers bounds concurrent replays of pending results.
const recoverWorkers = 4

// AdminTestService holds operator actions on attempts and pending results.
type AdminTestService interface {
	ListAttempts(ctx context.Context, q dto.AttemptListQuery) (*dto.AttemptListResponse, error)
	ForceAbandon(ctx context.Context, attemptID uint) (*dto.AttemptSummary, error)
	DeleteAttempt(ctx context.Context, attemptID uint) error
	GetAttemptAnswers(ctx context.Context, attemptID uint) ([]dto.AnswerValue, error)
	ListPendingResults(ctx context.Context) ([]dto.PendingResult, error)
	RecoverPendingResults(ctx context.Context) (*dto.BulkRecoverResponse, error)
}

type adminTestService struct {
	attemptRepo repository.TestAttemptRepository
	answerRepo  repository.AnswerRepository
	writer      *ResultWriter
	metrics     *metrics.Metrics
}

func NewAdminTestService(
	attemptRepo repository.TestAttemptRepository,
	answerRepo repository.AnswerRepository,
	writer *ResultWriter,
	m *metrics.Metrics,
) AdminTestService {
	return &adminTestService{attemptRepo: attemptRepo, answerRepo: answerRepo, writer: writer, metrics: m}
}

func (s *adminTestService) ListAttempts(ctx context.Context, q dto.AttemptListQuery) (*dto.AttemptListResponse, error) {
	limit := q.Limit
	if limit == 0 {
		limit = 50
	}
	attempts, total, err := s.attemptRepo.FindAll(ctx, repository.AttemptFilter{
		UserID: q.UserID,
		TestID: q.TestID,
		Status: q.Status,
		Limit:  limit,
		Offset: q.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("error listing attempts: %w", err)
	}
	return &dto.AttemptListResponse{Total: total, Attempts: toAttemptSummaries(attempts)}, nil
}

// ForceAbandon abandons any user's in-progress attempt. An attempt whose
// result is cached for recovery is refused; recover it instead.
func (s *adminTestService) ForceAbandon(ctx context.Context, attemptID uint) (*dto.AttemptSummary, error) {
	pending, err := s.writer.Pending(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("error reading cached result of attempt %d: %w", attemptID, err)
	}
	if pending != nil {
		return nil, &StateError{AttemptID: attemptID, Op: "abandon", Status: statusPending}
	}

	err = s.attemptRepo.Abandon(ctx, attemptID)
	if errors.Is(err, repository.ErrNotInProgress) {
		a, ferr := s.attemptRepo.FindByID(ctx, attemptID)
		if errors.Is(ferr, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrAttemptNotFound, attemptID)
		}
		status := "no longer in progress"
		if ferr == nil {
			status = a.Status
		}
		return nil, &StateError{AttemptID: attemptID, Op: "abandon", Status: status}
	}
	if err != nil {
		return nil, fmt.Errorf("error abandoning attempt %d: %w", attemptID, err)
	}
	s.metrics.AttemptsAbandoned.WithLabelValues("operator").Inc()
	log.Info().Uint("attemptID", attemptID).Msg("ForceAbandon: Attempt abandoned by operator")

	a, err := s.attemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("error loading attempt %d: %w", attemptID, err)
	}
	summary := toAttemptSummary(a)
	return &summary, nil
}

// DeleteAttempt removes an attempt with its answers and any cached result.
func (s *adminTestService) DeleteAttempt(ctx context.Context, attemptID uint) error {
	if err := s.attemptRepo.Delete(ctx, attemptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrAttemptNotFound, attemptID)
		}
		return fmt.Errorf("error deleting attempt %d: %w", attemptID, err)
	}
	if err := s.writer.Discard(ctx, attemptID); err != nil && !errors.Is(err, ErrResultNotPending) {
		log.Warn().Err(err).Uint("attemptID", attemptID).Msg("DeleteAttempt: Failed to drop cached result")
	}
	log.Info().Uint("attemptID", attemptID).Msg("DeleteAttempt: Attempt deleted")
	return nil
}

// GetAttemptAnswers returns the stored answer records of any user's attempt.
func (s *adminTestService) GetAttemptAnswers(ctx context.Context, attemptID uint) ([]dto.AnswerValue, error) {
	if _, err := s.attemptRepo.FindByID(ctx, attemptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrAttemptNotFound, attemptID)
		}
		return nil, fmt.Errorf("error loading attempt %d: %w", attemptID, err)
	}
	records, err := s.answerRepo.FindByAttemptID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("error loading answers of attempt %d: %w", attemptID, err)
	}
	answers := toAnswerValues(records)
	if answers == nil {
		answers = []dto.AnswerValue{}
	}
	return answers, nil
}

func (s *adminTestService) ListPendingResults(ctx context.Context) ([]dto.PendingResult, error) {
	results, err := s.writer.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing pending results: %w", err)
	}
	out := make([]dto.PendingResult, 0, len(results))
	for _, r := range results {
		out = append(out, dto.PendingResult{
			AttemptID:   r.AttemptID,
			UserID:      r.UserID,
			TestID:      r.TestID,
			Revision:    r.Revision,
			TotalScore:  r.Total,
			CompletedAt: r.CompletedAt,
		})
	}
	return out, nil
}

// RecoverPendingResults replays every cached result. Stale results are
// discarded; their attempts stay in_progress and are rescored on the next
// completion.
func (s *adminTestService) RecoverPendingResults(ctx context.Context) (*dto.BulkRecoverResponse, error) {
	results, err := s.writer.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing pending results: %w", err)
	}

	type outcome struct {
		attemptID uint
		stale     bool
		err       error
	}
	jobs := make(chan uint)
	outcomes := make(chan outcome, len(results))
	var wg sync.WaitGroup
	for i := 0; i < recoverWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				_, _, err := s.writer.Recover(ctx, id)
				if errors.Is(err, ErrStaleResult) {
					if derr := s.writer.Discard(ctx, id); derr != nil && !errors.Is(derr, ErrResultNotPending) {
						outcomes <- outcome{attemptID: id, err: derr}
						continue
					}
					outcomes <- outcome{attemptID: id, stale: true}
					continue
				}
				outcomes <- outcome{attemptID: id, err: err}
			}
		}()
	}
	for _, r := range results {
		jobs <- r.AttemptID
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	resp := &dto.BulkRecoverResponse{Persisted: []uint{}, Stale: []uint{}}
	for o := range outcomes {
		switch {
		case o.stale:
			resp.Stale = append(resp.Stale, o.attemptID)
		case o.err != nil:
			if resp.Failed == nil {
				resp.Failed = map[uint]string{}
			}
			resp.Failed[o.attemptID] = o.err.Error()
		default:
			resp.Persisted = append(resp.Persisted, o.attemptID)
		}
	}
	log.Info().Int("persisted", len(resp.Persisted)).Int("stale", len(resp.Stale)).Int("failed", len(resp.Failed)).
		Msg("RecoverPendingResults: Bulk recovery finished")
	return resp, nil
}
