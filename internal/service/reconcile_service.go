package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/metrics"
	"github.com/lshigami/examprep/internal/model"
	"github.com/lshigami/examprep/internal/repository"
	"github.com/rs/zerolog/log"
)

// ReconcileService repairs (user, test) pairs that hold more than one
// in_progress attempt, keeping the newest and abandoning the rest. It uses
// the same conditional transition as a user abandon, so an attempt that
// completes concurrently is left alone.
type ReconcileService interface {
	Reconcile(ctx context.Context) (*dto.ReconcileReport, error)
	FindViolations(ctx context.Context) ([]dto.DuplicateGroup, error)
}

type reconcileService struct {
	attemptRepo repository.TestAttemptRepository
	writer      *ResultWriter
	metrics     *metrics.Metrics
}

func NewReconcileService(attemptRepo repository.TestAttemptRepository, writer *ResultWriter, m *metrics.Metrics) ReconcileService {
	return &reconcileService{attemptRepo: attemptRepo, writer: writer, metrics: m}
}

func (s *reconcileService) FindViolations(ctx context.Context) ([]dto.DuplicateGroup, error) {
	pairs, err := s.attemptRepo.FindDuplicateActiveGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("error finding duplicate attempts: %w", err)
	}
	groups := make([]dto.DuplicateGroup, 0, len(pairs))
	for _, p := range pairs {
		groups = append(groups, dto.DuplicateGroup{UserID: p.UserID, TestID: p.TestID, Count: p.Count})
	}
	return groups, nil
}

func (s *reconcileService) Reconcile(ctx context.Context) (*dto.ReconcileReport, error) {
	pairs, err := s.attemptRepo.FindDuplicateActiveGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("error finding duplicate attempts: %w", err)
	}

	report := &dto.ReconcileReport{Groups: []dto.ReconciledGroup{}}
	var errs []error
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		group, err := s.fixPair(ctx, p)
		if err != nil {
			errs = append(errs, err)
		}
		if group == nil || len(group.Abandoned) == 0 {
			continue
		}
		report.Groups = append(report.Groups, *group)
		report.GroupsFixed++
		report.AttemptsAbandoned += len(group.Abandoned)
	}

	s.metrics.ReconcileGroupsFixed.Add(float64(report.GroupsFixed))
	s.metrics.AttemptsAbandoned.WithLabelValues("reconcile").Add(float64(report.AttemptsAbandoned))
	log.Info().Int("groupsFixed", report.GroupsFixed).Int("attemptsAbandoned", report.AttemptsAbandoned).
		Msg("Reconcile: Sweep finished")
	return report, errors.Join(errs...)
}

func (s *reconcileService) fixPair(ctx context.Context, p repository.ActivePair) (*dto.ReconciledGroup, error) {
	attempts, err := s.attemptRepo.FindActiveByPair(ctx, p.UserID, p.TestID)
	if err != nil {
		return nil, fmt.Errorf("loading attempts of user %s test %d: %w", p.UserID, p.TestID, err)
	}
	if len(attempts) < 2 {
		return nil, nil
	}
	sortNewestFirst(attempts)

	group := &dto.ReconciledGroup{UserID: p.UserID, TestID: p.TestID, Kept: attempts[0].ID}
	log.Warn().Str("userID", p.UserID).Uint("testID", p.TestID).Int("inProgress", len(attempts)).
		Uint("keep", attempts[0].ID).Msg("Reconcile: Duplicate in-progress attempts found")

	var errs []error
	for _, a := range attempts[1:] {
		if err := s.settlePending(ctx, a.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		err := s.attemptRepo.Abandon(ctx, a.ID)
		switch {
		case err == nil:
			group.Abandoned = append(group.Abandoned, a.ID)
		case errors.Is(err, repository.ErrNotInProgress):
			// Completed or abandoned since it was listed.
			group.Skipped = append(group.Skipped, a.ID)
		default:
			errs = append(errs, fmt.Errorf("abandoning attempt %d: %w", a.ID, err))
		}
	}
	return group, errors.Join(errs...)
}

// settlePending replays a result cached for the attempt before it is
// abandoned. A persisted result completes the attempt, so the abandon that
// follows skips it. A stale result is dropped. Any other failure leaves the
// attempt and its cached result alone.
func (s *reconcileService) settlePending(ctx context.Context, attemptID uint) error {
	pending, err := s.writer.Pending(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("reading cached result of attempt %d: %w", attemptID, err)
	}
	if pending == nil {
		return nil
	}
	status, _, err := s.writer.Recover(ctx, attemptID)
	switch {
	case err == nil:
		log.Info().Uint("attemptID", attemptID).Str("status", status.String()).
			Msg("Reconcile: Cached result recovered before abandoning duplicates")
		return nil
	case errors.Is(err, ErrStaleResult):
		if derr := s.writer.Discard(ctx, attemptID); derr != nil && !errors.Is(derr, ErrResultNotPending) {
			return fmt.Errorf("discarding stale result of attempt %d: %w", attemptID, derr)
		}
		return nil
	default:
		return fmt.Errorf("recovering cached result of attempt %d: %w", attemptID, err)
	}
}

// sortNewestFirst orders by start time, then id, both descending.
func sortNewestFirst(attempts []model.TestAttempt) {
	sort.SliceStable(attempts, func(i, j int) bool {
		if !attempts[i].StartedAt.Equal(attempts[j].StartedAt) {
			return attempts[i].StartedAt.After(attempts[j].StartedAt)
		}
		return attempts[i].ID > attempts[j].ID
	})
}
