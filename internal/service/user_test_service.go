package service

import (
	"context"
	"fmt"

	"github.com/lshigami/examprep/internal/dto"
	"github.com/lshigami/examprep/internal/repository"
	"github.com/rs/zerolog/log"
)

type UserTestService interface {
	// GetAllTests lists the tests a user can take with their latest attempt.
	GetAllTests(ctx context.Context, userID string) ([]dto.TestSummary, error)
}

type userTestService struct {
	testRepo    repository.TestRepository
	attemptRepo repository.TestAttemptRepository
}

func NewUserTestService(testRepo repository.TestRepository, attemptRepo repository.TestAttemptRepository) UserTestService {
	return &userTestService{testRepo: testRepo, attemptRepo: attemptRepo}
}

func (s *userTestService) GetAllTests(ctx context.Context, userID string) ([]dto.TestSummary, error) {
	tests, err := s.testRepo.FindVisible(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get tests from repository")
		return nil, fmt.Errorf("error fetching tests: %w", err)
	}
	latest, err := s.attemptRepo.FindLatestByUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Failed to get latest attempts")
		return nil, fmt.Errorf("error fetching attempts: %w", err)
	}

	summaries := make([]dto.TestSummary, 0, len(tests))
	for i := range tests {
		summary := toTestSummary(&tests[i])
		if a, ok := latest[tests[i].ID]; ok {
			summary.Progress = &dto.TestProgress{
				LatestAttemptID: a.ID,
				Status:          a.Status,
				TotalScore:      a.TotalScore,
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
