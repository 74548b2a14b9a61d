package service

import (
	"fmt"
	"math"
)

// Performance bands shown with a completed attempt.
const (
	BandExpert       = "expert"
	BandAdvanced     = "advanced"
	BandIntermediate = "intermediate"
	BandBeginner     = "beginner"
)

type ScoreConverterService interface {
	// ConvertToPercentage maps a total onto 0-100 of the attempt's maximum.
	// Negative totals floor at 0.
	ConvertToPercentage(total, maxScore float64) (float64, error)
	Band(percentage float64) string
}

type scoreConverterServiceImpl struct{}

func NewScoreConverterService() ScoreConverterService {
	return &scoreConverterServiceImpl{}
}

func (s *scoreConverterServiceImpl) ConvertToPercentage(total, maxScore float64) (float64, error) {
	if maxScore <= 0 {
		return 0, fmt.Errorf("max score %.2f must be positive", maxScore)
	}
	if total > maxScore {
		return 0, fmt.Errorf("total %.2f exceeds max score %.2f", total, maxScore)
	}
	pct := total / maxScore * 100
	if pct < 0 {
		pct = 0
	}
	// Two decimals.
	return math.Round(pct*100) / 100, nil
}

func (s *scoreConverterServiceImpl) Band(percentage float64) string {
	switch {
	case percentage >= 90:
		return BandExpert
	case percentage >= 75:
		return BandAdvanced
	case percentage >= 50:
		return BandIntermediate
	default:
		return BandBeginner
	}
}
