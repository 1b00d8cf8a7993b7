package ops

import (
	"context"

	"github.com/hpungsan/quire/internal/insights"
)

// InsightsInput contains parameters for the Insights operation.
type InsightsInput struct {
	UserID string
	Days   int // 0 uses the configured default; capped at the configured maximum
}

// Insights aggregates the user's recent entries into a report.
func (s *Service) Insights(ctx context.Context, input InsightsInput) (*insights.Report, error) {
	userID, err := requireUser(input.UserID)
	if err != nil {
		return nil, err
	}
	r, err := s.assembler.Insights(ctx, userID, input.Days)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
