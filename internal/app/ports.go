package app

import (
	"context"

	"github.com/hylla/cardtrail/internal/domain"
)

// Repository persists derived card analyses.
type Repository interface {
	UpsertCardAnalysis(context.Context, domain.CardAnalysis) error
	GetCardAnalysis(context.Context, string) (domain.CardAnalysis, error)
	ListCardAnalyses(context.Context, int) ([]domain.CardAnalysis, error)
	ListAnalysisRuns(context.Context, string, int) ([]domain.AnalysisRun, error)
}

// ActionSource fetches the full action history for one card.
type ActionSource interface {
	ListCardActions(context.Context, string) ([]domain.Action, error)
}
