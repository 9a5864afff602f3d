package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/cardtrail/internal/domain"
	"golang.org/x/sync/errgroup"
)

// defaultListLimit bounds analysis listings when callers pass no limit.
const defaultListLimit = 50

// maxListLimit caps analysis listings.
const maxListLimit = 500

// defaultConcurrency bounds parallel card fetches in batch analysis.
const defaultConcurrency = 4

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	TrackedLists  []domain.TrackedList
	ResolvedLists []string
	DueComplete   bool
	TSMemberIDs   []string
	TSListNames   []string
	Concurrency   int
}

// DefaultTrackedLists returns the journey lists used when none are configured.
func DefaultTrackedLists() []domain.TrackedList {
	return []domain.TrackedList{
		{Key: "doingMoves", Name: "Doing"},
		{Key: "tsMoves", Name: "TS"},
		{Key: "doneMoves", Name: "Done"},
	}
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service analyzes card histories and persists the results.
type Service struct {
	repo          Repository
	source        ActionSource
	idGen         IDGenerator
	clock         Clock
	tracked       []domain.TrackedList
	resolvedLists []string
	dueComplete   bool
	tsStart       domain.EventPredicate
	concurrency   int
}

// NewService constructs a new value for this package.
func NewService(repo Repository, source ActionSource, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	tracked := append([]domain.TrackedList(nil), cfg.TrackedLists...)
	if len(tracked) == 0 {
		tracked = DefaultTrackedLists()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	return &Service{
		repo:          repo,
		source:        source,
		idGen:         idGen,
		clock:         clock,
		tracked:       tracked,
		resolvedLists: append([]string(nil), cfg.ResolvedLists...),
		dueComplete:   cfg.DueComplete,
		tsStart:       domain.NewTSEngagementPredicate(cfg.TSMemberIDs, cfg.TSListNames),
		concurrency:   cfg.Concurrency,
	}
}

// TrackedLists returns the configured journey lists in output order.
func (s *Service) TrackedLists() []domain.TrackedList {
	return append([]domain.TrackedList(nil), s.tracked...)
}

// AnalyzeActionsInput holds input values for in-memory analysis.
type AnalyzeActionsInput struct {
	CardID     string
	Actions    []domain.Action
	ResolvedAt *time.Time
}

// AnalyzeActions computes one analysis without fetching or persisting anything.
func (s *Service) AnalyzeActions(in AnalyzeActionsInput) (domain.CardAnalysis, error) {
	cardID := strings.TrimSpace(in.CardID)
	if cardID == "" {
		return domain.CardAnalysis{}, ErrInvalidCardID
	}
	analysis, err := domain.NewCardAnalysis(domain.AnalysisInput{
		ID:      s.idGen(),
		CardID:  cardID,
		Actions: in.Actions,
		Tracked: s.tracked,
		Policy:  s.policy(in.ResolvedAt),
	}, s.clock())
	if err != nil {
		return domain.CardAnalysis{}, fmt.Errorf("analyze card %q: %w", cardID, err)
	}
	return analysis, nil
}

// AnalyzeCardInput holds input values for fetch-and-persist analysis.
type AnalyzeCardInput struct {
	CardID     string
	ResolvedAt *time.Time
}

// AnalyzeCard fetches a card's actions, analyzes them, and stores the result.
func (s *Service) AnalyzeCard(ctx context.Context, in AnalyzeCardInput) (domain.CardAnalysis, error) {
	cardID := strings.TrimSpace(in.CardID)
	if cardID == "" {
		return domain.CardAnalysis{}, ErrInvalidCardID
	}
	if s.source == nil {
		return domain.CardAnalysis{}, ErrActionSourceUnavailable
	}
	actions, err := s.source.ListCardActions(ctx, cardID)
	if err != nil {
		return domain.CardAnalysis{}, fmt.Errorf("list actions for card %q: %w", cardID, err)
	}
	analysis, err := s.AnalyzeActions(AnalyzeActionsInput{
		CardID:     cardID,
		Actions:    actions,
		ResolvedAt: in.ResolvedAt,
	})
	if err != nil {
		return domain.CardAnalysis{}, err
	}
	if err := s.repo.UpsertCardAnalysis(ctx, analysis); err != nil {
		return domain.CardAnalysis{}, fmt.Errorf("store analysis for card %q: %w", cardID, err)
	}
	return analysis, nil
}

// StoreAnalysis persists an analysis computed from supplied actions.
func (s *Service) StoreAnalysis(ctx context.Context, analysis domain.CardAnalysis) error {
	if strings.TrimSpace(analysis.CardID) == "" {
		return ErrInvalidCardID
	}
	if err := s.repo.UpsertCardAnalysis(ctx, analysis); err != nil {
		return fmt.Errorf("store analysis for card %q: %w", analysis.CardID, err)
	}
	return nil
}

// AnalyzeCards analyzes several cards in parallel; the first failure cancels the rest.
// Results keep the order of cardIDs.
func (s *Service) AnalyzeCards(ctx context.Context, cardIDs []string) ([]domain.CardAnalysis, error) {
	if len(cardIDs) == 0 {
		return []domain.CardAnalysis{}, nil
	}
	out := make([]domain.CardAnalysis, len(cardIDs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for i, cardID := range cardIDs {
		group.Go(func() error {
			analysis, err := s.AnalyzeCard(groupCtx, AnalyzeCardInput{CardID: cardID})
			if err != nil {
				return err
			}
			out[i] = analysis
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCardAnalysis returns the stored analysis for one card.
func (s *Service) GetCardAnalysis(ctx context.Context, cardID string) (domain.CardAnalysis, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return domain.CardAnalysis{}, ErrInvalidCardID
	}
	analysis, err := s.repo.GetCardAnalysis(ctx, cardID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.CardAnalysis{}, fmt.Errorf("analysis for card %q: %w", cardID, ErrNotFound)
		}
		return domain.CardAnalysis{}, err
	}
	return analysis, nil
}

// ListCardAnalyses lists stored analyses, most recent first.
func (s *Service) ListCardAnalyses(ctx context.Context, limit int) ([]domain.CardAnalysis, error) {
	return s.repo.ListCardAnalyses(ctx, clampLimit(limit))
}

// ListAnalysisRuns lists the recorded analysis history for one card, newest first.
func (s *Service) ListAnalysisRuns(ctx context.Context, cardID string, limit int) ([]domain.AnalysisRun, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, ErrInvalidCardID
	}
	return s.repo.ListAnalysisRuns(ctx, cardID, clampLimit(limit))
}

// clampLimit applies the default and maximum listing sizes.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// policy builds the resolution policy for one analysis.
func (s *Service) policy(resolvedAt *time.Time) domain.ResolutionPolicy {
	return domain.ResolutionPolicy{
		ResolvedAt:    resolvedAt,
		ResolvedLists: s.resolvedLists,
		DueComplete:   s.dueComplete,
		TSStart:       s.tsStart,
	}
}
