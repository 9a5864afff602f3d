package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/cardtrail/internal/adapters/trello"
	"github.com/hylla/cardtrail/internal/app"
	"github.com/hylla/cardtrail/internal/domain"
)

// maxBatchCards bounds one batch analysis request.
const maxBatchCards = 100

// AppServiceAdapter maps transport contracts onto app.Service analysis APIs.
type AppServiceAdapter struct {
	service *app.Service
	now     func() time.Time
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service, now: time.Now}
}

// AnalyzeCard fetches, analyzes and stores one card.
func (a *AppServiceAdapter) AnalyzeCard(ctx context.Context, in AnalyzeCardRequest) (CardAnalysisView, error) {
	if err := a.ready(); err != nil {
		return CardAnalysisView{}, err
	}
	cardID := strings.TrimSpace(in.CardID)
	if cardID == "" {
		return CardAnalysisView{}, fmt.Errorf("card_id is required: %w", ErrInvalidRequest)
	}
	analysis, err := a.service.AnalyzeCard(ctx, app.AnalyzeCardInput{
		CardID:     cardID,
		ResolvedAt: in.ResolvedAt,
	})
	if err != nil {
		return CardAnalysisView{}, mapAppError("analyze card", err)
	}
	return NewCardAnalysisView(analysis, a.now()), nil
}

// AnalyzeCards analyzes a batch of cards and returns results in request order.
func (a *AppServiceAdapter) AnalyzeCards(ctx context.Context, in AnalyzeCardsRequest) ([]CardAnalysisView, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	cardIDs, err := normalizeCardIDs(in.CardIDs)
	if err != nil {
		return nil, err
	}
	analyses, err := a.service.AnalyzeCards(ctx, cardIDs)
	if err != nil {
		return nil, mapAppError("analyze cards", err)
	}
	now := a.now()
	out := make([]CardAnalysisView, 0, len(analyses))
	for _, analysis := range analyses {
		out = append(out, NewCardAnalysisView(analysis, now))
	}
	return out, nil
}

// AnalyzeActions analyzes an inline Trello action array without persisting it.
func (a *AppServiceAdapter) AnalyzeActions(_ context.Context, in AnalyzeActionsRequest) (CardAnalysisView, error) {
	if err := a.ready(); err != nil {
		return CardAnalysisView{}, err
	}
	cardID := strings.TrimSpace(in.CardID)
	if cardID == "" {
		return CardAnalysisView{}, fmt.Errorf("card_id is required: %w", ErrInvalidRequest)
	}
	actions, err := trello.DecodeActions(in.Actions)
	if err != nil {
		return CardAnalysisView{}, fmt.Errorf("decode actions: %w", errors.Join(ErrInvalidRequest, err))
	}
	analysis, err := a.service.AnalyzeActions(app.AnalyzeActionsInput{
		CardID:     cardID,
		Actions:    actions,
		ResolvedAt: in.ResolvedAt,
	})
	if err != nil {
		return CardAnalysisView{}, mapAppError("analyze actions", err)
	}
	return NewCardAnalysisView(analysis, a.now()), nil
}

// GetCardAnalysis returns the stored analysis for one card.
func (a *AppServiceAdapter) GetCardAnalysis(ctx context.Context, cardID string) (CardAnalysisView, error) {
	if err := a.ready(); err != nil {
		return CardAnalysisView{}, err
	}
	analysis, err := a.service.GetCardAnalysis(ctx, cardID)
	if err != nil {
		return CardAnalysisView{}, mapAppError("get card analysis", err)
	}
	return NewCardAnalysisView(analysis, a.now()), nil
}

// ListCardAnalyses lists recently stored analyses.
func (a *AppServiceAdapter) ListCardAnalyses(ctx context.Context, limit int) ([]CardAnalysisView, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	analyses, err := a.service.ListCardAnalyses(ctx, limit)
	if err != nil {
		return nil, mapAppError("list card analyses", err)
	}
	now := a.now()
	out := make([]CardAnalysisView, 0, len(analyses))
	for _, analysis := range analyses {
		out = append(out, NewCardAnalysisView(analysis, now))
	}
	return out, nil
}

// ListAnalysisRuns lists recorded runs for one card.
func (a *AppServiceAdapter) ListAnalysisRuns(ctx context.Context, cardID string, limit int) ([]AnalysisRunView, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	runs, err := a.service.ListAnalysisRuns(ctx, cardID, limit)
	if err != nil {
		return nil, mapAppError("list analysis runs", err)
	}
	out := make([]AnalysisRunView, 0, len(runs))
	for _, run := range runs {
		out = append(out, NewAnalysisRunView(run))
	}
	return out, nil
}

// ready reports whether the adapter has a backing service.
func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrUpstreamUnavailable)
	}
	if a.now == nil {
		a.now = time.Now
	}
	return nil
}

// normalizeCardIDs trims, de-duplicates and bounds batch card ids.
func normalizeCardIDs(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, raw := range in {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, fmt.Errorf("card_ids must not contain blank values: %w", ErrInvalidRequest)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("card_ids is required: %w", ErrInvalidRequest)
	}
	if len(out) > maxBatchCards {
		return nil, fmt.Errorf("card_ids accepts at most %d values: %w", maxBatchCards, ErrInvalidRequest)
	}
	return out, nil
}

// mapAppError maps app and adapter errors onto transport sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, trello.ErrUnauthorized):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUpstreamUnauthorized, err))
	case errors.Is(err, app.ErrActionSourceUnavailable):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUpstreamUnavailable, err))
	case errors.Is(err, app.ErrInvalidCardID),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidCardID),
		errors.Is(err, domain.ErrInvalidTrackedList):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
