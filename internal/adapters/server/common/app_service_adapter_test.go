package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hylla/cardtrail/internal/adapters/trello"
	"github.com/hylla/cardtrail/internal/app"
	"github.com/hylla/cardtrail/internal/domain"
)

// memoryRepo stores analyses in memory for adapter tests.
type memoryRepo struct {
	mu       sync.Mutex
	analyses map[string]domain.CardAnalysis
	runs     []domain.AnalysisRun
}

func (r *memoryRepo) UpsertCardAnalysis(_ context.Context, a domain.CardAnalysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.analyses == nil {
		r.analyses = map[string]domain.CardAnalysis{}
	}
	r.analyses[a.CardID] = a
	r.runs = append(r.runs, a.Run())
	return nil
}

func (r *memoryRepo) GetCardAnalysis(_ context.Context, cardID string) (domain.CardAnalysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.analyses[cardID]
	if !ok {
		return domain.CardAnalysis{}, app.ErrNotFound
	}
	return a, nil
}

func (r *memoryRepo) ListCardAnalyses(_ context.Context, _ int) ([]domain.CardAnalysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.CardAnalysis, 0, len(r.analyses))
	for _, a := range r.analyses {
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryRepo) ListAnalysisRuns(_ context.Context, cardID string, _ int) ([]domain.AnalysisRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AnalysisRun, 0)
	for _, run := range r.runs {
		if run.CardID == cardID {
			out = append(out, run)
		}
	}
	return out, nil
}

// mapSource serves fixed action lists keyed by card id.
type mapSource struct {
	actions map[string][]domain.Action
	err     error
}

func (s mapSource) ListCardActions(_ context.Context, cardID string) ([]domain.Action, error) {
	if s.err != nil {
		return nil, s.err
	}
	actions, ok := s.actions[cardID]
	if !ok {
		return nil, fmt.Errorf("card %s: %w", cardID, app.ErrNotFound)
	}
	return actions, nil
}

func journeyActions() []domain.Action {
	return []domain.Action{
		{ID: "a1", Type: domain.ActionTypeCreateCard, Date: "2024-01-01T00:00:00Z", MemberCreator: &domain.Member{ID: "u1"}},
		{
			ID:   "a2",
			Type: domain.ActionTypeUpdateCard,
			Date: "2024-01-01T01:30:00Z",
			Data: domain.ActionData{
				ListBefore: &domain.ListRef{Name: "Backlog"},
				ListAfter:  &domain.ListRef{Name: "Doing"},
			},
			MemberCreator: &domain.Member{ID: "m1", FullName: "Mona Lane", Initials: "ML"},
		},
	}
}

func newTestAdapter(source app.ActionSource) *AppServiceAdapter {
	svc := app.NewService(&memoryRepo{}, source, func() string { return "run-1" }, func() time.Time {
		return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	}, app.ServiceConfig{ResolvedLists: []string{"Done"}})
	adapter := NewAppServiceAdapter(svc)
	adapter.now = func() time.Time { return time.Date(2024, 1, 3, 1, 30, 0, 0, time.UTC) }
	return adapter
}

// TestJourneyViewMarshalOrder verifies cardCreated leads and tracked keys keep configured order.
func TestJourneyViewMarshalOrder(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	view := JourneyView{
		CardCreated: &created,
		Keys:        []string{"zMoves", "aMoves"},
		Moves: map[string][]MoveView{
			"aMoves": {{Date: created, From: "Backlog", To: "A"}},
		},
	}
	raw, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"cardCreated":"2024-01-01T00:00:00Z","zMoves":[],"aMoves":[{"date":"2024-01-01T00:00:00Z","from":"Backlog","to":"A","member":null}]}`
	if string(raw) != want {
		t.Fatalf("Marshal() = %s, want %s", raw, want)
	}

	raw, err = json.Marshal(JourneyView{})
	if err != nil {
		t.Fatalf("Marshal(empty) error = %v", err)
	}
	if string(raw) != `{"cardCreated":null}` {
		t.Fatalf("Marshal(empty) = %s", raw)
	}
}

// TestAdapterAnalyzeCardMapsView verifies timing, journey and stays in the transport view.
func TestAdapterAnalyzeCardMapsView(t *testing.T) {
	adapter := newTestAdapter(mapSource{actions: map[string][]domain.Action{"card-1": journeyActions()}})
	view, err := adapter.AnalyzeCard(context.Background(), AnalyzeCardRequest{CardID: "card-1"})
	if err != nil {
		t.Fatalf("AnalyzeCard() error = %v", err)
	}
	if view.ResolutionTiming.FirstActionTime == nil || *view.ResolutionTiming.FirstActionTime != 90 {
		t.Fatalf("firstActionTime = %v, want 90", view.ResolutionTiming.FirstActionTime)
	}
	if view.ResolutionTiming.ResolutionTime != nil {
		t.Fatalf("resolutionTime = %d, want nil", *view.ResolutionTiming.ResolutionTime)
	}
	doing := view.CardJourney.Moves["doingMoves"]
	if len(doing) != 1 || doing[0].From != "Backlog" || doing[0].Member == nil || doing[0].Member.Name != "Mona Lane" {
		t.Fatalf("doingMoves = %#v", doing)
	}
	if len(view.Stays) != 1 || !view.Stays[0].Open || view.Stays[0].Days != 2 {
		t.Fatalf("stays = %#v, want one open 2-day stay", view.Stays)
	}

	raw, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, fragment := range []string{`"resolutionTime":null`, `"TSResolutionTime":null`, `"firstActionTime":90`, `"cardCreated":"2024-01-01T00:00:00Z"`} {
		if !strings.Contains(string(raw), fragment) {
			t.Fatalf("encoded view missing %s: %s", fragment, raw)
		}
	}
}

// TestAdapterAnalyzeActionsDecodesWireFormat verifies inline Trello payloads are analyzed without persistence.
func TestAdapterAnalyzeActionsDecodesWireFormat(t *testing.T) {
	adapter := newTestAdapter(nil)
	payload := json.RawMessage(`[
		{"id":"a2","type":"updateCard","date":"2024-01-01T01:30:00Z","memberCreator":{"id":"m1","username":"mona"},
		 "data":{"card":{"id":"c1"},"listBefore":{"id":"l1","name":"Backlog"},"listAfter":{"id":"l2","name":"Doing"},"old":{"idList":"l1"}}},
		{"id":"a1","type":"createCard","date":"2024-01-01T00:00:00Z","memberCreator":{"id":"u1"},"data":{"card":{"id":"c1"}}}
	]`)
	view, err := adapter.AnalyzeActions(context.Background(), AnalyzeActionsRequest{CardID: "c1", Actions: payload})
	if err != nil {
		t.Fatalf("AnalyzeActions() error = %v", err)
	}
	if view.ResolutionTiming.FirstActionTime == nil || *view.ResolutionTiming.FirstActionTime != 90 {
		t.Fatalf("firstActionTime = %v, want 90", view.ResolutionTiming.FirstActionTime)
	}
	if _, err := adapter.GetCardAnalysis(context.Background(), "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetCardAnalysis() error = %v, want ErrNotFound for unsaved analysis", err)
	}

	_, err = adapter.AnalyzeActions(context.Background(), AnalyzeActionsRequest{CardID: "c1", Actions: json.RawMessage(`{"not":"array"}`)})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("AnalyzeActions(object) error = %v, want ErrInvalidRequest", err)
	}
}

// TestAdapterErrorMapping verifies app and source errors map onto transport sentinels.
func TestAdapterErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		source app.ActionSource
		cardID string
		want   error
	}{
		{name: "blank", source: mapSource{}, cardID: " ", want: ErrInvalidRequest},
		{name: "missing card", source: mapSource{}, cardID: "nope", want: ErrNotFound},
		{name: "no source", source: nil, cardID: "card-1", want: ErrUpstreamUnavailable},
		{name: "throttled", source: mapSource{err: &trello.APIError{StatusCode: 429}}, cardID: "card-1", want: ErrUpstreamUnavailable},
		{name: "unauthorized", source: mapSource{err: &trello.APIError{StatusCode: 401}}, cardID: "card-1", want: ErrUpstreamUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adapter := newTestAdapter(tc.source)
			if _, err := adapter.AnalyzeCard(context.Background(), AnalyzeCardRequest{CardID: tc.cardID}); !errors.Is(err, tc.want) {
				t.Fatalf("AnalyzeCard() error = %v, want %v", err, tc.want)
			}
		})
	}

	var nilAdapter *AppServiceAdapter
	if _, err := nilAdapter.ListCardAnalyses(context.Background(), 5); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("nil adapter error = %v, want ErrUpstreamUnavailable", err)
	}
}

// TestAdapterAnalyzeCardsNormalizesIDs verifies batch ids are trimmed, de-duplicated and validated.
func TestAdapterAnalyzeCardsNormalizesIDs(t *testing.T) {
	adapter := newTestAdapter(mapSource{actions: map[string][]domain.Action{
		"c1": journeyActions(),
		"c2": nil,
	}})
	views, err := adapter.AnalyzeCards(context.Background(), AnalyzeCardsRequest{CardIDs: []string{" c2", "c1", "c2 "}})
	if err != nil {
		t.Fatalf("AnalyzeCards() error = %v", err)
	}
	if len(views) != 2 || views[0].CardID != "c2" || views[1].CardID != "c1" {
		t.Fatalf("AnalyzeCards() = %#v, want [c2 c1]", views)
	}

	for _, ids := range [][]string{nil, {"c1", " "}} {
		if _, err := adapter.AnalyzeCards(context.Background(), AnalyzeCardsRequest{CardIDs: ids}); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("AnalyzeCards(%q) error = %v, want ErrInvalidRequest", ids, err)
		}
	}
	tooMany := make([]string, maxBatchCards+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("c%d", i)
	}
	if _, err := adapter.AnalyzeCards(context.Background(), AnalyzeCardsRequest{CardIDs: tooMany}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("AnalyzeCards(too many) error = %v, want ErrInvalidRequest", err)
	}
}

// TestAdapterListAnalysisRuns verifies stored runs map onto history views.
func TestAdapterListAnalysisRuns(t *testing.T) {
	adapter := newTestAdapter(mapSource{actions: map[string][]domain.Action{"card-1": journeyActions()}})
	if _, err := adapter.AnalyzeCard(context.Background(), AnalyzeCardRequest{CardID: "card-1"}); err != nil {
		t.Fatalf("AnalyzeCard() error = %v", err)
	}
	runs, err := adapter.ListAnalysisRuns(context.Background(), "card-1", 10)
	if err != nil {
		t.Fatalf("ListAnalysisRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" || runs[0].ActionCount != 2 {
		t.Fatalf("ListAnalysisRuns() = %#v", runs)
	}
}
