package domain

import (
	"errors"
	"testing"
	"time"
)

// TestNewCardAnalysis verifies counts, timestamps, and computed outputs.
func TestNewCardAnalysis(t *testing.T) {
	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.FixedZone("X", 3600))
	analysis, err := NewCardAnalysis(AnalysisInput{
		ID:     " run-1 ",
		CardID: " card-1 ",
		Actions: []Action{
			createAction("a1", "2024-01-01T00:00:00Z", nil),
			moveAction("a2", "2024-01-01T01:30:00Z", member("m1"), "Backlog", "Doing"),
			moveAction("a3", "nope", member("m1"), "Doing", "Done"),
		},
		Tracked: defaultTracked,
		Policy:  ResolutionPolicy{ResolvedLists: []string{"Done"}},
	}, now)
	if err != nil {
		t.Fatalf("NewCardAnalysis() error = %v", err)
	}
	if analysis.ID != "run-1" || analysis.CardID != "card-1" {
		t.Fatalf("ids = %q/%q, want trimmed", analysis.ID, analysis.CardID)
	}
	if analysis.ActionCount != 2 || analysis.SkippedActions != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", analysis.ActionCount, analysis.SkippedActions)
	}
	if !analysis.AnalyzedAt.Equal(now) || analysis.AnalyzedAt.Location() != time.UTC {
		t.Fatalf("AnalyzedAt = %s, want UTC instant of now", analysis.AnalyzedAt)
	}
	if analysis.Timing.FirstActionTime == nil || *analysis.Timing.FirstActionTime != 90 {
		t.Fatalf("FirstActionTime = %v, want 90", analysis.Timing.FirstActionTime)
	}
	if analysis.Timing.ResolutionTime != nil {
		t.Fatalf("ResolutionTime = %d, want nil", *analysis.Timing.ResolutionTime)
	}
	if len(analysis.Journey.MovesFor("doingMoves")) != 1 {
		t.Fatalf("doingMoves = %#v", analysis.Journey.MovesFor("doingMoves"))
	}
}

// TestNewCardAnalysisValidation verifies id and tracked-list validation.
func TestNewCardAnalysisValidation(t *testing.T) {
	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		in   AnalysisInput
		want error
	}{
		{name: "missing id", in: AnalysisInput{CardID: "c1"}, want: ErrInvalidID},
		{name: "missing card id", in: AnalysisInput{ID: "r1", CardID: " "}, want: ErrInvalidCardID},
		{
			name: "blank tracked key",
			in:   AnalysisInput{ID: "r1", CardID: "c1", Tracked: []TrackedList{{Name: "Doing"}}},
			want: ErrInvalidTrackedList,
		},
		{
			name: "blank tracked name",
			in:   AnalysisInput{ID: "r1", CardID: "c1", Tracked: []TrackedList{{Key: "doingMoves"}}},
			want: ErrInvalidTrackedList,
		},
		{
			name: "reserved tracked key",
			in:   AnalysisInput{ID: "r1", CardID: "c1", Tracked: []TrackedList{{Key: CardCreatedKey, Name: "Created"}}},
			want: ErrInvalidTrackedList,
		},
		{
			name: "duplicate tracked key",
			in: AnalysisInput{ID: "r1", CardID: "c1", Tracked: []TrackedList{
				{Key: "doingMoves", Name: "Doing"},
				{Key: "doingMoves", Name: "In Progress"},
			}},
			want: ErrInvalidTrackedList,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCardAnalysis(tc.in, now)
			if !errors.Is(err, tc.want) {
				t.Fatalf("NewCardAnalysis() error = %v, want %v", err, tc.want)
			}
		})
	}
}
