package domain

import (
	"fmt"
	"strings"
	"time"
)

// CardAnalysis is the derived timing and journey for one card at one point in time.
type CardAnalysis struct {
	ID             string
	CardID         string
	Timing         ResolutionTiming
	Journey        CardJourney
	ActionCount    int
	SkippedActions int
	AnalyzedAt     time.Time
}

// AnalysisRun is one recorded analysis result, kept for history after later runs replace it.
type AnalysisRun struct {
	ID             string
	CardID         string
	Timing         ResolutionTiming
	ActionCount    int
	SkippedActions int
	AnalyzedAt     time.Time
}

// Run returns the history record for this analysis.
func (a CardAnalysis) Run() AnalysisRun {
	return AnalysisRun{
		ID:             a.ID,
		CardID:         a.CardID,
		Timing:         a.Timing,
		ActionCount:    a.ActionCount,
		SkippedActions: a.SkippedActions,
		AnalyzedAt:     a.AnalyzedAt,
	}
}

// AnalysisInput holds input values for card analysis.
type AnalysisInput struct {
	ID      string
	CardID  string
	Actions []Action
	Tracked []TrackedList
	Policy  ResolutionPolicy
}

// NewCardAnalysis validates the input and computes timing and journey.
func NewCardAnalysis(in AnalysisInput, now time.Time) (CardAnalysis, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.CardID = strings.TrimSpace(in.CardID)
	if in.ID == "" {
		return CardAnalysis{}, ErrInvalidID
	}
	if in.CardID == "" {
		return CardAnalysis{}, ErrInvalidCardID
	}
	if err := ValidateTrackedLists(in.Tracked); err != nil {
		return CardAnalysis{}, err
	}

	_, skipped := PrepareActions(in.Actions)
	return CardAnalysis{
		ID:             in.ID,
		CardID:         in.CardID,
		Timing:         ComputeResolutionTiming(in.Actions, in.Policy),
		Journey:        ComputeCardJourney(in.Actions, in.Tracked),
		ActionCount:    len(in.Actions) - skipped,
		SkippedActions: skipped,
		AnalyzedAt:     now.UTC(),
	}, nil
}

// ValidateTrackedLists rejects blank or duplicated tracked-list keys.
func ValidateTrackedLists(tracked []TrackedList) error {
	seen := map[string]struct{}{}
	for i, list := range tracked {
		key := strings.TrimSpace(list.Key)
		if key == "" {
			return fmt.Errorf("tracked list %d key is required: %w", i, ErrInvalidTrackedList)
		}
		if key == CardCreatedKey {
			return fmt.Errorf("tracked list key %q is reserved: %w", key, ErrInvalidTrackedList)
		}
		if strings.TrimSpace(list.Name) == "" {
			return fmt.Errorf("tracked list %q name is required: %w", key, ErrInvalidTrackedList)
		}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("tracked list key %q is duplicated: %w", key, ErrInvalidTrackedList)
		}
		seen[key] = struct{}{}
	}
	return nil
}
