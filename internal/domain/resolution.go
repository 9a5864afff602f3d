package domain

import (
	"slices"
	"strings"
	"time"
)

// ResolutionTiming holds elapsed-minute metrics for one card.
// Each field is nil when it cannot be derived from the action history.
type ResolutionTiming struct {
	ResolutionTime   *int64
	TSResolutionTime *int64
	FirstActionTime  *int64
}

// EventPredicate selects events from a prepared action stream.
type EventPredicate func(Event) bool

// ResolutionPolicy configures how resolution and TS involvement are detected.
type ResolutionPolicy struct {
	// ResolvedAt overrides stream-derived resolution when set.
	ResolvedAt *time.Time
	// ResolvedLists names the terminal lists; a move into one marks resolution.
	ResolvedLists []string
	// DueComplete treats marking the due date complete as resolution.
	DueComplete bool
	// TSStart marks the first event of technical-support involvement.
	TSStart EventPredicate
}

// NewTSEngagementPredicate matches TS members being added to the card or moves into TS lists.
func NewTSEngagementPredicate(memberIDs, listNames []string) EventPredicate {
	members := normalizeNames(memberIDs)
	lists := normalizeNames(listNames)
	if len(members) == 0 && len(lists) == 0 {
		return nil
	}
	return func(e Event) bool {
		if e.Type == ActionTypeAddMemberToCard && e.Member != nil {
			if slices.Contains(members, strings.TrimSpace(e.Member.ID)) {
				return true
			}
		}
		if dest := e.DestinationList(); dest != "" {
			return slices.Contains(lists, dest)
		}
		return false
	}
}

// ComputeResolutionTiming derives timing metrics from an unordered action history.
func ComputeResolutionTiming(actions []Action, policy ResolutionPolicy) ResolutionTiming {
	events, _ := PrepareActions(actions)

	createdIdx := firstEventIndex(events, func(e Event) bool {
		return e.Type == ActionTypeCreateCard
	})
	if createdIdx < 0 {
		return ResolutionTiming{}
	}
	created := events[createdIdx]

	var timing ResolutionTiming
	if first, ok := firstForeignAction(events[createdIdx+1:], created.CreatorID()); ok {
		timing.FirstActionTime = elapsedMinutes(created.At, first.At)
	}

	resolvedAt, ok := resolutionAnchor(events, policy)
	if !ok {
		return timing
	}
	timing.ResolutionTime = elapsedMinutes(created.At, resolvedAt)

	if policy.TSStart != nil {
		if tsIdx := firstEventIndex(events, policy.TSStart); tsIdx >= 0 {
			timing.TSResolutionTime = elapsedMinutes(events[tsIdx].At, resolvedAt)
		}
	}
	return timing
}

// firstForeignAction finds the first action not performed by the card creator.
// Events with an unknown actor, or a card with an unknown creator, qualify.
func firstForeignAction(events []Event, creatorID string) (Event, bool) {
	for _, e := range events {
		if e.Type == ActionTypeCreateCard {
			continue
		}
		actorID := e.CreatorID()
		if creatorID == "" || actorID == "" || actorID != creatorID {
			return e, true
		}
	}
	return Event{}, false
}

// resolutionAnchor returns the explicit anchor or the last resolving event time.
func resolutionAnchor(events []Event, policy ResolutionPolicy) (time.Time, bool) {
	if policy.ResolvedAt != nil {
		return policy.ResolvedAt.UTC(), true
	}
	resolved := normalizeNames(policy.ResolvedLists)
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		switch e.Kind {
		case UpdateKindListMove:
			if slices.Contains(resolved, e.DestinationList()) {
				return e.At, true
			}
		case UpdateKindDueCompleteChange:
			if policy.DueComplete && e.Data.Card.DueComplete != nil && *e.Data.Card.DueComplete {
				return e.At, true
			}
		}
	}
	return time.Time{}, false
}

// firstEventIndex returns the index of the first matching event or -1.
func firstEventIndex(events []Event, match EventPredicate) int {
	for i, e := range events {
		if match(e) {
			return i
		}
	}
	return -1
}

// elapsedMinutes floors the gap to whole minutes and clamps negatives to zero.
func elapsedMinutes(from, to time.Time) *int64 {
	minutes := int64(to.Sub(from) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	return &minutes
}

// normalizeNames trims values and drops blanks.
func normalizeNames(values []string) []string {
	out := make([]string, 0, len(values))
	for _, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out
}
