package domain

import (
	"slices"
	"strings"
	"time"
)

// UnknownList is recorded as the origin of a move whose source list is missing.
const UnknownList = "Unknown"

// CardCreatedKey names the creation timestamp in the serialized journey; tracked keys may not reuse it.
const CardCreatedKey = "cardCreated"

// TrackedList maps one exact destination list name onto a journey key.
type TrackedList struct {
	Key  string
	Name string
}

// MoveMember is the display shape of the member who moved a card.
type MoveMember struct {
	ID       string
	Name     string
	Initials string
	Avatar   string
}

// MoveRecord records one move into a tracked list.
type MoveRecord struct {
	Date   time.Time
	From   string
	To     string
	Member *MoveMember
}

// CardJourney is the chronological record of moves into tracked lists.
type CardJourney struct {
	CardCreated *time.Time
	// Keys preserves tracked-list order for rendering.
	Keys  []string
	Moves map[string][]MoveRecord
}

// ColumnStay describes the time a card spent in a tracked list after one move.
type ColumnStay struct {
	Key     string
	Entry   MoveRecord
	Exited  *time.Time
	Open    bool
	Days    int
	Ordinal int
}

// ComputeCardJourney groups list moves by tracked destination in ascending date order.
// Every tracked key receives a non-nil slice.
func ComputeCardJourney(actions []Action, tracked []TrackedList) CardJourney {
	events, _ := PrepareActions(actions)

	journey := CardJourney{
		Keys:  make([]string, 0, len(tracked)),
		Moves: make(map[string][]MoveRecord, len(tracked)),
	}
	keysByName := map[string][]string{}
	for _, list := range tracked {
		key := strings.TrimSpace(list.Key)
		name := strings.TrimSpace(list.Name)
		if key == "" || name == "" {
			continue
		}
		if _, ok := journey.Moves[key]; !ok {
			journey.Keys = append(journey.Keys, key)
			journey.Moves[key] = []MoveRecord{}
		}
		if !slices.Contains(keysByName[name], key) {
			keysByName[name] = append(keysByName[name], key)
		}
	}

	for _, e := range events {
		if e.Type == ActionTypeCreateCard && journey.CardCreated == nil {
			created := e.At
			journey.CardCreated = &created
			continue
		}
		dest := e.DestinationList()
		if dest == "" {
			continue
		}
		keys := keysByName[dest]
		if len(keys) == 0 {
			continue
		}
		move := MoveRecord{
			Date:   e.At,
			From:   sourceListName(e),
			To:     dest,
			Member: moveMember(e.MemberCreator),
		}
		for _, key := range keys {
			journey.Moves[key] = append(journey.Moves[key], move)
		}
	}
	return journey
}

// MovesFor returns the moves recorded for key, never nil.
func (j CardJourney) MovesFor(key string) []MoveRecord {
	moves := j.Moves[key]
	if moves == nil {
		return []MoveRecord{}
	}
	return moves
}

// NextMoveAfter finds the earliest move across all tracked lists strictly after at.
// This is a linear scan over every recorded move.
func (j CardJourney) NextMoveAfter(at time.Time) (MoveRecord, bool) {
	var (
		next  MoveRecord
		found bool
	)
	for _, key := range j.Keys {
		for _, move := range j.Moves[key] {
			if !move.Date.After(at) {
				continue
			}
			if !found || move.Date.Before(next.Date) {
				next = move
				found = true
			}
		}
	}
	return next, found
}

// DaysInColumn returns the calendar-day ceiling spent in key after its index-th move.
// When no later move exists the stay is measured up to now and reported open.
func (j CardJourney) DaysInColumn(key string, index int, now time.Time) (days int, open bool, ok bool) {
	moves := j.Moves[key]
	if index < 0 || index >= len(moves) {
		return 0, false, false
	}
	entry := moves[index]
	if next, found := j.NextMoveAfter(entry.Date); found {
		return ceilDays(next.Date.Sub(entry.Date)), false, true
	}
	return ceilDays(now.Sub(entry.Date)), true, true
}

// Stays lists every stay across tracked lists ordered by entry date.
func (j CardJourney) Stays(now time.Time) []ColumnStay {
	stays := make([]ColumnStay, 0)
	for _, key := range j.Keys {
		for i, move := range j.Moves[key] {
			stay := ColumnStay{
				Key:     key,
				Entry:   move,
				Ordinal: i,
			}
			if next, found := j.NextMoveAfter(move.Date); found {
				exited := next.Date
				stay.Exited = &exited
				stay.Days = ceilDays(exited.Sub(move.Date))
			} else {
				stay.Open = true
				stay.Days = ceilDays(now.Sub(move.Date))
			}
			stays = append(stays, stay)
		}
	}
	slices.SortStableFunc(stays, func(a, b ColumnStay) int {
		return a.Entry.Date.Compare(b.Entry.Date)
	})
	return stays
}

// ceilDays rounds a gap up to whole days; non-positive gaps count as zero.
func ceilDays(gap time.Duration) int {
	if gap <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	days := int(gap / day)
	if gap%day != 0 {
		days++
	}
	return days
}

// sourceListName returns the listBefore name or the unknown sentinel.
func sourceListName(e Event) string {
	if e.Data.ListBefore == nil {
		return UnknownList
	}
	if name := strings.TrimSpace(e.Data.ListBefore.Name); name != "" {
		return name
	}
	return UnknownList
}

// moveMember maps the acting member into its display shape.
func moveMember(m *Member) *MoveMember {
	if m == nil {
		return nil
	}
	return &MoveMember{
		ID:       m.ID,
		Name:     m.DisplayName(),
		Initials: m.Initials,
		Avatar:   m.Avatar,
	}
}
