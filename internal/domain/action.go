package domain

import (
	"slices"
	"strings"
	"time"
)

// ActionType identifies the kind of change a card action records.
type ActionType string

// ActionType values requested from the action feed.
const (
	ActionTypeCreateCard               ActionType = "createCard"
	ActionTypeUpdateCard               ActionType = "updateCard"
	ActionTypeAddMemberToCard          ActionType = "addMemberToCard"
	ActionTypeRemoveMemberFromCard     ActionType = "removeMemberFromCard"
	ActionTypeCommentCard              ActionType = "commentCard"
	ActionTypeAddAttachmentToCard      ActionType = "addAttachmentToCard"
	ActionTypeDeleteAttachmentFromCard ActionType = "deleteAttachmentFromCard"
	ActionTypeAddChecklistToCard       ActionType = "addChecklistToCard"
)

// trackedActionTypes stores the action types fetched for analysis, in feed filter order.
var trackedActionTypes = []ActionType{
	ActionTypeCreateCard,
	ActionTypeUpdateCard,
	ActionTypeAddMemberToCard,
	ActionTypeRemoveMemberFromCard,
	ActionTypeCommentCard,
	ActionTypeAddAttachmentToCard,
	ActionTypeDeleteAttachmentFromCard,
	ActionTypeAddChecklistToCard,
}

// TrackedActionTypes returns the action types requested from the action feed.
func TrackedActionTypes() []ActionType {
	return append([]ActionType(nil), trackedActionTypes...)
}

// IsKnown reports whether the type belongs to the fetched vocabulary.
func (t ActionType) IsKnown() bool {
	return slices.Contains(trackedActionTypes, t)
}

// Member identifies the actor or subject of an action.
type Member struct {
	ID       string
	Username string
	FullName string
	Initials string
	Avatar   string
}

// DisplayName prefers the full name and falls back to the username.
func (m Member) DisplayName() string {
	if name := strings.TrimSpace(m.FullName); name != "" {
		return name
	}
	return strings.TrimSpace(m.Username)
}

// ListRef references one board list (column).
type ListRef struct {
	ID   string
	Name string
}

// CardRef carries the card fields an action reports after the change.
type CardRef struct {
	ID          string
	Name        string
	Due         string
	DueComplete *bool
}

// ActionData holds the type-dependent action payload.
type ActionData struct {
	Card       CardRef
	List       *ListRef
	ListBefore *ListRef
	ListAfter  *ListRef
	// ChangedFields lists the keys present in the feed's "old" object.
	ChangedFields []string
	Text          string
}

// changed reports whether the payload recorded a previous value for field.
func (d ActionData) changed(field string) bool {
	return slices.Contains(d.ChangedFields, field)
}

// Action is one immutable event from a card's history.
type Action struct {
	ID            string
	Type          ActionType
	Date          string
	Data          ActionData
	MemberCreator *Member
	Member        *Member
}

// UpdateKind classifies what an updateCard action changed.
type UpdateKind string

// UpdateKind values. Non-update actions classify as UpdateKindNone.
const (
	UpdateKindNone              UpdateKind = ""
	UpdateKindListMove          UpdateKind = "list_move"
	UpdateKindDueDateChange     UpdateKind = "due_date_change"
	UpdateKindDueCompleteChange UpdateKind = "due_complete_change"
	UpdateKindDescriptionChange UpdateKind = "description_change"
	UpdateKindOther             UpdateKind = "other"
)

// Classify assigns the update variant for one action.
func Classify(action Action) UpdateKind {
	if action.Type != ActionTypeUpdateCard {
		return UpdateKindNone
	}
	switch {
	case action.Data.ListAfter != nil && strings.TrimSpace(action.Data.ListAfter.Name) != "":
		return UpdateKindListMove
	case action.Data.changed("dueComplete"):
		return UpdateKindDueCompleteChange
	case action.Data.changed("due"):
		return UpdateKindDueDateChange
	case action.Data.changed("desc"):
		return UpdateKindDescriptionChange
	default:
		return UpdateKindOther
	}
}

// Event is an action with a parsed timestamp and its update classification.
type Event struct {
	Action
	At   time.Time
	Kind UpdateKind
}

// CreatorID returns the acting member id, or empty when unknown.
func (e Event) CreatorID() string {
	if e.MemberCreator == nil {
		return ""
	}
	return strings.TrimSpace(e.MemberCreator.ID)
}

// DestinationList returns the listAfter name for list moves.
func (e Event) DestinationList() string {
	if e.Kind != UpdateKindListMove {
		return ""
	}
	return strings.TrimSpace(e.Data.ListAfter.Name)
}

// ParseActionDate parses feed timestamps, with or without fractional seconds.
func ParseActionDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

// PrepareActions parses, classifies, and sorts actions ascending by time.
// Actions with unparseable dates are dropped and counted in skipped.
func PrepareActions(actions []Action) (events []Event, skipped int) {
	events = make([]Event, 0, len(actions))
	for _, action := range actions {
		at, ok := ParseActionDate(action.Date)
		if !ok {
			skipped++
			continue
		}
		events = append(events, Event{
			Action: action,
			At:     at,
			Kind:   Classify(action),
		})
	}
	slices.SortStableFunc(events, compareEvents)
	return events, skipped
}

// compareEvents orders events by time with a tie-break that ignores input order.
func compareEvents(a, b Event) int {
	if c := a.At.Compare(b.At); c != 0 {
		return c
	}
	aCreate := a.Type == ActionTypeCreateCard
	bCreate := b.Type == ActionTypeCreateCard
	switch {
	case aCreate && !bCreate:
		return -1
	case bCreate && !aCreate:
		return 1
	}
	if c := strings.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.Type), string(b.Type)); c != 0 {
		return c
	}
	if c := strings.Compare(a.DestinationList(), b.DestinationList()); c != 0 {
		return c
	}
	if c := strings.Compare(listName(a.Data.ListBefore), listName(b.Data.ListBefore)); c != 0 {
		return c
	}
	if c := strings.Compare(a.CreatorID(), b.CreatorID()); c != 0 {
		return c
	}
	return strings.Compare(canonicalKey(a), canonicalKey(b))
}

// listName returns the trimmed list name, or empty for a nil ref.
func listName(l *ListRef) string {
	if l == nil {
		return ""
	}
	return strings.TrimSpace(l.Name)
}

// canonicalKey flattens every remaining action field into one comparable string.
// Actions with equal keys are indistinguishable to every analysis.
func canonicalKey(e Event) string {
	var b strings.Builder
	field := func(v string) {
		b.WriteString(v)
		b.WriteByte(0)
	}
	listRef := func(l *ListRef) {
		if l == nil {
			field("-")
			return
		}
		field(l.ID)
		field(l.Name)
	}
	member := func(m *Member) {
		if m == nil {
			field("-")
			return
		}
		field(m.ID)
		field(m.Username)
		field(m.FullName)
		field(m.Initials)
		field(m.Avatar)
	}

	field(e.Date)
	field(e.Data.Card.ID)
	field(e.Data.Card.Name)
	field(e.Data.Card.Due)
	switch {
	case e.Data.Card.DueComplete == nil:
		field("-")
	case *e.Data.Card.DueComplete:
		field("true")
	default:
		field("false")
	}
	listRef(e.Data.List)
	listRef(e.Data.ListBefore)
	listRef(e.Data.ListAfter)
	changed := slices.Clone(e.Data.ChangedFields)
	slices.Sort(changed)
	field(strings.Join(changed, ","))
	field(e.Data.Text)
	member(e.MemberCreator)
	member(e.Member)
	return b.String()
}
