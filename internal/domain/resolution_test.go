package domain

import (
	"math/rand/v2"
	"reflect"
	"testing"
	"time"
)

// member builds a minimal actor fixture.
func member(id string) *Member {
	return &Member{ID: id, Username: id, FullName: "Member " + id, Initials: "M", Avatar: "https://avatars/" + id}
}

// createAction builds a createCard fixture.
func createAction(id, date string, creator *Member) Action {
	return Action{ID: id, Type: ActionTypeCreateCard, Date: date, MemberCreator: creator}
}

// moveAction builds a list-move updateCard fixture.
func moveAction(id, date string, actor *Member, from, to string) Action {
	data := ActionData{ListAfter: &ListRef{Name: to}}
	if from != "" {
		data.ListBefore = &ListRef{Name: from}
	}
	return Action{ID: id, Type: ActionTypeUpdateCard, Date: date, MemberCreator: actor, Data: data}
}

// minutesValue dereferences one optional metric for assertions.
func minutesValue(t *testing.T, field string, v *int64) int64 {
	t.Helper()
	if v == nil {
		t.Fatalf("%s = nil, want value", field)
	}
	return *v
}

// TestComputeResolutionTimingFirstActionScenario verifies the basic create-then-move timing.
func TestComputeResolutionTimingFirstActionScenario(t *testing.T) {
	actions := []Action{
		createAction("a1", "2024-01-01T00:00:00Z", nil),
		moveAction("a2", "2024-01-01T01:30:00Z", member("m1"), "Backlog", "Doing"),
	}
	timing := ComputeResolutionTiming(actions, ResolutionPolicy{ResolvedLists: []string{"Done"}})
	if got := minutesValue(t, "FirstActionTime", timing.FirstActionTime); got != 90 {
		t.Fatalf("FirstActionTime = %d, want 90", got)
	}
	if timing.ResolutionTime != nil {
		t.Fatalf("ResolutionTime = %d, want nil without a resolving action", *timing.ResolutionTime)
	}
	if timing.TSResolutionTime != nil {
		t.Fatalf("TSResolutionTime = %d, want nil without a TS policy", *timing.TSResolutionTime)
	}
}

// TestComputeResolutionTimingEmptyAndMissingCreate verifies nil outputs without an anchor.
func TestComputeResolutionTimingEmptyAndMissingCreate(t *testing.T) {
	policy := ResolutionPolicy{
		ResolvedLists: []string{"Done"},
		TSStart:       NewTSEngagementPredicate(nil, []string{"TS"}),
	}
	cases := map[string][]Action{
		"nil":   nil,
		"empty": {},
		"no create": {
			moveAction("a1", "2024-01-01T00:00:00Z", member("m1"), "Backlog", "TS"),
			moveAction("a2", "2024-01-01T02:00:00Z", member("m1"), "TS", "Done"),
		},
	}
	for name, actions := range cases {
		t.Run(name, func(t *testing.T) {
			timing := ComputeResolutionTiming(actions, policy)
			if !reflect.DeepEqual(timing, ResolutionTiming{}) {
				t.Fatalf("timing = %#v, want all nil", timing)
			}
		})
	}
}

// TestComputeResolutionTimingTSInvolvement verifies TS start detection and creator filtering.
func TestComputeResolutionTimingTSInvolvement(t *testing.T) {
	creator := member("u1")
	actions := []Action{
		moveAction("a3", "2024-03-01T03:00:00Z", member("ts1"), "TS", "Done"),
		{
			ID:            "a2",
			Type:          ActionTypeAddMemberToCard,
			Date:          "2024-03-01T01:00:00Z",
			MemberCreator: creator,
			Member:        member("ts1"),
		},
		createAction("a1", "2024-03-01T00:00:00Z", creator),
	}
	timing := ComputeResolutionTiming(actions, ResolutionPolicy{
		ResolvedLists: []string{"Done"},
		TSStart:       NewTSEngagementPredicate([]string{"ts1"}, nil),
	})
	if got := minutesValue(t, "ResolutionTime", timing.ResolutionTime); got != 180 {
		t.Fatalf("ResolutionTime = %d, want 180", got)
	}
	if got := minutesValue(t, "TSResolutionTime", timing.TSResolutionTime); got != 120 {
		t.Fatalf("TSResolutionTime = %d, want 120", got)
	}
	if got := minutesValue(t, "FirstActionTime", timing.FirstActionTime); got != 180 {
		t.Fatalf("FirstActionTime = %d, want 180 (creator's own action skipped)", got)
	}
}

// TestComputeResolutionTimingUsesLastResolvingAction verifies reopen-then-resolve histories.
func TestComputeResolutionTimingUsesLastResolvingAction(t *testing.T) {
	actions := []Action{
		createAction("a1", "2024-01-01T00:00:00Z", member("u1")),
		moveAction("a2", "2024-01-01T02:00:00Z", member("u2"), "Doing", "Done"),
		moveAction("a3", "2024-01-01T03:00:00Z", member("u2"), "Done", "Doing"),
		moveAction("a4", "2024-01-01T05:00:00Z", member("u2"), "Doing", "Done"),
	}
	timing := ComputeResolutionTiming(actions, ResolutionPolicy{ResolvedLists: []string{"Done"}})
	if got := minutesValue(t, "ResolutionTime", timing.ResolutionTime); got != 300 {
		t.Fatalf("ResolutionTime = %d, want 300", got)
	}
}

// TestComputeResolutionTimingDueComplete verifies due-complete resolution is policy gated.
func TestComputeResolutionTimingDueComplete(t *testing.T) {
	complete := true
	actions := []Action{
		createAction("a1", "2024-01-01T00:00:00Z", member("u1")),
		{
			ID:            "a2",
			Type:          ActionTypeUpdateCard,
			Date:          "2024-01-01T02:00:00.000Z",
			MemberCreator: member("u2"),
			Data: ActionData{
				Card:          CardRef{ID: "c1", DueComplete: &complete},
				ChangedFields: []string{"dueComplete"},
			},
		},
	}

	timing := ComputeResolutionTiming(actions, ResolutionPolicy{DueComplete: true})
	if got := minutesValue(t, "ResolutionTime", timing.ResolutionTime); got != 120 {
		t.Fatalf("ResolutionTime = %d, want 120", got)
	}

	timing = ComputeResolutionTiming(actions, ResolutionPolicy{DueComplete: false})
	if timing.ResolutionTime != nil {
		t.Fatalf("ResolutionTime = %d, want nil when due-complete resolution is disabled", *timing.ResolutionTime)
	}
}

// TestComputeResolutionTimingNeverNegative verifies skewed anchors clamp to zero.
func TestComputeResolutionTimingNeverNegative(t *testing.T) {
	resolvedAt := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	actions := []Action{
		createAction("a1", "2024-01-01T00:00:00Z", member("u1")),
		moveAction("a2", "2024-01-02T00:00:00Z", member("ts"), "Backlog", "TS"),
	}
	timing := ComputeResolutionTiming(actions, ResolutionPolicy{
		ResolvedAt: &resolvedAt,
		TSStart:    NewTSEngagementPredicate(nil, []string{"TS"}),
	})
	for name, v := range map[string]*int64{
		"ResolutionTime":   timing.ResolutionTime,
		"TSResolutionTime": timing.TSResolutionTime,
		"FirstActionTime":  timing.FirstActionTime,
	} {
		if got := minutesValue(t, name, v); got < 0 {
			t.Fatalf("%s = %d, want non-negative", name, got)
		}
	}
	if *timing.ResolutionTime != 0 || *timing.TSResolutionTime != 0 {
		t.Fatalf("expected clamped zero metrics, got resolution=%d ts=%d", *timing.ResolutionTime, *timing.TSResolutionTime)
	}
}

// TestComputeResolutionTimingFloorsMinutes verifies partial minutes are rounded down.
func TestComputeResolutionTimingFloorsMinutes(t *testing.T) {
	actions := []Action{
		createAction("a1", "2024-01-01T00:00:00Z", nil),
		moveAction("a2", "2024-01-01T00:01:59Z", member("m1"), "Backlog", "Done"),
	}
	timing := ComputeResolutionTiming(actions, ResolutionPolicy{ResolvedLists: []string{"Done"}})
	if got := minutesValue(t, "ResolutionTime", timing.ResolutionTime); got != 1 {
		t.Fatalf("ResolutionTime = %d, want 1", got)
	}
}

// TestComputeResolutionTimingSkipsMalformedDates verifies malformed dates act as removed actions.
func TestComputeResolutionTimingSkipsMalformedDates(t *testing.T) {
	valid := []Action{
		createAction("a1", "2024-01-01T00:00:00Z", member("u1")),
		moveAction("a3", "2024-01-01T04:00:00Z", member("u2"), "Doing", "Done"),
	}
	withBad := append([]Action{
		moveAction("a2", "not-a-date", member("u3"), "Backlog", "Doing"),
	}, valid...)

	policy := ResolutionPolicy{ResolvedLists: []string{"Done"}}
	got := ComputeResolutionTiming(withBad, policy)
	want := ComputeResolutionTiming(valid, policy)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("timing with malformed date = %#v, want %#v", got, want)
	}
}

// TestComputeResolutionTimingOrderIndependent verifies shuffled input yields identical output.
func TestComputeResolutionTimingOrderIndependent(t *testing.T) {
	actions := []Action{
		createAction("a1", "2024-01-01T00:00:00Z", member("u1")),
		{ID: "a2", Type: ActionTypeCommentCard, Date: "2024-01-01T00:10:00Z", MemberCreator: member("u2")},
		moveAction("a3", "2024-01-01T00:10:00Z", member("u3"), "Backlog", "TS"),
		moveAction("a4", "2024-01-01T06:00:00Z", member("u3"), "TS", "Done"),
		moveAction("a5", "2024-01-01T07:00:00Z", member("u3"), "Done", "Done"),
	}
	policy := ResolutionPolicy{
		ResolvedLists: []string{"Done"},
		TSStart:       NewTSEngagementPredicate(nil, []string{"TS"}),
	}
	want := ComputeResolutionTiming(actions, policy)
	if again := ComputeResolutionTiming(actions, policy); !reflect.DeepEqual(again, want) {
		t.Fatalf("second call = %#v, want %#v", again, want)
	}

	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 20; i++ {
		shuffled := append([]Action(nil), actions...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := ComputeResolutionTiming(shuffled, policy); !reflect.DeepEqual(got, want) {
			t.Fatalf("shuffle %d timing = %#v, want %#v", i, got, want)
		}
	}
}

// TestNewTSEngagementPredicate verifies member and list matching.
func TestNewTSEngagementPredicate(t *testing.T) {
	if NewTSEngagementPredicate(nil, []string{" "}) != nil {
		t.Fatal("expected nil predicate for empty rules")
	}
	match := NewTSEngagementPredicate([]string{"ts1"}, []string{"Tech Support"})

	cases := []struct {
		name string
		in   Action
		want bool
	}{
		{
			name: "ts member added",
			in:   Action{Type: ActionTypeAddMemberToCard, Member: member("ts1")},
			want: true,
		},
		{
			name: "other member added",
			in:   Action{Type: ActionTypeAddMemberToCard, Member: member("x")},
			want: false,
		},
		{
			name: "ts member removed",
			in:   Action{Type: ActionTypeRemoveMemberFromCard, Member: member("ts1")},
			want: false,
		},
		{
			name: "move into ts list",
			in:   moveAction("a", "", nil, "Backlog", "Tech Support"),
			want: true,
		},
		{
			name: "move elsewhere",
			in:   moveAction("a", "", nil, "Backlog", "Doing"),
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := match(Event{Action: tc.in, Kind: Classify(tc.in)})
			if got != tc.want {
				t.Fatalf("match = %t, want %t", got, tc.want)
			}
		})
	}
}
