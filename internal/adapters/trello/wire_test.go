package trello

import (
	"reflect"
	"testing"

	"github.com/hylla/cardtrail/internal/domain"
)

// TestDecodeActionsChangedFields verifies old-key presence survives decoding, including null values.
func TestDecodeActionsChangedFields(t *testing.T) {
	actions, err := DecodeActions([]byte(`[
		{"id":"a1","type":"updateCard","date":"2024-01-01T00:00:00Z",
		 "data":{"card":{"id":"c1","due":"2024-02-01T00:00:00Z","dueComplete":true},"old":{"dueComplete":false,"due":null}}},
		{"id":"a2","type":"updateCard","date":"2024-01-01T00:00:00Z","data":{"old":{"desc":""}}}
	]`))
	if err != nil {
		t.Fatalf("DecodeActions() error = %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("len(actions) = %d, want 2", len(actions))
	}
	if !reflect.DeepEqual(actions[0].Data.ChangedFields, []string{"due", "dueComplete"}) {
		t.Fatalf("ChangedFields = %#v", actions[0].Data.ChangedFields)
	}
	if got := domain.Classify(actions[0]); got != domain.UpdateKindDueCompleteChange {
		t.Fatalf("Classify(a1) = %q", got)
	}
	if actions[0].Data.Card.DueComplete == nil || !*actions[0].Data.Card.DueComplete {
		t.Fatalf("DueComplete = %v, want true", actions[0].Data.Card.DueComplete)
	}
	if actions[0].Data.Card.Due != "2024-02-01T00:00:00Z" {
		t.Fatalf("Due = %q", actions[0].Data.Card.Due)
	}
	if got := domain.Classify(actions[1]); got != domain.UpdateKindDescriptionChange {
		t.Fatalf("Classify(a2) = %q", got)
	}
}

// TestDecodeActionsDropsMalformedElements verifies lenient element decoding.
func TestDecodeActionsDropsMalformedElements(t *testing.T) {
	actions, err := DecodeActions([]byte(`["oops", {"id":"a1","type":"createCard","date":"2024-01-01T00:00:00Z"}, 7]`))
	if err != nil {
		t.Fatalf("DecodeActions() error = %v", err)
	}
	if len(actions) != 1 || actions[0].ID != "a1" {
		t.Fatalf("actions = %#v, want only a1", actions)
	}
	if _, err := DecodeActions([]byte(`{"id":"a1"}`)); err == nil {
		t.Fatal("expected error for non-array payload")
	}
}

// TestDecodeActionsAvatarFallback verifies hash-based avatar URLs.
func TestDecodeActionsAvatarFallback(t *testing.T) {
	actions, err := DecodeActions([]byte(`[{"id":"a1","type":"commentCard","date":"2024-01-01T00:00:00Z",
		"memberCreator":{"id":"m1","username":"mona","avatarHash":"abc"}}]`))
	if err != nil {
		t.Fatalf("DecodeActions() error = %v", err)
	}
	want := "https://trello-members.s3.amazonaws.com/m1/abc/170.png"
	if got := actions[0].MemberCreator.Avatar; got != want {
		t.Fatalf("Avatar = %q, want %q", got, want)
	}
	if actions[0].Member != nil {
		t.Fatalf("Member = %#v, want nil", actions[0].Member)
	}
}
