package trello

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/cardtrail/internal/domain"
)

// wireAction mirrors one action object returned by the cards/{id}/actions endpoint.
type wireAction struct {
	ID            string      `json:"id"`
	Type          string      `json:"type"`
	Date          string      `json:"date"`
	Data          wireData    `json:"data"`
	MemberCreator *wireMember `json:"memberCreator"`
	Member        *wireMember `json:"member"`
}

// wireData mirrors the type-dependent action payload.
type wireData struct {
	Card       *wireCard                  `json:"card"`
	List       *wireList                  `json:"list"`
	ListBefore *wireList                  `json:"listBefore"`
	ListAfter  *wireList                  `json:"listAfter"`
	Old        map[string]json.RawMessage `json:"old"`
	Text       string                     `json:"text"`
}

type wireCard struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Due         *string `json:"due"`
	DueComplete *bool   `json:"dueComplete"`
}

type wireList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireMember struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	FullName   string `json:"fullName"`
	Initials   string `json:"initials"`
	AvatarURL  string `json:"avatarUrl"`
	AvatarHash string `json:"avatarHash"`
}

// DecodeActions decodes a JSON array of feed actions into domain actions.
// Elements that do not decode as action objects are dropped; only a non-array payload is an error.
func DecodeActions(payload []byte) ([]domain.Action, error) {
	actions, _, err := decodeActionPage(payload)
	return actions, err
}

// decodeActionPage decodes one page and reports the raw element count and the last raw id.
func decodeActionPage(payload []byte) ([]domain.Action, pageInfo, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, pageInfo{}, fmt.Errorf("decode actions: %w", err)
	}
	info := pageInfo{size: len(raw)}
	actions := make([]domain.Action, 0, len(raw))
	for _, element := range raw {
		var wa wireAction
		if err := json.Unmarshal(element, &wa); err != nil {
			continue
		}
		if id := strings.TrimSpace(wa.ID); id != "" {
			info.lastID = id
		}
		actions = append(actions, wa.toDomain())
	}
	return actions, info, nil
}

// pageInfo describes one decoded page for pagination.
type pageInfo struct {
	size   int
	lastID string
}

// toDomain converts one wire action at the ingestion boundary.
func (w wireAction) toDomain() domain.Action {
	return domain.Action{
		ID:            strings.TrimSpace(w.ID),
		Type:          domain.ActionType(strings.TrimSpace(w.Type)),
		Date:          strings.TrimSpace(w.Date),
		Data:          w.Data.toDomain(),
		MemberCreator: w.MemberCreator.toDomain(),
		Member:        w.Member.toDomain(),
	}
}

func (d wireData) toDomain() domain.ActionData {
	out := domain.ActionData{
		List:       d.List.toDomain(),
		ListBefore: d.ListBefore.toDomain(),
		ListAfter:  d.ListAfter.toDomain(),
		Text:       d.Text,
	}
	if d.Card != nil {
		out.Card = domain.CardRef{
			ID:          d.Card.ID,
			Name:        d.Card.Name,
			DueComplete: d.Card.DueComplete,
		}
		if d.Card.Due != nil {
			out.Card.Due = *d.Card.Due
		}
	}
	if len(d.Old) > 0 {
		fields := make([]string, 0, len(d.Old))
		for key := range d.Old {
			fields = append(fields, key)
		}
		slices.Sort(fields)
		out.ChangedFields = fields
	}
	return out
}

func (l *wireList) toDomain() *domain.ListRef {
	if l == nil {
		return nil
	}
	return &domain.ListRef{ID: l.ID, Name: l.Name}
}

func (m *wireMember) toDomain() *domain.Member {
	if m == nil {
		return nil
	}
	return &domain.Member{
		ID:       m.ID,
		Username: m.Username,
		FullName: m.FullName,
		Initials: m.Initials,
		Avatar:   avatarURL(m),
	}
}

// avatarURL prefers the explicit URL and falls back to the hash-based CDN path.
func avatarURL(m *wireMember) string {
	if url := strings.TrimSpace(m.AvatarURL); url != "" {
		return url
	}
	if hash := strings.TrimSpace(m.AvatarHash); hash != "" && strings.TrimSpace(m.ID) != "" {
		return fmt.Sprintf("https://trello-members.s3.amazonaws.com/%s/%s/170.png", m.ID, hash)
	}
	return ""
}
