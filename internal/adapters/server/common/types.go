// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hylla/cardtrail/internal/domain"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrUpstreamUnavailable reports a failed or throttled action source.
var ErrUpstreamUnavailable = errors.New("action source unavailable")

// ErrUpstreamUnauthorized reports rejected action-source credentials.
var ErrUpstreamUnauthorized = errors.New("action source unauthorized")

// AnalyzeCardRequest captures one fetch-and-persist analysis request.
type AnalyzeCardRequest struct {
	CardID     string     `json:"card_id"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// AnalyzeCardsRequest captures one batch analysis request.
type AnalyzeCardsRequest struct {
	CardIDs []string `json:"card_ids"`
}

// AnalyzeActionsRequest captures one inline analysis over a raw Trello action array.
type AnalyzeActionsRequest struct {
	CardID     string
	Actions    json.RawMessage
	ResolvedAt *time.Time
}

// TimingView is the serialized resolution timing in minutes.
type TimingView struct {
	ResolutionTime   *int64 `json:"resolutionTime"`
	TSResolutionTime *int64 `json:"TSResolutionTime"`
	FirstActionTime  *int64 `json:"firstActionTime"`
}

// MemberView is the serialized actor of one move.
type MemberView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Initials string `json:"initials"`
	Avatar   string `json:"avatar"`
}

// MoveView is one serialized list move.
type MoveView struct {
	Date   time.Time   `json:"date"`
	From   string      `json:"from"`
	To     string      `json:"to"`
	Member *MemberView `json:"member"`
}

// JourneyView serializes as `{cardCreated, <trackedKey>: [...]}` in tracked-list order.
type JourneyView struct {
	CardCreated *time.Time
	Keys        []string
	Moves       map[string][]MoveView
}

// MarshalJSON writes cardCreated first and then one array per tracked key.
func (j JourneyView) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	created, err := json.Marshal(j.CardCreated)
	if err != nil {
		return nil, fmt.Errorf("encode cardCreated: %w", err)
	}
	buf.WriteString(`"` + domain.CardCreatedKey + `":`)
	buf.Write(created)
	for _, key := range j.Keys {
		moves := j.Moves[key]
		if moves == nil {
			moves = []MoveView{}
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, fmt.Errorf("encode journey key: %w", err)
		}
		encodedMoves, err := json.Marshal(moves)
		if err != nil {
			return nil, fmt.Errorf("encode %s moves: %w", key, err)
		}
		buf.WriteByte(',')
		buf.Write(encodedKey)
		buf.WriteByte(':')
		buf.Write(encodedMoves)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// StayView is one serialized column stay.
type StayView struct {
	Key    string     `json:"key"`
	List   string     `json:"list"`
	Entry  time.Time  `json:"entry"`
	Exited *time.Time `json:"exited"`
	Open   bool       `json:"open"`
	Days   int        `json:"days"`
}

// CardAnalysisView is the analysis bundle returned to HTTP, MCP and CLI callers.
type CardAnalysisView struct {
	ID               string      `json:"id"`
	CardID           string      `json:"cardId"`
	ResolutionTiming TimingView  `json:"resolutionTiming"`
	CardJourney      JourneyView `json:"cardJourney"`
	Stays            []StayView  `json:"stays"`
	ActionCount      int         `json:"actionCount"`
	SkippedActions   int         `json:"skippedActions"`
	AnalyzedAt       time.Time   `json:"analyzedAt"`
}

// AnalysisRunView is one serialized history entry.
type AnalysisRunView struct {
	ID               string     `json:"id"`
	CardID           string     `json:"cardId"`
	ResolutionTiming TimingView `json:"resolutionTiming"`
	ActionCount      int        `json:"actionCount"`
	SkippedActions   int        `json:"skippedActions"`
	AnalyzedAt       time.Time  `json:"analyzedAt"`
}

// AnalysisService captures the analysis operations exposed by transport adapters.
type AnalysisService interface {
	AnalyzeCard(context.Context, AnalyzeCardRequest) (CardAnalysisView, error)
	AnalyzeCards(context.Context, AnalyzeCardsRequest) ([]CardAnalysisView, error)
	AnalyzeActions(context.Context, AnalyzeActionsRequest) (CardAnalysisView, error)
	GetCardAnalysis(context.Context, string) (CardAnalysisView, error)
	ListCardAnalyses(context.Context, int) ([]CardAnalysisView, error)
	ListAnalysisRuns(context.Context, string, int) ([]AnalysisRunView, error)
}

// NewTimingView maps domain timing onto its serialized form.
func NewTimingView(t domain.ResolutionTiming) TimingView {
	return TimingView{
		ResolutionTime:   t.ResolutionTime,
		TSResolutionTime: t.TSResolutionTime,
		FirstActionTime:  t.FirstActionTime,
	}
}

// NewJourneyView maps a domain journey onto its serialized form.
func NewJourneyView(j domain.CardJourney) JourneyView {
	out := JourneyView{
		CardCreated: j.CardCreated,
		Keys:        append([]string(nil), j.Keys...),
		Moves:       make(map[string][]MoveView, len(j.Keys)),
	}
	for _, key := range j.Keys {
		moves := j.Moves[key]
		views := make([]MoveView, 0, len(moves))
		for _, move := range moves {
			views = append(views, newMoveView(move))
		}
		out.Moves[key] = views
	}
	return out
}

// NewCardAnalysisView maps one analysis; open stays are measured to now.
func NewCardAnalysisView(a domain.CardAnalysis, now time.Time) CardAnalysisView {
	stays := a.Journey.Stays(now)
	stayViews := make([]StayView, 0, len(stays))
	for _, stay := range stays {
		stayViews = append(stayViews, StayView{
			Key:    stay.Key,
			List:   stay.Entry.To,
			Entry:  stay.Entry.Date,
			Exited: stay.Exited,
			Open:   stay.Open,
			Days:   stay.Days,
		})
	}
	return CardAnalysisView{
		ID:               a.ID,
		CardID:           a.CardID,
		ResolutionTiming: NewTimingView(a.Timing),
		CardJourney:      NewJourneyView(a.Journey),
		Stays:            stayViews,
		ActionCount:      a.ActionCount,
		SkippedActions:   a.SkippedActions,
		AnalyzedAt:       a.AnalyzedAt,
	}
}

// NewAnalysisRunView maps one history entry.
func NewAnalysisRunView(r domain.AnalysisRun) AnalysisRunView {
	return AnalysisRunView{
		ID:               r.ID,
		CardID:           r.CardID,
		ResolutionTiming: NewTimingView(r.Timing),
		ActionCount:      r.ActionCount,
		SkippedActions:   r.SkippedActions,
		AnalyzedAt:       r.AnalyzedAt,
	}
}

// newMoveView maps one move record.
func newMoveView(m domain.MoveRecord) MoveView {
	out := MoveView{
		Date: m.Date,
		From: m.From,
		To:   m.To,
	}
	if m.Member != nil {
		out.Member = &MemberView{
			ID:       m.Member.ID,
			Name:     m.Member.Name,
			Initials: m.Member.Initials,
			Avatar:   m.Member.Avatar,
		}
	}
	return out
}
