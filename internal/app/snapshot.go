package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hylla/cardtrail/internal/domain"
	"gopkg.in/yaml.v3"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "cardtrail.snapshot.v1"

// snapshotExportLimit bounds how many stored analyses one export reads.
const snapshotExportLimit = 100000

// Snapshot is a portable export of stored card analyses.
type Snapshot struct {
	Version    string             `json:"version" yaml:"version"`
	ExportedAt time.Time          `json:"exported_at" yaml:"exported_at"`
	Analyses   []SnapshotAnalysis `json:"analyses" yaml:"analyses"`
}

// SnapshotAnalysis represents one stored analysis inside a snapshot.
type SnapshotAnalysis struct {
	ID                  string                    `json:"id" yaml:"id"`
	CardID              string                    `json:"card_id" yaml:"card_id"`
	ResolutionMinutes   *int64                    `json:"resolution_minutes" yaml:"resolution_minutes"`
	TSResolutionMinutes *int64                    `json:"ts_resolution_minutes" yaml:"ts_resolution_minutes"`
	FirstActionMinutes  *int64                    `json:"first_action_minutes" yaml:"first_action_minutes"`
	CardCreated         *time.Time                `json:"card_created,omitempty" yaml:"card_created,omitempty"`
	TrackedKeys         []string                  `json:"tracked_keys" yaml:"tracked_keys"`
	Moves               map[string][]SnapshotMove `json:"moves" yaml:"moves"`
	ActionCount         int                       `json:"action_count" yaml:"action_count"`
	SkippedActions      int                       `json:"skipped_actions" yaml:"skipped_actions"`
	AnalyzedAt          time.Time                 `json:"analyzed_at" yaml:"analyzed_at"`
}

// SnapshotMove represents one journey move inside a snapshot.
type SnapshotMove struct {
	Date   time.Time       `json:"date" yaml:"date"`
	From   string          `json:"from" yaml:"from"`
	To     string          `json:"to" yaml:"to"`
	Member *SnapshotMember `json:"member,omitempty" yaml:"member,omitempty"`
}

// SnapshotMember represents the member who moved a card.
type SnapshotMember struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Initials string `json:"initials,omitempty" yaml:"initials,omitempty"`
	Avatar   string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// SnapshotFormat names one snapshot encoding.
type SnapshotFormat string

// SnapshotFormatJSON and SnapshotFormatYAML are the supported snapshot encodings.
const (
	SnapshotFormatJSON SnapshotFormat = "json"
	SnapshotFormatYAML SnapshotFormat = "yaml"
)

// ParseSnapshotFormat normalizes a format name.
func ParseSnapshotFormat(raw string) (SnapshotFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return SnapshotFormatJSON, nil
	case "yaml", "yml":
		return SnapshotFormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported snapshot format %q: want json or yaml", raw)
	}
}

// SnapshotFormatForPath picks YAML for .yaml/.yml files and JSON otherwise.
func SnapshotFormatForPath(path string) SnapshotFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return SnapshotFormatYAML
	default:
		return SnapshotFormatJSON
	}
}

// EncodeSnapshot serializes a snapshot in the requested format.
func EncodeSnapshot(snap Snapshot, format SnapshotFormat) ([]byte, error) {
	switch format {
	case SnapshotFormatYAML:
		encoded, err := yaml.Marshal(&snap)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot yaml: %w", err)
		}
		return encoded, nil
	default:
		encoded, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode snapshot json: %w", err)
		}
		return append(encoded, '\n'), nil
	}
}

// DecodeSnapshot parses a snapshot in the requested format.
func DecodeSnapshot(data []byte, format SnapshotFormat) (Snapshot, error) {
	var snap Snapshot
	switch format {
	case SnapshotFormatYAML:
		if err := yaml.Unmarshal(data, &snap); err != nil {
			return Snapshot{}, errors.Join(ErrInvalidSnapshot, fmt.Errorf("decode snapshot yaml: %w", err))
		}
	default:
		if err := json.Unmarshal(data, &snap); err != nil {
			return Snapshot{}, errors.Join(ErrInvalidSnapshot, fmt.Errorf("decode snapshot json: %w", err))
		}
	}
	return snap, nil
}

// ImportResult reports how many snapshot analyses were written or skipped.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ExportSnapshot reads every stored analysis into a snapshot ordered by card id.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	analyses, err := s.repo.ListCardAnalyses(ctx, snapshotExportLimit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("export snapshot: %w", err)
	}
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Analyses:   make([]SnapshotAnalysis, 0, len(analyses)),
	}
	for _, analysis := range analyses {
		snap.Analyses = append(snap.Analyses, snapshotAnalysisFromDomain(analysis))
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot stores snapshot analyses, keeping any stored analysis that is newer.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) (ImportResult, error) {
	if err := snap.Validate(); err != nil {
		return ImportResult{}, errors.Join(ErrInvalidSnapshot, err)
	}
	snap.sort()

	var result ImportResult
	for _, item := range snap.Analyses {
		analysis := item.toDomain()
		existing, err := s.repo.GetCardAnalysis(ctx, analysis.CardID)
		switch {
		case err == nil:
			if existing.AnalyzedAt.After(analysis.AnalyzedAt) {
				result.Skipped++
				continue
			}
		case !errors.Is(err, ErrNotFound):
			return result, fmt.Errorf("import card %q: %w", analysis.CardID, err)
		}
		if err := s.repo.UpsertCardAnalysis(ctx, analysis); err != nil {
			return result, fmt.Errorf("import card %q: %w", analysis.CardID, err)
		}
		result.Imported++
	}
	return result, nil
}

// Validate checks snapshot shape before import.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}

	cardIDs := map[string]struct{}{}
	for i, a := range s.Analyses {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("analyses[%d].id is required", i)
		}
		cardID := strings.TrimSpace(a.CardID)
		if cardID == "" {
			return fmt.Errorf("analyses[%d].card_id is required", i)
		}
		if a.AnalyzedAt.IsZero() {
			return fmt.Errorf("analyses[%d].analyzed_at is required", i)
		}
		if a.ActionCount < 0 || a.SkippedActions < 0 {
			return fmt.Errorf("analyses[%d] action counts must be >= 0", i)
		}
		if _, exists := cardIDs[cardID]; exists {
			return fmt.Errorf("duplicate card id: %q", cardID)
		}
		cardIDs[cardID] = struct{}{}

		keys := map[string]struct{}{}
		for _, key := range a.TrackedKeys {
			key = strings.TrimSpace(key)
			if key == "" || key == domain.CardCreatedKey {
				return fmt.Errorf("analyses[%d] tracked key %q is invalid", i, key)
			}
			keys[key] = struct{}{}
		}
		for key := range a.Moves {
			if _, ok := keys[key]; !ok {
				return fmt.Errorf("analyses[%d] moves reference unknown key %q", i, key)
			}
		}
	}
	return nil
}

// sort orders analyses by card id for stable output.
func (s *Snapshot) sort() {
	sort.Slice(s.Analyses, func(i, j int) bool {
		return s.Analyses[i].CardID < s.Analyses[j].CardID
	})
}

// snapshotAnalysisFromDomain converts a stored analysis into its snapshot form.
func snapshotAnalysisFromDomain(a domain.CardAnalysis) SnapshotAnalysis {
	out := SnapshotAnalysis{
		ID:                  a.ID,
		CardID:              a.CardID,
		ResolutionMinutes:   copyMinutes(a.Timing.ResolutionTime),
		TSResolutionMinutes: copyMinutes(a.Timing.TSResolutionTime),
		FirstActionMinutes:  copyMinutes(a.Timing.FirstActionTime),
		CardCreated:         copyTimePtr(a.Journey.CardCreated),
		TrackedKeys:         append([]string{}, a.Journey.Keys...),
		Moves:               make(map[string][]SnapshotMove, len(a.Journey.Keys)),
		ActionCount:         a.ActionCount,
		SkippedActions:      a.SkippedActions,
		AnalyzedAt:          a.AnalyzedAt.UTC(),
	}
	for _, key := range a.Journey.Keys {
		moves := make([]SnapshotMove, 0, len(a.Journey.Moves[key]))
		for _, move := range a.Journey.Moves[key] {
			sm := SnapshotMove{Date: move.Date.UTC(), From: move.From, To: move.To}
			if move.Member != nil {
				sm.Member = &SnapshotMember{
					ID:       move.Member.ID,
					Name:     move.Member.Name,
					Initials: move.Member.Initials,
					Avatar:   move.Member.Avatar,
				}
			}
			moves = append(moves, sm)
		}
		out.Moves[key] = moves
	}
	return out
}

// toDomain converts a snapshot analysis back into a domain analysis.
func (a SnapshotAnalysis) toDomain() domain.CardAnalysis {
	keys := make([]string, 0, len(a.TrackedKeys))
	moves := make(map[string][]domain.MoveRecord, len(a.TrackedKeys))
	for _, key := range a.TrackedKeys {
		key = strings.TrimSpace(key)
		keys = append(keys, key)
		records := make([]domain.MoveRecord, 0, len(a.Moves[key]))
		for _, move := range a.Moves[key] {
			record := domain.MoveRecord{Date: move.Date.UTC(), From: move.From, To: move.To}
			if move.Member != nil {
				record.Member = &domain.MoveMember{
					ID:       move.Member.ID,
					Name:     move.Member.Name,
					Initials: move.Member.Initials,
					Avatar:   move.Member.Avatar,
				}
			}
			records = append(records, record)
		}
		moves[key] = records
	}
	return domain.CardAnalysis{
		ID:     strings.TrimSpace(a.ID),
		CardID: strings.TrimSpace(a.CardID),
		Timing: domain.ResolutionTiming{
			ResolutionTime:   copyMinutes(a.ResolutionMinutes),
			TSResolutionTime: copyMinutes(a.TSResolutionMinutes),
			FirstActionTime:  copyMinutes(a.FirstActionMinutes),
		},
		Journey: domain.CardJourney{
			CardCreated: copyTimePtr(a.CardCreated),
			Keys:        keys,
			Moves:       moves,
		},
		ActionCount:    a.ActionCount,
		SkippedActions: a.SkippedActions,
		AnalyzedAt:     a.AnalyzedAt.UTC(),
	}
}

// copyMinutes copies an optional minute value.
func copyMinutes(in *int64) *int64 {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}

// copyTimePtr copies an optional timestamp as UTC.
func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	t := in.UTC()
	return &t
}
