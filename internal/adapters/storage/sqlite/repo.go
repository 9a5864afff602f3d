package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/cardtrail/internal/app"
	"github.com/hylla/cardtrail/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// filePragmas applies to every pooled connection of a file database.
const filePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// Repository stores card analyses in SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens a file database, creating its directory when missing.
// One pooled connection serializes writers; busy_timeout covers other processes.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path+"?"+filePragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Each pooled connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS card_analyses (
			card_id TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			resolution_minutes INTEGER,
			ts_resolution_minutes INTEGER,
			first_action_minutes INTEGER,
			card_created_at TEXT,
			tracked_keys_json TEXT NOT NULL DEFAULT '[]',
			action_count INTEGER NOT NULL DEFAULT 0,
			skipped_actions INTEGER NOT NULL DEFAULT 0,
			analyzed_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS journey_moves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			card_id TEXT NOT NULL,
			list_key TEXT NOT NULL,
			position INTEGER NOT NULL,
			moved_at TEXT NOT NULL,
			from_list TEXT NOT NULL,
			to_list TEXT NOT NULL,
			member_json TEXT,
			FOREIGN KEY(card_id) REFERENCES card_analyses(card_id) ON DELETE CASCADE
		);`,
		// analysis_runs is append-only; it keeps every computed result for trend views.
		`CREATE TABLE IF NOT EXISTS analysis_runs (
			id TEXT PRIMARY KEY,
			card_id TEXT NOT NULL,
			resolution_minutes INTEGER,
			ts_resolution_minutes INTEGER,
			first_action_minutes INTEGER,
			action_count INTEGER NOT NULL DEFAULT 0,
			skipped_actions INTEGER NOT NULL DEFAULT 0,
			analyzed_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_card_analyses_analyzed_at ON card_analyses(analyzed_at DESC, card_id ASC);`,
		`CREATE INDEX IF NOT EXISTS idx_journey_moves_card_key_position ON journey_moves(card_id, list_key, position);`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_runs_card_analyzed_at ON analysis_runs(card_id, analyzed_at DESC, id DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// UpsertCardAnalysis replaces the stored analysis for a card and appends a run record.
func (r *Repository) UpsertCardAnalysis(ctx context.Context, a domain.CardAnalysis) error {
	cardID := strings.TrimSpace(a.CardID)
	if cardID == "" {
		return domain.ErrInvalidCardID
	}
	if strings.TrimSpace(a.ID) == "" {
		return domain.ErrInvalidID
	}
	keysRaw, err := json.Marshal(nonNilKeys(a.Journey.Keys))
	if err != nil {
		return fmt.Errorf("encode tracked keys: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert analysis: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO card_analyses(
			card_id, id, resolution_minutes, ts_resolution_minutes, first_action_minutes,
			card_created_at, tracked_keys_json, action_count, skipped_actions, analyzed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(card_id) DO UPDATE SET
			id = excluded.id,
			resolution_minutes = excluded.resolution_minutes,
			ts_resolution_minutes = excluded.ts_resolution_minutes,
			first_action_minutes = excluded.first_action_minutes,
			card_created_at = excluded.card_created_at,
			tracked_keys_json = excluded.tracked_keys_json,
			action_count = excluded.action_count,
			skipped_actions = excluded.skipped_actions,
			analyzed_at = excluded.analyzed_at
	`,
		cardID,
		a.ID,
		nullableMinutes(a.Timing.ResolutionTime),
		nullableMinutes(a.Timing.TSResolutionTime),
		nullableMinutes(a.Timing.FirstActionTime),
		nullableTS(a.Journey.CardCreated),
		string(keysRaw),
		a.ActionCount,
		a.SkippedActions,
		ts(a.AnalyzedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert card analysis: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM journey_moves WHERE card_id = ?`, cardID); err != nil {
		return fmt.Errorf("clear journey moves: %w", err)
	}
	for _, key := range a.Journey.Keys {
		for position, move := range a.Journey.Moves[key] {
			memberRaw, err := encodeMember(move.Member)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO journey_moves(card_id, list_key, position, moved_at, from_list, to_list, member_json)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, cardID, key, position, ts(move.Date), move.From, move.To, memberRaw)
			if err != nil {
				return fmt.Errorf("insert journey move: %w", err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_runs(
			id, card_id, resolution_minutes, ts_resolution_minutes, first_action_minutes,
			action_count, skipped_actions, analyzed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		a.ID,
		cardID,
		nullableMinutes(a.Timing.ResolutionTime),
		nullableMinutes(a.Timing.TSResolutionTime),
		nullableMinutes(a.Timing.FirstActionTime),
		a.ActionCount,
		a.SkippedActions,
		ts(a.AnalyzedAt),
	)
	if err != nil {
		return fmt.Errorf("insert analysis run: %w", err)
	}

	return tx.Commit()
}

// GetCardAnalysis returns the stored analysis and journey for one card.
func (r *Repository) GetCardAnalysis(ctx context.Context, cardID string) (domain.CardAnalysis, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT card_id, id, resolution_minutes, ts_resolution_minutes, first_action_minutes,
			card_created_at, tracked_keys_json, action_count, skipped_actions, analyzed_at
		FROM card_analyses
		WHERE card_id = ?
	`, strings.TrimSpace(cardID))
	analysis, err := scanAnalysis(row)
	if err != nil {
		return domain.CardAnalysis{}, err
	}
	if err := r.loadMoves(ctx, &analysis); err != nil {
		return domain.CardAnalysis{}, err
	}
	return analysis, nil
}

// ListCardAnalyses lists the most recently analyzed cards.
func (r *Repository) ListCardAnalyses(ctx context.Context, limit int) ([]domain.CardAnalysis, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT card_id, id, resolution_minutes, ts_resolution_minutes, first_action_minutes,
			card_created_at, tracked_keys_json, action_count, skipped_actions, analyzed_at
		FROM card_analyses
		ORDER BY analyzed_at DESC, card_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CardAnalysis, 0)
	for rows.Next() {
		analysis, scanErr := scanAnalysis(rows)
		if scanErr != nil {
			_ = rows.Close()
			return nil, scanErr
		}
		out = append(out, analysis)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range out {
		if err := r.loadMoves(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListAnalysisRuns lists recorded runs for one card, newest first.
func (r *Repository) ListAnalysisRuns(ctx context.Context, cardID string, limit int) ([]domain.AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, card_id, resolution_minutes, ts_resolution_minutes, first_action_minutes,
			action_count, skipped_actions, analyzed_at
		FROM analysis_runs
		WHERE card_id = ?
		ORDER BY analyzed_at DESC, id DESC
		LIMIT ?
	`, strings.TrimSpace(cardID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AnalysisRun, 0)
	for rows.Next() {
		var (
			run         domain.AnalysisRun
			resolution  sql.NullInt64
			tsMinutes   sql.NullInt64
			firstAction sql.NullInt64
			analyzedRaw string
		)
		if err := rows.Scan(&run.ID, &run.CardID, &resolution, &tsMinutes, &firstAction, &run.ActionCount, &run.SkippedActions, &analyzedRaw); err != nil {
			return nil, err
		}
		run.Timing = domain.ResolutionTiming{
			ResolutionTime:   parseNullMinutes(resolution),
			TSResolutionTime: parseNullMinutes(tsMinutes),
			FirstActionTime:  parseNullMinutes(firstAction),
		}
		run.AnalyzedAt = parseTS(analyzedRaw)
		out = append(out, run)
	}
	return out, rows.Err()
}

// loadMoves fills the journey for one scanned analysis.
func (r *Repository) loadMoves(ctx context.Context, a *domain.CardAnalysis) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT list_key, moved_at, from_list, to_list, member_json
		FROM journey_moves
		WHERE card_id = ?
		ORDER BY list_key ASC, position ASC
	`, a.CardID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key       string
			movedRaw  string
			move      domain.MoveRecord
			memberRaw sql.NullString
		)
		if err := rows.Scan(&key, &movedRaw, &move.From, &move.To, &memberRaw); err != nil {
			return err
		}
		move.Date = parseTS(movedRaw)
		member, err := decodeMember(memberRaw)
		if err != nil {
			return err
		}
		move.Member = member
		if _, ok := a.Journey.Moves[key]; !ok {
			a.Journey.Keys = append(a.Journey.Keys, key)
		}
		a.Journey.Moves[key] = append(a.Journey.Moves[key], move)
	}
	return rows.Err()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanAnalysis scans one card_analyses row without moves.
func scanAnalysis(s scanner) (domain.CardAnalysis, error) {
	var (
		a           domain.CardAnalysis
		resolution  sql.NullInt64
		tsMinutes   sql.NullInt64
		firstAction sql.NullInt64
		created     sql.NullString
		keysRaw     string
		analyzedRaw string
	)
	if err := s.Scan(&a.CardID, &a.ID, &resolution, &tsMinutes, &firstAction, &created, &keysRaw, &a.ActionCount, &a.SkippedActions, &analyzedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CardAnalysis{}, app.ErrNotFound
		}
		return domain.CardAnalysis{}, err
	}
	if strings.TrimSpace(keysRaw) == "" {
		keysRaw = "[]"
	}
	var keys []string
	if err := json.Unmarshal([]byte(keysRaw), &keys); err != nil {
		return domain.CardAnalysis{}, fmt.Errorf("decode tracked_keys_json: %w", err)
	}
	a.Timing = domain.ResolutionTiming{
		ResolutionTime:   parseNullMinutes(resolution),
		TSResolutionTime: parseNullMinutes(tsMinutes),
		FirstActionTime:  parseNullMinutes(firstAction),
	}
	a.Journey = domain.CardJourney{
		CardCreated: parseNullTS(created),
		Keys:        nonNilKeys(keys),
		Moves:       make(map[string][]domain.MoveRecord, len(keys)),
	}
	for _, key := range a.Journey.Keys {
		a.Journey.Moves[key] = []domain.MoveRecord{}
	}
	a.AnalyzedAt = parseTS(analyzedRaw)
	return a, nil
}

// memberRecord is the stored JSON shape of a move member.
type memberRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Initials string `json:"initials"`
	Avatar   string `json:"avatar"`
}

// encodeMember encodes an optional move member.
func encodeMember(m *domain.MoveMember) (any, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(memberRecord{ID: m.ID, Name: m.Name, Initials: m.Initials, Avatar: m.Avatar})
	if err != nil {
		return nil, fmt.Errorf("encode move member: %w", err)
	}
	return string(raw), nil
}

// decodeMember decodes an optional move member.
func decodeMember(raw sql.NullString) (*domain.MoveMember, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var rec memberRecord
	if err := json.Unmarshal([]byte(raw.String), &rec); err != nil {
		return nil, fmt.Errorf("decode member_json: %w", err)
	}
	return &domain.MoveMember{ID: rec.ID, Name: rec.Name, Initials: rec.Initials, Avatar: rec.Avatar}, nil
}

// nonNilKeys returns keys or an empty slice.
func nonNilKeys(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}

// nullableMinutes handles nullable minutes.
func nullableMinutes(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// parseNullMinutes parses input into a normalized form.
func parseNullMinutes(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	minutes := v.Int64
	return &minutes
}

// tsLayout keeps fixed-width fractions so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
