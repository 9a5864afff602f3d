package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/cardtrail.db")
	if cfg.Database.Path != "/tmp/cardtrail.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if len(cfg.Journey.TrackedLists) != 3 {
		t.Fatalf("expected 3 default tracked lists, got %d", len(cfg.Journey.TrackedLists))
	}
	if cfg.Trello.PageLimit != 1000 {
		t.Fatalf("unexpected page limit %d", cfg.Trello.PageLimit)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("unexpected log level %q", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/cardtrail.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
path = "/custom/cardtrail.db"

[trello]
api_key = "key"
token = "token"
page_limit = 200
timeout = "5s"

[[journey.tracked_lists]]
key = "triageMoves"
name = "Triage"

[[journey.tracked_lists]]
key = "closedMoves"
name = "Closed"

[resolution]
resolved_lists = ["Closed", "Won't Fix"]
due_complete = true

[resolution.ts]
member_ids = ["ts-1"]

[analysis]
concurrency = 8

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/cardtrail.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Trello.APIKey != "key" || cfg.Trello.Token != "token" || cfg.Trello.PageLimit != 200 {
		t.Fatalf("unexpected trello config %#v", cfg.Trello)
	}
	timeout, err := cfg.Trello.TimeoutDuration()
	if err != nil || timeout != 5*time.Second {
		t.Fatalf("TimeoutDuration() = %s, %v; want 5s", timeout, err)
	}
	if len(cfg.Journey.TrackedLists) != 2 || cfg.Journey.TrackedLists[0].Key != "triageMoves" {
		t.Fatalf("unexpected tracked lists %#v", cfg.Journey.TrackedLists)
	}
	if !cfg.Resolution.DueComplete || len(cfg.Resolution.ResolvedLists) != 2 {
		t.Fatalf("unexpected resolution config %#v", cfg.Resolution)
	}
	if len(cfg.Resolution.TS.MemberIDs) != 1 || cfg.Resolution.TS.MemberIDs[0] != "ts-1" {
		t.Fatalf("unexpected ts member ids %#v", cfg.Resolution.TS.MemberIDs)
	}
	if cfg.Analysis.Concurrency != 8 {
		t.Fatalf("unexpected concurrency %d", cfg.Analysis.Concurrency)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected log level %q", cfg.Logging.Level)
	}
	if cfg.Server.MCPEndpoint != "/mcp" {
		t.Fatalf("expected default mcp endpoint, got %q", cfg.Server.MCPEndpoint)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"duplicate key": `
[[journey.tracked_lists]]
key = "doingMoves"
name = "Doing"

[[journey.tracked_lists]]
key = "doingMoves"
name = "Doing Again"
`,
		"blank list name": `
[[journey.tracked_lists]]
key = "doingMoves"
name = " "
`,
		"bad timeout": `
[trello]
timeout = "soon"
`,
		"relative base url": `
[trello]
base_url = "api.trello.com"
`,
		"page limit": `
[trello]
page_limit = 5000
`,
		"log level": `
[logging]
level = "chatty"
`,
		"endpoint": `
[server]
mcp_endpoint = "mcp"
`,
		"bad toml": `[database`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			if _, err := Load(path, Default("/tmp/cardtrail.db")); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateRequiresDatabasePath(t *testing.T) {
	cfg := Default("  ")
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "database path") {
		t.Fatalf("expected database path error, got %v", err)
	}
}

func TestWriteDefaultDoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	written, err := WriteDefault(path, Default("/tmp/cardtrail.db"))
	if err != nil || !written {
		t.Fatalf("WriteDefault() = %t, %v; want true, nil", written, err)
	}
	cfg, err := Load(path, Default("/other.db"))
	if err != nil {
		t.Fatalf("Load(written) error = %v", err)
	}
	if cfg.Database.Path != "/tmp/cardtrail.db" {
		t.Fatalf("unexpected db path after round trip %q", cfg.Database.Path)
	}
	written, err = WriteDefault(path, Default("/changed.db"))
	if err != nil || written {
		t.Fatalf("second WriteDefault() = %t, %v; want false, nil", written, err)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "config.toml")
	if err := EnsureConfigDir(path); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("expected config dir to exist: %v", err)
	}
	if err := EnsureConfigDir("config.toml"); err != nil {
		t.Fatalf("EnsureConfigDir(relative) error = %v", err)
	}
}
