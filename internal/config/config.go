package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the full runtime configuration.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Trello     TrelloConfig     `toml:"trello"`
	Journey    JourneyConfig    `toml:"journey"`
	Resolution ResolutionConfig `toml:"resolution"`
	Server     ServerConfig     `toml:"server"`
	Analysis   AnalysisConfig   `toml:"analysis"`
	Logging    LoggingConfig    `toml:"logging"`
}

// DatabaseConfig holds configuration for database.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// TrelloConfig holds configuration for the Trello action source.
type TrelloConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	Token     string `toml:"token"`
	PageLimit int    `toml:"page_limit"`
	Timeout   string `toml:"timeout"`
}

// TimeoutDuration parses the configured request timeout.
func (c TrelloConfig) TimeoutDuration() (time.Duration, error) {
	raw := strings.TrimSpace(c.Timeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse trello.timeout %q: %w", raw, err)
	}
	return d, nil
}

// JourneyConfig holds configuration for journey tracking.
type JourneyConfig struct {
	TrackedLists []TrackedListConfig `toml:"tracked_lists"`
}

// TrackedListConfig maps one output key to a board list name.
type TrackedListConfig struct {
	Key  string `toml:"key"`
	Name string `toml:"name"`
}

// ResolutionConfig holds configuration for resolution detection.
type ResolutionConfig struct {
	ResolvedLists []string `toml:"resolved_lists"`
	DueComplete   bool     `toml:"due_complete"`
	TS            TSConfig `toml:"ts"`
}

// TSConfig identifies when technical support engaged with a card.
type TSConfig struct {
	MemberIDs []string `toml:"member_ids"`
	ListNames []string `toml:"list_names"`
}

// ServerConfig holds configuration for the serve command.
type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

// AnalysisConfig holds configuration for batch analysis.
type AnalysisConfig struct {
	Concurrency int `toml:"concurrency"`
}

// LoggingConfig holds configuration for runtime logging.
type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig holds configuration for the dev-mode log file sink.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// defaultTrackedLists returns the journey lists used when the file names none.
func defaultTrackedLists() []TrackedListConfig {
	return []TrackedListConfig{
		{Key: "doingMoves", Name: "Doing"},
		{Key: "tsMoves", Name: "TS"},
		{Key: "doneMoves", Name: "Done"},
	}
}

// Default returns the default configuration for one database path.
func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Trello: TrelloConfig{
			BaseURL:   "https://api.trello.com",
			PageLimit: 1000,
			Timeout:   "15s",
		},
		Journey: JourneyConfig{
			TrackedLists: defaultTrackedLists(),
		},
		Resolution: ResolutionConfig{
			ResolvedLists: []string{"Done"},
			DueComplete:   false,
			TS: TSConfig{
				ListNames: []string{"TS"},
			},
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Analysis: AnalysisConfig{
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     "",
			},
		},
	}
}

// Load reads path over defaults; a missing or empty file keeps the defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	// Array tables append onto existing slices; start empty so a file replaces the defaults.
	cfg.Journey.TrackedLists = nil
	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	if len(cfg.Journey.TrackedLists) == 0 {
		cfg.Journey.TrackedLists = append([]TrackedListConfig(nil), defaults.Journey.TrackedLists...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration for internally inconsistent values.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if raw := strings.TrimSpace(c.Trello.BaseURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("trello.base_url must be an absolute url: %q", raw)
		}
	}
	if c.Trello.PageLimit < 0 || c.Trello.PageLimit > 1000 {
		return fmt.Errorf("trello.page_limit must be between 0 and 1000: %d", c.Trello.PageLimit)
	}
	timeout, err := c.Trello.TimeoutDuration()
	if err != nil {
		return err
	}
	if timeout < 0 {
		return fmt.Errorf("trello.timeout must be >= 0: %q", c.Trello.Timeout)
	}

	seenKey := map[string]struct{}{}
	for idx, list := range c.Journey.TrackedLists {
		key := strings.TrimSpace(list.Key)
		if key == "" {
			return fmt.Errorf("journey.tracked_lists[%d].key is required", idx)
		}
		if key == "cardCreated" {
			return fmt.Errorf("journey.tracked_lists[%d].key is reserved: %s", idx, key)
		}
		if strings.TrimSpace(list.Name) == "" {
			return fmt.Errorf("journey.tracked_lists[%d].name is required", idx)
		}
		if _, ok := seenKey[key]; ok {
			return fmt.Errorf("journey.tracked_lists[%d].key is duplicated: %s", idx, key)
		}
		seenKey[key] = struct{}{}
	}

	for idx, name := range c.Resolution.ResolvedLists {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("resolution.resolved_lists[%d] is blank", idx)
		}
	}

	if c.Analysis.Concurrency < 0 {
		return fmt.Errorf("analysis.concurrency must be >= 0: %d", c.Analysis.Concurrency)
	}

	for _, endpoint := range []struct {
		name  string
		value string
	}{
		{name: "server.api_endpoint", value: c.Server.APIEndpoint},
		{name: "server.mcp_endpoint", value: c.Server.MCPEndpoint},
	} {
		v := strings.TrimSpace(endpoint.value)
		if v != "" && !strings.HasPrefix(v, "/") {
			return fmt.Errorf("%s must start with '/': %q", endpoint.name, v)
		}
	}

	if _, err := charmLog.ParseLevel(strings.TrimSpace(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	return nil
}

// EnsureConfigDir creates the parent directory of a config path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// WriteDefault writes cfg to path unless a file already exists there.
func WriteDefault(path string, cfg Config) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config: %w", err)
	}
	if err := EnsureConfigDir(path); err != nil {
		return false, fmt.Errorf("create config dir: %w", err)
	}
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		return false, fmt.Errorf("encode toml: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}
