package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	serveradapter "github.com/hylla/cardtrail/internal/adapters/server"
	servercommon "github.com/hylla/cardtrail/internal/adapters/server/common"
	"github.com/hylla/cardtrail/internal/adapters/storage/sqlite"
	"github.com/hylla/cardtrail/internal/adapters/trello"
	"github.com/hylla/cardtrail/internal/app"
	"github.com/hylla/cardtrail/internal/config"
	"github.com/hylla/cardtrail/internal/domain"
	"github.com/hylla/cardtrail/internal/platform"
	"github.com/hylla/cardtrail/internal/report"
	"github.com/spf13/cobra"
)

// version stores the build version; "dev" enables dev-mode paths by default.
var version = "dev"

// reportWidth is the wrap width for rendered markdown reports.
const reportWidth = 100

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// nowFunc stores the clock used for analyses and open-stay measurement.
var nowFunc = time.Now

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run executes the command tree through fang.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// rootOptions holds the global flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
}

// newRootCommand builds the cardtrail command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("CARDTRAIL_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultApp := "cardtrail"
	if envApp := strings.TrimSpace(os.Getenv("CARDTRAIL_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}

	root := &cobra.Command{
		Use:           "cardtrail",
		Short:         "Measure how Trello cards move from creation to resolution",
		Long:          "cardtrail fetches a Trello card's action history and reports resolution timing, first-response time and the card's journey through tracked lists.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newAnalyzeCommand(opts),
		newShowCommand(opts),
		newListCommand(opts),
		newHistoryCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
		newServeCommand(opts),
		newPathsCommand(opts),
		newInitCommand(opts),
	)
	return root
}

// newAnalyzeCommand builds the analyze command.
func newAnalyzeCommand(opts *rootOptions) *cobra.Command {
	var (
		filePath   string
		format     string
		resolvedAt string
		noSave     bool
	)
	cmd := &cobra.Command{
		Use:   "analyze CARD_ID [CARD_ID...]",
		Short: "Analyze one or more cards and store the results",
		Long: `Fetch each card's action history from Trello, compute resolution timing and
the list journey, and store the result.

With --file the actions are read from a JSON file ("-" for stdin) instead of
Trello; --no-save then skips storing the result.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			resolved, err := parseResolvedAt(resolvedAt)
			if err != nil {
				return err
			}
			if filePath == "" && noSave {
				return fmt.Errorf("--no-save requires --file")
			}
			if len(args) > 1 && (filePath != "" || resolved != nil) {
				return fmt.Errorf("--file and --resolved-at accept exactly one card id")
			}

			rt, err := openSession(cmd, opts, "analyze")
			if err != nil {
				return err
			}
			defer rt.Close()

			analyses, err := runAnalyze(cmd, rt, args, filePath, resolved, noSave)
			if err != nil {
				rt.logger.Error("command flow failed", "command", "analyze", "err", err)
				return fmt.Errorf("run analyze command: %w", err)
			}
			rt.logger.Info("command flow complete", "command", "analyze", "cards", len(analyses))
			return writeAnalyses(cmd.OutOrStdout(), analyses, rt.svc.TrackedLists(), format)
		},
	}
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "read actions from a JSON file instead of Trello ('-' for stdin)")
	cmd.Flags().StringVar(&format, "format", "summary", "output format: summary, markdown, md or json")
	cmd.Flags().StringVar(&resolvedAt, "resolved-at", "", "explicit RFC 3339 resolution time")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store analyses computed from --file")
	return cmd
}

// runAnalyze runs the analyze flow for file, single-card or batch input.
func runAnalyze(cmd *cobra.Command, rt *session, cardIDs []string, filePath string, resolvedAt *time.Time, noSave bool) ([]domain.CardAnalysis, error) {
	ctx := cmd.Context()
	if filePath != "" {
		content, err := readInput(cmd.InOrStdin(), filePath)
		if err != nil {
			return nil, err
		}
		actions, err := trello.DecodeActions(content)
		if err != nil {
			return nil, fmt.Errorf("decode actions file: %w", err)
		}
		rt.logger.Debug("actions decoded", "path", filePath, "count", len(actions))
		analysis, err := rt.svc.AnalyzeActions(app.AnalyzeActionsInput{
			CardID:     cardIDs[0],
			Actions:    actions,
			ResolvedAt: resolvedAt,
		})
		if err != nil {
			return nil, err
		}
		if !noSave {
			if err := rt.svc.StoreAnalysis(ctx, analysis); err != nil {
				return nil, err
			}
			rt.logger.Info("analysis stored", "card_id", analysis.CardID, "analysis_id", analysis.ID)
		}
		return []domain.CardAnalysis{analysis}, nil
	}

	if len(cardIDs) == 1 {
		analysis, err := rt.svc.AnalyzeCard(ctx, app.AnalyzeCardInput{
			CardID:     cardIDs[0],
			ResolvedAt: resolvedAt,
		})
		if err != nil {
			return nil, err
		}
		rt.logger.Info("analysis stored", "card_id", analysis.CardID, "analysis_id", analysis.ID, "actions", analysis.ActionCount)
		return []domain.CardAnalysis{analysis}, nil
	}
	return rt.svc.AnalyzeCards(ctx, cardIDs)
}

// newShowCommand builds the show command.
func newShowCommand(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show CARD_ID",
		Short: "Show the stored analysis for one card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			rt, err := openSession(cmd, opts, "show")
			if err != nil {
				return err
			}
			defer rt.Close()

			analysis, err := rt.svc.GetCardAnalysis(cmd.Context(), args[0])
			if err != nil {
				rt.logger.Error("command flow failed", "command", "show", "card_id", args[0], "err", err)
				return fmt.Errorf("run show command: %w", err)
			}
			return writeAnalyses(cmd.OutOrStdout(), []domain.CardAnalysis{analysis}, rt.svc.TrackedLists(), format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "summary", "output format: summary, markdown, md or json")
	return cmd
}

// newListCommand builds the list command.
func newListCommand(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored analyses, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateListFormat(format); err != nil {
				return err
			}
			rt, err := openSession(cmd, opts, "list")
			if err != nil {
				return err
			}
			defer rt.Close()

			analyses, err := rt.svc.ListCardAnalyses(cmd.Context(), limit)
			if err != nil {
				rt.logger.Error("command flow failed", "command", "list", "err", err)
				return fmt.Errorf("run list command: %w", err)
			}
			if format == "json" {
				now := nowFunc()
				views := make([]servercommon.CardAnalysisView, 0, len(analyses))
				for _, analysis := range analyses {
					views = append(views, servercommon.NewCardAnalysisView(analysis, now))
				}
				return writeJSON(cmd.OutOrStdout(), views)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), report.AnalysesTable(analyses))
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to return (default 50)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

// newHistoryCommand builds the history command.
func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "history CARD_ID",
		Short: "List every recorded analysis run for one card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateListFormat(format); err != nil {
				return err
			}
			rt, err := openSession(cmd, opts, "history")
			if err != nil {
				return err
			}
			defer rt.Close()

			runs, err := rt.svc.ListAnalysisRuns(cmd.Context(), args[0], limit)
			if err != nil {
				rt.logger.Error("command flow failed", "command", "history", "card_id", args[0], "err", err)
				return fmt.Errorf("run history command: %w", err)
			}
			if format == "json" {
				views := make([]servercommon.AnalysisRunView, 0, len(runs))
				for _, run := range runs {
					views = append(views, servercommon.NewAnalysisRunView(run))
				}
				return writeJSON(cmd.OutOrStdout(), views)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), report.RunsTable(runs))
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to return (default 50)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

// newExportCommand builds the export command.
func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		outPath string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored analyses as a JSON or YAML snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapFormat, err := snapshotFormat(format, outPath)
			if err != nil {
				return err
			}
			rt, err := openSession(cmd, opts, "export")
			if err != nil {
				return err
			}
			defer rt.Close()

			snap, err := rt.svc.ExportSnapshot(cmd.Context())
			if err != nil {
				rt.logger.Error("command flow failed", "command", "export", "err", err)
				return fmt.Errorf("export snapshot: %w", err)
			}
			encoded, err := app.EncodeSnapshot(snap, snapFormat)
			if err != nil {
				return err
			}
			if outPath == "-" {
				if _, err := cmd.OutOrStdout().Write(encoded); err != nil {
					return fmt.Errorf("write snapshot to stdout: %w", err)
				}
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create export output dir: %w", err)
			}
			if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
				return fmt.Errorf("write export file: %w", err)
			}
			rt.logger.Info("command flow complete", "command", "export", "analyses", len(snap.Analyses), "path", outPath, "format", snapFormat)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	cmd.Flags().StringVar(&format, "format", "", "snapshot format: json or yaml (default from --out extension)")
	return cmd
}

// newImportCommand builds the import command.
func newImportCommand(opts *rootOptions) *cobra.Command {
	var (
		inPath string
		format string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import analyses from a JSON or YAML snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inPath) == "" {
				return fmt.Errorf("--in is required")
			}
			snapFormat, err := snapshotFormat(format, inPath)
			if err != nil {
				return err
			}
			content, err := readInput(cmd.InOrStdin(), inPath)
			if err != nil {
				return err
			}
			snap, err := app.DecodeSnapshot(content, snapFormat)
			if err != nil {
				return err
			}

			rt, err := openSession(cmd, opts, "import")
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.svc.ImportSnapshot(cmd.Context(), snap)
			if err != nil {
				rt.logger.Error("command flow failed", "command", "import", "err", err)
				return fmt.Errorf("import snapshot: %w", err)
			}
			rt.logger.Info("command flow complete", "command", "import", "imported", result.Imported, "skipped", result.Skipped)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d analyses, skipped %d\n", result.Imported, result.Skipped)
			return err
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot file ('-' for stdin)")
	cmd.Flags().StringVar(&format, "format", "", "snapshot format: json or yaml (default from --in extension)")
	return cmd
}

// snapshotFormat resolves an explicit format or falls back to the file extension.
func snapshotFormat(raw, path string) (app.SnapshotFormat, error) {
	if strings.TrimSpace(raw) != "" {
		return app.ParseSnapshotFormat(raw)
	}
	return app.SnapshotFormatForPath(path), nil
}

// newServeCommand builds the serve command.
func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and MCP tools over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openSession(cmd, opts, "serve")
			if err != nil {
				return err
			}
			defer rt.Close()

			serveCfg := serveradapter.Config{
				HTTPBind:      firstNonEmpty(httpBind, rt.cfg.Server.HTTPBind),
				APIEndpoint:   firstNonEmpty(apiEndpoint, rt.cfg.Server.APIEndpoint),
				MCPEndpoint:   firstNonEmpty(mcpEndpoint, rt.cfg.Server.MCPEndpoint),
				ServerName:    opts.appName,
				ServerVersion: version,
			}
			rt.logger.Info("serve starting", "http", serveCfg.HTTPBind, "api_endpoint", serveCfg.APIEndpoint, "mcp_endpoint", serveCfg.MCPEndpoint)
			err = serveCommandRunner(cmd.Context(), serveCfg, serveradapter.Dependencies{
				Analysis: servercommon.NewAppServiceAdapter(rt.svc),
			})
			if err != nil {
				rt.logger.Error("command flow failed", "command", "serve", "err", err)
				return fmt.Errorf("run serve command: %w", err)
			}
			rt.logger.Info("command flow complete", "command", "serve")
			return nil
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint (default from config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint (default from config)")
	return cmd
}

// newPathsCommand builds the paths command.
func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data and log paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := resolvePaths(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", resolveConfigPath(opts, paths))
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

// newInitCommand builds the init command.
func newInitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := resolvePaths(opts)
			if err != nil {
				return err
			}
			configPath := resolveConfigPath(opts, paths)
			dbPath, _ := resolveDBPath(opts, paths)
			written, err := config.WriteDefault(configPath, config.Default(dbPath))
			if err != nil {
				return fmt.Errorf("write default config: %w", err)
			}
			if written {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "config already exists: %s\n", configPath)
			return err
		},
	}
}

// session holds the opened state shared by data commands.
type session struct {
	cfg        config.Config
	configPath string
	logger     *runtimeLogger
	repo       *sqlite.Repository
	svc        *app.Service
}

// openSession resolves paths and config, then opens logging, storage and the service.
func openSession(cmd *cobra.Command, opts *rootOptions, command string) (*session, error) {
	paths, err := resolvePaths(opts)
	if err != nil {
		return nil, err
	}
	configPath := resolveConfigPath(opts, paths)
	dbPath, dbOverridden := resolveDBPath(opts, paths)

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	if key := strings.TrimSpace(os.Getenv("CARDTRAIL_TRELLO_KEY")); key != "" {
		cfg.Trello.APIKey = key
	}
	if token := strings.TrimSpace(os.Getenv("CARDTRAIL_TRELLO_TOKEN")); token != "" {
		cfg.Trello.Token = token
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %q: %w", configPath, err)
	}

	logDir := cfg.Logging.DevFile.Dir
	if strings.TrimSpace(logDir) == "" {
		logDir = paths.LogDir
	}
	logger, err := newRuntimeLogger(cmd.ErrOrStderr(), opts.appName, opts.devMode, cfg.Logging, logDir, nowFunc)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Info("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")

	source, err := newActionSource(cfg.Trello)
	if err != nil {
		_ = repo.Close()
		_ = logger.Close()
		return nil, fmt.Errorf("configure trello client: %w", err)
	}
	if source == nil {
		logger.Warn("trello credentials not configured; card fetches are unavailable")
	}

	svc := app.NewService(repo, source, uuid.NewString, nowFunc, serviceConfig(cfg))
	logger.Debug("application service initialized", "tracked_lists", len(cfg.Journey.TrackedLists), "concurrency", cfg.Analysis.Concurrency)
	logger.Info("command flow start", "command", command)
	return &session{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		repo:       repo,
		svc:        svc,
	}, nil
}

// Close releases the repository and log sinks.
func (r *session) Close() {
	if r == nil {
		return
	}
	if err := r.repo.Close(); err != nil {
		r.logger.Warn("sqlite close failed", "db_path", r.cfg.Database.Path, "err", err)
	}
	_ = r.logger.Close()
}

// newActionSource builds the Trello client, or nil when credentials are absent.
func newActionSource(cfg config.TrelloConfig) (app.ActionSource, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.Token) == "" {
		return nil, nil
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	client, err := trello.NewClient(trello.Config{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Token:     cfg.Token,
		PageLimit: cfg.PageLimit,
		Timeout:   timeout,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// serviceConfig maps runtime config onto app service settings.
func serviceConfig(cfg config.Config) app.ServiceConfig {
	tracked := make([]domain.TrackedList, 0, len(cfg.Journey.TrackedLists))
	for _, list := range cfg.Journey.TrackedLists {
		tracked = append(tracked, domain.TrackedList{
			Key:  strings.TrimSpace(list.Key),
			Name: strings.TrimSpace(list.Name),
		})
	}
	return app.ServiceConfig{
		TrackedLists:  tracked,
		ResolvedLists: append([]string(nil), cfg.Resolution.ResolvedLists...),
		DueComplete:   cfg.Resolution.DueComplete,
		TSMemberIDs:   append([]string(nil), cfg.Resolution.TS.MemberIDs...),
		TSListNames:   append([]string(nil), cfg.Resolution.TS.ListNames...),
		Concurrency:   cfg.Analysis.Concurrency,
	}
}

// resolvePaths resolves platform paths for the selected app name and mode.
func resolvePaths(opts *rootOptions) (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: opts.appName,
		DevMode: opts.devMode,
	})
}

// resolveConfigPath applies flag, environment and platform precedence.
func resolveConfigPath(opts *rootOptions, paths platform.Paths) string {
	if path := strings.TrimSpace(opts.configPath); path != "" {
		return path
	}
	if envPath := strings.TrimSpace(os.Getenv("CARDTRAIL_CONFIG")); envPath != "" {
		return envPath
	}
	return paths.ConfigPath
}

// resolveDBPath applies flag, environment and platform precedence and reports explicit overrides.
func resolveDBPath(opts *rootOptions, paths platform.Paths) (string, bool) {
	if path := strings.TrimSpace(opts.dbPath); path != "" {
		return path, true
	}
	if envPath := strings.TrimSpace(os.Getenv("CARDTRAIL_DB_PATH")); envPath != "" {
		return envPath, true
	}
	return paths.DBPath, false
}

// validateFormat checks one analysis output format.
func validateFormat(format string) error {
	switch format {
	case "summary", "markdown", "md", "json":
		return nil
	default:
		return fmt.Errorf("unsupported --format %q: want summary, markdown, md or json", format)
	}
}

// validateListFormat checks one listing output format.
func validateListFormat(format string) error {
	switch format {
	case "table", "json":
		return nil
	default:
		return fmt.Errorf("unsupported --format %q: want table or json", format)
	}
}

// writeAnalyses renders analyses in the requested format.
func writeAnalyses(w io.Writer, analyses []domain.CardAnalysis, tracked []domain.TrackedList, format string) error {
	now := nowFunc()
	switch format {
	case "json":
		views := make([]servercommon.CardAnalysisView, 0, len(analyses))
		for _, analysis := range analyses {
			views = append(views, servercommon.NewCardAnalysisView(analysis, now))
		}
		if len(views) == 1 {
			return writeJSON(w, views[0])
		}
		return writeJSON(w, views)
	case "markdown":
		renderer := report.NewRenderer("")
		for _, analysis := range analyses {
			if _, err := fmt.Fprintln(w, renderer.Render(report.Markdown(analysis, tracked, now), reportWidth)); err != nil {
				return err
			}
		}
		return nil
	case "md":
		for i, analysis := range analyses {
			if i > 0 {
				if _, err := fmt.Fprintln(w); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, report.Markdown(analysis, tracked, now)); err != nil {
				return err
			}
		}
		return nil
	default:
		for _, analysis := range analyses {
			if _, err := fmt.Fprintln(w, report.Summary(analysis, tracked, now)); err != nil {
				return err
			}
		}
		return nil
	}
}

// writeJSON writes one indented JSON document.
func writeJSON(w io.Writer, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	encoded = append(encoded, '\n')
	_, err = w.Write(encoded)
	return err
}

// readInput reads a file path or stdin when path is "-".
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		content, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read input from stdin: %w", err)
		}
		return content, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("input file %q does not exist", path)
		}
		return nil, fmt.Errorf("read input file: %w", err)
	}
	return content, nil
}

// parseResolvedAt parses the optional --resolved-at flag.
func parseResolvedAt(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("--resolved-at must be RFC 3339: %w", err)
	}
	ts = ts.UTC()
	return &ts, nil
}

// firstNonEmpty returns the first non-blank value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
