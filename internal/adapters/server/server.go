// Package server exposes cardtrail analyses over HTTP.
//
// One listener carries three surfaces:
//
//	/healthz, /readyz   liveness for process supervisors
//	<api endpoint>/...  JSON REST routes from httpapi (default /api/v1)
//	<mcp endpoint>      stateless MCP tools from mcpapi (default /mcp)
//
// Both the REST and MCP surfaces call the same common.AnalysisService.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hylla/cardtrail/internal/adapters/server/common"
	"github.com/hylla/cardtrail/internal/adapters/server/httpapi"
	"github.com/hylla/cardtrail/internal/adapters/server/mcpapi"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBindAddress = "127.0.0.1:8080"
	defaultAPIEndpoint = "/api/v1"
	defaultMCPEndpoint = "/mcp"
	defaultServerName  = "cardtrail"

	// shutdownGrace bounds how long in-flight analyses may finish after cancellation.
	shutdownGrace     = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Config selects the listener address, mount points and the name reported to MCP clients.
type Config struct {
	HTTPBind      string
	APIEndpoint   string
	MCPEndpoint   string
	ServerName    string
	ServerVersion string
}

// Dependencies carries the analysis service shared by REST and MCP.
type Dependencies struct {
	Analysis common.AnalysisService
}

// NewHandler builds the cardtrail mux and returns the config with defaults filled in.
func NewHandler(cfg Config, deps Dependencies) (http.Handler, Config, error) {
	if deps.Analysis == nil {
		return nil, Config{}, errors.New("analysis service is required")
	}
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, Config{}, err
	}

	mcpHandler, err := mcpapi.NewHandler(mcpapi.Config{
		ServerName:    cfg.ServerName,
		ServerVersion: cfg.ServerVersion,
		EndpointPath:  cfg.MCPEndpoint,
	}, deps.Analysis)
	if err != nil {
		return nil, Config{}, fmt.Errorf("build mcp tools: %w", err)
	}
	api := http.StripPrefix(cfg.APIEndpoint, httpapi.NewHandler(deps.Analysis))

	routes := map[string]http.Handler{
		"/healthz":            http.HandlerFunc(writeHealthStatus),
		"/readyz":             http.HandlerFunc(writeHealthStatus),
		cfg.MCPEndpoint:       mcpHandler,
		cfg.APIEndpoint:       api,
		cfg.APIEndpoint + "/": api,
	}
	mux := http.NewServeMux()
	for pattern, h := range routes {
		mux.Handle(pattern, h)
	}
	return mux, cfg, nil
}

// Run serves cardtrail until ctx is canceled, then drains requests within shutdownGrace.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}
	handler, cfg, err := NewHandler(cfg, deps)
	if err != nil {
		return fmt.Errorf("build server handler: %w", err)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPBind,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", cfg.HTTPBind, err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// withDefaults fills blank fields and rejects an MCP endpoint that shadows the REST API.
func withDefaults(cfg Config) (Config, error) {
	cfg.HTTPBind = strings.TrimSpace(cfg.HTTPBind)
	if cfg.HTTPBind == "" {
		cfg.HTTPBind = defaultBindAddress
	}
	cfg.APIEndpoint = normalizeEndpoint(cfg.APIEndpoint, defaultAPIEndpoint)
	cfg.MCPEndpoint = normalizeEndpoint(cfg.MCPEndpoint, defaultMCPEndpoint)
	if cfg.APIEndpoint == cfg.MCPEndpoint {
		return Config{}, fmt.Errorf("api and mcp endpoints both resolve to %q", cfg.APIEndpoint)
	}
	if cfg.ServerName = strings.TrimSpace(cfg.ServerName); cfg.ServerName == "" {
		cfg.ServerName = defaultServerName
	}
	if cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion); cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	return cfg, nil
}

// normalizeEndpoint turns a mount point into "/a/b" form; blank or root falls back.
func normalizeEndpoint(path, fallback string) string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return fallback
	}
	return "/" + path
}

func writeHealthStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}
