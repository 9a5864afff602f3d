// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hylla/cardtrail/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the card analysis tools.
func NewHandler(cfg Config, analysis common.AnalysisService) (*Handler, error) {
	if analysis == nil {
		return nil, fmt.Errorf("analysis service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerAnalyzeTools(mcpSrv, analysis)
	registerReadTools(mcpSrv, analysis)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "cardtrail"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerAnalyzeTools registers the tools that compute new analyses.
func registerAnalyzeTools(srv *mcpserver.MCPServer, analysis common.AnalysisService) {
	srv.AddTool(
		mcp.NewTool(
			"cardtrail.analyze_card",
			mcp.WithDescription("Fetch a card's action history, compute resolution timing and list journey, and store the result."),
			mcp.WithString("card_id", mcp.Required(), mcp.Description("Trello card id or short link")),
			mcp.WithString("resolved_at", mcp.Description("Optional RFC 3339 resolution time overriding list-based detection")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			cardID, err := req.RequireString("card_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			resolvedAt, err := parseOptionalTime(req.GetString("resolved_at", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			view, err := analysis.AnalyzeCard(ctx, common.AnalyzeCardRequest{
				CardID:     cardID,
				ResolvedAt: resolvedAt,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(view)
			if err != nil {
				return nil, fmt.Errorf("encode analyze_card result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"cardtrail.analyze_cards",
			mcp.WithDescription("Analyze and store several cards in parallel; results keep the requested order."),
			mcp.WithArray("card_ids", mcp.Required(), mcp.Description("Trello card ids"), mcp.WithStringItems()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			views, err := analysis.AnalyzeCards(ctx, common.AnalyzeCardsRequest{
				CardIDs: req.GetStringSlice("card_ids", nil),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"analyses": views,
			})
			if err != nil {
				return nil, fmt.Errorf("encode analyze_cards result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"cardtrail.analyze_actions",
			mcp.WithDescription("Analyze an inline JSON array of Trello card actions without storing the result."),
			mcp.WithString("card_id", mcp.Required(), mcp.Description("Card id used to label the analysis")),
			mcp.WithString("actions_json", mcp.Required(), mcp.Description("JSON array of actions as returned by the Trello card actions endpoint")),
			mcp.WithString("resolved_at", mcp.Description("Optional RFC 3339 resolution time")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			cardID, err := req.RequireString("card_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			actionsJSON, err := req.RequireString("actions_json")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			resolvedAt, err := parseOptionalTime(req.GetString("resolved_at", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			view, err := analysis.AnalyzeActions(ctx, common.AnalyzeActionsRequest{
				CardID:     cardID,
				Actions:    json.RawMessage(actionsJSON),
				ResolvedAt: resolvedAt,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(view)
			if err != nil {
				return nil, fmt.Errorf("encode analyze_actions result: %w", err)
			}
			return result, nil
		},
	)
}

// registerReadTools registers the tools that read stored analyses.
func registerReadTools(srv *mcpserver.MCPServer, analysis common.AnalysisService) {
	srv.AddTool(
		mcp.NewTool(
			"cardtrail.get_card_analysis",
			mcp.WithDescription("Return the most recent stored analysis for one card."),
			mcp.WithString("card_id", mcp.Required(), mcp.Description("Trello card id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			cardID, err := req.RequireString("card_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			view, err := analysis.GetCardAnalysis(ctx, cardID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(view)
			if err != nil {
				return nil, fmt.Errorf("encode get_card_analysis result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"cardtrail.list_card_analyses",
			mcp.WithDescription("List stored analyses, most recently analyzed first."),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			views, err := analysis.ListCardAnalyses(ctx, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"analyses": views,
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_card_analyses result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"cardtrail.list_analysis_runs",
			mcp.WithDescription("List the recorded analysis history for one card, newest first."),
			mcp.WithString("card_id", mcp.Required(), mcp.Description("Trello card id")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			cardID, err := req.RequireString("card_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			runs, err := analysis.ListAnalysisRuns(ctx, cardID, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"runs": runs,
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_analysis_runs result: %w", err)
			}
			return result, nil
		},
	)
}

// parseOptionalTime parses one optional RFC 3339 argument.
func parseOptionalTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("resolved_at must be RFC 3339: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	ts = ts.UTC()
	return &ts, nil
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrUpstreamUnauthorized):
		return mcp.NewToolResultError("upstream_unauthorized: " + err.Error())
	case errors.Is(err, common.ErrUpstreamUnavailable):
		return mcp.NewToolResultError("upstream_unavailable: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
