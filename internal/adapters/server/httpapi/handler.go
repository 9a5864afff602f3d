// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/cardtrail/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// maxActionsBodyBytes limits inline action arrays, which can be long for old cards.
const maxActionsBodyBytes int64 = 16 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	analysis common.AnalysisService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// analyzeCardBody is the optional body of POST `/cards/{id}/analyze`.
type analyzeCardBody struct {
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// NewHandler constructs one HTTP API adapter over the analysis service.
func NewHandler(analysis common.AnalysisService) *Handler {
	return &Handler{analysis: analysis}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.analysis == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "analysis service is not configured",
		})
		return
	}

	path := normalizePath(r.URL.Path)
	switch path {
	case "analyses":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListAnalyses(w, r)
		return
	case "analyze":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleAnalyzeActions(w, r)
		return
	case "cards/analyze":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleAnalyzeCards(w, r)
		return
	}

	cardID, action, ok := resolveCardRoute(path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
		return
	}
	switch action {
	case "analyze":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleAnalyzeCard(w, r, cardID)
	case "analysis":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleGetAnalysis(w, r, cardID)
	case "runs":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListRuns(w, r, cardID)
	}
}

// handleAnalyzeCard serves POST `/cards/{id}/analyze`; resolved_at comes from the query or the body.
func (h *Handler) handleAnalyzeCard(w http.ResponseWriter, r *http.Request, cardID string) {
	var body analyzeCardBody
	if err := decodeOptionalJSONBody(r.Context(), w, r, &body); err != nil {
		writeErrorFrom(w, err)
		return
	}
	queryResolvedAt, err := parseOptionalTime(r.URL.Query().Get("resolved_at"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	resolvedAt := body.ResolvedAt
	if queryResolvedAt != nil {
		if resolvedAt != nil {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: "resolved_at must be sent in the query or the body, not both",
			})
			return
		}
		resolvedAt = queryResolvedAt
	}
	view, err := h.analysis.AnalyzeCard(r.Context(), common.AnalyzeCardRequest{
		CardID:     cardID,
		ResolvedAt: resolvedAt,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleAnalyzeCards serves POST `/cards/analyze`.
func (h *Handler) handleAnalyzeCards(w http.ResponseWriter, r *http.Request) {
	var req common.AnalyzeCardsRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	views, err := h.analysis.AnalyzeCards(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": views,
	})
}

// handleGetAnalysis serves GET `/cards/{id}/analysis`.
func (h *Handler) handleGetAnalysis(w http.ResponseWriter, r *http.Request, cardID string) {
	view, err := h.analysis.GetCardAnalysis(r.Context(), cardID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleListRuns serves GET `/cards/{id}/runs`.
func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request, cardID string) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	runs, err := h.analysis.ListAnalysisRuns(r.Context(), cardID, limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
	})
}

// handleListAnalyses serves GET `/analyses`.
func (h *Handler) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	views, err := h.analysis.ListCardAnalyses(r.Context(), limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": views,
	})
}

// handleAnalyzeActions serves POST `/analyze?card_id=X` with a raw action array body.
func (h *Handler) handleAnalyzeActions(w http.ResponseWriter, r *http.Request) {
	cardID := strings.TrimSpace(r.URL.Query().Get("card_id"))
	if cardID == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "card_id is required",
		})
		return
	}
	resolvedAt, err := parseOptionalTime(r.URL.Query().Get("resolved_at"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}

	reader := http.MaxBytesReader(w, r.Body, maxActionsBodyBytes)
	defer reader.Close()
	payload, err := io.ReadAll(reader)
	if err != nil {
		writeErrorFrom(w, fmt.Errorf("read request body: %w", errors.Join(common.ErrInvalidRequest, err)))
		return
	}
	view, err := h.analysis.AnalyzeActions(r.Context(), common.AnalyzeActionsRequest{
		CardID:     cardID,
		Actions:    payload,
		ResolvedAt: resolvedAt,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// resolveCardRoute parses `cards/{id}/{action}`.
func resolveCardRoute(path string) (string, string, bool) {
	const prefix = "cards/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) != 2 {
		return "", "", false
	}
	id := strings.TrimSpace(parts[0])
	if id == "" {
		return "", "", false
	}
	switch parts[1] {
	case "analyze", "analysis", "runs":
		return id, parts[1], true
	default:
		return "", "", false
	}
}

// parseLimit reads the optional `limit` query parameter.
func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer: %w", common.ErrInvalidRequest)
	}
	return limit, nil
}

// parseOptionalTime parses one optional RFC 3339 query value.
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

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
			Hint:    "Analyze the card first with POST /cards/{id}/analyze.",
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrUpstreamUnauthorized):
		writeJSONError(w, http.StatusBadGateway, APIError{
			Code:    "upstream_unauthorized",
			Message: err.Error(),
			Hint:    "Check trello.api_key and trello.token.",
		})
	case errors.Is(err, common.ErrUpstreamUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "upstream_unavailable",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}
