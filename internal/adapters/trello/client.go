// Package trello fetches card action histories from the Trello REST API.
package trello

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/cardtrail/internal/app"
	"github.com/hylla/cardtrail/internal/domain"
)

// DefaultBaseURL is the public Trello API origin.
const DefaultBaseURL = "https://api.trello.com"

// maxPageLimit is the largest page the actions endpoint serves.
const maxPageLimit = 1000

// defaultMaxPages bounds pagination for one card.
const defaultMaxPages = 50

// maxErrorBodyBytes limits how much of a failed response is kept for diagnostics.
const maxErrorBodyBytes = 4 << 10

// maxResponseBytes limits one decoded page.
const maxResponseBytes int64 = 32 << 20

// ErrUnauthorized reports rejected API credentials.
var ErrUnauthorized = errors.New("trello credentials rejected")

// ErrHistoryTruncated reports a card whose history is longer than the page budget.
var ErrHistoryTruncated = errors.New("trello action history truncated")

// Config defines API access settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Token      string
	PageLimit  int
	MaxPages   int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client lists card actions page by page.
type Client struct {
	baseURL   *url.URL
	apiKey    string
	token     string
	pageLimit int
	maxPages  int
	http      *http.Client
}

// APIError reports one non-success API response.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements error.
func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("trello api status %d", e.StatusCode)
	}
	return fmt.Sprintf("trello api status %d: %s", e.StatusCode, body)
}

// Unwrap maps status codes onto application sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return app.ErrNotFound
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return app.ErrActionSourceUnavailable
	default:
		return nil
	}
}

// NewClient validates the config and builds one API client.
func NewClient(cfg Config) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.APIKey == "" || cfg.Token == "" {
		return nil, fmt.Errorf("trello api key and token are required: %w", ErrUnauthorized)
	}
	rawBase := strings.TrimSpace(cfg.BaseURL)
	if rawBase == "" {
		rawBase = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(rawBase, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse trello base url %q: %w", rawBase, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("trello base url %q must be absolute", rawBase)
	}
	if cfg.PageLimit <= 0 || cfg.PageLimit > maxPageLimit {
		cfg.PageLimit = maxPageLimit
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		token:     cfg.Token,
		pageLimit: cfg.PageLimit,
		maxPages:  cfg.MaxPages,
		http:      httpClient,
	}, nil
}

// ListCardActions fetches every tracked action for one card, newest page first.
// A history that still has full pages after maxPages fails with ErrHistoryTruncated
// rather than yielding a journey built from the newest actions only.
func (c *Client) ListCardActions(ctx context.Context, cardID string) ([]domain.Action, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, app.ErrInvalidCardID
	}

	var (
		all    []domain.Action
		before string
	)
	for page := 0; page < c.maxPages; page++ {
		actions, info, err := c.fetchPage(ctx, cardID, before)
		if err != nil {
			return nil, err
		}
		all = append(all, actions...)
		if info.size < c.pageLimit || info.lastID == "" || info.lastID == before {
			return all, nil
		}
		before = info.lastID
	}
	return nil, fmt.Errorf("card %q: fetched %d actions in %d pages: %w",
		cardID, len(all), c.maxPages, errors.Join(ErrHistoryTruncated, app.ErrActionSourceUnavailable))
}

// fetchPage requests one page of actions older than before (when set).
func (c *Client) fetchPage(ctx context.Context, cardID, before string) ([]domain.Action, pageInfo, error) {
	endpoint := c.baseURL.JoinPath("1", "cards", cardID, "actions")
	query := url.Values{}
	query.Set("filter", actionFilter())
	query.Set("limit", strconv.Itoa(c.pageLimit))
	query.Set("key", c.apiKey)
	query.Set("token", c.token)
	if before != "" {
		query.Set("before", before)
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, pageInfo{}, fmt.Errorf("build actions request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pageInfo{}, fmt.Errorf("request card actions: %w", errors.Join(app.ErrActionSourceUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, pageInfo{}, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, pageInfo{}, fmt.Errorf("read card actions: %w", err)
	}
	return decodeActionPage(payload)
}

// actionFilter renders the comma-separated action type filter.
func actionFilter() string {
	types := domain.TrackedActionTypes()
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ",")
}
