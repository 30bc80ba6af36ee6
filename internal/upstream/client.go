package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/leaderboard-mirror/internal/config"
	"github.com/leaderboard-mirror/internal/domain"
)

// Client queries the external ranking service. It surfaces upstream
// failures as domain.ErrUnauthorized, domain.ErrThrottled or a plain
// wrapped error for transient faults.
type Client struct {
	baseURL     string
	boardID     string
	token       string
	httpClient  *http.Client
	pageTimeout time.Duration
	userTimeout time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a new upstream leaderboard client
func NewClient(cfg *config.UpstreamConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		boardID:     cfg.BoardID,
		token:       cfg.Token,
		httpClient:  &http.Client{},
		pageTimeout: cfg.PageTimeout,
		userTimeout: cfg.UserTimeout,
		// Pacing between page fetches to avoid self-inflicted throttling
		limiter: rate.NewLimiter(rate.Every(cfg.PageDelay), 1),
		logger:  logger,
	}
}

type pageResponse struct {
	Players []domain.Player `json:"players"`
}

type userResponse struct {
	Player *domain.Player `json:"player"`
}

// FetchPage returns one page of the upstream leaderboard in upstream rank
// order. The page index is zero-based.
func (c *Client) FetchPage(ctx context.Context, page, limit int) ([]domain.Player, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for page pacing: %w", err)
	}

	reqURL := fmt.Sprintf("%s/%s?page=%d&limit=%d", c.baseURL, c.boardID, page, limit)

	var resp pageResponse
	if err := c.getJSON(ctx, reqURL, c.pageTimeout, &resp); err != nil {
		return nil, fmt.Errorf("fetching page %d: %w", page, err)
	}
	return resp.Players, nil
}

// FetchUser returns the upstream record for a single user, or
// domain.ErrEntryNotFound when the user is not ranked. The upstream API may
// fall back to an unrelated record when the exact one is absent, so any
// identity mismatch is treated as not found.
func (c *Client) FetchUser(ctx context.Context, userID string) (*domain.Player, error) {
	reqURL := fmt.Sprintf("%s/%s?limit=1&user_id=%s", c.baseURL, c.boardID, url.QueryEscape(userID))

	var resp userResponse
	if err := c.getJSON(ctx, reqURL, c.userTimeout, &resp); err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", userID, err)
	}

	if resp.Player == nil || resp.Player.ID != userID {
		return nil, domain.ErrEntryNotFound
	}
	return resp.Player, nil
}

// getJSON performs an authorized GET and decodes the JSON body, classifying
// non-2xx responses into the upstream error taxonomy.
func (c *Client) getJSON(ctx context.Context, reqURL string, timeout time.Duration, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.ErrThrottled
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
