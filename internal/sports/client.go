package sports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrGameNotFound = errors.New("game not found")

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sports api: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the upstream live score API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type gamesResp struct {
	Games []Game `json:"games"`
}

func (c *Client) ListGames(ctx context.Context, date time.Time) ([]Game, error) {
	q := url.Values{}
	q.Set("date", date.UTC().Format(time.DateOnly))

	var resp gamesResp
	if err := c.get(ctx, "/v1/games?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Games == nil {
		resp.Games = []Game{}
	}
	return resp.Games, nil
}

func (c *Client) GetGame(ctx context.Context, id string) (Game, error) {
	var g Game
	err := c.get(ctx, "/v1/games/"+url.PathEscape(id), &g)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return Game{}, ErrGameNotFound
	}
	return g, err
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sports api: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &APIError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return fmt.Errorf("sports api: decode: %w", err)
	}
	return nil
}
