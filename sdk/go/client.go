package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"readquest/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the ReadQuest HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// Health calls /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &hs)
	return hs, err
}

// Rules fetches the reward tables the server is running with.
func (c *Client) Rules(ctx context.Context) (Rules, error) {
	var t Rules
	err := c.do(ctx, http.MethodGet, "/rules", nil, &t)
	return t, err
}

// Leaderboard returns the top n readers by completed books. n <= 0 uses the
// server default.
func (c *Client) Leaderboard(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	path := "/leaderboard"
	if n > 0 {
		path += "?n=" + strconv.Itoa(n)
	}
	var body struct {
		Entries []LeaderboardEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	return body.Entries, nil
}

// GetProfile fetches a reader's profile. Unknown readers come back fresh at level 1.
func (c *Client) GetProfile(ctx context.Context, userID string) (Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return Profile{}, ErrEmptyUserID
	}
	var p Profile
	err := c.do(ctx, http.MethodGet, userPath(userID, ""), nil, &p)
	return p, err
}

// SkillTree fetches every skill path with the reader's unlock state.
func (c *Client) SkillTree(ctx context.Context, userID string) ([]SkillPath, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrEmptyUserID
	}
	var body struct {
		Paths []SkillPath `json:"paths"`
	}
	if err := c.do(ctx, http.MethodGet, userPath(userID, "/skills"), nil, &body); err != nil {
		return nil, err
	}
	return body.Paths, nil
}

// AddBook puts a book on the reader's shelf and returns the entry reward.
func (c *Client) AddBook(ctx context.Context, userID string, book NewBook) (BookAdded, error) {
	if strings.TrimSpace(userID) == "" {
		return BookAdded{}, ErrEmptyUserID
	}
	var out BookAdded
	err := c.do(ctx, http.MethodPost, userPath(userID, "/books"), book, &out)
	return out, err
}

// UpdateProgress moves a book forward to progress percent.
func (c *Client) UpdateProgress(ctx context.Context, userID, bookID string, progress int) (ProgressUpdated, error) {
	path, err := bookPath(userID, bookID, "/progress")
	if err != nil {
		return ProgressUpdated{}, err
	}
	var out ProgressUpdated
	err = c.do(ctx, http.MethodPost, path, progressBody{Progress: progress}, &out)
	return out, err
}

// CorrectProgress lowers a book's progress without touching earned rewards.
func (c *Client) CorrectProgress(ctx context.Context, userID, bookID string, progress int) (ProgressCorrected, error) {
	path, err := bookPath(userID, bookID, "/correction")
	if err != nil {
		return ProgressCorrected{}, err
	}
	var out ProgressCorrected
	err = c.do(ctx, http.MethodPost, path, progressBody{Progress: progress}, &out)
	return out, err
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// A non-empty userID limits the stream to that reader.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, userID string) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if userID = strings.TrimSpace(userID); userID != "" {
		target += "?user=" + url.QueryEscape(userID)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

type progressBody struct {
	Progress int `json:"progress"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, out)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func userPath(userID, suffix string) string {
	return "/users/" + url.PathEscape(userID) + suffix
}

func bookPath(userID, bookID, suffix string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrEmptyUserID
	}
	if strings.TrimSpace(bookID) == "" {
		return "", ErrEmptyBookID
	}
	return userPath(userID, "/books/"+url.PathEscape(bookID)+suffix), nil
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
