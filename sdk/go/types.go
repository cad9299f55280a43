package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"readquest/core"
	"readquest/engine"
	"readquest/leaderboard"
	"readquest/rules"
)

// Response payloads share the server's JSON surface.
type (
	NewBook           = engine.NewBook
	BookAdded         = engine.BookAdded
	ProgressUpdated   = engine.ProgressUpdated
	ProgressCorrected = engine.ProgressCorrected
	SkillPath         = engine.SkillPath
	LeaderboardEntry  = leaderboard.Entry
	Rules             = rules.Tables
)

// Profile is a reader profile plus the exp required for the next level.
type Profile struct {
	core.Profile
	NextLevelExp int64 `json:"next_level_exp"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string         `json:"status"`
	Checks map[string]any `json:"checks"`
	Rules  string         `json:"rules"`
}

// APIError is a non-2xx response. Code mirrors the server's error code, such as
// "book_not_found" or "progress_decrease".
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")

// ErrEmptyBookID is returned when book id is empty.
var ErrEmptyBookID = errors.New("book id is required")
