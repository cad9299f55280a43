package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "readquest/adapters/memory"
	"readquest/engine"
	"readquest/leaderboard"
	"readquest/progression"
)

func newTestService(t *testing.T) *engine.Service {
	t.Helper()
	bus := engine.NewEventBus(engine.DispatchSync)
	svc := engine.NewService(mem.New(), bus, progression.Default(), engine.WithBoard(leaderboard.NewSkipList()))
	t.Cleanup(svc.Close)
	return svc
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAddBookAndFinish(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPost, "/api/users/alice/books", `{"title":"Gödel, Escher, Bach","category":"logic","is_new":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode(t, rec)
	reward := added["reward"].(map[string]any)
	assert.Equal(t, float64(12), reward["points"])
	book := added["book"].(map[string]any)
	id := book["id"].(string)
	require.NotEmpty(t, id)

	rec = do(t, handler, http.MethodPost, "/api/users/alice/books/"+id+"/progress", `{"progress":100}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec)
	assert.Equal(t, true, updated["changed"])
	assert.Equal(t, float64(125), updated["reward"].(map[string]any)["exp_gain"])

	rec = do(t, handler, http.MethodGet, "/api/users/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode(t, rec)
	assert.Equal(t, float64(1), profile["completed_count"])
	assert.Equal(t, float64(237), profile["next_level_exp"])

	rec = do(t, handler, http.MethodGet, "/api/leaderboard?n=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode(t, rec)["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].(map[string]any)["user"])
}

func TestProgressErrors(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{})

	rec := do(t, handler, http.MethodPost, "/users/bob/books/missing/progress", `{"progress":10}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "book_not_found", decode(t, rec)["code"])

	rec = do(t, handler, http.MethodPost, "/users/bob/books", `{"title":"Walden"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["book"].(map[string]any)["id"].(string)

	rec = do(t, handler, http.MethodPost, "/users/bob/books/"+id+"/progress", `{"progress":101}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, handler, http.MethodPost, "/users/bob/books/"+id+"/progress", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_progress", decode(t, rec)["code"])

	rec = do(t, handler, http.MethodPost, "/users/bob/books/"+id+"/progress", `{"progress":60}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, handler, http.MethodPost, "/users/bob/books/"+id+"/progress", `{"progress":30}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "progress_decrease", decode(t, rec)["code"])

	rec = do(t, handler, http.MethodPost, "/users/bob/books/"+id+"/correction", `{"progress":90}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, handler, http.MethodPost, "/users/bob/books/"+id+"/correction", `{"progress":30}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(30), decode(t, rec)["book"].(map[string]any)["progress"])
}

func TestAddBookValidation(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodPost, "/api/users/alice/books", `{"title":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_title", decode(t, rec)["code"])

	rec = do(t, handler, http.MethodPost, "/api/users/alice/books", `{"title":"x","category":"cooking"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_category", decode(t, rec)["code"])

	rec = do(t, handler, http.MethodPost, "/api/users/alice/books", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, handler, http.MethodPost, "/api/users/%20/books", `{"title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUserUnknown(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodGet, "/api/users/unknown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode(t, rec)
	assert.Equal(t, float64(1), profile["stats"].(map[string]any)["level"])
	assert.Equal(t, float64(100), profile["next_level_exp"])
}

func TestSkillsRulesAndHealth(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{PathPrefix: "/api"})

	rec := do(t, handler, http.MethodGet, "/api/users/alice/skills", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["paths"])

	rec = do(t, handler, http.MethodGet, "/api/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024.3", decode(t, rec)["version"])

	rec = do(t, handler, http.MethodGet, "/api/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = do(t, handler, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, handler, http.MethodGet, "/api/leaderboard?n=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{
		PathPrefix:      "/api",
		APIKeys:         []string{"secret"},
		AllowCORSOrigin: "*",
	})

	rec := do(t, handler, http.MethodGet, "/api/users/alice", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}

	// health stays public
	rec = do(t, handler, http.MethodGet, "/api/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected public health, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	handler := NewMux(newTestService(t), nil, Options{
		PathPrefix:       "/api",
		APIKeys:          []string{"k"},
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	req1 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req1.Header.Set("X-API-Key", "k")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected 200 first request, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req2.Header.Set("X-API-Key", "k")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec2.Code)
	}
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l := newRateLimiter(1, 2)
	l.cleanupEvery = time.Minute
	l.now = func() time.Time { return clock }

	for i := 0; i < 100; i++ {
		assert.True(t, l.allow(fmt.Sprintf("10.0.0.%d", i)))
	}
	assert.True(t, l.allow("busy"))
	assert.True(t, l.allow("busy"))
	assert.False(t, l.allow("busy"))
	assert.Len(t, l.b, 101)

	// a full refill takes two minutes, so nothing is idle enough yet
	clock = clock.Add(90 * time.Second)
	assert.True(t, l.allow("busy"))
	assert.Len(t, l.b, 101)

	clock = clock.Add(60 * time.Second)
	assert.True(t, l.allow("busy"))
	assert.Len(t, l.b, 1)
	assert.Contains(t, l.b, "busy")

	// an evicted client starts again with a full bucket
	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
}
