package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	wsadapter "readquest/adapters/websocket"
	"readquest/core"
	"readquest/engine"
	"readquest/leaderboard"
	"readquest/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// RateLimitCleanup is how often idle client buckets are swept. Defaults to 5 minutes.
	RateLimitCleanup time.Duration
	// Logger receives one line per request. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultLeaderboardSize is used when ?n= is absent.
const DefaultLeaderboardSize = 10

// MaxLeaderboardSize caps ?n=.
const MaxLeaderboardSize = 100

// NewMux builds an http.Handler exposing the reading REST API and WebSocket stream.
// Routes:
//   - GET  {prefix}/healthz
//   - GET  {prefix}/rules
//   - GET  {prefix}/leaderboard?n=10
//   - GET  {prefix}/users/{id}
//   - GET  {prefix}/users/{id}/skills
//   - POST {prefix}/users/{id}/books                      {"title","category","is_new"}
//   - POST {prefix}/users/{id}/books/{book}/progress      {"progress":80}
//   - POST {prefix}/users/{id}/books/{book}/correction    {"progress":40}
//   - WS   {prefix}/ws?user={id}
func NewMux(svc *engine.Service, hub *realtime.Hub, opts Options) http.Handler {
	h := &handlers{svc: svc}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if opts.AllowCORSOrigin != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{opts.AllowCORSOrigin},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	routes := func(r chi.Router) {
		r.Get("/healthz", h.health)

		r.Group(func(r chi.Router) {
			if len(opts.APIKeys) > 0 {
				r.Use(apiKeyAuth(opts.APIKeys))
			}
			if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
				r.Use(rateLimit(opts.RateLimitRPM, opts.RateLimitBurst, opts.RateLimitCleanup))
			}

			r.Get("/rules", h.rules)
			r.Get("/leaderboard", h.leaderboard)
			r.Route("/users/{id}", func(r chi.Router) {
				r.Get("/", h.getProfile)
				r.Get("/skills", h.skillTree)
				r.Post("/books", h.addBook)
				r.Post("/books/{book}/progress", h.updateProgress)
				r.Post("/books/{book}/correction", h.correctProgress)
			})
			if hub != nil {
				r.Handle("/ws", wsadapter.Handler(hub))
			}
		})
	}

	if prefix := strings.TrimSuffix(opts.PathPrefix, "/"); prefix != "" {
		r.Route(prefix, routes)
	} else {
		routes(r)
	}
	return r
}

type handlers struct {
	svc *engine.Service
}

// health verifies storage by loading a placeholder profile; nothing is written.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{"storage": "ok"},
		"rules":  h.svc.Rules().Version,
	}
	if _, err := h.svc.GetProfile(r.Context(), "healthcheck"); err != nil {
		status["status"] = "unhealthy"
		status["checks"] = map[string]any{"storage": "failed"}
		writeJSONStatus(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, status)
}

func (h *handlers) rules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.svc.Rules())
}

func (h *handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	n := DefaultLeaderboardSize
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_n", "n must be a positive integer", nil)
			return
		}
		n = min(v, MaxLeaderboardSize)
	}
	entries := h.svc.Leaderboard(n)
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	writeJSON(w, map[string]any{"entries": entries})
}

// profileResponse adds the exp needed for the next level to the profile.
type profileResponse struct {
	core.Profile
	NextLevelExp int64 `json:"next_level_exp"`
}

func (h *handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	p, err := h.svc.GetProfile(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, profileResponse{Profile: p, NextLevelExp: h.svc.Engine().RequiredExpForLevel(p.Stats.Level)})
}

func (h *handlers) skillTree(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	tree, err := h.svc.SkillTree(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"paths": tree})
}

func (h *handlers) addBook(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	var req engine.NewBook
	if !decodeBody(w, r, &req) {
		return
	}
	if err := core.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_title", err.Error(), nil)
		return
	}
	out, err := h.svc.AddBook(r.Context(), user, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, out)
}

type progressRequest struct {
	Progress *int `json:"progress"`
}

func (h *handlers) updateProgress(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	progress, ok := progressBody(w, r)
	if !ok {
		return
	}
	out, err := h.svc.UpdateProgress(r.Context(), user, chi.URLParam(r, "book"), progress)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, out)
}

func (h *handlers) correctProgress(w http.ResponseWriter, r *http.Request) {
	user, ok := userParam(w, r)
	if !ok {
		return
	}
	progress, ok := progressBody(w, r)
	if !ok {
		return
	}
	out, err := h.svc.CorrectProgress(r.Context(), user, chi.URLParam(r, "book"), progress)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, out)
}

// Helpers

func userParam(w http.ResponseWriter, r *http.Request) (core.UserID, bool) {
	user, err := core.NormalizeUserID(core.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
		return "", false
	}
	return user, true
}

const maxBodyBytes = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", err.Error())
		return false
	}
	return true
}

func progressBody(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req progressRequest
	if !decodeBody(w, r, &req) {
		return 0, false
	}
	if req.Progress == nil {
		writeError(w, http.StatusBadRequest, "invalid_progress", "progress is required", nil)
		return 0, false
	}
	return *req.Progress, true
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSONStatus(w, status, apiError{Code: code, Message: msg, Details: details})
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "book_not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrProgressDecrease):
		writeError(w, http.StatusConflict, "progress_decrease", err.Error(), nil)
	case errors.Is(err, engine.ErrCorrectionIncrease):
		writeError(w, http.StatusConflict, "correction_increase", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidProgress):
		writeError(w, http.StatusBadRequest, "invalid_progress", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, "invalid_category", err.Error(), nil)
	case errors.Is(err, core.ErrVersionConflict):
		writeError(w, http.StatusConflict, "version_conflict", "profile was modified concurrently, retry", nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}

// requestLogger logs HTTP requests using slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// apiKeyAuth enforces a shared API key list.
func apiKeyAuth(apiKeys []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
				return
			}
			if _, ok := allowed[key]; !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit applies a token-bucket limiter per client key.
func rateLimit(rpm, burst int, cleanup time.Duration) func(http.Handler) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	if cleanup > 0 {
		limiter.cleanupEvery = cleanup
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientKey(r)) {
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	// browsers cannot set headers on websocket upgrades
	return r.URL.Query().Get("api_key")
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
	now   func() time.Time

	cleanupEvery time.Duration
	lastSweep    time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// defaultRateLimitCleanup matches the server config default.
const defaultRateLimitCleanup = 5 * time.Minute

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:          float64(rpm),
		burst:        float64(burst),
		b:            make(map[string]*bucket),
		now:          time.Now,
		cleanupEvery: defaultRateLimitCleanup,
	}
}

// sweep drops buckets idle long enough to refill completely; such a bucket is
// equivalent to a new one.
func (l *rateLimiter) sweep(now time.Time) {
	if l.lastSweep.IsZero() {
		l.lastSweep = now
		return
	}
	if now.Sub(l.lastSweep) < l.cleanupEvery {
		return
	}
	l.lastSweep = now
	refill := time.Duration(l.burst / l.rpm * float64(time.Minute))
	for key, b := range l.b {
		if now.Sub(b.last) >= refill {
			delete(l.b, key)
		}
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
