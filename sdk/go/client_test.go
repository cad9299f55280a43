package sdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readquest/api/httpapi"
	"readquest/core"
	"readquest/engine"
	"readquest/gamify"
	"readquest/realtime"
)

func newTestServer(t *testing.T, opts httpapi.Options) (*httptest.Server, *realtime.Hub) {
	t.Helper()
	hub := realtime.NewHub()
	svc := gamify.New(gamify.WithDispatchMode(engine.DispatchSync), gamify.WithRealtime(hub))
	t.Cleanup(svc.Close)
	opts.PathPrefix = "/api"
	srv := httptest.NewServer(httpapi.NewMux(svc, hub, opts))
	t.Cleanup(srv.Close)
	return srv, hub
}

func TestClient_ReadingFlow(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Options{APIKeys: []string{"k1"}})

	client, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	require.NoError(t, err)
	ctx := context.Background()

	added, err := client.AddBook(ctx, "alice", NewBook{Title: "Gödel, Escher, Bach", Category: core.CategoryLogic, IsNew: true})
	require.NoError(t, err)
	assert.Equal(t, 12, added.Reward.Points)
	require.NotEmpty(t, added.Book.ID)

	updated, err := client.UpdateProgress(ctx, "alice", added.Book.ID, 100)
	require.NoError(t, err)
	assert.True(t, updated.Changed)
	assert.Equal(t, int64(125), updated.Reward.ExpGain)

	profile, err := client.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.CompletedCount)
	assert.Equal(t, int64(237), profile.NextLevelExp)

	corrected, err := client.CorrectProgress(ctx, "alice", added.Book.ID, 50)
	require.NoError(t, err)
	assert.True(t, corrected.Changed)
	assert.True(t, corrected.Unfinished)

	refinished, err := client.UpdateProgress(ctx, "alice", added.Book.ID, 100)
	require.NoError(t, err)
	assert.True(t, refinished.Restored)
	assert.Zero(t, refinished.Reward.ExpGain)
	assert.True(t, refinished.Book.Finished)
	assert.Equal(t, 100, refinished.Book.MaxProgress)

	board, err := client.Leaderboard(ctx, 5)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, core.UserID("alice"), board[0].User)

	tree, err := client.SkillTree(ctx, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, tree)

	tables, err := client.Rules(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tables.Version)

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestClient_APIErrors(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.UpdateProgress(ctx, "alice", "missing", 10)
	require.Error(t, err)
	assert.True(t, IsCode(err, "book_not_found"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	added, err := client.AddBook(ctx, "alice", NewBook{Title: "Dune", Category: core.CategoryLiterature})
	require.NoError(t, err)
	_, err = client.UpdateProgress(ctx, "alice", added.Book.ID, 60)
	require.NoError(t, err)
	_, err = client.UpdateProgress(ctx, "alice", added.Book.ID, 30)
	assert.True(t, IsCode(err, "progress_decrease"))

	_, err = client.GetProfile(ctx, " ")
	assert.ErrorIs(t, err, ErrEmptyUserID)
	_, err = client.CorrectProgress(ctx, "alice", "", 0)
	assert.ErrorIs(t, err, ErrEmptyBookID)
}

func TestClient_Unauthorized(t *testing.T) {
	srv, _ := newTestServer(t, httpapi.Options{APIKeys: []string{"k1"}})
	client, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)

	_, err = client.GetProfile(context.Background(), "alice")
	assert.True(t, IsCode(err, "unauthorized"))
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv, hub := newTestServer(t, httpapi.Options{})
	client, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx, "alice")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	_, err = client.AddBook(ctx, "bob", NewBook{Title: "Emma", Category: core.CategoryLiterature})
	require.NoError(t, err)
	_, err = client.AddBook(ctx, "alice", NewBook{Title: "Dune", Category: core.CategoryLiterature})
	require.NoError(t, err)

	select {
	case evt := <-events:
		assert.Equal(t, core.EventBookAdded, evt.Type)
		assert.Equal(t, core.UserID("alice"), evt.UserID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestDeriveWSURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/api/ws", deriveWSURL("http://localhost:8080/api"))
	assert.Equal(t, "wss://example.com/ws", deriveWSURL("https://example.com"))
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	assert.Error(t, err)
}
