package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readquest/core"
)

var base = time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC) // Wednesday

func seed(m Hook) {
	evs := []core.Event{
		{Type: core.EventBookAdded, UserID: "alice", Category: core.CategoryLogic, Exp: 12, Time: base},
		{Type: core.EventProgressRewarded, UserID: "alice", Category: core.CategoryLogic, Exp: 125, Time: base},
		{Type: core.EventBookFinished, UserID: "alice", Category: core.CategoryLogic, Time: base},
		{Type: core.EventLevelUp, UserID: "alice", Level: 2, Time: base},
		{Type: core.EventSkillUnlocked, UserID: "alice", Skill: &core.Skill{ID: "logic_first_principles"}, Time: base},
		{Type: core.EventAchievementUnlocked, UserID: "alice", Achievement: &core.Achievement{Name: "first_book"}, Time: base},
		{Type: core.EventBookAdded, UserID: "bob", Category: core.CategoryHistory, Exp: 8, Time: base.AddDate(0, 0, 1)},
		{Type: core.EventBookFinished, UserID: "bob", Category: core.CategoryHistory, Time: base.AddDate(0, 0, 1)},
		{Type: core.EventBookFinished, UserID: "bob", Category: core.CategoryLogic, Time: base.AddDate(0, 0, 2)},
		{Type: core.EventProgressCorrected, UserID: "bob", Category: core.CategoryLogic, Time: base.AddDate(0, 0, 2)},
	}
	for _, ev := range evs {
		m.OnEvent(ev)
	}
}

func TestReadingMetrics_OnEvent(t *testing.T) {
	m := NewReadingMetrics()
	m.now = func() time.Time { return base }
	seed(m)

	day := "2024-01-03"
	assert.Equal(t, 1, m.GetDailyActiveUsers(day))
	assert.Equal(t, int64(1), m.GetBooksAddedByDay(day))
	assert.Equal(t, int64(137), m.GetExpAwardedByDay(day))
	assert.Equal(t, int64(1), m.GetBooksFinishedByDay(day))
	assert.Equal(t, int64(1), m.GetLevelsReachedByDay(day))
	assert.Equal(t, int64(1), m.GetSkillsUnlockedByDay(day))
	assert.Equal(t, int64(1), m.GetAchievementsUnlockedByDay(day))
	assert.Equal(t, int64(1), m.GetSkillHolders("logic_first_principles"))
	assert.Equal(t, int64(1), m.GetCorrectionsByDay("2024-01-05"))

	assert.Equal(t, 2, m.GetWeeklyActiveUsers("2024-W01"))
	assert.Equal(t, 2, m.GetMonthlyActiveUsers("2024-01"))
	assert.Equal(t, map[int]int{2: 1}, m.GetLevelDistribution())

	exp, finished, levels := m.GetRealtimeStats()
	assert.Equal(t, int64(145), exp)
	assert.Equal(t, int64(3), finished)
	assert.Equal(t, int64(1), levels)

	assert.Equal(t, []CategoryCount{
		{Category: core.CategoryLogic, Finished: 2},
		{Category: core.CategoryHistory, Finished: 1},
	}, m.TopCategories(5))
	assert.Len(t, m.TopCategories(1), 1)
}

func TestDAU(t *testing.T) {
	d := NewDAU()
	d.OnEvent(core.Event{UserID: "a", Time: base})
	d.OnEvent(core.Event{UserID: "a", Time: base})
	d.OnEvent(core.Event{UserID: "b", Time: base})
	assert.Equal(t, 2, d.Count("2024-01-03"))
	assert.Equal(t, 0, d.Count("2024-01-04"))
}

func TestBridgeHook(t *testing.T) {
	a, b := NewDAU(), NewDAU()
	NewBridge(a, nil, b).OnEvent(core.Event{UserID: "u", Time: base})
	assert.Equal(t, 1, a.Count("2024-01-03"))
	assert.Equal(t, 1, b.Count("2024-01-03"))
}

type recordingExporter struct {
	got     []*AggregatedData
	flushes int
	err     error
}

func (r *recordingExporter) Export(_ context.Context, d *AggregatedData) error {
	r.got = append(r.got, d)
	return r.err
}
func (r *recordingExporter) Flush(context.Context) error { r.flushes++; return nil }
func (r *recordingExporter) Close() error                { return nil }

func TestAggregationEngine(t *testing.T) {
	m := NewReadingMetrics()
	seed(m)

	rec := &recordingExporter{}
	ae := NewAggregationEngine(m, time.Hour).WithExporter(rec)
	ae.now = func() time.Time { return base.AddDate(0, 0, 2) } // Friday

	require.NoError(t, ae.AggregateNow(context.Background()))
	require.Len(t, rec.got, 3)
	assert.Equal(t, 1, rec.flushes)

	daily, ok := ae.GetAggregatedData(PeriodDaily, "2024-01-05")
	require.True(t, ok)
	assert.Equal(t, int64(1), daily.BooksFinished)
	assert.Equal(t, int64(1), daily.Corrections)

	weekly, ok := ae.GetAggregatedData(PeriodWeekly, "2024-W01")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), weekly.StartTime)
	assert.Equal(t, 2, weekly.ActiveUsers)
	assert.Equal(t, int64(2), weekly.BooksAdded)
	assert.Equal(t, int64(3), weekly.BooksFinished)
	assert.Equal(t, int64(145), weekly.ExpAwarded)

	monthly, ok := ae.GetAggregatedData(PeriodMonthly, "2024-01")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), monthly.EndTime)
	assert.Equal(t, int64(3), monthly.BooksFinished)
	assert.Equal(t, int64(1), monthly.SkillsUnlocked)

	_, ok = ae.GetAggregatedData("yearly", "2024")
	assert.False(t, ok)
}

func TestAggregationEngineWeekStartsMonday(t *testing.T) {
	ae := NewAggregationEngine(NewReadingMetrics(), time.Hour)
	sunday := time.Date(2024, 1, 7, 23, 0, 0, 0, time.UTC)
	weekly := ae.aggregateWeekly(sunday)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), weekly.StartTime)
	assert.Equal(t, "2024-W01", weekly.Key)
}

func TestAggregationEngineExportError(t *testing.T) {
	rec := &recordingExporter{err: errors.New("boom")}
	ae := NewAggregationEngine(NewReadingMetrics(), time.Hour).WithExporter(rec)
	err := ae.AggregateNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export daily aggregate: boom")
}

func TestExportToFile(t *testing.T) {
	m := NewReadingMetrics()
	seed(m)
	ae := NewAggregationEngine(m, time.Hour)
	ae.now = func() time.Time { return base }
	require.NoError(t, ae.AggregateNow(context.Background()))

	path := filepath.Join(t.TempDir(), "daily.json")
	require.NoError(t, ae.ExportToFile(PeriodDaily, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []AggregatedData
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out, 1)
	assert.Equal(t, "2024-01-03", out[0].Key)
}

func TestHTTPExporterBatches(t *testing.T) {
	var batches [][]AggregatedData
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		var batch []AggregatedData
		_ = json.Unmarshal(body, &batch)
		batches = append(batches, batch)
	}))
	defer srv.Close()

	e := NewHTTPExporter(srv.URL, "secret", 2)
	ctx := context.Background()
	require.NoError(t, e.Export(ctx, &AggregatedData{Key: "a"}))
	assert.Empty(t, batches)
	require.NoError(t, e.Export(ctx, &AggregatedData{Key: "b"}))
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, "Bearer secret", auth)

	require.NoError(t, e.Export(ctx, &AggregatedData{Key: "c"}))
	require.NoError(t, e.Close())
	require.Len(t, batches, 2)
	assert.Equal(t, "c", batches[1][0].Key)
}

func TestHTTPExporterReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewHTTPExporter(srv.URL, "", 1)
	err := e.Export(context.Background(), &AggregatedData{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestMultiExporterJoinsErrors(t *testing.T) {
	ok := &recordingExporter{}
	bad := &recordingExporter{err: errors.New("down")}
	m := NewMultiExporter(ok, bad, NewLogExporter(nil))

	err := m.Export(context.Background(), &AggregatedData{Key: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Len(t, ok.got, 1)
	assert.NoError(t, m.Flush(context.Background()))
	assert.NoError(t, m.Close())
}

func BenchmarkReadingMetrics(b *testing.B) {
	m := NewReadingMetrics()
	ev := core.Event{Type: core.EventProgressRewarded, UserID: "u", Exp: 10, Time: base}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.OnEvent(ev)
	}
}
