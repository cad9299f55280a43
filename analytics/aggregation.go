package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"readquest/core"
)

// AggregationPeriod represents different time periods for aggregation
type AggregationPeriod string

const (
	PeriodDaily   AggregationPeriod = "daily"
	PeriodWeekly  AggregationPeriod = "weekly"
	PeriodMonthly AggregationPeriod = "monthly"
)

// AggregatedData is a reading activity rollup for one period.
type AggregatedData struct {
	Period    AggregationPeriod `json:"period"`
	Key       string            `json:"key"` // "2024-01-01", "2024-W01" or "2024-01"
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`

	ActiveUsers int `json:"active_users"`

	BooksAdded    int64 `json:"books_added"`
	BooksFinished int64 `json:"books_finished"`
	Corrections   int64 `json:"corrections"`
	ExpAwarded    int64 `json:"exp_awarded"`

	LevelsReached        int64 `json:"levels_reached"`
	SkillsUnlocked       int64 `json:"skills_unlocked"`
	AchievementsUnlocked int64 `json:"achievements_unlocked"`

	CreatedAt time.Time `json:"created_at"`
}

// AggregationEngine rolls metrics up into daily, weekly and monthly snapshots
// and hands them to an optional exporter.
type AggregationEngine struct {
	mu sync.RWMutex

	metrics  *ReadingMetrics
	exporter Exporter
	logger   *slog.Logger

	dailyAggregations   map[string]*AggregatedData
	weeklyAggregations  map[string]*AggregatedData
	monthlyAggregations map[string]*AggregatedData

	aggregationInterval time.Duration
	lastAggregation     time.Time
	now                 func() time.Time
}

func NewAggregationEngine(metrics *ReadingMetrics, aggregationInterval time.Duration) *AggregationEngine {
	return &AggregationEngine{
		metrics:             metrics,
		logger:              slog.Default(),
		dailyAggregations:   make(map[string]*AggregatedData),
		weeklyAggregations:  make(map[string]*AggregatedData),
		monthlyAggregations: make(map[string]*AggregatedData),
		aggregationInterval: aggregationInterval,
		lastAggregation:     time.Now(),
		now:                 time.Now,
	}
}

// WithExporter sets the exporter receiving every new snapshot.
func (ae *AggregationEngine) WithExporter(e Exporter) *AggregationEngine {
	ae.exporter = e
	return ae
}

// WithLogger sets the logger for background aggregation failures.
func (ae *AggregationEngine) WithLogger(l *slog.Logger) *AggregationEngine {
	if l != nil {
		ae.logger = l
	}
	return ae
}

// OnEvent forwards events to the underlying metrics.
func (ae *AggregationEngine) OnEvent(e core.Event) {
	ae.metrics.OnEvent(e)
}

// AggregateNow forces an immediate aggregation of all periods.
func (ae *AggregationEngine) AggregateNow(ctx context.Context) error {
	ae.mu.Lock()
	now := ae.now().UTC()
	snapshots := []*AggregatedData{
		ae.aggregateDaily(now),
		ae.aggregateWeekly(now),
		ae.aggregateMonthly(now),
	}
	ae.lastAggregation = now
	ae.mu.Unlock()

	if ae.exporter == nil {
		return nil
	}
	for _, s := range snapshots {
		if err := ae.exporter.Export(ctx, s); err != nil {
			return fmt.Errorf("export %s aggregate: %w", s.Period, err)
		}
	}
	return ae.exporter.Flush(ctx)
}

func (ae *AggregationEngine) fillDays(data *AggregatedData, start time.Time, days int) {
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format(time.DateOnly)
		data.BooksAdded += ae.metrics.GetBooksAddedByDay(day)
		data.BooksFinished += ae.metrics.GetBooksFinishedByDay(day)
		data.Corrections += ae.metrics.GetCorrectionsByDay(day)
		data.ExpAwarded += ae.metrics.GetExpAwardedByDay(day)
		data.LevelsReached += ae.metrics.GetLevelsReachedByDay(day)
		data.SkillsUnlocked += ae.metrics.GetSkillsUnlockedByDay(day)
		data.AchievementsUnlocked += ae.metrics.GetAchievementsUnlockedByDay(day)
	}
}

func (ae *AggregationEngine) aggregateDaily(now time.Time) *AggregatedData {
	now = now.UTC()
	key := dayKey(now)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	data := &AggregatedData{
		Period:      PeriodDaily,
		Key:         key,
		StartTime:   start,
		EndTime:     start.Add(24 * time.Hour),
		CreatedAt:   now,
		ActiveUsers: ae.metrics.GetDailyActiveUsers(key),
	}
	ae.fillDays(data, start, 1)
	ae.dailyAggregations[key] = data
	return data
}

func (ae *AggregationEngine) aggregateWeekly(now time.Time) *AggregatedData {
	now = now.UTC()
	key := weekKey(now)

	// ISO weeks start on Monday
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	start := time.Date(now.Year(), now.Month(), now.Day()-daysSinceMonday, 0, 0, 0, 0, time.UTC)

	data := &AggregatedData{
		Period:      PeriodWeekly,
		Key:         key,
		StartTime:   start,
		EndTime:     start.AddDate(0, 0, 7),
		CreatedAt:   now,
		ActiveUsers: ae.metrics.GetWeeklyActiveUsers(key),
	}
	ae.fillDays(data, start, 7)
	ae.weeklyAggregations[key] = data
	return data
}

func (ae *AggregationEngine) aggregateMonthly(now time.Time) *AggregatedData {
	now = now.UTC()
	key := monthKey(now)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	data := &AggregatedData{
		Period:      PeriodMonthly,
		Key:         key,
		StartTime:   start,
		EndTime:     end,
		CreatedAt:   now,
		ActiveUsers: ae.metrics.GetMonthlyActiveUsers(key),
	}
	ae.fillDays(data, start, int(end.Sub(start).Hours()/24))
	ae.monthlyAggregations[key] = data
	return data
}

func (ae *AggregationEngine) period(p AggregationPeriod) map[string]*AggregatedData {
	switch p {
	case PeriodDaily:
		return ae.dailyAggregations
	case PeriodWeekly:
		return ae.weeklyAggregations
	case PeriodMonthly:
		return ae.monthlyAggregations
	default:
		return nil
	}
}

// GetAggregatedData returns aggregated data for a specific period and key.
func (ae *AggregationEngine) GetAggregatedData(period AggregationPeriod, key string) (*AggregatedData, bool) {
	ae.mu.RLock()
	defer ae.mu.RUnlock()
	data, ok := ae.period(period)[key]
	return data, ok
}

// GetAllAggregatedData returns every snapshot of period ordered by key.
func (ae *AggregationEngine) GetAllAggregatedData(period AggregationPeriod) []*AggregatedData {
	ae.mu.RLock()
	defer ae.mu.RUnlock()
	aggregations := ae.period(period)
	result := make([]*AggregatedData, 0, len(aggregations))
	for _, data := range aggregations {
		result = append(result, data)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// Start aggregates periodically until ctx is done.
func (ae *AggregationEngine) Start(ctx context.Context) {
	ticker := time.NewTicker(ae.aggregationInterval)
	defer ticker.Stop()

	if err := ae.AggregateNow(ctx); err != nil {
		ae.logger.Warn("initial aggregation failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ae.AggregateNow(ctx); err != nil {
				ae.logger.Warn("periodic aggregation failed", "error", err)
			}
		}
	}
}

// ExportData exports aggregated data to JSON format.
func (ae *AggregationEngine) ExportData(period AggregationPeriod) ([]byte, error) {
	return json.MarshalIndent(ae.GetAllAggregatedData(period), "", "  ")
}

// ExportToFile writes the JSON export of period to filename.
func (ae *AggregationEngine) ExportToFile(period AggregationPeriod, filename string) error {
	data, err := ae.ExportData(period)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}
