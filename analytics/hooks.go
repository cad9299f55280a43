package analytics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"readquest/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// DAU tracks daily active readers.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[core.UserID]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[core.UserID]struct{}{}} }

func (d *DAU) OnEvent(e core.Event) {
	day := dayKey(e.Time)
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[day]
	if m == nil {
		m = map[core.UserID]struct{}{}
		d.days[day] = m
	}
	m[e.UserID] = struct{}{}
}

func (d *DAU) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// ReadingMetrics counts reading activity per day, category and unlock.
type ReadingMetrics struct {
	mu sync.RWMutex

	dailyActiveUsers   map[string]map[core.UserID]struct{}
	weeklyActiveUsers  map[string]map[core.UserID]struct{}
	monthlyActiveUsers map[string]map[core.UserID]struct{}

	booksAddedByDay      map[string]int64
	booksAddedByCategory map[core.Category]int64
	entryExpByDay        map[string]int64

	progressExpByDay      map[string]int64
	corrections           map[string]int64
	booksFinishedByDay    map[string]int64
	booksFinishedCategory map[core.Category]int64

	levelsReachedByDay map[string]int64
	currentLevel       map[core.UserID]int

	skillsUnlockedByDay        map[string]int64
	skillsUnlocked             map[string]int64
	achievementsUnlockedByDay  map[string]int64
	achievementsUnlockedByName map[string]int64

	// last 24 hours
	realtime struct {
		expAwarded    int64
		booksFinished int64
		levelsReached int64
		lastReset     time.Time
	}
	now func() time.Time
}

func NewReadingMetrics() *ReadingMetrics {
	m := &ReadingMetrics{
		dailyActiveUsers:           make(map[string]map[core.UserID]struct{}),
		weeklyActiveUsers:          make(map[string]map[core.UserID]struct{}),
		monthlyActiveUsers:         make(map[string]map[core.UserID]struct{}),
		booksAddedByDay:            make(map[string]int64),
		booksAddedByCategory:       make(map[core.Category]int64),
		entryExpByDay:              make(map[string]int64),
		progressExpByDay:           make(map[string]int64),
		corrections:                make(map[string]int64),
		booksFinishedByDay:         make(map[string]int64),
		booksFinishedCategory:      make(map[core.Category]int64),
		levelsReachedByDay:         make(map[string]int64),
		currentLevel:               make(map[core.UserID]int),
		skillsUnlockedByDay:        make(map[string]int64),
		skillsUnlocked:             make(map[string]int64),
		achievementsUnlockedByDay:  make(map[string]int64),
		achievementsUnlockedByName: make(map[string]int64),
		now:                        time.Now,
	}
	m.realtime.lastReset = m.now()
	return m
}

func (m *ReadingMetrics) OnEvent(e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := dayKey(e.Time)
	m.trackUserEngagement(e.UserID, day, weekKey(e.Time), monthKey(e.Time))

	switch e.Type {
	case core.EventBookAdded:
		m.booksAddedByDay[day]++
		m.booksAddedByCategory[e.Category]++
		m.entryExpByDay[day] += e.Exp
		m.realtime.expAwarded += e.Exp
	case core.EventProgressRewarded:
		m.progressExpByDay[day] += e.Exp
		m.realtime.expAwarded += e.Exp
	case core.EventProgressCorrected:
		m.corrections[day]++
	case core.EventBookFinished:
		m.booksFinishedByDay[day]++
		m.booksFinishedCategory[e.Category]++
		m.realtime.booksFinished++
	case core.EventLevelUp:
		m.levelsReachedByDay[day]++
		if e.Level > m.currentLevel[e.UserID] {
			m.currentLevel[e.UserID] = e.Level
		}
		m.realtime.levelsReached++
	case core.EventSkillUnlocked:
		if e.Skill != nil {
			m.skillsUnlockedByDay[day]++
			m.skillsUnlocked[e.Skill.ID]++
		}
	case core.EventAchievementUnlocked:
		if e.Achievement != nil {
			m.achievementsUnlockedByDay[day]++
			m.achievementsUnlockedByName[e.Achievement.Name]++
		}
	}

	if m.now().Sub(m.realtime.lastReset) > 24*time.Hour {
		m.realtime.expAwarded = 0
		m.realtime.booksFinished = 0
		m.realtime.levelsReached = 0
		m.realtime.lastReset = m.now()
	}
}

func (m *ReadingMetrics) trackUserEngagement(user core.UserID, day, week, month string) {
	for key, set := range map[string]map[string]map[core.UserID]struct{}{
		day:   m.dailyActiveUsers,
		week:  m.weeklyActiveUsers,
		month: m.monthlyActiveUsers,
	} {
		if set[key] == nil {
			set[key] = make(map[core.UserID]struct{})
		}
		set[key][user] = struct{}{}
	}
}

// GetDailyActiveUsers returns the count of readers active on day.
func (m *ReadingMetrics) GetDailyActiveUsers(day string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dailyActiveUsers[day])
}

func (m *ReadingMetrics) GetWeeklyActiveUsers(week string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.weeklyActiveUsers[week])
}

func (m *ReadingMetrics) GetMonthlyActiveUsers(month string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.monthlyActiveUsers[month])
}

func (m *ReadingMetrics) GetBooksAddedByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.booksAddedByDay[day]
}

func (m *ReadingMetrics) GetBooksFinishedByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.booksFinishedByDay[day]
}

// GetExpAwardedByDay sums entry and progress exp for day.
func (m *ReadingMetrics) GetExpAwardedByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entryExpByDay[day] + m.progressExpByDay[day]
}

func (m *ReadingMetrics) GetCorrectionsByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.corrections[day]
}

func (m *ReadingMetrics) GetLevelsReachedByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.levelsReachedByDay[day]
}

func (m *ReadingMetrics) GetSkillsUnlockedByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skillsUnlockedByDay[day]
}

func (m *ReadingMetrics) GetAchievementsUnlockedByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.achievementsUnlockedByDay[day]
}

// GetSkillHolders returns how many readers unlocked skill id.
func (m *ReadingMetrics) GetSkillHolders(id string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skillsUnlocked[id]
}

// GetLevelDistribution maps level to the number of readers whose highest seen
// level it is.
func (m *ReadingMetrics) GetLevelDistribution() map[int]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[int]int{}
	for _, lvl := range m.currentLevel {
		out[lvl]++
	}
	return out
}

// GetRealtimeStats returns counters for the last 24 hours.
func (m *ReadingMetrics) GetRealtimeStats() (exp int64, finished int64, levels int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.realtime.expAwarded, m.realtime.booksFinished, m.realtime.levelsReached
}

// CategoryCount is a category with its finished-book total.
type CategoryCount struct {
	Category core.Category `json:"category"`
	Finished int64         `json:"finished"`
}

// TopCategories returns the categories with the most finished books.
func (m *ReadingMetrics) TopCategories(limit int) []CategoryCount {
	m.mu.RLock()
	out := make([]CategoryCount, 0, len(m.booksFinishedCategory))
	for c, n := range m.booksFinishedCategory {
		out = append(out, CategoryCount{Category: c, Finished: n})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Finished == out[j].Finished {
			return out[i].Category < out[j].Category
		}
		return out[i].Finished > out[j].Finished
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func dayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func weekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
