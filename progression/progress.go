package progression

import (
	"math"

	"readquest/core"
)

// ProgressInput is one forward progress update on a book.
// NextProgress must not be lower than PreviousProgress; lowering progress goes
// through ApplyProgressCorrection.
type ProgressInput struct {
	Stats                core.Stats
	Book                 core.Book
	PreviousProgress     int
	NextProgress         int
	CompletedCountBefore int
	CategoryCountsBefore map[core.Category]int
	FinishedTitlesBefore []string
}

// Reward is the breakdown of what a progress update earned.
type Reward struct {
	Delta                int                `json:"delta"`
	ExpGain              int64              `json:"exp_gain"`
	LevelUps             int                `json:"level_ups"`
	FinishedNow          bool               `json:"finished_now"`
	GrowthBase           int                `json:"growth_base"`
	BaseGain             int                `json:"base_gain"`
	AttributeGain        core.Attributes    `json:"attribute_gain"`
	UnlockedSkills       []core.Skill       `json:"unlocked_skills"`
	UnlockedAchievements []core.Achievement `json:"unlocked_achievements"`
}

// ProgressOutcome carries the updated state and the reward.
type ProgressOutcome struct {
	Stats               core.Stats            `json:"stats"`
	CompletedCountAfter int                   `json:"completed_count_after"`
	CategoryCountsAfter map[core.Category]int `json:"category_counts_after"`
	FinishedTitlesAfter []string              `json:"finished_titles_after"`
	NextLevelExp        int64                 `json:"next_level_exp"`
	Reward              Reward                `json:"reward"`
}

// ApplyProgressReward turns one progress update into exp, attribute growth and
// unlocks. Skill and achievement rules see the post-update state, so a skill
// gated on an attribute can unlock in the same update that crosses it.
//
// An update with equal previous and next progress still earns the minimum base
// gain of 1; callers filter no-op updates.
func (e *Engine) ApplyProgressReward(in ProgressInput) ProgressOutcome {
	p := e.tables.Policy

	prev := clampProgress(in.PreviousProgress)
	next := clampProgress(in.NextProgress)
	delta := next - prev
	if delta < 0 {
		delta = 0
	}
	finishedNow := prev < 100 && next == 100

	completedAfter := in.CompletedCountBefore
	if completedAfter < 0 {
		completedAfter = 0
	}
	if finishedNow {
		completedAfter++
	}

	growthBase := 0
	if finishedNow {
		growthBase = e.CalculateGrowthBase(completedAfter)
	}

	progressBase := int(math.Round(float64(delta) / p.ProgressPerGain))
	if progressBase < 1 {
		progressBase = 1
	}
	baseGain := progressBase
	if finishedNow {
		baseGain += int(math.Ceil(float64(growthBase) / p.GrowthGainDivisor))
	}

	stats := in.Stats.Clone()
	if stats.Attributes == nil {
		stats.Attributes = core.NewAttributes()
	}
	gain := e.DistributeAttributeGain(in.Book.Category, baseGain)
	for k, v := range gain {
		stats.Attributes[k] += v
	}

	expGain := int64(delta)
	if finishedNow {
		expGain += p.FinishExpBonus
	}
	lvl := e.ApplyExpGain(stats.Level, stats.Exp, expGain)
	stats.Level = lvl.Level
	stats.Exp = lvl.Exp

	counts := make(map[core.Category]int, len(in.CategoryCountsBefore)+1)
	for k, v := range in.CategoryCountsBefore {
		counts[k] = v
	}
	titles := append([]string{}, in.FinishedTitlesBefore...)
	if finishedNow {
		counts[in.Book.Category]++
		if !containsTitle(titles, in.Book.Title) {
			titles = append(titles, in.Book.Title)
		}
	}

	unlockedSkills := []core.Skill{}
	for _, r := range e.EvaluateSkillUnlocks(SkillSnapshot{
		CategoryCounts: counts,
		FinishedTitles: titles,
		Attributes:     stats.Attributes,
		CompletedCount: completedAfter,
		Existing:       stats.Skills,
	}) {
		unlockedSkills = append(unlockedSkills, r.Skill())
	}
	stats.Skills = append(stats.Skills, unlockedSkills...)

	unlockedAchievements := []core.Achievement{}
	for _, a := range e.EvaluateAchievements(completedAfter, stats.AchievementNames()) {
		unlockedAchievements = append(unlockedAchievements, a.Achievement())
	}
	stats.Achievements = append(stats.Achievements, unlockedAchievements...)

	return ProgressOutcome{
		Stats:               stats,
		CompletedCountAfter: completedAfter,
		CategoryCountsAfter: counts,
		FinishedTitlesAfter: titles,
		NextLevelExp:        lvl.NextLevelExp,
		Reward: Reward{
			Delta:                delta,
			ExpGain:              expGain,
			LevelUps:             lvl.LevelUps,
			FinishedNow:          finishedNow,
			GrowthBase:           growthBase,
			BaseGain:             baseGain,
			AttributeGain:        gain,
			UnlockedSkills:       unlockedSkills,
			UnlockedAchievements: unlockedAchievements,
		},
	}
}

func containsTitle(titles []string, title string) bool {
	for _, t := range titles {
		if t == title {
			return true
		}
	}
	return false
}
