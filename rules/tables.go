// Package rules holds the immutable rule tables that drive progression:
// reward policy constants, category attribute weights, skill rules and
// achievement thresholds. Tables are decoded from YAML once and injected
// into the progression engine; nothing in this package mutates them after load.
package rules

import (
	"readquest/core"
)

// Band is one step of a piecewise curve: values up to and including UpTo map to Value.
type Band struct {
	UpTo  int     `yaml:"up_to" json:"up_to"`
	Value float64 `yaml:"value" json:"value"`
}

// Bands is a piecewise step function over positive integers.
type Bands struct {
	Steps     []Band  `yaml:"bands" json:"bands"`
	Otherwise float64 `yaml:"otherwise" json:"otherwise"`
}

// Lookup returns the value of the first band whose UpTo is >= n, or Otherwise.
func (b Bands) Lookup(n int) float64 {
	for _, s := range b.Steps {
		if n <= s.UpTo {
			return s.Value
		}
	}
	return b.Otherwise
}

// Policy holds the named reward constants.
type Policy struct {
	EntryBasePoints        float64 `yaml:"entry_base_points" json:"entry_base_points"`
	FreshMultiplier        float64 `yaml:"fresh_multiplier" json:"fresh_multiplier"`
	HistoricalWeight       Bands   `yaml:"historical_weight" json:"historical_weight"`
	DailyWeight            Bands   `yaml:"daily_weight" json:"daily_weight"`
	GrowthBase             Bands   `yaml:"growth_base" json:"growth_base"`
	FinishExpBonus         int64   `yaml:"finish_exp_bonus" json:"finish_exp_bonus"`
	ProgressPerGain        float64 `yaml:"progress_per_gain" json:"progress_per_gain"`
	GrowthGainDivisor      float64 `yaml:"growth_gain_divisor" json:"growth_gain_divisor"`
	AttributeWeightDivisor float64 `yaml:"attribute_weight_divisor" json:"attribute_weight_divisor"`
	LevelBaseExp           float64 `yaml:"level_base_exp" json:"level_base_exp"`
	LevelExponent          float64 `yaml:"level_exponent" json:"level_exponent"`
}

// Weights is a category profile: one small positive weight per attribute.
type Weights map[core.Attribute]int

// SkillRule describes one unlockable skill.
// Requires is advisory only; it is never checked before Condition.
type SkillRule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Path        string    `json:"path"`
	Tier        int       `json:"tier"`
	Requires    []string  `json:"requires,omitempty"`
	Condition   Condition `json:"-"`
}

// Skill converts the rule into the profile representation.
func (r SkillRule) Skill() core.Skill {
	return core.Skill{ID: r.ID, Name: r.Name, Description: r.Description}
}

// AchievementRule unlocks once the completed-book count reaches Threshold.
type AchievementRule struct {
	Threshold int    `yaml:"threshold" json:"threshold"`
	Name      string `yaml:"name" json:"name"`
	Title     string `yaml:"title" json:"title"`
}

// Achievement converts the rule into the profile representation.
func (r AchievementRule) Achievement() core.Achievement {
	return core.Achievement{Threshold: r.Threshold, Name: r.Name, Title: r.Title}
}

// Tables is the complete, versioned rule set.
type Tables struct {
	Version        string                    `yaml:"version" json:"version"`
	Policy         Policy                    `yaml:"policy" json:"policy"`
	NeutralProfile Weights                   `yaml:"neutral_profile" json:"neutral_profile"`
	Categories     map[core.Category]Weights `yaml:"categories" json:"categories"`
	Skills         []SkillRule               `yaml:"skills" json:"skills"`
	Achievements   []AchievementRule         `yaml:"achievements" json:"achievements"`
}

// Profile returns the weights for category, or the neutral profile when the
// category has none.
func (t Tables) Profile(category core.Category) Weights {
	if w, ok := t.Categories[category]; ok {
		return w
	}
	return t.NeutralProfile
}

// Skill looks up a skill rule by id.
func (t Tables) Skill(id string) (SkillRule, bool) {
	for _, r := range t.Skills {
		if r.ID == id {
			return r, true
		}
	}
	return SkillRule{}, false
}

// Paths returns the distinct skill lanes in table order.
func (t Tables) Paths() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range t.Skills {
		if _, ok := seen[r.Path]; ok {
			continue
		}
		seen[r.Path] = struct{}{}
		out = append(out, r.Path)
	}
	return out
}
