package progression

import (
	"readquest/core"
	"readquest/rules"
)

// SkillSnapshot is the state a skill rule is evaluated against.
type SkillSnapshot struct {
	CategoryCounts map[core.Category]int
	FinishedTitles []string
	Attributes     core.Attributes
	CompletedCount int
	Existing       []core.Skill
}

// EvaluateSkillUnlocks returns the rules not yet in s.Existing whose condition
// holds for s, in table order. Prerequisites listed in Requires are advisory
// and are not checked here.
func (e *Engine) EvaluateSkillUnlocks(s SkillSnapshot) []rules.SkillRule {
	have := make(map[string]struct{}, len(s.Existing))
	for _, sk := range s.Existing {
		have[sk.ID] = struct{}{}
	}
	titles := make(map[string]struct{}, len(s.FinishedTitles))
	for _, t := range s.FinishedTitles {
		titles[t] = struct{}{}
	}
	var out []rules.SkillRule
	for _, r := range e.tables.Skills {
		if _, ok := have[r.ID]; ok {
			continue
		}
		if satisfied(r.Condition, s, titles) {
			out = append(out, r)
		}
	}
	return out
}

func satisfied(c rules.Condition, s SkillSnapshot, titles map[string]struct{}) bool {
	switch v := c.(type) {
	case rules.CategoryCount:
		return s.CategoryCounts[v.Category] >= v.Count
	case rules.AttributeThreshold:
		return s.Attributes[v.Attribute] >= v.Value
	case rules.CompletedCount:
		return s.CompletedCount >= v.Count
	case rules.SpecialTitleAny:
		for _, t := range v.Titles {
			if _, ok := titles[t]; ok {
				return true
			}
		}
		return false
	default:
		// fail closed
		return false
	}
}
