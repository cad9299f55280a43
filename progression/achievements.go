package progression

import "readquest/rules"

// EvaluateAchievements returns every achievement whose threshold is reached by
// completedCount and whose name is not in unlocked, in table order. Thresholds
// are independent; crossing several at once unlocks all of them.
func (e *Engine) EvaluateAchievements(completedCount int, unlocked []string) []rules.AchievementRule {
	have := make(map[string]struct{}, len(unlocked))
	for _, n := range unlocked {
		have[n] = struct{}{}
	}
	var out []rules.AchievementRule
	for _, a := range e.tables.Achievements {
		if a.Threshold > completedCount {
			continue
		}
		if _, ok := have[a.Name]; ok {
			continue
		}
		out = append(out, a)
	}
	return out
}
