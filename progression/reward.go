package progression

import "math"

// EntryReward is the reward breakdown for adding a book to the shelf.
type EntryReward struct {
	Points           int     `json:"points"`
	HistoricalWeight float64 `json:"historical_weight"`
	DailyWeight      float64 `json:"daily_weight"`
	FreshMultiplier  float64 `json:"fresh_multiplier"`
}

// CalculateEntryReward weighs the base entry points by how many books were ever
// added (historyIndex), how many were added today (dailyIndex) and whether the
// book is new to the reader. Both indices are 1-based; smaller values are
// treated as 1. Points never drop below 1.
func (e *Engine) CalculateEntryReward(historyIndex, dailyIndex int, isNew bool) EntryReward {
	if historyIndex < 1 {
		historyIndex = 1
	}
	if dailyIndex < 1 {
		dailyIndex = 1
	}
	p := e.tables.Policy
	hw := p.HistoricalWeight.Lookup(historyIndex)
	dw := p.DailyWeight.Lookup(dailyIndex)
	fresh := 1.0
	if isNew {
		fresh = p.FreshMultiplier
	}
	points := int(math.Round(p.EntryBasePoints * hw * dw * fresh))
	if points < 1 {
		points = 1
	}
	return EntryReward{Points: points, HistoricalWeight: hw, DailyWeight: dw, FreshMultiplier: fresh}
}
