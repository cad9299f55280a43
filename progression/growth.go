package progression

// CalculateGrowthBase returns the finish bonus tier for the completed-book count
// after the current finish. The bonus shrinks as lifetime completions grow.
func (e *Engine) CalculateGrowthBase(completedCount int) int {
	return int(e.tables.Policy.GrowthBase.Lookup(completedCount))
}
