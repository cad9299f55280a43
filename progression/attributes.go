package progression

import (
	"math"

	"readquest/core"
)

// DistributeAttributeGain spreads baseGain over the six attributes using the
// category profile: round(weight * baseGain / divisor), floored at 1 so every
// attribute grows on every call. Unknown categories use the neutral profile.
func (e *Engine) DistributeAttributeGain(category core.Category, baseGain int) core.Attributes {
	weights := e.tables.Profile(category)
	div := e.tables.Policy.AttributeWeightDivisor
	out := make(core.Attributes, len(core.AllAttributes))
	for _, k := range core.AllAttributes {
		g := int(math.Round(float64(weights[k]) * float64(baseGain) / div))
		if g < 1 {
			g = 1
		}
		out[k] = g
	}
	return out
}
