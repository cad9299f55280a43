package progression

import "math"

// LevelResult is the outcome of applying an exp gain.
type LevelResult struct {
	Level        int   `json:"level"`
	Exp          int64 `json:"exp"`
	NextLevelExp int64 `json:"next_level_exp"`
	LevelUps     int   `json:"level_ups"`
}

// RequiredExpForLevel returns the exp needed to advance past level:
// floor(base * level^exponent). Levels below 1 are treated as 1.
func (e *Engine) RequiredExpForLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	p := e.tables.Policy
	v := p.LevelBaseExp * math.Pow(float64(level), p.LevelExponent)
	// exact powers such as 16^1.25 may land a hair below the integer
	if r := math.Round(v); math.Abs(v-r) < 1e-9 {
		v = r
	}
	return int64(math.Floor(v))
}

// ApplyExpGain adds gain to exp and levels up while the pool covers the
// current threshold, so a single gain may cross several levels. The returned
// Exp is always below the threshold of the returned Level.
func (e *Engine) ApplyExpGain(level int, exp, gain int64) LevelResult {
	if level < 1 {
		level = 1
	}
	if exp < 0 {
		exp = 0
	}
	if gain < 0 {
		gain = 0
	}
	pool := exp + gain
	if pool < exp {
		pool = math.MaxInt64
	}
	ups := 0
	for need := e.RequiredExpForLevel(level); pool >= need; need = e.RequiredExpForLevel(level) {
		pool -= need
		level++
		ups++
	}
	return LevelResult{
		Level:        level,
		Exp:          pool,
		NextLevelExp: e.RequiredExpForLevel(level),
		LevelUps:     ups,
	}
}
