// Package progression computes reading rewards: entry points for adding a book,
// exp and level-ups, attribute growth, skill unlocks and achievement unlocks.
//
// Every function is a pure transform over the injected rule tables. Nothing in
// this package performs I/O, keeps mutable state, or mutates its inputs; callers
// persist the returned values and serialise writes to a single profile.
package progression

import "readquest/rules"

// Engine evaluates progression against a fixed set of rule tables.
type Engine struct {
	tables rules.Tables
}

// New returns an engine bound to tables. The tables must not be modified afterwards.
func New(tables rules.Tables) *Engine {
	return &Engine{tables: tables}
}

// Default returns an engine over the embedded rule tables.
func Default() *Engine {
	return New(rules.Default())
}

// Tables returns the rule tables the engine was built with.
func (e *Engine) Tables() rules.Tables { return e.tables }

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
