package rules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readquest/core"
)

func TestDefaultTablesAreValid(t *testing.T) {
	tables := Default()
	require.NoError(t, tables.Validate())

	assert.NotEmpty(t, tables.Version)
	assert.Equal(t, 8.0, tables.Policy.EntryBasePoints)
	assert.Equal(t, int64(25), tables.Policy.FinishExpBonus)
	assert.Len(t, tables.Categories, len(core.AllCategories))
	assert.Equal(t, []string{"insight", "will", "logic", "strategy"}, tables.Paths())
}

func TestDefaultReturnsIndependentCopies(t *testing.T) {
	a := Default()
	a.Categories[core.CategoryLogic][core.AttrLogic] = 99
	b := Default()
	assert.Equal(t, 5, b.Categories[core.CategoryLogic][core.AttrLogic])
}

func TestBandsLookup(t *testing.T) {
	b := Bands{Steps: []Band{{UpTo: 10, Value: 1}, {UpTo: 50, Value: 0.7}}, Otherwise: 0.3}
	assert.Equal(t, 1.0, b.Lookup(1))
	assert.Equal(t, 1.0, b.Lookup(10))
	assert.Equal(t, 0.7, b.Lookup(11))
	assert.Equal(t, 0.7, b.Lookup(50))
	assert.Equal(t, 0.3, b.Lookup(51))
}

func TestProfileFallsBackToNeutral(t *testing.T) {
	tables := Default()
	assert.Equal(t, tables.NeutralProfile, tables.Profile(core.Category("cooking")))
	assert.Equal(t, 5, tables.Profile(core.CategoryLogic)[core.AttrLogic])
}

func TestParseDecodesConditionVariants(t *testing.T) {
	tables := Default()

	r, ok := tables.Skill("logic_chain_of_reason")
	require.True(t, ok)
	assert.Equal(t, CategoryCount{Category: core.CategoryLogic, Count: 3}, r.Condition)

	r, ok = tables.Skill("strategy_the_prince")
	require.True(t, ok)
	cond, ok := r.Condition.(SpecialTitleAny)
	require.True(t, ok)
	assert.Contains(t, cond.Titles, "君主论")
	assert.Contains(t, cond.Titles, "The Prince")

	r, ok = tables.Skill("will_steady_pages")
	require.True(t, ok)
	assert.Equal(t, CondCompletedCount, r.Condition.Type())

	r, ok = tables.Skill("logic_razor")
	require.True(t, ok)
	assert.Equal(t, AttributeThreshold{Attribute: core.AttrLogic, Value: 50}, r.Condition)
}

func TestParseRejectsUnknownConditionType(t *testing.T) {
	doc := `
version: "t"
skills:
  - id: broken
    name: Broken
    tier: 1
    condition: {type: moon_phase}
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown condition type")
}

func TestParseRejectsMissingConditionType(t *testing.T) {
	doc := `
version: "t"
skills:
  - id: broken
    name: Broken
    tier: 1
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing condition type")
}

func TestValidateReportsAllProblems(t *testing.T) {
	tables := Default()
	tables.Version = ""
	tables.Skills = append(tables.Skills, SkillRule{
		ID: "logic_razor", Name: "dup", Tier: 0,
		Requires:  []string{"nope"},
		Condition: CompletedCount{Count: 0},
	})
	tables.Achievements = append(tables.Achievements, AchievementRule{Threshold: 0, Name: "first_book"})
	tables.Policy.DailyWeight.Steps = []Band{{UpTo: 2, Value: 1}, {UpTo: 1, Value: 0.8}}

	err := tables.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"version cannot be empty",
		`duplicate id "logic_razor"`,
		"tier must be >= 1",
		"completed_count: count must be > 0",
		`requires unknown skill "nope"`,
		"threshold must be > 0",
		`duplicate name "first_book"`,
		"daily_weight",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateWeights(t *testing.T) {
	tables := Default()
	tables.NeutralProfile = Weights{core.AttrLogic: 1}
	err := tables.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing attribute insight")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, DefaultYAML(), 0o644))

	tables, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Version, tables.Version)

	_, err = Load(filepath.Join(dir, "rules.json"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	tables, err := LoadOrDefault(" ")
	require.NoError(t, err)
	assert.Equal(t, Default().Version, tables.Version)
}

func TestMarshalRoundTripKeepsConditions(t *testing.T) {
	data, err := Marshal(Default())
	require.NoError(t, err)

	tables, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default().Skills, tables.Skills)
}

func TestSkillRuleJSONIncludesCondition(t *testing.T) {
	r, _ := Default().Skill("logic_chain_of_reason")
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	cond, ok := out["condition"].(map[string]any)
	require.True(t, ok, "condition missing: %s", b)
	assert.Equal(t, "category_count", cond["type"])
	assert.Equal(t, "logic", cond["category"])
	assert.Equal(t, float64(3), cond["count"])
}

func TestRequiresHint(t *testing.T) {
	tables := Default()
	r, _ := tables.Skill("strategy_grand_design")

	hint := tables.RequiresHint(r, nil)
	assert.Equal(t, "requires: Board Reader, Know Your Enemy", hint)

	hint = tables.RequiresHint(r, []core.Skill{{ID: "strategy_board_reader"}})
	assert.Equal(t, "requires: Know Your Enemy", hint)

	hint = tables.RequiresHint(r, []core.Skill{{ID: "strategy_board_reader"}, {ID: "strategy_art_of_war"}})
	assert.Empty(t, hint)
}
