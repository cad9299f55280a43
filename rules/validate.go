package rules

import (
	"errors"
	"fmt"
	"strings"

	"readquest/core"
)

// Validate checks the tables for structural problems and reports all of them at once.
func (t Tables) Validate() error {
	var errs []string

	if strings.TrimSpace(t.Version) == "" {
		errs = append(errs, "version cannot be empty")
	}

	if err := t.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("policy: %v", err))
	}

	if err := t.NeutralProfile.validate(); err != nil {
		errs = append(errs, fmt.Sprintf("neutral_profile: %v", err))
	}
	for cat, w := range t.Categories {
		if err := w.validate(); err != nil {
			errs = append(errs, fmt.Sprintf("categories.%s: %v", cat, err))
		}
	}

	ids := make(map[string]struct{}, len(t.Skills))
	for i, r := range t.Skills {
		if strings.TrimSpace(r.ID) == "" {
			errs = append(errs, fmt.Sprintf("skills[%d]: id cannot be empty", i))
			continue
		}
		if _, dup := ids[r.ID]; dup {
			errs = append(errs, fmt.Sprintf("skills[%d]: duplicate id %q", i, r.ID))
		}
		ids[r.ID] = struct{}{}
	}
	for i, r := range t.Skills {
		if r.Tier < 1 {
			errs = append(errs, fmt.Sprintf("skills[%d] %s: tier must be >= 1", i, r.ID))
		}
		if strings.TrimSpace(r.Name) == "" {
			errs = append(errs, fmt.Sprintf("skills[%d] %s: name cannot be empty", i, r.ID))
		}
		if err := validateCondition(r.Condition); err != nil {
			errs = append(errs, fmt.Sprintf("skills[%d] %s: %v", i, r.ID, err))
		}
		for _, req := range r.Requires {
			if _, ok := ids[req]; !ok {
				errs = append(errs, fmt.Sprintf("skills[%d] %s: requires unknown skill %q", i, r.ID, req))
			}
		}
	}

	names := make(map[string]struct{}, len(t.Achievements))
	thresholds := make(map[int]struct{}, len(t.Achievements))
	for i, a := range t.Achievements {
		if a.Threshold <= 0 {
			errs = append(errs, fmt.Sprintf("achievements[%d]: threshold must be > 0", i))
		}
		if strings.TrimSpace(a.Name) == "" {
			errs = append(errs, fmt.Sprintf("achievements[%d]: name cannot be empty", i))
		}
		if _, dup := names[a.Name]; dup {
			errs = append(errs, fmt.Sprintf("achievements[%d]: duplicate name %q", i, a.Name))
		}
		if _, dup := thresholds[a.Threshold]; dup {
			errs = append(errs, fmt.Sprintf("achievements[%d]: duplicate threshold %d", i, a.Threshold))
		}
		names[a.Name] = struct{}{}
		thresholds[a.Threshold] = struct{}{}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks policy constants.
func (p Policy) Validate() error {
	var errs []string
	for _, c := range []struct {
		name  string
		value float64
	}{
		{"entry_base_points", p.EntryBasePoints},
		{"fresh_multiplier", p.FreshMultiplier},
		{"progress_per_gain", p.ProgressPerGain},
		{"growth_gain_divisor", p.GrowthGainDivisor},
		{"attribute_weight_divisor", p.AttributeWeightDivisor},
		{"level_base_exp", p.LevelBaseExp},
		{"level_exponent", p.LevelExponent},
	} {
		if c.value <= 0 {
			errs = append(errs, c.name+" must be > 0")
		}
	}
	if p.FinishExpBonus < 0 {
		errs = append(errs, "finish_exp_bonus must be >= 0")
	}
	for _, c := range []struct {
		name  string
		bands Bands
	}{
		{"historical_weight", p.HistoricalWeight},
		{"daily_weight", p.DailyWeight},
		{"growth_base", p.GrowthBase},
	} {
		if err := c.bands.validate(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", c.name, err))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (b Bands) validate() error {
	prev := 0
	for i, s := range b.Steps {
		if s.UpTo <= prev {
			return fmt.Errorf("bands[%d]: up_to must be ascending and > 0", i)
		}
		if s.Value <= 0 {
			return fmt.Errorf("bands[%d]: value must be > 0", i)
		}
		prev = s.UpTo
	}
	if b.Otherwise <= 0 {
		return errors.New("otherwise must be > 0")
	}
	return nil
}

func (w Weights) validate() error {
	var errs []string
	for _, k := range core.AllAttributes {
		v, ok := w[k]
		if !ok {
			errs = append(errs, fmt.Sprintf("missing attribute %s", k))
			continue
		}
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be > 0", k))
		}
	}
	for k := range w {
		if !k.Valid() {
			errs = append(errs, fmt.Sprintf("unknown attribute %s", k))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, ", "))
	}
	return nil
}

func validateCondition(c Condition) error {
	switch v := c.(type) {
	case CategoryCount:
		if v.Category == "" {
			return errors.New("category_count: category cannot be empty")
		}
		if v.Count <= 0 {
			return errors.New("category_count: count must be > 0")
		}
	case AttributeThreshold:
		if !v.Attribute.Valid() {
			return fmt.Errorf("attribute_threshold: unknown attribute %q", v.Attribute)
		}
		if v.Value <= 0 {
			return errors.New("attribute_threshold: value must be > 0")
		}
	case CompletedCount:
		if v.Count <= 0 {
			return errors.New("completed_count: count must be > 0")
		}
	case SpecialTitleAny:
		if len(v.Titles) == 0 {
			return errors.New("special_title_any: titles cannot be empty")
		}
	case nil:
		return errors.New("missing condition")
	}
	return nil
}

// RequiresHint returns the advisory prerequisite hint for rule: the names of
// required skills that are not yet unlocked, or "" when none are missing.
func (t Tables) RequiresHint(rule SkillRule, unlocked []core.Skill) string {
	have := make(map[string]struct{}, len(unlocked))
	for _, s := range unlocked {
		have[s.ID] = struct{}{}
	}
	var missing []string
	for _, id := range rule.Requires {
		if _, ok := have[id]; ok {
			continue
		}
		name := id
		if r, ok := t.Skill(id); ok {
			name = r.Name
		}
		missing = append(missing, name)
	}
	if len(missing) == 0 {
		return ""
	}
	return "requires: " + strings.Join(missing, ", ")
}
