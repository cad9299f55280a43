package rules

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"readquest/core"
)

// ConditionType is the discriminant of a skill condition.
type ConditionType string

const (
	CondCategoryCount      ConditionType = "category_count"
	CondAttributeThreshold ConditionType = "attribute_threshold"
	CondCompletedCount     ConditionType = "completed_count"
	CondSpecialTitleAny    ConditionType = "special_title_any"
)

// Condition is the closed set of skill unlock conditions. Only the variants
// declared in this package implement it.
type Condition interface {
	Type() ConditionType
	sealed()
}

// CategoryCount holds when at least Count books of Category are completed.
type CategoryCount struct {
	Category core.Category
	Count    int
}

// AttributeThreshold holds when Attribute has reached Value.
type AttributeThreshold struct {
	Attribute core.Attribute
	Value     int
}

// CompletedCount holds when at least Count books are completed in total.
type CompletedCount struct {
	Count int
}

// SpecialTitleAny holds when any of Titles has been finished. Matching is exact.
type SpecialTitleAny struct {
	Titles []string
}

func (CategoryCount) Type() ConditionType      { return CondCategoryCount }
func (AttributeThreshold) Type() ConditionType { return CondAttributeThreshold }
func (CompletedCount) Type() ConditionType     { return CondCompletedCount }
func (SpecialTitleAny) Type() ConditionType    { return CondSpecialTitleAny }

func (CategoryCount) sealed()      {}
func (AttributeThreshold) sealed() {}
func (CompletedCount) sealed()     {}
func (SpecialTitleAny) sealed()    {}

// conditionDoc is the flat wire shape of a condition in YAML and JSON.
type conditionDoc struct {
	Type      ConditionType  `yaml:"type" json:"type"`
	Category  core.Category  `yaml:"category,omitempty" json:"category,omitempty"`
	Attribute core.Attribute `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Count     int            `yaml:"count,omitempty" json:"count,omitempty"`
	Value     int            `yaml:"value,omitempty" json:"value,omitempty"`
	Titles    []string       `yaml:"titles,omitempty" json:"titles,omitempty"`
}

func (d conditionDoc) condition() (Condition, error) {
	switch d.Type {
	case CondCategoryCount:
		return CategoryCount{Category: d.Category, Count: d.Count}, nil
	case CondAttributeThreshold:
		return AttributeThreshold{Attribute: d.Attribute, Value: d.Value}, nil
	case CondCompletedCount:
		return CompletedCount{Count: d.Count}, nil
	case CondSpecialTitleAny:
		return SpecialTitleAny{Titles: append([]string{}, d.Titles...)}, nil
	case "":
		return nil, fmt.Errorf("missing condition type")
	default:
		return nil, fmt.Errorf("unknown condition type %q", d.Type)
	}
}

func docFor(c Condition) conditionDoc {
	switch v := c.(type) {
	case CategoryCount:
		return conditionDoc{Type: v.Type(), Category: v.Category, Count: v.Count}
	case AttributeThreshold:
		return conditionDoc{Type: v.Type(), Attribute: v.Attribute, Value: v.Value}
	case CompletedCount:
		return conditionDoc{Type: v.Type(), Count: v.Count}
	case SpecialTitleAny:
		return conditionDoc{Type: v.Type(), Titles: v.Titles}
	default:
		return conditionDoc{}
	}
}

type skillRuleDoc struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Path        string       `yaml:"path"`
	Tier        int          `yaml:"tier"`
	Requires    []string     `yaml:"requires,omitempty"`
	Condition   conditionDoc `yaml:"condition"`
}

// UnmarshalYAML decodes the flat condition document into its variant.
func (r *SkillRule) UnmarshalYAML(node *yaml.Node) error {
	var doc skillRuleDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}
	cond, err := doc.Condition.condition()
	if err != nil {
		return fmt.Errorf("skill %q (line %d): %w", doc.ID, node.Line, err)
	}
	*r = SkillRule{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Path:        doc.Path,
		Tier:        doc.Tier,
		Requires:    doc.Requires,
		Condition:   cond,
	}
	return nil
}

// MarshalYAML writes the rule back in the flat document shape.
func (r SkillRule) MarshalYAML() (any, error) {
	return skillRuleDoc{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Path:        r.Path,
		Tier:        r.Tier,
		Requires:    r.Requires,
		Condition:   docFor(r.Condition),
	}, nil
}

// MarshalJSON includes the condition as a flat object.
func (r SkillRule) MarshalJSON() ([]byte, error) {
	type plain SkillRule
	return json.Marshal(struct {
		plain
		Condition conditionDoc `json:"condition"`
	}{plain: plain(r), Condition: docFor(r.Condition)})
}
