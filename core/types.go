package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// UserID uniquely identifies a reader.
type UserID string

// Attribute is one of the six fixed growth attributes.
type Attribute string

const (
	AttrLogic      Attribute = "logic"
	AttrInsight    Attribute = "insight"
	AttrExpression Attribute = "expression"
	AttrStrategy   Attribute = "strategy"
	AttrWill       Attribute = "will"
	AttrCreativity Attribute = "creativity"
)

// AllAttributes lists the attribute keys in display order.
var AllAttributes = []Attribute{AttrLogic, AttrInsight, AttrExpression, AttrStrategy, AttrWill, AttrCreativity}

// Valid reports whether a is one of the six attribute keys.
func (a Attribute) Valid() bool {
	for _, k := range AllAttributes {
		if k == a {
			return true
		}
	}
	return false
}

// Category classifies a book. Unknown values are tolerated by the progression
// engine and fall back to the neutral profile.
type Category string

const (
	CategoryPhilosophy Category = "philosophy"
	CategoryPsychology Category = "psychology"
	CategoryLogic      Category = "logic"
	CategoryStrategy   Category = "strategy"
	CategoryLiterature Category = "literature"
	CategoryHistory    Category = "history"
	CategoryScience    Category = "science"
	CategoryOther      Category = "other"
)

// AllCategories lists the known categories.
var AllCategories = []Category{
	CategoryPhilosophy, CategoryPsychology, CategoryLogic, CategoryStrategy,
	CategoryLiterature, CategoryHistory, CategoryScience, CategoryOther,
}

// Known reports whether c is part of the fixed category enum.
func (c Category) Known() bool {
	for _, k := range AllCategories {
		if k == c {
			return true
		}
	}
	return false
}

// Attributes maps every attribute key to its accumulated value.
type Attributes map[Attribute]int

// NewAttributes returns a map holding all six keys at zero.
func NewAttributes() Attributes {
	out := make(Attributes, len(AllAttributes))
	for _, k := range AllAttributes {
		out[k] = 0
	}
	return out
}

// Clone returns a copy that can be mutated without touching a.
func (a Attributes) Clone() Attributes {
	cp := make(Attributes, len(a))
	for k, v := range a {
		cp[k] = v
	}
	return cp
}

// Skill is an unlocked skill as stored on the profile.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Achievement is an unlocked achievement as stored on the profile.
type Achievement struct {
	Threshold int    `json:"threshold"`
	Name      string `json:"name"`
	Title     string `json:"title"`
}

// Stats is the progression state of a reader.
// Exp is always below the threshold of the current level.
type Stats struct {
	Level        int           `json:"level"`
	Exp          int64         `json:"exp"`
	Attributes   Attributes    `json:"attributes"`
	Skills       []Skill       `json:"skills"`
	Achievements []Achievement `json:"achievements"`
}

// NewStats returns level-1 stats with every attribute at zero.
func NewStats() Stats {
	return Stats{
		Level:        1,
		Attributes:   NewAttributes(),
		Skills:       []Skill{},
		Achievements: []Achievement{},
	}
}

// Clone returns a deep copy of the stats.
func (s Stats) Clone() Stats {
	cp := Stats{
		Level:        s.Level,
		Exp:          s.Exp,
		Attributes:   s.Attributes.Clone(),
		Skills:       make([]Skill, len(s.Skills)),
		Achievements: make([]Achievement, len(s.Achievements)),
	}
	copy(cp.Skills, s.Skills)
	copy(cp.Achievements, s.Achievements)
	return cp
}

// HasSkill reports whether the skill id is already unlocked.
func (s Stats) HasSkill(id string) bool {
	for _, sk := range s.Skills {
		if sk.ID == id {
			return true
		}
	}
	return false
}

// AchievementNames returns the names of unlocked achievements in unlock order.
func (s Stats) AchievementNames() []string {
	out := make([]string, 0, len(s.Achievements))
	for _, a := range s.Achievements {
		out = append(out, a.Name)
	}
	return out
}

// Book is a tracked book on a reader's shelf.
type Book struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Category Category `json:"category"`
	Progress int      `json:"progress"`
	// MaxProgress is the highest progress ever rewarded. Corrections never lower it.
	MaxProgress int       `json:"max_progress"`
	Finished    bool      `json:"finished"`
	AddedAt     time.Time `json:"added_at"`
}

// DailyAdds counts books added on a single UTC day.
type DailyAdds struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// Profile is the persisted aggregate of a reader. Implementations of storage
// must return deep copies to keep callers from sharing maps.
type Profile struct {
	UserID         UserID           `json:"user_id"`
	Version        int64            `json:"version"`
	Stats          Stats            `json:"stats"`
	Books          map[string]Book  `json:"books"`
	BooksAdded     int              `json:"books_added"`
	DailyAdds      DailyAdds        `json:"daily_adds"`
	CompletedCount int              `json:"completed_count"`
	CategoryCounts map[Category]int `json:"category_counts"`
	FinishedTitles []string         `json:"finished_titles"`
	Updated        time.Time        `json:"updated"`
}

// NewProfile returns an empty profile for user.
func NewProfile(user UserID) Profile {
	return Profile{
		UserID:         user,
		Stats:          NewStats(),
		Books:          map[string]Book{},
		CategoryCounts: map[Category]int{},
		FinishedTitles: []string{},
		Updated:        time.Now().UTC(),
	}
}

// Clone returns a deep copy of the profile.
func (p Profile) Clone() Profile {
	cp := p
	cp.Stats = p.Stats.Clone()
	cp.Books = make(map[string]Book, len(p.Books))
	for k, v := range p.Books {
		cp.Books[k] = v
	}
	cp.CategoryCounts = make(map[Category]int, len(p.CategoryCounts))
	for k, v := range p.CategoryCounts {
		cp.CategoryCounts[k] = v
	}
	cp.FinishedTitles = append([]string{}, p.FinishedTitles...)
	return cp
}

// Normalize fills nil collections, e.g. after decoding an older document.
func (p *Profile) Normalize() {
	if p.Stats.Level < 1 {
		p.Stats.Level = 1
	}
	if p.Stats.Attributes == nil {
		p.Stats.Attributes = NewAttributes()
	}
	if p.Stats.Skills == nil {
		p.Stats.Skills = []Skill{}
	}
	if p.Stats.Achievements == nil {
		p.Stats.Achievements = []Achievement{}
	}
	if p.Books == nil {
		p.Books = map[string]Book{}
	}
	for id, b := range p.Books {
		if b.Finished {
			b.MaxProgress = 100
		}
		if b.MaxProgress < b.Progress {
			b.MaxProgress = b.Progress
		}
		p.Books[id] = b
	}
	if p.CategoryCounts == nil {
		p.CategoryCounts = map[Category]int{}
	}
	if p.FinishedTitles == nil {
		p.FinishedTitles = []string{}
	}
}

// ErrVersionConflict is returned by storage when a profile was written
// concurrently since it was loaded.
var ErrVersionConflict = errors.New("profile version conflict")

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(strings.ToLower(s)), nil
}

// MaxTitleLength bounds book titles in runes.
const MaxTitleLength = 256

// ValidateTitle ensures a non-empty title of bounded length.
// Titles are otherwise kept verbatim; matching against rule tables is exact.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("empty title")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return errors.New("title too long")
	}
	return nil
}
