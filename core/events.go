package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventBookAdded           EventType = "book_added"
	EventProgressRewarded    EventType = "progress_rewarded"
	EventProgressCorrected   EventType = "progress_corrected"
	EventBookFinished        EventType = "book_finished"
	EventLevelUp             EventType = "level_up"
	EventSkillUnlocked       EventType = "skill_unlocked"
	EventAchievementUnlocked EventType = "achievement_unlocked"
)

// AllEventTypes lists every event the service publishes.
var AllEventTypes = []EventType{
	EventBookAdded, EventProgressRewarded, EventProgressCorrected, EventBookFinished,
	EventLevelUp, EventSkillUnlocked, EventAchievementUnlocked,
}

// Event represents an immutable domain event.
type Event struct {
	Type        EventType      `json:"type"`
	Time        time.Time      `json:"time"`
	UserID      UserID         `json:"user_id"`
	BookID      string         `json:"book_id,omitempty"`
	Category    Category       `json:"category,omitempty"`
	Exp         int64          `json:"exp,omitempty"`
	Progress    int            `json:"progress,omitempty"`
	Level       int            `json:"level,omitempty"`
	Skill       *Skill         `json:"skill,omitempty"`
	Achievement *Achievement   `json:"achievement,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBookAdded(user UserID, book Book, points int64) Event {
	return Event{Type: EventBookAdded, Time: time.Now().UTC(), UserID: user, BookID: book.ID, Category: book.Category, Exp: points}
}

func NewProgressRewarded(user UserID, book Book, expGain int64) Event {
	return Event{Type: EventProgressRewarded, Time: time.Now().UTC(), UserID: user, BookID: book.ID, Category: book.Category, Exp: expGain, Progress: book.Progress}
}

func NewProgressCorrected(user UserID, book Book) Event {
	return Event{Type: EventProgressCorrected, Time: time.Now().UTC(), UserID: user, BookID: book.ID, Category: book.Category, Progress: book.Progress}
}

func NewBookFinished(user UserID, book Book) Event {
	return Event{Type: EventBookFinished, Time: time.Now().UTC(), UserID: user, BookID: book.ID, Category: book.Category, Progress: book.Progress}
}

func NewLevelUp(user UserID, level int) Event {
	return Event{Type: EventLevelUp, Time: time.Now().UTC(), UserID: user, Level: level}
}

func NewSkillUnlocked(user UserID, skill Skill) Event {
	return Event{Type: EventSkillUnlocked, Time: time.Now().UTC(), UserID: user, Skill: &skill}
}

func NewAchievementUnlocked(user UserID, a Achievement) Event {
	return Event{Type: EventAchievementUnlocked, Time: time.Now().UTC(), UserID: user, Achievement: &a}
}
