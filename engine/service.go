package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"readquest/core"
	"readquest/leaderboard"
	"readquest/progression"
	"readquest/rules"
)

var (
	ErrBookNotFound       = errors.New("book not found")
	ErrProgressDecrease   = errors.New("progress cannot decrease; use a correction")
	ErrCorrectionIncrease = errors.New("a correction can only lower progress")
	ErrInvalidProgress    = errors.New("progress must be between 0 and 100")
	ErrInvalidCategory    = errors.New("unknown category")
)

// maxConflictRetries bounds read-modify-write attempts on version conflicts.
const maxConflictRetries = 3

// errUnchanged aborts an update without writing.
var errUnchanged = errors.New("unchanged")

// Service hosts the progression engine: it loads profiles, applies rewards,
// persists the result and publishes events.
type Service struct {
	storage Storage
	bus     *EventBus
	engine  *progression.Engine
	board   leaderboard.Board
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for day counters and timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBoard keeps board updated with completed-book counts.
func WithBoard(b leaderboard.Board) ServiceOption { return func(s *Service) { s.board = b } }

// WithIDGenerator overrides book id generation.
func WithIDGenerator(f func() string) ServiceOption {
	return func(s *Service) {
		if f != nil {
			s.newID = f
		}
	}
}

func NewService(storage Storage, bus *EventBus, eng *progression.Engine, opts ...ServiceOption) *Service {
	if storage == nil || bus == nil || eng == nil {
		panic("NewService requires non-nil storage, bus, and engine")
	}
	s := &Service{
		storage: storage,
		bus:     bus,
		engine:  eng,
		logger:  slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe convenience method.
func (s *Service) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

// Publish forwards ev to the bus.
func (s *Service) Publish(ctx context.Context, ev core.Event) { s.bus.Publish(ctx, ev) }

// Engine returns the progression engine.
func (s *Service) Engine() *progression.Engine { return s.engine }

// Rules returns the active rule tables.
func (s *Service) Rules() rules.Tables { return s.engine.Tables() }

func (s *Service) Close() { s.bus.Close() }

// NewBook is a request to put a book on a reader's shelf.
type NewBook struct {
	Title    string        `json:"title"`
	Category core.Category `json:"category"`
	IsNew    bool          `json:"is_new"`
}

// BookAdded reports the stored book and the entry reward it earned.
type BookAdded struct {
	Book   core.Book               `json:"book"`
	Reward progression.EntryReward `json:"reward"`
	Level  progression.LevelResult `json:"level"`
}

// ProgressUpdated reports a forward progress update.
// Changed is false when the progress was already at the requested value.
// Restored is set when the book only regained progress it had before a
// correction; such an update carries an empty reward.
type ProgressUpdated struct {
	Book         core.Book          `json:"book"`
	Changed      bool               `json:"changed"`
	Restored     bool               `json:"restored,omitempty"`
	Reward       progression.Reward `json:"reward"`
	Stats        core.Stats         `json:"stats"`
	NextLevelExp int64              `json:"next_level_exp"`
}

// ProgressCorrected reports a lowered progress value.
type ProgressCorrected struct {
	Book           core.Book `json:"book"`
	Changed        bool      `json:"changed"`
	Unfinished     bool      `json:"unfinished"`
	CompletedCount int       `json:"completed_count"`
}

// AddBook stores a new book and credits the entry reward as exp.
func (s *Service) AddBook(ctx context.Context, user core.UserID, req NewBook) (BookAdded, error) {
	user, err := core.NormalizeUserID(user)
	if err != nil {
		return BookAdded{}, err
	}
	if err := core.ValidateTitle(req.Title); err != nil {
		return BookAdded{}, err
	}
	category, err := normalizeCategory(req.Category)
	if err != nil {
		return BookAdded{}, err
	}

	var out BookAdded
	var events []core.Event
	_, err = s.update(ctx, user, func(p *core.Profile) error {
		now := s.now().UTC()
		day := now.Format(time.DateOnly)
		if p.DailyAdds.Day != day {
			p.DailyAdds = core.DailyAdds{Day: day}
		}
		p.DailyAdds.Count++
		p.BooksAdded++

		reward := s.engine.CalculateEntryReward(p.BooksAdded, p.DailyAdds.Count, req.IsNew)
		before := p.Stats.Level
		lvl := s.engine.ApplyExpGain(p.Stats.Level, p.Stats.Exp, int64(reward.Points))
		p.Stats.Level, p.Stats.Exp = lvl.Level, lvl.Exp

		book := core.Book{
			ID:       s.newID(),
			Title:    req.Title,
			Category: category,
			AddedAt:  now,
		}
		p.Books[book.ID] = book
		p.Updated = now

		out = BookAdded{Book: book, Reward: reward, Level: lvl}
		events = append([]core.Event{core.NewBookAdded(user, book, int64(reward.Points))}, levelUpEvents(user, before, lvl.Level)...)
		return nil
	})
	if err != nil {
		return BookAdded{}, err
	}
	s.logger.Debug("book added", "user", user, "book", out.Book.ID, "category", out.Book.Category, "points", out.Reward.Points)
	s.publish(ctx, events)
	return out, nil
}

// UpdateProgress moves a book forward and applies the progress reward.
// Lowering progress returns ErrProgressDecrease; equal progress is a no-op.
// Only progress beyond the book's MaxProgress is rewarded, so a finish bonus
// is earned once per book even across corrections.
func (s *Service) UpdateProgress(ctx context.Context, user core.UserID, bookID string, next int) (ProgressUpdated, error) {
	user, err := core.NormalizeUserID(user)
	if err != nil {
		return ProgressUpdated{}, err
	}
	if next < 0 || next > 100 {
		return ProgressUpdated{}, ErrInvalidProgress
	}

	var out ProgressUpdated
	var events []core.Event
	p, err := s.update(ctx, user, func(p *core.Profile) error {
		book, ok := p.Books[bookID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrBookNotFound, bookID)
		}
		if next < book.Progress {
			return ErrProgressDecrease
		}
		if next == book.Progress {
			out = ProgressUpdated{Book: book, Stats: p.Stats.Clone(), NextLevelExp: s.engine.RequiredExpForLevel(p.Stats.Level)}
			return errUnchanged
		}

		if next <= book.MaxProgress {
			book.Progress = next
			if next == 100 && !book.Finished {
				book.Finished = true
				p.CompletedCount++
				p.CategoryCounts[book.Category]++
			}
			p.Books[bookID] = book
			p.Updated = s.now().UTC()
			out = ProgressUpdated{
				Book:         book,
				Changed:      true,
				Restored:     true,
				Reward:       emptyReward(),
				Stats:        p.Stats.Clone(),
				NextLevelExp: s.engine.RequiredExpForLevel(p.Stats.Level),
			}
			events = []core.Event{core.NewProgressCorrected(user, book)}
			return nil
		}

		res := s.engine.ApplyProgressReward(progression.ProgressInput{
			Stats:                p.Stats,
			Book:                 book,
			PreviousProgress:     book.MaxProgress,
			NextProgress:         next,
			CompletedCountBefore: p.CompletedCount,
			CategoryCountsBefore: p.CategoryCounts,
			FinishedTitlesBefore: p.FinishedTitles,
		})
		before := p.Stats.Level
		book.Progress = next
		book.MaxProgress = next
		if res.Reward.FinishedNow {
			book.Finished = true
		}
		p.Books[bookID] = book
		p.Stats = res.Stats
		p.CompletedCount = res.CompletedCountAfter
		p.CategoryCounts = res.CategoryCountsAfter
		p.FinishedTitles = res.FinishedTitlesAfter
		p.Updated = s.now().UTC()

		out = ProgressUpdated{
			Book:         book,
			Changed:      true,
			Reward:       res.Reward,
			Stats:        res.Stats.Clone(),
			NextLevelExp: res.NextLevelExp,
		}
		events = events[:0]
		events = append(events, core.NewProgressRewarded(user, book, res.Reward.ExpGain))
		if res.Reward.FinishedNow {
			events = append(events, core.NewBookFinished(user, book))
		}
		events = append(events, levelUpEvents(user, before, res.Stats.Level)...)
		for _, sk := range res.Reward.UnlockedSkills {
			events = append(events, core.NewSkillUnlocked(user, sk))
		}
		for _, a := range res.Reward.UnlockedAchievements {
			events = append(events, core.NewAchievementUnlocked(user, a))
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return out, nil
	}
	if err != nil {
		return ProgressUpdated{}, err
	}

	if out.Reward.FinishedNow || (out.Restored && out.Book.Finished) {
		s.updateBoard(user, p.CompletedCount)
	}
	if out.Restored {
		s.logger.Debug("progress restored without reward", "user", user, "book", bookID, "progress", next)
		s.publish(ctx, events)
		return out, nil
	}
	for _, sk := range out.Reward.UnlockedSkills {
		s.logger.Info("skill unlocked", "user", user, "skill", sk.ID)
	}
	for _, a := range out.Reward.UnlockedAchievements {
		s.logger.Info("achievement unlocked", "user", user, "achievement", a.Name)
	}
	if out.Reward.LevelUps > 0 {
		s.logger.Info("level up", "user", user, "level", out.Stats.Level, "levels_gained", out.Reward.LevelUps)
	}
	s.publish(ctx, events)
	return out, nil
}

// CorrectProgress lowers the progress of a book without any reward. A
// finished book that drops below 100 stops counting as completed; unlocked
// skills and achievements are kept.
func (s *Service) CorrectProgress(ctx context.Context, user core.UserID, bookID string, value int) (ProgressCorrected, error) {
	user, err := core.NormalizeUserID(user)
	if err != nil {
		return ProgressCorrected{}, err
	}
	if value < 0 || value > 100 {
		return ProgressCorrected{}, ErrInvalidProgress
	}

	var out ProgressCorrected
	p, err := s.update(ctx, user, func(p *core.Profile) error {
		book, ok := p.Books[bookID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrBookNotFound, bookID)
		}
		if value > book.Progress {
			return ErrCorrectionIncrease
		}
		res := s.engine.ApplyProgressCorrection(progression.CorrectionInput{
			Book:                 book,
			NextProgress:         value,
			CompletedCountBefore: p.CompletedCount,
			CategoryCountsBefore: p.CategoryCounts,
		})
		out = ProgressCorrected{
			Book:           res.Book,
			Changed:        res.Changed,
			Unfinished:     res.Unfinished,
			CompletedCount: res.CompletedCountAfter,
		}
		if !res.Changed {
			return errUnchanged
		}
		p.Books[bookID] = res.Book
		p.CompletedCount = res.CompletedCountAfter
		p.CategoryCounts = res.CategoryCountsAfter
		p.Updated = s.now().UTC()
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return out, nil
	}
	if err != nil {
		return ProgressCorrected{}, err
	}
	if out.Unfinished {
		s.updateBoard(user, p.CompletedCount)
	}
	s.logger.Info("progress corrected", "user", user, "book", bookID, "progress", out.Book.Progress, "unfinished", out.Unfinished)
	s.publish(ctx, []core.Event{core.NewProgressCorrected(user, out.Book)})
	return out, nil
}

// GetProfile returns the stored profile of user.
func (s *Service) GetProfile(ctx context.Context, user core.UserID) (core.Profile, error) {
	user, err := core.NormalizeUserID(user)
	if err != nil {
		return core.Profile{}, err
	}
	p, err := s.storage.GetProfile(ctx, user)
	if err != nil {
		return core.Profile{}, err
	}
	p.Normalize()
	return p, nil
}

// Leaderboard returns the top n readers by completed books, or nil without a board.
func (s *Service) Leaderboard(n int) []leaderboard.Entry {
	if s.board == nil {
		return nil
	}
	return s.board.TopN(n)
}

// RebuildBoard loads every saved profile and ranks readers with at least one
// completed book. It returns the number of readers placed on the board and
// does nothing without a board or when storage cannot list its users.
func (s *Service) RebuildBoard(ctx context.Context) (int, error) {
	lister, ok := s.storage.(UserLister)
	if s.board == nil || !ok {
		return 0, nil
	}
	users, err := lister.Users(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	placed := 0
	for _, user := range users {
		p, err := s.storage.GetProfile(ctx, user)
		if err != nil {
			return placed, fmt.Errorf("load profile %s: %w", user, err)
		}
		if p.CompletedCount <= 0 {
			continue
		}
		s.board.Update(user, int64(p.CompletedCount))
		placed++
	}
	s.logger.Info("leaderboard rebuilt", "readers", placed, "scanned", len(users))
	return placed, nil
}

func (s *Service) updateBoard(user core.UserID, completed int) {
	if s.board == nil {
		return
	}
	s.board.Update(user, int64(completed))
}

func (s *Service) publish(ctx context.Context, events []core.Event) {
	now := s.now().UTC()
	for _, ev := range events {
		ev.Time = now
		s.bus.Publish(ctx, ev)
	}
}

// update runs a read-modify-write cycle on the profile of user, retrying
// when another writer saved in between.
func (s *Service) update(ctx context.Context, user core.UserID, fn func(*core.Profile) error) (core.Profile, error) {
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		p, err := s.storage.GetProfile(ctx, user)
		if err != nil {
			return core.Profile{}, fmt.Errorf("load profile: %w", err)
		}
		p.Normalize()
		p.UserID = user
		if err := fn(&p); err != nil {
			return core.Profile{}, err
		}
		err = s.storage.SaveProfile(ctx, p)
		if err == nil {
			p.Version++
			return p, nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return core.Profile{}, fmt.Errorf("save profile: %w", err)
		}
		s.logger.Warn("profile version conflict, retrying", "user", user, "attempt", attempt)
	}
	return core.Profile{}, fmt.Errorf("save profile after %d attempts: %w", maxConflictRetries, core.ErrVersionConflict)
}

func emptyReward() progression.Reward {
	return progression.Reward{
		AttributeGain:        core.Attributes{},
		UnlockedSkills:       []core.Skill{},
		UnlockedAchievements: []core.Achievement{},
	}
}

func levelUpEvents(user core.UserID, from, to int) []core.Event {
	var out []core.Event
	for lvl := from + 1; lvl <= to; lvl++ {
		out = append(out, core.NewLevelUp(user, lvl))
	}
	return out
}

func normalizeCategory(c core.Category) (core.Category, error) {
	c = core.Category(strings.ToLower(strings.TrimSpace(string(c))))
	if c == "" {
		return core.CategoryOther, nil
	}
	if !c.Known() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, c)
	}
	return c, nil
}
