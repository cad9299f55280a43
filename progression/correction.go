package progression

import "readquest/core"

// CorrectionInput lowers the recorded progress of a book.
type CorrectionInput struct {
	Book                 core.Book
	NextProgress         int
	CompletedCountBefore int
	CategoryCountsBefore map[core.Category]int
}

// CorrectionOutcome is the corrected book and counters.
type CorrectionOutcome struct {
	Book                core.Book             `json:"book"`
	CompletedCountAfter int                   `json:"completed_count_after"`
	CategoryCountsAfter map[core.Category]int `json:"category_counts_after"`
	Changed             bool                  `json:"changed"`
	Unfinished          bool                  `json:"unfinished"`
}

// ApplyProgressCorrection is the non-rewarding path for lowering progress. It
// never grants exp or attributes and never evaluates skills or achievements;
// earned unlocks are kept. A finished book that drops below 100 stops counting
// toward the completed and per-category totals. Finished titles are all-time
// and are not touched. A NextProgress at or above the current value is a no-op.
func (e *Engine) ApplyProgressCorrection(in CorrectionInput) CorrectionOutcome {
	book := in.Book
	counts := make(map[core.Category]int, len(in.CategoryCountsBefore))
	for k, v := range in.CategoryCountsBefore {
		counts[k] = v
	}
	completed := in.CompletedCountBefore
	if completed < 0 {
		completed = 0
	}
	out := CorrectionOutcome{Book: book, CompletedCountAfter: completed, CategoryCountsAfter: counts}

	next := clampProgress(in.NextProgress)
	if next >= clampProgress(book.Progress) {
		return out
	}
	out.Changed = true
	out.Book.Progress = next
	if book.Finished && next < 100 {
		out.Book.Finished = false
		out.Unfinished = true
		if out.CompletedCountAfter > 0 {
			out.CompletedCountAfter--
		}
		if counts[book.Category] > 0 {
			counts[book.Category]--
		}
	}
	return out
}
