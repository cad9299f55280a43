// Package leaderboard ranks readers by completed books.
package leaderboard

import "readquest/core"

// Entry is one reader on the board. Score is the completed-book count.
type Entry struct {
	User  core.UserID `json:"user"`
	Score int64       `json:"score"`
	Rank  int         `json:"rank,omitempty"`
}

// Board abstracts leaderboard operations. Ties are ordered by user id.
type Board interface {
	Update(user core.UserID, score int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
	Len() int
}
