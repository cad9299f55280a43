package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"readquest/core"
	"readquest/leaderboard"
)

// Board is a leaderboard.Board on a Redis sorted set shared by every
// server instance. Scores are stored negated so that ZRANGE yields
// highest score first with ties in ascending member order.
type Board struct {
	client  *redis.Client
	key     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewBoard returns a board stored under {prefix}leaderboard.
func NewBoard(client *redis.Client, prefix string, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{client: client, key: prefix + "leaderboard", timeout: time.Second, logger: logger}
}

func (b *Board) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.timeout)
}

func (b *Board) Update(user core.UserID, score int64) {
	ctx, cancel := b.ctx()
	defer cancel()
	if err := b.client.ZAdd(ctx, b.key, redis.Z{Score: float64(-score), Member: string(user)}).Err(); err != nil {
		b.logger.Warn("leaderboard update failed", "user", user, "error", err)
	}
}

func (b *Board) Remove(user core.UserID) {
	ctx, cancel := b.ctx()
	defer cancel()
	if err := b.client.ZRem(ctx, b.key, string(user)).Err(); err != nil {
		b.logger.Warn("leaderboard remove failed", "user", user, "error", err)
	}
}

func (b *Board) TopN(n int) []leaderboard.Entry {
	if n <= 0 {
		return nil
	}
	ctx, cancel := b.ctx()
	defer cancel()
	zs, err := b.client.ZRangeWithScores(ctx, b.key, 0, int64(n-1)).Result()
	if err != nil {
		b.logger.Warn("leaderboard read failed", "error", err)
		return nil
	}
	out := make([]leaderboard.Entry, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, leaderboard.Entry{User: core.UserID(member), Score: int64(-z.Score), Rank: i + 1})
	}
	return out
}

func (b *Board) Get(user core.UserID) (leaderboard.Entry, bool) {
	ctx, cancel := b.ctx()
	defer cancel()
	score, err := b.client.ZScore(ctx, b.key, string(user)).Result()
	if err != nil {
		return leaderboard.Entry{}, false
	}
	rank, err := b.client.ZRank(ctx, b.key, string(user)).Result()
	if err != nil {
		return leaderboard.Entry{}, false
	}
	return leaderboard.Entry{User: user, Score: int64(-score), Rank: int(rank) + 1}, true
}

func (b *Board) Len() int {
	ctx, cancel := b.ctx()
	defer cancel()
	n, err := b.client.ZCard(ctx, b.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

var _ leaderboard.Board = (*Board)(nil)
