package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"readquest/core"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"ADDR"`
	Password     string        `json:"password,omitempty" env:"PASSWORD"`
	DB           int           `json:"db" env:"DB"`
	PoolSize     int           `json:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	// KeyPrefix namespaces every key, e.g. "readquest:".
	KeyPrefix string `json:"key_prefix" env:"KEY_PREFIX"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "readquest:",
	}
}

// Store implements engine.Storage on Redis.
// Keys:
//   - {prefix}profile:{user}         -> JSON profile
//   - {prefix}profile:{user}:version -> int64 stored version
//   - {prefix}users                  -> set of user ids
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client, prefix: config.KeyPrefix}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Client exposes the underlying client so other components can share the pool.
func (s *Store) Client() *redis.Client { return s.client }

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) profileKey(user core.UserID) string {
	return fmt.Sprintf("%sprofile:%s", s.prefix, user)
}

func (s *Store) versionKey(user core.UserID) string {
	return s.profileKey(user) + ":version"
}

func (s *Store) usersKey() string {
	return s.prefix + "users"
}

// saveProfileScript writes the profile only when the stored version matches.
// Returns the new version, or -1 on conflict.
var saveProfileScript = redis.NewScript(`
	local current = tonumber(redis.call('GET', KEYS[2]) or '0')
	local expected = tonumber(ARGV[1])
	if current ~= expected then
		return -1
	end
	redis.call('SET', KEYS[1], ARGV[2])
	redis.call('SADD', KEYS[3], ARGV[3])
	return redis.call('INCR', KEYS[2])
`)

// GetProfile loads the stored profile or returns a fresh one.
func (s *Store) GetProfile(ctx context.Context, user core.UserID) (core.Profile, error) {
	data, err := s.client.Get(ctx, s.profileKey(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.NewProfile(user), nil
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	var p core.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return core.Profile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	p.Normalize()
	return p, nil
}

// SaveProfile stores p atomically if nobody saved since it was loaded.
func (s *Store) SaveProfile(ctx context.Context, p core.Profile) error {
	next := p
	next.Version = p.Version + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	keys := []string{s.profileKey(p.UserID), s.versionKey(p.UserID), s.usersKey()}
	result, err := saveProfileScript.Run(ctx, s.client, keys, p.Version, data, string(p.UserID)).Int64()
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	if result < 0 {
		return core.ErrVersionConflict
	}
	return nil
}

// Users lists every user with a stored profile in sorted order.
func (s *Store) Users(ctx context.Context) ([]core.UserID, error) {
	members, err := s.client.SMembers(ctx, s.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	sort.Strings(members)
	out := make([]core.UserID, 0, len(members))
	for _, m := range members {
		out = append(out, core.UserID(m))
	}
	return out, nil
}
