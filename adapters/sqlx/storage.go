// Package sqlx stores reader profiles in a SQL database through jmoiron/sqlx.
// Postgres, MySQL and SQLite are supported.
package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"readquest/core"
)

// Driver names a supported database/sql driver.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
)

// Config holds SQL connection configuration.
type Config struct {
	Driver          Driver        `json:"driver" env:"DRIVER"`
	DSN             string        `json:"dsn" env:"DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// DefaultConfig returns pool defaults for driver with an empty DSN.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements engine.Storage on a single reader_profiles table.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New opens the database, checks connectivity and creates the schema.
func New(cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	db, err := sqlx.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	s := NewWithDB(db, cfg.Driver)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing handle, e.g. one backed by sqlmock.
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the profile table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	userCol := "TEXT"
	if s.driver == DriverMySQL {
		userCol = "VARCHAR(191)"
	}
	stmt := `CREATE TABLE IF NOT EXISTS reader_profiles (
		user_id ` + userCol + ` PRIMARY KEY,
		version BIGINT NOT NULL,
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type profileRow struct {
	Version int64  `db:"version"`
	Data    string `db:"data"`
}

// GetProfile loads the stored profile or returns a fresh one.
func (s *Store) GetProfile(ctx context.Context, user core.UserID) (core.Profile, error) {
	var row profileRow
	q := s.db.Rebind(`SELECT version, data FROM reader_profiles WHERE user_id = ?`)
	err := s.db.GetContext(ctx, &row, q, string(user))
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewProfile(user), nil
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("select profile: %w", err)
	}
	var p core.Profile
	if err := json.Unmarshal([]byte(row.Data), &p); err != nil {
		return core.Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	p.Version = row.Version
	p.Normalize()
	return p, nil
}

// SaveProfile inserts version 1 for new readers and otherwise updates the row
// only if its version still equals p.Version.
func (s *Store) SaveProfile(ctx context.Context, p core.Profile) error {
	next := p
	next.Version = p.Version + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	now := time.Now().UTC()

	if p.Version == 0 {
		q := s.db.Rebind(`INSERT INTO reader_profiles (user_id, version, data, updated_at) VALUES (?, ?, ?, ?)`)
		if _, err := s.db.ExecContext(ctx, q, string(p.UserID), next.Version, string(data), now); err != nil {
			if s.exists(ctx, p.UserID) {
				return core.ErrVersionConflict
			}
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	}

	q := s.db.Rebind(`UPDATE reader_profiles SET version = ?, data = ?, updated_at = ? WHERE user_id = ? AND version = ?`)
	res, err := s.db.ExecContext(ctx, q, next.Version, string(data), now, string(p.UserID), p.Version)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n == 0 {
		return core.ErrVersionConflict
	}
	return nil
}

func (s *Store) exists(ctx context.Context, user core.UserID) bool {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM reader_profiles WHERE user_id = ?`)
	if err := s.db.GetContext(ctx, &n, q, string(user)); err != nil {
		return false
	}
	return n > 0
}

// Users lists stored users in sorted order.
func (s *Store) Users(ctx context.Context) ([]core.UserID, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT user_id FROM reader_profiles ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]core.UserID, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.UserID(id))
	}
	return out, nil
}
