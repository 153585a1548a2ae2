// Package racedata is the reference race-data adapter shipped alongside
// this coordinator: two SQL-backed implementations of raceio.RaceData
// (SQLite via modernc.org/sqlite, PostgreSQL via lib/pq), selected from
// config the same way internal/storage.NewStorage picks a backend, with
// schema migrations run through golang-migrate. A production deployment
// embedding the coordinator inside the primary race server supplies its
// own raceio.RaceData and never imports this package.
package racedata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/rotorhazard/clustercoord/internal/raceio"
)

// Config selects and configures a race-data backend.
type Config struct {
	// Backend is "sqlite" or "postgres".
	Backend string

	// SQLitePath is the SQLite database file path, or ":memory:". Used
	// only when Backend == "sqlite".
	SQLitePath string

	// PostgresURL is the PostgreSQL connection string. Used only when
	// Backend == "postgres".
	PostgresURL string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ApplyDefaults fills in zero-valued pool settings with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "sqlite"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "./clustercoord.db"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
}

// Store is a SQL-backed raceio.RaceData implementation. Its query dialect
// is chosen at construction time by NewStore.
type Store struct {
	db      *sql.DB
	backend string
}

// NewStore opens a database connection for cfg.Backend, runs pending
// migrations, and returns a Store satisfying raceio.RaceData. The caller
// owns the returned Store's lifetime and must call Close.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	cfg.ApplyDefaults()

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Backend {
	case "sqlite":
		dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", cfg.SQLitePath)
		db, err = sql.Open("sqlite", dsn)
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres backend requires PostgresURL")
		}
		db, err = sql.Open("postgres", cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unsupported race-data backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Backend, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Backend, err)
	}

	if err := runMigrations(db, cfg.Backend); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, backend: cfg.Backend}, nil
}

// Close releases the underlying database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// placeholder returns the n-th bind placeholder in this Store's dialect.
func (s *Store) placeholder(n int) string {
	if s.backend == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// PilotFromHeatNode implements raceio.RaceData.
func (s *Store) PilotFromHeatNode(ctx context.Context, heat, node int) (int, bool) {
	query := fmt.Sprintf(
		"SELECT pilot_id FROM heat_nodes WHERE heat = %s AND node = %s",
		s.placeholder(1), s.placeholder(2))

	var pilotID int
	err := s.db.QueryRowContext(ctx, query, heat, node).Scan(&pilotID)
	if err != nil {
		return 0, false
	}
	return pilotID, true
}

// LapSplits implements raceio.RaceData.
func (s *Store) LapSplits(ctx context.Context, node, lapCount int) ([]raceio.Split, error) {
	query := fmt.Sprintf(`
		SELECT split_id, split_timestamp, split_time, split_speed
		FROM splits
		WHERE node = %s AND lap_count = %s
		ORDER BY split_id ASC`,
		s.placeholder(1), s.placeholder(2))

	rows, err := s.db.QueryContext(ctx, query, node, lapCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query lap splits: %w", err)
	}
	defer rows.Close()

	var splits []raceio.Split
	for rows.Next() {
		var (
			sp    raceio.Split
			speed sql.NullFloat64
		)
		if err := rows.Scan(&sp.ID, &sp.SplitTimeStamp, &sp.SplitTime, &speed); err != nil {
			return nil, fmt.Errorf("failed to scan split row: %w", err)
		}
		if speed.Valid {
			v := speed.Float64
			sp.SplitSpeed = &v
		}
		splits = append(splits, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating split rows: %w", err)
	}

	return splits, nil
}

// AddLapSplit implements raceio.RaceData.
func (s *Store) AddLapSplit(ctx context.Context, node, lapCount int, rec raceio.Split) error {
	query := fmt.Sprintf(`
		INSERT INTO splits (node, lap_count, split_id, split_timestamp, split_time, split_speed)
		VALUES (%s, %s, %s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3),
		s.placeholder(4), s.placeholder(5), s.placeholder(6))

	_, err := s.db.ExecContext(ctx, query,
		node, lapCount, rec.ID, rec.SplitTimeStamp, rec.SplitTime, rec.SplitSpeed)
	if err != nil {
		return fmt.Errorf("failed to insert split: %w", err)
	}
	return nil
}

// TimeFormat implements raceio.RaceData.
func (s *Store) TimeFormat(ctx context.Context) (string, error) {
	query := fmt.Sprintf("SELECT value FROM settings WHERE key = %s", s.placeholder(1))

	var value string
	if err := s.db.QueryRowContext(ctx, query, "time_format").Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "{m}:{s}.{d}", nil
		}
		return "", fmt.Errorf("failed to read time format: %w", err)
	}
	return value, nil
}

// SetPilotForHeatNode is a test/seed helper for assigning a pilot to a
// heat/node pair, mirroring the data a production embedding's race
// scheduler would already have written.
func (s *Store) SetPilotForHeatNode(ctx context.Context, heat, node, pilotID int) error {
	var query string
	if s.backend == "postgres" {
		query = `
			INSERT INTO heat_nodes (heat, node, pilot_id) VALUES ($1, $2, $3)
			ON CONFLICT (heat, node) DO UPDATE SET pilot_id = excluded.pilot_id`
	} else {
		query = `
			INSERT INTO heat_nodes (heat, node, pilot_id) VALUES (?, ?, ?)
			ON CONFLICT (heat, node) DO UPDATE SET pilot_id = excluded.pilot_id`
	}
	if _, err := s.db.ExecContext(ctx, query, heat, node, pilotID); err != nil {
		return fmt.Errorf("failed to assign pilot to heat/node: %w", err)
	}
	return nil
}
