package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// DB wraps the sqlite handle backing the dispatch journal.
//
// The journal is an audit side effect only: nothing in the watcher reads it
// back for throttle or presence decisions. A process restart re-derives all
// state from the next poll.
type DB struct {
	*sql.DB
}

// DBConfig holds journal database settings.
type DBConfig struct {
	// When disabled, dispatches and poll stats are discarded.
	Enabled bool `toml:"enabled"`

	DSN string `toml:"dsn"`

	MaxOpenConns    int           `toml:"max_open_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

// DefaultDBConfig returns journal database defaults.
func DefaultDBConfig() DBConfig {
	return DBConfig{
		Enabled:         true,
		DSN:             "whisperwatch.db",
		MaxOpenConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Open creates the journal database connection and applies the schema.
func Open(config DBConfig) (*DB, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("journal DSN must be specified")
	}

	db, err := sql.Open("sqlite3", config.DSN)
	if err != nil {
		return nil, err
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	j := &DB{DB: db}
	if err := j.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply journal schema: %w", err)
	}

	return j, nil
}

// applySchema creates the journal tables if they do not exist.
func (db *DB) applySchema() error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertDispatch writes one dispatch record.
func (db *DB) InsertDispatch(rec DispatchRecord) error {
	_, err := db.Exec(`
		INSERT INTO dispatches (id, target_id, display_name, code, sent_at, stamp, verified, channel)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TargetID, rec.DisplayName, rec.Code,
		rec.SentAt.UTC().Format(time.RFC3339Nano), rec.Stamp, rec.Verified, rec.Channel,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dispatch %s: %w", rec.ID, err)
	}
	return nil
}

// InsertPollStats writes one batch of poll cycle statistics.
func (db *DB) InsertPollStats(stats []PollStats) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO poll_stats (id, polled_at, duration_us, target_count, online_count, degraded_count, dispatch_count, verified_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range stats {
		_, err := stmt.Exec(
			s.ID, s.PolledAt.UTC().Format(time.RFC3339Nano), s.Duration.Microseconds(),
			s.TargetCount, s.OnlineCount, s.DegradedCount, s.DispatchCount, s.VerifiedCount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert poll stats %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// CountDispatches returns the number of journaled dispatches, optionally
// filtered by target. Used by reporting tools and tests, never by the
// watcher.
func (db *DB) CountDispatches(targetID string) (int, error) {
	var count int
	var err error
	if targetID == "" {
		err = db.QueryRow(`SELECT COUNT(*) FROM dispatches`).Scan(&count)
	} else {
		err = db.QueryRow(`SELECT COUNT(*) FROM dispatches WHERE target_id = ?`, targetID).Scan(&count)
	}
	return count, err
}
