package journal

import "time"

// DispatchRecord is one journaled dispatch attempt, written after the send
// completes and updated in-memory with the verification outcome before
// flushing.
type DispatchRecord struct {
	ID          string
	TargetID    string
	DisplayName string
	Code        string
	SentAt      time.Time
	Stamp       string
	Verified    bool
	Channel     string
}

// PollStats captures one poll cycle's aggregate outcome.
type PollStats struct {
	ID            string
	PolledAt      time.Time
	Duration      time.Duration
	TargetCount   int
	OnlineCount   int
	DegradedCount int
	DispatchCount int
	VerifiedCount int
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS dispatches (
		id           TEXT PRIMARY KEY,
		target_id    TEXT NOT NULL,
		display_name TEXT NOT NULL,
		code         TEXT NOT NULL,
		sent_at      TEXT NOT NULL,
		stamp        TEXT NOT NULL,
		verified     INTEGER NOT NULL DEFAULT 0,
		channel      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dispatches_target ON dispatches (target_id, sent_at)`,
	`CREATE TABLE IF NOT EXISTS poll_stats (
		id             TEXT PRIMARY KEY,
		polled_at      TEXT NOT NULL,
		duration_us    INTEGER NOT NULL,
		target_count   INTEGER NOT NULL,
		online_count   INTEGER NOT NULL,
		degraded_count INTEGER NOT NULL,
		dispatch_count INTEGER NOT NULL,
		verified_count INTEGER NOT NULL
	)`,
}
