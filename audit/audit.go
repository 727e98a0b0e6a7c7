// Package audit persists CRITICAL-severity datapath events to SQLite: a gap
// manager giving up on a missing sequence number, a too-low sequence number
// forcing a disconnect, a checksum failure, message-pool exhaustion, and an
// outbound message dropped after its send retries were exhausted.
// These are the events spec.md's error-handling table marks severity
// CRITICAL — everything lower stays in the structured log only.
//
// Grounded on the teacher's database/marketdata.go: sql.Open with the same
// WAL/NORMAL/cache_size pragma string, a prepared statement held for the
// lifetime of the DB handle and reused across inserts, and an initSchema
// step run once at construction. The teacher's own query-string and
// CREATE TABLE definitions live in a file the retained original_source set
// doesn't include, so the schema and insert statement below are authored
// fresh for this domain's event shape rather than transcribed.
package audit

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Severity mirrors spec.md §7's error-handling table severities. Only
// Critical events are written to the sink; Warning/Info stay in the log.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
)

const createTableQuery = `
CREATE TABLE IF NOT EXISTS critical_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	occurred_at TEXT    NOT NULL,
	category    TEXT    NOT NULL,
	detail      TEXT    NOT NULL,
	seq_num     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_critical_events_category ON critical_events(category);
`

const insertEventQuery = `INSERT INTO critical_events (occurred_at, category, detail, seq_num) VALUES (?, ?, ?, ?)`

// Sink is an append-only SQLite log of CRITICAL datapath events.
type Sink struct {
	db       *sql.DB
	stmt     *sql.Stmt
	logger   *log.Logger
}

// Open creates (or attaches to) the SQLite database at path, mirroring the
// teacher's NewMarketDataDb pragma string for a single-writer append-mostly
// workload.
func Open(path string) (*Sink, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	if _, err := db.Exec(createTableQuery); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}

	stmt, err := db.Prepare(insertEventQuery)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: prepare insert statement: %w", err)
	}

	return &Sink{
		db:     db,
		stmt:   stmt,
		logger: log.New(log.Writer(), "[audit] ", log.LstdFlags|log.Lmicroseconds),
	}, nil
}

// Close releases the prepared statement and the underlying database handle.
func (s *Sink) Close() error {
	if s.stmt != nil {
		_ = s.stmt.Close()
	}
	return s.db.Close()
}

// Record writes one CRITICAL event. seqNum is the message sequence number
// most relevant to the event, or 0 if not applicable (e.g. pool
// exhaustion). Failures to write are logged rather than returned, since an
// audit sink going down must never itself take the datapath down with it.
func (s *Sink) Record(category, detail string, seqNum int32) {
	_, err := s.stmt.Exec(time.Now().UTC().Format(time.RFC3339Nano), category, detail, seqNum)
	if err != nil {
		s.logger.Printf("ERROR: failed to persist critical event (category=%s): %v", category, err)
	}
}

// GapGiveUpCategory/SequenceTooLowCategory/ChecksumErrorCategory/
// PoolExhaustedCategory/TransportFailureCategory name the categories this repo's components report,
// so callers don't have to invent ad hoc strings at each call site.
const (
	GapGiveUpCategory        = "gap_give_up"
	SequenceTooLowCategory   = "sequence_too_low"
	ChecksumErrorCategory    = "checksum_error"
	PoolExhaustedCategory    = "pool_exhausted"
	TransportFailureCategory = "transport_failure"
)
