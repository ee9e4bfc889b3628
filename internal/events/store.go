package events

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/thebronway/domain-manager/pkg/logger"
)

// Event is one recorded engine activity: a delivered notification, a
// manual trigger, or a renewal.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Domain    string    `json:"domain,omitempty"`
	Subject   string    `json:"subject"`
	Detail    string    `json:"detail,omitempty"`
}

// Store keeps the event history in sqlite for the dashboard API.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	ts TEXT NOT NULL,
	kind TEXT NOT NULL,
	domain TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events (ts DESC);
`

// Open opens (and if needed initializes) the event database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open events database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize events schema: %w", err)
	}

	return &Store{db: db, log: logger.GetLogger()}, nil
}

// Record inserts one event. Failures are logged, never propagated;
// history is best-effort and must not fail the operation it describes.
func (s *Store) Record(kind, domain, subject, detail string) {
	_, err := s.db.Exec(
		`INSERT INTO events (id, ts, kind, domain, subject, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		time.Now().UTC().Format(time.RFC3339Nano),
		kind, domain, subject, detail,
	)
	if err != nil {
		s.log.Error("Failed to record event", "kind", kind, "error", err)
	}
}

// Recent returns the newest events, most recent first.
func (s *Store) Recent(limit int) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT id, ts, kind, domain, subject, detail FROM events ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.Domain, &e.Subject, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if parsed, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			e.Timestamp = parsed
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
