// Package history keeps a local SQLite log of connection events for
// the history command.
package history

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mbeltran/nmvpn/common"
)

// Event kinds recorded in the log.
const (
	KindConnect    = "connect"
	KindDisconnect = "disconnect"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	kind     TEXT NOT NULL,
	server   TEXT NOT NULL,
	protocol TEXT NOT NULL,
	at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
`

// Event is one connect or disconnect entry.
type Event struct {
	// ID is the database row id.
	ID int64
	// Kind is KindConnect or KindDisconnect.
	Kind string
	// Server is the canonical servername the event refers to.
	Server string
	// Protocol is the transport the connection used.
	Protocol string
	// At is when the event occurred.
	At time.Time
}

// Store is the SQLite-backed event log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the event log at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, common.WrapError(err, "failed to open history database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, common.WrapError(err, "failed to initialize history schema")
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends an event. A zero At is stamped with the current time.
func (s *Store) Record(e Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.Exec(
		"INSERT INTO events (kind, server, protocol, at) VALUES (?, ?, ?, ?)",
		e.Kind, e.Server, e.Protocol, e.At,
	)
	if err != nil {
		return common.WrapError(err, "failed to record event")
	}
	return nil
}

// Recent returns the n most recent events, newest first.
func (s *Store) Recent(n int) ([]Event, error) {
	rows, err := s.db.Query(
		"SELECT id, kind, server, protocol, at FROM events ORDER BY at DESC, id DESC LIMIT ?", n,
	)
	if err != nil {
		return nil, common.WrapError(err, "failed to query events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.Server, &e.Protocol, &e.At); err != nil {
			return nil, common.WrapError(err, "failed to scan event")
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
