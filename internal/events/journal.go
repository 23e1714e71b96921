package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS events (
	event_id      TEXT PRIMARY KEY,
	event_type    TEXT NOT NULL,
	event_version INTEGER NOT NULL,
	seq           INTEGER NOT NULL,
	tx_hash       TEXT NOT NULL,
	contract      TEXT NOT NULL,
	log_index     INTEGER NOT NULL,
	timestamp     INTEGER NOT NULL,
	payload       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS events_by_type ON events(event_type);
CREATE INDEX IF NOT EXISTS events_by_seq ON events(seq, log_index);
`

// DefaultQueryLimit caps journal queries that do not set a limit
const DefaultQueryLimit = 100

// Journal is an append-only SQLite log of protocol events
type Journal struct {
	db *sql.DB
}

// OpenJournal opens or creates the journal at path. ":memory:" keeps it in process.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// one connection keeps ":memory:" a single database and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Name() string {
	return "journal"
}

// Publish appends envs; envelopes already journaled are skipped
func (j *Journal) Publish(ctx context.Context, envs []Envelope) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO events
		(event_id, event_type, event_version, seq, tx_hash, contract, log_index, timestamp, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare journal insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range envs {
		if _, err := stmt.ExecContext(ctx,
			e.EventID, e.EventType, e.EventVersion, e.Seq, e.TxHash, e.Contract, e.Index, e.Timestamp.Unix(), []byte(e.Payload),
		); err != nil {
			return fmt.Errorf("insert event %s: %w", e.EventID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal tx: %w", err)
	}
	return nil
}

// Query returns up to limit events, newest commit first. An empty eventType matches every type.
func (j *Journal) Query(ctx context.Context, eventType string, limit int) ([]Envelope, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := `SELECT event_id, event_type, event_version, seq, tx_hash, contract, log_index, timestamp, payload
		FROM events`
	args := []any{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY seq DESC, log_index DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		var (
			e       Envelope
			ts      int64
			payload []byte
		)
		if err := rows.Scan(&e.EventID, &e.EventType, &e.EventVersion, &e.Seq, &e.TxHash, &e.Contract, &e.Index, &ts, &payload); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		e.Payload = payload
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return out, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
