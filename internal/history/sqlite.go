package history

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/pkg/errors"
)

// SQLiteStore keeps each session's log as a single row.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates, if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS conversations (
        session_id TEXT PRIMARY KEY,
        messages TEXT NOT NULL,
        updated_at DATETIME NOT NULL
    );`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create conversations table")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) ([]Message, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT messages FROM conversations WHERE session_id = ?;`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, storageErr(s.Name(), "load", sessionID, errors.Wrap(err, "select conversation"))
	}
	msgs, err := Decode([]byte(raw))
	if err != nil {
		return nil, storageErr(s.Name(), "load", sessionID, errors.Wrap(err, "decode conversation"))
	}
	return msgs, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sessionID string, messages []Message) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	data, err := Encode(messages)
	if err != nil {
		return storageErr(s.Name(), "save", sessionID, errors.Wrap(err, "encode"))
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO conversations (session_id, messages, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(session_id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at;`,
		sessionID, string(data), time.Now().UTC())
	if err != nil {
		return storageErr(s.Name(), "save", sessionID, errors.Wrap(err, "upsert conversation"))
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
