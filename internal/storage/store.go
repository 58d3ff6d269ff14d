package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"dutch_auction/internal/event"
)

// Store is the program's durable storage: a WAL of every handled message
// plus a small record table holding the current auction state. Recovery
// replays the WAL through the same dispatch path as live traffic.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY,
			kind INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveMessage appends a handled message to the WAL, keyed by its sequence
// number.
func (s *Store) SaveMessage(ctx context.Context, m event.Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO messages (id, kind, ts, payload) VALUES (?, ?, ?, ?)",
		m.GetSeq(), m.GetKind(), m.GetTs(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message %d: %w", m.GetSeq(), err)
	}
	return nil
}

// LoadMessages loads all messages from the WAL starting at fromSeq
// (inclusive), in sequence order.
func (s *Store) LoadMessages(ctx context.Context, fromSeq uint64) ([]event.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, payload FROM messages WHERE id >= ? ORDER BY id ASC",
		fromSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []event.Message
	for rows.Next() {
		var id int64
		var kind int
		var payload []byte
		if err := rows.Scan(&id, &kind, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		m, err := decodeMessage(event.Kind(kind), payload)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", id, err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return messages, nil
}

func decodeMessage(kind event.Kind, payload []byte) (event.Message, error) {
	var m event.Message
	switch kind {
	case event.MsgStart:
		m = &event.StartMessage{}
	case event.MsgBuy:
		m = &event.BuyMessage{}
	case event.MsgStop:
		m = &event.StopMessage{}
	case event.MsgInfo:
		m = &event.InfoMessage{}
	case event.MsgTransferReply:
		m = &event.TransferReplyMessage{}
	default:
		return nil, fmt.Errorf("unknown message kind %d", kind)
	}
	if err := json.Unmarshal(payload, m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s message: %w", kind, err)
	}
	return m, nil
}

// GetLastSeq returns the highest sequence number in the WAL, 0 when empty.
func (s *Store) GetLastSeq(ctx context.Context) (uint64, error) {
	var lastSeq sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM messages").Scan(&lastSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !lastSeq.Valid {
		return 0, nil
	}
	return uint64(lastSeq.Int64), nil
}

// SaveRecord upserts a key-value record. The handler stores the current
// auction state under "auction" after every message.
func (s *Store) SaveRecord(ctx context.Context, key, value string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// LoadRecord retrieves a record value, "" when absent.
func (s *Store) LoadRecord(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM records WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
