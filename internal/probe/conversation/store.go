// Package conversation is the append-only log of every turn exchanged with
// an agent under test, keyed by (user, app, session).
//
// Rows are immutable through this package's API. The attack package writes
// synthetic rows through Append with forged timestamps and metadata; nothing
// here stops it.
package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/probelabs/memprobe/internal/probe/store"
)

// timeFormat is RFC 3339 with a fixed nine-digit fraction so stored strings
// sort lexicographically in chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Role tags who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one message in the conversation log.
type Turn struct {
	ID        int64
	UserID    string
	AppName   string
	SessionID string
	Role      Role
	Content   string
	Timestamp time.Time
	// Metadata is an open key/value map. Attack tooling uses it to tag
	// synthetic rows (e.g. {"attack_type": "planted_conversation"}).
	Metadata map[string]any
}

// Store persists conversation turns in the conversations table.
type Store struct {
	db     *store.Store
	logger *slog.Logger
}

// New creates a Store backed by the harness database. If logger is nil, the
// default slog logger is used.
func New(db *store.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Append stores a turn and returns its row id. A zero Timestamp is replaced
// with the current UTC time; any other value, including one far in the past
// or future, is stored verbatim. Content is accepted byte-for-byte.
func (s *Store) Append(ctx context.Context, t Turn) (int64, error) {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var metadataJSON []byte
	if len(t.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(t.Metadata)
		if err != nil {
			return 0, fmt.Errorf("conversation: marshal metadata: %w", err)
		}
	}

	res, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO conversations
			(user_id, app_name, session_id, timestamp, message_type, content, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.AppName, t.SessionID,
		ts.UTC().Format(timeFormat),
		string(t.Role), t.Content, metadataJSON,
	)
	if err != nil {
		return 0, store.WrapError("conversation append", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, store.WrapError("conversation append id", err)
	}

	s.logger.Debug("conversation: appended turn",
		"turn_id", id,
		"user_id", t.UserID,
		"app_name", t.AppName,
		"session_id", t.SessionID,
		"role", string(t.Role),
		"content_len", len(t.Content),
	)
	return id, nil
}

// List returns turns for the user/app ordered by timestamp ascending.
// When sessionID is empty, turns from all of the user's sessions are
// returned in one timeline.
func (s *Store) List(ctx context.Context, userID, appName, sessionID string) ([]Turn, error) {
	query := `
		SELECT id, user_id, app_name, session_id, timestamp, message_type, content, metadata
		FROM conversations
		WHERE user_id = ? AND app_name = ?`
	args := []any{userID, appName}
	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.WrapError("conversation list", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			s.logger.Warn("conversation: skip malformed row", "err", err)
			continue
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.WrapError("conversation list rows", err)
	}
	return turns, nil
}

// Purge deletes all turns for the user/app and returns the count removed.
// This is test-scenario cleanup, not a security control: any caller may purge
// any user.
func (s *Store) Purge(ctx context.Context, userID, appName string) (int64, error) {
	res, err := s.db.DB().ExecContext(ctx,
		`DELETE FROM conversations WHERE user_id = ? AND app_name = ?`,
		userID, appName,
	)
	if err != nil {
		return 0, store.WrapError("conversation purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.WrapError("conversation purge count", err)
	}
	if n > 0 {
		s.logger.Debug("conversation: purged turns", "user_id", userID, "app_name", appName, "count", n)
	}
	return n, nil
}

// scanTurn reads a single row from the conversations table.
func scanTurn(rows *sql.Rows) (Turn, error) {
	var (
		t            Turn
		role         string
		tsStr        string
		metadataJSON sql.NullString
	)
	err := rows.Scan(&t.ID, &t.UserID, &t.AppName, &t.SessionID, &tsStr, &role, &t.Content, &metadataJSON)
	if err != nil {
		return Turn{}, fmt.Errorf("scan row: %w", err)
	}
	t.Role = Role(role)

	ts, err := time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		return Turn{}, fmt.Errorf("parse timestamp: %w", err)
	}
	t.Timestamp = ts

	if metadataJSON.Valid && metadataJSON.String != "" {
		t.Metadata = make(map[string]any)
		if err := json.Unmarshal([]byte(metadataJSON.String), &t.Metadata); err != nil {
			return Turn{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return t, nil
}
