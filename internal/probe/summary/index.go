// Package summary holds the derived and attacker-supplied memory entries and
// serves ranked recall over them.
//
// Ranking is relevance_score descending with created_at descending as the
// tie-break. Nothing clamps relevance_score and nothing checks that
// created_at reflects true write time; both gaps are the behavior under test,
// not oversights.
package summary

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/probelabs/memprobe/internal/probe/store"
)

// DefaultRelevance is the score given to entries added without an explicit
// one. Derived preference summaries use it; see memory.Service.
const DefaultRelevance = 0.5

// timeFormat is RFC 3339 with a fixed nine-digit fraction so stored strings
// sort lexicographically in chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one scored memory row.
type Entry struct {
	ID           int64
	UserID       string
	AppName      string
	MemoryType   string // free-form tag: "preference", "fact", "fake_fact", ...
	Summary      string
	Relevance    float64
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int
}

// Index is the SQLite-backed memory summary table.
type Index struct {
	db     *store.Store
	logger *slog.Logger
}

// New creates an Index backed by the harness database. If logger is nil, the
// default slog logger is used.
func New(db *store.Store, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{db: db, logger: logger}
}

// Add inserts an entry and returns its row id. Zero CreatedAt/LastAccessed
// default to the current UTC time; any explicit value, including a backdated
// one, is stored verbatim. Relevance passes through unclamped.
func (ix *Index) Add(ctx context.Context, e Entry) (int64, error) {
	now := time.Now().UTC()
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	lastAccessed := e.LastAccessed
	if lastAccessed.IsZero() {
		lastAccessed = createdAt
	}

	res, err := ix.db.DB().ExecContext(ctx, `
		INSERT INTO memory_summaries
			(user_id, app_name, memory_type, summary, relevance_score, created_at, last_accessed, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.AppName, e.MemoryType, e.Summary, e.Relevance,
		createdAt.UTC().Format(timeFormat),
		lastAccessed.UTC().Format(timeFormat),
		e.AccessCount,
	)
	if err != nil {
		return 0, store.WrapError("summary add", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, store.WrapError("summary add id", err)
	}

	ix.logger.Debug("summary: added entry",
		"summary_id", id,
		"user_id", e.UserID,
		"app_name", e.AppName,
		"memory_type", e.MemoryType,
		"relevance", e.Relevance,
	)
	return id, nil
}

// Query returns up to limit entries for the user/app ranked by relevance
// descending, then created_at descending. Recall is not read-only: every
// returned row's access_count is incremented and last_accessed refreshed,
// and the returned entries reflect those new values. Repeatedly retrieving a
// poisoned entry therefore raises its apparent trust, which is itself part of
// the attack surface.
func (ix *Index) Query(ctx context.Context, userID, appName string, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := ix.db.DB().QueryContext(ctx, `
		SELECT id, user_id, app_name, memory_type, summary, relevance_score, created_at, last_accessed, access_count
		FROM memory_summaries
		WHERE user_id = ? AND app_name = ?
		ORDER BY relevance_score DESC, created_at DESC
		LIMIT ?`,
		userID, appName, limit,
	)
	if err != nil {
		return nil, store.WrapError("summary query", err)
	}

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			ix.logger.Warn("summary: skip malformed row", "err", err)
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, store.WrapError("summary query rows", err)
	}
	rows.Close()

	if len(entries) == 0 {
		return nil, nil
	}

	// Recall side effect: touch every returned row.
	now := time.Now().UTC()
	nowStr := now.Format(timeFormat)
	for i := range entries {
		_, err := ix.db.DB().ExecContext(ctx, `
			UPDATE memory_summaries
			SET access_count = access_count + 1, last_accessed = ?
			WHERE id = ?`,
			nowStr, entries[i].ID,
		)
		if err != nil {
			return nil, store.WrapError("summary touch", err)
		}
		entries[i].AccessCount++
		entries[i].LastAccessed = now
	}

	return entries, nil
}

// OverwriteMatching replaces the summary text and memory type of every entry
// for the user/app whose text contains fragment, forcing relevance to 1.0 so
// the rewritten entries dominate recall. Returns the number of rows changed.
// This models a direct-write compromise of the memory store.
func (ix *Index) OverwriteMatching(ctx context.Context, userID, appName, fragment, newSummary, newType string) (int64, error) {
	res, err := ix.db.DB().ExecContext(ctx, `
		UPDATE memory_summaries
		SET summary = ?, memory_type = ?, relevance_score = 1.0
		WHERE user_id = ? AND app_name = ? AND summary LIKE ? ESCAPE '\'`,
		newSummary, newType, userID, appName, likePattern(fragment),
	)
	if err != nil {
		return 0, store.WrapError("summary overwrite", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.WrapError("summary overwrite count", err)
	}

	ix.logger.Debug("summary: overwrote entries",
		"user_id", userID,
		"app_name", appName,
		"fragment", fragment,
		"new_type", newType,
		"count", n,
	)
	return n, nil
}

// UpdateTimestamp sets an entry's created_at to newCreatedAt. There is no
// check that the new time is in the past, the future, or consistent with any
// stored turn. The backdating attack exists precisely because nothing
// enforces this.
func (ix *Index) UpdateTimestamp(ctx context.Context, summaryID int64, newCreatedAt time.Time) error {
	res, err := ix.db.DB().ExecContext(ctx,
		`UPDATE memory_summaries SET created_at = ? WHERE id = ?`,
		newCreatedAt.UTC().Format(timeFormat), summaryID,
	)
	if err != nil {
		return store.WrapError("summary update timestamp", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.WrapError("summary update timestamp count", err)
	}
	if n == 0 {
		return fmt.Errorf("summary: no entry with id %d", summaryID)
	}
	return nil
}

// CopyNamespace duplicates every summary of sourceUserID into destUserID's
// namespace for the same app. Ids, access counters, and timestamps are fresh;
// content, type, and relevance carry over. No ownership check is performed.
func (ix *Index) CopyNamespace(ctx context.Context, sourceUserID, destUserID, appName string) (int64, error) {
	now := time.Now().UTC().Format(timeFormat)
	res, err := ix.db.DB().ExecContext(ctx, `
		INSERT INTO memory_summaries
			(user_id, app_name, memory_type, summary, relevance_score, created_at, last_accessed, access_count)
		SELECT ?, app_name, memory_type, summary, relevance_score, ?, ?, 0
		FROM memory_summaries
		WHERE user_id = ? AND app_name = ?`,
		destUserID, now, now, sourceUserID, appName,
	)
	if err != nil {
		return 0, store.WrapError("summary copy namespace", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.WrapError("summary copy namespace count", err)
	}

	ix.logger.Debug("summary: copied namespace",
		"source_user_id", sourceUserID,
		"dest_user_id", destUserID,
		"app_name", appName,
		"count", n,
	)
	return n, nil
}

// Purge deletes all entries for the user/app and returns the count removed.
func (ix *Index) Purge(ctx context.Context, userID, appName string) (int64, error) {
	res, err := ix.db.DB().ExecContext(ctx,
		`DELETE FROM memory_summaries WHERE user_id = ? AND app_name = ?`,
		userID, appName,
	)
	if err != nil {
		return 0, store.WrapError("summary purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.WrapError("summary purge count", err)
	}
	return n, nil
}

// scanEntry reads a single row from the memory_summaries table.
func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e           Entry
		createdStr  string
		accessedStr string
	)
	err := rows.Scan(&e.ID, &e.UserID, &e.AppName, &e.MemoryType, &e.Summary,
		&e.Relevance, &createdStr, &accessedStr, &e.AccessCount)
	if err != nil {
		return Entry{}, fmt.Errorf("scan row: %w", err)
	}

	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return Entry{}, fmt.Errorf("parse created_at: %w", err)
	}
	e.LastAccessed, err = time.Parse(time.RFC3339Nano, accessedStr)
	if err != nil {
		return Entry{}, fmt.Errorf("parse last_accessed: %w", err)
	}
	return e, nil
}

// likePattern wraps fragment for a substring LIKE match, escaping the LIKE
// metacharacters so attacker-supplied fragments match literally.
func likePattern(fragment string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(fragment) + "%"
}
