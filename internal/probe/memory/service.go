// Package memory composes the conversation log and the summary index into
// the two calls a well-behaved agent adapter needs: store a finished turn,
// and retrieve ranked context for the next one.
//
// It stands in for a vendor-managed memory service when probing model
// families that lack one, so its recall semantics mirror a real memory bank:
// scored entries, recency tie-breaks, and retrieval that reinforces what it
// returns.
package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/probelabs/memprobe/internal/probe/conversation"
	"github.com/probelabs/memprobe/internal/probe/store"
	"github.com/probelabs/memprobe/internal/probe/summary"
)

// ValidationError is reserved for a future variant of the store that rejects
// malformed input. The current store performs no validation on conversation
// content or memory fields, so nothing constructs this yet. Tests must not
// assume malformed or adversarial text is rejected.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("memory: invalid %s: %s", e.Field, e.Msg)
}

// Recaller is the memory surface the agent adapter talks to. It is a variant
// type: callers hold either the concrete Service or a NullRecaller and never
// branch on presence.
type Recaller interface {
	// RecordTurn persists a finished user/agent exchange and derives
	// memory summaries from the user message.
	RecordTurn(ctx context.Context, userID, appName, sessionID, userMessage, agentMessage string) error

	// RetrieveContext returns up to limit ranked summaries for the user/app.
	RetrieveContext(ctx context.Context, userID, appName string, limit int) ([]summary.Entry, error)

	// Clear purges both the conversation log and the summaries for the
	// user/app.
	Clear(ctx context.Context, userID, appName string) error
}

// Service is the concrete memory backend over the two SQLite tables. It owns
// both exclusively: the agent adapter never writes to storage directly, and
// the attack package is a second, deliberately privileged client of the same
// tables rather than a consumer of this API.
type Service struct {
	db        *store.Store
	turns     *conversation.Store
	summaries *summary.Index
	extractor Extractor
	logger    *slog.Logger
}

// NewService creates a Service. If extractor is nil, the default
// KeywordExtractor is used; if logger is nil, the default slog logger.
func NewService(db *store.Store, turns *conversation.Store, summaries *summary.Index, extractor Extractor, logger *slog.Logger) *Service {
	if extractor == nil {
		extractor = NewKeywordExtractor(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:        db,
		turns:     turns,
		summaries: summaries,
		extractor: extractor,
		logger:    logger,
	}
}

// RecordTurn appends the user and agent turns, then derives summaries from
// the user message. Derivation failure never loses the raw conversation: the
// turns are stored first, and an extractor error is logged and swallowed.
func (s *Service) RecordTurn(ctx context.Context, userID, appName, sessionID, userMessage, agentMessage string) error {
	if _, err := s.turns.Append(ctx, conversation.Turn{
		UserID:    userID,
		AppName:   appName,
		SessionID: sessionID,
		Role:      conversation.RoleUser,
		Content:   userMessage,
	}); err != nil {
		return fmt.Errorf("memory: record user turn: %w", err)
	}
	if _, err := s.turns.Append(ctx, conversation.Turn{
		UserID:    userID,
		AppName:   appName,
		SessionID: sessionID,
		Role:      conversation.RoleAgent,
		Content:   agentMessage,
	}); err != nil {
		return fmt.Errorf("memory: record agent turn: %w", err)
	}

	facts, err := s.extractor.Extract(userMessage)
	if err != nil {
		s.logger.Warn("memory: summary derivation failed, raw turn kept",
			"user_id", userID,
			"app_name", appName,
			"session_id", sessionID,
			"err", err,
		)
		return nil
	}

	for _, f := range facts {
		if _, err := s.summaries.Add(ctx, summary.Entry{
			UserID:     userID,
			AppName:    appName,
			MemoryType: f.MemoryType,
			Summary:    f.Summary,
			Relevance:  f.Relevance,
		}); err != nil {
			return fmt.Errorf("memory: store derived summary: %w", err)
		}
	}

	s.logger.Debug("memory: recorded turn",
		"user_id", userID,
		"app_name", appName,
		"session_id", sessionID,
		"derived_summaries", len(facts),
	)
	return nil
}

// RetrieveContext returns ranked summaries for the user/app. The recall side
// effect (access_count, last_accessed) applies; see summary.Index.Query.
func (s *Service) RetrieveContext(ctx context.Context, userID, appName string, limit int) ([]summary.Entry, error) {
	entries, err := s.summaries.Query(ctx, userID, appName, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: retrieve context: %w", err)
	}
	return entries, nil
}

// Clear purges both tables for the user/app. Purging an already-empty scope
// is a no-op.
func (s *Service) Clear(ctx context.Context, userID, appName string) error {
	nTurns, err := s.turns.Purge(ctx, userID, appName)
	if err != nil {
		return fmt.Errorf("memory: clear turns: %w", err)
	}
	nSummaries, err := s.summaries.Purge(ctx, userID, appName)
	if err != nil {
		return fmt.Errorf("memory: clear summaries: %w", err)
	}
	s.logger.Debug("memory: cleared user scope",
		"user_id", userID,
		"app_name", appName,
		"turns", nTurns,
		"summaries", nSummaries,
	)
	return nil
}

// Stats summarizes the state of the backing database.
type Stats struct {
	TotalTurns     int64
	TotalSummaries int64
	UniqueUsers    int64
	SizeBytes      int64
}

// Stats reports table counts and database size across all users and apps.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.db.DB()

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&st.TotalTurns); err != nil {
		return Stats{}, fmt.Errorf("memory: count turns: %w", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_summaries`).Scan(&st.TotalSummaries); err != nil {
		return Stats{}, fmt.Errorf("memory: count summaries: %w", err)
	}
	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT user_id FROM conversations
			UNION
			SELECT user_id FROM memory_summaries
		)`).Scan(&st.UniqueUsers); err != nil {
		return Stats{}, fmt.Errorf("memory: count users: %w", err)
	}

	size, err := s.db.SizeBytes()
	if err != nil {
		return Stats{}, fmt.Errorf("memory: database size: %w", err)
	}
	st.SizeBytes = size
	return st, nil
}

// Compile-time interface satisfaction check.
var _ Recaller = (*Service)(nil)
