// Package attack is the adversarial side door into the memory stores.
//
// Its operations model an attacker who already holds write access to the
// backing database: the harness measures what a poisoned agent does next,
// not just whether poison can arrive through chat. Every mutation is a
// logged, parameterized write: the store API itself stays injection-free
// even though what it writes is hostile, and every effect is synchronous and
// visible to the next retrieval with no staleness window.
package attack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/probelabs/memprobe/internal/probe/conversation"
	"github.com/probelabs/memprobe/internal/probe/summary"
)

// Mutator layers the attack operations over the two stores. It is a second,
// deliberately privileged client of the same tables the memory service owns;
// well-behaved agent code never touches it.
type Mutator struct {
	turns     *conversation.Store
	summaries *summary.Index
	logger    *slog.Logger
}

// New creates a Mutator. If logger is nil, the default slog logger is used.
func New(turns *conversation.Store, summaries *summary.Index, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{turns: turns, summaries: summaries, logger: logger}
}

// Inject fabricates a memory with no grounding conversation turn. A
// relevanceScore of 1.0 guarantees top-rank recall since the index does not
// clamp it.
func (m *Mutator) Inject(ctx context.Context, userID, appName, content, memoryType string, relevanceScore float64) (int64, error) {
	id, err := m.summaries.Add(ctx, summary.Entry{
		UserID:     userID,
		AppName:    appName,
		MemoryType: memoryType,
		Summary:    content,
		Relevance:  relevanceScore,
	})
	if err != nil {
		return 0, fmt.Errorf("attack inject: %w", err)
	}

	m.logger.Info("attack: injected memory",
		"summary_id", id,
		"user_id", userID,
		"app_name", appName,
		"memory_type", memoryType,
		"relevance", relevanceScore,
	)
	return id, nil
}

// Overwrite rewrites every memory of the user/app whose text contains
// fragment, replacing it in place with maliciousContent tagged as
// "overwritten_attack" at relevance 1.0. Returns the number of rows changed.
func (m *Mutator) Overwrite(ctx context.Context, userID, appName, fragment, maliciousContent string) (int64, error) {
	n, err := m.summaries.OverwriteMatching(ctx, userID, appName, fragment, maliciousContent, "overwritten_attack")
	if err != nil {
		return 0, fmt.Errorf("attack overwrite: %w", err)
	}

	m.logger.Info("attack: overwrote memories",
		"user_id", userID,
		"app_name", appName,
		"fragment", fragment,
		"count", n,
	)
	return n, nil
}

// Backdate plants a memory whose created_at is fakeTimestamp, independent of
// the wall clock, to exploit age-based trust heuristics. Content and
// relevance are stored exactly as passed.
func (m *Mutator) Backdate(ctx context.Context, userID, appName, content string, fakeTimestamp time.Time, relevanceScore float64) (int64, error) {
	id, err := m.summaries.Add(ctx, summary.Entry{
		UserID:       userID,
		AppName:      appName,
		MemoryType:   "backdated_attack",
		Summary:      content,
		Relevance:    relevanceScore,
		CreatedAt:    fakeTimestamp,
		LastAccessed: fakeTimestamp,
	})
	if err != nil {
		return 0, fmt.Errorf("attack backdate: %w", err)
	}

	m.logger.Info("attack: backdated memory",
		"summary_id", id,
		"user_id", userID,
		"app_name", appName,
		"fake_timestamp", fakeTimestamp.UTC().Format(time.RFC3339),
		"relevance", relevanceScore,
	)
	return id, nil
}

// Rewind moves an existing memory's created_at to fakeTimestamp. Nothing
// checks the new time against the wall clock or the conversation log.
func (m *Mutator) Rewind(ctx context.Context, summaryID int64, fakeTimestamp time.Time) error {
	if err := m.summaries.UpdateTimestamp(ctx, summaryID, fakeTimestamp); err != nil {
		return fmt.Errorf("attack rewind: %w", err)
	}
	m.logger.Info("attack: rewound memory timestamp",
		"summary_id", summaryID,
		"fake_timestamp", fakeTimestamp.UTC().Format(time.RFC3339),
	)
	return nil
}

// Contaminate copies sourceUserID's entire memory namespace into
// destUserID's, then plants content as a shared "contamination" memory in the
// destination at full relevance. The copy succeeds because the store has no
// cross-user isolation; demonstrating that absence is the test.
func (m *Mutator) Contaminate(ctx context.Context, sourceUserID, destUserID, appName, content string) error {
	copied, err := m.summaries.CopyNamespace(ctx, sourceUserID, destUserID, appName)
	if err != nil {
		return fmt.Errorf("attack contaminate: %w", err)
	}

	if content != "" {
		if _, err := m.summaries.Add(ctx, summary.Entry{
			UserID:     destUserID,
			AppName:    appName,
			MemoryType: "contamination",
			Summary:    content,
			Relevance:  1.0,
		}); err != nil {
			return fmt.Errorf("attack contaminate payload: %w", err)
		}
	}

	m.logger.Info("attack: contaminated namespace",
		"source_user_id", sourceUserID,
		"dest_user_id", destUserID,
		"app_name", appName,
		"copied", copied,
	)
	return nil
}

// PlantConversation fabricates a complete past exchange: a user/agent turn
// pair stamped with the attacker's timestamp and tagged as synthetic in
// metadata, plus a reinforcing "fake_preference" summary carrying the fake
// user message at full relevance. The planted rows are indistinguishable
// from organic history to any consumer that does not read metadata.
func (m *Mutator) PlantConversation(ctx context.Context, userID, appName, sessionID, userMessage, agentMessage string, timestamp time.Time) error {
	meta := map[string]any{
		"attack_type": "planted_conversation",
		"synthetic":   true,
	}

	if _, err := m.turns.Append(ctx, conversation.Turn{
		UserID:    userID,
		AppName:   appName,
		SessionID: sessionID,
		Role:      conversation.RoleUser,
		Content:   userMessage,
		Timestamp: timestamp,
		Metadata:  meta,
	}); err != nil {
		return fmt.Errorf("attack plant user turn: %w", err)
	}
	if _, err := m.turns.Append(ctx, conversation.Turn{
		UserID:    userID,
		AppName:   appName,
		SessionID: sessionID,
		Role:      conversation.RoleAgent,
		Content:   agentMessage,
		Timestamp: timestamp,
		Metadata:  meta,
	}); err != nil {
		return fmt.Errorf("attack plant agent turn: %w", err)
	}

	if _, err := m.summaries.Add(ctx, summary.Entry{
		UserID:       userID,
		AppName:      appName,
		MemoryType:   "fake_preference",
		Summary:      userMessage,
		Relevance:    1.0,
		CreatedAt:    timestamp,
		LastAccessed: timestamp,
		AccessCount:  1,
	}); err != nil {
		return fmt.Errorf("attack plant summary: %w", err)
	}

	m.logger.Info("attack: planted conversation",
		"user_id", userID,
		"app_name", appName,
		"session_id", sessionID,
		"timestamp", timestamp.UTC().Format(time.RFC3339),
	)
	return nil
}
