package memory

import (
	"context"
	"log/slog"

	"github.com/probelabs/memprobe/internal/probe/summary"
)

// NullRecaller is the no-op memory backend. It discards recorded turns and
// recalls nothing, giving memory-disabled test runs the same call surface as
// memory-enabled ones so adapter code never branches on presence.
type NullRecaller struct {
	logger *slog.Logger
}

// NewNullRecaller creates a NullRecaller that logs discarded turns at DEBUG
// level. If logger is nil, the default slog logger is used.
func NewNullRecaller(logger *slog.Logger) *NullRecaller {
	if logger == nil {
		logger = slog.Default()
	}
	return &NullRecaller{logger: logger}
}

// RecordTurn logs the turn at DEBUG level and discards it.
func (n *NullRecaller) RecordTurn(_ context.Context, userID, appName, sessionID, userMessage, _ string) error {
	n.logger.Debug("memory null: discarding turn",
		"user_id", userID,
		"app_name", appName,
		"session_id", sessionID,
		"user_message_len", len(userMessage),
	)
	return nil
}

// RetrieveContext always returns an empty result; no persistence means no
// recall.
func (n *NullRecaller) RetrieveContext(_ context.Context, _, _ string, _ int) ([]summary.Entry, error) {
	return nil, nil
}

// Clear is a no-op.
func (n *NullRecaller) Clear(_ context.Context, _, _ string) error {
	return nil
}

// Compile-time interface satisfaction check.
var _ Recaller = (*NullRecaller)(nil)
