package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tribelands/server/internal/game"
)

// mirror persists the three satellite documents (newsletter state, turn
// deadline, diplomatic messages) to both the relational store and the
// file store, independently and best-effort. There is no two-phase
// commit: a crash between the two writes leaves the copies divergent,
// and reads prefer the primary whenever it is present and well-typed.
type mirror struct {
	sql   *sqlStore // nil in file-fallback mode
	files *fileStore
}

// saveMirrored runs both halves of a dual write. One failed half is a
// warning and the surviving copy is authoritative until the next
// successful mirrored write; both halves failing is fatal.
func (m *mirror) saveMirrored(document string, primary, file func() error) error {
	var primaryErr, fileErr error

	if m.sql != nil {
		primaryErr = primary()
	} else {
		primaryErr = errors.New("relational store unavailable")
	}
	// The file half always runs, regardless of the primary result.
	fileErr = file()

	switch {
	case primaryErr != nil && fileErr != nil:
		return &DualWriteError{Document: document, Primary: primaryErr, File: fileErr}
	case primaryErr != nil && m.sql != nil:
		slog.Warn("dual write: primary failed, file copy authoritative",
			"document", document, "error", primaryErr)
	case fileErr != nil:
		slog.Warn("dual write: file failed, primary copy authoritative",
			"document", document, "error", fileErr)
	}
	return nil
}

func (m *mirror) updateColumn(ctx context.Context, column string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	query := fmt.Sprintf("UPDATE world_state SET %s = ?", column)
	res, err := m.sql.conn.ExecContext(ctx, query, string(data))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoWorldState
	}
	return nil
}

// loadColumn decodes a satellite column. Reports ok=false for a NULL,
// missing, or malformed value so the caller can fall back to the file
// copy.
func (m *mirror) loadColumn(ctx context.Context, column string, v any) bool {
	if m.sql == nil {
		return false
	}
	var raw sql.NullString
	query := fmt.Sprintf("SELECT %s FROM world_state LIMIT 1", column)
	if err := m.sql.conn.GetContext(ctx, &raw, query); err != nil {
		return false
	}
	if !raw.Valid || raw.String == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw.String), v); err != nil {
		slog.Warn("satellite column malformed, falling back to file", "column", column, "error", err)
		return false
	}
	return true
}

func (m *mirror) saveNewsletter(ctx context.Context, ns game.NewsletterState) error {
	return m.saveMirrored("newsletter",
		func() error { return m.updateColumn(ctx, "newsletter_json", ns) },
		func() error { return m.files.saveNewsletter(ns) })
}

func (m *mirror) loadNewsletter(ctx context.Context) (game.NewsletterState, error) {
	var ns game.NewsletterState
	if m.loadColumn(ctx, "newsletter_json", &ns) {
		return ns, nil
	}
	return m.files.loadNewsletter()
}

func (m *mirror) saveDeadline(ctx context.Context, td game.TurnDeadline) error {
	return m.saveMirrored("turn deadline",
		func() error { return m.updateColumn(ctx, "turn_deadline", td) },
		func() error { return m.files.saveDeadline(td) })
}

func (m *mirror) loadDeadline(ctx context.Context) (game.TurnDeadline, error) {
	var td game.TurnDeadline
	if m.loadColumn(ctx, "turn_deadline", &td) {
		return td, nil
	}
	return m.files.loadDeadline()
}

func (m *mirror) saveMessages(ctx context.Context, msgs []game.DiploMessage) error {
	return m.saveMirrored("diplomatic messages",
		func() error { return m.updateColumn(ctx, "diplo_messages_json", msgs) },
		func() error { return m.files.saveMessages(msgs) })
}

func (m *mirror) loadMessages(ctx context.Context) ([]game.DiploMessage, error) {
	var msgs []game.DiploMessage
	if m.loadColumn(ctx, "diplo_messages_json", &msgs) {
		return msgs, nil
	}
	return m.files.loadMessages()
}
