package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crmchat/crmchat/internal/transcript"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping transcript db: %w", err)
	}
	return nil
}

func (r *Repository) CreateSession(ctx context.Context, in transcript.CreateSessionInput) (transcript.Session, error) {
	title := in.Title
	if title == "" {
		title = "New Chat"
	}

	query := `
INSERT INTO chat_session (session_id, owner, title)
VALUES ($1, $2, $3)
RETURNING created_at, updated_at`

	session := transcript.Session{
		SessionID: in.SessionID,
		Owner:     in.Owner,
		Title:     title,
	}
	if err := r.db.QueryRowContext(ctx, query, in.SessionID, in.Owner, title).Scan(&session.CreatedAt, &session.UpdatedAt); err != nil {
		return transcript.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (r *Repository) GetSession(ctx context.Context, owner, sessionID string) (transcript.Session, error) {
	query := `
SELECT session_id, owner, title, created_at, updated_at
FROM chat_session
WHERE owner = $1 AND session_id = $2`

	var session transcript.Session
	if err := r.db.QueryRowContext(ctx, query, owner, sessionID).Scan(
		&session.SessionID,
		&session.Owner,
		&session.Title,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transcript.Session{}, transcript.ErrNotFound
		}
		return transcript.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (r *Repository) ListSessions(ctx context.Context, owner string) ([]transcript.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT session_id, owner, title, created_at, updated_at
FROM chat_session
WHERE owner = $1
ORDER BY updated_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]transcript.Session, 0)
	for rows.Next() {
		var session transcript.Session
		if err := rows.Scan(&session.SessionID, &session.Owner, &session.Title, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

func (r *Repository) RenameSession(ctx context.Context, owner, sessionID, title string) (transcript.Session, error) {
	query := `
UPDATE chat_session
SET title = $3, updated_at = now()
WHERE owner = $1 AND session_id = $2
RETURNING session_id, owner, title, created_at, updated_at`

	var session transcript.Session
	if err := r.db.QueryRowContext(ctx, query, owner, sessionID, title).Scan(
		&session.SessionID,
		&session.Owner,
		&session.Title,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transcript.Session{}, transcript.ErrNotFound
		}
		return transcript.Session{}, fmt.Errorf("rename session: %w", err)
	}
	return session, nil
}

func (r *Repository) DeleteSession(ctx context.Context, owner, sessionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM chat_session
WHERE owner = $1 AND session_id = $2`, owner, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session rows affected: %w", err)
	}
	return affected > 0, nil
}

// AppendMessage inserts the message and bumps the session's updated_at in
// one transaction so session ordering tracks activity.
func (r *Repository) AppendMessage(ctx context.Context, in transcript.AppendMessageInput) (transcript.Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return transcript.Message{}, fmt.Errorf("begin append message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	touch := `
UPDATE chat_session
SET updated_at = now()
WHERE owner = $1 AND session_id = $2`
	result, err := tx.ExecContext(ctx, touch, in.Owner, in.SessionID)
	if err != nil {
		return transcript.Message{}, fmt.Errorf("touch session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return transcript.Message{}, fmt.Errorf("touch session rows affected: %w", err)
	}
	if affected == 0 {
		return transcript.Message{}, transcript.ErrNotFound
	}

	insert := `
INSERT INTO chat_message (message_id, session_id, role, content, operation, data)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
RETURNING created_at`

	message := transcript.Message{
		MessageID: in.MessageID,
		SessionID: in.SessionID,
		Role:      in.Role,
		Content:   in.Content,
		Operation: in.Operation,
		Data:      in.Data,
	}
	if err := tx.QueryRowContext(ctx, insert, in.MessageID, in.SessionID, string(in.Role), in.Content, in.Operation, in.Data).Scan(&message.CreatedAt); err != nil {
		return transcript.Message{}, fmt.Errorf("append message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return transcript.Message{}, fmt.Errorf("commit append message: %w", err)
	}
	return message, nil
}

func (r *Repository) ListMessages(ctx context.Context, owner, sessionID string) ([]transcript.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT m.message_id, m.session_id, m.role, m.content, COALESCE(m.operation, ''), m.data, m.created_at
FROM chat_message m
JOIN chat_session s ON s.session_id = m.session_id
WHERE s.owner = $1 AND m.session_id = $2
ORDER BY m.created_at ASC`, owner, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]transcript.Message, 0)
	for rows.Next() {
		var message transcript.Message
		var role string
		if err := rows.Scan(&message.MessageID, &message.SessionID, &role, &message.Content, &message.Operation, &message.Data, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		message.Role = transcript.Role(role)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return messages, nil
}
