// Package transcript records chat sessions and their messages so a caller
// can resume a conversation later.
package transcript

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("transcript: not found")

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

type Session struct {
	SessionID string
	Owner     string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	MessageID string
	SessionID string
	Role      Role
	Content   string
	Operation string
	Data      []byte
	CreatedAt time.Time
}

type CreateSessionInput struct {
	SessionID string
	Owner     string
	Title     string
}

type AppendMessageInput struct {
	MessageID string
	SessionID string
	Owner     string
	Role      Role
	Content   string
	Operation string
	Data      []byte
}

// Store persists sessions and messages. All lookups are scoped to the
// owning caller; a session belonging to someone else reads as not found.
type Store interface {
	HealthCheck(ctx context.Context) error
	CreateSession(ctx context.Context, in CreateSessionInput) (Session, error)
	GetSession(ctx context.Context, owner, sessionID string) (Session, error)
	ListSessions(ctx context.Context, owner string) ([]Session, error)
	RenameSession(ctx context.Context, owner, sessionID, title string) (Session, error)
	DeleteSession(ctx context.Context, owner, sessionID string) (bool, error)
	AppendMessage(ctx context.Context, in AppendMessageInput) (Message, error)
	ListMessages(ctx context.Context, owner, sessionID string) ([]Message, error)
}
