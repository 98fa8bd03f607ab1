package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/crmchat/crmchat/internal/auth"
	"github.com/crmchat/crmchat/internal/transcript"
)

type sessionCreateRequest struct {
	Title string `json:"title"`
}

type sessionRenameRequest struct {
	Title string `json:"title"`
}

func callerFromRequest(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.Caller != "" {
		return identity.Caller
	}
	return "anonymous"
}

func requireTranscript(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Transcript == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSCRIPT_NOT_CONFIGURED", "session storage is not configured", false, nil)
		return false
	}
	return true
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireTranscript(deps, w, r) {
		return
	}

	var req sessionCreateRequest
	if r.Body != nil {
		// An empty body is fine; the title defaults server side.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	session, err := deps.Transcript.CreateSession(r.Context(), transcript.CreateSessionInput{
		SessionID: newID(),
		Owner:     callerFromRequest(r),
		Title:     req.Title,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "TRANSCRIPT_ERROR", "failed to create session", true, nil)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func handleListSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireTranscript(deps, w, r) {
		return
	}

	sessions, err := deps.Transcript.ListSessions(r.Context(), callerFromRequest(r))
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "TRANSCRIPT_ERROR", "failed to list sessions", true, nil)
		return
	}
	items := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, sessionPayload(session))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": items})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireTranscript(deps, w, r) {
		return
	}

	session, err := deps.Transcript.GetSession(r.Context(), callerFromRequest(r), r.PathValue("session"))
	if err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "TRANSCRIPT_ERROR", "failed to load session", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func handleRenameSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireTranscript(deps, w, r) {
		return
	}

	var req sessionRenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "title is required", false, nil)
		return
	}

	session, err := deps.Transcript.RenameSession(r.Context(), callerFromRequest(r), r.PathValue("session"), req.Title)
	if err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "TRANSCRIPT_ERROR", "failed to rename session", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireTranscript(deps, w, r) {
		return
	}

	deleted, err := deps.Transcript.DeleteSession(r.Context(), callerFromRequest(r), r.PathValue("session"))
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "TRANSCRIPT_ERROR", "failed to delete session", true, nil)
		return
	}
	if !deleted {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session does not exist", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func handleListMessages(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireTranscript(deps, w, r) {
		return
	}

	owner := callerFromRequest(r)
	sessionID := r.PathValue("session")
	if _, err := deps.Transcript.GetSession(r.Context(), owner, sessionID); err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "TRANSCRIPT_ERROR", "failed to load session", true, nil)
		return
	}

	messages, err := deps.Transcript.ListMessages(r.Context(), owner, sessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "TRANSCRIPT_ERROR", "failed to list messages", true, nil)
		return
	}
	items := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		item := map[string]any{
			"message_id": message.MessageID,
			"session_id": message.SessionID,
			"role":       message.Role,
			"content":    message.Content,
			"created_at": message.CreatedAt.Format(time.RFC3339Nano),
		}
		if message.Operation != "" {
			item["operation"] = message.Operation
		}
		if len(message.Data) > 0 {
			item["data"] = json.RawMessage(message.Data)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": items})
}

func sessionPayload(session transcript.Session) map[string]any {
	return map[string]any{
		"session_id": session.SessionID,
		"title":      session.Title,
		"created_at": session.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": session.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func newID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(buf[:])
}
