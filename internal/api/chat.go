package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/crmchat/crmchat/internal/pipeline"
	"github.com/crmchat/crmchat/internal/transcript"
)

type chatRequest struct {
	UserQuery string `json:"userQuery"`
	SessionID string `json:"sessionId"`
}

func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat pipeline is not configured", false, nil)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON", false, nil)
		return
	}
	if strings.TrimSpace(req.UserQuery) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "userQuery is required", false, nil)
		return
	}

	outcome, err := deps.Chat.Run(r.Context(), req.UserQuery)
	if err != nil {
		writeOperationError(r.Context(), w, err)
		return
	}

	recordChatExchange(deps, r, req, outcome)
	writeJSON(w, http.StatusOK, outcome)
}

// recordChatExchange appends the user utterance and the answer to the
// session transcript. Persistence is best effort; a storage hiccup never
// fails the chat response itself.
func recordChatExchange(deps Dependencies, r *http.Request, req chatRequest, outcome pipeline.Outcome) {
	if deps.Transcript == nil || req.SessionID == "" {
		return
	}
	owner := callerFromRequest(r)

	payload, err := json.Marshal(outcome)
	if err != nil {
		payload = nil
	}

	_, err = deps.Transcript.AppendMessage(r.Context(), transcript.AppendMessageInput{
		MessageID: newID(),
		SessionID: req.SessionID,
		Owner:     owner,
		Role:      transcript.RoleUser,
		Content:   req.UserQuery,
	})
	if err != nil {
		logTranscriptFailure(deps, "append user message", err)
		return
	}

	_, err = deps.Transcript.AppendMessage(r.Context(), transcript.AppendMessageInput{
		MessageID: newID(),
		SessionID: req.SessionID,
		Owner:     owner,
		Role:      transcript.RoleAI,
		Content:   outcome.Message,
		Operation: string(outcome.Operation),
		Data:      payload,
	})
	if err != nil {
		logTranscriptFailure(deps, "append ai message", err)
	}
}

func logTranscriptFailure(deps Dependencies, action string, err error) {
	if deps.Logger != nil {
		deps.Logger.Warn("transcript write failed", "action", action, "error", err)
	}
}
