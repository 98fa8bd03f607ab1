package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/crmchat/crmchat/internal/auth"
	"github.com/crmchat/crmchat/internal/config"
	"github.com/crmchat/crmchat/internal/descriptor"
	"github.com/crmchat/crmchat/internal/pipeline"
	"github.com/crmchat/crmchat/internal/salesforce"
	"github.com/crmchat/crmchat/internal/transcript"
)

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func testConfig(t *testing.T, extra map[string]string) config.Config {
	t.Helper()
	env := map[string]string{
		"CRMCHAT_SF_LOGIN_URL":     "https://login.salesforce.example",
		"CRMCHAT_SF_CLIENT_ID":     "client-id",
		"CRMCHAT_SF_CLIENT_SECRET": "client-secret",
	}
	for key, value := range extra {
		env[key] = value
	}
	cfg, err := config.Load("crmchat-api", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

type fakeChat struct {
	outcome pipeline.Outcome
	err     error

	gotQuery string
}

func (f *fakeChat) Run(ctx context.Context, userQuery string) (pipeline.Outcome, error) {
	f.gotQuery = userQuery
	if f.err != nil {
		return pipeline.Outcome{}, f.err
	}
	return f.outcome, nil
}

type fakeDispatcher struct {
	queryResult salesforce.QueryResult
	opResult    salesforce.OperationResult
	err         error

	gotOperation descriptor.Operation
	gotDesc      descriptor.Descriptor
}

func (f *fakeDispatcher) record(op descriptor.Operation, desc descriptor.Descriptor) {
	f.gotOperation = op
	f.gotDesc = desc
}

func (f *fakeDispatcher) Read(ctx context.Context, desc descriptor.Descriptor) (salesforce.QueryResult, error) {
	f.record(descriptor.OperationRead, desc)
	return f.queryResult, f.err
}

func (f *fakeDispatcher) Aggregate(ctx context.Context, desc descriptor.Descriptor) (salesforce.QueryResult, error) {
	f.record(descriptor.OperationAggregate, desc)
	return f.queryResult, f.err
}

func (f *fakeDispatcher) Create(ctx context.Context, desc descriptor.Descriptor) (salesforce.OperationResult, error) {
	f.record(descriptor.OperationCreate, desc)
	return f.opResult, f.err
}

func (f *fakeDispatcher) Update(ctx context.Context, desc descriptor.Descriptor) (salesforce.OperationResult, error) {
	f.record(descriptor.OperationUpdate, desc)
	return f.opResult, f.err
}

func (f *fakeDispatcher) Delete(ctx context.Context, desc descriptor.Descriptor) (salesforce.OperationResult, error) {
	f.record(descriptor.OperationDelete, desc)
	return f.opResult, f.err
}

type fakeStore struct {
	sessions map[string]transcript.Session
	messages map[string][]transcript.Message
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: map[string]transcript.Session{},
		messages: map[string][]transcript.Message{},
	}
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return f.err }

func (f *fakeStore) CreateSession(ctx context.Context, in transcript.CreateSessionInput) (transcript.Session, error) {
	if f.err != nil {
		return transcript.Session{}, f.err
	}
	title := in.Title
	if title == "" {
		title = "New Chat"
	}
	session := transcript.Session{SessionID: in.SessionID, Owner: in.Owner, Title: title}
	f.sessions[in.SessionID] = session
	return session, nil
}

func (f *fakeStore) GetSession(ctx context.Context, owner, sessionID string) (transcript.Session, error) {
	session, ok := f.sessions[sessionID]
	if !ok || session.Owner != owner {
		return transcript.Session{}, transcript.ErrNotFound
	}
	return session, nil
}

func (f *fakeStore) ListSessions(ctx context.Context, owner string) ([]transcript.Session, error) {
	out := make([]transcript.Session, 0)
	for _, session := range f.sessions {
		if session.Owner == owner {
			out = append(out, session)
		}
	}
	return out, nil
}

func (f *fakeStore) RenameSession(ctx context.Context, owner, sessionID, title string) (transcript.Session, error) {
	session, err := f.GetSession(ctx, owner, sessionID)
	if err != nil {
		return transcript.Session{}, err
	}
	session.Title = title
	f.sessions[sessionID] = session
	return session, nil
}

func (f *fakeStore) DeleteSession(ctx context.Context, owner, sessionID string) (bool, error) {
	if _, err := f.GetSession(ctx, owner, sessionID); err != nil {
		return false, nil
	}
	delete(f.sessions, sessionID)
	delete(f.messages, sessionID)
	return true, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, in transcript.AppendMessageInput) (transcript.Message, error) {
	if _, err := f.GetSession(ctx, in.Owner, in.SessionID); err != nil {
		return transcript.Message{}, err
	}
	message := transcript.Message{
		MessageID: in.MessageID,
		SessionID: in.SessionID,
		Role:      in.Role,
		Content:   in.Content,
		Operation: in.Operation,
		Data:      in.Data,
	}
	f.messages[in.SessionID] = append(f.messages[in.SessionID], message)
	return message, nil
}

func (f *fakeStore) ListMessages(ctx context.Context, owner, sessionID string) ([]transcript.Message, error) {
	if _, err := f.GetSession(ctx, owner, sessionID); err != nil {
		return nil, err
	}
	return f.messages[sessionID], nil
}

func TestHealthEndpoint(t *testing.T) {
	cfg := testConfig(t, nil)

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "crmchat-api") {
		t.Fatalf("health body missing service name: %s", rr.Body.String())
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	cfg := testConfig(t, nil)

	h := NewHandler(cfg, Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointCombinesChecks(t *testing.T) {
	cfg := testConfig(t, nil)

	check := CombineReadinessChecks(
		CheckSalesforceConfig(cfg),
		CheckModelConfig(cfg),
		nil,
	)
	h := NewHandler(cfg, Dependencies{Readiness: check})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := testConfig(t, map[string]string{"CRMCHAT_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:ops:operator")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Chat:           &fakeChat{outcome: pipeline.Outcome{Success: true}},
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"userQuery":"hi"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"userQuery":"hi"}`))
	req.Header.Set("X-API-Key", "k1")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status with key = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := testConfig(t, map[string]string{"CRMCHAT_AUTH_REQUIRED": "true"})

	h := NewHandler(cfg, Dependencies{Chat: &fakeChat{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"userQuery":"hi"}`)))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}
