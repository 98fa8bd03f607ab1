// Package api exposes the HTTP surface: the chat pipeline, direct
// Salesforce operations, and transcript session management.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crmchat/crmchat/internal/config"
	"github.com/crmchat/crmchat/internal/descriptor"
	"github.com/crmchat/crmchat/internal/observability"
	"github.com/crmchat/crmchat/internal/pipeline"
	"github.com/crmchat/crmchat/internal/salesforce"
	"github.com/crmchat/crmchat/internal/transcript"
	"github.com/crmchat/crmchat/internal/translate"
)

// 499 is the de facto nginx status for a client that went away before
// the response was ready.
const statusClientClosedRequest = 499

type ReadinessCheck func(ctx context.Context) error

// ChatRunner executes one utterance end to end.
type ChatRunner interface {
	Run(ctx context.Context, userQuery string) (pipeline.Outcome, error)
}

// CRMDispatcher executes pre-built descriptors operation by operation.
type CRMDispatcher interface {
	Read(ctx context.Context, desc descriptor.Descriptor) (salesforce.QueryResult, error)
	Aggregate(ctx context.Context, desc descriptor.Descriptor) (salesforce.QueryResult, error)
	Create(ctx context.Context, desc descriptor.Descriptor) (salesforce.OperationResult, error)
	Update(ctx context.Context, desc descriptor.Descriptor) (salesforce.OperationResult, error)
	Delete(ctx context.Context, desc descriptor.Descriptor) (salesforce.OperationResult, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Chat              ChatRunner
	Dispatcher        CRMDispatcher
	Transcript        transcript.Store
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/chat", func(w http.ResponseWriter, r *http.Request) {
		handleChat(deps, w, r)
	})

	protected.HandleFunc("POST /v1/salesforce/read", func(w http.ResponseWriter, r *http.Request) {
		handleSalesforceQuery(deps, descriptor.OperationRead, w, r)
	})
	protected.HandleFunc("POST /v1/salesforce/aggregate", func(w http.ResponseWriter, r *http.Request) {
		handleSalesforceQuery(deps, descriptor.OperationAggregate, w, r)
	})
	protected.HandleFunc("POST /v1/salesforce/create", func(w http.ResponseWriter, r *http.Request) {
		handleSalesforceWrite(deps, descriptor.OperationCreate, w, r)
	})
	protected.HandleFunc("POST /v1/salesforce/update", func(w http.ResponseWriter, r *http.Request) {
		handleSalesforceWrite(deps, descriptor.OperationUpdate, w, r)
	})
	protected.HandleFunc("POST /v1/salesforce/delete", func(w http.ResponseWriter, r *http.Request) {
		handleSalesforceWrite(deps, descriptor.OperationDelete, w, r)
	})

	protected.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleCreateSession(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleListSessions(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{session}", func(w http.ResponseWriter, r *http.Request) {
		handleGetSession(deps, w, r)
	})
	protected.HandleFunc("PATCH /v1/sessions/{session}", func(w http.ResponseWriter, r *http.Request) {
		handleRenameSession(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/sessions/{session}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteSession(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{session}/messages", func(w http.ResponseWriter, r *http.Request) {
		handleListMessages(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/chat", protectedHandler)
	mux.Handle("POST /v1/salesforce/read", protectedHandler)
	mux.Handle("POST /v1/salesforce/aggregate", protectedHandler)
	mux.Handle("POST /v1/salesforce/create", protectedHandler)
	mux.Handle("POST /v1/salesforce/update", protectedHandler)
	mux.Handle("POST /v1/salesforce/delete", protectedHandler)
	mux.Handle("POST /v1/sessions", protectedHandler)
	mux.Handle("GET /v1/sessions", protectedHandler)
	mux.Handle("GET /v1/sessions/{session}", protectedHandler)
	mux.Handle("PATCH /v1/sessions/{session}", protectedHandler)
	mux.Handle("DELETE /v1/sessions/{session}", protectedHandler)
	mux.Handle("GET /v1/sessions/{session}/messages", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckSalesforceConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Salesforce.LoginURL == "" {
			return errors.New("salesforce login url is not configured")
		}
		if cfg.Salesforce.ClientID == "" || cfg.Salesforce.ClientSecret == "" {
			return errors.New("salesforce credentials are not configured")
		}
		return nil
	}
}

func CheckModelConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Model.BaseURL == "" {
			return errors.New("model base url is not configured")
		}
		return nil
	}
}

func CheckTranscriptStore(store transcript.Store) ReadinessCheck {
	if store == nil {
		return nil
	}
	return store.HealthCheck
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// writeOperationError maps pipeline and dispatch failures onto the error
// envelope. Cancellation is reported as 499 so dashboards can separate
// abandoned requests from real failures.
func writeOperationError(ctx context.Context, w http.ResponseWriter, err error) {
	var outputErr *translate.ModelOutputError
	var upstreamErr *salesforce.UpstreamError
	switch {
	case pipeline.IsCancellation(err):
		writeError(ctx, w, statusClientClosedRequest, "REQUEST_CANCELLED", "Request cancelled by client.", false, nil)
	case errors.Is(err, translate.ErrModelUnavailable):
		writeError(ctx, w, http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", "The language model is not responding. Please try again later.", true, nil)
	case errors.As(err, &outputErr):
		writeError(ctx, w, http.StatusBadGateway, "MODEL_OUTPUT_UNPARSEABLE", "The model response could not be understood. Please rephrase your request.", true, nil)
	case errors.As(err, &upstreamErr):
		extra := map[string]any{"operation": upstreamErr.Operation}
		if upstreamErr.StatusCode != 0 {
			extra["upstream_status"] = upstreamErr.StatusCode
		}
		writeError(ctx, w, http.StatusBadGateway, "UPSTREAM_API_ERROR", upstreamErr.Message, false, extra)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", "An unexpected error occurred. Please try again.", true, nil)
	}
}
