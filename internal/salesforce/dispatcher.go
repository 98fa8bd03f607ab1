package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crmchat/crmchat/internal/descriptor"
	"github.com/crmchat/crmchat/internal/observability"
	"github.com/crmchat/crmchat/internal/soql"
)

// QueryResult mirrors the Salesforce query response shape. Records is
// never nil; an empty result set serializes as an empty array.
type QueryResult struct {
	TotalSize         int                `json:"totalSize"`
	Done              bool               `json:"done"`
	Records           []map[string]any   `json:"records"`
	AggregateMetadata *AggregateMetadata `json:"aggregateMetadata,omitempty"`
}

// AggregateMetadata echoes the aggregate shape of the originating
// descriptor so callers can label the computed columns.
type AggregateMetadata struct {
	AggregateFunctions []descriptor.AggregateFunction `json:"aggregateFunctions"`
	GroupBy            []string                       `json:"groupBy,omitempty"`
	Having             string                         `json:"having,omitempty"`
	QueryType          string                         `json:"queryType"`
}

// OperationResult confirms a completed write operation.
type OperationResult struct {
	Success    bool   `json:"success"`
	ID         string `json:"id,omitempty"`
	Message    string `json:"message"`
	ObjectType string `json:"objectType"`
}

type DispatcherConfig struct {
	APIVersion string
	Timeout    time.Duration
}

// Dispatcher executes descriptor operations against the Salesforce REST
// API using tokens from the provider. On an authorization failure it
// invalidates the token and retries the call once.
type Dispatcher struct {
	tokens     TokenProvider
	apiVersion string
	client     *http.Client
	logger     *slog.Logger
}

func NewDispatcher(tokens TokenProvider, cfg DispatcherConfig, logger *slog.Logger) (*Dispatcher, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		return nil, fmt.Errorf("api version is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		tokens:     tokens,
		apiVersion: strings.TrimPrefix(strings.TrimSpace(cfg.APIVersion), "v"),
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Execute routes a descriptor to its operation handler. The descriptor is
// assumed to have passed Validate.
func (d *Dispatcher) Execute(ctx context.Context, desc descriptor.Descriptor) (any, error) {
	switch desc.Operation {
	case descriptor.OperationRead:
		return d.Read(ctx, desc)
	case descriptor.OperationAggregate:
		return d.Aggregate(ctx, desc)
	case descriptor.OperationCreate:
		return d.Create(ctx, desc)
	case descriptor.OperationUpdate:
		return d.Update(ctx, desc)
	case descriptor.OperationDelete:
		return d.Delete(ctx, desc)
	default:
		return nil, fmt.Errorf("%w: %q", descriptor.ErrUnknownOperation, desc.Operation)
	}
}

func (d *Dispatcher) Read(ctx context.Context, desc descriptor.Descriptor) (QueryResult, error) {
	query, err := soql.BuildRead(desc)
	if err != nil {
		return QueryResult{}, err
	}
	return d.runQuery(ctx, "read", query, nil)
}

func (d *Dispatcher) Aggregate(ctx context.Context, desc descriptor.Descriptor) (QueryResult, error) {
	query, err := soql.BuildAggregate(desc)
	if err != nil {
		return QueryResult{}, err
	}
	meta := &AggregateMetadata{
		AggregateFunctions: desc.AggregateFunctions,
		GroupBy:            desc.GroupBy,
		Having:             desc.Having,
		QueryType:          "aggregate",
	}
	return d.runQuery(ctx, "aggregate", query, meta)
}

func (d *Dispatcher) runQuery(ctx context.Context, operation, query string, meta *AggregateMetadata) (QueryResult, error) {
	start := time.Now()
	d.logger.Debug("executing soql query", "operation", operation, "query", query)

	body, err := d.call(ctx, operation, http.MethodGet, "/query?q="+url.QueryEscape(query), nil)
	if err != nil {
		observability.ObserveSalesforceCall(operation, "error", time.Since(start))
		return QueryResult{}, err
	}

	var result QueryResult
	if err := json.Unmarshal(body, &result); err != nil {
		observability.ObserveSalesforceCall(operation, "error", time.Since(start))
		return QueryResult{}, fmt.Errorf("decode query response: %w", err)
	}
	if result.Records == nil {
		result.Records = []map[string]any{}
	}
	result.AggregateMetadata = meta
	observability.ObserveSalesforceCall(operation, "ok", time.Since(start))
	return result, nil
}

func (d *Dispatcher) Create(ctx context.Context, desc descriptor.Descriptor) (OperationResult, error) {
	start := time.Now()
	payload, err := json.Marshal(desc.Data)
	if err != nil {
		return OperationResult{}, fmt.Errorf("marshal record data: %w", err)
	}

	body, err := d.call(ctx, "create", http.MethodPost, "/sobjects/"+url.PathEscape(desc.ObjectType), payload)
	if err != nil {
		observability.ObserveSalesforceCall("create", "error", time.Since(start))
		return OperationResult{}, err
	}

	var created struct {
		ID      string `json:"id"`
		Success bool   `json:"success"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		observability.ObserveSalesforceCall("create", "error", time.Since(start))
		return OperationResult{}, fmt.Errorf("decode create response: %w", err)
	}
	observability.ObserveSalesforceCall("create", "ok", time.Since(start))
	return OperationResult{
		Success:    true,
		ID:         created.ID,
		Message:    desc.ObjectType + " created successfully",
		ObjectType: desc.ObjectType,
	}, nil
}

func (d *Dispatcher) Update(ctx context.Context, desc descriptor.Descriptor) (OperationResult, error) {
	start := time.Now()
	payload, err := json.Marshal(desc.Data)
	if err != nil {
		return OperationResult{}, fmt.Errorf("marshal record data: %w", err)
	}

	path := "/sobjects/" + url.PathEscape(desc.ObjectType) + "/" + url.PathEscape(desc.RecordID)
	if _, err := d.call(ctx, "update", http.MethodPatch, path, payload); err != nil {
		observability.ObserveSalesforceCall("update", "error", time.Since(start))
		return OperationResult{}, err
	}
	observability.ObserveSalesforceCall("update", "ok", time.Since(start))
	return OperationResult{
		Success:    true,
		ID:         desc.RecordID,
		Message:    desc.ObjectType + " updated successfully",
		ObjectType: desc.ObjectType,
	}, nil
}

func (d *Dispatcher) Delete(ctx context.Context, desc descriptor.Descriptor) (OperationResult, error) {
	start := time.Now()
	path := "/sobjects/" + url.PathEscape(desc.ObjectType) + "/" + url.PathEscape(desc.RecordID)
	if _, err := d.call(ctx, "delete", http.MethodDelete, path, nil); err != nil {
		observability.ObserveSalesforceCall("delete", "error", time.Since(start))
		return OperationResult{}, err
	}
	observability.ObserveSalesforceCall("delete", "ok", time.Since(start))
	return OperationResult{
		Success:    true,
		ID:         desc.RecordID,
		Message:    desc.ObjectType + " deleted successfully",
		ObjectType: desc.ObjectType,
	}, nil
}

// call performs one authenticated REST exchange. A 401 invalidates the
// cached token and retries once with a fresh one.
func (d *Dispatcher) call(ctx context.Context, operation, method, path string, payload []byte) ([]byte, error) {
	body, retry, err := d.doOnce(ctx, operation, method, path, payload)
	if retry {
		d.tokens.Invalidate()
		body, _, err = d.doOnce(ctx, operation, method, path, payload)
	}
	return body, err
}

func (d *Dispatcher) doOnce(ctx context.Context, operation, method, path string, payload []byte) ([]byte, bool, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, false, err
	}

	endpoint := strings.TrimRight(token.InstanceURL, "/") + "/services/data/v" + d.apiVersion + path
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, false, fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, networkError(operation)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read %s response: %w", operation, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, true, classifyUpstream(operation, resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 400 {
		d.logger.Warn("salesforce api error",
			"operation", operation,
			"status", resp.StatusCode,
			"body", string(body))
		return nil, false, classifyUpstream(operation, resp.StatusCode, string(body))
	}
	return body, false, nil
}
