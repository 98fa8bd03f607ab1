package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/crmchat/crmchat/internal/descriptor"
	"github.com/crmchat/crmchat/internal/observability"
)

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaTranslator sends the prompt to an Ollama-compatible completion
// endpoint as a single blocking, non-streaming request.
type OllamaTranslator struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaTranslator(cfg OllamaConfig) (*OllamaTranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "llama3:8b"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaTranslator{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (t *OllamaTranslator) Translate(ctx context.Context, utterance string) (descriptor.Descriptor, error) {
	if strings.TrimSpace(utterance) == "" {
		return descriptor.Descriptor{}, fmt.Errorf("utterance is required")
	}

	start := time.Now()
	payload, err := json.Marshal(generateRequest{
		Model:  t.model,
		Prompt: BuildPrompt(utterance),
		Stream: false,
	})
	if err != nil {
		return descriptor.Descriptor{}, fmt.Errorf("marshal generate payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return descriptor.Descriptor{}, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			observability.ObserveTranslation("cancelled", time.Since(start))
			return descriptor.Descriptor{}, ctx.Err()
		}
		observability.ObserveTranslation("unavailable", time.Since(start))
		return descriptor.Descriptor{}, wrapModelUnavailable("request generate: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ObserveTranslation("unavailable", time.Since(start))
		return descriptor.Descriptor{}, wrapModelUnavailable("read generate response: %v", err)
	}
	if resp.StatusCode >= 400 {
		observability.ObserveTranslation("unavailable", time.Since(start))
		return descriptor.Descriptor{}, wrapModelUnavailable("status=%d body=%s", resp.StatusCode, string(rawBody))
	}

	var parsed generateResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		observability.ObserveTranslation("unavailable", time.Since(start))
		return descriptor.Descriptor{}, wrapModelUnavailable("decode generate response: %v", err)
	}

	d, err := ParseModelOutput(parsed.Response)
	if err != nil {
		observability.ObserveTranslation("unparseable", time.Since(start))
		return descriptor.Descriptor{}, err
	}
	observability.ObserveTranslation("ok", time.Since(start))
	return d, nil
}
