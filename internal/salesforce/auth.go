// Package salesforce authenticates against a Salesforce org and executes
// descriptor operations over its REST API.
package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Token is the result of a client-credentials grant.
type Token struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	TokenType   string `json:"token_type"`
}

// TokenProvider hands out a usable token for each API call. Invalidate is
// called after an authorization failure so the next call re-authenticates.
type TokenProvider interface {
	Token(ctx context.Context) (Token, error)
	Invalidate()
}

type AuthConfig struct {
	LoginURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// AuthClient performs the OAuth client-credentials exchange against the
// org's login endpoint.
type AuthClient struct {
	loginURL     string
	clientID     string
	clientSecret string
	client       *http.Client
}

func NewAuthClient(cfg AuthConfig) (*AuthClient, error) {
	if strings.TrimSpace(cfg.LoginURL) == "" {
		return nil, fmt.Errorf("login URL is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AuthClient{
		loginURL:     strings.TrimRight(strings.TrimSpace(cfg.LoginURL), "/"),
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		client:       &http.Client{Timeout: timeout},
	}, nil
}

func (c *AuthClient) Authenticate(ctx context.Context) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL+"/services/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Token{}, ctx.Err()
		}
		return Token{}, networkError("auth")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Token{}, classifyUpstream("auth", resp.StatusCode, string(body))
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return Token{}, fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" || token.InstanceURL == "" {
		return Token{}, fmt.Errorf("token response missing access_token or instance_url")
	}
	return token, nil
}

// DirectTokenProvider authenticates on every call.
type DirectTokenProvider struct {
	client *AuthClient
}

func NewDirectTokenProvider(client *AuthClient) *DirectTokenProvider {
	return &DirectTokenProvider{client: client}
}

func (p *DirectTokenProvider) Token(ctx context.Context) (Token, error) {
	return p.client.Authenticate(ctx)
}

func (p *DirectTokenProvider) Invalidate() {}

// CachingTokenProvider reuses a token until it ages out or is invalidated
// after an authorization failure.
type CachingTokenProvider struct {
	client *AuthClient
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	token     Token
	fetchedAt time.Time
	valid     bool
}

func NewCachingTokenProvider(client *AuthClient, ttl time.Duration) *CachingTokenProvider {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachingTokenProvider{client: client, ttl: ttl, now: time.Now}
}

func (p *CachingTokenProvider) Token(ctx context.Context) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.valid && p.now().Sub(p.fetchedAt) < p.ttl {
		return p.token, nil
	}
	token, err := p.client.Authenticate(ctx)
	if err != nil {
		return Token{}, err
	}
	p.token = token
	p.fetchedAt = p.now()
	p.valid = true
	return token, nil
}

func (p *CachingTokenProvider) Invalidate() {
	p.mu.Lock()
	p.valid = false
	p.mu.Unlock()
}
