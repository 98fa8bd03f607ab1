package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func baseEnv(extra map[string]string) map[string]string {
	env := map[string]string{
		"CRMCHAT_SF_LOGIN_URL":     "https://login.salesforce.com",
		"CRMCHAT_SF_CLIENT_ID":     "client-id",
		"CRMCHAT_SF_CLIENT_SECRET": "client-secret",
	}
	for key, value := range extra {
		env[key] = value
	}
	return env
}

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("crmchat-api", mapLookup(baseEnv(nil)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Salesforce.APIVersion != "59.0" {
		t.Fatalf("Salesforce.APIVersion = %q", cfg.Salesforce.APIVersion)
	}
	if cfg.Salesforce.TokenCache {
		t.Fatal("Salesforce.TokenCache should default to false")
	}
	if cfg.Model.BaseURL != "http://localhost:11434" {
		t.Fatalf("Model.BaseURL = %q", cfg.Model.BaseURL)
	}
	if cfg.Model.Model != "llama3:8b" {
		t.Fatalf("Model.Model = %q", cfg.Model.Model)
	}
	if cfg.Transcript.Enabled {
		t.Fatal("Transcript.Enabled should default to false")
	}
	if cfg.Transcript.MaxOpenConns != 10 {
		t.Fatalf("Transcript.MaxOpenConns = %d", cfg.Transcript.MaxOpenConns)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("crmchat-api", mapLookup(baseEnv(map[string]string{"CRMCHAT_PROFILE": "prod"})))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"CRMCHAT_PROFILE":                       "test",
		"CRMCHAT_SERVICE_NAME":                  "crmchat-custom",
		"CRMCHAT_HTTP_ADDR":                     ":9999",
		"CRMCHAT_HTTP_READ_TIMEOUT":             "2s",
		"CRMCHAT_HTTP_WRITE_TIMEOUT":            "3s",
		"CRMCHAT_LOG_LEVEL":                     "error",
		"CRMCHAT_AUTH_REQUIRED":                 "true",
		"CRMCHAT_AUTH_STATIC_KEYS":              "k1:ops:chat_user",
		"CRMCHAT_SF_LOGIN_URL":                  "https://test.salesforce.com",
		"CRMCHAT_SF_CLIENT_ID":                  "abc",
		"CRMCHAT_SF_CLIENT_SECRET":              "def",
		"CRMCHAT_SF_API_VERSION":                "61.0",
		"CRMCHAT_SF_TIMEOUT":                    "12s",
		"CRMCHAT_SF_TOKEN_CACHE":                "true",
		"CRMCHAT_MODEL_BASE_URL":                "http://model.internal:11434",
		"CRMCHAT_MODEL_NAME":                    "llama3:70b",
		"CRMCHAT_MODEL_TIMEOUT":                 "90s",
		"CRMCHAT_TRANSCRIPT_ENABLED":            "true",
		"CRMCHAT_TRANSCRIPT_DSN":                "postgres://example",
		"CRMCHAT_TRANSCRIPT_MAX_OPEN_CONNS":     "42",
		"CRMCHAT_TRANSCRIPT_MAX_IDLE_CONNS":     "17",
		"CRMCHAT_TRANSCRIPT_CONN_MAX_IDLE_TIME": "7m",
	})
	cfg, err := Load("crmchat-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "crmchat-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP.WriteTimeout = %s", cfg.HTTP.WriteTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required = false, want true")
	}
	if cfg.Auth.StaticKeys != "k1:ops:chat_user" {
		t.Fatalf("StaticKeys = %q", cfg.Auth.StaticKeys)
	}
	if cfg.Salesforce.LoginURL != "https://test.salesforce.com" {
		t.Fatalf("Salesforce.LoginURL = %q", cfg.Salesforce.LoginURL)
	}
	if cfg.Salesforce.APIVersion != "61.0" {
		t.Fatalf("Salesforce.APIVersion = %q", cfg.Salesforce.APIVersion)
	}
	if cfg.Salesforce.Timeout != 12*time.Second {
		t.Fatalf("Salesforce.Timeout = %s", cfg.Salesforce.Timeout)
	}
	if !cfg.Salesforce.TokenCache {
		t.Fatal("Salesforce.TokenCache = false, want true")
	}
	if cfg.Model.BaseURL != "http://model.internal:11434" {
		t.Fatalf("Model.BaseURL = %q", cfg.Model.BaseURL)
	}
	if cfg.Model.Model != "llama3:70b" {
		t.Fatalf("Model.Model = %q", cfg.Model.Model)
	}
	if cfg.Model.Timeout != 90*time.Second {
		t.Fatalf("Model.Timeout = %s", cfg.Model.Timeout)
	}
	if !cfg.Transcript.Enabled {
		t.Fatal("Transcript.Enabled = false, want true")
	}
	if cfg.Transcript.DSN != "postgres://example" {
		t.Fatalf("Transcript.DSN = %q", cfg.Transcript.DSN)
	}
	if cfg.Transcript.MaxOpenConns != 42 {
		t.Fatalf("Transcript.MaxOpenConns = %d", cfg.Transcript.MaxOpenConns)
	}
	if cfg.Transcript.MaxIdleConns != 17 {
		t.Fatalf("Transcript.MaxIdleConns = %d", cfg.Transcript.MaxIdleConns)
	}
	if cfg.Transcript.ConnMaxIdleTime != 7*time.Minute {
		t.Fatalf("Transcript.ConnMaxIdleTime = %s", cfg.Transcript.ConnMaxIdleTime)
	}
}

func TestLoadFailsFastOnMissingSalesforceCredentials(t *testing.T) {
	tests := []struct {
		missing string
		wantMsg string
	}{
		{"CRMCHAT_SF_LOGIN_URL", "login url"},
		{"CRMCHAT_SF_CLIENT_ID", "client id"},
		{"CRMCHAT_SF_CLIENT_SECRET", "client secret"},
	}
	for _, tc := range tests {
		env := baseEnv(nil)
		delete(env, tc.missing)
		_, err := Load("crmchat-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error with %s unset", tc.missing)
		}
		if !strings.Contains(err.Error(), tc.wantMsg) {
			t.Fatalf("Load() error = %v, want mention of %q", err, tc.wantMsg)
		}
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"CRMCHAT_PROFILE": "oops"},
		{"CRMCHAT_HTTP_READ_TIMEOUT": "NaN"},
		{"CRMCHAT_SF_TIMEOUT": "fast"},
		{"CRMCHAT_SF_TOKEN_CACHE": "not-bool"},
		{"CRMCHAT_TRANSCRIPT_MAX_OPEN_CONNS": "oops"},
		{"CRMCHAT_AUTH_REQUIRED": "not-bool"},
		{"CRMCHAT_LOG_LEVEL": "verbose"},
	}
	for _, extra := range tests {
		_, err := Load("crmchat-api", mapLookup(baseEnv(extra)))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", extra)
		}
	}
}

func TestLoadRequiresTranscriptDSNWhenEnabled(t *testing.T) {
	env := baseEnv(map[string]string{
		"CRMCHAT_TRANSCRIPT_ENABLED": "true",
		"CRMCHAT_TRANSCRIPT_DSN":     "",
	})
	if _, err := Load("crmchat-api", mapLookup(env)); err == nil {
		t.Fatal("Load() expected error when transcript enabled without dsn")
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
