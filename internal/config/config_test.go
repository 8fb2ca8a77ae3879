package config

import (
	"strings"
	"testing"
	"time"
)

// setRequired provides the two secrets every load needs.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "verify-me")
	t.Setenv("GEMINI_API_KEY", "test-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q; want 8080", cfg.Port)
	}
	if cfg.DBPath != "app.db" {
		t.Errorf("DBPath = %q; want app.db", cfg.DBPath)
	}
	if cfg.AI.Model != "gemini-2.0-flash" {
		t.Errorf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Timeout != 30*time.Second {
		t.Errorf("AI.Timeout = %v; want 30s", cfg.AI.Timeout)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Errorf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q", cfg.GinMode)
	}
	if cfg.OTEL.ServiceName != "wa-chat-backend" {
		t.Errorf("OTEL.ServiceName = %q", cfg.OTEL.ServiceName)
	}
}

func TestLoad_RequiredSecrets(t *testing.T) {
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "test-key")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "WHATSAPP_VERIFY_TOKEN") {
		t.Fatalf("err = %v; want missing verify token", err)
	}

	t.Setenv("WHATSAPP_VERIFY_TOKEN", "verify-me")
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("err = %v; want missing api key", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9000")
	t.Setenv("AI_TIMEOUT", "5s")
	t.Setenv("AI_MODEL", "gemini-2.5-pro")
	t.Setenv("RATE_RPS", "2.5")
	t.Setenv("RATE_BURST", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("API_BASE_PATH", "api/v2/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" || cfg.AI.Timeout != 5*time.Second || cfg.AI.Model != "gemini-2.5-pro" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.RateRPS != 2.5 || cfg.RateBurst != 3 {
		t.Errorf("rate = %v/%d", cfg.RateRPS, cfg.RateBurst)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("CORS = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want the warning alias normalized", cfg.LogLevel)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Errorf("APIBasePath = %q; want normalized", cfg.APIBasePath)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"zero ai timeout", map[string]string{"AI_TIMEOUT": "-1s"}},
		{"negative rps", map[string]string{"RATE_RPS": "-1"}},
		{"zero burst", map[string]string{"RATE_BURST": "0"}},
		{"bad sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "")
	defer func() {
		if recover() == nil {
			t.Fatalf("MustLoad did not panic")
		}
	}()
	MustLoad()
}

func TestNormalizeBasePath(t *testing.T) {
	for in, want := range map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api/":   "/api",
		"/api/v1": "/api/v1",
	} {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
