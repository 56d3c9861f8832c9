package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		prev, ok := os.LookupEnv(key)
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
		if ok {
			t.Cleanup(func() { _ = os.Setenv(key, prev) })
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t,
		"PORT", "GRPC_PORT", "DB_PATH", "SCHEDULING_URL", "THINKING_DELAY",
		"SCOPING_EXHAUST_QUESTIONS", "CHAT_SESSION_TTL", "CHAT_SWEEP_INTERVAL",
		"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "MAX_REQUEST_BODY_SIZE",
	)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBPath != "./data/agency.db" {
		t.Errorf("Unexpected port/db path %q/%q", cfg.Port, cfg.DBPath)
	}
	if cfg.Scoping.SchedulingURL != DefaultSchedulingURL {
		t.Errorf("Unexpected scheduling URL %q", cfg.Scoping.SchedulingURL)
	}
	if cfg.GRPCPort != "" {
		t.Errorf("Expected gRPC disabled, got %q", cfg.GRPCPort)
	}
	if cfg.Scoping.ThinkingDelay != 1500*time.Millisecond {
		t.Errorf("Unexpected thinking delay %v", cfg.Scoping.ThinkingDelay)
	}
	if cfg.Scoping.ExhaustQuestions {
		t.Error("Expected exhaust questions off")
	}
	if cfg.Chat.SessionTTL != time.Hour {
		t.Errorf("Unexpected session TTL %v", cfg.Chat.SessionTTL)
	}
	if cfg.RateLimit.RequestsPerWindow != 10 || cfg.RateLimit.WindowDuration != time.Minute {
		t.Errorf("Unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.SSE.MaxRequestBodySize != 1<<20 {
		t.Errorf("Unexpected body limit %d", cfg.SSE.MaxRequestBodySize)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("GRPC_PORT", "9001")
	t.Setenv("THINKING_DELAY", "250")
	t.Setenv("SCOPING_EXHAUST_QUESTIONS", "yes")
	t.Setenv("CHAT_SWEEP_INTERVAL", "30s")
	t.Setenv("SCHEDULING_URL", "https://example.com/book")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9000" || cfg.GRPCPort != "9001" {
		t.Errorf("Unexpected ports %q/%q", cfg.Port, cfg.GRPCPort)
	}
	if cfg.Scoping.ThinkingDelay != 250*time.Millisecond {
		t.Errorf("Expected bare milliseconds to parse, got %v", cfg.Scoping.ThinkingDelay)
	}
	if !cfg.Scoping.ExhaustQuestions {
		t.Error("Expected exhaust questions on")
	}
	if cfg.Chat.SweepInterval != 30*time.Second {
		t.Errorf("Unexpected sweep interval %v", cfg.Chat.SweepInterval)
	}
	if cfg.Scoping.SchedulingURL != "https://example.com/book" {
		t.Errorf("Unexpected scheduling URL %q", cfg.Scoping.SchedulingURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:   "8080",
			DBPath: "x.db",
			Scoping: ScopingConfig{
				SchedulingURL: DefaultSchedulingURL,
			},
			Chat:      ChatConfig{SessionTTL: time.Hour, SweepInterval: time.Minute},
			RateLimit: RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second},
			SSE:       SSEConfig{MaxRequestBodySize: 1024},
			ConversationLog: ConversationLogConfig{
				Dir: "logs", GlobalPath: "logs/all.ndjson", QueueSize: 1,
			},
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("Expected base config to validate, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"same grpc port", func(c *Config) { c.GRPCPort = "8080" }, "GRPC_PORT"},
		{"relative scheduling url", func(c *Config) { c.Scoping.SchedulingURL = "/book" }, "SCHEDULING_URL"},
		{"negative delay", func(c *Config) { c.Scoping.ThinkingDelay = -time.Second }, "THINKING_DELAY"},
		{"zero rate limit", func(c *Config) { c.RateLimit.RequestsPerWindow = 0 }, "RATE_LIMIT_REQUESTS"},
		{"zero ttl", func(c *Config) { c.Chat.SessionTTL = 0 }, "CHAT_SESSION_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestGetEnvDurationFallback(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	if got := getEnvDuration("SOME_DURATION", time.Second); got != time.Second {
		t.Errorf("Expected fallback for unparseable value, got %v", got)
	}
}

func TestAllowedOrigins(t *testing.T) {
	c := &Config{Port: "8080", FrontendURL: "https://agency.example/"}
	got := c.AllowedOrigins()
	if len(got) != 1 || got[0] != "https://agency.example" {
		t.Errorf("Unexpected origins %v", got)
	}
}
