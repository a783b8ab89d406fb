package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"OMNIGUIDE_ADDR",
	"OMNIGUIDE_LOG_LEVEL",
	"OMNIGUIDE_LOG_FORMAT",
	"OMNIGUIDE_CORS_ORIGINS",
	"OMNIGUIDE_MAX_MESSAGE_BYTES",
	"OMNIGUIDE_MAX_IMAGE_BYTES",
	"OMNIGUIDE_WS_PING_INTERVAL",
	"OMNIGUIDE_WS_WRITE_TIMEOUT",
	"OMNIGUIDE_WS_READ_TIMEOUT",
	"OMNIGUIDE_WS_HANDSHAKE_TIMEOUT",
	"OMNIGUIDE_CHANNEL_QUEUE_SIZE",
	"OMNIGUIDE_CHANNEL_RPS",
	"OMNIGUIDE_CHANNEL_BURST",
	"OMNIGUIDE_RATE_LIMIT_RPS",
	"OMNIGUIDE_RATE_LIMIT_BURST",
	"OMNIGUIDE_MAX_CHANNELS_PER_CLIENT",
	"OMNIGUIDE_TRUST_PROXY_HEADERS",
	"OMNIGUIDE_HISTORY_WINDOW",
	"OMNIGUIDE_ANALYZE_TIMEOUT",
	"OMNIGUIDE_STORE",
	"OMNIGUIDE_MEMORY_MAX_SESSIONS",
	"OMNIGUIDE_SESSION_TTL",
	"OMNIGUIDE_PRUNE_INTERVAL",
	"OMNIGUIDE_REDIS_URL",
	"OMNIGUIDE_REDIS_PREFIX",
	"OMNIGUIDE_POSTGRES_DSN",
	"OMNIGUIDE_MONGO_URI",
	"OMNIGUIDE_MONGO_DATABASE",
	"OMNIGUIDE_GEMINI_MODEL",
	"OMNIGUIDE_GEMINI_BASE_URL",
	"OMNIGUIDE_GEMINI_GOOGLE_SEARCH",
	"OMNIGUIDE_METRICS_ENABLED",
	"OMNIGUIDE_OTLP_ENDPOINT",
	"OMNIGUIDE_READ_HEADER_TIMEOUT",
	"OMNIGUIDE_READ_TIMEOUT",
	"OMNIGUIDE_SHUTDOWN_GRACE_PERIOD",
	"GEMINI_API_KEY",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearGatewayEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":3000" {
		t.Fatalf("Addr = %q, want :3000", cfg.Addr)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Fatalf("log = %q/%q, want info/text", cfg.LogLevel, cfg.LogFormat)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("CORSAllowedOrigins = %v, want empty", cfg.CORSAllowedOrigins)
	}
	if cfg.MaxMessageBytes != 12<<20 {
		t.Fatalf("MaxMessageBytes = %d, want %d", cfg.MaxMessageBytes, int64(12<<20))
	}
	if cfg.MaxImageBytes != 8<<20 {
		t.Fatalf("MaxImageBytes = %d, want %d", cfg.MaxImageBytes, 8<<20)
	}
	if cfg.WSPingInterval != 20*time.Second {
		t.Fatalf("WSPingInterval = %v, want 20s", cfg.WSPingInterval)
	}
	if cfg.WSWriteTimeout != 5*time.Second {
		t.Fatalf("WSWriteTimeout = %v, want 5s", cfg.WSWriteTimeout)
	}
	if cfg.WSReadTimeout != 0 {
		t.Fatalf("WSReadTimeout = %v, want 0", cfg.WSReadTimeout)
	}
	if cfg.WSHandshakeTimeout != 5*time.Second {
		t.Fatalf("WSHandshakeTimeout = %v, want 5s", cfg.WSHandshakeTimeout)
	}
	if cfg.ChannelQueueSize != 16 {
		t.Fatalf("ChannelQueueSize = %d, want 16", cfg.ChannelQueueSize)
	}
	if cfg.ChannelRPS != 2 || cfg.ChannelBurst != 4 {
		t.Fatalf("channel rate = %v/%d, want 2/4", cfg.ChannelRPS, cfg.ChannelBurst)
	}
	if cfg.RateLimitRPS != 10 || cfg.RateLimitBurst != 20 {
		t.Fatalf("rate limit = %v/%d, want 10/20", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.MaxChannelsPerClient != 4 {
		t.Fatalf("MaxChannelsPerClient = %d, want 4", cfg.MaxChannelsPerClient)
	}
	if cfg.HistoryWindow != 5 {
		t.Fatalf("HistoryWindow = %d, want 5", cfg.HistoryWindow)
	}
	if cfg.AnalyzeTimeout != 60*time.Second {
		t.Fatalf("AnalyzeTimeout = %v, want 60s", cfg.AnalyzeTimeout)
	}
	if cfg.Store != StoreMemory {
		t.Fatalf("Store = %q, want memory", cfg.Store)
	}
	if cfg.MemoryMaxSessions != 1000 {
		t.Fatalf("MemoryMaxSessions = %d, want 1000", cfg.MemoryMaxSessions)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("SessionTTL = %v, want 24h", cfg.SessionTTL)
	}
	if cfg.RedisPrefix != "omniguide" || cfg.MongoDatabase != "omniguide" {
		t.Fatalf("RedisPrefix/MongoDatabase = %q/%q", cfg.RedisPrefix, cfg.MongoDatabase)
	}
	if cfg.GeminiModel != "gemini-2.5-flash" {
		t.Fatalf("GeminiModel = %q", cfg.GeminiModel)
	}
	if cfg.GeminiGoogleSearch {
		t.Fatalf("GeminiGoogleSearch = true, want false")
	}
	if !cfg.MetricsEnabled {
		t.Fatalf("MetricsEnabled = false, want true")
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 30s", cfg.ShutdownGracePeriod)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("OMNIGUIDE_ADDR", ":9090")
	t.Setenv("OMNIGUIDE_CORS_ORIGINS", "https://a.example, https://b.example,,")
	t.Setenv("OMNIGUIDE_HISTORY_WINDOW", "8")
	t.Setenv("OMNIGUIDE_ANALYZE_TIMEOUT", "15s")
	t.Setenv("OMNIGUIDE_STORE", "Redis")
	t.Setenv("OMNIGUIDE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("OMNIGUIDE_GEMINI_GOOGLE_SEARCH", "on")
	t.Setenv("OMNIGUIDE_LOG_FORMAT", "JSON")
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins = %v, want 2 entries", cfg.CORSAllowedOrigins)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://b.example"]; !ok {
		t.Fatalf("missing https://b.example in %v", cfg.CORSAllowedOrigins)
	}
	if cfg.HistoryWindow != 8 || cfg.AnalyzeTimeout != 15*time.Second {
		t.Fatalf("HistoryWindow/AnalyzeTimeout = %d/%v", cfg.HistoryWindow, cfg.AnalyzeTimeout)
	}
	if cfg.Store != StoreRedis || cfg.RedisURL == "" {
		t.Fatalf("Store = %q, RedisURL = %q", cfg.Store, cfg.RedisURL)
	}
	if !cfg.GeminiGoogleSearch {
		t.Fatalf("GeminiGoogleSearch = false, want true")
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.GeminiAPIKey != "key" {
		t.Fatalf("GeminiAPIKey = %q", cfg.GeminiAPIKey)
	}
	if issues := cfg.ReadinessIssues(); len(issues) != 0 {
		t.Fatalf("ReadinessIssues() = %v, want none", issues)
	}
}

func TestLoadFromEnv_InvalidValuesFallBackToDefaults(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("OMNIGUIDE_HISTORY_WINDOW", "many")
	t.Setenv("OMNIGUIDE_WS_PING_INTERVAL", "soon")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.HistoryWindow != 5 {
		t.Fatalf("HistoryWindow = %d, want 5", cfg.HistoryWindow)
	}
	if cfg.WSPingInterval != 20*time.Second {
		t.Fatalf("WSPingInterval = %v, want 20s", cfg.WSPingInterval)
	}
}

func TestLoadFromEnv_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"log level", map[string]string{"OMNIGUIDE_LOG_LEVEL": "trace"}, "OMNIGUIDE_LOG_LEVEL"},
		{"log format", map[string]string{"OMNIGUIDE_LOG_FORMAT": "xml"}, "OMNIGUIDE_LOG_FORMAT"},
		{"message bytes", map[string]string{"OMNIGUIDE_MAX_MESSAGE_BYTES": "0"}, "OMNIGUIDE_MAX_MESSAGE_BYTES"},
		{"image larger than message", map[string]string{"OMNIGUIDE_MAX_MESSAGE_BYTES": "1024", "OMNIGUIDE_MAX_IMAGE_BYTES": "2048"}, "OMNIGUIDE_MAX_IMAGE_BYTES"},
		{"queue size", map[string]string{"OMNIGUIDE_CHANNEL_QUEUE_SIZE": "0"}, "OMNIGUIDE_CHANNEL_QUEUE_SIZE"},
		{"burst", map[string]string{"OMNIGUIDE_CHANNEL_BURST": "0"}, "OMNIGUIDE_CHANNEL_BURST"},
		{"rate limit burst", map[string]string{"OMNIGUIDE_RATE_LIMIT_BURST": "0"}, "OMNIGUIDE_RATE_LIMIT_BURST"},
		{"history window", map[string]string{"OMNIGUIDE_HISTORY_WINDOW": "0"}, "OMNIGUIDE_HISTORY_WINDOW"},
		{"store kind", map[string]string{"OMNIGUIDE_STORE": "sqlite"}, "OMNIGUIDE_STORE"},
		{"redis url", map[string]string{"OMNIGUIDE_STORE": "redis"}, "OMNIGUIDE_REDIS_URL"},
		{"postgres dsn", map[string]string{"OMNIGUIDE_STORE": "postgres"}, "OMNIGUIDE_POSTGRES_DSN"},
		{"mongo uri", map[string]string{"OMNIGUIDE_STORE": "mongo"}, "OMNIGUIDE_MONGO_URI"},
		{"session ttl", map[string]string{"OMNIGUIDE_SESSION_TTL": "-1s"}, "OMNIGUIDE_SESSION_TTL"},
		{"grace", map[string]string{"OMNIGUIDE_SHUTDOWN_GRACE_PERIOD": "0s"}, "OMNIGUIDE_SHUTDOWN_GRACE_PERIOD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearGatewayEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("LoadFromEnv() error = nil, want error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %q, want it to mention %s", err.Error(), tt.wantErr)
			}
			if cfg.Addr != "" {
				t.Fatalf("cfg = %+v, want zero Config on error", cfg)
			}
		})
	}
}

func TestReadinessIssues_MissingAPIKey(t *testing.T) {
	clearGatewayEnv(t)
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	issues := cfg.ReadinessIssues()
	if len(issues) != 1 || !strings.Contains(issues[0], "GEMINI_API_KEY") {
		t.Fatalf("ReadinessIssues() = %v", issues)
	}
}
