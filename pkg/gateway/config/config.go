package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StoreRedis    StoreKind = "redis"
	StorePostgres StoreKind = "postgres"
	StoreMongo    StoreKind = "mongo"
)

type Config struct {
	Addr string

	LogLevel  string
	LogFormat string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Interaction channel (/v1/live).
	MaxMessageBytes    int64
	MaxImageBytes      int
	WSPingInterval     time.Duration
	WSWriteTimeout     time.Duration
	WSReadTimeout      time.Duration
	WSHandshakeTimeout time.Duration
	ChannelQueueSize   int
	ChannelRPS         float64
	ChannelBurst       int

	// Per-client limits across HTTP requests and channels.
	RateLimitRPS         float64
	RateLimitBurst       int
	MaxChannelsPerClient int
	TrustProxyHeaders    bool

	// Session manager.
	HistoryWindow  int
	AnalyzeTimeout time.Duration

	// Session store.
	Store             StoreKind
	MemoryMaxSessions int
	SessionTTL        time.Duration
	PruneInterval     time.Duration
	RedisURL          string
	RedisPrefix       string
	PostgresDSN       string
	MongoURI          string
	MongoDatabase     string

	// Analysis gateway.
	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	GeminiGoogleSearch bool

	// Observability.
	MetricsEnabled bool
	OTLPEndpoint   string

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                 envOr("OMNIGUIDE_ADDR", ":3000"),
		LogLevel:             strings.ToLower(envOr("OMNIGUIDE_LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(envOr("OMNIGUIDE_LOG_FORMAT", "text")),
		CORSAllowedOrigins:   make(map[string]struct{}),
		MaxMessageBytes:      envInt64Or("OMNIGUIDE_MAX_MESSAGE_BYTES", 12<<20), // 12 MiB
		MaxImageBytes:        envIntOr("OMNIGUIDE_MAX_IMAGE_BYTES", 8<<20),      // 8 MiB decoded
		WSPingInterval:       envDurationOr("OMNIGUIDE_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:       envDurationOr("OMNIGUIDE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:        envDurationOr("OMNIGUIDE_WS_READ_TIMEOUT", 0),
		WSHandshakeTimeout:   envDurationOr("OMNIGUIDE_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		ChannelQueueSize:     envIntOr("OMNIGUIDE_CHANNEL_QUEUE_SIZE", 16),
		ChannelRPS:           envFloat64Or("OMNIGUIDE_CHANNEL_RPS", 2.0),
		ChannelBurst:         envIntOr("OMNIGUIDE_CHANNEL_BURST", 4),
		RateLimitRPS:         envFloat64Or("OMNIGUIDE_RATE_LIMIT_RPS", 10),
		RateLimitBurst:       envIntOr("OMNIGUIDE_RATE_LIMIT_BURST", 20),
		MaxChannelsPerClient: envIntOr("OMNIGUIDE_MAX_CHANNELS_PER_CLIENT", 4),
		TrustProxyHeaders:    envBoolOr("OMNIGUIDE_TRUST_PROXY_HEADERS", false),
		HistoryWindow:        envIntOr("OMNIGUIDE_HISTORY_WINDOW", 5),
		AnalyzeTimeout:       envDurationOr("OMNIGUIDE_ANALYZE_TIMEOUT", 60*time.Second),
		Store:                StoreKind(strings.ToLower(envOr("OMNIGUIDE_STORE", string(StoreMemory)))),
		MemoryMaxSessions:    envIntOr("OMNIGUIDE_MEMORY_MAX_SESSIONS", 1000),
		SessionTTL:           envDurationOr("OMNIGUIDE_SESSION_TTL", 24*time.Hour),
		PruneInterval:        envDurationOr("OMNIGUIDE_PRUNE_INTERVAL", 10*time.Minute),
		RedisURL:             envOr("OMNIGUIDE_REDIS_URL", ""),
		RedisPrefix:          envOr("OMNIGUIDE_REDIS_PREFIX", "omniguide"),
		PostgresDSN:          envOr("OMNIGUIDE_POSTGRES_DSN", ""),
		MongoURI:             envOr("OMNIGUIDE_MONGO_URI", ""),
		MongoDatabase:        envOr("OMNIGUIDE_MONGO_DATABASE", "omniguide"),
		GeminiAPIKey:         envOr("GEMINI_API_KEY", ""),
		GeminiModel:          envOr("OMNIGUIDE_GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:        envOr("OMNIGUIDE_GEMINI_BASE_URL", ""),
		GeminiGoogleSearch:   envBoolOr("OMNIGUIDE_GEMINI_GOOGLE_SEARCH", false),
		MetricsEnabled:       envBoolOr("OMNIGUIDE_METRICS_ENABLED", true),
		OTLPEndpoint:         envOr("OMNIGUIDE_OTLP_ENDPOINT", ""),
		ReadHeaderTimeout:    envDurationOr("OMNIGUIDE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:          envDurationOr("OMNIGUIDE_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:  envDurationOr("OMNIGUIDE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("OMNIGUIDE_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("OMNIGUIDE_LOG_LEVEL must be one of debug|info|warn|error")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("OMNIGUIDE_LOG_FORMAT must be one of text|json")
	}

	if cfg.MaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.MaxImageBytes <= 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_MAX_IMAGE_BYTES must be > 0")
	}
	if int64(cfg.MaxImageBytes) > cfg.MaxMessageBytes {
		return Config{}, fmt.Errorf("OMNIGUIDE_MAX_IMAGE_BYTES must be <= OMNIGUIDE_MAX_MESSAGE_BYTES")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ChannelQueueSize <= 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_CHANNEL_QUEUE_SIZE must be > 0")
	}
	if cfg.ChannelRPS < 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_CHANNEL_RPS must be >= 0")
	}
	if cfg.ChannelRPS > 0 && cfg.ChannelBurst < 1 {
		return Config{}, fmt.Errorf("OMNIGUIDE_CHANNEL_BURST must be >= 1 when OMNIGUIDE_CHANNEL_RPS is set")
	}
	if cfg.RateLimitRPS < 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst < 1 {
		return Config{}, fmt.Errorf("OMNIGUIDE_RATE_LIMIT_BURST must be >= 1 when OMNIGUIDE_RATE_LIMIT_RPS is set")
	}
	if cfg.MaxChannelsPerClient < 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_MAX_CHANNELS_PER_CLIENT must be >= 0")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_HISTORY_WINDOW must be > 0")
	}
	if cfg.AnalyzeTimeout < 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_ANALYZE_TIMEOUT must be >= 0")
	}

	switch cfg.Store {
	case StoreMemory:
		if cfg.MemoryMaxSessions <= 0 {
			return Config{}, fmt.Errorf("OMNIGUIDE_MEMORY_MAX_SESSIONS must be > 0")
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("OMNIGUIDE_REDIS_URL must be set when OMNIGUIDE_STORE=redis")
		}
	case StorePostgres:
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("OMNIGUIDE_POSTGRES_DSN must be set when OMNIGUIDE_STORE=postgres")
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("OMNIGUIDE_MONGO_URI must be set when OMNIGUIDE_STORE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("OMNIGUIDE_STORE must be one of memory|redis|postgres|mongo")
	}
	if cfg.SessionTTL < 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_SESSION_TTL must be >= 0")
	}
	if cfg.PruneInterval < 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_PRUNE_INTERVAL must be >= 0")
	}

	if strings.TrimSpace(cfg.GeminiModel) == "" {
		return Config{}, fmt.Errorf("OMNIGUIDE_GEMINI_MODEL must not be empty")
	}

	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("OMNIGUIDE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

// ReadinessIssues lists conditions that keep the service from answering
// analyze requests even though the process is up.
func (c Config) ReadinessIssues() []string {
	var issues []string
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		issues = append(issues, "GEMINI_API_KEY is not set")
	}
	return issues
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
