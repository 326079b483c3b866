package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type LogConfig struct {
	Level     string
	Format    string // legacy | json | console
	ToConsole bool
	ToFile    bool
	File      string
	Caller    bool
}

type AppConfig struct {
	Host      string
	Port      int
	StaticDir string
	IndexFile string

	AllowedOrigins []string
	WSReadLimit    int64
	OutboxSize     int
	PingInterval   time.Duration

	RedisURL        string
	RoomSnapshotTTL time.Duration
	DatabaseURL     string

	AssistantBaseURL   string
	AssistantAPIKey    string
	AssistantModel     string
	AssistantTimeout   time.Duration
	AssistantMaxTokens int

	MessagesDir string

	Log LogConfig
}

// Addr is the listen address for the HTTP server.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AssistantEnabled reports whether chat questions are forwarded to the assistant.
func (c *AppConfig) AssistantEnabled() bool {
	return c.AssistantBaseURL != ""
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:               3000,
		StaticDir:          ".",
		IndexFile:          "maths-nerds.html",
		WSReadLimit:        65536,
		OutboxSize:         64,
		PingInterval:       30 * time.Second,
		RoomSnapshotTTL:    time.Hour,
		AssistantModel:     "gpt-4o-mini",
		AssistantTimeout:   20 * time.Second,
		AssistantMaxTokens: 256,
		Log: LogConfig{
			Level:     "info",
			Format:    "legacy",
			ToConsole: true,
			ToFile:    false,
			File:      filepath.Join("logs", "server.log"),
		},
	}

	cfg.Host = strings.TrimSpace(os.Getenv("HOST"))
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("PORT must be 1-65535, got %q", v)
		}
		cfg.Port = n
	}
	if v := strings.TrimSpace(os.Getenv("STATIC_DIR")); v != "" {
		cfg.StaticDir = v
	}
	if v := strings.TrimSpace(os.Getenv("INDEX_FILE")); v != "" {
		cfg.IndexFile = v
	}

	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	if v := strings.TrimSpace(os.Getenv("WS_READ_LIMIT")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.WSReadLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("OUTBOX_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.OutboxSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("WS_PING_INTERVAL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PingInterval = time.Duration(n) * time.Second
		}
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("ROOM_SNAPSHOT_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RoomSnapshotTTL = time.Duration(n) * time.Second
		}
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.AssistantBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("ASSISTANT_BASE_URL")), "/")
	cfg.AssistantAPIKey = strings.TrimSpace(os.Getenv("ASSISTANT_API_KEY"))
	if v := strings.TrimSpace(os.Getenv("ASSISTANT_MODEL")); v != "" {
		cfg.AssistantModel = v
	}
	if v := strings.TrimSpace(os.Getenv("ASSISTANT_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AssistantTimeout = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("ASSISTANT_MAX_TOKENS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AssistantMaxTokens = n
		}
	}

	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))); v == "legacy" || v == "json" || v == "console" {
		cfg.Log.Format = v
	}
	cfg.Log.ToConsole = boolEnv("LOG_TO_CONSOLE", cfg.Log.ToConsole)
	cfg.Log.ToFile = boolEnv("LOG_TO_FILE", cfg.Log.ToFile)
	cfg.Log.Caller = boolEnv("LOG_CALLER", cfg.Log.Caller)
	if v := strings.TrimSpace(os.Getenv("LOG_FILE")); v != "" {
		cfg.Log.File = v
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func boolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
