package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

type TopologyConfig struct {
	InitialDepth int
	ExpandDepth  int
	MaxDepth     int
	FetchTimeout time.Duration
}

type Config struct {
	Port              int
	Database          DatabaseConfig
	RedisAddr         string
	CacheTTL          time.Duration
	Topology          TopologyConfig
	AccessTokenSecret []byte
	AllowedOrigins    []string
	LogLevel          slog.Level
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	cfg := &Config{
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		AccessTokenSecret: []byte(os.Getenv("ACCESS_TOKEN_SECRET")),
	}

	var err error
	if cfg.Database, err = loadDatabase(); err != nil {
		return nil, err
	}
	if cfg.Port, err = intEnv("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = durationEnv("CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Topology, err = loadTopology(); err != nil {
		return nil, err
	}

	cfg.AllowedOrigins = []string{"*"}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
		}
	}

	return cfg, nil
}

// AuthEnabled reports whether bearer tokens are checked on the API.
func (c *Config) AuthEnabled() bool {
	return len(c.AccessTokenSecret) > 0
}

func loadDatabase() (DatabaseConfig, error) {
	var db DatabaseConfig
	required := []struct {
		name string
		dst  *string
	}{
		{"DB_HOST", &db.Host},
		{"DB_PORT", &db.Port},
		{"DB_USERNAME", &db.Username},
		{"DB_PASSWORD", &db.Password},
		{"DB_DATABASE", &db.Database},
	}
	for _, r := range required {
		*r.dst = os.Getenv(r.name)
		if *r.dst == "" {
			return db, fmt.Errorf("%s environment variable is required", r.name)
		}
	}
	return db, nil
}

func loadTopology() (TopologyConfig, error) {
	t := TopologyConfig{}
	var err error
	if t.InitialDepth, err = intEnv("TOPOLOGY_INITIAL_DEPTH", 3); err != nil {
		return t, err
	}
	if t.ExpandDepth, err = intEnv("TOPOLOGY_EXPAND_DEPTH", 1); err != nil {
		return t, err
	}
	if t.MaxDepth, err = intEnv("TOPOLOGY_MAX_DEPTH", 6); err != nil {
		return t, err
	}
	if t.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", 30*time.Second); err != nil {
		return t, err
	}

	if t.MaxDepth < 1 {
		return t, fmt.Errorf("TOPOLOGY_MAX_DEPTH must be at least 1, got %d", t.MaxDepth)
	}
	if t.InitialDepth < 1 || t.InitialDepth > t.MaxDepth {
		return t, fmt.Errorf("TOPOLOGY_INITIAL_DEPTH must be between 1 and %d, got %d", t.MaxDepth, t.InitialDepth)
	}
	if t.ExpandDepth < 1 || t.ExpandDepth > t.MaxDepth {
		return t, fmt.Errorf("TOPOLOGY_EXPAND_DEPTH must be between 1 and %d, got %d", t.MaxDepth, t.ExpandDepth)
	}
	return t, nil
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}
