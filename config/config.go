package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	AdminToken     string
	APIKey         string

	Limits    LimitsConfig
	Heartbeat HeartbeatConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Log       LogConfig

	ICEServers []webrtc.ICEServer
}

// LimitsConfig bounds the room registry
type LimitsConfig struct {
	MaxPeersPerRoom int
	MaxGlobalRooms  int
	RoomIdleTimeout time.Duration
	ReaperInterval  time.Duration
}

type HeartbeatConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// RateLimitConfig throttles per client IP. Room creation allows Burst
// requests at once, refilled one every Every; WebSocket joins, which may
// verify a room password, get their own JoinBurst/JoinEvery bucket.
type RateLimitConfig struct {
	Burst     int
	Every     time.Duration
	JoinBurst int
	JoinEvery time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Parse allowed origins (comma-separated, "*" allows any)
	origins := splitCSV(getEnv("ALLOWED_ORIGINS", "*"))

	iceServers, err := ParseICEServers(
		os.Getenv(envICEServersJSON),
		os.Getenv(envStunURLs),
		os.Getenv(envTurnURLs),
		os.Getenv(envTurnUsername),
		os.Getenv(envTurnCredential),
	)
	if err != nil {
		return nil, err
	}
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers()
	}

	cfg := &Config{
		Port:           getEnv("PORT", "3001"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		AdminToken:     getEnv("ADMIN_TOKEN", "changeme"),
		APIKey:         os.Getenv("API_KEY"),
		Limits: LimitsConfig{
			MaxPeersPerRoom: getEnvInt("MAX_PEERS_PER_ROOM", 6),
			MaxGlobalRooms:  getEnvInt("MAX_GLOBAL_ROOMS", 500),
			RoomIdleTimeout: getEnvDuration("ROOM_IDLE_TIMEOUT", 5*time.Minute),
			ReaperInterval:  getEnvDuration("REAPER_INTERVAL", time.Minute),
		},
		Heartbeat: HeartbeatConfig{
			Interval: getEnvDuration("HEARTBEAT_INTERVAL", 15*time.Second),
			Timeout:  getEnvDuration("HEARTBEAT_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Burst: getEnvInt("RATE_LIMIT_BURST", 5),
			Every: getEnvDuration("RATE_LIMIT_EVERY", 12*time.Second),

			JoinBurst: getEnvInt("RATE_LIMIT_JOIN_BURST", 20),
			JoinEvery: getEnvDuration("RATE_LIMIT_JOIN_EVERY", 3*time.Second),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			File:   os.Getenv("LOG_FILE"),
		},
		ICEServers: iceServers,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether ENVIRONMENT is "production"
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if c.Heartbeat.Interval <= 0 || c.Heartbeat.Timeout <= 0 {
		return fmt.Errorf("heartbeat interval and timeout must be positive")
	}
	if c.Heartbeat.Timeout < c.Heartbeat.Interval {
		return fmt.Errorf("HEARTBEAT_TIMEOUT (%s) must not be shorter than HEARTBEAT_INTERVAL (%s)", c.Heartbeat.Timeout, c.Heartbeat.Interval)
	}
	if c.Limits.MaxPeersPerRoom < 1 {
		return fmt.Errorf("MAX_PEERS_PER_ROOM must be at least 1")
	}
	if c.Limits.MaxGlobalRooms < 1 {
		return fmt.Errorf("MAX_GLOBAL_ROOMS must be at least 1")
	}
	if c.RateLimit.Burst < 1 || c.RateLimit.Every <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST and RATE_LIMIT_EVERY must be positive")
	}
	if c.RateLimit.JoinBurst < 1 || c.RateLimit.JoinEvery <= 0 {
		return fmt.Errorf("RATE_LIMIT_JOIN_BURST and RATE_LIMIT_JOIN_EVERY must be positive")
	}
	if c.IsProduction() && (c.JWTSecret == "change-me-in-production" || c.AdminToken == "changeme") {
		return fmt.Errorf("JWT_SECRET and ADMIN_TOKEN must be set in production")
	}
	return nil
}

// Addr returns host:port for the Redis client
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
