package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Upstream gifts analytics API
	UpstreamBaseURL string
	UpstreamSecret  string // injected as X-Internal-Secret on every request

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Collector
	PollInterval   time.Duration
	UpstreamRPS    float64
	UpstreamBurst  int
	FetchParallel  int

	// Index baskets (comma-separated "id=name:member1|member2", empty members = all gifts)
	IndexBaskets string

	// Telegram delivery for heatmap exports
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env file")
	}

	return &Config{
		UpstreamBaseURL: mustEnv("UPSTREAM_BASE_URL"),
		UpstreamSecret:  getEnv("UPSTREAM_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/giftpulse.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9091"),

		PollInterval:  getDuration("POLL_INTERVAL", 2*time.Minute),
		UpstreamRPS:   getFloat("UPSTREAM_RPS", 5),
		UpstreamBurst: getInt("UPSTREAM_BURST", 10),
		FetchParallel: getInt("FETCH_PARALLEL", 4),

		// Default: a single market-cap basket over all gifts
		IndexBaskets: getEnv("INDEX_BASKETS", "mcap=Market Cap:"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// Basket is one parsed index basket definition.
type Basket struct {
	ID      string
	Name    string
	Members []string // empty = all gifts
}

// ParseBaskets parses the IndexBaskets string into basket definitions.
// Format: "id=name:member1|member2,id2=name2:"; an empty member list
// means the basket spans every tracked gift.
func (c *Config) ParseBaskets() []Basket {
	var baskets []Basket
	for _, part := range strings.Split(c.IndexBaskets, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.SplitN(part, "=", 2)
		if len(eq) != 2 || eq[0] == "" {
			log.Printf("[config] skipping invalid basket spec: %q", part)
			continue
		}
		b := Basket{ID: eq[0]}
		nm := strings.SplitN(eq[1], ":", 2)
		b.Name = nm[0]
		if b.Name == "" {
			b.Name = b.ID
		}
		if len(nm) == 2 && nm[1] != "" {
			for _, m := range strings.Split(nm[1], "|") {
				if m = strings.TrimSpace(m); m != "" {
					b.Members = append(b.Members, m)
				}
			}
		}
		baskets = append(baskets, b)
	}
	return baskets
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
