package indexer

import (
	"os"
	"strconv"

	appcfg "giftpulse/config"
)

// Config holds all configuration for the index engine service.
type Config struct {
	RedisAddr     string
	RedisPassword string
	SQLitePath    string

	ConsumerGroup string
	ConsumerName  string

	SnapshotIntervalS int
	SnapshotKey       string
	HTTPAddr          string

	// Upstream catalogue, used for gift discovery and supply weights.
	UpstreamBaseURL string
	UpstreamSecret  string
	UpstreamRPS     float64
	UpstreamBurst   int

	Baskets []appcfg.Basket
}

// LoadConfig builds the service config from the shared app config plus
// service-specific env vars.
func LoadConfig(app *appcfg.Config) Config {
	snapshotInterval, _ := strconv.Atoi(getEnv("SNAPSHOT_INTERVAL_SEC", "300"))
	if snapshotInterval <= 0 {
		snapshotInterval = 300
	}

	return Config{
		RedisAddr:     app.RedisAddr,
		RedisPassword: app.RedisPassword,
		SQLitePath:    app.SQLitePath,

		ConsumerGroup: getEnv("CONSUMER_GROUP", "indexengine"),
		ConsumerName:  getEnv("CONSUMER_NAME", "worker-1"),

		SnapshotIntervalS: snapshotInterval,
		SnapshotKey:       getEnv("SNAPSHOT_KEY", "index:snapshot:engine"),
		HTTPAddr:          getEnv("INDEXENGINE_HTTP_ADDR", ":9095"),

		UpstreamBaseURL: app.UpstreamBaseURL,
		UpstreamSecret:  app.UpstreamSecret,
		UpstreamRPS:     app.UpstreamRPS,
		UpstreamBurst:   app.UpstreamBurst,

		Baskets: app.ParseBaskets(),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
