// Package config loads service settings from the environment and the
// data-driven resolution tables from a YAML file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type RefreshCfg struct {
	Schedule     string
	KafkaEnabled bool
	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string
}

type Config struct {
	Addr     string
	LogLevel string

	RedisAddr string
	// StateDriver selects the shared store backing circuit breakers and
	// rate/cost counters: "redis" or "memory". Memory is single-instance
	// only.
	StateDriver string

	// IndexSource is a path or URL to the collection manifest.
	IndexSource string
	TablesPath  string

	Refresh RefreshCfg

	RasterDir      string
	RasterWorkers  int
	RasterQueue    int
	StoreOpTimeout time.Duration

	ResultCacheSize int
	ResultCacheTTL  time.Duration

	BatchMaxPoints   int
	BatchConcurrency int
}

func FromEnv() Config {
	return Config{
		Addr:     getenv("ADDR", ":8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
		StateDriver: strings.ToLower(getenv("STATE_DRIVER", "redis")),

		IndexSource: getenv("INDEX_SOURCE", "collections.json"),
		TablesPath:  getenv("TABLES_PATH", "resolution.yaml"),

		Refresh: RefreshCfg{
			Schedule:     getenv("INDEX_REFRESH_SCHEDULE", "@every 15m"),
			KafkaEnabled: getbool("INVALIDATION_ENABLED", false),
			KafkaBrokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			KafkaTopic:   getenv("KAFKA_TOPIC", "collection-updates"),
			KafkaGroupID: getenv("KAFKA_GROUP_ID", "elevation-resolver"),
		},

		RasterDir:      getenv("RASTER_DIR", "./data/dem"),
		RasterWorkers:  getint("RASTER_WORKERS", 0), // 0 -> GOMAXPROCS
		RasterQueue:    getint("RASTER_QUEUE", 64),
		StoreOpTimeout: getduration("STORE_OP_TIMEOUT", 250*time.Millisecond),

		ResultCacheSize: getint("RESULT_CACHE_SIZE", 4096),
		ResultCacheTTL:  getduration("RESULT_CACHE_TTL", time.Minute),

		BatchMaxPoints:   getint("BATCH_MAX_POINTS", 512),
		BatchConcurrency: getint("BATCH_CONCURRENCY", 16),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
