package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Engine struct {
	Markets      []string // BASE_QUOTE symbols
	BaseCurrency string   // asset credited by ON_RAMP
}

type Snapshot struct {
	// Restore enables loading the last snapshot at startup. Periodic saves
	// run regardless.
	Restore   bool
	Backend   string // "file" or "pebble"
	Path      string // file backend
	PebbleDir string // pebble backend
	Interval  time.Duration
}

type Redis struct {
	Addr         string
	Password     string
	DB           int
	CommandQueue string // list the API pushes envelopes onto
	EventQueue   string // list the persistence worker drains
}

type Kafka struct {
	// Brokers is empty when the Kafka event sink is disabled
	Brokers []string
	Topic   string
}

type API struct {
	Addr string
}

type Feeder struct {
	Enabled  bool
	Interval time.Duration
}

type Log struct {
	Level string
	File  string // also write to this file when set
}

type Config struct {
	Engine   Engine
	Snapshot Snapshot
	Redis    Redis
	Kafka    Kafka
	API      API
	Feeder   Feeder
	Log      Log
}

func Default() Config {
	return Config{
		Engine: Engine{
			Markets:      []string{"TATA_INR"},
			BaseCurrency: "INR",
		},
		Snapshot: Snapshot{
			Backend:   "file",
			Path:      "./snapshot.json",
			PebbleDir: "./data/snapshot",
			Interval:  3 * time.Second,
		},
		Redis: Redis{
			Addr:         "localhost:6379",
			CommandQueue: "orders",
			EventQueue:   "db_processor",
		},
		Kafka: Kafka{
			Topic: "engine-events",
		},
		API: API{
			Addr: ":8081",
		},
		Feeder: Feeder{
			Interval: 100 * time.Millisecond,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if markets := splitList(os.Getenv("MARKETS")); len(markets) > 0 {
		cfg.Engine.Markets = markets
	}
	cfg.Engine.BaseCurrency = getEnv("BASE_CURRENCY", cfg.Engine.BaseCurrency)

	cfg.Snapshot.Restore = getBool("WITH_SNAPSHOT", cfg.Snapshot.Restore)
	cfg.Snapshot.Backend = getEnv("SNAPSHOT_BACKEND", cfg.Snapshot.Backend)
	cfg.Snapshot.Path = getEnv("SNAPSHOT_PATH", cfg.Snapshot.Path)
	cfg.Snapshot.PebbleDir = getEnv("SNAPSHOT_PEBBLE_DIR", cfg.Snapshot.PebbleDir)
	cfg.Snapshot.Interval = getMillis("SNAPSHOT_INTERVAL_MS", cfg.Snapshot.Interval)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Redis.DB = n
		}
	}
	cfg.Redis.CommandQueue = getEnv("COMMAND_QUEUE", cfg.Redis.CommandQueue)
	cfg.Redis.EventQueue = getEnv("EVENT_QUEUE", cfg.Redis.EventQueue)

	// Example: "kafka-1:9092,kafka-2:9092"
	if brokers := splitList(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)

	cfg.Feeder.Enabled = getBool("ENABLE_FEEDER", cfg.Feeder.Enabled)
	cfg.Feeder.Interval = getMillis("FEEDER_INTERVAL_MS", cfg.Feeder.Interval)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true"
	}
	return defaultValue
}

func getMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
