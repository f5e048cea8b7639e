package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/kdimtricp/ecosort/internal/database"
)

type Config struct {
	Port string

	BackendURL      string
	BackendTimeout  time.Duration
	EvaluateRetries uint64
	RetryBase       time.Duration

	PollInterval        time.Duration
	ConfidenceThreshold float64
	ResumeDelay         time.Duration
	BannerTTL           time.Duration

	Database       database.Config
	MigrationsPath string

	ImageCacheDir   string
	RedisAddr       string
	RedisPassword   string
	MetricsCacheTTL time.Duration
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment variables
// win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var err error
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		BackendURL:     getEnv("BACKEND_URL", "http://localhost:5050"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		ImageCacheDir:  getEnv("IMAGE_CACHE_DIR", "./image-cache"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
	}

	if cfg.BackendTimeout, err = getDuration("BACKEND_TIMEOUT", 0); err != nil {
		return nil, err
	}
	retries, err := getInt("EVALUATE_RETRIES", 0)
	if err != nil {
		return nil, err
	}
	if retries < 0 {
		return nil, fmt.Errorf("invalid EVALUATE_RETRIES: %d", retries)
	}
	cfg.EvaluateRetries = uint64(retries)
	if cfg.RetryBase, err = getDuration("EVALUATE_RETRY_BASE", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", 250*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.ConfidenceThreshold, err = getFloat("CONFIDENCE_THRESHOLD", 70); err != nil {
		return nil, err
	}
	if cfg.ResumeDelay, err = getDuration("RESUME_DELAY", 0); err != nil {
		return nil, err
	}
	if cfg.BannerTTL, err = getDuration("BANNER_TTL", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.MetricsCacheTTL, err = getDuration("METRICS_CACHE_TTL", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.Database, err = loadDatabase(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDatabase() (database.Config, error) {
	db := database.Config{Type: getEnv("DB_TYPE", "sqlite")}

	switch db.Type {
	case "postgres":
		port, err := getInt("DB_PORT", 5432)
		if err != nil {
			return db, err
		}
		db.Host = getEnv("DB_HOST", "localhost")
		db.Port = port
		db.User = getEnv("DB_USER", "ecosort")
		db.Password = getEnv("DB_PASSWORD", "ecosort_dev")
		db.Name = getEnv("DB_NAME", "ecosort")
	case "sqlite":
		db.SQLitePath = getEnv("DB_PATH", "./ecosort.db")
	default:
		return db, fmt.Errorf("unsupported DB_TYPE: %s", db.Type)
	}
	return db, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
