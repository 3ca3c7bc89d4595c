package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	ListenAddr string

	S3Endpoint    string
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	PublicBaseURL string

	RedisAddr     string
	RedisDB       int
	RedisPassword string

	GoogleProject  string
	GoogleLocation string
	GoogleAPIKey   string
	TextModel      string
	ImageModel     string

	KeepDays        int
	NamespacePrefix string
	SweepSchedule   string
	LockTTLSeconds  int

	AdminToken  string
	AllowOrigin string
}

// KeepFor is the retention threshold as a duration.
func (c Config) KeepFor() time.Duration {
	return time.Duration(c.KeepDays) * 24 * time.Hour
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:      getenv("ATELIER_LISTEN_ADDR", ":8080"),
		S3Endpoint:      getenv("ATELIER_S3_ENDPOINT", ""),
		S3Region:        getenv("ATELIER_S3_REGION", ""),
		S3Bucket:        getenv("ATELIER_S3_BUCKET", ""),
		S3AccessKey:     os.Getenv("ATELIER_S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("ATELIER_S3_SECRET_KEY"),
		PublicBaseURL:   getenv("ATELIER_PUBLIC_BASE_URL", ""),
		RedisAddr:       getenv("ATELIER_REDIS_ADDR", ""),
		RedisDB:         getenvInt("ATELIER_REDIS_DB", 0),
		RedisPassword:   os.Getenv("ATELIER_REDIS_PASSWORD"),
		GoogleProject:   getenv("ATELIER_GOOGLE_PROJECT", ""),
		GoogleLocation:  getenv("ATELIER_GOOGLE_LOCATION", "us-central1"),
		GoogleAPIKey:    os.Getenv("ATELIER_GOOGLE_API_KEY"),
		TextModel:       getenv("ATELIER_TEXT_MODEL", "gemini-2.0-flash"),
		ImageModel:      getenv("ATELIER_IMAGE_MODEL", "imagen-3.0-generate-002"),
		KeepDays:        getenvInt("ATELIER_KEEP_DAYS", 7),
		NamespacePrefix: getenv("ATELIER_NAMESPACE_PREFIX", "generated/"),
		SweepSchedule:   getenv("ATELIER_SWEEP_SCHEDULE", "0 3 * * *"),
		LockTTLSeconds:  getenvInt("ATELIER_LOCK_TTL_SECONDS", 600),
		AdminToken:      os.Getenv("ATELIER_ADMIN_TOKEN"),
		AllowOrigin:     getenv("ATELIER_ALLOW_ORIGIN", "*"),
	}

	if cfg.S3Endpoint == "" || cfg.S3Bucket == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		return cfg, errors.New("S3 endpoint/bucket/access/secret are required")
	}
	if cfg.GoogleAPIKey == "" && cfg.GoogleProject == "" {
		return cfg, errors.New("ATELIER_GOOGLE_PROJECT or ATELIER_GOOGLE_API_KEY is required")
	}
	if cfg.KeepDays <= 0 {
		return cfg, errors.New("ATELIER_KEEP_DAYS must be a positive number of days")
	}
	if cfg.NamespacePrefix == "" {
		return cfg, errors.New("ATELIER_NAMESPACE_PREFIX is required")
	}
	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		return cfg, fmt.Errorf("invalid ATELIER_SWEEP_SCHEDULE %q: %w", cfg.SweepSchedule, err)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
