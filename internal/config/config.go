package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Wikid82/entitled/internal/envelope"
)

const minJWTSecretLen = 32

var (
	ErrMissingEncryptionKey = errors.New("ENTITLED_ENCRYPTION_KEY is required")
	ErrMissingJWTSecret     = errors.New("ENTITLED_JWT_SECRET is required")
	ErrWeakJWTSecret        = fmt.Errorf("ENTITLED_JWT_SECRET must be at least %d characters", minJWTSecretLen)
)

// Config captures runtime configuration sourced from environment variables.
// It is built once at startup and handed to every component that needs it.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	LogDir       string
	Debug        bool

	EncryptionKey []byte
	JWTSecret     string

	TokenTTL          time.Duration
	SessionDuration   time.Duration
	TOTPIssuer        string
	EnforceAccessKind bool

	CORSOrigins []string
	NotifyURLs  []string
}

// Load reads env vars (and an optional .env file) and validates the key material.
// A bad key is an error here so the process never starts serving with it.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:       getEnv("ENTITLED_ENV", "development"),
		HTTPPort:          getEnv("ENTITLED_HTTP_PORT", "8000"),
		DatabasePath:      getEnv("ENTITLED_DB_PATH", filepath.Join("data", "entitled.db")),
		LogDir:            getEnv("ENTITLED_LOG_DIR", filepath.Join("data", "logs")),
		Debug:             getBool("ENTITLED_DEBUG", false),
		JWTSecret:         os.Getenv("ENTITLED_JWT_SECRET"),
		TOTPIssuer:        getEnv("ENTITLED_TOTP_ISSUER", "ENTITLED Vault"),
		EnforceAccessKind: getBool("ENTITLED_ENFORCE_ACCESS_KIND", false),
		CORSOrigins:       getList("ENTITLED_CORS_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
		NotifyURLs:        getList("ENTITLED_NOTIFY_URLS", nil),
	}

	var err error
	if cfg.TokenTTL, err = getDuration("ENTITLED_TOKEN_TTL", 60*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SessionDuration, err = getDuration("ENTITLED_SESSION_DURATION", 3*time.Minute); err != nil {
		return Config{}, err
	}

	rawKey := os.Getenv("ENTITLED_ENCRYPTION_KEY")
	if rawKey == "" {
		return Config{}, ErrMissingEncryptionKey
	}
	if cfg.EncryptionKey, err = envelope.ParseKey(rawKey); err != nil {
		return Config{}, fmt.Errorf("ENTITLED_ENCRYPTION_KEY: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

// Validate checks invariants that must hold before any traffic is accepted.
func (c Config) Validate() error {
	if len(c.EncryptionKey) != envelope.KeySize {
		return fmt.Errorf("encryption key: %w", envelope.ErrInvalidKey)
	}
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return ErrWeakJWTSecret
	}
	if c.TokenTTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if c.SessionDuration <= 0 {
		return errors.New("privilege session duration must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs in a production environment.
func (c Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
