// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/alreadydone/alreadydone-server/internal/llm"
	"github.com/alreadydone/alreadydone-server/internal/logger"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	App        AppConfig
	Logger     LoggerConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Generation GenerationConfig
	Voice      VoiceConfig
	Cache      CacheConfig
	Billing    BillingConfig
	Push       PushConfig
	Redis      RedisConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name        string
	Environment string
	DataPath    string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string
	Format string // json, pretty, or empty for the environment default
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port            string        // Server port (default: 8080)
	ReadTimeout     time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout    time.Duration // HTTP write timeout (default: 180s, generation is slow)
	IdleTimeout     time.Duration // HTTP idle timeout (default: 60s)
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// Per-client inbound limit. Zero RateLimitRPS disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// DatabaseConfig selects the story datastore.
type DatabaseConfig struct {
	Driver   string // sqlite or postgres
	Path     string // sqlite file (default: {data}/alreadydone.db)
	DSN      string // postgres connection string
	Migrate  bool   // apply postgres migrations at startup
	MaxConns int32
}

// GenerationConfig configures the text-generation provider.
type GenerationConfig struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// VoiceConfig configures ElevenLabs.
type VoiceConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// CacheConfig configures the synthesized audio cache.
type CacheConfig struct {
	Path     string // default: {data}/cache/tts
	TTL      time.Duration
	InMemory bool
}

// BillingConfig holds Stripe credentials and prices.
type BillingConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceAnnual   string
	PriceWeekly   string
	TrialDays     int64
}

// PushConfig configures reminder delivery.
type PushConfig struct {
	// CredentialsPath is a Firebase service account file. Empty logs
	// notifications instead of sending them.
	CredentialsPath  string
	RemindersEnabled bool
}

// RedisConfig configures the optional per-user generation lock.
type RedisConfig struct {
	URL           string
	StoryUserLock bool
	LockTTL       time.Duration
}

// flagValues holds raw flag input; empty means unset.
type flagValues struct {
	env, logLevel, logFormat, dataPath                 string
	port, readTimeout, writeTimeout, idleTimeout       string
	dbDriver, dbPath, dbDSN, dbMigrate                 string
	llmProvider, llmModel, llmBaseURL, llmTimeout      string
	cachePath, cacheInMemory                           string
	redisURL, storyUserLock                            string
	firebaseCredentials, remindersEnabled, envFilePath string
}

func registerFlags(fs *flag.FlagSet) *flagValues {
	f := &flagValues{}
	fs.StringVar(&f.env, "env", "", "Environment (development, staging, production)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format (json, pretty)")
	fs.StringVar(&f.dataPath, "data-path", "", "Base path for local data")

	fs.StringVar(&f.port, "port", "", "Server port (default: 8080)")
	fs.StringVar(&f.readTimeout, "read-timeout", "", "HTTP read timeout (default: 15s)")
	fs.StringVar(&f.writeTimeout, "write-timeout", "", "HTTP write timeout (default: 180s)")
	fs.StringVar(&f.idleTimeout, "idle-timeout", "", "HTTP idle timeout (default: 60s)")

	fs.StringVar(&f.dbDriver, "db-driver", "", "Database driver (sqlite, postgres)")
	fs.StringVar(&f.dbPath, "db-path", "", "SQLite database file")
	fs.StringVar(&f.dbDSN, "db-dsn", "", "Postgres connection string")
	fs.StringVar(&f.dbMigrate, "db-migrate", "", "Apply migrations at startup (default: true)")

	fs.StringVar(&f.llmProvider, "llm-provider", "", "Text generation provider (openai, ollama)")
	fs.StringVar(&f.llmModel, "llm-model", "", "Text generation model")
	fs.StringVar(&f.llmBaseURL, "llm-base-url", "", "Text generation endpoint")
	fs.StringVar(&f.llmTimeout, "llm-timeout", "", "Text generation timeout (default: 120s)")

	fs.StringVar(&f.cachePath, "tts-cache-path", "", "Directory for the speech cache")
	fs.StringVar(&f.cacheInMemory, "tts-cache-in-memory", "", "Keep the speech cache in memory")

	fs.StringVar(&f.redisURL, "redis-url", "", "Redis URL for the generation lock")
	fs.StringVar(&f.storyUserLock, "story-user-lock", "", "Serialize generation per user (default: false)")

	fs.StringVar(&f.firebaseCredentials, "firebase-credentials", "", "Firebase service account file")
	fs.StringVar(&f.remindersEnabled, "reminders", "", "Run the reminder sweep (default: true)")

	fs.StringVar(&f.envFilePath, "env-file", ".env", "Path to .env file")
	return f
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load is LoadConfig over explicit arguments.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("alreadydone", flag.ContinueOnError)
	f := registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// godotenv never overrides variables already in the environment.
	if err := godotenv.Load(f.envFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", f.envFilePath, err)
	}

	p := &parser{}
	cfg := &Config{
		App: AppConfig{
			Name:        getConfigValue("", "APP_NAME", "AlreadyDone API"),
			Environment: getConfigValue(f.env, "ENV", "development"),
			DataPath:    getConfigValue(f.dataPath, "DATA_PATH", ""),
		},
		Logger: LoggerConfig{
			Level:  getConfigValue(f.logLevel, "LOG_LEVEL", "info"),
			Format: getConfigValue(f.logFormat, "LOG_FORMAT", ""),
		},
		Server: ServerConfig{
			Port:            getConfigValue(f.port, "SERVER_PORT", "8080"),
			ReadTimeout:     p.duration(f.readTimeout, "SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:    p.duration(f.writeTimeout, "SERVER_WRITE_TIMEOUT", "180s"),
			IdleTimeout:     p.duration(f.idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: p.duration("", "SERVER_SHUTDOWN_TIMEOUT", "30s"),
			CORSOrigins:     splitList(getConfigValue("", "CORS_ORIGINS", "*")),
			RateLimitRPS:    p.float("", "RATE_LIMIT_RPS", 5),
			RateLimitBurst:  p.int("", "RATE_LIMIT_BURST", 10),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getConfigValue(f.dbDriver, "DATABASE_DRIVER", DriverSQLite)),
			Path:     getConfigValue(f.dbPath, "DATABASE_PATH", ""),
			DSN:      getConfigValue(f.dbDSN, "DATABASE_URL", ""),
			Migrate:  getBoolConfigValue(f.dbMigrate, "DATABASE_MIGRATE", true),
			MaxConns: int32(p.int("", "DATABASE_MAX_CONNS", 10)), //nolint:gosec // small positive pool size
		},
		Generation: GenerationConfig{
			Provider:  strings.ToLower(getConfigValue(f.llmProvider, "LLM_PROVIDER", llm.ProviderOpenAI)),
			APIKey:    getConfigValue("", "OPENAI_API_KEY", ""),
			BaseURL:   getConfigValue(f.llmBaseURL, "LLM_BASE_URL", ""),
			Model:     getConfigValue(f.llmModel, "LLM_MODEL", ""),
			Timeout:   p.duration(f.llmTimeout, "LLM_TIMEOUT", "120s"),
			MaxTokens: p.int("", "LLM_MAX_TOKENS", 1024),
		},
		Voice: VoiceConfig{
			APIKey:            getConfigValue("", "ELEVENLABS_API_KEY", ""),
			BaseURL:           getConfigValue("", "ELEVENLABS_BASE_URL", ""),
			Model:             getConfigValue("", "ELEVENLABS_MODEL", ""),
			Timeout:           p.duration("", "ELEVENLABS_TIMEOUT", "120s"),
			RequestsPerSecond: p.float("", "ELEVENLABS_RPS", 2),
			Burst:             p.int("", "ELEVENLABS_BURST", 4),
		},
		Cache: CacheConfig{
			Path:     getConfigValue(f.cachePath, "TTS_CACHE_PATH", ""),
			TTL:      p.duration("", "TTS_CACHE_TTL", "168h"),
			InMemory: getBoolConfigValue(f.cacheInMemory, "TTS_CACHE_IN_MEMORY", false),
		},
		Billing: BillingConfig{
			SecretKey:     getConfigValue("", "STRIPE_SECRET_KEY", ""),
			WebhookSecret: getConfigValue("", "STRIPE_WEBHOOK_SECRET", ""),
			PriceAnnual:   getConfigValue("", "STRIPE_PRICE_ANNUAL", ""),
			PriceWeekly:   getConfigValue("", "STRIPE_PRICE_WEEKLY", ""),
			TrialDays:     int64(p.int("", "STRIPE_TRIAL_DAYS", 0)),
		},
		Push: PushConfig{
			CredentialsPath:  getConfigValue(f.firebaseCredentials, "FIREBASE_CREDENTIALS", ""),
			RemindersEnabled: getBoolConfigValue(f.remindersEnabled, "REMINDERS_ENABLED", true),
		},
		Redis: RedisConfig{
			URL:           getConfigValue(f.redisURL, "REDIS_URL", ""),
			StoryUserLock: getBoolConfigValue(f.storyUserLock, "STORY_USER_LOCK", false),
			LockTTL:       p.duration("", "STORY_USER_LOCK_TTL", "3m"),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	// Ollama runs locally and needs no key.
	if cfg.Generation.Provider == llm.ProviderOllama && cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "http://localhost:11434"
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	if !logger.ValidLevel(c.Logger.Level) {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}
	switch c.Logger.Format {
	case "", "json", "pretty":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or pretty)", c.Logger.Format)
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("sqlite database path cannot be empty after expansion")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be sqlite or postgres)", c.Database.Driver)
	}

	switch c.Generation.Provider {
	case llm.ProviderOpenAI, llm.ProviderOllama:
	default:
		return fmt.Errorf("invalid llm provider: %s (must be openai or ollama)", c.Generation.Provider)
	}
	if c.Generation.Timeout <= 0 {
		return errors.New("LLM_TIMEOUT must be positive")
	}

	if c.Redis.StoryUserLock && c.Redis.URL == "" {
		return errors.New("STORY_USER_LOCK requires REDIS_URL")
	}

	if c.Billing.TrialDays < 0 {
		return errors.New("STRIPE_TRIAL_DAYS cannot be negative")
	}

	return nil
}

// LLM returns the provider settings for llm.New.
func (c *Config) LLM() llm.Config {
	return llm.Config{
		Provider: c.Generation.Provider,
		APIKey:   c.Generation.APIKey,
		BaseURL:  c.Generation.BaseURL,
		Model:    c.Generation.Model,
		Timeout:  c.Generation.Timeout,
	}
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.App.DataPath, err = expandPath(c.App.DataPath, filepath.Join(homeDir, ".alreadydone")); err != nil {
		return err
	}
	if c.Database.Path, err = expandPath(c.Database.Path, filepath.Join(c.App.DataPath, "alreadydone.db")); err != nil {
		return err
	}
	if c.Cache.Path, err = expandPath(c.Cache.Path, filepath.Join(c.App.DataPath, "cache", "tts")); err != nil {
		return err
	}
	if c.Push.CredentialsPath != "" {
		if c.Push.CredentialsPath, err = expandPath(c.Push.CredentialsPath, ""); err != nil {
			return err
		}
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// parser reads typed values and keeps the first parse error.
type parser struct {
	err error
}

func (p *parser) fail(envKey, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", envKey, value, err)
	}
}

func (p *parser) duration(flagValue, envKey, defaultValue string) time.Duration {
	s := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(s)
	if err != nil {
		p.fail(envKey, s, err)
	}
	return d
}

func (p *parser) int(flagValue, envKey string, defaultValue int) int {
	s := getConfigValue(flagValue, envKey, "")
	if s == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(envKey, s, err)
	}
	return n
}

func (p *parser) float(flagValue, envKey string, defaultValue float64) float64 {
	s := getConfigValue(flagValue, envKey, "")
	if s == "" {
		return defaultValue
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(envKey, s, err)
	}
	return n
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
