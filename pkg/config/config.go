package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	LLM       LLMConfig
	Redaction RedactionConfig
	Records   RecordsConfig
	Roster    RosterConfig
	Export    ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LLMConfig describes the external reasoning service used for note extraction.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// RedactionConfig points at the de-identification sidecar. When disabled the
// pipeline sends the raw note text to the extraction service unchanged.
type RedactionConfig struct {
	Enabled bool
	BaseURL string
	Timeout time.Duration
}

// RecordsConfig tunes behavior record retrieval and summary caching.
type RecordsConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	SummaryCacheTTL time.Duration
}

// RosterConfig tunes CSV roster imports.
type RosterConfig struct {
	SkipLines   int
	MaxRowCount int
}

// ExportConfig controls the on-disk export archive and its signed download
// tokens. An empty SignSecret falls back to the JWT secret.
type ExportConfig struct {
	Dir        string
	SignSecret string
	TokenTTL   time.Duration
	RetainFor  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.LLM = LLMConfig{
		BaseURL: v.GetString("LLM_BASE_URL"),
		APIKey:  v.GetString("LLM_API_KEY"),
		Model:   v.GetString("LLM_MODEL"),
		Timeout: parseDuration(v.GetString("LLM_TIMEOUT"), 30*time.Second),
	}

	cfg.Redaction = RedactionConfig{
		Enabled: v.GetBool("REDACTION_ENABLED"),
		BaseURL: v.GetString("REDACTION_SERVICE_URL"),
		Timeout: parseDuration(v.GetString("REDACTION_TIMEOUT"), 10*time.Second),
	}

	cfg.Records = RecordsConfig{
		DefaultPageSize: v.GetInt("RECORDS_DEFAULT_PAGE_SIZE"),
		MaxPageSize:     v.GetInt("RECORDS_MAX_PAGE_SIZE"),
		SummaryCacheTTL: parseDuration(v.GetString("RECORDS_SUMMARY_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Roster = RosterConfig{
		SkipLines:   v.GetInt("ROSTER_CSV_SKIP_LINES"),
		MaxRowCount: v.GetInt("ROSTER_CSV_MAX_ROWS"),
	}

	cfg.Export = ExportConfig{
		Dir:        v.GetString("EXPORT_DIR"),
		SignSecret: v.GetString("EXPORT_SIGN_SECRET"),
		TokenTTL:   parseDuration(v.GetString("EXPORT_TOKEN_TTL"), 24*time.Hour),
		RetainFor:  parseDuration(v.GetString("EXPORT_RETENTION"), 7*24*time.Hour),
	}
	if cfg.Export.SignSecret == "" {
		cfg.Export.SignSecret = cfg.JWT.Secret
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "pbj")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LLM_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("LLM_MODEL", "gpt-4o")

	v.SetDefault("REDACTION_ENABLED", false)
	v.SetDefault("REDACTION_SERVICE_URL", "http://localhost:8000")

	v.SetDefault("RECORDS_DEFAULT_PAGE_SIZE", 10)
	v.SetDefault("RECORDS_MAX_PAGE_SIZE", 100)

	v.SetDefault("ROSTER_CSV_SKIP_LINES", 6)
	v.SetDefault("ROSTER_CSV_MAX_ROWS", 5000)

	v.SetDefault("EXPORT_DIR", "./exports")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
