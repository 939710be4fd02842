package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	S3         S3Config
	Log        LogConfig
	CORS       CORSConfig
	Inference  InferenceConfig
	Sweep      SweepConfig
	Extraction ExtractionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// InferenceConfig holds LLM inference service settings.
type InferenceConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`
}

// SweepConfig holds batch job sweep worker settings.
type SweepConfig struct {
	IntervalSecs int `mapstructure:"interval_secs"`
}

// ExtractionConfig holds local extraction settings.
type ExtractionConfig struct {
	Concurrency      int `mapstructure:"concurrency"`
	PollTimeoutSecs  int `mapstructure:"poll_timeout_secs"`
	PollIntervalSecs int `mapstructure:"poll_interval_secs"`
}

// Load reads configuration from environment variables with the DOCSIEVE_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCSIEVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "docsieve")
	v.SetDefault("db.password", "docsieve_secret")
	v.SetDefault("db.name", "docsieve_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "docsieve-documents")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.max_file_size_mb", 50)
	v.SetDefault("s3.presign_expiry", 3600)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Inference defaults
	v.SetDefault("inference.api_key", "")
	v.SetDefault("inference.model", "gemini-2.0-flash")
	v.SetDefault("inference.timeout_secs", 120)

	// Sweep defaults
	v.SetDefault("sweep.interval_secs", 60)

	// Extraction defaults
	v.SetDefault("extraction.concurrency", 4)
	v.SetDefault("extraction.poll_timeout_secs", 86400)
	v.SetDefault("extraction.poll_interval_secs", 60)

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                    "DOCSIEVE_SERVER_PORT",
		"server.read_timeout":            "DOCSIEVE_SERVER_READ_TIMEOUT",
		"server.write_timeout":           "DOCSIEVE_SERVER_WRITE_TIMEOUT",
		"server.environment":             "DOCSIEVE_SERVER_ENVIRONMENT",
		"db.host":                        "DOCSIEVE_DB_HOST",
		"db.port":                        "DOCSIEVE_DB_PORT",
		"db.user":                        "DOCSIEVE_DB_USER",
		"db.password":                    "DOCSIEVE_DB_PASSWORD",
		"db.name":                        "DOCSIEVE_DB_NAME",
		"db.sslmode":                     "DOCSIEVE_DB_SSLMODE",
		"db.max_open":                    "DOCSIEVE_DB_MAX_OPEN",
		"db.max_idle":                    "DOCSIEVE_DB_MAX_IDLE",
		"s3.region":                      "DOCSIEVE_S3_REGION",
		"s3.bucket":                      "DOCSIEVE_S3_BUCKET",
		"s3.endpoint":                    "DOCSIEVE_S3_ENDPOINT",
		"s3.access_key":                  "DOCSIEVE_S3_ACCESS_KEY",
		"s3.secret_key":                  "DOCSIEVE_S3_SECRET_KEY",
		"s3.max_file_size_mb":            "DOCSIEVE_S3_MAX_FILE_SIZE_MB",
		"s3.presign_expiry":              "DOCSIEVE_S3_PRESIGN_EXPIRY",
		"log.level":                      "DOCSIEVE_LOG_LEVEL",
		"log.format":                     "DOCSIEVE_LOG_FORMAT",
		"cors.allowed_origins":           "DOCSIEVE_CORS_ALLOWED_ORIGINS",
		"inference.api_key":              "DOCSIEVE_INFERENCE_API_KEY",
		"inference.model":                "DOCSIEVE_INFERENCE_MODEL",
		"inference.timeout_secs":         "DOCSIEVE_INFERENCE_TIMEOUT_SECS",
		"sweep.interval_secs":            "DOCSIEVE_SWEEP_INTERVAL_SECS",
		"extraction.concurrency":         "DOCSIEVE_EXTRACTION_CONCURRENCY",
		"extraction.poll_timeout_secs":   "DOCSIEVE_EXTRACTION_POLL_TIMEOUT_SECS",
		"extraction.poll_interval_secs":  "DOCSIEVE_EXTRACTION_POLL_INTERVAL_SECS",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if DOCSIEVE_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("DOCSIEVE_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		MaxFileSizeMB: v.GetInt64("s3.max_file_size_mb"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	// Parse CORS allowed origins from comma-separated string
	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: corsOrigins,
	}

	cfg.Inference = InferenceConfig{
		APIKey:      v.GetString("inference.api_key"),
		Model:       v.GetString("inference.model"),
		TimeoutSecs: v.GetInt("inference.timeout_secs"),
	}
	cfg.Sweep = SweepConfig{
		IntervalSecs: v.GetInt("sweep.interval_secs"),
	}
	cfg.Extraction = ExtractionConfig{
		Concurrency:      v.GetInt("extraction.concurrency"),
		PollTimeoutSecs:  v.GetInt("extraction.poll_timeout_secs"),
		PollIntervalSecs: v.GetInt("extraction.poll_interval_secs"),
	}

	return cfg, nil
}
