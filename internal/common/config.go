package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StorePostgres  = "postgres"
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
)

// AI providers.
const (
	AIProviderOpenAI = "openai"
	AIProviderVertex = "vertex"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Processing ProcessingConfig
	Extract    ExtractConfig
	LLM        LLMConfig
	Ingest     IngestConfig
	LogLevel   slog.Level
}

// DatabaseConfig holds document store configuration
type DatabaseConfig struct {
	Backend             string
	DSN                 string
	SQLitePath          string
	FirestoreProject    string
	FirestoreCollection string
	MaxConns            int32
	MinConns            int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	DialTimeout         time.Duration
	StatementTimeout    time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
	HTTPAddr string
}

// ProcessingConfig bounds the scheduler.
type ProcessingConfig struct {
	MaxConcurrency int
	QueueSize      int
	MaxRetries     int
	ExtractTimeout time.Duration
	AITimeout      time.Duration
	StuckTimeout   time.Duration
	SweepInterval  time.Duration
}

// ExtractConfig holds content extraction configuration
type ExtractConfig struct {
	Pdftotext  string
	Tesseract  string
	GCSEnabled bool
	TempDir    string
}

// IngestConfig holds the upload inbox configuration. An empty WatchDir
// disables the watcher.
type IngestConfig struct {
	WatchDir   string
	Debounce   time.Duration
	UploadedBy string
}

// LLMConfig holds AI processor configuration
type LLMConfig struct {
	Provider      string
	Model         string
	APIKey        string
	BaseURL       string
	Temperature   float32
	Timeout       time.Duration
	MaxInputChars int
	VertexProject string
	VertexRegion  string
	VertexModel   string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Backend:             strings.ToLower(getEnv("STORE_BACKEND", StorePostgres)),
			DSN:                 getEnv("DB_URL", ""),
			SQLitePath:          getEnv("SQLITE_PATH", "documents.db"),
			FirestoreProject:    getEnv("FIRESTORE_PROJECT", ""),
			FirestoreCollection: getEnv("FIRESTORE_COLLECTION", "documents"),
			MaxConns:            getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:            getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:     getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:     getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:         getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout:    getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
			HTTPAddr: getEnv("HTTP_ADDR", ":8081"),
		},
		Processing: ProcessingConfig{
			MaxConcurrency: getEnvAsInt("PROCESSING_MAX_CONCURRENCY", 3),
			QueueSize:      getEnvAsInt("PROCESSING_QUEUE_SIZE", 100),
			MaxRetries:     getEnvAsInt("PROCESSING_MAX_RETRIES", 3),
			ExtractTimeout: getEnvAsDuration("PROCESSING_EXTRACT_TIMEOUT", 2*time.Minute),
			AITimeout:      getEnvAsDuration("PROCESSING_AI_TIMEOUT", 2*time.Minute),
			StuckTimeout:   getEnvAsDuration("PROCESSING_STUCK_TIMEOUT", 30*time.Minute),
			SweepInterval:  getEnvAsDuration("PROCESSING_SWEEP_INTERVAL", 5*time.Minute),
		},
		Extract: ExtractConfig{
			Pdftotext:  getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Tesseract:  getEnv("TESSERACT_BIN", "tesseract"),
			GCSEnabled: getEnvAsBool("GCS_ENABLED", false),
			TempDir:    getEnv("EXTRACT_TEMP_DIR", os.TempDir()),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(getEnv("AI_PROVIDER", AIProviderOpenAI)),
			Model:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:        getEnv("OPENAI_API_KEY", ""),
			BaseURL:       getEnv("OPENAI_BASE_URL", ""),
			Temperature:   getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:       getEnvAsDuration("OPENAI_TIMEOUT", 90*time.Second),
			MaxInputChars: getEnvAsInt("AI_MAX_INPUT_CHARS", 60000),
			VertexProject: getEnv("VERTEX_PROJECT", ""),
			VertexRegion:  getEnv("VERTEX_REGION", "us-central1"),
			VertexModel:   getEnv("VERTEX_MODEL", "gemini-1.5-flash"),
		},
		Ingest: IngestConfig{
			WatchDir:   getEnv("INGEST_WATCH_DIR", ""),
			Debounce:   getEnvAsDuration("INGEST_DEBOUNCE", 2*time.Second),
			UploadedBy: getEnv("INGEST_UPLOADED_BY", "inbox"),
		},
		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case StorePostgres:
		if c.Database.DSN == "" {
			return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
		}
	case StoreSQLite:
		if c.Database.SQLitePath == "" {
			return NewAppError("CONFIG_ERROR", "SQLITE_PATH is required", ErrInvalidInput)
		}
	case StoreFirestore:
		if c.Database.FirestoreProject == "" {
			return NewAppError("CONFIG_ERROR", "FIRESTORE_PROJECT is required", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "unknown STORE_BACKEND "+c.Database.Backend, ErrInvalidInput)
	}

	switch c.LLM.Provider {
	case AIProviderOpenAI:
		if c.LLM.APIKey == "" {
			return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
		}
	case AIProviderVertex:
		if c.LLM.VertexProject == "" {
			return NewAppError("CONFIG_ERROR", "VERTEX_PROJECT is required", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "unknown AI_PROVIDER "+c.LLM.Provider, ErrInvalidInput)
	}

	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Processing.MaxConcurrency <= 0 {
		return NewAppError("CONFIG_ERROR", "PROCESSING_MAX_CONCURRENCY must be positive", ErrInvalidInput)
	}
	if c.Processing.QueueSize <= 0 {
		return NewAppError("CONFIG_ERROR", "PROCESSING_QUEUE_SIZE must be positive", ErrInvalidInput)
	}
	if c.Processing.MaxRetries <= 0 {
		return NewAppError("CONFIG_ERROR", "PROCESSING_MAX_RETRIES must be positive", ErrInvalidInput)
	}
	if c.Processing.StuckTimeout <= 0 {
		return NewAppError("CONFIG_ERROR", "PROCESSING_STUCK_TIMEOUT must be positive", ErrInvalidInput)
	}
	return nil
}
