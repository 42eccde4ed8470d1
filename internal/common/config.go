package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Version    string
	Database   DatabaseConfig
	Server     ServerConfig
	Pipeline   PipelineConfig
	OCR        OCRConfig
	Classifier ClassifierConfig
}

// DatabaseConfig holds run-ledger database configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// PipelineConfig holds processor and batch queue configuration
type PipelineConfig struct {
	OutputDir string
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// OCRConfig holds the tesseract fallback configuration
type OCRConfig struct {
	Enabled     bool
	Tesseract   string
	TessdataDir string
}

// ClassifierConfig holds TEXT/OCR classification thresholds
type ClassifierConfig struct {
	MaxPages         int
	MinCharsPerPage  int
	MinTextPageRatio float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Version: getEnv("DOCROUTER_VERSION", Version),
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", "sqlite://./docrouter.db"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Pipeline: PipelineConfig{
			OutputDir: getEnv("OUTPUT_DIR", "./output"),
			Workers:   getEnvAsInt("PIPE_WORKERS", 4),
			QueueSize: getEnvAsInt("PIPE_QUEUE_SIZE", 256),
			Timeout:   getEnvAsDuration("PIPE_TIMEOUT", 3*time.Minute),
		},
		OCR: OCRConfig{
			Enabled:     getEnvAsBool("OCR_FALLBACK", false),
			Tesseract:   getEnv("TESSERACT_BIN", "tesseract"),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
		},
		Classifier: ClassifierConfig{
			MaxPages:         getEnvAsInt("CLASSIFY_MAX_PAGES", 10),
			MinCharsPerPage:  getEnvAsInt("CLASSIFY_MIN_CHARS", 50),
			MinTextPageRatio: getEnvAsFloat64("CLASSIFY_MIN_TEXT_RATIO", 0.5),
		},
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

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return NewAppError("CONFIG_ERROR", "DOCROUTER_VERSION must not be blank", ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "PIPE_WORKERS must be positive", ErrInvalidInput)
	}
	if c.Classifier.MinTextPageRatio < 0 || c.Classifier.MinTextPageRatio > 1 {
		return NewAppError("CONFIG_ERROR", "CLASSIFY_MIN_TEXT_RATIO must be within [0,1]", ErrInvalidInput)
	}
	return nil
}
