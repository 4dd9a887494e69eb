package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "DDC_"

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string
	MaxFileSize int64

	// Folders
	ProjectRoot string
	DataRoomDir string
	ADEJSONDir  string
	ExportsDir  string
	LogsDir     string
	PathwayDir  string

	// Third-party keys (optional)
	LandingAIAPIKey string
	PathwayAPIKey   string

	// Extraction service
	ADEURL     string
	ADETimeout time.Duration

	// Document store backend: "file" (default) or "mongo"
	DocumentStore string
	MongoURI      string
	DBName        string

	// Redis enables distributed rate limiting and async ingestion
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// OTLP gRPC endpoint; tracing export is disabled when empty
	OTELEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	root := getEnv("PROJECT_ROOT", ".")

	cfg := &Config{
		Port:        getEnv("PORT", "8000"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
		MaxFileSize: getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB

		ProjectRoot: root,
		DataRoomDir: getEnv("DATA_ROOM_DIR", filepath.Join(root, "data_room")),
		ADEJSONDir:  getEnv("ADE_JSON_DIR", filepath.Join(root, "ade_json")),
		ExportsDir:  getEnv("EXPORTS_DIR", filepath.Join(root, "exports")),
		LogsDir:     getEnv("LOGS_DIR", filepath.Join(root, "logs")),
		PathwayDir:  getEnv("PATHWAY_DIR", filepath.Join(root, "pipeline", "pathway")),

		LandingAIAPIKey: getEnv("LANDINGAI_API_KEY", ""),
		PathwayAPIKey:   getEnv("PATHWAY_API_KEY", ""),

		ADEURL:     getEnv("ADE_URL", "https://api.landing.ai/ade/extract"),
		ADETimeout: time.Duration(getEnvInt("ADE_TIMEOUT", 60)) * time.Second,

		DocumentStore: strings.ToLower(getEnv("DOCUMENT_STORE", "file")),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:        getEnv("DB_NAME", "dd_copilot"),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),
	}

	switch cfg.DocumentStore {
	case "file", "mongo":
	default:
		return nil, fmt.Errorf("DDC_DOCUMENT_STORE must be \"file\" or \"mongo\", got %q", cfg.DocumentStore)
	}

	if cfg.ADETimeout <= 0 {
		return nil, fmt.Errorf("DDC_ADE_TIMEOUT must be positive")
	}

	return cfg, nil
}

// RuntimeDirectories lists the folders created at startup
type RuntimeDirectories struct {
	DataRoom string
	ADEJSON  string
	Exports  string
	Logs     string
	Pathway  string
}

// EnsureRuntimeDirectories creates every working folder the service writes to
func EnsureRuntimeDirectories(cfg *Config) (*RuntimeDirectories, error) {
	dirs := &RuntimeDirectories{
		DataRoom: cfg.DataRoomDir,
		ADEJSON:  cfg.ADEJSONDir,
		Exports:  cfg.ExportsDir,
		Logs:     cfg.LogsDir,
		Pathway:  cfg.PathwayDir,
	}
	for _, dir := range []string{dirs.DataRoom, dirs.ADEJSON, dirs.Exports, dirs.Logs, dirs.Pathway} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return dirs, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
