package config

import (
	"os"
	"strconv"
)

type Config struct {
	DB     DBConfig
	MinIO  MinIOConfig
	JWT    JWTConfig
	Server ServerConfig
	Chat   ChatConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port           string
	AllowedOrigins string
}

type ChatConfig struct {
	// HistoryLimit bounds every room snapshot to the most recent N
	// messages; older history is not retrievable.
	HistoryLimit int
	// MigrationBatchSize bounds how many user records a role rename
	// updates per transaction.
	MigrationBatchSize int
	MaxAttachmentBytes int64
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "rolechat"),
			Password: getEnv("DB_PASSWORD", "rolechat_secret"),
			Name:     getEnv("DB_NAME", "rolechat"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:       getEnv("MINIO_ENDPOINT", "localhost:9000"),
			PublicEndpoint: getEnv("MINIO_PUBLIC_ENDPOINT", getEnv("MINIO_ENDPOINT", "localhost:9000")),
			AccessKey:      getEnv("MINIO_ACCESS_KEY", "rolechat"),
			SecretKey:      getEnv("MINIO_SECRET_KEY", "rolechat_secret"),
			Bucket:         getEnv("MINIO_BUCKET", "rolechat-attachments"),
			UseSSL:         getEnvAsBool("MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3001,http://127.0.0.1:3001"),
		},
		Chat: ChatConfig{
			HistoryLimit:       getEnvAsInt("CHAT_HISTORY_LIMIT", 100),
			MigrationBatchSize: getEnvAsInt("ROLE_MIGRATION_BATCH_SIZE", 450),
			MaxAttachmentBytes: int64(getEnvAsInt("CHAT_MAX_ATTACHMENT_BYTES", 25*1024*1024)),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
