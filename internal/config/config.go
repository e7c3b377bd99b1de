// Package config holds server configuration read from the environment and the
// client configuration file persisted under the user's home directory.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Minio holds connection settings for the remote object-store provider.
type Minio struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Secure    bool
}

// Server is the full server-side configuration.
type Server struct {
	Host        string
	Port        string
	DataDir     string
	StorageRoot string
	Provider    string // "local" or "minio"
	Minio       Minio
	JWTSecret   string
	SyncWorkers int
	LogLevel    string
}

// Load reads the server configuration from NXSYNC_* environment variables.
func Load() Server {
	return Server{
		Host:        envOrDefault("NXSYNC_HOST", "0.0.0.0"),
		Port:        envOrDefault("NXSYNC_PORT", "8080"),
		DataDir:     envOrDefault("NXSYNC_DATA_DIR", "data"),
		StorageRoot: envOrDefault("NXSYNC_STORAGE_DIR", "storage_data"),
		Provider:    envOrDefault("NXSYNC_STORAGE_PROVIDER", "local"),
		Minio: Minio{
			Endpoint:  strings.TrimSpace(os.Getenv("NXSYNC_MINIO_ENDPOINT")),
			Bucket:    envOrDefault("NXSYNC_MINIO_BUCKET", "nxsync"),
			AccessKey: strings.TrimSpace(os.Getenv("NXSYNC_MINIO_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("NXSYNC_MINIO_SECRET_KEY")),
			Secure:    envOrDefault("NXSYNC_MINIO_SECURE", "true") == "true",
		},
		JWTSecret:   envOrDefault("NXSYNC_JWT_SECRET", "dev-secret-change-me"),
		SyncWorkers: intOrDefault("NXSYNC_SYNC_WORKERS", 4),
		LogLevel:    envOrDefault("NXSYNC_LOG_LEVEL", "info"),
	}
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func intOrDefault(key string, fallback int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && i > 0 {
		return i
	}
	return fallback
}
