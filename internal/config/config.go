// Package config holds the coordinator's two configuration layers: Config
// (environment variables with defaults) and ClusterFile (viper-loaded
// YAML listing secondaries plus tunable operational constants).
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds the coordinator's top-level settings, loaded from
// environment variables with defaults.
type Config struct {
	HealthPort     int
	LogLevel       string
	ReleaseVersion string
	ClusterFile    string

	ArchiveRoot           string
	AzureArchiveEnabled   bool
	AzureConnectionString string
	AzureAccount          string
	AzureKey              string
	AzureContainer        string
	AzureSASExpiryHours   int
}

// Load creates a Config from environment variables, applying the documented
// defaults for anything left unset.
func Load() (*Config, error) {
	cfg := &Config{
		HealthPort:            getEnvOrDefaultInt("HEALTH_PORT", 8080),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
		ReleaseVersion:        getEnvOrDefault("RELEASE_VERSION", "dev"),
		ClusterFile:           getEnvOrDefault("CLUSTER_FILE", "./configs/cluster.yaml"),
		ArchiveRoot:           getEnvOrDefault("ARCHIVE_ROOT", "./episodes"),
		AzureArchiveEnabled:   os.Getenv("AZURE_ARCHIVE_ENABLED") == "true",
		AzureConnectionString: os.Getenv("AZURE_STORAGE_CONNECTION_STRING"),
		AzureAccount:          os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureKey:              os.Getenv("AZURE_STORAGE_KEY"),
		AzureContainer:        getEnvOrDefault("AZURE_STORAGE_CONTAINER", "cluster-episodes"),
		AzureSASExpiryHours:   getEnvOrDefaultInt("AZURE_SAS_EXPIRY_HOURS", 168),
	}

	if cfg.HealthPort < 1 || cfg.HealthPort > 65535 {
		return nil, fmt.Errorf("HEALTH_PORT must be a valid port, got %d", cfg.HealthPort)
	}

	return cfg, nil
}

// IsAzureArchiveEnabled reports whether episode reports should be uploaded
// to Azure Blob Storage instead of the local filesystem, satisfying
// internal/archive.Config.
func (c *Config) IsAzureArchiveEnabled() bool { return c.AzureArchiveEnabled }

// GetArchiveRoot returns the filesystem root for archived episode reports,
// satisfying internal/archive.Config.
func (c *Config) GetArchiveRoot() string { return c.ArchiveRoot }

// GetAzureConnectionString satisfies internal/archive.AzureArchiveConfig.
func (c *Config) GetAzureConnectionString() string { return c.AzureConnectionString }

// GetAzureAccount satisfies internal/archive.AzureArchiveConfig.
func (c *Config) GetAzureAccount() string { return c.AzureAccount }

// GetAzureKey satisfies internal/archive.AzureArchiveConfig.
func (c *Config) GetAzureKey() string { return c.AzureKey }

// GetAzureContainer satisfies internal/archive.AzureArchiveConfig.
func (c *Config) GetAzureContainer() string { return c.AzureContainer }

// GetAzureSASExpiry satisfies internal/archive.AzureArchiveConfig, returning
// the SAS token lifetime.
func (c *Config) GetAzureSASExpiry() time.Duration {
	return time.Duration(c.AzureSASExpiryHours) * time.Hour
}

// getEnvOrDefaultInt returns the environment variable value as int or a
// default if not set.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvOrDefault returns the environment variable value or a default if
// not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
