package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host      string
	Port      string
	APIPrefix string

	LibvirtSSHHost       string
	LibvirtSSHPort       string
	LibvirtSSHUser       string
	LibvirtSSHKeyPath    string
	LibvirtSSHKnownHosts string

	VirtioDiskPrefix string
	MaxVirtioDevices int
	StoragePool      string
	QCOW2DefaultSize string

	DiskAttachConfirmRetries int
	DiskAttachConfirmDelay   time.Duration
	DiskDetachTimeout        time.Duration
	DiskDetachPollInterval   time.Duration

	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables
// Automatically loads .env file if present
func Load() *Config {
	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Host:      getEnv("HOST", "0.0.0.0"),
		Port:      getEnv("PORT", "8080"),
		APIPrefix: getEnv("API_PREFIX", "/api/v1"),

		LibvirtSSHHost:       getEnv("LIBVIRT_SSH_HOST", ""),
		LibvirtSSHPort:       getEnv("LIBVIRT_SSH_PORT", "22"),
		LibvirtSSHUser:       getEnv("LIBVIRT_SSH_USER", "root"),
		LibvirtSSHKeyPath:    getEnv("LIBVIRT_SSH_KEY_PATH", ""),
		LibvirtSSHKnownHosts: getEnv("LIBVIRT_SSH_KNOWN_HOSTS", ""),

		VirtioDiskPrefix: getEnv("VIRTIO_DISK_PREFIX", "vd"),
		MaxVirtioDevices: getEnvInt("MAX_VIRTIO_DEVICES", 702),
		StoragePool:      getEnv("STORAGE_POOL", "default"),
		QCOW2DefaultSize: getEnv("QCOW2_DEFAULT_SIZE", "1GB"),

		DiskAttachConfirmRetries: getEnvInt("DISK_ATTACH_CONFIRM_RETRIES", 5),
		DiskAttachConfirmDelay:   getEnvDuration("DISK_ATTACH_CONFIRM_DELAY", 500*time.Millisecond),
		DiskDetachTimeout:        getEnvDuration("DISK_DETACH_TIMEOUT", 60*time.Second),
		DiskDetachPollInterval:   getEnvDuration("DISK_DETACH_POLL_INTERVAL", 500*time.Millisecond),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
