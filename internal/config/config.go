package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

type Config struct {
	// Database
	DBPath string

	// Key management
	KeyringService string

	// Backup
	BackupDir string
	Platform  string

	// AMQP hand-off (optional; empty URL disables publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	OutboxDir string
}

func Load() *Config {
	return &Config{
		DBPath:         getEnv("MONETA_DB_PATH", "./data/moneta.db"),
		KeyringService: getEnv("MONETA_KEYRING_SERVICE", "moneta"),
		BackupDir:      getEnv("MONETA_BACKUP_DIR", "./data/backups"),
		Platform:       getEnv("MONETA_PLATFORM", runtime.GOOS),
		AMQPURL:        getEnv("MONETA_AMQP_URL", ""),
		AMQPExchange:   getEnv("MONETA_AMQP_EXCHANGE", "moneta"),
		AMQPQueue:      getEnv("MONETA_AMQP_QUEUE", "backup_handoff"),
		OutboxDir:      getEnv("MONETA_OUTBOX_DIR", "./data/outbox"),
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errors []string

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	} else {
		dir := filepath.Dir(c.DBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0700); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.KeyringService == "" {
		errors = append(errors, "keyring service name cannot be empty")
	}

	if c.BackupDir == "" {
		errors = append(errors, "backup directory cannot be empty")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
