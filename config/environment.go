package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvFile returns the dotenv file matching the requested network, following
// the original deployment convention of a separate testnet credential file.
func EnvFile(testnet bool) string {
	if testnet {
		return ".env_testnet"
	}
	return ".env"
}

// applyEnvOverrides lets deployment environments override connection
// settings without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Sinks.Redis.Host = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Sinks.Redis.Port = port
		}
	}

	if cfg.Sinks.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Sinks.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Sinks.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Sinks.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Sinks.S3.Bucket = strings.TrimSpace(v)
		}
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Region == "" {
		cfg.Metrics.CloudWatch.Region = strings.TrimSpace(os.Getenv("AWS_REGION"))
	}
}
