package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is the commented configuration template written by
// InitConfig. It mirrors GetDefaultConfig so that the generated file
// loads back to the same values.
const sampleConfig = `# VoiceGate Configuration File
#
# This file configures the VoiceGate call ingest server.
# Values can be overridden with VOICEGATE_* environment variables,
# e.g. VOICEGATE_LOGGING_LEVEL=DEBUG or VOICEGATE_SERVER_PORT=9080.

# API server settings.
# The HTTP API receives audio packets from the PBX, serves operator
# queries, and streams call events over WebSocket.
server:
  host: "0.0.0.0"
  port: 8080
  # Maximum time to wait for in-flight requests during shutdown.
  shutdown_timeout: 30s

# Call store backend.
# Backends: memory (volatile, for testing), sqlite (single node),
# postgres (shared), badger (embedded key-value).
store:
  backend: sqlite
  # Connection is a file path for sqlite, a directory for badger,
  # a DSN or URL for postgres. Ignored for memory.
  # Default: $XDG_CONFIG_HOME/voicegate/voicegate.db
  # connection: /var/lib/voicegate/voicegate.db

# Logging configuration.
logging:
  # Levels: DEBUG, INFO, WARN, ERROR
  level: "INFO"
  # Formats: text, json
  format: "text"
  # Output: stdout, stderr, or a file path
  output: "stdout"

# Prometheus metrics server (disabled by default).
metrics:
  enabled: false
  port: 9090

# OpenTelemetry distributed tracing (disabled by default).
telemetry:
  enabled: false
  endpoint: "localhost:4317"
  insecure: true
  sample_rate: 1.0
  # Pyroscope continuous profiling (disabled by default).
  profiling:
    enabled: false
    endpoint: "http://localhost:4040"

# Archive export to S3-compatible object storage (disabled by default).
# When enabled, every archived call is written as a JSON object to the
# configured bucket in addition to the store.
archive:
  enabled: false
  # bucket: voicegate-archive
  # region: us-east-1
  # endpoint: http://localhost:9000
  # key_prefix: calls/
  # access_key_id: ""
  # secret_access_key: ""
  # force_path_style: true
`

// InitConfig creates a sample configuration file at the default location.
//
// The default location is $XDG_CONFIG_HOME/voicegate/config.yaml
// (or ~/.config/voicegate/config.yaml).
//
// If a config file already exists and force is false, an error is returned.
// Returns the path of the created file.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a sample configuration file at the given path.
//
// Parent directories are created as needed. If the file already exists and
// force is false, an error is returned.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Restricted permissions: the archive section may hold credentials.
	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
