package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from a file path and applies environment variable overrides.
// The file format is chosen by extension (.json, .yaml, .yml, .toml); keys the
// file omits keep their defaults.
// Validation is deferred to allow CLI flag overrides to be applied first
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to load config from file")
		}
	}

	applyEnvironmentOverrides(cfg)

	// Note: Validation is NOT performed here to allow CLI flags to override
	// Call cfg.Validate() after applying CLI overrides in the caller

	return cfg, nil
}

// LoadFromEnvironment creates a configuration using only environment variables
// This is useful for containerized deployments where files may not be available
func LoadFromEnvironment() (*Config, error) {
	cfg := DefaultConfig()
	applyEnvironmentOverrides(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(ErrConfigFileNotFound, path)
		}
		return errors.Wrap(err, "failed to read config file")
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		return errors.Wrapf(ErrUnsupportedConfigFormat, "%q", ext)
	}
	if err != nil {
		return errors.Wrapf(ErrInvalidConfigFormat, "%s: %v", path, err)
	}

	return nil
}

// applyEnvironmentOverrides applies configuration from environment variables
func applyEnvironmentOverrides(cfg *Config) {
	if transport := os.Getenv("MCP_TRANSPORT"); transport != "" {
		cfg.Transport = strings.ToLower(strings.TrimSpace(transport))
	}

	if addr := os.Getenv("MCP_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}

	if name := os.Getenv("MCP_SERVER_NAME"); name != "" {
		cfg.Server.Name = name
	}

	if version := os.Getenv("MCP_SERVER_VERSION"); version != "" {
		cfg.Server.Version = version
	}

	if protocol := os.Getenv("MCP_PROTOCOL_VERSION"); protocol != "" {
		cfg.ProtocolVersion = protocol
	}

	// Allowed origins (comma-separated list)
	if allowedOrigins := os.Getenv("MCP_ALLOWED_ORIGINS"); allowedOrigins != "" {
		cfg.AllowedOrigins = splitList(allowedOrigins)
	}

	if raw := os.Getenv("MCP_MAX_CONCURRENCY"); raw != "" {
		// zero fails validation
		cfg.MaxConcurrency = envInt("MCP_MAX_CONCURRENCY", raw, 0)
	}

	if raw := os.Getenv("MCP_RATE_LIMIT"); raw != "" {
		cfg.RateLimit.RequestsPerMinute = envInt("MCP_RATE_LIMIT", raw, -1)
	}

	if raw := os.Getenv("MCP_RATE_BURST"); raw != "" {
		cfg.RateLimit.Burst = envInt("MCP_RATE_BURST", raw, -1)
	}

	if ttl := os.Getenv("MCP_SESSION_TTL"); ttl != "" {
		cfg.SessionTTL = ttl
	}

	// Providers (comma-separated list)
	if providers := os.Getenv("MCP_PROVIDERS"); providers != "" {
		cfg.Providers = splitList(providers)
	}

	if debug := os.Getenv("MCP_DEBUG"); debug == "true" || debug == "1" {
		cfg.Debug = true
	}

	if logLevel := os.Getenv("MCP_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
}

// envInt parses an integer variable, substituting invalid for values that do not parse
func envInt(name, raw string, invalid int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Warn().Str("variable", name).Str("value", raw).Msg("Ignoring non-numeric environment value")
		return invalid
	}
	return n
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
