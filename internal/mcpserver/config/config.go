package config

import (
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Transports the CLI can host the dispatcher on
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Known tool providers
const (
	ProviderGreeter = "greeter"
	ProviderClock   = "clock"
)

// Config holds all configuration for the MCP tool server
type Config struct {
	Server          ServerConfig `json:"server" yaml:"server" toml:"server"`
	ProtocolVersion string       `json:"protocolVersion" yaml:"protocolVersion" toml:"protocolVersion" validate:"required"`
	Transport       string       `json:"transport" yaml:"transport" toml:"transport" validate:"oneof=http stdio"`
	ListenAddr      string       `json:"listenAddr" yaml:"listenAddr" toml:"listenAddr" validate:"required_if=Transport http"`
	AllowedOrigins  []string     `json:"allowedOrigins" yaml:"allowedOrigins" toml:"allowedOrigins"`
	MaxConcurrency  int          `json:"maxConcurrency" yaml:"maxConcurrency" toml:"maxConcurrency" validate:"gte=1"`
	SessionTTL      string       `json:"sessionTtl" yaml:"sessionTtl" toml:"sessionTtl" validate:"required"`
	RateLimit       RateLimit    `json:"rateLimit" yaml:"rateLimit" toml:"rateLimit"`
	Providers       []string     `json:"providers" yaml:"providers" toml:"providers" validate:"dive,oneof=greeter clock"`
	Debug           bool         `json:"debug" yaml:"debug" toml:"debug"`
	LogLevel        string       `json:"logLevel" yaml:"logLevel" toml:"logLevel" validate:"omitempty,oneof=trace debug info warn error"`
}

// ServerConfig identifies the server to clients in the initialize result
type ServerConfig struct {
	Name    string `json:"name" yaml:"name" toml:"name" validate:"required"`
	Version string `json:"version" yaml:"version" toml:"version" validate:"required"`
}

// RateLimit bounds HTTP requests per client. Zero RequestsPerMinute disables it.
type RateLimit struct {
	RequestsPerMinute int `json:"requestsPerMinute" yaml:"requestsPerMinute" toml:"requestsPerMinute" validate:"gte=0"`
	Burst             int `json:"burst" yaml:"burst" toml:"burst" validate:"gte=0"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := configValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return errors.Wrap(err, "invalid configuration")
		}
		return fieldError(verrs[0])
	}

	ttl, err := c.SessionTTLDuration()
	if err != nil || ttl <= 0 {
		return errors.Wrapf(ErrInvalidSessionTTL, "sessionTtl=%q", c.SessionTTL)
	}

	return nil
}

// fieldError maps a validation failure onto the package's sentinel errors
func fieldError(fe validator.FieldError) error {
	switch {
	case strings.HasPrefix(fe.StructNamespace(), "Config.Server."):
		return errors.Wrapf(ErrMissingServerInfo, "server.%s", strings.ToLower(fe.StructField()))
	case fe.StructField() == "ProtocolVersion":
		return ErrMissingProtocolVersion
	case fe.StructField() == "Transport":
		return errors.Wrapf(ErrInvalidTransport, "transport=%q", fe.Value())
	case fe.StructField() == "ListenAddr":
		return ErrMissingListenAddr
	case fe.StructField() == "MaxConcurrency":
		return errors.Wrapf(ErrInvalidMaxConcurrency, "maxConcurrency=%v", fe.Value())
	case strings.HasPrefix(fe.StructNamespace(), "Config.RateLimit."):
		return errors.Wrapf(ErrInvalidRateLimit, "rateLimit.%s=%v", fe.StructField(), fe.Value())
	case fe.StructField() == "SessionTTL":
		return errors.Wrap(ErrInvalidSessionTTL, "sessionTtl is required")
	case strings.HasPrefix(fe.StructField(), "Providers"):
		return errors.Wrapf(ErrUnknownProvider, "%q", fe.Value())
	case fe.StructField() == "LogLevel":
		return errors.Wrapf(ErrInvalidLogLevel, "logLevel=%q", fe.Value())
	default:
		return errors.Newf("invalid configuration: %s failed %s", fe.Namespace(), fe.Tag())
	}
}

// SessionTTLDuration parses SessionTTL
func (c *Config) SessionTTLDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 0, errors.Wrap(err, "parse sessionTtl")
	}
	return d, nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "mcptools",
			Version: "0.1.0",
		},
		ProtocolVersion: "2024-11-05",
		Transport:       TransportHTTP,
		ListenAddr:      "localhost:8082",
		AllowedOrigins:  []string{},
		MaxConcurrency:  8,
		SessionTTL:      "24h",
		RateLimit: RateLimit{
			RequestsPerMinute: 600,
			Burst:             120,
		},
		Providers: []string{ProviderGreeter, ProviderClock},
		Debug:     false,
		LogLevel:  "info",
	}
}
