package config

import "github.com/cockroachdb/errors"

var (
	// ErrMissingServerInfo indicates that the server name or version is empty
	ErrMissingServerInfo = errors.New("server.name and server.version are required")

	// ErrMissingProtocolVersion indicates that no protocol version is configured
	ErrMissingProtocolVersion = errors.New("protocolVersion is required")

	// ErrInvalidTransport indicates an unsupported transport
	ErrInvalidTransport = errors.New("transport must be http or stdio")

	// ErrMissingListenAddr indicates the HTTP transport has no address to listen on
	ErrMissingListenAddr = errors.New("listenAddr is required for the http transport")

	// ErrInvalidMaxConcurrency indicates a non-positive concurrency bound
	ErrInvalidMaxConcurrency = errors.New("maxConcurrency must be at least 1")

	// ErrInvalidSessionTTL indicates a missing, malformed, or non-positive session TTL
	ErrInvalidSessionTTL = errors.New("sessionTtl must be a positive duration")

	// ErrInvalidRateLimit indicates a negative rate limit setting
	ErrInvalidRateLimit = errors.New("rateLimit values must not be negative")

	// ErrUnknownProvider indicates a provider name with no implementation
	ErrUnknownProvider = errors.New("unknown tool provider")

	// ErrInvalidLogLevel indicates an unrecognized log level
	ErrInvalidLogLevel = errors.New("logLevel must be one of trace, debug, info, warn, error")

	// ErrConfigFileNotFound indicates that the config file was not found
	ErrConfigFileNotFound = errors.New("configuration file not found")

	// ErrInvalidConfigFormat indicates that the config file could not be decoded
	ErrInvalidConfigFormat = errors.New("invalid configuration file format")

	// ErrUnsupportedConfigFormat indicates a config file extension with no decoder
	ErrUnsupportedConfigFormat = errors.New("unsupported configuration file extension")
)
