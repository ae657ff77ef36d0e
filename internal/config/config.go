// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables; pipeline
// settings may also come from a YAML rules file (see PipelineConfig.RulesFile).
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Pipeline PipelineConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// MaxBodyBytes caps JSON request bodies (default: 10MB)
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"10485760"`
}

// DatabaseConfig holds database connection settings.
// The database only backs the run archive; without a URL the archive is
// kept in memory.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (optional)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// PipelineConfig holds validation run settings.
type PipelineConfig struct {
	// FixWindow is how long open fix requests wait before auto-skip (default: 30s)
	FixWindow time.Duration `env:"FIX_WINDOW" default:"30s" yaml:"fix_window"`

	// FixBatchSize is how many violating rows are presented at once (default: 5)
	FixBatchSize int `env:"FIX_BATCH_SIZE" default:"5" yaml:"fix_batch_size"`

	// MaxRuns is the number of live runs allowed at once (default: 20)
	MaxRuns int `env:"MAX_RUNS" default:"20"`

	// MaxWait is how long run creation waits for a free slot (default: 5s)
	MaxWait time.Duration `env:"RUN_MAX_WAIT" default:"5s"`

	// SweepInterval is how often fix windows are checked for expiry (default: 1s)
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" default:"1s"`

	// Retention is how long a finished run stays readable before the sweeper
	// evicts it; it remains in the archive (default: 1h)
	Retention time.Duration `env:"RUN_RETENTION" default:"1h"`

	// ArtifactFormat is xlsx or csv (default: xlsx)
	ArtifactFormat string `env:"ARTIFACT_FORMAT" default:"xlsx" yaml:"artifact_format"`

	// ApprovalDept is the department whose large expenses need approval (default: Finance)
	ApprovalDept string `env:"APPROVAL_DEPT" default:"Finance" yaml:"approval_dept"`

	// ApprovalThreshold is the amount above which approval is required (default: 50000)
	ApprovalThreshold float64 `env:"APPROVAL_THRESHOLD" default:"50000" yaml:"approval_threshold"`

	// RulesFile is an optional YAML file overlaying pipeline settings and
	// supplying the cost-center map. Environment variables win over the file.
	RulesFile string `env:"PIPELINE_RULES_FILE"`

	// CostCenters maps departments to cost-center codes. Only set from RulesFile.
	CostCenters map[string]string
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// CreateLimit is requests per minute for run creation (default: 30)
	CreateLimit int `env:"RATE_LIMIT_CREATE" default:"30"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// AllowedOrigins is a comma-separated CORS origin list; empty disables CORS
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`

	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
