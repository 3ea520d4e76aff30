// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// VenueConfig identifies the venue deployment and the account whose credentials sign requests.
type VenueConfig struct {
	Name      string `yaml:"name"`
	Host      string `yaml:"host"`
	OrderPath string `yaml:"orderPath"`
	Scheme    string `yaml:"scheme"`
	// Account selects the <ACCOUNT>_API_KEY / <ACCOUNT>_API_SECRET environment variables.
	Account  string   `yaml:"account"`
	EnvFiles []string `yaml:"envFiles"`
}

// TransportConfig tunes the outbound HTTP client.
type TransportConfig struct {
	// Timeout of zero leaves requests unbounded.
	Timeout             time.Duration `yaml:"timeout"`
	RateLimit           float64       `yaml:"rateLimit"`
	Burst               int           `yaml:"burst"`
	MaxIdleConnsPerHost int           `yaml:"maxIdleConnsPerHost"`
}

// ReconcileConfig drives the background fill poller.
type ReconcileConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	MaxElapsed  time.Duration `yaml:"maxElapsed"`
	BatchLimit  int           `yaml:"batchLimit"`
}

// LoggingConfig selects the logrus level and formatter.
type LoggingConfig struct {
	Level  string    `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// ParsedLevel returns the logrus level, falling back to info.
func (c LoggingConfig) ParsedLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// APIServerConfig configures the broker's HTTP control surface.
type APIServerConfig struct {
	Addr string `yaml:"addr"`
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// ArchiveConfig controls uploads of reconciliation snapshots to S3. Without a static key pair
// credentials come from the standard AWS environment chain.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
}

// DatabaseConfig controls PostgreSQL connectivity and migration behaviour. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	RunMigrations     bool          `yaml:"runMigrations"`
}

// Enabled reports whether a Postgres DSN is configured.
func (c DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != ""
}

func (c *DatabaseConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.MaxConns <= 0 {
		c.MaxConns = 16
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
}

func (c DatabaseConfig) validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("maxConns must be >0")
	}
	if c.MinConns < 0 {
		return fmt.Errorf("minConns must be >=0")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be <= maxConns")
	}
	if c.MaxConnLifetime <= 0 {
		return fmt.Errorf("maxConnLifetime must be >0")
	}
	if c.MaxConnIdleTime <= 0 {
		return fmt.Errorf("maxConnIdleTime must be >0")
	}
	if c.HealthCheckPeriod <= 0 {
		return fmt.Errorf("healthCheckPeriod must be >0")
	}
	return nil
}

// AppConfig is the unified broker configuration sourced from YAML.
type AppConfig struct {
	Environment Environment     `yaml:"environment"`
	Venue       VenueConfig     `yaml:"venue"`
	Transport   TransportConfig `yaml:"transport"`
	Reconcile   ReconcileConfig `yaml:"reconcile"`
	Logging     LoggingConfig   `yaml:"logging"`
	APIServer   APIServerConfig `yaml:"apiServer"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Database    DatabaseConfig  `yaml:"database"`
	Archive     ArchiveConfig   `yaml:"archive"`
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(bytes)
}

// Parse decodes, normalises and validates YAML configuration bytes.
func Parse(data []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalise(); err != nil {
		return AppConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c *AppConfig) normalise() error {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}

	c.Venue.Name = normalizeVenueName(c.Venue.Name)
	if c.Venue.Name == "" {
		c.Venue.Name = "talos"
	}
	c.Venue.Host = strings.TrimSpace(c.Venue.Host)
	c.Venue.Scheme = strings.ToLower(strings.TrimSpace(c.Venue.Scheme))
	if c.Venue.Scheme == "" {
		c.Venue.Scheme = "https"
	}
	c.Venue.OrderPath = strings.TrimSpace(c.Venue.OrderPath)
	if c.Venue.OrderPath == "" {
		c.Venue.OrderPath = "/v1/orders"
	}
	if !strings.HasPrefix(c.Venue.OrderPath, "/") {
		c.Venue.OrderPath = "/" + c.Venue.OrderPath
	}
	c.Venue.Account = strings.TrimSpace(c.Venue.Account)
	if c.Venue.Account == "" {
		c.Venue.Account = c.Venue.Name
	}
	files := make([]string, 0, len(c.Venue.EnvFiles))
	for _, file := range c.Venue.EnvFiles {
		if trimmed := strings.TrimSpace(file); trimmed != "" {
			files = append(files, filepath.Clean(trimmed))
		}
	}
	if len(files) == 0 {
		files = append(files, ".env")
	}
	c.Venue.EnvFiles = files

	if c.Transport.RateLimit > 0 && c.Transport.Burst <= 0 {
		c.Transport.Burst = 1
	}

	if c.Reconcile.Interval <= 0 {
		c.Reconcile.Interval = 5 * time.Second
	}
	if c.Reconcile.Concurrency <= 0 {
		c.Reconcile.Concurrency = 8
	}
	if c.Reconcile.MaxElapsed <= 0 {
		c.Reconcile.MaxElapsed = 30 * time.Second
	}
	if c.Reconcile.BatchLimit <= 0 {
		c.Reconcile.BatchLimit = 500
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = LogFormat(strings.ToLower(strings.TrimSpace(string(c.Logging.Format))))
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
		if c.Environment == EnvProd {
			c.Logging.Format = LogFormatJSON
		}
	}

	c.APIServer.Addr = strings.TrimSpace(c.APIServer.Addr)
	if c.APIServer.Addr == "" {
		c.APIServer.Addr = ":8880"
	}
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "orderbroker"
	}

	c.Archive.Bucket = strings.TrimSpace(c.Archive.Bucket)
	c.Archive.Prefix = strings.Trim(strings.TrimSpace(c.Archive.Prefix), "/")
	c.Archive.Region = strings.TrimSpace(c.Archive.Region)
	c.Archive.Endpoint = strings.TrimSpace(c.Archive.Endpoint)
	c.Archive.AccessKey = strings.TrimSpace(c.Archive.AccessKey)
	c.Archive.SecretKey = strings.TrimSpace(c.Archive.SecretKey)

	c.Database.applyDefaults()

	return nil
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	if !c.Environment.Valid() {
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	if c.Venue.Name != "talos" {
		return fmt.Errorf("venue name %q not supported", c.Venue.Name)
	}
	if c.Venue.Host == "" {
		return fmt.Errorf("venue host required")
	}
	if strings.Contains(c.Venue.Host, "/") {
		return fmt.Errorf("venue host must not include a scheme or path")
	}
	if c.Venue.Scheme != "https" && c.Venue.Scheme != "http" {
		return fmt.Errorf("venue scheme must be http or https")
	}
	if c.Environment == EnvProd && c.Venue.Scheme != "https" {
		return fmt.Errorf("venue scheme must be https in prod")
	}

	if c.Transport.Timeout < 0 {
		return fmt.Errorf("transport timeout must be >= 0")
	}
	if c.Transport.RateLimit < 0 {
		return fmt.Errorf("transport rateLimit must be >= 0")
	}
	if c.Transport.MaxIdleConnsPerHost < 0 {
		return fmt.Errorf("transport maxIdleConnsPerHost must be >= 0")
	}

	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile interval must be > 0")
	}
	if c.Reconcile.Concurrency <= 0 {
		return fmt.Errorf("reconcile concurrency must be > 0")
	}
	if c.Reconcile.BatchLimit <= 0 {
		return fmt.Errorf("reconcile batchLimit must be > 0")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging level: %w", err)
	}
	if !c.Logging.Format.Valid() {
		return fmt.Errorf("logging format must be text or json")
	}

	if strings.TrimSpace(c.APIServer.Addr) == "" {
		return fmt.Errorf("apiServer addr required")
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		return fmt.Errorf("telemetry serviceName required")
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive bucket required when enabled")
		}
		if c.Archive.Region == "" {
			return fmt.Errorf("archive region required when enabled")
		}
		if (c.Archive.AccessKey == "") != (c.Archive.SecretKey == "") {
			return fmt.Errorf("archive accessKey and secretKey must be set together")
		}
	}

	if err := c.Database.validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
