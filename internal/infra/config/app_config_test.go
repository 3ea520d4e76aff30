package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error when config file missing")
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	yaml := `
environment: STAGING
venue:
  name: Talos
  host: " tal-87.sandbox.talostrading.com "
  orderPath: v1/orders
  account: talos-staging
  envFiles: [" ./secrets/.env ", ""]
transport:
  timeout: 10s
  rateLimit: 20
reconcile:
  enabled: true
  interval: 2s
  concurrency: 4
  maxElapsed: 1m
logging:
  level: DEBUG
apiServer:
  addr: ":9999"
telemetry:
  otlpEndpoint: http://localhost:4318
  serviceName: test-service
  otlpInsecure: true
  enableMetrics: false
database:
  dsn: postgresql://localhost:5432/orderbroker
  maxConns: 4
  runMigrations: true
archive:
  enabled: true
  bucket: fills
  prefix: /staging/
  region: eu-west-1
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Environment != EnvStaging {
		t.Fatalf("expected staging environment, got %q", cfg.Environment)
	}
	if cfg.Venue.Name != "talos" || cfg.Venue.Host != "tal-87.sandbox.talostrading.com" {
		t.Fatalf("unexpected venue: %+v", cfg.Venue)
	}
	if cfg.Venue.OrderPath != "/v1/orders" {
		t.Fatalf("expected leading slash on order path, got %q", cfg.Venue.OrderPath)
	}
	if cfg.Venue.Scheme != "https" {
		t.Fatalf("expected https default scheme, got %q", cfg.Venue.Scheme)
	}
	if len(cfg.Venue.EnvFiles) != 1 || cfg.Venue.EnvFiles[0] != "secrets/.env" {
		t.Fatalf("unexpected env files: %v", cfg.Venue.EnvFiles)
	}
	if cfg.Transport.Timeout != 10*time.Second || cfg.Transport.Burst != 1 {
		t.Fatalf("unexpected transport config: %+v", cfg.Transport)
	}
	if !cfg.Reconcile.Enabled || cfg.Reconcile.Interval != 2*time.Second || cfg.Reconcile.MaxElapsed != time.Minute {
		t.Fatalf("unexpected reconcile config: %+v", cfg.Reconcile)
	}
	if cfg.Reconcile.BatchLimit != 500 {
		t.Fatalf("expected default batch limit, got %d", cfg.Reconcile.BatchLimit)
	}
	if cfg.Logging.ParsedLevel() != logrus.DebugLevel || cfg.Logging.Format != LogFormatText {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.APIServer.Addr != ":9999" || cfg.Telemetry.ServiceName != "test-service" {
		t.Fatalf("unexpected server/telemetry config: %+v %+v", cfg.APIServer, cfg.Telemetry)
	}
	if !cfg.Database.Enabled() || cfg.Database.MaxConns != 4 || cfg.Database.MinConns != 1 {
		t.Fatalf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Archive.Prefix != "staging" {
		t.Fatalf("expected trimmed archive prefix, got %q", cfg.Archive.Prefix)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("venue:\n  host: sandbox.example.com\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.Environment != EnvDev {
		t.Fatalf("expected dev environment, got %q", cfg.Environment)
	}
	if cfg.Venue.Account != "talos" || cfg.Venue.OrderPath != "/v1/orders" {
		t.Fatalf("unexpected venue defaults: %+v", cfg.Venue)
	}
	if len(cfg.Venue.EnvFiles) != 1 || cfg.Venue.EnvFiles[0] != ".env" {
		t.Fatalf("expected .env default, got %v", cfg.Venue.EnvFiles)
	}
	if cfg.Transport.Timeout != 0 {
		t.Fatalf("expected unbounded transport timeout, got %s", cfg.Transport.Timeout)
	}
	if cfg.Reconcile.Interval != 5*time.Second || cfg.Reconcile.Concurrency != 8 {
		t.Fatalf("unexpected reconcile defaults: %+v", cfg.Reconcile)
	}
	if cfg.Database.Enabled() {
		t.Fatalf("expected in-memory store when dsn empty")
	}
	if cfg.APIServer.Addr != ":8880" {
		t.Fatalf("unexpected api addr %q", cfg.APIServer.Addr)
	}
}

func TestParseProdDefaultsToJSONLogs(t *testing.T) {
	cfg, err := Parse([]byte("environment: prod\nvenue:\n  host: talos.example.com\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.Logging.Format != LogFormatJSON {
		t.Fatalf("expected json logs in prod, got %q", cfg.Logging.Format)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := map[string]struct {
		yaml string
		want string
	}{
		"environment":    {yaml: "environment: qa\nvenue: {host: h}\n", want: "environment must be one of"},
		"venue name":     {yaml: "venue: {name: binance, host: h}\n", want: `venue name "binance" not supported`},
		"missing host":   {yaml: "venue: {}\n", want: "venue host required"},
		"host with url":  {yaml: "venue: {host: \"https://h\"}\n", want: "must not include a scheme"},
		"scheme":         {yaml: "venue: {host: h, scheme: ftp}\n", want: "venue scheme must be http or https"},
		"prod http":      {yaml: "environment: prod\nvenue: {host: h, scheme: http}\n", want: "https in prod"},
		"timeout":        {yaml: "venue: {host: h}\ntransport: {timeout: -1s}\n", want: "transport timeout"},
		"rate":           {yaml: "venue: {host: h}\ntransport: {rateLimit: -2}\n", want: "transport rateLimit"},
		"log level":      {yaml: "venue: {host: h}\nlogging: {level: loud}\n", want: "logging level"},
		"log format":     {yaml: "venue: {host: h}\nlogging: {format: xml}\n", want: "logging format"},
		"archive":        {yaml: "venue: {host: h}\narchive: {enabled: true, region: r}\n", want: "archive bucket required"},
		"archive region": {yaml: "venue: {host: h}\narchive: {enabled: true, bucket: b}\n", want: "archive region required"},
		"archive keys":   {yaml: "venue: {host: h}\narchive: {enabled: true, bucket: b, region: r, accessKey: AKIA}\n", want: "must be set together"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("venue: [")); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

func TestDatabaseConfigDefaults(t *testing.T) {
	cfg := DatabaseConfig{DSN: " postgresql://db ", MaxConns: 2, MinConns: 5}
	cfg.applyDefaults()
	if cfg.DSN != "postgresql://db" {
		t.Fatalf("expected trimmed dsn, got %q", cfg.DSN)
	}
	if cfg.MinConns != cfg.MaxConns {
		t.Fatalf("expected minConns clamped to maxConns, got %d", cfg.MinConns)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if err := (DatabaseConfig{}).validate(); err != nil {
		t.Fatalf("empty dsn should skip validation: %v", err)
	}
	if err := (DatabaseConfig{DSN: "x"}).validate(); err == nil {
		t.Fatalf("expected error for unset pool sizes")
	}
}

func TestLoggingParsedLevelFallback(t *testing.T) {
	if got := (LoggingConfig{Level: "nope"}).ParsedLevel(); got != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %s", got)
	}
}
