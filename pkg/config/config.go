package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"

	"framesync/pkg/logger"
)

// Defaults for sync, remote and telemetry configuration
const (
	defaultReconcileCron = "*/5 * * * *"
	defaultSummaryCron   = "*/2 * * * *"

	defaultRemoteTimeout = 30 * time.Second
	defaultRemoteRPS     = 20.0
	defaultRemoteBurst   = 40

	// telemetry defaults
	defaultTelemetryBufferSize    = 4 * 1024 * 1024  // 4MB
	defaultTelemetryFileMaxSize   = 40 * 1024 * 1024 // 40MB
	defaultTelemetryFlushMs       = 2000             // 2 seconds
	defaultTelemetryQueueCapacity = 2048
)

// Addr returns the metrics listener address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = 9610
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig applies defaults and validates values in the config. It
// mutates the receiver to fill in missing defaults and returns an error
// if any configuration value is invalid.
func (c *Config) ValidateConfig() error {
	// Sync defaults
	numCPU := runtime.NumCPU()
	if c.Sync.Workers <= 0 {
		c.Sync.Workers = numCPU
	} else if c.Sync.Workers > 4*numCPU {
		logger.Warn("sync_workers_capped", "requested", c.Sync.Workers, "capped_to", 4*numCPU)
		c.Sync.Workers = 4 * numCPU
	}
	if c.Sync.ReconcileCron == "" {
		c.Sync.ReconcileCron = defaultReconcileCron
	}
	if c.Sync.SummaryCron == "" {
		c.Sync.SummaryCron = defaultSummaryCron
	}
	if !gronx.IsValid(c.Sync.ReconcileCron) {
		return fmt.Errorf("invalid sync.reconcile_cron expression: %s", c.Sync.ReconcileCron)
	}
	if !gronx.IsValid(c.Sync.SummaryCron) {
		return fmt.Errorf("invalid sync.summary_cron expression: %s", c.Sync.SummaryCron)
	}

	// Remote defaults
	if c.Remote.Timeout.Duration() == 0 {
		c.Remote.Timeout = Duration(defaultRemoteTimeout)
	}
	if c.Remote.RateLimit.RPS <= 0 {
		c.Remote.RateLimit.RPS = defaultRemoteRPS
	}
	if c.Remote.RateLimit.Burst <= 0 {
		c.Remote.RateLimit.Burst = defaultRemoteBurst
	}

	// Telemetry defaults
	if c.Telemetry.BufferSize.Int64() == 0 {
		c.Telemetry.BufferSize = SizeBytes(defaultTelemetryBufferSize)
	}
	if c.Telemetry.FileMaxSize.Int64() == 0 {
		c.Telemetry.FileMaxSize = SizeBytes(defaultTelemetryFileMaxSize)
	}
	if c.Telemetry.FlushInterval.Duration() == 0 {
		c.Telemetry.FlushInterval = Duration(time.Duration(defaultTelemetryFlushMs) * time.Millisecond)
	}
	if c.Telemetry.QueueCapacity <= 0 {
		c.Telemetry.QueueCapacity = defaultTelemetryQueueCapacity
	}

	return nil
}

// AuthToken resolves the remote auth token, preferring the inline value
// over the token file.
func (c *Config) AuthToken() (string, error) {
	if c.Remote.AuthToken != "" {
		return c.Remote.AuthToken, nil
	}
	if c.Remote.AuthTokenFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(c.Remote.AuthTokenFile)
	if err != nil {
		return "", fmt.Errorf("read auth token file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("FRAMESYNC_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
