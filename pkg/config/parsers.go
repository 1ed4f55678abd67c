package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr     string
	DB       string
	Remote   string
	Config   string
	Set      map[string]bool
	Validate bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config    *Config
	Addr      string
	DBPath    string
	RemoteURL string
	Source    string // "flags", "config", or "env"
}

// parses command-line flags and returns them as a Flags struct
func ParseConfigFlags() Flags {
	// parse any flags with defaults
	addrPtr := flag.String("addr", ":9610", "metrics listen address")
	dbPtr := flag.String("db", "./.cache", "local cache DB path")
	remotePtr := flag.String("remote", "", "sync server base URL")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	validatePtr := flag.Bool("validate", false, "validate config and exit")
	flag.Parse()

	// record which flags were set explicitly
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{Addr: *addrPtr, DB: *dbPtr, Remote: *remotePtr, Config: *cfgPtr, Set: setFlags, Validate: *validatePtr}
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) || strings.Contains(err.Error(), "not found") {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// loads environment variables into a new Config and returns it; caller config is unchanged
func ParseConfigEnvs() (*Config, bool) {
	// gather all relevant env variables
	envs := map[string]string{
		"SERVER_ADDR":    os.Getenv("FRAMESYNC_SERVER_ADDR"),
		"SERVER_ADDRESS": os.Getenv("FRAMESYNC_SERVER_ADDRESS"),
		"SERVER_PORT":    os.Getenv("FRAMESYNC_SERVER_PORT"),
		"DB_PATH":        os.Getenv("FRAMESYNC_DB_PATH"),

		"REMOTE_URL":        os.Getenv("FRAMESYNC_REMOTE_URL"),
		"REMOTE_TOKEN":      os.Getenv("FRAMESYNC_REMOTE_TOKEN"),
		"REMOTE_TOKEN_FILE": os.Getenv("FRAMESYNC_REMOTE_TOKEN_FILE"),
		"REMOTE_TIMEOUT":    os.Getenv("FRAMESYNC_REMOTE_TIMEOUT"),
		"REMOTE_RATE_RPS":   os.Getenv("FRAMESYNC_REMOTE_RATE_RPS"),
		"REMOTE_RATE_BURST": os.Getenv("FRAMESYNC_REMOTE_RATE_BURST"),

		"SELF_USER_ID":        os.Getenv("FRAMESYNC_SELF_USER_ID"),
		"SYNC_WORKERS":        os.Getenv("FRAMESYNC_SYNC_WORKERS"),
		"SYNC_RECONCILE_CRON": os.Getenv("FRAMESYNC_SYNC_RECONCILE_CRON"),
		"SYNC_SUMMARY_CRON":   os.Getenv("FRAMESYNC_SYNC_SUMMARY_CRON"),
		"SYNC_RUN_ON_START":   os.Getenv("FRAMESYNC_SYNC_RUN_ON_START"),

		// logging
		"LOG_LEVEL": os.Getenv("FRAMESYNC_LOG_LEVEL"),

		// telemetry
		"TELEMETRY_ENABLED":        os.Getenv("FRAMESYNC_TELEMETRY_ENABLED"),
		"TELEMETRY_DIR":            os.Getenv("FRAMESYNC_TELEMETRY_DIR"),
		"TELEMETRY_BUFFER_SIZE":    os.Getenv("FRAMESYNC_TELEMETRY_BUFFER_SIZE"),
		"TELEMETRY_FILE_MAX_SIZE":  os.Getenv("FRAMESYNC_TELEMETRY_FILE_MAX_SIZE"),
		"TELEMETRY_FLUSH_INTERVAL": os.Getenv("FRAMESYNC_TELEMETRY_FLUSH_INTERVAL"),
		"TELEMETRY_QUEUE_CAPACITY": os.Getenv("FRAMESYNC_TELEMETRY_QUEUE_CAPACITY"),
	}

	// check if any env was set
	envUsed := false
	for _, v := range envs {
		if v != "" {
			envUsed = true
			break
		}
	}
	envCfg := &Config{}

	parseBool := func(v string, def bool) bool {
		if v == "" {
			return def
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}

	parseSizeBytes := func(v string) SizeBytes {
		if strings.TrimSpace(v) == "" {
			return SizeBytes(0)
		}
		if u, err := humanize.ParseBytes(v); err == nil {
			return SizeBytes(u)
		}
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return SizeBytes(i)
		}
		return SizeBytes(0)
	}

	parseDuration := func(v string) Duration {
		if strings.TrimSpace(v) == "" {
			return Duration(0)
		}
		if td, err := time.ParseDuration(v); err == nil {
			return Duration(td)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return Duration(time.Duration(f * float64(time.Second)))
		}
		return Duration(0)
	}

	// apply env vars, SERVER_ADDR takes precedence over address/port pairs
	if v := envs["SERVER_ADDR"]; v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		}
	}
	if v := envs["SERVER_ADDRESS"]; v != "" && envCfg.Server.Address == "" {
		envCfg.Server.Address = v
	}
	if v := envs["SERVER_PORT"]; v != "" && envCfg.Server.Port == 0 {
		if pi, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Server.Port = pi
		}
	}
	if v := envs["DB_PATH"]; v != "" {
		envCfg.Store.DBPath = v
	}

	if v := envs["REMOTE_URL"]; v != "" {
		envCfg.Remote.BaseURL = v
	}
	if v := envs["REMOTE_TOKEN"]; v != "" {
		envCfg.Remote.AuthToken = v
	}
	if v := envs["REMOTE_TOKEN_FILE"]; v != "" {
		envCfg.Remote.AuthTokenFile = v
	}
	if v := envs["REMOTE_TIMEOUT"]; v != "" {
		envCfg.Remote.Timeout = parseDuration(v)
	}
	if v := envs["REMOTE_RATE_RPS"]; v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envCfg.Remote.RateLimit.RPS = f
		}
	}
	if v := envs["REMOTE_RATE_BURST"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Remote.RateLimit.Burst = n
		}
	}

	if v := envs["SELF_USER_ID"]; v != "" {
		envCfg.Sync.SelfUserID = v
	}
	if v := envs["SYNC_WORKERS"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Sync.Workers = n
		}
	}
	if v := envs["SYNC_RECONCILE_CRON"]; v != "" {
		envCfg.Sync.ReconcileCron = v
	}
	if v := envs["SYNC_SUMMARY_CRON"]; v != "" {
		envCfg.Sync.SummaryCron = v
	}
	if v := envs["SYNC_RUN_ON_START"]; v != "" {
		envCfg.Sync.RunOnStart = parseBool(v, false)
	}

	if v := envs["LOG_LEVEL"]; v != "" {
		envCfg.Logging.Level = v
	}

	if v := envs["TELEMETRY_ENABLED"]; v != "" {
		envCfg.Telemetry.Enabled = parseBool(v, false)
	}
	if v := envs["TELEMETRY_DIR"]; v != "" {
		envCfg.Telemetry.Dir = v
	}
	if v := envs["TELEMETRY_BUFFER_SIZE"]; v != "" {
		envCfg.Telemetry.BufferSize = parseSizeBytes(v)
	}
	if v := envs["TELEMETRY_FILE_MAX_SIZE"]; v != "" {
		envCfg.Telemetry.FileMaxSize = parseSizeBytes(v)
	}
	if v := envs["TELEMETRY_FLUSH_INTERVAL"]; v != "" {
		envCfg.Telemetry.FlushInterval = parseDuration(v)
	}
	if v := envs["TELEMETRY_QUEUE_CAPACITY"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Telemetry.QueueCapacity = n
		}
	}
	return envCfg, envUsed
}

// decides which single source to use (flags, config file, or env) and returns the effective config plus resolved addr, db path and remote URL. if --config is set, only the config file is used; otherwise flags if set; else config file if present; else env
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Store.DBPath
		res.RemoteURL = fileCfg.Remote.BaseURL
		res.Source = "config"
		return res, nil
	}

	if flags.Set["addr"] || flags.Set["db"] || flags.Set["remote"] {
		out := *fileCfg
		if !fileExists {
			out = *envCfg
		}
		if flags.Set["addr"] {
			out.Server.Address, out.Server.Port = "", parsePortFromAddr(flags.Addr)
			if h, _, err := net.SplitHostPort(flags.Addr); err == nil {
				out.Server.Address = h
			}
		}
		if flags.Set["db"] {
			out.Store.DBPath = flags.DB
		}
		if flags.Set["remote"] {
			out.Remote.BaseURL = flags.Remote
		}
		res.Config = &out
		res.Addr = out.Addr()
		res.DBPath = out.Store.DBPath
		res.RemoteURL = out.Remote.BaseURL
		res.Source = "flags"
		return res, nil
	}

	if fileExists {
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Store.DBPath
		res.RemoteURL = fileCfg.Remote.BaseURL
		res.Source = "config"
		return res, nil
	}
	res.Config = envCfg
	res.Addr = envCfg.Addr()
	res.DBPath = envCfg.Store.DBPath
	res.RemoteURL = envCfg.Remote.BaseURL
	res.Source = "env"
	return res, nil
}

// extracts port integer from host:port string
func parsePortFromAddr(a string) int {
	if a == "" {
		return 0
	}
	if _, p, err := net.SplitHostPort(a); err == nil {
		if pi, err := strconv.Atoi(p); err == nil {
			return pi
		}
	}
	return 0
}
