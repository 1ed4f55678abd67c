package config

import (
	"fmt"
	"os"

	"github.com/adhocore/gronx"
)

// set defaults, fail fast on critical errors
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	// DB path must be present
	if p := eff.DBPath; p == "" {
		return fmt.Errorf("cache path is empty: set --db flag, FRAMESYNC_DB_PATH env, or store.db_path in config")
	}
	// Remote URL must be present
	if eff.RemoteURL == "" {
		return fmt.Errorf("remote URL is empty: set --remote flag, FRAMESYNC_REMOTE_URL env, or remote.base_url in config")
	}
	// The engines cannot derive group membership without knowing who we are
	if cfg.Sync.SelfUserID == "" {
		return fmt.Errorf("sync.self_user_id is empty: set FRAMESYNC_SELF_USER_ID env or sync.self_user_id in config")
	}

	// Token file must be readable when configured
	if cfg.Remote.AuthToken == "" && cfg.Remote.AuthTokenFile != "" {
		if _, err := os.Stat(cfg.Remote.AuthTokenFile); err != nil {
			return fmt.Errorf("auth token file not accessible: %w", err)
		}
	}

	// User-passed cron expressions are checked here to fail fast; defaults
	// are filled in later by Config.ValidateConfig.
	gron := gronx.New()
	if cfg.Sync.ReconcileCron != "" && !gron.IsValid(cfg.Sync.ReconcileCron) {
		return fmt.Errorf("invalid sync.reconcile_cron: not a valid cron expression")
	}
	if cfg.Sync.SummaryCron != "" && !gron.IsValid(cfg.Sync.SummaryCron) {
		return fmt.Errorf("invalid sync.summary_cron: not a valid cron expression")
	}

	return nil
}
