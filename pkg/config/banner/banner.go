package banner

import (
	"fmt"

	"framesync/pkg/config"
)

const banner = `
███████╗██████╗  █████╗ ███╗   ███╗███████╗███████╗██╗   ██╗███╗   ██╗ ██████╗
██╔════╝██╔══██╗██╔══██╗████╗ ████║██╔════╝██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝
█████╗  ██████╔╝███████║██╔████╔██║█████╗  ███████╗ ╚████╔╝ ██╔██╗ ██║██║
██╔══╝  ██╔══██╗██╔══██║██║╚██╔╝██║██╔══╝  ╚════██║  ╚██╔╝  ██║╚██╗██║██║
██║     ██║  ██║██║  ██║██║ ╚═╝ ██║███████╗███████║   ██║   ██║ ╚████║╚██████╗
╚═╝     ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝     ╚═╝╚══════╝╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝
`

// PrintWithEff prints the banner using an EffectiveConfigResult which
// provides richer context (config, addr, cache path, source).
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	var addr = eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	var dbPath = eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Store.DBPath
	}
	var src = eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Metrics:  %s\n", addr)
	fmt.Printf("Cache:    %s\n", dbPath)
	fmt.Printf("Remote:   %s\n", eff.RemoteURL)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Production? =================================================")
	if eff.Config != nil {
		if eff.Config.Remote.AuthToken != "" || eff.Config.Remote.AuthTokenFile != "" {
			fmt.Println("- Auth token: OK")
		} else {
			fmt.Println("- Auth token: MISSING (required against production servers)")
		}
		if eff.Config.Sync.SelfUserID != "" {
			fmt.Printf("- User: %s\n", eff.Config.Sync.SelfUserID)
		} else {
			fmt.Println("- User: not set (use FRAMESYNC_SELF_USER_ID or sync.self_user_id)")
		}
		fmt.Printf("- Reconcile cron: %s\n", eff.Config.Sync.ReconcileCron)
		fmt.Printf("- Summary cron: %s\n", eff.Config.Sync.SummaryCron)
		if eff.Config.Telemetry.Enabled {
			fmt.Printf("- Telemetry: enabled (dir=%s)\n", eff.Config.Telemetry.Dir)
		} else {
			fmt.Println("- Telemetry: disabled")
		}
	}
}
