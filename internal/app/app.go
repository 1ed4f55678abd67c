package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"framesync/internal/scheduler"
	"framesync/pkg/config"
	"framesync/pkg/logger"
	"framesync/pkg/remote"
	"framesync/pkg/store"
	"framesync/pkg/syncx"
	"framesync/pkg/telemetry"
)

// leaseTTL is how long the cache lease is valid between heartbeats.
const leaseTTL = 120 * time.Second

// App groups the local store, remote client and sync engines.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	store      *store.Store
	remote     *remote.Client
	dispatcher *syncx.Dispatcher

	reconciler   *syncx.Reconciler
	interactions *syncx.InteractionSync
	summaries    *syncx.SummarySync

	sched       *scheduler.Manager
	lease       *scheduler.FileLease
	leaseOwner  string
	leaseCancel context.CancelFunc

	srvFast *fasthttp.Server
	state   string
}

// the pebble store and the HTTP client satisfy the engine interfaces
var (
	_ syncx.LocalStore  = (*store.Store)(nil)
	_ syncx.RemoteStore = (*remote.Client)(nil)
)

// New sets up resources that don't need a running context (store, remote
// client, engines). Call Run to start the schedulers and block.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")
	cfg := eff.Config

	if cfg.Telemetry.Enabled {
		dir := cfg.Telemetry.Dir
		if dir == "" {
			dir = eff.DBPath + "/telemetry"
		}
		telemetry.Init(dir,
			int(cfg.Telemetry.BufferSize.Int64()),
			cfg.Telemetry.QueueCapacity,
			cfg.Telemetry.FlushInterval.Duration(),
			cfg.Telemetry.FileMaxSize.Int64())
	}

	st, err := store.Open(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	token, err := cfg.AuthToken()
	if err != nil {
		st.Close()
		return nil, err
	}
	rc := remote.New(eff.RemoteURL, token,
		remote.WithTimeout(cfg.Remote.Timeout.Duration()),
		remote.WithRateLimit(cfg.Remote.RateLimit.RPS, cfg.Remote.RateLimit.Burst),
	)

	a := &App{
		eff:        eff,
		version:    version,
		commit:     commit,
		buildDate:  buildDate,
		store:      st,
		remote:     rc,
		dispatcher: syncx.NewDispatcher(),
		leaseOwner: uuid.NewString(),
	}
	a.buildEngines(nil, nil)
	return a, nil
}

// RegisterDelegates installs observers on the engines. Must be called
// before Run.
func (a *App) RegisterDelegates(asset []syncx.AssetSyncDelegate, interaction []syncx.InteractionSyncDelegate) {
	a.buildEngines(asset, interaction)
}

func (a *App) buildEngines(asset []syncx.AssetSyncDelegate, interaction []syncx.InteractionSyncDelegate) {
	cfg := a.eff.Config
	a.reconciler = syncx.NewReconciler(a.store, a.remote, cfg.Sync.SelfUserID, a.dispatcher, asset...)
	a.interactions = syncx.NewInteractionSync(a.store, a.remote, cfg.Sync.Workers, a.dispatcher, interaction...)
	a.summaries = syncx.NewSummarySync(a.store, a.remote, a.interactions, a.knownUserFilter(), a.dispatcher, interaction...)
}

// knownUserFilter recognizes users present in the local cache, which the
// reconciler refreshes from the server on every pass.
func (a *App) knownUserFilter() syncx.KnownUserFilter {
	return func(ctx context.Context, userIDs []string) (map[string]bool, error) {
		users, err := a.store.GetUsers(ctx, userIDs)
		if err != nil {
			return nil, err
		}
		known := make(map[string]bool, len(users))
		for _, u := range users {
			known[u.Identifier] = true
		}
		return known, nil
	}
}

// Run acquires the cache lease, starts the sync schedulers and the
// metrics listener, then blocks until ctx is canceled or the listener
// fails.
func (a *App) Run(ctx context.Context) error {
	a.lease = scheduler.NewFileLease(a.eff.DBPath)
	acq, err := a.lease.Acquire(a.leaseOwner, leaseTTL)
	if err != nil {
		return fmt.Errorf("cache lease: %w", err)
	}
	if !acq {
		return fmt.Errorf("cache at %s is locked by another sync process", a.eff.DBPath)
	}
	hbCtx, hbCancel := context.WithCancel(ctx)
	a.leaseCancel = hbCancel
	go a.leaseHeartbeat(hbCtx)

	a.printBanner()

	cfg := a.eff.Config
	a.sched = scheduler.Start(ctx,
		scheduler.Job{Name: "reconcile", Cron: cfg.Sync.ReconcileCron, Run: a.runReconcilePass},
		scheduler.Job{Name: "summaries", Cron: cfg.Sync.SummaryCron, Run: a.runSummaryPass},
	)
	if cfg.Sync.RunOnStart {
		go a.sched.RunImmediate()
	}

	errCh := a.startHTTP(ctx)
	a.state = "running"

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// runReconcilePass runs the descriptor reconciliation followed by an
// interaction sync for every group the surviving descriptors place this
// user in.
func (a *App) runReconcilePass(ctx context.Context) error {
	if _, err := a.reconciler.Run(ctx); err != nil {
		return err
	}
	descs, err := a.store.GetDescriptors(ctx, nil)
	if err != nil {
		return err
	}
	return a.interactions.SyncGroupsFromDescriptors(ctx, descs, a.eff.Config.Sync.SelfUserID)
}

// runSummaryPass syncs the thread/group summaries and then full
// interactions for every locally known thread.
func (a *App) runSummaryPass(ctx context.Context) error {
	if err := a.summaries.SyncSummaries(ctx); err != nil {
		return err
	}
	return a.interactions.SyncThreads(ctx)
}

func (a *App) leaseHeartbeat(ctx context.Context) {
	t := time.NewTicker(leaseTTL / 3)
	defer t.Stop()
	var failCount int
	const maxConsecutiveRenewFails = 3
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := a.lease.Renew(a.leaseOwner, leaseTTL); err != nil {
				failCount++
				logger.Error("lease_renew_failed", "error", err, "count", failCount)
				if failCount >= maxConsecutiveRenewFails {
					logger.Error("lease_renew_failed_fatal", "owner", a.leaseOwner)
					return
				}
			} else {
				if failCount != 0 {
					logger.Info("lease_renew_recovered", "owner", a.leaseOwner, "recovered_count", failCount)
				}
				failCount = 0
			}
		}
	}
}
