package app

import (
	"context"

	"framesync/pkg/logger"
	"framesync/pkg/telemetry"
)

// Shutdown tears the app down in dependency order: schedulers first so
// no pass is mid-flight, then the listener, dispatcher, store and lease.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"

	if a.sched != nil {
		a.sched.Stop()
	}
	if a.leaseCancel != nil {
		a.leaseCancel()
	}

	var firstErr error
	if a.srvFast != nil {
		if err := a.srvFast.ShutdownWithContext(ctx); err != nil {
			logger.Warn("http_shutdown_failed", "error", err.Error())
			firstErr = err
		}
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("store_close_failed", "error", err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	telemetry.Close()
	if a.lease != nil {
		if err := a.lease.Release(a.leaseOwner); err != nil {
			logger.Warn("lease_release_failed", "error", err.Error())
		}
	}

	if firstErr == nil {
		a.state = "stopped"
	}
	return firstErr
}
