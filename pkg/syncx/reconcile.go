package syncx

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"

	"framesync/pkg/logger"
	"framesync/pkg/metrics"
	"framesync/pkg/models"
	"framesync/pkg/telemetry"
)

// Reconciler runs a full descriptor reconciliation pass: fetch both
// sides, purge stale users and queue references, compute the diff and
// apply it. A pass is single shot; failures require a full re-run.
type Reconciler struct {
	local      LocalStore
	remote     RemoteStore
	selfUserID string
	clock      clockwork.Clock
	dispatcher *Dispatcher
	delegates  []AssetSyncDelegate
}

func NewReconciler(local LocalStore, remote RemoteStore, selfUserID string, dispatcher *Dispatcher, delegates ...AssetSyncDelegate) *Reconciler {
	return &Reconciler{
		local:      local,
		remote:     remote,
		selfUserID: selfUserID,
		clock:      clockwork.NewRealClock(),
		dispatcher: dispatcher,
		delegates:  delegates,
	}
}

// WithClock swaps the clock used for join timeouts.
func (r *Reconciler) WithClock(clock clockwork.Clock) *Reconciler {
	r.clock = clock
	return r
}

// Run executes one reconciliation pass and returns the diff it applied.
// Either descriptor fetch failing, or the fetch barrier timing out,
// aborts the pass; everything past that point is best effort per entity.
func (r *Reconciler) Run(ctx context.Context) (models.AssetDescriptorsDiff, error) {
	tr := telemetry.Track("reconcile_pass")
	defer tr.Finish()
	started := time.Now()

	var (
		localDescs, remoteDescs []models.AssetDescriptor
		localErr, remoteErr     error
	)
	err := join(r.clock, joinBudget(2),
		func() { localDescs, localErr = r.local.GetDescriptors(ctx, nil) },
		func() { remoteDescs, remoteErr = r.remote.GetDescriptors(ctx) },
	)
	if err != nil {
		metrics.ReconcilePasses.WithLabelValues("timeout").Inc()
		return models.AssetDescriptorsDiff{}, errors.Wrap(err, "descriptor fetch")
	}
	if remoteErr != nil {
		metrics.ReconcilePasses.WithLabelValues("error").Inc()
		return models.AssetDescriptorsDiff{}, errors.Wrap(remoteErr, "remote descriptors")
	}
	if localErr != nil {
		metrics.ReconcilePasses.WithLabelValues("error").Inc()
		return models.AssetDescriptorsDiff{}, errors.Wrap(localErr, "local descriptors")
	}
	tr.Mark("descriptors_fetched")

	localUserIDs := referencedUserIDs(localDescs, r.selfUserID)
	remoteUserIDs := referencedUserIDs(remoteDescs, r.selfUserID)

	remoteUsers, err := r.remote.GetUsers(ctx, remoteUserIDs)
	if err != nil {
		metrics.ReconcilePasses.WithLabelValues("error").Inc()
		return models.AssetDescriptorsDiff{}, errors.Wrap(err, "remote users")
	}
	if err := r.local.SaveUsers(ctx, remoteUsers); err != nil {
		logger.Warn("user_cache_refresh_failed", "error", err.Error())
	}
	tr.Mark("users_verified")

	purgeStaleUsers(ctx, r.local, difference(localUserIDs, remoteUserIDs))

	sharedWithSelf := assetsSharedWith(remoteDescs, r.selfUserID)
	r.notify(func(d AssetSyncDelegate) {
		d.UsersVerified(remoteUsers)
		d.AssetsSharedWithUser(sharedWithSelf)
	})

	cleanBlacklist(ctx, r.local, remoteUserIDs)
	cleanDownloadQueues(ctx, r.local, descriptorIDs(remoteDescs), remoteUserIDs)
	tr.Mark("references_cleaned")

	diff := GenerateDiff(remoteDescs, localDescs, remoteUserIDs, localUserIDs, r.selfUserID)

	removedIDs := make([]string, 0, len(diff.AssetsRemovedOnServer))
	removedLocalIDs := make([]string, 0, len(diff.AssetsRemovedOnServer))
	for _, d := range diff.AssetsRemovedOnServer {
		removedIDs = append(removedIDs, d.GlobalIdentifier)
		if d.LocalIdentifier != "" {
			removedLocalIDs = append(removedLocalIDs, d.LocalIdentifier)
		}
	}
	if len(removedIDs) > 0 {
		deleted, err := r.local.DeleteAssets(ctx, removedIDs)
		if err != nil {
			logger.Warn("asset_delete_failed", "count", len(removedIDs), "error", err.Error())
		}
		metrics.AssetsRemoved.Add(float64(len(deleted)))
		if err := r.local.CleanDownloadEntriesForAssets(ctx, removedIDs); err != nil {
			logger.Warn("download_entry_clean_failed", "error", err.Error())
		}
		if _, err := r.local.RemoveShareHistoryItemsForAssets(ctx, removedLocalIDs); err != nil {
			logger.Warn("share_history_asset_clean_failed", "error", err.Error())
		}
	}

	for _, vs := range diff.StateDifferentOnServer {
		if err := r.local.MarkAssetState(ctx, vs.GlobalIdentifier, vs.Quality, vs.NewUploadState); err != nil {
			logger.Warn("asset_state_update_failed", "gid", vs.GlobalIdentifier, "quality", string(vs.Quality), "error", err.Error())
		}
	}

	changed, removedItems := applyGroupUserRemovals(ctx, r.local, localDescs, diff.UserIDsToRemoveFromGroup)
	tr.Mark("diff_applied")

	removedDescs := diff.AssetsRemovedOnServer
	r.notify(func(d AssetSyncDelegate) {
		if len(changed) > 0 {
			d.QueueItemsChanged(changed)
		}
		if len(removedItems) > 0 {
			d.QueueItemsRemoved(removedItems)
		}
		if len(removedDescs) > 0 {
			d.AssetsRemoved(removedDescs)
		}
	})

	metrics.ReconcilePasses.WithLabelValues("ok").Inc()
	metrics.ReconcileDuration.Observe(time.Since(started).Seconds())
	logger.Info("reconcile_pass_done",
		"remote_assets", len(remoteDescs),
		"local_assets", len(localDescs),
		"removed", len(removedIDs),
		"state_changes", len(diff.StateDifferentOnServer),
		"group_removals", len(diff.UserIDsToRemoveFromGroup),
		"elapsed", time.Since(started).String())
	return diff, nil
}

func (r *Reconciler) notify(fn func(AssetSyncDelegate)) {
	for _, d := range r.delegates {
		d := d
		r.dispatcher.Notify(func() { fn(d) })
	}
}

// referencedUserIDs collects every user id a descriptor set mentions,
// excluding self, sorted and deduplicated.
func referencedUserIDs(descs []models.AssetDescriptor, selfUserID string) []string {
	seen := map[string]struct{}{}
	for _, d := range descs {
		if uid := d.SharingInfo.SharedByUserIdentifier; uid != "" && uid != selfUserID {
			seen[uid] = struct{}{}
		}
		for uid := range d.SharingInfo.SharedWithUserIdentifiersInGroup {
			if uid != selfUserID {
				seen[uid] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for uid := range seen {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

func assetsSharedWith(descs []models.AssetDescriptor, userID string) []string {
	var out []string
	for _, d := range descs {
		if _, ok := d.SharingInfo.SharedWithUserIdentifiersInGroup[userID]; ok {
			out = append(out, d.GlobalIdentifier)
		}
	}
	sort.Strings(out)
	return out
}

func descriptorIDs(descs []models.AssetDescriptor) []string {
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.GlobalIdentifier)
	}
	return out
}

// difference returns the elements of a not present in b.
func difference(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, v := range b {
		inB[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := inB[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
