package syncx

import (
	"context"
	"sort"

	"framesync/pkg/logger"
	"framesync/pkg/metrics"
	"framesync/pkg/models"
)

// purgeStaleUsers removes users the server no longer knows about from
// the local user cache and the share graph. Per-user cache failures are
// logged and skipped; a graph removal failure resets the graph wholesale
// rather than leaving it partially consistent.
func purgeStaleUsers(ctx context.Context, local LocalStore, staleUserIDs []string) {
	if len(staleUserIDs) == 0 {
		return
	}
	sort.Strings(staleUserIDs)
	for _, uid := range staleUserIDs {
		if err := local.DeleteUsers(ctx, []string{uid}); err != nil {
			logger.Warn("stale_user_delete_failed", "user", uid, "error", err.Error())
			continue
		}
		metrics.UsersPurged.Inc()
	}
	if err := local.RemoveUsersFromGraph(ctx, staleUserIDs); err != nil {
		logger.Warn("share_graph_removal_failed", "users", len(staleUserIDs), "error", err.Error())
		if rerr := local.ResetGraph(ctx); rerr != nil {
			logger.Error("share_graph_reset_failed", "error", rerr.Error())
		}
	}
	logger.Info("stale_users_purged", "count", len(staleUserIDs))
}

// cleanBlacklist drops blacklist entries for users no longer on the
// server. Best effort.
func cleanBlacklist(ctx context.Context, local LocalStore, remoteUserIDs []string) {
	removed, err := local.RetainBlacklistedOnly(ctx, remoteUserIDs)
	if err != nil {
		logger.Warn("blacklist_clean_failed", "error", err.Error())
		return
	}
	if len(removed) > 0 {
		logger.Info("blacklist_entries_dropped", "count", len(removed))
	}
}

// cleanDownloadQueues drops pending download entries whose asset or
// sharer the server no longer lists. Best effort.
func cleanDownloadQueues(ctx context.Context, local LocalStore, remoteAssetIDs, remoteUserIDs []string) {
	if err := local.CleanDownloadEntriesNotIn(ctx, remoteAssetIDs, remoteUserIDs); err != nil {
		logger.Warn("download_queue_clean_failed", "error", err.Error())
	}
}

// applyGroupUserRemovals rewrites share-history queue items so removed
// recipients disappear from their recipient lists, deleting items whose
// recipient list empties out, and unshares each removed user from every
// asset of the affected group. Returns the changed and removed item ids.
func applyGroupUserRemovals(ctx context.Context, local LocalStore, localDescriptors []models.AssetDescriptor, removals map[string][]string) (changed, removed []string) {
	if len(removals) == 0 {
		return nil, nil
	}

	groupIDs := make([]string, 0, len(removals))
	for gid := range removals {
		groupIDs = append(groupIDs, gid)
	}
	sort.Strings(groupIDs)

	items, err := local.ShareHistoryItemsForGroups(ctx, groupIDs)
	if err != nil {
		logger.Warn("share_history_fetch_failed", "error", err.Error())
		items = nil
	}

	for itemID, item := range items {
		rewritten := item.WithoutRecipients(removals[item.GroupID])
		if len(rewritten.SharedWith) == len(item.SharedWith) {
			continue
		}
		if len(rewritten.SharedWith) == 0 {
			if err := local.RemoveShareHistoryItems(ctx, []string{itemID}); err != nil {
				logger.Warn("share_history_remove_failed", "item", itemID, "error", err.Error())
				continue
			}
			removed = append(removed, itemID)
			continue
		}
		if err := local.RewriteShareHistoryItem(ctx, rewritten); err != nil {
			logger.Warn("share_history_rewrite_failed", "item", itemID, "error", err.Error())
			continue
		}
		metrics.QueueItemsRewritten.Inc()
		changed = append(changed, itemID)
	}

	// Unshare removed users from each asset of the affected groups.
	for _, d := range localDescriptors {
		if !d.SharingInfo.Complete() {
			continue
		}
		for gid := range d.SharingInfo.GroupIDs() {
			for _, uid := range removals[gid] {
				if err := local.UnshareAsset(ctx, d.GlobalIdentifier, uid); err != nil {
					logger.Warn("asset_unshare_failed", "gid", d.GlobalIdentifier, "user", uid, "error", err.Error())
				}
			}
		}
	}

	sort.Strings(changed)
	sort.Strings(removed)
	return changed, removed
}
