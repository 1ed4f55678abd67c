package store

import (
	"context"
	"encoding/json"
	"time"

	"framesync/pkg/logger"
	"framesync/pkg/store/keys"
)

// DownloadEntry is one pending download authorization request: an asset a
// user shared with us that has not been fetched yet.
type DownloadEntry struct {
	AssetGlobalID string    `json:"asset_global_id"`
	SharerUserID  string    `json:"sharer_user_id"`
	RequestedAt   time.Time `json:"requested_at"`
}

// EnqueueDownload records a pending download entry.
func (s *Store) EnqueueDownload(ctx context.Context, e DownloadEntry) error {
	return s.setJSON(keys.GenDownloadKey(e.AssetGlobalID, e.SharerUserID), e)
}

// CleanDownloadEntriesNotIn prunes download queue entries that reference
// assets or users no longer known to the server.
func (s *Store) CleanDownloadEntriesNotIn(ctx context.Context, assetGlobalIDs, userIDs []string) error {
	assets := make(map[string]struct{}, len(assetGlobalIDs))
	for _, gid := range assetGlobalIDs {
		assets[gid] = struct{}{}
	}
	users := make(map[string]struct{}, len(userIDs))
	for _, uid := range userIDs {
		users[uid] = struct{}{}
	}
	var stale []string
	err := s.scanPrefix(ctx, keys.DownloadPrefix, func(key string, value []byte) error {
		var e DownloadEntry
		if derr := json.Unmarshal(value, &e); derr != nil {
			logger.Warn("download_entry_decode_failed", "key", key, "error", derr)
			stale = append(stale, key)
			return nil
		}
		_, assetKnown := assets[e.AssetGlobalID]
		_, userKnown := users[e.SharerUserID]
		if !assetKnown || !userKnown {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	if err := s.applyBatch(nil, stale); err != nil {
		return err
	}
	logger.Info("download_queue_pruned", "removed", len(stale))
	return nil
}

// CleanDownloadEntriesForAssets removes every pending entry for the given
// assets, regardless of sharer.
func (s *Store) CleanDownloadEntriesForAssets(ctx context.Context, assetGlobalIDs []string) error {
	for _, gid := range assetGlobalIDs {
		if _, err := s.deletePrefix(ctx, keys.DownloadAssetPrefix(gid)); err != nil {
			return err
		}
	}
	return nil
}
