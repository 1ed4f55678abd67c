package store

import (
	"context"

	"framesync/pkg/logger"
	"framesync/pkg/models"
	"framesync/pkg/store/keys"
)

// EnqueueShareHistoryItem records one completed share in the history
// queue using the versioned envelope encoding.
func (s *Store) EnqueueShareHistoryItem(ctx context.Context, item models.ShareHistoryItem) error {
	if err := keys.ValidateID(item.ItemID); err != nil {
		return err
	}
	b, err := models.EncodeShareHistoryItem(item)
	if err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	return s.setRaw(keys.GenShareQueueKey(item.ItemID), b)
}

// ShareHistoryItemsForGroups returns the queue items whose group id is in
// groupIDs, keyed by item id. Undecodable entries are skipped and logged.
func (s *Store) ShareHistoryItemsForGroups(ctx context.Context, groupIDs []string) (map[string]models.ShareHistoryItem, error) {
	want := make(map[string]struct{}, len(groupIDs))
	for _, gid := range groupIDs {
		want[gid] = struct{}{}
	}
	out := make(map[string]models.ShareHistoryItem)
	err := s.scanPrefix(ctx, keys.ShareQueuePrefix, func(key string, value []byte) error {
		it, derr := models.DecodeShareHistoryItem(value)
		if derr != nil {
			logger.Warn("share_history_decode_failed", "key", key, "error", derr)
			return nil
		}
		if _, ok := want[it.GroupID]; ok {
			out[it.ItemID] = it
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RewriteShareHistoryItem replaces a queue item in place, preserving its
// id and enqueue timestamp.
func (s *Store) RewriteShareHistoryItem(ctx context.Context, item models.ShareHistoryItem) error {
	b, err := models.EncodeShareHistoryItem(item)
	if err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	return s.setRaw(keys.GenShareQueueKey(item.ItemID), b)
}

// RemoveShareHistoryItems deletes queue items by id.
func (s *Store) RemoveShareHistoryItems(ctx context.Context, itemIDs []string) error {
	dels := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		dels = append(dels, keys.GenShareQueueKey(id))
	}
	return s.applyBatch(nil, dels)
}

// RemoveShareHistoryItemsForAssets deletes every queue item referencing
// one of the given asset local ids and returns the removed item ids.
func (s *Store) RemoveShareHistoryItemsForAssets(ctx context.Context, localAssetIDs []string) ([]string, error) {
	want := make(map[string]struct{}, len(localAssetIDs))
	for _, id := range localAssetIDs {
		want[id] = struct{}{}
	}
	var removed []string
	err := s.scanPrefix(ctx, keys.ShareQueuePrefix, func(key string, value []byte) error {
		it, derr := models.DecodeShareHistoryItem(value)
		if derr != nil {
			return nil
		}
		if _, ok := want[it.LocalAssetID]; ok {
			removed = append(removed, it.ItemID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return nil, nil
	}
	if err := s.RemoveShareHistoryItems(ctx, removed); err != nil {
		return nil, err
	}
	return removed, nil
}
