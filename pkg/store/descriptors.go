package store

import (
	"context"
	"encoding/json"

	"framesync/pkg/logger"
	"framesync/pkg/models"
	"framesync/pkg/store/keys"
	"framesync/pkg/telemetry"
)

// GetDescriptors returns descriptors for the given global ids, or every
// stored descriptor when ids is nil. Records that fail to decode are
// skipped and logged, never fatal.
func (s *Store) GetDescriptors(ctx context.Context, globalIDs []string) ([]models.AssetDescriptor, error) {
	tr := telemetry.Track("store.get_descriptors")
	defer tr.Finish()

	if globalIDs != nil {
		out := make([]models.AssetDescriptor, 0, len(globalIDs))
		for _, gid := range globalIDs {
			var d models.AssetDescriptor
			ok, err := s.getJSON(keys.GenDescriptorKey(gid), &d)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, d)
			}
		}
		return out, nil
	}

	var out []models.AssetDescriptor
	err := s.scanPrefix(ctx, keys.DescriptorPrefix, func(key string, value []byte) error {
		var d models.AssetDescriptor
		if err := json.Unmarshal(value, &d); err != nil {
			logger.Warn("descriptor_decode_failed", "key", key, "error", err)
			return nil
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveDescriptors writes descriptors in one batch.
func (s *Store) SaveDescriptors(ctx context.Context, descriptors []models.AssetDescriptor) error {
	puts := make(map[string]any, len(descriptors))
	for _, d := range descriptors {
		if err := keys.ValidateID(d.GlobalIdentifier); err != nil {
			return err
		}
		puts[keys.GenDescriptorKey(d.GlobalIdentifier)] = d
	}
	return s.applyBatch(puts, nil)
}

// DeleteAssets removes the descriptors for the given global ids and
// returns the ids actually removed.
func (s *Store) DeleteAssets(ctx context.Context, globalIDs []string) ([]string, error) {
	tr := telemetry.Track("store.delete_assets")
	defer tr.Finish()

	var removed []string
	var staleKeys []string
	for _, gid := range globalIDs {
		k := keys.GenDescriptorKey(gid)
		ok, err := s.exists(k)
		if err != nil {
			return nil, err
		}
		if ok {
			removed = append(removed, gid)
			staleKeys = append(staleKeys, k)
		}
	}
	if len(staleKeys) == 0 {
		return nil, nil
	}
	if err := s.applyBatch(nil, staleKeys); err != nil {
		return nil, err
	}
	logger.Info("assets_deleted", "count", len(removed))
	return removed, nil
}

// MarkAssetState records the remote-authoritative upload state for one
// (asset, rendition) pair.
func (s *Store) MarkAssetState(ctx context.Context, globalID string, quality models.AssetQuality, state models.UploadState) error {
	k := keys.GenDescriptorKey(globalID)
	var d models.AssetDescriptor
	ok, err := s.getJSON(k, &d)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn("mark_state_missing_descriptor", "asset", globalID)
		return nil
	}
	if d.UploadStateByQuality == nil {
		d.UploadStateByQuality = make(map[models.AssetQuality]models.UploadState, len(models.Qualities))
	}
	d.UploadStateByQuality[quality] = state
	d.UploadState = d.CombinedState()
	return s.setJSON(k, d)
}

// UnshareAsset drops one recipient from the asset's sharing info and the
// matching share graph edge.
func (s *Store) UnshareAsset(ctx context.Context, globalID, userID string) error {
	k := keys.GenDescriptorKey(globalID)
	var d models.AssetDescriptor
	ok, err := s.getJSON(k, &d)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	delete(d.SharingInfo.SharedWithUserIdentifiersInGroup, userID)
	puts := map[string]any{k: d}
	dels := []string{keys.GenGraphEdgeKey(userID, globalID)}
	return s.applyBatch(puts, dels)
}
