package store

import (
	"context"
	"encoding/json"
	"time"

	"framesync/pkg/logger"
	"framesync/pkg/store/keys"
	"framesync/pkg/timeutil"
)

// blacklistThreshold is the failure count at which a user's downloads
// stop being attempted without explicit authorization.
const blacklistThreshold = 3

// BlacklistEntry tracks repeated download failures attributed to one user.
type BlacklistEntry struct {
	UserID       string    `json:"user_id"`
	FailureCount int       `json:"failure_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RecordDownloadFailure bumps the failure counter for a user and reports
// whether the user is now blacklisted.
func (s *Store) RecordDownloadFailure(ctx context.Context, userID string) (bool, error) {
	k := keys.GenBlacklistKey(userID)
	var e BlacklistEntry
	if _, err := s.getJSON(k, &e); err != nil {
		return false, err
	}
	e.UserID = userID
	e.FailureCount++
	e.UpdatedAt = timeutil.Now()
	if err := s.setJSON(k, e); err != nil {
		return false, err
	}
	return e.FailureCount >= blacklistThreshold, nil
}

// IsBlacklisted reports whether downloads from the user are blocked.
func (s *Store) IsBlacklisted(ctx context.Context, userID string) (bool, error) {
	var e BlacklistEntry
	ok, err := s.getJSON(keys.GenBlacklistKey(userID), &e)
	if err != nil {
		return false, err
	}
	return ok && e.FailureCount >= blacklistThreshold, nil
}

// RetainBlacklistedOnly drops every blacklist entry whose user is not in
// userIDs and returns the removed user ids. Users gone from the server
// can be safely forgotten here.
func (s *Store) RetainBlacklistedOnly(ctx context.Context, userIDs []string) ([]string, error) {
	keep := make(map[string]struct{}, len(userIDs))
	for _, uid := range userIDs {
		keep[uid] = struct{}{}
	}
	var staleKeys []string
	var removed []string
	err := s.scanPrefix(ctx, keys.BlacklistPrefix, func(key string, value []byte) error {
		var e BlacklistEntry
		if derr := json.Unmarshal(value, &e); derr != nil {
			logger.Warn("blacklist_decode_failed", "key", key, "error", derr)
			staleKeys = append(staleKeys, key)
			return nil
		}
		if _, ok := keep[e.UserID]; !ok {
			staleKeys = append(staleKeys, key)
			removed = append(removed, e.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(staleKeys) == 0 {
		return nil, nil
	}
	if err := s.applyBatch(nil, staleKeys); err != nil {
		return nil, err
	}
	logger.Info("blacklist_pruned", "removed", len(removed))
	return removed, nil
}
