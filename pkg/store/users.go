package store

import (
	"context"
	"encoding/json"

	"framesync/pkg/logger"
	"framesync/pkg/models"
	"framesync/pkg/store/keys"
)

// GetUsers returns the cached users with the given ids, or every cached
// user when ids is nil. Unknown ids are silently absent from the result.
func (s *Store) GetUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	if userIDs != nil {
		out := make([]models.User, 0, len(userIDs))
		for _, uid := range userIDs {
			var u models.User
			ok, err := s.getJSON(keys.GenUserKey(uid), &u)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, u)
			}
		}
		return out, nil
	}

	var out []models.User
	err := s.scanPrefix(ctx, keys.UserPrefix, func(key string, value []byte) error {
		var u models.User
		if err := json.Unmarshal(value, &u); err != nil {
			logger.Warn("user_decode_failed", "key", key, "error", err)
			return nil
		}
		out = append(out, u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveUsers caches users in one batch.
func (s *Store) SaveUsers(ctx context.Context, users []models.User) error {
	puts := make(map[string]any, len(users))
	for _, u := range users {
		if err := keys.ValidateID(u.Identifier); err != nil {
			return err
		}
		puts[keys.GenUserKey(u.Identifier)] = u
	}
	return s.applyBatch(puts, nil)
}

// DeleteUsers removes the cached user records for the given ids.
func (s *Store) DeleteUsers(ctx context.Context, userIDs []string) error {
	dels := make([]string, 0, len(userIDs))
	for _, uid := range userIDs {
		dels = append(dels, keys.GenUserKey(uid))
	}
	return s.applyBatch(nil, dels)
}
