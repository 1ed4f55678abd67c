package store

import (
	"context"
	"encoding/json"
	"time"

	"framesync/pkg/logger"
	"framesync/pkg/models"
	"framesync/pkg/store/keys"
	"framesync/pkg/telemetry"
)

// ListThreads returns every locally cached conversation thread.
func (s *Store) ListThreads(ctx context.Context) ([]models.ConversationThread, error) {
	tr := telemetry.Track("store.list_threads")
	defer tr.Finish()

	var out []models.ConversationThread
	err := s.scanPrefix(ctx, keys.ThreadPrefix, func(key string, value []byte) error {
		var t models.ConversationThread
		if err := json.Unmarshal(value, &t); err != nil {
			logger.Warn("thread_decode_failed", "key", key, "error", err)
			return nil
		}
		out = append(out, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetThread returns one thread; the second return is false when it is not
// cached.
func (s *Store) GetThread(ctx context.Context, threadID string) (models.ConversationThread, bool, error) {
	var t models.ConversationThread
	ok, err := s.getJSON(keys.GenThreadKey(threadID), &t)
	return t, ok, err
}

// CreateOrUpdateThread mirrors a server thread locally. Membership and
// encryption details are immutable once set: an existing record keeps its
// encryption details when the incoming one carries none.
func (s *Store) CreateOrUpdateThread(ctx context.Context, thread models.ConversationThread) error {
	if err := keys.ValidateID(thread.ThreadID); err != nil {
		return err
	}
	k := keys.GenThreadKey(thread.ThreadID)
	var existing models.ConversationThread
	ok, err := s.getJSON(k, &existing)
	if err != nil {
		return err
	}
	if ok && thread.EncryptionDetails == nil {
		thread.EncryptionDetails = existing.EncryptionDetails
	}
	puts := map[string]any{k: thread}
	if thread.EncryptionDetails != nil {
		puts[keys.GenE2EEKey(models.AnchorThread, thread.ThreadID)] = *thread.EncryptionDetails
	}
	if err := s.applyBatch(puts, nil); err != nil {
		return err
	}
	logger.Info("thread_saved", "thread", thread.ThreadID)
	return nil
}

// UpdateThreadLastUpdated advances the thread's lastUpdatedAt from the
// remote (authoritative) clock. The timestamp only moves forward.
func (s *Store) UpdateThreadLastUpdated(ctx context.Context, threadID string, at time.Time) error {
	k := keys.GenThreadKey(threadID)
	var t models.ConversationThread
	ok, err := s.getJSON(k, &t)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if t.LastUpdatedAt != nil && !at.After(*t.LastUpdatedAt) {
		return nil
	}
	t.LastUpdatedAt = &at
	return s.setJSON(k, t)
}

// DeleteThread removes a thread along with its interactions and
// encryption details.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.deletePrefix(ctx, keys.MessagePrefix(models.AnchorThread, threadID)); err != nil {
		return err
	}
	if _, err := s.deletePrefix(ctx, keys.ReactionPrefix(models.AnchorThread, threadID)); err != nil {
		return err
	}
	dels := []string{
		keys.GenThreadKey(threadID),
		keys.GenE2EEKey(models.AnchorThread, threadID),
	}
	if err := s.applyBatch(nil, dels); err != nil {
		return err
	}
	logger.Info("thread_deleted", "thread", threadID)
	return nil
}
