package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"framesync/pkg/logger"
	"framesync/pkg/models"
	"framesync/pkg/store/keys"
	"framesync/pkg/telemetry"
)

// GetEncryptionDetails returns the E2EE details stored for one anchor. A
// missing record yields MissingE2EEDetailsError so callers can trigger the
// bootstrap path.
func (s *Store) GetEncryptionDetails(ctx context.Context, anchor models.InteractionAnchor, anchorID string) (models.RecipientEncryptionDetails, error) {
	var det models.RecipientEncryptionDetails
	ok, err := s.getJSON(keys.GenE2EEKey(anchor, anchorID), &det)
	if err != nil {
		return det, err
	}
	if !ok {
		return det, &models.MissingE2EEDetailsError{Anchor: anchor, AnchorID: anchorID}
	}
	return det, nil
}

// SetEncryptionDetails persists the E2EE details for one anchor. Details
// are immutable once present: a second write for the same anchor is a
// no-op, never an overwrite.
func (s *Store) SetEncryptionDetails(ctx context.Context, anchor models.InteractionAnchor, anchorID string, det models.RecipientEncryptionDetails) error {
	k := keys.GenE2EEKey(anchor, anchorID)
	ok, err := s.exists(k)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := s.setJSON(k, det); err != nil {
		return err
	}
	logger.Info("e2ee_details_stored", "anchor", anchor, "anchor_id", anchorID)
	return nil
}

// RetrieveInteractions returns the interactions stored for one anchor,
// messages newest-first and capped at limit (0 = no cap). Requires the
// anchor's E2EE details to be present.
func (s *Store) RetrieveInteractions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, typ models.InteractionType, before *time.Time, limit int) (models.InteractionsGroup, error) {
	tr := telemetry.Track("store.retrieve_interactions")
	defer tr.Finish()

	var out models.InteractionsGroup
	det, err := s.GetEncryptionDetails(ctx, anchor, anchorID)
	if err != nil {
		return out, err
	}
	out.EncryptionDetails = &det

	if typ == models.InteractionAny || typ == models.InteractionMessage {
		var msgs []models.Message
		err := s.scanPrefix(ctx, keys.MessagePrefix(anchor, anchorID), func(key string, value []byte) error {
			var m models.Message
			if err := json.Unmarshal(value, &m); err != nil {
				logger.Warn("message_decode_failed", "key", key, "error", err)
				return nil
			}
			if before != nil && !m.CreatedAt.Before(*before) {
				return nil
			}
			msgs = append(msgs, m)
			return nil
		})
		if err != nil {
			return out, err
		}
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
		if limit > 0 && len(msgs) > limit {
			msgs = msgs[:limit]
		}
		out.Messages = msgs
	}

	if typ == models.InteractionAny || typ == models.InteractionReaction {
		var rs []models.Reaction
		err := s.scanPrefix(ctx, keys.ReactionPrefix(anchor, anchorID), func(key string, value []byte) error {
			var r models.Reaction
			if err := json.Unmarshal(value, &r); err != nil {
				logger.Warn("reaction_decode_failed", "key", key, "error", err)
				return nil
			}
			rs = append(rs, r)
			return nil
		})
		if err != nil {
			return out, err
		}
		sort.Slice(rs, func(i, j int) bool { return rs[i].AddedAt.After(rs[j].AddedAt) })
		if limit > 0 && len(rs) > limit {
			rs = rs[:limit]
		}
		out.Reactions = rs
	}

	return out, nil
}

// AddMessages inserts messages for one anchor, deduplicating by
// interaction id, and returns only the ones actually inserted. Writes are
// refused until the anchor's E2EE details are stored.
func (s *Store) AddMessages(ctx context.Context, anchor models.InteractionAnchor, anchorID string, messages []models.Message) ([]models.Message, error) {
	if _, err := s.GetEncryptionDetails(ctx, anchor, anchorID); err != nil {
		return nil, err
	}
	puts := make(map[string]any)
	var inserted []models.Message
	for _, m := range messages {
		if m.InteractionID == "" {
			logger.Warn("message_without_interaction_id_skipped", "anchor", anchor, "anchor_id", anchorID)
			continue
		}
		k := keys.GenMessageKey(anchor, anchorID, m.InteractionID)
		ok, err := s.exists(k)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		puts[k] = m
		inserted = append(inserted, m)
	}
	if len(puts) == 0 {
		return nil, nil
	}
	if err := s.applyBatch(puts, nil); err != nil {
		return nil, err
	}
	return inserted, nil
}

// AddReactions inserts reactions for one anchor, deduplicating by the
// composite identity tuple, and returns the ones actually inserted.
func (s *Store) AddReactions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, reactions []models.Reaction) ([]models.Reaction, error) {
	if _, err := s.GetEncryptionDetails(ctx, anchor, anchorID); err != nil {
		return nil, err
	}
	puts := make(map[string]any)
	var inserted []models.Reaction
	for _, r := range reactions {
		k := keys.GenReactionKey(anchor, anchorID, r)
		ok, err := s.exists(k)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		puts[k] = r
		inserted = append(inserted, r)
	}
	if len(puts) == 0 {
		return nil, nil
	}
	if err := s.applyBatch(puts, nil); err != nil {
		return nil, err
	}
	return inserted, nil
}

// RemoveReactions deletes reactions by composite identity in one batch.
func (s *Store) RemoveReactions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, reactions []models.Reaction) error {
	dels := make([]string, 0, len(reactions))
	for _, r := range reactions {
		dels = append(dels, keys.GenReactionKey(anchor, anchorID, r))
	}
	return s.applyBatch(nil, dels)
}

// TopLevelInteractionsSummary projects the local cache into the cheap
// thread/group summary shape used for structural change detection.
func (s *Store) TopLevelInteractionsSummary(ctx context.Context) (models.InteractionsSummary, error) {
	tr := telemetry.Track("store.interactions_summary")
	defer tr.Finish()

	sum := models.InteractionsSummary{
		SummaryByThreadID: make(map[string]models.ThreadSummary),
		SummaryByGroupID:  make(map[string]models.GroupSummary),
	}

	threads, err := s.ListThreads(ctx)
	if err != nil {
		return sum, err
	}
	for _, t := range threads {
		ts := models.ThreadSummary{Thread: t}
		group, err := s.RetrieveInteractions(ctx, models.AnchorThread, t.ThreadID, models.InteractionMessage, nil, 1)
		if err == nil && len(group.Messages) > 0 {
			last := group.Messages[0]
			ts.LastEncryptedMessage = &last
		}
		sum.SummaryByThreadID[t.ThreadID] = ts
	}

	// group summaries are keyed off stored group E2EE details
	groupE2EE := keys.E2EEPrefix(models.AnchorGroup)
	err = s.scanPrefix(ctx, groupE2EE, func(key string, _ []byte) error {
		groupID, perr := keys.TrimPrefix(key, groupE2EE)
		if perr != nil {
			return nil
		}
		group, rerr := s.RetrieveInteractions(ctx, models.AnchorGroup, groupID, models.InteractionAny, nil, 0)
		if rerr != nil {
			logger.Warn("group_summary_failed", "group", groupID, "error", rerr)
			return nil
		}
		gs := models.GroupSummary{Reactions: group.Reactions}
		if n := len(group.Messages); n > 0 {
			first := group.Messages[n-1]
			gs.FirstEncryptedMessage = &first
		}
		sum.SummaryByGroupID[groupID] = gs
		return nil
	})
	if err != nil {
		return sum, err
	}
	return sum, nil
}
