package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// shareHistoryItemVersion is the current envelope version for persisted
// share-history queue items. Bump when the layout changes and add a
// migration arm in DecodeShareHistoryItem.
const shareHistoryItemVersion = 1

// ShareHistoryItem records one completed share: which asset was shared,
// in which group, by whom and with whom. Items live in the share-history
// queue and are rewritten when recipients are removed on the server.
type ShareHistoryItem struct {
	ItemID          string         `json:"item_id"`
	LocalAssetID    string         `json:"local_asset_id,omitempty"`
	GlobalAssetID   string         `json:"global_asset_id"`
	Versions        []AssetQuality `json:"versions,omitempty"`
	GroupID         string         `json:"group_id"`
	EventOriginator string         `json:"event_originator"`
	SharedWith      []string       `json:"shared_with"`
	IsBackground    bool           `json:"is_background,omitempty"`
	EnqueuedAt      time.Time      `json:"enqueued_at"`
}

// NewShareHistoryItem builds a queue item with a fresh id and the
// current enqueue timestamp.
func NewShareHistoryItem(localAssetID, globalAssetID, groupID, originator string, versions []AssetQuality, sharedWith []string, background bool) ShareHistoryItem {
	return ShareHistoryItem{
		ItemID:          uuid.NewString(),
		LocalAssetID:    localAssetID,
		GlobalAssetID:   globalAssetID,
		Versions:        versions,
		GroupID:         groupID,
		EventOriginator: originator,
		SharedWith:      sharedWith,
		IsBackground:    background,
		EnqueuedAt:      time.Now().UTC(),
	}
}

// WithoutRecipients returns a copy of the item with the given users
// removed from SharedWith. The enqueue timestamp is preserved.
func (it ShareHistoryItem) WithoutRecipients(userIDs []string) ShareHistoryItem {
	drop := make(map[string]struct{}, len(userIDs))
	for _, uid := range userIDs {
		drop[uid] = struct{}{}
	}
	out := it
	out.SharedWith = nil
	for _, uid := range it.SharedWith {
		if _, gone := drop[uid]; !gone {
			out.SharedWith = append(out.SharedWith, uid)
		}
	}
	return out
}

// shareHistoryEnvelope is the versioned on-disk form of a queue item.
type shareHistoryEnvelope struct {
	V    int              `json:"v"`
	Item ShareHistoryItem `json:"item"`
}

// EncodeShareHistoryItem serializes a queue item into its versioned
// envelope.
func EncodeShareHistoryItem(it ShareHistoryItem) ([]byte, error) {
	return json.Marshal(shareHistoryEnvelope{V: shareHistoryItemVersion, Item: it})
}

// DecodeShareHistoryItem parses a versioned queue item envelope.
func DecodeShareHistoryItem(b []byte) (ShareHistoryItem, error) {
	var env shareHistoryEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return ShareHistoryItem{}, err
	}
	if env.V != shareHistoryItemVersion {
		return ShareHistoryItem{}, fmt.Errorf("unsupported share history item version %d", env.V)
	}
	return env.Item, nil
}
