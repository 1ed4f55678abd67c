// Package syncx implements the client-side reconciliation core: it diffs
// the local encrypted-asset cache against the authoritative remote store
// and applies the delta idempotently across descriptors, users, threads,
// interactions and the queues that reference them.
package syncx

import (
	"context"
	"time"

	"framesync/pkg/models"
)

// LocalAssetStore is the descriptor surface of the local cache.
type LocalAssetStore interface {
	GetDescriptors(ctx context.Context, globalIDs []string) ([]models.AssetDescriptor, error)
	DeleteAssets(ctx context.Context, globalIDs []string) ([]string, error)
	MarkAssetState(ctx context.Context, globalID string, quality models.AssetQuality, state models.UploadState) error
	UnshareAsset(ctx context.Context, globalID, userID string) error
}

// LocalUserStore is the user cache surface.
type LocalUserStore interface {
	GetUsers(ctx context.Context, userIDs []string) ([]models.User, error)
	SaveUsers(ctx context.Context, users []models.User) error
	DeleteUsers(ctx context.Context, userIDs []string) error
}

// ShareGraph is the user->asset visibility graph. RemoveUsersFromGraph
// failures are handled by resetting the graph wholesale rather than
// leaving it partially consistent.
type ShareGraph interface {
	AddGraphEdges(ctx context.Context, userID string, assetGlobalIDs []string) error
	RemoveUsersFromGraph(ctx context.Context, userIDs []string) error
	ResetGraph(ctx context.Context) error
}

// Blacklist is the download-authorization blacklist.
type Blacklist interface {
	RetainBlacklistedOnly(ctx context.Context, userIDs []string) ([]string, error)
}

// DownloadQueue holds pending download authorization entries.
type DownloadQueue interface {
	CleanDownloadEntriesNotIn(ctx context.Context, assetGlobalIDs, userIDs []string) error
	CleanDownloadEntriesForAssets(ctx context.Context, assetGlobalIDs []string) error
}

// ShareHistoryQueue holds completed-share records that must be rewritten
// when recipients disappear from the server.
type ShareHistoryQueue interface {
	ShareHistoryItemsForGroups(ctx context.Context, groupIDs []string) (map[string]models.ShareHistoryItem, error)
	RewriteShareHistoryItem(ctx context.Context, item models.ShareHistoryItem) error
	RemoveShareHistoryItems(ctx context.Context, itemIDs []string) error
	RemoveShareHistoryItemsForAssets(ctx context.Context, localAssetIDs []string) ([]string, error)
}

// LocalThreadStore is the conversation-thread cache surface.
type LocalThreadStore interface {
	ListThreads(ctx context.Context) ([]models.ConversationThread, error)
	CreateOrUpdateThread(ctx context.Context, thread models.ConversationThread) error
	UpdateThreadLastUpdated(ctx context.Context, threadID string, at time.Time) error
	DeleteThread(ctx context.Context, threadID string) error
}

// LocalInteractionStore is the message/reaction cache surface. Reads and
// writes for an anchor require its E2EE details; a read before they are
// stored fails with MissingE2EEDetailsError.
type LocalInteractionStore interface {
	RetrieveInteractions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, typ models.InteractionType, before *time.Time, limit int) (models.InteractionsGroup, error)
	AddMessages(ctx context.Context, anchor models.InteractionAnchor, anchorID string, messages []models.Message) ([]models.Message, error)
	AddReactions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, reactions []models.Reaction) ([]models.Reaction, error)
	RemoveReactions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, reactions []models.Reaction) error
	SetEncryptionDetails(ctx context.Context, anchor models.InteractionAnchor, anchorID string, det models.RecipientEncryptionDetails) error
	TopLevelInteractionsSummary(ctx context.Context) (models.InteractionsSummary, error)
}

// LocalStore composes every local surface the engines touch. The
// pebble-backed store satisfies it.
type LocalStore interface {
	LocalAssetStore
	LocalUserStore
	ShareGraph
	Blacklist
	DownloadQueue
	ShareHistoryQueue
	LocalThreadStore
	LocalInteractionStore
}

// RemoteStore is the authoritative server surface. Transport and DTO
// wire shapes live behind it.
type RemoteStore interface {
	GetDescriptors(ctx context.Context) ([]models.AssetDescriptor, error)
	GetUsers(ctx context.Context, userIDs []string) ([]models.User, error)
	ListThreads(ctx context.Context) ([]models.ConversationThread, error)
	RetrieveInteractions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, typ models.InteractionType, before *time.Time, limit int) (models.InteractionsGroup, error)
	TopLevelInteractionsSummary(ctx context.Context) (models.InteractionsSummary, error)
}
