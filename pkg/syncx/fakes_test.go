package syncx

import (
	"context"
	"sort"
	"sync"
	"time"

	"framesync/pkg/models"
)

// fakeLocal is an in-memory LocalStore for engine tests.
type fakeLocal struct {
	mu sync.Mutex

	descriptors map[string]models.AssetDescriptor
	users       map[string]models.User
	threads     map[string]models.ConversationThread
	e2ee        map[string]models.RecipientEncryptionDetails
	messages    map[string][]models.Message
	reactions   map[string][]models.Reaction
	queue       map[string]models.ShareHistoryItem
	blacklist   map[string]struct{}
	graphUsers  map[string][]string

	graphRemoveErr error
	graphReset     bool
	unshared       [][2]string
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{
		descriptors: map[string]models.AssetDescriptor{},
		users:       map[string]models.User{},
		threads:     map[string]models.ConversationThread{},
		e2ee:        map[string]models.RecipientEncryptionDetails{},
		messages:    map[string][]models.Message{},
		reactions:   map[string][]models.Reaction{},
		queue:       map[string]models.ShareHistoryItem{},
		blacklist:   map[string]struct{}{},
		graphUsers:  map[string][]string{},
	}
}

func anchorKey(anchor models.InteractionAnchor, anchorID string) string {
	return string(anchor) + "/" + anchorID
}

func (f *fakeLocal) GetDescriptors(ctx context.Context, ids []string) ([]models.AssetDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AssetDescriptor
	if ids == nil {
		for _, d := range f.descriptors {
			out = append(out, d)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].GlobalIdentifier < out[j].GlobalIdentifier })
		return out, nil
	}
	for _, id := range ids {
		if d, ok := f.descriptors[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeLocal) DeleteAssets(ctx context.Context, ids []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed []string
	for _, id := range ids {
		if _, ok := f.descriptors[id]; ok {
			delete(f.descriptors, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (f *fakeLocal) MarkAssetState(ctx context.Context, gid string, q models.AssetQuality, st models.UploadState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.descriptors[gid]
	if !ok {
		return nil
	}
	if d.UploadStateByQuality == nil {
		d.UploadStateByQuality = map[models.AssetQuality]models.UploadState{}
	}
	d.UploadStateByQuality[q] = st
	f.descriptors[gid] = d
	return nil
}

func (f *fakeLocal) UnshareAsset(ctx context.Context, gid, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unshared = append(f.unshared, [2]string{gid, uid})
	if d, ok := f.descriptors[gid]; ok && d.SharingInfo.SharedWithUserIdentifiersInGroup != nil {
		delete(d.SharingInfo.SharedWithUserIdentifiersInGroup, uid)
		f.descriptors[gid] = d
	}
	return nil
}

func (f *fakeLocal) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	if ids == nil {
		for _, u := range f.users {
			out = append(out, u)
		}
		return out, nil
	}
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeLocal) SaveUsers(ctx context.Context, users []models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range users {
		f.users[u.Identifier] = u
	}
	return nil
}

func (f *fakeLocal) DeleteUsers(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.users, id)
	}
	return nil
}

func (f *fakeLocal) AddGraphEdges(ctx context.Context, userID string, assetIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graphUsers[userID] = append(f.graphUsers[userID], assetIDs...)
	return nil
}

func (f *fakeLocal) RemoveUsersFromGraph(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.graphRemoveErr != nil {
		return f.graphRemoveErr
	}
	for _, id := range ids {
		delete(f.graphUsers, id)
	}
	return nil
}

func (f *fakeLocal) ResetGraph(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graphUsers = map[string][]string{}
	f.graphReset = true
	return nil
}

func (f *fakeLocal) RetainBlacklistedOnly(ctx context.Context, userIDs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keep := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		keep[id] = struct{}{}
	}
	var removed []string
	for id := range f.blacklist {
		if _, ok := keep[id]; !ok {
			delete(f.blacklist, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (f *fakeLocal) CleanDownloadEntriesNotIn(ctx context.Context, assetIDs, userIDs []string) error {
	return nil
}

func (f *fakeLocal) CleanDownloadEntriesForAssets(ctx context.Context, assetIDs []string) error {
	return nil
}

func (f *fakeLocal) ShareHistoryItemsForGroups(ctx context.Context, groupIDs []string) (map[string]models.ShareHistoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]struct{}, len(groupIDs))
	for _, gid := range groupIDs {
		want[gid] = struct{}{}
	}
	out := map[string]models.ShareHistoryItem{}
	for id, it := range f.queue {
		if _, ok := want[it.GroupID]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (f *fakeLocal) RewriteShareHistoryItem(ctx context.Context, item models.ShareHistoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[item.ItemID] = item
	return nil
}

func (f *fakeLocal) RemoveShareHistoryItems(ctx context.Context, itemIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range itemIDs {
		delete(f.queue, id)
	}
	return nil
}

func (f *fakeLocal) RemoveShareHistoryItemsForAssets(ctx context.Context, localAssetIDs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]struct{}, len(localAssetIDs))
	for _, id := range localAssetIDs {
		want[id] = struct{}{}
	}
	var removed []string
	for id, it := range f.queue {
		if _, ok := want[it.LocalAssetID]; ok {
			delete(f.queue, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (f *fakeLocal) ListThreads(ctx context.Context) ([]models.ConversationThread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ConversationThread
	for _, t := range f.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out, nil
}

func (f *fakeLocal) CreateOrUpdateThread(ctx context.Context, t models.ConversationThread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[t.ThreadID] = t
	if t.EncryptionDetails != nil {
		k := anchorKey(models.AnchorThread, t.ThreadID)
		if _, ok := f.e2ee[k]; !ok {
			f.e2ee[k] = *t.EncryptionDetails
		}
	}
	return nil
}

func (f *fakeLocal) UpdateThreadLastUpdated(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[id]
	if !ok {
		return nil
	}
	if t.LastUpdatedAt == nil || t.LastUpdatedAt.Before(at) {
		t.LastUpdatedAt = &at
		f.threads[id] = t
	}
	return nil
}

func (f *fakeLocal) DeleteThread(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.threads, id)
	k := anchorKey(models.AnchorThread, id)
	delete(f.e2ee, k)
	delete(f.messages, k)
	delete(f.reactions, k)
	return nil
}

func (f *fakeLocal) RetrieveInteractions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, typ models.InteractionType, before *time.Time, limit int) (models.InteractionsGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := anchorKey(anchor, anchorID)
	det, ok := f.e2ee[k]
	if !ok {
		return models.InteractionsGroup{}, &models.MissingE2EEDetailsError{Anchor: anchor, AnchorID: anchorID}
	}
	out := models.InteractionsGroup{EncryptionDetails: &det}
	if typ == models.InteractionAny || typ == models.InteractionMessage {
		out.Messages = append(out.Messages, f.messages[k]...)
	}
	if typ == models.InteractionAny || typ == models.InteractionReaction {
		out.Reactions = append(out.Reactions, f.reactions[k]...)
	}
	return out, nil
}

func (f *fakeLocal) AddMessages(ctx context.Context, anchor models.InteractionAnchor, anchorID string, msgs []models.Message) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := anchorKey(anchor, anchorID)
	if _, ok := f.e2ee[k]; !ok {
		return nil, &models.MissingE2EEDetailsError{Anchor: anchor, AnchorID: anchorID}
	}
	have := make(map[string]struct{})
	for _, m := range f.messages[k] {
		have[m.InteractionID] = struct{}{}
	}
	var added []models.Message
	for _, m := range msgs {
		if _, ok := have[m.InteractionID]; ok {
			continue
		}
		f.messages[k] = append(f.messages[k], m)
		added = append(added, m)
	}
	return added, nil
}

func (f *fakeLocal) AddReactions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, reactions []models.Reaction) ([]models.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := anchorKey(anchor, anchorID)
	if _, ok := f.e2ee[k]; !ok {
		return nil, &models.MissingE2EEDetailsError{Anchor: anchor, AnchorID: anchorID}
	}
	have := make(map[models.ReactionIdentity]struct{})
	for _, r := range f.reactions[k] {
		have[r.Identity()] = struct{}{}
	}
	var added []models.Reaction
	for _, r := range reactions {
		if _, ok := have[r.Identity()]; ok {
			continue
		}
		f.reactions[k] = append(f.reactions[k], r)
		added = append(added, r)
	}
	return added, nil
}

func (f *fakeLocal) RemoveReactions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, reactions []models.Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := anchorKey(anchor, anchorID)
	drop := make(map[models.ReactionIdentity]struct{})
	for _, r := range reactions {
		drop[r.Identity()] = struct{}{}
	}
	var kept []models.Reaction
	for _, r := range f.reactions[k] {
		if _, gone := drop[r.Identity()]; !gone {
			kept = append(kept, r)
		}
	}
	f.reactions[k] = kept
	return nil
}

func (f *fakeLocal) SetEncryptionDetails(ctx context.Context, anchor models.InteractionAnchor, anchorID string, det models.RecipientEncryptionDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := anchorKey(anchor, anchorID)
	if _, ok := f.e2ee[k]; ok {
		return nil
	}
	f.e2ee[k] = det
	return nil
}

func (f *fakeLocal) TopLevelInteractionsSummary(ctx context.Context) (models.InteractionsSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := models.InteractionsSummary{SummaryByThreadID: map[string]models.ThreadSummary{}}
	for id, t := range f.threads {
		sum := models.ThreadSummary{Thread: t}
		msgs := f.messages[anchorKey(models.AnchorThread, id)]
		if len(msgs) > 0 {
			m := msgs[len(msgs)-1]
			sum.LastEncryptedMessage = &m
		}
		out.SummaryByThreadID[id] = sum
	}
	return out, nil
}

// fakeRemote is a canned-response RemoteStore.
type fakeRemote struct {
	mu sync.Mutex

	descriptors []models.AssetDescriptor
	users       map[string]models.User
	threads     []models.ConversationThread
	interaction map[string]models.InteractionsGroup
	summary     models.InteractionsSummary

	descriptorsErr error
	blockFetch     chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		users:       map[string]models.User{},
		interaction: map[string]models.InteractionsGroup{},
	}
}

func (f *fakeRemote) GetDescriptors(ctx context.Context) ([]models.AssetDescriptor, error) {
	if f.blockFetch != nil {
		<-f.blockFetch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.descriptorsErr != nil {
		return nil, f.descriptorsErr
	}
	return append([]models.AssetDescriptor(nil), f.descriptors...), nil
}

func (f *fakeRemote) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeRemote) ListThreads(ctx context.Context) ([]models.ConversationThread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ConversationThread(nil), f.threads...), nil
}

func (f *fakeRemote) RetrieveInteractions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, typ models.InteractionType, before *time.Time, limit int) (models.InteractionsGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	canned := f.interaction[anchorKey(anchor, anchorID)]
	out := models.InteractionsGroup{EncryptionDetails: canned.EncryptionDetails}
	if typ == models.InteractionAny || typ == models.InteractionMessage {
		msgs := append([]models.Message(nil), canned.Messages...)
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
		if limit > 0 && len(msgs) > limit {
			msgs = msgs[:limit]
		}
		out.Messages = msgs
	}
	if typ == models.InteractionAny || typ == models.InteractionReaction {
		rs := append([]models.Reaction(nil), canned.Reactions...)
		sort.Slice(rs, func(i, j int) bool { return rs[i].AddedAt.After(rs[j].AddedAt) })
		if limit > 0 && len(rs) > limit {
			rs = rs[:limit]
		}
		out.Reactions = rs
	}
	return out, nil
}

func (f *fakeRemote) TopLevelInteractionsSummary(ctx context.Context) (models.InteractionsSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary, nil
}

// recordingAssetDelegate captures asset delegate callbacks.
type recordingAssetDelegate struct {
	mu           sync.Mutex
	verified     []models.User
	sharedAssets []string
	removedDescs []models.AssetDescriptor
	changedItems []string
	removedItems []string
}

func (d *recordingAssetDelegate) UsersVerified(users []models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verified = append(d.verified, users...)
}

func (d *recordingAssetDelegate) AssetsSharedWithUser(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sharedAssets = append(d.sharedAssets, ids...)
}

func (d *recordingAssetDelegate) AssetsRemoved(descs []models.AssetDescriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removedDescs = append(d.removedDescs, descs...)
}

func (d *recordingAssetDelegate) QueueItemsChanged(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changedItems = append(d.changedItems, ids...)
}

func (d *recordingAssetDelegate) QueueItemsRemoved(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removedItems = append(d.removedItems, ids...)
}

// recordingInteractionDelegate captures interaction delegate callbacks.
type recordingInteractionDelegate struct {
	mu               sync.Mutex
	messages         map[string][]models.Message
	reactionsChanged []string
	threadsUpdated   [][]models.ConversationThread
	threadsAdded     []models.ConversationThread
	unauthorized     []string
}

func newRecordingInteractionDelegate() *recordingInteractionDelegate {
	return &recordingInteractionDelegate{messages: map[string][]models.Message{}}
}

func (d *recordingInteractionDelegate) MessagesReceived(anchor models.InteractionAnchor, anchorID string, msgs []models.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := anchorKey(anchor, anchorID)
	d.messages[k] = append(d.messages[k], msgs...)
}

func (d *recordingInteractionDelegate) ReactionsChanged(anchor models.InteractionAnchor, anchorID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reactionsChanged = append(d.reactionsChanged, anchorKey(anchor, anchorID))
}

func (d *recordingInteractionDelegate) ThreadsUpdated(threads []models.ConversationThread) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threadsUpdated = append(d.threadsUpdated, threads)
}

func (d *recordingInteractionDelegate) ThreadAdded(thread models.ConversationThread) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threadsAdded = append(d.threadsAdded, thread)
}

func (d *recordingInteractionDelegate) MessagesFromUnauthorizedUsers(userIDs []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unauthorized = append(d.unauthorized, userIDs...)
}
