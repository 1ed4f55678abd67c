package syncx

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"

	"framesync/pkg/logger"
	"framesync/pkg/metrics"
	"framesync/pkg/models"
	"framesync/pkg/telemetry"
)

// Page limits for remote message fetches. Reactions are always fetched
// in full: a reaction that fell off a page window is indistinguishable
// from a retracted one, so a page-limited reaction fetch would delete
// live reactions.
const (
	GroupInteractionPageLimit  = 50
	ThreadInteractionPageLimit = 20
)

// InteractionSync reconciles messages and reactions for one anchor at a
// time. Messages merge additively; reactions converge to the remote set.
type InteractionSync struct {
	local      LocalStore
	remote     RemoteStore
	clock      clockwork.Clock
	workers    int
	dispatcher *Dispatcher
	delegates  []InteractionSyncDelegate
}

func NewInteractionSync(local LocalStore, remote RemoteStore, workers int, dispatcher *Dispatcher, delegates ...InteractionSyncDelegate) *InteractionSync {
	if workers < 1 {
		workers = 1
	}
	return &InteractionSync{
		local:      local,
		remote:     remote,
		clock:      clockwork.NewRealClock(),
		workers:    workers,
		dispatcher: dispatcher,
		delegates:  delegates,
	}
}

// WithClock swaps the clock used for join timeouts.
func (s *InteractionSync) WithClock(clock clockwork.Clock) *InteractionSync {
	s.clock = clock
	return s
}

func pageLimitFor(anchor models.InteractionAnchor) int {
	if anchor == models.AnchorThread {
		return ThreadInteractionPageLimit
	}
	return GroupInteractionPageLimit
}

// SyncAnchor reconciles one anchor's interactions against the remote
// store. Missing local E2EE details are bootstrapped from the remote
// response before any local write.
func (s *InteractionSync) SyncAnchor(ctx context.Context, anchor models.InteractionAnchor, anchorID string) error {
	tr := telemetry.Track("interaction_sync")
	defer tr.Finish()

	// Messages page; reactions never do. A reaction outside the page
	// window would be deleted as retracted, so the reaction fetch asks
	// for the full set.
	var (
		remoteMsgs, remoteReactions, localGroup models.InteractionsGroup
		msgErr, reactionErr, localErr           error
	)
	err := join(s.clock, joinBudget(3),
		func() {
			remoteMsgs, msgErr = s.remote.RetrieveInteractions(ctx, anchor, anchorID, models.InteractionMessage, nil, pageLimitFor(anchor))
		},
		func() {
			remoteReactions, reactionErr = s.remote.RetrieveInteractions(ctx, anchor, anchorID, models.InteractionReaction, nil, 0)
		},
		func() {
			localGroup, localErr = s.local.RetrieveInteractions(ctx, anchor, anchorID, models.InteractionAny, nil, 0)
		},
	)
	if err != nil {
		return errors.Wrapf(err, "interaction fetch %s/%s", anchor, anchorID)
	}
	if msgErr != nil {
		return errors.Wrapf(msgErr, "remote messages %s/%s", anchor, anchorID)
	}
	if reactionErr != nil {
		return errors.Wrapf(reactionErr, "remote reactions %s/%s", anchor, anchorID)
	}
	remoteDetails := remoteMsgs.EncryptionDetails
	if remoteDetails == nil {
		remoteDetails = remoteReactions.EncryptionDetails
	}

	bootstrapNeeded := false
	if localErr != nil {
		if !models.IsMissingE2EEDetails(localErr) {
			return errors.Wrapf(localErr, "local interactions %s/%s", anchor, anchorID)
		}
		bootstrapNeeded = true
		localGroup = models.InteractionsGroup{}
	}
	if bootstrapNeeded {
		if remoteDetails == nil {
			return errors.Newf("no encryption details for %s %s in remote response", anchor, anchorID)
		}
		if err := s.local.SetEncryptionDetails(ctx, anchor, anchorID, *remoteDetails); err != nil {
			return errors.Wrapf(err, "bootstrap encryption details %s/%s", anchor, anchorID)
		}
		logger.Info("e2ee_details_bootstrapped", "anchor", string(anchor), "anchor_id", anchorID)
	}
	tr.Mark("fetched")

	added, err := s.mergeMessages(ctx, anchor, anchorID, localGroup.Messages, remoteMsgs.Messages)
	if err != nil {
		return err
	}
	insertedReactions, removedReactions, err := s.mergeReactions(ctx, anchor, anchorID, localGroup.Reactions, remoteReactions.Reactions)
	if err != nil {
		return err
	}
	tr.Mark("merged")

	if len(added) > 0 {
		msgs := added
		s.notify(func(d InteractionSyncDelegate) { d.MessagesReceived(anchor, anchorID, msgs) })
	}
	if insertedReactions > 0 || removedReactions > 0 {
		s.notify(func(d InteractionSyncDelegate) { d.ReactionsChanged(anchor, anchorID) })
	}
	return nil
}

// SyncGroupsFromDescriptors walks the remote descriptor set and syncs
// interactions for every share group that includes userID, fanning out
// across the worker pool.
func (s *InteractionSync) SyncGroupsFromDescriptors(ctx context.Context, remoteDescriptors []models.AssetDescriptor, userID string) error {
	seen := map[string]struct{}{}
	for _, d := range remoteDescriptors {
		gid, ok := d.SharingInfo.SharedWithUserIdentifiersInGroup[userID]
		if !ok {
			continue
		}
		seen[gid] = struct{}{}
	}
	groupIDs := make([]string, 0, len(seen))
	for gid := range seen {
		groupIDs = append(groupIDs, gid)
	}
	sort.Strings(groupIDs)
	logger.Debug("group_interaction_sync", "groups", len(groupIDs))
	return forEachLimit(ctx, s.workers, groupIDs, func(ctx context.Context, gid string) error {
		return s.SyncAnchor(ctx, models.AnchorGroup, gid)
	})
}

// SyncThreads reconciles interactions for every locally known thread,
// fanning out across the worker pool.
func (s *InteractionSync) SyncThreads(ctx context.Context) error {
	threads, err := s.local.ListThreads(ctx)
	if err != nil {
		return errors.Wrap(err, "list threads")
	}
	threadIDs := make([]string, 0, len(threads))
	for _, t := range threads {
		threadIDs = append(threadIDs, t.ThreadID)
	}
	sort.Strings(threadIDs)
	logger.Debug("thread_interaction_sync", "threads", len(threadIDs))
	return forEachLimit(ctx, s.workers, threadIDs, func(ctx context.Context, tid string) error {
		return s.SyncAnchor(ctx, models.AnchorThread, tid)
	})
}

// mergeMessages inserts remote messages absent locally. Messages are an
// append-only log: absence from a remote page never implies deletion.
func (s *InteractionSync) mergeMessages(ctx context.Context, anchor models.InteractionAnchor, anchorID string, local, remote []models.Message) ([]models.Message, error) {
	if len(remote) == 0 {
		return nil, nil
	}
	have := make(map[string]struct{}, len(local))
	for _, m := range local {
		have[m.InteractionID] = struct{}{}
	}
	var missing []models.Message
	for _, m := range remote {
		if _, ok := have[m.InteractionID]; !ok {
			missing = append(missing, m)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	added, err := s.local.AddMessages(ctx, anchor, anchorID, missing)
	if err != nil {
		return nil, errors.Wrapf(err, "add messages %s/%s", anchor, anchorID)
	}
	metrics.MessagesMerged.WithLabelValues(string(anchor)).Add(float64(len(added)))
	return added, nil
}

// mergeReactions converges the local reaction set to the remote one:
// remote-only reactions are inserted, local-only ones are deleted.
func (s *InteractionSync) mergeReactions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, local, remote []models.Reaction) (inserted, removed int, err error) {
	remoteByID := make(map[models.ReactionIdentity]models.Reaction, len(remote))
	for _, r := range remote {
		remoteByID[r.Identity()] = r
	}
	localByID := make(map[models.ReactionIdentity]models.Reaction, len(local))
	for _, r := range local {
		localByID[r.Identity()] = r
	}

	var toAdd []models.Reaction
	for id, r := range remoteByID {
		if _, ok := localByID[id]; !ok {
			toAdd = append(toAdd, r)
		}
	}
	var toRemove []models.Reaction
	for id, r := range localByID {
		if _, ok := remoteByID[id]; !ok {
			toRemove = append(toRemove, r)
		}
	}

	if len(toAdd) > 0 {
		added, err := s.local.AddReactions(ctx, anchor, anchorID, toAdd)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "add reactions %s/%s", anchor, anchorID)
		}
		inserted = len(added)
		metrics.ReactionsMerged.WithLabelValues(string(anchor), "add").Add(float64(inserted))
	}
	if len(toRemove) > 0 {
		if err := s.local.RemoveReactions(ctx, anchor, anchorID, toRemove); err != nil {
			return 0, 0, errors.Wrapf(err, "remove reactions %s/%s", anchor, anchorID)
		}
		removed = len(toRemove)
		metrics.ReactionsMerged.WithLabelValues(string(anchor), "remove").Add(float64(removed))
	}
	return inserted, removed, nil
}

// mergeSummaryMessage inserts a single summary message for an anchor,
// bootstrapping E2EE details when the local store has none and det is
// available. Duplicate interaction ids are no-ops.
func (s *InteractionSync) mergeSummaryMessage(ctx context.Context, anchor models.InteractionAnchor, anchorID string, msg models.Message, det *models.RecipientEncryptionDetails) error {
	added, err := s.local.AddMessages(ctx, anchor, anchorID, []models.Message{msg})
	if err != nil {
		if models.IsMissingE2EEDetails(err) && det != nil {
			if err := s.local.SetEncryptionDetails(ctx, anchor, anchorID, *det); err != nil {
				return errors.Wrapf(err, "bootstrap encryption details %s/%s", anchor, anchorID)
			}
			added, err = s.local.AddMessages(ctx, anchor, anchorID, []models.Message{msg})
		}
		if err != nil {
			return errors.Wrapf(err, "add summary message %s/%s", anchor, anchorID)
		}
	}
	if len(added) > 0 {
		metrics.MessagesMerged.WithLabelValues(string(anchor)).Add(float64(len(added)))
		s.notify(func(d InteractionSyncDelegate) { d.MessagesReceived(anchor, anchorID, added) })
	}
	return nil
}

func (s *InteractionSync) notify(fn func(InteractionSyncDelegate)) {
	for _, d := range s.delegates {
		d := d
		s.dispatcher.Notify(func() { fn(d) })
	}
}
