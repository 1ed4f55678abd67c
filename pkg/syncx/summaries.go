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

// KnownUserFilter reports which of the given user ids are recognized. A
// nil filter recognizes everyone. Threads created by unrecognized users
// are not mirrored locally; their creators are reported through the
// MessagesFromUnauthorizedUsers delegate callback instead.
type KnownUserFilter func(ctx context.Context, userIDs []string) (map[string]bool, error)

// SummarySync reconciles the local thread list and top-level summaries
// against the remote projection. Cheap enough to run on every reconnect.
type SummarySync struct {
	local        LocalStore
	remote       RemoteStore
	interactions *InteractionSync
	clock        clockwork.Clock
	knownUsers   KnownUserFilter
	dispatcher   *Dispatcher
	delegates    []InteractionSyncDelegate
}

func NewSummarySync(local LocalStore, remote RemoteStore, interactions *InteractionSync, knownUsers KnownUserFilter, dispatcher *Dispatcher, delegates ...InteractionSyncDelegate) *SummarySync {
	return &SummarySync{
		local:        local,
		remote:       remote,
		interactions: interactions,
		clock:        clockwork.NewRealClock(),
		knownUsers:   knownUsers,
		dispatcher:   dispatcher,
		delegates:    delegates,
	}
}

// WithClock swaps the clock used for join timeouts.
func (s *SummarySync) WithClock(clock clockwork.Clock) *SummarySync {
	s.clock = clock
	return s
}

// SyncSummaries runs one summary pass: thread set diff, per-thread last
// message merge and per-group first message and reaction merge. The
// three fan-outs are independent and run concurrently behind one join.
func (s *SummarySync) SyncSummaries(ctx context.Context) error {
	tr := telemetry.Track("summary_sync")
	defer tr.Finish()

	var (
		remoteSummary, localSummary models.InteractionsSummary
		remoteErr, localErr         error
	)
	err := join(s.clock, joinBudget(2),
		func() { remoteSummary, remoteErr = s.remote.TopLevelInteractionsSummary(ctx) },
		func() { localSummary, localErr = s.local.TopLevelInteractionsSummary(ctx) },
	)
	if err != nil {
		return errors.Wrap(err, "summary fetch")
	}
	if remoteErr != nil {
		return errors.Wrap(remoteErr, "remote summary")
	}
	if localErr != nil {
		return errors.Wrap(localErr, "local summary")
	}
	tr.Mark("fetched")

	n := len(remoteSummary.SummaryByThreadID) + len(remoteSummary.SummaryByGroupID)
	var threadErr, msgErr, groupErr error
	err = join(s.clock, joinBudget(n),
		func() { threadErr = s.applyThreadDiff(ctx, remoteSummary, localSummary) },
		func() { msgErr = s.mergeThreadMessages(ctx, remoteSummary) },
		func() { groupErr = s.mergeGroupSummaries(ctx, remoteSummary) },
	)
	if err != nil {
		return errors.Wrap(err, "summary apply")
	}
	tr.Mark("applied")
	for _, e := range []error{threadErr, msgErr, groupErr} {
		if e != nil {
			return e
		}
	}
	logger.Info("summary_sync_done",
		"remote_threads", len(remoteSummary.SummaryByThreadID),
		"remote_groups", len(remoteSummary.SummaryByGroupID))
	return nil
}

// applyThreadDiff creates threads the server has and we lack, deletes
// threads the server dropped, and moves lastUpdatedAt forward on the
// rest. Membership and encryption details are never overwritten.
func (s *SummarySync) applyThreadDiff(ctx context.Context, remote, local models.InteractionsSummary) error {
	localThreads := make(map[string]models.ConversationThread, len(local.SummaryByThreadID))
	for tid, sum := range local.SummaryByThreadID {
		localThreads[tid] = sum.Thread
	}

	var missingLocally []string
	for tid := range remote.SummaryByThreadID {
		if _, ok := localThreads[tid]; !ok {
			missingLocally = append(missingLocally, tid)
		}
	}
	sort.Strings(missingLocally)

	var extraLocally []string
	for tid := range localThreads {
		if _, ok := remote.SummaryByThreadID[tid]; !ok {
			extraLocally = append(extraLocally, tid)
		}
	}
	sort.Strings(extraLocally)

	for tid, sum := range remote.SummaryByThreadID {
		if _, ok := localThreads[tid]; !ok {
			continue
		}
		if sum.Thread.LastUpdatedAt == nil {
			continue
		}
		if err := s.local.UpdateThreadLastUpdated(ctx, tid, *sum.Thread.LastUpdatedAt); err != nil {
			logger.Warn("thread_timestamp_update_failed", "thread", tid, "error", err.Error())
		}
	}

	known, err := s.resolveCreators(ctx, remote, missingLocally)
	if err != nil {
		return err
	}
	var unauthorized []string
	for _, tid := range missingLocally {
		thread := remote.SummaryByThreadID[tid].Thread
		if creator := thread.CreatorPublicIdentifier; creator != "" && !known[creator] {
			unauthorized = appendUnique(unauthorized, creator)
			logger.Warn("thread_from_unknown_creator_skipped", "thread", tid, "creator", creator)
			continue
		}
		if err := s.local.CreateOrUpdateThread(ctx, thread); err != nil {
			logger.Warn("thread_create_failed", "thread", tid, "error", err.Error())
			continue
		}
		metrics.ThreadsSynced.WithLabelValues("created").Inc()
		t := thread
		s.notify(func(d InteractionSyncDelegate) { d.ThreadAdded(t) })
	}
	if len(unauthorized) > 0 {
		sort.Strings(unauthorized)
		users := unauthorized
		s.notify(func(d InteractionSyncDelegate) { d.MessagesFromUnauthorizedUsers(users) })
	}

	for _, tid := range extraLocally {
		if err := s.local.DeleteThread(ctx, tid); err != nil {
			logger.Warn("thread_delete_failed", "thread", tid, "error", err.Error())
			continue
		}
		metrics.ThreadsSynced.WithLabelValues("deleted").Inc()
	}
	if len(extraLocally) > 0 || len(missingLocally) > 0 {
		threads, err := s.local.ListThreads(ctx)
		if err != nil {
			logger.Warn("thread_list_failed", "error", err.Error())
		} else {
			s.notify(func(d InteractionSyncDelegate) { d.ThreadsUpdated(threads) })
		}
	}
	return nil
}

func (s *SummarySync) resolveCreators(ctx context.Context, remote models.InteractionsSummary, threadIDs []string) (map[string]bool, error) {
	if s.knownUsers == nil {
		all := map[string]bool{}
		for _, tid := range threadIDs {
			if c := remote.SummaryByThreadID[tid].Thread.CreatorPublicIdentifier; c != "" {
				all[c] = true
			}
		}
		return all, nil
	}
	var creators []string
	for _, tid := range threadIDs {
		if c := remote.SummaryByThreadID[tid].Thread.CreatorPublicIdentifier; c != "" {
			creators = appendUnique(creators, c)
		}
	}
	if len(creators) == 0 {
		return map[string]bool{}, nil
	}
	known, err := s.knownUsers(ctx, creators)
	if err != nil {
		return nil, errors.Wrap(err, "creator lookup")
	}
	return known, nil
}

// mergeThreadMessages folds each thread summary's last message into the
// local store. Duplicate interaction ids are no-ops.
func (s *SummarySync) mergeThreadMessages(ctx context.Context, remote models.InteractionsSummary) error {
	var firstErr error
	for tid, sum := range remote.SummaryByThreadID {
		if sum.LastEncryptedMessage == nil {
			continue
		}
		err := s.interactions.mergeSummaryMessage(ctx, models.AnchorThread, tid, *sum.LastEncryptedMessage, sum.Thread.EncryptionDetails)
		if err != nil {
			logger.Warn("thread_summary_merge_failed", "thread", tid, "error", err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// mergeGroupSummaries folds each group summary's first message and its
// full reaction set into the local store.
func (s *SummarySync) mergeGroupSummaries(ctx context.Context, remote models.InteractionsSummary) error {
	var firstErr error
	for gid, sum := range remote.SummaryByGroupID {
		if sum.FirstEncryptedMessage != nil {
			err := s.interactions.mergeSummaryMessage(ctx, models.AnchorGroup, gid, *sum.FirstEncryptedMessage, nil)
			if err != nil {
				if models.IsMissingE2EEDetails(err) {
					logger.Debug("group_message_merge_deferred", "group", gid)
				} else {
					logger.Warn("group_summary_merge_failed", "group", gid, "error", err.Error())
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
			}
		}
		if len(sum.Reactions) > 0 {
			localGroup, err := s.local.RetrieveInteractions(ctx, models.AnchorGroup, gid, models.InteractionReaction, nil, 0)
			if err != nil {
				if models.IsMissingE2EEDetails(err) {
					// Summaries carry no group encryption details, so
					// there is nothing to bootstrap from here. The full
					// interaction sync for this group will.
					logger.Debug("group_reaction_merge_deferred", "group", gid)
					continue
				}
				logger.Warn("group_reaction_read_failed", "group", gid, "error", err.Error())
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			inserted, removed, err := s.interactions.mergeReactions(ctx, models.AnchorGroup, gid, localGroup.Reactions, sum.Reactions)
			if err != nil {
				logger.Warn("group_reaction_merge_failed", "group", gid, "error", err.Error())
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if inserted > 0 || removed > 0 {
				gid := gid
				s.notify(func(d InteractionSyncDelegate) { d.ReactionsChanged(models.AnchorGroup, gid) })
			}
		}
	}
	return firstErr
}

func (s *SummarySync) notify(fn func(InteractionSyncDelegate)) {
	for _, d := range s.delegates {
		d := d
		s.dispatcher.Notify(func() { fn(d) })
	}
}
