package syncx

// Objectives:
// - a full pass deletes server-removed assets and their queue references
// - stale users are purged from the cache and the share graph
// - group recipient removals rewrite or delete share-history items and unshare assets
// - a second pass over the reconciled state is a no-op
// - remote fetch failures abort the pass before any local write

import (
	"context"
	"errors"
	"testing"

	"framesync/pkg/models"
)

func TestReconcilerRun(t *testing.T) {
	const self = "self"

	t.Run("RemovesServerDeletedAssets", func(t *testing.T) {
		local := newFakeLocal()
		remote := newFakeRemote()

		kept := testDescriptor("a1", "friend", allCompleted(), map[string]string{self: "g1"})
		gone := testDescriptor("a2", "stranger", allCompleted(), map[string]string{self: "g2"})
		local.descriptors["a1"] = kept
		local.descriptors["a2"] = gone
		local.users["friend"] = models.User{Identifier: "friend"}
		local.users["stranger"] = models.User{Identifier: "stranger"}
		local.blacklist["stranger"] = struct{}{}
		item := models.NewShareHistoryItem("local-a2", "a2", "g2", "stranger", nil, []string{self}, false)
		local.queue[item.ItemID] = item

		remote.descriptors = []models.AssetDescriptor{kept}
		remote.users["friend"] = models.User{Identifier: "friend", Name: "Friend"}

		dispatcher := NewDispatcher()
		rec := &recordingAssetDelegate{}
		r := NewReconciler(local, remote, self, dispatcher, rec)

		diff, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		if len(diff.AssetsRemovedOnServer) != 1 || diff.AssetsRemovedOnServer[0].GlobalIdentifier != "a2" {
			t.Fatalf("expected a2 in removal set, got %+v", diff.AssetsRemovedOnServer)
		}
		if _, ok := local.descriptors["a2"]; ok {
			t.Fatal("a2 should be deleted from the cache")
		}
		if _, ok := local.descriptors["a1"]; !ok {
			t.Fatal("a1 should survive")
		}
		if _, ok := local.users["stranger"]; ok {
			t.Fatal("stranger should be purged from the user cache")
		}
		if _, ok := local.blacklist["stranger"]; ok {
			t.Fatal("stranger should be dropped from the blacklist")
		}
		if len(local.queue) != 0 {
			t.Fatalf("queue items for removed assets should be gone, got %d", len(local.queue))
		}
		if local.users["friend"].Name != "Friend" {
			t.Fatal("user cache should be refreshed with the verified remote copy")
		}

		dispatcher.Close()
		if len(rec.verified) != 1 || rec.verified[0].Identifier != "friend" {
			t.Fatalf("UsersVerified = %+v", rec.verified)
		}
		if len(rec.removedDescs) != 1 || rec.removedDescs[0].GlobalIdentifier != "a2" {
			t.Fatalf("AssetsRemoved = %+v", rec.removedDescs)
		}
	})

	t.Run("SecondPassIsNoop", func(t *testing.T) {
		local := newFakeLocal()
		remote := newFakeRemote()

		d := testDescriptor("a1", "friend", allCompleted(), map[string]string{self: "g1"})
		local.descriptors["a1"] = d
		remote.descriptors = []models.AssetDescriptor{d}
		remote.users["friend"] = models.User{Identifier: "friend"}

		dispatcher := NewDispatcher()
		defer dispatcher.Close()
		r := NewReconciler(local, remote, self, dispatcher)

		if _, err := r.Run(context.Background()); err != nil {
			t.Fatalf("first pass failed: %v", err)
		}
		diff, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("second pass failed: %v", err)
		}
		if !diff.Empty() {
			t.Fatalf("second pass should be empty, got %+v", diff)
		}
	})

	t.Run("GroupRemovalRewritesQueueAndUnshares", func(t *testing.T) {
		local := newFakeLocal()
		remote := newFakeRemote()

		localDesc := testDescriptor("a1", self, allCompleted(), map[string]string{"u1": "g1", "u2": "g1"})
		remoteDesc := testDescriptor("a1", self, allCompleted(), map[string]string{"u1": "g1"})
		local.descriptors["a1"] = localDesc
		local.users["u1"] = models.User{Identifier: "u1"}
		local.users["u2"] = models.User{Identifier: "u2"}
		remote.descriptors = []models.AssetDescriptor{remoteDesc}
		remote.users["u1"] = models.User{Identifier: "u1"}

		rewritten := models.NewShareHistoryItem("local-a1", "a1", "g1", self, nil, []string{"u1", "u2"}, false)
		emptied := models.NewShareHistoryItem("local-a1", "a1", "g1", self, nil, []string{"u2"}, true)
		local.queue[rewritten.ItemID] = rewritten
		local.queue[emptied.ItemID] = emptied

		dispatcher := NewDispatcher()
		rec := &recordingAssetDelegate{}
		r := NewReconciler(local, remote, self, dispatcher, rec)

		diff, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		if got := diff.UserIDsToRemoveFromGroup["g1"]; len(got) != 1 || got[0] != "u2" {
			t.Fatalf("expected u2 removed from g1, got %+v", diff.UserIDsToRemoveFromGroup)
		}

		it, ok := local.queue[rewritten.ItemID]
		if !ok {
			t.Fatal("item with a surviving recipient should be rewritten, not removed")
		}
		if len(it.SharedWith) != 1 || it.SharedWith[0] != "u1" {
			t.Fatalf("rewritten recipients = %v", it.SharedWith)
		}
		if _, ok := local.queue[emptied.ItemID]; ok {
			t.Fatal("item with no surviving recipients should be removed")
		}
		if _, ok := local.users["u2"]; ok {
			t.Fatal("u2 should be purged from the user cache")
		}

		found := false
		for _, pair := range local.unshared {
			if pair[0] == "a1" && pair[1] == "u2" {
				found = true
			}
		}
		if !found {
			t.Fatalf("u2 should be unshared from a1, got %v", local.unshared)
		}

		dispatcher.Close()
		if len(rec.changedItems) != 1 || rec.changedItems[0] != rewritten.ItemID {
			t.Fatalf("QueueItemsChanged = %v", rec.changedItems)
		}
		if len(rec.removedItems) != 1 || rec.removedItems[0] != emptied.ItemID {
			t.Fatalf("QueueItemsRemoved = %v", rec.removedItems)
		}
	})

	t.Run("GraphResetWhenRemovalFails", func(t *testing.T) {
		local := newFakeLocal()
		remote := newFakeRemote()

		local.descriptors["a1"] = testDescriptor("a1", "ghost", allCompleted(), map[string]string{self: "g1"})
		local.users["ghost"] = models.User{Identifier: "ghost"}
		local.graphUsers["ghost"] = []string{"a1"}
		local.graphRemoveErr = errors.New("graph corrupt")

		dispatcher := NewDispatcher()
		defer dispatcher.Close()
		r := NewReconciler(local, remote, self, dispatcher)

		if _, err := r.Run(context.Background()); err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		if !local.graphReset {
			t.Fatal("graph removal failure should trigger a wholesale reset")
		}
	})

	t.Run("RemoteFetchFailureAbortsPass", func(t *testing.T) {
		local := newFakeLocal()
		remote := newFakeRemote()

		local.descriptors["a1"] = testDescriptor("a1", "friend", allCompleted(), map[string]string{self: "g1"})
		remote.descriptorsErr = errors.New("network down")

		dispatcher := NewDispatcher()
		defer dispatcher.Close()
		r := NewReconciler(local, remote, self, dispatcher)

		if _, err := r.Run(context.Background()); err == nil {
			t.Fatal("expected an error when the remote fetch fails")
		}
		if _, ok := local.descriptors["a1"]; !ok {
			t.Fatal("nothing should be deleted on an aborted pass")
		}
	})
}
