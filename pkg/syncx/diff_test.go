package syncx

// Objectives:
// - locally-only descriptors are removed unless they are pending uploads of our own
//   or failed uploads from any sharer
// - per-quality upload states compare after surrogate normalization, server wins
// - recipients absent from the server's group membership are flagged for removal
// - malformed descriptors never contribute to the diff
// - a descriptor present and identical on both sides produces no work

import (
	"testing"
	"time"

	"framesync/pkg/models"
)

func testDescriptor(gid, sharedBy string, states map[models.AssetQuality]models.UploadState, usersInGroup map[string]string) models.AssetDescriptor {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	groups := map[string]models.GroupInfo{}
	for _, g := range usersInGroup {
		groups[g] = models.GroupInfo{Name: "group " + g, CreatedAt: &created}
	}
	return models.AssetDescriptor{
		GlobalIdentifier:     gid,
		LocalIdentifier:      "local-" + gid,
		CreationDate:         &created,
		UploadState:          models.UploadNotStarted,
		UploadStateByQuality: states,
		SharingInfo: models.SharingInfo{
			SharedByUserIdentifier:           sharedBy,
			SharedWithUserIdentifiersInGroup: usersInGroup,
			GroupInfoByID:                    groups,
		},
	}
}

func allCompleted() map[models.AssetQuality]models.UploadState {
	return map[models.AssetQuality]models.UploadState{
		models.QualityLow:  models.UploadCompleted,
		models.QualityMid:  models.UploadCompleted,
		models.QualityHigh: models.UploadCompleted,
	}
}

func TestGenerateDiffRemovals(t *testing.T) {
	const self = "self"

	t.Run("LocalOnlyAssetFromOtherUserIsRemoved", func(t *testing.T) {
		local := []models.AssetDescriptor{
			testDescriptor("a1", "other", allCompleted(), map[string]string{self: "g1"}),
		}
		diff := GenerateDiff(nil, local, []string{"other"}, []string{"other"}, self)
		if len(diff.AssetsRemovedOnServer) != 1 || diff.AssetsRemovedOnServer[0].GlobalIdentifier != "a1" {
			t.Fatalf("expected a1 removed, got %+v", diff.AssetsRemovedOnServer)
		}
	})

	t.Run("OwnPendingUploadIsKept", func(t *testing.T) {
		states := allCompleted()
		states[models.QualityLow] = models.UploadNotStarted
		local := []models.AssetDescriptor{
			testDescriptor("a2", self, states, map[string]string{"u1": "g1"}),
		}
		diff := GenerateDiff(nil, local, nil, []string{"u1"}, self)
		if len(diff.AssetsRemovedOnServer) != 0 {
			t.Fatalf("pending upload must not be removed, got %+v", diff.AssetsRemovedOnServer)
		}
	})

	t.Run("OwnCompletedUploadMissingOnServerIsRemoved", func(t *testing.T) {
		local := []models.AssetDescriptor{
			testDescriptor("a3", self, allCompleted(), map[string]string{"u1": "g1"}),
		}
		diff := GenerateDiff(nil, local, nil, []string{"u1"}, self)
		if len(diff.AssetsRemovedOnServer) != 1 {
			t.Fatalf("completed upload gone from server must be removed, got %+v", diff.AssetsRemovedOnServer)
		}
	})

	t.Run("FailedUploadFromAnyUserIsKept", func(t *testing.T) {
		// the server deletes failed uploads on its side; the local
		// record is the only copy left, whoever shared it
		states := allCompleted()
		states[models.QualityLow] = models.UploadFailed
		local := []models.AssetDescriptor{
			testDescriptor("a5", "other", states, map[string]string{self: "g1"}),
		}
		diff := GenerateDiff(nil, local, []string{"other"}, []string{"other"}, self)
		if len(diff.AssetsRemovedOnServer) != 0 {
			t.Fatalf("failed upload must not be removed, got %+v", diff.AssetsRemovedOnServer)
		}
	})

	t.Run("MalformedDescriptorIsSkipped", func(t *testing.T) {
		bad := testDescriptor("a4", "other", allCompleted(), map[string]string{"u1": "g1"})
		bad.SharingInfo.GroupInfoByID = nil // group reference without group info
		diff := GenerateDiff(nil, []models.AssetDescriptor{bad}, nil, nil, self)
		if !diff.Empty() {
			t.Fatalf("malformed descriptor must not produce work, got %+v", diff)
		}
	})
}

func TestGenerateDiffStateChanges(t *testing.T) {
	const self = "self"
	users := map[string]string{"u1": "g1"}

	t.Run("ServerStateWins", func(t *testing.T) {
		localStates := allCompleted()
		remoteStates := allCompleted()
		remoteStates[models.QualityLow] = models.UploadFailed
		local := []models.AssetDescriptor{testDescriptor("a1", self, localStates, users)}
		remote := []models.AssetDescriptor{testDescriptor("a1", self, remoteStates, users)}

		diff := GenerateDiff(remote, local, []string{"u1"}, []string{"u1"}, self)
		if len(diff.StateDifferentOnServer) != 1 {
			t.Fatalf("expected 1 state change, got %+v", diff.StateDifferentOnServer)
		}
		vs := diff.StateDifferentOnServer[0]
		if vs.Quality != models.QualityLow || vs.NewUploadState != models.UploadFailed {
			t.Fatalf("expected low->failed, got %+v", vs)
		}
	})

	t.Run("SurrogateNormalizationSuppressesFalseDeltas", func(t *testing.T) {
		// One side recorded the hi upload, the other recorded mid. After
		// normalization both read completed for the pair.
		localStates := map[models.AssetQuality]models.UploadState{
			models.QualityLow:  models.UploadCompleted,
			models.QualityMid:  models.UploadNotStarted,
			models.QualityHigh: models.UploadCompleted,
		}
		remoteStates := map[models.AssetQuality]models.UploadState{
			models.QualityLow:  models.UploadCompleted,
			models.QualityMid:  models.UploadCompleted,
			models.QualityHigh: models.UploadNotStarted,
		}
		local := []models.AssetDescriptor{testDescriptor("a1", self, localStates, users)}
		remote := []models.AssetDescriptor{testDescriptor("a1", self, remoteStates, users)}

		diff := GenerateDiff(remote, local, []string{"u1"}, []string{"u1"}, self)
		if len(diff.StateDifferentOnServer) != 0 {
			t.Fatalf("surrogate pair must not diff, got %+v", diff.StateDifferentOnServer)
		}
	})

	t.Run("IdenticalDescriptorsProduceNoWork", func(t *testing.T) {
		d := testDescriptor("a1", self, allCompleted(), users)
		diff := GenerateDiff([]models.AssetDescriptor{d}, []models.AssetDescriptor{d}, []string{"u1"}, []string{"u1"}, self)
		if !diff.Empty() {
			t.Fatalf("identical sides must produce an empty diff, got %+v", diff)
		}
	})
}

func TestGenerateDiffGroupRemovals(t *testing.T) {
	const self = "self"

	t.Run("RecipientDroppedFromGroup", func(t *testing.T) {
		local := []models.AssetDescriptor{
			testDescriptor("a1", self, allCompleted(), map[string]string{"u1": "g1", "u2": "g1"}),
		}
		remote := []models.AssetDescriptor{
			testDescriptor("a1", self, allCompleted(), map[string]string{"u1": "g1"}),
		}
		diff := GenerateDiff(remote, local, []string{"u1"}, []string{"u1", "u2"}, self)
		got := diff.UserIDsToRemoveFromGroup["g1"]
		if len(got) != 1 || got[0] != "u2" {
			t.Fatalf("expected u2 removed from g1, got %+v", diff.UserIDsToRemoveFromGroup)
		}
	})

	t.Run("SelfNeverRemoved", func(t *testing.T) {
		local := []models.AssetDescriptor{
			testDescriptor("a1", "other", allCompleted(), map[string]string{self: "g1", "u1": "g1"}),
		}
		remote := []models.AssetDescriptor{
			testDescriptor("a1", "other", allCompleted(), map[string]string{self: "g1", "u1": "g1"}),
		}
		diff := GenerateDiff(remote, local, []string{"other", "u1"}, []string{"other", "u1"}, self)
		if diff.UserIDsToRemoveFromGroup != nil {
			t.Fatalf("no removals expected, got %+v", diff.UserIDsToRemoveFromGroup)
		}
	})

	t.Run("UnknownUserRemovedEvenIfStillInGroup", func(t *testing.T) {
		// u2 is still listed in the server's group but no longer resolves
		// to a server-known user.
		shared := map[string]string{"u1": "g1", "u2": "g1"}
		local := []models.AssetDescriptor{testDescriptor("a1", self, allCompleted(), shared)}
		remote := []models.AssetDescriptor{testDescriptor("a1", self, allCompleted(), shared)}
		diff := GenerateDiff(remote, local, []string{"u1"}, []string{"u1", "u2"}, self)
		got := diff.UserIDsToRemoveFromGroup["g1"]
		if len(got) != 1 || got[0] != "u2" {
			t.Fatalf("expected u2 removed, got %+v", diff.UserIDsToRemoveFromGroup)
		}
	})
}
