package syncx

import (
	"sort"

	"framesync/pkg/logger"
	"framesync/pkg/models"
)

// GenerateDiff compares the local descriptor cache against the server's
// view and returns the prune set. The diff only prunes: descriptors the
// server has and the cache lacks are the download pipeline's job, not
// ours. Pure, no I/O.
func GenerateDiff(remote, local []models.AssetDescriptor, remoteUserIDs, localUserIDs []string, selfUserID string) models.AssetDescriptorsDiff {
	diff := models.AssetDescriptorsDiff{
		UserIDsToRemoveFromGroup: map[string][]string{},
	}

	remoteByID := make(map[string]models.AssetDescriptor, len(remote))
	for _, d := range remote {
		remoteByID[d.GlobalIdentifier] = d
	}
	remoteUsers := make(map[string]struct{}, len(remoteUserIDs))
	for _, id := range remoteUserIDs {
		remoteUsers[id] = struct{}{}
	}

	for _, ld := range local {
		if !ld.SharingInfo.Complete() {
			logger.Warn("descriptor_diff_skipping_malformed", "gid", ld.GlobalIdentifier)
			continue
		}

		rd, onServer := remoteByID[ld.GlobalIdentifier]
		if !onServer {
			// Locally encrypted assets the server has not seen yet are
			// not removals: deleting them would lose the user's
			// encryption secret before the upload lands. Failed uploads
			// are kept regardless of sharer; the server deletes those
			// on its side and the local record is the only copy left.
			combined := ld.CombinedState()
			if combined == models.UploadFailed ||
				(combined == models.UploadNotStarted && ld.SharingInfo.SharedByUserIdentifier == selfUserID) {
				continue
			}
			diff.AssetsRemovedOnServer = append(diff.AssetsRemovedOnServer, ld)
			continue
		}

		if rd.SharingInfo.Complete() {
			localStates := normalizedQualityStates(ld)
			remoteStates := normalizedQualityStates(rd)
			for _, q := range models.Qualities {
				if localStates[q] != remoteStates[q] {
					diff.StateDifferentOnServer = append(diff.StateDifferentOnServer, models.AssetVersionState{
						GlobalIdentifier: ld.GlobalIdentifier,
						LocalIdentifier:  ld.LocalIdentifier,
						Quality:          q,
						NewUploadState:   remoteStates[q],
					})
				}
			}
		}

		for gid := range ld.SharingInfo.GroupIDs() {
			serverUsersInGroup := make(map[string]struct{})
			if rd.SharingInfo.Complete() {
				for _, uid := range rd.SharingInfo.UserIDsInGroup(gid) {
					serverUsersInGroup[uid] = struct{}{}
				}
			}
			for _, uid := range ld.SharingInfo.UserIDsInGroup(gid) {
				if uid == selfUserID {
					continue
				}
				_, inGroup := serverUsersInGroup[uid]
				_, known := remoteUsers[uid]
				if inGroup && known {
					continue
				}
				diff.UserIDsToRemoveFromGroup[gid] = appendUnique(diff.UserIDsToRemoveFromGroup[gid], uid)
			}
		}
	}

	if len(diff.UserIDsToRemoveFromGroup) == 0 {
		diff.UserIDsToRemoveFromGroup = nil
	}
	for gid := range diff.UserIDsToRemoveFromGroup {
		sort.Strings(diff.UserIDsToRemoveFromGroup[gid])
	}
	return diff
}

// normalizedQualityStates resolves per-quality upload states through the
// same surrogate rules CombinedUploadState applies, so a cache that only
// recorded the hi-resolution upload does not spuriously disagree with a
// server that recorded mid.
func normalizedQualityStates(d models.AssetDescriptor) map[models.AssetQuality]models.UploadState {
	low := d.StateForQuality(models.QualityLow)
	mid := d.StateForQuality(models.QualityMid)
	hi := d.StateForQuality(models.QualityHigh)
	if mid == models.UploadCompleted || hi == models.UploadCompleted {
		mid, hi = models.UploadCompleted, models.UploadCompleted
	} else if mid == models.UploadFailed && hi != models.UploadFailed {
		mid = hi
	} else if hi == models.UploadFailed && mid != models.UploadFailed {
		hi = mid
	}
	return map[models.AssetQuality]models.UploadState{
		models.QualityLow:  low,
		models.QualityMid:  mid,
		models.QualityHigh: hi,
	}
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}
