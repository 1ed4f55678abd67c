package models

import "time"

// UploadState is the backup state of one asset version on the remote store.
type UploadState string

const (
	UploadNotStarted UploadState = "not_started"
	UploadCompleted  UploadState = "completed"
	UploadFailed     UploadState = "failed"
)

// AssetQuality identifies one of the encoded renditions of an asset.
type AssetQuality string

const (
	QualityLow  AssetQuality = "low"
	QualityMid  AssetQuality = "mid"
	QualityHigh AssetQuality = "hi"
)

// Qualities lists all renditions in ascending fidelity order.
var Qualities = []AssetQuality{QualityLow, QualityMid, QualityHigh}

// GroupInfo describes one share event (a "group").
type GroupInfo struct {
	Name      string     `json:"name,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// SharingInfo carries the ownership and sharing metadata of one asset.
// SharedWithUserIdentifiersInGroup maps recipient user id -> group id;
// every group id referenced there must have an entry in GroupInfoByID.
type SharingInfo struct {
	SharedByUserIdentifier           string               `json:"shared_by"`
	SharedWithUserIdentifiersInGroup map[string]string    `json:"shared_with,omitempty"`
	GroupInfoByID                    map[string]GroupInfo `json:"group_info,omitempty"`
}

// GroupIDs returns the set of group ids referenced by the sharing info.
func (s SharingInfo) GroupIDs() map[string]struct{} {
	out := make(map[string]struct{}, len(s.GroupInfoByID))
	for _, gid := range s.SharedWithUserIdentifiersInGroup {
		out[gid] = struct{}{}
	}
	return out
}

// UserIDsInGroup returns the recipients mapped to the given group id.
func (s SharingInfo) UserIDsInGroup(groupID string) []string {
	var out []string
	for uid, gid := range s.SharedWithUserIdentifiersInGroup {
		if gid == groupID {
			out = append(out, uid)
		}
	}
	return out
}

// Complete reports whether every referenced group id has matching group info.
// Descriptors failing this check are treated as suspect cache entries.
func (s SharingInfo) Complete() bool {
	if s.SharedWithUserIdentifiersInGroup == nil {
		return false
	}
	for _, gid := range s.SharedWithUserIdentifiersInGroup {
		if _, ok := s.GroupInfoByID[gid]; !ok {
			return false
		}
	}
	return true
}

// AssetDescriptor is the metadata record describing one asset's identity,
// ownership, sharing and upload state. The raw bytes live elsewhere.
type AssetDescriptor struct {
	GlobalIdentifier string      `json:"global_id"`
	LocalIdentifier  string      `json:"local_id,omitempty"`
	CreationDate     *time.Time  `json:"created_at,omitempty"`
	UploadState      UploadState `json:"upload_state"`
	// UploadStateByQuality carries the raw per-rendition states as reported
	// by the store; UploadState holds the collapsed value.
	UploadStateByQuality map[AssetQuality]UploadState `json:"upload_state_by_quality,omitempty"`
	SharingInfo          SharingInfo                  `json:"sharing_info"`
}

// StateForQuality returns the per-rendition state, falling back to the
// collapsed state when the rendition breakdown is absent.
func (d AssetDescriptor) StateForQuality(q AssetQuality) UploadState {
	if st, ok := d.UploadStateByQuality[q]; ok {
		return st
	}
	return d.UploadState
}

// CombinedUploadState collapses the three per-rendition states into one.
//
// The mid and hi renditions are interchangeable on the wire (hi acts as a
// surrogate for mid), so a completed hi forces mid to completed and vice
// versa. When exactly one of the pair reads failed, the other's reading
// wins. The collapsed value is completed only when every rendition
// completed, not_started only when none started, failed when any failure
// survives normalization, and not_started for the remaining in-flight mix.
func CombinedUploadState(low, mid, hi UploadState) UploadState {
	if mid == UploadCompleted || hi == UploadCompleted {
		mid, hi = UploadCompleted, UploadCompleted
	} else if mid == UploadFailed && hi != UploadFailed {
		mid = hi
	} else if hi == UploadFailed && mid != UploadFailed {
		hi = mid
	}

	if low == UploadCompleted && mid == UploadCompleted && hi == UploadCompleted {
		return UploadCompleted
	}
	if low == UploadNotStarted && mid == UploadNotStarted && hi == UploadNotStarted {
		return UploadNotStarted
	}
	if low == UploadFailed || mid == UploadFailed || hi == UploadFailed {
		return UploadFailed
	}
	return UploadNotStarted
}

// CombinedState collapses the descriptor's per-rendition states.
func (d AssetDescriptor) CombinedState() UploadState {
	if len(d.UploadStateByQuality) == 0 {
		return d.UploadState
	}
	return CombinedUploadState(
		d.StateForQuality(QualityLow),
		d.StateForQuality(QualityMid),
		d.StateForQuality(QualityHigh),
	)
}
