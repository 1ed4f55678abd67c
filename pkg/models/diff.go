package models

// AssetVersionState records a per-rendition upload state disagreement
// between the local cache and the remote store; NewUploadState carries the
// remote (authoritative) value.
type AssetVersionState struct {
	GlobalIdentifier string
	LocalIdentifier  string
	Quality          AssetQuality
	NewUploadState   UploadState
}

// AssetDescriptorsDiff is the delta between the local descriptor set and
// the remote one. It is computed fresh for each reconciliation pass,
// consumed immediately and never persisted.
//
// The diff only prunes: descriptors present on remote but absent locally
// are created by the download pipeline, not here.
type AssetDescriptorsDiff struct {
	// AssetsRemovedOnServer holds local descriptors whose assets no longer
	// exist on the remote store and are safe to delete locally.
	AssetsRemovedOnServer []AssetDescriptor
	// StateDifferentOnServer holds (asset, rendition) pairs whose upload
	// state disagrees with the remote reading.
	StateDifferentOnServer []AssetVersionState
	// UserIDsToRemoveFromGroup maps group id -> users present in the local
	// sharing info for that group but absent from the remote one.
	UserIDsToRemoveFromGroup map[string][]string
}

// Empty reports whether the diff carries no work.
func (d AssetDescriptorsDiff) Empty() bool {
	return len(d.AssetsRemovedOnServer) == 0 &&
		len(d.StateDifferentOnServer) == 0 &&
		len(d.UserIDsToRemoveFromGroup) == 0
}
