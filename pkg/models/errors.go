package models

import (
	"errors"
	"fmt"
)

// ErrNotReady means the local store has not been initialized yet. Always
// fatal to the call; the caller retries later.
var ErrNotReady = errors.New("local store not ready")

// ErrTimedOut means a concurrent fan-out exceeded its budget. The pass
// fails; writes already committed by completed branches stand.
var ErrTimedOut = errors.New("sync operation timed out")

// MissingE2EEDetailsError is returned by local interaction reads when the
// encryption details for an anchor were never stored. It is expected and
// recoverable: it triggers the bootstrap-from-remote path, not a failure.
type MissingE2EEDetailsError struct {
	Anchor   InteractionAnchor
	AnchorID string
}

func (e *MissingE2EEDetailsError) Error() string {
	return fmt.Sprintf("no encryption details stored for %s %s", e.Anchor, e.AnchorID)
}

// IsMissingE2EEDetails reports whether err is a missing-details condition.
func IsMissingE2EEDetails(err error) bool {
	var m *MissingE2EEDetailsError
	return errors.As(err, &m)
}
