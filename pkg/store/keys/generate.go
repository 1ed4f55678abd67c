package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"framesync/pkg/models"
)

func GenDescriptorKey(globalID string) string {
	return fmt.Sprintf(DescriptorKey, globalID)
}

func GenUserKey(userID string) string {
	return fmt.Sprintf(UserKey, userID)
}

func GenThreadKey(threadID string) string {
	return fmt.Sprintf(ThreadKey, threadID)
}

func GenE2EEKey(anchor models.InteractionAnchor, anchorID string) string {
	return fmt.Sprintf(E2EEKey, anchor, anchorID)
}

func GenMessageKey(anchor models.InteractionAnchor, anchorID, interactionID string) string {
	return fmt.Sprintf(MessageKey, anchor, anchorID, interactionID)
}

// GenReactionKey keys a reaction by its composite identity fingerprint,
// since reactions carry no single stable id.
func GenReactionKey(anchor models.InteractionAnchor, anchorID string, r models.Reaction) string {
	return fmt.Sprintf(ReactionKey, anchor, anchorID, ReactionFingerprint(r))
}

func GenShareQueueKey(itemID string) string {
	return fmt.Sprintf(ShareQueueKey, itemID)
}

func GenBlacklistKey(userID string) string {
	return fmt.Sprintf(BlacklistKey, userID)
}

func GenGraphEdgeKey(userID, globalID string) string {
	return fmt.Sprintf(GraphEdgeKey, userID, globalID)
}

func GenDownloadKey(globalID, userID string) string {
	return fmt.Sprintf(DownloadKey, globalID, userID)
}

// prefix builders for anchored range scans

func MessagePrefix(anchor models.InteractionAnchor, anchorID string) string {
	return fmt.Sprintf("i:%s:%s:m:", anchor, anchorID)
}

func ReactionPrefix(anchor models.InteractionAnchor, anchorID string) string {
	return fmt.Sprintf("i:%s:%s:r:", anchor, anchorID)
}

func E2EEPrefix(anchor models.InteractionAnchor) string {
	return fmt.Sprintf("e:%s:", anchor)
}

func GraphUserPrefix(userID string) string {
	return fmt.Sprintf("g:u:%s:a:", userID)
}

func DownloadAssetPrefix(globalID string) string {
	return fmt.Sprintf("dq:%s:", globalID)
}

// ReactionFingerprint hashes the reaction identity tuple into a fixed,
// key-safe segment. Identity fields may contain ":" so they cannot be
// embedded in the key verbatim.
func ReactionFingerprint(r models.Reaction) string {
	id := r.Identity()
	joined := strings.Join([]string{id.Sender, id.InReplyTo, id.InReplyToAsset, id.ReactionType}, "\x00")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:16])
}
