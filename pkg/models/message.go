package models

import "time"

// InteractionAnchor identifies which namespace an interaction belongs to:
// a share group or a conversation thread.
type InteractionAnchor string

const (
	AnchorGroup  InteractionAnchor = "group"
	AnchorThread InteractionAnchor = "thread"
)

// Message is one encrypted text message scoped to an anchor. Messages are
// an append-only log; identity for dedup purposes is InteractionID alone.
type Message struct {
	InteractionID                  string    `json:"interaction_id"`
	SenderUserIdentifier           string    `json:"sender"`
	InReplyToAssetGlobalIdentifier string    `json:"in_reply_to_asset,omitempty"`
	InReplyToInteractionID         string    `json:"in_reply_to,omitempty"`
	EncryptedMessage               string    `json:"encrypted_message"`
	CreatedAt                      time.Time `json:"created_at"`
}

// Reaction is one reaction scoped to an anchor. Reactions are toggle state:
// identity is the (sender, reply target, type) tuple, not a single id, so
// multiple reaction types from one sender on one target coexist.
type Reaction struct {
	InteractionID                  string    `json:"interaction_id,omitempty"`
	SenderUserIdentifier           string    `json:"sender"`
	InReplyToAssetGlobalIdentifier string    `json:"in_reply_to_asset,omitempty"`
	InReplyToInteractionID         string    `json:"in_reply_to,omitempty"`
	ReactionType                   string    `json:"reaction_type"`
	AddedAt                        time.Time `json:"added_at"`
}

// Identity returns the composite identity tuple used for reaction dedup.
func (r Reaction) Identity() ReactionIdentity {
	return ReactionIdentity{
		Sender:         r.SenderUserIdentifier,
		InReplyToAsset: r.InReplyToAssetGlobalIdentifier,
		InReplyTo:      r.InReplyToInteractionID,
		ReactionType:   r.ReactionType,
	}
}

// ReactionIdentity is the comparable dedup key of a reaction.
type ReactionIdentity struct {
	Sender         string
	InReplyToAsset string
	InReplyTo      string
	ReactionType   string
}

// RecipientEncryptionDetails is the opaque E2EE key material scoped to one
// (anchor, recipient) pair. Once set for an anchor+recipient it is
// immutable: the secret does not rotate. This package never opens the
// blobs; they are stored and returned verbatim.
type RecipientEncryptionDetails struct {
	RecipientUserIdentifier string `json:"recipient"`
	EphemeralPublicKey      string `json:"ephemeral_public_key"`
	EncryptedSecret         string `json:"encrypted_secret"`
	SecretPublicSignature   string `json:"secret_public_signature"`
	SenderPublicSignature   string `json:"sender_public_signature"`
}

// InteractionsGroup is the page of interactions returned for one anchor,
// together with the E2EE details the recipient needs to read them.
type InteractionsGroup struct {
	Messages          []Message                   `json:"messages"`
	Reactions         []Reaction                  `json:"reactions"`
	EncryptionDetails *RecipientEncryptionDetails `json:"encryption_details,omitempty"`
}
