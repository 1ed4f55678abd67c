package models

import "time"

// ConversationThread mirrors one server-side conversation thread. The
// local copy is a cache: membership, name and encryption details are
// authoritative on the remote side and immutable once set locally;
// LastUpdatedAt only ever moves forward.
type ConversationThread struct {
	ThreadID                 string                      `json:"thread_id"`
	Name                     string                      `json:"name,omitempty"`
	CreatorPublicIdentifier  string                      `json:"creator,omitempty"`
	MembersPublicIdentifiers []string                    `json:"members"`
	LastUpdatedAt            *time.Time                  `json:"last_updated_at,omitempty"`
	EncryptionDetails        *RecipientEncryptionDetails `json:"encryption_details,omitempty"`
}

// ThreadSummary is the lightweight projection of one thread used to detect
// structural changes without pulling full interaction history.
type ThreadSummary struct {
	Thread               ConversationThread `json:"thread"`
	LastEncryptedMessage *Message           `json:"last_encrypted_message,omitempty"`
}

// GroupSummary is the lightweight projection of one share group.
type GroupSummary struct {
	Reactions             []Reaction `json:"reactions,omitempty"`
	FirstEncryptedMessage *Message   `json:"first_encrypted_message,omitempty"`
}

// InteractionsSummary is the top-level cheap projection of all threads and
// groups visible to this user.
type InteractionsSummary struct {
	SummaryByThreadID map[string]ThreadSummary `json:"summary_by_thread_id,omitempty"`
	SummaryByGroupID  map[string]GroupSummary  `json:"summary_by_group_id,omitempty"`
}

// User is one server-known user referenced by descriptors or threads.
type User struct {
	Identifier      string `json:"identifier"`
	Name            string `json:"name,omitempty"`
	PublicKey       string `json:"public_key,omitempty"`
	PublicSignature string `json:"public_signature,omitempty"`
}
