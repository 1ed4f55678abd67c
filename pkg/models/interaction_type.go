package models

// InteractionType filters interaction retrieval. The empty value selects
// both kinds.
type InteractionType string

const (
	InteractionAny      InteractionType = ""
	InteractionMessage  InteractionType = "message"
	InteractionReaction InteractionType = "reaction"
)
