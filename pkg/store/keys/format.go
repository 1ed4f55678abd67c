package keys

const (
	// notation dictionary for key formats:
	// a   = asset descriptor
	// u   = user
	// t   = conversation thread
	// e   = encryption details (per anchor)
	// i   = interaction (m = message, r = reaction)
	// q   = queue (share history)
	// bl  = download blacklist
	// g   = share graph edge
	// dq  = download queue entry
	// All keys are lowercase; segments are separated by ":"
	// <...> = variable segment (e.g. <gid>, <anchor>)

	// primary storage key formats
	DescriptorKey = "a:%s"      // a:<global_id>
	UserKey       = "u:%s"      // u:<user_id>
	ThreadKey     = "t:%s"      // t:<thread_id>
	E2EEKey       = "e:%s:%s"   // e:<anchor>:<anchor_id>
	MessageKey    = "i:%s:%s:m:%s" // i:<anchor>:<anchor_id>:m:<interaction_id>
	ReactionKey   = "i:%s:%s:r:%s" // i:<anchor>:<anchor_id>:r:<fingerprint>
	ShareQueueKey = "q:share:%s" // q:share:<item_id>
	BlacklistKey  = "bl:%s"     // bl:<user_id>
	GraphEdgeKey  = "g:u:%s:a:%s" // g:u:<user_id>:a:<global_id>
	DownloadKey   = "dq:%s:%s"  // dq:<global_id>:<user_id>

	// prefixes for range scans
	DescriptorPrefix = "a:"
	UserPrefix       = "u:"
	ThreadPrefix     = "t:"
	ShareQueuePrefix = "q:share:"
	BlacklistPrefix  = "bl:"
	GraphPrefix      = "g:u:"
	DownloadPrefix   = "dq:"
)
