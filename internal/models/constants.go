package models

// FieldLastUpdatedAt is the mandatory logical timestamp field (ms since epoch).
const FieldLastUpdatedAt = "last_updated_at"

// Conflict resolution decisions.
const (
	DecisionNoop           = "noop"
	DecisionAdoptRemote    = "adopt_remote"
	DecisionPropagateLocal = "propagate_local"
)

// Write task outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeQueued    = "queued"
)

const (
	// DefaultRedisKeyPrefix prefixes remote document keys.
	DefaultRedisKeyPrefix = "docsync:"
	// DefaultCacheKey is used when sync.cache_key is not configured.
	DefaultCacheKey = "docsync_document"
)
