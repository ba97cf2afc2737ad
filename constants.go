package gatewire

// Gateway close codes sent by the remote service. The classification of a
// code decides whether the next connection attempts a resume, falls back to
// a fresh identify, or halts the shard entirely.
const (
	CloseUnknownError         = 4000
	CloseUnknownOpcode        = 4001
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthenticationFailed = 4004
	CloseAlreadyAuthenticated = 4005
	CloseInvalidSequence      = 4007
	CloseRateLimited          = 4008
	CloseSessionTimedOut      = 4009
	CloseInvalidShard         = 4010
	CloseShardingRequired     = 4011
	CloseInvalidAPIVersion    = 4012
	CloseInvalidIntents       = 4013
	CloseDisallowedIntents    = 4014
)

// Well-known dispatch event types handled by the connection layer itself.
// All other event types are relayed verbatim to subscribers.
const (
	EventReady   = "READY"
	EventResumed = "RESUMED"
)

// REST request/response headers.
const (
	HeaderAuditReason        = "X-Audit-Log-Reason"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset-After"
	HeaderRateLimitBucket    = "X-RateLimit-Bucket"
	HeaderRateLimitGlobal    = "X-RateLimit-Global"
	HeaderRetryAfter         = "Retry-After"
)
