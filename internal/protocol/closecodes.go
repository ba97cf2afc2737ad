package protocol

import "github.com/luciancaetano/gatewire"

// CloseAction tells a session how to recover from a connection close.
type CloseAction int

const (
	// ActionResume reconnects and attempts to resume the saved session.
	ActionResume CloseAction = iota

	// ActionIdentify reconnects with a fresh identify; the saved session
	// id and sequence must be discarded first.
	ActionIdentify

	// ActionFatal halts the shard. No further reconnect attempts.
	ActionFatal
)

// ClassifyClose maps a transport close code to its recovery action.
// Unknown codes default to a resume attempt; the server rejects the resume
// if the session is actually gone, which falls back to identify anyway.
func ClassifyClose(code int) CloseAction {
	switch code {
	case gatewire.CloseNotAuthenticated,
		gatewire.CloseAlreadyAuthenticated,
		gatewire.CloseInvalidSequence,
		gatewire.CloseRateLimited,
		gatewire.CloseSessionTimedOut:
		return ActionIdentify
	case gatewire.CloseAuthenticationFailed,
		gatewire.CloseInvalidShard,
		gatewire.CloseShardingRequired,
		gatewire.CloseInvalidAPIVersion,
		gatewire.CloseInvalidIntents,
		gatewire.CloseDisallowedIntents:
		return ActionFatal
	default:
		return ActionResume
	}
}

// FatalCloseIsAuth reports whether a fatal close code is a credential
// rejection, which callers surface as ErrAuthenticationFailed.
func FatalCloseIsAuth(code int) bool {
	return code == gatewire.CloseAuthenticationFailed
}
