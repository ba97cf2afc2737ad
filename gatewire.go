package gatewire

import (
	"context"
	"encoding/json"
	"time"
)

// ShardStatus is the lifecycle state of a single gateway connection.
//
// Transitions are strictly sequential: Idle -> Connecting -> Identifying -> Ready
// for a fresh session, or Connecting -> Resuming -> Ready when a saved session
// is resumed. A dropped connection moves the shard to Reconnecting and back
// into Connecting. Disconnected is terminal and is only entered on explicit
// shutdown or a non-recoverable close code.
type ShardStatus int32

const (
	StatusIdle ShardStatus = iota
	StatusConnecting
	StatusIdentifying
	StatusResuming
	StatusReady
	StatusReconnecting
	StatusDisconnected
)

// String returns a human-readable name for the status.
func (s ShardStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusIdentifying:
		return "identifying"
	case StatusResuming:
		return "resuming"
	case StatusReady:
		return "ready"
	case StatusReconnecting:
		return "reconnecting"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one dispatch payload received on a shard's connection.
//
// Data is the raw wire payload; decoding it into a domain object is the
// responsibility of the resource layer consuming the stream. Events from one
// shard are delivered in the order they arrived on the transport; events from
// different shards carry no relative ordering.
type Event struct {
	// ShardID is the index of the shard that received the payload.
	ShardID int

	// Type is the event-type name from the frame envelope (e.g. "READY").
	Type string

	// Sequence is the event ordinal assigned by the remote service.
	Sequence int64

	// Data is the opaque payload, left undecoded.
	Data json.RawMessage
}

// LifecycleEvent is a shard state-change notification.
//
// Shard recovery is autonomous, so connection failures are delivered as
// events rather than errors: subscribers observe Reconnecting and a later
// Ready without intervening. Err is non-nil only for terminal failures
// (Status == StatusDisconnected) caused by a non-recoverable condition.
type LifecycleEvent struct {
	ShardID int
	Status  ShardStatus

	// CloseCode is the transport close code that triggered the transition,
	// or zero when the transition was not caused by a close.
	CloseCode int

	// Err is set when the shard halted on a fatal condition, such as
	// rejected credentials.
	Err error
}

// Shard is the read-only view of one gateway connection.
type Shard interface {
	// ID returns the shard index.
	ID() int

	// Status returns the current lifecycle state.
	Status() ShardStatus

	// Latency returns the duration between the last heartbeat and its
	// acknowledgment, or zero before the first acknowledged beat.
	Latency() time.Duration

	// SessionID returns the active session identifier, or "" when no
	// session is established.
	SessionID() string

	// Sequence returns the last-seen event ordinal for this shard.
	Sequence() int64
}

// EventSubscription is one subscriber's handle on the merged dispatch
// stream. The channel is closed when the subscription is cancelled or the
// stream shuts down.
type EventSubscription interface {
	C() <-chan Event
	Cancel()
}

// LifecycleSubscription is one subscriber's handle on shard lifecycle
// notifications.
type LifecycleSubscription interface {
	C() <-chan LifecycleEvent
	Cancel()
}

// Dispatcher is the outbound request contract consumed by the resource layer.
//
// Requests mapping to the same rate-limit bucket (method + route template +
// major parameter) execute in submission order; requests in different buckets
// run concurrently, bounded only by the global limiter. A call resolves with
// the response body or fails with *APIError, ErrRetryExhausted or a transport
// error. The context is honored only until the request has been sent; once in
// flight it runs to completion.
type Dispatcher interface {
	Request(ctx context.Context, method, route string, body any) (json.RawMessage, error)
}

// CacheEntry is one stored cache record together with its insertion time.
//
// InsertedAt drives both FIFO eviction and sweep age checks. Overwriting an
// existing key keeps the original InsertedAt; only true inserts reset it.
type CacheEntry struct {
	Key        string
	Value      any
	InsertedAt time.Time
}

// Adapter is the pluggable physical storage behind a cache collection.
//
// Implementations must preserve insertion order: Keys and Entries return
// records oldest-first, and overwriting an existing key must not change its
// position. Adapters never report errors; a backend failure is logged by the
// implementation and surfaced as an absent entry.
type Adapter interface {
	// Get returns the entry stored under key.
	Get(key string) (CacheEntry, bool)

	// Set stores or overwrites an entry. Overwrites keep the key's
	// original position in insertion order.
	Set(entry CacheEntry)

	// Delete removes the entry stored under key, reporting whether it
	// existed.
	Delete(key string) bool

	// Clear removes all entries.
	Clear()

	// Has reports whether an entry exists under key.
	Has(key string) bool

	// Len returns the number of stored entries.
	Len() int

	// Keys returns all keys, oldest insertion first.
	Keys() []string

	// Values returns all stored values, oldest insertion first.
	Values() []any

	// Entries returns all entries, oldest insertion first.
	Entries() []CacheEntry
}
