// Package gatewire is a client for a sharded, push-based gateway protocol paired
// with a rate-limited HTTP API, maintaining a local mirror of remote entity state
// for event-driven applications.
//
// The library is built from three engines:
//
//   - A per-shard connection state machine (internal/gateway) that owns one
//     WebSocket connection each: handshake, heartbeating, session resumption and
//     reconnect with jittered exponential backoff. A shard manager coordinates
//     identify pacing across shards and merges every shard's dispatch payloads
//     and lifecycle transitions into one subscribable stream.
//
//   - A rate-limit-aware request dispatcher (internal/rest) that maps each
//     outgoing HTTP call to a quota bucket derived from its method, route and
//     major path parameter, serializes dispatch per bucket in FIFO order, and
//     honors both per-bucket and global quota headers advertised by the server.
//
//   - A bounded entity cache (internal/cache) of keyed collections with FIFO
//     eviction, periodic predicate-driven sweeping, and pluggable storage
//     adapters (in-memory by default, Redis for out-of-process storage).
//
// # Quick Start
//
//	import "github.com/luciancaetano/gatewire/client"
//
//	cfg := client.DefaultConfig()
//	cfg.Token = os.Getenv("GATEWIRE_TOKEN")
//	cfg.GatewayURL = "wss://gateway.example.com"
//	cfg.APIBaseURL = "https://api.example.com/v1"
//
//	c, err := client.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sub := c.Subscribe(0)
//	defer sub.Cancel()
//
//	if err := c.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close(context.Background())
//
//	for ev := range sub.C() {
//	    // ev.Type, ev.ShardID, ev.Data (raw wire payload)
//	}
//
// Outbound calls go through the dispatcher, which resolves once the request has
// cleared its rate-limit bucket and the global gate:
//
//	body, err := c.Request(ctx, "POST", "/channels/123/messages", payload)
//
// # Frame Envelope
//
// Every gateway frame is a JSON envelope:
//
//	{ "op": <opcode>, "d": <payload>, "s": <sequence|null>, "t": <event type|null> }
//
// The transport layer interprets only the envelope; dispatch payloads ("d" on
// op 0) are relayed undecoded to subscribers. The sequence number is tracked
// per shard and replayed to the server when resuming, so a dropped connection
// continues the event stream without gaps.
//
// # Sharding
//
// The event stream is partitioned across shards by the owning entity's id:
// shard = (entity_id >> 22) % shard_count. Each shard is an independent
// connection; the failure of one never affects its siblings. The remote
// service permits only a limited number of concurrent identify handshakes,
// which the shard manager enforces with a pacing gate (resumes are exempt).
//
// # Rate Limiting
//
// Every REST response carries the bucket's limit, remaining count, reset delay
// and a global-scope flag. The dispatcher runs one worker per bucket: a worker
// sends at most one request at a time and sleeps through quota exhaustion, so
// two requests can never race on the same counters. A global 429 closes a
// shared gate that halts all buckets until the advertised reset.
//
// # Caching
//
// Collections are bounded keyed stores fed by both the push stream and REST
// responses. Size pressure evicts the oldest-inserted entry; a periodic sweep
// removes entries matching a configured filter (unless protected by
// keepFilter), independent of size. A collection in partial mode stores raw
// wire records instead of hydrated objects, trading CPU for memory on entity
// types the application rarely touches.
package gatewire
