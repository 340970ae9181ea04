// Package sessions correlates the two halves of an SSE-based MCP transport:
// the long-lived GET stream a client opens, and the POST submissions it
// later makes against that stream's session.
//
// A Session is created when a stream is accepted. It owns two bounded FIFO
// queues: inbound envelopes headed for the server's MessageHandler, and
// outbound messages headed for the client's stream. The connection-time
// query parameters are captured once into an immutable Metadata value and
// travel with every inbound message inside an Envelope.
//
// Layers & Roles
//
//	Registry   -> process-local map of live sessions (create / lookup / remove)
//	Session    -> queues, metadata and lifecycle state of one stream
//	Envelope   -> one submitted message plus its session's metadata
//	Directory  -> optional cross-instance ownership + forwarding
//
// # Identifiers
//
// Session identifiers are the 32 character lowercase hex form of a random
// UUID. ParseID accepts the other common UUID spellings and canonicalises
// them.
//
// # Directory
//
// When several transport instances sit behind a load balancer, a POST may
// land on an instance that does not hold the session's stream. A Directory
// records which instance owns each session and forwards raw payloads to it.
//
// Implementations
//
//	memorydir : in-process, shared between handler instances (tests, single binary)
//	redisdir  : Redis keys + Streams for horizontally scaled deployments
package sessions
