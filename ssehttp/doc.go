// Package ssehttp implements the session-aware SSE transport.
//
// A client opens a stream with GET on the SSE path (default /sse). Any query
// parameters on that request are captured as the session's metadata. The
// first event on the stream is
//
//	event: endpoint
//	data: /messages/?session_id=<32 hex chars>
//
// and the client then submits JSON-RPC messages by POSTing them to that
// endpoint. Each accepted submission is answered with 202 Accepted and handed
// to the configured sessions.MessageHandler together with the session's
// metadata. Replies the handler sends with Session.Send arrive on the stream
// as "message" events.
//
// Submissions are rejected with:
//
//	400  missing or malformed session_id, invalid JSON-RPC, batch arrays
//	404  unknown or closed session
//	413  body larger than WithMaxBodyBytes
//	415  Content-Type other than application/json
//	503  session queue stayed full for WithDeliveryTimeout (with Retry-After)
//
// Handlers that share a sessions.Directory (see memorydir and redisdir)
// accept submissions for streams held by each other.
package ssehttp
