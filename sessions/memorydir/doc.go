// Package memorydir provides an in-process sessions.Directory. Every
// transport handler given the same *Dir behaves like one node of a cluster:
// a submission accepted by one handler is forwarded to whichever handler
// holds the session's stream.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local)
//	Ordering          : FIFO per session
//	Backpressure      : Forward blocks while the owner's buffer is full
//
// Example:
//
//	dir := memorydir.New()
//	a, _ := ssehttp.New(srv, ssehttp.WithDirectory(dir))
//	b, _ := ssehttp.New(srv, ssehttp.WithDirectory(dir))
//
// For multi-process deployments use redisdir.
package memorydir
