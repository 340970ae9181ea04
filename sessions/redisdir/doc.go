// Package redisdir implements sessions.Directory on Redis so that several
// transport processes behind a load balancer can accept submissions for
// each other's sessions.
//
// Design Notes
//   - Ownership: one key per session set with SET NX and a TTL; the owner's
//     receive loop keeps extending it, so a crashed owner's claim lapses
//   - Forwarding: one Redis Stream per session; a Lua script only appends
//     while the claim key exists
//   - Receive reads the stream from the beginning, so payloads forwarded
//     between Claim and Receive are not lost
//   - Release deletes both keys; a running receive loop notices on its next
//     poll and returns
//
// Example:
//
//	dir, err := redisdir.NewFromEnv()
//	if err != nil { ... }
//	defer dir.Close()
//	h := ssehttp.New(ssehttp.WithDirectory(dir))
package redisdir
