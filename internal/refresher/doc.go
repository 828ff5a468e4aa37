// Package refresher implements coordinated token refresh: expiration and
// threshold policy evaluation, per-key serialization of refresh attempts
// in-process and across processes, and blocking waits on in-flight
// refreshes.
//
// The load-bearing correctness property is the re-read after acquiring the
// per-key lock: a caller that waited on the lock checks the stored token
// again before touching the network, so N callers observing an expiring
// token produce exactly one refresh call.
package refresher
