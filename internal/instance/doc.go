// Package instance implements the scoped instance managers: one pool per
// lifecycle mode, each owning the full life of its backend processes.
//
// An instance's identity is its InstanceKey, derived from the server name
// and, depending on the mode, the caller's user and session ids. The manager
// guarantees that at most one live instance exists per key: concurrent
// creations collapse through singleflight, and a dead instance's pool entry
// remains as a tombstone until the next creation decides whether to restart
// it or the cleanup pass reclaims it.
//
// Creation is admission -> template resolution -> spawn -> protocol
// handshake. Any failure leaves the entry in a terminal status with the
// error attached; lookups skip terminal entries, so callers can never
// observe a half-created instance. Stopping is graceful: SIGTERM, a bounded
// grace period, then SIGKILL.
package instance
