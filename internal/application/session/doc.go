// Package session keeps the process-wide upstream session: the bearer
// credential for the service account and the resolved student context.
//
// Both live in single-slot caches shared by every request. A request that finds
// the slot stale refreshes it under the write lock, so concurrent requests
// trigger at most one login or profile lookup per expiry.
package session
