// Package cache provides the two caching layers used by the digest client.
//
// TTLCache is a process-local expiring key/value store used for
// slowly-changing reference data (the stage table, per-object field maps).
// Entries are evicted lazily: an expired entry is treated as absent on
// read, there is no background sweep.
//
// Manager is an optional Redis-backed response cache shared across
// processes. It holds decoded CRM metadata responses (stages, fields,
// saved filters) with a TTL so that a fleet of digest workers does not
// re-fetch the same reference data from the upstream API.
//
// Example usage:
//
//	stages := cache.New[map[int64]string]()
//	stages.Set("stages", table, 5*time.Minute)
//	if table, ok := stages.Get("stages"); ok { ... }
package cache
