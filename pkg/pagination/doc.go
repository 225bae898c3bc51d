// Package pagination provides the two fetch loops shared by every CRM
// call path.
//
// FetchAll drives a cursor-paginated listing endpoint: it requests
// bounded-size pages until a caller-supplied limit is satisfied or the
// upstream stops returning a continuation cursor. Exhaustion before the
// limit is a normal condition, not an error.
//
// FetchByIDs drives a bulk-fetch-by-identifier endpoint: it partitions
// an identifier set into batches of at most 100, issues the batches
// concurrently, and merges the results into an identifier-keyed map.
// A failed batch is logged and its entities are simply absent from the
// result; the call as a whole still succeeds.
//
// Example usage:
//
//	activities, err := pagination.FetchAll(ctx, 250,
//		func(ctx context.Context, cursor string, pageSize int) ([]client.Activity, string, error) {
//			return crm.ListActivitiesByFilter(ctx, filterID, cursor, pageSize)
//		})
package pagination
