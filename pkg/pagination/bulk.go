package pagination

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// MaxBatchSize is the largest identifier batch the bulk endpoints accept.
const MaxBatchSize = 100

// BatchFunc resolves one batch of at most MaxBatchSize identifiers.
type BatchFunc[T any] func(ctx context.Context, ids []int64) ([]T, error)

// FetchByIDs partitions ids into consecutive batches, fetches the
// batches concurrently, and merges all returned entities into a map
// keyed by each entity's own identifier. Batches carry no ordering
// dependency, so results are merged by identifier rather than batch
// arrival order.
//
// A failed batch does not fail the whole operation: its entities are
// absent from the result and the failure is counted. The returned
// failed count lets callers surface degraded enrichment in diagnostics.
func FetchByIDs[T any](ctx context.Context, ids []int64, idOf func(T) int64, fetch BatchFunc[T]) (map[int64]T, int) {
	if len(ids) == 0 {
		return map[int64]T{}, 0
	}

	batches := partition(ids, MaxBatchSize)

	entities := make(map[int64]T, len(ids))
	failed := 0
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(batchNum int, batch []int64) {
			defer wg.Done()

			result, err := fetch(ctx, batch)
			if err != nil {
				log.Warn().
					Err(err).
					Int("batch", batchNum).
					Int("batch_size", len(batch)).
					Msg("Bulk batch fetch failed")

				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			mu.Lock()
			for _, entity := range result {
				entities[idOf(entity)] = entity
			}
			mu.Unlock()
		}(i, batch)
	}
	wg.Wait()

	if failed > 0 {
		log.Warn().
			Int("failed_batches", failed).
			Int("total_batches", len(batches)).
			Int("entities", len(entities)).
			Msg("Bulk fetch returned partial results")
	}

	return entities, failed
}

// partition splits ids into consecutive slices of at most size elements.
func partition(ids []int64, size int) [][]int64 {
	var batches [][]int64
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}
