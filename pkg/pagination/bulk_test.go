package pagination

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type entity struct {
	ID int64
}

func entityID(e entity) int64 { return e.ID }

func makeIDs(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids
}

func TestFetchByIDs_BatchSizes(t *testing.T) {
	var mu sync.Mutex
	var batchSizes []int

	fetch := func(ctx context.Context, ids []int64) ([]entity, error) {
		mu.Lock()
		batchSizes = append(batchSizes, len(ids))
		mu.Unlock()

		result := make([]entity, len(ids))
		for i, id := range ids {
			result[i] = entity{ID: id}
		}
		return result, nil
	}

	entities, failed := FetchByIDs(context.Background(), makeIDs(250), entityID, fetch)

	if failed != 0 {
		t.Errorf("failed batches = %d, want 0", failed)
	}
	if len(entities) != 250 {
		t.Errorf("entities = %d, want 250", len(entities))
	}
	if len(batchSizes) != 3 {
		t.Fatalf("batches = %d, want 3", len(batchSizes))
	}

	// Batches are issued concurrently, so count sizes rather than order.
	full, half := 0, 0
	for _, size := range batchSizes {
		switch size {
		case 100:
			full++
		case 50:
			half++
		default:
			t.Errorf("unexpected batch size %d", size)
		}
	}
	if full != 2 || half != 1 {
		t.Errorf("batch sizes = %v, want two of 100 and one of 50", batchSizes)
	}
}

func TestFetchByIDs_PartialBatchFailure(t *testing.T) {
	fetch := func(ctx context.Context, ids []int64) ([]entity, error) {
		// Fail the batch that starts at id 101 (the second of three).
		if ids[0] == 101 {
			return nil, errors.New("upstream 502")
		}
		result := make([]entity, len(ids))
		for i, id := range ids {
			result[i] = entity{ID: id}
		}
		return result, nil
	}

	entities, failed := FetchByIDs(context.Background(), makeIDs(250), entityID, fetch)

	if failed != 1 {
		t.Errorf("failed batches = %d, want 1", failed)
	}
	if len(entities) != 150 {
		t.Errorf("entities = %d, want 150 (batches 1 and 3 only)", len(entities))
	}
	if _, ok := entities[50]; !ok {
		t.Error("entity 50 from batch 1 should be present")
	}
	if _, ok := entities[150]; ok {
		t.Error("entity 150 from the failed batch should be absent")
	}
	if _, ok := entities[230]; !ok {
		t.Error("entity 230 from batch 3 should be present")
	}
}

func TestFetchByIDs_EmptyInput(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, ids []int64) ([]entity, error) {
		calls++
		return nil, nil
	}

	entities, failed := FetchByIDs(context.Background(), nil, entityID, fetch)

	if calls != 0 {
		t.Errorf("upstream calls = %d, want 0 for empty input", calls)
	}
	if len(entities) != 0 || failed != 0 {
		t.Errorf("got %d entities, %d failed; want empty result", len(entities), failed)
	}
}

func TestFetchByIDs_MergesByEntityID(t *testing.T) {
	fetch := func(ctx context.Context, ids []int64) ([]entity, error) {
		// Upstream returns entities in reverse order; the merge must
		// key by entity id regardless.
		result := make([]entity, 0, len(ids))
		for i := len(ids) - 1; i >= 0; i-- {
			result = append(result, entity{ID: ids[i]})
		}
		return result, nil
	}

	entities, _ := FetchByIDs(context.Background(), []int64{7, 8, 9}, entityID, fetch)

	for _, id := range []int64{7, 8, 9} {
		got, ok := entities[id]
		if !ok {
			t.Fatalf("entity %d missing", id)
		}
		if got.ID != id {
			t.Errorf("entities[%d].ID = %d", id, got.ID)
		}
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		count int
		sizes []int
	}{
		{"empty", 0, nil},
		{"single partial", 30, []int{30}},
		{"exact batch", 100, []int{100}},
		{"two and a half", 250, []int{100, 100, 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := partition(makeIDs(tt.count), MaxBatchSize)
			if len(batches) != len(tt.sizes) {
				t.Fatalf("batches = %d, want %d", len(batches), len(tt.sizes))
			}
			for i, want := range tt.sizes {
				if len(batches[i]) != want {
					t.Errorf("batch %d size = %d, want %d", i, len(batches[i]), want)
				}
			}
		})
	}
}
