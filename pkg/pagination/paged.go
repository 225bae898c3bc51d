package pagination

import (
	"context"

	"github.com/rs/zerolog/log"
)

// MaxPageSize is the largest page the CRM listing endpoints serve.
const MaxPageSize = 100

// PageFunc fetches a single page. An empty cursor requests the first
// page. The returned cursor is empty once the listing is exhausted.
type PageFunc[T any] func(ctx context.Context, cursor string, pageSize int) (items []T, nextCursor string, err error)

// FetchAll accumulates pages until limit items have been collected or
// the upstream reports no further cursor. Each page requests
// min(MaxPageSize, limit-accumulated) items; a final over-full page is
// truncated so at most limit items are returned.
func FetchAll[T any](ctx context.Context, limit int, fetch PageFunc[T]) ([]T, error) {
	if limit <= 0 {
		return []T{}, nil
	}

	items := make([]T, 0, min(limit, MaxPageSize))
	cursor := ""
	pages := 0

	for len(items) < limit {
		pageSize := min(MaxPageSize, limit-len(items))

		page, next, err := fetch(ctx, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		pages++

		items = append(items, page...)

		if next == "" {
			// Normal exhaustion, even below the limit.
			break
		}
		if len(page) == 0 {
			// An empty page with a cursor makes no progress; treat it
			// as exhaustion rather than looping on it.
			log.Warn().Str("cursor", next).Msg("Empty page with next cursor, stopping pagination")
			break
		}
		cursor = next
	}

	if len(items) > limit {
		items = items[:limit]
	}

	log.Debug().
		Int("items", len(items)).
		Int("limit", limit).
		Int("pages", pages).
		Msg("Paged fetch complete")

	return items, nil
}
