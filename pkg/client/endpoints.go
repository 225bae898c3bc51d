package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// The CRM API serves every read under a versioned path, but tenants on
// older plans only expose the legacy variant. When a versioned endpoint
// itself is absent (a not-found class error), the identical logical
// operation is retried against the legacy path. The legacy listing
// endpoints paginate by offset instead of cursor, so the cursor
// parameter is translated to a start offset on the way in and a cursor
// is synthesized from the offset-continuation block on the way out,
// keeping the pagination contract uniform for callers.

// listPage fetches a single page of a filtered listing.
func (c *Client) listPage(ctx context.Context, v2Path, v1Path string, filterID int64, cursor string, pageSize int) (json.RawMessage, string, error) {
	query := url.Values{}
	query.Set("filter_id", strconv.FormatInt(filterID, 10))
	query.Set("limit", strconv.Itoa(pageSize))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	data, err := c.get(ctx, v2Path, query, false)
	if err != nil {
		if !IsNotFound(err) {
			return nil, "", err
		}
		crmLegacyFallbacksTotal.WithLabelValues(v2Path).Inc()
		c.logger.Debug().
			Str("endpoint", v2Path).
			Str("legacy_endpoint", v1Path).
			Msg("Versioned endpoint absent, falling back to legacy")
		return c.listPageLegacy(ctx, v1Path, filterID, cursor, pageSize)
	}

	env, err := decodeEnvelope(data, v2Path)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if env.AdditionalData != nil && env.AdditionalData.NextCursor != nil {
		next = *env.AdditionalData.NextCursor
	}
	return env.Data, next, nil
}

// listPageLegacy serves the same page from the offset-paginated legacy
// endpoint.
func (c *Client) listPageLegacy(ctx context.Context, v1Path string, filterID int64, cursor string, pageSize int) (json.RawMessage, string, error) {
	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid legacy cursor %q: %w", cursor, err)
		}
	}

	query := url.Values{}
	query.Set("filter_id", strconv.FormatInt(filterID, 10))
	query.Set("start", strconv.Itoa(start))
	query.Set("limit", strconv.Itoa(pageSize))

	data, err := c.get(ctx, v1Path, query, false)
	if err != nil {
		return nil, "", err
	}

	env, err := decodeEnvelope(data, v1Path)
	if err != nil {
		return nil, "", err
	}

	return env.Data, legacyNextCursor(env.AdditionalData), nil
}

// legacyNextCursor synthesizes a cursor from a legacy pagination block.
// A response with no continuation indicator at all is end-of-stream.
func legacyNextCursor(ad *additionalData) string {
	if ad == nil || ad.Pagination == nil {
		return ""
	}
	p := ad.Pagination
	if !p.MoreItemsInCollection {
		return ""
	}
	if p.NextStart != nil {
		return strconv.Itoa(*p.NextStart)
	}
	// More items flagged but no explicit next_start: continue after the
	// window the upstream just served.
	return strconv.Itoa(p.Start + p.Limit)
}

// bulkByIDs resolves up to 100 entities by identifier in one request.
func (c *Client) bulkByIDs(ctx context.Context, v2Path, v1Path string, ids []int64) (json.RawMessage, error) {
	if len(ids) == 0 {
		return json.RawMessage("[]"), nil
	}
	if len(ids) > 100 {
		return nil, fmt.Errorf("%s: at most 100 ids per bulk request, got %d", v2Path, len(ids))
	}

	query := url.Values{}
	query.Set("ids", joinIDs(ids))

	data, err := c.get(ctx, v2Path, query, false)
	if err != nil {
		if !IsNotFound(err) {
			return nil, err
		}
		crmLegacyFallbacksTotal.WithLabelValues(v2Path).Inc()
		data, err = c.get(ctx, v1Path, query, false)
		if err != nil {
			return nil, err
		}
		env, err := decodeEnvelope(data, v1Path)
		if err != nil {
			return nil, err
		}
		return env.Data, nil
	}

	env, err := decodeEnvelope(data, v2Path)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// getOne fetches a single entity by id. Both endpoint versions
// answering not-found means the entity itself does not exist and the
// ErrNotFound sentinel is returned.
func (c *Client) getOne(ctx context.Context, v2Path, v1Path string) (json.RawMessage, error) {
	data, err := c.get(ctx, v2Path, nil, false)
	if err != nil {
		if !IsNotFound(err) {
			return nil, err
		}
		crmLegacyFallbacksTotal.WithLabelValues(v2Path).Inc()
		data, err = c.get(ctx, v1Path, nil, false)
		if err != nil {
			if IsNotFound(err) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		env, err := decodeEnvelope(data, v1Path)
		if err != nil {
			return nil, err
		}
		return env.Data, nil
	}

	env, err := decodeEnvelope(data, v2Path)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// listMetadata fetches a metadata listing (stages, field definitions,
// saved filters) through the shared metadata cache.
func (c *Client) listMetadata(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	data, err := c.get(ctx, path, query, true)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(data, path)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
