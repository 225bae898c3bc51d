package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// ListDealsByFilter fetches one page of deals matching a saved filter.
func (c *Client) ListDealsByFilter(ctx context.Context, filterID int64, cursor string, pageSize int) ([]Deal, string, error) {
	data, next, err := c.listPage(ctx, "/api/v2/deals", "/v1/deals", filterID, cursor, pageSize)
	if err != nil {
		return nil, "", err
	}

	var deals []Deal
	if err := json.Unmarshal(data, &deals); err != nil {
		return nil, "", fmt.Errorf("decode deals page: %w", err)
	}
	return deals, next, nil
}

// DealsByIDs resolves up to 100 deals by identifier.
func (c *Client) DealsByIDs(ctx context.Context, ids []int64) ([]Deal, error) {
	data, err := c.bulkByIDs(ctx, "/api/v2/deals", "/v1/deals", ids)
	if err != nil {
		return nil, err
	}

	var deals []Deal
	if err := json.Unmarshal(data, &deals); err != nil {
		return nil, fmt.Errorf("decode deals bulk response: %w", err)
	}
	return deals, nil
}
