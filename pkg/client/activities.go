package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// ListActivitiesByFilter fetches one page of activities matching a
// saved filter. An empty cursor requests the first page; the returned
// cursor is empty when the listing is exhausted.
func (c *Client) ListActivitiesByFilter(ctx context.Context, filterID int64, cursor string, pageSize int) ([]Activity, string, error) {
	data, next, err := c.listPage(ctx, "/api/v2/activities", "/v1/activities", filterID, cursor, pageSize)
	if err != nil {
		return nil, "", err
	}

	var activities []Activity
	if err := json.Unmarshal(data, &activities); err != nil {
		return nil, "", fmt.Errorf("decode activities page: %w", err)
	}
	return activities, next, nil
}
