package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// OrganizationsByIDs resolves up to 100 organizations by identifier.
func (c *Client) OrganizationsByIDs(ctx context.Context, ids []int64) ([]Organization, error) {
	data, err := c.bulkByIDs(ctx, "/api/v2/organizations", "/v1/organizations", ids)
	if err != nil {
		return nil, err
	}

	var orgs []Organization
	if err := json.Unmarshal(data, &orgs); err != nil {
		return nil, fmt.Errorf("decode organizations bulk response: %w", err)
	}
	return orgs, nil
}

// GetOrganization fetches a single organization. Returns ErrNotFound
// when no such organization exists.
func (c *Client) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	data, err := c.getOne(ctx, fmt.Sprintf("/api/v2/organizations/%d", id), fmt.Sprintf("/v1/organizations/%d", id))
	if err != nil {
		return nil, err
	}

	var org Organization
	if err := json.Unmarshal(data, &org); err != nil {
		return nil, fmt.Errorf("decode organization %d: %w", id, err)
	}
	return &org, nil
}
