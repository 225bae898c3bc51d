package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// PersonsByIDs resolves up to 100 persons by identifier.
func (c *Client) PersonsByIDs(ctx context.Context, ids []int64) ([]Person, error) {
	data, err := c.bulkByIDs(ctx, "/api/v2/persons", "/v1/persons", ids)
	if err != nil {
		return nil, err
	}

	var persons []Person
	if err := json.Unmarshal(data, &persons); err != nil {
		return nil, fmt.Errorf("decode persons bulk response: %w", err)
	}
	return persons, nil
}

// GetPerson fetches a single person. Returns ErrNotFound when no such
// person exists.
func (c *Client) GetPerson(ctx context.Context, id int64) (*Person, error) {
	data, err := c.getOne(ctx, fmt.Sprintf("/api/v2/persons/%d", id), fmt.Sprintf("/v1/persons/%d", id))
	if err != nil {
		return nil, err
	}

	var person Person
	if err := json.Unmarshal(data, &person); err != nil {
		return nil, fmt.Errorf("decode person %d: %w", id, err)
	}
	return &person, nil
}
