package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// ListStages fetches all pipeline stage definitions. Served through
// the metadata cache when one is configured.
func (c *Client) ListStages(ctx context.Context) ([]Stage, error) {
	data, err := c.listMetadata(ctx, "/v1/stages", nil)
	if err != nil {
		return nil, err
	}

	var stages []Stage
	if err := json.Unmarshal(data, &stages); err != nil {
		return nil, fmt.Errorf("decode stages: %w", err)
	}
	return stages, nil
}

// GetStage fetches a single stage definition. Returns ErrNotFound when
// no such stage exists.
func (c *Client) GetStage(ctx context.Context, id int64) (*Stage, error) {
	data, err := c.getOne(ctx, fmt.Sprintf("/api/v2/stages/%d", id), fmt.Sprintf("/v1/stages/%d", id))
	if err != nil {
		return nil, err
	}

	var stage Stage
	if err := json.Unmarshal(data, &stage); err != nil {
		return nil, fmt.Errorf("decode stage %d: %w", id, err)
	}
	return &stage, nil
}

// fieldEndpoints maps a canonical object type to its field-definition
// listing endpoint.
var fieldEndpoints = map[string]string{
	"deal":         "/v1/dealFields",
	"person":       "/v1/personFields",
	"organization": "/v1/organizationFields",
	"activity":     "/v1/activityFields",
	"product":      "/v1/productFields",
}

// ListFields fetches the field definitions of one object type. The
// objectType must already be canonical (singular, lowercase).
func (c *Client) ListFields(ctx context.Context, objectType string) ([]Field, error) {
	endpoint, ok := fieldEndpoints[objectType]
	if !ok {
		return nil, fmt.Errorf("no field metadata endpoint for object type %q", objectType)
	}

	data, err := c.listMetadata(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var fields []Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode %s fields: %w", objectType, err)
	}
	return fields, nil
}

// ListFilters fetches all saved filters.
func (c *Client) ListFilters(ctx context.Context) ([]Filter, error) {
	data, err := c.listMetadata(ctx, "/v1/filters", nil)
	if err != nil {
		return nil, err
	}

	var filters []Filter
	if err := json.Unmarshal(data, &filters); err != nil {
		return nil, fmt.Errorf("decode filters: %w", err)
	}
	return filters, nil
}

// CreateFilter creates a saved filter with already-canonical conditions.
func (c *Client) CreateFilter(ctx context.Context, name, filterType string, conditions json.RawMessage) (*Filter, error) {
	payload := map[string]any{
		"name":       name,
		"type":       filterType,
		"conditions": conditions,
	}

	data, err := c.post(ctx, "/v1/filters", payload)
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope(data, "/v1/filters")
	if err != nil {
		return nil, err
	}

	var filter Filter
	if err := json.Unmarshal(env.Data, &filter); err != nil {
		return nil, fmt.Errorf("decode created filter: %w", err)
	}
	return &filter, nil
}
