package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fluxline/crm-digest/pkg/client"
)

// FilterSource lists the account's saved filters.
type FilterSource interface {
	ListFilters(ctx context.Context) ([]client.Filter, error)
}

// FilterAPI additionally creates saved filters.
type FilterAPI interface {
	FilterSource
	CreateFilter(ctx context.Context, name, filterType string, conditions json.RawMessage) (*client.Filter, error)
}

// ResolveFilterID maps a filter reference (a numeric id or a filter
// name) to the numeric filter id. Name matching is case-insensitive
// and must be unambiguous: zero matches and multiple matches are both
// fatal, the latter listing every candidate.
func ResolveFilterID(ctx context.Context, source FilterSource, nameOrID string) (int64, error) {
	ref := strings.TrimSpace(nameOrID)
	if ref == "" {
		return 0, fmt.Errorf("empty filter reference")
	}

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}

	filters, err := source.ListFilters(ctx)
	if err != nil {
		return 0, fmt.Errorf("list saved filters: %w", err)
	}

	var matches []client.Filter
	for _, f := range filters {
		if strings.EqualFold(f.Name, ref) {
			matches = append(matches, f)
		}
	}

	switch len(matches) {
	case 0:
		return 0, fmt.Errorf("no saved filter named %q", ref)
	case 1:
		return matches[0].ID, nil
	default:
		candidates := make([]string, len(matches))
		for i, f := range matches {
			candidates[i] = fmt.Sprintf("%q (id %d, type %s)", f.Name, f.ID, f.Type)
		}
		return 0, fmt.Errorf("filter name %q is ambiguous, matches: %s",
			ref, strings.Join(candidates, ", "))
	}
}

// Create normalizes a condition tree and creates a saved filter for
// the given object type.
func Create(ctx context.Context, api FilterAPI, normalizer *Normalizer, name, objectType string, root *Group) (*client.Filter, error) {
	canonical := CanonicalObjectType(objectType)

	normalized, err := normalizer.Normalize(ctx, root, canonical)
	if err != nil {
		return nil, fmt.Errorf("normalize filter conditions: %w", err)
	}

	conditions, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("encode filter conditions: %w", err)
	}

	filter, err := api.CreateFilter(ctx, name, filterTypeFor(canonical), conditions)
	if err != nil {
		return nil, fmt.Errorf("create filter %q: %w", name, err)
	}
	return filter, nil
}
