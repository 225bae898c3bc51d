package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached CRM metadata response.
type Key struct {
	// Endpoint is the CRM endpoint path (e.g., "/api/v2/stages").
	Endpoint string

	// QueryParams are the query parameters of the request.
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: crm:endpoint:query1=val1:query2=val2
//
// Example:
//
//	crm:api/v2/dealFields:limit=500
func (k Key) String() string {
	parts := []string{"crm"}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		keys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
