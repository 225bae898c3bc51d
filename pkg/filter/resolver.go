package filter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/fluxline/crm-digest/pkg/client"
	"github.com/fluxline/crm-digest/pkg/logging"
	"github.com/rs/zerolog"
)

// MetadataSource lists field definitions for one object type.
type MetadataSource interface {
	ListFields(ctx context.Context, objectType string) ([]client.Field, error)
}

// FieldResolver resolves symbolic field names/keys to the numeric field
// identifiers the remote filtering language requires.
//
// The per-object-type field map is fetched once and cached for the
// resolver's lifetime; field metadata is assumed stable within a run.
// Construct a fresh resolver per test case to reset the cache.
type FieldResolver struct {
	source MetadataSource
	logger zerolog.Logger

	mu   sync.Mutex
	maps map[string]map[string]string
}

// NewFieldResolver creates a resolver backed by a metadata source.
func NewFieldResolver(source MetadataSource) *FieldResolver {
	return &FieldResolver{
		source: source,
		logger: logging.NewLogger("field-resolver"),
		maps:   make(map[string]map[string]string),
	}
}

// Resolve maps a symbolic-or-numeric field identifier to the numeric
// identifier string. A purely numeric input is returned unchanged
// without a metadata lookup. The objectType accepts the synonyms
// handled by CanonicalObjectType.
func (r *FieldResolver) Resolve(ctx context.Context, objectType, fieldID string) (string, error) {
	if fieldID == "" {
		return "", fmt.Errorf("empty field identifier for object type %q", objectType)
	}
	if isNumeric(fieldID) {
		return fieldID, nil
	}

	canonical := CanonicalObjectType(objectType)
	fieldMap, err := r.fieldMap(ctx, canonical)
	if err != nil {
		return "", err
	}

	// Exact key/name first, then the lower-cased variants. The map is
	// built so that a key takes precedence over a name on collision.
	if id, ok := fieldMap[fieldID]; ok {
		return id, nil
	}
	if id, ok := fieldMap[strings.ToLower(fieldID)]; ok {
		return id, nil
	}

	return "", fmt.Errorf("unknown field %q for object type %q", fieldID, canonical)
}

// fieldMap returns the cached field map for a canonical object type,
// fetching and building it on first use.
func (r *FieldResolver) fieldMap(ctx context.Context, objectType string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.maps[objectType]; ok {
		return m, nil
	}

	fields, err := r.source.ListFields(ctx, objectType)
	if err != nil {
		return nil, fmt.Errorf("fetch %s field metadata: %w", objectType, err)
	}

	m := buildFieldMap(fields)
	r.maps[objectType] = m

	r.logger.Debug().
		Str("object_type", objectType).
		Int("fields", len(fields)).
		Msg("Field map built")

	return m, nil
}

// buildFieldMap indexes fields by id-string, key, name, and their
// lower-cased variants. Passes run from lowest to highest precedence so
// that on collision key beats name and exact spellings beat folded ones.
func buildFieldMap(fields []client.Field) map[string]string {
	m := make(map[string]string, len(fields)*5)

	for _, f := range fields {
		if f.Name != "" {
			m[strings.ToLower(f.Name)] = strconv.FormatInt(f.ID, 10)
		}
	}
	for _, f := range fields {
		if f.Key != "" {
			m[strings.ToLower(f.Key)] = strconv.FormatInt(f.ID, 10)
		}
	}
	for _, f := range fields {
		if f.Name != "" {
			m[f.Name] = strconv.FormatInt(f.ID, 10)
		}
	}
	for _, f := range fields {
		if f.Key != "" {
			m[f.Key] = strconv.FormatInt(f.ID, 10)
		}
	}
	for _, f := range fields {
		id := strconv.FormatInt(f.ID, 10)
		m[id] = id
	}

	return m
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
