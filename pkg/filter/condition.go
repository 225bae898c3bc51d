// Package filter implements the saved-filter condition language: the
// recursive condition tree, symbolic field resolution, and the
// canonicalizer that produces the two-branch shape the CRM filtering
// API requires.
package filter

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Glue values joining the conditions of a group.
const (
	GlueAnd = "and"
	GlueOr  = "or"
)

// Node is one node of a condition tree: either a *Leaf or a *Group.
type Node interface {
	isNode()
}

// Leaf is a single field predicate.
type Leaf struct {
	// Object is the object type the field belongs to. Empty means the
	// tree's default object type.
	Object string `json:"object,omitempty"`

	// FieldID is a numeric field identifier or a symbolic field
	// name/key to be resolved.
	FieldID string `json:"field_id"`

	Operator string `json:"operator"`
	Value    any    `json:"value"`

	// ExtraValue is the second operand of range operators. The remote
	// schema requires the key to be present, so it is marshalled as an
	// explicit null when absent.
	ExtraValue any `json:"extra_value"`
}

func (*Leaf) isNode() {}

// Group joins child conditions with one glue.
type Group struct {
	Glue       string `json:"glue"`
	Conditions []Node `json:"conditions"`
}

func (*Group) isNode() {}

// UnmarshalJSON decodes a leaf, accepting a numeric or string field_id.
func (l *Leaf) UnmarshalJSON(data []byte) error {
	var aux struct {
		Object     string          `json:"object"`
		FieldID    json.RawMessage `json:"field_id"`
		Operator   string          `json:"operator"`
		Value      any             `json:"value"`
		ExtraValue any             `json:"extra_value"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decode condition leaf: %w", err)
	}

	fieldID, err := decodeFieldID(aux.FieldID)
	if err != nil {
		return err
	}

	*l = Leaf{
		Object:     aux.Object,
		FieldID:    fieldID,
		Operator:   aux.Operator,
		Value:      aux.Value,
		ExtraValue: aux.ExtraValue,
	}
	return nil
}

// decodeFieldID accepts a JSON number or string field identifier.
func decodeFieldID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(n, 10), nil
	}

	return "", fmt.Errorf("field_id must be a number or string, got %s", raw)
}

// UnmarshalJSON decodes a group and its children. Children that are
// neither groups nor leaves are dropped.
func (g *Group) UnmarshalJSON(data []byte) error {
	var aux struct {
		Glue       string            `json:"glue"`
		Conditions []json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decode condition group: %w", err)
	}

	g.Glue = aux.Glue
	g.Conditions = make([]Node, 0, len(aux.Conditions))
	for _, raw := range aux.Conditions {
		node, err := DecodeNode(raw)
		if err != nil {
			return err
		}
		if node != nil {
			g.Conditions = append(g.Conditions, node)
		}
	}
	return nil
}

// DecodeNode decodes one tree node from raw JSON. The discriminant is
// the presence of a "glue" key (group) versus a "field_id" key (leaf).
// Returns nil for a shape that is neither.
func DecodeNode(raw json.RawMessage) (Node, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		// Not an object at all: dropped, not an error.
		return nil, nil
	}

	if _, ok := probe["glue"]; ok {
		var group Group
		if err := json.Unmarshal(raw, &group); err != nil {
			return nil, err
		}
		return &group, nil
	}

	if _, ok := probe["field_id"]; ok {
		var leaf Leaf
		if err := json.Unmarshal(raw, &leaf); err != nil {
			return nil, err
		}
		return &leaf, nil
	}

	return nil, nil
}

// ParseTree decodes a full condition tree whose root must be a group.
// A root that is a bare array is interpreted as the flat shorthand, an
// implicit AND group.
func ParseTree(raw json.RawMessage) (*Group, error) {
	var asList []json.RawMessage
	if err := json.Unmarshal(raw, &asList); err == nil {
		group := &Group{Glue: GlueAnd, Conditions: make([]Node, 0, len(asList))}
		for _, item := range asList {
			node, err := DecodeNode(item)
			if err != nil {
				return nil, err
			}
			if node != nil {
				group.Conditions = append(group.Conditions, node)
			}
		}
		return group, nil
	}

	var group Group
	if err := json.Unmarshal(raw, &group); err != nil {
		return nil, fmt.Errorf("condition tree root must be a group or a list of leaves: %w", err)
	}
	return &group, nil
}
