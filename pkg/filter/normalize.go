package filter

import (
	"context"
	"strings"
)

// Normalizer canonicalizes a user-supplied condition tree into the
// fixed two-branch shape of the remote filtering API: a root AND group
// whose conditions are exactly one AND group and one OR group, with
// every leaf's field identifier resolved to its numeric form.
type Normalizer struct {
	resolver *FieldResolver
}

// NewNormalizer creates a normalizer using the given field resolver.
func NewNormalizer(resolver *FieldResolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// Normalize canonicalizes root. Leaves without an object type default
// to defaultObject. The first field-resolution failure aborts the whole
// normalization; no partial tree is returned.
func (n *Normalizer) Normalize(ctx context.Context, root *Group, defaultObject string) (*Group, error) {
	if root == nil {
		root = &Group{Glue: GlueAnd}
	}

	glue := strings.ToLower(root.Glue)
	if glue == "" {
		glue = GlueAnd
	}

	var andGroup, orGroup *Group
	if allLeaves(root.Conditions) {
		// Flat shorthand: the leaves become the AND branch and an
		// empty OR sibling is synthesized.
		andGroup = &Group{Glue: GlueAnd, Conditions: root.Conditions}
		orGroup = &Group{Glue: GlueOr, Conditions: []Node{}}
	} else {
		for _, child := range root.Conditions {
			group, ok := child.(*Group)
			if !ok {
				// Leaves mixed in among groups are dropped.
				continue
			}
			switch strings.ToLower(group.Glue) {
			case GlueAnd:
				if andGroup == nil {
					andGroup = group
				}
			case GlueOr:
				if orGroup == nil {
					orGroup = group
				}
			}
		}
		if andGroup == nil {
			andGroup = &Group{Glue: GlueAnd, Conditions: []Node{}}
		}
		if orGroup == nil {
			orGroup = &Group{Glue: GlueOr, Conditions: []Node{}}
		}
	}

	normalizedAnd, err := n.normalizeGroup(ctx, andGroup, defaultObject)
	if err != nil {
		return nil, err
	}
	normalizedOr, err := n.normalizeGroup(ctx, orGroup, defaultObject)
	if err != nil {
		return nil, err
	}

	return &Group{
		Glue:       glue,
		Conditions: []Node{normalizedAnd, normalizedOr},
	}, nil
}

// normalizeGroup recursively normalizes one group, lower-casing its
// glue and discarding malformed children.
func (n *Normalizer) normalizeGroup(ctx context.Context, group *Group, defaultObject string) (*Group, error) {
	out := &Group{
		Glue:       strings.ToLower(group.Glue),
		Conditions: make([]Node, 0, len(group.Conditions)),
	}

	for _, child := range group.Conditions {
		switch node := child.(type) {
		case *Group:
			sub, err := n.normalizeGroup(ctx, node, defaultObject)
			if err != nil {
				return nil, err
			}
			out.Conditions = append(out.Conditions, sub)
		case *Leaf:
			leaf, err := n.normalizeLeaf(ctx, node, defaultObject)
			if err != nil {
				return nil, err
			}
			out.Conditions = append(out.Conditions, leaf)
		default:
			// Malformed child, dropped.
		}
	}

	return out, nil
}

// normalizeLeaf resolves a leaf's object type and field identifier.
func (n *Normalizer) normalizeLeaf(ctx context.Context, leaf *Leaf, defaultObject string) (*Leaf, error) {
	object := leaf.Object
	if object == "" {
		object = defaultObject
	}
	object = CanonicalObjectType(object)

	fieldID, err := n.resolver.Resolve(ctx, object, leaf.FieldID)
	if err != nil {
		return nil, err
	}

	return &Leaf{
		Object:   object,
		FieldID:  fieldID,
		Operator: leaf.Operator,
		Value:    leaf.Value,
		// ExtraValue stays nil when absent; the leaf marshals it as an
		// explicit null because the remote schema requires the key.
		ExtraValue: leaf.ExtraValue,
	}, nil
}

// allLeaves reports whether every condition is a leaf (the flat
// shorthand form). Vacuously true for an empty list.
func allLeaves(conditions []Node) bool {
	for _, c := range conditions {
		if _, ok := c.(*Leaf); !ok {
			return false
		}
	}
	return true
}
