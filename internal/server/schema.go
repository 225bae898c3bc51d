package server

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// requestSchema validates digest request bodies before any upstream
// call is made. Filter references accept a saved filter name or a
// numeric id.
const requestSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["overdue_filter", "due_today_filter", "missing_next_action_filter"],
	"additionalProperties": false,
	"properties": {
		"overdue_filter": {"type": ["string", "integer"], "minLength": 1},
		"due_today_filter": {"type": ["string", "integer"], "minLength": 1},
		"missing_next_action_filter": {"type": ["string", "integer"], "minLength": 1},
		"overdue_limit": {"type": "integer", "minimum": 0},
		"due_today_limit": {"type": "integer", "minimum": 0},
		"missing_next_action_limit": {"type": "integer", "minimum": 0},
		"timezone": {"type": "string"},
		"include_related": {"type": "boolean"}
	}
}`

func compileRequestSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(requestSchema))
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("digest-request.json", doc); err != nil {
		return nil, err
	}
	return compiler.Compile("digest-request.json")
}
