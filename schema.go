package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	schemavalidate "github.com/santhosh-tekuri/jsonschema/v5"
)

// completableExtensionKey is the JSON Schema extension key used to mark a
// prompt argument field as eligible for completion/complete suggestions, per the
// "Portable substitute" convention: invopop/jsonschema has no first-class
// concept of completable fields, so the server tags the field's Schema.Extras
// map instead of inventing a parallel schema dialect.
const completableExtensionKey = "x-completable"

var defaultReflector = jsonschema.Reflector{
	Anonymous:      true,
	DoNotReference: true,
}

// reflectSchema derives a JSON Schema from a Go value's type, in the same
// shape the Tool input schema has always been built in.
func reflectSchema(v any) *jsonschema.Schema {
	schema := defaultReflector.Reflect(v)
	schema.Version = ""
	return schema
}

// promptArguments reads a reflected schema's top-level properties and
// required list into the wire PromptArgument shape, so a Prompt can derive
// its argument list from a Go struct the same way a Tool derives its input
// schema.
func promptArguments(schema *jsonschema.Schema) []PromptArgument {
	if schema == nil || schema.Properties == nil {
		return nil
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	var args []PromptArgument
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		args = append(args, PromptArgument{
			Name:        pair.Key,
			Description: pair.Value.Description,
			Required:    required[pair.Key],
		})
	}
	return args
}

// completableFields reports which top-level schema properties were marked
// completable via the x-completable extension key.
func completableFields(schema *jsonschema.Schema) map[string]bool {
	out := make(map[string]bool)
	if schema == nil || schema.Properties == nil {
		return out
	}
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		if isCompletable(pair.Value) {
			out[pair.Key] = true
		}
	}
	return out
}

func isCompletable(fieldSchema *jsonschema.Schema) bool {
	if fieldSchema == nil || fieldSchema.Extras == nil {
		return false
	}
	v, ok := fieldSchema.Extras[completableExtensionKey]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// compileInputValidator turns a reflected input schema into a validator a
// tool call's raw arguments can be checked against ahead of unmarshaling, so
// a malformed call fails with field-level detail instead of a generic decode
// error. A schema with no properties compiles to nil: there is nothing to
// check beyond what json.Unmarshal already enforces.
func compileInputValidator(toolName string, schema *jsonschema.Schema) (*schemavalidate.Schema, error) {
	if schema == nil || schema.Properties == nil || schema.Properties.Len() == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema for tool %q: %w", toolName, err)
	}
	compiled, err := schemavalidate.CompileString(toolName+".input.schema.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile input schema for tool %q: %w", toolName, err)
	}
	return compiled, nil
}
