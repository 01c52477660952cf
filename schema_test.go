package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query string `json:"query" jsonschema:"description=search text,required"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=max results"`
}

func TestReflectSchema_DerivesPropertiesFromStruct(t *testing.T) {
	schema := reflectSchema(searchArgs{})
	require.NotNil(t, schema)
	assert.Empty(t, schema.Version)

	_, ok := schema.Properties.Get("query")
	assert.True(t, ok)
	_, ok = schema.Properties.Get("limit")
	assert.True(t, ok)
}

func TestPromptArguments_ReadsPropertiesAndRequired(t *testing.T) {
	schema := reflectSchema(searchArgs{})
	args := promptArguments(schema)

	require.Len(t, args, 2)
	byName := make(map[string]PromptArgument, len(args))
	for _, a := range args {
		byName[a.Name] = a
	}
	assert.True(t, byName["query"].Required)
}

func TestPromptArguments_NilSchema(t *testing.T) {
	assert.Nil(t, promptArguments(nil))
}

func TestCompletableFields_NoneTaggedByDefault(t *testing.T) {
	schema := reflectSchema(searchArgs{})
	fields := completableFields(schema)
	assert.Empty(t, fields)
}

func TestIsCompletable_FalseForNilOrUntagged(t *testing.T) {
	assert.False(t, isCompletable(nil))
}
