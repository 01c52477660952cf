package mcp

import (
	"context"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bindTestRequest struct {
	Slug string `json:"slug" jsonschema:"required"`
}

func newTestToolContext(t *testing.T, req any) *toolContext {
	t.Helper()
	c := newToolContext(gojson.Unmarshal, gojson.Marshal)
	c.SetContext(context.Background())
	c.toolName = "create_note"
	if req != nil {
		validator, err := compileInputValidator("create_note", reflectSchema(req))
		require.NoError(t, err)
		c.inputValidator = validator
	}
	return c
}

func TestToolContext_BindWithoutSchemaSkipsValidation(t *testing.T) {
	c := newTestToolContext(t, nil)
	c.args = []byte(`{"slug":"welcome"}`)

	var out bindTestRequest
	require.NoError(t, c.Bind(&out))
	assert.Equal(t, "welcome", out.Slug)
}

func TestToolContext_BindValidatesAgainstInputSchema(t *testing.T) {
	c := newTestToolContext(t, bindTestRequest{})
	c.args = []byte(`{"slug":"welcome"}`)

	var out bindTestRequest
	require.NoError(t, c.Bind(&out))
	assert.Equal(t, "welcome", out.Slug)
}

func TestToolContext_BindRejectsSchemaViolation(t *testing.T) {
	c := newTestToolContext(t, bindTestRequest{})
	c.args = []byte(`{}`)

	var out bindTestRequest
	err := c.Bind(&out)
	require.Error(t, err)
	var invalidInput *InvalidToolInputError
	require.ErrorAs(t, err, &invalidInput)
	assert.Equal(t, "create_note", invalidInput.ToolName)
}

func TestToolContext_BindSkipsEmptyArguments(t *testing.T) {
	c := newTestToolContext(t, bindTestRequest{})
	c.args = nil

	var out bindTestRequest
	require.NoError(t, c.Bind(&out))
}

func TestToolContext_ResetClearsInputValidator(t *testing.T) {
	c := newTestToolContext(t, bindTestRequest{})
	c.args = []byte(`{"slug":"welcome"}`)
	c.dest = new(CallToolContent)
	c.reset()
	assert.Nil(t, c.inputValidator)
}
