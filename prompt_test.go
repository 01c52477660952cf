package mcp

import (
	"context"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPromptContext() *promptContext {
	c := newPromptContext(gojson.Unmarshal, gojson.Marshal)
	c.SetContext(context.Background())
	c.promptName = "greeting"
	c.args = map[string]any{"name": "ada"}
	messages := []promptMessage{}
	c.messages = &messages
	return c
}

func TestPromptContext_ArgumentsAndName(t *testing.T) {
	c := newTestPromptContext()
	assert.Equal(t, "greeting", c.PromptName())
	assert.Equal(t, "ada", c.Arguments()["name"])
}

func TestPromptContext_AppendsMessagesInOrder(t *testing.T) {
	c := newTestPromptContext()
	require.NoError(t, c.System("be concise"))
	require.NoError(t, c.User("hello"))
	require.NoError(t, c.Assistant("hi there"))

	require.Len(t, *c.messages, 3)
	assert.Equal(t, RoleSystem, (*c.messages)[0].Role)
	assert.Equal(t, RoleUser, (*c.messages)[1].Role)
	assert.Equal(t, RoleAssistant, (*c.messages)[2].Role)
}

func TestPromptContext_Describe(t *testing.T) {
	c := newTestPromptContext()
	assert.Empty(t, c.description)
	c.Describe("greets a user by name")
	assert.Equal(t, "greets a user by name", c.description)
}

func TestPromptContext_Reset(t *testing.T) {
	c := newTestPromptContext()
	require.NoError(t, c.User("hi"))
	c.Describe("x")

	c.reset()
	assert.Empty(t, c.promptName)
	assert.Nil(t, c.args)
	assert.Empty(t, c.description)
	assert.Nil(t, c.messages)
}

func TestPromptOptions_Description(t *testing.T) {
	o := &promptOptions{}
	PromptWithDescription("a greeting prompt")(o)
	assert.Equal(t, "a greeting prompt", o.description)
}

func TestPromptOptions_Arguments(t *testing.T) {
	o := &promptOptions{}
	PromptWithArguments(PromptArgument{Name: "name", Required: true})(o)
	require.Len(t, o.arguments, 1)
	assert.Equal(t, "name", o.arguments[0].Name)
	assert.True(t, o.arguments[0].Required)
}

func TestPromptOptions_ArgumentCompletion(t *testing.T) {
	o := &promptOptions{}
	fn := func(ctx context.Context, value string) ([]string, error) { return []string{value}, nil }
	PromptWithArgumentCompletion("name", fn)(o)
	require.Contains(t, o.completions, "name")
}

type greetingArgs struct {
	Name string `json:"name" jsonschema:"description=who to greet"`
}

func TestPromptOptions_ArgumentsFromReflectsStruct(t *testing.T) {
	o := &promptOptions{}
	PromptWithArgumentsFrom(greetingArgs{})(o)

	require.Len(t, o.arguments, 1)
	assert.Equal(t, "name", o.arguments[0].Name)
	assert.NotNil(t, o.completable)
}
