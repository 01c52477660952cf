package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/jsonrpc2"
)

type echoArgs struct {
	Message string `json:"message"`
}

func TestServer_ToolsCallSucceeds(t *testing.T) {
	s := New("test-server")
	s.Tool("echo", echoArgs{}, func(c ToolContext) error {
		var args echoArgs
		if err := c.Bind(&args); err != nil {
			return err
		}
		return c.String(args.Message)
	})

	h := &connHandler{server: s}
	params, err := json.Marshal(callToolRequestParams{
		Name:      "echo",
		Arguments: json.RawMessage(`{"message":"hi"}`),
	})
	require.NoError(t, err)

	result, err := h.handleToolsCall(context.Background(), &jsonrpc2.Request{
		Method: MethodToolsCall,
		Params: params,
	})
	require.NoError(t, err)

	res, ok := result.(callToolResult)
	require.True(t, ok)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
}

func TestServer_ToolsCallHandlerErrorBecomesIsError(t *testing.T) {
	s := New("test-server")
	s.Tool("boom", echoArgs{}, func(c ToolContext) error {
		return errors.New("handler exploded")
	})

	h := &connHandler{server: s}
	params, err := json.Marshal(callToolRequestParams{Name: "boom"})
	require.NoError(t, err)

	result, err := h.handleToolsCall(context.Background(), &jsonrpc2.Request{
		Method: MethodToolsCall,
		Params: params,
	})
	require.NoError(t, err)

	res, ok := result.(callToolResult)
	require.True(t, ok)
	assert.True(t, res.IsError)
}

func TestServer_ToolsCallUnknownToolIsErrorResult(t *testing.T) {
	s := New("test-server")

	h := &connHandler{server: s}
	params, err := json.Marshal(callToolRequestParams{Name: "missing"})
	require.NoError(t, err)

	result, err := h.handleToolsCall(context.Background(), &jsonrpc2.Request{
		Method: MethodToolsCall,
		Params: params,
	})
	require.NoError(t, err)

	res, ok := result.(callToolResult)
	require.True(t, ok)
	assert.True(t, res.IsError)
}

func TestServer_ToolsListReflectsRegistrations(t *testing.T) {
	s := New("test-server")
	s.Tool("echo", echoArgs{}, func(c ToolContext) error { return nil })

	h := &connHandler{server: s}
	result, err := h.handleToolsList()
	require.NoError(t, err)

	listed, ok := result.(*listToolsResponse)
	require.True(t, ok)
	require.Len(t, listed.Tools, 1)
	assert.Equal(t, "echo", listed.Tools[0].Name)
}

func TestServer_UpdateToolsRejectedWithoutCapability(t *testing.T) {
	s := New("test-server")
	s.Tool("echo", echoArgs{}, func(c ToolContext) error { return nil })

	err := s.UpdateTools([]Tool{{Name: "echo"}, {Name: "reverse"}})
	require.Error(t, err)
	var capErr *CapabilityNotSupportedError
	assert.ErrorAs(t, err, &capErr)
}

func TestServer_UpdateToolsAllowedWithCapability(t *testing.T) {
	s := New("test-server", WithToolListChanged())
	s.Tool("echo", echoArgs{}, func(c ToolContext) error { return nil })

	require.NoError(t, s.UpdateTools([]Tool{{Name: "echo"}, {Name: "reverse"}}))
	assert.Len(t, s.reg.allTools(), 2)
}

func TestServer_PromptRegistrationRejectsMismatchedCompletion(t *testing.T) {
	s := New("test-server")
	defer func() {
		r := recover()
		require.NotNil(t, r)
		_, ok := r.(*InvalidPromptArgumentsError)
		assert.True(t, ok)
	}()

	s.Prompt("greet", func(c PromptContext) error { return nil },
		PromptWithArgumentsFrom(greetingArgs{}),
		PromptWithArgumentCompletion("not-a-field", func(ctx context.Context, value string) ([]string, error) {
			return nil, nil
		}),
	)
}

func TestServer_PromptRegistrationAndGet(t *testing.T) {
	s := New("test-server")
	s.Prompt("greet", func(c PromptContext) error {
		args := c.Arguments()
		name, _ := args["name"].(string)
		return c.User("hello " + name)
	}, PromptWithDescription("greets a user"))

	h := &connHandler{server: s}
	params, err := json.Marshal(getPromptRequestParams{
		Name:      "greet",
		Arguments: map[string]string{"name": "ada"},
	})
	require.NoError(t, err)

	result, err := h.handlePromptsGet(context.Background(), &jsonrpc2.Request{
		Method: MethodPromptsGet,
		Params: params,
	})
	require.NoError(t, err)

	got, ok := result.(*getPromptResult)
	require.True(t, ok)
	assert.Equal(t, "greets a user", got.Description)
	require.Len(t, got.Messages, 1)
}
