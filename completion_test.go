package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anko-systems/kirin-mcp/uritemplate"
)

func TestCapCompletion_UnderLimit(t *testing.T) {
	c := capCompletion([]string{"a", "b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, c.Values)
	assert.Equal(t, 3, c.Total)
	assert.False(t, c.HasMore)
}

func TestCapCompletion_OverLimit(t *testing.T) {
	values := make([]string, maxCompletionValues+10)
	for i := range values {
		values[i] = "v"
	}
	c := capCompletion(values)
	assert.Len(t, c.Values, maxCompletionValues)
	assert.Equal(t, maxCompletionValues+10, c.Total)
	assert.True(t, c.HasMore)
}

func TestCompleteAgainstPrompt_UnknownPrompt(t *testing.T) {
	reg := newRegistry()
	_, err := completeAgainstPrompt(context.Background(), reg, completionReference{Name: "missing"}, completionArgument{Name: "x"})
	require.Error(t, err)
	var notFound *PromptNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestCompleteAgainstPrompt_NoCallbackReturnsEmpty(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.addPrompt(Prompt{Name: "greet"}))

	c, err := completeAgainstPrompt(context.Background(), reg, completionReference{Name: "greet"}, completionArgument{Name: "name"})
	require.NoError(t, err)
	assert.Empty(t, c.Values)
}

func TestCompleteAgainstPrompt_UsesCallback(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.addPrompt(Prompt{
		Name: "greet",
		completions: map[string]CompletionFunc{
			"name": func(ctx context.Context, value string) ([]string, error) {
				return []string{"alice", "amelia"}, nil
			},
		},
	}))

	c, err := completeAgainstPrompt(context.Background(), reg, completionReference{Name: "greet"}, completionArgument{Name: "name", Value: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "amelia"}, c.Values)
}

func TestCompleteAgainstResource_ExactStringMatch(t *testing.T) {
	reg := newRegistry()
	compiled, err := uritemplate.Parse("file:///{path}")
	require.NoError(t, err)
	require.NoError(t, reg.addResourceTemplate("file", resourceTemplate{
		Name:     "file",
		compiled: compiled,
		completions: map[string]CompletionFunc{
			"path": func(ctx context.Context, value string) ([]string, error) {
				return []string{"a.txt", "b.txt"}, nil
			},
		},
	}))

	c, err := completeAgainstResource(context.Background(), reg, completionReference{URI: "file:///{path}"}, completionArgument{Name: "path"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, c.Values)
}

func TestCompleteAgainstResource_NotFound(t *testing.T) {
	reg := newRegistry()
	_, err := completeAgainstResource(context.Background(), reg, completionReference{URI: "file:///missing"}, completionArgument{Name: "path"})
	require.Error(t, err)
	var notFound *ResourceNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestCompleteWithTimeout_PropagatesSuccess(t *testing.T) {
	result, err := completeWithTimeout(context.Background(), func(ctx context.Context) (completion, error) {
		return completion{Values: []string{"ok"}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, result.Values)
}

func TestCompleteWithTimeout_PropagatesProviderError(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := completeWithTimeout(context.Background(), func(ctx context.Context) (completion, error) {
		return completion{}, wantErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestCompleteWithTimeout_CancelsSlowProvider(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := completeWithTimeout(ctx, func(ctx context.Context) (completion, error) {
		<-ctx.Done()
		return completion{}, ctx.Err()
	})
	require.Error(t, err)
}
