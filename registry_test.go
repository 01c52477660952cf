package mcp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddToolDuplicate(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.addTool(Tool{Name: "echo"}))

	err := r.addTool(Tool{Name: "echo"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyRegistered))
}

func TestRegistry_ToolsPreserveRegistrationOrder(t *testing.T) {
	r := newRegistry()
	names := []string{"zeta", "alpha", "mid"}
	for _, n := range names {
		require.NoError(t, r.addTool(Tool{Name: n}))
	}

	var got []string
	for _, tool := range r.allTools() {
		got = append(got, tool.Name)
	}
	assert.Equal(t, names, got)
}

func TestRegistry_UpdateToolsRequiresListChangedCapability(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.addTool(Tool{Name: "echo"}))

	err := r.updateTools([]Tool{{Name: "echo"}, {Name: "reverse"}}, false)
	require.Error(t, err)
	var capErr *CapabilityNotSupportedError
	assert.ErrorAs(t, err, &capErr)

	require.NoError(t, r.updateTools([]Tool{{Name: "echo"}, {Name: "reverse"}}, true))
	assert.Len(t, r.allTools(), 2)
}

func TestRegistry_PromptDuplicate(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.addPrompt(Prompt{Name: "greeting"}))

	err := r.addPrompt(Prompt{Name: "greeting"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyRegistered))

	p, ok := r.prompt("greeting")
	require.True(t, ok)
	assert.Equal(t, "greeting", p.Name)
}
