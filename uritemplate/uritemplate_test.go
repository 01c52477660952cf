package uritemplate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anko-systems/kirin-mcp/uritemplate"
)

func TestParse_InvalidPattern(t *testing.T) {
	for _, pattern := range []string{
		"/users/{id",
		"/users/{}",
		"/users/{,id}",
	} {
		t.Run(pattern, func(t *testing.T) {
			_, err := uritemplate.Parse(pattern)
			require.Error(t, err)
			var invalid *uritemplate.InvalidPatternError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestExpand_OperatorsTable(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		vars    map[string]any
		want    string
	}{
		{"none", "/users/{id}", map[string]any{"id": "42"}, "/users/42"},
		{"none-encodes", "/q/{term}", map[string]any{"term": "a b"}, "/q/a%20b"},
		{"reserved", "/{+path}", map[string]any{"path": "a/b"}, "/a/b"},
		{"fragment", "{#frag}", map[string]any{"frag": "top"}, "#top"},
		{"query", "/search{?q}", map[string]any{"q": "cats"}, "/search?cats"},
		{"querycont", "/search{&q}", map[string]any{"q": "cats"}, "/search&cats"},
		{"label", "/file{.ext}", map[string]any{"ext": "json"}, "/file.json"},
		{"pathseg", "/users{/id}", map[string]any{"id": "42"}, "/users/42"},
		{"list", "/items/{ids}", map[string]any{"ids": []string{"a", "b"}}, "/items/a,b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tmpl, err := uritemplate.Parse(tc.pattern)
			require.NoError(t, err)
			assert.Equal(t, tc.want, tmpl.Expand(tc.vars))
		})
	}
}

func TestExpand_ErasesMissingVariables(t *testing.T) {
	tmpl, err := uritemplate.Parse("/users/{id}/posts{/post}")
	require.NoError(t, err)
	assert.Equal(t, "/users/42/posts", tmpl.Expand(map[string]any{"id": "42"}))
	assert.Equal(t, "/users//posts", tmpl.Expand(map[string]any{}))
}

func TestMatch(t *testing.T) {
	tmpl, err := uritemplate.Parse("/users/{id}/posts/{post}")
	require.NoError(t, err)

	bindings, ok := tmpl.Match("/users/42/posts/7")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"id": "42", "post": "7"}, bindings)

	_, ok = tmpl.Match("/other")
	assert.False(t, ok)
}

func TestMatch_MultiNameExpressionSharesCapture(t *testing.T) {
	tmpl, err := uritemplate.Parse("/p/{a,b}")
	require.NoError(t, err)

	bindings, ok := tmpl.Match("/p/x,y")
	require.True(t, ok)
	// documented bug: both variables receive the identical raw capture.
	assert.Equal(t, "x,y", bindings["a"])
	assert.Equal(t, "x,y", bindings["b"])
}

func TestExpandMatchRoundTrip_SingleVariable(t *testing.T) {
	patterns := []string{
		"/r/{v}",
		"/r/{+v}",
		"/r{#v}",
		"/r{.v}",
		"/r{/v}",
		"/r{?v}",
		"/r{&v}",
	}
	for _, p := range patterns {
		t.Run(p, func(t *testing.T) {
			tmpl, err := uritemplate.Parse(p)
			require.NoError(t, err)
			expanded := tmpl.Expand(map[string]any{"v": "hello"})
			bindings, ok := tmpl.Match(expanded)
			require.True(t, ok)
			assert.Equal(t, "hello", bindings["v"])
		})
	}
}
