package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/jsonrpc2"
)

func TestServer_ResourcesReadStaticResource(t *testing.T) {
	s := New("test-server")
	s.Resource("readme", "file:///readme.txt", func(c ResourceContext) error {
		return c.String("hello")
	})

	h := &connHandler{server: s}
	params, err := json.Marshal(readResourceRequestParams{URI: mustResourceURI("file:///readme.txt")})
	require.NoError(t, err)

	result, err := h.handleResourcesRead(context.Background(), &jsonrpc2.Request{
		Method: MethodResourcesRead,
		Params: params,
	})
	require.NoError(t, err)

	res, ok := result.(*readResourceResult)
	require.True(t, ok)
	require.Len(t, res.Contents, 1)
	text, ok := res.Contents[0].(textResourceContent)
	require.True(t, ok)
	assert.Equal(t, "hello", text.text)
}

func TestServer_ResourcesReadMatchesTemplate(t *testing.T) {
	s := New("test-server")
	s.Resource("file", "file:///{path}", func(c ResourceContext) error {
		return c.String("contents of " + c.Param("path"))
	})

	h := &connHandler{server: s}
	params, err := json.Marshal(readResourceRequestParams{URI: mustResourceURI("file:///a.txt")})
	require.NoError(t, err)

	result, err := h.handleResourcesRead(context.Background(), &jsonrpc2.Request{
		Method: MethodResourcesRead,
		Params: params,
	})
	require.NoError(t, err)

	res, ok := result.(*readResourceResult)
	require.True(t, ok)
	require.Len(t, res.Contents, 1)
	text, ok := res.Contents[0].(textResourceContent)
	require.True(t, ok)
	assert.Equal(t, "contents of a.txt", text.text)
}

func TestServer_ResourcesReadUnknownURI(t *testing.T) {
	s := New("test-server")

	h := &connHandler{server: s}
	params, err := json.Marshal(readResourceRequestParams{URI: mustResourceURI("file:///missing.txt")})
	require.NoError(t, err)

	_, err = h.handleResourcesRead(context.Background(), &jsonrpc2.Request{
		Method: MethodResourcesRead,
		Params: params,
	})
	require.Error(t, err)
	var notFound *ResourceNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestServer_ResourcesReadSequentialReadsEachInvokeHandler(t *testing.T) {
	s := New("test-server")
	var calls int
	s.Resource("counter", "file:///counter", func(c ResourceContext) error {
		calls++
		return c.String("n")
	})

	h := &connHandler{server: s}
	params, err := json.Marshal(readResourceRequestParams{URI: mustResourceURI("file:///counter")})
	require.NoError(t, err)

	req := &jsonrpc2.Request{Method: MethodResourcesRead, Params: params}

	// Sequential reads through the same singleflight key each invoke the
	// handler: singleflight only collapses calls that are in flight at the
	// same time, not every call that shares a key.
	_, err = h.handleResourcesRead(context.Background(), req)
	require.NoError(t, err)
	_, err = h.handleResourcesRead(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestServer_ResourcesTemplatesListReflectsRegistrations(t *testing.T) {
	s := New("test-server")
	s.Resource("file", "file:///{path}", func(c ResourceContext) error { return nil })

	h := &connHandler{server: s}
	result, err := h.handleResourcesTemplatesList()
	require.NoError(t, err)

	listed, ok := result.(*listResourceTemplatesResult)
	require.True(t, ok)
	require.Len(t, listed.ResourceTemplates, 1)
	assert.Equal(t, "file", listed.ResourceTemplates[0].Name)
}

func TestServer_ResourcesListIncludesStaticAndTemplateResources(t *testing.T) {
	s := New("test-server")
	s.Resource("readme", "file:///readme.txt", func(c ResourceContext) error { return nil })
	s.Resource("file", "file:///{path}", func(c ResourceContext) error { return nil },
		ResourceTemplateWithList(func(ctx context.Context) ([]Resource, error) {
			return []Resource{{URI: mustResourceURI("file:///a.txt"), Name: "a"}}, nil
		}),
	)

	h := &connHandler{server: s}
	result, err := h.handleResourcesList(context.Background(), &jsonrpc2.Request{Method: MethodResourcesList})
	require.NoError(t, err)

	listed, ok := result.(*listResourcesResult)
	require.True(t, ok)
	assert.Len(t, listed.Resources, 2)
}
