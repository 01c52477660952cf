package mcp

import (
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceURI_MarshalUnmarshalRoundTrip(t *testing.T) {
	var r ResourceURI
	require.NoError(t, r.UnmarshalJSON([]byte(`"file:///a.txt"`)))

	b, err := r.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"file:///a.txt"`, string(b))
}

func TestResourceURI_UnmarshalInvalidJSON(t *testing.T) {
	var r ResourceURI
	assert.Error(t, r.UnmarshalJSON([]byte(`not-json`)))
}

func TestTextCallToolContent_MarshalJSON(t *testing.T) {
	c := &textCallToolContent{Text: "hi", marshal: gojson.Marshal}
	b, err := c.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"text","text":"hi"}`, string(b))
	assert.Equal(t, "text", c.GetType())
}

func TestImageCallToolContent_MarshalJSON(t *testing.T) {
	c := &imageCallToolContent{Data: "abc", MimeType: "image/png", marshal: gojson.Marshal}
	b, err := c.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"image","data":"abc","mimeType":"image/png"}`, string(b))
	assert.Equal(t, "image", c.GetType())
}

func TestAudioCallToolContent_MarshalJSON(t *testing.T) {
	c := &audioCallToolContent{Data: "abc", MimeType: "audio/wav", marshal: gojson.Marshal}
	b, err := c.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"audio","data":"abc","mimeType":"audio/wav"}`, string(b))
	assert.Equal(t, "audio", c.GetType())
}

func TestEmbedResourceCallToolContent_MarshalJSON(t *testing.T) {
	inner := textResourceContent{
		resourceContentBase: resourceContentBase{mimeType: "text/plain"},
		text:                "body",
		marshal:             gojson.Marshal,
	}
	c := &embedResourceCallToolContent{Resource: inner, marshal: gojson.Marshal}
	b, err := c.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"resource","resource":{"uri":"","mimeType":"text/plain","text":"body"}}`, string(b))
	assert.Equal(t, "resource", c.GetType())
}
