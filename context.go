package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"sync"
	"weak"

	schemavalidate "github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/exp/jsonrpc2"
)

type Context interface {
	// Get retrieves data from the context.
	Get(key any) any
	// Set saves data in the context.
	Set(key any, val any)
	// JSONRPCRequest returns the JSONRPC request
	JSONRPCRequest() jsonrpc2.Request
	// Context returns the context
	Context() context.Context
	// SetContext sets the context
	SetContext(ctx context.Context)
}

var _ Context = (*_context)(nil)

type _context struct {
	ctx               context.Context
	store             sync.Map
	jsonrpcRequest    *jsonrpc2.Request
	jsonUnmarshalFunc JSONUnmarshalFunc
	jsonMarshalFunc   JSONMarshalFunc
}

func (c *_context) Get(key any) any {
	v, _ := c.store.Load(key)
	return v
}

func (c *_context) Set(key any, val any) {
	c.store.Store(key, val)
}

func (c *_context) JSONRPCRequest() jsonrpc2.Request {
	return *c.jsonrpcRequest
}

func (c *_context) Context() context.Context {
	return c.ctx
}

func (c *_context) SetContext(ctx context.Context) {
	c.ctx = ctx
}

func (c *_context) reset() {
	c.store.Clear()
	c.jsonrpcRequest = nil
	c.ctx = nil
}

// BindableContext is the context for handlers that able to bind JSON data
type BindableContext interface {
	Context
	// Bind binds json data into the provided type `i`.
	Bind(i any) error
}

// ToolContext is the context for Tool handlers
type ToolContext interface {
	BindableContext
	// ToolName returns the name of the Tool
	ToolName() string
	// Arguments return the arguments passed to the Tool
	Arguments() json.RawMessage
	// String sends plain text content
	String(s string) error
	// JSON sends JSON content
	JSON(i any) error
	// Image sends image content
	Image(data []byte, mimeType string) error
	// Audio sends audio content
	Audio(data []byte, mimeType string) error
	// JSONResource sends embed JSON resource content
	JSONResource(uri *url.URL, i any, mimeType string) error
	// StringResource sends embed string resource content
	StringResource(uri *url.URL, s string, mimeType string) error
	// BinaryResource sends embed binary resource content
	BinaryResource(uri *url.URL, data []byte, mimeType string) error
}

var (
	_ Context     = (*toolContext)(nil)
	_ ToolContext = (*toolContext)(nil)
)

type toolContext struct {
	_context
	toolName       string
	args           json.RawMessage
	annotation     *ToolAnnotations
	dest           *CallToolContent
	inputValidator *schemavalidate.Schema
}

func (c *toolContext) Arguments() json.RawMessage {
	return c.args
}

// Bind validates the raw call arguments against the tool's registered input
// schema, when one was compiled, before decoding them into i. A schema
// rejection surfaces as InvalidToolInputError rather than the decode error
// json.Unmarshal would otherwise produce, so a caller can distinguish "wrong
// shape" from "violates a declared constraint" (min/max, enum, pattern...).
func (c *toolContext) Bind(i any) error {
	args := c.Arguments()
	if len(args) == 0 {
		return nil
	}
	if c.inputValidator != nil {
		var decoded any
		if err := json.Unmarshal(args, &decoded); err != nil {
			return &InvalidToolInputError{ToolName: c.toolName, Cause: err}
		}
		if err := c.inputValidator.Validate(decoded); err != nil {
			return &InvalidToolInputError{ToolName: c.toolName, Cause: err}
		}
	}
	return c.jsonUnmarshalFunc(args, i)
}

func (c *toolContext) String(s string) error {
	*c.dest = &textCallToolContent{
		Text:        s,
		Annotations: c.annotation,
		marshal:     c.jsonMarshalFunc,
	}
	return nil
}

func (c *toolContext) JSON(i any) error {
	b, err := c.jsonMarshalFunc(i)
	if err != nil {
		return err
	}
	*c.dest = &textCallToolContent{
		Text:        string(b),
		Annotations: c.annotation,
		marshal:     c.jsonMarshalFunc,
	}
	return nil
}

func (c *toolContext) Image(data []byte, mimeType string) error {
	enc := base64.StdEncoding.EncodeToString(data)
	*c.dest = &imageCallToolContent{
		Data:     enc,
		MimeType: mimeType,
		marshal:  c.jsonMarshalFunc,
	}
	return nil
}

func (c *toolContext) Audio(data []byte, mimeType string) error {
	enc := base64.StdEncoding.EncodeToString(data)
	*c.dest = &audioCallToolContent{
		Data:     enc,
		MimeType: mimeType,
		marshal:  c.jsonMarshalFunc,
	}
	return nil
}

func (c *toolContext) JSONResource(uri *url.URL, i any, mimeType string) error {
	b, err := c.jsonMarshalFunc(i)
	if err != nil {
		return err
	}
	if mimeType == "" {
		mimeType = "application/json"
	}
	*c.dest = &embedResourceCallToolContent{
		Resource: &textResourceContent{
			resourceContentBase: resourceContentBase{
				uri:      weak.Make(uri),
				mimeType: mimeType,
			},
			text:    string(b),
			marshal: c.jsonMarshalFunc,
		},
		marshal: c.jsonMarshalFunc,
	}
	return nil
}

func (c *toolContext) StringResource(uri *url.URL, s string, mimeType string) error {
	if mimeType == "" {
		mimeType = "text/plain"
	}
	*c.dest = &embedResourceCallToolContent{
		Resource: &textResourceContent{
			resourceContentBase: resourceContentBase{
				uri:      weak.Make(uri),
				mimeType: mimeType,
			},
			text:    s,
			marshal: c.jsonMarshalFunc,
		},
		marshal: c.jsonMarshalFunc,
	}
	return nil
}

func (c *toolContext) BinaryResource(uri *url.URL, data []byte, mimeType string) error {
	enc := base64.StdEncoding.EncodeToString(data)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	*c.dest = &embedResourceCallToolContent{
		Resource: &binaryResourceContent{
			resourceContentBase: resourceContentBase{
				uri:      weak.Make(uri),
				mimeType: mimeType,
			},
			blob:    enc,
			marshal: c.jsonMarshalFunc,
		},
		marshal: c.jsonMarshalFunc,
	}
	return nil
}

func (c *toolContext) ToolName() string {
	return c.toolName
}

// reset resets the Tool context
func (c *toolContext) reset() {
	c._context.reset()
	c.annotation = nil
	c.toolName = ""
	c.dest = nil
	c.args = nil
	c.inputValidator = nil
}

// newToolContext creates a new Tool context
func newToolContext(jsonUnmarshalFunc JSONUnmarshalFunc, jsonMarshalFunc JSONMarshalFunc) *toolContext {
	return &toolContext{
		_context: _context{
			jsonUnmarshalFunc: jsonUnmarshalFunc,
			jsonMarshalFunc:   jsonMarshalFunc,
		},
	}
}

// ResourceContext is the context for resource handlers
type ResourceContext interface {
	Context
	// ResourceURI returns the uri of the resource
	ResourceURI() *url.URL
	// MimeType returns the mime type of the resource
	MimeType() string
	// Param retrieves the path parameter by name
	Param(name string) string
	// String sends plain text content
	String(s string) error
	// JSON sends JSON content
	JSON(i any) error
	// Blob sends blob content
	//
	//  - data: the blob data
	//  - mimeType: (Optional) the mime type of the blob. if not provided, a resource mime type will be used.
	Blob(data []byte, mimeType string) error
}

var _ ResourceContext = (*resourceContext)(nil)

type resourceContext struct {
	_context
	uri        weak.Pointer[url.URL]
	mimeType   string
	pathParams map[string]string
	dest       *readResourceResult
}

func (c *resourceContext) ResourceURI() *url.URL {
	return c.uri.Value()
}

func (c *resourceContext) MimeType() string {
	return c.mimeType
}

func (c *resourceContext) Param(name string) string {
	return c.pathParams[name]
}

func (c *resourceContext) String(s string) error {
	c.dest.Contents = append(c.dest.Contents, textResourceContent{
		resourceContentBase: resourceContentBase{
			uri:      c.uri,
			mimeType: "text/plain",
		},
		text:    s,
		marshal: c.jsonMarshalFunc,
	})
	return nil
}

func (c *resourceContext) JSON(i any) error {
	b, err := c.jsonMarshalFunc(i)
	if err != nil {
		return err
	}
	mimeType := c.mimeType
	if mimeType == "" {
		mimeType = "application/json"
	}
	c.dest.Contents = append(c.dest.Contents, textResourceContent{
		resourceContentBase: resourceContentBase{
			uri:      c.uri,
			mimeType: mimeType,
		},
		text:    string(b),
		marshal: c.jsonMarshalFunc,
	})
	return nil
}

func (c *resourceContext) Blob(data []byte, mimeType string) error {
	enc := base64.StdEncoding.EncodeToString(data)
	switch {
	case mimeType != "":
		// do nothing
	case c.mimeType != "":
		mimeType = c.mimeType
	default:
		mimeType = "application/octet-stream"
	}
	c.dest.Contents = append(c.dest.Contents, binaryResourceContent{
		resourceContentBase: resourceContentBase{
			uri:      c.uri,
			mimeType: mimeType,
		},
		blob:    enc,
		marshal: c.jsonMarshalFunc,
	})
	return nil
}

func (c *resourceContext) reset() {
	c._context.reset()
	c.uri = weak.Pointer[url.URL]{}
	c.mimeType = ""
	c.pathParams = nil
	c.dest = nil
}

// newResourceContext creates a new resource context
func newResourceContext(jsonUnmarshalFunc JSONUnmarshalFunc, jsonMarshalFunc JSONMarshalFunc) *resourceContext {
	return &resourceContext{
		_context: _context{
			jsonUnmarshalFunc: jsonUnmarshalFunc,
			jsonMarshalFunc:   jsonMarshalFunc,
		},
	}
}

// ResourceListContext is the context for resource list handlers
type ResourceListContext interface {
	Context

	// NextCursor

	// Resources returns the registered static resources together with the
	// concrete resources listed by each resource template's list function,
	// keyed by URI. Templates themselves are not included.
	Resources() map[string]Resource

	// SetResource sets the resource by uri
	//
	// must be the actual path and resource, not the template.
	SetResource(uri string, resource Resource)
}

var _ ResourceListContext = (*resourceListContext)(nil)

type resourceListContext struct {
	_context
	resources map[string]Resource
	dest      *map[string]Resource
}

func (r *resourceListContext) Resources() map[string]Resource {
	return r.resources
}

func (r *resourceListContext) SetResource(uri string, resource Resource) {
	(*r.dest)[uri] = resource
}

func (r *resourceListContext) reset() {
	r._context.reset()
	r.resources = nil
	r.dest = nil
}

// newResourceListContext creates a new resource list context
func newResourceListContext(jsonUnmarshalFunc JSONUnmarshalFunc, jsonMarshalFunc JSONMarshalFunc) *resourceListContext {
	return &resourceListContext{
		_context: _context{
			jsonUnmarshalFunc: jsonUnmarshalFunc,
			jsonMarshalFunc:   jsonMarshalFunc,
		},
	}
}
