package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"
	"weak"

	gojson "github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
	"golang.org/x/exp/jsonrpc2"
	"golang.org/x/sync/singleflight"

	internaltransport "github.com/anko-systems/kirin-mcp/internal/transport"
	"github.com/anko-systems/kirin-mcp/transport"
	"github.com/anko-systems/kirin-mcp/uritemplate"
)

// Server is the top-level framework instance: register tools, resources,
// resource templates, and prompts against it, then Start it against a
// transport.
type Server struct {
	name    string
	version string

	startupMutex sync.RWMutex

	cold    context.Context
	warming context.CancelFunc

	logger *slog.Logger

	jsonUnmarshalFunc JSONUnmarshalFunc
	jsonMarshalFunc   JSONMarshalFunc
	base64StringFunc  Base64StringFunc

	toolMiddleware  []ToolMiddlewareFunc
	toolContextPool sync.Pool

	resourceMiddleware     []ResourceMiddlewareFunc
	resourceContextPool    sync.Pool
	resourceListHandler    ResourceListHandlerFunc
	resourceListContextPool sync.Pool

	promptContextPool sync.Pool

	resourceChangeSubscriberPool     sync.Pool
	resourceListChangeSubscriberPool sync.Pool
	resourceListChangeCtx            *resourceListChangeContext

	handlerPool sync.Pool

	reg          *registry
	capabilities ServerCapabilities

	resourcesSubscriptionManager          ResourcesSubscriptionManager
	resourcesSubscriptionOptions          resourcesSubscriptionOptions
	resourceListChangeSubscriptionOptions resourceListChangeSubscriptionOptions
	resourceListChangeSubscriptionManager ResourceListChangeSubscriptionManager

	sessionManagerOptions sessionManagerOptions
	sessionManager        SessionManager

	nowFunc NowFunc

	readThrottle singleflight.Group
}

// resourcesSubscriptionOptions is the options for resource subscription.
type resourcesSubscriptionOptions struct {
	healthCheckInterval time.Duration
	store               ResourceModificationSubscriptionStore
}

// resourceListChangeSubscriptionOptions is the options for resource list subscription.
type resourceListChangeSubscriptionOptions struct {
	healthCheckInterval time.Duration
	store               ResourceListChangeSubscriptionStore
}

// sessionManagerOptions is the options for session management.
type sessionManagerOptions struct {
	store SessionStore
}

// ToolMiddlewareFunc defines a function to process Tool middleware.
type ToolMiddlewareFunc func(next ToolHandlerFunc) ToolHandlerFunc

// ToolHandlerFunc defines a function to serve Tool requests.
type ToolHandlerFunc func(c ToolContext) error

// ResourceHandlerFunc defines a function to serve resource requests.
type ResourceHandlerFunc func(c ResourceContext) error

// ResourceMiddlewareFunc defines a function to process resource middleware.
type ResourceMiddlewareFunc func(next ResourceHandlerFunc) ResourceHandlerFunc

// ResourceListHandlerFunc defines a function to serve resource list requests.
type ResourceListHandlerFunc func(c ResourceListContext) error

// DefaultResourceListHandler surfaces every registered static resource
// unconditionally; resources behind a template only show up if the template
// itself contributed concrete entries via its listFunc (handled before this
// runs, see handleResourcesList).
func DefaultResourceListHandler(c ResourceListContext) error {
	for k, v := range c.Resources() {
		c.SetResource(k, v)
	}
	return nil
}

// ResourceListMiddlewareFunc defines a function to process resource list middleware.
type ResourceListMiddlewareFunc func(next ResourceListHandlerFunc) ResourceListHandlerFunc

// ResourceChangeObserverFunc defines a function to handle resource change notifications.
type ResourceChangeObserverFunc func(c ResourceChangeContext)

// ResourceListChangeObserverFunc defines a function to handle resource list change notifications.
type ResourceListChangeObserverFunc func(c ResourceListChangeContext)

// JSONUnmarshalFunc defines a function to unmarshal JSON data.
type JSONUnmarshalFunc func(data []byte, v any) error

// JSONMarshalFunc defines a function to marshal JSON data.
type JSONMarshalFunc func(v any) ([]byte, error)

// Base64StringFunc defines a function to encode binary data to a base64 string.
type Base64StringFunc func(data []byte) string

// NowFunc defines a function to get the current time.
type NowFunc func() time.Time

// Option configures the Server instance.
type Option func(*Server)

func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// WithLogger sets the structured logger the server uses to report a resource
// template's list function failing during resources/list. Other diagnostics
// (ConnIO conversion failures, session store debug logs) go to the package-level
// slog functions instead. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithJSONUnmarshalFunc sets the JSON unmarshal function.
func WithJSONUnmarshalFunc(f JSONUnmarshalFunc) Option {
	return func(s *Server) { s.jsonUnmarshalFunc = f }
}

// WithJSONMarshalFunc sets the JSON marshal function.
func WithJSONMarshalFunc(f JSONMarshalFunc) Option {
	return func(s *Server) { s.jsonMarshalFunc = f }
}

// WithNowFunc sets the function to get the current time.
func WithNowFunc(f NowFunc) Option {
	return func(s *Server) { s.nowFunc = f }
}

// WithResourceSubscriptionHealthCheckInterval sets the health check interval for resource subscriptions.
func WithResourceSubscriptionHealthCheckInterval(interval time.Duration) Option {
	return func(s *Server) { s.resourcesSubscriptionOptions.healthCheckInterval = interval }
}

// WithResourceListChangeSubscriptionHealthCheckInterval sets the health check interval for resource list subscriptions.
func WithResourceListChangeSubscriptionHealthCheckInterval(interval time.Duration) Option {
	return func(s *Server) { s.resourceListChangeSubscriptionOptions.healthCheckInterval = interval }
}

// WithResourcesListChangeSubscriptionStore sets the ResourceListChangeSubscriptionStore.
func WithResourcesListChangeSubscriptionStore(store ResourceListChangeSubscriptionStore) Option {
	return func(s *Server) { s.resourceListChangeSubscriptionOptions.store = store }
}

// WithResourcesSubscriptionStore sets the ResourceModificationSubscriptionStore.
func WithResourcesSubscriptionStore(store ResourceModificationSubscriptionStore) Option {
	return func(s *Server) { s.resourcesSubscriptionOptions.store = store }
}

// WithSessionStore sets the SessionStore.
func WithSessionStore(store SessionStore) Option {
	return func(s *Server) { s.sessionManagerOptions.store = store }
}

// New creates a new Server instance.
func New(name string, options ...Option) *Server {
	cold, warming := context.WithCancel(context.Background())
	s := &Server{
		name:              name,
		version:           "1.0.0",
		logger:            slog.Default(),
		reg:               newRegistry(),
		jsonMarshalFunc:   gojson.Marshal,
		jsonUnmarshalFunc: gojson.Unmarshal,
		base64StringFunc:  base64Encode,
		resourceListChangeCtx: &resourceListChangeContext{
			ctx:        context.Background(),
			subscriber: make(map[string]ResourceListChangeSubscriber),
		},
		cold:    cold,
		warming: warming,
		nowFunc: time.Now,
		resourceListChangeSubscriptionOptions: resourceListChangeSubscriptionOptions{
			healthCheckInterval: time.Minute,
		},
		resourcesSubscriptionOptions: resourcesSubscriptionOptions{
			healthCheckInterval: time.Minute,
		},
		sessionManagerOptions: sessionManagerOptions{
			store: &InMemorySessionStore{},
		},
	}
	if !s.startupMutex.TryLock() {
		panic(ErrServerLockingConflicts)
	}
	defer s.startupMutex.Unlock()

	s.resourceListHandler = DefaultResourceListHandler

	for _, opt := range options {
		opt(s)
	}
	s.toolContextPool = sync.Pool{
		New: func() any { return newToolContext(s.jsonUnmarshalFunc, s.jsonMarshalFunc) },
	}
	s.resourceContextPool = sync.Pool{
		New: func() any { return newResourceContext(s.jsonUnmarshalFunc, s.jsonMarshalFunc) },
	}
	s.resourceListContextPool = sync.Pool{
		New: func() any { return newResourceListContext(s.jsonUnmarshalFunc, s.jsonMarshalFunc) },
	}
	s.promptContextPool = sync.Pool{
		New: func() any { return newPromptContext(s.jsonUnmarshalFunc, s.jsonMarshalFunc) },
	}
	s.resourceChangeSubscriberPool = sync.Pool{
		New: func() any { return &resourceChangeSubscriber{} },
	}
	s.resourceListChangeSubscriberPool = sync.Pool{
		New: func() any { return &resourceListChangeSubscriber{} },
	}
	if s.resourceListChangeSubscriptionOptions.store == nil {
		s.resourceListChangeSubscriptionOptions.store = &InMemoryResourceListChangeSubscriptionStore{
			nowFunc:                    s.nowFunc,
			subscriptionHealthInterval: s.resourceListChangeSubscriptionOptions.healthCheckInterval,
		}
	}
	s.resourceListChangeSubscriptionManager = &resourceListChangeSubscriptionManager{
		nowFunc:                    s.nowFunc,
		subscriptionHealthInterval: s.resourceListChangeSubscriptionOptions.healthCheckInterval,
		store:                      s.resourceListChangeSubscriptionOptions.store,
	}
	if s.resourcesSubscriptionOptions.store == nil {
		s.resourcesSubscriptionOptions.store = &InMemoryResourceModificationSubscriptionStore{
			nowFunc:                    s.nowFunc,
			subscriptionHealthInterval: s.resourcesSubscriptionOptions.healthCheckInterval,
		}
	}
	s.resourcesSubscriptionManager = &resourcesSubscribeManager{
		nowFunc:                    s.nowFunc,
		subscriptionHealthInterval: s.resourcesSubscriptionOptions.healthCheckInterval,
		store:                      s.resourcesSubscriptionOptions.store,
	}
	s.sessionManager = &sessionManager{
		store:                     s.sessionManagerOptions.store,
		resourceSubscriptions:     s.resourcesSubscriptionOptions.store,
		resourceListSubscriptions: s.resourceListChangeSubscriptionOptions.store,
	}
	return s
}

func base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

type toolOptions struct {
	description string
	annotation  ToolAnnotations
	middlewares []ToolMiddlewareFunc
}

// ToolOption configures the Tool options.
type ToolOption func(*toolOptions)

func ToolWithDescription(description string) ToolOption {
	return func(o *toolOptions) { o.description = description }
}

func ToolWithAnnotations(annotations ToolAnnotations) ToolOption {
	return func(o *toolOptions) { o.annotation = annotations }
}

func ToolWithMiddleware(middlewares ...ToolMiddlewareFunc) ToolOption {
	return func(o *toolOptions) {
		slices.Reverse(middlewares)
		o.middlewares = slices.Concat(middlewares, o.middlewares)
	}
}

// Tool registers a new Tool with the given name, input schema prototype, and handler.
func (s *Server) Tool(name string, req any, handler ToolHandlerFunc, options ...ToolOption) {
	if !s.startupMutex.TryLock() {
		panic(ErrServerLockingConflicts)
	}
	defer s.startupMutex.Unlock()

	if s.capabilities.Tools == nil {
		s.capabilities.Tools = &ToolCapability{}
	}

	opts := &toolOptions{}
	for _, o := range options {
		o(opts)
	}

	f := handler
	slices.Reverse(opts.middlewares)
	for _, m := range opts.middlewares {
		f = m(f)
	}

	inputSchema := reflectSchema(req)
	validator, err := compileInputValidator(name, inputSchema)
	if err != nil {
		panic(err)
	}

	if err := s.reg.addTool(Tool{
		Name:           name,
		Description:    opts.description,
		InputSchema:    inputSchema,
		Annotations:    &opts.annotation,
		handler:        f,
		inputValidator: validator,
	}); err != nil {
		panic(err)
	}
}

type resourceOptions struct {
	description string
	mimeType    string
	middlewares []ResourceMiddlewareFunc
	listFunc    func(ctx context.Context) ([]Resource, error)
	completions map[string]CompletionFunc
}

// ResourceOption configures the resource options.
type ResourceOption func(*resourceOptions)

func ResourceWithDescription(description string) ResourceOption {
	return func(o *resourceOptions) { o.description = description }
}

func ResourceWithMimeType(mimeType string) ResourceOption {
	return func(o *resourceOptions) { o.mimeType = mimeType }
}

func ResourceWithMiddleware(middlewares ...ResourceMiddlewareFunc) ResourceOption {
	return func(o *resourceOptions) {
		slices.Reverse(middlewares)
		o.middlewares = slices.Concat(middlewares, o.middlewares)
	}
}

// ResourceTemplateWithList registers a callback that enumerates concrete
// resources currently reachable through this template, contributing to
// resources/list alongside the static resource set.
func ResourceTemplateWithList(fn func(ctx context.Context) ([]Resource, error)) ResourceOption {
	return func(o *resourceOptions) { o.listFunc = fn }
}

// ResourceTemplateWithArgumentCompletion registers a completion callback for
// one of the template's variables, consulted by completion/complete when
// ref.type == "ref/resource".
func ResourceTemplateWithArgumentCompletion(variable string, fn CompletionFunc) ResourceOption {
	return func(o *resourceOptions) {
		if o.completions == nil {
			o.completions = make(map[string]CompletionFunc)
		}
		o.completions[variable] = fn
	}
}

// Resource registers a new resource. If uri contains RFC 6570 template
// expressions, it is registered as a resource template (resources/read
// matches it against uritemplate.Match); otherwise it is a static resource.
func (s *Server) Resource(name, uri string, handler ResourceHandlerFunc, options ...ResourceOption) {
	if !s.startupMutex.TryLock() {
		panic(ErrServerLockingConflicts)
	}
	defer s.startupMutex.Unlock()

	if s.capabilities.Resources == nil {
		s.capabilities.Resources = &ResourceCapability{}
	}

	opts := &resourceOptions{}
	for _, o := range options {
		o(opts)
	}

	f := handler
	for _, m := range opts.middlewares {
		f = m(f)
	}

	if strings.ContainsRune(uri, '{') {
		tmpl, err := uritemplate.Parse(uri)
		if err != nil {
			panic(&InvalidTemplateError{Pattern: uri, Reason: err.Error()})
		}
		parsedURI, parseErr := url.Parse(uri)
		if parseErr != nil {
			panic(parseErr)
		}
		if err := s.reg.addResourceTemplate(name, resourceTemplate{
			URITemplate: (*ResourceURI)(parsedURI),
			Name:        name,
			Description: opts.description,
			MimeType:    opts.mimeType,
			completions: opts.completions,
			compiled:    tmpl,
			handler:     f,
			listFunc:    opts.listFunc,
		}); err != nil {
			panic(err)
		}
		return
	}

	if err := s.reg.addResource(uri, Resource{
		URI:         mustResourceURI(uri),
		Name:        name,
		Description: opts.description,
		MimeType:    opts.mimeType,
		handler:     f,
	}); err != nil {
		panic(err)
	}
}

func mustResourceURI(uri string) *ResourceURI {
	parsed, err := url.Parse(uri)
	if err != nil {
		panic(err)
	}
	return (*ResourceURI)(parsed)
}

// ResourceList registers a new resource list handler.
func (s *Server) ResourceList(handler ResourceListHandlerFunc, middleware ...ResourceListMiddlewareFunc) {
	if !s.startupMutex.TryLock() {
		panic(ErrServerLockingConflicts)
	}
	defer s.startupMutex.Unlock()
	f := handler
	slices.Reverse(middleware)
	for _, m := range middleware {
		f = m(f)
	}
	s.resourceListHandler = f
}

// ResourceChangeObserver registers a resource change observer for the given URI and runs it.
func (s *Server) ResourceChangeObserver(uri string, observer ResourceChangeObserverFunc) {
	if !s.startupMutex.TryLock() {
		panic(ErrServerLockingConflicts)
	}
	defer s.startupMutex.Unlock()
	if s.capabilities.Resources == nil {
		s.capabilities.Resources = &ResourceCapability{}
	}
	s.capabilities.Resources.Subscribe = true

	resourceChangeCtx := &resourceChangeContext{
		ctx:        context.Background(),
		subscriber: make(map[string]ResourceChangeSubscriber),
	}
	res, ok := s.reg.resources.Get(uri)
	if !ok {
		res = Resource{URI: mustResourceURI(uri)}
	}
	res.resourceChangeCtx = resourceChangeCtx
	s.reg.resources.Set(uri, res)

	go func() {
		<-s.cold.Done()
		observer(resourceChangeCtx)
	}()
}

// ResourceListChangeObserver registers a resource list change observer and runs it.
func (s *Server) ResourceListChangeObserver(observer ResourceListChangeObserverFunc) {
	if !s.startupMutex.TryLock() {
		panic(ErrServerLockingConflicts)
	}
	defer s.startupMutex.Unlock()
	if s.capabilities.Resources == nil {
		s.capabilities.Resources = &ResourceCapability{}
	}
	s.capabilities.Resources.ListChanged = true

	go func() {
		<-s.cold.Done()
		observer(s.resourceListChangeCtx)
	}()
}

// UseInTools adds middleware to the Tool handler chain.
func (s *Server) UseInTools(middleware ...ToolMiddlewareFunc) {
	if !s.startupMutex.TryLock() {
		panic(ErrServerLockingConflicts)
	}
	defer s.startupMutex.Unlock()
	slices.Reverse(middleware)
	s.toolMiddleware = slices.Concat(middleware, s.toolMiddleware)
}

// UseInResources adds middleware to the resource handler chain.
func (s *Server) UseInResources(middleware ...ResourceMiddlewareFunc) {
	if !s.startupMutex.TryLock() {
		panic(ErrServerLockingConflicts)
	}
	defer s.startupMutex.Unlock()
	slices.Reverse(middleware)
	s.resourceMiddleware = slices.Concat(middleware, s.resourceMiddleware)
}

// Prompt registers a prompt template, identified by name, with a handler that
// renders its messages given the arguments supplied in prompts/get.
func (s *Server) Prompt(name string, handler PromptHandlerFunc, options ...PromptOption) {
	if !s.startupMutex.TryLock() {
		panic(ErrServerLockingConflicts)
	}
	defer s.startupMutex.Unlock()

	if s.capabilities.Prompts == nil {
		s.capabilities.Prompts = &PromptCapability{}
	}

	opts := &promptOptions{}
	for _, o := range options {
		o(opts)
	}

	if opts.completable != nil {
		for argName := range opts.completions {
			if !opts.completable[argName] {
				panic(&InvalidPromptArgumentsError{
					PromptName: name,
					Cause:      fmt.Errorf("argument %q is not tagged x-completable", argName),
				})
			}
		}
	}

	if err := s.reg.addPrompt(Prompt{
		Name:        name,
		Description: opts.description,
		Arguments:   opts.arguments,
		handler:     handler,
		completions: opts.completions,
	}); err != nil {
		panic(err)
	}
}

// UpdateTools atomically replaces the registered tool set. It does not send
// notifications/tools/list_changed to connected clients.
// Rejected unless the server declared tools.listChanged at construction time.
func (s *Server) UpdateTools(tools []Tool) error {
	return s.reg.updateTools(tools, s.capabilities.Tools != nil && s.capabilities.Tools.ListChanged)
}

// WithToolListChanged declares that this server's tool list may change after
// startup, enabling UpdateTools and the tools.listChanged capability flag.
func WithToolListChanged() Option {
	return func(s *Server) {
		if s.capabilities.Tools == nil {
			s.capabilities.Tools = &ToolCapability{}
		}
		s.capabilities.Tools.ListChanged = true
	}
}

type startOptions struct {
	ctx       context.Context
	listener  jsonrpc2.Listener
	framer    jsonrpc2.Framer
	preempter jsonrpc2.Preempter
}

// StartOption configures the startup settings.
type StartOption func(*startOptions)

func StartWithContext(ctx context.Context) StartOption {
	return func(o *startOptions) { o.ctx = ctx }
}

// StartWithListener sets the jsonrpc2.Listener.
func StartWithListener[T *transport.Stdio | *transport.Streamable](listener T) StartOption {
	return func(o *startOptions) {
		switch v := any(listener).(type) {
		case *transport.Stdio:
			o.listener = v
			o.framer = transport.DefaultStdioFramer()
		case *transport.Streamable:
			o.listener = v
			o.framer = transport.DefaultStreamableFramer()
		}
	}
}

func StartWithFramer(framer jsonrpc2.Framer) StartOption {
	return func(o *startOptions) { o.framer = framer }
}

func StartWithPreempter(preempter jsonrpc2.Preempter) StartOption {
	return func(o *startOptions) { o.preempter = preempter }
}

// Start starts the server.
func (s *Server) Start(options ...StartOption) error {
	if !s.startupMutex.TryLock() {
		panic(ErrServerLockingConflicts)
	}
	defer s.startupMutex.Unlock()

	o := &startOptions{
		ctx:    context.Background(),
		framer: transport.DefaultStdioFramer(),
	}
	for _, opt := range options {
		opt(o)
	}
	ctx, cancel := context.WithCancel(o.ctx)
	defer cancel()
	if o.listener == nil {
		o.listener = transport.NewStdio(ctx, cancel)
	}
	context.AfterFunc(ctx, func() {
		o.listener.Close()
	})

	for _, tool := range s.reg.allTools() {
		for _, middleware := range s.toolMiddleware {
			tool.handler = middleware(tool.handler)
		}
		s.reg.tools.Set(tool.Name, tool)
	}
	for pair := s.reg.resources.Oldest(); pair != nil; pair = pair.Next() {
		for _, middleware := range s.resourceMiddleware {
			if pair.Value.handler != nil {
				pair.Value.handler = middleware(pair.Value.handler)
			}
		}
	}
	for pair := s.reg.resourceTemplates.Oldest(); pair != nil; pair = pair.Next() {
		for _, middleware := range s.resourceMiddleware {
			if pair.Value.handler != nil {
				pair.Value.handler = middleware(pair.Value.handler)
			}
		}
	}

	var (
		enabledResourceListChange bool
		enabledResourceChange     bool
	)
	if s.capabilities.Resources != nil {
		enabledResourceListChange = s.capabilities.Resources.ListChanged
		enabledResourceChange = s.capabilities.Resources.Subscribe
	}
	s.handlerPool = sync.Pool{
		New: func() any {
			return &connHandler{
				server:                    s,
				enabledResourceListChange: enabledResourceListChange,
				enabledResourceChange:     enabledResourceChange,
				switchToStreamConnection:  noopFuncWithDuration,
				session:                   newConnSession(),
			}
		},
	}

	srv, err := jsonrpc2.Serve(o.ctx, o.listener, newBinder(s, o.preempter, o.framer))
	if err != nil {
		return err
	}
	s.warming()
	return srv.Wait()
}

// Notify sends a JSON-RPC notification to the connected client.
type Notify func(ctx context.Context, method string, params interface{}) error

var _ jsonrpc2.Binder = (*binder)(nil)

type binder struct {
	server    *Server
	preempter jsonrpc2.Preempter
	framer    jsonrpc2.Framer
}

func (b *binder) Bind(_ context.Context, conn *jsonrpc2.Connection) (jsonrpc2.ConnectionOptions, error) {
	h := b.server.handlerPool.Get().(*connHandler)
	h.runningMu.Lock()
	h.notify = conn.Notify
	h.call = conn.Call

	rv := reflect.ValueOf(conn).Elem()
	elem := rv.FieldByName("closer")

	connIO, ok := convertToConnIO(elem)
	if !ok {
		return jsonrpc2.ConnectionOptions{}, errors.New("failed to convert to ConnIO")
	}
	switch inner := connIO.Inner.(type) {
	case *transport.Stdio:
		h.getSessionID = inner.SessionID
		h.setSessionID = inner.SetSessionID
		h.connectionCtx = context.Background()
	case *transport.StreamableReadWriteCloser:
		h.getSessionID = inner.SessionID
		h.setSessionID = inner.SetSessionID
		h.switchToStreamConnection = inner.SwitchStreamConnection
		h.connectionCtx = inner.Context()
	}

	return jsonrpc2.ConnectionOptions{
		Preempter: b.preempter,
		Framer:    b.framer,
		Handler:   h,
	}, nil
}

func convertToConnIO(elem reflect.Value) (_ *internaltransport.ConnIO, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[mcp] failed to convert to ConnIO", slog.Any("recover", rec))
		}
	}()
	rf := reflect.NewAt(elem.Type(), elem.Addr().UnsafePointer()).Elem()
	v, ok := rf.Interface().(*internaltransport.ConnIO)
	return v, ok
}

func newBinder(s *Server, preempter jsonrpc2.Preempter, framer jsonrpc2.Framer) *binder {
	return &binder{server: s, preempter: preempter, framer: framer}
}

var _ jsonrpc2.Handler = (*connHandler)(nil)

// connHandler is the per-connection jsonrpc2.Handler; it owns a connSession
// (see session_fsm.go) tracking this connection's lifecycle state.
type connHandler struct {
	server *Server

	notify Notify
	call   func(ctx context.Context, method string, params, result any) error

	enabledResourceListChange bool
	enabledResourceChange     bool

	getSessionID func() string
	setSessionID func(string)

	switchToStreamConnection func(keepAlive time.Duration)
	connectionCtx            context.Context

	runningMu sync.Mutex
	wg        sync.WaitGroup

	session *connSession

	clientCaps clientCapabilities
	levelGate  *levelGate
	roots      *RootsCache
}

// Handle implements jsonrpc2.Handler.
func (h *connHandler) Handle(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	var sessionID string

	defer func() {
		if req.Method != MethodInitialize {
			h.afterHandle(ctx, sessionID)
		}
		go h.reset()
	}()

	if req.Method == MethodInitialize {
		h.session.transition(sessionConnecting)
		result, err := h.handleInitialize(ctx, req, &sessionID)
		return result, finalizeError(err)
	}

	if h.session.currentState() == sessionClosed {
		return nil, finalizeError(ErrClientDisconnected)
	}

	if !h.session.requireInitialized() {
		h.session.disconnect()
		return nil, jsonrpc2.ErrInvalidRequest
	}

	sessionID = h.getSessionID()
	if sessionID == "" {
		return nil, jsonrpc2.ErrUnknown
	}
	result, err := h.invokeMethod(ctx, req, sessionID)
	return result, finalizeError(err)
}

// finalizeError maps a handler's returned error onto the wire. Errors already
// wrapping one of jsonrpc2's own sentinels pass through unchanged; everything
// else (the domain errors in errors.go) goes through AsJSONRPCError first.
func finalizeError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		jsonrpc2.ErrInvalidParams,
		jsonrpc2.ErrInvalidRequest,
		jsonrpc2.ErrMethodNotFound,
		jsonrpc2.ErrInternal,
		jsonrpc2.ErrUnknown,
		jsonrpc2.ErrNotHandled,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return AsJSONRPCError(err)
}

func (h *connHandler) afterHandle(ctx context.Context, sessionID string) {
	if !h.enabledResourceListChange && !h.enabledResourceChange {
		return
	}
	unhealthySubscriptionUris, err := h.server.resourcesSubscriptionManager.UnhealthSubscriptions(ctx, sessionID)
	if err != nil {
		return
	}
	for _, v := range unhealthySubscriptionUris {
		h.setupResourceSubscription(ctx, sessionID, v)
	}

	health, err := h.server.resourceListChangeSubscriptionManager.Health(ctx, sessionID)
	if err != nil {
		return
	}
	if !health {
		sessionCtx, err := h.server.sessionManager.Context(ctx, sessionID)
		if err != nil {
			return
		}
		h.resourceListChangeSubscription(ctx, sessionCtx, sessionID)
	}
}

func (h *connHandler) clientAPI() ClientAPI {
	return &clientAPI{
		notify:       h.notify,
		call:         h.call,
		session:      h.session,
		capabilities: h.clientCaps,
		minLevel:     h.levelGate,
		roots:        h.roots,
	}
}

// invokeMethod invokes the method specified in the request.
func (h *connHandler) invokeMethod(ctx context.Context, req *jsonrpc2.Request, sessionID string) (interface{}, error) {
	sessionCtx, err := h.server.sessionManager.Context(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ctx = WithClientAPI(sessionCtx, h.clientAPI())

	switch req.Method {
	case MethodPing:
		return struct{}{}, nil
	case MethodResourcesList:
		return h.handleResourcesList(ctx, req)
	case MethodResourcesTemplatesList:
		return h.handleResourcesTemplatesList()
	case MethodResourcesRead:
		return h.handleResourcesRead(ctx, req)
	case MethodPromptsList:
		return h.handlePromptsList()
	case MethodPromptsGet:
		return h.handlePromptsGet(ctx, req)
	case MethodToolsList:
		return h.handleToolsList()
	case MethodToolsCall:
		return h.handleToolsCall(ctx, req)
	case MethodCompletionComplete:
		return h.handleCompletionComplete(ctx, req)
	case MethodLoggingSetLevel:
		return h.handleLoggingSetLevel(req)
	case MethodResourceSubscribe:
		if !h.enabledResourceChange {
			return nil, jsonrpc2.ErrMethodNotFound
		}
		return h.handleResourceSubscribe(ctx, sessionID, req)
	case MethodResourceUnsubscribe:
		return h.handleResourceUnsubscribe(ctx, sessionID, req)
	case "notifications/cancelled":
		// Every in-process handler already bounds its own work (readThrottle
		// dedups resources/read, completeWithTimeout bounds completion/complete);
		// there is no separate in-flight table to cancel against, so this is
		// acknowledged and otherwise ignored.
		return struct{}{}, nil
	case "notifications/roots/list_changed":
		h.roots.invalidate()
		return struct{}{}, nil
	default:
		return nil, jsonrpc2.ErrMethodNotFound
	}
}

func (h *connHandler) handleInitialize(ctx context.Context, req *jsonrpc2.Request, sessionID *string) (interface{}, error) {
	var params initializeRequestParams
	if err := gojson.Unmarshal(req.Params, &params); err != nil {
		return nil, jsonrpc2.ErrInvalidParams
	}

	id, err := h.server.sessionManager.Start(ctx)
	if err != nil {
		return nil, err
	}
	h.setSessionID(id)
	*sessionID = id
	h.clientCaps = params.Capabilities
	h.levelGate = newLevelGate()
	h.roots = NewRootsCache()

	protocolVersion := params.ProtocolVersion
	if support := SupportedProtocolVersions[protocolVersion]; !support {
		protocolVersion = LatestProtocolVersion
	}

	sessionCtx, err := h.server.sessionManager.Context(ctx, *sessionID)
	if err != nil {
		return nil, err
	}

	if h.enabledResourceListChange {
		h.resourceListChangeSubscription(ctx, sessionCtx, *sessionID)
	}

	h.session.transition(sessionReady)
	if h.call != nil {
		h.session.startPingLoop(h.connectionCtx, func(pingCtx context.Context) error {
			return h.call(pingCtx, MethodPing, nil, new(struct{}))
		})
	}

	return &initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    h.server.capabilities,
		ServerInfo: implementation{
			Name:    h.server.name,
			Version: h.server.version,
		},
	}, nil
}

// resourceListChangeSubscription observes changes in the resource list and notifies the client.
func (h *connHandler) resourceListChangeSubscription(ctx context.Context, sessionCtx context.Context, sessionID string) error {
	listChangeCh := make(chan struct{}, 1)
	sub := h.server.resourceListChangeSubscriberPool.Get().(*resourceListChangeSubscriber)
	sub.id = sessionID
	sub.ch = listChangeCh
	sub.lastReceived = time.Now()
	h.server.resourceListChangeCtx.subscribe(sub)

	subscription, err := h.server.resourceListChangeSubscriptionManager.SubscribeToResourceListChanges(ctx, sessionID)
	if err != nil {
		return err
	}
	h.switchToStreamConnection(5 * time.Second)
	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		defer h.server.resourceListChangeSubscriberPool.Put(sub)
		defer sub.reset()

		ticker := time.NewTicker(h.server.resourceListChangeSubscriptionOptions.healthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				subscription.SignalAlive()
			case <-sessionCtx.Done():
			case <-subscription.Unsubscribed():
			case <-h.connectionCtx.Done():
				return
			case <-listChangeCh:
				if err := h.notify(h.connectionCtx, MethodNotificationResourcesListChanged, nil); err != nil {
					return
				}
			}
		}
	}()
	return nil
}

func (h *connHandler) handleResourcesList(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	dest := make(map[string]Resource)
	c := h.server.resourceListContextPool.Get().(*resourceListContext)
	c.ctx = ctx
	c.jsonrpcRequest = req
	c.dest = &dest
	resources := make(map[string]Resource)
	for _, r := range h.server.reg.allResources() {
		resources[r.URI.String()] = r
	}
	for _, tmpl := range h.server.reg.allResourceTemplates() {
		if tmpl.listFunc == nil {
			continue
		}
		list, err := tmpl.listFunc(ctx)
		if err != nil {
			h.server.logger.ErrorContext(ctx, "resource template list failed",
				slog.String("template", tmpl.Name), slog.Any("error", err))
			continue
		}
		for _, r := range list {
			resources[r.URI.String()] = r
		}
	}
	c.resources = resources
	defer func() {
		c.reset()
		h.server.resourceListContextPool.Put(c)
	}()

	if err := h.server.resourceListHandler(c); err != nil {
		return nil, err
	}

	return &listResourcesResult{Resources: sortedResourceValues(dest)}, nil
}

func sortedResourceValues(m map[string]Resource) []Resource {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]Resource, 0, len(m))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func (h *connHandler) handleResourcesTemplatesList() (interface{}, error) {
	tmpls := h.server.reg.allResourceTemplates()
	out := make([]resourceTemplate, len(tmpls))
	copy(out, tmpls)
	return &listResourceTemplatesResult{ResourceTemplates: out}, nil
}

func (h *connHandler) handleResourcesRead(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	var params readResourceRequestParams
	if err := h.server.jsonUnmarshalFunc(req.Params, &params); err != nil {
		return nil, jsonrpc2.ErrInvalidParams
	}
	uri := (*url.URL)(params.URI)

	v, err, _ := h.server.readThrottle.Do(uri.String(), func() (interface{}, error) {
		return h.readResource(ctx, req, uri)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (h *connHandler) readResource(ctx context.Context, req *jsonrpc2.Request, uri *url.URL) (interface{}, error) {
	res, ok := h.server.reg.resources.Get(uri.String())
	if ok && res.handler != nil {
		return h.callResourceHandler(ctx, req, res.handler, uri, nil, res.MimeType)
	}

	for _, tmpl := range h.server.reg.allResourceTemplates() {
		bindings, matched := tmpl.compiled.Match(uri.String())
		if !matched {
			continue
		}
		return h.callResourceHandler(ctx, req, tmpl.handler, uri, bindings, tmpl.MimeType)
	}

	return nil, &ResourceNotFoundError{URI: uri.String()}
}

func (h *connHandler) callResourceHandler(
	ctx context.Context, req *jsonrpc2.Request, handler ResourceHandlerFunc, uri *url.URL, pathParams map[string]string, mimeType string,
) (interface{}, error) {
	c := h.server.resourceContextPool.Get().(*resourceContext)
	var dest readResourceResult
	c.ctx = ctx
	c.jsonrpcRequest = req
	c.uri = weak.Make(uri)
	c.mimeType = mimeType
	c.pathParams = pathParams
	c.dest = &dest

	defer func() {
		c.reset()
		h.server.resourceContextPool.Put(c)
	}()

	if err := handler(c); err != nil {
		return nil, err
	}
	return &dest, nil
}

func (h *connHandler) handleToolsList() (interface{}, error) {
	return &listToolsResponse{Tools: h.server.reg.allTools()}, nil
}

func (h *connHandler) handleToolsCall(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	var params callToolRequestParams
	if err := h.server.jsonUnmarshalFunc(req.Params, &params); err != nil {
		return nil, jsonrpc2.ErrInvalidParams
	}

	tool, toolAvailable := h.server.reg.tool(params.Name)
	if !toolAvailable {
		return errorToolResult(h.server.jsonMarshalFunc, &ToolNotFoundError{Name: params.Name}), nil
	}

	c := h.server.toolContextPool.Get().(*toolContext)
	var dest CallToolContent
	c.toolName = params.Name
	c.ctx = ctx
	c.jsonrpcRequest = req
	c.args = params.Arguments
	c.dest = &dest
	c.inputValidator = tool.inputValidator

	defer func() {
		c.reset()
		h.server.toolContextPool.Put(c)
	}()

	// Per the protocol, a handler-raised error surfaces as a normal tool
	// result with isError:true, not as a JSON-RPC error response — so the
	// client's model sees the failure instead of the transport choking on it.
	if err := tool.handler(c); err != nil {
		return errorToolResult(h.server.jsonMarshalFunc, err), nil
	}
	return callToolResult{Content: []CallToolContent{dest}}, nil
}

type callToolResult struct {
	Content []CallToolContent `json:"content"`
	IsError bool               `json:"isError,omitzero"`
}

func errorToolResult(marshal JSONMarshalFunc, err error) callToolResult {
	return callToolResult{
		Content: []CallToolContent{&textCallToolContent{Text: err.Error(), marshal: marshal}},
		IsError: true,
	}
}

func (h *connHandler) handlePromptsList() (interface{}, error) {
	return &listPromptsResult{Prompts: h.server.reg.allPrompts()}, nil
}

func (h *connHandler) handlePromptsGet(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	var params getPromptRequestParams
	if err := h.server.jsonUnmarshalFunc(req.Params, &params); err != nil {
		return nil, jsonrpc2.ErrInvalidParams
	}

	p, ok := h.server.reg.prompt(params.Name)
	if !ok {
		return nil, &PromptNotFoundError{Name: params.Name}
	}

	args := make(map[string]any, len(params.Arguments))
	for k, v := range params.Arguments {
		args[k] = v
	}

	c := h.server.promptContextPool.Get().(*promptContext)
	var messages []promptMessage
	c.ctx = ctx
	c.jsonrpcRequest = req
	c.promptName = params.Name
	c.args = args
	c.messages = &messages

	defer func() {
		c.reset()
		h.server.promptContextPool.Put(c)
	}()

	if err := p.handler(c); err != nil {
		return nil, &InvalidPromptArgumentsError{PromptName: params.Name, Cause: err}
	}

	description := c.description
	if description == "" {
		description = p.Description
	}
	return &getPromptResult{Description: description, Messages: messages}, nil
}

func (h *connHandler) handleCompletionComplete(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	var params completeRequestParams
	if err := h.server.jsonUnmarshalFunc(req.Params, &params); err != nil {
		return nil, jsonrpc2.ErrInvalidParams
	}

	var provider func(ctx context.Context) (completion, error)
	switch completionRefKind(params.Ref.Type) {
	case completionRefPrompt:
		provider = func(ctx context.Context) (completion, error) {
			return completeAgainstPrompt(ctx, h.server.reg, params.Ref, params.Argument)
		}
	case completionRefResource:
		provider = func(ctx context.Context) (completion, error) {
			return completeAgainstResource(ctx, h.server.reg, params.Ref, params.Argument)
		}
	default:
		return nil, jsonrpc2.ErrInvalidParams
	}

	result, err := completeWithTimeout(ctx, provider)
	if err != nil {
		return nil, err
	}
	return &completeResult{Completion: result}, nil
}

func (h *connHandler) handleLoggingSetLevel(req *jsonrpc2.Request) (interface{}, error) {
	var params setLevelRequestParams
	if err := h.server.jsonUnmarshalFunc(req.Params, &params); err != nil {
		return nil, jsonrpc2.ErrInvalidParams
	}
	h.levelGate.set(params.Level)
	return struct{}{}, nil
}

func (h *connHandler) handleResourceSubscribe(ctx context.Context, sessionID string, req *jsonrpc2.Request) (interface{}, error) {
	var params subscribeResourcesRequestParams
	if err := h.server.jsonUnmarshalFunc(req.Params, &params); err != nil {
		return nil, jsonrpc2.ErrInvalidParams
	}
	uri := (*url.URL)(params.URI)
	if err := h.setupResourceSubscription(ctx, sessionID, uri); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (h *connHandler) setupResourceSubscription(ctx context.Context, sessionID string, uri *url.URL) error {
	res, ok := h.server.reg.resources.Get(uri.String())
	if !ok || res.resourceChangeCtx == nil {
		return &ResourceNotFoundError{URI: uri.String()}
	}

	resourceUpdateCh := make(chan *url.URL, 1)
	subscriber := h.server.resourceChangeSubscriberPool.Get().(*resourceChangeSubscriber)
	subscriber.ch = resourceUpdateCh
	subscriber.subscribedURI = uri
	subscriber.lastReceived = time.Now()
	subscriber.id = ulid.Make().String()

	res.resourceChangeCtx.subscribe(subscriber)
	subscription, err := h.server.resourcesSubscriptionManager.SubscribeToResourceModification(ctx, sessionID, uri)
	if err != nil {
		return err
	}

	h.resourceSubscription(ctx, res.resourceChangeCtx, subscriber, subscription, resourceUpdateCh)
	return nil
}

func (h *connHandler) resourceSubscription(
	ctx context.Context,
	changeCtx ResourceChangeContext,
	subscriber *resourceChangeSubscriber,
	subscription Subscription,
	resourceUpdateCh chan *url.URL,
) {
	h.switchToStreamConnection(5 * time.Second)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.server.resourcesSubscriptionOptions.healthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				subscription.SignalAlive()
			case <-ctx.Done():
			case <-subscription.Unsubscribed():
			case <-h.connectionCtx.Done():
				h.server.resourceChangeSubscriberPool.Put(subscriber)
				subscriber.reset()
				changeCtx.unsubscribe(subscriber.id)
				return
			case uri := <-resourceUpdateCh:
				if uri == nil {
					continue
				}
				if err := h.notify(h.connectionCtx, MethodNotificationResourceUpdated, resourceUpdatedNotificationParam{
					URI: (*ResourceURI)(uri),
				}); err != nil {
					return
				}
			}
		}
	}()
}

func (h *connHandler) handleResourceUnsubscribe(ctx context.Context, sessionID string, req *jsonrpc2.Request) (interface{}, error) {
	var params unsubscribeResourcesRequestParams
	if err := h.server.jsonUnmarshalFunc(req.Params, &params); err != nil {
		return nil, jsonrpc2.ErrInvalidParams
	}
	uri := (*url.URL)(params.URI)
	if err := h.server.resourcesSubscriptionManager.UnsubscribeToResourceModification(ctx, sessionID, uri); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (h *connHandler) reset() {
	defer h.runningMu.Unlock()
	if h.runningMu.TryLock() {
		return
	}
	h.wg.Wait()
	h.notify = nil
	h.call = nil
	h.getSessionID = nil
	h.setSessionID = nil
	h.switchToStreamConnection = noopFuncWithDuration
	h.connectionCtx = nil
	h.server.handlerPool.Put(h)
}

var noopFuncWithDuration = func(_ time.Duration) {}
