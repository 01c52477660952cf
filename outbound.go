package mcp

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
)

// clientAPIKey is the context.Value key a handler uses to retrieve ClientAPI.
type clientAPIKey struct{}

// ClientAPI is everything a Tool/Resource/Prompt handler can ask the
// connected client to do: sampling, logging, change notifications, and root
// discovery, gated by the capabilities the client actually declared, so a
// handler never has to reach into connection internals directly.
type ClientAPI interface {
	// RequestSampling asks the client to sample from an LLM on the server's
	// behalf. Fails with CapabilityNotSupportedError unless the client
	// declared the sampling capability at initialize.
	RequestSampling(ctx context.Context, params createMessageRequestParams) (*SamplingResult, error)

	// Log forwards a structured log entry to the client, subject to the
	// minimum level set by the client's most recent logging/setLevel call.
	Log(ctx context.Context, level, logger string, data any) error

	// NotifyResourceUpdated tells the client a subscribed resource changed.
	NotifyResourceUpdated(ctx context.Context, uri string) error
	// NotifyResourceListChanged tells the client the resource list changed.
	NotifyResourceListChanged(ctx context.Context) error
	// NotifyToolListChanged tells the client the tool list changed.
	NotifyToolListChanged(ctx context.Context) error
	// NotifyPromptListChanged tells the client the prompt list changed.
	NotifyPromptListChanged(ctx context.Context) error
	// NotifyProgress reports progress on a long-running operation identified
	// by the token the client supplied on the original request.
	NotifyProgress(ctx context.Context, token any, progress float64, total *float64) error

	// ListRoots asks the client for its currently exposed filesystem roots.
	// Fails with CapabilityNotSupportedError unless the client declared roots.
	ListRoots(ctx context.Context) ([]Root, error)

	// WaitForDisconnection blocks until the client disconnects or ctx is done.
	WaitForDisconnection(ctx context.Context) error
}

// clientAPI is the concrete ClientAPI bound to one connection.
type clientAPI struct {
	notify       Notify
	call         func(ctx context.Context, method string, params, result any) error
	session      *connSession
	capabilities clientCapabilities
	minLevel     *levelGate
	roots        *RootsCache
}

func (c *clientAPI) RequestSampling(ctx context.Context, params createMessageRequestParams) (*SamplingResult, error) {
	if c.capabilities.Sampling == nil {
		return nil, &CapabilityNotSupportedError{Capability: "sampling"}
	}
	var result SamplingResult
	if err := c.call(ctx, "sampling/createMessage", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *clientAPI) Log(ctx context.Context, level, logger string, data any) error {
	if !c.minLevel.allows(level) {
		return nil
	}
	return c.notify(ctx, "notifications/message", loggingMessageNotificationParams{
		Level:  level,
		Logger: logger,
		Data:   data,
	})
}

func (c *clientAPI) NotifyResourceUpdated(ctx context.Context, uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return &InternalError{Message: "invalid resource URI for notification", Cause: err}
	}
	return c.notify(ctx, MethodNotificationResourceUpdated, resourceUpdatedNotificationParam{
		URI: (*ResourceURI)(parsed),
	})
}

func (c *clientAPI) NotifyResourceListChanged(ctx context.Context) error {
	return c.notify(ctx, MethodNotificationResourcesListChanged, nil)
}

func (c *clientAPI) NotifyToolListChanged(ctx context.Context) error {
	return c.notify(ctx, "notifications/tools/list_changed", nil)
}

func (c *clientAPI) NotifyPromptListChanged(ctx context.Context) error {
	return c.notify(ctx, "notifications/prompts/list_changed", nil)
}

func (c *clientAPI) NotifyProgress(ctx context.Context, token any, progress float64, total *float64) error {
	return c.notify(ctx, "notifications/progress", progressNotificationParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
	})
}

func (c *clientAPI) ListRoots(ctx context.Context) ([]Root, error) {
	if c.capabilities.Roots == nil {
		return nil, &CapabilityNotSupportedError{Capability: "roots"}
	}
	if cached, ok := c.roots.get(); ok {
		return cached, nil
	}
	var result listRootsResult
	if err := c.call(ctx, "roots/list", nil, &result); err != nil {
		return nil, err
	}
	c.roots.set(result.Roots)
	return result.Roots, nil
}

func (c *clientAPI) WaitForDisconnection(ctx context.Context) error {
	return c.session.waitForDisconnection(ctx)
}

// levelGate is the lock-free atomic.Int64-backed minimum log level behind
// logging/setLevel.
type levelGate struct {
	level atomic.Int64
}

var logLevelRank = map[string]int64{
	"debug":     0,
	"info":      1,
	"notice":    2,
	"warning":   3,
	"error":     4,
	"critical":  5,
	"alert":     6,
	"emergency": 7,
}

func newLevelGate() *levelGate {
	return &levelGate{}
}

func (g *levelGate) set(level string) {
	rank, ok := logLevelRank[level]
	if !ok {
		return
	}
	g.level.Store(rank)
}

func (g *levelGate) allows(level string) bool {
	rank, ok := logLevelRank[level]
	if !ok {
		return true
	}
	return rank >= g.level.Load()
}

// RootsCache is a single-value latest-state cell for the client's advertised
// roots. ListRoots fills it; notifications/roots/list_changed only marks it
// stale, and the next ListRoots call re-fetches.
type RootsCache struct {
	mu     sync.RWMutex
	known  bool
	value  []Root
}

func NewRootsCache() *RootsCache {
	return &RootsCache{}
}

func (c *RootsCache) get() ([]Root, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.known
}

func (c *RootsCache) set(roots []Root) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = roots
	c.known = true
}

// invalidate marks the cache stale so the next ListRoots call re-fetches,
// called when notifications/roots/list_changed arrives from the client.
func (c *RootsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known = false
}

// WithClientAPI returns a context carrying the ClientAPI, so handlers that
// need one can retrieve it with ClientAPIFrom.
func WithClientAPI(ctx context.Context, api ClientAPI) context.Context {
	return context.WithValue(ctx, clientAPIKey{}, api)
}

// ClientAPIFrom retrieves the ClientAPI a handler's context was bound with.
func ClientAPIFrom(ctx context.Context) (ClientAPI, bool) {
	api, ok := ctx.Value(clientAPIKey{}).(ClientAPI)
	return api, ok
}
