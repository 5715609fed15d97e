// Package connectivity provides an in-process service router: named
// byte-payload handlers registered once and callable from any transport
// surface (MCP, HTTP, embedding platform) through one dispatch point.
//
//	router := connectivity.New()
//	router.Use(connectivity.Recovery(logger))
//	matcher.RegisterConnectivity(router)
//
//	resp, err := router.Call(ctx, "domtarget_find", payload)
//
// Callers address services by name and never hold the implementing object.
// The platform embedding this engine decides which services stay local and
// which get re-exported over its own remote transports.
package connectivity

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Handler is a transport-agnostic service function: bytes in, bytes out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Router dispatches service calls to registered local handlers.
// Thread-safe: reads use RLock, registration uses full Lock.
type Router struct {
	mu            sync.RWMutex
	localHandlers map[string]Handler
	mws           []HandlerMiddleware
	logger        *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a Router with no services.
func New(opts ...Option) *Router {
	r := &Router{
		localHandlers: make(map[string]Handler),
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-memory handler for a service. Registering a
// name twice replaces the previous handler.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.localHandlers[service] = h
	r.mu.Unlock()
}

// Use appends middleware applied to every call, outermost first. Middleware
// is resolved at call time, so Use works before or after registration.
func (r *Router) Use(mws ...HandlerMiddleware) {
	r.mu.Lock()
	r.mws = append(r.mws, mws...)
	r.mu.Unlock()
}

// Call dispatches a service call through the middleware chain.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	h := r.localHandlers[service]
	mws := r.mws
	r.mu.RUnlock()

	if h == nil {
		return nil, &ErrServiceNotFound{Service: service}
	}
	if len(mws) > 0 {
		h = Chain(mws...)(h)
	}

	r.logger.DebugContext(ctx, "connectivity: routing local", "service", service)
	return h(ctx, payload)
}

// Services returns the registered service names, sorted.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.localHandlers))
	for name := range r.localHandlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
