// Package kit holds the transport-neutral endpoint abstraction: a service
// operation is an Endpoint, and each transport (MCP, HTTP, connectivity)
// adapts requests onto it.
package kit

import "context"

// Endpoint is one service operation: typed request in, typed response out.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first listed is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
