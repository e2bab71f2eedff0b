// Package middleware implements the ordered request pipeline — ExtGas,
// ChainId, MangleGetlogs, Unbatch — wrapping the base upstream call.
package middleware

import (
	"context"

	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
	"github.com/R3E-Network/evmrpcproxy/internal/nodeconfig"
)

// Handler performs (or continues wrapping) a request, producing a Response.
type Handler func(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error)

// AllNodesFunc returns every configured node for a chain, in rotation order.
// Build passes it to every factory; none of the middlewares in this package
// uses it.
type AllNodesFunc func(chainName string) []nodeconfig.NodeConfig

// Middleware wraps a Handler with request/response-shaping behavior.
type Middleware interface {
	Handle(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error)
	Name() string
}

// Factory constructs a Middleware given the handler it wraps (next), the
// base upstream call (straight), the all-nodes collaborator, and a logger.
type Factory func(next, straight Handler, allNodes AllNodesFunc, logger *logging.Logger) Middleware

// Build assembles factories into a single Handler wrapping straight, the
// base upstream call. factories[0] is outermost: it sees the caller's
// request first and its next eventually reaches straight.
func Build(factories []Factory, straight Handler, allNodes AllNodesFunc, logger *logging.Logger) (Handler, []string) {
	next := straight
	names := make([]string, len(factories))
	for i := len(factories) - 1; i >= 0; i-- {
		mw := factories[i](next, straight, allNodes, logger)
		names[i] = mw.Name()
		next = mw.Handle
	}
	return next, names
}
