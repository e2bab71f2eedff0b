package evmrpcclient

import (
	"context"

	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/middleware"
)

// requestOneNode builds the middleware onion over c.requestOneCall and
// dispatches req through it.
func (c *Client) requestOneNode(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
	straight := middleware.Handler(c.requestOneCall)
	allNodes := middleware.AllNodesFunc(c.GetAllNodeConfigs)

	handler, names := middleware.Build(c.Middlewares, straight, allNodes, c.Logger)

	c.Logger.WithContext(ctx).WithFields(map[string]interface{}{
		"chain":       req.NodeConfig.ChainName,
		"evmrpc_node": req.NodeConfig.NodeName,
		"try_n":       req.TryN,
		"middlewares": names,
	}).Debug("EVMRPC dispatching through middleware pipeline")

	return handler(ctx, req)
}
