// Package evmrpcclient implements the selector/retry engine and upstream
// caller, wiring the middleware pipeline over a per-chain node pool
// (internal/nodeconfig).
package evmrpcclient

import (
	"net/http"
	"time"

	"github.com/R3E-Network/evmrpcproxy/internal/logging"
	"github.com/R3E-Network/evmrpcproxy/internal/middleware"
	"github.com/R3E-Network/evmrpcproxy/internal/nodeconfig"
	"github.com/R3E-Network/evmrpcproxy/internal/stats"
)

// DefaultMiddlewares is the pipeline in declaration order: ExtGas is
// outermost (sees the caller's request first), Unbatch is innermost
// (closest to the upstream call).
var DefaultMiddlewares = []middleware.Factory{
	middleware.NewExtGas,
	middleware.NewChainID,
	middleware.NewMangleGetlogs,
	middleware.NewUnbatch,
}

// Client is the process-wide EVM RPC proxy engine: one per-chain node
// registry, one long-lived upstream HTTP client, and the configured
// middleware pipeline.
type Client struct {
	Chains  *nodeconfig.Registry
	Secrets nodeconfig.Secrets
	HTTPCli *http.Client

	DoUpstreamDebug bool
	RetryAttempts   int
	MaxReqLogSize   int
	MaxRespLogSize  int

	// ForceRotateOnErrorResponse rotates the pool even on a nominally
	// successful response if it carries any error field, to avoid a sticky
	// bad node. Defaults to true.
	ForceRotateOnErrorResponse bool

	Middlewares []middleware.Factory
	Logger      *logging.Logger

	// Metrics, if set, receives per-call upstream latency observations.
	Metrics *stats.Metrics
}

// New builds a Client with the default middleware order, retry budget, and
// upstream HTTP timeout.
func New(chains *nodeconfig.Registry, secrets nodeconfig.Secrets, logger *logging.Logger) *Client {
	return &Client{
		Chains:  chains,
		Secrets: secrets,
		HTTPCli: &http.Client{Timeout: 15 * time.Second},

		RetryAttempts:              5,
		MaxReqLogSize:              10_000,
		MaxRespLogSize:             16_000,
		ForceRotateOnErrorResponse: true,

		Middlewares: DefaultMiddlewares,
		Logger:      logger,
	}
}

// GetNodeConfig returns chainName's head node, rotating first if rotate is
// set.
func (c *Client) GetNodeConfig(chainName string, rotate bool) (nodeconfig.NodeConfig, error) {
	pool, ok := c.Chains.Pool(chainName)
	if !ok || pool.Len() == 0 {
		return nodeconfig.NodeConfig{}, newNoNodesAvailable(chainName)
	}
	if rotate {
		pool.Rotate()
	}
	head, ok := pool.Head()
	if !ok {
		return nodeconfig.NodeConfig{}, newNoNodesAvailable(chainName)
	}
	return head, nil
}

// GetAllNodeConfigs returns every configured node for chainName, in current
// rotation order — the AllNodesFunc collaborator passed into middlewares.
func (c *Client) GetAllNodeConfigs(chainName string) []nodeconfig.NodeConfig {
	pool, ok := c.Chains.Pool(chainName)
	if !ok {
		return nil
	}
	return pool.All()
}
