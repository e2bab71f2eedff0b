package evmrpcclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/nodeconfig"
)

// Result is what Request returns on both the success and exhausted-retry
// paths: the response actually produced plus which node served it and at
// which attempt, for the caller's diagnostic headers.
type Result struct {
	Response evmrpcmodel.Response
	NodeName string
	TryN     int

	// FailedAttempts records every attempt that failed and was retried
	// before the final outcome, for the caller's per-attempt counters.
	FailedAttempts []Attempt

	// TerminalRetriableStatus is non-zero when Response is the last response
	// of a retry budget exhausted by RetriableErrorResponse; the body goes
	// back to the caller verbatim with this HTTP status. Zero means Response
	// is an ordinary successful result.
	TerminalRetriableStatus int
}

// Attempt identifies one failed, retried upstream attempt.
type Attempt struct {
	NodeName string
	TryN     int
}

// Request runs the selector/retry loop: pin to an explicit node (one
// attempt) or start from the chain's rotation head (c.RetryAttempts); try
// the pipeline, rotating the pool on failure, until success or attempts
// are exhausted.
func (c *Client) Request(ctx context.Context, chainName string, data interface{}, nodeName string, params evmrpcmodel.RequestParams) (Result, error) {
	maxAttempts := c.RetryAttempts
	var nodeConfig nodeconfig.NodeConfig
	var err error

	if nodeName != "" {
		maxAttempts = 1
		pool, ok := c.Chains.Pool(chainName)
		if !ok {
			return Result{}, newNoNodesAvailable(chainName)
		}
		nodeConfig, ok = pool.Get(nodeName)
		if !ok {
			return Result{}, fmt.Errorf("evmrpcclient: node %q not configured for chain %q", nodeName, chainName)
		}
	} else {
		nodeConfig, err = c.GetNodeConfig(chainName, false)
		if err != nil {
			return Result{}, err
		}
	}

	var failed []Attempt
	for tryN := 0; tryN < maxAttempts; tryN++ {
		req := wrapRequest(data, nodeConfig, params, tryN)

		resp, callErr := c.requestOneNode(ctx, req)
		if callErr != nil {
			final := tryN+1 >= maxAttempts
			if final {
				c.logTerminal(ctx, chainName, nodeConfig.NodeName, tryN, callErr)
				var retriable *evmrpcmodel.RetriableErrorResponse
				if errors.As(callErr, &retriable) {
					status := retriable.LastStatus
					if status == 0 {
						status = http.StatusOK
					}
					return Result{
						Response:                retriable.LastResponse,
						NodeName:                nodeConfig.NodeName,
						TryN:                    tryN,
						FailedAttempts:          failed,
						TerminalRetriableStatus: status,
					}, nil
				}
				return Result{FailedAttempts: failed}, callErr
			}

			c.logRetry(ctx, chainName, nodeConfig.NodeName, tryN, callErr)
			failed = append(failed, Attempt{NodeName: nodeConfig.NodeName, TryN: tryN})
			nodeConfig, err = c.GetNodeConfig(chainName, true)
			if err != nil {
				return Result{FailedAttempts: failed}, err
			}
			continue
		}

		if resp.HasErrors() && c.ForceRotateOnErrorResponse {
			// Rotate even on a nominally successful call so a node that
			// keeps answering with errors doesn't stay sticky. Best-effort:
			// a rotation failure here is not fatal since we already have a
			// response to return.
			_, _ = c.GetNodeConfig(chainName, true)
		}

		c.logResult(ctx, chainName, nodeConfig.NodeName, tryN, resp)
		return Result{Response: resp, NodeName: nodeConfig.NodeName, TryN: tryN, FailedAttempts: failed}, nil
	}

	panic("evmrpcclient: selector loop exited without returning; this is a logic error")
}

func wrapRequest(data interface{}, nodeConfig nodeconfig.NodeConfig, params evmrpcmodel.RequestParams, tryN int) evmrpcmodel.Request {
	switch v := data.(type) {
	case []interface{}:
		bodies := make([]evmrpcmodel.JSONObject, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(evmrpcmodel.JSONObject); ok {
				bodies = append(bodies, obj)
			}
		}
		return evmrpcmodel.NewBatch(bodies, nodeConfig, params, tryN)
	default:
		obj, _ := data.(evmrpcmodel.JSONObject)
		return evmrpcmodel.NewSingle(obj, nodeConfig, params, tryN)
	}
}

func (c *Client) logTerminal(ctx context.Context, chain, node string, tryN int, err error) {
	c.Logger.WithContext(ctx).WithFields(map[string]interface{}{
		"chain":       chain,
		"evmrpc_node": node,
		"try_n":       tryN,
	}).WithError(err).Error("EVMRPC final error")
}

func (c *Client) logRetry(ctx context.Context, chain, node string, tryN int, err error) {
	c.Logger.WithContext(ctx).WithFields(map[string]interface{}{
		"chain":       chain,
		"evmrpc_node": node,
		"try_n":       tryN,
	}).WithError(err).Error("EVMRPC error, rotating")
}

func (c *Client) logResult(ctx context.Context, chain, node string, tryN int, resp evmrpcmodel.Response) {
	c.Logger.WithContext(ctx).WithFields(map[string]interface{}{
		"chain":       chain,
		"evmrpc_node": node,
		"try_n":       tryN,
		"has_errors":  resp.HasErrors(),
	}).Debug("EVMRPC result")
}
