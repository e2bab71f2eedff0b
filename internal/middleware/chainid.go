package middleware

import (
	"context"

	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/hex"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
)

// NewChainID builds the eth_chainId short-circuit middleware: when the
// request's chain id is known, eth_chainId is answered locally with no
// network call.
func NewChainID(next, _ Handler, _ AllNodesFunc, logger *logging.Logger) Middleware {
	sh := &SelectiveHandler{
		MWName: "ChainId",
		Next:   next,
		Logger: logger,
		IsRelevant: func(req evmrpcmodel.Request) bool {
			method, _ := req.Single["method"].(string)
			return method == "eth_chainId" && req.Params.ChainID != nil
		},
	}
	sh.HandleSingle = func(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
		return evmrpcmodel.FromSingleReq(req, hex.FormatQuantity(*req.Params.ChainID)), nil
	}
	return sh
}
