package middleware

import (
	"context"
	"sync"

	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
)

type unbatchMiddleware struct {
	next Handler
}

// NewUnbatch builds the fan-out-to-singles middleware: if the
// chosen node doesn't support batching and the request is a Batch, split
// into singles, dispatch each to next concurrently, and reassemble.
func NewUnbatch(next, _ Handler, _ AllNodesFunc, _ *logging.Logger) Middleware {
	return &unbatchMiddleware{next: next}
}

func (u *unbatchMiddleware) Name() string { return "Unbatch" }

func (u *unbatchMiddleware) Handle(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
	if req.NodeConfig.SupportsBatch || req.Kind != evmrpcmodel.KindBatch {
		return u.next(ctx, req)
	}

	singles := evmrpcmodel.ToSingles(req)
	results := make([]interface{}, len(singles))
	errs := make([]error, len(singles))
	var wg sync.WaitGroup
	for i, s := range singles {
		wg.Add(1)
		go func(i int, s evmrpcmodel.Request) {
			defer wg.Done()
			resp, err := u.next(ctx, s)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = resp.Data
		}(i, s)
	}
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return evmrpcmodel.Response{}, e
		}
	}
	return evmrpcmodel.Response{Data: results, Req: req}, nil
}
