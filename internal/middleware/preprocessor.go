package middleware

import (
	"context"

	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
)

// SingleRequestPreprocessor splits a request into singles, transforms each,
// and recombines preserving the original shape. Used by MangleGetlogs.
type SingleRequestPreprocessor struct {
	MWName        string
	Next          Handler
	ProcessSingle func(ctx context.Context, req evmrpcmodel.Request) evmrpcmodel.Request
}

// Name identifies this middleware in pipeline logging.
func (p *SingleRequestPreprocessor) Name() string { return p.MWName }

// Handle implements Middleware.
func (p *SingleRequestPreprocessor) Handle(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
	singles := evmrpcmodel.ToSingles(req)
	mangled := make([]evmrpcmodel.Request, len(singles))
	for i, s := range singles {
		mangled[i] = p.ProcessSingle(ctx, s)
	}
	recombined, err := evmrpcmodel.FromSingles(mangled, &req)
	if err != nil {
		return evmrpcmodel.Response{}, err
	}
	return p.Next(ctx, recombined)
}
