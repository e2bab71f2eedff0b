package middleware

import (
	"context"
	"sync"

	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
)

// SelectiveHandler splits a request into singles, partitions them into
// normal (forwarded to next as one request) and relevant (handled locally,
// concurrently with the normal path), and recombines preserving original
// positions. Used by ChainId and ExtGas.
type SelectiveHandler struct {
	MWName       string
	Next         Handler
	Logger       *logging.Logger
	IsRelevant   func(req evmrpcmodel.Request) bool
	HandleSingle func(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error)
}

// Name identifies this middleware in pipeline logging.
func (s *SelectiveHandler) Name() string { return s.MWName }

// Handle implements Middleware.
func (s *SelectiveHandler) Handle(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
	singles := evmrpcmodel.ToSingles(req)
	normal, special := PickOutSpecialItems(singles, s.IsRelevant)

	if len(special) == 0 {
		return s.Next(ctx, req)
	}

	if len(normal) == 0 {
		relevantResults, err := s.handleRelevant(ctx, special)
		if err != nil {
			return evmrpcmodel.Response{}, err
		}
		data := make([]interface{}, len(singles))
		for _, r := range relevantResults {
			data[r.Index] = r.Item
		}
		return evmrpcmodel.MatchBatch(evmrpcmodel.Response{Data: data, Req: req}, req), nil
	}

	var (
		respNormal      evmrpcmodel.Response
		errNormal       error
		relevantResults []IndexedItem[interface{}]
		errRelevant     error
		wg              sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		respNormal, errNormal = s.handleNormal(ctx, normal, req)
	}()
	go func() {
		defer wg.Done()
		relevantResults, errRelevant = s.handleRelevant(ctx, special)
	}()
	wg.Wait()

	if errNormal != nil {
		return evmrpcmodel.Response{}, errNormal
	}
	if errRelevant != nil {
		return evmrpcmodel.Response{}, errRelevant
	}

	dataNormal, ok := respNormal.Data.([]interface{})
	if !ok {
		s.Logger.WithFields(map[string]interface{}{
			"middleware": s.MWName,
		}).Warn("normal-path result was not a list (error response); dropping relevant results")
		return respNormal, nil
	}

	dataFull := PutInSpecialResults(dataNormal, relevantResults)
	return respNormal.Replace(dataFull), nil
}

func (s *SelectiveHandler) handleNormal(ctx context.Context, reqs []evmrpcmodel.Request, topReq evmrpcmodel.Request) (evmrpcmodel.Response, error) {
	if len(reqs) == 0 {
		return evmrpcmodel.Response{Data: []interface{}{}, Req: topReq}, nil
	}
	combined, err := evmrpcmodel.FromSingles(reqs, nil)
	if err != nil {
		return evmrpcmodel.Response{}, err
	}
	resp, err := s.Next(ctx, combined)
	if err != nil {
		return evmrpcmodel.Response{}, err
	}
	if combined.Kind == evmrpcmodel.KindSingle {
		resp = resp.Replace([]interface{}{resp.Data})
	}
	return resp, nil
}

func (s *SelectiveHandler) handleRelevant(ctx context.Context, reqs []IndexedItem[evmrpcmodel.Request]) ([]IndexedItem[interface{}], error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	results := make([]IndexedItem[interface{}], len(reqs))
	errs := make([]error, len(reqs))
	var wg sync.WaitGroup
	for i, r := range reqs {
		wg.Add(1)
		go func(i int, r IndexedItem[evmrpcmodel.Request]) {
			defer wg.Done()
			resp, err := s.HandleSingle(ctx, r.Item)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = IndexedItem[interface{}]{Index: r.Index, Item: resp.Data}
		}(i, r)
	}
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return nil, e
		}
	}
	return results, nil
}
