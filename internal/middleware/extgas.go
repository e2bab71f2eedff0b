package middleware

import (
	"context"
	"errors"

	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/gas"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
)

// extGasMethodName is the synthetic method this middleware intercepts.
const extGasMethodName = "ext_estimateGas"

type extGasMiddleware struct {
	next   Handler
	logger *logging.Logger
	sh     *SelectiveHandler
}

// NewExtGas builds the synthetic ext_estimateGas middleware.
func NewExtGas(next, _ Handler, _ AllNodesFunc, logger *logging.Logger) Middleware {
	m := &extGasMiddleware{next: next, logger: logger}
	m.sh = &SelectiveHandler{
		MWName: "ExtGas",
		Next:   next,
		Logger: logger,
		IsRelevant: func(req evmrpcmodel.Request) bool {
			method, _ := req.Single["method"].(string)
			return method == extGasMethodName
		},
		HandleSingle: m.handleSingleReq,
	}
	return m
}

func (m *extGasMiddleware) Name() string { return "ExtGas" }

func (m *extGasMiddleware) Handle(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
	return m.sh.Handle(ctx, req)
}

// handleFallback rewrites method to eth_estimateGas and passes through next
// as a best-effort fallback.
func (m *extGasMiddleware) handleFallback(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
	body := cloneJSONObject(req.Single)
	body["method"] = "eth_estimateGas"
	return m.next(ctx, req.WithSingleBody(body))
}

func (m *extGasMiddleware) handleSingleReq(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
	if req.Params.ChainID == nil {
		m.logger.WithFields(map[string]interface{}{"middleware": "ExtGas"}).
			Error("ext_estimateGas requested with no chain_id, falling back")
		return m.handleFallback(ctx, req)
	}

	result, err := m.handleGas(ctx, *req.Params.ChainID, req.Single, req)
	if err == nil {
		return evmrpcmodel.FromSingleReq(req, result), nil
	}

	var gasErr *gas.Error
	if errors.As(err, &gasErr) {
		m.logger.WithFields(map[string]interface{}{"middleware": "ExtGas", "gas_error": gasErr.Data}).
			Warn("ext_estimateGas gas error, encoded into response")
		return evmrpcmodel.Response{Data: errorResponseObject(req, gasErr.Data), Req: req}, nil
	}

	var retriable *evmrpcmodel.RetriableErrorResponse
	if errors.As(err, &retriable) {
		return evmrpcmodel.Response{}, m.unwrapSingleExc(retriable)
	}

	m.logger.WithError(err).Error("ext_estimateGas unexpected error, falling back")
	return m.handleFallback(ctx, req)
}

func errorResponseObject(req evmrpcmodel.Request, errData map[string]interface{}) evmrpcmodel.JSONObject {
	obj := evmrpcmodel.JSONObject{
		"jsonrpc": "2.0",
		"error":   errData,
	}
	if id, ok := req.Single["id"]; ok {
		obj["id"] = id
	}
	return obj
}

// unwrapSingleExc unwraps a RetriableErrorResponse's last-response list down
// to its first element, warning if the list does not hold exactly one item. The
// caller sent a single ext_estimateGas, so it must see a single error back.
func (m *extGasMiddleware) unwrapSingleExc(exc *evmrpcmodel.RetriableErrorResponse) error {
	list, ok := exc.LastResponse.Data.([]interface{})
	if !ok {
		return exc
	}
	if len(list) != 1 {
		m.logger.WithFields(map[string]interface{}{"middleware": "ExtGas", "count": len(list)}).
			Warn("dropping extra items while unwrapping ext_estimateGas upstream response")
	}
	var item interface{}
	if len(list) > 0 {
		item = list[0]
	}
	return &evmrpcmodel.RetriableErrorResponse{LastResponse: exc.LastResponse.Replace(item)}
}

func (m *extGasMiddleware) handleGas(ctx context.Context, chainID uint64, reqData evmrpcmodel.JSONObject, topReq evmrpcmodel.Request) (map[string]interface{}, error) {
	params, _ := reqData["params"].([]interface{})
	if len(params) > 2 {
		return nil, gas.NewError("ext_estimateGas takes at most 2 params", nil)
	}
	if len(params) == 2 {
		if block, ok := params[1].(string); !ok || block != "latest" {
			return nil, gas.NewError("ext_estimateGas second param must be \"latest\"", nil)
		}
	}
	if len(params) == 0 {
		return nil, gas.NewError("ext_estimateGas requires tx params", nil)
	}
	txParams, ok := params[0].(map[string]interface{})
	if !ok {
		return nil, gas.NewError("ext_estimateGas params[0] must be an object", nil)
	}
	txParams = cloneMap(txParams)

	helper := gas.NewHelper(chainID, m.reqNode(topReq), m.logger)
	if v, ok := popFloat(txParams, "x_gas_price_extra_pct"); ok {
		helper.GasPriceExtraPct = v
	}
	if v, ok := popFloat(txParams, "x_gas_priority_fee_extra_pct"); ok {
		helper.GasPriorityFeeExtraPct = v
	}
	if v, ok := popFloat(txParams, "x_gas_units_extra_pct"); ok {
		helper.GasUnitsExtraPct = v
	}
	if v, ok := txParams["x_gasstation_key"].(string); ok {
		helper.GasStationKey = v
		delete(txParams, "x_gasstation_key")
	}

	normalized := gas.NormalizeTxParams(txParams)
	return helper.BuildGasParams(ctx, normalized)
}

func popFloat(m map[string]interface{}, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	delete(m, key)
	f, ok := v.(float64)
	return f, ok
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// reqNode builds the gas.ReqNodeFunc collaborator: a batch of sequential-id
// synthetic calls dispatched through next against topReq's node/params.
func (m *extGasMiddleware) reqNode(topReq evmrpcmodel.Request) gas.ReqNodeFunc {
	return func(ctx context.Context, calls []gas.Call) ([]interface{}, error) {
		bodies := make([]evmrpcmodel.JSONObject, len(calls))
		for i, c := range calls {
			bodies[i] = evmrpcmodel.JSONObject{
				"jsonrpc": "2.0",
				"id":      i + 1,
				"method":  c.Method,
				"params":  c.Params,
			}
		}
		req := evmrpcmodel.NewBatch(bodies, topReq.NodeConfig, topReq.Params, topReq.TryN)

		resp, err := m.next(ctx, req)
		if err != nil {
			var retriable *evmrpcmodel.RetriableErrorResponse
			if errors.As(err, &retriable) {
				if unknown := evmrpcmodel.PickUnknownMethodErrors(retriable.LastResponse.Data); len(unknown) > 0 {
					return nil, &gas.MethodUnavailable{Method: calls[0].Method}
				}
			}
			return nil, err
		}

		list, ok := resp.Data.([]interface{})
		if !ok || len(list) != len(calls) {
			return nil, gas.NewError("upstream error", map[string]interface{}{
				"x_reqs": calls,
				"x_resp": resp.Data,
			})
		}
		if unknown := evmrpcmodel.PickUnknownMethodErrors(resp.Data); len(unknown) > 0 {
			return nil, gas.NewError(unknown[0].Message, map[string]interface{}{"code": unknown[0].Code})
		}

		results := make([]interface{}, len(list))
		for i, item := range list {
			if obj, ok := item.(evmrpcmodel.JSONObject); ok {
				results[i] = obj["result"]
			}
		}
		return results, nil
	}
}
