package middleware

import (
	"context"

	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/hex"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
)

// NewMangleGetlogs builds the eth_getLogs block-range clamping middleware.
func NewMangleGetlogs(next, _ Handler, _ AllNodesFunc, logger *logging.Logger) Middleware {
	return &SingleRequestPreprocessor{
		MWName: "MangleGetlogs",
		Next:   next,
		ProcessSingle: func(ctx context.Context, req evmrpcmodel.Request) evmrpcmodel.Request {
			maxDist := req.NodeConfig.EffectiveMaxBlocksDistance()
			if !req.Params.AllowGetlogsMangle || maxDist <= 0 {
				return req
			}
			method, _ := req.Single["method"].(string)
			if method != "eth_getLogs" {
				return req
			}
			mangled, ok := mangleEthGetLogs(req.Single, maxDist, logger)
			if !ok {
				return req
			}
			return req.WithSingleBody(mangled)
		},
	}
}

// mangleEthGetLogs rewrites params[0].fromBlock when the requested window
// exceeds maxBlocksDistance, capping the scan so the upstream doesn't
// reject the range outright. On any parse failure it logs and returns the
// body untouched.
func mangleEthGetLogs(body evmrpcmodel.JSONObject, maxBlocksDistance int, logger *logging.Logger) (evmrpcmodel.JSONObject, bool) {
	params, ok := body["params"].([]interface{})
	if !ok || len(params) == 0 {
		return body, false
	}
	filterObj, ok := params[0].(evmrpcmodel.JSONObject)
	if !ok {
		return body, false
	}

	fromBlockHex, _ := filterObj["fromBlock"].(string)
	toBlockHex, _ := filterObj["toBlock"].(string)
	if fromBlockHex == "" || toBlockHex == "" {
		logger.WithFields(map[string]interface{}{"middleware": "MangleGetlogs"}).
			Debug("eth_getLogs missing fromBlock/toBlock, leaving untouched")
		return body, false
	}

	fromBlock, err := hex.ParseQuantity(fromBlockHex)
	if err != nil {
		logger.WithError(err).Error("eth_getLogs fromBlock not hex, leaving untouched")
		return body, false
	}
	toBlock, err := hex.ParseQuantity(toBlockHex)
	if err != nil {
		logger.WithError(err).Error("eth_getLogs toBlock not hex, leaving untouched")
		return body, false
	}

	if int64(toBlock)-int64(fromBlock) <= int64(maxBlocksDistance) {
		return body, false
	}

	newFrom := toBlock - uint64(maxBlocksDistance)
	logger.WithFields(map[string]interface{}{
		"middleware":     "MangleGetlogs",
		"old_from_block": fromBlockHex,
		"new_from_block": hex.FormatQuantity(newFrom),
		"to_block":       toBlockHex,
	}).Info("clamped eth_getLogs block range")

	newFilter := cloneJSONObject(filterObj)
	newFilter["fromBlock"] = hex.FormatQuantity(newFrom)
	newParams := make([]interface{}, len(params))
	copy(newParams, params)
	newParams[0] = newFilter

	newBody := cloneJSONObject(body)
	newBody["params"] = newParams
	return newBody, true
}

func cloneJSONObject(obj evmrpcmodel.JSONObject) evmrpcmodel.JSONObject {
	out := make(evmrpcmodel.JSONObject, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}
