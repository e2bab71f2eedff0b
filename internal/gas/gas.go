// Package gas implements the ext_estimateGas pricing helper:
// EIP-1559/legacy/linea/polygon gas pricing paths, percentage surcharges,
// and a short-TTL gas-station cache.
package gas

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/R3E-Network/evmrpcproxy/internal/hex"
)

// TxParamsSimple is the subset of eth_sendTransaction-shaped fields this
// package reads and writes; present-but-zero fields are distinguished by
// map-key presence, so it's modeled as a plain object rather than a struct.
type TxParamsSimple = map[string]interface{}

// MethodUnavailable signals that an upstream call used to probe pricing
// returned an unknown-method error, so the caller should fall back to the
// legacy path.
type MethodUnavailable struct {
	Method string
}

func (e *MethodUnavailable) Error() string {
	return fmt.Sprintf("gas: method unavailable: %s", e.Method)
}

// Error is a structured failure from the gas pipeline, encoded back into
// the JSON-RPC response's error field by the caller and never propagated
// further.
type Error struct {
	Data map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("gas: %v", e.Data)
}

// NewError builds a gas.Error carrying message (and any extra fields).
func NewError(message string, extra map[string]interface{}) *Error {
	data := map[string]interface{}{"message": message}
	for k, v := range extra {
		data[k] = v
	}
	return &Error{Data: data}
}

// Call is one synthetic upstream JSON-RPC call issued via ReqNode.
type Call struct {
	ID     int
	Method string
	Params []interface{}
}

// ReqNodeFunc issues calls as a single synthetic batch against the node the
// outer request was routed to, returning one result per call in order.
// Implemented by internal/middleware's ExtGas wiring against next().
type ReqNodeFunc func(ctx context.Context, calls []Call) ([]interface{}, error)

// NormalizeTxParams drops gas/price fields the caller may have supplied
// (they are recomputed) and hex-encodes value/chainId.
func NormalizeTxParams(data TxParamsSimple) TxParamsSimple {
	out := make(TxParamsSimple, len(data))
	for k, v := range data {
		out[k] = v
	}
	delete(out, "gas")
	delete(out, "gasPrice")
	delete(out, "maxFeePerGas")
	delete(out, "maxPriorityFeePerGas")

	for _, key := range []string{"value", "chainId"} {
		if v, ok := out[key]; ok {
			if hexVal, ok := toHexIfNumeric(v); ok {
				out[key] = hexVal
			}
		}
	}
	return out
}

func toHexIfNumeric(v interface{}) (string, bool) {
	switch n := v.(type) {
	case int:
		return hex.FormatSignedQuantity(int64(n)), true
	case int64:
		return hex.FormatSignedQuantity(n), true
	case float64:
		return hex.FormatSignedQuantity(int64(n)), true
	case string:
		if isAllDigits(n) {
			iv, err := strconv.ParseInt(n, 10, 64)
			if err == nil {
				return hex.FormatSignedQuantity(iv), true
			}
		}
	}
	return "", false
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// AddPct scales value by (1 + extraPct/100) using integer fixed-point math
// with fracMult precision.
func AddPct(value int64, extraPct float64, fracMult int64) int64 {
	scaled := fracMult + int64(extraPct*float64(fracMult)/100.0)
	return value * scaled / fracMult
}

// AddPctHex applies AddPct to a hex-encoded integer and returns it re-encoded.
func AddPctHex(valueHex string, extraPct float64, fracMult int64) (string, error) {
	v, err := hex.ParseSignedQuantity(valueHex)
	if err != nil {
		return "", err
	}
	return hex.FormatSignedQuantity(AddPct(v, extraPct, fracMult)), nil
}

// GweiToWei converts a gwei float amount to an integer wei amount.
func GweiToWei(value float64) int64 {
	return int64(value * 1e9)
}

// ErrMissingFrom describes tx params that lack "from". The gas-params
// paths that need "from" (linea and merlin) report its absence as a
// *Error built with NewError; they do not return this value.
var ErrMissingFrom = errors.New("gas: tx params missing \"from\"")
