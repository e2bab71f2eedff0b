// Package evmrpcmodel implements the tagged Single/Batch request and
// response types and their shape-normalizing conversions. The tag is an
// explicit Kind enum with exhaustive switches, not runtime type assertions.
package evmrpcmodel

import (
	"errors"
	"fmt"

	"github.com/R3E-Network/evmrpcproxy/internal/nodeconfig"
)

// Kind tags whether a Request/Response carries a lone object or a list.
type Kind int

const (
	// KindSingle marks a request/response body that is a lone JSON object.
	KindSingle Kind = iota
	// KindBatch marks a request/response body that is a JSON array.
	KindBatch
)

// JSONObject is one JSON-RPC request or response object.
type JSONObject = map[string]interface{}

// RequestParams carries the per-request behavior flags.
type RequestParams struct {
	AllowGetlogsMangle bool
	ChainID            *uint64
}

// Request is a tagged Single{object} | Batch[object] value.
type Request struct {
	Kind Kind

	Single JSONObject   // valid iff Kind == KindSingle
	Batch  []JSONObject // valid iff Kind == KindBatch

	NodeConfig nodeconfig.NodeConfig
	Params     RequestParams
	TryN       int
}

// NewSingle builds a Single request carrying body.
func NewSingle(body JSONObject, nc nodeconfig.NodeConfig, params RequestParams, tryN int) Request {
	return Request{Kind: KindSingle, Single: body, NodeConfig: nc, Params: params, TryN: tryN}
}

// NewBatch builds a Batch request carrying bodies.
func NewBatch(bodies []JSONObject, nc nodeconfig.NodeConfig, params RequestParams, tryN int) Request {
	return Request{Kind: KindBatch, Batch: bodies, NodeConfig: nc, Params: params, TryN: tryN}
}

// IsSingle reports whether r is the Single variant.
func (r Request) IsSingle() bool { return r.Kind == KindSingle }

// WithSingleBody returns a copy of r carrying body as its Single payload.
func (r Request) WithSingleBody(body JSONObject) Request {
	out := r
	out.Kind = KindSingle
	out.Single = body
	out.Batch = nil
	return out
}

// WithTryN returns a copy of r with TryN replaced.
func (r Request) WithTryN(tryN int) Request {
	out := r
	out.TryN = tryN
	return out
}

// ToSingles splits r into one Single per element: a Single becomes [self];
// a Batch splits into one Single per element, each inheriting
// NodeConfig/Params/TryN.
func ToSingles(r Request) []Request {
	if r.Kind == KindSingle {
		return []Request{r}
	}
	out := make([]Request, 0, len(r.Batch))
	for _, body := range r.Batch {
		out = append(out, NewSingle(body, r.NodeConfig, r.Params, r.TryN))
	}
	return out
}

// ErrEmptySingles is returned by FromSingles when given no elements.
var ErrEmptySingles = errors.New("evmrpcmodel: FromSingles called with no elements")

// FromSingles recombines singles into a Request. With a nil reqToMatch a
// lone element yields a Single; a Batch reqToMatch forces a Batch of
// length 1; N>1 elements always yield a Batch. All elements'
// NodeConfig/Params/TryN must be identical, else this is a logic error.
func FromSingles(singles []Request, reqToMatch *Request) (Request, error) {
	if len(singles) == 0 {
		return Request{}, ErrEmptySingles
	}

	ref := singles[0]
	for _, s := range singles[1:] {
		if !sameEnvelope(ref, s) {
			return Request{}, fmt.Errorf("evmrpcmodel: FromSingles envelope mismatch: %+v vs %+v", ref, s)
		}
	}

	if len(singles) == 1 {
		if reqToMatch != nil && reqToMatch.Kind == KindBatch {
			return NewBatch([]JSONObject{singles[0].Single}, ref.NodeConfig, ref.Params, ref.TryN), nil
		}
		return singles[0], nil
	}

	bodies := make([]JSONObject, 0, len(singles))
	for _, s := range singles {
		bodies = append(bodies, s.Single)
	}
	return NewBatch(bodies, ref.NodeConfig, ref.Params, ref.TryN), nil
}

func sameEnvelope(a, b Request) bool {
	return a.NodeConfig.ChainName == b.NodeConfig.ChainName &&
		a.NodeConfig.NodeName == b.NodeConfig.NodeName &&
		a.TryN == b.TryN &&
		a.Params == b.Params
}

// Response pairs an upstream payload with the request it answers. Data is
// a list iff the request the upstream actually saw was a batch.
type Response struct {
	Data interface{} // JSONObject or []interface{}
	Req  Request
}

// FromSingleReq synthesizes a {jsonrpc, id, result} response object for req,
// used by middlewares that short-circuit without a network call (ChainId)
// or that finish a synthetic call locally (ExtGas).
func FromSingleReq(req Request, result interface{}) Response {
	obj := JSONObject{
		"jsonrpc": "2.0",
		"result":  result,
	}
	if id, ok := req.Single["id"]; ok {
		obj["id"] = id
	}
	return Response{Data: obj, Req: req}
}

// HasErrors reports whether the response payload carries an "error" field,
// at the top level for an object or on any element for a list.
func (r Response) HasErrors() bool {
	switch data := r.Data.(type) {
	case JSONObject:
		_, ok := data["error"]
		return ok
	case []interface{}:
		for _, item := range data {
			if obj, ok := item.(JSONObject); ok {
				if _, hasErr := obj["error"]; hasErr {
					return true
				}
			}
		}
	}
	return false
}

// Replace returns a copy of r with Data replaced.
func (r Response) Replace(data interface{}) Response {
	return Response{Data: data, Req: r.Req}
}

// MatchBatch restores the caller's shape: if the outer request was Single
// but resp.Data is a one-element list, unwrap to that element.
func MatchBatch(resp Response, outer Request) Response {
	if outer.Kind != KindSingle {
		return resp
	}
	if list, ok := resp.Data.([]interface{}); ok && len(list) == 1 {
		return resp.Replace(list[0])
	}
	return resp
}

// RequestContext carries the stats labels derived from a request.
type RequestContext struct {
	Env        string
	Chain      string
	Requester  string
	XRequester string
	Method     string
}

// MethodFor computes RequestContext.Method: "batch" for list payloads, the
// inner method field for object payloads, "???" otherwise.
func MethodFor(body interface{}) string {
	switch v := body.(type) {
	case []interface{}:
		return "batch"
	case JSONObject:
		if m, ok := v["method"].(string); ok {
			return m
		}
	}
	return "???"
}

// StatsKey is the RequestContext fields plus the per-attempt outcome fields.
type StatsKey struct {
	RequestContext
	Final   bool
	Success bool
	Node    string
	TryN    int
}

// Labels implements the stats.Metrics label accessor, keeping the
// Prometheus mirror's label set derived from the same fields the NDJSON
// sink uses rather than a second, independently-maintained list.
func (k StatsKey) Labels() (chain, node string, success bool) {
	return k.Chain, k.Node, k.Success
}
