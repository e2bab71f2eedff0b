package evmrpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/evmrpcproxy/internal/classify"
	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
	"github.com/R3E-Network/evmrpcproxy/pkg/version"
)

// requestOneCall performs the HTTPS POST to one node and parses the body.
// JSON-RPC-level errors are classified before HTTP status is inspected:
// some upstreams return RPC errors with 200, and legitimate results with
// non-200 statuses are unusual but possible.
func (c *Client) requestOneCall(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
	url, err := req.NodeConfig.GetURL(c.Secrets)
	if err != nil {
		return evmrpcmodel.Response{}, &evmrpcmodel.TerminalUpstreamError{Message: "url template resolution failed", Err: err}
	}

	body, err := encodeRequestBody(req)
	if err != nil {
		return evmrpcmodel.Response{}, &evmrpcmodel.TerminalUpstreamError{Message: "failed to encode request body", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return evmrpcmodel.Response{}, &evmrpcmodel.TerminalUpstreamError{Message: "failed to build http request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	for _, h := range req.NodeConfig.Headers {
		httpReq.Header.Set(h.Name, h.Value)
	}

	start := time.Now()
	httpResp, err := c.HTTPCli.Do(httpReq)
	if c.Metrics != nil {
		c.Metrics.ObserveUpstreamLatency(req.NodeConfig.ChainName, req.NodeConfig.NodeName, time.Since(start).Seconds())
	}
	if err != nil {
		return evmrpcmodel.Response{}, &evmrpcmodel.TerminalUpstreamError{Message: "transport error", Err: err}
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(httpResp.Body, 8<<20))
	if err != nil {
		return evmrpcmodel.Response{}, &evmrpcmodel.TerminalUpstreamError{LastStatus: httpResp.StatusCode, Message: "failed reading response body", Err: err}
	}

	if c.DoUpstreamDebug {
		c.logUpstreamDebug(ctx, req, url, respBytes, time.Since(start))
	}

	data, parseErr := decodeResponseBody(respBytes)
	if parseErr != nil {
		raw := evmrpcmodel.JSONObject{"__raw__": string(respBytes)}
		msg := "EVMRPC node error status"
		if httpResp.StatusCode == http.StatusOK {
			msg = "EVMRPC node returned non-JSON body with 200 status"
		}
		return evmrpcmodel.Response{}, &evmrpcmodel.TerminalUpstreamError{
			LastStatus:   httpResp.StatusCode,
			LastResponse: &evmrpcmodel.Response{Data: raw, Req: req},
			Message:      msg,
			Err:          parseErr,
		}
	}

	resp := evmrpcmodel.Response{Data: data, Req: req}

	if err := c.checkResponse(ctx, resp, httpResp.StatusCode); err != nil {
		return evmrpcmodel.Response{}, err
	}

	if httpResp.StatusCode != http.StatusOK {
		return evmrpcmodel.Response{}, &evmrpcmodel.TerminalUpstreamError{
			LastStatus:   httpResp.StatusCode,
			LastResponse: &resp,
			Message:      "EVMRPC node error status",
		}
	}

	return resp, nil
}

// checkResponse classifies any RPC-level errors in resp. A retriable error
// raises RetriableErrorResponse; a terminal one is logged and passed
// through as-is (returned to the caller unchanged).
func (c *Client) checkResponse(ctx context.Context, resp evmrpcmodel.Response, httpStatus int) error {
	errs := evmrpcmodel.ParseErrors(resp.Data)
	if len(errs) == 0 {
		return nil
	}

	retriable := false
	for _, e := range errs {
		if classify.IsRetriable(e.Code, e.Message) {
			retriable = true
			break
		}
	}

	c.Logger.WithContext(ctx).WithFields(map[string]interface{}{
		"chain":       resp.Req.NodeConfig.ChainName,
		"evmrpc_node": resp.Req.NodeConfig.NodeName,
		"try_n":       resp.Req.TryN,
		"retriable":   retriable,
		"error_count": len(errs),
	}).Error("EVMRPC response contained error")

	if retriable {
		return &evmrpcmodel.RetriableErrorResponse{LastStatus: httpStatus, LastResponse: resp}
	}
	return nil
}

func encodeRequestBody(req evmrpcmodel.Request) ([]byte, error) {
	if req.Kind == evmrpcmodel.KindBatch {
		return json.Marshal(req.Batch)
	}
	return json.Marshal(req.Single)
}

// decodeResponseBody decodes body as either a JSON object or array,
// consulting gjson first for a cheap shape check before committing to a
// full encoding/json decode.
func decodeResponseBody(body []byte) (interface{}, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	parsed := gjson.ParseBytes(trimmed)
	switch {
	case parsed.IsArray():
		var list []interface{}
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	case parsed.IsObject():
		var obj map[string]interface{}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, err
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("response body is neither a JSON object nor array")
	}
}

func (c *Client) logUpstreamDebug(ctx context.Context, req evmrpcmodel.Request, url string, respBytes []byte, elapsed time.Duration) {
	reqBody, _ := encodeRequestBody(req)
	c.Logger.WithContext(ctx).WithFields(map[string]interface{}{
		"chain":       req.NodeConfig.ChainName,
		"evmrpc_node": req.NodeConfig.NodeName,
		"url":         url,
		"request":     logging.DumpCut(string(reqBody), c.MaxReqLogSize, "x_request", "x_request_cut"),
		"response":    logging.DumpCut(string(respBytes), c.MaxRespLogSize, "x_response", "x_response_cut"),
		"elapsed":     logging.FormatDuration(elapsed),
	}).Debug("EVMRPC upstream debug")
}
