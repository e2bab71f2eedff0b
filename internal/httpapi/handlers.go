package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/evmrpcproxy/internal/config"
	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcclient"
	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/healthcheck"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeErrorResponse writes extra as the JSON error body with the given
// status; it adds no fields of its own.
func writeErrorResponse(w http.ResponseWriter, status int, extra map[string]interface{}) {
	writeJSON(w, status, extra)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEVMRPC serves POST /api/v1/evmrpc/{chain}.
func (s *Server) handleEVMRPC(w http.ResponseWriter, r *http.Request) {
	chainToken := mux.Vars(r)["chain"]
	info, ok := s.Registry.Resolve(chainToken)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"x_error_message": "chain not found: " + chainToken})
		return
	}

	token := r.URL.Query().Get("token")
	requester, ok := s.Tokens.Resolve(token)
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"x_error_message": "invalid or missing token"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"x_error_message": "failed reading request body"})
		return
	}

	data, err := parseRequestBody(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"x_error_message": "invalid JSON-RPC body"})
		return
	}

	mangleGetlogs := queryBool(r, "mangle_getlogs", false)
	nodeName := r.URL.Query().Get("x_node_name")
	xRequester := r.URL.Query().Get("x_requester")
	logExtra := r.URL.Query().Get("log_extra")
	method := evmrpcmodel.MethodFor(data)

	chainID := info.ID
	params := evmrpcmodel.RequestParams{AllowGetlogsMangle: mangleGetlogs, ChainID: &chainID}

	ctx := r.Context()
	result, reqErr := s.Client.Request(ctx, info.Shortname, data, nodeName, params)

	reqCtx := evmrpcmodel.RequestContext{
		Env:        s.Env,
		Chain:      info.Shortname,
		Requester:  requester,
		XRequester: xRequester,
		Method:     method,
	}
	s.incrementRetried(reqCtx, result.FailedAttempts)

	if logExtra != "" {
		s.Logger.WithContext(ctx).WithFields(map[string]interface{}{
			"chain":     info.Shortname,
			"requester": requester,
			"log_extra": logExtra,
		}).Info("evmrpc request diagnostics")
	}

	if reqErr != nil {
		s.incrementFinal(reqCtx, "", 0, false)
		s.writeTerminalError(w, reqErr)
		return
	}

	if result.TerminalRetriableStatus != 0 {
		s.incrementFinal(reqCtx, result.NodeName, result.TryN, false)
		body := frameTerminalBody(result.Response.Data,
			"upstream returned a retriable error response after exhausting retries",
			result.TerminalRetriableStatus)
		w.Header().Set("X-EVMRPC-Node", result.NodeName)
		w.Header().Set("X-EVMRPC-Attempt", strconv.Itoa(result.TryN))
		writeJSON(w, result.TerminalRetriableStatus, body)
		return
	}

	s.incrementFinal(reqCtx, result.NodeName, result.TryN, true)

	w.Header().Set("X-EVMRPC-Node", result.NodeName)
	w.Header().Set("X-EVMRPC-Attempt", strconv.Itoa(result.TryN))
	writeJSON(w, http.StatusOK, result.Response.Data)
}

// writeTerminalError frames a NoNodesAvailable/TerminalUpstreamError:
// pre-upstream errors (NoNodesAvailable, unknown chain) get their own
// status with no retry; everything else bubbles up as
// {x_error_message, x_http_status, ...last_response...}.
func (s *Server) writeTerminalError(w http.ResponseWriter, err error) {
	if svcErr, ok := asServiceError(err); ok {
		writeJSON(w, svcErr.HTTPStatus, map[string]interface{}{
			"x_error_message": svcErr.Message,
			"x_http_status":   svcErr.HTTPStatus,
		})
		return
	}

	status, body := terminalUpstreamErrorBody(err)
	writeJSON(w, status, body)
}

// asServiceError unwraps err into a *config.ServiceError, if it is one.
func asServiceError(err error) (*config.ServiceError, bool) {
	type unwrapper interface{ Unwrap() error }
	for e := err; e != nil; {
		if svcErr, ok := e.(*config.ServiceError); ok {
			return svcErr, true
		}
		u, ok := e.(unwrapper)
		if !ok {
			return nil, false
		}
		e = u.Unwrap()
	}
	return nil, false
}

// terminalUpstreamErrorBody frames a *evmrpcmodel.TerminalUpstreamError
// (or any other error) with the original upstream status, or 500 if none.
func terminalUpstreamErrorBody(err error) (int, interface{}) {
	terminal, ok := err.(*evmrpcmodel.TerminalUpstreamError)
	if !ok {
		return http.StatusInternalServerError, map[string]interface{}{
			"x_error_message": err.Error(),
			"x_http_status":   http.StatusInternalServerError,
		}
	}

	status := terminal.LastStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	var data interface{}
	if terminal.LastResponse != nil {
		data = terminal.LastResponse.Data
	}
	return status, frameTerminalBody(data, terminal.Error(), status)
}

// frameTerminalBody merges x_error_message/x_http_status into the
// upstream's last response at the top level, keeping the original JSON-RPC
// envelope fields (jsonrpc, id, error, result) where callers expect them.
// A list response is returned verbatim: there is no top level to annotate.
func frameTerminalBody(data interface{}, message string, status int) interface{} {
	obj, ok := data.(evmrpcmodel.JSONObject)
	if !ok && data != nil {
		return data
	}
	out := make(map[string]interface{}, len(obj)+2)
	for k, v := range obj {
		out[k] = v
	}
	out["x_error_message"] = message
	out["x_http_status"] = status
	return out
}

func queryBool(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes"
}

// parseRequestBody decodes body as either a single JSON-RPC object or a
// batch array.
func parseRequestBody(body []byte) (interface{}, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, io.ErrUnexpectedEOF
	}
	switch trimmed[0] {
	case '[':
		var list []interface{}
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, err
		}
		out := make([]interface{}, len(list))
		copy(out, list)
		return out, nil
	default:
		var obj evmrpcmodel.JSONObject
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, err
		}
		return obj, nil
	}
}

func (s *Server) incrementFinal(reqCtx evmrpcmodel.RequestContext, node string, tryN int, success bool) {
	if s.Stats == nil {
		return
	}
	key := evmrpcmodel.StatsKey{RequestContext: reqCtx, Final: true, Success: success, Node: node, TryN: tryN}
	s.Stats.Increment(context.Background(), key, 1)
}

// incrementRetried records one final=false row per failed attempt that
// preceded the terminal outcome.
func (s *Server) incrementRetried(reqCtx evmrpcmodel.RequestContext, attempts []evmrpcclient.Attempt) {
	if s.Stats == nil {
		return
	}
	for _, a := range attempts {
		key := evmrpcmodel.StatsKey{RequestContext: reqCtx, Final: false, Success: false, Node: a.NodeName, TryN: a.TryN}
		s.Stats.Increment(context.Background(), key, 1)
	}
}

// handleEVMRPCCheck serves POST /api/v1/evmrpc_check/.
func (s *Server) handleEVMRPCCheck(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if _, ok := s.Tokens.Resolve(token); !ok {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"x_error_message": "invalid or missing token"})
		return
	}

	sequential := queryBool(r, "sequential", false)
	returnAll := queryBool(r, "return_all", false)

	var chainNames []string
	if raw := r.URL.Query().Get("chain_names"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			c = strings.TrimSpace(c)
			if c != "" {
				chainNames = append(chainNames, c)
			}
		}
	}

	results := s.Checker.Run(r.Context(), healthcheck.Options{
		ChainNames: chainNames,
		Sequential: sequential,
	})

	if !returnAll {
		filtered := results[:0]
		for _, res := range results {
			if !res.Success {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}

	writeJSON(w, http.StatusOK, results)
}
