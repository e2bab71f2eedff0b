package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/R3E-Network/evmrpcproxy/internal/chainregistry"
	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcclient"
	"github.com/R3E-Network/evmrpcproxy/internal/healthcheck"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
	"github.com/R3E-Network/evmrpcproxy/internal/nodeconfig"
	"github.com/R3E-Network/evmrpcproxy/internal/stats"
)

func testServerLogger() *logging.Logger {
	return logging.New("httpapi-test", "error", "text")
}

func buildTestServer(t *testing.T, upstream *httptest.Server) (*Server, *nodeconfig.Registry) {
	t.Helper()
	reg := nodeconfig.NewRegistry()
	reg.SetPool("mainnet", nodeconfig.NewChainPool([]nodeconfig.NodeConfig{
		{ChainName: "mainnet", NodeName: "quiknode", URLTemplate: upstream.URL, SupportsBatch: true},
	}))

	client := evmrpcclient.New(reg, nodeconfig.Secrets{}, testServerLogger())
	client.HTTPCli = http.DefaultClient

	chains := chainregistry.New([]chainregistry.ChainInfo{{ID: 1, Shortname: "mainnet"}})
	checker := healthcheck.New(client, chains, testServerLogger())
	aggregator := stats.New(nil, testServerLogger())

	return &Server{
		Client:   client,
		Registry: chains,
		Checker:  checker,
		Stats:    aggregator,
		Tokens:   NewTokenResolver(map[string]string{"good-token": "alice"}, ""),
		Logger:   testServerLogger(),
		Env:      "test",
	}, reg
}

func TestHandleEVMRPCUnknownChainReturns404(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()
	srv, _ := buildTestServer(t, upstream)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evmrpc/doesnotexist?token=good-token",
		bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"eth_chainId"}`))
	w := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}

func TestHandleEVMRPCInvalidTokenReturns403(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()
	srv, _ := buildTestServer(t, upstream)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evmrpc/mainnet?token=bad-token",
		bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"eth_chainId"}`))
	w := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want 403", w.Code)
	}
}

func TestHandleEVMRPCSuccessSetsDiagnosticHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x2a"}`))
	}))
	defer upstream.Close()
	srv, _ := buildTestServer(t, upstream)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evmrpc/mainnet?token=good-token",
		bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber"}`))
	w := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-EVMRPC-Node") != "quiknode" {
		t.Fatalf("expected X-EVMRPC-Node header, got %q", w.Header().Get("X-EVMRPC-Node"))
	}
	if w.Header().Get("X-EVMRPC-Attempt") != "0" {
		t.Fatalf("expected X-EVMRPC-Attempt=0, got %q", w.Header().Get("X-EVMRPC-Attempt"))
	}
}

func TestHandleEVMRPCTerminalErrorFramesLastResponseAndStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"try again"}}`))
	}))
	defer upstream.Close()
	srv, _ := buildTestServer(t, upstream)
	srv.Client.RetryAttempts = 1

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evmrpc/mainnet?token=good-token",
		bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"eth_call"}`))
	w := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want 503, body=%s", w.Code, w.Body.String())
	}

	// The upstream's JSON-RPC envelope must survive at the top level, with
	// the diagnostic fields merged in alongside it, not wrapping it.
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not a JSON object: %v, body=%s", err, w.Body.String())
	}
	if body["jsonrpc"] != "2.0" || body["id"] != float64(1) {
		t.Fatalf("expected jsonrpc/id merged at top level, got %s", w.Body.String())
	}
	errObj, ok := body["error"].(map[string]interface{})
	if !ok || errObj["code"] != float64(-32000) || errObj["message"] != "try again" {
		t.Fatalf("expected the upstream error object at top level, got %s", w.Body.String())
	}
	if _, ok := body["x_error_message"]; !ok {
		t.Fatalf("expected x_error_message alongside the envelope, got %s", w.Body.String())
	}
	if body["x_http_status"] != float64(http.StatusServiceUnavailable) {
		t.Fatalf("expected x_http_status 503, got %s", w.Body.String())
	}
	if _, ok := body["last_response"]; ok {
		t.Fatalf("upstream payload must not be nested under a wrapper key, got %s", w.Body.String())
	}
}

func TestHandlePing(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()
	srv, _ := buildTestServer(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}
}

func TestHandleEVMRPCCheckRequiresToken(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()
	srv, _ := buildTestServer(t, upstream)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evmrpc_check/", nil)
	w := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want 403", w.Code)
	}
}

func TestHandleEVMRPCCheckFiltersToFailuresByDefault(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"jsonrpc":"2.0","id":1,"result":"0x1"},{"jsonrpc":"2.0","id":2,"result":"0x1"}]`))
	}))
	defer upstream.Close()
	srv, _ := buildTestServer(t, upstream)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evmrpc_check/?token=good-token", nil)
	w := httptest.NewRecorder()
	NewRouter(srv).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if !bytes.Equal(bytes.TrimSpace(w.Body.Bytes()), []byte("[]")) {
		t.Fatalf("expected an empty array when every probe succeeds, got %s", w.Body.String())
	}
}
