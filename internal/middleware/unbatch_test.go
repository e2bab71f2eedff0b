package middleware

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/nodeconfig"
)

var errBoom = errors.New("boom")

func TestUnbatchFansOutWhenNodeDoesNotSupportBatch(t *testing.T) {
	var calls int32
	next := func(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
		if req.Kind != evmrpcmodel.KindSingle {
			t.Fatalf("expected each fanned-out call to be a single")
		}
		atomic.AddInt32(&calls, 1)
		return evmrpcmodel.FromSingleReq(req, "ok"), nil
	}
	mw := NewUnbatch(next, nil, nil, testLogger())

	nc := nodeconfig.NodeConfig{ChainName: "bouncebit", NodeName: "blockvision", SupportsBatch: false}
	req := evmrpcmodel.NewBatch([]evmrpcmodel.JSONObject{
		{"id": float64(1), "method": "eth_chainId"},
		{"id": float64(2), "method": "eth_blockNumber"},
	}, nc, evmrpcmodel.RequestParams{}, 0)

	resp, err := mw.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 fanned-out calls, got %d", calls)
	}
	list, ok := resp.Data.([]interface{})
	if !ok || len(list) != 2 {
		t.Fatalf("expected a 2-element reassembled response, got %#v", resp.Data)
	}
}

func TestUnbatchPassesThroughWhenNodeSupportsBatch(t *testing.T) {
	called := false
	next := func(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
		called = true
		if req.Kind != evmrpcmodel.KindBatch {
			t.Fatalf("expected the original batch to pass through untouched")
		}
		return evmrpcmodel.Response{Data: []interface{}{}, Req: req}, nil
	}
	mw := NewUnbatch(next, nil, nil, testLogger())

	nc := nodeconfig.NodeConfig{ChainName: "mainnet", NodeName: "quiknode", SupportsBatch: true}
	req := evmrpcmodel.NewBatch([]evmrpcmodel.JSONObject{{"id": float64(1)}}, nc, evmrpcmodel.RequestParams{}, 0)

	if _, err := mw.Handle(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected a single pass-through call to next")
	}
}

func TestUnbatchPassesThroughSingleRequests(t *testing.T) {
	called := false
	next := func(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
		called = true
		return evmrpcmodel.FromSingleReq(req, "ok"), nil
	}
	mw := NewUnbatch(next, nil, nil, testLogger())

	nc := nodeconfig.NodeConfig{ChainName: "bouncebit", NodeName: "blockvision", SupportsBatch: false}
	req := evmrpcmodel.NewSingle(evmrpcmodel.JSONObject{"id": float64(1)}, nc, evmrpcmodel.RequestParams{}, 0)

	if _, err := mw.Handle(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("single requests must pass through regardless of batch support")
	}
}

func TestUnbatchPropagatesFirstError(t *testing.T) {
	next := func(ctx context.Context, req evmrpcmodel.Request) (evmrpcmodel.Response, error) {
		method, _ := req.Single["method"].(string)
		if method == "fails" {
			return evmrpcmodel.Response{}, errBoom
		}
		return evmrpcmodel.FromSingleReq(req, "ok"), nil
	}
	mw := NewUnbatch(next, nil, nil, testLogger())

	nc := nodeconfig.NodeConfig{ChainName: "bouncebit", NodeName: "blockvision", SupportsBatch: false}
	req := evmrpcmodel.NewBatch([]evmrpcmodel.JSONObject{
		{"id": float64(1), "method": "ok"},
		{"id": float64(2), "method": "fails"},
	}, nc, evmrpcmodel.RequestParams{}, 0)

	if _, err := mw.Handle(context.Background(), req); err == nil {
		t.Fatalf("expected the fanned-out error to propagate")
	}
}
