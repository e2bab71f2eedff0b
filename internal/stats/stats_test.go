package stats

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New("stats-test", "error", "text")
}

type failingSink struct{ err error }

func (f failingSink) Send(ctx context.Context, rows []Row) error { return f.err }

type capturingSink struct{ rows []Row }

func (c *capturingSink) Send(ctx context.Context, rows []Row) error {
	c.rows = append(c.rows, rows...)
	return nil
}

func sampleKey(n int) evmrpcmodel.StatsKey {
	return evmrpcmodel.StatsKey{
		RequestContext: evmrpcmodel.RequestContext{Chain: "mainnet", Method: "eth_call"},
		Final:          true,
		Success:        true,
		Node:           "quiknode",
		TryN:           n,
	}
}

func TestFlushConservesCountsOnSinkFailure(t *testing.T) {
	a := New(failingSink{err: errors.New("sink unavailable")}, testLogger())
	a.Increment(context.Background(), sampleKey(0), 3)
	a.Increment(context.Background(), sampleKey(1), 4)

	before := a.Sum()
	a.flush()
	after := a.Sum()

	if before != after {
		t.Fatalf("expected conservation under flush failure: before=%d after=%d", before, after)
	}
	if after != 7 {
		t.Fatalf("expected total count 7, got %d", after)
	}
}

func TestFlushClearsCountsOnSuccess(t *testing.T) {
	sink := &capturingSink{}
	a := New(sink, testLogger())
	a.Increment(context.Background(), sampleKey(0), 5)

	a.flush()

	if a.Sum() != 0 {
		t.Fatalf("expected the live map to be empty after a successful flush, got sum %d", a.Sum())
	}
	if len(sink.rows) != 1 || sink.rows[0].Count != 5 {
		t.Fatalf("expected the sink to receive the flushed row, got %+v", sink.rows)
	}
}

func TestFlushOfEmptyMapDoesNotCallSink(t *testing.T) {
	sink := &capturingSink{}
	a := New(sink, testLogger())
	a.flush()
	if len(sink.rows) != 0 {
		t.Fatalf("expected no rows sent for an empty aggregator, got %+v", sink.rows)
	}
}

func TestIncrementWithoutSinkNeverFlushes(t *testing.T) {
	a := New(nil, testLogger()).WithPeriod(time.Nanosecond)
	a.Increment(context.Background(), sampleKey(0), 1)
	a.Wait()
	if a.Sum() != 1 {
		t.Fatalf("expected the count to simply accumulate with no sink configured, got %d", a.Sum())
	}
}

func TestIncrementTriggersBackgroundFlushAfterPeriod(t *testing.T) {
	sink := &capturingSink{}
	a := New(sink, testLogger()).WithPeriod(time.Millisecond)
	a.Increment(context.Background(), sampleKey(0), 1)
	time.Sleep(5 * time.Millisecond)
	a.Increment(context.Background(), sampleKey(0), 1)
	a.Wait()

	if len(sink.rows) == 0 {
		t.Fatalf("expected at least one background flush once the period elapsed")
	}
}

func TestHTTPSinkSendsJSONCompactEachRow(t *testing.T) {
	var gotQuery, gotBody, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "evmrpc_stats", srv.Client())
	err := sink.Send(context.Background(), []Row{{StatsKey: sampleKey(0), Count: 9, TS: time.Now()}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotQuery, "INSERT INTO evmrpc_stats") || !strings.Contains(gotQuery, "FORMAT JSONCompactEachRow") {
		t.Fatalf("unexpected query: %q", gotQuery)
	}
	if gotContentType != "application/x-ndjson" {
		t.Fatalf("got content-type %q", gotContentType)
	}
	if !strings.Contains(gotBody, "mainnet") {
		t.Fatalf("expected the row's chain name in the NDJSON body, got %q", gotBody)
	}
}

func TestHTTPSinkPropagatesNon2xxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "evmrpc_stats", srv.Client())
	err := sink.Send(context.Background(), []Row{{StatsKey: sampleKey(0), Count: 1, TS: time.Now()}})
	if err == nil {
		t.Fatalf("expected an error for a non-2xx sink response")
	}
}

func TestHTTPSinkSendNoopOnEmptyRows(t *testing.T) {
	sink := NewHTTPSink("http://unused.invalid", "t", http.DefaultClient)
	if err := sink.Send(context.Background(), nil); err != nil {
		t.Fatalf("expected a no-op for zero rows, got %v", err)
	}
}
