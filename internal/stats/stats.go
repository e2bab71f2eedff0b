// Package stats implements the async counter aggregator: an in-memory
// StatsKey->count map that periodically, non-blockingly flushes to an
// analytical NDJSON sink, re-merging the snapshot back on failure so no
// counts are lost.
package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
)

const defaultFlushPeriod = 60 * time.Second

// Sink delivers one flush's rows to the analytical store. Implementations
// must be safe for concurrent use; Aggregator never calls Sink
// concurrently with itself for the SAME flush, but a prior flush's HTTP
// call may still be in flight when the next period elapses.
type Sink interface {
	Send(ctx context.Context, rows []Row) error
}

// Row is one NDJSON line: the StatsKey fields plus (ts, count).
type Row struct {
	evmrpcmodel.StatsKey
	Count int64
	TS    time.Time
}

// Aggregator is the process-wide stats counter. Zero value is not usable;
// construct with New.
type Aggregator struct {
	mu       sync.Mutex
	counts   map[evmrpcmodel.StatsKey]int64
	lastSync time.Time
	period   time.Duration

	sink    Sink
	logger  *logging.Logger
	metrics *Metrics

	wg sync.WaitGroup
}

// New builds an Aggregator. sink may be nil, in which case counts
// accumulate in memory but are never flushed.
func New(sink Sink, logger *logging.Logger) *Aggregator {
	return &Aggregator{
		counts:   make(map[evmrpcmodel.StatsKey]int64),
		lastSync: time.Time{},
		period:   defaultFlushPeriod,
		sink:     sink,
		logger:   logger,
	}
}

// WithPeriod overrides the default 60s flush period.
func (a *Aggregator) WithPeriod(period time.Duration) *Aggregator {
	a.period = period
	return a
}

// WithMetrics attaches the Prometheus mirror. Every Increment of a
// final=true key is additionally observed on m, alongside the NDJSON sink.
func (a *Aggregator) WithMetrics(m *Metrics) *Aggregator {
	a.metrics = m
	return a
}

// Increment adds n to key's count and, if the sink is configured and the
// flush period has elapsed since the last sync, spawns a non-blocking
// background flush.
func (a *Aggregator) Increment(ctx context.Context, key evmrpcmodel.StatsKey, n int64) {
	a.mu.Lock()
	a.counts[key] += n
	shouldFlush := a.sink != nil && time.Since(a.lastSync) > a.period
	if shouldFlush {
		a.lastSync = time.Now()
	}
	a.mu.Unlock()

	if a.metrics != nil && key.Final {
		a.metrics.Observe(key)
	}

	if shouldFlush {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.flush()
		}()
	}
}

// flush atomically snapshots the live map, replaces it with an empty one,
// and ships the snapshot to the sink. On failure the snapshot is re-merged
// into whatever the live map currently holds, so concurrent increments
// that landed in the fresh map are preserved alongside the failed batch.
// Deliberately detached from the triggering request's context: a flush
// outlives the request that triggered it.
func (a *Aggregator) flush() {
	snapshot := a.snapshotAndReset()
	if len(snapshot) == 0 {
		return
	}

	rows := make([]Row, 0, len(snapshot))
	ts := time.Now().UTC()
	for key, count := range snapshot {
		rows = append(rows, Row{StatsKey: key, Count: count, TS: ts})
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.sink.Send(flushCtx, rows); err != nil {
		if a.logger != nil {
			a.logger.WithError(err).Error("stats flush failed, re-merging snapshot")
		}
		a.remerge(snapshot)
		return
	}
}

func (a *Aggregator) snapshotAndReset() map[evmrpcmodel.StatsKey]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	snapshot := a.counts
	a.counts = make(map[evmrpcmodel.StatsKey]int64)
	return snapshot
}

func (a *Aggregator) remerge(snapshot map[evmrpcmodel.StatsKey]int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, count := range snapshot {
		a.counts[key] += count
	}
}

// Sum returns the total of all counts currently held in memory — used by
// tests to verify conservation across a failed flush.
func (a *Aggregator) Sum() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total int64
	for _, c := range a.counts {
		total += c
	}
	return total
}

// Wait blocks until all in-flight background flushes complete. Intended
// for graceful shutdown and tests; request handling never waits on this.
func (a *Aggregator) Wait() {
	a.wg.Wait()
}

// HTTPSink posts NDJSON rows to an analytical column store (e.g.
// ClickHouse) via an INSERT ... FORMAT JSONCompactEachRow query parameter.
type HTTPSink struct {
	URL        string
	TableName  string
	HTTPCli    *http.Client
	ColumnList []string // fixed order of StatsKey fields used in the INSERT statement
}

// NewHTTPSink builds an HTTPSink with the StatsKey's canonical column order.
func NewHTTPSink(url, tableName string, httpCli *http.Client) *HTTPSink {
	return &HTTPSink{
		URL:       url,
		TableName: tableName,
		HTTPCli:   httpCli,
		ColumnList: []string{
			"env", "chain", "requester", "x_requester", "method",
			"final", "success", "node", "try_n", "ts", "count",
		},
	}
}

// Send implements Sink by POSTing rows as JSONCompactEachRow NDJSON.
func (s *HTTPSink) Send(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, r := range rows {
		line := []interface{}{
			r.Env, r.Chain, r.Requester, r.XRequester, r.Method,
			r.Final, r.Success, r.Node, r.TryN,
			r.TS.Format("2006-01-02T15:04:05"),
			r.Count,
		}
		encoded, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("stats: encoding row: %w", err)
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}

	insertQuery := fmt.Sprintf("INSERT INTO %s (%s) FORMAT JSONCompactEachRow", s.TableName, columnsJoined(s.ColumnList))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL+"?query="+url.QueryEscape(insertQuery), &buf)
	if err != nil {
		return fmt.Errorf("stats: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := s.HTTPCli.Do(req)
	if err != nil {
		return fmt.Errorf("stats: sending rows: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("stats: sink returned status %d", resp.StatusCode)
	}
	return nil
}

func columnsJoined(cols []string) string {
	var buf bytes.Buffer
	for i, c := range cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(c)
	}
	return buf.String()
}
