package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type latencyKey struct {
	handler string
	method  string
}

type transferKey struct {
	chain  string
	asset  string
	status string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu            sync.Mutex
	requests      map[requestKey]uint64
	latency       map[latencyKey]*histogram
	transfers     map[transferKey]uint64
	reconcileRuns map[string]uint64
}

var treasuryCollector = &collector{
	requests:      make(map[requestKey]uint64),
	latency:       make(map[latencyKey]*histogram),
	transfers:     make(map[transferKey]uint64),
	reconcileRuns: make(map[string]uint64),
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	treasuryCollector.observeHTTP(handler, method, status, duration)
}

// ObserveTransfer records the outcome of an on-chain transfer.
func ObserveTransfer(chain, asset, status string) {
	treasuryCollector.mu.Lock()
	defer treasuryCollector.mu.Unlock()
	treasuryCollector.transfers[transferKey{chain: chain, asset: asset, status: status}]++
}

// ObserveReconcileRun records the outcome of one reconciliation cycle.
func ObserveReconcileRun(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	treasuryCollector.mu.Lock()
	defer treasuryCollector.mu.Unlock()
	treasuryCollector.reconcileRuns[status]++
}

func (c *collector) observeHTTP(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqKey := requestKey{handler: handler, method: method, code: strconv.Itoa(status)}
	c.requests[reqKey]++

	latKey := latencyKey{handler: handler, method: method}
	hist := c.latency[latKey]
	if hist == nil {
		hist = newHistogram()
		c.latency[latKey] = hist
	}
	hist.observe(duration.Seconds())
}

func newHistogram() *histogram {
	buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, treasuryCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type requestMetric struct {
		requestKey
		value uint64
	}
	type latencyMetric struct {
		latencyKey
		buckets []float64
		counts  []uint64
		sum     float64
		count   uint64
	}
	type transferMetric struct {
		transferKey
		value uint64
	}

	reqs := make([]requestMetric, 0, len(c.requests))
	for key, value := range c.requests {
		reqs = append(reqs, requestMetric{requestKey: key, value: value})
	}
	lats := make([]latencyMetric, 0, len(c.latency))
	for key, hist := range c.latency {
		lats = append(lats, latencyMetric{
			latencyKey: key,
			buckets:    append([]float64(nil), hist.buckets...),
			counts:     append([]uint64(nil), hist.counts...),
			sum:        hist.sum,
			count:      hist.count,
		})
	}
	xfers := make([]transferMetric, 0, len(c.transfers))
	for key, value := range c.transfers {
		xfers = append(xfers, transferMetric{transferKey: key, value: value})
	}

	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].handler == reqs[j].handler {
			if reqs[i].method == reqs[j].method {
				return reqs[i].code < reqs[j].code
			}
			return reqs[i].method < reqs[j].method
		}
		return reqs[i].handler < reqs[j].handler
	})
	sort.Slice(lats, func(i, j int) bool {
		if lats[i].handler == lats[j].handler {
			return lats[i].method < lats[j].method
		}
		return lats[i].handler < lats[j].handler
	})
	sort.Slice(xfers, func(i, j int) bool {
		if xfers[i].chain == xfers[j].chain {
			if xfers[i].asset == xfers[j].asset {
				return xfers[i].status < xfers[j].status
			}
			return xfers[i].asset < xfers[j].asset
		}
		return xfers[i].chain < xfers[j].chain
	})

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP treasury_http_requests_total Total number of HTTP requests processed.\n")
	builder.WriteString("# TYPE treasury_http_requests_total counter\n")
	for _, metric := range reqs {
		builder.WriteString(fmt.Sprintf("treasury_http_requests_total{handler=\"%s\",method=\"%s\",code=\"%s\"} %d\n",
			escape(metric.handler), escape(metric.method), escape(metric.code), metric.value))
	}

	builder.WriteString("# HELP treasury_http_request_duration_seconds HTTP request duration in seconds.\n")
	builder.WriteString("# TYPE treasury_http_request_duration_seconds histogram\n")
	for _, metric := range lats {
		for idx, bound := range metric.buckets {
			builder.WriteString(fmt.Sprintf("treasury_http_request_duration_seconds_bucket{handler=\"%s\",method=\"%s\",le=\"%s\"} %d\n",
				escape(metric.handler), escape(metric.method), formatFloat(bound), metric.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("treasury_http_request_duration_seconds_bucket{handler=\"%s\",method=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.handler), escape(metric.method), metric.count))
		builder.WriteString(fmt.Sprintf("treasury_http_request_duration_seconds_sum{handler=\"%s\",method=\"%s\"} %s\n",
			escape(metric.handler), escape(metric.method), formatFloat(metric.sum)))
		builder.WriteString(fmt.Sprintf("treasury_http_request_duration_seconds_count{handler=\"%s\",method=\"%s\"} %d\n",
			escape(metric.handler), escape(metric.method), metric.count))
	}

	builder.WriteString("# HELP treasury_transfers_total Total number of on-chain transfers submitted.\n")
	builder.WriteString("# TYPE treasury_transfers_total counter\n")
	for _, metric := range xfers {
		builder.WriteString(fmt.Sprintf("treasury_transfers_total{chain=\"%s\",asset=\"%s\",status=\"%s\"} %d\n",
			escape(metric.chain), escape(metric.asset), escape(metric.status), metric.value))
	}

	builder.WriteString("# HELP treasury_reconcile_runs_total Total number of background reconciliation cycles.\n")
	builder.WriteString("# TYPE treasury_reconcile_runs_total counter\n")
	statuses := make([]string, 0, len(c.reconcileRuns))
	for status := range c.reconcileRuns {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		builder.WriteString(fmt.Sprintf("treasury_reconcile_runs_total{status=\"%s\"} %d\n",
			escape(status), c.reconcileRuns[status]))
	}

	return builder.String()
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
