// Package telemetry provides minimal, low-overhead request tracing.
// By default only slow requests are logged; full per-request span
// traces are recorded for a small sample (or on demand via the
// X-Debug-Telemetry header) and emitted through the global logger.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"sessiongate/pkg/logger"
)

type ctxKeyType struct{}

var (
	requestCtr    uint64
	spanCtr       uint64
	sampleRate    = 0.001 // 0.1% of requests get a full trace
	slowThreshold = 200 * time.Millisecond
)

// Span is a single operation relative to request start (milliseconds).
type Span struct {
	ID       string                 `json:"id"`
	ParentID string                 `json:"parent_id,omitempty"`
	Op       string                 `json:"op"`
	StartMs  int64                  `json:"start_ms"`
	Duration int64                  `json:"duration_ms"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// Telemetry holds the per-request trace and metadata.
type Telemetry struct {
	RequestID string `json:"request_id"`
	Op        string `json:"op"`
	StartMs   int64  `json:"start_ms"`
	Duration  int64  `json:"duration_ms"`
	Status    int    `json:"status"`
	Spans     []Span `json:"spans,omitempty"`

	startTime time.Time
	mu        sync.Mutex
	spanStack []string
}

func newTrace(reqID, op string, start time.Time) *Telemetry {
	tel := &Telemetry{
		RequestID: reqID,
		Op:        op,
		startTime: start,
		StartMs:   start.UnixNano() / 1e6,
	}
	rootID := genSpanID()
	tel.Spans = append(tel.Spans, Span{ID: rootID, Op: op})
	tel.spanStack = append(tel.spanStack, rootID)
	return tel
}

// Middleware wraps next and records request timing and sampled spans
// on the net/http runtime.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := genRequestID()
		sampled := shouldSample(r.Header.Get("X-Debug-Telemetry"))

		var tel *Telemetry
		if sampled {
			op := r.Header.Get("X-Operation")
			if op == "" {
				op = r.URL.Path
			}
			tel = newTrace(reqID, op, start)
			r = r.WithContext(context.WithValue(r.Context(), ctxKeyType{}, tel))
		}

		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)

		op := r.Header.Get("X-Operation")
		if op == "" {
			op = r.URL.Path
		}
		finish(tel, reqID, op, time.Since(start), srw.status)
	})
}

// MiddlewareFast is Middleware for the fasthttp runtime. The trace
// rides in the request's user values, which RequestCtx exposes through
// its context.Context implementation, so StartSpan works unchanged in
// handlers on either runtime.
func MiddlewareFast(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		reqID := genRequestID()
		sampled := shouldSample(string(ctx.Request.Header.Peek("X-Debug-Telemetry")))

		var tel *Telemetry
		op := string(ctx.Request.Header.Peek("X-Operation"))
		if op == "" {
			op = string(ctx.Path())
		}
		if sampled {
			tel = newTrace(reqID, op, start)
			ctx.SetUserValue(ctxKeyType{}, tel)
		}

		next(ctx)

		finish(tel, reqID, op, time.Since(start), ctx.Response.StatusCode())
	}
}

func finish(tel *Telemetry, reqID, op string, dur time.Duration, status int) {
	if tel != nil {
		tel.mu.Lock()
		tel.Status = status
		tel.Duration = dur.Milliseconds()
		block := renderTrace(tel)
		tel.mu.Unlock()
		logger.Debug("request_trace", "trace", block)
		return
	}
	if dur > slowThreshold {
		logger.Warn("slow_request",
			"request_id", reqID,
			"op", op,
			"duration_ms", dur.Milliseconds(),
			"status", status,
		)
	}
}

// StartSpan opens a span under the request's trace and returns its end
// function. Requests without an active trace get a no-op end function,
// keeping un-sampled requests nearly free.
func StartSpan(ctx context.Context, name string) func() {
	v := ctx.Value(ctxKeyType{})
	if v == nil {
		return func() {}
	}
	tel, ok := v.(*Telemetry)
	if !ok {
		return func() {}
	}
	startRel := time.Since(tel.startTime).Milliseconds()
	id := genSpanID()
	parent := ""

	tel.mu.Lock()
	if len(tel.spanStack) > 0 {
		parent = tel.spanStack[len(tel.spanStack)-1]
	}
	tel.Spans = append(tel.Spans, Span{ID: id, ParentID: parent, Op: name, StartMs: startRel})
	tel.spanStack = append(tel.spanStack, id)
	idx := len(tel.Spans) - 1
	tel.mu.Unlock()

	return func() {
		endRel := time.Since(tel.startTime).Milliseconds()
		tel.mu.Lock()
		if idx < len(tel.Spans) {
			tel.Spans[idx].Duration = endRel - tel.Spans[idx].StartMs
		}
		if len(tel.spanStack) > 0 {
			tel.spanStack = tel.spanStack[:len(tel.spanStack)-1]
		}
		tel.mu.Unlock()
	}
}

// SetSpanData attaches a key/value to the currently active span
// (no-op when the request carries no trace).
func SetSpanData(ctx context.Context, key string, value interface{}) {
	v := ctx.Value(ctxKeyType{})
	if v == nil {
		return
	}
	tel, ok := v.(*Telemetry)
	if !ok {
		return
	}
	tel.mu.Lock()
	defer tel.mu.Unlock()
	if len(tel.spanStack) == 0 {
		return
	}
	top := tel.spanStack[len(tel.spanStack)-1]
	for i := len(tel.Spans) - 1; i >= 0; i-- {
		if tel.Spans[i].ID == top {
			if tel.Spans[i].Data == nil {
				tel.Spans[i].Data = make(map[string]interface{})
			}
			tel.Spans[i].Data[key] = value
			return
		}
	}
}

// SetRequestOp overrides the top-level operation name for the current
// request's trace, updating the root span too.
func SetRequestOp(ctx context.Context, op string) {
	v := ctx.Value(ctxKeyType{})
	if v == nil {
		return
	}
	tel, ok := v.(*Telemetry)
	if !ok {
		return
	}
	tel.mu.Lock()
	defer tel.mu.Unlock()
	tel.Op = op
	if len(tel.Spans) > 0 {
		tel.Spans[0].Op = op
	}
}

// renderTrace renders a sampled trace as an indented text block.
// Session resolution dominates volume, so traces whose root is the
// resolve op collapse to a single summary line.
func renderTrace(t *Telemetry) string {
	for _, sp := range t.Spans {
		if strings.Contains(sp.Op, "session.resolve") {
			return fmt.Sprintf("REQ %s op=session.resolve duration_ms=%d status=%d", t.RequestID, t.Duration, t.Status)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "REQUEST %s op=%s start_ms=%d duration_ms=%d status=%d\n", t.RequestID, t.Op, t.StartMs, t.Duration, t.Status)

	children := make(map[string][]Span)
	for _, sp := range t.Spans {
		children[sp.ParentID] = append(children[sp.ParentID], sp)
	}

	var printSpan func(id string, depth int)
	printSpan = func(id string, depth int) {
		list := children[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].StartMs < list[j].StartMs })
		for _, sp := range list {
			indent := strings.Repeat("  ", depth)
			dataStr := ""
			if len(sp.Data) > 0 {
				var parts []string
				for k, v := range sp.Data {
					parts = append(parts, fmt.Sprintf("%s=%v", k, v))
				}
				dataStr = " data=" + strings.Join(parts, ",")
			}
			fmt.Fprintf(&b, "%s- %s id=%s start_ms=%d duration_ms=%d%s\n", indent, sp.Op, sp.ID, sp.StartMs, sp.Duration, dataStr)
			printSpan(sp.ID, depth+1)
		}
	}
	printSpan("", 1)
	return b.String()
}

// shouldSample decides whether a request gets a full trace. The
// X-Debug-Telemetry header forces one.
func shouldSample(debugHeader string) bool {
	if debugHeader == "1" {
		return true
	}
	if sampleRate <= 0 {
		return false
	}
	denom := int64(1 / sampleRate)
	if denom <= 1 {
		return true
	}
	n := int64(atomic.AddUint64(&requestCtr, 1))
	return (n % denom) == 0
}

func genRequestID() string {
	n := atomic.AddUint64(&requestCtr, 1)
	return fmt.Sprintf("r-%s-%d", time.Now().Format("20060102T150405"), n)
}

func genSpanID() string {
	n := atomic.AddUint64(&spanCtr, 1)
	return fmt.Sprintf("s-%d", n)
}

// SetSampleRate sets the approximate sampling rate for full traces
// (0..1). Zero disables full tracing; slow requests are still logged.
func SetSampleRate(r float64) {
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	sampleRate = r
}

// SetSlowThreshold sets the duration above which non-sampled requests
// get a lightweight log line.
func SetSlowThreshold(d time.Duration) {
	if d <= 0 {
		d = 0
	}
	slowThreshold = d
}

// statusRecorder captures the response status code while forwarding
// flushes, so streamed responses behind it still reach the wire
// incrementally.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
