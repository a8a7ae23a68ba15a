// Package httpx presents the two supported native HTTP runtimes —
// net/http and fasthttp — behind a single capability-set Adapter so
// the rest of the gateway never branches on which runtime is active.
//
// Adapters are stateless and shared; everything request-scoped lives
// on an Exchange, which wraps the native objects for one in-flight
// request together with the response-ordering state.
package httpx

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

var (
	// ErrUnsupportedRuntime is returned when a runtime outside the
	// supported set is requested by name or attached to a Host.
	ErrUnsupportedRuntime = errors.New("unsupported http runtime (supported: nethttp, fasthttp)")

	// ErrRuntimeNotInitialized is returned by Host.Adapter before any
	// runtime has been attached.
	ErrRuntimeNotInitialized = errors.New("http runtime not initialized: call Attach before requesting the adapter")

	// ErrHeadersSent is returned by response mutators once the status
	// line and headers have been committed to the wire.
	ErrHeadersSent = errors.New("response headers already sent")
)

// DefaultHost stands in when a native request carries no usable host.
const DefaultHost = "localhost"

// Runtime identifies one supported native HTTP runtime. Selection is
// always by explicit tag; adapters never sniff the shape of the native
// objects to decide what they are talking to.
type Runtime int

const (
	RuntimeUnknown Runtime = iota
	RuntimeNetHTTP
	RuntimeFastHTTP
)

func (r Runtime) String() string {
	switch r {
	case RuntimeNetHTTP:
		return "nethttp"
	case RuntimeFastHTTP:
		return "fasthttp"
	default:
		return "unknown"
	}
}

// ParseRuntime maps a configured runtime name onto the closed Runtime
// set. The empty string selects net/http, matching the zero config.
func ParseRuntime(name string) (Runtime, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "nethttp", "net/http", "stdlib":
		return RuntimeNetHTTP, nil
	case "fasthttp":
		return RuntimeFastHTTP, nil
	default:
		return RuntimeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedRuntime, name)
	}
}

// Adapter reads primitive request facts from, and applies response
// mutations to, one native runtime. Implementations hold no state of
// their own; per-request state rides on the Exchange.
//
// Request accessors never fail: handing an adapter an Exchange bound
// to a different runtime is a programming error and panics.
type Adapter interface {
	Runtime() Runtime

	// Protocol reports "http" or "https" for the native connection.
	Protocol(ex *Exchange) string
	// Host reports the request host, falling back to DefaultHost when
	// the native request carries none.
	Host(ex *Exchange) string
	// RequestURI reports the raw path plus query string as sent by the
	// client, always beginning with "/".
	RequestURI(ex *Exchange) string
	// Method reports the HTTP method in upper case.
	Method(ex *Exchange) string
	// Headers exposes the full native header collection. Mutating the
	// returned map does not write anything back to the wire.
	Headers(ex *Exchange) http.Header
	// Cookie returns the raw Cookie header value and whether one was
	// present at all.
	Cookie(ex *Exchange) (string, bool)
	// Body returns the request body in its most native form: a decoded
	// object if upstream middleware installed one on the Exchange, an
	// io.Reader or []byte otherwise, or nil when there is no body.
	Body(ex *Exchange) interface{}

	// SetHeader replaces the named response header with the given
	// values. An empty values slice removes the header.
	SetHeader(ex *Exchange, name string, values []string) error
	// SetStatus commits the response status code. It may be called at
	// most once, and not after the body has started.
	SetStatus(ex *Exchange, status int) error
	// Send writes a complete buffered body, committing status 200
	// first if none was set.
	Send(ex *Exchange, body []byte) error
	// Stream relays r to the client in chunks, flushing as it goes so
	// bytes reach the wire before r is exhausted. Read and write
	// failures propagate to the caller. Stream takes ownership of r:
	// if r implements io.Closer it is closed once the relay is done,
	// which may be after the current handler returns.
	Stream(ex *Exchange, r io.Reader) error
}

// Exchange carries the native handles and response state for one
// in-flight request. The zero value is unusable; construct with
// NewNetHTTPExchange or NewFastHTTPExchange.
type Exchange struct {
	runtime Runtime
	native  interface{}

	decoded    interface{}
	hasDecoded bool

	status      int
	headersSent bool
}

// Runtime reports which native runtime this exchange is bound to.
func (ex *Exchange) Runtime() Runtime { return ex.runtime }

// SetDecodedBody installs a body object decoded by upstream native
// middleware (a parsed form or JSON document). Adapters hand it back
// verbatim from Body instead of the raw byte stream.
func (ex *Exchange) SetDecodedBody(v interface{}) {
	ex.decoded = v
	ex.hasDecoded = true
}

// HeadersSent reports whether the status line has been committed, in
// which case error responses can no longer be rendered.
func (ex *Exchange) HeadersSent() bool { return ex.headersSent }

// Status returns the committed status code, or 0 before commit.
func (ex *Exchange) Status() int { return ex.status }

func (ex *Exchange) mismatch(want Runtime) string {
	return fmt.Sprintf("httpx: exchange bound to %s runtime used with the %s adapter", ex.runtime, want)
}

var adapters = map[Runtime]Adapter{
	RuntimeNetHTTP:  netHTTPAdapter{},
	RuntimeFastHTTP: fastHTTPAdapter{},
}

// AdapterFor returns the stateless adapter for rt.
func AdapterFor(rt Runtime) (Adapter, error) {
	ad, ok := adapters[rt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRuntime, rt)
	}
	return ad, nil
}

// MustAdapter is AdapterFor for call sites where the runtime is a
// compile-time constant and failure would be a programming error.
func MustAdapter(rt Runtime) Adapter {
	ad, err := AdapterFor(rt)
	if err != nil {
		panic(err)
	}
	return ad
}

// Host owns the process-wide runtime selection. Attach is called once
// during startup from configuration; Adapter hands out the cached
// stateless adapter afterwards and fails closed before that.
type Host struct {
	mu      sync.RWMutex
	adapter Adapter
}

// Attach selects rt as the active runtime and returns its adapter.
// Attaching again replaces the selection; no per-runtime teardown is
// needed because adapters are stateless.
func (h *Host) Attach(rt Runtime) (Adapter, error) {
	ad, err := AdapterFor(rt)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.adapter = ad
	h.mu.Unlock()
	return ad, nil
}

// Adapter returns the adapter for the attached runtime, or
// ErrRuntimeNotInitialized when Attach has not run yet.
func (h *Host) Adapter() (Adapter, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.adapter == nil {
		return nil, ErrRuntimeNotInitialized
	}
	return h.adapter, nil
}

// Attached reports whether a runtime has been selected.
func (h *Host) Attached() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.adapter != nil
}
