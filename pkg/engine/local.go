package engine

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"sessiongate/pkg/config"
)

// Local invokes an in-process engine handler directly, with no network
// hop. The embedded development engine mounts this way, and tests use
// it to stand in fake engines.
type Local struct {
	h http.Handler
}

// NewLocal wraps h as an Engine.
func NewLocal(h http.Handler) *Local {
	return &Local{h: h}
}

// Handle runs the handler against req and returns the buffered result
// as a canonical response. Local engines are configured at
// construction, so the per-call cfg is not consulted.
func (l *Local) Handle(req *http.Request, cfg *config.AuthConfig) (*http.Response, error) {
	if l.h == nil {
		return nil, fmt.Errorf("engine: nil local handler")
	}
	rec := &responseBuffer{header: make(http.Header)}
	l.h.ServeHTTP(rec, req)
	return rec.response(req), nil
}

// responseBuffer is a minimal ResponseWriter that captures the
// handler's output for conversion into an *http.Response.
type responseBuffer struct {
	header      http.Header
	buf         bytes.Buffer
	status      int
	wroteHeader bool
}

func (b *responseBuffer) Header() http.Header { return b.header }

func (b *responseBuffer) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.status = code
	b.wroteHeader = true
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.buf.Write(p)
}

func (b *responseBuffer) response(req *http.Request) *http.Response {
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	body := b.buf.Bytes()
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        b.header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
