package httpx

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/valyala/fasthttp"
)

func TestParseRuntime(t *testing.T) {
	cases := []struct {
		in   string
		want Runtime
		err  bool
	}{
		{"", RuntimeNetHTTP, false},
		{"nethttp", RuntimeNetHTTP, false},
		{"net/http", RuntimeNetHTTP, false},
		{"stdlib", RuntimeNetHTTP, false},
		{"NetHTTP", RuntimeNetHTTP, false},
		{" fasthttp ", RuntimeFastHTTP, false},
		{"FASTHTTP", RuntimeFastHTTP, false},
		{"h3", RuntimeUnknown, true},
		{"express", RuntimeUnknown, true},
	}
	for _, c := range cases {
		got, err := ParseRuntime(c.in)
		if c.err {
			if err == nil {
				t.Fatalf("ParseRuntime(%q): expected error, got %v", c.in, got)
			}
			if !errors.Is(err, ErrUnsupportedRuntime) {
				t.Fatalf("ParseRuntime(%q): error %v does not wrap ErrUnsupportedRuntime", c.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRuntime(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseRuntime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestHostAttach(t *testing.T) {
	var h Host
	if h.Attached() {
		t.Fatalf("fresh host reports attached")
	}
	if _, err := h.Adapter(); !errors.Is(err, ErrRuntimeNotInitialized) {
		t.Fatalf("Adapter before Attach: got %v, want ErrRuntimeNotInitialized", err)
	}

	ad, err := h.Attach(RuntimeFastHTTP)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if ad.Runtime() != RuntimeFastHTTP {
		t.Fatalf("attached adapter runtime = %v", ad.Runtime())
	}
	got, err := h.Adapter()
	if err != nil {
		t.Fatalf("Adapter after Attach: %v", err)
	}
	if got.Runtime() != RuntimeFastHTTP {
		t.Fatalf("Adapter returned %v runtime", got.Runtime())
	}

	// attaching again replaces the selection
	if _, err := h.Attach(RuntimeNetHTTP); err != nil {
		t.Fatalf("re-Attach: %v", err)
	}
	got, _ = h.Adapter()
	if got.Runtime() != RuntimeNetHTTP {
		t.Fatalf("after re-attach runtime = %v", got.Runtime())
	}

	if _, err := h.Attach(Runtime(99)); err == nil {
		t.Fatalf("Attach(unknown) succeeded")
	}
}

func TestNetHTTPRequestAccessors(t *testing.T) {
	ad := MustAdapter(RuntimeNetHTTP)

	r := httptest.NewRequest(http.MethodPost, "http://api.example.test/a/b?x=1&y=2", strings.NewReader("payload"))
	r.Header.Add("Cookie", "a=1")
	r.Header.Add("Cookie", "b=2")
	r.Header.Set("X-Custom", "v")
	ex := NewNetHTTPExchange(httptest.NewRecorder(), r)

	if got := ad.Protocol(ex); got != "http" {
		t.Fatalf("Protocol = %q", got)
	}
	if got := ad.Host(ex); got != "api.example.test" {
		t.Fatalf("Host = %q", got)
	}
	if got := ad.RequestURI(ex); got != "/a/b?x=1&y=2" {
		t.Fatalf("RequestURI = %q", got)
	}
	if got := ad.Method(ex); got != "POST" {
		t.Fatalf("Method = %q", got)
	}
	if got := ad.Headers(ex).Get("X-Custom"); got != "v" {
		t.Fatalf("Headers X-Custom = %q", got)
	}
	cookie, ok := ad.Cookie(ex)
	if !ok || cookie != "a=1; b=2" {
		t.Fatalf("Cookie = %q ok=%v, want joined pair", cookie, ok)
	}
	body, ok := ad.Body(ex).(io.Reader)
	if !ok {
		t.Fatalf("Body = %T, want io.Reader", ad.Body(ex))
	}
	b, _ := io.ReadAll(body)
	if string(b) != "payload" {
		t.Fatalf("body = %q", b)
	}

	// https request reports the https protocol
	rs := httptest.NewRequest(http.MethodGet, "https://api.example.test/", nil)
	exs := NewNetHTTPExchange(httptest.NewRecorder(), rs)
	if got := ad.Protocol(exs); got != "https" {
		t.Fatalf("Protocol over TLS = %q", got)
	}
	if ad.Body(exs) != nil {
		t.Fatalf("GET without body should report nil body")
	}

	// decoded body wins over the raw stream
	ex.SetDecodedBody(map[string]string{"k": "v"})
	if m, ok := ad.Body(ex).(map[string]string); !ok || m["k"] != "v" {
		t.Fatalf("decoded body not returned: %#v", ad.Body(ex))
	}
}

func TestFastHTTPRequestAccessors(t *testing.T) {
	ad := MustAdapter(RuntimeFastHTTP)

	var req fasthttp.Request
	req.Header.SetMethod("post")
	req.SetRequestURI("/a/b?x=1&y=2")
	req.Header.SetHost("api.example.test")
	req.Header.Set("Cookie", "sid=abc")
	req.Header.Set("X-Custom", "v")
	req.SetBodyString("payload")

	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	ex := NewFastHTTPExchange(&ctx)

	if got := ad.Protocol(ex); got != "http" {
		t.Fatalf("Protocol = %q", got)
	}
	if got := ad.Host(ex); got != "api.example.test" {
		t.Fatalf("Host = %q", got)
	}
	if got := ad.RequestURI(ex); got != "/a/b?x=1&y=2" {
		t.Fatalf("RequestURI = %q", got)
	}
	if got := ad.Method(ex); got != "POST" {
		t.Fatalf("Method = %q", got)
	}
	if got := ad.Headers(ex).Get("X-Custom"); got != "v" {
		t.Fatalf("Headers X-Custom = %q", got)
	}
	cookie, ok := ad.Cookie(ex)
	if !ok || cookie != "sid=abc" {
		t.Fatalf("Cookie = %q ok=%v", cookie, ok)
	}
	body, ok := ad.Body(ex).([]byte)
	if !ok || string(body) != "payload" {
		t.Fatalf("Body = %#v", ad.Body(ex))
	}
}

func TestNetHTTPResponseOrdering(t *testing.T) {
	ad := MustAdapter(RuntimeNetHTTP)
	rec := httptest.NewRecorder()
	ex := NewNetHTTPExchange(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if err := ad.SetHeader(ex, "X-One", []string{"a", "b"}); err != nil {
		t.Fatalf("SetHeader: %v", err)
	}
	if err := ad.SetStatus(ex, http.StatusCreated); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if !ex.HeadersSent() || ex.Status() != http.StatusCreated {
		t.Fatalf("exchange state after SetStatus: sent=%v status=%d", ex.HeadersSent(), ex.Status())
	}

	// mutations after commit fail with ErrHeadersSent
	if err := ad.SetHeader(ex, "X-Late", []string{"x"}); !errors.Is(err, ErrHeadersSent) {
		t.Fatalf("SetHeader after send: got %v", err)
	}
	if err := ad.SetStatus(ex, http.StatusTeapot); !errors.Is(err, ErrHeadersSent) {
		t.Fatalf("SetStatus after send: got %v", err)
	}

	if err := ad.Send(ex, []byte("done")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("recorded status = %d", rec.Code)
	}
	if got := rec.Header().Values("X-One"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("X-One values = %v", got)
	}
	if rec.Header().Get("X-Late") != "" {
		t.Fatalf("late header reached the response")
	}
	if rec.Body.String() != "done" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestNetHTTPSendImplicitOK(t *testing.T) {
	ad := MustAdapter(RuntimeNetHTTP)
	rec := httptest.NewRecorder()
	ex := NewNetHTTPExchange(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if err := ad.Send(ex, []byte("ok")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rec.Code != http.StatusOK || ex.Status() != http.StatusOK {
		t.Fatalf("implicit status = %d / %d", rec.Code, ex.Status())
	}
}

func TestFastHTTPResponseOrdering(t *testing.T) {
	ad := MustAdapter(RuntimeFastHTTP)

	var req fasthttp.Request
	req.Header.SetMethod("GET")
	req.SetRequestURI("/")
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	ex := NewFastHTTPExchange(&ctx)

	if err := ad.SetHeader(ex, "X-One", []string{"a", "b"}); err != nil {
		t.Fatalf("SetHeader: %v", err)
	}
	if err := ad.SetStatus(ex, http.StatusAccepted); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := ad.SetHeader(ex, "X-Late", []string{"x"}); !errors.Is(err, ErrHeadersSent) {
		t.Fatalf("SetHeader after send: got %v", err)
	}
	if err := ad.Send(ex, []byte("done")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := ctx.Response.StatusCode(); got != http.StatusAccepted {
		t.Fatalf("status = %d", got)
	}
	var ones []string
	ctx.Response.Header.VisitAll(func(k, v []byte) {
		if string(k) == "X-One" {
			ones = append(ones, string(v))
		}
	})
	if len(ones) != 2 {
		t.Fatalf("X-One values = %v", ones)
	}
	if len(ctx.Response.Header.Peek("X-Late")) != 0 {
		t.Fatalf("late header reached the response")
	}
	if string(ctx.Response.Body()) != "done" {
		t.Fatalf("body = %q", ctx.Response.Body())
	}
}

// closeTracker wraps a reader and records whether Close ran.
type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestNetHTTPStream(t *testing.T) {
	ad := MustAdapter(RuntimeNetHTTP)
	rec := httptest.NewRecorder()
	ex := NewNetHTTPExchange(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	payload := bytes.Repeat([]byte("streaming-bytes-"), 8192) // > one chunk
	src := &closeTracker{Reader: bytes.NewReader(payload)}
	if err := ad.Stream(ex, src); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if !src.closed {
		t.Fatalf("Stream did not close the source reader")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Fatalf("streamed body mismatch: got %d bytes, want %d", rec.Body.Len(), len(payload))
	}
	if !rec.Flushed {
		t.Fatalf("Stream never flushed")
	}
}

func TestFastHTTPStream(t *testing.T) {
	ad := MustAdapter(RuntimeFastHTTP)

	var req fasthttp.Request
	req.Header.SetMethod("GET")
	req.SetRequestURI("/")
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	ex := NewFastHTTPExchange(&ctx)

	payload := bytes.Repeat([]byte("x"), 96*1024)
	if err := ad.Stream(ex, bytes.NewReader(payload)); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	// fasthttp drains the body stream when the response is serialized
	if !bytes.Equal(ctx.Response.Body(), payload) {
		t.Fatalf("streamed body mismatch: got %d bytes, want %d", len(ctx.Response.Body()), len(payload))
	}
}

func TestAdapterMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for runtime mismatch")
		}
	}()
	ex := NewNetHTTPExchange(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	MustAdapter(RuntimeFastHTTP).Method(ex)
}

func TestAdapterFor(t *testing.T) {
	if _, err := AdapterFor(RuntimeUnknown); err == nil {
		t.Fatalf("AdapterFor(unknown) succeeded")
	}
	for _, rt := range []Runtime{RuntimeNetHTTP, RuntimeFastHTTP} {
		ad, err := AdapterFor(rt)
		if err != nil {
			t.Fatalf("AdapterFor(%v): %v", rt, err)
		}
		if ad.Runtime() != rt {
			t.Fatalf("AdapterFor(%v) returned %v", rt, ad.Runtime())
		}
	}
}
