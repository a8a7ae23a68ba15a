package httpx

import (
	"io"
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
)

// NewFastHTTPExchange binds one fasthttp request context into an
// Exchange for the fasthttp adapter.
func NewFastHTTPExchange(ctx *fasthttp.RequestCtx) *Exchange {
	return &Exchange{runtime: RuntimeFastHTTP, native: ctx}
}

type fastHTTPAdapter struct{}

func (fastHTTPAdapter) Runtime() Runtime { return RuntimeFastHTTP }

func fasthttpOf(ex *Exchange) *fasthttp.RequestCtx {
	ctx, ok := ex.native.(*fasthttp.RequestCtx)
	if !ok || ex.runtime != RuntimeFastHTTP {
		panic(ex.mismatch(RuntimeFastHTTP))
	}
	return ctx
}

func (fastHTTPAdapter) Protocol(ex *Exchange) string {
	if fasthttpOf(ex).IsTLS() {
		return "https"
	}
	return "http"
}

func (fastHTTPAdapter) Host(ex *Exchange) string {
	if host := fasthttpOf(ex).Host(); len(host) > 0 {
		return string(host)
	}
	return DefaultHost
}

func (fastHTTPAdapter) RequestURI(ex *Exchange) string {
	uri := string(fasthttpOf(ex).RequestURI())
	if uri == "" {
		return "/"
	}
	return uri
}

func (fastHTTPAdapter) Method(ex *Exchange) string {
	return strings.ToUpper(string(fasthttpOf(ex).Method()))
}

func (fastHTTPAdapter) Headers(ex *Exchange) http.Header {
	hdr := make(http.Header)
	fasthttpOf(ex).Request.Header.VisitAll(func(k, v []byte) {
		hdr.Add(string(k), string(v))
	})
	return hdr
}

func (fastHTTPAdapter) Cookie(ex *Exchange) (string, bool) {
	v := fasthttpOf(ex).Request.Header.Peek(fasthttp.HeaderCookie)
	if len(v) == 0 {
		return "", false
	}
	return string(v), true
}

func (fastHTTPAdapter) Body(ex *Exchange) interface{} {
	if ex.hasDecoded {
		return ex.decoded
	}
	body := fasthttpOf(ex).PostBody()
	if len(body) == 0 {
		return nil
	}
	return body
}

func (fastHTTPAdapter) SetHeader(ex *Exchange, name string, values []string) error {
	if ex.headersSent {
		return ErrHeadersSent
	}
	h := &fasthttpOf(ex).Response.Header
	h.Del(name)
	for _, v := range values {
		h.Add(name, v)
	}
	return nil
}

func (fastHTTPAdapter) SetStatus(ex *Exchange, status int) error {
	if ex.headersSent {
		return ErrHeadersSent
	}
	ex.status = status
	ex.headersSent = true
	fasthttpOf(ex).SetStatusCode(status)
	return nil
}

func (fastHTTPAdapter) Send(ex *Exchange, body []byte) error {
	ctx := fasthttpOf(ex)
	if !ex.headersSent {
		ex.status = http.StatusOK
		ex.headersSent = true
	}
	_, err := ctx.Write(body)
	return err
}

// Stream hands the reader to fasthttp, which owns the write loop,
// chunks the body as it drains, and closes r afterwards when it
// implements io.Closer. A read error mid-stream aborts the connection
// rather than terminating the response cleanly, so clients never
// mistake a truncated body for a complete one.
func (fastHTTPAdapter) Stream(ex *Exchange, r io.Reader) error {
	ctx := fasthttpOf(ex)
	if !ex.headersSent {
		ex.status = http.StatusOK
		ex.headersSent = true
	}
	ctx.Response.SetBodyStream(r, -1)
	return nil
}
