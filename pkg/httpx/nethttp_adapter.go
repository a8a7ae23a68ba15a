package httpx

import (
	"io"
	"net/http"
	"strings"
)

// streamChunkSize is the relay buffer for Stream on net/http. Each
// chunk is flushed as soon as it is written so bytes reach the wire
// before the source reader is exhausted.
const streamChunkSize = 32 * 1024

type netExchange struct {
	w http.ResponseWriter
	r *http.Request
}

// NewNetHTTPExchange binds one net/http request/response pair into an
// Exchange for the net/http adapter.
func NewNetHTTPExchange(w http.ResponseWriter, r *http.Request) *Exchange {
	return &Exchange{runtime: RuntimeNetHTTP, native: &netExchange{w: w, r: r}}
}

type netHTTPAdapter struct{}

func (netHTTPAdapter) Runtime() Runtime { return RuntimeNetHTTP }

func nethttpOf(ex *Exchange) *netExchange {
	p, ok := ex.native.(*netExchange)
	if !ok || ex.runtime != RuntimeNetHTTP {
		panic(ex.mismatch(RuntimeNetHTTP))
	}
	return p
}

func (netHTTPAdapter) Protocol(ex *Exchange) string {
	if nethttpOf(ex).r.TLS != nil {
		return "https"
	}
	return "http"
}

func (netHTTPAdapter) Host(ex *Exchange) string {
	r := nethttpOf(ex).r
	if r.Host != "" {
		return r.Host
	}
	if r.URL != nil && r.URL.Host != "" {
		return r.URL.Host
	}
	return DefaultHost
}

func (netHTTPAdapter) RequestURI(ex *Exchange) string {
	r := nethttpOf(ex).r
	if r.RequestURI != "" {
		return r.RequestURI
	}
	// Synthetic requests (tests, in-process calls) have no wire form.
	if r.URL != nil {
		return r.URL.RequestURI()
	}
	return "/"
}

func (netHTTPAdapter) Method(ex *Exchange) string {
	return strings.ToUpper(nethttpOf(ex).r.Method)
}

func (netHTTPAdapter) Headers(ex *Exchange) http.Header {
	return nethttpOf(ex).r.Header
}

func (netHTTPAdapter) Cookie(ex *Exchange) (string, bool) {
	vals := nethttpOf(ex).r.Header.Values("Cookie")
	if len(vals) == 0 {
		return "", false
	}
	// Multiple Cookie headers collapse into one string per RFC 6265.
	return strings.Join(vals, "; "), true
}

func (netHTTPAdapter) Body(ex *Exchange) interface{} {
	if ex.hasDecoded {
		return ex.decoded
	}
	r := nethttpOf(ex).r
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return r.Body
}

func (netHTTPAdapter) SetHeader(ex *Exchange, name string, values []string) error {
	if ex.headersSent {
		return ErrHeadersSent
	}
	h := nethttpOf(ex).w.Header()
	h.Del(name)
	for _, v := range values {
		h.Add(name, v)
	}
	return nil
}

func (netHTTPAdapter) SetStatus(ex *Exchange, status int) error {
	if ex.headersSent {
		return ErrHeadersSent
	}
	ex.status = status
	ex.headersSent = true
	nethttpOf(ex).w.WriteHeader(status)
	return nil
}

func (netHTTPAdapter) Send(ex *Exchange, body []byte) error {
	p := nethttpOf(ex)
	if !ex.headersSent {
		// Write commits an implicit 200 below.
		ex.status = http.StatusOK
		ex.headersSent = true
	}
	_, err := p.w.Write(body)
	return err
}

func (netHTTPAdapter) Stream(ex *Exchange, r io.Reader) error {
	p := nethttpOf(ex)
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	if !ex.headersSent {
		ex.status = http.StatusOK
		ex.headersSent = true
	}
	flusher, _ := p.w.(http.Flusher)
	buf := make([]byte, streamChunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := p.w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
