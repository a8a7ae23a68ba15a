package bridge

import (
	"fmt"
	"io"
	"net/http"

	"sessiongate/pkg/httpx"
	"sessiongate/pkg/metrics"
)

// WriteResponse relays the canonical response onto the native response
// behind ex, in protocol order: headers, then status, then the body as
// a stream. Each header is applied as one replace-with-list call, so
// multiple Set-Cookie values reach the runtime together instead of
// being joined or overwritten. Relay failures propagate to the caller;
// by then the response may be partially written.
func WriteResponse(ad httpx.Adapter, ex *httpx.Exchange, resp *http.Response) error {
	if resp == nil {
		return fmt.Errorf("bridge: nil response")
	}
	body := resp.Body
	closeBody := func() {
		if body != nil {
			body.Close()
		}
	}

	for name, values := range resp.Header {
		if len(values) == 0 || isFramingHeader(name) {
			continue
		}
		if err := ad.SetHeader(ex, name, values); err != nil {
			closeBody()
			return err
		}
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if err := ad.SetStatus(ex, status); err != nil {
		closeBody()
		return err
	}

	if body == nil || body == http.NoBody {
		closeBody()
		return nil
	}
	// Stream owns the reader from here, including closing it.
	return ad.Stream(ex, &countingReader{r: body})
}

// countingReader feeds the streamed-bytes counter as the body drains
// and forwards Close to the engine response body.
type countingReader struct {
	r io.ReadCloser
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	metrics.AddStreamedBytes(n)
	return n, err
}

func (c *countingReader) Close() error { return c.r.Close() }
