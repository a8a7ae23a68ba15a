package utils

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
)

// JSONError writes a JSON error response with the given status code and
// message. It ensures the Content-Type is set to application/json.
func JSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// JSONWrite writes the provided value as JSON with the given status code.
func JSONWrite(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	return json.NewEncoder(w).Encode(v)
}

// JSONErrorFast is JSONError for the fasthttp runtime.
func JSONErrorFast(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.Response.Reset()
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	b, _ := json.Marshal(map[string]string{"error": message})
	ctx.SetBody(append(b, '\n'))
}

// JSONWriteFast is JSONWrite for the fasthttp runtime.
func JSONWriteFast(ctx *fasthttp.RequestCtx, status int, v interface{}) error {
	ctx.SetContentType("application/json")
	if status != 0 {
		ctx.SetStatusCode(status)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx.SetBody(append(b, '\n'))
	return nil
}
