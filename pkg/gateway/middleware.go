// Package gateway provides the edge middleware chain applied in front
// of both native runtimes: request identification, request logging,
// CORS, IP whitelisting and per-client rate limiting.
package gateway

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"sessiongate/pkg/logger"
	"sessiongate/pkg/utils"
)

const requestIDHeader = "X-Request-Id"

// Config carries the edge hardening knobs.
type Config struct {
	AllowedOrigins []string
	// RPS enables per-client-IP rate limiting when positive; zero
	// leaves the edge unlimited.
	RPS         float64
	Burst       int
	IPWhitelist []string
}

// Chain bundles the middleware for both runtimes. One Chain serves the
// whole process; the limiter pool inside it is shared.
type Chain struct {
	cfg      Config
	limiters *limiterPool
}

// NewChain builds a middleware chain for cfg.
func NewChain(cfg Config) *Chain {
	return &Chain{cfg: cfg, limiters: newLimiterPool(cfg.RPS, cfg.Burst)}
}

// NetHTTP wraps next with the chain on the net/http runtime.
func (c *Chain) NetHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
			r.Header.Set(requestIDHeader, reqID)
		}
		w.Header().Set(requestIDHeader, reqID)

		logger.LogRequest(r)

		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, c.cfg.AllowedOrigins) {
			applyCORS(w.Header().Set, origin)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		ip := clientIP(r.RemoteAddr)
		if len(c.cfg.IPWhitelist) > 0 && !ipWhitelisted(ip, c.cfg.IPWhitelist) {
			utils.JSONError(w, http.StatusForbidden, "forbidden")
			logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", r.URL.Path)
			return
		}

		if c.cfg.RPS > 0 && !c.limiters.Allow(ip) {
			utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			logger.Warn("rate_limited", "ip", ip, "path", r.URL.Path)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FastHTTP wraps next with the chain on the fasthttp runtime.
func (c *Chain) FastHTTP(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		reqID := string(ctx.Request.Header.Peek(requestIDHeader))
		if reqID == "" {
			reqID = uuid.NewString()
			ctx.Request.Header.Set(requestIDHeader, reqID)
		}
		ctx.Response.Header.Set(requestIDHeader, reqID)

		logger.LogRequestFast(ctx)

		origin := string(ctx.Request.Header.Peek("Origin"))
		if origin != "" && originAllowed(origin, c.cfg.AllowedOrigins) {
			applyCORS(ctx.Response.Header.Set, origin)
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		ip := clientIP(ctx.RemoteAddr().String())
		path := string(ctx.Path())
		if len(c.cfg.IPWhitelist) > 0 && !ipWhitelisted(ip, c.cfg.IPWhitelist) {
			utils.JSONErrorFast(ctx, http.StatusForbidden, "forbidden")
			logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", path)
			return
		}

		if c.cfg.RPS > 0 && !c.limiters.Allow(ip) {
			utils.JSONErrorFast(ctx, http.StatusTooManyRequests, "rate limit exceeded")
			logger.Warn("rate_limited", "ip", ip, "path", path)
			return
		}

		next(ctx)
	}
}

// applyCORS writes the CORS response headers through set, which hides
// the header-map differences between the runtimes. Cookies are how
// sessions travel, so credentials are always allowed and the origin is
// echoed back rather than wildcarded.
func applyCORS(set func(key, value string), origin string) {
	set("Access-Control-Allow-Origin", origin)
	set("Vary", "Origin")
	set("Access-Control-Allow-Credentials", "true")
	set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,PATCH,OPTIONS")
	set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-Request-Id")
	set("Access-Control-Expose-Headers", "X-Request-Id")
	set("Access-Control-Max-Age", "600")
}

func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}
