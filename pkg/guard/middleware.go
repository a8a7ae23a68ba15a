package guard

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"

	"sessiongate/pkg/httpx"
	"sessiongate/pkg/logger"
	"sessiongate/pkg/utils"
)

type identityCtxKey struct{}

// identityUserValue keys the identity in fasthttp's per-request user
// values. A plain string key works across fasthttp versions.
const identityUserValue = "sessiongate_identity"

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the identity attached by the net/http
// middleware or WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(*Identity)
	return id, ok && id != nil
}

// IdentityFromRequestCtx retrieves the identity attached by the
// fasthttp middleware.
func IdentityFromRequestCtx(ctx *fasthttp.RequestCtx) (*Identity, bool) {
	id, ok := ctx.UserValue(identityUserValue).(*Identity)
	return id, ok && id != nil
}

// NetHTTP guards next according to rc on the net/http runtime. The
// resolved identity rides on the request context.
func (g *Guard) NetHTTP(rc RouteConfig, next http.Handler) http.Handler {
	ad := httpx.MustAdapter(httpx.RuntimeNetHTTP)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ex := httpx.NewNetHTTPExchange(w, r)
		id, err := g.Check(r.Context(), ad, ex, rc)
		if err != nil {
			denyNetHTTP(w, r, err)
			return
		}
		if !id.HasAnyRole(rc.RequiredRoles) {
			logger.Warn("role_check_failed",
				"path", r.URL.Path,
				"required", strings.Join(rc.RequiredRoles, ","),
			)
			utils.JSONError(w, http.StatusForbidden, "insufficient role")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func denyNetHTTP(w http.ResponseWriter, r *http.Request, err error) {
	var ue *UnauthorizedError
	if errors.As(err, &ue) {
		logger.Warn("request_unauthorized", "path", r.URL.Path, "reason", ue.Reason)
		utils.JSONError(w, http.StatusUnauthorized, ue.Reason)
		return
	}
	logger.Error("guard_check_failed", "path", r.URL.Path, "error", err)
	utils.JSONError(w, http.StatusInternalServerError, "internal error")
}

// FastHTTP guards next according to rc on the fasthttp runtime. The
// resolved identity rides in the request's user values. RequestCtx
// doubles as the cancellation context for the engine call.
func (g *Guard) FastHTTP(rc RouteConfig, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	ad := httpx.MustAdapter(httpx.RuntimeFastHTTP)
	return func(ctx *fasthttp.RequestCtx) {
		ex := httpx.NewFastHTTPExchange(ctx)
		id, err := g.Check(ctx, ad, ex, rc)
		if err != nil {
			denyFastHTTP(ctx, err)
			return
		}
		if !id.HasAnyRole(rc.RequiredRoles) {
			logger.Warn("role_check_failed",
				"path", string(ctx.Path()),
				"required", strings.Join(rc.RequiredRoles, ","),
			)
			utils.JSONErrorFast(ctx, http.StatusForbidden, "insufficient role")
			return
		}
		ctx.SetUserValue(identityUserValue, id)
		next(ctx)
	}
}

func denyFastHTTP(ctx *fasthttp.RequestCtx, err error) {
	var ue *UnauthorizedError
	if errors.As(err, &ue) {
		logger.Warn("request_unauthorized", "path", string(ctx.Path()), "reason", ue.Reason)
		utils.JSONErrorFast(ctx, http.StatusUnauthorized, ue.Reason)
		return
	}
	logger.Error("guard_check_failed", "path", string(ctx.Path()), "error", err)
	utils.JSONErrorFast(ctx, http.StatusInternalServerError, "internal error")
}
